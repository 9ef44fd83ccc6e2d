// Package service drives the auto-cabling pipeline: enumerate OOB
// interfaces, collect FDBs, correlate, and act on the decisions.
package service

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/rackwise/autocable/internal/correlate"
	"github.com/rackwise/autocable/internal/fdb"
	"github.com/rackwise/autocable/internal/netbox"
	"github.com/rackwise/autocable/internal/state"
)

// Inventory is the slice of the NetBox client the orchestrator uses.
type Inventory interface {
	ListOOBInterfaces(ctx context.Context) ([]netbox.OOBInterface, error)
	ListSwitches(ctx context.Context, sites []string) ([]netbox.Switch, error)
	CreateCable(ctx context.Context, serverInterfaceID, switchInterfaceID, vlan int, label string) (*netbox.Cable, error)
}

// FDBSource yields the FDB entries of one switch. Implemented by
// *fdb.Collector and *fdb.Snapshot.
type FDBSource interface {
	Collect(ctx context.Context, switchName, switchIP string) ([]fdb.Entry, error)
}

// Options tunes the orchestrator.
type Options struct {
	Concurrency  int           // bounded fan-out for FDB collection
	PollInterval time.Duration // daemon sleep between runs
	DryRun       bool
}

// Service runs the auto-cabling pipeline.
type Service struct {
	inventory  Inventory
	source     FDBSource
	correlator *correlate.Correlator
	store      state.Store
	metrics    *Metrics // nil when metrics are disabled
	opts       Options
	logger     *zap.Logger
}

// New assembles a Service.
func New(inventory Inventory, source FDBSource, correlator *correlate.Correlator, store state.Store, metrics *Metrics, opts Options, logger *zap.Logger) *Service {
	if opts.Concurrency <= 0 {
		opts.Concurrency = 4
	}
	return &Service{
		inventory:  inventory,
		source:     source,
		correlator: correlator,
		store:      store,
		metrics:    metrics,
		opts:       opts,
		logger:     logger,
	}
}

// RunOnce performs a single pass: enumerate, collect, correlate, act.
func (s *Service) RunOnce(ctx context.Context) (RunSummary, error) {
	summary := RunSummary{RunID: uuid.NewString()}
	logger := s.logger.With(zap.String("run_id", summary.RunID))
	logger.Info("starting auto-cabling run")

	oobInterfaces, err := s.inventory.ListOOBInterfaces(ctx)
	if err != nil {
		return summary, fmt.Errorf("list OOB interfaces: %w", err)
	}
	summary.TotalOOB = len(oobInterfaces)

	if len(oobInterfaces) == 0 {
		logger.Warn("no devices with OOB IP found, nothing to do")
		return summary, s.finishRun(ctx, logger, &summary, 0)
	}

	sites := siteSet(oobInterfaces)
	logger.Info("devices found on sites", zap.Strings("sites", sites))

	switches, err := s.inventory.ListSwitches(ctx, sites)
	if err != nil {
		return summary, fmt.Errorf("list switches: %w", err)
	}
	if len(switches) == 0 {
		logger.Warn("no switches found, cannot collect FDB")
		return summary, s.finishRun(ctx, logger, &summary, 0)
	}

	entries := s.collectAll(ctx, logger, switches)
	logger.Info("collected FDB entries", zap.Int("count", len(entries)))

	decisions := s.correlator.Correlate(ctx, oobInterfaces, entries, switches)
	for _, d := range decisions {
		s.processDecision(ctx, logger, d, &summary)
	}

	return summary, s.finishRun(ctx, logger, &summary, len(entries))
}

func (s *Service) finishRun(ctx context.Context, logger *zap.Logger, summary *RunSummary, fdbEntries int) error {
	err := s.store.RecordRun(ctx, state.RunRecord{
		RunID:     summary.RunID,
		RunAt:     time.Now().UTC(),
		TotalMACs: summary.TotalOOB,
		Created:   summary.Created,
		Exists:    summary.Exists,
		Skipped:   summary.Skipped,
		Ambiguous: summary.Ambiguous,
		NotFound:  summary.NotFound,
		Errors:    summary.Errors,
	})
	if err != nil {
		return fmt.Errorf("record run: %w", err)
	}

	s.metrics.observeRun(*summary, fdbEntries)
	logger.Info(summary.String())
	return nil
}

// collectAll fans out FDB collection across switches with bounded
// parallelism. Per-switch walks stay sequential; failures and missing
// management IPs leave that switch empty. Results merge in switch
// order so correlation input is deterministic.
func (s *Service) collectAll(ctx context.Context, logger *zap.Logger, switches []netbox.Switch) []fdb.Entry {
	results := make([][]fdb.Entry, len(switches))

	var wg sync.WaitGroup
	sem := make(chan struct{}, s.opts.Concurrency)

	for i, sw := range switches {
		if ctx.Err() != nil {
			break
		}
		if sw.PrimaryIP == "" {
			logger.Warn("skipping switch without management IP", zap.String("switch", sw.Name))
			continue
		}

		wg.Add(1)
		sem <- struct{}{}
		go func(i int, sw netbox.Switch) {
			defer wg.Done()
			defer func() { <-sem }()

			entries, err := s.source.Collect(ctx, sw.Name, sw.PrimaryIP)
			if err != nil {
				logger.Warn("FDB collection failed",
					zap.String("switch", sw.Name),
					zap.String("ip", sw.PrimaryIP),
					zap.Error(err))
				return
			}
			results[i] = entries
		}(i, sw)
	}
	wg.Wait()

	var merged []fdb.Entry
	for _, r := range results {
		merged = append(merged, r...)
	}
	return merged
}

func (s *Service) processDecision(ctx context.Context, logger *zap.Logger, d correlate.Decision, summary *RunSummary) {
	fields := []zap.Field{
		zap.String("mac", d.MAC),
		zap.String("device", d.OOB.DeviceName),
		zap.String("interface", d.OOB.InterfaceName),
		zap.String("status", string(d.Status)),
	}
	if d.SwitchName != "" {
		fields = append(fields,
			zap.String("switch", d.SwitchName),
			zap.String("port", d.PortName))
	}

	switch d.Status {
	case state.StatusMismatch:
		summary.Mismatch++
		logger.Warn("MAC mismatch on existing cable",
			append(fields,
				zap.String("expected_mac", d.ExpectedMAC),
				zap.String("actual_mac", d.ActualMAC))...)

	case state.StatusExists:
		summary.Exists++
		logger.Info("cable already exists", fields...)

	case state.StatusNotFound:
		summary.NotFound++
		logger.Info("MAC not found in any FDB", fields...)

	case state.StatusAmbiguous:
		summary.Ambiguous++
		logger.Warn(d.Reason, fields...)

	case state.StatusSkipNonAccess:
		summary.Skipped++
		logger.Info("skipped: "+d.Reason, fields...)

	case state.StatusError:
		summary.Errors++
		logger.Error(d.Reason, fields...)

	case state.StatusPending:
		if d.IsStable && d.PortID != 0 {
			s.createCable(ctx, logger, d, summary, fields)
		} else {
			summary.Pending++
			logger.Info(d.Reason, fields...)
		}
	}
}

func (s *Service) createCable(ctx context.Context, logger *zap.Logger, d correlate.Decision, summary *RunSummary, fields []zap.Field) {
	cable, err := s.inventory.CreateCable(ctx, d.OOB.InterfaceID, d.PortID, d.VLAN, "")
	if err != nil {
		summary.Errors++
		logger.Error("cable creation failed", append(fields, zap.Error(err))...)
		if uerr := s.store.UpdateStatus(ctx, d.MAC, state.StatusError, 0); uerr != nil {
			logger.Error("state update failed", zap.String("mac", d.MAC), zap.Error(uerr))
		}
		return
	}

	if cable == nil {
		// Dry run: the intent was logged by the client; nothing to persist.
		summary.Created++
		return
	}

	summary.Created++
	if err := s.store.UpdateStatus(ctx, d.MAC, state.StatusCreated, cable.ID); err != nil {
		logger.Error("state update failed", zap.String("mac", d.MAC), zap.Error(err))
	}
	logger.Info("cable created", append(fields, zap.Int("cable_id", cable.ID))...)
}

// RunDaemon repeats RunOnce on the poll interval until the context is
// cancelled. Per-run failures are logged and the loop continues.
func (s *Service) RunDaemon(ctx context.Context) {
	interval := s.opts.PollInterval
	if interval <= 0 {
		interval = 5 * time.Minute
	}

	s.logger.Info("starting daemon mode", zap.Duration("poll_interval", interval))

	for {
		if _, err := s.RunOnce(ctx); err != nil {
			s.logger.Error("run failed", zap.Error(err))
		}

		select {
		case <-ctx.Done():
			s.logger.Info("daemon stopping", zap.Error(ctx.Err()))
			return
		case <-time.After(interval):
		}
	}
}

// siteSet returns the sorted unique sites of the given interfaces.
func siteSet(oobInterfaces []netbox.OOBInterface) []string {
	seen := make(map[string]struct{})
	for _, oob := range oobInterfaces {
		if oob.Site != "" {
			seen[oob.Site] = struct{}{}
		}
	}
	sites := make([]string, 0, len(seen))
	for site := range seen {
		sites = append(sites, site)
	}
	sort.Strings(sites)
	return sites
}
