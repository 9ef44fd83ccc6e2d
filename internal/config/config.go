// Package config loads service configuration from the environment,
// optionally seeded by a dotenv file.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config is the full runtime configuration. Every field maps to one
// environment key of the same name in upper case.
type Config struct {
	NetBoxURL       string
	NetBoxToken     string
	NetBoxVerifySSL bool
	NetBoxTimeout   time.Duration

	SwitchesRole       string
	IPMIInterfaceNames []string

	SNMPCommunity string
	SNMPVersion   string
	SNMPTimeout   time.Duration
	SNMPRetries   int

	UplinkPorts    []string
	UplinkPatterns []string

	StabilityRuns int
	StateDBPath   string

	PollInterval time.Duration
	DryRun       bool
	CableStatus  string
	MLAGGroups   string

	FDBConcurrency int
	FDBSnapshot    string
	MetricsAddr    string

	LogLevel  string
	LogFormat string
}

// Load reads configuration from envFile (when it exists) and the
// process environment. Environment variables always win over the file.
func Load(envFile string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	if envFile != "" {
		v.SetConfigFile(envFile)
		v.SetConfigType("env")
		if err := v.ReadInConfig(); err != nil {
			// A missing env file just means everything comes from the
			// process environment.
			var notFound viper.ConfigFileNotFoundError
			if !errors.Is(err, fs.ErrNotExist) && !errors.As(err, &notFound) {
				return nil, fmt.Errorf("reading env file %s: %w", envFile, err)
			}
		}
	}
	v.AutomaticEnv()

	cfg := &Config{
		NetBoxURL:       strings.TrimRight(v.GetString("netbox_url"), "/"),
		NetBoxToken:     v.GetString("netbox_token"),
		NetBoxVerifySSL: v.GetBool("netbox_verify_ssl"),
		NetBoxTimeout:   time.Duration(v.GetInt("netbox_timeout")) * time.Second,

		SwitchesRole:       v.GetString("switches_role"),
		IPMIInterfaceNames: splitList(v.GetString("ipmi_interface_names")),

		SNMPCommunity: v.GetString("snmp_community"),
		SNMPVersion:   v.GetString("snmp_version"),
		SNMPTimeout:   time.Duration(v.GetInt("snmp_timeout")) * time.Second,
		SNMPRetries:   v.GetInt("snmp_retries"),

		UplinkPorts:    splitList(v.GetString("uplink_ports")),
		UplinkPatterns: splitList(v.GetString("uplink_patterns")),

		StabilityRuns: v.GetInt("stability_runs"),
		StateDBPath:   v.GetString("state_db_path"),

		PollInterval: time.Duration(v.GetInt("poll_interval")) * time.Second,
		DryRun:       v.GetBool("dry_run"),
		CableStatus:  v.GetString("cable_status"),
		MLAGGroups:   v.GetString("mlag_groups"),

		FDBConcurrency: v.GetInt("fdb_concurrency"),
		FDBSnapshot:    v.GetString("fdb_snapshot"),
		MetricsAddr:    v.GetString("metrics_addr"),

		LogLevel:  v.GetString("log_level"),
		LogFormat: v.GetString("log_format"),
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("netbox_url", "")
	v.SetDefault("netbox_token", "")
	v.SetDefault("netbox_verify_ssl", false)
	v.SetDefault("netbox_timeout", 30)

	v.SetDefault("switches_role", "")
	v.SetDefault("ipmi_interface_names", "IPMI,BMC,MGMT,iLO,iDRAC,CIMC")

	v.SetDefault("snmp_community", "public")
	v.SetDefault("snmp_version", "2c")
	v.SetDefault("snmp_timeout", 5)
	v.SetDefault("snmp_retries", 2)

	v.SetDefault("uplink_ports", "")
	v.SetDefault("uplink_patterns", "")

	v.SetDefault("stability_runs", 2)
	v.SetDefault("state_db_path", "state.db")

	v.SetDefault("poll_interval", 0)
	v.SetDefault("dry_run", false)
	v.SetDefault("cable_status", "connected")
	v.SetDefault("mlag_groups", "")

	v.SetDefault("fdb_concurrency", 4)
	v.SetDefault("fdb_snapshot", "")
	v.SetDefault("metrics_addr", "")

	v.SetDefault("log_level", "info")
	v.SetDefault("log_format", "text")
}

func (c *Config) validate() error {
	if c.NetBoxURL == "" {
		return errors.New("NETBOX_URL is required")
	}
	if c.NetBoxToken == "" {
		return errors.New("NETBOX_TOKEN is required")
	}
	switch c.CableStatus {
	case "planned", "connected":
	default:
		return fmt.Errorf("CABLE_STATUS must be planned or connected, got %q", c.CableStatus)
	}
	if c.StabilityRuns < 1 {
		return fmt.Errorf("STABILITY_RUNS must be at least 1, got %d", c.StabilityRuns)
	}
	return nil
}

// splitList splits a comma-separated value, trimming whitespace and
// dropping empty elements.
func splitList(s string) []string {
	if s == "" {
		return nil
	}
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
