package service

import "fmt"

// RunSummary is the per-run bucket count across all OOB interfaces.
type RunSummary struct {
	RunID     string
	TotalOOB  int
	Created   int
	Exists    int
	Skipped   int
	Ambiguous int
	NotFound  int
	Pending   int
	Errors    int
	Mismatch  int
}

func (s RunSummary) String() string {
	out := fmt.Sprintf(
		"run summary: total=%d created=%d exists=%d skipped=%d ambiguous=%d not_found=%d pending=%d errors=%d",
		s.TotalOOB, s.Created, s.Exists, s.Skipped, s.Ambiguous, s.NotFound, s.Pending, s.Errors)
	if s.Mismatch > 0 {
		out += fmt.Sprintf(" MISMATCH=%d", s.Mismatch)
	}
	return out
}
