package batch

import (
	"fmt"
	"strings"
	"time"

	"example.com/practice/internal/notify"
)

// Counters tallies one notification kind across a pass.
type Counters struct {
	Checked int `json:"checked"`
	Sent    int `json:"sent"`
	Failed  int `json:"failed"`
}

// Report summarizes a pass.
type Report struct {
	RunID      string                   `json:"run_id"`
	StartedAt  time.Time                `json:"started_at"`
	Duration   time.Duration            `json:"duration"`
	Users      int                      `json:"users"`
	Kinds      map[notify.Kind]Counters `json:"kinds"`
	LogErrors  int                      `json:"log_errors"`
	UserErrors int                      `json:"user_errors"`
	Skipped    bool                     `json:"skipped,omitempty"`
}

func newReport(runID string, startedAt time.Time) Report {
	kinds := make(map[notify.Kind]Counters, len(notify.Kinds))
	for _, k := range notify.Kinds {
		kinds[k] = Counters{}
	}
	return Report{RunID: runID, StartedAt: startedAt, Kinds: kinds}
}

// Totals sums the per-kind counters.
func (r Report) Totals() Counters {
	var total Counters
	for _, c := range r.Kinds {
		total.Checked += c.Checked
		total.Sent += c.Sent
		total.Failed += c.Failed
	}
	return total
}

// Summary returns a one-line human-readable summary.
func (r Report) Summary() string {
	if r.Skipped {
		return fmt.Sprintf("run %s skipped: another scheduler holds the lock", r.RunID)
	}
	parts := make([]string, 0, len(notify.Kinds))
	for _, k := range notify.Kinds {
		c := r.Kinds[k]
		parts = append(parts, fmt.Sprintf("%s=%d/%d/%d", k, c.Checked, c.Sent, c.Failed))
	}
	return fmt.Sprintf("run %s: %d users in %s, log_errors=%d user_errors=%d [%s]",
		r.RunID, r.Users, r.Duration.Round(time.Millisecond), r.LogErrors, r.UserErrors, strings.Join(parts, " "))
}

type userResult struct {
	userID    string
	kinds     map[notify.Kind]Counters
	logErrors int
	err       error
}

func (r *Report) merge(res userResult) {
	r.Users++
	for k, c := range res.kinds {
		total := r.Kinds[k]
		total.Checked += c.Checked
		total.Sent += c.Sent
		total.Failed += c.Failed
		r.Kinds[k] = total
	}
	r.LogErrors += res.logErrors
	if res.err != nil {
		r.UserErrors++
	}
}
