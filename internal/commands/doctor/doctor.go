// Package doctor runs health checks against the postbox configuration and collections.
package doctor

import "context"

// Status is the outcome of a single check item.
type Status string

const (
	StatusPass Status = "pass"
	StatusWarn Status = "warn"
	StatusFail Status = "fail"
)

// CheckItem is one line of a check result.
type CheckItem struct {
	Label   string `json:"label"`
	Status  Status `json:"status"`
	Detail  string `json:"detail,omitempty"`
	Fixable bool   `json:"fixable,omitempty"`
}

// Result groups the items reported by one check.
type Result struct {
	Name  string      `json:"name"`
	Items []CheckItem `json:"items"`
}

func (r *Result) pass(label, detail string) {
	r.Items = append(r.Items, CheckItem{Label: label, Status: StatusPass, Detail: detail})
}

func (r *Result) warn(label, detail string, fixable bool) {
	r.Items = append(r.Items, CheckItem{Label: label, Status: StatusWarn, Detail: detail, Fixable: fixable})
}

func (r *Result) fail(label, detail string) {
	r.Items = append(r.Items, CheckItem{Label: label, Status: StatusFail, Detail: detail})
}

// Check is a single named diagnostic.
type Check interface {
	Name() string
	Run(ctx context.Context) Result
}

// Tally counts check items by outcome. Fixable counts the non-passing items
// that --fix would repair.
type Tally struct {
	Passed  int `json:"passed"`
	Warned  int `json:"warned"`
	Failed  int `json:"failed"`
	Fixable int `json:"fixable"`
}

func (t *Tally) add(item CheckItem) {
	switch item.Status {
	case StatusPass:
		t.Passed++
		return
	case StatusWarn:
		t.Warned++
	case StatusFail:
		t.Failed++
	}
	if item.Fixable {
		t.Fixable++
	}
}

// Report is the outcome of a doctor run. It is healthy when no item failed.
type Report struct {
	Healthy bool     `json:"healthy"`
	Summary Tally    `json:"summary"`
	Checks  []Result `json:"checks"`
}

// Run executes checks in order and tallies their items.
func Run(ctx context.Context, checks []Check) Report {
	report := Report{Checks: make([]Result, 0, len(checks))}
	for _, check := range checks {
		result := check.Run(ctx)
		for _, item := range result.Items {
			report.Summary.add(item)
		}
		report.Checks = append(report.Checks, result)
	}
	report.Healthy = report.Summary.Failed == 0
	return report
}
