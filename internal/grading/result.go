package grading

import (
	"github.com/noah-isme/gema-webgrader/internal/checker"
)

// DefaultScoreCap is the highest final score shown for a submission.
const DefaultScoreCap = 10

const (
	// MsgIndexNotFound is reported when a submission has no index.html.
	MsgIndexNotFound = "index.html file not found"
	// MsgStyleNotFound is reported when a submission has no style.css.
	MsgStyleNotFound = "style.css file not found"
)

// Result accumulates the grade of one submission.
type Result struct {
	Name   string         `json:"name"`
	Score  int            `json:"score"`
	Total  int            `json:"total"`
	Err    string         `json:"error,omitempty"`
	Digest string         `json:"digest,omitempty"`
	Items  []checker.Item `json:"items,omitempty"`
}

// NewResult starts an empty result for the named student.
func NewResult(name string) Result {
	return Result{Name: name}
}

// Add merges the points of a checklist outcome.
func (r *Result) Add(outcome checker.Outcome) {
	r.Score += outcome.Points()
	r.Total += outcome.Total()
	r.Items = append(r.Items, outcome.Items...)
}

// Fail records a fatal error. Only the first one is kept.
func (r *Result) Fail(message string) {
	if r.Err == "" {
		r.Err = message
	}
}

// Failed reports whether a fatal error stopped grading.
func (r Result) Failed() bool {
	return r.Err != ""
}

// Comment is the error when one occurred, otherwise the CSS presence digest.
func (r Result) Comment() string {
	if r.Err != "" {
		return r.Err
	}
	return r.Digest
}

// FinalScore caps the raw score. A non-positive scoreCap selects DefaultScoreCap.
func (r Result) FinalScore(scoreCap int) int {
	if scoreCap <= 0 {
		scoreCap = DefaultScoreCap
	}
	return min(r.Score, scoreCap)
}
