package checker

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
)

var (
	// ErrMissingFile indicates the document to check does not exist.
	ErrMissingFile = errors.New("file not found")
	// ErrMalformedDocument indicates the document could not be parsed.
	ErrMalformedDocument = errors.New("document could not be parsed")
)

// Item is the outcome of one checklist item worth a single point.
type Item struct {
	Name   string `json:"name"`
	Passed bool   `json:"passed"`
}

// Outcome collects the checklist items evaluated over one document.
type Outcome struct {
	Items []Item
	// Digest is the CSS presence summary; empty for HTML outcomes.
	Digest string
}

// Points returns the number of passed items.
func (o Outcome) Points() int {
	points := 0
	for _, item := range o.Items {
		if item.Passed {
			points++
		}
	}
	return points
}

// Total returns the number of points that could have been earned.
func (o Outcome) Total() int {
	return len(o.Items)
}

// CheckGroup ANDs together the conditions of a single checklist item.
// Start a fresh group for every item.
type CheckGroup struct {
	valid bool
}

// NewCheckGroup returns a group that passes until a condition fails.
func NewCheckGroup() *CheckGroup {
	return &CheckGroup{valid: true}
}

// Require folds cond into the group.
func (g *CheckGroup) Require(cond bool) *CheckGroup {
	g.valid = g.valid && cond
	return g
}

// Passed reports whether every condition held.
func (g *CheckGroup) Passed() bool {
	return g.valid
}

// Points is 1 when the group passed, 0 otherwise.
func (g *CheckGroup) Points() int {
	if g.valid {
		return 1
	}
	return 0
}

func (o *Outcome) record(name string, group *CheckGroup) {
	o.Items = append(o.Items, Item{Name: name, Passed: group.Passed()})
}

func openDocument(path string) (*os.File, error) {
	info, err := os.Stat(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrMissingFile, path)
		}
		return nil, fmt.Errorf("failed to stat %s: %w", path, err)
	}
	if info.IsDir() {
		return nil, fmt.Errorf("%w: %s is a directory", ErrMissingFile, path)
	}

	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s: %w", path, err)
	}
	return file, nil
}
