package report

import (
	"fmt"
	"io"
	"slices"
	"strconv"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"

	"github.com/noah-isme/gema-webgrader/internal/grading"
)

var headers = []string{"Student", "Score", "Final Score", "Comment"}

var (
	cellStyle   = lipgloss.NewStyle().Padding(0, 1)
	headerStyle = cellStyle.Bold(true).Align(lipgloss.Center)
	leftStyle   = cellStyle.Align(lipgloss.Left)
	centerStyle = cellStyle.Align(lipgloss.Center)
)

// Summary counts how a batch of results went.
type Summary struct {
	Submissions int
	Graded      int
	Failed      int
	FullMarks   int
}

// Summarize counts graded, failed and capped results.
func Summarize(results []grading.Result, scoreCap int) Summary {
	summary := Summary{Submissions: len(results)}
	for _, result := range results {
		if result.Failed() {
			summary.Failed++
		} else {
			summary.Graded++
		}
		if result.FinalScore(scoreCap) == effectiveCap(scoreCap) {
			summary.FullMarks++
		}
	}
	return summary
}

// Sorted returns a copy of results ordered by student name.
func Sorted(results []grading.Result) []grading.Result {
	sorted := slices.Clone(results)
	slices.SortStableFunc(sorted, func(a, b grading.Result) int {
		return strings.Compare(a.Name, b.Name)
	})
	return sorted
}

// Render writes the score table, one row per student sorted by name.
func Render(w io.Writer, results []grading.Result, scoreCap int) error {
	t := table.New().
		Border(lipgloss.NormalBorder()).
		Headers(headers...).
		StyleFunc(func(row, col int) lipgloss.Style {
			switch {
			case row == table.HeaderRow:
				return headerStyle
			case col == 0:
				return leftStyle
			default:
				return centerStyle
			}
		})

	for _, result := range Sorted(results) {
		t.Row(
			result.Name,
			strconv.Itoa(result.Score),
			strconv.Itoa(result.FinalScore(scoreCap)),
			result.Comment(),
		)
	}

	_, err := fmt.Fprintln(w, t.Render())
	return err
}

func effectiveCap(scoreCap int) int {
	if scoreCap <= 0 {
		return grading.DefaultScoreCap
	}
	return scoreCap
}
