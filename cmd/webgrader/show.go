package main

import (
	"errors"
	"fmt"
	"io"

	"github.com/spf13/cobra"
	"gorm.io/gorm"

	"github.com/noah-isme/gema-webgrader/internal/grading"
	"github.com/noah-isme/gema-webgrader/internal/models"
	"github.com/noah-isme/gema-webgrader/internal/report"
)

var errNoStore = errors.New("no result store configured, set --store-driver and --store-dsn")

func newShowCommand(stdout, stderr io.Writer) *cobra.Command {
	return &cobra.Command{
		Use:   "show [run-id]",
		Short: "Print the score table of a stored run, the latest one by default",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := setup(cmd, stderr)
			if err != nil {
				return err
			}
			defer a.close()

			if a.repo == nil {
				return errNoStore
			}

			ctx := cmd.Context()

			var run models.GradeRun
			if len(args) == 1 {
				run, err = a.repo.GetRun(ctx, args[0])
			} else {
				run, err = a.repo.LatestRun(ctx)
			}
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return fmt.Errorf("grading run not found")
			}
			if err != nil {
				return fmt.Errorf("failed to load grading run: %w", err)
			}

			records, err := a.repo.ListByRun(ctx, run.ID)
			if err != nil {
				return fmt.Errorf("failed to load grades: %w", err)
			}

			results := make([]grading.Result, 0, len(records))
			for _, record := range records {
				results = append(results, grading.ResultFromRecord(record))
			}

			a.logger.Info().
				Str("run_id", run.ID).
				Str("input_dir", run.InputDir).
				Time("started_at", run.StartedAt).
				Msg("showing stored run")

			return report.Render(stdout, results, run.ScoreCap)
		},
	}
}
