package grading

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/noah-isme/gema-webgrader/internal/archive"
	"github.com/noah-isme/gema-webgrader/internal/checker"
	"github.com/noah-isme/gema-webgrader/internal/models"
	"github.com/noah-isme/gema-webgrader/internal/observability"
	"github.com/noah-isme/gema-webgrader/internal/repository"
)

// checklistVersion is mixed into cache keys; bump it whenever a checklist item changes.
const checklistVersion = "pmdb-v1"

// Extractor unpacks a submission archive.
type Extractor interface {
	Extract(ctx context.Context, archivePath, destDir string) (archive.Paths, error)
}

// Checker evaluates one checklist over a document on disk.
type Checker interface {
	Check(path string) (checker.Outcome, error)
}

// Cache stores finished results keyed by archive content.
type Cache interface {
	Get(ctx context.Context, key string, dest any) (bool, error)
	Set(ctx context.Context, key string, value any) error
}

// Report is the outcome of grading a batch of submissions.
type Report struct {
	RunID       string
	StartedAt   time.Time
	CompletedAt time.Time
	Results     []Result
}

// Driver runs extraction and both checklists for each submission in turn.
type Driver struct {
	extractor   Extractor
	html        Checker
	css         Checker
	repo        repository.GradeRepository
	cache       Cache
	fingerprint string
	scoreCap    int
	logger      zerolog.Logger
	tracer      trace.Tracer
	now         func() time.Time
}

// Option customises a Driver.
type Option func(*Driver)

// WithRepository persists every run and result.
func WithRepository(repo repository.GradeRepository) Option {
	return func(d *Driver) {
		d.repo = repo
	}
}

// WithCache reuses results of archives graded before. fingerprint must change
// whenever the checker configuration changes.
func WithCache(cache Cache, fingerprint string) Option {
	return func(d *Driver) {
		d.cache = cache
		d.fingerprint = fingerprint
	}
}

// WithScoreCap sets the cap recorded alongside persisted runs.
func WithScoreCap(scoreCap int) Option {
	return func(d *Driver) {
		if scoreCap > 0 {
			d.scoreCap = scoreCap
		}
	}
}

// NewDriver constructs a Driver.
func NewDriver(extractor Extractor, html, css Checker, logger zerolog.Logger, opts ...Option) *Driver {
	d := &Driver{
		extractor: extractor,
		html:      html,
		css:       css,
		scoreCap:  DefaultScoreCap,
		logger:    logger.With().Str("component", "grading_driver").Logger(),
		tracer:    otel.Tracer("github.com/noah-isme/gema-webgrader/internal/grading"),
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Run grades submissions sequentially. A failing submission never stops the
// batch; only a cancelled context does, in which case the results gathered so
// far are returned with the context error.
func (d *Driver) Run(ctx context.Context, inputDir string, submissions []Submission) (Report, error) {
	report := Report{
		RunID:     uuid.NewString(),
		StartedAt: d.now(),
		Results:   make([]Result, 0, len(submissions)),
	}

	if d.repo != nil {
		run := models.GradeRun{ID: report.RunID, InputDir: inputDir, ScoreCap: d.scoreCap, StartedAt: report.StartedAt}
		if err := d.repo.CreateRun(ctx, &run); err != nil {
			d.logger.Warn().Err(err).Str("run_id", report.RunID).Msg("failed to persist grading run")
		}
	}

	for _, submission := range submissions {
		if err := ctx.Err(); err != nil {
			return report, err
		}

		result := d.Grade(ctx, submission)
		report.Results = append(report.Results, result)
		d.persist(ctx, report.RunID, submission, result)
	}

	report.CompletedAt = d.now()
	observability.LastRunTimestamp().Set(float64(report.CompletedAt.Unix()))

	if d.repo != nil {
		if err := d.repo.CompleteRun(ctx, report.RunID, report.CompletedAt); err != nil {
			d.logger.Warn().Err(err).Str("run_id", report.RunID).Msg("failed to mark grading run complete")
		}
	}

	return report, nil
}

// Grade runs extract, HTML check and CSS check for one submission. The first
// fatal error is recorded on the result and ends grading of that submission.
func (d *Driver) Grade(ctx context.Context, submission Submission) Result {
	ctx, span := d.tracer.Start(ctx, "grading.submission")
	defer span.End()
	span.SetAttributes(attribute.String("grading.student", submission.Name))

	logger := d.logger.With().Str("student", submission.Name).Logger()

	cacheKey := ""
	if d.cache != nil {
		cached, key, ok := d.lookup(ctx, submission, logger)
		if ok {
			span.SetAttributes(attribute.Bool("grading.cached", true))
			observability.Submissions().WithLabelValues("cached").Inc()
			return cached
		}
		cacheKey = key
	}

	result := d.grade(ctx, submission, logger)

	if result.Failed() {
		span.SetStatus(codes.Error, result.Err)
		observability.Submissions().WithLabelValues("failed").Inc()
		logger.Info().Str("error", result.Err).Int("score", result.Score).Int("total", result.Total).Msg("submission failed")
	} else {
		span.SetStatus(codes.Ok, "graded")
		observability.Submissions().WithLabelValues("graded").Inc()
		logger.Info().Int("score", result.Score).Int("total", result.Total).Str("digest", result.Digest).Msg("submission graded")

		if cacheKey != "" {
			if err := d.cache.Set(ctx, cacheKey, result); err != nil {
				logger.Warn().Err(err).Msg("failed to store result in cache")
			}
		}
	}

	observability.SubmissionScore().Observe(float64(result.Score))
	for _, item := range result.Items {
		observability.ChecklistItems().WithLabelValues(item.Name, strconv.FormatBool(item.Passed)).Inc()
	}
	span.SetAttributes(attribute.Int("grading.score", result.Score), attribute.Int("grading.total", result.Total))

	return result
}

func (d *Driver) grade(ctx context.Context, submission Submission, logger zerolog.Logger) Result {
	result := NewResult(submission.Name)

	start := d.now()
	paths, err := d.extractor.Extract(ctx, submission.ArchivePath, submission.ExtractDir)
	observability.ExtractionLatency().Observe(d.now().Sub(start).Seconds())
	if err != nil {
		result.Fail(err.Error())
		return result
	}

	outcome, err := d.html.Check(paths.HTML)
	if err != nil {
		result.Fail(failureMessage(err, MsgIndexNotFound))
		return result
	}
	result.Add(outcome)
	logger.Debug().Int("points", outcome.Points()).Int("total", outcome.Total()).Msg("html checked")

	outcome, err = d.css.Check(paths.CSS)
	if err != nil {
		result.Fail(failureMessage(err, MsgStyleNotFound))
		return result
	}
	result.Add(outcome)
	result.Digest = outcome.Digest
	logger.Debug().Int("points", outcome.Points()).Int("total", outcome.Total()).Msg("css checked")

	return result
}

func failureMessage(err error, missing string) string {
	if errors.Is(err, checker.ErrMissingFile) {
		return missing
	}
	return err.Error()
}

func (d *Driver) lookup(ctx context.Context, submission Submission, logger zerolog.Logger) (Result, string, bool) {
	key, err := CacheKey(submission.ArchivePath, d.fingerprint)
	if err != nil {
		// Unreadable archives are left for the extractor to report.
		logger.Debug().Err(err).Msg("cache key unavailable")
		return Result{}, "", false
	}

	var cached Result
	found, err := d.cache.Get(ctx, key, &cached)
	switch {
	case err != nil:
		observability.ResultCacheLookups().WithLabelValues("error").Inc()
		logger.Warn().Err(err).Msg("failed to read result cache")
		return Result{}, key, false
	case !found:
		observability.ResultCacheLookups().WithLabelValues("miss").Inc()
		return Result{}, key, false
	}

	observability.ResultCacheLookups().WithLabelValues("hit").Inc()
	logger.Debug().Msg("result cache hit")
	cached.Name = submission.Name
	return cached, key, true
}

// CacheKey identifies an archive's content under a given checker configuration.
func CacheKey(archivePath, fingerprint string) (string, error) {
	file, err := os.Open(archivePath)
	if err != nil {
		return "", err
	}
	defer file.Close()

	hash := sha256.New()
	fmt.Fprintf(hash, "%s\x00%s\x00", checklistVersion, fingerprint)
	if _, err := io.Copy(hash, file); err != nil {
		return "", err
	}

	return "result:" + hex.EncodeToString(hash.Sum(nil)), nil
}

func (d *Driver) persist(ctx context.Context, runID string, submission Submission, result Result) {
	if d.repo == nil {
		return
	}

	record := models.GradeRecord{
		RunID:       runID,
		Student:     result.Name,
		ArchivePath: submission.ArchivePath,
		Status:      models.GradeStatusGraded,
		Score:       result.Score,
		Total:       result.Total,
		Digest:      result.Digest,
		Error:       result.Err,
	}
	if result.Failed() {
		record.Status = models.GradeStatusFailed
	}

	items := make([]models.GradeItem, 0, len(result.Items))
	for _, item := range result.Items {
		items = append(items, models.GradeItem{Name: item.Name, Passed: item.Passed})
	}
	record.SetItems(items)

	if err := d.repo.Create(ctx, &record); err != nil {
		d.logger.Warn().Err(err).Str("run_id", runID).Str("student", result.Name).Msg("failed to persist grade")
	}
}

// ResultFromRecord rebuilds a Result from its persisted form.
func ResultFromRecord(record models.GradeRecord) Result {
	result := Result{
		Name:   record.Student,
		Score:  record.Score,
		Total:  record.Total,
		Err:    record.Error,
		Digest: record.Digest,
	}
	for _, item := range record.ItemList() {
		result.Items = append(result.Items, checker.Item{Name: item.Name, Passed: item.Passed})
	}
	return result
}
