package archive

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/gabriel-vasile/mimetype"
	"github.com/google/uuid"
	"github.com/klauspost/compress/zip"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const (
	// IndexFile is the page every submission must ship at its root.
	IndexFile = "index.html"
	// StyleFile is the stylesheet expected next to IndexFile.
	StyleFile = "style.css"

	defaultMaxUncompressedBytes int64 = 200 * 1024 * 1024
	resourceForkDir                   = "__MACOSX"
)

var (
	// ErrNotAnArchive is returned when the submission is not a ZIP file.
	ErrNotAnArchive = errors.New("regular file, not a ZIP archive")
	// ErrCorruptArchive signals that the zip archive could not be read.
	ErrCorruptArchive = errors.New("zip archive is invalid or corrupted")
	// ErrEmptyArchive is returned when the archive holds no entries at all.
	ErrEmptyArchive = errors.New("zip archive is empty")
	// ErrUnsafeArchive indicates the archive contains entries that cannot be extracted safely.
	ErrUnsafeArchive = errors.New("zip archive contains disallowed entries")
)

// Paths locates the files of an extracted submission. HTML and CSS are not
// guaranteed to exist.
type Paths struct {
	Dir  string
	HTML string
	CSS  string
}

// PathsFor returns the expected file locations inside an extraction directory.
func PathsFor(dir string) Paths {
	return Paths{
		Dir:  dir,
		HTML: filepath.Join(dir, IndexFile),
		CSS:  filepath.Join(dir, StyleFile),
	}
}

// Extractor unpacks submission archives into per-student folders.
type Extractor struct {
	maxUncompressed int64
	logger          zerolog.Logger
	tracer          trace.Tracer
}

// NewExtractor constructs an Extractor. A non-positive limit falls back to 200 MB.
func NewExtractor(maxUncompressedBytes int64, logger zerolog.Logger) *Extractor {
	if maxUncompressedBytes <= 0 {
		maxUncompressedBytes = defaultMaxUncompressedBytes
	}
	return &Extractor{
		maxUncompressed: maxUncompressedBytes,
		logger:          logger.With().Str("component", "archive_extractor").Logger(),
		tracer:          otel.Tracer("github.com/noah-isme/gema-webgrader/internal/archive"),
	}
}

// Extract unpacks archivePath into destDir and flattens a single wrapper
// directory around index.html. An existing destDir is reused untouched.
func (e *Extractor) Extract(ctx context.Context, archivePath, destDir string) (Paths, error) {
	_, span := e.tracer.Start(ctx, "archive.extract")
	defer span.End()
	span.SetAttributes(attribute.String("archive.path", archivePath))

	if err := ensureZipArchive(archivePath); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "unreadable archive")
		return Paths{}, err
	}

	paths := PathsFor(destDir)

	if _, err := os.Stat(destDir); err == nil {
		e.logger.Debug().Str("dest", destDir).Msg("destination exists, reusing previous extraction")
		span.SetAttributes(attribute.Bool("archive.reused", true))
		return paths, nil
	} else if !errors.Is(err, fs.ErrNotExist) {
		return Paths{}, fmt.Errorf("failed to inspect destination: %w", err)
	}

	// A reader that comes back alongside an error only flags insecure entry
	// names, which inspect reports below.
	reader, err := zip.OpenReader(archivePath)
	if err != nil && reader == nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "open failed")
		return Paths{}, fmt.Errorf("%w: %v", ErrCorruptArchive, err)
	}
	defer reader.Close()

	if len(reader.File) == 0 {
		span.SetStatus(codes.Error, "empty archive")
		return Paths{}, ErrEmptyArchive
	}

	if err := e.inspect(reader.File); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "unsafe archive")
		return Paths{}, err
	}

	root, found := indexRoot(reader.File)

	if err := extractAll(reader.File, destDir); err != nil {
		_ = os.RemoveAll(destDir)
		span.RecordError(err)
		span.SetStatus(codes.Error, "extraction failed")
		return Paths{}, err
	}

	if found && root != "." {
		if err := flatten(destDir, root); err != nil {
			_ = os.RemoveAll(destDir)
			span.RecordError(err)
			span.SetStatus(codes.Error, "flatten failed")
			return Paths{}, fmt.Errorf("failed to flatten %q: %w", root, err)
		}
	}

	e.logger.Debug().
		Str("archive", archivePath).
		Str("dest", destDir).
		Str("root_offset", root).
		Int("entries", len(reader.File)).
		Msg("archive extracted")
	span.SetAttributes(attribute.Int("archive.entries", len(reader.File)), attribute.String("archive.root_offset", root))
	span.SetStatus(codes.Ok, "extracted")

	return paths, nil
}

func ensureZipArchive(archivePath string) error {
	if ext := strings.ToLower(filepath.Ext(archivePath)); ext != ".zip" {
		return ErrNotAnArchive
	}

	mime, err := mimetype.DetectFile(archivePath)
	if err != nil {
		return fmt.Errorf("failed to read submission: %w", err)
	}

	for m := mime; m != nil; m = m.Parent() {
		if m.Is("application/zip") || m.Is("application/x-zip-compressed") {
			return nil
		}
	}

	// The name says ZIP, so content that is not one is a damaged archive.
	return fmt.Errorf("%w: content detected as %s", ErrCorruptArchive, mime.String())
}

func (e *Extractor) inspect(files []*zip.File) error {
	var total uint64
	for _, file := range files {
		name := filepath.FromSlash(file.Name)
		if name == "" || !filepath.IsLocal(name) {
			return fmt.Errorf("%w: %s escapes the destination", ErrUnsafeArchive, file.Name)
		}
		if file.Mode()&os.ModeSymlink != 0 {
			return fmt.Errorf("%w: %s is a symlink", ErrUnsafeArchive, file.Name)
		}

		total += file.UncompressedSize64
		if total > uint64(e.maxUncompressed) {
			return fmt.Errorf("%w: uncompressed size exceeds %d bytes", ErrUnsafeArchive, e.maxUncompressed)
		}
	}

	return nil
}

// indexRoot returns the directory of the shallowest index.html entry.
func indexRoot(files []*zip.File) (string, bool) {
	root, depth, found := "", 0, false
	for _, file := range files {
		if file.FileInfo().IsDir() {
			continue
		}

		name := strings.TrimPrefix(file.Name, "./")
		if name == resourceForkDir || strings.HasPrefix(name, resourceForkDir+"/") {
			continue
		}
		if path.Base(name) != IndexFile {
			continue
		}

		dir := path.Dir(name)
		d := 0
		if dir != "." {
			d = strings.Count(dir, "/") + 1
		}
		if !found || d < depth {
			root, depth, found = dir, d, true
		}
	}

	return root, found
}

func extractAll(files []*zip.File, destDir string) error {
	if err := os.MkdirAll(destDir, 0o755); err != nil {
		return fmt.Errorf("failed to create destination: %w", err)
	}

	for _, file := range files {
		target := filepath.Join(destDir, filepath.FromSlash(file.Name))

		if file.FileInfo().IsDir() {
			if err := os.MkdirAll(target, 0o755); err != nil {
				return fmt.Errorf("failed to create %s: %w", file.Name, err)
			}
			continue
		}

		if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
			return fmt.Errorf("failed to create parent of %s: %w", file.Name, err)
		}
		if err := writeEntry(file, target); err != nil {
			return err
		}
	}

	return nil
}

func writeEntry(file *zip.File, target string) error {
	src, err := file.Open()
	if err != nil {
		return fmt.Errorf("%w: %s: %v", ErrCorruptArchive, file.Name, err)
	}
	defer src.Close()

	dst, err := os.OpenFile(target, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", file.Name, err)
	}

	if _, err := io.Copy(dst, src); err != nil {
		dst.Close()
		return fmt.Errorf("%w: %s: %v", ErrCorruptArchive, file.Name, err)
	}

	return dst.Close()
}

// flatten moves the contents of the wrapper directory up into destDir and
// removes the wrapper together with any ancestors it leaves empty.
func flatten(destDir, wrapper string) error {
	// The wrapper is renamed first so an entry sharing its name can take its place.
	staging := filepath.Join(destDir, ".flatten-"+uuid.NewString())
	if err := os.Rename(filepath.Join(destDir, filepath.FromSlash(wrapper)), staging); err != nil {
		return err
	}

	// Ancestors are pruned before the move so an entry taking an ancestor's
	// name is never mistaken for it.
	for dir := path.Dir(wrapper); dir != "."; dir = path.Dir(dir) {
		if err := os.Remove(filepath.Join(destDir, filepath.FromSlash(dir))); err != nil {
			break
		}
	}

	entries, err := os.ReadDir(staging)
	if err != nil {
		return err
	}

	for _, entry := range entries {
		target := filepath.Join(destDir, entry.Name())
		if err := os.RemoveAll(target); err != nil {
			return err
		}
		if err := os.Rename(filepath.Join(staging, entry.Name()), target); err != nil {
			return err
		}
	}

	return os.RemoveAll(staging)
}
