package grading

import (
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"
)

// DefaultIgnored lists file names in the input directory that are never submissions.
var DefaultIgnored = []string{".DS_Store", ".gitignore"}

// Submission is one student's archive and where it unpacks to.
type Submission struct {
	Name        string
	Folder      string
	ArchivePath string
	ExtractDir  string
}

// NewSubmission derives the student identity from the archive file name: the
// first two underscore separated tokens, e.g. "Jane_Doe_4411_page.zip" is
// folder "Jane_Doe" and name "Jane Doe".
func NewSubmission(archivePath string) Submission {
	base := filepath.Base(archivePath)
	stem := strings.TrimSuffix(base, filepath.Ext(base))

	tokens := strings.Split(stem, "_")
	if len(tokens) > 2 {
		tokens = tokens[:2]
	}

	folder := strings.Join(tokens, "_")
	return Submission{
		Name:        strings.Join(tokens, " "),
		Folder:      folder,
		ArchivePath: archivePath,
		ExtractDir:  filepath.Join(filepath.Dir(archivePath), folder),
	}
}

// Discover lists the submissions stored directly in dir, sorted by file name.
// Directories, including earlier extractions, and ignored names are skipped.
func Discover(dir string, ignored []string) ([]Submission, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to read input directory: %w", err)
	}

	submissions := make([]Submission, 0, len(entries))
	for _, entry := range entries {
		if entry.IsDir() || slices.Contains(ignored, entry.Name()) {
			continue
		}
		submissions = append(submissions, NewSubmission(filepath.Join(dir, entry.Name())))
	}

	return submissions, nil
}
