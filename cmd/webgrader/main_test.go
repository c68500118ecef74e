package main

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/klauspost/compress/zip"
	"github.com/stretchr/testify/require"
)

const page = `<!DOCTYPE html>
<html><head><link rel="stylesheet" href="style.css"><title>PMDb</title></head>
<body><a class="logo" href="https://www.imdb.com/video/vi59285529">PMDb</a>
<img class="affiche" src="poster.jpg"></body></html>`

const sheet = `body { background-color: navy; }
h1 { font-size: 2em; }
h2 { color: teal; text-decoration: underline; }
.affiche { width: 200px; }`

func writeSubmission(t *testing.T, dir, name string, files map[string]string) {
	t.Helper()

	buf := &bytes.Buffer{}
	zw := zip.NewWriter(buf)
	for entry, content := range files {
		w, err := zw.Create(entry)
		require.NoError(t, err)
		_, err = w.Write([]byte(content))
		require.NoError(t, err)
	}
	require.NoError(t, zw.Close())
	require.NoError(t, os.WriteFile(filepath.Join(dir, name), buf.Bytes(), 0o644))
}

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()

	stdout := &bytes.Buffer{}
	cmd := newRootCommand(stdout, &bytes.Buffer{})
	cmd.SetArgs(args)
	err := cmd.Execute()
	return stdout.String(), err
}

func TestRootCommandPrintsScoreTable(t *testing.T) {
	dir := t.TempDir()
	writeSubmission(t, dir, "Jane_Doe_1_page.zip", map[string]string{
		"site/index.html": page,
		"site/style.css":  sheet,
	})
	writeSubmission(t, dir, "John_Roe_2_page.zip", map[string]string{"index.html": page})
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".DS_Store"), []byte("x"), 0o644))

	out, err := execute(t, dir, "--log-level", "error")
	require.NoError(t, err)

	require.Contains(t, out, "Jane Doe")
	require.Contains(t, out, "CSS[XXXX]")
	require.Contains(t, out, "John Roe")
	require.Contains(t, out, "style.css file not found")
	require.NotContains(t, out, "DS_Store")
	require.FileExists(t, filepath.Join(dir, "Jane_Doe", "index.html"))
}

func TestRootCommandStoresRunsForShow(t *testing.T) {
	dir := t.TempDir()
	writeSubmission(t, dir, "Jane_Doe_1_page.zip", map[string]string{
		"index.html": page,
		"style.css":  sheet,
	})
	dsn := filepath.Join(t.TempDir(), "grades.db")
	metrics := filepath.Join(t.TempDir(), "webgrader.prom")

	_, err := execute(t, dir, "--log-level", "error", "--store-driver", "sqlite", "--store-dsn", dsn, "--metrics-textfile", metrics)
	require.NoError(t, err)
	require.FileExists(t, metrics)

	out, err := execute(t, "show", "--log-level", "error", "--store-driver", "sqlite", "--store-dsn", dsn)
	require.NoError(t, err)
	require.Contains(t, out, "Jane Doe")
	require.Contains(t, out, "CSS[XXXX]")
}

func TestShowWithoutStore(t *testing.T) {
	_, err := execute(t, "show", "--log-level", "error")
	require.ErrorIs(t, err, errNoStore)
}

func TestShowUnknownRun(t *testing.T) {
	dsn := filepath.Join(t.TempDir(), "grades.db")
	_, err := execute(t, "show", "missing-run", "--log-level", "error", "--store-driver", "sqlite", "--store-dsn", dsn)
	require.EqualError(t, err, "grading run not found")
}

func TestRootCommandMissingInputDirectory(t *testing.T) {
	_, err := execute(t, filepath.Join(t.TempDir(), "nowhere"), "--log-level", "error")
	require.Error(t, err)
	require.Contains(t, err.Error(), "failed to read input directory")
}

func TestNewLoggerRejectsUnknownLevel(t *testing.T) {
	_, err := newLogger(&bytes.Buffer{}, "loud", "json")
	require.Error(t, err)

	logger, err := newLogger(&bytes.Buffer{}, "warn", "json")
	require.NoError(t, err)
	require.Equal(t, "warn", fmt.Sprint(logger.GetLevel()))
}
