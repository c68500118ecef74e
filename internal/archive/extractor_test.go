package archive_test

import (
	"bytes"
	"context"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"testing"

	"github.com/klauspost/compress/zip"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/gema-webgrader/internal/archive"
)

type zipEntry struct {
	Name    string
	Content []byte
	Mode    os.FileMode
}

func writeZip(t *testing.T, dir, name string, entries []zipEntry) string {
	t.Helper()

	buf := &bytes.Buffer{}
	writer := zip.NewWriter(buf)
	for _, entry := range entries {
		header := &zip.FileHeader{Name: entry.Name, Method: zip.Deflate}
		if entry.Mode != 0 {
			header.SetMode(entry.Mode)
		}
		w, err := writer.CreateHeader(header)
		require.NoError(t, err)
		if len(entry.Content) > 0 {
			_, err = w.Write(entry.Content)
			require.NoError(t, err)
		}
	}
	require.NoError(t, writer.Close())

	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, buf.Bytes(), 0o644))
	return path
}

func newExtractor() *archive.Extractor {
	return archive.NewExtractor(0, zerolog.New(io.Discard))
}

func listTree(t *testing.T, root string) []string {
	t.Helper()

	var files []string
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(root, path)
		if err != nil {
			return err
		}
		if rel != "." {
			files = append(files, filepath.ToSlash(rel))
		}
		return nil
	})
	require.NoError(t, err)
	sort.Strings(files)
	return files
}

func TestExtract_FlattensWrapperDirectory(t *testing.T) {
	dir := t.TempDir()
	src := writeZip(t, dir, "Jane_Doe_1.zip", []zipEntry{
		{Name: "submission/"},
		{Name: "submission/index.html", Content: []byte("<html></html>")},
		{Name: "submission/style.css", Content: []byte("body {}")},
		{Name: "submission/img/poster.png", Content: []byte("png")},
	})
	dest := filepath.Join(dir, "Jane_Doe")

	paths, err := newExtractor().Extract(context.Background(), src, dest)
	require.NoError(t, err)
	require.Equal(t, filepath.Join(dest, "index.html"), paths.HTML)
	require.Equal(t, filepath.Join(dest, "style.css"), paths.CSS)

	require.Equal(t, []string{"img", "img/poster.png", "index.html", "style.css"}, listTree(t, dest))
}

func TestExtract_FlattensNestedWrapperAndPrunesEmptyParents(t *testing.T) {
	dir := t.TempDir()
	src := writeZip(t, dir, "nested.zip", []zipEntry{
		{Name: "outer/inner/index.html", Content: []byte("<html></html>")},
		{Name: "outer/inner/style.css", Content: []byte("h1 {}")},
	})
	dest := filepath.Join(dir, "nested")

	_, err := newExtractor().Extract(context.Background(), src, dest)
	require.NoError(t, err)
	require.Equal(t, []string{"index.html", "style.css"}, listTree(t, dest))
}

func TestExtract_WrapperContainingSameNamedEntry(t *testing.T) {
	dir := t.TempDir()
	src := writeZip(t, dir, "site.zip", []zipEntry{
		{Name: "site/index.html", Content: []byte("<html></html>")},
		{Name: "site/site/logo.png", Content: []byte("png")},
	})
	dest := filepath.Join(dir, "site")

	_, err := newExtractor().Extract(context.Background(), src, dest)
	require.NoError(t, err)
	require.Equal(t, []string{"index.html", "site", "site/logo.png"}, listTree(t, dest))
}

func TestExtract_ShallowestIndexDecidesRoot(t *testing.T) {
	dir := t.TempDir()
	src := writeZip(t, dir, "two_index.zip", []zipEntry{
		{Name: "site/demo/old/index.html", Content: []byte("<html>old</html>")},
		{Name: "site/index.html", Content: []byte("<html>new</html>")},
		{Name: "site/style.css", Content: []byte("h1 {}")},
	})
	dest := filepath.Join(dir, "two_index")

	paths, err := newExtractor().Extract(context.Background(), src, dest)
	require.NoError(t, err)
	require.Equal(t, []string{"demo", "demo/old", "demo/old/index.html", "index.html", "style.css"}, listTree(t, dest))

	content, err := os.ReadFile(paths.HTML)
	require.NoError(t, err)
	require.Equal(t, "<html>new</html>", string(content))
}

func TestExtract_KeepsEmptyDirectoryNamedLikeAncestor(t *testing.T) {
	dir := t.TempDir()
	src := writeZip(t, dir, "ancestor.zip", []zipEntry{
		{Name: "a/b/index.html", Content: []byte("<html></html>")},
		{Name: "a/b/a/"},
	})
	dest := filepath.Join(dir, "ancestor")

	_, err := newExtractor().Extract(context.Background(), src, dest)
	require.NoError(t, err)
	require.Equal(t, []string{"a", "index.html"}, listTree(t, dest))
}

func TestExtract_RootLevelFilesAreLeftInPlace(t *testing.T) {
	dir := t.TempDir()
	src := writeZip(t, dir, "flat.zip", []zipEntry{
		{Name: "index.html", Content: []byte("<html></html>")},
		{Name: "style.css", Content: []byte("h1 {}")},
		{Name: "__MACOSX/._index.html", Content: []byte("fork")},
	})
	dest := filepath.Join(dir, "flat")

	_, err := newExtractor().Extract(context.Background(), src, dest)
	require.NoError(t, err)
	require.Equal(t, []string{"__MACOSX", "__MACOSX/._index.html", "index.html", "style.css"}, listTree(t, dest))
}

func TestExtract_WithoutIndexDoesNotFlatten(t *testing.T) {
	dir := t.TempDir()
	src := writeZip(t, dir, "noindex.zip", []zipEntry{
		{Name: "work/home.html", Content: []byte("<html></html>")},
	})
	dest := filepath.Join(dir, "noindex")

	paths, err := newExtractor().Extract(context.Background(), src, dest)
	require.NoError(t, err)
	require.Equal(t, []string{"work", "work/home.html"}, listTree(t, dest))
	require.NoFileExists(t, paths.HTML)
}

func TestExtract_IsIdempotent(t *testing.T) {
	dir := t.TempDir()
	src := writeZip(t, dir, "again.zip", []zipEntry{
		{Name: "wrap/index.html", Content: []byte("<html></html>")},
		{Name: "wrap/style.css", Content: []byte("h1 {}")},
	})
	dest := filepath.Join(dir, "again")
	extractor := newExtractor()

	_, err := extractor.Extract(context.Background(), src, dest)
	require.NoError(t, err)
	first := listTree(t, dest)

	_, err = extractor.Extract(context.Background(), src, dest)
	require.NoError(t, err)
	require.Equal(t, first, listTree(t, dest))
}

func TestExtract_ExistingDestinationIsReusedAsIs(t *testing.T) {
	dir := t.TempDir()
	src := writeZip(t, dir, "changed.zip", []zipEntry{
		{Name: "index.html", Content: []byte("<html>new</html>")},
	})
	dest := filepath.Join(dir, "changed")
	require.NoError(t, os.MkdirAll(dest, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dest, "index.html"), []byte("old"), 0o644))

	_, err := newExtractor().Extract(context.Background(), src, dest)
	require.NoError(t, err)

	content, err := os.ReadFile(filepath.Join(dest, "index.html"))
	require.NoError(t, err)
	require.Equal(t, "old", string(content))
}

func TestExtract_EmptyArchive(t *testing.T) {
	dir := t.TempDir()
	src := writeZip(t, dir, "empty.zip", nil)
	dest := filepath.Join(dir, "empty")

	_, err := newExtractor().Extract(context.Background(), src, dest)
	require.ErrorIs(t, err, archive.ErrEmptyArchive)
	require.NoDirExists(t, dest)
}

func TestExtract_NotAnArchive(t *testing.T) {
	dir := t.TempDir()

	txt := filepath.Join(dir, "notes.txt")
	require.NoError(t, os.WriteFile(txt, []byte("hello"), 0o644))
	_, err := newExtractor().Extract(context.Background(), txt, filepath.Join(dir, "notes"))
	require.ErrorIs(t, err, archive.ErrNotAnArchive)

	require.NoDirExists(t, filepath.Join(dir, "notes"))
}

func TestExtract_GarbledZipIsCorrupt(t *testing.T) {
	dir := t.TempDir()
	for name, content := range map[string]string{
		"Jane_Doe_1.zip": "\x00\x01 truncated download",
		"fake.zip":       "plain text pretending",
	} {
		t.Run(name, func(t *testing.T) {
			src := filepath.Join(dir, name)
			require.NoError(t, os.WriteFile(src, []byte(content), 0o644))
			dest := filepath.Join(dir, name+"-out")

			_, err := newExtractor().Extract(context.Background(), src, dest)
			require.ErrorIs(t, err, archive.ErrCorruptArchive)
			require.NotErrorIs(t, err, archive.ErrNotAnArchive)
			require.NoDirExists(t, dest)
		})
	}
}

func TestExtract_CorruptArchive(t *testing.T) {
	dir := t.TempDir()
	broken := filepath.Join(dir, "broken.zip")
	require.NoError(t, os.WriteFile(broken, []byte("PK\x03\x04this is not really a zip"), 0o644))
	dest := filepath.Join(dir, "broken")

	_, err := newExtractor().Extract(context.Background(), broken, dest)
	require.ErrorIs(t, err, archive.ErrCorruptArchive)
	require.NoDirExists(t, dest)
}

func TestExtract_RejectsPathTraversal(t *testing.T) {
	dir := t.TempDir()
	src := writeZip(t, dir, "evil.zip", []zipEntry{
		{Name: "../escape.html", Content: []byte("bad")},
	})
	dest := filepath.Join(dir, "evil")

	_, err := newExtractor().Extract(context.Background(), src, dest)
	require.ErrorIs(t, err, archive.ErrUnsafeArchive)
	require.NoFileExists(t, filepath.Join(dir, "escape.html"))
	require.NoDirExists(t, dest)
}

func TestExtract_RejectsSymlink(t *testing.T) {
	dir := t.TempDir()
	src := writeZip(t, dir, "link.zip", []zipEntry{
		{Name: "shortcut", Content: []byte("/etc/passwd"), Mode: os.ModeSymlink},
	})

	_, err := newExtractor().Extract(context.Background(), src, filepath.Join(dir, "link"))
	require.ErrorIs(t, err, archive.ErrUnsafeArchive)
}

func TestExtract_RejectsOversizedArchive(t *testing.T) {
	dir := t.TempDir()
	src := writeZip(t, dir, "big.zip", []zipEntry{
		{Name: "index.html", Content: bytes.Repeat([]byte("a"), 4096)},
	})

	extractor := archive.NewExtractor(1024, zerolog.New(io.Discard))
	_, err := extractor.Extract(context.Background(), src, filepath.Join(dir, "big"))
	require.ErrorIs(t, err, archive.ErrUnsafeArchive)
}
