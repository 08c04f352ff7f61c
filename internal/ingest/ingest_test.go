package ingest

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joseph-ayodele/health-report-parser/internal/common"
)

func write(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
}

func TestScanDirectory(t *testing.T) {
	root := t.TempDir()
	write(t, filepath.Join(root, "a.pdf"), "%PDF-a")
	write(t, filepath.Join(root, "sub", "b.PNG"), "png-b")
	write(t, filepath.Join(root, "sub", "copy.png"), "png-b")
	write(t, filepath.Join(root, "notes.txt"), "ignored")
	write(t, filepath.Join(root, ".hidden", "c.jpg"), "jpg-c")
	write(t, filepath.Join(root, "big.jpg"), "0123456789")

	l := NewLoader(8, nil)
	results, stats, err := l.ScanDirectory(context.Background(), root, true)
	require.NoError(t, err)

	assert.EqualValues(t, 4, stats.Matched)
	assert.EqualValues(t, 2, stats.Succeeded)
	assert.EqualValues(t, 1, stats.Deduplicated)
	assert.EqualValues(t, 1, stats.Failed)

	docs := Documents(results)
	require.Len(t, docs, 2)
	assert.Equal(t, "pdf", docs[0].Ext)
	assert.Equal(t, "png", docs[1].Ext)
	assert.Len(t, docs[0].SHA256, 64)
	assert.NotEqual(t, docs[0].ID, docs[1].ID)
	assert.Equal(t, []byte("%PDF-a"), docs[0].Data)
}

func TestLoadFileIDIsContentDerived(t *testing.T) {
	root := t.TempDir()
	write(t, filepath.Join(root, "one.png"), "same")
	write(t, filepath.Join(root, "two.png"), "same")

	l := NewLoader(0, nil)
	a, err := l.LoadFile(filepath.Join(root, "one.png"))
	require.NoError(t, err)
	b, err := l.LoadFile(filepath.Join(root, "two.png"))
	require.NoError(t, err)
	assert.Equal(t, a.ID, b.ID)
	assert.NotEqual(t, a.Path, b.Path)

	_, err = l.LoadFile(filepath.Join(root, "x.heic"))
	assert.ErrorIs(t, err, common.ErrUnsupportedFormat)
}

func TestScanDirectoryRequiresRoot(t *testing.T) {
	_, _, err := NewLoader(0, nil).ScanDirectory(context.Background(), " ", false)
	assert.Error(t, err)
}

func TestWatch(t *testing.T) {
	root := t.TempDir()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	events, _, err := NewLoader(0, nil).Watch(ctx, WatchConfig{Roots: []string{root}, Debounce: 20 * time.Millisecond})
	require.NoError(t, err)

	write(t, filepath.Join(root, "ignored.txt"), "x")
	write(t, filepath.Join(root, "report.pdf"), "%PDF")

	select {
	case p := <-events:
		assert.Equal(t, "report.pdf", filepath.Base(p))
	case <-time.After(5 * time.Second):
		t.Fatal("no event")
	}

	cancel()
	for range events {
	}
}
