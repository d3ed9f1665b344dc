package watch

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newDetector(t *testing.T) (*Detector, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "doc.html")

	d, err := New(path, Options{Debounce: 20 * time.Millisecond})
	require.NoError(t, err)
	written, err := d.Write("<html><body></body></html>")
	require.NoError(t, err)
	require.True(t, written)
	require.NoError(t, d.Start())
	t.Cleanup(func() { d.Stop() })
	return d, path
}

func TestExternalWriteReported(t *testing.T) {
	d, path := newDetector(t)

	require.NoError(t, os.WriteFile(path, []byte("<html><body><p>Hi</p></body></html>"), 0644))

	select {
	case content := <-d.Changes():
		assert.Equal(t, "<html><body><p>Hi</p></body></html>", content)
	case err := <-d.Errors():
		t.Fatalf("unexpected error: %v", err)
	case <-time.After(5 * time.Second):
		t.Fatal("no change reported")
	}
}

func TestOwnWriteSuppressed(t *testing.T) {
	d, path := newDetector(t)

	written, err := d.Write("<html><body>remote</body></html>")
	require.NoError(t, err)
	assert.True(t, written)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "<html><body>remote</body></html>", string(data))

	select {
	case content := <-d.Changes():
		t.Fatalf("echo reported as change: %q", content)
	case <-time.After(300 * time.Millisecond):
	}
}

func TestWriteSkipsIdenticalContent(t *testing.T) {
	d, _ := newDetector(t)

	written, err := d.Write("<html><body></body></html>")
	require.NoError(t, err)
	assert.False(t, written)
}

func TestRepeatedContentNotReportedTwice(t *testing.T) {
	d, path := newDetector(t)

	edit := []byte("<html><body>a</body></html>")
	require.NoError(t, os.WriteFile(path, edit, 0644))
	select {
	case <-d.Changes():
	case <-time.After(5 * time.Second):
		t.Fatal("no change reported")
	}

	// touching the file without changing it is not an edit
	require.NoError(t, os.WriteFile(path, edit, 0644))
	select {
	case content := <-d.Changes():
		t.Fatalf("unchanged content reported: %q", content)
	case <-time.After(300 * time.Millisecond):
	}
}

func TestStopIsIdempotent(t *testing.T) {
	d, _ := newDetector(t)
	assert.NoError(t, d.Stop())
	assert.NoError(t, d.Stop())
}

func TestPartialWriteNotReported(t *testing.T) {
	path := filepath.Join(t.TempDir(), "doc.html")
	// never fires on its own; check is driven by hand
	d, err := New(path, Options{Debounce: time.Hour})
	require.NoError(t, err)
	t.Cleanup(func() { d.Stop() })

	require.NoError(t, os.WriteFile(path, []byte("<html><body><p>Hi"), 0644))
	d.check()
	require.NoError(t, os.WriteFile(path, []byte("<html><body><p>Hi</p></body></html>"), 0644))
	d.check()
	select {
	case content := <-d.Changes():
		t.Fatalf("unsettled content reported: %q", content)
	default:
	}

	d.check()
	select {
	case content := <-d.Changes():
		assert.Equal(t, "<html><body><p>Hi</p></body></html>", content)
	default:
		t.Fatal("settled content not reported")
	}
}
