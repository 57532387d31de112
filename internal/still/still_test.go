package still

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeCamera struct {
	data []byte
	err  error
}

func (f *fakeCamera) CaptureJPEG() ([]byte, error) { return f.data, f.err }
func (f *fakeCamera) Close() error                 { return nil }

func touch(t *testing.T, dir, name string, mtime time.Time) {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte("x"), 0o644))
	require.NoError(t, os.Chtimes(path, mtime, mtime))
}

func TestLatestOrCaptureReturnsYoungFileAndEvictsOld(t *testing.T) {
	dir := t.TempDir()
	now := time.Now()
	touch(t, dir, "a.jpg", now.Add(-10*time.Second))
	touch(t, dir, "b.jpg", now.Add(-600*time.Second))

	opened := false
	c := New(dir, "still", ".jpg", 300*time.Second, time.Second, func() bool { return false }, func() (Camera, error) {
		opened = true
		return &fakeCamera{}, nil
	})
	c.now = func() time.Time { return now }

	name, err := c.GetLatestOrCapture(Options{})
	require.NoError(t, err)
	assert.Equal(t, "a.jpg", name)
	assert.False(t, opened, "hardware must not be touched when a young still exists")

	_, statErr := os.Stat(filepath.Join(dir, "b.jpg"))
	assert.True(t, os.IsNotExist(statErr), "stale still must be evicted")
}

func TestCaptureFailsWhenLiveEncoderActive(t *testing.T) {
	dir := t.TempDir()
	c := New(dir, "still", ".jpg", time.Second, time.Second, func() bool { return true }, func() (Camera, error) {
		t.Fatal("camera must not be opened while device busy")
		return nil, nil
	})

	_, err := c.GetLatestOrCapture(Options{ForceCapture: true})
	assert.Equal(t, ErrDeviceBusy{}, err)
}

func TestCaptureWritesAtomicallyAndReturnsFilename(t *testing.T) {
	dir := t.TempDir()
	now := time.Date(2026, 7, 31, 10, 0, 0, 0, time.UTC)
	c := New(dir, "still", ".jpg", time.Second, time.Second, func() bool { return false }, func() (Camera, error) {
		return &fakeCamera{data: []byte("jpeg-bytes")}, nil
	})
	c.now = func() time.Time { return now }

	name, err := c.GetLatestOrCapture(Options{ForceCapture: true})
	require.NoError(t, err)
	assert.Equal(t, "still.20260731-100000.jpg", name)

	data, err := os.ReadFile(filepath.Join(dir, name))
	require.NoError(t, err)
	assert.Equal(t, "jpeg-bytes", string(data))

	_, statErr := os.Stat(filepath.Join(dir, name+".saving"))
	assert.True(t, os.IsNotExist(statErr), "temp file must not survive the rename")
}

func TestCaptureTimesOutWhenCameraStalls(t *testing.T) {
	dir := t.TempDir()
	block := make(chan struct{})
	c := New(dir, "still", ".jpg", time.Second, 20*time.Millisecond, func() bool { return false }, func() (Camera, error) {
		return &stallingCamera{block: block}, nil
	})

	_, err := c.GetLatestOrCapture(Options{ForceCapture: true})
	assert.Equal(t, ErrCaptureTimeout{}, err)
	close(block)
}

type stallingCamera struct{ block <-chan struct{} }

func (s *stallingCamera) CaptureJPEG() ([]byte, error) {
	<-s.block
	return nil, nil
}
func (s *stallingCamera) Close() error { return nil }
