// Package still implements Still Capture (C9): latest-or-capture JPEG
// retrieval with age-based eviction and mutual exclusion against the
// live encoder, grounded on the camera-opening shape of the teacher's
// cvpipe package but driven by gocv.VideoCapture + gocv.IMEncode instead
// of a GStreamer subprocess pair, since a still is a single frame grab
// rather than a streamed pipeline.
package still

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"
)

var recognizedExt = map[string]bool{
	".jpg": true,
	".png": true,
	".gif": true,
	".bmp": true,
}

// ErrDeviceBusy is returned by GetLatestOrCapture when the live encoder currently
// holds the camera device.
type ErrDeviceBusy struct{}

func (ErrDeviceBusy) Error() string { return "camera device busy: live encoder active" }

// ErrCaptureTimeout is returned when the camera does not produce a
// frame within the configured timeout.
type ErrCaptureTimeout struct{}

func (ErrCaptureTimeout) Error() string { return "still capture timed out" }

// Camera is the minimal contract a still pipeline needs: grab one frame
// and return it already JPEG-encoded. The gocv-backed implementation
// lives in camera_gocv.go; tests substitute a fake.
type Camera interface {
	CaptureJPEG() ([]byte, error)
	Close() error
}

// CameraOpener constructs a Camera, failing if the device cannot be
// acquired.
type CameraOpener func() (Camera, error)

// Options configures a single GetLatestOrCapture call.
type Options struct {
	ForceCapture bool
	TimeoutMs    int
}

// Capturer implements the get_latest_or_capture(options) contract.
type Capturer struct {
	dir        string
	prefix     string
	ext        string
	maxAge     time.Duration
	timeout    time.Duration
	liveActive func() bool
	openCamera CameraOpener
	now        func() time.Time
}

// New builds a Capturer writing into dir with the given filename prefix
// and extension (including the leading dot, e.g. ".jpg"). liveActive
// reports whether the live encoder currently owns the camera device.
func New(dir, prefix, ext string, maxAge, timeout time.Duration, liveActive func() bool, openCamera CameraOpener) *Capturer {
	return &Capturer{
		dir:        dir,
		prefix:     prefix,
		ext:        ext,
		maxAge:     maxAge,
		timeout:    timeout,
		liveActive: liveActive,
		openCamera: openCamera,
		now:        time.Now,
	}
}

// GetLatestOrCapture implements the spec's latest-or-capture algorithm:
// scan the still directory, evict anything older than maxAge, return
// the newest survivor if it is still young enough, otherwise capture a
// fresh still.
func (c *Capturer) GetLatestOrCapture(opts Options) (string, error) {
	if !opts.ForceCapture {
		name, mtime, ok := c.evictAndFindNewest()
		if ok && c.now().Sub(mtime) < c.maxAge {
			return name, nil
		}
	}
	return c.capture(opts)
}

// evictAndFindNewest deletes every recognized still older than maxAge
// and reports the newest remaining file, if any.
func (c *Capturer) evictAndFindNewest() (name string, mtime time.Time, ok bool) {
	entries, err := os.ReadDir(c.dir)
	if err != nil {
		return "", time.Time{}, false
	}

	type candidate struct {
		name  string
		mtime time.Time
	}
	var survivors []candidate

	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		if !recognizedExt[strings.ToLower(filepath.Ext(e.Name()))] {
			continue
		}
		info, err := e.Info()
		if err != nil {
			continue
		}
		if c.now().Sub(info.ModTime()) > c.maxAge {
			os.Remove(filepath.Join(c.dir, e.Name()))
			continue
		}
		survivors = append(survivors, candidate{name: e.Name(), mtime: info.ModTime()})
	}

	if len(survivors) == 0 {
		return "", time.Time{}, false
	}
	sort.Slice(survivors, func(i, j int) bool { return survivors[i].mtime.After(survivors[j].mtime) })
	newest := survivors[0]
	return newest.name, newest.mtime, true
}

// capture acquires the camera, grabs one JPEG frame, and atomically
// publishes it under the still directory via a .saving-suffixed
// temporary file.
func (c *Capturer) capture(opts Options) (string, error) {
	if c.liveActive != nil && c.liveActive() {
		return "", ErrDeviceBusy{}
	}

	cam, err := c.openCamera()
	if err != nil {
		return "", fmt.Errorf("still: open camera: %w", err)
	}
	defer cam.Close()

	timeout := c.timeout
	if opts.TimeoutMs > 0 {
		timeout = time.Duration(opts.TimeoutMs) * time.Millisecond
	}

	type result struct {
		data []byte
		err  error
	}
	done := make(chan result, 1)
	go func() {
		data, err := cam.CaptureJPEG()
		done <- result{data, err}
	}()

	var res result
	select {
	case res = <-done:
	case <-time.After(timeout):
		return "", ErrCaptureTimeout{}
	}
	if res.err != nil {
		return "", fmt.Errorf("still: capture frame: %w", res.err)
	}

	filename := fmt.Sprintf("%s.%s%s", c.prefix, c.now().Format("20060102-150405"), c.ext)
	final := filepath.Join(c.dir, filename)
	tmp := final + ".saving"

	if err := os.WriteFile(tmp, res.data, 0o644); err != nil {
		return "", fmt.Errorf("still: write temp file: %w", err)
	}
	if err := os.Rename(tmp, final); err != nil {
		os.Remove(tmp)
		return "", fmt.Errorf("still: rename: %w", err)
	}
	return filename, nil
}
