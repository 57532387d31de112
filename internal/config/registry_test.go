package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultsLoaded(t *testing.T) {
	r := NewRegistry()
	assert.Equal(t, 30, r.GetInt("fixed_fps"))
	assert.Equal(t, "16:9", r.GetString("resolution_aspect"))
}

func TestValidatorRejectsOutOfRange(t *testing.T) {
	r := NewRegistry()
	err := r.Set("rotation", 45)
	require.Error(t, err)
	assert.Equal(t, 0, r.GetInt("rotation"))
}

func TestPatchFromJSONOnlyTouchesRemoteKeys(t *testing.T) {
	r := NewRegistry()
	changed := r.PatchFromJSON(map[string]any{
		"rotation":     float64(180),
		"camera_index": float64(1), // not remote-accessible, must be skipped
		"bogus_key":    "x",
	})
	assert.ElementsMatch(t, []string{"rotation"}, changed)
	assert.Equal(t, 180, r.GetInt("rotation"))
	assert.Equal(t, 0, r.GetInt("camera_index"))
}

func TestPatchFromJSONRoundTrip(t *testing.T) {
	r := NewRegistry()
	patch := map[string]any{
		"rotation":    float64(270),
		"max_bitrate": float64(1_500_000),
	}
	changed := r.PatchFromJSON(patch)
	assert.ElementsMatch(t, []string{"rotation", "max_bitrate"}, changed)

	out := r.ToJSON(false)
	assert.Equal(t, 270, out["rotation"])
	assert.Equal(t, 1_500_000, out["max_bitrate"])
	// non-remote keys must be omitted from the remote-only view.
	_, present := out["camera_index"]
	assert.False(t, present)
}

func TestLoadSaveRoundTrip(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "streamer.conf")
	content := "# comment\nrotation=90\nmax_bitrate=3000000\nawb_mode=cloudy\n"
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	r := NewRegistry()
	unknown, err := r.Load(path)
	require.NoError(t, err)
	assert.Empty(t, unknown)
	assert.Equal(t, 90, r.GetInt("rotation"))
	assert.Equal(t, 3_000_000, r.GetInt("max_bitrate"))
	assert.Equal(t, "cloudy", r.GetString("awb_mode"))

	require.NoError(t, r.Set("rotation", 180))
	require.NoError(t, r.Save())

	r2 := NewRegistry()
	_, err = r2.Load(path)
	require.NoError(t, err)
	assert.Equal(t, 180, r2.GetInt("rotation"))
}

func TestResetDefaults(t *testing.T) {
	r := NewRegistry()
	require.NoError(t, r.Set("rotation", 180))
	r.ResetDefaults()
	assert.Equal(t, 0, r.GetInt("rotation"))
}
