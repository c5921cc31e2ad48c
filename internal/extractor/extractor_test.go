package extractor

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFrames(t *testing.T, dir string, names ...string) {
	t.Helper()
	for _, name := range names {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte("jpg"), 0644))
	}
}

func TestCollectFramesTimestamps(t *testing.T) {
	dir := t.TempDir()
	writeFrames(t, dir, "frame_0002.jpg", "frame_0001.jpg", "frame_0003.jpg")

	e := New(dir)
	frames, err := e.collectFrames(dir, Options{Interval: 15})
	require.NoError(t, err)
	require.Len(t, frames, 3)
	assert.Equal(t, 0.0, frames[0].TimestampSeconds)
	assert.Equal(t, 15.0, frames[1].TimestampSeconds)
	assert.Equal(t, 30.0, frames[2].TimestampSeconds)
	assert.Equal(t, filepath.Join(dir, "frame_0001.jpg"), frames[0].Path)
}

func TestCollectFramesStartTimeOffset(t *testing.T) {
	dir := t.TempDir()
	writeFrames(t, dir, "frame_0001.jpg", "frame_0002.jpg")

	e := New(dir)
	frames, err := e.collectFrames(dir, Options{Interval: 10, StartTime: 60})
	require.NoError(t, err)
	require.Len(t, frames, 2)
	assert.Equal(t, 60.0, frames[0].TimestampSeconds)
	assert.Equal(t, 70.0, frames[1].TimestampSeconds)
}

func TestCollectFramesRespectsMaxFrames(t *testing.T) {
	dir := t.TempDir()
	writeFrames(t, dir, "frame_0001.jpg", "frame_0002.jpg", "frame_0003.jpg")

	e := New(dir)
	frames, err := e.collectFrames(dir, Options{Interval: 15, MaxFrames: 2})
	require.NoError(t, err)
	assert.Len(t, frames, 2)
}

func TestCollectFramesIgnoresForeignFiles(t *testing.T) {
	dir := t.TempDir()
	writeFrames(t, dir, "frame_0001.jpg", "thumbnail.jpg", "notes.txt")

	e := New(dir)
	frames, err := e.collectFrames(dir, Options{Interval: 15})
	require.NoError(t, err)
	assert.Len(t, frames, 1)
}

func TestExtractMissingVideo(t *testing.T) {
	e := New(t.TempDir())
	_, err := e.Extract(t.Context(), "/nonexistent/video.mp4", "video", Options{})
	assert.Error(t, err)
}

func TestOptionsDefaults(t *testing.T) {
	opts := Options{}.withDefaults()
	assert.Equal(t, 15, opts.Interval)
	assert.Equal(t, 1280, opts.Width)
	assert.Equal(t, 2, opts.Quality)
}
