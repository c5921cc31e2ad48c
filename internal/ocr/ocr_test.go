package ocr

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/framelens/framelens/internal/models"
)

type fakeEngine struct {
	inits  int
	texts  map[string]string
	failOn map[string]bool
}

func (f *fakeEngine) Init(context.Context) error {
	f.inits++
	return nil
}

func (f *fakeEngine) Recognize(_ context.Context, imagePath string) (string, error) {
	if f.failOn[imagePath] {
		return "", errors.New("unreadable image")
	}
	return f.texts[imagePath], nil
}

type fakeFrameStore struct {
	frames   []models.Frame
	appended map[int64]string
	marked   map[int64]bool
}

func (f *fakeFrameStore) FramesByVideo(context.Context, int64) ([]models.Frame, error) {
	return f.frames, nil
}

func (f *fakeFrameStore) AppendFrameText(_ context.Context, frameID int64, text string) error {
	if f.appended == nil {
		f.appended = make(map[int64]string)
	}
	f.appended[frameID] = text
	return f.MarkFrameOCRProcessed(context.Background(), frameID)
}

func (f *fakeFrameStore) MarkFrameOCRProcessed(_ context.Context, frameID int64) error {
	if f.marked == nil {
		f.marked = make(map[int64]bool)
	}
	f.marked[frameID] = true
	for i := range f.frames {
		if f.frames[i].ID == frameID {
			f.frames[i].OCRProcessed = true
		}
	}
	return nil
}

func TestRunStoresTrimmedText(t *testing.T) {
	engine := &fakeEngine{texts: map[string]string{
		"/f/1.jpg": "  hello world \n",
		"/f/2.jpg": "   \n",
	}}
	store := &fakeFrameStore{frames: []models.Frame{
		{ID: 1, Path: "/f/1.jpg"},
		{ID: 2, Path: "/f/2.jpg"},
	}}
	processor := NewProcessor(engine, store, nil)

	result, err := processor.Run(context.Background(), 1, nil)
	require.NoError(t, err)
	assert.Equal(t, 2, result.Succeeded)
	assert.Equal(t, "hello world", store.appended[1])
	// Whitespace-only recognition is not stored but still stamped processed.
	_, stored := store.appended[2]
	assert.False(t, stored)
	assert.True(t, store.marked[2])
}

func TestRunSkipsProcessedFrames(t *testing.T) {
	engine := &fakeEngine{texts: map[string]string{"/f/2.jpg": "new text"}}
	store := &fakeFrameStore{frames: []models.Frame{
		{ID: 1, Path: "/f/1.jpg", OCRProcessed: true},
		{ID: 2, Path: "/f/2.jpg"},
	}}
	processor := NewProcessor(engine, store, nil)

	var progress []Progress
	result, err := processor.Run(context.Background(), 1, func(p Progress) {
		progress = append(progress, p)
	})
	require.NoError(t, err)
	assert.Equal(t, 1, result.Succeeded)
	assert.Equal(t, []Progress{{Current: 1, Total: 1}}, progress)
}

func TestRunContinuesPastFailures(t *testing.T) {
	engine := &fakeEngine{
		texts:  map[string]string{"/f/2.jpg": "ok"},
		failOn: map[string]bool{"/f/1.jpg": true},
	}
	store := &fakeFrameStore{frames: []models.Frame{
		{ID: 1, Path: "/f/1.jpg"},
		{ID: 2, Path: "/f/2.jpg"},
	}}
	processor := NewProcessor(engine, store, nil)

	result, err := processor.Run(context.Background(), 1, nil)
	require.NoError(t, err)
	assert.Equal(t, 1, result.Failed)
	assert.Equal(t, 1, result.Succeeded)
	assert.Equal(t, "ok", store.appended[2])
	// The failed frame stays unstamped so the next run retries it.
	assert.False(t, store.marked[1])
}

func TestRunRerunSkipsTextlessProcessedFrames(t *testing.T) {
	engine := &fakeEngine{texts: map[string]string{"/f/1.jpg": ""}}
	store := &fakeFrameStore{frames: []models.Frame{
		{ID: 1, Path: "/f/1.jpg"},
	}}
	processor := NewProcessor(engine, store, nil)

	result, err := processor.Run(context.Background(), 1, nil)
	require.NoError(t, err)
	assert.Equal(t, 1, result.Succeeded)
	assert.True(t, store.marked[1])

	// A second pass finds nothing left to do.
	result, err = processor.Run(context.Background(), 1, nil)
	require.NoError(t, err)
	assert.Equal(t, 0, result.Succeeded)
	assert.Equal(t, 0, result.Failed)
}

func TestRunInitCalledOnce(t *testing.T) {
	engine := &fakeEngine{}
	processor := NewProcessor(engine, &fakeFrameStore{}, nil)

	_, err := processor.Run(context.Background(), 1, nil)
	require.NoError(t, err)
	assert.Equal(t, 1, engine.inits)
}
