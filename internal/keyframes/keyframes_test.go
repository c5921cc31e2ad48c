package keyframes

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/framelens/framelens/internal/models"
)

func frameSeq(types []string, texts []string) []models.Frame {
	frames := make([]models.Frame, len(types))
	for i := range types {
		frames[i] = models.Frame{
			ID:               int64(i + 1),
			TimestampSeconds: float64(i * 15),
			ContentType:      types[i],
		}
		if texts != nil {
			frames[i].OnScreenText = texts[i]
		}
	}
	return frames
}

func TestSelectFirstFrameAlwaysKeyframe(t *testing.T) {
	frames := frameSeq([]string{"", "", ""}, nil)
	selected := Select(frames)
	require.NotEmpty(t, selected)
	assert.Equal(t, int64(1), selected[0])
}

func TestSelectEmptyInput(t *testing.T) {
	assert.Nil(t, Select(nil))
}

func TestSelectContentTypeTransitions(t *testing.T) {
	// [A, A, B, B, A] with no OCR text: transitions alone drive
	// selection, so positions 0, 2, and 4 qualify.
	frames := frameSeq([]string{"talking_head", "talking_head", "demo", "demo", "talking_head"}, nil)
	selected := Select(frames)
	assert.Equal(t, []int64{1, 3, 5}, selected)
}

func TestSelectImportantTypesAlwaysQualify(t *testing.T) {
	// Consecutive code frames are all keyframes despite no transition.
	frames := frameSeq([]string{"code", "code", "code"}, nil)
	selected := Select(frames)
	assert.Equal(t, []int64{1, 2, 3}, selected)
}

func TestSelectTextDrift(t *testing.T) {
	texts := []string{
		"func main package server listen",
		"func main package server listen",
		"completely different words appearing onscreen",
	}
	frames := frameSeq([]string{"", "", ""}, texts)
	selected := Select(frames)
	assert.Equal(t, []int64{1, 3}, selected)
}

func TestSelectGapsDoNotResetBaseline(t *testing.T) {
	// The middle frame supplies neither text nor type; the comparison
	// baseline for the third frame is still the first frame's values.
	texts := []string{
		"installing the runtime dependencies now",
		"",
		"installing the runtime dependencies now",
	}
	frames := frameSeq([]string{"demo", "", "demo"}, texts)
	selected := Select(frames)
	assert.Equal(t, []int64{1}, selected)
}

type fakeFrameStore struct {
	frames  []models.Frame
	set     []int64
	loadErr error
}

func (f *fakeFrameStore) FramesByVideo(context.Context, int64) ([]models.Frame, error) {
	return f.frames, f.loadErr
}

func (f *fakeFrameStore) SetKeyframes(_ context.Context, _ int64, frameIDs []int64) error {
	f.set = frameIDs
	return nil
}

func TestIdentifyReplacesSet(t *testing.T) {
	store := &fakeFrameStore{frames: frameSeq([]string{"demo", "code", "demo"}, nil)}
	identifier := NewIdentifier(store, nil)

	count, err := identifier.Identify(context.Background(), 7)
	require.NoError(t, err)
	assert.Equal(t, 3, count)
	assert.Equal(t, []int64{1, 2, 3}, store.set)
}

func TestIdentifyNoFramesIsNoop(t *testing.T) {
	store := &fakeFrameStore{}
	identifier := NewIdentifier(store, nil)

	count, err := identifier.Identify(context.Background(), 7)
	require.NoError(t, err)
	assert.Zero(t, count)
	assert.Nil(t, store.set)
}

func TestIdentifyPropagatesLoadError(t *testing.T) {
	store := &fakeFrameStore{loadErr: errors.New("connection reset")}
	identifier := NewIdentifier(store, nil)

	_, err := identifier.Identify(context.Background(), 7)
	assert.Error(t, err)
}
