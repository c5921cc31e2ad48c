package correlation

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/framelens/framelens/internal/models"
)

func TestScoreBounds(t *testing.T) {
	frame := models.Frame{
		OnScreenText:     "deploy kubernetes cluster configuration yaml",
		SceneDescription: "deploy kubernetes cluster configuration yaml",
		VisualElements:   []string{"kubernetes", "cluster", "yaml", "deploy", "configuration"},
		ContentType:      "code",
	}
	segment := models.TranscriptSegment{
		Text: "deploy the kubernetes cluster configuration yaml code",
	}

	score, _ := Score(frame, segment)
	assert.LessOrEqual(t, score, 100)
	assert.GreaterOrEqual(t, score, 0)
}

func TestScoreMonotonicInOverlap(t *testing.T) {
	segment := models.TranscriptSegment{Text: "install docker compose services networking"}

	texts := []string{
		"unrelated words entirely",
		"install something else here",
		"install docker something here",
		"install docker compose services networking",
	}
	prev := -1
	for _, text := range texts {
		score, _ := Score(models.Frame{OnScreenText: text}, segment)
		assert.GreaterOrEqual(t, score, prev, "overlap %q", text)
		prev = score
	}
}

func TestScoreZeroWhenNothingShared(t *testing.T) {
	frame := models.Frame{
		OnScreenText:     "alpha beta gamma",
		SceneDescription: "delta epsilon",
		ContentType:      "talking_head",
	}
	segment := models.TranscriptSegment{Text: "completely unrelated narration"}

	score, elements := Score(frame, segment)
	assert.Zero(t, score)
	assert.Empty(t, elements.TextMatches)
	assert.Empty(t, elements.SceneMatches)
	assert.False(t, elements.ContentTypeMatch)
}

func TestScoreElementPointsCapped(t *testing.T) {
	frame := models.Frame{
		VisualElements: []string{"chair", "table", "lamp", "window", "door", "plant"},
	}
	segment := models.TranscriptSegment{
		Text: "chair table lamp window door plant",
	}

	score, elements := Score(frame, segment)
	assert.Len(t, elements.VisualElements, 6)
	assert.Equal(t, 20, score)
}

func TestScoreContextualBonuses(t *testing.T) {
	// "presentation" is in the relevant set and "slide" pairs with it.
	frame := models.Frame{ContentType: "presentation"}
	segment := models.TranscriptSegment{Text: "on this slide you can see"}

	score, elements := Score(frame, segment)
	assert.Equal(t, 10, score)
	assert.True(t, elements.ContentTypeMatch)

	// "talking_head" earns neither bonus.
	score, elements = Score(models.Frame{ContentType: "talking_head"}, segment)
	assert.Zero(t, score)
	assert.False(t, elements.ContentTypeMatch)
}

func TestBuildWindowSelection(t *testing.T) {
	segments := []models.TranscriptSegment{
		{Start: 10, Duration: 5, Text: "running the deployment script output"},
	}
	frames := []models.Frame{
		{ID: 1, TimestampSeconds: 5, OnScreenText: "deployment script output", RawAnalysis: "x"},
		{ID: 2, TimestampSeconds: 9, OnScreenText: "deployment script output", RawAnalysis: "x"},
		{ID: 3, TimestampSeconds: 16, OnScreenText: "deployment script output", RawAnalysis: "x"},
		{ID: 4, TimestampSeconds: 18, OnScreenText: "deployment script output", RawAnalysis: "x"},
	}

	// Window is [8, 17] with the 2 second buffer, so only frames at
	// 9 and 16 qualify.
	correlations := Build(1, segments, frames)
	require.Len(t, correlations, 2)
	assert.Equal(t, int64(2), correlations[0].FrameID)
	assert.Equal(t, int64(3), correlations[1].FrameID)
}

func TestBuildDropsBelowThreshold(t *testing.T) {
	segments := []models.TranscriptSegment{
		{Start: 0, Duration: 10, Text: "nothing matching here today"},
	}
	frames := []models.Frame{
		{ID: 1, TimestampSeconds: 5, OnScreenText: "entirely different words", RawAnalysis: "x"},
	}

	assert.Empty(t, Build(1, segments, frames))
}

func TestBuildDeterministic(t *testing.T) {
	segments := []models.TranscriptSegment{
		{Start: 0, Duration: 30, Text: "walking through the handler code and its tests"},
	}
	frames := []models.Frame{
		{
			ID:               1,
			TimestampSeconds: 10,
			OnScreenText:     "handler tests code coverage",
			SceneDescription: "editor showing handler code",
			ContentType:      "code",
			RawAnalysis:      "x",
		},
	}

	first := Build(1, segments, frames)
	second := Build(1, segments, frames)
	assert.Equal(t, first, second)
}

type fakeStore struct {
	segments []models.TranscriptSegment
	frames   []models.Frame
	replaced []models.Correlation
	calls    int
}

func (f *fakeStore) SegmentsByVideo(context.Context, int64) ([]models.TranscriptSegment, error) {
	return f.segments, nil
}

func (f *fakeStore) FramesByVideo(context.Context, int64) ([]models.Frame, error) {
	return f.frames, nil
}

func (f *fakeStore) ReplaceCorrelations(_ context.Context, _ int64, correlations []models.Correlation) error {
	f.replaced = correlations
	f.calls++
	return nil
}

func TestCorrelatePersistsQualifyingPairs(t *testing.T) {
	store := &fakeStore{
		segments: []models.TranscriptSegment{
			{Start: 0, Duration: 20, Text: "opening the configuration file in the editor"},
		},
		frames: []models.Frame{
			{ID: 1, TimestampSeconds: 10, OnScreenText: "configuration file editor", RawAnalysis: "x"},
			{ID: 2, TimestampSeconds: 15, RawAnalysis: ""},
		},
	}
	engine := NewEngine(store, nil)

	result, err := engine.Correlate(context.Background(), 1)
	require.NoError(t, err)
	assert.Equal(t, 1, result.Created)
	assert.Equal(t, 1, result.Frames, "unanalyzed frames are not candidates")
	require.Len(t, store.replaced, 1)
	assert.GreaterOrEqual(t, store.replaced[0].Score, minScore)
}

func TestCorrelateNoTranscriptIsNoop(t *testing.T) {
	store := &fakeStore{
		frames: []models.Frame{{ID: 1, TimestampSeconds: 0, RawAnalysis: "x"}},
	}
	engine := NewEngine(store, nil)

	result, err := engine.Correlate(context.Background(), 1)
	require.NoError(t, err)
	assert.Zero(t, result.Created)
	assert.Zero(t, store.calls, "no transaction when there is nothing to correlate")
}
