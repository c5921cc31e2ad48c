package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pgvector/pgvector-go"

	"github.com/framelens/framelens/internal/models"
)

// Store manages interaction with PostgreSQL.
type Store struct {
	pool *pgxpool.Pool
}

// NewStore connects to PostgreSQL and verifies the connection.
func NewStore(ctx context.Context, databaseURL string) (*Store, error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}
	return &Store{pool: pool}, nil
}

// Close closes the database connection pool.
func (s *Store) Close() {
	if s.pool != nil {
		s.pool.Close()
	}
}

// VideoByID fetches a video by identifier. Returns an error when the
// video does not exist.
func (s *Store) VideoByID(ctx context.Context, id int64) (*models.Video, error) {
	var (
		v           models.Video
		overviewRaw []byte
	)
	err := s.pool.QueryRow(ctx,
		`SELECT id, title, source_path, duration_seconds, analysis_status, visual_overview, created_at, updated_at
         FROM videos WHERE id = $1`, id).
		Scan(&v.ID, &v.Title, &v.SourcePath, &v.DurationSeconds, &v.AnalysisStatus, &overviewRaw, &v.CreatedAt, &v.UpdatedAt)
	if err != nil {
		return nil, fmt.Errorf("get video %d: %w", id, err)
	}
	if len(overviewRaw) > 0 {
		var overview models.VisualOverview
		if err := json.Unmarshal(overviewRaw, &overview); err != nil {
			return nil, fmt.Errorf("decode visual overview for video %d: %w", id, err)
		}
		v.VisualOverview = &overview
	}
	return &v, nil
}

// GetOrCreateVideo gets an existing video entry by title or creates a new one.
func (s *Store) GetOrCreateVideo(ctx context.Context, title, sourcePath string) (*models.Video, error) {
	var id int64
	err := s.pool.QueryRow(ctx, `SELECT id FROM videos WHERE title = $1`, title).Scan(&id)
	if err == nil {
		return s.VideoByID(ctx, id)
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("check for existing video: %w", err)
	}

	now := time.Now().UTC()
	err = s.pool.QueryRow(ctx,
		`INSERT INTO videos (title, source_path, analysis_status, created_at, updated_at)
         VALUES ($1, $2, $3, $4, $4) RETURNING id`,
		title, sourcePath, models.StatusPending, now).Scan(&id)
	if err != nil {
		return nil, fmt.Errorf("create video entry: %w", err)
	}
	return s.VideoByID(ctx, id)
}

// UpdateVideoStatus transitions a video's analysis status.
func (s *Store) UpdateVideoStatus(ctx context.Context, videoID int64, status models.AnalysisStatus) error {
	_, err := s.pool.Exec(ctx,
		`UPDATE videos SET analysis_status = $2, updated_at = $3 WHERE id = $1`,
		videoID, status, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("update video %d status: %w", videoID, err)
	}
	return nil
}

// SaveOverview persists the visual overview blob onto the video entity.
func (s *Store) SaveOverview(ctx context.Context, videoID int64, overview *models.VisualOverview) error {
	raw, err := json.Marshal(overview)
	if err != nil {
		return fmt.Errorf("encode visual overview: %w", err)
	}
	_, err = s.pool.Exec(ctx,
		`UPDATE videos SET visual_overview = $2, updated_at = $3 WHERE id = $1`,
		videoID, raw, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("save visual overview for video %d: %w", videoID, err)
	}
	return nil
}

const frameColumns = `id, video_id, timestamp_seconds, path, on_screen_text, ocr_processed, scene_description, visual_elements, content_type, is_keyframe, raw_analysis, created_at`

func scanFrames(rows pgx.Rows) ([]models.Frame, error) {
	defer rows.Close()
	var frames []models.Frame
	for rows.Next() {
		var f models.Frame
		if err := rows.Scan(&f.ID, &f.VideoID, &f.TimestampSeconds, &f.Path, &f.OnScreenText, &f.OCRProcessed,
			&f.SceneDescription, &f.VisualElements, &f.ContentType, &f.IsKeyframe, &f.RawAnalysis, &f.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan frame: %w", err)
		}
		frames = append(frames, f)
	}
	return frames, rows.Err()
}

// FramesByVideo returns all frames of a video ordered by timestamp.
func (s *Store) FramesByVideo(ctx context.Context, videoID int64) ([]models.Frame, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+frameColumns+` FROM frames WHERE video_id = $1 ORDER BY timestamp_seconds`, videoID)
	if err != nil {
		return nil, fmt.Errorf("query frames for video %d: %w", videoID, err)
	}
	return scanFrames(rows)
}

// UnanalyzedFrames returns the frames of a video that lack the vision
// analysis marker, ordered by timestamp.
func (s *Store) UnanalyzedFrames(ctx context.Context, videoID int64) ([]models.Frame, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+frameColumns+` FROM frames WHERE video_id = $1 AND raw_analysis = '' ORDER BY timestamp_seconds`, videoID)
	if err != nil {
		return nil, fmt.Errorf("query unanalyzed frames for video %d: %w", videoID, err)
	}
	return scanFrames(rows)
}

// InsertFrames registers newly extracted frames. Re-extraction of an
// existing (video, timestamp) pair is a no-op so reruns stay idempotent.
func (s *Store) InsertFrames(ctx context.Context, frames []models.Frame) error {
	if len(frames) == 0 {
		return nil
	}
	batch := &pgx.Batch{}
	now := time.Now().UTC()
	for _, f := range frames {
		batch.Queue(
			`INSERT INTO frames (video_id, timestamp_seconds, path, created_at)
             VALUES ($1, $2, $3, $4)
             ON CONFLICT (video_id, timestamp_seconds) DO NOTHING`,
			f.VideoID, f.TimestampSeconds, f.Path, now)
	}
	results := s.pool.SendBatch(ctx, batch)
	defer results.Close()
	for range frames {
		if _, err := results.Exec(); err != nil {
			return fmt.Errorf("insert frame: %w", err)
		}
	}
	return nil
}

// AppendFrameText appends OCR output to a frame's on-screen text.
// Existing text is never overwritten; passes accumulate.
func (s *Store) AppendFrameText(ctx context.Context, frameID int64, text string) error {
	if text == "" {
		return nil
	}
	_, err := s.pool.Exec(ctx,
		`UPDATE frames
         SET on_screen_text = CASE WHEN on_screen_text = '' THEN $2
                                   ELSE on_screen_text || E'\n' || $2 END,
             ocr_processed = TRUE
         WHERE id = $1`,
		frameID, text)
	if err != nil {
		return fmt.Errorf("append text to frame %d: %w", frameID, err)
	}
	return nil
}

// MarkFrameOCRProcessed stamps a frame as having been through OCR,
// including frames where recognition found no text at all.
func (s *Store) MarkFrameOCRProcessed(ctx context.Context, frameID int64) error {
	_, err := s.pool.Exec(ctx,
		`UPDATE frames SET ocr_processed = TRUE WHERE id = $1`, frameID)
	if err != nil {
		return fmt.Errorf("mark frame %d ocr processed: %w", frameID, err)
	}
	return nil
}

// SaveFrameAnalysis stores the vision results for a frame and stamps it
// as analyzed. On-screen text found by the model is appended, not replaced.
func (s *Store) SaveFrameAnalysis(ctx context.Context, frame *models.Frame) error {
	_, err := s.pool.Exec(ctx,
		`UPDATE frames
         SET scene_description = $2,
             visual_elements = $3,
             content_type = $4,
             raw_analysis = $5,
             analyzed_at = $6
         WHERE id = $1`,
		frame.ID, frame.SceneDescription, frame.VisualElements, frame.ContentType,
		frame.RawAnalysis, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("save analysis for frame %d: %w", frame.ID, err)
	}
	if frame.OnScreenText != "" {
		return s.AppendFrameText(ctx, frame.ID, frame.OnScreenText)
	}
	return nil
}

// SetKeyframes fully replaces the keyframe set of a video: all flags are
// reset, then the provided frames are marked, inside one transaction.
func (s *Store) SetKeyframes(ctx context.Context, videoID int64, frameIDs []int64) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin keyframe tx: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if _, err := tx.Exec(ctx,
		`UPDATE frames SET is_keyframe = FALSE WHERE video_id = $1`, videoID); err != nil {
		return fmt.Errorf("reset keyframes for video %d: %w", videoID, err)
	}
	if len(frameIDs) > 0 {
		if _, err := tx.Exec(ctx,
			`UPDATE frames SET is_keyframe = TRUE WHERE video_id = $1 AND id = ANY($2)`,
			videoID, frameIDs); err != nil {
			return fmt.Errorf("mark keyframes for video %d: %w", videoID, err)
		}
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit keyframe tx: %w", err)
	}
	return nil
}

// CountAnalyzedSince counts frames analyzed at or after the given time.
// Backs the persisted half of the daily quota check.
func (s *Store) CountAnalyzedSince(ctx context.Context, since time.Time) (int, error) {
	var count int
	err := s.pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM frames WHERE analyzed_at >= $1`, since).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("count analyzed frames: %w", err)
	}
	return count, nil
}

// FrameCounts reports per-video enrichment totals for status polling.
func (s *Store) FrameCounts(ctx context.Context, videoID int64) (FrameCounts, error) {
	var c FrameCounts
	err := s.pool.QueryRow(ctx,
		`SELECT COUNT(*),
                COUNT(*) FILTER (WHERE ocr_processed),
                COUNT(*) FILTER (WHERE raw_analysis <> ''),
                COUNT(*) FILTER (WHERE is_keyframe),
                COUNT(*) FILTER (WHERE content_type <> '')
         FROM frames WHERE video_id = $1`, videoID).
		Scan(&c.Total, &c.OCRProcessed, &c.VisionAnalyzed, &c.Keyframes, &c.ContentTyped)
	if err != nil {
		return FrameCounts{}, fmt.Errorf("frame counts for video %d: %w", videoID, err)
	}
	return c, nil
}

// ReplaceCorrelations wholesale-replaces a video's correlation set.
// Delete and insert share one transaction so concurrent readers never
// observe a half-built set.
func (s *Store) ReplaceCorrelations(ctx context.Context, videoID int64, correlations []models.Correlation) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin correlation tx: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if _, err := tx.Exec(ctx, `DELETE FROM correlations WHERE video_id = $1`, videoID); err != nil {
		return fmt.Errorf("delete correlations for video %d: %w", videoID, err)
	}
	for _, c := range correlations {
		elements, err := json.Marshal(c.MatchingElements)
		if err != nil {
			return fmt.Errorf("encode matching elements: %w", err)
		}
		if _, err := tx.Exec(ctx,
			`INSERT INTO correlations (video_id, frame_id, segment_start, segment_duration, score, matching_elements)
             VALUES ($1, $2, $3, $4, $5, $6)`,
			c.VideoID, c.FrameID, c.SegmentStart, c.SegmentDuration, c.Score, elements); err != nil {
			return fmt.Errorf("insert correlation: %w", err)
		}
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit correlation tx: %w", err)
	}
	return nil
}

// CorrelationsByVideo returns a video's correlations ordered by segment
// start, then score descending.
func (s *Store) CorrelationsByVideo(ctx context.Context, videoID int64) ([]models.Correlation, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, video_id, frame_id, segment_start, segment_duration, score, matching_elements
         FROM correlations WHERE video_id = $1 ORDER BY segment_start, score DESC`, videoID)
	if err != nil {
		return nil, fmt.Errorf("query correlations for video %d: %w", videoID, err)
	}
	defer rows.Close()

	var correlations []models.Correlation
	for rows.Next() {
		var (
			c   models.Correlation
			raw []byte
		)
		if err := rows.Scan(&c.ID, &c.VideoID, &c.FrameID, &c.SegmentStart, &c.SegmentDuration, &c.Score, &raw); err != nil {
			return nil, fmt.Errorf("scan correlation: %w", err)
		}
		if len(raw) > 0 {
			if err := json.Unmarshal(raw, &c.MatchingElements); err != nil {
				return nil, fmt.Errorf("decode matching elements: %w", err)
			}
		}
		correlations = append(correlations, c)
	}
	return correlations, rows.Err()
}

// SegmentsByVideo returns transcript segments ordered by start time.
// An empty slice means no transcript exists.
func (s *Store) SegmentsByVideo(ctx context.Context, videoID int64) ([]models.TranscriptSegment, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT start_seconds, duration_seconds, text FROM transcript_segments
         WHERE video_id = $1 ORDER BY start_seconds`, videoID)
	if err != nil {
		return nil, fmt.Errorf("query transcript for video %d: %w", videoID, err)
	}
	defer rows.Close()

	var segments []models.TranscriptSegment
	for rows.Next() {
		var seg models.TranscriptSegment
		if err := rows.Scan(&seg.Start, &seg.Duration, &seg.Text); err != nil {
			return nil, fmt.Errorf("scan transcript segment: %w", err)
		}
		segments = append(segments, seg)
	}
	return segments, rows.Err()
}

// ReplaceSegments replaces a video's transcript in one transaction.
func (s *Store) ReplaceSegments(ctx context.Context, videoID int64, segments []models.TranscriptSegment) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin transcript tx: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if _, err := tx.Exec(ctx, `DELETE FROM transcript_segments WHERE video_id = $1`, videoID); err != nil {
		return fmt.Errorf("delete transcript for video %d: %w", videoID, err)
	}
	for _, seg := range segments {
		if _, err := tx.Exec(ctx,
			`INSERT INTO transcript_segments (video_id, start_seconds, duration_seconds, text)
             VALUES ($1, $2, $3, $4)`,
			videoID, seg.Start, seg.Duration, seg.Text); err != nil {
			return fmt.Errorf("insert transcript segment: %w", err)
		}
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit transcript tx: %w", err)
	}
	return nil
}

// CreateJob inserts a new analysis job record.
func (s *Store) CreateJob(ctx context.Context, job *models.AnalysisJob) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO analysis_jobs (id, video_id, status, progress, result, error_message, attempt, max_attempts, created_at, updated_at, completed_at)
         VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
		job.ID, job.VideoID, job.Status, job.Progress, job.Result, job.ErrorMessage,
		job.Attempt, job.MaxAttempts, job.CreatedAt, job.UpdatedAt, job.CompletedAt)
	if err != nil {
		return fmt.Errorf("insert job: %w", err)
	}
	return nil
}

// UpdateJob persists changes to an existing job.
func (s *Store) UpdateJob(ctx context.Context, job *models.AnalysisJob) error {
	_, err := s.pool.Exec(ctx,
		`UPDATE analysis_jobs
         SET status = $2, progress = $3, result = $4, error_message = $5,
             attempt = $6, updated_at = $7, completed_at = $8
         WHERE id = $1`,
		job.ID, job.Status, job.Progress, job.Result, job.ErrorMessage,
		job.Attempt, job.UpdatedAt, job.CompletedAt)
	if err != nil {
		return fmt.Errorf("update job: %w", err)
	}
	return nil
}

// JobByID fetches a job by identifier. Returns nil when it does not exist.
func (s *Store) JobByID(ctx context.Context, id uuid.UUID) (*models.AnalysisJob, error) {
	job := &models.AnalysisJob{}
	err := s.pool.QueryRow(ctx,
		`SELECT id, video_id, status, progress, result, error_message, attempt, max_attempts, created_at, updated_at, completed_at
         FROM analysis_jobs WHERE id = $1`, id).
		Scan(&job.ID, &job.VideoID, &job.Status, &job.Progress, &job.Result, &job.ErrorMessage,
			&job.Attempt, &job.MaxAttempts, &job.CreatedAt, &job.UpdatedAt, &job.CompletedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("find job by id: %w", err)
	}
	return job, nil
}

// SetFrameEmbedding stores the scene-description embedding for a frame.
func (s *Store) SetFrameEmbedding(ctx context.Context, frameID int64, embedding []float32) error {
	_, err := s.pool.Exec(ctx,
		`UPDATE frames SET embedding = $2 WHERE id = $1`,
		frameID, pgvector.NewVector(embedding))
	if err != nil {
		return fmt.Errorf("set embedding for frame %d: %w", frameID, err)
	}
	return nil
}

// SearchSimilarFrames finds frames of a video whose scene descriptions
// are closest to the query embedding.
func (s *Store) SearchSimilarFrames(ctx context.Context, videoID int64, queryEmbedding []float32, limit int) ([]models.FrameSearchResult, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, timestamp_seconds, path, scene_description,
                1 - (embedding <=> $1) AS similarity
         FROM frames
         WHERE video_id = $2 AND embedding IS NOT NULL
         ORDER BY embedding <=> $1
         LIMIT $3`,
		pgvector.NewVector(queryEmbedding), videoID, limit)
	if err != nil {
		return nil, fmt.Errorf("search similar frames: %w", err)
	}
	defer rows.Close()

	var results []models.FrameSearchResult
	for rows.Next() {
		var r models.FrameSearchResult
		if err := rows.Scan(&r.FrameID, &r.TimestampSeconds, &r.Path, &r.SceneDescription, &r.Similarity); err != nil {
			return nil, fmt.Errorf("scan search result: %w", err)
		}
		results = append(results, r)
	}
	return results, rows.Err()
}
