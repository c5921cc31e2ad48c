package storage

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
)

// InitSchema creates the database schema if it doesn't exist, including
// the pgvector extension backing similar-frame search.
func InitSchema(ctx context.Context, databaseURL string) error {
	conn, err := pgx.Connect(ctx, databaseURL)
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	defer conn.Close(ctx)

	if _, err := conn.Exec(ctx, "CREATE EXTENSION IF NOT EXISTS vector"); err != nil {
		return fmt.Errorf("failed to create vector extension: %w", err)
	}

	_, err = conn.Exec(ctx, `
        CREATE TABLE IF NOT EXISTS videos (
            id BIGSERIAL PRIMARY KEY,
            title VARCHAR(255) NOT NULL,
            source_path TEXT NOT NULL DEFAULT '',
            duration_seconds DOUBLE PRECISION NOT NULL DEFAULT 0,
            analysis_status VARCHAR(32) NOT NULL DEFAULT 'pending',
            visual_overview JSONB,
            created_at TIMESTAMPTZ NOT NULL,
            updated_at TIMESTAMPTZ NOT NULL,
            UNIQUE(title)
        );

        CREATE TABLE IF NOT EXISTS frames (
            id BIGSERIAL PRIMARY KEY,
            video_id BIGINT REFERENCES videos(id) ON DELETE CASCADE,
            timestamp_seconds DOUBLE PRECISION NOT NULL,
            path TEXT NOT NULL,
            on_screen_text TEXT NOT NULL DEFAULT '',
            ocr_processed BOOLEAN NOT NULL DEFAULT FALSE,
            scene_description TEXT NOT NULL DEFAULT '',
            visual_elements TEXT[] NOT NULL DEFAULT '{}',
            content_type VARCHAR(64) NOT NULL DEFAULT '',
            is_keyframe BOOLEAN NOT NULL DEFAULT FALSE,
            raw_analysis TEXT NOT NULL DEFAULT '',
            analyzed_at TIMESTAMPTZ,
            embedding vector(768),
            created_at TIMESTAMPTZ NOT NULL,
            UNIQUE(video_id, timestamp_seconds)
        );

        CREATE TABLE IF NOT EXISTS transcript_segments (
            id BIGSERIAL PRIMARY KEY,
            video_id BIGINT REFERENCES videos(id) ON DELETE CASCADE,
            start_seconds DOUBLE PRECISION NOT NULL,
            duration_seconds DOUBLE PRECISION NOT NULL,
            text TEXT NOT NULL
        );

        CREATE TABLE IF NOT EXISTS correlations (
            id BIGSERIAL PRIMARY KEY,
            video_id BIGINT REFERENCES videos(id) ON DELETE CASCADE,
            frame_id BIGINT REFERENCES frames(id) ON DELETE CASCADE,
            segment_start DOUBLE PRECISION NOT NULL,
            segment_duration DOUBLE PRECISION NOT NULL,
            score INTEGER NOT NULL,
            matching_elements JSONB
        );

        CREATE TABLE IF NOT EXISTS analysis_jobs (
            id UUID PRIMARY KEY,
            video_id BIGINT REFERENCES videos(id) ON DELETE CASCADE,
            status VARCHAR(32) NOT NULL,
            progress DOUBLE PRECISION NOT NULL DEFAULT 0,
            result TEXT NOT NULL DEFAULT '',
            error_message TEXT NOT NULL DEFAULT '',
            attempt INTEGER NOT NULL DEFAULT 0,
            max_attempts INTEGER NOT NULL DEFAULT 3,
            created_at TIMESTAMPTZ NOT NULL,
            updated_at TIMESTAMPTZ NOT NULL,
            completed_at TIMESTAMPTZ
        );
    `)
	if err != nil {
		return fmt.Errorf("failed to create database schema: %w", err)
	}

	_, err = conn.Exec(ctx, `
        CREATE INDEX IF NOT EXISTS idx_frames_video_id ON frames(video_id);
        CREATE INDEX IF NOT EXISTS idx_frames_analyzed_at ON frames(analyzed_at) WHERE analyzed_at IS NOT NULL;
        CREATE INDEX IF NOT EXISTS idx_transcript_video_id ON transcript_segments(video_id);
        CREATE INDEX IF NOT EXISTS idx_correlations_video_id ON correlations(video_id);
        CREATE INDEX IF NOT EXISTS idx_jobs_video_id ON analysis_jobs(video_id);
    `)
	if err != nil {
		return fmt.Errorf("failed to create database indexes: %w", err)
	}

	return nil
}
