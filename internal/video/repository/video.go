package repository

import (
	"context"
	"errors"
	"time"

	"codearena/internal/common/db"
)

var (
	ErrVideoNotFound = errors.New("video not found")
	ErrVideoExists   = errors.New("video already exists")
)

// Schema creates the solution_videos table. A problem has at most one video.
var Schema = []string{
	`CREATE TABLE IF NOT EXISTS solution_videos (
		id BIGINT NOT NULL AUTO_INCREMENT PRIMARY KEY,
		problem_id BIGINT NOT NULL,
		user_id BIGINT NOT NULL,
		object_key VARCHAR(512) NOT NULL,
		thumbnail_key VARCHAR(512) NOT NULL DEFAULT '',
		duration INT NOT NULL DEFAULT 0,
		created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
		UNIQUE KEY solution_videos_problem_uk (problem_id)
	) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4`,
}

// Video is the metadata of an uploaded solution video.
type Video struct {
	ID           int64
	ProblemID    int64
	UserID       int64
	ObjectKey    string
	ThumbnailKey string
	Duration     int
	CreatedAt    time.Time
}

type VideoRepository interface {
	Create(ctx context.Context, tx db.Transaction, video *Video) (int64, error)
	GetByProblem(ctx context.Context, tx db.Transaction, problemID int64) (*Video, error)
	// DeleteByProblem reports whether a row was removed.
	DeleteByProblem(ctx context.Context, tx db.Transaction, problemID int64) (bool, error)
}

type MySQLVideoRepository struct {
	dbProvider db.Provider
}

func NewVideoRepository(provider db.Provider) VideoRepository {
	return &MySQLVideoRepository{dbProvider: provider}
}

const videoColumns = "id, problem_id, user_id, object_key, thumbnail_key, duration, created_at"

func (r *MySQLVideoRepository) Create(ctx context.Context, tx db.Transaction, video *Video) (int64, error) {
	if video == nil {
		return 0, errors.New("video is nil")
	}
	querier, err := db.GetProviderQuerier(r.dbProvider, tx)
	if err != nil {
		return 0, err
	}
	query := `INSERT INTO solution_videos (problem_id, user_id, object_key, thumbnail_key, duration) VALUES (?, ?, ?, ?, ?)`
	result, err := querier.Exec(ctx, query, video.ProblemID, video.UserID, video.ObjectKey, video.ThumbnailKey, video.Duration)
	if err != nil {
		if _, dup := db.UniqueViolation(err); dup {
			return 0, ErrVideoExists
		}
		return 0, err
	}
	id, err := result.LastInsertId()
	if err != nil {
		return 0, err
	}
	video.ID = id
	if video.CreatedAt.IsZero() {
		video.CreatedAt = time.Now()
	}
	return id, nil
}

func (r *MySQLVideoRepository) GetByProblem(ctx context.Context, tx db.Transaction, problemID int64) (*Video, error) {
	querier, err := db.GetProviderQuerier(r.dbProvider, tx)
	if err != nil {
		return nil, err
	}
	row := querier.QueryRow(ctx, "SELECT "+videoColumns+" FROM solution_videos WHERE problem_id = ? LIMIT 1", problemID)
	video, err := scanVideo(row)
	if err != nil {
		if db.IsNoRows(err) {
			return nil, ErrVideoNotFound
		}
		return nil, err
	}
	return video, nil
}

func (r *MySQLVideoRepository) DeleteByProblem(ctx context.Context, tx db.Transaction, problemID int64) (bool, error) {
	querier, err := db.GetProviderQuerier(r.dbProvider, tx)
	if err != nil {
		return false, err
	}
	result, err := querier.Exec(ctx, "DELETE FROM solution_videos WHERE problem_id = ?", problemID)
	if err != nil {
		return false, err
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return false, err
	}
	return affected > 0, nil
}

func scanVideo(row db.Scanner) (*Video, error) {
	video := &Video{}
	if err := row.Scan(
		&video.ID,
		&video.ProblemID,
		&video.UserID,
		&video.ObjectKey,
		&video.ThumbnailKey,
		&video.Duration,
		&video.CreatedAt,
	); err != nil {
		return nil, err
	}
	return video, nil
}
