package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"codearena/internal/common/db"
	"codearena/internal/common/storage"
	problemmodel "codearena/internal/problem/model"
	"codearena/internal/video/repository"
	pkgerrors "codearena/pkg/errors"
	"codearena/pkg/utils/logger"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

const (
	defaultKeyPrefix   = "videos"
	defaultUploadTTL   = 15 * time.Minute
	defaultPlaybackTTL = time.Hour
	maxDurationSeconds = 6 * 60 * 60
)

// ProblemChecker reports whether a problem exists.
type ProblemChecker interface {
	Exists(ctx context.Context, problemID int64) (bool, error)
}

type Config struct {
	DBProvider  db.Provider
	Bucket      string
	KeyPrefix   string
	UploadTTL   time.Duration
	PlaybackTTL time.Duration
}

// VideoService manages solution video uploads and playback links.
type VideoService struct {
	dbProvider db.Provider
	videos     repository.VideoRepository
	problems   ProblemChecker
	storage    storage.ObjectStorage
	config     Config
	now        func() time.Time
}

func NewVideoService(videos repository.VideoRepository, problems ProblemChecker, obj storage.ObjectStorage, cfg Config) *VideoService {
	if cfg.KeyPrefix == "" {
		cfg.KeyPrefix = defaultKeyPrefix
	}
	if cfg.UploadTTL <= 0 {
		cfg.UploadTTL = defaultUploadTTL
	}
	if cfg.PlaybackTTL <= 0 {
		cfg.PlaybackTTL = defaultPlaybackTTL
	}
	return &VideoService{
		dbProvider: cfg.DBProvider,
		videos:     videos,
		problems:   problems,
		storage:    obj,
		config:     cfg,
		now:        time.Now,
	}
}

// UploadTicket tells the client where to PUT the video and its thumbnail.
type UploadTicket struct {
	UploadURL          string    `json:"uploadUrl"`
	ObjectKey          string    `json:"objectKey"`
	ThumbnailUploadURL string    `json:"thumbnailUploadUrl"`
	ThumbnailKey       string    `json:"thumbnailKey"`
	ExpiresAt          time.Time `json:"expiresAt"`
}

type SaveInput struct {
	ProblemID    int64
	ObjectKey    string
	ThumbnailKey string
	Duration     int
}

// VideoView is the stored video as returned to clients.
type VideoView struct {
	ID           int64     `json:"_id"`
	ProblemID    int64     `json:"problemId"`
	SecureURL    string    `json:"secureUrl"`
	ThumbnailURL string    `json:"thumbnailUrl"`
	Duration     int       `json:"duration"`
	UploadedAt   time.Time `json:"uploadedAt"`
}

// CreateUpload presigns upload slots under the problem's key prefix.
func (s *VideoService) CreateUpload(ctx context.Context, problemID int64) (*UploadTicket, error) {
	if err := s.ready(); err != nil {
		return nil, err
	}
	if err := s.requireProblem(ctx, problemID); err != nil {
		return nil, err
	}
	base := s.problemPrefix(problemID) + uuid.NewString()
	objectKey := base + ".mp4"
	thumbnailKey := base + ".jpg"

	uploadURL, err := s.storage.PresignPut(ctx, s.config.Bucket, objectKey, s.config.UploadTTL)
	if err != nil {
		return nil, pkgerrors.Wrapf(err, pkgerrors.StorageError, "presign video upload failed")
	}
	thumbURL, err := s.storage.PresignPut(ctx, s.config.Bucket, thumbnailKey, s.config.UploadTTL)
	if err != nil {
		return nil, pkgerrors.Wrapf(err, pkgerrors.StorageError, "presign thumbnail upload failed")
	}
	return &UploadTicket{
		UploadURL:          uploadURL,
		ObjectKey:          objectKey,
		ThumbnailUploadURL: thumbURL,
		ThumbnailKey:       thumbnailKey,
		ExpiresAt:          s.now().Add(s.config.UploadTTL),
	}, nil
}

// Save records an uploaded video after confirming the object exists.
func (s *VideoService) Save(ctx context.Context, userID int64, input SaveInput) (*VideoView, error) {
	if err := s.ready(); err != nil {
		return nil, err
	}
	if input.ProblemID <= 0 {
		return nil, pkgerrors.ValidationError("problemId", "required")
	}
	prefix := s.problemPrefix(input.ProblemID)
	if !strings.HasPrefix(input.ObjectKey, prefix) {
		return nil, pkgerrors.ValidationError("objectKey", "must belong to the problem")
	}
	if input.ThumbnailKey != "" && !strings.HasPrefix(input.ThumbnailKey, prefix) {
		return nil, pkgerrors.ValidationError("thumbnailKey", "must belong to the problem")
	}
	if input.Duration < 0 || input.Duration > maxDurationSeconds {
		return nil, pkgerrors.ValidationError("duration", "out of range")
	}
	if err := s.requireProblem(ctx, input.ProblemID); err != nil {
		return nil, err
	}
	if _, err := s.videos.GetByProblem(ctx, nil, input.ProblemID); err == nil {
		return nil, pkgerrors.New(pkgerrors.VideoAlreadyExists)
	} else if !errors.Is(err, repository.ErrVideoNotFound) {
		return nil, pkgerrors.Wrapf(err, pkgerrors.DatabaseError, "load video failed")
	}
	for _, key := range []string{input.ObjectKey, input.ThumbnailKey} {
		if key == "" {
			continue
		}
		if _, err := s.storage.StatObject(ctx, s.config.Bucket, key); err != nil {
			if errors.Is(err, storage.ErrObjectNotFound) {
				return nil, pkgerrors.New(pkgerrors.VideoNotUploaded).WithMessage("Uploaded object not found: " + key)
			}
			return nil, pkgerrors.Wrapf(err, pkgerrors.StorageError, "stat uploaded object failed")
		}
	}

	video := &repository.Video{
		ProblemID:    input.ProblemID,
		UserID:       userID,
		ObjectKey:    input.ObjectKey,
		ThumbnailKey: input.ThumbnailKey,
		Duration:     input.Duration,
		CreatedAt:    s.now(),
	}
	if _, err := s.videos.Create(ctx, nil, video); err != nil {
		if errors.Is(err, repository.ErrVideoExists) {
			return nil, pkgerrors.New(pkgerrors.VideoAlreadyExists)
		}
		return nil, pkgerrors.Wrapf(err, pkgerrors.DatabaseError, "save video failed")
	}
	logger.Info(ctx, "solution video saved", zap.Int64("problem_id", video.ProblemID), zap.String("object_key", video.ObjectKey))

	playback, err := s.playback(ctx, video)
	if err != nil {
		return nil, err
	}
	return &VideoView{
		ID:           video.ID,
		ProblemID:    video.ProblemID,
		SecureURL:    playback.SecureURL,
		ThumbnailURL: playback.ThumbnailURL,
		Duration:     video.Duration,
		UploadedAt:   video.CreatedAt,
	}, nil
}

// Delete removes a problem's video metadata and its stored objects.
func (s *VideoService) Delete(ctx context.Context, problemID int64) error {
	video, err := s.videos.GetByProblem(ctx, nil, problemID)
	if err != nil {
		if errors.Is(err, repository.ErrVideoNotFound) {
			return pkgerrors.New(pkgerrors.VideoNotFound)
		}
		return pkgerrors.Wrapf(err, pkgerrors.DatabaseError, "load video failed")
	}
	removed, err := s.videos.DeleteByProblem(ctx, nil, problemID)
	if err != nil {
		return pkgerrors.Wrapf(err, pkgerrors.DatabaseError, "delete video failed")
	}
	if !removed {
		return pkgerrors.New(pkgerrors.VideoNotFound)
	}
	if s.storage == nil {
		return nil
	}
	keys := []string{video.ObjectKey}
	if video.ThumbnailKey != "" {
		keys = append(keys, video.ThumbnailKey)
	}
	if err := s.storage.RemoveObjects(ctx, s.config.Bucket, keys); err != nil {
		logger.Warn(ctx, "remove video objects failed", zap.Int64("problem_id", problemID), zap.Error(err))
	}
	return nil
}

// PlaybackForProblem returns presigned playback links, or nil when there is no video.
func (s *VideoService) PlaybackForProblem(ctx context.Context, problemID int64) (*problemmodel.VideoPlayback, error) {
	video, err := s.videos.GetByProblem(ctx, nil, problemID)
	if err != nil {
		if errors.Is(err, repository.ErrVideoNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return s.playback(ctx, video)
}

// DeleteByProblem drops the metadata inside a problem deletion. Objects are
// removed by the problem cleanup consumer.
func (s *VideoService) DeleteByProblem(ctx context.Context, tx db.Transaction, problemID int64) error {
	_, err := s.videos.DeleteByProblem(ctx, tx, problemID)
	return err
}

func (s *VideoService) playback(ctx context.Context, video *repository.Video) (*problemmodel.VideoPlayback, error) {
	out := &problemmodel.VideoPlayback{Duration: video.Duration}
	if s.storage == nil {
		return out, nil
	}
	secure, err := s.storage.PresignGet(ctx, s.config.Bucket, video.ObjectKey, s.config.PlaybackTTL)
	if err != nil {
		return nil, pkgerrors.Wrapf(err, pkgerrors.StorageError, "presign playback failed")
	}
	out.SecureURL = secure
	if video.ThumbnailKey != "" {
		thumb, err := s.storage.PresignGet(ctx, s.config.Bucket, video.ThumbnailKey, s.config.PlaybackTTL)
		if err != nil {
			return nil, pkgerrors.Wrapf(err, pkgerrors.StorageError, "presign thumbnail failed")
		}
		out.ThumbnailURL = thumb
	}
	return out, nil
}

func (s *VideoService) requireProblem(ctx context.Context, problemID int64) error {
	if problemID <= 0 {
		return pkgerrors.New(pkgerrors.ProblemNotFound)
	}
	if s.problems == nil {
		return nil
	}
	ok, err := s.problems.Exists(ctx, problemID)
	if err != nil {
		return err
	}
	if !ok {
		return pkgerrors.New(pkgerrors.ProblemNotFound)
	}
	return nil
}

func (s *VideoService) ready() error {
	if s.storage == nil || s.config.Bucket == "" {
		return pkgerrors.New(pkgerrors.ServiceUnavailable).WithMessage("object storage is not configured")
	}
	return nil
}

func (s *VideoService) problemPrefix(problemID int64) string {
	return fmt.Sprintf("%s/%d/", strings.Trim(s.config.KeyPrefix, "/"), problemID)
}
