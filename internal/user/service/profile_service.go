package service

import (
	"context"
	stderrors "errors"
	"fmt"
	"strings"
	"time"

	"codearena/internal/common/cache"
	"codearena/internal/common/http/middleware"
	"codearena/internal/common/storage"
	discussmodel "codearena/internal/discuss/model"
	"codearena/internal/user/repository"
	pkgerrors "codearena/pkg/errors"
	"codearena/pkg/utils/logger"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

const (
	profileKeyPrefix        = "user:profile:"
	defaultProfileTTL       = 10 * time.Minute
	defaultProfileEmptyTTL  = time.Minute
	defaultProfilePostLimit = 50
	defaultAvatarUploadTTL  = 15 * time.Minute
	joinDateLayout          = "January 2, 2006"
)

// PostSource supplies a user's discussion posts for the profile page.
type PostSource interface {
	ListByUser(ctx context.Context, userID int64, limit int) ([]discussmodel.PostSummary, error)
	CountByUser(ctx context.Context, userID int64) (int64, error)
}

// ProfileConfig configures profile caching and avatar uploads.
type ProfileConfig struct {
	CacheTTL      time.Duration
	EmptyCacheTTL time.Duration
	PostLimit     int

	AvatarBucket    string
	AvatarUploadTTL time.Duration
	// AvatarPublicBaseURL prefixes object keys to build the stored image URL.
	AvatarPublicBaseURL string
}

// ProfileService builds the profile aggregate and applies profile updates.
type ProfileService struct {
	users   repository.UserRepository
	solved  repository.SolvedRepository
	posts   PostSource
	cache   cache.Cache
	storage storage.ObjectStorage
	config  ProfileConfig
}

func NewProfileService(
	users repository.UserRepository,
	solved repository.SolvedRepository,
	posts PostSource,
	cacheClient cache.Cache,
	objectStorage storage.ObjectStorage,
	cfg ProfileConfig,
) *ProfileService {
	if cfg.CacheTTL <= 0 {
		cfg.CacheTTL = defaultProfileTTL
	}
	if cfg.EmptyCacheTTL <= 0 {
		cfg.EmptyCacheTTL = defaultProfileEmptyTTL
	}
	if cfg.PostLimit <= 0 {
		cfg.PostLimit = defaultProfilePostLimit
	}
	if cfg.AvatarUploadTTL <= 0 {
		cfg.AvatarUploadTTL = defaultAvatarUploadTTL
	}
	return &ProfileService{
		users:   users,
		solved:  solved,
		posts:   posts,
		cache:   cacheClient,
		storage: objectStorage,
		config:  cfg,
	}
}

// Profile is the aggregate shown on a user's profile page.
type Profile struct {
	ID                 int64                      `json:"_id"`
	FirstName          string                     `json:"firstName"`
	LastName           string                     `json:"lastName"`
	EmailID            string                     `json:"emailId"`
	Role               string                     `json:"role"`
	Age                *int                       `json:"age,omitempty"`
	Bio                string                     `json:"bio"`
	GitHub             string                     `json:"github"`
	Location           string                     `json:"location"`
	ProfileImage       string                     `json:"profileImage"`
	ProblemSolvedCount int                        `json:"problemSolvedCount"`
	ProblemsSolved     []repository.SolvedProblem `json:"problemsSolved"`
	PostCount          int64                      `json:"postCount"`
	Posts              []discussmodel.PostSummary `json:"posts"`
	JoinDate           string                     `json:"joinDate"`
}

// PublicProfile is the profile shown to anyone other than its owner or an admin.
// It leaves out the email address and age.
type PublicProfile struct {
	ID                 int64                      `json:"_id"`
	FirstName          string                     `json:"firstName"`
	LastName           string                     `json:"lastName"`
	Role               string                     `json:"role"`
	Bio                string                     `json:"bio"`
	GitHub             string                     `json:"github"`
	Location           string                     `json:"location"`
	ProfileImage       string                     `json:"profileImage"`
	ProblemSolvedCount int                        `json:"problemSolvedCount"`
	ProblemsSolved     []repository.SolvedProblem `json:"problemsSolved"`
	PostCount          int64                      `json:"postCount"`
	Posts              []discussmodel.PostSummary `json:"posts"`
	JoinDate           string                     `json:"joinDate"`
}

// Public strips the private fields from p.
func (p *Profile) Public() *PublicProfile {
	return &PublicProfile{
		ID:                 p.ID,
		FirstName:          p.FirstName,
		LastName:           p.LastName,
		Role:               p.Role,
		Bio:                p.Bio,
		GitHub:             p.GitHub,
		Location:           p.Location,
		ProfileImage:       p.ProfileImage,
		ProblemSolvedCount: p.ProblemSolvedCount,
		ProblemsSolved:     p.ProblemsSolved,
		PostCount:          p.PostCount,
		Posts:              p.Posts,
		JoinDate:           p.JoinDate,
	}
}

// AvatarUpload describes where the client should PUT a new avatar.
type AvatarUpload struct {
	UploadURL    string    `json:"uploadUrl"`
	ObjectKey    string    `json:"objectKey"`
	ProfileImage string    `json:"profileImage"`
	ExpiresAt    time.Time `json:"expiresAt"`
}

// GetProfile returns the cached profile aggregate for userID.
func (s *ProfileService) GetProfile(ctx context.Context, userID int64) (*Profile, error) {
	if userID <= 0 {
		return nil, pkgerrors.New(pkgerrors.UserNotFound)
	}
	profile, err := cache.GetJSONCached(ctx, s.cache, profileKey(userID), s.config.CacheTTL, s.config.EmptyCacheTTL,
		func(ctx context.Context) (*Profile, error) {
			return s.buildProfile(ctx, userID)
		})
	if err != nil {
		var appErr *pkgerrors.Error
		if stderrors.As(err, &appErr) {
			return nil, err
		}
		return nil, pkgerrors.Wrap(fmt.Errorf("load profile failed: %w", err), pkgerrors.DatabaseError)
	}
	if profile == nil {
		return nil, pkgerrors.New(pkgerrors.UserNotFound)
	}
	return profile, nil
}

func (s *ProfileService) buildProfile(ctx context.Context, userID int64) (*Profile, error) {
	user, err := s.users.GetByID(ctx, nil, userID)
	if err != nil {
		if stderrors.Is(err, repository.ErrUserNotFound) {
			return nil, nil
		}
		return nil, err
	}

	profile := &Profile{
		ID:             user.ID,
		FirstName:      user.FirstName,
		LastName:       user.LastName,
		EmailID:        user.Email,
		Role:           string(user.Role),
		Age:            user.Age,
		Bio:            user.Bio,
		GitHub:         user.GitHub,
		Location:       user.Location,
		ProfileImage:   user.ProfileImage,
		ProblemsSolved: []repository.SolvedProblem{},
		Posts:          []discussmodel.PostSummary{},
		JoinDate:       "Unknown",
	}
	if !user.CreatedAt.IsZero() {
		profile.JoinDate = user.CreatedAt.Format(joinDateLayout)
	}

	g, gctx := errgroup.WithContext(ctx)
	if s.solved != nil {
		g.Go(func() error {
			solved, err := s.solved.ListSolved(gctx, userID)
			if err != nil {
				return fmt.Errorf("list solved problems failed: %w", err)
			}
			profile.ProblemsSolved = solved
			profile.ProblemSolvedCount = len(solved)
			return nil
		})
	}
	if s.posts != nil {
		g.Go(func() error {
			posts, err := s.posts.ListByUser(gctx, userID, s.config.PostLimit)
			if err != nil {
				return fmt.Errorf("list posts failed: %w", err)
			}
			profile.Posts = posts
			return nil
		})
		g.Go(func() error {
			count, err := s.posts.CountByUser(gctx, userID)
			if err != nil {
				return fmt.Errorf("count posts failed: %w", err)
			}
			profile.PostCount = count
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return profile, nil
}

// Update changes profile fields. Only the owner or an admin may update.
func (s *ProfileService) Update(ctx context.Context, actor middleware.Identity, targetID int64, update repository.UserUpdate) (*repository.User, error) {
	if actor.UserID != targetID && !actor.IsAdmin() {
		return nil, pkgerrors.New(pkgerrors.PermissionDenied).WithMessage("you can only update your own profile")
	}
	trimUpdate(&update)
	if update.Empty() {
		return nil, pkgerrors.New(pkgerrors.InvalidParams).WithMessage("no fields to update")
	}
	if err := validateUpdate(update); err != nil {
		return nil, err
	}

	if err := s.users.Update(ctx, nil, targetID, update); err != nil {
		if stderrors.Is(err, repository.ErrUserNotFound) {
			return nil, pkgerrors.New(pkgerrors.UserNotFound)
		}
		return nil, pkgerrors.Wrap(fmt.Errorf("update user failed: %w", err), pkgerrors.UserUpdateFailed)
	}
	s.invalidate(ctx, targetID)

	user, err := s.users.GetByID(ctx, nil, targetID)
	if err != nil {
		if stderrors.Is(err, repository.ErrUserNotFound) {
			return nil, pkgerrors.New(pkgerrors.UserNotFound)
		}
		return nil, pkgerrors.Wrap(fmt.Errorf("get user failed: %w", err), pkgerrors.DatabaseError)
	}
	return user, nil
}

// AvatarUploadURL presigns an upload slot for a new profile image.
func (s *ProfileService) AvatarUploadURL(ctx context.Context, userID int64) (AvatarUpload, error) {
	if s.storage == nil || s.config.AvatarBucket == "" {
		return AvatarUpload{}, pkgerrors.New(pkgerrors.ServiceUnavailable).WithMessage("object storage is not configured")
	}
	objectKey := fmt.Sprintf("avatars/%d/%s", userID, uuid.NewString())
	url, err := s.storage.PresignPut(ctx, s.config.AvatarBucket, objectKey, s.config.AvatarUploadTTL)
	if err != nil {
		return AvatarUpload{}, pkgerrors.Wrap(fmt.Errorf("presign avatar upload failed: %w", err), pkgerrors.StorageError)
	}
	image := objectKey
	if base := strings.TrimRight(s.config.AvatarPublicBaseURL, "/"); base != "" {
		image = base + "/" + objectKey
	}
	return AvatarUpload{
		UploadURL:    url,
		ObjectKey:    objectKey,
		ProfileImage: image,
		ExpiresAt:    time.Now().Add(s.config.AvatarUploadTTL),
	}, nil
}

// InvalidateProfile drops the cached aggregate for userID.
func (s *ProfileService) InvalidateProfile(ctx context.Context, userID int64) error {
	return cache.Invalidate(ctx, s.cache, profileKey(userID))
}

func (s *ProfileService) invalidate(ctx context.Context, userID int64) {
	if err := s.InvalidateProfile(ctx, userID); err != nil {
		logger.Warn(ctx, "invalidate profile cache failed", zap.Int64("user_id", userID), zap.Error(err))
	}
}

func trimUpdate(update *repository.UserUpdate) {
	for _, field := range []*string{update.FirstName, update.LastName, update.GitHub, update.Location, update.ProfileImage} {
		if field != nil {
			*field = strings.TrimSpace(*field)
		}
	}
}

func profileKey(userID int64) string {
	return fmt.Sprintf("%s%d", profileKeyPrefix, userID)
}

// LookupAuthor returns the display fields stored on posts and comments.
func (s *ProfileService) LookupAuthor(ctx context.Context, userID int64) (discussmodel.Author, error) {
	user, err := s.users.GetByID(ctx, nil, userID)
	if err != nil {
		if stderrors.Is(err, repository.ErrUserNotFound) {
			return discussmodel.Author{}, pkgerrors.New(pkgerrors.UserNotFound)
		}
		return discussmodel.Author{}, pkgerrors.Wrap(fmt.Errorf("get user failed: %w", err), pkgerrors.DatabaseError)
	}
	return discussmodel.Author{UserID: user.ID, FirstName: user.FirstName, LastName: user.LastName}, nil
}
