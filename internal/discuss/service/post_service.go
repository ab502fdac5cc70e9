package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"codearena/internal/discuss/model"
	"codearena/internal/discuss/repository"
	pkgerrors "codearena/pkg/errors"
	pkgrepo "codearena/pkg/repository"
	"codearena/pkg/utils/logger"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

const (
	maxTitleLength   = 200
	maxContentLength = 20000
	maxCommentLength = 2000
	maxTags          = 10

	authorLookupConcurrency = 8
)

// AuthorLookup resolves the display fields of a user.
type AuthorLookup interface {
	LookupAuthor(ctx context.Context, userID int64) (model.Author, error)
}

// ProfileInvalidator drops cached profile aggregates that embed post data.
type ProfileInvalidator interface {
	InvalidateProfile(ctx context.Context, userID int64) error
}

type CreatePostInput struct {
	UserID  int64
	Title   string
	Content string
	Tags    []string
}

type AddCommentInput struct {
	PostID string
	UserID int64
	Text   string
}

type PostService struct {
	posts    repository.PostRepository
	authors  AuthorLookup
	profiles ProfileInvalidator
	now      func() time.Time
}

func NewPostService(posts repository.PostRepository, authors AuthorLookup, profiles ProfileInvalidator) *PostService {
	return &PostService{
		posts:    posts,
		authors:  authors,
		profiles: profiles,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

func (s *PostService) List(ctx context.Context, opts pkgrepo.ListOptions) ([]model.Post, int64, error) {
	posts, total, err := s.posts.List(ctx, opts)
	if err != nil {
		return nil, 0, pkgerrors.Wrap(fmt.Errorf("list posts failed: %w", err), pkgerrors.DatabaseError)
	}
	s.refreshNames(ctx, posts)
	return posts, total, nil
}

func (s *PostService) Get(ctx context.Context, id string) (*model.Post, error) {
	post, err := s.posts.GetByID(ctx, strings.TrimSpace(id))
	if err != nil {
		return nil, mapPostError(err, "get post failed")
	}
	posts := []model.Post{*post}
	s.refreshNames(ctx, posts)
	return &posts[0], nil
}

func (s *PostService) Create(ctx context.Context, input CreatePostInput) (*model.Post, error) {
	title := strings.TrimSpace(input.Title)
	content := strings.TrimSpace(input.Content)
	if title == "" || content == "" {
		return nil, pkgerrors.New(pkgerrors.RequiredFieldEmpty).WithMessage("Title and content are required")
	}
	if len(title) > maxTitleLength {
		return nil, pkgerrors.Newf(pkgerrors.ValidationFailed, "title must be at most %d characters", maxTitleLength)
	}
	if len(content) > maxContentLength {
		return nil, pkgerrors.Newf(pkgerrors.ValidationFailed, "content must be at most %d characters", maxContentLength)
	}
	tags := NormalizeTags(input.Tags)
	if len(tags) > maxTags {
		return nil, pkgerrors.Newf(pkgerrors.ValidationFailed, "at most %d tags are allowed", maxTags)
	}

	author, err := s.authors.LookupAuthor(ctx, input.UserID)
	if err != nil {
		return nil, err
	}
	post := &model.Post{
		UserID:   input.UserID,
		Author:   author,
		Title:    title,
		Content:  content,
		Tags:     tags,
		Comments: []model.Comment{},
	}
	if err := s.posts.Create(ctx, post); err != nil {
		return nil, pkgerrors.Wrap(fmt.Errorf("create post failed: %w", err), pkgerrors.PostCreateFailed)
	}
	s.invalidateProfile(ctx, input.UserID)
	return post, nil
}

func (s *PostService) AddComment(ctx context.Context, input AddCommentInput) (*model.Post, error) {
	text := strings.TrimSpace(input.Text)
	if text == "" {
		return nil, pkgerrors.New(pkgerrors.RequiredFieldEmpty).WithMessage("Comment text is required")
	}
	if len(text) > maxCommentLength {
		return nil, pkgerrors.Newf(pkgerrors.ValidationFailed, "comment must be at most %d characters", maxCommentLength)
	}
	author, err := s.authors.LookupAuthor(ctx, input.UserID)
	if err != nil {
		return nil, err
	}
	comment := model.Comment{
		UserID:    input.UserID,
		Name:      author.DisplayName(),
		Text:      text,
		CreatedAt: s.now(),
	}
	post, err := s.posts.AddComment(ctx, strings.TrimSpace(input.PostID), comment)
	if err != nil {
		return nil, mapPostError(err, "add comment failed")
	}
	return post, nil
}

// refreshNames replaces the author and commenter names stored on posts with
// the users' current names. A user that cannot be resolved keeps the stored name.
func (s *PostService) refreshNames(ctx context.Context, posts []model.Post) {
	if s.authors == nil || len(posts) == 0 {
		return
	}
	ids := make(map[int64]struct{})
	for _, post := range posts {
		ids[post.UserID] = struct{}{}
		for _, c := range post.Comments {
			ids[c.UserID] = struct{}{}
		}
	}

	var mu sync.Mutex
	current := make(map[int64]model.Author, len(ids))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(authorLookupConcurrency)
	for id := range ids {
		g.Go(func() error {
			author, err := s.authors.LookupAuthor(gctx, id)
			if err != nil {
				if !pkgerrors.Is(err, pkgerrors.UserNotFound) {
					logger.Warn(ctx, "lookup post author failed", zap.Int64("user_id", id), zap.Error(err))
				}
				return nil
			}
			mu.Lock()
			current[id] = author
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()

	for i := range posts {
		if author, ok := current[posts[i].UserID]; ok {
			posts[i].Author = author
		}
		for j := range posts[i].Comments {
			if author, ok := current[posts[i].Comments[j].UserID]; ok {
				posts[i].Comments[j].Name = author.DisplayName()
			}
		}
	}
}

// NormalizeTags trims, splits comma-joined entries and drops blanks and duplicates.
func NormalizeTags(raw []string) []string {
	tags := make([]string, 0, len(raw))
	seen := make(map[string]struct{}, len(raw))
	for _, entry := range raw {
		for _, tag := range strings.Split(entry, ",") {
			tag = strings.TrimSpace(tag)
			if tag == "" {
				continue
			}
			if _, ok := seen[tag]; ok {
				continue
			}
			seen[tag] = struct{}{}
			tags = append(tags, tag)
		}
	}
	return tags
}

func (s *PostService) invalidateProfile(ctx context.Context, userID int64) {
	if s.profiles == nil {
		return
	}
	if err := s.profiles.InvalidateProfile(ctx, userID); err != nil {
		logger.Warn(ctx, "invalidate profile cache failed", zap.Int64("user_id", userID), zap.Error(err))
	}
}

func mapPostError(err error, op string) error {
	if errors.Is(err, repository.ErrPostNotFound) || errors.Is(err, repository.ErrInvalidID) {
		return pkgerrors.New(pkgerrors.PostNotFound).WithMessage("Post not found")
	}
	return pkgerrors.Wrap(fmt.Errorf("%s: %w", op, err), pkgerrors.DatabaseError)
}
