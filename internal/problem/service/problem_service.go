package service

import (
	"context"
	stderrors "errors"
	"fmt"
	"strings"

	"codearena/internal/common/db"
	judgemodel "codearena/internal/judge/model"
	"codearena/internal/problem/model"
	"codearena/internal/problem/repository"
	userrepo "codearena/internal/user/repository"
	pkgerrors "codearena/pkg/errors"
	pkgrepo "codearena/pkg/repository"
	"codearena/pkg/utils/logger"

	"go.uber.org/zap"
)

const (
	maxTitleLength       = 200
	maxDescriptionLength = 20000
)

// JudgeRunner runs a batch of submissions to completion.
type JudgeRunner interface {
	Run(ctx context.Context, subs []judgemodel.Submission) ([]judgemodel.Result, error)
}

// VideoSource exposes the solution video attached to a problem.
type VideoSource interface {
	// PlaybackForProblem returns nil when the problem has no video.
	PlaybackForProblem(ctx context.Context, problemID int64) (*model.VideoPlayback, error)
	DeleteByProblem(ctx context.Context, tx db.Transaction, problemID int64) error
}

// CleanupScheduler arranges removal of a deleted problem's stored objects.
type CleanupScheduler interface {
	PublishProblemDeleted(ctx context.Context, problemID int64) error
}

type ProblemServiceDeps struct {
	DBProvider db.Provider
	Problems   repository.ProblemRepository
	Solved     userrepo.SolvedRepository
	Videos     VideoSource
	Judge      JudgeRunner
	Cleanup    CleanupScheduler
}

// ProblemService manages the problem catalogue.
type ProblemService struct {
	dbProvider db.Provider
	problems   repository.ProblemRepository
	solved     userrepo.SolvedRepository
	videos     VideoSource
	judge      JudgeRunner
	cleanup    CleanupScheduler
}

func NewProblemService(deps ProblemServiceDeps) *ProblemService {
	return &ProblemService{
		dbProvider: deps.DBProvider,
		problems:   deps.Problems,
		solved:     deps.Solved,
		videos:     deps.Videos,
		judge:      deps.Judge,
		cleanup:    deps.Cleanup,
	}
}

// ProblemInput is the writable part of a problem.
type ProblemInput struct {
	Title             string
	Description       string
	Difficulty        model.Difficulty
	Constraints       string
	Tags              []string
	VisibleTestCases  []model.VisibleTestCase
	HiddenTestCases   []model.HiddenTestCase
	StartCode         []model.StartCode
	ReferenceSolution []model.ReferenceSolution
}

// Detail is the problem as shown to solvers. Hidden test cases are never included.
type Detail struct {
	ID                int64                     `json:"_id"`
	Title             string                    `json:"title"`
	Description       string                    `json:"description"`
	Difficulty        model.Difficulty          `json:"difficulty"`
	Constraints       string                    `json:"constraints"`
	Tags              []string                  `json:"tags"`
	VisibleTestCases  []model.VisibleTestCase   `json:"visibleTestCases"`
	StartCode         []model.StartCode         `json:"startCode"`
	ReferenceSolution []model.ReferenceSolution `json:"referenceSolution"`
	SecureURL         string                    `json:"secureUrl,omitempty"`
	ThumbnailURL      string                    `json:"thumbnailUrl,omitempty"`
	Duration          int                       `json:"duration,omitempty"`
}

func (s *ProblemService) Create(ctx context.Context, creatorID int64, input ProblemInput) (*model.Problem, error) {
	normalizeInput(&input)
	if err := validateInput(input); err != nil {
		return nil, err
	}
	if err := s.verifyReferenceSolutions(ctx, input); err != nil {
		return nil, err
	}
	problem := input.toProblem()
	problem.ProblemCreator = creatorID
	if _, err := s.problems.Create(ctx, nil, problem); err != nil {
		return nil, pkgerrors.Wrap(fmt.Errorf("create problem failed: %w", err), pkgerrors.ProblemCreateFailed)
	}
	logger.Info(ctx, "problem created", zap.Int64("problem_id", problem.ID), zap.Int64("creator_id", creatorID))
	return problem, nil
}

func (s *ProblemService) Update(ctx context.Context, problemID int64, input ProblemInput) (*model.Problem, error) {
	existing, err := s.getProblem(ctx, nil, problemID)
	if err != nil {
		return nil, err
	}
	normalizeInput(&input)
	if err := validateInput(input); err != nil {
		return nil, err
	}
	if err := s.verifyReferenceSolutions(ctx, input); err != nil {
		return nil, err
	}
	problem := input.toProblem()
	problem.ID = existing.ID
	problem.ProblemCreator = existing.ProblemCreator
	problem.CreatedAt = existing.CreatedAt
	if err := s.problems.Update(ctx, nil, problem); err != nil {
		return nil, pkgerrors.Wrap(fmt.Errorf("update problem failed: %w", err), pkgerrors.ProblemUpdateFailed)
	}
	return problem, nil
}

// Delete removes the problem with its solved rows and video metadata, then schedules object cleanup.
func (s *ProblemService) Delete(ctx context.Context, problemID int64) error {
	if problemID <= 0 {
		return pkgerrors.New(pkgerrors.InvalidParams).WithMessage("Invalid problem id")
	}
	err := db.RunInTransaction(ctx, s.dbProvider, func(tx db.Transaction) error {
		if s.solved != nil {
			if err := s.solved.DeleteByProblem(ctx, tx, problemID); err != nil {
				return fmt.Errorf("delete solved rows failed: %w", err)
			}
		}
		if s.videos != nil {
			if err := s.videos.DeleteByProblem(ctx, tx, problemID); err != nil {
				return fmt.Errorf("delete video metadata failed: %w", err)
			}
		}
		return s.problems.Delete(ctx, tx, problemID)
	})
	if err != nil {
		if stderrors.Is(err, repository.ErrProblemNotFound) {
			return pkgerrors.New(pkgerrors.ProblemNotFound)
		}
		return pkgerrors.Wrap(fmt.Errorf("delete problem failed: %w", err), pkgerrors.ProblemDeleteFailed)
	}
	// The cached detail is dropped only after the delete has committed.
	if err := s.problems.InvalidateCache(ctx, problemID); err != nil {
		logger.Warn(ctx, "invalidate problem cache failed", zap.Int64("problem_id", problemID), zap.Error(err))
	}
	if s.cleanup != nil {
		if err := s.cleanup.PublishProblemDeleted(ctx, problemID); err != nil {
			logger.Warn(ctx, "schedule problem cleanup failed", zap.Int64("problem_id", problemID), zap.Error(err))
		}
	}
	return nil
}

// Get returns the solver view of a problem with its solution video, if any.
func (s *ProblemService) Get(ctx context.Context, problemID int64) (*Detail, error) {
	problem, err := s.getProblem(ctx, nil, problemID)
	if err != nil {
		return nil, err
	}
	detail := &Detail{
		ID:                problem.ID,
		Title:             problem.Title,
		Description:       problem.Description,
		Difficulty:        problem.Difficulty,
		Constraints:       problem.Constraints,
		Tags:              problem.Tags,
		VisibleTestCases:  problem.VisibleTestCases,
		StartCode:         problem.StartCode,
		ReferenceSolution: problem.ReferenceSolution,
	}
	if s.videos != nil {
		video, err := s.videos.PlaybackForProblem(ctx, problemID)
		if err != nil {
			logger.Warn(ctx, "load solution video failed", zap.Int64("problem_id", problemID), zap.Error(err))
		} else if video != nil {
			detail.SecureURL = video.SecureURL
			detail.ThumbnailURL = video.ThumbnailURL
			detail.Duration = video.Duration
		}
	}
	return detail, nil
}

// List returns problem summaries. An empty result, including a page past the
// last one, is reported as ProblemListEmpty.
func (s *ProblemService) List(ctx context.Context, opts pkgrepo.ListOptions) ([]model.Summary, int64, error) {
	items, total, err := s.problems.List(ctx, opts)
	if err != nil {
		return nil, 0, pkgerrors.Wrap(fmt.Errorf("list problems failed: %w", err), pkgerrors.DatabaseError)
	}
	if len(items) == 0 {
		return nil, 0, pkgerrors.New(pkgerrors.ProblemListEmpty).WithMessage("Problem is Missing")
	}
	return items, total, nil
}

// SolvedByUser lists the problems userID has an accepted submission for.
func (s *ProblemService) SolvedByUser(ctx context.Context, userID int64) ([]userrepo.SolvedProblem, error) {
	if s.solved == nil {
		return []userrepo.SolvedProblem{}, nil
	}
	solved, err := s.solved.ListSolved(ctx, userID)
	if err != nil {
		return nil, pkgerrors.Wrap(fmt.Errorf("list solved problems failed: %w", err), pkgerrors.DatabaseError)
	}
	return solved, nil
}

// Exists reports whether problemID refers to a stored problem.
func (s *ProblemService) Exists(ctx context.Context, problemID int64) (bool, error) {
	ok, err := s.problems.Exists(ctx, nil, problemID)
	if err != nil {
		return false, pkgerrors.Wrap(fmt.Errorf("check problem failed: %w", err), pkgerrors.DatabaseError)
	}
	return ok, nil
}

func (s *ProblemService) getProblem(ctx context.Context, tx db.Transaction, problemID int64) (*model.Problem, error) {
	if problemID <= 0 {
		return nil, pkgerrors.New(pkgerrors.ProblemNotFound)
	}
	problem, err := s.problems.GetByID(ctx, tx, problemID)
	if err != nil {
		if stderrors.Is(err, repository.ErrProblemNotFound) {
			return nil, pkgerrors.New(pkgerrors.ProblemNotFound)
		}
		return nil, pkgerrors.Wrap(fmt.Errorf("get problem failed: %w", err), pkgerrors.DatabaseError)
	}
	return problem, nil
}

// verifyReferenceSolutions runs every reference solution against the visible cases.
func (s *ProblemService) verifyReferenceSolutions(ctx context.Context, input ProblemInput) error {
	if s.judge == nil {
		return pkgerrors.New(pkgerrors.ServiceUnavailable).WithMessage("judge is not configured")
	}
	cases := make([]judgemodel.Case, 0, len(input.VisibleTestCases))
	for _, tc := range input.VisibleTestCases {
		cases = append(cases, judgemodel.Case{Input: tc.Input, Output: tc.Output})
	}
	for _, ref := range input.ReferenceSolution {
		languageID, err := judgemodel.LanguageID(ref.Language)
		if err != nil {
			return err
		}
		results, err := s.judge.Run(ctx, judgemodel.BuildSubmissions(ref.CompleteCode, languageID, cases))
		if err != nil {
			return err
		}
		for i, r := range results {
			if !r.StatusID.Accepted() {
				return pkgerrors.Newf(pkgerrors.ReferenceSolutionFailed,
					"Error Occurred: %s reference solution failed test case %d: %s", ref.Language, i+1, r.StatusDescription())
			}
		}
	}
	return nil
}

func (in ProblemInput) toProblem() *model.Problem {
	return &model.Problem{
		Title:             in.Title,
		Description:       in.Description,
		Difficulty:        in.Difficulty,
		Constraints:       in.Constraints,
		Tags:              in.Tags,
		VisibleTestCases:  in.VisibleTestCases,
		HiddenTestCases:   in.HiddenTestCases,
		StartCode:         in.StartCode,
		ReferenceSolution: in.ReferenceSolution,
	}
}

func normalizeInput(in *ProblemInput) {
	in.Title = strings.TrimSpace(in.Title)
	in.Description = strings.TrimSpace(in.Description)
	in.Constraints = strings.TrimSpace(in.Constraints)
	in.Difficulty = model.Difficulty(strings.ToLower(strings.TrimSpace(string(in.Difficulty))))
	tags := make([]string, 0, len(in.Tags))
	for _, tag := range in.Tags {
		if tag = strings.TrimSpace(tag); tag != "" {
			tags = append(tags, tag)
		}
	}
	in.Tags = tags
	for i := range in.StartCode {
		in.StartCode[i].Language = strings.ToLower(strings.TrimSpace(in.StartCode[i].Language))
	}
	for i := range in.ReferenceSolution {
		in.ReferenceSolution[i].Language = strings.ToLower(strings.TrimSpace(in.ReferenceSolution[i].Language))
	}
}

func validateInput(in ProblemInput) error {
	switch {
	case in.Title == "":
		return pkgerrors.ValidationError("title", "required")
	case len(in.Title) > maxTitleLength:
		return pkgerrors.ValidationError("title", fmt.Sprintf("must be at most %d characters", maxTitleLength))
	case in.Description == "":
		return pkgerrors.ValidationError("description", "required")
	case len(in.Description) > maxDescriptionLength:
		return pkgerrors.ValidationError("description", fmt.Sprintf("must be at most %d characters", maxDescriptionLength))
	case len(in.Constraints) > maxDescriptionLength:
		return pkgerrors.ValidationError("constraints", fmt.Sprintf("must be at most %d characters", maxDescriptionLength))
	case !in.Difficulty.Valid():
		return pkgerrors.ValidationError("difficulty", "must be one of easy, medium, hard")
	case len(in.VisibleTestCases) == 0:
		return pkgerrors.ValidationError("visibleTestCases", "at least one visible test case is required")
	case len(in.HiddenTestCases) == 0:
		return pkgerrors.ValidationError("hiddenTestCases", "at least one hidden test case is required")
	case len(in.StartCode) == 0:
		return pkgerrors.ValidationError("startCode", "required")
	case len(in.ReferenceSolution) == 0:
		return pkgerrors.ValidationError("referenceSolution", "required")
	}
	for _, sc := range in.StartCode {
		if !judgemodel.SupportedLanguage(sc.Language) {
			return pkgerrors.New(pkgerrors.LanguageNotSupported).WithMessage("language not supported: " + sc.Language)
		}
	}
	for _, ref := range in.ReferenceSolution {
		if strings.TrimSpace(ref.CompleteCode) == "" {
			return pkgerrors.ValidationError("referenceSolution", "completeCode is required")
		}
	}
	return nil
}
