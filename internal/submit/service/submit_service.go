package service

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"codearena/internal/common/cache"
	"codearena/internal/common/db"
	"codearena/internal/common/ratelimit"
	judgemodel "codearena/internal/judge/model"
	problemmodel "codearena/internal/problem/model"
	problemrepo "codearena/internal/problem/repository"
	"codearena/internal/submit/model"
	"codearena/internal/submit/repository"
	appErr "codearena/pkg/errors"
	"codearena/pkg/utils/logger"

	"go.uber.org/zap"
)

const (
	idempotencyKeyPrefix  = "submit:idempotency:"
	rateUserKeyPrefix     = "submit:rate:user:"
	processingMarker      = "processing"
	defaultIdempotencyTTL = 10 * time.Minute
	defaultMaxCodeBytes   = 64 * 1024
)

// ProblemSource loads the problem a submission targets.
type ProblemSource interface {
	GetByID(ctx context.Context, tx db.Transaction, problemID int64) (*problemmodel.Problem, error)
}

// JudgeRunner runs a batch of submissions to completion.
type JudgeRunner interface {
	Run(ctx context.Context, subs []judgemodel.Submission) ([]judgemodel.Result, error)
}

// SolvedRecorder records that a user solved a problem.
type SolvedRecorder interface {
	MarkSolved(ctx context.Context, tx db.Transaction, userID, problemID int64) (bool, error)
}

// JudgedPublisher announces finished submissions.
type JudgedPublisher interface {
	PublishJudged(ctx context.Context, event model.JudgedEvent) error
}

// TimeoutConfig holds timeout settings for external calls.
type TimeoutConfig struct {
	DB    time.Duration
	Cache time.Duration
}

// Config holds submit service dependencies and settings.
type Config struct {
	DBProvider  db.Provider
	Submissions repository.SubmissionRepository
	Problems    ProblemSource
	Judge       JudgeRunner
	Solved      SolvedRecorder
	Cache       cache.BasicOps
	Limiter     ratelimit.Limiter
	Events      JudgedPublisher

	MaxCodeBytes   int
	IdempotencyTTL time.Duration
	Timeouts       TimeoutConfig
}

// SubmitService runs code against a problem's test cases and records verdicts.
type SubmitService struct {
	dbProvider  db.Provider
	submissions repository.SubmissionRepository
	problems    ProblemSource
	judge       JudgeRunner
	solved      SolvedRecorder
	cache       cache.BasicOps
	limiter     ratelimit.Limiter
	events      JudgedPublisher

	maxCodeBytes   int
	idempotencyTTL time.Duration
	timeouts       TimeoutConfig
	now            func() time.Time
}

// CodeInput is the code a user asks to run or submit.
type CodeInput struct {
	UserID         int64
	ProblemID      int64
	Code           string
	Language       string
	IdempotencyKey string
}

// CaseResult is the per-case report of a run.
type CaseResult struct {
	Stdin          string  `json:"stdin"`
	ExpectedOutput string  `json:"expected_output"`
	Stdout         string  `json:"stdout"`
	StatusID       int     `json:"status_id"`
	Status         string  `json:"status"`
	Time           float64 `json:"time"`
	Memory         int64   `json:"memory"`
	Stderr         string  `json:"stderr,omitempty"`
	CompileOutput  string  `json:"compile_output,omitempty"`
}

// RunResult is returned by Run. Nothing is persisted for a run.
type RunResult struct {
	Success   bool         `json:"success"`
	TestCases []CaseResult `json:"testCases"`
	Runtime   float64      `json:"runtime"`
	Memory    int64        `json:"memory"`
}

// SubmitResult is returned by Submit.
type SubmitResult struct {
	SubmissionID    int64   `json:"submissionId"`
	Accepted        bool    `json:"accepted"`
	TotalTestCases  int     `json:"totalTestCases"`
	PassedTestCases int     `json:"passedTestCases"`
	Runtime         float64 `json:"runtime"`
	Memory          int64   `json:"memory"`
	Error           string  `json:"error,omitempty"`
}

// NewSubmitService creates a new submit service.
func NewSubmitService(cfg Config) (*SubmitService, error) {
	if cfg.Submissions == nil {
		return nil, fmt.Errorf("submission repository is required")
	}
	if cfg.Problems == nil {
		return nil, fmt.Errorf("problem source is required")
	}
	if cfg.Judge == nil {
		return nil, fmt.Errorf("judge is required")
	}
	if cfg.MaxCodeBytes <= 0 {
		cfg.MaxCodeBytes = defaultMaxCodeBytes
	}
	if cfg.IdempotencyTTL <= 0 {
		cfg.IdempotencyTTL = defaultIdempotencyTTL
	}
	return &SubmitService{
		dbProvider:     cfg.DBProvider,
		submissions:    cfg.Submissions,
		problems:       cfg.Problems,
		judge:          cfg.Judge,
		solved:         cfg.Solved,
		cache:          cfg.Cache,
		limiter:        cfg.Limiter,
		events:         cfg.Events,
		maxCodeBytes:   cfg.MaxCodeBytes,
		idempotencyTTL: cfg.IdempotencyTTL,
		timeouts:       cfg.Timeouts,
		now:            time.Now,
	}, nil
}

// Run judges code against the visible test cases and reports every case.
func (s *SubmitService) Run(ctx context.Context, input CodeInput) (*RunResult, error) {
	languageID, err := s.validateInput(input)
	if err != nil {
		return nil, err
	}
	problem, err := s.loadProblem(ctx, input.ProblemID)
	if err != nil {
		return nil, err
	}
	cases := make([]judgemodel.Case, 0, len(problem.VisibleTestCases))
	for _, tc := range problem.VisibleTestCases {
		cases = append(cases, judgemodel.Case{Input: tc.Input, Output: tc.Output})
	}
	if len(cases) == 0 {
		return nil, appErr.New(appErr.TestCaseInvalid).WithMessage("problem has no visible test cases")
	}
	subs := judgemodel.BuildSubmissions(input.Code, languageID, cases)
	results, err := s.judge.Run(ctx, subs)
	if err != nil {
		return nil, judgeError(err)
	}

	outcome := Evaluate(results)
	report := &RunResult{
		Success:   outcome.Accepted(),
		TestCases: make([]CaseResult, 0, len(results)),
		Runtime:   outcome.Runtime,
		Memory:    outcome.Memory,
	}
	for i, r := range results {
		report.TestCases = append(report.TestCases, CaseResult{
			Stdin:          subs[i].Stdin,
			ExpectedOutput: subs[i].ExpectedOutput,
			Stdout:         judgemodel.Deref(r.Stdout),
			StatusID:       int(r.StatusID),
			Status:         r.StatusDescription(),
			Time:           r.Seconds(),
			Memory:         r.MemoryKB(),
			Stderr:         judgemodel.Deref(r.Stderr),
			CompileOutput:  judgemodel.Deref(r.CompileOutput),
		})
	}
	return report, nil
}

// Submit judges code against the hidden test cases and stores the verdict.
func (s *SubmitService) Submit(ctx context.Context, input CodeInput) (*SubmitResult, error) {
	languageID, err := s.validateInput(input)
	if err != nil {
		return nil, err
	}
	// A retry of a finished submission replays it without spending rate limit budget.
	idemKey := scopedIdempotencyKey(input.UserID, input.IdempotencyKey)
	recordedID, err := s.lookupIdempotency(ctx, idemKey)
	if err != nil {
		return nil, err
	}
	if recordedID > 0 {
		return s.replay(ctx, input.UserID, recordedID)
	}

	if err := s.checkRateLimit(ctx, input.UserID); err != nil {
		return nil, err
	}
	problem, err := s.loadProblem(ctx, input.ProblemID)
	if err != nil {
		return nil, err
	}

	acquired, existingID, err := s.acquireIdempotency(ctx, idemKey)
	if err != nil {
		return nil, err
	}
	if !acquired && existingID > 0 {
		return s.replay(ctx, input.UserID, existingID)
	}

	cases := make([]judgemodel.Case, 0, len(problem.HiddenTestCases))
	for _, tc := range problem.HiddenTestCases {
		cases = append(cases, judgemodel.Case{Input: tc.Input, Output: tc.Output})
	}
	if len(cases) == 0 {
		s.releaseIdempotency(ctx, idemKey, acquired)
		return nil, appErr.New(appErr.TestCaseInvalid).WithMessage("problem has no hidden test cases")
	}

	submission := &repository.Submission{
		UserID:         input.UserID,
		ProblemID:      input.ProblemID,
		Code:           input.Code,
		Language:       strings.ToLower(strings.TrimSpace(input.Language)),
		Status:         repository.StatusPending,
		TestCasesTotal: len(cases),
		CreatedAt:      s.now(),
	}
	if err := s.createSubmission(ctx, submission); err != nil {
		s.releaseIdempotency(ctx, idemKey, acquired)
		return nil, err
	}

	results, err := s.judge.Run(ctx, judgemodel.BuildSubmissions(input.Code, languageID, cases))
	if err != nil {
		s.markFailed(ctx, submission, err)
		s.releaseIdempotency(ctx, idemKey, acquired)
		return nil, judgeError(err)
	}

	outcome := Evaluate(results)
	outcome.apply(submission)
	firstSolve, err := s.storeVerdict(ctx, submission, outcome)
	if err != nil {
		s.releaseIdempotency(ctx, idemKey, acquired)
		return nil, err
	}
	s.finalizeIdempotency(ctx, idemKey, submission.ID, acquired)

	logger.Info(ctx, "submission judged",
		zap.Int64("submission_id", submission.ID),
		zap.Int64("problem_id", submission.ProblemID),
		zap.String("status", submission.Status),
		zap.Int("passed", outcome.Passed),
		zap.Int("total", outcome.Total),
	)
	s.publishJudged(ctx, submission, firstSolve)
	return resultFromSubmission(submission), nil
}

// Get returns a submission visible to the requester.
func (s *SubmitService) Get(ctx context.Context, requesterID int64, isAdmin bool, submissionID int64) (*repository.Submission, error) {
	ctxDB := withTimeout(ctx, s.timeouts.DB)
	defer ctxDB.cancel()
	submission, err := s.submissions.GetByID(ctxDB.ctx, nil, submissionID)
	if err != nil {
		if errors.Is(err, repository.ErrSubmissionNotFound) {
			return nil, appErr.New(appErr.SubmissionNotFound).WithMessage("Submission not found")
		}
		return nil, appErr.Wrapf(err, appErr.DatabaseError, "get submission failed")
	}
	if submission.UserID != requesterID && !isAdmin {
		return nil, appErr.New(appErr.PermissionDenied).WithMessage("You can only view your own submissions")
	}
	return submission, nil
}

// ListForProblem returns the user's submissions for a problem, newest first.
func (s *SubmitService) ListForProblem(ctx context.Context, userID, problemID int64) ([]repository.Submission, error) {
	if problemID <= 0 {
		return nil, appErr.ValidationError("problem_id", "required")
	}
	ctxDB := withTimeout(ctx, s.timeouts.DB)
	defer ctxDB.cancel()
	items, err := s.submissions.ListByUserProblem(ctxDB.ctx, userID, problemID)
	if err != nil {
		return nil, appErr.Wrapf(err, appErr.DatabaseError, "list submissions failed")
	}
	return items, nil
}

func (s *SubmitService) validateInput(input CodeInput) (int, error) {
	if input.ProblemID <= 0 {
		return 0, appErr.ValidationError("problem_id", "required")
	}
	if input.UserID <= 0 {
		return 0, appErr.ValidationError("user_id", "required")
	}
	if strings.TrimSpace(input.Language) == "" {
		return 0, appErr.ValidationError("language", "required")
	}
	if strings.TrimSpace(input.Code) == "" {
		return 0, appErr.ValidationError("code", "required")
	}
	if s.maxCodeBytes > 0 && len(input.Code) > s.maxCodeBytes {
		return 0, appErr.New(appErr.CodeTooLarge).WithMessage("source code too large")
	}
	return judgemodel.LanguageID(input.Language)
}

func (s *SubmitService) loadProblem(ctx context.Context, problemID int64) (*problemmodel.Problem, error) {
	ctxDB := withTimeout(ctx, s.timeouts.DB)
	defer ctxDB.cancel()
	problem, err := s.problems.GetByID(ctxDB.ctx, nil, problemID)
	if err != nil {
		if errors.Is(err, problemrepo.ErrProblemNotFound) {
			return nil, appErr.New(appErr.ProblemNotFound)
		}
		return nil, appErr.Wrapf(err, appErr.DatabaseError, "get problem failed")
	}
	return problem, nil
}

func (s *SubmitService) checkRateLimit(ctx context.Context, userID int64) error {
	if s.limiter == nil {
		return nil
	}
	err := s.limiter.Allow(ctx, rateUserKeyPrefix+strconv.FormatInt(userID, 10))
	if err == nil {
		return nil
	}
	if appErr.Is(err, appErr.TooManyRequests) {
		return appErr.New(appErr.SubmitTooFrequently)
	}
	return err
}

func (s *SubmitService) createSubmission(ctx context.Context, submission *repository.Submission) error {
	ctxDB := withTimeout(ctx, s.timeouts.DB)
	defer ctxDB.cancel()
	if _, err := s.submissions.Create(ctxDB.ctx, nil, submission); err != nil {
		return appErr.Wrapf(err, appErr.SubmissionCreateFailed, "create submission failed")
	}
	return nil
}

// storeVerdict updates the submission and, on acceptance, the solved set in one transaction.
func (s *SubmitService) storeVerdict(ctx context.Context, submission *repository.Submission, outcome Outcome) (bool, error) {
	firstSolve := false
	err := db.RunInTransaction(ctx, s.dbProvider, func(tx db.Transaction) error {
		if err := s.submissions.UpdateResult(ctx, tx, submission); err != nil {
			return fmt.Errorf("update submission failed: %w", err)
		}
		if !outcome.Accepted() || s.solved == nil {
			return nil
		}
		added, err := s.solved.MarkSolved(ctx, tx, submission.UserID, submission.ProblemID)
		if err != nil {
			return fmt.Errorf("mark solved failed: %w", err)
		}
		firstSolve = added
		return nil
	})
	if err != nil {
		return false, appErr.Wrapf(err, appErr.DatabaseError, "store verdict failed")
	}
	return firstSolve, nil
}

// markFailed records a judge outage on the pending submission.
func (s *SubmitService) markFailed(ctx context.Context, submission *repository.Submission, cause error) {
	submission.Status = repository.StatusError
	submission.ErrorMessage = appErr.GetError(cause).Message
	ctxDB := withTimeout(context.WithoutCancel(ctx), s.timeouts.DB)
	defer ctxDB.cancel()
	if err := s.submissions.UpdateResult(ctxDB.ctx, nil, submission); err != nil {
		logger.Warn(ctx, "mark submission failed", zap.Int64("submission_id", submission.ID), zap.Error(err))
	}
}

func (s *SubmitService) replay(ctx context.Context, userID, submissionID int64) (*SubmitResult, error) {
	submission, err := s.Get(ctx, userID, false, submissionID)
	if err != nil {
		return nil, err
	}
	if !submission.Final() {
		return nil, appErr.New(appErr.SubmissionInProgress)
	}
	return resultFromSubmission(submission), nil
}

func (s *SubmitService) publishJudged(ctx context.Context, submission *repository.Submission, firstSolve bool) {
	if s.events == nil {
		return
	}
	event := model.JudgedEvent{
		EventType:       model.SubmissionJudgedEvent,
		SubmissionID:    submission.ID,
		UserID:          submission.UserID,
		ProblemID:       submission.ProblemID,
		Status:          submission.Status,
		Accepted:        submission.Status == repository.StatusAccepted,
		FirstSolve:      firstSolve,
		TestCasesPassed: submission.TestCasesPassed,
		TestCasesTotal:  submission.TestCasesTotal,
		JudgedAt:        s.now().UTC(),
	}
	if err := s.events.PublishJudged(ctx, event); err != nil {
		logger.Warn(ctx, "publish judged event failed", zap.Int64("submission_id", submission.ID), zap.Error(err))
	}
}

// lookupIdempotency returns the submission already recorded under key, or 0.
func (s *SubmitService) lookupIdempotency(ctx context.Context, key string) (int64, error) {
	if key == "" || s.cache == nil {
		return 0, nil
	}
	ctxCache := withTimeout(ctx, s.timeouts.Cache)
	defer ctxCache.cancel()
	existing, err := s.cache.Get(ctxCache.ctx, key)
	if err != nil {
		return 0, appErr.Wrapf(err, appErr.CacheError, "read idempotency key failed")
	}
	return parseSubmissionID(existing), nil
}

func (s *SubmitService) acquireIdempotency(ctx context.Context, key string) (bool, int64, error) {
	if key == "" || s.cache == nil {
		return true, 0, nil
	}
	ctxCache := withTimeout(ctx, s.timeouts.Cache)
	defer ctxCache.cancel()

	existing, err := s.cache.Get(ctxCache.ctx, key)
	if err != nil {
		return false, 0, appErr.Wrapf(err, appErr.CacheError, "read idempotency key failed")
	}
	if id := parseSubmissionID(existing); id > 0 {
		return false, id, nil
	}
	ok, err := s.cache.SetNX(ctxCache.ctx, key, processingMarker, s.idempotencyTTL)
	if err != nil {
		return false, 0, appErr.Wrapf(err, appErr.CacheError, "reserve idempotency key failed")
	}
	if ok {
		return true, 0, nil
	}
	existing, err = s.cache.Get(ctxCache.ctx, key)
	if err != nil {
		return false, 0, appErr.Wrapf(err, appErr.CacheError, "read idempotency key failed")
	}
	if id := parseSubmissionID(existing); id > 0 {
		return false, id, nil
	}
	return false, 0, appErr.New(appErr.SubmissionInProgress)
}

func (s *SubmitService) finalizeIdempotency(ctx context.Context, key string, submissionID int64, acquired bool) {
	if !acquired || key == "" || s.cache == nil {
		return
	}
	ctxCache := withTimeout(ctx, s.timeouts.Cache)
	defer ctxCache.cancel()
	if err := s.cache.Set(ctxCache.ctx, key, strconv.FormatInt(submissionID, 10), s.idempotencyTTL); err != nil {
		logger.Warn(ctx, "update idempotency key failed", zap.Error(err))
	}
}

func (s *SubmitService) releaseIdempotency(ctx context.Context, key string, acquired bool) {
	if !acquired || key == "" || s.cache == nil {
		return
	}
	ctxCache := withTimeout(context.WithoutCancel(ctx), s.timeouts.Cache)
	defer ctxCache.cancel()
	if err := s.cache.Del(ctxCache.ctx, key); err != nil {
		logger.Warn(ctx, "release idempotency key failed", zap.Error(err))
	}
}

func scopedIdempotencyKey(userID int64, key string) string {
	key = strings.TrimSpace(key)
	if key == "" {
		return ""
	}
	return idempotencyKeyPrefix + strconv.FormatInt(userID, 10) + ":" + key
}

func parseSubmissionID(v string) int64 {
	if v == "" || v == processingMarker {
		return 0
	}
	id, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return 0
	}
	return id
}

func resultFromSubmission(s *repository.Submission) *SubmitResult {
	return &SubmitResult{
		SubmissionID:    s.ID,
		Accepted:        s.Status == repository.StatusAccepted,
		TotalTestCases:  s.TestCasesTotal,
		PassedTestCases: s.TestCasesPassed,
		Runtime:         s.Runtime,
		Memory:          s.Memory,
		Error:           s.ErrorMessage,
	}
}

// judgeError keeps judge-specific codes and maps anything else to JudgeSystemError.
func judgeError(err error) error {
	switch appErr.GetCode(err) {
	case appErr.JudgeSystemError, appErr.JudgeTimeout, appErr.ServiceUnavailable, appErr.InvalidParams:
		return err
	}
	return appErr.Wrapf(err, appErr.JudgeSystemError, "judge request failed")
}

type timeoutCtx struct {
	ctx    context.Context
	cancel context.CancelFunc
}

func withTimeout(ctx context.Context, timeout time.Duration) timeoutCtx {
	if timeout <= 0 {
		return timeoutCtx{ctx: ctx, cancel: func() {}}
	}
	ctxTimeout, cancel := context.WithTimeout(ctx, timeout)
	return timeoutCtx{ctx: ctxTimeout, cancel: cancel}
}
