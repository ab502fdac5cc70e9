package service

import (
	"context"
	"fmt"
	"time"

	"codearena/internal/judge/model"
	pkgerrors "codearena/pkg/errors"
	"codearena/pkg/utils/logger"

	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"
)

const (
	defaultPollInterval    = 500 * time.Millisecond
	defaultMaxPollInterval = 4 * time.Second
	defaultMaxPollAttempts = 30
	defaultMaxConcurrent   = 8
	defaultAcquireTimeout  = 5 * time.Second
)

// BatchClient is the subset of the Judge0 API the service needs.
type BatchClient interface {
	SubmitBatch(ctx context.Context, subs []model.Submission) ([]string, error)
	GetBatch(ctx context.Context, tokens []string) ([]model.Result, error)
}

// Config controls polling and concurrency.
type Config struct {
	PollInterval    time.Duration `yaml:"pollInterval"`
	MaxPollInterval time.Duration `yaml:"maxPollInterval"`
	MaxPollAttempts int           `yaml:"maxPollAttempts"`
	MaxConcurrent   int64         `yaml:"maxConcurrent"`
	AcquireTimeout  time.Duration `yaml:"acquireTimeout"`
}

func (c *Config) setDefaults() {
	if c.PollInterval <= 0 {
		c.PollInterval = defaultPollInterval
	}
	if c.MaxPollInterval < c.PollInterval {
		c.MaxPollInterval = defaultMaxPollInterval
		if c.MaxPollInterval < c.PollInterval {
			c.MaxPollInterval = c.PollInterval
		}
	}
	if c.MaxPollAttempts <= 0 {
		c.MaxPollAttempts = defaultMaxPollAttempts
	}
	if c.MaxConcurrent <= 0 {
		c.MaxConcurrent = defaultMaxConcurrent
	}
	if c.AcquireTimeout <= 0 {
		c.AcquireTimeout = defaultAcquireTimeout
	}
}

// Service runs batches of submissions against the judge and waits for verdicts.
type Service struct {
	client BatchClient
	cfg    Config
	sem    *semaphore.Weighted
	sleep  func(ctx context.Context, d time.Duration) error
}

func NewService(client BatchClient, cfg Config) (*Service, error) {
	if client == nil {
		return nil, fmt.Errorf("judge client is required")
	}
	cfg.setDefaults()
	return &Service{
		client: client,
		cfg:    cfg,
		sem:    semaphore.NewWeighted(cfg.MaxConcurrent),
		sleep:  sleepContext,
	}, nil
}

// Run submits subs as one batch and polls until every result is final.
func (s *Service) Run(ctx context.Context, subs []model.Submission) ([]model.Result, error) {
	if len(subs) == 0 {
		return nil, pkgerrors.New(pkgerrors.InvalidParams).WithMessage("no test cases to run")
	}
	if err := s.acquire(ctx); err != nil {
		return nil, err
	}
	defer s.sem.Release(1)

	tokens, err := s.client.SubmitBatch(ctx, subs)
	if err != nil {
		return nil, err
	}

	for attempt := 0; attempt < s.cfg.MaxPollAttempts; attempt++ {
		if err := s.sleep(ctx, ComputeBackoff(attempt, s.cfg.PollInterval, s.cfg.MaxPollInterval)); err != nil {
			return nil, pkgerrors.Wrap(err, pkgerrors.JudgeTimeout)
		}
		results, err := s.client.GetBatch(ctx, tokens)
		if err != nil {
			return nil, err
		}
		if allFinal(results) {
			return results, nil
		}
	}
	logger.Warn(ctx, "judge polling exhausted", zap.Int("attempts", s.cfg.MaxPollAttempts), zap.Int("batch_size", len(tokens)))
	return nil, pkgerrors.New(pkgerrors.JudgeTimeout).WithMessage("judge did not finish in time")
}

func (s *Service) acquire(ctx context.Context) error {
	acquireCtx, cancel := context.WithTimeout(ctx, s.cfg.AcquireTimeout)
	defer cancel()
	if err := s.sem.Acquire(acquireCtx, 1); err != nil {
		if ctx.Err() != nil {
			return pkgerrors.Wrap(ctx.Err(), pkgerrors.JudgeTimeout)
		}
		return pkgerrors.New(pkgerrors.ServiceUnavailable).WithMessage("judge is busy, try again later")
	}
	return nil
}

func allFinal(results []model.Result) bool {
	for _, r := range results {
		if r.StatusID.Pending() {
			return false
		}
	}
	return true
}

// ComputeBackoff doubles base per attempt, capped at max.
func ComputeBackoff(attempt int, base, max time.Duration) time.Duration {
	if base <= 0 {
		return 0
	}
	delay := base
	for i := 0; i < attempt; i++ {
		if max > 0 && delay > max/2 {
			return max
		}
		delay *= 2
	}
	if max > 0 && delay > max {
		return max
	}
	return delay
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
