package repository

import (
	"context"
	"encoding/json"
	"errors"
	"strconv"
	"time"

	"codearena/internal/common/cache"
	"codearena/internal/common/db"
)

const (
	defaultSubmissionCacheTTL      = 30 * time.Minute
	defaultSubmissionCacheEmptyTTL = 5 * time.Minute
	submissionCacheKeyPrefix       = "submission:"
)

const (
	StatusPending  = "pending"
	StatusAccepted = "accepted"
	StatusWrong    = "wrong"
	StatusError    = "error"
)

var (
	ErrSubmissionNotFound = errors.New("submission not found")
)

// Schema creates the submissions table.
var Schema = []string{
	`CREATE TABLE IF NOT EXISTS submissions (
		id BIGINT NOT NULL AUTO_INCREMENT PRIMARY KEY,
		user_id BIGINT NOT NULL,
		problem_id BIGINT NOT NULL,
		code MEDIUMTEXT NOT NULL,
		language VARCHAR(32) NOT NULL,
		status VARCHAR(16) NOT NULL DEFAULT 'pending',
		runtime DOUBLE NOT NULL DEFAULT 0,
		memory BIGINT NOT NULL DEFAULT 0,
		error_message TEXT NULL,
		test_cases_passed INT NOT NULL DEFAULT 0,
		test_cases_total INT NOT NULL DEFAULT 0,
		created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
		updated_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP ON UPDATE CURRENT_TIMESTAMP,
		KEY submissions_user_problem_idx (user_id, problem_id, created_at)
	) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4`,
}

// Submission is one judged attempt at a problem.
type Submission struct {
	ID              int64     `json:"_id"`
	UserID          int64     `json:"userId"`
	ProblemID       int64     `json:"problemId"`
	Code            string    `json:"code"`
	Language        string    `json:"language"`
	Status          string    `json:"status"`
	Runtime         float64   `json:"runtime"`
	Memory          int64     `json:"memory"`
	ErrorMessage    string    `json:"errorMessage,omitempty"`
	TestCasesPassed int       `json:"testCasesPassed"`
	TestCasesTotal  int       `json:"testCasesTotal"`
	CreatedAt       time.Time `json:"createdAt"`
	UpdatedAt       time.Time `json:"updatedAt"`
}

// Final reports whether judging has finished for the submission.
func (s *Submission) Final() bool {
	return s.Status != "" && s.Status != StatusPending
}

// SubmissionRepository defines submission persistence.
type SubmissionRepository interface {
	Create(ctx context.Context, tx db.Transaction, submission *Submission) (int64, error)
	// UpdateResult stores the judged outcome fields of submission.
	UpdateResult(ctx context.Context, tx db.Transaction, submission *Submission) error
	GetByID(ctx context.Context, tx db.Transaction, submissionID int64) (*Submission, error)
	// ListByUserProblem returns the user's attempts at a problem, newest first.
	ListByUserProblem(ctx context.Context, userID, problemID int64) ([]Submission, error)
	DeleteByUser(ctx context.Context, tx db.Transaction, userID int64) error
}

// MySQLSubmissionRepository implements SubmissionRepository with MySQL.
type MySQLSubmissionRepository struct {
	dbProvider db.Provider
	cache      cache.Cache
	ttl        time.Duration
	emptyTTL   time.Duration
}

// NewSubmissionRepository creates a submission repository with defaults.
func NewSubmissionRepository(provider db.Provider, cacheClient cache.Cache) SubmissionRepository {
	return NewSubmissionRepositoryWithTTL(provider, cacheClient, defaultSubmissionCacheTTL, defaultSubmissionCacheEmptyTTL)
}

// NewSubmissionRepositoryWithTTL creates a submission repository with custom TTL.
func NewSubmissionRepositoryWithTTL(provider db.Provider, cacheClient cache.Cache, ttl, emptyTTL time.Duration) SubmissionRepository {
	if ttl <= 0 {
		ttl = defaultSubmissionCacheTTL
	}
	if emptyTTL <= 0 {
		emptyTTL = defaultSubmissionCacheEmptyTTL
	}
	return &MySQLSubmissionRepository{
		dbProvider: provider,
		cache:      cacheClient,
		ttl:        ttl,
		emptyTTL:   emptyTTL,
	}
}

const submissionColumns = "id, user_id, problem_id, code, language, status, runtime, memory, error_message, test_cases_passed, test_cases_total, created_at, updated_at"

// Create inserts a submission record.
func (r *MySQLSubmissionRepository) Create(ctx context.Context, tx db.Transaction, submission *Submission) (int64, error) {
	if submission == nil {
		return 0, errors.New("submission is nil")
	}
	if submission.ProblemID <= 0 {
		return 0, errors.New("problemID is required")
	}
	if submission.UserID <= 0 {
		return 0, errors.New("userID is required")
	}
	if submission.Language == "" {
		return 0, errors.New("language is required")
	}
	if submission.Status == "" {
		submission.Status = StatusPending
	}

	querier, err := db.GetProviderQuerier(r.dbProvider, tx)
	if err != nil {
		return 0, err
	}
	query := `
		INSERT INTO submissions
		(user_id, problem_id, code, language, status, test_cases_total)
		VALUES (?, ?, ?, ?, ?, ?)
	`
	result, err := querier.Exec(ctx, query,
		submission.UserID,
		submission.ProblemID,
		submission.Code,
		submission.Language,
		submission.Status,
		submission.TestCasesTotal,
	)
	if err != nil {
		return 0, err
	}
	id, err := result.LastInsertId()
	if err != nil {
		return 0, err
	}
	submission.ID = id
	now := time.Now()
	if submission.CreatedAt.IsZero() {
		submission.CreatedAt = now
	}
	submission.UpdatedAt = now
	return id, nil
}

func (r *MySQLSubmissionRepository) UpdateResult(ctx context.Context, tx db.Transaction, submission *Submission) error {
	if submission == nil || submission.ID <= 0 {
		return errors.New("submission id is required")
	}
	querier, err := db.GetProviderQuerier(r.dbProvider, tx)
	if err != nil {
		return err
	}
	query := `
		UPDATE submissions
		SET status = ?, runtime = ?, memory = ?, error_message = ?, test_cases_passed = ?, test_cases_total = ?, updated_at = NOW()
		WHERE id = ?
	`
	result, err := querier.Exec(ctx, query,
		submission.Status,
		submission.Runtime,
		submission.Memory,
		nullableString(submission.ErrorMessage),
		submission.TestCasesPassed,
		submission.TestCasesTotal,
		submission.ID,
	)
	if err != nil {
		return err
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return ErrSubmissionNotFound
	}
	submission.UpdatedAt = time.Now()
	if r.cache != nil {
		r.setCache(ctx, submission)
	}
	return nil
}

// GetByID retrieves a submission by id.
func (r *MySQLSubmissionRepository) GetByID(ctx context.Context, tx db.Transaction, submissionID int64) (*Submission, error) {
	if submissionID <= 0 {
		return nil, ErrSubmissionNotFound
	}
	if r.cache != nil && tx == nil {
		submission, err := cache.GetWithCached[*Submission](
			ctx,
			r.cache,
			submissionCacheKey(submissionID),
			cache.JitterTTL(r.ttl),
			cache.JitterTTL(r.emptyTTL),
			func(submission *Submission) bool { return submission == nil },
			marshalSubmission,
			unmarshalSubmission,
			func(ctx context.Context) (*Submission, error) {
				submission, err := r.getByIDFromDB(ctx, nil, submissionID)
				if err != nil {
					if errors.Is(err, ErrSubmissionNotFound) {
						return nil, nil
					}
					return nil, err
				}
				return submission, nil
			},
		)
		if err != nil {
			return nil, err
		}
		if submission == nil {
			return nil, ErrSubmissionNotFound
		}
		return submission, nil
	}
	return r.getByIDFromDB(ctx, tx, submissionID)
}

func (r *MySQLSubmissionRepository) ListByUserProblem(ctx context.Context, userID, problemID int64) ([]Submission, error) {
	querier, err := db.GetProviderQuerier(r.dbProvider, nil)
	if err != nil {
		return nil, err
	}
	query := "SELECT " + submissionColumns + " FROM submissions WHERE user_id = ? AND problem_id = ? ORDER BY created_at DESC, id DESC"
	rows, err := querier.Query(ctx, query, userID, problemID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := make([]Submission, 0)
	for rows.Next() {
		submission, err := scanSubmission(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *submission)
	}
	return out, rows.Err()
}

// DeleteByUser removes every submission of userID and drops their cache entries.
func (r *MySQLSubmissionRepository) DeleteByUser(ctx context.Context, tx db.Transaction, userID int64) error {
	querier, err := db.GetProviderQuerier(r.dbProvider, tx)
	if err != nil {
		return err
	}
	var keys []string
	if r.cache != nil {
		rows, err := querier.Query(ctx, "SELECT id FROM submissions WHERE user_id = ?", userID)
		if err != nil {
			return err
		}
		for rows.Next() {
			var id int64
			if err := rows.Scan(&id); err != nil {
				rows.Close()
				return err
			}
			keys = append(keys, submissionCacheKey(id))
		}
		if err := rows.Err(); err != nil {
			rows.Close()
			return err
		}
		rows.Close()
	}
	if _, err := querier.Exec(ctx, "DELETE FROM submissions WHERE user_id = ?", userID); err != nil {
		return err
	}
	if len(keys) > 0 {
		_ = cache.Invalidate(ctx, r.cache, keys...)
	}
	return nil
}

func (r *MySQLSubmissionRepository) getByIDFromDB(ctx context.Context, tx db.Transaction, submissionID int64) (*Submission, error) {
	querier, err := db.GetProviderQuerier(r.dbProvider, tx)
	if err != nil {
		return nil, err
	}
	query := "SELECT " + submissionColumns + " FROM submissions WHERE id = ? LIMIT 1"
	submission, err := scanSubmission(querier.QueryRow(ctx, query, submissionID))
	if err != nil {
		if db.IsNoRows(err) {
			return nil, ErrSubmissionNotFound
		}
		return nil, err
	}
	return submission, nil
}

func scanSubmission(row db.Scanner) (*Submission, error) {
	submission := &Submission{}
	var errorMessage *string
	if err := row.Scan(
		&submission.ID,
		&submission.UserID,
		&submission.ProblemID,
		&submission.Code,
		&submission.Language,
		&submission.Status,
		&submission.Runtime,
		&submission.Memory,
		&errorMessage,
		&submission.TestCasesPassed,
		&submission.TestCasesTotal,
		&submission.CreatedAt,
		&submission.UpdatedAt,
	); err != nil {
		return nil, err
	}
	if errorMessage != nil {
		submission.ErrorMessage = *errorMessage
	}
	return submission, nil
}

func (r *MySQLSubmissionRepository) setCache(ctx context.Context, submission *Submission) {
	if submission == nil || r.cache == nil {
		return
	}
	payload := marshalSubmission(submission)
	if payload == "" {
		return
	}
	// A partial row would shadow the stored one, so drop instead of writing it.
	if submission.CreatedAt.IsZero() {
		_ = r.cache.Del(ctx, submissionCacheKey(submission.ID))
		return
	}
	_ = r.cache.Set(ctx, submissionCacheKey(submission.ID), payload, cache.JitterTTL(r.ttl))
}

func submissionCacheKey(submissionID int64) string {
	return submissionCacheKeyPrefix + strconv.FormatInt(submissionID, 10)
}

func nullableString(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}

func marshalSubmission(submission *Submission) string {
	if submission == nil {
		return ""
	}
	data, err := json.Marshal(submission)
	if err != nil {
		return ""
	}
	return string(data)
}

func unmarshalSubmission(data string) (*Submission, error) {
	if data == "" || data == cache.NullCacheValue {
		return nil, nil
	}
	var submission Submission
	if err := json.Unmarshal([]byte(data), &submission); err != nil {
		return nil, err
	}
	return &submission, nil
}
