package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"codearena/internal/common/cache"
	"codearena/internal/common/db"
	"codearena/internal/problem/model"
	pkgrepo "codearena/pkg/repository"
)

const (
	defaultProblemTTL      = 30 * time.Minute
	defaultProblemEmptyTTL = 5 * time.Minute
	problemDetailKeyPrefix = "problem:detail:"
)

var (
	ErrProblemNotFound = errors.New("problem not found")
)

// Schema creates the problems table.
var Schema = []string{
	`CREATE TABLE IF NOT EXISTS problems (
		id BIGINT NOT NULL AUTO_INCREMENT PRIMARY KEY,
		title VARCHAR(200) NOT NULL,
		description TEXT NOT NULL,
		difficulty VARCHAR(16) NOT NULL,
		constraints TEXT NOT NULL,
		tags JSON NOT NULL,
		visible_test_cases JSON NOT NULL,
		hidden_test_cases JSON NOT NULL,
		start_code JSON NOT NULL,
		reference_solution JSON NOT NULL,
		problem_creator BIGINT NOT NULL,
		created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
		updated_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP ON UPDATE CURRENT_TIMESTAMP,
		KEY problems_created_idx (created_at)
	) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4`,
}

type ProblemRepository interface {
	Create(ctx context.Context, tx db.Transaction, problem *model.Problem) (int64, error)
	Update(ctx context.Context, tx db.Transaction, problem *model.Problem) error
	Delete(ctx context.Context, tx db.Transaction, problemID int64) error
	GetByID(ctx context.Context, tx db.Transaction, problemID int64) (*model.Problem, error)
	Exists(ctx context.Context, tx db.Transaction, problemID int64) (bool, error)
	List(ctx context.Context, opts pkgrepo.ListOptions) ([]model.Summary, int64, error)
	// ListByIDs returns summaries for the ids that exist, in the order given.
	ListByIDs(ctx context.Context, ids []int64) ([]model.Summary, error)
	// InvalidateCache drops the cached detail. Writes made through a
	// transaction leave this to the caller once the transaction commits.
	InvalidateCache(ctx context.Context, problemID int64) error
}

type MySQLProblemRepository struct {
	dbProvider db.Provider
	cache      cache.Cache
	ttl        time.Duration
	emptyTTL   time.Duration
}

func NewProblemRepository(provider db.Provider, cacheClient cache.Cache) ProblemRepository {
	return NewProblemRepositoryWithTTL(provider, cacheClient, defaultProblemTTL, defaultProblemEmptyTTL)
}

func NewProblemRepositoryWithTTL(provider db.Provider, cacheClient cache.Cache, ttl, emptyTTL time.Duration) ProblemRepository {
	if ttl <= 0 {
		ttl = defaultProblemTTL
	}
	if emptyTTL <= 0 {
		emptyTTL = defaultProblemEmptyTTL
	}
	return &MySQLProblemRepository{
		dbProvider: provider,
		cache:      cacheClient,
		ttl:        ttl,
		emptyTTL:   emptyTTL,
	}
}

const problemColumns = "id, title, description, difficulty, constraints, tags, visible_test_cases, hidden_test_cases, start_code, reference_solution, problem_creator, created_at, updated_at"

func (r *MySQLProblemRepository) Create(ctx context.Context, tx db.Transaction, problem *model.Problem) (int64, error) {
	if problem == nil {
		return 0, errors.New("problem is nil")
	}
	cols, err := encodeProblemJSON(problem)
	if err != nil {
		return 0, err
	}
	querier, err := db.GetProviderQuerier(r.dbProvider, tx)
	if err != nil {
		return 0, err
	}
	query := `INSERT INTO problems (title, description, difficulty, constraints, tags, visible_test_cases, hidden_test_cases, start_code, reference_solution, problem_creator)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`
	result, err := querier.Exec(ctx, query,
		problem.Title, problem.Description, problem.Difficulty, problem.Constraints,
		cols.tags, cols.visible, cols.hidden, cols.startCode, cols.reference,
		problem.ProblemCreator,
	)
	if err != nil {
		return 0, err
	}
	id, err := result.LastInsertId()
	if err != nil {
		return 0, err
	}
	problem.ID = id
	// Drop a cached miss left by an earlier lookup of this id.
	_ = r.InvalidateCache(ctx, id)
	return id, nil
}

func (r *MySQLProblemRepository) Update(ctx context.Context, tx db.Transaction, problem *model.Problem) error {
	if problem == nil {
		return errors.New("problem is nil")
	}
	cols, err := encodeProblemJSON(problem)
	if err != nil {
		return err
	}
	querier, err := db.GetProviderQuerier(r.dbProvider, tx)
	if err != nil {
		return err
	}
	query := `UPDATE problems SET title = ?, description = ?, difficulty = ?, constraints = ?, tags = ?, visible_test_cases = ?,
		hidden_test_cases = ?, start_code = ?, reference_solution = ?, updated_at = NOW() WHERE id = ?`
	if _, err := querier.Exec(ctx, query,
		problem.Title, problem.Description, problem.Difficulty, problem.Constraints,
		cols.tags, cols.visible, cols.hidden, cols.startCode, cols.reference,
		problem.ID,
	); err != nil {
		return err
	}
	if tx != nil {
		return nil
	}
	return r.InvalidateCache(ctx, problem.ID)
}

func (r *MySQLProblemRepository) Delete(ctx context.Context, tx db.Transaction, problemID int64) error {
	querier, err := db.GetProviderQuerier(r.dbProvider, tx)
	if err != nil {
		return err
	}
	result, err := querier.Exec(ctx, "DELETE FROM problems WHERE id = ?", problemID)
	if err != nil {
		return err
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return ErrProblemNotFound
	}
	if tx != nil {
		return nil
	}
	return r.InvalidateCache(ctx, problemID)
}

func (r *MySQLProblemRepository) GetByID(ctx context.Context, tx db.Transaction, problemID int64) (*model.Problem, error) {
	if r.cache == nil || tx != nil {
		return r.getByIDFromDB(ctx, tx, problemID)
	}
	problem, err := cache.GetJSONCached(ctx, r.cache, problemDetailKey(problemID), r.ttl, r.emptyTTL,
		func(ctx context.Context) (*model.Problem, error) {
			problem, err := r.getByIDFromDB(ctx, nil, problemID)
			if errors.Is(err, ErrProblemNotFound) {
				return nil, nil
			}
			return problem, err
		})
	if err != nil {
		return nil, err
	}
	if problem == nil {
		return nil, ErrProblemNotFound
	}
	return problem, nil
}

func (r *MySQLProblemRepository) Exists(ctx context.Context, tx db.Transaction, problemID int64) (bool, error) {
	querier, err := db.GetProviderQuerier(r.dbProvider, tx)
	if err != nil {
		return false, err
	}
	var one int
	if err := querier.QueryRow(ctx, "SELECT 1 FROM problems WHERE id = ?", problemID).Scan(&one); err != nil {
		if db.IsNoRows(err) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

func (r *MySQLProblemRepository) List(ctx context.Context, opts pkgrepo.ListOptions) ([]model.Summary, int64, error) {
	querier, err := db.GetProviderQuerier(r.dbProvider, nil)
	if err != nil {
		return nil, 0, err
	}
	query := "SELECT id, title, difficulty, tags FROM problems ORDER BY id"
	args := []interface{}{}
	if opts.Paged {
		query += " LIMIT ? OFFSET ?"
		args = append(args, opts.Limit, opts.Offset)
	}
	rows, err := querier.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	items, err := scanSummaries(rows)
	if err != nil {
		return nil, 0, err
	}
	if !opts.Paged {
		return items, int64(len(items)), nil
	}
	var total int64
	if err := querier.QueryRow(ctx, "SELECT COUNT(*) FROM problems").Scan(&total); err != nil {
		return nil, 0, err
	}
	return items, total, nil
}

func (r *MySQLProblemRepository) ListByIDs(ctx context.Context, ids []int64) ([]model.Summary, error) {
	if len(ids) == 0 {
		return []model.Summary{}, nil
	}
	querier, err := db.GetProviderQuerier(r.dbProvider, nil)
	if err != nil {
		return nil, err
	}
	args := make([]interface{}, 0, len(ids))
	for _, id := range ids {
		args = append(args, id)
	}
	query := "SELECT id, title, difficulty, tags FROM problems WHERE id IN (" + db.Placeholders(len(ids)) + ")"
	rows, err := querier.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	found, err := scanSummaries(rows)
	if err != nil {
		return nil, err
	}
	byID := make(map[int64]model.Summary, len(found))
	for _, s := range found {
		byID[s.ID] = s
	}
	ordered := make([]model.Summary, 0, len(found))
	for _, id := range ids {
		if s, ok := byID[id]; ok {
			ordered = append(ordered, s)
		}
	}
	return ordered, nil
}

func (r *MySQLProblemRepository) InvalidateCache(ctx context.Context, problemID int64) error {
	return cache.Invalidate(ctx, r.cache, problemDetailKey(problemID))
}

func (r *MySQLProblemRepository) getByIDFromDB(ctx context.Context, tx db.Transaction, problemID int64) (*model.Problem, error) {
	querier, err := db.GetProviderQuerier(r.dbProvider, tx)
	if err != nil {
		return nil, err
	}
	row := querier.QueryRow(ctx, "SELECT "+problemColumns+" FROM problems WHERE id = ?", problemID)
	problem, err := scanProblem(row)
	if err != nil {
		if db.IsNoRows(err) {
			return nil, ErrProblemNotFound
		}
		return nil, err
	}
	return problem, nil
}

type problemJSON struct {
	tags, visible, hidden, startCode, reference []byte
}

func encodeProblemJSON(p *model.Problem) (problemJSON, error) {
	var out problemJSON
	var err error
	encode := func(v interface{}) []byte {
		if err != nil {
			return nil
		}
		var data []byte
		data, err = json.Marshal(v)
		return data
	}
	tags := p.Tags
	if tags == nil {
		tags = []string{}
	}
	out.tags = encode(tags)
	out.visible = encode(p.VisibleTestCases)
	out.hidden = encode(p.HiddenTestCases)
	out.startCode = encode(p.StartCode)
	out.reference = encode(p.ReferenceSolution)
	if err != nil {
		return problemJSON{}, fmt.Errorf("encode problem columns failed: %w", err)
	}
	return out, nil
}

func scanProblem(scanner db.Scanner) (*model.Problem, error) {
	var p model.Problem
	var difficulty string
	var cols problemJSON
	if err := scanner.Scan(
		&p.ID, &p.Title, &p.Description, &difficulty, &p.Constraints,
		&cols.tags, &cols.visible, &cols.hidden, &cols.startCode, &cols.reference,
		&p.ProblemCreator, &p.CreatedAt, &p.UpdatedAt,
	); err != nil {
		return nil, err
	}
	p.Difficulty = model.Difficulty(difficulty)
	targets := []struct {
		raw []byte
		dst interface{}
	}{
		{cols.tags, &p.Tags},
		{cols.visible, &p.VisibleTestCases},
		{cols.hidden, &p.HiddenTestCases},
		{cols.startCode, &p.StartCode},
		{cols.reference, &p.ReferenceSolution},
	}
	for _, t := range targets {
		if len(t.raw) == 0 {
			continue
		}
		if err := json.Unmarshal(t.raw, t.dst); err != nil {
			return nil, fmt.Errorf("decode problem %d columns failed: %w", p.ID, err)
		}
	}
	return &p, nil
}

func scanSummaries(rows db.Rows) ([]model.Summary, error) {
	items := make([]model.Summary, 0)
	for rows.Next() {
		var s model.Summary
		var difficulty string
		var tags []byte
		if err := rows.Scan(&s.ID, &s.Title, &difficulty, &tags); err != nil {
			return nil, err
		}
		s.Difficulty = model.Difficulty(difficulty)
		s.Tags = []string{}
		if len(tags) > 0 {
			if err := json.Unmarshal(tags, &s.Tags); err != nil {
				return nil, err
			}
		}
		items = append(items, s)
	}
	return items, rows.Err()
}

func problemDetailKey(problemID int64) string {
	return problemDetailKeyPrefix + strconv.FormatInt(problemID, 10)
}
