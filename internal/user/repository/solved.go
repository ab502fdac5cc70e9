package repository

import (
	"context"
	"encoding/json"
	"time"

	"codearena/internal/common/db"
)

// SolvedProblem is a problem the user has an accepted submission for.
type SolvedProblem struct {
	ID         int64     `json:"_id"`
	Title      string    `json:"title"`
	Difficulty string    `json:"difficulty"`
	Tags       []string  `json:"tags"`
	SolvedAt   time.Time `json:"solvedAt"`
}

type SolvedRepository interface {
	// MarkSolved records the pair once and reports whether a row was added.
	MarkSolved(ctx context.Context, tx db.Transaction, userID, problemID int64) (bool, error)
	ListSolved(ctx context.Context, userID int64) ([]SolvedProblem, error)
	DeleteByUser(ctx context.Context, tx db.Transaction, userID int64) error
	DeleteByProblem(ctx context.Context, tx db.Transaction, problemID int64) error
}

type MySQLSolvedRepository struct {
	dbProvider db.Provider
}

func NewSolvedRepository(provider db.Provider) SolvedRepository {
	return &MySQLSolvedRepository{dbProvider: provider}
}

func (r *MySQLSolvedRepository) MarkSolved(ctx context.Context, tx db.Transaction, userID, problemID int64) (bool, error) {
	querier, err := db.GetProviderQuerier(r.dbProvider, tx)
	if err != nil {
		return false, err
	}
	result, err := querier.Exec(ctx, "INSERT IGNORE INTO user_solved_problems (user_id, problem_id) VALUES (?, ?)", userID, problemID)
	if err != nil {
		return false, err
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return false, err
	}
	return affected > 0, nil
}

func (r *MySQLSolvedRepository) ListSolved(ctx context.Context, userID int64) ([]SolvedProblem, error) {
	querier, err := db.GetProviderQuerier(r.dbProvider, nil)
	if err != nil {
		return nil, err
	}
	query := `SELECT p.id, p.title, p.difficulty, p.tags, s.solved_at
		FROM user_solved_problems s JOIN problems p ON p.id = s.problem_id
		WHERE s.user_id = ? ORDER BY s.solved_at DESC`
	rows, err := querier.Query(ctx, query, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	solved := make([]SolvedProblem, 0)
	for rows.Next() {
		var item SolvedProblem
		var tags []byte
		if err := rows.Scan(&item.ID, &item.Title, &item.Difficulty, &tags, &item.SolvedAt); err != nil {
			return nil, err
		}
		if len(tags) > 0 {
			if err := json.Unmarshal(tags, &item.Tags); err != nil {
				return nil, err
			}
		}
		solved = append(solved, item)
	}
	return solved, rows.Err()
}

func (r *MySQLSolvedRepository) DeleteByUser(ctx context.Context, tx db.Transaction, userID int64) error {
	querier, err := db.GetProviderQuerier(r.dbProvider, tx)
	if err != nil {
		return err
	}
	_, err = querier.Exec(ctx, "DELETE FROM user_solved_problems WHERE user_id = ?", userID)
	return err
}

func (r *MySQLSolvedRepository) DeleteByProblem(ctx context.Context, tx db.Transaction, problemID int64) error {
	querier, err := db.GetProviderQuerier(r.dbProvider, tx)
	if err != nil {
		return err
	}
	_, err = querier.Exec(ctx, "DELETE FROM user_solved_problems WHERE problem_id = ?", problemID)
	return err
}
