package repository

import (
	"context"
	"errors"

	"codearena/internal/common/db"
	"codearena/internal/sheet/model"
)

var ErrSheetNotFound = errors.New("sheet not found")

// Schema creates the sheets tables. Problem order is kept by position.
var Schema = []string{
	`CREATE TABLE IF NOT EXISTS sheets (
		id BIGINT NOT NULL AUTO_INCREMENT PRIMARY KEY,
		title VARCHAR(100) NOT NULL,
		description VARCHAR(500) NOT NULL DEFAULT '',
		created_by BIGINT NOT NULL,
		is_public TINYINT(1) NOT NULL DEFAULT 0,
		difficulty VARCHAR(16) NOT NULL DEFAULT 'beginner',
		created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
		KEY sheets_visibility_idx (is_public, created_at),
		KEY sheets_creator_idx (created_by, created_at)
	) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4`,
	`CREATE TABLE IF NOT EXISTS sheet_problems (
		sheet_id BIGINT NOT NULL,
		position INT NOT NULL,
		problem_id BIGINT NOT NULL,
		PRIMARY KEY (sheet_id, position),
		KEY sheet_problems_problem_idx (problem_id)
	) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4`,
}

type SheetRepository interface {
	Create(ctx context.Context, tx db.Transaction, sheet *model.Sheet) (int64, error)
	GetByID(ctx context.Context, sheetID int64) (*model.Sheet, error)
	// ListVisible returns public sheets and those created by userID, newest first.
	ListVisible(ctx context.Context, userID int64) ([]model.Sheet, error)
}

type MySQLSheetRepository struct {
	dbProvider db.Provider
}

func NewSheetRepository(provider db.Provider) SheetRepository {
	return &MySQLSheetRepository{dbProvider: provider}
}

const sheetColumns = "id, title, description, created_by, is_public, difficulty, created_at"

func (r *MySQLSheetRepository) Create(ctx context.Context, tx db.Transaction, sheet *model.Sheet) (int64, error) {
	if sheet == nil {
		return 0, errors.New("sheet is nil")
	}
	querier, err := db.GetProviderQuerier(r.dbProvider, tx)
	if err != nil {
		return 0, err
	}
	result, err := querier.Exec(ctx,
		`INSERT INTO sheets (title, description, created_by, is_public, difficulty) VALUES (?, ?, ?, ?, ?)`,
		sheet.Title, sheet.Description, sheet.CreatedBy, sheet.IsPublic, sheet.Difficulty,
	)
	if err != nil {
		return 0, err
	}
	id, err := result.LastInsertId()
	if err != nil {
		return 0, err
	}
	if len(sheet.Problems) > 0 {
		args := make([]interface{}, 0, len(sheet.Problems)*3)
		query := "INSERT INTO sheet_problems (sheet_id, position, problem_id) VALUES "
		for i, problemID := range sheet.Problems {
			if i > 0 {
				query += ", "
			}
			query += "(?, ?, ?)"
			args = append(args, id, i, problemID)
		}
		if _, err := querier.Exec(ctx, query, args...); err != nil {
			return 0, err
		}
	}
	sheet.ID = id
	return id, nil
}

func (r *MySQLSheetRepository) GetByID(ctx context.Context, sheetID int64) (*model.Sheet, error) {
	querier, err := db.GetProviderQuerier(r.dbProvider, nil)
	if err != nil {
		return nil, err
	}
	sheet, err := scanSheet(querier.QueryRow(ctx, "SELECT "+sheetColumns+" FROM sheets WHERE id = ?", sheetID))
	if err != nil {
		if db.IsNoRows(err) {
			return nil, ErrSheetNotFound
		}
		return nil, err
	}
	problems, err := r.loadProblems(ctx, querier, []int64{sheet.ID})
	if err != nil {
		return nil, err
	}
	sheet.Problems = nonNil(problems[sheet.ID])
	return sheet, nil
}

func (r *MySQLSheetRepository) ListVisible(ctx context.Context, userID int64) ([]model.Sheet, error) {
	querier, err := db.GetProviderQuerier(r.dbProvider, nil)
	if err != nil {
		return nil, err
	}
	rows, err := querier.Query(ctx,
		"SELECT "+sheetColumns+" FROM sheets WHERE is_public = 1 OR created_by = ? ORDER BY created_at DESC, id DESC",
		userID,
	)
	if err != nil {
		return nil, err
	}
	sheets := make([]model.Sheet, 0)
	ids := make([]int64, 0)
	for rows.Next() {
		sheet, err := scanSheet(rows)
		if err != nil {
			rows.Close()
			return nil, err
		}
		sheets = append(sheets, *sheet)
		ids = append(ids, sheet.ID)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return nil, err
	}
	rows.Close()

	problems, err := r.loadProblems(ctx, querier, ids)
	if err != nil {
		return nil, err
	}
	for i := range sheets {
		sheets[i].Problems = nonNil(problems[sheets[i].ID])
	}
	return sheets, nil
}

func (r *MySQLSheetRepository) loadProblems(ctx context.Context, querier db.Querier, sheetIDs []int64) (map[int64][]int64, error) {
	out := make(map[int64][]int64, len(sheetIDs))
	if len(sheetIDs) == 0 {
		return out, nil
	}
	args := make([]interface{}, len(sheetIDs))
	for i, id := range sheetIDs {
		args[i] = id
	}
	rows, err := querier.Query(ctx,
		"SELECT sheet_id, problem_id FROM sheet_problems WHERE sheet_id IN ("+db.Placeholders(len(sheetIDs))+") ORDER BY sheet_id, position",
		args...,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	for rows.Next() {
		var sheetID, problemID int64
		if err := rows.Scan(&sheetID, &problemID); err != nil {
			return nil, err
		}
		out[sheetID] = append(out[sheetID], problemID)
	}
	return out, rows.Err()
}

func scanSheet(row db.Scanner) (*model.Sheet, error) {
	sheet := &model.Sheet{}
	var difficulty string
	if err := row.Scan(
		&sheet.ID,
		&sheet.Title,
		&sheet.Description,
		&sheet.CreatedBy,
		&sheet.IsPublic,
		&difficulty,
		&sheet.CreatedAt,
	); err != nil {
		return nil, err
	}
	sheet.Difficulty = model.Difficulty(difficulty)
	return sheet, nil
}

func nonNil(ids []int64) []int64 {
	if ids == nil {
		return []int64{}
	}
	return ids
}
