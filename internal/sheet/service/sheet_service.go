package service

import (
	"context"
	"errors"
	"strings"
	"time"
	"unicode/utf8"

	"codearena/internal/common/db"
	problemmodel "codearena/internal/problem/model"
	"codearena/internal/sheet/model"
	"codearena/internal/sheet/repository"
	pkgerrors "codearena/pkg/errors"
	"codearena/pkg/utils/logger"

	"go.uber.org/zap"
)

const (
	minTitleLength       = 5
	maxTitleLength       = 100
	maxDescriptionLength = 500
)

// ProblemCatalog resolves problem summaries by id.
type ProblemCatalog interface {
	ListByIDs(ctx context.Context, ids []int64) ([]problemmodel.Summary, error)
}

type CreateSheetInput struct {
	Title       string
	Description string
	Problems    []int64
	IsPublic    bool
	Difficulty  string
}

type SheetService struct {
	dbProvider db.Provider
	sheets     repository.SheetRepository
	problems   ProblemCatalog
	now        func() time.Time
}

func NewSheetService(provider db.Provider, sheets repository.SheetRepository, problems ProblemCatalog) *SheetService {
	return &SheetService{
		dbProvider: provider,
		sheets:     sheets,
		problems:   problems,
		now:        func() time.Time { return time.Now().UTC() },
	}
}

func (s *SheetService) Create(ctx context.Context, creatorID int64, input CreateSheetInput) (*model.Sheet, error) {
	sheet, err := s.buildSheet(creatorID, input)
	if err != nil {
		return nil, err
	}
	if err := s.verifyProblems(ctx, sheet.Problems); err != nil {
		return nil, err
	}
	err = db.RunInTransaction(ctx, s.dbProvider, func(tx db.Transaction) error {
		_, err := s.sheets.Create(ctx, tx, sheet)
		return err
	})
	if err != nil {
		return nil, pkgerrors.Wrapf(err, pkgerrors.DatabaseError, "create sheet failed")
	}
	logger.Info(ctx, "sheet created",
		zap.Int64("sheet_id", sheet.ID),
		zap.Int64("created_by", creatorID),
		zap.Int("problems", len(sheet.Problems)),
	)
	return sheet, nil
}

// List returns the sheets visible to userID.
func (s *SheetService) List(ctx context.Context, userID int64) ([]model.Sheet, error) {
	sheets, err := s.sheets.ListVisible(ctx, userID)
	if err != nil {
		return nil, pkgerrors.Wrapf(err, pkgerrors.DatabaseError, "list sheets failed")
	}
	return sheets, nil
}

func (s *SheetService) Get(ctx context.Context, userID int64, isAdmin bool, sheetID int64) (*model.Detail, error) {
	sheet, err := s.sheets.GetByID(ctx, sheetID)
	if err != nil {
		if errors.Is(err, repository.ErrSheetNotFound) {
			return nil, pkgerrors.New(pkgerrors.SheetNotFound)
		}
		return nil, pkgerrors.Wrapf(err, pkgerrors.DatabaseError, "get sheet failed")
	}
	if !isAdmin && !sheet.VisibleTo(userID) {
		return nil, pkgerrors.New(pkgerrors.SheetAccessDenied)
	}

	summaries, err := s.problems.ListByIDs(ctx, sheet.Problems)
	if err != nil {
		return nil, pkgerrors.Wrapf(err, pkgerrors.DatabaseError, "load sheet problems failed")
	}
	byID := make(map[int64]problemmodel.Summary, len(summaries))
	for _, summary := range summaries {
		byID[summary.ID] = summary
	}
	// Keep the sheet's order; problems deleted since creation are skipped.
	ordered := make([]problemmodel.Summary, 0, len(sheet.Problems))
	for _, id := range sheet.Problems {
		if summary, ok := byID[id]; ok {
			ordered = append(ordered, summary)
		}
	}
	return &model.Detail{Sheet: *sheet, Problems: ordered}, nil
}

func (s *SheetService) buildSheet(creatorID int64, input CreateSheetInput) (*model.Sheet, error) {
	title := strings.TrimSpace(input.Title)
	if title == "" {
		return nil, pkgerrors.ValidationError("title", "required")
	}
	if n := utf8.RuneCountInString(title); n < minTitleLength || n > maxTitleLength {
		return nil, pkgerrors.ValidationError("title", "must be between 5 and 100 characters")
	}
	description := strings.TrimSpace(input.Description)
	if utf8.RuneCountInString(description) > maxDescriptionLength {
		return nil, pkgerrors.ValidationError("description", "must be at most 500 characters")
	}
	difficulty := model.Difficulty(strings.ToLower(strings.TrimSpace(input.Difficulty)))
	if difficulty == "" {
		difficulty = model.DifficultyBeginner
	}
	if !difficulty.Valid() {
		return nil, pkgerrors.ValidationError("difficulty", "must be beginner, intermediate or advanced")
	}
	if len(input.Problems) == 0 {
		return nil, pkgerrors.ValidationError("problems", "must be a non-empty array")
	}
	return &model.Sheet{
		Title:       title,
		Description: description,
		Problems:    append([]int64(nil), input.Problems...),
		CreatedBy:   creatorID,
		IsPublic:    input.IsPublic,
		Difficulty:  difficulty,
		CreatedAt:   s.now(),
	}, nil
}

// verifyProblems requires every id to be positive, unique and present.
func (s *SheetService) verifyProblems(ctx context.Context, ids []int64) error {
	seen := make(map[int64]struct{}, len(ids))
	for _, id := range ids {
		if _, dup := seen[id]; dup || id <= 0 {
			return pkgerrors.New(pkgerrors.SheetProblemInvalid)
		}
		seen[id] = struct{}{}
	}
	found, err := s.problems.ListByIDs(ctx, ids)
	if err != nil {
		return pkgerrors.Wrapf(err, pkgerrors.DatabaseError, "verify sheet problems failed")
	}
	if len(found) != len(ids) {
		return pkgerrors.New(pkgerrors.SheetProblemInvalid)
	}
	return nil
}
