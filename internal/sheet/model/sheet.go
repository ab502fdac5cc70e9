package model

import (
	"time"

	problemmodel "codearena/internal/problem/model"
)

type Difficulty string

const (
	DifficultyBeginner     Difficulty = "beginner"
	DifficultyIntermediate Difficulty = "intermediate"
	DifficultyAdvanced     Difficulty = "advanced"
)

func (d Difficulty) Valid() bool {
	return d == DifficultyBeginner || d == DifficultyIntermediate || d == DifficultyAdvanced
}

// Sheet is a curated, ordered list of problems.
type Sheet struct {
	ID          int64      `json:"_id"`
	Title       string     `json:"title"`
	Description string     `json:"description"`
	Problems    []int64    `json:"problems"`
	CreatedBy   int64      `json:"createdBy"`
	IsPublic    bool       `json:"isPublic"`
	Difficulty  Difficulty `json:"difficulty"`
	CreatedAt   time.Time  `json:"createdAt"`
}

// VisibleTo reports whether userID may read the sheet.
func (s *Sheet) VisibleTo(userID int64) bool {
	return s.IsPublic || s.CreatedBy == userID
}

// Detail is a sheet with its problems resolved.
type Detail struct {
	Sheet
	Problems []problemmodel.Summary `json:"problems"`
}
