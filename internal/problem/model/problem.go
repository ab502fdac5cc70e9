package model

import "time"

type Difficulty string

const (
	DifficultyEasy   Difficulty = "easy"
	DifficultyMedium Difficulty = "medium"
	DifficultyHard   Difficulty = "hard"
)

func (d Difficulty) Valid() bool {
	return d == DifficultyEasy || d == DifficultyMedium || d == DifficultyHard
}

type VisibleTestCase struct {
	Input       string `json:"input"`
	Output      string `json:"output"`
	Explanation string `json:"explanation"`
}

type HiddenTestCase struct {
	Input  string `json:"input"`
	Output string `json:"output"`
}

type StartCode struct {
	Language    string `json:"language"`
	InitialCode string `json:"initialCode"`
}

type ReferenceSolution struct {
	Language     string `json:"language"`
	CompleteCode string `json:"completeCode"`
}

// Problem is the full stored problem, hidden test cases included.
type Problem struct {
	ID                int64               `json:"id"`
	Title             string              `json:"title"`
	Description       string              `json:"description"`
	Difficulty        Difficulty          `json:"difficulty"`
	Constraints       string              `json:"constraints"`
	Tags              []string            `json:"tags"`
	VisibleTestCases  []VisibleTestCase   `json:"visibleTestCases"`
	HiddenTestCases   []HiddenTestCase    `json:"hiddenTestCases"`
	StartCode         []StartCode         `json:"startCode"`
	ReferenceSolution []ReferenceSolution `json:"referenceSolution"`
	ProblemCreator    int64               `json:"problemCreator"`
	CreatedAt         time.Time           `json:"createdAt"`
	UpdatedAt         time.Time           `json:"updatedAt"`
}

// Summary is the list form of a problem.
type Summary struct {
	ID         int64      `json:"_id"`
	Title      string     `json:"title"`
	Difficulty Difficulty `json:"difficulty"`
	Tags       []string   `json:"tags"`
}

func (p *Problem) Summary() Summary {
	return Summary{ID: p.ID, Title: p.Title, Difficulty: p.Difficulty, Tags: p.Tags}
}

// VideoPlayback is the solution video data merged into problem detail.
type VideoPlayback struct {
	SecureURL    string `json:"secureUrl"`
	ThumbnailURL string `json:"thumbnailUrl"`
	Duration     int    `json:"duration"`
}
