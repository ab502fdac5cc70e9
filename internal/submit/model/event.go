package model

import "time"

const (
	SubmissionJudgedEvent = "submission.judged"
)

// JudgedEvent announces the final verdict of a submission.
type JudgedEvent struct {
	EventType       string    `json:"event_type"`
	SubmissionID    int64     `json:"submission_id"`
	UserID          int64     `json:"user_id"`
	ProblemID       int64     `json:"problem_id"`
	Status          string    `json:"status"`
	Accepted        bool      `json:"accepted"`
	FirstSolve      bool      `json:"first_solve"`
	TestCasesPassed int       `json:"test_cases_passed"`
	TestCasesTotal  int       `json:"test_cases_total"`
	JudgedAt        time.Time `json:"judged_at"`
}
