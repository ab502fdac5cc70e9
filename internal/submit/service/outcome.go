package service

import (
	judgemodel "codearena/internal/judge/model"
	"codearena/internal/submit/repository"
)

// Outcome is the aggregated verdict of one judged batch.
type Outcome struct {
	Status       string
	Passed       int
	Total        int
	Runtime      float64
	Memory       int64
	ErrorMessage string
}

func (o Outcome) Accepted() bool {
	return o.Status == repository.StatusAccepted
}

// Evaluate folds per-case results: runtime is summed, memory is the peak,
// and the first failing case supplies the error message.
func Evaluate(results []judgemodel.Result) Outcome {
	out := Outcome{Total: len(results)}
	hasError := false
	for _, r := range results {
		out.Runtime += r.Seconds()
		if mem := r.MemoryKB(); mem > out.Memory {
			out.Memory = mem
		}
		if r.StatusID.Accepted() {
			out.Passed++
			continue
		}
		if r.StatusID.IsError() {
			hasError = true
		}
		if out.ErrorMessage == "" {
			out.ErrorMessage = r.FirstError()
		}
	}
	switch {
	case out.Total > 0 && out.Passed == out.Total:
		out.Status = repository.StatusAccepted
	case hasError:
		out.Status = repository.StatusError
	default:
		out.Status = repository.StatusWrong
	}
	return out
}

func (o Outcome) apply(s *repository.Submission) {
	s.Status = o.Status
	s.TestCasesPassed = o.Passed
	s.TestCasesTotal = o.Total
	s.Runtime = o.Runtime
	s.Memory = o.Memory
	s.ErrorMessage = o.ErrorMessage
}
