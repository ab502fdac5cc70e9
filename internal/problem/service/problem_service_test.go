package service

import (
	"slices"
	"testing"

	"codearena/internal/common/db"
	"codearena/internal/problem/model"
	pkgerrors "codearena/pkg/errors"
	pkgrepo "codearena/pkg/repository"
)

type problemFixture struct {
	svc      *ProblemService
	problems *memProblems
	judge    *fakeJudge
	solved   *fakeSolved
	videos   *fakeVideos
	cleanup  *recordingCleanup
}

func newProblemFixture() problemFixture {
	f := problemFixture{
		problems: newMemProblems(),
		judge:    &fakeJudge{},
		solved:   &fakeSolved{},
		videos:   &fakeVideos{playback: map[int64]*model.VideoPlayback{}},
		cleanup:  &recordingCleanup{},
	}
	f.svc = NewProblemService(ProblemServiceDeps{
		Problems: f.problems,
		Solved:   f.solved,
		Videos:   f.videos,
		Judge:    f.judge,
		Cleanup:  f.cleanup,
	})
	return f
}

func TestCreateVerifiesReferenceSolutions(t *testing.T) {
	f := newProblemFixture()
	problem, err := f.svc.Create(t.Context(), 5, validInput())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if problem.ID == 0 || problem.ProblemCreator != 5 || problem.Difficulty != model.DifficultyEasy {
		t.Fatalf("unexpected problem: %+v", problem)
	}
	if len(problem.Tags) != 1 || problem.Tags[0] != "array" {
		t.Fatalf("unexpected tags: %v", problem.Tags)
	}
	if len(f.judge.batches) != 1 || len(f.judge.batches[0]) != 2 {
		t.Fatalf("expected one batch of two visible cases, got %v", f.judge.batches)
	}
	if f.judge.batches[0][0].LanguageID != 71 || f.judge.batches[0][1].ExpectedOutput != "4" {
		t.Fatalf("unexpected submission: %+v", f.judge.batches[0])
	}
}

func TestCreateRejectsFailingReference(t *testing.T) {
	f := newProblemFixture()
	input := validInput()
	input.ReferenceSolution[0].CompleteCode = "bug"
	_, err := f.svc.Create(t.Context(), 5, input)
	if !pkgerrors.Is(err, pkgerrors.ReferenceSolutionFailed) {
		t.Fatalf("unexpected error: %v", err)
	}
	if pkgerrors.GetCode(err).HTTPStatus() != 400 {
		t.Fatalf("expected a 400 mapping")
	}
	if len(f.problems.problems) != 0 {
		t.Fatalf("failing problem must not be stored")
	}
}

func TestCreateValidation(t *testing.T) {
	f := newProblemFixture()
	mutate := map[string]func(*ProblemInput){
		"no title":      func(in *ProblemInput) { in.Title = " " },
		"bad level":     func(in *ProblemInput) { in.Difficulty = "insane" },
		"no visible":    func(in *ProblemInput) { in.VisibleTestCases = nil },
		"no hidden":     func(in *ProblemInput) { in.HiddenTestCases = nil },
		"no start":      func(in *ProblemInput) { in.StartCode = nil },
		"no reference":  func(in *ProblemInput) { in.ReferenceSolution = nil },
		"empty ref":     func(in *ProblemInput) { in.ReferenceSolution[0].CompleteCode = "" },
		"no describing": func(in *ProblemInput) { in.Description = "" },
	}
	for name, fn := range mutate {
		input := validInput()
		fn(&input)
		if _, err := f.svc.Create(t.Context(), 1, input); !pkgerrors.Is(err, pkgerrors.ValidationFailed) {
			t.Fatalf("%s: unexpected error: %v", name, err)
		}
	}
	input := validInput()
	input.StartCode[0].Language = "cobol"
	if _, err := f.svc.Create(t.Context(), 1, input); !pkgerrors.Is(err, pkgerrors.LanguageNotSupported) {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(f.judge.batches) != 0 {
		t.Fatalf("invalid input must not reach the judge")
	}
}

func TestUpdateKeepsCreator(t *testing.T) {
	f := newProblemFixture()
	created, err := f.svc.Create(t.Context(), 5, validInput())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	input := validInput()
	input.Title = "Two Sum II"
	updated, err := f.svc.Update(t.Context(), created.ID, input)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if updated.Title != "Two Sum II" || updated.ProblemCreator != 5 {
		t.Fatalf("unexpected update: %+v", updated)
	}
	if _, err := f.svc.Update(t.Context(), 999, validInput()); !pkgerrors.Is(err, pkgerrors.ProblemNotFound) {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestDeleteCascadesAndSchedulesCleanup(t *testing.T) {
	f := newProblemFixture()
	created, err := f.svc.Create(t.Context(), 5, validInput())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := f.svc.Delete(t.Context(), created.ID); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(f.solved.deletedProblems) != 1 || len(f.videos.deleted) != 1 || len(f.cleanup.problems) != 1 {
		t.Fatalf("expected cascade, got solved=%v videos=%v cleanup=%v", f.solved.deletedProblems, f.videos.deleted, f.cleanup.problems)
	}
	if err := f.svc.Delete(t.Context(), created.ID); !pkgerrors.Is(err, pkgerrors.ProblemNotFound) {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestDeleteInvalidatesCacheAfterCommit(t *testing.T) {
	f := newProblemFixture()
	created, err := f.svc.Create(t.Context(), 5, validInput())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	events := &eventLog{}
	f.problems.events = events
	f.svc.dbProvider = db.NewStaticProvider(&txDatabase{events: events})

	if err := f.svc.Delete(t.Context(), created.ID); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := []string{"delete problem 1", "commit", "invalidate problem 1"}
	if got := events.list(); !slices.Equal(got, want) {
		t.Fatalf("unexpected event order: %v", got)
	}

	if err := f.svc.Delete(t.Context(), created.ID); !pkgerrors.Is(err, pkgerrors.ProblemNotFound) {
		t.Fatalf("unexpected error: %v", err)
	}
	if got := events.list(); got[len(got)-1] != "rollback" {
		t.Fatalf("failed delete must not invalidate: %v", got)
	}
}

func TestGetHidesHiddenCasesAndMergesVideo(t *testing.T) {
	f := newProblemFixture()
	created, err := f.svc.Create(t.Context(), 5, validInput())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	detail, err := f.svc.Get(t.Context(), created.ID)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if detail.SecureURL != "" || len(detail.VisibleTestCases) != 2 {
		t.Fatalf("unexpected detail: %+v", detail)
	}

	f.videos.playback[created.ID] = &model.VideoPlayback{SecureURL: "https://cdn/v.mp4", ThumbnailURL: "https://cdn/t.jpg", Duration: 120}
	detail, err = f.svc.Get(t.Context(), created.ID)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if detail.SecureURL != "https://cdn/v.mp4" || detail.Duration != 120 {
		t.Fatalf("expected merged video, got %+v", detail)
	}
	if _, err := f.svc.Get(t.Context(), 404); !pkgerrors.Is(err, pkgerrors.ProblemNotFound) {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestListEmptyAndPaged(t *testing.T) {
	f := newProblemFixture()
	_, _, err := f.svc.List(t.Context(), pkgrepo.ListOptions{})
	if !pkgerrors.Is(err, pkgerrors.ProblemListEmpty) || pkgerrors.GetError(err).Message != "Problem is Missing" {
		t.Fatalf("unexpected error: %v", err)
	}
	for i := 0; i < 3; i++ {
		if _, err := f.svc.Create(t.Context(), 1, validInput()); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	}
	opts, _ := pkgrepo.ParsePage("2", "2")
	items, total, err := f.svc.List(t.Context(), opts)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if total != 3 || len(items) != 1 || items[0].ID != 3 {
		t.Fatalf("unexpected page: %d %+v", total, items)
	}

	past, _ := pkgrepo.ParsePage("3", "2")
	if _, _, err := f.svc.List(t.Context(), past); !pkgerrors.Is(err, pkgerrors.ProblemListEmpty) {
		t.Fatalf("page past the end should be empty error, got %v", err)
	}
}

func TestConstraintsRoundTrip(t *testing.T) {
	f := newProblemFixture()
	input := validInput()
	input.Constraints = "  1 <= n <= 10^5 "
	created, err := f.svc.Create(t.Context(), 5, input)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	detail, err := f.svc.Get(t.Context(), created.ID)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if detail.Constraints != "1 <= n <= 10^5" {
		t.Fatalf("unexpected constraints: %q", detail.Constraints)
	}
}
