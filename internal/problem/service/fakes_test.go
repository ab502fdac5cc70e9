package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"codearena/internal/common/db"
	"codearena/internal/common/storage"
	judgemodel "codearena/internal/judge/model"
	"codearena/internal/problem/model"
	"codearena/internal/problem/repository"
	userrepo "codearena/internal/user/repository"
	pkgrepo "codearena/pkg/repository"
)

type memProblems struct {
	mu       sync.Mutex
	nextID   int64
	problems map[int64]*model.Problem
	events   *eventLog
}

func newMemProblems() *memProblems {
	return &memProblems{problems: make(map[int64]*model.Problem)}
}

func (m *memProblems) Create(_ context.Context, _ db.Transaction, p *model.Problem) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextID++
	p.ID = m.nextID
	p.CreatedAt = time.Now()
	stored := *p
	m.problems[p.ID] = &stored
	return p.ID, nil
}

func (m *memProblems) Update(_ context.Context, _ db.Transaction, p *model.Problem) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.problems[p.ID]; !ok {
		return repository.ErrProblemNotFound
	}
	stored := *p
	m.problems[p.ID] = &stored
	return nil
}

func (m *memProblems) Delete(_ context.Context, _ db.Transaction, id int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.problems[id]; !ok {
		return repository.ErrProblemNotFound
	}
	delete(m.problems, id)
	m.events.add(fmt.Sprintf("delete problem %d", id))
	return nil
}

func (m *memProblems) GetByID(_ context.Context, _ db.Transaction, id int64) (*model.Problem, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.problems[id]
	if !ok {
		return nil, repository.ErrProblemNotFound
	}
	out := *p
	return &out, nil
}

func (m *memProblems) Exists(_ context.Context, _ db.Transaction, id int64) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.problems[id]
	return ok, nil
}

func (m *memProblems) List(_ context.Context, opts pkgrepo.ListOptions) ([]model.Summary, int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]model.Summary, 0, len(m.problems))
	for id := int64(1); id <= m.nextID; id++ {
		if p, ok := m.problems[id]; ok {
			out = append(out, p.Summary())
		}
	}
	total := int64(len(out))
	if opts.Paged {
		if opts.Offset >= len(out) {
			return []model.Summary{}, total, nil
		}
		out = out[opts.Offset:min(opts.Offset+opts.Limit, len(out))]
	}
	return out, total, nil
}

func (m *memProblems) ListByIDs(_ context.Context, ids []int64) ([]model.Summary, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]model.Summary, 0, len(ids))
	for _, id := range ids {
		if p, ok := m.problems[id]; ok {
			out = append(out, p.Summary())
		}
	}
	return out, nil
}

func (m *memProblems) InvalidateCache(_ context.Context, id int64) error {
	m.events.add(fmt.Sprintf("invalidate problem %d", id))
	return nil
}

// eventLog records repository writes and transaction outcomes in order.
type eventLog struct {
	mu     sync.Mutex
	events []string
}

func (l *eventLog) add(event string) {
	if l == nil {
		return
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	l.events = append(l.events, event)
}

func (l *eventLog) list() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]string{}, l.events...)
}

// txDatabase runs transactions without SQL and logs commit or rollback.
type txDatabase struct {
	events *eventLog
}

var errNoSQL = errors.New("sql not supported")

func (d *txDatabase) Query(context.Context, string, ...interface{}) (db.Rows, error) {
	return nil, errNoSQL
}

func (d *txDatabase) QueryRow(context.Context, string, ...interface{}) db.Row { return nil }

func (d *txDatabase) Exec(context.Context, string, ...interface{}) (db.Result, error) {
	return nil, errNoSQL
}

func (d *txDatabase) Transaction(_ context.Context, fn func(tx db.Transaction) error) error {
	if err := fn(txHandle{d}); err != nil {
		d.events.add("rollback")
		return err
	}
	d.events.add("commit")
	return nil
}

func (d *txDatabase) Ping(context.Context) error { return nil }
func (d *txDatabase) Close() error               { return nil }
func (d *txDatabase) Stats() sql.DBStats         { return sql.DBStats{} }

type txHandle struct {
	*txDatabase
}

func (txHandle) Commit() error   { return nil }
func (txHandle) Rollback() error { return nil }

// fakeJudge accepts every submission unless its code contains "bug".
type fakeJudge struct {
	batches [][]judgemodel.Submission
}

func (f *fakeJudge) Run(_ context.Context, subs []judgemodel.Submission) ([]judgemodel.Result, error) {
	f.batches = append(f.batches, subs)
	out := make([]judgemodel.Result, len(subs))
	for i, s := range subs {
		out[i] = judgemodel.Result{StatusID: judgemodel.StatusAccepted}
		if strings.Contains(s.SourceCode, "bug") {
			out[i] = judgemodel.Result{StatusID: judgemodel.StatusWrongAnswer}
		}
	}
	return out, nil
}

type fakeSolved struct {
	deletedProblems []int64
	solved          map[int64][]userrepo.SolvedProblem
}

func (f *fakeSolved) MarkSolved(context.Context, db.Transaction, int64, int64) (bool, error) {
	return true, nil
}

func (f *fakeSolved) ListSolved(_ context.Context, userID int64) ([]userrepo.SolvedProblem, error) {
	return f.solved[userID], nil
}

func (f *fakeSolved) DeleteByUser(context.Context, db.Transaction, int64) error { return nil }

func (f *fakeSolved) DeleteByProblem(_ context.Context, _ db.Transaction, problemID int64) error {
	f.deletedProblems = append(f.deletedProblems, problemID)
	return nil
}

type fakeVideos struct {
	playback map[int64]*model.VideoPlayback
	deleted  []int64
}

func (f *fakeVideos) PlaybackForProblem(_ context.Context, problemID int64) (*model.VideoPlayback, error) {
	return f.playback[problemID], nil
}

func (f *fakeVideos) DeleteByProblem(_ context.Context, _ db.Transaction, problemID int64) error {
	f.deleted = append(f.deleted, problemID)
	return nil
}

type recordingCleanup struct {
	problems []int64
}

func (r *recordingCleanup) PublishProblemDeleted(_ context.Context, problemID int64) error {
	r.problems = append(r.problems, problemID)
	return nil
}

type memStorage struct {
	mu      sync.Mutex
	objects map[string]struct{}
}

func newMemStorage(keys ...string) *memStorage {
	s := &memStorage{objects: make(map[string]struct{})}
	for _, k := range keys {
		s.objects[k] = struct{}{}
	}
	return s
}

func (s *memStorage) PresignPut(context.Context, string, string, time.Duration) (string, error) {
	return "", nil
}

func (s *memStorage) PresignGet(context.Context, string, string, time.Duration) (string, error) {
	return "", nil
}

func (s *memStorage) StatObject(_ context.Context, _ string, key string) (storage.ObjectStat, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.objects[key]; !ok {
		return storage.ObjectStat{}, storage.ErrObjectNotFound
	}
	return storage.ObjectStat{}, nil
}

func (s *memStorage) ListObjects(_ context.Context, _ string, prefix string) <-chan storage.ObjectInfo {
	s.mu.Lock()
	defer s.mu.Unlock()
	ch := make(chan storage.ObjectInfo, len(s.objects))
	for k := range s.objects {
		if strings.HasPrefix(k, prefix) {
			ch <- storage.ObjectInfo{Key: k}
		}
	}
	close(ch)
	return ch
}

func (s *memStorage) RemoveObjects(_ context.Context, _ string, keys []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, k := range keys {
		delete(s.objects, k)
	}
	return nil
}

func validInput() ProblemInput {
	return ProblemInput{
		Title:             "Two Sum",
		Description:       "Add two numbers.",
		Difficulty:        "Easy",
		Tags:              []string{" array ", ""},
		VisibleTestCases:  []model.VisibleTestCase{{Input: "1 2", Output: "3"}, {Input: "2 2", Output: "4"}},
		HiddenTestCases:   []model.HiddenTestCase{{Input: "5 5", Output: "10"}},
		StartCode:         []model.StartCode{{Language: "Python", InitialCode: "# code"}},
		ReferenceSolution: []model.ReferenceSolution{{Language: "python", CompleteCode: "print(sum(map(int, input().split())))"}},
	}
}
