package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"codearena/internal/common/cache"
	"codearena/internal/common/db"
	discussmodel "codearena/internal/discuss/model"
	"codearena/internal/user/repository"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

type fakeUserRepo struct {
	mu     sync.Mutex
	nextID int64
	byID   map[int64]*repository.User
	gets   int
	events *eventLog
}

func newFakeUserRepo() *fakeUserRepo {
	return &fakeUserRepo{byID: make(map[int64]*repository.User)}
}

func (f *fakeUserRepo) Create(_ context.Context, _ db.Transaction, user *repository.User) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, existing := range f.byID {
		if existing.Email == user.Email {
			return 0, repository.ErrEmailExists
		}
	}
	f.nextID++
	user.ID = f.nextID
	user.CreatedAt = time.Date(2024, time.March, 5, 10, 0, 0, 0, time.UTC)
	stored := *user
	f.byID[user.ID] = &stored
	return user.ID, nil
}

func (f *fakeUserRepo) GetByID(_ context.Context, _ db.Transaction, id int64) (*repository.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.gets++
	user, ok := f.byID[id]
	if !ok {
		return nil, repository.ErrUserNotFound
	}
	out := *user
	return &out, nil
}

func (f *fakeUserRepo) GetByEmail(_ context.Context, _ db.Transaction, email string) (*repository.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, user := range f.byID {
		if user.Email == email {
			out := *user
			return &out, nil
		}
	}
	return nil, repository.ErrUserNotFound
}

func (f *fakeUserRepo) Update(_ context.Context, _ db.Transaction, id int64, update repository.UserUpdate) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	user, ok := f.byID[id]
	if !ok {
		return repository.ErrUserNotFound
	}
	if update.FirstName != nil {
		user.FirstName = *update.FirstName
	}
	if update.LastName != nil {
		user.LastName = *update.LastName
	}
	if update.Age != nil {
		age := *update.Age
		user.Age = &age
	}
	if update.Bio != nil {
		user.Bio = *update.Bio
	}
	if update.GitHub != nil {
		user.GitHub = *update.GitHub
	}
	if update.Location != nil {
		user.Location = *update.Location
	}
	if update.ProfileImage != nil {
		user.ProfileImage = *update.ProfileImage
	}
	return nil
}

func (f *fakeUserRepo) Delete(_ context.Context, _ db.Transaction, id int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.byID[id]; !ok {
		return repository.ErrUserNotFound
	}
	delete(f.byID, id)
	f.events.add(fmt.Sprintf("delete user %d", id))
	return nil
}

func (f *fakeUserRepo) InvalidateCache(_ context.Context, id int64, _ string) error {
	f.events.add(fmt.Sprintf("invalidate user %d", id))
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

type fakeSolvedRepo struct {
	solved        map[int64][]repository.SolvedProblem
	deletedUsers  []int64
	deletedProbID []int64
}

func (f *fakeSolvedRepo) MarkSolved(_ context.Context, _ db.Transaction, userID, problemID int64) (bool, error) {
	if f.solved == nil {
		f.solved = make(map[int64][]repository.SolvedProblem)
	}
	for _, item := range f.solved[userID] {
		if item.ID == problemID {
			return false, nil
		}
	}
	f.solved[userID] = append(f.solved[userID], repository.SolvedProblem{ID: problemID})
	return true, nil
}

func (f *fakeSolvedRepo) ListSolved(_ context.Context, userID int64) ([]repository.SolvedProblem, error) {
	return append([]repository.SolvedProblem{}, f.solved[userID]...), nil
}

func (f *fakeSolvedRepo) DeleteByUser(_ context.Context, _ db.Transaction, userID int64) error {
	f.deletedUsers = append(f.deletedUsers, userID)
	delete(f.solved, userID)
	return nil
}

func (f *fakeSolvedRepo) DeleteByProblem(_ context.Context, _ db.Transaction, problemID int64) error {
	f.deletedProbID = append(f.deletedProbID, problemID)
	return nil
}

type fakePurger struct {
	users []int64
}

func (f *fakePurger) DeleteByUser(_ context.Context, _ db.Transaction, userID int64) error {
	f.users = append(f.users, userID)
	return nil
}

type fakePosts struct {
	posts []discussmodel.PostSummary
}

func (f *fakePosts) ListByUser(context.Context, int64, int) ([]discussmodel.PostSummary, error) {
	return f.posts, nil
}

func (f *fakePosts) CountByUser(context.Context, int64) (int64, error) {
	return int64(len(f.posts)), nil
}

func newTestRedis(t *testing.T) (*cache.RedisCache, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	redisCache, err := cache.NewRedisCacheWithClient(redis.NewClient(&redis.Options{Addr: mr.Addr()}))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	return redisCache, mr
}
