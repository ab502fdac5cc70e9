package repository

import (
	"context"
	"database/sql"
	"fmt"
	"reflect"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"codearena/internal/common/cache"
	"codearena/internal/common/db"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-sql-driver/mysql"
	"github.com/redis/go-redis/v9"
)

// memSQL answers the statements issued by the user and solved repositories
// from in-memory tables.
type memSQL struct {
	mu        sync.Mutex
	nextID    int64
	users     map[int64][]interface{}
	problems  map[int64][]interface{}
	solved    []solvedRow
	userReads int
	clock     time.Time
}

type solvedRow struct {
	userID, problemID int64
	solvedAt          time.Time
}

// user row column order follows userColumns.
const (
	colID = iota
	colFirstName
	colLastName
	colEmail
	colAge
	colRole
	colPasswordHash
	colProfileImage
	colBio
	colGitHub
	colLocation
	colCreatedAt
	colUpdatedAt
)

var userColumnIndex = map[string]int{
	"first_name":    colFirstName,
	"last_name":     colLastName,
	"age":           colAge,
	"bio":           colBio,
	"github":        colGitHub,
	"location":      colLocation,
	"profile_image": colProfileImage,
}

func newMemSQL() *memSQL {
	return &memSQL{
		users:    make(map[int64][]interface{}),
		problems: make(map[int64][]interface{}),
		clock:    time.Date(2024, time.March, 5, 10, 0, 0, 0, time.UTC),
	}
}

func (m *memSQL) tick() time.Time {
	m.clock = m.clock.Add(time.Minute)
	return m.clock
}

func (m *memSQL) addProblem(id int64, title, difficulty, tags string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.problems[id] = []interface{}{id, title, difficulty, []byte(tags)}
}

func (m *memSQL) reads() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.userReads
}

func (m *memSQL) Exec(_ context.Context, query string, args ...interface{}) (db.Result, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	switch {
	case strings.HasPrefix(query, "INSERT INTO users"):
		email := args[2].(string)
		for _, row := range m.users {
			if row[colEmail] == email {
				return nil, &mysql.MySQLError{Number: 1062, Message: fmt.Sprintf("Duplicate entry '%s' for key 'users.users_email_uq'", email)}
			}
		}
		age := args[3].(sql.NullInt64)
		var ageValue interface{}
		if age.Valid {
			ageValue = age.Int64
		}
		m.nextID++
		now := m.tick()
		m.users[m.nextID] = []interface{}{
			m.nextID, args[0], args[1], email, ageValue, string(args[4].(UserRole)), args[5],
			args[6], args[7], args[8], args[9], now, now,
		}
		return memResult{lastID: m.nextID, affected: 1}, nil
	case strings.HasPrefix(query, "UPDATE users SET "):
		id := args[len(args)-1].(int64)
		row, ok := m.users[id]
		if !ok {
			return memResult{}, nil
		}
		sets := strings.TrimPrefix(query, "UPDATE users SET ")
		sets = sets[:strings.Index(sets, ", updated_at")]
		for i, set := range strings.Split(sets, ", ") {
			col := userColumnIndex[strings.TrimSuffix(set, " = ?")]
			value := args[i]
			if v, ok := value.(int); ok {
				value = int64(v)
			}
			row[col] = value
		}
		row[colUpdatedAt] = m.tick()
		return memResult{affected: 1}, nil
	case query == "DELETE FROM users WHERE id = ?":
		id := args[0].(int64)
		if _, ok := m.users[id]; !ok {
			return memResult{}, nil
		}
		delete(m.users, id)
		return memResult{affected: 1}, nil
	case strings.HasPrefix(query, "INSERT IGNORE INTO user_solved_problems"):
		userID, problemID := args[0].(int64), args[1].(int64)
		for _, row := range m.solved {
			if row.userID == userID && row.problemID == problemID {
				return memResult{}, nil
			}
		}
		m.solved = append(m.solved, solvedRow{userID: userID, problemID: problemID, solvedAt: m.tick()})
		return memResult{affected: 1}, nil
	case strings.HasPrefix(query, "DELETE FROM user_solved_problems WHERE "):
		column := strings.TrimSuffix(strings.TrimPrefix(query, "DELETE FROM user_solved_problems WHERE "), " = ?")
		target := args[0].(int64)
		kept := m.solved[:0]
		var removed int64
		for _, row := range m.solved {
			match := (column == "user_id" && row.userID == target) || (column == "problem_id" && row.problemID == target)
			if match {
				removed++
				continue
			}
			kept = append(kept, row)
		}
		m.solved = kept
		return memResult{affected: removed}, nil
	}
	return nil, fmt.Errorf("unexpected exec: %s", query)
}

func (m *memSQL) QueryRow(_ context.Context, query string, args ...interface{}) db.Row {
	m.mu.Lock()
	defer m.mu.Unlock()
	switch query {
	case "SELECT email FROM users WHERE id = ?":
		row, ok := m.users[args[0].(int64)]
		if !ok {
			return memRow{err: sql.ErrNoRows}
		}
		return memRow{values: []interface{}{row[colEmail]}}
	case "SELECT " + userColumns + " FROM users WHERE id = ?":
		m.userReads++
		row, ok := m.users[args[0].(int64)]
		if !ok {
			return memRow{err: sql.ErrNoRows}
		}
		return memRow{values: append([]interface{}{}, row...)}
	case "SELECT " + userColumns + " FROM users WHERE email = ?":
		m.userReads++
		for _, row := range m.users {
			if row[colEmail] == args[0] {
				return memRow{values: append([]interface{}{}, row...)}
			}
		}
		return memRow{err: sql.ErrNoRows}
	}
	return memRow{err: fmt.Errorf("unexpected query: %s", query)}
}

func (m *memSQL) Query(_ context.Context, query string, args ...interface{}) (db.Rows, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !strings.HasPrefix(query, "SELECT p.id, p.title, p.difficulty, p.tags, s.solved_at") {
		return nil, fmt.Errorf("unexpected query: %s", query)
	}
	userID := args[0].(int64)
	matched := make([]solvedRow, 0)
	for _, row := range m.solved {
		if _, ok := m.problems[row.problemID]; ok && row.userID == userID {
			matched = append(matched, row)
		}
	}
	sort.Slice(matched, func(i, j int) bool { return matched[i].solvedAt.After(matched[j].solvedAt) })
	out := &memRows{}
	for _, row := range matched {
		out.rows = append(out.rows, append(append([]interface{}{}, m.problems[row.problemID]...), row.solvedAt))
	}
	return out, nil
}

func (m *memSQL) Transaction(_ context.Context, fn func(tx db.Transaction) error) error {
	return fn(memTx{m})
}

func (m *memSQL) Ping(context.Context) error { return nil }
func (m *memSQL) Close() error               { return nil }
func (m *memSQL) Stats() sql.DBStats         { return sql.DBStats{} }

type memTx struct {
	*memSQL
}

func (memTx) Commit() error   { return nil }
func (memTx) Rollback() error { return nil }

type memResult struct {
	lastID, affected int64
}

func (r memResult) LastInsertId() (int64, error) { return r.lastID, nil }
func (r memResult) RowsAffected() (int64, error) { return r.affected, nil }

type memRow struct {
	values []interface{}
	err    error
}

func (r memRow) Scan(dest ...interface{}) error {
	if r.err != nil {
		return r.err
	}
	return assignColumns(r.values, dest)
}

type memRows struct {
	rows [][]interface{}
	pos  int
}

func (r *memRows) Next() bool {
	r.pos++
	return r.pos <= len(r.rows)
}

func (r *memRows) Scan(dest ...interface{}) error { return assignColumns(r.rows[r.pos-1], dest) }
func (r *memRows) Close() error                   { return nil }
func (r *memRows) Err() error                     { return nil }

// assignColumns copies values into dest the way database/sql would for the
// column types used here.
func assignColumns(values, dest []interface{}) error {
	if len(values) != len(dest) {
		return fmt.Errorf("expected %d columns, got %d", len(values), len(dest))
	}
	for i, d := range dest {
		if scanner, ok := d.(sql.Scanner); ok {
			if err := scanner.Scan(values[i]); err != nil {
				return err
			}
			continue
		}
		target := reflect.ValueOf(d).Elem()
		value := reflect.ValueOf(values[i])
		if !value.IsValid() {
			target.Set(reflect.Zero(target.Type()))
			continue
		}
		target.Set(value.Convert(target.Type()))
	}
	return nil
}

func newTestRepos(t *testing.T) (*memSQL, UserRepository, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	redisCache, err := cache.NewRedisCacheWithClient(redis.NewClient(&redis.Options{Addr: mr.Addr()}))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	store := newMemSQL()
	return store, NewUserRepository(db.NewStaticProvider(store), redisCache), mr
}
