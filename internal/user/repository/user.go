package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"codearena/internal/common/cache"
	"codearena/internal/common/db"
)

type UserRole string

const (
	UserRoleUser  UserRole = "user"
	UserRoleAdmin UserRole = "admin"
)

// Valid reports whether role is one of the known roles.
func (r UserRole) Valid() bool {
	return r == UserRoleUser || r == UserRoleAdmin
}

type User struct {
	ID           int64
	FirstName    string
	LastName     string
	Email        string
	Age          *int
	Role         UserRole
	PasswordHash string
	ProfileImage string
	Bio          string
	GitHub       string
	Location     string
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// UserUpdate lists the mutable profile fields. Nil fields are left unchanged.
type UserUpdate struct {
	FirstName    *string
	LastName     *string
	Age          *int
	Bio          *string
	GitHub       *string
	Location     *string
	ProfileImage *string
}

// Empty reports whether the update changes nothing.
func (u UserUpdate) Empty() bool {
	return u.FirstName == nil && u.LastName == nil && u.Age == nil && u.Bio == nil &&
		u.GitHub == nil && u.Location == nil && u.ProfileImage == nil
}

type UserRepository interface {
	Create(ctx context.Context, tx db.Transaction, user *User) (int64, error)
	GetByID(ctx context.Context, tx db.Transaction, id int64) (*User, error)
	GetByEmail(ctx context.Context, tx db.Transaction, email string) (*User, error)
	Update(ctx context.Context, tx db.Transaction, id int64, update UserUpdate) error
	Delete(ctx context.Context, tx db.Transaction, id int64) error
	// InvalidateCache drops the cached rows for id and email. Writes made
	// through tx skip their own invalidation, so callers run this after commit.
	InvalidateCache(ctx context.Context, id int64, email string) error
}

type MySQLUserRepository struct {
	dbProvider db.Provider
	cache      cache.Cache
	ttl        time.Duration
	emptyTTL   time.Duration
}

const (
	defaultUserCacheTTL      = 30 * time.Minute
	defaultUserCacheEmptyTTL = 5 * time.Minute
)

func NewUserRepository(provider db.Provider, cacheClient cache.Cache) UserRepository {
	return NewUserRepositoryWithTTL(provider, cacheClient, defaultUserCacheTTL, defaultUserCacheEmptyTTL)
}

func NewUserRepositoryWithTTL(provider db.Provider, cacheClient cache.Cache, ttl, emptyTTL time.Duration) UserRepository {
	if ttl <= 0 {
		ttl = defaultUserCacheTTL
	}
	if emptyTTL <= 0 {
		emptyTTL = defaultUserCacheEmptyTTL
	}
	return &MySQLUserRepository{
		dbProvider: provider,
		cache:      cacheClient,
		ttl:        ttl,
		emptyTTL:   emptyTTL,
	}
}

const userColumns = "id, first_name, last_name, email, age, role, password_hash, profile_image, bio, github, location, created_at, updated_at"

func (r *MySQLUserRepository) Create(ctx context.Context, tx db.Transaction, user *User) (int64, error) {
	if user == nil {
		return 0, errors.New("user is nil")
	}
	role := user.Role
	if role == "" {
		role = UserRoleUser
	}

	query := "INSERT INTO users (first_name, last_name, email, age, role, password_hash, profile_image, bio, github, location) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)"
	querier, err := db.GetProviderQuerier(r.dbProvider, tx)
	if err != nil {
		return 0, err
	}
	result, err := querier.Exec(ctx, query,
		user.FirstName, user.LastName, user.Email, nullableInt(user.Age), role, user.PasswordHash,
		user.ProfileImage, user.Bio, user.GitHub, user.Location,
	)
	if err != nil {
		if mapped, ok := mapDuplicate(err); ok {
			return 0, mapped
		}
		return 0, err
	}
	id, err := result.LastInsertId()
	if err != nil {
		return 0, err
	}
	user.ID = id
	user.Role = role
	// Cached misses for the new id or email must not hide the row.
	r.deleteCache(ctx, id, user.Email)
	return id, nil
}

func (r *MySQLUserRepository) GetByID(ctx context.Context, tx db.Transaction, id int64) (*User, error) {
	if r.cache == nil || tx != nil {
		return r.getByIDFromDB(ctx, tx, id)
	}
	user, err := cache.GetWithCached[*User](
		ctx,
		r.cache,
		userInfoKey(id),
		r.ttl,
		r.emptyTTL,
		func(user *User) bool { return user == nil },
		marshalUser,
		unmarshalUser,
		func(ctx context.Context) (*User, error) {
			user, err := r.getByIDFromDB(ctx, nil, id)
			if errors.Is(err, ErrUserNotFound) {
				return nil, nil
			}
			return user, err
		},
	)
	if err != nil {
		return nil, err
	}
	if user == nil {
		return nil, ErrUserNotFound
	}
	return user, nil
}

func (r *MySQLUserRepository) GetByEmail(ctx context.Context, tx db.Transaction, email string) (*User, error) {
	if r.cache == nil || tx != nil {
		return r.getByEmailFromDB(ctx, tx, email)
	}
	user, err := cache.GetWithCached[*User](
		ctx,
		r.cache,
		userEmailKey(email),
		r.ttl,
		r.emptyTTL,
		func(user *User) bool { return user == nil },
		marshalUser,
		unmarshalUser,
		func(ctx context.Context) (*User, error) {
			user, err := r.getByEmailFromDB(ctx, nil, email)
			if errors.Is(err, ErrUserNotFound) {
				return nil, nil
			}
			return user, err
		},
	)
	if err != nil {
		return nil, err
	}
	if user == nil {
		return nil, ErrUserNotFound
	}
	return user, nil
}

func (r *MySQLUserRepository) Update(ctx context.Context, tx db.Transaction, id int64, update UserUpdate) error {
	sets := make([]string, 0, 7)
	args := make([]interface{}, 0, 8)
	add := func(column string, value interface{}) {
		sets = append(sets, column+" = ?")
		args = append(args, value)
	}
	if update.FirstName != nil {
		add("first_name", *update.FirstName)
	}
	if update.LastName != nil {
		add("last_name", *update.LastName)
	}
	if update.Age != nil {
		add("age", *update.Age)
	}
	if update.Bio != nil {
		add("bio", *update.Bio)
	}
	if update.GitHub != nil {
		add("github", *update.GitHub)
	}
	if update.Location != nil {
		add("location", *update.Location)
	}
	if update.ProfileImage != nil {
		add("profile_image", *update.ProfileImage)
	}
	if len(sets) == 0 {
		return nil
	}

	email, err := r.getEmail(ctx, tx, id)
	if err != nil {
		return err
	}
	querier, err := db.GetProviderQuerier(r.dbProvider, tx)
	if err != nil {
		return err
	}
	args = append(args, id)
	query := "UPDATE users SET " + strings.Join(sets, ", ") + ", updated_at = NOW() WHERE id = ?"
	if _, err := querier.Exec(ctx, query, args...); err != nil {
		return err
	}
	if tx == nil {
		r.deleteCache(ctx, id, email)
	}
	return nil
}

func (r *MySQLUserRepository) Delete(ctx context.Context, tx db.Transaction, id int64) error {
	email, err := r.getEmail(ctx, tx, id)
	if err != nil {
		return err
	}
	querier, err := db.GetProviderQuerier(r.dbProvider, tx)
	if err != nil {
		return err
	}
	result, err := querier.Exec(ctx, "DELETE FROM users WHERE id = ?", id)
	if err != nil {
		return err
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return ErrUserNotFound
	}
	if tx == nil {
		r.deleteCache(ctx, id, email)
	}
	return nil
}

func (r *MySQLUserRepository) InvalidateCache(ctx context.Context, id int64, email string) error {
	if r.cache == nil {
		return nil
	}
	return cache.Invalidate(ctx, r.cache, cacheKeys(id, email)...)
}

func (r *MySQLUserRepository) getByIDFromDB(ctx context.Context, tx db.Transaction, id int64) (*User, error) {
	return r.getOne(ctx, tx, "SELECT "+userColumns+" FROM users WHERE id = ?", id)
}

func (r *MySQLUserRepository) getByEmailFromDB(ctx context.Context, tx db.Transaction, email string) (*User, error) {
	return r.getOne(ctx, tx, "SELECT "+userColumns+" FROM users WHERE email = ?", email)
}

func (r *MySQLUserRepository) getOne(ctx context.Context, tx db.Transaction, query string, arg interface{}) (*User, error) {
	querier, err := db.GetProviderQuerier(r.dbProvider, tx)
	if err != nil {
		return nil, err
	}
	user, err := scanUser(querier.QueryRow(ctx, query, arg))
	if err != nil {
		if db.IsNoRows(err) {
			return nil, ErrUserNotFound
		}
		return nil, err
	}
	return user, nil
}

func (r *MySQLUserRepository) getEmail(ctx context.Context, tx db.Transaction, id int64) (string, error) {
	querier, err := db.GetProviderQuerier(r.dbProvider, tx)
	if err != nil {
		return "", err
	}
	var email string
	if err := querier.QueryRow(ctx, "SELECT email FROM users WHERE id = ?", id).Scan(&email); err != nil {
		if db.IsNoRows(err) {
			return "", ErrUserNotFound
		}
		return "", err
	}
	return email, nil
}

func (r *MySQLUserRepository) deleteCache(ctx context.Context, userID int64, email string) {
	_ = r.InvalidateCache(ctx, userID, email)
}

func cacheKeys(userID int64, email string) []string {
	keys := make([]string, 0, 2)
	if userID != 0 {
		keys = append(keys, userInfoKey(userID))
	}
	if email != "" {
		keys = append(keys, userEmailKey(email))
	}
	return keys
}

func userInfoKey(id int64) string {
	return fmt.Sprintf("%s%d", userInfoKeyPrefix, id)
}

func userEmailKey(email string) string {
	return userEmailKeyPrefix + email
}

func marshalUser(user *User) string {
	payload, err := json.Marshal(user)
	if err != nil {
		return ""
	}
	return string(payload)
}

func unmarshalUser(data string) (*User, error) {
	if data == "" {
		return nil, nil
	}
	var user User
	if err := json.Unmarshal([]byte(data), &user); err != nil {
		return nil, err
	}
	return &user, nil
}

func nullableInt(v *int) sql.NullInt64 {
	if v == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: int64(*v), Valid: true}
}

func scanUser(scanner db.Scanner) (*User, error) {
	var user User
	var age sql.NullInt64
	err := scanner.Scan(
		&user.ID,
		&user.FirstName,
		&user.LastName,
		&user.Email,
		&age,
		&user.Role,
		&user.PasswordHash,
		&user.ProfileImage,
		&user.Bio,
		&user.GitHub,
		&user.Location,
		&user.CreatedAt,
		&user.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	if age.Valid {
		v := int(age.Int64)
		user.Age = &v
	}
	return &user, nil
}
