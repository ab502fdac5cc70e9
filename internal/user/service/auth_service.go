package service

import (
	"context"
	stderrors "errors"
	"fmt"
	"strings"
	"time"

	"codearena/internal/common/cache"
	"codearena/internal/common/db"
	"codearena/internal/common/http/middleware"
	"codearena/internal/common/ratelimit"
	"codearena/internal/user/repository"
	pkgerrors "codearena/pkg/errors"
	"codearena/pkg/utils/logger"

	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
)

// SubmissionPurger removes a user's submissions inside the account deletion transaction.
type SubmissionPurger interface {
	DeleteByUser(ctx context.Context, tx db.Transaction, userID int64) error
}

// AuthService handles registration, login, logout and account deletion.
type AuthService struct {
	dbProvider   db.Provider
	users        repository.UserRepository
	solved       repository.SolvedRepository
	submissions  SubmissionPurger
	tokens       *TokenService
	loginLimiter ratelimit.Limiter
	profileCache cache.Cache
	bcryptCost   int
}

// AuthServiceDeps groups AuthService collaborators. Optional ones may be nil.
type AuthServiceDeps struct {
	DBProvider   db.Provider
	Users        repository.UserRepository
	Solved       repository.SolvedRepository
	Submissions  SubmissionPurger
	Tokens       *TokenService
	LoginLimiter ratelimit.Limiter
	ProfileCache cache.Cache
	BcryptCost   int
}

func NewAuthService(deps AuthServiceDeps) *AuthService {
	cost := deps.BcryptCost
	if cost == 0 {
		cost = bcrypt.DefaultCost
	}
	return &AuthService{
		dbProvider:   deps.DBProvider,
		users:        deps.Users,
		solved:       deps.Solved,
		submissions:  deps.Submissions,
		tokens:       deps.Tokens,
		loginLimiter: deps.LoginLimiter,
		profileCache: deps.ProfileCache,
		bcryptCost:   cost,
	}
}

// RegisterInput represents input for user registration.
type RegisterInput struct {
	FirstName string
	LastName  string
	Email     string
	Password  string
	Age       *int
	// Role is honored only by AdminRegister.
	Role repository.UserRole
}

// LoginInput represents input for user login.
type LoginInput struct {
	Email    string
	Password string
	IP       string
}

// UserInfo represents basic user info for auth responses.
type UserInfo struct {
	ID        int64
	FirstName string
	Email     string
	Role      repository.UserRole
}

// AuthResult represents the result of register and login.
type AuthResult struct {
	Token     string
	ExpiresAt time.Time
	User      UserInfo
}

// Register creates a user with the default role and issues a token.
func (s *AuthService) Register(ctx context.Context, input RegisterInput) (AuthResult, error) {
	return s.register(ctx, input, repository.UserRoleUser)
}

// AdminRegister creates a user whose role comes from the input.
func (s *AuthService) AdminRegister(ctx context.Context, input RegisterInput) (AuthResult, error) {
	role := input.Role
	if role == "" {
		role = repository.UserRoleUser
	}
	if err := validateRole(role); err != nil {
		return AuthResult{}, err
	}
	return s.register(ctx, input, role)
}

func (s *AuthService) register(ctx context.Context, input RegisterInput, role repository.UserRole) (AuthResult, error) {
	input.FirstName = strings.TrimSpace(input.FirstName)
	input.LastName = strings.TrimSpace(input.LastName)
	input.Email = normalizeEmail(input.Email)

	if err := validateFirstName(input.FirstName); err != nil {
		return AuthResult{}, err
	}
	if err := validateLastName(input.LastName); err != nil {
		return AuthResult{}, err
	}
	if err := validateEmail(input.Email); err != nil {
		return AuthResult{}, err
	}
	if err := validatePassword(input.Password); err != nil {
		return AuthResult{}, err
	}
	if input.Age != nil {
		if err := validateUpdate(repository.UserUpdate{Age: input.Age}); err != nil {
			return AuthResult{}, err
		}
	}

	passwordHash, err := bcrypt.GenerateFromPassword([]byte(input.Password), s.bcryptCost)
	if err != nil {
		return AuthResult{}, pkgerrors.Wrap(fmt.Errorf("hash password failed: %w", err), pkgerrors.InternalServerError)
	}

	user := &repository.User{
		FirstName:    input.FirstName,
		LastName:     input.LastName,
		Email:        input.Email,
		Age:          input.Age,
		Role:         role,
		PasswordHash: string(passwordHash),
	}
	if _, err := s.users.Create(ctx, nil, user); err != nil {
		return AuthResult{}, mapUserCreateError(err)
	}
	// A profile miss cached for this id before the insert must not outlive it.
	if err := cache.Invalidate(ctx, s.profileCache, profileKey(user.ID)); err != nil {
		logger.Warn(ctx, "invalidate profile cache failed", zap.Error(err))
	}
	logger.Info(ctx, "user registered", zap.Int64("user_id", user.ID), zap.String("role", string(role)))
	return s.issue(user)
}

// Login verifies credentials and issues a token.
func (s *AuthService) Login(ctx context.Context, input LoginInput) (AuthResult, error) {
	email := normalizeEmail(input.Email)
	if email == "" || input.Password == "" {
		return AuthResult{}, pkgerrors.New(pkgerrors.InvalidParams).WithMessage("Invalid Credentials")
	}

	if s.loginLimiter != nil {
		if err := s.loginLimiter.Allow(ctx, loginLimitKey(input.IP, email)); err != nil {
			return AuthResult{}, err
		}
	}

	user, err := s.users.GetByEmail(ctx, nil, email)
	if err != nil {
		if stderrors.Is(err, repository.ErrUserNotFound) {
			return AuthResult{}, pkgerrors.New(pkgerrors.InvalidCredentials)
		}
		return AuthResult{}, pkgerrors.Wrap(fmt.Errorf("get user failed: %w", err), pkgerrors.DatabaseError)
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(input.Password)); err != nil {
		return AuthResult{}, pkgerrors.New(pkgerrors.InvalidCredentials)
	}
	return s.issue(user)
}

// Logout denylists the caller's token until it expires.
func (s *AuthService) Logout(ctx context.Context, identity middleware.Identity) error {
	return s.tokens.Revoke(ctx, identity)
}

// Check returns the caller's basic info.
func (s *AuthService) Check(ctx context.Context, userID int64) (UserInfo, error) {
	user, err := s.getUserByID(ctx, userID)
	if err != nil {
		return UserInfo{}, err
	}
	return toUserInfo(user), nil
}

// DeleteProfile removes the account with its submissions and solved rows,
// then revokes the current token.
func (s *AuthService) DeleteProfile(ctx context.Context, identity middleware.Identity) error {
	var email string
	err := s.withTransaction(ctx, func(tx db.Transaction) error {
		user, err := s.users.GetByID(ctx, tx, identity.UserID)
		if err != nil {
			if stderrors.Is(err, repository.ErrUserNotFound) {
				return pkgerrors.New(pkgerrors.UserNotFound)
			}
			return pkgerrors.Wrap(fmt.Errorf("get user failed: %w", err), pkgerrors.DatabaseError)
		}
		email = user.Email
		if s.submissions != nil {
			if err := s.submissions.DeleteByUser(ctx, tx, identity.UserID); err != nil {
				return pkgerrors.Wrap(fmt.Errorf("delete submissions failed: %w", err), pkgerrors.DatabaseError)
			}
		}
		if s.solved != nil {
			if err := s.solved.DeleteByUser(ctx, tx, identity.UserID); err != nil {
				return pkgerrors.Wrap(fmt.Errorf("delete solved problems failed: %w", err), pkgerrors.DatabaseError)
			}
		}
		if err := s.users.Delete(ctx, tx, identity.UserID); err != nil {
			if stderrors.Is(err, repository.ErrUserNotFound) {
				return pkgerrors.New(pkgerrors.UserNotFound)
			}
			return pkgerrors.Wrap(fmt.Errorf("delete user failed: %w", err), pkgerrors.UserDeleteFailed)
		}
		return nil
	})
	if err != nil {
		return err
	}

	// Cached rows are dropped only once the delete is committed.
	if err := s.users.InvalidateCache(ctx, identity.UserID, email); err != nil {
		logger.Warn(ctx, "invalidate user cache failed", zap.Error(err))
	}
	if err := cache.Invalidate(ctx, s.profileCache, profileKey(identity.UserID)); err != nil {
		logger.Warn(ctx, "invalidate profile cache failed", zap.Error(err))
	}
	if err := s.tokens.Revoke(ctx, identity); err != nil {
		logger.Warn(ctx, "revoke token after delete failed", zap.Error(err))
	}
	logger.Info(ctx, "user deleted", zap.Int64("user_id", identity.UserID))
	return nil
}

func (s *AuthService) issue(user *repository.User) (AuthResult, error) {
	token, expiresAt, err := s.tokens.Issue(user.ID, user.Role)
	if err != nil {
		return AuthResult{}, err
	}
	return AuthResult{Token: token, ExpiresAt: expiresAt, User: toUserInfo(user)}, nil
}

func (s *AuthService) withTransaction(ctx context.Context, fn func(tx db.Transaction) error) error {
	if err := db.RunInTransaction(ctx, s.dbProvider, fn); err != nil {
		var appErr *pkgerrors.Error
		if stderrors.As(err, &appErr) {
			return err
		}
		return pkgerrors.Wrap(fmt.Errorf("transaction failed: %w", err), pkgerrors.TransactionFailed)
	}
	return nil
}

func (s *AuthService) getUserByID(ctx context.Context, userID int64) (*repository.User, error) {
	user, err := s.users.GetByID(ctx, nil, userID)
	if err != nil {
		if stderrors.Is(err, repository.ErrUserNotFound) {
			return nil, pkgerrors.New(pkgerrors.UserNotFound)
		}
		return nil, pkgerrors.Wrap(fmt.Errorf("get user failed: %w", err), pkgerrors.DatabaseError)
	}
	return user, nil
}

func toUserInfo(user *repository.User) UserInfo {
	return UserInfo{ID: user.ID, FirstName: user.FirstName, Email: user.Email, Role: user.Role}
}

func loginLimitKey(ip, email string) string {
	return "login:" + ip + ":" + email
}

func mapUserCreateError(err error) error {
	if stderrors.Is(err, repository.ErrEmailExists) {
		return pkgerrors.New(pkgerrors.EmailAlreadyExists)
	}
	if stderrors.Is(err, repository.ErrDuplicate) {
		return pkgerrors.New(pkgerrors.RecordAlreadyExists)
	}
	return pkgerrors.Wrap(fmt.Errorf("create user failed: %w", err), pkgerrors.DatabaseError)
}
