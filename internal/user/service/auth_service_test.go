package service

import (
	"slices"
	"testing"
	"time"

	"codearena/internal/common/db"
	"codearena/internal/common/http/middleware"
	"codearena/internal/common/ratelimit"
	"codearena/internal/user/repository"
	pkgerrors "codearena/pkg/errors"

	"golang.org/x/crypto/bcrypt"
)

type authFixture struct {
	service *AuthService
	tokens  *TokenService
	users   *fakeUserRepo
	solved  *fakeSolvedRepo
	purger  *fakePurger
}

func newAuthFixture(t *testing.T, limiter ratelimit.Limiter) authFixture {
	t.Helper()
	redisCache, _ := newTestRedis(t)
	denylist := repository.NewTokenDenylistRepository(nil, redisCache, time.Second, time.Minute)
	tokens := NewTokenService(TokenConfig{Secret: []byte("test-secret")}, denylist)
	users := newFakeUserRepo()
	solved := &fakeSolvedRepo{}
	purger := &fakePurger{}
	svc := NewAuthService(AuthServiceDeps{
		Users:        users,
		Solved:       solved,
		Submissions:  purger,
		Tokens:       tokens,
		LoginLimiter: limiter,
		ProfileCache: redisCache,
		BcryptCost:   bcrypt.MinCost,
	})
	return authFixture{service: svc, tokens: tokens, users: users, solved: solved, purger: purger}
}

func validRegister() RegisterInput {
	return RegisterInput{FirstName: "Alice", Email: "Alice@Example.com ", Password: "Str0ng!pass"}
}

func TestRegisterIssuesUsableToken(t *testing.T) {
	f := newAuthFixture(t, nil)
	ctx := t.Context()

	result, err := f.service.Register(ctx, validRegister())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.User.Email != "alice@example.com" || result.User.Role != repository.UserRoleUser {
		t.Fatalf("unexpected user info: %+v", result.User)
	}
	identity, err := f.tokens.Authenticate(ctx, result.Token)
	if err != nil {
		t.Fatalf("unexpected auth error: %v", err)
	}
	if identity.UserID != result.User.ID || identity.Role != "user" {
		t.Fatalf("unexpected identity: %+v", identity)
	}
	if time.Until(result.ExpiresAt) > time.Hour || time.Until(result.ExpiresAt) < 59*time.Minute {
		t.Fatalf("unexpected expiry: %v", result.ExpiresAt)
	}
}

func TestRegisterIgnoresRoleForSelfSignup(t *testing.T) {
	f := newAuthFixture(t, nil)
	input := validRegister()
	input.Role = repository.UserRoleAdmin
	result, err := f.service.Register(t.Context(), input)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.User.Role != repository.UserRoleUser {
		t.Fatalf("unexpected role: %s", result.User.Role)
	}
}

func TestRegisterRejectsDuplicateEmail(t *testing.T) {
	f := newAuthFixture(t, nil)
	if _, err := f.service.Register(t.Context(), validRegister()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	_, err := f.service.Register(t.Context(), validRegister())
	if !pkgerrors.Is(err, pkgerrors.EmailAlreadyExists) {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestRegisterValidation(t *testing.T) {
	f := newAuthFixture(t, nil)
	cases := map[string]struct {
		input RegisterInput
		code  pkgerrors.ErrorCode
	}{
		"short name":    {RegisterInput{FirstName: "Al", Email: "a@b.io", Password: "Str0ng!pass"}, pkgerrors.InvalidName},
		"bad email":     {RegisterInput{FirstName: "Alice", Email: "not-an-email", Password: "Str0ng!pass"}, pkgerrors.InvalidEmail},
		"no symbol":     {RegisterInput{FirstName: "Alice", Email: "a@b.io", Password: "Str0ngpass"}, pkgerrors.PasswordTooWeak},
		"no upper":      {RegisterInput{FirstName: "Alice", Email: "a@b.io", Password: "str0ng!pass"}, pkgerrors.PasswordTooWeak},
		"too short":     {RegisterInput{FirstName: "Alice", Email: "a@b.io", Password: "S0!a"}, pkgerrors.PasswordTooWeak},
		"short surname": {RegisterInput{FirstName: "Alice", LastName: "Li", Email: "a@b.io", Password: "Str0ng!pass"}, pkgerrors.InvalidName},
	}
	for name, tc := range cases {
		_, err := f.service.Register(t.Context(), tc.input)
		if !pkgerrors.Is(err, tc.code) {
			t.Fatalf("%s: unexpected error: %v", name, err)
		}
	}
}

func TestAdminRegisterHonorsRole(t *testing.T) {
	f := newAuthFixture(t, nil)
	input := validRegister()
	input.Role = repository.UserRoleAdmin
	result, err := f.service.AdminRegister(t.Context(), input)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.User.Role != repository.UserRoleAdmin {
		t.Fatalf("unexpected role: %s", result.User.Role)
	}

	input.Email = "bob@example.com"
	input.Role = "root"
	if _, err := f.service.AdminRegister(t.Context(), input); !pkgerrors.Is(err, pkgerrors.InvalidRole) {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestLoginChecksCredentials(t *testing.T) {
	f := newAuthFixture(t, nil)
	ctx := t.Context()
	if _, err := f.service.Register(ctx, validRegister()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if _, err := f.service.Login(ctx, LoginInput{Email: "alice@example.com", Password: "wrong"}); !pkgerrors.Is(err, pkgerrors.InvalidCredentials) {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, err := f.service.Login(ctx, LoginInput{Email: "nobody@example.com", Password: "Str0ng!pass"}); !pkgerrors.Is(err, pkgerrors.InvalidCredentials) {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, err := f.service.Login(ctx, LoginInput{Email: "", Password: "x"}); !pkgerrors.Is(err, pkgerrors.InvalidParams) {
		t.Fatalf("unexpected error: %v", err)
	}
	result, err := f.service.Login(ctx, LoginInput{Email: "ALICE@example.com", Password: "Str0ng!pass"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Token == "" {
		t.Fatalf("expected a token")
	}
}

func TestLoginIsRateLimitedPerIPAndEmail(t *testing.T) {
	redisCache, mr := newTestRedis(t)
	limiter := ratelimit.NewSlidingWindowLimiter(redisCache, 2, 360*time.Second)
	f := newAuthFixture(t, limiter)
	ctx := t.Context()

	for i := 0; i < 2; i++ {
		if _, err := f.service.Login(ctx, LoginInput{Email: "x@example.com", Password: "p", IP: "1.2.3.4"}); !pkgerrors.Is(err, pkgerrors.InvalidCredentials) {
			t.Fatalf("unexpected error on attempt %d: %v", i, err)
		}
	}
	if _, err := f.service.Login(ctx, LoginInput{Email: "x@example.com", Password: "p", IP: "1.2.3.4"}); !pkgerrors.Is(err, pkgerrors.TooManyRequests) {
		t.Fatalf("unexpected error: %v", err)
	}
	if !mr.Exists("login:1.2.3.4:x@example.com") {
		t.Fatalf("expected limiter key to exist")
	}
	if _, err := f.service.Login(ctx, LoginInput{Email: "x@example.com", Password: "p", IP: "5.6.7.8"}); !pkgerrors.Is(err, pkgerrors.InvalidCredentials) {
		t.Fatalf("other ip must not be limited: %v", err)
	}
}

func TestLogoutRevokesToken(t *testing.T) {
	f := newAuthFixture(t, nil)
	ctx := t.Context()
	result, err := f.service.Register(ctx, validRegister())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	identity, err := f.tokens.Authenticate(ctx, result.Token)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if err := f.service.Logout(ctx, identity); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, err := f.tokens.Authenticate(ctx, result.Token); !pkgerrors.Is(err, pkgerrors.TokenRevoked) {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestDeleteProfileRemovesEverything(t *testing.T) {
	f := newAuthFixture(t, nil)
	ctx := t.Context()
	result, err := f.service.Register(ctx, validRegister())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	identity, err := f.tokens.Authenticate(ctx, result.Token)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if err := f.service.DeleteProfile(ctx, identity); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(f.purger.users) != 1 || f.purger.users[0] != identity.UserID {
		t.Fatalf("unexpected purged submissions: %v", f.purger.users)
	}
	if len(f.solved.deletedUsers) != 1 {
		t.Fatalf("unexpected solved deletes: %v", f.solved.deletedUsers)
	}
	if _, err := f.service.Check(ctx, identity.UserID); !pkgerrors.Is(err, pkgerrors.UserNotFound) {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, err := f.tokens.Authenticate(ctx, result.Token); !pkgerrors.Is(err, pkgerrors.TokenRevoked) {
		t.Fatalf("expected token to be revoked: %v", err)
	}
}

func TestDeleteProfileInvalidatesCacheAfterCommit(t *testing.T) {
	f := newAuthFixture(t, nil)
	ctx := t.Context()
	events := &eventLog{}
	f.users.events = events
	f.service.dbProvider = db.NewStaticProvider(&txDatabase{events: events})

	result, err := f.service.Register(ctx, validRegister())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	identity, err := f.tokens.Authenticate(ctx, result.Token)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := f.service.DeleteProfile(ctx, identity); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := []string{"delete user 1", "commit", "invalidate user 1"}
	if got := events.list(); !slices.Equal(got, want) {
		t.Fatalf("unexpected event order: %v", got)
	}
}

func TestDeleteProfileMissingUserRollsBack(t *testing.T) {
	f := newAuthFixture(t, nil)
	events := &eventLog{}
	f.users.events = events
	f.service.dbProvider = db.NewStaticProvider(&txDatabase{events: events})

	err := f.service.DeleteProfile(t.Context(), middleware.Identity{UserID: 42, Role: "user"})
	if !pkgerrors.Is(err, pkgerrors.UserNotFound) {
		t.Fatalf("unexpected error: %v", err)
	}
	if got := events.list(); !slices.Equal(got, []string{"rollback"}) {
		t.Fatalf("unexpected events: %v", got)
	}
}

func TestAuthenticateRejectsForeignTokens(t *testing.T) {
	tokens := NewTokenService(TokenConfig{Secret: []byte("one")}, nil)
	other := NewTokenService(TokenConfig{Secret: []byte("two")}, nil)
	raw, _, err := other.Issue(1, repository.UserRoleUser)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, err := tokens.Authenticate(t.Context(), raw); !pkgerrors.Is(err, pkgerrors.TokenInvalid) {
		t.Fatalf("unexpected error: %v", err)
	}

	expired := NewTokenService(TokenConfig{Secret: []byte("one")}, nil)
	expired.now = func() time.Time { return time.Now().Add(-2 * time.Hour) }
	raw, _, err = expired.Issue(1, repository.UserRoleUser)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, err := tokens.Authenticate(t.Context(), raw); !pkgerrors.Is(err, pkgerrors.TokenExpired) {
		t.Fatalf("unexpected error: %v", err)
	}
}

var _ middleware.Authenticator = (*TokenService)(nil)
