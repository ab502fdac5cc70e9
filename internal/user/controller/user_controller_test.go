package controller_test

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"codearena/internal/common/cache"
	"codearena/internal/common/db"
	"codearena/internal/common/http/middleware"
	"codearena/internal/user/controller"
	"codearena/internal/user/repository"
	"codearena/internal/user/service"

	"github.com/alicebob/miniredis/v2"
	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"golang.org/x/crypto/bcrypt"
)

type memUsers struct {
	users map[int64]*repository.User
}

func (m *memUsers) Create(_ context.Context, _ db.Transaction, user *repository.User) (int64, error) {
	for _, u := range m.users {
		if u.Email == user.Email {
			return 0, repository.ErrEmailExists
		}
	}
	user.ID = int64(len(m.users) + 1)
	stored := *user
	m.users[user.ID] = &stored
	return user.ID, nil
}

func (m *memUsers) GetByID(_ context.Context, _ db.Transaction, id int64) (*repository.User, error) {
	if u, ok := m.users[id]; ok {
		out := *u
		return &out, nil
	}
	return nil, repository.ErrUserNotFound
}

func (m *memUsers) GetByEmail(_ context.Context, _ db.Transaction, email string) (*repository.User, error) {
	for _, u := range m.users {
		if u.Email == email {
			out := *u
			return &out, nil
		}
	}
	return nil, repository.ErrUserNotFound
}

func (m *memUsers) Update(context.Context, db.Transaction, int64, repository.UserUpdate) error {
	return nil
}

func (m *memUsers) Delete(_ context.Context, _ db.Transaction, id int64) error {
	delete(m.users, id)
	return nil
}

func (m *memUsers) InvalidateCache(context.Context, int64, string) error { return nil }

type envelope struct {
	Code    int             `json:"code"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

func newRouter(t *testing.T) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)

	mr := miniredis.RunT(t)
	redisCache, err := cache.NewRedisCacheWithClient(redis.NewClient(&redis.Options{Addr: mr.Addr()}))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	users := &memUsers{users: make(map[int64]*repository.User)}
	tokens := service.NewTokenService(service.TokenConfig{Secret: []byte("secret")},
		repository.NewTokenDenylistRepository(nil, redisCache, time.Second, time.Minute))
	auth := service.NewAuthService(service.AuthServiceDeps{Users: users, Tokens: tokens, BcryptCost: bcrypt.MinCost})
	profiles := service.NewProfileService(users, nil, nil, redisCache, nil, service.ProfileConfig{})
	h := controller.NewUserController(auth, profiles, false)

	router := gin.New()
	group := router.Group("/user")
	group.POST("/register", h.Register)
	group.POST("/login", h.Login)
	group.POST("/logout", middleware.AuthMiddleware(tokens), h.Logout)
	group.GET("/check", middleware.AuthMiddleware(tokens), h.Check)
	group.GET("/getProfileById/:id", middleware.OptionalAuthMiddleware(tokens), h.GetProfileByID)
	return router
}

func do(router http.Handler, method, path string, body interface{}, cookie *http.Cookie) (*httptest.ResponseRecorder, envelope) {
	var reader *bytes.Reader
	if body != nil {
		raw, _ := json.Marshal(body)
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	if cookie != nil {
		req.AddCookie(cookie)
	}
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	var env envelope
	_ = json.Unmarshal(rec.Body.Bytes(), &env)
	return rec, env
}

func tokenCookie(rec *httptest.ResponseRecorder) *http.Cookie {
	for _, c := range rec.Result().Cookies() {
		if c.Name == middleware.TokenCookieName {
			return c
		}
	}
	return nil
}

func TestRegisterSetsCookieAndReturns201(t *testing.T) {
	router := newRouter(t)
	rec, env := do(router, http.MethodPost, "/user/register", map[string]string{
		"firstName": "Alice", "emailId": "alice@example.com", "password": "Str0ng!pass",
	}, nil)
	if rec.Code != http.StatusCreated {
		t.Fatalf("unexpected status: %d %s", rec.Code, rec.Body.String())
	}
	cookie := tokenCookie(rec)
	if cookie == nil || cookie.Value == "" || !cookie.HttpOnly {
		t.Fatalf("expected httpOnly token cookie, got %+v", cookie)
	}
	if cookie.MaxAge <= 0 || cookie.MaxAge > 3600 {
		t.Fatalf("unexpected cookie max age: %d", cookie.MaxAge)
	}
	var data controller.AuthResponse
	if err := json.Unmarshal(env.Data, &data); err != nil {
		t.Fatalf("decode failed: %v", err)
	}
	if data.User.EmailID != "alice@example.com" || data.User.Role != "user" {
		t.Fatalf("unexpected user: %+v", data.User)
	}
}

func TestRegisterDuplicateIsConflict(t *testing.T) {
	router := newRouter(t)
	body := map[string]string{"firstName": "Alice", "emailId": "alice@example.com", "password": "Str0ng!pass"}
	do(router, http.MethodPost, "/user/register", body, nil)
	rec, _ := do(router, http.MethodPost, "/user/register", body, nil)
	if rec.Code != http.StatusConflict {
		t.Fatalf("unexpected status: %d", rec.Code)
	}
}

func TestLoginCheckLogoutFlow(t *testing.T) {
	router := newRouter(t)
	do(router, http.MethodPost, "/user/register", map[string]string{
		"firstName": "Alice", "emailId": "alice@example.com", "password": "Str0ng!pass",
	}, nil)

	rec, _ := do(router, http.MethodPost, "/user/login", map[string]string{"emailId": "alice@example.com", "password": "nope"}, nil)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("unexpected status: %d", rec.Code)
	}

	rec, _ = do(router, http.MethodPost, "/user/login", map[string]string{"emailId": "alice@example.com", "password": "Str0ng!pass"}, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("unexpected status: %d", rec.Code)
	}
	cookie := tokenCookie(rec)
	if cookie == nil {
		t.Fatalf("expected token cookie")
	}

	rec, env := do(router, http.MethodGet, "/user/check", nil, cookie)
	if rec.Code != http.StatusOK || env.Message != "Valid User" {
		t.Fatalf("unexpected check response: %d %s", rec.Code, env.Message)
	}

	rec, _ = do(router, http.MethodPost, "/user/logout", nil, cookie)
	if rec.Code != http.StatusOK {
		t.Fatalf("unexpected status: %d", rec.Code)
	}
	rec, _ = do(router, http.MethodGet, "/user/check", nil, cookie)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected revoked token to be rejected, got %d", rec.Code)
	}
}

func TestCheckWithoutTokenIsUnauthorized(t *testing.T) {
	router := newRouter(t)
	rec, env := do(router, http.MethodGet, "/user/check", nil, nil)
	if rec.Code != http.StatusUnauthorized || env.Message != "Token is not present" {
		t.Fatalf("unexpected response: %d %s", rec.Code, env.Message)
	}
}

func TestGetProfileByUnknownIDIs404(t *testing.T) {
	router := newRouter(t)
	rec, _ := do(router, http.MethodGet, "/user/getProfileById/77", nil, nil)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("unexpected status: %d", rec.Code)
	}
	rec, _ = do(router, http.MethodGet, "/user/getProfileById/abc", nil, nil)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("unexpected status: %d", rec.Code)
	}
}

func TestGetProfileByIDHidesPrivateFieldsFromOthers(t *testing.T) {
	router := newRouter(t)
	rec, _ := do(router, http.MethodPost, "/user/register", map[string]interface{}{
		"firstName": "Alice", "emailId": "alice@example.com", "password": "Str0ng!pass", "age": 30,
	}, nil)
	if rec.Code != http.StatusCreated {
		t.Fatalf("register failed: %d", rec.Code)
	}
	owner := tokenCookie(rec)
	rec, _ = do(router, http.MethodPost, "/user/register", map[string]interface{}{
		"firstName": "Bobby", "emailId": "bob@example.com", "password": "Str0ng!pass",
	}, nil)
	if rec.Code != http.StatusCreated {
		t.Fatalf("register failed: %d", rec.Code)
	}
	other := tokenCookie(rec)

	cases := map[string]struct {
		cookie      *http.Cookie
		wantPrivate bool
	}{
		"anonymous": {cookie: nil, wantPrivate: false},
		"other":     {cookie: other, wantPrivate: false},
		"owner":     {cookie: owner, wantPrivate: true},
	}
	for name, tc := range cases {
		rec, env := do(router, http.MethodGet, "/user/getProfileById/1", nil, tc.cookie)
		if rec.Code != http.StatusOK {
			t.Fatalf("%s: unexpected status: %d", name, rec.Code)
		}
		var data map[string]interface{}
		if err := json.Unmarshal(env.Data, &data); err != nil {
			t.Fatalf("%s: decode failed: %v", name, err)
		}
		_, hasEmail := data["emailId"]
		_, hasAge := data["age"]
		if hasEmail != tc.wantPrivate || hasAge != tc.wantPrivate {
			t.Fatalf("%s: unexpected private fields: %v", name, data)
		}
		if data["firstName"] != "Alice" {
			t.Fatalf("%s: unexpected profile: %v", name, data)
		}
	}
}
