package controller_test

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"codearena/internal/common/db"
	"codearena/internal/common/http/middleware"
	judgemodel "codearena/internal/judge/model"
	"codearena/internal/problem/controller"
	"codearena/internal/problem/model"
	"codearena/internal/problem/repository"
	"codearena/internal/problem/service"
	pkgerrors "codearena/pkg/errors"
	pkgrepo "codearena/pkg/repository"

	"github.com/gin-gonic/gin"
)

type memProblems struct {
	problems []*model.Problem
}

func (m *memProblems) Create(_ context.Context, _ db.Transaction, p *model.Problem) (int64, error) {
	p.ID = int64(len(m.problems) + 1)
	stored := *p
	m.problems = append(m.problems, &stored)
	return p.ID, nil
}

func (m *memProblems) Update(_ context.Context, _ db.Transaction, p *model.Problem) error {
	for i, existing := range m.problems {
		if existing != nil && existing.ID == p.ID {
			stored := *p
			m.problems[i] = &stored
			return nil
		}
	}
	return repository.ErrProblemNotFound
}

func (m *memProblems) Delete(_ context.Context, _ db.Transaction, id int64) error {
	for i, existing := range m.problems {
		if existing != nil && existing.ID == id {
			m.problems[i] = nil
			return nil
		}
	}
	return repository.ErrProblemNotFound
}

func (m *memProblems) GetByID(_ context.Context, _ db.Transaction, id int64) (*model.Problem, error) {
	for _, existing := range m.problems {
		if existing != nil && existing.ID == id {
			out := *existing
			return &out, nil
		}
	}
	return nil, repository.ErrProblemNotFound
}

func (m *memProblems) Exists(ctx context.Context, tx db.Transaction, id int64) (bool, error) {
	_, err := m.GetByID(ctx, tx, id)
	return err == nil, nil
}

func (m *memProblems) List(_ context.Context, opts pkgrepo.ListOptions) ([]model.Summary, int64, error) {
	out := []model.Summary{}
	for _, p := range m.problems {
		if p != nil {
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

func (m *memProblems) ListByIDs(context.Context, []int64) ([]model.Summary, error) {
	return nil, nil
}

func (m *memProblems) InvalidateCache(context.Context, int64) error { return nil }

type acceptAll struct{}

func (acceptAll) Run(_ context.Context, subs []judgemodel.Submission) ([]judgemodel.Result, error) {
	out := make([]judgemodel.Result, len(subs))
	for i := range out {
		out[i].StatusID = judgemodel.StatusAccepted
	}
	return out, nil
}

type tokenAuth map[string]middleware.Identity

func (a tokenAuth) Authenticate(_ context.Context, raw string) (middleware.Identity, error) {
	identity, ok := a[raw]
	if !ok {
		return middleware.Identity{}, pkgerrors.New(pkgerrors.TokenInvalid)
	}
	return identity, nil
}

type envelope struct {
	Code    int             `json:"code"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

func newRouter() *gin.Engine {
	gin.SetMode(gin.TestMode)
	svc := service.NewProblemService(service.ProblemServiceDeps{
		Problems: &memProblems{},
		Judge:    acceptAll{},
	})
	h := controller.NewProblemController(svc)
	auth := tokenAuth{
		"admin": {UserID: 1, Role: middleware.RoleAdmin},
		"user":  {UserID: 2, Role: middleware.RoleUser},
	}
	adminOnly := middleware.AuthMiddleware(auth, middleware.RoleAdmin)

	router := gin.New()
	group := router.Group("/problem")
	group.POST("/create", adminOnly, h.Create)
	group.PUT("/update/:id", adminOnly, h.Update)
	group.DELETE("/delete/:id", adminOnly, h.Delete)
	group.GET("/problemById/:id", middleware.AuthMiddleware(auth), h.GetByID)
	group.GET("/getAllProblem", middleware.AuthMiddleware(auth), h.List)
	return router
}

func do(router http.Handler, method, path, body, token string) (*httptest.ResponseRecorder, envelope) {
	req := httptest.NewRequest(method, path, bytes.NewBufferString(body))
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	var env envelope
	_ = json.Unmarshal(rec.Body.Bytes(), &env)
	return rec, env
}

const problemBody = `{
	"title": "Two Sum",
	"description": "Add two numbers.",
	"difficulty": "easy",
	"constraints": "-10^9 <= a, b <= 10^9",
	"tags": "array, math",
	"visibleTestCases": [{"input": "1 2", "output": "3", "explanation": "1+2"}],
	"hiddenTestCases": [{"input": "5 5", "output": "10"}],
	"startCode": [{"language": "python", "initialCode": "# code"}],
	"referenceSolution": [{"language": "python", "completeCode": "print(3)"}]
}`

func TestCreateRequiresAdmin(t *testing.T) {
	router := newRouter()
	rec, _ := do(router, http.MethodPost, "/problem/create", problemBody, "user")
	if rec.Code != http.StatusForbidden {
		t.Fatalf("unexpected status: %d", rec.Code)
	}
	rec, _ = do(router, http.MethodPost, "/problem/create", problemBody, "")
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("unexpected status: %d", rec.Code)
	}
	rec, env := do(router, http.MethodPost, "/problem/create", problemBody, "admin")
	if rec.Code != http.StatusCreated || env.Message != "Problem Saved Successfully" {
		t.Fatalf("unexpected response: %d %s", rec.Code, rec.Body.String())
	}
}

func TestGetHidesHiddenCases(t *testing.T) {
	router := newRouter()
	do(router, http.MethodPost, "/problem/create", problemBody, "admin")
	rec, env := do(router, http.MethodGet, "/problem/problemById/1", "", "user")
	if rec.Code != http.StatusOK {
		t.Fatalf("unexpected status: %d", rec.Code)
	}
	var detail map[string]any
	if err := json.Unmarshal(env.Data, &detail); err != nil {
		t.Fatalf("decode failed: %v", err)
	}
	if _, ok := detail["hiddenTestCases"]; ok {
		t.Fatalf("hidden cases leaked: %v", detail)
	}
	if detail["title"] != "Two Sum" || detail["constraints"] != "-10^9 <= a, b <= 10^9" {
		t.Fatalf("unexpected detail: %v", detail)
	}

	rec, _ = do(router, http.MethodGet, "/problem/problemById/abc", "", "user")
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("unexpected status: %d", rec.Code)
	}
	rec, _ = do(router, http.MethodGet, "/problem/problemById/9", "", "user")
	if rec.Code != http.StatusNotFound {
		t.Fatalf("unexpected status: %d", rec.Code)
	}
}

func TestListPlainAndPaged(t *testing.T) {
	router := newRouter()
	rec, env := do(router, http.MethodGet, "/problem/getAllProblem", "", "user")
	if rec.Code != http.StatusNotFound || env.Message != "Problem is Missing" {
		t.Fatalf("unexpected response: %d %s", rec.Code, env.Message)
	}
	for i := 0; i < 3; i++ {
		do(router, http.MethodPost, "/problem/create", problemBody, "admin")
	}

	_, env = do(router, http.MethodGet, "/problem/getAllProblem", "", "user")
	var all map[string]json.RawMessage
	if err := json.Unmarshal(env.Data, &all); err != nil {
		t.Fatalf("decode failed: %v", err)
	}
	if string(all["total"]) != "3" {
		t.Fatalf("unexpected total: %s", env.Data)
	}
	if _, ok := all["page"]; ok {
		t.Fatalf("unpaged response carries page fields: %s", env.Data)
	}
	var problems []model.Summary
	if err := json.Unmarshal(all["problems"], &problems); err != nil || len(problems) != 3 {
		t.Fatalf("expected 3 problems, got %s", env.Data)
	}

	_, env = do(router, http.MethodGet, "/problem/getAllProblem?page=2&limit=2", "", "user")
	var page controller.ProblemPage
	if err := json.Unmarshal(env.Data, &page); err != nil {
		t.Fatalf("decode failed: %v", err)
	}
	if page.Total != 3 || page.TotalPages != 2 || len(page.Problems) != 1 {
		t.Fatalf("unexpected page: %+v", page)
	}

	rec, env = do(router, http.MethodGet, "/problem/getAllProblem?page=3&limit=2", "", "user")
	if rec.Code != http.StatusNotFound || env.Message != "Problem is Missing" {
		t.Fatalf("page past the end should be 404, got %d %s", rec.Code, env.Message)
	}

	rec, _ = do(router, http.MethodGet, "/problem/getAllProblem?page=zero", "", "user")
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("unexpected status: %d", rec.Code)
	}
}

func TestUpdateAndDelete(t *testing.T) {
	router := newRouter()
	do(router, http.MethodPost, "/problem/create", problemBody, "admin")
	rec, env := do(router, http.MethodPut, "/problem/update/1", problemBody, "admin")
	if rec.Code != http.StatusOK || env.Message != "Problem Updated Successfully" {
		t.Fatalf("unexpected response: %d %s", rec.Code, env.Message)
	}
	rec, env = do(router, http.MethodDelete, "/problem/delete/1", "", "admin")
	if rec.Code != http.StatusOK || env.Message != "Problem Deleted Successfully" {
		t.Fatalf("unexpected response: %d %s", rec.Code, env.Message)
	}
	rec, _ = do(router, http.MethodDelete, "/problem/delete/1", "", "admin")
	if rec.Code != http.StatusNotFound {
		t.Fatalf("unexpected status: %d", rec.Code)
	}
}
