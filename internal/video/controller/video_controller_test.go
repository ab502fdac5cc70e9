package controller_test

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"codearena/internal/common/db"
	"codearena/internal/common/http/middleware"
	"codearena/internal/common/storage"
	"codearena/internal/video/controller"
	"codearena/internal/video/repository"
	"codearena/internal/video/service"
	pkgerrors "codearena/pkg/errors"

	"github.com/gin-gonic/gin"
)

type memVideos map[int64]*repository.Video

func (m memVideos) Create(_ context.Context, _ db.Transaction, v *repository.Video) (int64, error) {
	if _, ok := m[v.ProblemID]; ok {
		return 0, repository.ErrVideoExists
	}
	v.ID = int64(len(m) + 1)
	stored := *v
	m[v.ProblemID] = &stored
	return v.ID, nil
}

func (m memVideos) GetByProblem(_ context.Context, _ db.Transaction, problemID int64) (*repository.Video, error) {
	v, ok := m[problemID]
	if !ok {
		return nil, repository.ErrVideoNotFound
	}
	return v, nil
}

func (m memVideos) DeleteByProblem(_ context.Context, _ db.Transaction, problemID int64) (bool, error) {
	_, ok := m[problemID]
	delete(m, problemID)
	return ok, nil
}

type allUploaded struct{}

func (allUploaded) PresignPut(_ context.Context, _, key string, _ time.Duration) (string, error) {
	return "https://minio/" + key + "?put", nil
}

func (allUploaded) PresignGet(_ context.Context, _, key string, _ time.Duration) (string, error) {
	return "https://minio/" + key + "?get", nil
}

func (allUploaded) StatObject(context.Context, string, string) (storage.ObjectStat, error) {
	return storage.ObjectStat{SizeBytes: 10}, nil
}

func (allUploaded) ListObjects(context.Context, string, string) <-chan storage.ObjectInfo {
	ch := make(chan storage.ObjectInfo)
	close(ch)
	return ch
}

func (allUploaded) RemoveObjects(context.Context, string, []string) error { return nil }

type problemOne struct{}

func (problemOne) Exists(_ context.Context, id int64) (bool, error) { return id == 1, nil }

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
	svc := service.NewVideoService(memVideos{}, problemOne{}, allUploaded{}, service.Config{Bucket: "media"})
	h := controller.NewVideoController(svc)
	auth := tokenAuth{
		"admin": {UserID: 1, Role: middleware.RoleAdmin},
		"user":  {UserID: 2, Role: middleware.RoleUser},
	}
	router := gin.New()
	group := router.Group("/video", middleware.AuthMiddleware(auth, middleware.RoleAdmin))
	group.GET("/create/:problemId", h.CreateUpload)
	group.POST("/save", h.Save)
	group.DELETE("/delete/:problemId", h.Delete)
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

func TestVideoLifecycle(t *testing.T) {
	router := newRouter()

	rec, env := do(router, http.MethodGet, "/video/create/1", "", "admin")
	if rec.Code != http.StatusOK {
		t.Fatalf("unexpected status: %d %s", rec.Code, rec.Body.String())
	}
	var ticket service.UploadTicket
	if err := json.Unmarshal(env.Data, &ticket); err != nil || ticket.ObjectKey == "" {
		t.Fatalf("unexpected ticket: %s", env.Data)
	}

	body := `{"problemId": 1, "objectKey": "` + ticket.ObjectKey + `", "thumbnailKey": "` + ticket.ThumbnailKey + `", "duration": 90}`
	rec, env = do(router, http.MethodPost, "/video/save", body, "admin")
	if rec.Code != http.StatusCreated || env.Message != "Video saved successfully" {
		t.Fatalf("unexpected response: %d %s", rec.Code, rec.Body.String())
	}
	rec, _ = do(router, http.MethodPost, "/video/save", body, "admin")
	if rec.Code != http.StatusConflict {
		t.Fatalf("unexpected status: %d", rec.Code)
	}

	rec, env = do(router, http.MethodDelete, "/video/delete/1", "", "admin")
	if rec.Code != http.StatusOK || env.Message != "Video deleted successfully" {
		t.Fatalf("unexpected response: %d %s", rec.Code, env.Message)
	}
	rec, _ = do(router, http.MethodDelete, "/video/delete/1", "", "admin")
	if rec.Code != http.StatusNotFound {
		t.Fatalf("unexpected status: %d", rec.Code)
	}
}

func TestVideoRoutesRejectBadInput(t *testing.T) {
	router := newRouter()
	if rec, _ := do(router, http.MethodGet, "/video/create/1", "", "user"); rec.Code != http.StatusForbidden {
		t.Fatalf("unexpected status: %d", rec.Code)
	}
	if rec, _ := do(router, http.MethodGet, "/video/create/x", "", "admin"); rec.Code != http.StatusBadRequest {
		t.Fatalf("unexpected status: %d", rec.Code)
	}
	if rec, _ := do(router, http.MethodGet, "/video/create/5", "", "admin"); rec.Code != http.StatusNotFound {
		t.Fatalf("unexpected status: %d", rec.Code)
	}
	if rec, _ := do(router, http.MethodPost, "/video/save", `{"problemId": 1}`, "admin"); rec.Code != http.StatusBadRequest {
		t.Fatalf("unexpected status: %d", rec.Code)
	}
}
