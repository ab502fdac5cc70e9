package response

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"codearena/pkg/errors"

	"github.com/gin-gonic/gin"
)

func newContext() (*gin.Context, *httptest.ResponseRecorder) {
	gin.SetMode(gin.TestMode)
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request = httptest.NewRequest(http.MethodGet, "/", nil)
	c.Set("trace_id", "trace-xyz")
	return c, w
}

func TestErrorUsesCodeStatus(t *testing.T) {
	c, w := newContext()
	Error(c, errors.New(errors.ProblemNotFound))

	if w.Code != http.StatusNotFound {
		t.Fatalf("unexpected status: %d", w.Code)
	}
	var resp Response
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode failed: %v", err)
	}
	if resp.Code != errors.ProblemNotFound || resp.TraceID != "trace-xyz" {
		t.Fatalf("unexpected response: %+v", resp)
	}
}

func TestCreatedStatus(t *testing.T) {
	c, w := newContext()
	Created(c, "Registered Successfully", gin.H{"id": 1})
	if w.Code != http.StatusCreated {
		t.Fatalf("unexpected status: %d", w.Code)
	}
}

func TestNewPaginatedRoundsUp(t *testing.T) {
	p := NewPaginated([]int{1}, 21, 2, 10)
	if p.TotalPages != 3 {
		t.Fatalf("unexpected total pages: %d", p.TotalPages)
	}
	if NewPaginated(nil, 5, 1, 0).TotalPages != 0 {
		t.Fatalf("expected zero pages for zero page size")
	}
}
