package command

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
)

func mustCommand(t *testing.T, key string) Command {
	t.Helper()
	cmd, ok := Registry()[key]
	if !ok {
		t.Fatalf("command %q not registered", key)
	}
	return cmd
}

func TestBuildRequestPathAndQuery(t *testing.T) {
	req, err := BuildRequest(mustCommand(t, "problem submissions"), Params{"id": "7"})
	if err != nil {
		t.Fatalf("build request failed: %v", err)
	}
	if req.Method != "GET" || req.Path != "/problem/submittedProblem/7" || req.Body != nil {
		t.Fatalf("unexpected request: %+v", req)
	}

	req, err = BuildRequest(mustCommand(t, "problem list"), Params{"page": "2", "limit": "5"})
	if err != nil {
		t.Fatalf("build request failed: %v", err)
	}
	if req.Path != "/problem/getAllProblem?limit=5&page=2" {
		t.Fatalf("unexpected path: %s", req.Path)
	}

	if _, err := BuildRequest(mustCommand(t, "discuss comment"), Params{"text": "hi"}); err == nil {
		t.Fatalf("expected missing path parameter error")
	}
}

func TestBuildRequestTypedBody(t *testing.T) {
	params := Params{}
	params.Set("title", "Arrays 101")
	params.Set("problems", "1, 2,3")
	params.Set("public", "true")
	req, err := BuildRequest(mustCommand(t, "sheet create"), params)
	if err != nil {
		t.Fatalf("build request failed: %v", err)
	}
	var body struct {
		Title    string  `json:"title"`
		Problems []int64 `json:"problems"`
		IsPublic bool    `json:"isPublic"`
	}
	if err := json.Unmarshal(req.Body, &body); err != nil {
		t.Fatalf("decode body failed: %v", err)
	}
	if body.Title != "Arrays 101" || len(body.Problems) != 3 || body.Problems[2] != 3 || !body.IsPublic {
		t.Fatalf("unexpected body: %+v", body)
	}

	params = Params{}
	params.Set("title", "x")
	params.Set("problems", "1,a")
	if _, err := BuildRequest(mustCommand(t, "sheet create"), params); err == nil {
		t.Fatalf("expected invalid list error")
	}
}

func TestBuildSubmissionFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "main.cpp")
	if err := os.WriteFile(path, []byte("int main(){}"), 0o600); err != nil {
		t.Fatalf("write source failed: %v", err)
	}
	params := Params{"id": "3", "language": "cpp", "code": "_file_", "file": path, "key": "abc"}
	req, err := BuildRequest(mustCommand(t, "submission submit"), params)
	if err != nil {
		t.Fatalf("build request failed: %v", err)
	}
	if req.Path != "/submission/submit/3" || req.Headers["Idempotency-Key"] != "abc" {
		t.Fatalf("unexpected request: %+v", req)
	}
	var body map[string]string
	if err := json.Unmarshal(req.Body, &body); err != nil {
		t.Fatalf("decode body failed: %v", err)
	}
	if body["code"] != "int main(){}" || body["language"] != "cpp" {
		t.Fatalf("unexpected body: %v", body)
	}
}

func TestBuildChatBody(t *testing.T) {
	req, err := BuildRequest(mustCommand(t, "ai chat"), Params{"message": "hint?", "title": "Two Sum"})
	if err != nil {
		t.Fatalf("build request failed: %v", err)
	}
	var body struct {
		Messages []struct {
			Role  string `json:"role"`
			Parts []struct {
				Text string `json:"text"`
			} `json:"parts"`
		} `json:"messages"`
		Title string `json:"title"`
	}
	if err := json.Unmarshal(req.Body, &body); err != nil {
		t.Fatalf("decode body failed: %v", err)
	}
	if len(body.Messages) != 1 || body.Messages[0].Role != "user" || body.Messages[0].Parts[0].Text != "hint?" || body.Title != "Two Sum" {
		t.Fatalf("unexpected body: %s", req.Body)
	}
}

func TestEmptyBodyForBareCommands(t *testing.T) {
	req, err := BuildRequest(mustCommand(t, "user logout"), Params{})
	if err != nil {
		t.Fatalf("build request failed: %v", err)
	}
	if req.Body != nil {
		t.Fatalf("expected empty body, got %s", req.Body)
	}
}
