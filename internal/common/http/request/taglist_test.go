package request

import (
	"encoding/json"
	"testing"
)

func TestTagListAcceptsBothForms(t *testing.T) {
	var body struct {
		Tags TagList `json:"tags"`
	}
	if err := json.Unmarshal([]byte(`{"tags":["dp","graph"]}`), &body); err != nil || len(body.Tags) != 2 {
		t.Fatalf("array form: %v %v", body.Tags, err)
	}
	if err := json.Unmarshal([]byte(`{"tags":"dp, graph,greedy"}`), &body); err != nil || len(body.Tags) != 3 || body.Tags[1] != " graph" {
		t.Fatalf("string form: %v %v", body.Tags, err)
	}
	if err := json.Unmarshal([]byte(`{"tags":""}`), &body); err != nil || len(body.Tags) != 0 {
		t.Fatalf("empty string: %v %v", body.Tags, err)
	}
	if err := json.Unmarshal([]byte(`{"tags":42}`), &body); err == nil {
		t.Fatalf("expected error for number")
	}
}
