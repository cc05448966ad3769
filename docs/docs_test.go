package docs

import (
	"strings"
	"testing"

	json "github.com/goccy/go-json"
	"github.com/swaggo/swag"
)

func TestRegisteredDocIsValidJSON(t *testing.T) {
	doc, err := swag.ReadDoc()
	if err != nil {
		t.Fatalf("read doc: %v", err)
	}
	var v struct {
		Info  struct{ Title string } `json:"info"`
		Paths map[string]any         `json:"paths"`
	}
	if err := json.Unmarshal([]byte(doc), &v); err != nil {
		t.Fatalf("doc is not JSON: %v\n%s", err, doc)
	}
	if v.Info.Title != "npud API" {
		t.Fatalf("title %q", v.Info.Title)
	}
	for _, p := range []string{"/api/generate", "/api/chat", "/v1/chat/completions", "/api/tags"} {
		if _, ok := v.Paths[p]; !ok {
			t.Fatalf("missing path %s", p)
		}
	}
	if !strings.Contains(doc, `"swagger": "2.0"`) {
		t.Fatalf("unexpected doc header")
	}
}
