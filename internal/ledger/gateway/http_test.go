package gateway

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestHTTPCreate(t *testing.T) {
	var gotPath, gotMethod, gotAuth string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotMethod = r.Method
		gotAuth = r.Header.Get("Authorization")
		fmt.Fprintf(w, `{"id": "doc-42"}`)
	}))
	defer srv.Close()

	g := NewHTTP(srv.URL, WithAPIKey("secret"))
	id, err := g.Create(context.Background(), "expense", json.RawMessage(`{"amount":"12.50"}`))
	if err != nil {
		t.Fatalf("create failed: %v", err)
	}

	if id != "doc-42" {
		t.Errorf("expected doc-42, got %s", id)
	}
	if gotMethod != http.MethodPost || gotPath != "/v1/expense" {
		t.Errorf("expected POST /v1/expense, got %s %s", gotMethod, gotPath)
	}
	if gotAuth != "Bearer secret" {
		t.Errorf("expected bearer auth, got %q", gotAuth)
	}
}

func TestHTTPCreateMissingID(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprintf(w, `{}`)
	}))
	defer srv.Close()

	g := NewHTTP(srv.URL)
	if _, err := g.Create(context.Background(), "expense", nil); err == nil {
		t.Error("expected error for response without id")
	}
}

func TestHTTPUpdateAndDelete(t *testing.T) {
	var paths []string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		paths = append(paths, r.Method+" "+r.URL.Path)
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	g := NewHTTP(srv.URL)
	if err := g.Update(context.Background(), "doc-42", json.RawMessage(`{"amount":"15"}`)); err != nil {
		t.Fatalf("update failed: %v", err)
	}
	if err := g.SoftDelete(context.Background(), "doc-42"); err != nil {
		t.Fatalf("delete failed: %v", err)
	}

	want := []string{"PUT /v1/documents/doc-42", "DELETE /v1/documents/doc-42"}
	if len(paths) != 2 || paths[0] != want[0] || paths[1] != want[1] {
		t.Errorf("expected %v, got %v", want, paths)
	}
}

func TestHTTPErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "nope", http.StatusForbidden)
	}))
	defer srv.Close()

	g := NewHTTP(srv.URL)
	if _, err := g.Create(context.Background(), "expense", nil); err == nil {
		t.Error("expected error for 403 response")
	}
}

func TestHTTPCallTimeout(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-release
	}))
	defer srv.Close()
	defer close(release)

	g := NewHTTP(srv.URL, WithCallTimeout(50*time.Millisecond))

	start := time.Now()
	_, err := g.Create(context.Background(), "expense", nil)
	if err == nil {
		t.Fatal("expected timeout error")
	}
	if elapsed := time.Since(start); elapsed > 2*time.Second {
		t.Errorf("timeout took too long: %v", elapsed)
	}
}

func TestMemoryGatewayContract(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()

	id, err := m.Create(ctx, "expense", json.RawMessage(`{"a":1}`))
	if err != nil {
		t.Fatalf("create failed: %v", err)
	}

	if err := m.Update(ctx, id, json.RawMessage(`{"a":2}`)); err != nil {
		t.Fatalf("update failed: %v", err)
	}
	if err := m.Update(ctx, "missing", nil); err == nil {
		t.Error("expected error for unknown document")
	}

	// Soft delete keeps the document and repeats are no-ops.
	if err := m.SoftDelete(ctx, id); err != nil {
		t.Fatalf("delete failed: %v", err)
	}
	if err := m.SoftDelete(ctx, id); err != nil {
		t.Fatalf("repeat delete failed: %v", err)
	}
	doc, ok := m.Get(id)
	if !ok || !doc.Deleted {
		t.Error("expected soft-deleted document to remain")
	}
}
