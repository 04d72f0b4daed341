package restclient

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/hyposync/hyposync/internal/syncerr"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	return NewClient("test-token", WithBaseURLOverride(srv.URL+"/api"), WithHTTPClient(srv.Client()))
}

func TestClientSearch(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/search" {
			t.Errorf("path = %q", r.URL.Path)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer test-token" {
			t.Errorf("Authorization = %q", got)
		}
		if got := r.URL.Query().Get("sort"); got != "updated" {
			t.Errorf("sort = %q, want default updated", got)
		}
		json.NewEncoder(w).Encode(SearchResult{
			Total: 1,
			Rows:  []Row{{"id": "a1", "updated": "2024-01-01T00:00:00Z"}},
		})
	})

	result, err := c.Search(context.Background(), SearchParams{Group: "g1"})
	if err != nil {
		t.Fatalf("Search() error = %v", err)
	}
	if len(result.Rows) != 1 || result.Rows[0]["id"] != "a1" {
		t.Errorf("Rows = %+v", result.Rows)
	}
}

func TestClientNotOkError(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
		w.Write([]byte("forbidden"))
	})

	_, err := c.Get(context.Background(), "abc")
	if err == nil {
		t.Fatal("expected error")
	}
	var notOk *syncerr.NotOkError
	if !errors.As(err, &notOk) {
		t.Fatalf("expected NotOkError, got %T: %v", err, err)
	}
	if notOk.Status != http.StatusForbidden {
		t.Errorf("Status = %d", notOk.Status)
	}
}

func TestClientPostAndDelete(t *testing.T) {
	var posted Row
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodPost:
			json.NewDecoder(r.Body).Decode(&posted)
			json.NewEncoder(w).Encode(Row{"id": "new-id"})
		case http.MethodDelete:
			w.WriteHeader(http.StatusNoContent)
		}
	})

	row, err := c.Post(context.Background(), Row{"text": "hello"})
	if err != nil {
		t.Fatalf("Post() error = %v", err)
	}
	if row["id"] != "new-id" {
		t.Errorf("Post() id = %v", row["id"])
	}
	if posted["text"] != "hello" {
		t.Errorf("server received = %+v", posted)
	}

	if err := c.Delete(context.Background(), "new-id"); err != nil {
		t.Fatalf("Delete() error = %v", err)
	}
}
