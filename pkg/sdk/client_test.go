package retrieval

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func newClientServer(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return New(srv.URL, "secret", WithStoreName("archive"))
}

func TestClient_Upsert(t *testing.T) {
	var gotAuth, gotStore string
	c := newClientServer(t, func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		gotStore = r.Header.Get("pinecone_name")

		if r.Method != http.MethodPost || r.URL.Path != "/upsert" {
			t.Errorf("unexpected request: %s %s", r.Method, r.URL.Path)
		}

		var body struct {
			Documents []Document `json:"documents"`
		}
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			t.Fatalf("decode: %v", err)
		}
		if len(body.Documents) != 1 || body.Documents[0].Text != "hello" {
			t.Errorf("documents: %+v", body.Documents)
		}

		_ = json.NewEncoder(w).Encode(map[string][]string{"ids": {"doc1"}})
	})

	ids, err := c.Upsert(t.Context(), []Document{{Text: "hello"}})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(ids) != 1 || ids[0] != "doc1" {
		t.Errorf("ids: got %v", ids)
	}
	if gotAuth != "Bearer secret" {
		t.Errorf("auth header: got %q", gotAuth)
	}
	if gotStore != "archive" {
		t.Errorf("store header: got %q", gotStore)
	}
}

func TestClient_Query(t *testing.T) {
	c := newClientServer(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/query" {
			t.Errorf("path: %s", r.URL.Path)
		}
		_ = json.NewEncoder(w).Encode(map[string]any{
			"results": []QueryResult{
				{Query: "q", Results: []ScoredChunk{{ID: "doc1_0", Score: 0.9}}},
			},
		})
	})

	results, err := c.Query(t.Context(), []Query{{Query: "q"}})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(results) != 1 || results[0].Results[0].ID != "doc1_0" {
		t.Errorf("results: %+v", results)
	}
}

func TestClient_UpsertFile(t *testing.T) {
	c := newClientServer(t, func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseMultipartForm(1 << 20); err != nil {
			t.Fatalf("parse multipart: %v", err)
		}
		f, header, err := r.FormFile("file")
		if err != nil {
			t.Fatalf("form file: %v", err)
		}
		defer f.Close()

		if header.Filename != "notes.txt" {
			t.Errorf("filename: got %q", header.Filename)
		}
		if r.FormValue("metadata") == "" {
			t.Error("metadata field missing")
		}

		_ = json.NewEncoder(w).Encode(map[string][]string{"ids": {"generated"}})
	})

	ids, err := c.UpsertFile(t.Context(), "notes.txt", strings.NewReader("contents"),
		&DocumentMetadata{Author: "alice"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(ids) != 1 {
		t.Errorf("ids: got %v", ids)
	}
}

func TestClient_Delete(t *testing.T) {
	c := newClientServer(t, func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodDelete {
			t.Errorf("method: %s", r.Method)
		}
		var body map[string]any
		_ = json.NewDecoder(r.Body).Decode(&body)
		if body["delete_all"] != true {
			t.Errorf("body: %v", body)
		}
		_ = json.NewEncoder(w).Encode(map[string]bool{"success": true})
	})

	ok, err := c.Delete(t.Context(), nil, nil, true)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !ok {
		t.Error("expected success")
	}
}

func TestClient_APIError(t *testing.T) {
	c := newClientServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		_ = json.NewEncoder(w).Encode(map[string]string{"detail": "Invalid or missing token"})
	})

	_, err := c.Query(t.Context(), []Query{{Query: "q"}})

	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("expected APIError, got %v", err)
	}
	if apiErr.StatusCode != http.StatusUnauthorized {
		t.Errorf("status: got %d", apiErr.StatusCode)
	}
	if apiErr.Detail != "Invalid or missing token" {
		t.Errorf("detail: got %q", apiErr.Detail)
	}
}

func TestClient_NonJSONError(t *testing.T) {
	c := newClientServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
		_, _ = w.Write([]byte("upstream timeout"))
	})

	_, err := c.Query(t.Context(), []Query{{Query: "q"}})

	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("expected APIError, got %v", err)
	}
	if apiErr.Detail != "upstream timeout" {
		t.Errorf("detail: got %q", apiErr.Detail)
	}
}
