package api

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
)

func TestNewClient(t *testing.T) {
	t.Run("appends the api prefix", func(t *testing.T) {
		client := NewClient("http://localhost:8080/", "test-token")
		if client.BaseURL != "http://localhost:8080/api" {
			t.Errorf("expected BaseURL 'http://localhost:8080/api', got %s", client.BaseURL)
		}
		if client.Token != "test-token" {
			t.Errorf("expected Token 'test-token', got %s", client.Token)
		}
	})

	t.Run("sets a timeout", func(t *testing.T) {
		client := NewClient("http://localhost:8080", "")
		if client.HTTPClient == nil || client.HTTPClient.Timeout == 0 {
			t.Error("expected HTTPClient with a timeout")
		}
	})
}

func TestAPIError(t *testing.T) {
	err := &APIError{Status: 404, Message: "not found"}
	if err.Error() != "api: 404 - not found" {
		t.Errorf("unexpected error message %q", err.Error())
	}
}

func TestClient_Get(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			t.Errorf("expected GET request, got %s", r.Method)
		}
		if r.URL.Path != "/api/users" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if r.Header.Get("Authorization") != "Bearer test-token" {
			t.Errorf("unexpected Authorization header %q", r.Header.Get("Authorization"))
		}
		if r.URL.Query().Get("sort") != "Expiry Date" {
			t.Errorf("expected sort query, got %q", r.URL.RawQuery)
		}
		_ = json.NewEncoder(w).Encode(map[string]any{
			"success":    true,
			"data":       []map[string]any{{"id": "u1", "email": "a@x.com", "status": "active"}},
			"pagination": map[string]any{"page": 1, "limit": 50, "total": 1, "totalPages": 1},
		})
	}))
	defer server.Close()

	client := NewClient(server.URL, "test-token")
	var resp Response[[]User]
	if err := client.Get("/users", url.Values{"sort": {"Expiry Date"}}, &resp); err != nil {
		t.Fatalf("Get() returned error: %v", err)
	}
	if len(resp.Data) != 1 || resp.Data[0].Email != "a@x.com" || resp.Pagination.Total != 1 {
		t.Errorf("unexpected response %+v", resp)
	}
}

func TestClient_Post(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Content-Type") != "application/json" {
			t.Errorf("expected JSON content type, got %q", r.Header.Get("Content-Type"))
		}
		raw, _ := io.ReadAll(r.Body)
		var body InviteRequest
		if err := json.Unmarshal(raw, &body); err != nil {
			t.Fatalf("invalid body %q", raw)
		}
		if body.Email != "b@x.com" || len(body.SectionKeys) != 1 {
			t.Errorf("unexpected body %+v", body)
		}
		w.WriteHeader(http.StatusCreated)
		_ = json.NewEncoder(w).Encode(map[string]any{"success": true, "message": "invitation sent to b@x.com"})
	}))
	defer server.Close()

	client := NewClient(server.URL, "")
	var resp Response[User]
	if err := client.Post("/users/invite", InviteRequest{Email: "b@x.com", SectionKeys: []string{"1"}}, &resp); err != nil {
		t.Fatalf("Post() returned error: %v", err)
	}
	if resp.Message != "invitation sent to b@x.com" {
		t.Errorf("unexpected message %q", resp.Message)
	}
}

func TestClient_Errors(t *testing.T) {
	t.Run("uses the envelope error", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusConflict)
			_ = json.NewEncoder(w).Encode(map[string]any{"success": false, "error": "a user with this email already exists"})
		}))
		defer server.Close()

		err := NewClient(server.URL, "").Post("/users/invite", InviteRequest{Email: "a@x.com"}, nil)
		var apiErr *APIError
		if !errors.As(err, &apiErr) {
			t.Fatalf("expected APIError, got %v", err)
		}
		if apiErr.Status != http.StatusConflict || apiErr.Message != "a user with this email already exists" {
			t.Errorf("unexpected error %+v", apiErr)
		}
	})

	t.Run("falls back to the raw body", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, "bad gateway", http.StatusBadGateway)
		}))
		defer server.Close()

		err := NewClient(server.URL, "").Delete("/users/x", nil)
		var apiErr *APIError
		if !errors.As(err, &apiErr) || apiErr.Message != "bad gateway" {
			t.Fatalf("unexpected error %v", err)
		}
	})
}
