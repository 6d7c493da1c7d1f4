package cli

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
)

type recordedRequest struct {
	Method string
	Path   string
	Query  string
	Body   map[string]any
}

type fakeServer struct {
	*httptest.Server
	mu       sync.Mutex
	requests []recordedRequest
}

func newFakeServer(t *testing.T, routes map[string]any) *fakeServer {
	t.Helper()
	f := &fakeServer{}
	f.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rec := recordedRequest{Method: r.Method, Path: r.URL.Path, Query: r.URL.RawQuery}
		if raw, _ := io.ReadAll(r.Body); len(raw) > 0 {
			_ = json.Unmarshal(raw, &rec.Body)
		}
		f.mu.Lock()
		f.requests = append(f.requests, rec)
		f.mu.Unlock()

		payload, ok := routes[r.Method+" "+r.URL.Path]
		if !ok {
			w.WriteHeader(http.StatusNotFound)
			_ = json.NewEncoder(w).Encode(map[string]any{"success": false, "error": "not found"})
			return
		}
		_ = json.NewEncoder(w).Encode(payload)
	}))
	t.Cleanup(f.Close)
	return f
}

func (f *fakeServer) last() recordedRequest {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.requests[len(f.requests)-1]
}

func run(t *testing.T, server *fakeServer, args ...string) (string, error) {
	t.Helper()
	dir := t.TempDir()
	t.Setenv("XDG_CONFIG_HOME", dir)
	t.Setenv("HOME", dir)
	t.Setenv("PLEXSHARE_SERVER", "")
	t.Setenv("PLEXSHARE_TOKEN", "")

	var out bytes.Buffer
	root := NewRootCmd(&out)
	root.SetArgs(append([]string{"--server", server.URL, "--token", "op"}, args...))
	err := root.Execute()
	return out.String(), err
}

func TestUsersList(t *testing.T) {
	server := newFakeServer(t, map[string]any{
		"GET /api/users": map[string]any{
			"success": true,
			"data": []map[string]any{
				{"id": "u1", "email": "a@x.com", "status": "active", "expiryDate": "2024-06-30T00:00:00Z",
					"sections": []map[string]any{{"key": "1", "title": "Movies"}}},
			},
			"pagination": map[string]any{"page": 1, "limit": 50, "total": 1, "totalPages": 1},
		},
	})

	out, err := run(t, server, "users", "list", "--sort", "Email", "--desc")
	if err != nil {
		t.Fatalf("users list failed: %v", err)
	}
	if !strings.Contains(out, "a@x.com") || !strings.Contains(out, "Movies") {
		t.Errorf("unexpected output %q", out)
	}
	if q := server.last().Query; !strings.Contains(q, "sort=Email") || !strings.Contains(q, "desc=true") {
		t.Errorf("unexpected query %q", q)
	}
}

func TestUsersInvite(t *testing.T) {
	server := newFakeServer(t, map[string]any{
		"POST /api/users/invite": map[string]any{"success": true, "message": "invitation sent to b@x.com"},
	})

	out, err := run(t, server, "users", "invite", "b@x.com", "--name", "Bea", "--section", "1", "--section", "2")
	if err != nil {
		t.Fatalf("users invite failed: %v", err)
	}
	if strings.TrimSpace(out) != "invitation sent to b@x.com" {
		t.Errorf("unexpected output %q", out)
	}
	body := server.last().Body
	if body["email"] != "b@x.com" || body["name"] != "Bea" || len(body["sectionKeys"].([]any)) != 2 {
		t.Errorf("unexpected body %+v", body)
	}
}

func TestUsersUpdateSendsOnlyChangedFields(t *testing.T) {
	server := newFakeServer(t, map[string]any{
		"PUT /api/users/u1": map[string]any{"success": true, "message": "user updated"},
	})

	if _, err := run(t, server, "users", "update", "u1", "--never-expire"); err != nil {
		t.Fatalf("users update failed: %v", err)
	}
	body := server.last().Body
	if len(body) != 1 || body["neverExpire"] != true {
		t.Errorf("unexpected body %+v", body)
	}

	if _, err := run(t, server, "users", "update", "u1"); err == nil {
		t.Error("expected an error when nothing is changed")
	}
}

func TestImportCommit(t *testing.T) {
	server := newFakeServer(t, map[string]any{
		"POST /api/imports/sections":        map[string]any{"success": true, "message": "2 new sections"},
		"POST /api/imports/sections/commit": map[string]any{"success": true, "message": "imported 2 sections"},
	})

	out, err := run(t, server, "import", "sections", "--commit")
	if err != nil {
		t.Fatalf("import sections failed: %v", err)
	}
	if !strings.Contains(out, "2 new sections") || !strings.Contains(out, "imported 2 sections") {
		t.Errorf("unexpected output %q", out)
	}
	if server.last().Path != "/api/imports/sections/commit" {
		t.Errorf("expected the commit to be the last call, got %s", server.last().Path)
	}
}

func TestServerErrorIsReturned(t *testing.T) {
	server := newFakeServer(t, map[string]any{})

	_, err := run(t, server, "users", "delete", "missing")
	if err == nil || !strings.Contains(err.Error(), "not found") {
		t.Fatalf("expected a not found error, got %v", err)
	}
}

func TestSettingsSet(t *testing.T) {
	server := newFakeServer(t, map[string]any{
		"PUT /api/settings": map[string]any{"success": true, "message": "settings saved",
			"data": map[string]any{"defaultExpiryDays": 60, "allowSync": true, "logLevel": "INFO"}},
	})

	out, err := run(t, server, "settings", "set", "defaultExpiryDays=60", "allowSync=true")
	if err != nil {
		t.Fatalf("settings set failed: %v", err)
	}
	if !strings.Contains(out, "settings saved") {
		t.Errorf("unexpected output %q", out)
	}
	body := server.last().Body
	if body["defaultExpiryDays"] != float64(60) || body["allowSync"] != true {
		t.Errorf("unexpected body %+v", body)
	}
}

func TestParseAssignments(t *testing.T) {
	tests := []struct {
		name    string
		args    []string
		wantErr bool
	}{
		{"valid", []string{"logLevel=DEBUG", "enableAllTasks=false"}, false},
		{"missing equals", []string{"logLevel"}, true},
		{"unknown key", []string{"color=blue"}, true},
		{"bad number", []string{"defaultExpiryDays=soon"}, true},
		{"bad bool", []string{"allowSync=maybe"}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := parseAssignments(tt.args)
			if (err != nil) != tt.wantErr {
				t.Errorf("parseAssignments(%v) error = %v, wantErr %v", tt.args, err, tt.wantErr)
			}
		})
	}
}
