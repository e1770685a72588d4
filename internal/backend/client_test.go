package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

// mockBackend records requests and serves canned rows, the same way
// the hosted service's REST surface behaves.
type mockBackend struct {
	server   *httptest.Server
	requests []recordedRequest
}

type recordedRequest struct {
	Method string
	Path   string
	Query  string
	Body   string
}

func newMockBackend() *mockBackend {
	m := &mockBackend{}
	mux := http.NewServeMux()

	mux.HandleFunc("/auth/v1/token", func(w http.ResponseWriter, r *http.Request) {
		m.record(r)
		var creds map[string]string
		_ = json.NewDecoder(r.Body).Decode(&creds)
		if creds["password"] == "wrong" {
			w.WriteHeader(http.StatusBadRequest)
			_, _ = w.Write([]byte(`{"message":"Invalid login credentials"}`))
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]any{
			"access_token": "tok-123",
			"user":         map[string]string{"id": "user-1", "email": creds["email"]},
		})
	})
	mux.HandleFunc("/auth/v1/logout", func(w http.ResponseWriter, r *http.Request) {
		m.record(r)
		w.WriteHeader(http.StatusNoContent)
	})
	mux.HandleFunc("/rest/v1/profiles", func(w http.ResponseWriter, r *http.Request) {
		m.record(r)
		switch r.Method {
		case http.MethodGet:
			if r.URL.Query().Get("user_id") == "eq.user-1" {
				_, _ = w.Write([]byte(`[{"id":"p1","user_id":"user-1","full_name":"Amina K"}]`))
				return
			}
			_, _ = w.Write([]byte(`[]`))
		default:
			w.WriteHeader(http.StatusCreated)
		}
	})
	mux.HandleFunc("/storage/v1/object/sign/files/p1/report.pdf", func(w http.ResponseWriter, r *http.Request) {
		m.record(r)
		_, _ = w.Write([]byte(`{"signedURL":"/storage/v1/object/sign/files/p1/report.pdf?token=abc"}`))
	})
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		m.record(r)
		w.WriteHeader(http.StatusOK)
	})

	m.server = httptest.NewServer(mux)
	return m
}

func (m *mockBackend) record(r *http.Request) {
	b, _ := io.ReadAll(r.Body)
	r.Body = io.NopCloser(bytes.NewReader(b))
	m.requests = append(m.requests, recordedRequest{
		Method: r.Method, Path: r.URL.Path, Query: r.URL.RawQuery, Body: string(b),
	})
}

func (m *mockBackend) last() recordedRequest {
	return m.requests[len(m.requests)-1]
}

func TestSignInReturnsSession(t *testing.T) {
	m := newMockBackend()
	defer m.server.Close()
	c := NewClient(m.server.URL, "anon-key")

	sess, err := c.SignIn(context.Background(), "admin@example.org", "secret")
	if err != nil {
		t.Fatalf("SignIn: %v", err)
	}
	if sess.AccessToken != "tok-123" || sess.UserID != "user-1" {
		t.Errorf("session = %+v", sess)
	}
}

func TestSignInBadCredentials(t *testing.T) {
	m := newMockBackend()
	defer m.server.Close()
	c := NewClient(m.server.URL, "anon-key")

	if _, err := c.SignIn(context.Background(), "admin@example.org", "wrong"); err == nil {
		t.Fatalf("expected error for bad credentials")
	}
}

func TestSelectEqBuildsEqualityFilter(t *testing.T) {
	m := newMockBackend()
	defer m.server.Close()
	c := NewClient(m.server.URL, "anon-key")

	var rows []struct {
		ID       string `json:"id"`
		FullName string `json:"full_name"`
	}
	if err := c.SelectEq(context.Background(), "profiles", "user_id", "user-1", &rows); err != nil {
		t.Fatalf("SelectEq: %v", err)
	}
	if len(rows) != 1 || rows[0].FullName != "Amina K" {
		t.Errorf("rows = %+v", rows)
	}
	if got := m.last().Query; got != "user_id=eq.user-1" {
		t.Errorf("query = %q", got)
	}
}

func TestSelectSingleNotFound(t *testing.T) {
	m := newMockBackend()
	defer m.server.Close()
	c := NewClient(m.server.URL, "anon-key")

	var row struct{}
	err := c.SelectSingle(context.Background(), "profiles", "user_id", "nobody", &row)
	if err == nil {
		t.Fatalf("expected ErrNotFound")
	}
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("error = %v, want ErrNotFound", err)
	}
}

func TestInsertPostsRow(t *testing.T) {
	m := newMockBackend()
	defer m.server.Close()
	c := NewClient(m.server.URL, "anon-key")

	err := c.Insert(context.Background(), "profiles", map[string]string{"full_name": "New Child"})
	if err != nil {
		t.Fatalf("Insert: %v", err)
	}
	last := m.last()
	if last.Method != "POST" || last.Path != "/rest/v1/profiles" {
		t.Errorf("request = %+v", last)
	}
}

func TestUpdateAndDeleteTargetFilteredRows(t *testing.T) {
	m := newMockBackend()
	defer m.server.Close()
	c := NewClient(m.server.URL, "anon-key")

	if err := c.Update(context.Background(), "profiles", "id", "p1", map[string]bool{"is_active": false}); err != nil {
		t.Fatalf("Update: %v", err)
	}
	if last := m.last(); last.Method != "PATCH" || last.Query != "id=eq.p1" {
		t.Errorf("update request = %+v", last)
	}

	if err := c.Delete(context.Background(), "categories", "id", "c9"); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if last := m.last(); last.Method != "DELETE" || last.Path != "/rest/v1/categories" {
		t.Errorf("delete request = %+v", last)
	}
}

func TestSignedURLIsAbsolute(t *testing.T) {
	m := newMockBackend()
	defer m.server.Close()
	c := NewClient(m.server.URL, "anon-key")

	u, err := c.SignedURL(context.Background(), "files", "p1/report.pdf", time.Hour)
	if err != nil {
		t.Fatalf("SignedURL: %v", err)
	}
	want := m.server.URL + "/storage/v1/object/sign/files/p1/report.pdf?token=abc"
	if u != want {
		t.Errorf("signed url = %q, want %q", u, want)
	}
}

func TestPublicURL(t *testing.T) {
	c := NewClient("https://backend.example.net", "anon-key")
	got := c.PublicURL("avatars", "p1/photo.webp")
	if got != "https://backend.example.net/storage/v1/object/public/avatars/p1/photo.webp" {
		t.Errorf("public url = %q", got)
	}
}
