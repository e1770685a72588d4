package routes

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/cookiejar"
	"net/http/httptest"
	"path/filepath"
	"testing"

	scs "github.com/alexedwards/scs/v2"
	"github.com/hibiken/asynq"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/compassionsafe/portal/internal/backend"
	"github.com/compassionsafe/portal/internal/connectivity"
	"github.com/compassionsafe/portal/internal/store"
	"github.com/compassionsafe/portal/internal/syncq"
)

// fakeBackend is the hosted service: auth, user_roles, profiles,
// categories, and a sink for replayed offline writes.
func fakeBackend(t *testing.T) (*httptest.Server, *[]string) {
	t.Helper()
	var inserted []string
	mux := http.NewServeMux()

	mux.HandleFunc("/auth/v1/token", func(w http.ResponseWriter, r *http.Request) {
		var creds map[string]string
		_ = json.NewDecoder(r.Body).Decode(&creds)
		if creds["password"] != "secret" {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		id := "user-1"
		if creds["email"] == "admin@example.org" {
			id = "admin-1"
		}
		_ = json.NewEncoder(w).Encode(map[string]any{
			"access_token": "tok-" + id,
			"user":         map[string]string{"id": id, "email": creds["email"]},
		})
	})
	mux.HandleFunc("/auth/v1/logout", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})
	mux.HandleFunc("/rest/v1/user_roles", func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("user_id") == "eq.admin-1" {
			_, _ = w.Write([]byte(`[{"role":"admin"}]`))
			return
		}
		_, _ = w.Write([]byte(`[]`))
	})
	mux.HandleFunc("/rest/v1/profiles", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			w.WriteHeader(http.StatusCreated)
			return
		}
		if r.URL.Query().Get("user_id") == "eq.user-1" {
			_, _ = w.Write([]byte(`[{"id":"p1","user_id":"user-1","full_name":"Amina K","child_number":"12345","is_active":true}]`))
			return
		}
		_, _ = w.Write([]byte(`[{"id":"p1","user_id":"user-1","full_name":"Amina K","child_number":"12345","is_active":true}]`))
	})
	mux.HandleFunc("/rest/v1/categories", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			w.WriteHeader(http.StatusCreated)
			return
		}
		_, _ = w.Write([]byte(`[
			{"id":"c1","profile_id":"p1","name":"academic_records","user_visible":true},
			{"id":"c2","profile_id":"p1","name":"home_visit","user_visible":false}
		]`))
	})
	mux.HandleFunc("/rest/v1/offline_notes", func(w http.ResponseWriter, r *http.Request) {
		inserted = append(inserted, "offline_notes")
		w.WriteHeader(http.StatusCreated)
	})
	mux.HandleFunc("/", func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`[]`))
	})

	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv, &inserted
}

type fakeEnqueuer struct {
	tasks []*asynq.Task
}

func (f *fakeEnqueuer) Enqueue(task *asynq.Task, _ ...asynq.Option) (*asynq.TaskInfo, error) {
	f.tasks = append(f.tasks, task)
	return &asynq.TaskInfo{}, nil
}

type testPortal struct {
	srv    *httptest.Server
	client *http.Client
	store  *store.Store
	tasks  *fakeEnqueuer
	seen   *[]string
}

func newTestPortal(t *testing.T) *testPortal {
	t.Helper()
	be, inserted := fakeBackend(t)
	beClient := backend.NewClient(be.URL, "anon-key")

	st, err := store.Open(filepath.Join(t.TempDir(), "portal.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })

	monitor := connectivity.NewMonitor(true)
	coord := &syncq.Coordinator{
		Queue:    st,
		Replayer: &syncq.BackendReplayer{Backend: beClient},
		Monitor:  monitor,
		Log:      zerolog.Nop(),
	}
	tasks := &fakeEnqueuer{}

	sess := scs.New()
	s := New(ServerOptions{
		Sess: sess, BE: beClient, Store: st,
		Monitor: monitor, Sync: coord, Tasks: tasks, Log: zerolog.Nop(),
	})

	srv := httptest.NewServer(sess.LoadAndSave(s.Router))
	t.Cleanup(srv.Close)

	jar, err := cookiejar.New(nil)
	require.NoError(t, err)
	return &testPortal{srv: srv, client: &http.Client{Jar: jar}, store: st, tasks: tasks, seen: inserted}
}

func (p *testPortal) do(t *testing.T, method, path string, body any) *http.Response {
	t.Helper()
	var rd *bytes.Reader
	if body != nil {
		b, err := json.Marshal(body)
		require.NoError(t, err)
		rd = bytes.NewReader(b)
	} else {
		rd = bytes.NewReader(nil)
	}
	req, err := http.NewRequest(method, p.srv.URL+path, rd)
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	resp, err := p.client.Do(req)
	require.NoError(t, err)
	return resp
}

func (p *testPortal) login(t *testing.T, email string) {
	t.Helper()
	resp := p.do(t, "POST", "/api/login", map[string]string{"email": email, "password": "secret"})
	defer func() { _ = resp.Body.Close() }()
	require.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestLoginAssignsRoleFromBackend(t *testing.T) {
	p := newTestPortal(t)

	resp := p.do(t, "POST", "/api/login", map[string]string{"email": "admin@example.org", "password": "secret"})
	defer func() { _ = resp.Body.Close() }()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var out map[string]string
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	require.Equal(t, "admin", out["role"])
}

func TestLoginRejectsBadCredentials(t *testing.T) {
	p := newTestPortal(t)
	resp := p.do(t, "POST", "/api/login", map[string]string{"email": "admin@example.org", "password": "nope"})
	defer func() { _ = resp.Body.Close() }()
	require.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestAdminRoutesForbiddenForUsers(t *testing.T) {
	p := newTestPortal(t)
	p.login(t, "user@example.org")

	resp := p.do(t, "GET", "/api/profiles", nil)
	defer func() { _ = resp.Body.Close() }()
	require.Equal(t, http.StatusForbidden, resp.StatusCode)
}

func TestAdminListsProfiles(t *testing.T) {
	p := newTestPortal(t)
	p.login(t, "admin@example.org")

	resp := p.do(t, "GET", "/api/profiles", nil)
	defer func() { _ = resp.Body.Close() }()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var profiles []Profile
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&profiles))
	require.Len(t, profiles, 1)
	require.Equal(t, "Amina K", profiles[0].FullName)
}

func TestUnauthenticatedRedirectsToLogin(t *testing.T) {
	p := newTestPortal(t)
	p.client.CheckRedirect = func(*http.Request, []*http.Request) error {
		return http.ErrUseLastResponse
	}
	resp := p.do(t, "GET", "/api/my/profile", nil)
	defer func() { _ = resp.Body.Close() }()
	require.Equal(t, http.StatusSeeOther, resp.StatusCode)
}

func TestMyProfileFiltersHiddenCategories(t *testing.T) {
	p := newTestPortal(t)
	p.login(t, "user@example.org")

	resp := p.do(t, "GET", "/api/my/profile", nil)
	defer func() { _ = resp.Body.Close() }()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var out struct {
		Profile    Profile    `json:"profile"`
		Categories []Category `json:"categories"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	require.Equal(t, "p1", out.Profile.ID)
	require.Len(t, out.Categories, 1, "hidden category must be filtered out")
	require.Equal(t, "academic_records", out.Categories[0].Name)
}

func TestOfflineNoteRoundTrip(t *testing.T) {
	p := newTestPortal(t)

	resp := p.do(t, "PUT", "/api/offline/note", map[string]string{"note": "clinic visit at 10"})
	_ = resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp = p.do(t, "GET", "/api/offline/note", nil)
	defer func() { _ = resp.Body.Close() }()
	var out struct {
		Note   string `json:"note"`
		Cached bool   `json:"cached"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	require.True(t, out.Cached)
	require.Equal(t, "clinic visit at 10", out.Note)
}

func TestQueuePushListAndSync(t *testing.T) {
	p := newTestPortal(t)

	resp := p.do(t, "POST", "/api/offline/queue", syncq.QueuedWrite{Type: "note", Data: json.RawMessage(`"first"`)})
	_ = resp.Body.Close()
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	resp = p.do(t, "POST", "/api/offline/queue", syncq.QueuedWrite{Type: "note", Data: json.RawMessage(`"second"`)})
	_ = resp.Body.Close()

	resp = p.do(t, "GET", "/api/offline/queue", nil)
	var entries []store.QueueEntry
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&entries))
	_ = resp.Body.Close()
	require.Len(t, entries, 2)
	require.Less(t, entries[0].ID, entries[1].ID)

	resp = p.do(t, "POST", "/api/offline/sync", nil)
	_ = resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Len(t, *p.seen, 2, "both queued writes replayed to the backend")

	resp = p.do(t, "GET", "/api/offline/queue", nil)
	entries = nil
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&entries))
	_ = resp.Body.Close()
	require.Empty(t, entries)
}

func TestOfflineStatus(t *testing.T) {
	p := newTestPortal(t)
	resp := p.do(t, "GET", "/api/offline/status", nil)
	defer func() { _ = resp.Body.Close() }()

	var out struct {
		Online  bool `json:"online"`
		Pending int  `json:"pending"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	require.True(t, out.Online)
	require.Zero(t, out.Pending)
}

func TestBroadcastFansOutPerRecipient(t *testing.T) {
	p := newTestPortal(t)
	p.login(t, "admin@example.org")

	resp := p.do(t, "POST", "/api/sms/broadcast", broadcastRequest{
		Phones:  []string{"+254700111222", "+254700333444", "+254700555666"},
		Message: "Visit day moved to Friday",
	})
	defer func() { _ = resp.Body.Close() }()
	require.Equal(t, http.StatusAccepted, resp.StatusCode)

	var out struct {
		Queued    int `json:"queued"`
		Requested int `json:"requested"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	require.Equal(t, 3, out.Queued)
	require.Equal(t, 3, out.Requested)
	require.Len(t, p.tasks.tasks, 3)
	require.Equal(t, "sms:send", p.tasks.tasks[0].Type())
}
