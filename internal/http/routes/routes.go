// Package routes wires the portal's HTTP surface: session auth against
// the hosted backend, admin CRUD for beneficiary records, the offline
// shell endpoints, and the SMS broadcast flow.
package routes

import (
	"context"
	"encoding/json"
	"net/http"

	scs "github.com/alexedwards/scs/v2"
	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/hibiken/asynq"
	"github.com/rs/zerolog"

	"github.com/compassionsafe/portal/internal/backend"
	"github.com/compassionsafe/portal/internal/connectivity"
	appmw "github.com/compassionsafe/portal/internal/http/middleware"
	"github.com/compassionsafe/portal/internal/store"
	"github.com/compassionsafe/portal/internal/syncq"
	"github.com/compassionsafe/portal/internal/visibility"
)

// TaskEnqueuer is the slice of asynq.Client the broadcast flow uses.
type TaskEnqueuer interface {
	Enqueue(task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error)
}

type Server struct {
	Router  *chi.Mux
	Sess    *scs.SessionManager
	BE      *backend.Client
	Store   *store.Store // nil when local storage is unavailable
	Monitor *connectivity.Monitor
	Sync    *syncq.Coordinator
	Tasks   TaskEnqueuer // nil when no job queue is configured
	Log     zerolog.Logger
}

type ServerOptions struct {
	Sess    *scs.SessionManager
	BE      *backend.Client
	Store   *store.Store
	Monitor *connectivity.Monitor
	Sync    *syncq.Coordinator
	Tasks   TaskEnqueuer
	Log     zerolog.Logger
}

func New(opts ServerOptions) *Server {
	r := chi.NewRouter()
	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(chimw.Recoverer)

	s := &Server{
		Router: r, Sess: opts.Sess, BE: opts.BE, Store: opts.Store,
		Monitor: opts.Monitor, Sync: opts.Sync, Tasks: opts.Tasks, Log: opts.Log,
	}

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte("ok"))
	})

	r.Post("/api/login", s.handleLogin)
	r.Post("/api/logout", s.handleLogout)

	// offline shell endpoints work unauthenticated so the shell stays
	// usable when the backend is unreachable
	r.Get("/api/offline/status", s.handleOfflineStatus)
	r.Get("/api/offline/note", s.handleOfflineNoteGet)
	r.Put("/api/offline/note", s.handleOfflineNoteSet)
	r.Get("/api/offline/queue", s.handleQueueList)
	r.Post("/api/offline/queue", s.handleQueuePush)
	r.Post("/api/offline/sync", s.handleSyncNow)

	r.Group(func(pr chi.Router) {
		pr.Use(s.sessionToContext)
		pr.Use(appmw.RequireAuth)
		pr.Get("/api/me", s.handleMe)
		pr.Get("/api/my/profile", s.handleMyProfile)

		pr.Group(func(ar chi.Router) {
			ar.Use(appmw.RequireAdmin)
			ar.Get("/api/profiles", s.handleListProfiles)
			ar.Post("/api/profiles", s.handleCreateProfile)
			ar.Get("/api/profiles/{profileID}", s.handleGetProfile)
			ar.Patch("/api/profiles/{profileID}", s.handleUpdateProfile)
			ar.Delete("/api/profiles/{profileID}", s.handleDeactivateProfile)
			ar.Get("/api/profiles/{profileID}/categories", s.handleListCategories)
			ar.Post("/api/profiles/{profileID}/categories", s.handleUpsertCategory)
			ar.Delete("/api/categories/{categoryID}", s.handleDeleteCategory)
			ar.Post("/api/profiles/{profileID}/files", s.handleUploadFile)
			ar.Delete("/api/profiles/{profileID}/files", s.handleRemoveFile)
			ar.Get("/api/profiles/{profileID}/files/url", s.handleFileURL)
			ar.Post("/api/sms/broadcast", s.handleBroadcast)
		})
	})

	return s
}

func (s *Server) sessionToContext(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		if id := s.Sess.GetString(ctx, "user_id"); id != "" {
			ctx = context.WithValue(ctx, appmw.UserIDKey, id)
			role := visibility.Role(s.Sess.GetString(ctx, "role"))
			ctx = context.WithValue(ctx, appmw.RoleKey, role)
			r = r.WithContext(ctx)
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) sessionUser(r *http.Request) (id string, role visibility.Role) {
	id, _ = r.Context().Value(appmw.UserIDKey).(string)
	role, _ = r.Context().Value(appmw.RoleKey).(visibility.Role)
	return id, role
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.Log.Error().Err(err).Msg("encode response")
	}
}

func (s *Server) writeError(w http.ResponseWriter, status int, msg string) {
	s.writeJSON(w, status, map[string]string{"error": msg})
}

func decode(r *http.Request, v any) error {
	defer func() { _ = r.Body.Close() }()
	return json.NewDecoder(r.Body).Decode(v)
}
