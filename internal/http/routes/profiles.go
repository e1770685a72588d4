package routes

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/compassionsafe/portal/internal/backend"
	"github.com/compassionsafe/portal/internal/visibility"
)

// Profile is one beneficiary record as stored by the backend.
type Profile struct {
	ID             string   `json:"id,omitempty"`
	UserID         string   `json:"user_id,omitempty"`
	FullName       string   `json:"full_name"`
	ChildNumber    string   `json:"child_number"`
	Description    string   `json:"description,omitempty"`
	IsActive       bool     `json:"is_active"`
	ProfilePicture string   `json:"profile_picture,omitempty"`
	Files          []string `json:"files,omitempty"`
}

// Category is one case-data record attached to a profile: background
// information, home visit, health records, gifts, spiritual
// development, academic records, career dream, commitment forms.
type Category struct {
	ID          string          `json:"id,omitempty"`
	ProfileID   string          `json:"profile_id"`
	Name        string          `json:"name"`
	Data        json.RawMessage `json:"data,omitempty"`
	UserVisible bool            `json:"user_visible"`
}

const filesBucket = "files"

func (s *Server) handleListProfiles(w http.ResponseWriter, r *http.Request) {
	var profiles []Profile
	if err := s.BE.SelectEq(r.Context(), "profiles", "is_active", "true", &profiles); err != nil {
		s.writeError(w, http.StatusBadGateway, "backend unavailable")
		return
	}
	if profiles == nil {
		profiles = []Profile{}
	}
	s.writeJSON(w, http.StatusOK, profiles)
}

func (s *Server) handleCreateProfile(w http.ResponseWriter, r *http.Request) {
	var p Profile
	if err := decode(r, &p); err != nil || p.FullName == "" || p.ChildNumber == "" {
		s.writeError(w, http.StatusBadRequest, "full_name and child_number required")
		return
	}
	p.ID = uuid.NewString()
	p.IsActive = true
	if err := s.BE.Insert(r.Context(), "profiles", p); err != nil {
		s.writeError(w, http.StatusBadGateway, "backend unavailable")
		return
	}
	s.writeJSON(w, http.StatusCreated, p)
}

func (s *Server) handleGetProfile(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "profileID")
	var p Profile
	err := s.BE.SelectSingle(r.Context(), "profiles", "id", id, &p)
	if errors.Is(err, backend.ErrNotFound) {
		s.writeError(w, http.StatusNotFound, "profile not found")
		return
	}
	if err != nil {
		s.writeError(w, http.StatusBadGateway, "backend unavailable")
		return
	}
	s.writeJSON(w, http.StatusOK, p)
}

func (s *Server) handleUpdateProfile(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "profileID")
	var patch map[string]any
	if err := decode(r, &patch); err != nil || len(patch) == 0 {
		s.writeError(w, http.StatusBadRequest, "empty patch")
		return
	}
	delete(patch, "id") // the row key never changes
	if err := s.BE.Update(r.Context(), "profiles", "id", id, patch); err != nil {
		s.writeError(w, http.StatusBadGateway, "backend unavailable")
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "updated"})
}

// handleDeactivateProfile soft-deletes: the record stays for the
// sponsorship history, it just stops appearing in listings.
func (s *Server) handleDeactivateProfile(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "profileID")
	if err := s.BE.Update(r.Context(), "profiles", "id", id, map[string]bool{"is_active": false}); err != nil {
		s.writeError(w, http.StatusBadGateway, "backend unavailable")
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "deactivated"})
}

func (s *Server) handleListCategories(w http.ResponseWriter, r *http.Request) {
	profileID := chi.URLParam(r, "profileID")
	var cats []Category
	if err := s.BE.SelectEq(r.Context(), "categories", "profile_id", profileID, &cats); err != nil {
		s.writeError(w, http.StatusBadGateway, "backend unavailable")
		return
	}
	if cats == nil {
		cats = []Category{}
	}
	s.writeJSON(w, http.StatusOK, cats)
}

func (s *Server) handleUpsertCategory(w http.ResponseWriter, r *http.Request) {
	profileID := chi.URLParam(r, "profileID")
	var c Category
	if err := decode(r, &c); err != nil || c.Name == "" {
		s.writeError(w, http.StatusBadRequest, "category name required")
		return
	}
	c.ProfileID = profileID
	if c.ID == "" {
		c.ID = uuid.NewString()
		if err := s.BE.Insert(r.Context(), "categories", c); err != nil {
			s.writeError(w, http.StatusBadGateway, "backend unavailable")
			return
		}
		s.writeJSON(w, http.StatusCreated, c)
		return
	}
	if err := s.BE.Update(r.Context(), "categories", "id", c.ID, c); err != nil {
		s.writeError(w, http.StatusBadGateway, "backend unavailable")
		return
	}
	s.writeJSON(w, http.StatusOK, c)
}

func (s *Server) handleDeleteCategory(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "categoryID")
	if err := s.BE.Delete(r.Context(), "categories", "id", id); err != nil {
		s.writeError(w, http.StatusBadGateway, "backend unavailable")
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
}

func (s *Server) handleUploadFile(w http.ResponseWriter, r *http.Request) {
	profileID := chi.URLParam(r, "profileID")
	name := r.URL.Query().Get("name")
	if name == "" {
		s.writeError(w, http.StatusBadRequest, "name query parameter required")
		return
	}
	data, err := io.ReadAll(http.MaxBytesReader(w, r.Body, 25<<20))
	if err != nil {
		s.writeError(w, http.StatusBadRequest, "read upload")
		return
	}
	contentType := r.Header.Get("Content-Type")
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	path := profileID + "/" + uuid.NewString() + "-" + name
	if err := s.BE.Upload(r.Context(), filesBucket, path, data, contentType); err != nil {
		s.writeError(w, http.StatusBadGateway, "upload failed")
		return
	}
	s.writeJSON(w, http.StatusCreated, map[string]string{"path": path})
}

func (s *Server) handleRemoveFile(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Paths []string `json:"paths"`
	}
	if err := decode(r, &req); err != nil || len(req.Paths) == 0 {
		s.writeError(w, http.StatusBadRequest, "paths required")
		return
	}
	if err := s.BE.Remove(r.Context(), filesBucket, req.Paths); err != nil {
		s.writeError(w, http.StatusBadGateway, "remove failed")
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "removed"})
}

func (s *Server) handleFileURL(w http.ResponseWriter, r *http.Request) {
	path := r.URL.Query().Get("path")
	if path == "" {
		s.writeError(w, http.StatusBadRequest, "path query parameter required")
		return
	}
	u, err := s.BE.SignedURL(r.Context(), filesBucket, path, time.Hour)
	if err != nil {
		s.writeError(w, http.StatusBadGateway, "sign failed")
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]string{"url": u})
}

// handleMyProfile is the beneficiary's read-only view: own profile
// plus only the user-visible categories.
func (s *Server) handleMyProfile(w http.ResponseWriter, r *http.Request) {
	userID, role := s.sessionUser(r)

	var p Profile
	err := s.BE.SelectSingle(r.Context(), "profiles", "user_id", userID, &p)
	if errors.Is(err, backend.ErrNotFound) {
		s.writeError(w, http.StatusNotFound, "no profile for this account")
		return
	}
	if err != nil {
		s.writeError(w, http.StatusBadGateway, "backend unavailable")
		return
	}
	if !visibility.CanViewProfile(role, userID, p.UserID) {
		s.writeError(w, http.StatusForbidden, "forbidden")
		return
	}

	var cats []Category
	if err := s.BE.SelectEq(r.Context(), "categories", "profile_id", p.ID, &cats); err != nil {
		s.writeError(w, http.StatusBadGateway, "backend unavailable")
		return
	}
	visible := make([]Category, 0, len(cats))
	for _, c := range cats {
		if visibility.CanViewCategory(role, userID, p.UserID, c.UserVisible) {
			visible = append(visible, c)
		}
	}
	s.writeJSON(w, http.StatusOK, map[string]any{"profile": p, "categories": visible})
}
