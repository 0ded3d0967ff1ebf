package handler

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"strconv"
	"strings"

	"github.com/google/uuid"

	"github.com/fescii/qval-sub002/pkg/jwt"
	"github.com/fescii/qval-sub002/repository"
)

// Response is the envelope returned by mutating endpoints.
type Response struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}

// UnreadCount is the payload of the unread endpoint.
type UnreadCount struct {
	Unread int32 `json:"unread"`
}

// ActivityHandler serves the per-user activity feed over HTTP: cursor
// pagination, read toggles, and soft deletes.
type ActivityHandler struct {
	repo   repository.ActivityRepository
	tokens *jwt.Manager
}

// NewActivityHandler builds the handler. A nil token manager leaves the
// endpoints open and the user hash is taken from the user query parameter,
// which matches running behind an already-authenticated gateway.
func NewActivityHandler(repo repository.ActivityRepository, tokens *jwt.Manager) *ActivityHandler {
	return &ActivityHandler{
		repo:   repo,
		tokens: tokens,
	}
}

// Register mounts the activity endpoints on the mux.
func (h *ActivityHandler) Register(mux *http.ServeMux) {
	mux.HandleFunc("GET /activities", h.List)
	mux.HandleFunc("GET /activities/unread", h.Unread)
	mux.HandleFunc("GET /activities/{id}", h.Get)
	mux.HandleFunc("POST /activities/{id}/read", h.MarkRead)
	mux.HandleFunc("POST /activities/read-all", h.MarkAllRead)
	mux.HandleFunc("DELETE /activities/{id}", h.Delete)
}

func (h *ActivityHandler) List(w http.ResponseWriter, req *http.Request) {
	userHash, ok := h.userHash(w, req)
	if !ok {
		return
	}

	first, _ := strconv.Atoi(req.URL.Query().Get("first"))
	if first <= 0 {
		first = 10
	}
	if first > 100 {
		first = 100
	}

	var after *string
	if cursor := req.URL.Query().Get("after"); cursor != "" {
		after = &cursor
	}

	connection, err := h.repo.GetByRecipient(req.Context(), userHash, first, after)
	if err != nil {
		log.Printf("Failed to list activities for %s: %v", userHash, err)
		http.Error(w, "failed to list activities", http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusOK, connection)
}

func (h *ActivityHandler) Unread(w http.ResponseWriter, req *http.Request) {
	userHash, ok := h.userHash(w, req)
	if !ok {
		return
	}

	count, err := h.repo.GetUnreadCount(req.Context(), userHash)
	if err != nil {
		log.Printf("Failed to get unread count for %s: %v", userHash, err)
		http.Error(w, "failed to get unread count", http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusOK, UnreadCount{Unread: count})
}

func (h *ActivityHandler) Get(w http.ResponseWriter, req *http.Request) {
	if _, ok := h.userHash(w, req); !ok {
		return
	}

	id, err := uuid.Parse(req.PathValue("id"))
	if err != nil {
		http.Error(w, "invalid activity id", http.StatusBadRequest)
		return
	}

	activity, err := h.repo.GetByID(req.Context(), id)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			http.Error(w, "activity not found", http.StatusNotFound)
			return
		}
		log.Printf("Failed to get activity %s: %v", id, err)
		http.Error(w, "failed to get activity", http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusOK, activity)
}

func (h *ActivityHandler) MarkRead(w http.ResponseWriter, req *http.Request) {
	userHash, ok := h.userHash(w, req)
	if !ok {
		return
	}

	id, err := uuid.Parse(req.PathValue("id"))
	if err != nil {
		http.Error(w, "invalid activity id", http.StatusBadRequest)
		return
	}

	if err := h.repo.MarkAsRead(req.Context(), id, userHash); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			http.Error(w, "activity not found", http.StatusNotFound)
			return
		}
		log.Printf("Failed to mark activity %s as read: %v", id, err)
		http.Error(w, "failed to mark activity as read", http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusOK, Response{Success: true, Message: "Activity marked as read"})
}

func (h *ActivityHandler) MarkAllRead(w http.ResponseWriter, req *http.Request) {
	userHash, ok := h.userHash(w, req)
	if !ok {
		return
	}

	if err := h.repo.MarkAllAsRead(req.Context(), userHash); err != nil {
		log.Printf("Failed to mark activities as read for %s: %v", userHash, err)
		http.Error(w, "failed to mark activities as read", http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusOK, Response{Success: true, Message: "All activities marked as read"})
}

func (h *ActivityHandler) Delete(w http.ResponseWriter, req *http.Request) {
	if _, ok := h.userHash(w, req); !ok {
		return
	}

	id, err := uuid.Parse(req.PathValue("id"))
	if err != nil {
		http.Error(w, "invalid activity id", http.StatusBadRequest)
		return
	}

	if err := h.repo.Delete(req.Context(), id); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			http.Error(w, "activity not found", http.StatusNotFound)
			return
		}
		log.Printf("Failed to delete activity %s: %v", id, err)
		http.Error(w, "failed to delete activity", http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusOK, Response{Success: true, Message: "Activity deleted successfully"})
}

// userHash resolves the requesting user. With a token manager the hash comes
// from the verified claims; without one it comes from the user query
// parameter.
func (h *ActivityHandler) userHash(w http.ResponseWriter, req *http.Request) (string, bool) {
	if h.tokens != nil {
		claims, err := h.tokens.Verify(bearerToken(req))
		if err != nil {
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return "", false
		}
		return claims.UserHash, true
	}

	userHash := req.URL.Query().Get("user")
	if userHash == "" {
		http.Error(w, "user hash is required", http.StatusBadRequest)
		return "", false
	}
	return userHash, true
}

func bearerToken(req *http.Request) string {
	if token := req.URL.Query().Get("token"); token != "" {
		return token
	}

	header := req.Header.Get("Authorization")
	if strings.HasPrefix(header, "Bearer ") {
		return strings.TrimPrefix(header, "Bearer ")
	}
	return ""
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("Failed to encode response: %v", err)
	}
}
