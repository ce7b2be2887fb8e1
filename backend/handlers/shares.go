// Copyright (C) 2025 efchat.net <tj@efchat.net>
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
// GNU General Public License for more details.
//
// You should have received a copy of the GNU General Public License
// along with this program.  If not, see <https://www.gnu.org/licenses/>.

package handlers

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"

	"github.com/efchatnet/efepoch/backend/middleware"
	"github.com/efchatnet/efepoch/backend/models"
	"github.com/efchatnet/efepoch/backend/storage"
)

// Shares live at most this long regardless of what the client asks
// for.
const maxShareTTL = 30 * 24 * time.Hour

type ShareHandler struct {
	store storage.ShareStore
}

func NewShareHandler(store storage.ShareStore) *ShareHandler {
	return &ShareHandler{store: store}
}

// CreateShare persists an opaque share blob. The share secret stays in
// the creator's URL fragment and never arrives here.
// POST /api/epoch/shares
func (h *ShareHandler) CreateShare(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.GetUserID(r)
	if !ok {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	var req struct {
		Blob       []byte `json:"blob"`
		TTLSeconds int    `json:"ttl_seconds,omitempty"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	if len(req.Blob) == 0 {
		http.Error(w, "blob is required", http.StatusBadRequest)
		return
	}

	ttl := time.Duration(req.TTLSeconds) * time.Second
	if ttl <= 0 || ttl > maxShareTTL {
		ttl = 7 * 24 * time.Hour
	}

	share := models.MessageShare{
		ShareID:   uuid.New().String(),
		Blob:      req.Blob,
		CreatedBy: userID,
		CreatedAt: time.Now(),
		ExpiresAt: time.Now().Add(ttl),
	}
	if err := h.store.SaveShare(share); err != nil {
		http.Error(w, "Failed to save share", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(map[string]interface{}{
		"share_id":   share.ShareID,
		"expires_at": share.ExpiresAt,
	})
}

// GetShare returns a share blob. Unauthenticated: anyone holding the
// share URL may fetch the blob, and without the fragment secret the
// blob is just noise.
// GET /api/epoch/shares/{shareId}
func (h *ShareHandler) GetShare(w http.ResponseWriter, r *http.Request) {
	shareID := mux.Vars(r)["shareId"]

	share, err := h.store.GetShare(shareID)
	if err != nil {
		http.Error(w, "Share not found", http.StatusNotFound)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(share)
}

// DeleteShare removes a share before its TTL runs out.
// DELETE /api/epoch/shares/{shareId}
func (h *ShareHandler) DeleteShare(w http.ResponseWriter, r *http.Request) {
	if _, ok := middleware.GetUserID(r); !ok {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}
	shareID := mux.Vars(r)["shareId"]

	if err := h.store.DeleteShare(shareID); err != nil {
		http.Error(w, "Share not found", http.StatusNotFound)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{"status": "deleted"})
}
