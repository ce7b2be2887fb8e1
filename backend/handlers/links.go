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

	"github.com/google/uuid"
	"github.com/gorilla/mux"

	"github.com/efchatnet/efepoch/backend/middleware"
	"github.com/efchatnet/efepoch/backend/models"
	"github.com/efchatnet/efepoch/backend/storage"
)

type LinkHandler struct {
	store storage.Store
}

func NewLinkHandler(store storage.Store) *LinkHandler {
	return &LinkHandler{store: store}
}

// CreateLink mints a revocable guest identity. The client generates
// the link keypair, embeds the private half in the URL fragment it
// hands out, and registers only the public half here.
// POST /api/epoch/conversations/{conversationId}/links
func (h *LinkHandler) CreateLink(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.GetUserID(r)
	if !ok {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}
	conversationID := mux.Vars(r)["conversationId"]

	caller, err := h.store.GetMember(conversationID, userID)
	if err != nil || !models.CanManageMembers(caller.Privilege) {
		http.Error(w, "Forbidden", http.StatusForbidden)
		return
	}

	var req struct {
		LinkPublicKey []byte `json:"link_public_key"`
		Privilege     string `json:"privilege"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	if len(req.LinkPublicKey) != 32 {
		http.Error(w, "link_public_key must be 32 bytes", http.StatusBadRequest)
		return
	}
	if req.Privilege == "" {
		req.Privilege = models.PrivilegeRead
	}

	conv, err := h.store.GetConversation(conversationID)
	if err != nil {
		http.Error(w, "Conversation not found", http.StatusNotFound)
		return
	}

	linkID := uuid.New().String()
	link := models.SharedLink{
		LinkID:         linkID,
		ConversationID: conversationID,
		LinkPublicKey:  req.LinkPublicKey,
		Privilege:      req.Privilege,
	}
	member := models.ConversationMember{
		ConversationID:   conversationID,
		Identity:         linkID,
		MemberPublicKey:  req.LinkPublicKey,
		Privilege:        req.Privilege,
		VisibleFromEpoch: conv.CurrentEpoch + 1,
	}
	if err := h.store.CreateLink(link, member); err != nil {
		http.Error(w, "Failed to create link", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(map[string]interface{}{
		"link_id":            linkID,
		"visible_from_epoch": member.VisibleFromEpoch,
	})
}

// RevokeLink kills a guest identity. The caller then rotates so the
// link's key is excluded from every future epoch.
// DELETE /api/epoch/conversations/{conversationId}/links/{linkId}
func (h *LinkHandler) RevokeLink(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.GetUserID(r)
	if !ok {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}
	vars := mux.Vars(r)
	conversationID := vars["conversationId"]
	linkID := vars["linkId"]

	caller, err := h.store.GetMember(conversationID, userID)
	if err != nil || !models.CanManageMembers(caller.Privilege) {
		http.Error(w, "Forbidden", http.StatusForbidden)
		return
	}

	if err := h.store.RevokeLink(conversationID, linkID); err != nil {
		http.Error(w, "Link not found", http.StatusNotFound)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{"status": "revoked"})
}

// GetLinkEpochs is the read path for link holders. There is no session
// here: possession of the link is the credential, and the private key
// in the URL fragment is what actually unlocks the wraps.
// GET /api/epoch/links/{linkId}/epochs
func (h *LinkHandler) GetLinkEpochs(w http.ResponseWriter, r *http.Request) {
	linkID := mux.Vars(r)["linkId"]

	link, err := h.store.GetLink(linkID)
	if err != nil {
		http.Error(w, "Link not found", http.StatusNotFound)
		return
	}
	if link.RevokedAt != nil {
		http.Error(w, "Link revoked", http.StatusGone)
		return
	}

	member, err := h.store.GetMember(link.ConversationID, linkID)
	if err != nil {
		http.Error(w, "Link not found", http.StatusNotFound)
		return
	}

	views, err := h.store.GetEpochsForMember(link.ConversationID, member.MemberPublicKey, member.VisibleFromEpoch)
	if err != nil {
		http.Error(w, "Failed to load epochs", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]interface{}{
		"conversation_id":    link.ConversationID,
		"visible_from_epoch": member.VisibleFromEpoch,
		"epochs":             views,
	})
}
