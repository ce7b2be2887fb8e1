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
	"errors"
	"net/http"

	"github.com/google/uuid"
	"github.com/gorilla/mux"

	"github.com/efchatnet/efepoch/backend/middleware"
	"github.com/efchatnet/efepoch/backend/models"
	"github.com/efchatnet/efepoch/backend/storage"
)

type ConversationHandler struct {
	store storage.ConversationStore
}

func NewConversationHandler(store storage.ConversationStore) *ConversationHandler {
	return &ConversationHandler{store: store}
}

// CreateConversation creates a conversation with the caller as owner.
// POST /api/epoch/conversations
func (h *ConversationHandler) CreateConversation(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.GetUserID(r)
	if !ok {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	var req struct {
		ConversationID  string `json:"conversation_id,omitempty"`
		MemberPublicKey []byte `json:"member_public_key"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	if len(req.MemberPublicKey) != 32 {
		http.Error(w, "member_public_key must be 32 bytes", http.StatusBadRequest)
		return
	}
	if req.ConversationID == "" {
		req.ConversationID = uuid.New().String()
	}

	conv := models.Conversation{
		ConversationID: req.ConversationID,
		CreatedBy:      userID,
	}
	owner := models.ConversationMember{
		ConversationID:   req.ConversationID,
		Identity:         userID,
		MemberPublicKey:  req.MemberPublicKey,
		Privilege:        models.PrivilegeOwner,
		VisibleFromEpoch: 1,
	}
	if err := h.store.CreateConversation(conv, owner); err != nil {
		http.Error(w, "Failed to create conversation", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(map[string]string{"conversation_id": req.ConversationID})
}

// GetConversation returns the conversation and its current epoch
// pointer, which the client needs before building a rotation.
// GET /api/epoch/conversations/{conversationId}
func (h *ConversationHandler) GetConversation(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.GetUserID(r)
	if !ok {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}
	conversationID := mux.Vars(r)["conversationId"]

	if _, err := h.store.GetMember(conversationID, userID); err != nil {
		http.Error(w, "Not a member", http.StatusForbidden)
		return
	}

	conv, err := h.store.GetConversation(conversationID)
	if err != nil {
		http.Error(w, "Conversation not found", http.StatusNotFound)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(conv)
}

// AddMember adds a user to the conversation. The new member sees
// epochs from the next rotation onward; history before their join
// stays dark to them.
// POST /api/epoch/conversations/{conversationId}/members
func (h *ConversationHandler) AddMember(w http.ResponseWriter, r *http.Request) {
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
		Identity        string `json:"identity"`
		MemberPublicKey []byte `json:"member_public_key"`
		Privilege       string `json:"privilege"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	if req.Identity == "" || len(req.MemberPublicKey) != 32 {
		http.Error(w, "identity and 32-byte member_public_key are required", http.StatusBadRequest)
		return
	}
	if req.Privilege == "" {
		req.Privilege = models.PrivilegeWrite
	}

	conv, err := h.store.GetConversation(conversationID)
	if err != nil {
		http.Error(w, "Conversation not found", http.StatusNotFound)
		return
	}

	member := models.ConversationMember{
		ConversationID:   conversationID,
		Identity:         req.Identity,
		MemberPublicKey:  req.MemberPublicKey,
		Privilege:        req.Privilege,
		VisibleFromEpoch: conv.CurrentEpoch + 1,
	}
	if err := h.store.AddMember(member); err != nil {
		if errors.Is(err, storage.ErrMemberExists) {
			http.Error(w, "Identity already a member", http.StatusConflict)
			return
		}
		http.Error(w, "Failed to add member", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(map[string]interface{}{
		"identity":           req.Identity,
		"visible_from_epoch": member.VisibleFromEpoch,
	})
}

// RemoveMember marks a membership ended. The caller is expected to
// follow up with a rotation that excludes the removed key.
// DELETE /api/epoch/conversations/{conversationId}/members/{identity}
func (h *ConversationHandler) RemoveMember(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.GetUserID(r)
	if !ok {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}
	vars := mux.Vars(r)
	conversationID := vars["conversationId"]
	identity := vars["identity"]

	caller, err := h.store.GetMember(conversationID, userID)
	if err != nil {
		http.Error(w, "Forbidden", http.StatusForbidden)
		return
	}
	// Members may leave on their own; removing anyone else takes
	// admin or owner.
	if identity != userID && !models.CanManageMembers(caller.Privilege) {
		http.Error(w, "Forbidden", http.StatusForbidden)
		return
	}

	if err := h.store.RemoveMember(conversationID, identity); err != nil {
		http.Error(w, "Not an active member", http.StatusNotFound)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{"status": "removed"})
}

// GetMembers lists active members with their public keys, which the
// rotating client wraps the new epoch key for.
// GET /api/epoch/conversations/{conversationId}/members
func (h *ConversationHandler) GetMembers(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.GetUserID(r)
	if !ok {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}
	conversationID := mux.Vars(r)["conversationId"]

	if _, err := h.store.GetMember(conversationID, userID); err != nil {
		http.Error(w, "Forbidden", http.StatusForbidden)
		return
	}

	members, err := h.store.GetActiveMembers(conversationID)
	if err != nil {
		http.Error(w, "Failed to list members", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]interface{}{
		"conversation_id": conversationID,
		"members":         members,
	})
}
