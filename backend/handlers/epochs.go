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

	"github.com/gorilla/mux"

	"github.com/efchatnet/efepoch/backend/middleware"
	"github.com/efchatnet/efepoch/backend/models"
	"github.com/efchatnet/efepoch/backend/storage"
)

type EpochHandler struct {
	store storage.Store
}

func NewEpochHandler(store storage.Store) *EpochHandler {
	return &EpochHandler{store: store}
}

// SubmitRotation commits a client-proposed epoch. A lost race comes
// back as 409 with the winner's epoch so the client can rebuild and
// resubmit; that conflict is the protocol's one retryable error.
// POST /api/epoch/conversations/{conversationId}/epochs
func (h *EpochHandler) SubmitRotation(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.GetUserID(r)
	if !ok {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}
	conversationID := mux.Vars(r)["conversationId"]

	caller, err := h.store.GetMember(conversationID, userID)
	if err != nil || !models.CanRotate(caller.Privilege) {
		http.Error(w, "Forbidden", http.StatusForbidden)
		return
	}

	var req models.RotationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	req.ConversationID = conversationID
	if req.EpochNumber < 1 || len(req.ConfirmationHash) != 32 {
		http.Error(w, "epoch_number and 32-byte confirmation_hash are required", http.StatusBadRequest)
		return
	}
	if req.EpochNumber == 1 && len(req.ChainLink) > 0 {
		http.Error(w, "epoch 1 cannot carry a chain link", http.StatusBadRequest)
		return
	}
	if req.EpochNumber > 1 && len(req.ChainLink) == 0 {
		http.Error(w, "chain_link is required after epoch 1", http.StatusBadRequest)
		return
	}

	epoch, err := h.store.SubmitRotation(req)
	if err != nil {
		var stale *storage.StaleEpochError
		if errors.As(err, &stale) {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusConflict)
			json.NewEncoder(w).Encode(map[string]interface{}{
				"status":               "stale",
				"current_epoch_id":     stale.CurrentEpochID,
				"current_epoch_number": stale.CurrentEpochNumber,
			})
			return
		}
		if errors.Is(err, storage.ErrConversationNotFound) {
			http.Error(w, "Conversation not found", http.StatusNotFound)
			return
		}
		http.Error(w, "Failed to commit rotation", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(map[string]interface{}{
		"status":       "committed",
		"epoch_id":     epoch.EpochID,
		"epoch_number": epoch.EpochNumber,
	})
}

// GetEpochs is the read path for decrypting history: everything the
// caller may see, ascending, with wraps addressed to their registered
// public key.
// GET /api/epoch/conversations/{conversationId}/epochs
func (h *EpochHandler) GetEpochs(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.GetUserID(r)
	if !ok {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}
	conversationID := mux.Vars(r)["conversationId"]

	member, err := h.store.GetMember(conversationID, userID)
	if err != nil {
		http.Error(w, "Forbidden", http.StatusForbidden)
		return
	}

	views, err := h.store.GetEpochsForMember(conversationID, member.MemberPublicKey, member.VisibleFromEpoch)
	if err != nil {
		http.Error(w, "Failed to load epochs", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]interface{}{
		"conversation_id":    conversationID,
		"visible_from_epoch": member.VisibleFromEpoch,
		"epochs":             views,
	})
}
