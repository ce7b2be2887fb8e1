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
	"bytes"
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gorilla/mux"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/efchatnet/efepoch/backend/middleware"
	"github.com/efchatnet/efepoch/backend/models"
	"github.com/efchatnet/efepoch/backend/storage/memory"
)

const (
	testSecret = "test-secret"
	testIssuer = "efchat"
)

func signToken(t *testing.T, userID string) string {
	t.Helper()
	header := base64.RawURLEncoding.EncodeToString([]byte(`{"alg":"HS256","typ":"JWT"}`))
	claims, err := json.Marshal(middleware.Claims{
		UserID:    userID,
		SessionID: "sess-" + userID,
		ExpiresAt: time.Now().Add(time.Hour).Unix(),
		IssuedAt:  time.Now().Unix(),
		Issuer:    testIssuer,
	})
	require.NoError(t, err)
	payload := base64.RawURLEncoding.EncodeToString(claims)

	h := hmac.New(sha256.New, []byte(testSecret))
	h.Write([]byte(header + "." + payload))
	signature := base64.RawURLEncoding.EncodeToString(h.Sum(nil))

	return header + "." + payload + "." + signature
}

func newTestRouter(store *memory.Store) *mux.Router {
	conversationHandler := NewConversationHandler(store)
	epochHandler := NewEpochHandler(store)
	linkHandler := NewLinkHandler(store)
	shareHandler := NewShareHandler(store)

	r := mux.NewRouter()

	public := r.PathPrefix("/api/epoch").Subrouter()
	public.HandleFunc("/links/{linkId}/epochs", linkHandler.GetLinkEpochs).Methods("GET")
	public.HandleFunc("/shares/{shareId}", shareHandler.GetShare).Methods("GET")

	api := r.PathPrefix("/api/epoch").Subrouter()
	api.Use(middleware.NewAuthMiddleware(testSecret, testIssuer))
	api.HandleFunc("/conversations", conversationHandler.CreateConversation).Methods("POST")
	api.HandleFunc("/conversations/{conversationId}", conversationHandler.GetConversation).Methods("GET")
	api.HandleFunc("/conversations/{conversationId}/members", conversationHandler.GetMembers).Methods("GET")
	api.HandleFunc("/conversations/{conversationId}/members", conversationHandler.AddMember).Methods("POST")
	api.HandleFunc("/conversations/{conversationId}/members/{identity}", conversationHandler.RemoveMember).Methods("DELETE")
	api.HandleFunc("/conversations/{conversationId}/epochs", epochHandler.SubmitRotation).Methods("POST")
	api.HandleFunc("/conversations/{conversationId}/epochs", epochHandler.GetEpochs).Methods("GET")
	api.HandleFunc("/conversations/{conversationId}/links", linkHandler.CreateLink).Methods("POST")
	api.HandleFunc("/conversations/{conversationId}/links/{linkId}", linkHandler.RevokeLink).Methods("DELETE")
	api.HandleFunc("/shares", shareHandler.CreateShare).Methods("POST")
	api.HandleFunc("/shares/{shareId}", shareHandler.DeleteShare).Methods("DELETE")

	return r
}

func doJSON(t *testing.T, router *mux.Router, method, path, token string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(data)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func decodeBody(t *testing.T, w *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var out map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out))
	return out
}

func randomKey(t *testing.T) []byte {
	t.Helper()
	key := make([]byte, 32)
	_, err := rand.Read(key)
	require.NoError(t, err)
	return key
}

func createConversation(t *testing.T, router *mux.Router, token string, ownerKey []byte) string {
	t.Helper()
	w := doJSON(t, router, "POST", "/api/epoch/conversations", token, map[string]interface{}{
		"member_public_key": ownerKey,
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	return decodeBody(t, w)["conversation_id"].(string)
}

func submitRotation(t *testing.T, router *mux.Router, token, conversationID, expected string, number int, wraps []map[string]interface{}) *httptest.ResponseRecorder {
	t.Helper()
	body := map[string]interface{}{
		"expected_current_epoch_id": expected,
		"epoch_number":              number,
		"confirmation_hash":         randomKey(t),
		"member_wraps":              wraps,
	}
	if number > 1 {
		body["chain_link"] = randomKey(t)
	}
	return doJSON(t, router, "POST",
		fmt.Sprintf("/api/epoch/conversations/%s/epochs", conversationID), token, body)
}

func wrapFor(t *testing.T, memberKey []byte, visibleFrom int) map[string]interface{} {
	t.Helper()
	return map[string]interface{}{
		"member_public_key":  memberKey,
		"wrap":               randomKey(t),
		"visible_from_epoch": visibleFrom,
	}
}

func TestAuthRequired(t *testing.T) {
	router := newTestRouter(memory.NewStore())

	w := doJSON(t, router, "POST", "/api/epoch/conversations", "", map[string]interface{}{})
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = doJSON(t, router, "POST", "/api/epoch/conversations", "not.a.token", map[string]interface{}{})
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestRotationLifecycle(t *testing.T) {
	router := newTestRouter(memory.NewStore())
	alice := signToken(t, "alice")
	aliceKey := randomKey(t)

	conversationID := createConversation(t, router, alice, aliceKey)

	// First epoch.
	w := submitRotation(t, router, alice, conversationID, "", 1,
		[]map[string]interface{}{wrapFor(t, aliceKey, 1)})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	body := decodeBody(t, w)
	assert.Equal(t, "committed", body["status"])
	assert.Equal(t, float64(1), body["epoch_number"])
	firstEpochID := body["epoch_id"].(string)

	// Conversation pointer advanced.
	w = doJSON(t, router, "GET", "/api/epoch/conversations/"+conversationID, alice, nil)
	require.Equal(t, http.StatusOK, w.Code)
	conv := decodeBody(t, w)
	assert.Equal(t, firstEpochID, conv["current_epoch_id"])
	assert.Equal(t, float64(1), conv["current_epoch"])

	// A rotation built on the stale pre-epoch pointer loses.
	w = submitRotation(t, router, alice, conversationID, "", 1,
		[]map[string]interface{}{wrapFor(t, aliceKey, 1)})
	require.Equal(t, http.StatusConflict, w.Code)
	conflict := decodeBody(t, w)
	assert.Equal(t, "stale", conflict["status"])
	assert.Equal(t, firstEpochID, conflict["current_epoch_id"])
	assert.Equal(t, float64(1), conflict["current_epoch_number"])

	// Built on the committed pointer, the next rotation wins.
	w = submitRotation(t, router, alice, conversationID, firstEpochID, 2,
		[]map[string]interface{}{wrapFor(t, aliceKey, 1)})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	assert.Equal(t, float64(2), decodeBody(t, w)["epoch_number"])
}

func TestRotationValidation(t *testing.T) {
	router := newTestRouter(memory.NewStore())
	alice := signToken(t, "alice")
	aliceKey := randomKey(t)
	conversationID := createConversation(t, router, alice, aliceKey)

	// Epoch 1 must not carry a chain link.
	w := doJSON(t, router, "POST",
		fmt.Sprintf("/api/epoch/conversations/%s/epochs", conversationID), alice,
		map[string]interface{}{
			"epoch_number":      1,
			"confirmation_hash": randomKey(t),
			"chain_link":        randomKey(t),
		})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	// Later epochs must.
	w = doJSON(t, router, "POST",
		fmt.Sprintf("/api/epoch/conversations/%s/epochs", conversationID), alice,
		map[string]interface{}{
			"epoch_number":      2,
			"confirmation_hash": randomKey(t),
		})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	// Non-members cannot rotate.
	mallory := signToken(t, "mallory")
	w = submitRotation(t, router, mallory, conversationID, "", 1, nil)
	assert.Equal(t, http.StatusForbidden, w.Code)
}

func TestReadPathVisibility(t *testing.T) {
	router := newTestRouter(memory.NewStore())
	alice := signToken(t, "alice")
	bob := signToken(t, "bob")
	aliceKey := randomKey(t)
	bobKey := randomKey(t)

	conversationID := createConversation(t, router, alice, aliceKey)

	w := submitRotation(t, router, alice, conversationID, "", 1,
		[]map[string]interface{}{wrapFor(t, aliceKey, 1)})
	require.Equal(t, http.StatusCreated, w.Code)
	firstEpochID := decodeBody(t, w)["epoch_id"].(string)

	// Bob joins after epoch 1; his visibility starts at epoch 2.
	w = doJSON(t, router, "POST",
		fmt.Sprintf("/api/epoch/conversations/%s/members", conversationID), alice,
		map[string]interface{}{
			"identity":          "bob",
			"member_public_key": bobKey,
			"privilege":         models.PrivilegeWrite,
		})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	assert.Equal(t, float64(2), decodeBody(t, w)["visible_from_epoch"])

	w = submitRotation(t, router, alice, conversationID, firstEpochID, 2,
		[]map[string]interface{}{wrapFor(t, aliceKey, 1), wrapFor(t, bobKey, 2)})
	require.Equal(t, http.StatusCreated, w.Code)
	secondEpochID := decodeBody(t, w)["epoch_id"].(string)

	w = submitRotation(t, router, alice, conversationID, secondEpochID, 3,
		[]map[string]interface{}{wrapFor(t, aliceKey, 1), wrapFor(t, bobKey, 2)})
	require.Equal(t, http.StatusCreated, w.Code)

	// Alice sees all three epochs.
	w = doJSON(t, router, "GET",
		fmt.Sprintf("/api/epoch/conversations/%s/epochs", conversationID), alice, nil)
	require.Equal(t, http.StatusOK, w.Code)
	var aliceView struct {
		VisibleFromEpoch int                      `json:"visible_from_epoch"`
		Epochs           []models.MemberEpochView `json:"epochs"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &aliceView))
	assert.Equal(t, 1, aliceView.VisibleFromEpoch)
	require.Len(t, aliceView.Epochs, 3)

	// Bob sees epochs 2 and 3, and epoch 2 — his boundary — comes
	// without its chain link.
	w = doJSON(t, router, "GET",
		fmt.Sprintf("/api/epoch/conversations/%s/epochs", conversationID), bob, nil)
	require.Equal(t, http.StatusOK, w.Code)
	var bobView struct {
		VisibleFromEpoch int                      `json:"visible_from_epoch"`
		Epochs           []models.MemberEpochView `json:"epochs"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &bobView))
	assert.Equal(t, 2, bobView.VisibleFromEpoch)
	require.Len(t, bobView.Epochs, 2)
	assert.Equal(t, 2, bobView.Epochs[0].EpochNumber)
	assert.Empty(t, bobView.Epochs[0].ChainLink)
	assert.NotEmpty(t, bobView.Epochs[0].Wrap)
	assert.Equal(t, 3, bobView.Epochs[1].EpochNumber)
	assert.NotEmpty(t, bobView.Epochs[1].ChainLink)

	// Removed members lose the read path.
	w = doJSON(t, router, "DELETE",
		fmt.Sprintf("/api/epoch/conversations/%s/members/bob", conversationID), alice, nil)
	require.Equal(t, http.StatusOK, w.Code)

	w = doJSON(t, router, "GET",
		fmt.Sprintf("/api/epoch/conversations/%s/epochs", conversationID), bob, nil)
	assert.Equal(t, http.StatusForbidden, w.Code)
}

func TestMemberManagementAuthorization(t *testing.T) {
	router := newTestRouter(memory.NewStore())
	alice := signToken(t, "alice")
	bob := signToken(t, "bob")
	aliceKey := randomKey(t)
	bobKey := randomKey(t)

	conversationID := createConversation(t, router, alice, aliceKey)

	w := doJSON(t, router, "POST",
		fmt.Sprintf("/api/epoch/conversations/%s/members", conversationID), alice,
		map[string]interface{}{
			"identity":          "bob",
			"member_public_key": bobKey,
		})
	require.Equal(t, http.StatusCreated, w.Code)

	// bob has write privilege, not admin: no member edits.
	carolKey := randomKey(t)
	w = doJSON(t, router, "POST",
		fmt.Sprintf("/api/epoch/conversations/%s/members", conversationID), bob,
		map[string]interface{}{
			"identity":          "carol",
			"member_public_key": carolKey,
		})
	assert.Equal(t, http.StatusForbidden, w.Code)

	w = doJSON(t, router, "DELETE",
		fmt.Sprintf("/api/epoch/conversations/%s/members/alice", conversationID), bob, nil)
	assert.Equal(t, http.StatusForbidden, w.Code)

	// But bob may leave on his own.
	w = doJSON(t, router, "DELETE",
		fmt.Sprintf("/api/epoch/conversations/%s/members/bob", conversationID), bob, nil)
	assert.Equal(t, http.StatusOK, w.Code)

	// Duplicate active membership is a conflict.
	w = doJSON(t, router, "POST",
		fmt.Sprintf("/api/epoch/conversations/%s/members", conversationID), alice,
		map[string]interface{}{
			"identity":          "alice",
			"member_public_key": aliceKey,
		})
	assert.Equal(t, http.StatusConflict, w.Code)
}

func TestSharedLinkLifecycle(t *testing.T) {
	router := newTestRouter(memory.NewStore())
	alice := signToken(t, "alice")
	aliceKey := randomKey(t)
	linkKey := randomKey(t)

	conversationID := createConversation(t, router, alice, aliceKey)

	w := submitRotation(t, router, alice, conversationID, "", 1,
		[]map[string]interface{}{wrapFor(t, aliceKey, 1)})
	require.Equal(t, http.StatusCreated, w.Code)
	firstEpochID := decodeBody(t, w)["epoch_id"].(string)

	w = doJSON(t, router, "POST",
		fmt.Sprintf("/api/epoch/conversations/%s/links", conversationID), alice,
		map[string]interface{}{"link_public_key": linkKey})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	linkID := decodeBody(t, w)["link_id"].(string)

	// Rotate the link in.
	w = submitRotation(t, router, alice, conversationID, firstEpochID, 2,
		[]map[string]interface{}{wrapFor(t, aliceKey, 1), wrapFor(t, linkKey, 2)})
	require.Equal(t, http.StatusCreated, w.Code)

	// The link read path needs no session.
	w = doJSON(t, router, "GET", "/api/epoch/links/"+linkID+"/epochs", "", nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var linkView struct {
		VisibleFromEpoch int                      `json:"visible_from_epoch"`
		Epochs           []models.MemberEpochView `json:"epochs"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &linkView))
	assert.Equal(t, 2, linkView.VisibleFromEpoch)
	require.Len(t, linkView.Epochs, 1)
	assert.NotEmpty(t, linkView.Epochs[0].Wrap)

	// Revoked links are gone.
	w = doJSON(t, router, "DELETE",
		fmt.Sprintf("/api/epoch/conversations/%s/links/%s", conversationID, linkID), alice, nil)
	require.Equal(t, http.StatusOK, w.Code)

	w = doJSON(t, router, "GET", "/api/epoch/links/"+linkID+"/epochs", "", nil)
	assert.Equal(t, http.StatusGone, w.Code)
}

func TestShareLifecycle(t *testing.T) {
	router := newTestRouter(memory.NewStore())
	alice := signToken(t, "alice")
	blob := randomKey(t)

	w := doJSON(t, router, "POST", "/api/epoch/shares", alice,
		map[string]interface{}{"blob": blob})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	shareID := decodeBody(t, w)["share_id"].(string)

	// Fetching needs no session: the URL is the credential.
	w = doJSON(t, router, "GET", "/api/epoch/shares/"+shareID, "", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var share models.MessageShare
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &share))
	assert.Equal(t, blob, share.Blob)

	// Deleting does.
	w = doJSON(t, router, "DELETE", "/api/epoch/shares/"+shareID, "", nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = doJSON(t, router, "DELETE", "/api/epoch/shares/"+shareID, alice, nil)
	require.Equal(t, http.StatusOK, w.Code)

	w = doJSON(t, router, "GET", "/api/epoch/shares/"+shareID, "", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)

	// Empty blobs are rejected.
	w = doJSON(t, router, "POST", "/api/epoch/shares", alice,
		map[string]interface{}{})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}
