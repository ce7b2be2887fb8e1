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

package integration

import (
	"database/sql"
	"net/http"

	"github.com/gorilla/mux"
	"github.com/redis/go-redis/v9"

	"github.com/efchatnet/efepoch/backend/handlers"
	"github.com/efchatnet/efepoch/backend/middleware"
	"github.com/efchatnet/efepoch/backend/storage/postgres"
)

// EpochIntegration embeds the epoch rotation service into an existing
// efchat deployment instead of running it standalone.
type EpochIntegration struct {
	store               *postgres.Store
	conversationHandler *handlers.ConversationHandler
	epochHandler        *handlers.EpochHandler
	linkHandler         *handlers.LinkHandler
	shareHandler        *handlers.ShareHandler
	jwtSecret           string
	jwtIssuer           string
}

// Config holds configuration for the epoch integration.
type Config struct {
	DB        *sql.DB
	Redis     *redis.Client
	JWTSecret string
	JWTIssuer string
}

// NewEpochIntegration creates an integration that can be embedded into
// efchat's router.
func NewEpochIntegration(config *Config) (*EpochIntegration, error) {
	store := postgres.NewStore(config.DB, config.Redis)

	if err := store.Migrate(); err != nil {
		return nil, err
	}

	return &EpochIntegration{
		store:               store,
		conversationHandler: handlers.NewConversationHandler(store),
		epochHandler:        handlers.NewEpochHandler(store),
		linkHandler:         handlers.NewLinkHandler(store),
		shareHandler:        handlers.NewShareHandler(store),
		jwtSecret:           config.JWTSecret,
		jwtIssuer:           config.JWTIssuer,
	}, nil
}

// RegisterRoutes adds epoch routes to an existing router. If
// authMiddleware is nil, the built-in JWT validation is used.
func (e *EpochIntegration) RegisterRoutes(router *mux.Router, authMiddleware func(http.Handler) http.Handler) {
	if authMiddleware == nil {
		authMiddleware = middleware.NewAuthMiddleware(e.jwtSecret, e.jwtIssuer)
	}

	// Link and share reads are credentialed by possession, not
	// session.
	public := router.PathPrefix("/api/epoch").Subrouter()
	public.HandleFunc("/links/{linkId}/epochs", e.linkHandler.GetLinkEpochs).Methods("GET")
	public.HandleFunc("/shares/{shareId}", e.shareHandler.GetShare).Methods("GET")

	api := router.PathPrefix("/api/epoch").Subrouter()
	api.Use(authMiddleware)

	api.HandleFunc("/conversations", e.conversationHandler.CreateConversation).Methods("POST")
	api.HandleFunc("/conversations/{conversationId}", e.conversationHandler.GetConversation).Methods("GET")
	api.HandleFunc("/conversations/{conversationId}/members", e.conversationHandler.GetMembers).Methods("GET")
	api.HandleFunc("/conversations/{conversationId}/members", e.conversationHandler.AddMember).Methods("POST")
	api.HandleFunc("/conversations/{conversationId}/members/{identity}", e.conversationHandler.RemoveMember).Methods("DELETE")
	api.HandleFunc("/conversations/{conversationId}/epochs", e.epochHandler.SubmitRotation).Methods("POST")
	api.HandleFunc("/conversations/{conversationId}/epochs", e.epochHandler.GetEpochs).Methods("GET")
	api.HandleFunc("/conversations/{conversationId}/links", e.linkHandler.CreateLink).Methods("POST")
	api.HandleFunc("/conversations/{conversationId}/links/{linkId}", e.linkHandler.RevokeLink).Methods("DELETE")
	api.HandleFunc("/shares", e.shareHandler.CreateShare).Methods("POST")
	api.HandleFunc("/shares/{shareId}", e.shareHandler.DeleteShare).Methods("DELETE")
}
