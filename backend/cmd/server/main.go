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

package main

import (
	"database/sql"
	"log"
	"net/http"
	"os"

	"github.com/gorilla/mux"
	_ "github.com/lib/pq"
	"github.com/redis/go-redis/v9"

	"github.com/efchatnet/efepoch/backend/handlers"
	"github.com/efchatnet/efepoch/backend/middleware"
	"github.com/efchatnet/efepoch/backend/storage/postgres"
)

func main() {
	// Database connection
	dbURL := os.Getenv("DATABASE_URL")
	if dbURL == "" {
		dbURL = "postgres://localhost/efepoch?sslmode=disable"
	}

	db, err := sql.Open("postgres", dbURL)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer db.Close()

	// Redis connection (share blobs)
	redisAddr := os.Getenv("REDIS_URL")
	if redisAddr == "" {
		redisAddr = "localhost:6379"
	}

	rdb := redis.NewClient(&redis.Options{
		Addr: redisAddr,
	})

	// Initialize storage
	store := postgres.NewStore(db, rdb)

	// Run migrations
	if err := store.Migrate(); err != nil {
		log.Fatalf("Failed to run migrations: %v", err)
	}

	// Initialize handlers
	conversationHandler := handlers.NewConversationHandler(store)
	epochHandler := handlers.NewEpochHandler(store)
	linkHandler := handlers.NewLinkHandler(store)
	shareHandler := handlers.NewShareHandler(store)

	// Sessions are minted by the login service after its OPAQUE
	// exchange; this service only validates them.
	jwtSecret := os.Getenv("JWT_SECRET")
	if jwtSecret == "" {
		log.Fatal("JWT_SECRET environment variable is required")
	}

	jwtIssuer := os.Getenv("JWT_ISSUER")
	if jwtIssuer == "" {
		jwtIssuer = "efchat"
	}

	authMiddleware := middleware.NewAuthMiddleware(jwtSecret, jwtIssuer)

	// Setup router
	r := mux.NewRouter()
	r.Use(middleware.CORS)

	// Possession-credentialed reads (no session required)
	public := r.PathPrefix("/api/epoch").Subrouter()
	public.HandleFunc("/links/{linkId}/epochs", linkHandler.GetLinkEpochs).Methods("GET")
	public.HandleFunc("/shares/{shareId}", shareHandler.GetShare).Methods("GET")

	api := r.PathPrefix("/api/epoch").Subrouter()
	api.Use(authMiddleware)

	// Conversation and membership endpoints
	api.HandleFunc("/conversations", conversationHandler.CreateConversation).Methods("POST")
	api.HandleFunc("/conversations/{conversationId}", conversationHandler.GetConversation).Methods("GET")
	api.HandleFunc("/conversations/{conversationId}/members", conversationHandler.GetMembers).Methods("GET")
	api.HandleFunc("/conversations/{conversationId}/members", conversationHandler.AddMember).Methods("POST")
	api.HandleFunc("/conversations/{conversationId}/members/{identity}", conversationHandler.RemoveMember).Methods("DELETE")

	// Rotation coordinator endpoints
	api.HandleFunc("/conversations/{conversationId}/epochs", epochHandler.SubmitRotation).Methods("POST")
	api.HandleFunc("/conversations/{conversationId}/epochs", epochHandler.GetEpochs).Methods("GET")

	// Shared link endpoints
	api.HandleFunc("/conversations/{conversationId}/links", linkHandler.CreateLink).Methods("POST")
	api.HandleFunc("/conversations/{conversationId}/links/{linkId}", linkHandler.RevokeLink).Methods("DELETE")

	// Message share endpoints
	api.HandleFunc("/shares", shareHandler.CreateShare).Methods("POST")
	api.HandleFunc("/shares/{shareId}", shareHandler.DeleteShare).Methods("DELETE")

	// Health check (no auth required)
	r.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		if err := db.Ping(); err != nil {
			w.WriteHeader(http.StatusServiceUnavailable)
			w.Write([]byte("Database unavailable"))
			return
		}

		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	}).Methods("GET")

	port := os.Getenv("PORT")
	if port == "" {
		port = "8082"
	}

	log.Printf("Epoch server starting on port %s", port)
	log.Printf("JWT Issuer: %s", jwtIssuer)

	if err := http.ListenAndServe(":"+port, r); err != nil {
		log.Fatalf("Server failed to start: %v", err)
	}
}
