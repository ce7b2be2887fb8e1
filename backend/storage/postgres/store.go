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

package postgres

import (
	"database/sql"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/efchatnet/efepoch/backend/models"
	"github.com/efchatnet/efepoch/backend/storage"
	redisStore "github.com/efchatnet/efepoch/backend/storage/redis"
)

type Store struct {
	db     *sql.DB
	redis  *redis.Client
	shares *redisStore.ShareStore
}

func NewStore(db *sql.DB, rdb *redis.Client) *Store {
	return &Store{
		db:     db,
		redis:  rdb,
		shares: redisStore.NewShareStore(rdb),
	}
}

func (s *Store) CreateConversation(conv models.Conversation, owner models.ConversationMember) error {
	tx, err := s.db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	_, err = tx.Exec(`
		INSERT INTO conversations (conversation_id, current_epoch_id, current_epoch, created_by, created_at)
		VALUES ($1, NULL, 0, $2, $3)`,
		conv.ConversationID, conv.CreatedBy, time.Now())
	if err != nil {
		return err
	}

	_, err = tx.Exec(`
		INSERT INTO conversation_members
			(conversation_id, identity, member_public_key, privilege, visible_from_epoch, joined_at)
		VALUES ($1, $2, $3, $4, $5, $6)`,
		conv.ConversationID, owner.Identity, owner.MemberPublicKey,
		models.PrivilegeOwner, 1, time.Now())
	if err != nil {
		return err
	}

	return tx.Commit()
}

func (s *Store) GetConversation(conversationID string) (*models.Conversation, error) {
	var conv models.Conversation
	var epochID sql.NullString
	err := s.db.QueryRow(`
		SELECT conversation_id, current_epoch_id, current_epoch, created_by, created_at
		FROM conversations
		WHERE conversation_id = $1`, conversationID).Scan(
		&conv.ConversationID, &epochID, &conv.CurrentEpoch, &conv.CreatedBy, &conv.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, storage.ErrConversationNotFound
	}
	if err != nil {
		return nil, err
	}
	conv.CurrentEpochID = epochID.String
	return &conv, nil
}

// Share blobs live in redis with a TTL; delegate to the redis store.

func (s *Store) SaveShare(share models.MessageShare) error {
	return s.shares.SaveShare(share)
}

func (s *Store) GetShare(shareID string) (*models.MessageShare, error) {
	return s.shares.GetShare(shareID)
}

func (s *Store) DeleteShare(shareID string) error {
	return s.shares.DeleteShare(shareID)
}
