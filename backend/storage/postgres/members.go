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

	"github.com/lib/pq"

	"github.com/efchatnet/efepoch/backend/models"
	"github.com/efchatnet/efepoch/backend/storage"
)

func (s *Store) AddMember(member models.ConversationMember) error {
	_, err := s.db.Exec(`
		INSERT INTO conversation_members
			(conversation_id, identity, member_public_key, privilege, visible_from_epoch, joined_at)
		VALUES ($1, $2, $3, $4, $5, $6)`,
		member.ConversationID, member.Identity, member.MemberPublicKey,
		member.Privilege, member.VisibleFromEpoch, time.Now())
	if pqErr, ok := err.(*pq.Error); ok && pqErr.Code.Name() == "unique_violation" {
		return storage.ErrMemberExists
	}
	return err
}

func (s *Store) RemoveMember(conversationID, identity string) error {
	res, err := s.db.Exec(`
		UPDATE conversation_members
		SET left_at = $3
		WHERE conversation_id = $1 AND identity = $2 AND left_at IS NULL`,
		conversationID, identity, time.Now())
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return storage.ErrNotAMember
	}
	return nil
}

func (s *Store) GetMember(conversationID, identity string) (*models.ConversationMember, error) {
	var m models.ConversationMember
	err := s.db.QueryRow(`
		SELECT conversation_id, identity, member_public_key, privilege, visible_from_epoch, joined_at, left_at
		FROM conversation_members
		WHERE conversation_id = $1 AND identity = $2 AND left_at IS NULL`,
		conversationID, identity).Scan(
		&m.ConversationID, &m.Identity, &m.MemberPublicKey,
		&m.Privilege, &m.VisibleFromEpoch, &m.JoinedAt, &m.LeftAt)
	if err == sql.ErrNoRows {
		return nil, storage.ErrNotAMember
	}
	if err != nil {
		return nil, err
	}
	return &m, nil
}

func (s *Store) GetActiveMembers(conversationID string) ([]models.ConversationMember, error) {
	rows, err := s.db.Query(`
		SELECT conversation_id, identity, member_public_key, privilege, visible_from_epoch, joined_at, left_at
		FROM conversation_members
		WHERE conversation_id = $1 AND left_at IS NULL
		ORDER BY joined_at ASC`,
		conversationID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var members []models.ConversationMember
	for rows.Next() {
		var m models.ConversationMember
		if err := rows.Scan(&m.ConversationID, &m.Identity, &m.MemberPublicKey,
			&m.Privilege, &m.VisibleFromEpoch, &m.JoinedAt, &m.LeftAt); err != nil {
			return nil, err
		}
		members = append(members, m)
	}

	return members, rows.Err()
}

// CreateLink stores the link row and its membership row together; a
// link identity is just a member whose keypair lives in the URL
// fragment.
func (s *Store) CreateLink(link models.SharedLink, member models.ConversationMember) error {
	tx, err := s.db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	_, err = tx.Exec(`
		INSERT INTO shared_links (link_id, conversation_id, link_public_key, privilege, created_at)
		VALUES ($1, $2, $3, $4, $5)`,
		link.LinkID, link.ConversationID, link.LinkPublicKey, link.Privilege, time.Now())
	if err != nil {
		return err
	}

	_, err = tx.Exec(`
		INSERT INTO conversation_members
			(conversation_id, identity, member_public_key, privilege, visible_from_epoch, joined_at)
		VALUES ($1, $2, $3, $4, $5, $6)`,
		member.ConversationID, member.Identity, member.MemberPublicKey,
		member.Privilege, member.VisibleFromEpoch, time.Now())
	if err != nil {
		return err
	}

	return tx.Commit()
}

func (s *Store) GetLink(linkID string) (*models.SharedLink, error) {
	var link models.SharedLink
	err := s.db.QueryRow(`
		SELECT link_id, conversation_id, link_public_key, privilege, created_at, revoked_at
		FROM shared_links
		WHERE link_id = $1`, linkID).Scan(
		&link.LinkID, &link.ConversationID, &link.LinkPublicKey,
		&link.Privilege, &link.CreatedAt, &link.RevokedAt)
	if err == sql.ErrNoRows {
		return nil, storage.ErrLinkNotFound
	}
	if err != nil {
		return nil, err
	}
	return &link, nil
}

// RevokeLink marks the link revoked and closes its membership row in
// one transaction. The caller still has to rotate to cut off the
// link's key cryptographically.
func (s *Store) RevokeLink(conversationID, linkID string) error {
	tx, err := s.db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	res, err := tx.Exec(`
		UPDATE shared_links
		SET revoked_at = $3
		WHERE conversation_id = $1 AND link_id = $2 AND revoked_at IS NULL`,
		conversationID, linkID, time.Now())
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return storage.ErrLinkNotFound
	}

	_, err = tx.Exec(`
		UPDATE conversation_members
		SET left_at = $3
		WHERE conversation_id = $1 AND identity = $2 AND left_at IS NULL`,
		conversationID, linkID, time.Now())
	if err != nil {
		return err
	}

	return tx.Commit()
}
