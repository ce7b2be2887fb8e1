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
	"bytes"
	"database/sql"
	"time"

	"github.com/google/uuid"

	"github.com/efchatnet/efepoch/backend/models"
	"github.com/efchatnet/efepoch/backend/storage"
)

// SubmitRotation is the rotation coordinator. Epoch advancement is
// linearizable per conversation: the conversation row is locked FOR
// UPDATE for the whole transaction, so two racing rotations built on
// the same pointer cannot both commit — the loser observes the
// winner's pointer and gets a StaleEpochError. Everything commits or
// nothing does; an abandoned attempt simply rolls back.
func (s *Store) SubmitRotation(req models.RotationRequest) (*models.Epoch, error) {
	tx, err := s.db.Begin()
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	var currentEpochID sql.NullString
	var currentEpoch int
	err = tx.QueryRow(`
		SELECT current_epoch_id, current_epoch FROM conversations
		WHERE conversation_id = $1
		FOR UPDATE`, req.ConversationID).Scan(&currentEpochID, &currentEpoch)
	if err == sql.ErrNoRows {
		return nil, storage.ErrConversationNotFound
	}
	if err != nil {
		return nil, err
	}

	if currentEpochID.String != req.ExpectedCurrentEpochID {
		// A byte-identical resubmission of the epoch that already won
		// is idempotent: hand back the committed row instead of a
		// conflict.
		if currentEpoch == req.EpochNumber {
			committed, err := s.getEpochTx(tx, currentEpochID.String)
			if err == nil && bytes.Equal(committed.ConfirmationHash, req.ConfirmationHash) {
				return committed, tx.Commit()
			}
		}
		return nil, &storage.StaleEpochError{
			CurrentEpochID:     currentEpochID.String,
			CurrentEpochNumber: currentEpoch,
		}
	}

	if req.EpochNumber != currentEpoch+1 {
		return nil, &storage.StaleEpochError{
			CurrentEpochID:     currentEpochID.String,
			CurrentEpochNumber: currentEpoch,
		}
	}

	epoch := models.Epoch{
		EpochID:          uuid.New().String(),
		ConversationID:   req.ConversationID,
		EpochNumber:      req.EpochNumber,
		ConfirmationHash: req.ConfirmationHash,
		ChainLink:        req.ChainLink,
		CreatedAt:        time.Now(),
	}

	// (conversation_id, epoch_number) is the upsert target so a
	// replayed insert from a previously interrupted commit cannot
	// duplicate the row.
	err = tx.QueryRow(`
		INSERT INTO epochs (epoch_id, conversation_id, epoch_number, confirmation_hash, chain_link, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (conversation_id, epoch_number) DO UPDATE
		SET confirmation_hash = EXCLUDED.confirmation_hash
		RETURNING epoch_id`,
		epoch.EpochID, epoch.ConversationID, epoch.EpochNumber,
		epoch.ConfirmationHash, epoch.ChainLink, epoch.CreatedAt).Scan(&epoch.EpochID)
	if err != nil {
		return nil, err
	}

	for _, wrap := range req.MemberWraps {
		_, err = tx.Exec(`
			INSERT INTO epoch_members (epoch_id, member_public_key, wrap, visible_from_epoch, created_at)
			VALUES ($1, $2, $3, $4, $5)
			ON CONFLICT (epoch_id, member_public_key) DO NOTHING`,
			epoch.EpochID, wrap.MemberPublicKey, wrap.Wrap, wrap.VisibleFromEpoch, time.Now())
		if err != nil {
			return nil, err
		}
	}

	_, err = tx.Exec(`
		UPDATE conversations
		SET current_epoch_id = $2, current_epoch = $3
		WHERE conversation_id = $1`,
		req.ConversationID, epoch.EpochID, epoch.EpochNumber)
	if err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return &epoch, nil
}

func (s *Store) getEpochTx(tx *sql.Tx, epochID string) (*models.Epoch, error) {
	var e models.Epoch
	err := tx.QueryRow(`
		SELECT epoch_id, conversation_id, epoch_number, confirmation_hash, chain_link, created_at
		FROM epochs
		WHERE epoch_id = $1`, epochID).Scan(
		&e.EpochID, &e.ConversationID, &e.EpochNumber, &e.ConfirmationHash, &e.ChainLink, &e.CreatedAt)
	if err != nil {
		return nil, err
	}
	return &e, nil
}

// GetEpochsForMember is the read path. Epochs below the member's
// visibility boundary are never returned, and the chain link of the
// boundary epoch itself is nulled out in SQL — it would decrypt the
// key below the boundary, so it must not leave the server.
func (s *Store) GetEpochsForMember(conversationID string, memberPublicKey []byte, visibleFrom int) ([]models.MemberEpochView, error) {
	rows, err := s.db.Query(`
		SELECT e.epoch_number, e.confirmation_hash,
		       CASE WHEN e.epoch_number > $3 THEN e.chain_link END,
		       m.wrap
		FROM epochs e
		LEFT JOIN epoch_members m
		  ON m.epoch_id = e.epoch_id AND m.member_public_key = $2
		WHERE e.conversation_id = $1 AND e.epoch_number >= $3
		ORDER BY e.epoch_number ASC`,
		conversationID, memberPublicKey, visibleFrom)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var views []models.MemberEpochView
	for rows.Next() {
		var v models.MemberEpochView
		if err := rows.Scan(&v.EpochNumber, &v.ConfirmationHash, &v.ChainLink, &v.Wrap); err != nil {
			return nil, err
		}
		views = append(views, v)
	}

	return views, rows.Err()
}
