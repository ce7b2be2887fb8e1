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

func (s *Store) Migrate() error {
	migrations := []string{
		// The conversation row is the one piece of mutable protocol
		// state; current_epoch_id is the lock target for rotations.
		`CREATE TABLE IF NOT EXISTS conversations (
			conversation_id VARCHAR(255) PRIMARY KEY,
			current_epoch_id VARCHAR(255),
			current_epoch INTEGER NOT NULL DEFAULT 0,
			created_by VARCHAR(255) NOT NULL,
			created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
		)`,

		// Epochs are immutable once committed; (conversation_id,
		// epoch_number) is the idempotency target for resubmissions.
		`CREATE TABLE IF NOT EXISTS epochs (
			epoch_id VARCHAR(255) PRIMARY KEY,
			conversation_id VARCHAR(255) NOT NULL REFERENCES conversations(conversation_id),
			epoch_number INTEGER NOT NULL,
			confirmation_hash BYTEA NOT NULL,
			chain_link BYTEA,
			created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
			UNIQUE (conversation_id, epoch_number)
		)`,

		`CREATE TABLE IF NOT EXISTS epoch_members (
			epoch_id VARCHAR(255) NOT NULL REFERENCES epochs(epoch_id),
			member_public_key BYTEA NOT NULL,
			wrap BYTEA NOT NULL,
			visible_from_epoch INTEGER NOT NULL,
			created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
			PRIMARY KEY (epoch_id, member_public_key)
		)`,

		`CREATE TABLE IF NOT EXISTS conversation_members (
			conversation_id VARCHAR(255) NOT NULL REFERENCES conversations(conversation_id),
			identity VARCHAR(255) NOT NULL,
			member_public_key BYTEA NOT NULL,
			privilege VARCHAR(16) NOT NULL,
			visible_from_epoch INTEGER NOT NULL,
			joined_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
			left_at TIMESTAMP
		)`,

		// One active membership per identity per conversation.
		`CREATE UNIQUE INDEX IF NOT EXISTS conversation_members_active
			ON conversation_members (conversation_id, identity)
			WHERE left_at IS NULL`,

		`CREATE TABLE IF NOT EXISTS shared_links (
			link_id VARCHAR(255) PRIMARY KEY,
			conversation_id VARCHAR(255) NOT NULL REFERENCES conversations(conversation_id),
			link_public_key BYTEA NOT NULL,
			privilege VARCHAR(16) NOT NULL,
			created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
			revoked_at TIMESTAMP
		)`,
	}

	for _, migration := range migrations {
		if _, err := s.db.Exec(migration); err != nil {
			return err
		}
	}

	return nil
}
