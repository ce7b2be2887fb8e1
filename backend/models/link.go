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

package models

import (
	"time"
)

// SharedLink is a revocable guest identity. Whoever possesses the
// link's secret fragment holds the matching private key; the server
// only ever stores the public half. Revocation deactivates the
// membership row and the next rotation excludes the link's key.
type SharedLink struct {
	LinkID         string     `json:"link_id" db:"link_id"`
	ConversationID string     `json:"conversation_id" db:"conversation_id"`
	LinkPublicKey  []byte     `json:"link_public_key" db:"link_public_key"`
	Privilege      string     `json:"privilege" db:"privilege"`
	CreatedAt      time.Time  `json:"created_at" db:"created_at"`
	RevokedAt      *time.Time `json:"revoked_at,omitempty" db:"revoked_at"`
}
