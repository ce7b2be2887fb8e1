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

// Member privileges, weakest to strongest.
const (
	PrivilegeRead  = "read"
	PrivilegeWrite = "write"
	PrivilegeAdmin = "admin"
	PrivilegeOwner = "owner"
)

// Conversation carries the single piece of mutable protocol state: the
// pointer to the latest committed epoch. CurrentEpoch is 0 and
// CurrentEpochID empty until the first epoch commits.
type Conversation struct {
	ConversationID string    `json:"conversation_id" db:"conversation_id"`
	CurrentEpochID string    `json:"current_epoch_id,omitempty" db:"current_epoch_id"`
	CurrentEpoch   int       `json:"current_epoch" db:"current_epoch"`
	CreatedBy      string    `json:"created_by" db:"created_by"`
	CreatedAt      time.Time `json:"created_at" db:"created_at"`
}

// ConversationMember is one identity's membership. Identity is either
// a user ID or a shared-link ID; exactly one active (LeftAt == nil)
// row exists per identity per conversation. VisibleFromEpoch is fixed
// at join time and never decreases.
type ConversationMember struct {
	ConversationID   string     `json:"conversation_id" db:"conversation_id"`
	Identity         string     `json:"identity" db:"identity"`
	MemberPublicKey  []byte     `json:"member_public_key" db:"member_public_key"`
	Privilege        string     `json:"privilege" db:"privilege"`
	VisibleFromEpoch int        `json:"visible_from_epoch" db:"visible_from_epoch"`
	JoinedAt         time.Time  `json:"joined_at" db:"joined_at"`
	LeftAt           *time.Time `json:"left_at,omitempty" db:"left_at"`
}

// CanManageMembers reports whether the privilege level may edit
// membership and links.
func CanManageMembers(privilege string) bool {
	return privilege == PrivilegeAdmin || privilege == PrivilegeOwner
}

// CanRotate reports whether the privilege level may submit rotations.
func CanRotate(privilege string) bool {
	return privilege == PrivilegeWrite || CanManageMembers(privilege)
}
