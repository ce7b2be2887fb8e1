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

// Epoch is one committed conversation epoch. Epochs are immutable:
// they are superseded by the next epoch, never updated. ChainLink is
// nil on epoch 1 only.
type Epoch struct {
	EpochID          string    `json:"epoch_id" db:"epoch_id"`
	ConversationID   string    `json:"conversation_id" db:"conversation_id"`
	EpochNumber      int       `json:"epoch_number" db:"epoch_number"`
	ConfirmationHash []byte    `json:"confirmation_hash" db:"confirmation_hash"`
	ChainLink        []byte    `json:"chain_link,omitempty" db:"chain_link"`
	CreatedAt        time.Time `json:"created_at" db:"created_at"`
}

// EpochMember grants one member the ability to recover one epoch's
// private key. The server stores the wrap as an opaque blob.
type EpochMember struct {
	EpochID          string    `json:"epoch_id" db:"epoch_id"`
	MemberPublicKey  []byte    `json:"member_public_key" db:"member_public_key"`
	Wrap             []byte    `json:"wrap" db:"wrap"`
	VisibleFromEpoch int       `json:"visible_from_epoch" db:"visible_from_epoch"`
	CreatedAt        time.Time `json:"created_at" db:"created_at"`
}

// MemberWrap is the wire form of one wrap inside a rotation
// submission.
type MemberWrap struct {
	MemberPublicKey  []byte `json:"member_public_key"`
	Wrap             []byte `json:"wrap"`
	VisibleFromEpoch int    `json:"visible_from_epoch"`
}

// RotationRequest is a client-proposed new epoch. The expected current
// epoch ID is the client's view of the conversation pointer; the
// coordinator rejects the submission as stale if someone else advanced
// it first. ExpectedCurrentEpochID is empty only for epoch 1.
type RotationRequest struct {
	ConversationID         string       `json:"conversation_id"`
	ExpectedCurrentEpochID string       `json:"expected_current_epoch_id,omitempty"`
	EpochNumber            int          `json:"epoch_number"`
	ConfirmationHash       []byte       `json:"confirmation_hash"`
	ChainLink              []byte       `json:"chain_link,omitempty"`
	MemberWraps            []MemberWrap `json:"member_wraps"`
}

// MemberEpochView is one epoch as seen by one member on the read path:
// the wrap is present only if addressed to that member, and the chain
// link is withheld on the member's first visible epoch so the material
// handed out never reaches below their visibility boundary.
type MemberEpochView struct {
	EpochNumber      int    `json:"epoch_number"`
	ConfirmationHash []byte `json:"confirmation_hash"`
	ChainLink        []byte `json:"chain_link,omitempty"`
	Wrap             []byte `json:"wrap,omitempty"`
}
