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

package storage

import (
	"errors"
	"fmt"

	"github.com/efchatnet/efepoch/backend/models"
)

var (
	ErrConversationNotFound = errors.New("storage: conversation not found")
	ErrNotAMember           = errors.New("storage: not an active member")
	ErrMemberExists         = errors.New("storage: identity already has an active membership")
	ErrLinkNotFound         = errors.New("storage: shared link not found")
	ErrShareNotFound        = errors.New("storage: share not found")
)

// StaleEpochError is the retryable conflict returned when a rotation
// was built on a conversation pointer someone else already advanced.
// The caller must refetch membership and epoch state, rebuild the
// rotation on top of the reported epoch, and resubmit.
type StaleEpochError struct {
	CurrentEpochID     string
	CurrentEpochNumber int
}

func (e *StaleEpochError) Error() string {
	return fmt.Sprintf("storage: stale epoch, current is %s (number %d)", e.CurrentEpochID, e.CurrentEpochNumber)
}

type ConversationStore interface {
	CreateConversation(conv models.Conversation, owner models.ConversationMember) error
	GetConversation(conversationID string) (*models.Conversation, error)

	AddMember(member models.ConversationMember) error
	RemoveMember(conversationID, identity string) error
	GetMember(conversationID, identity string) (*models.ConversationMember, error)
	GetActiveMembers(conversationID string) ([]models.ConversationMember, error)

	CreateLink(link models.SharedLink, member models.ConversationMember) error
	GetLink(linkID string) (*models.SharedLink, error)
	RevokeLink(conversationID, linkID string) error
}

type EpochStore interface {
	// SubmitRotation atomically commits a client-proposed epoch. It
	// returns *StaleEpochError when the expected pointer no longer
	// matches, and is idempotent for byte-identical resubmissions of
	// the already-committed epoch.
	SubmitRotation(req models.RotationRequest) (*models.Epoch, error)

	// GetEpochsForMember returns, ascending by epoch number, the
	// material one member may see: epochs >= visibleFrom, with the
	// chain link withheld on the visibility boundary epoch.
	GetEpochsForMember(conversationID string, memberPublicKey []byte, visibleFrom int) ([]models.MemberEpochView, error)
}

type ShareStore interface {
	SaveShare(share models.MessageShare) error
	GetShare(shareID string) (*models.MessageShare, error)
	DeleteShare(shareID string) error
}

type Store interface {
	ConversationStore
	EpochStore
	ShareStore
}
