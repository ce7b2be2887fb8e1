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

// Package memory is an in-process Store used by tests. It mirrors the
// postgres semantics — including the per-conversation linearizability
// of SubmitRotation — behind a single mutex. It is not for production:
// the rotation contract has to survive restarts and multiple server
// instances, which only the database row lock provides.
package memory

import (
	"bytes"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/efchatnet/efepoch/backend/models"
	"github.com/efchatnet/efepoch/backend/storage"
)

type memberKey struct {
	conversationID string
	identity       string
}

type Store struct {
	mu            sync.Mutex
	conversations map[string]*models.Conversation
	epochs        map[string]*models.Epoch // by epoch ID
	wraps         map[string][]models.EpochMember
	members       map[memberKey][]*models.ConversationMember
	links         map[string]*models.SharedLink
	shares        map[string]*models.MessageShare
}

func NewStore() *Store {
	return &Store{
		conversations: make(map[string]*models.Conversation),
		epochs:        make(map[string]*models.Epoch),
		wraps:         make(map[string][]models.EpochMember),
		members:       make(map[memberKey][]*models.ConversationMember),
		links:         make(map[string]*models.SharedLink),
		shares:        make(map[string]*models.MessageShare),
	}
}

func (s *Store) CreateConversation(conv models.Conversation, owner models.ConversationMember) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	conv.CurrentEpoch = 0
	conv.CurrentEpochID = ""
	conv.CreatedAt = time.Now()
	s.conversations[conv.ConversationID] = &conv

	owner.Privilege = models.PrivilegeOwner
	owner.VisibleFromEpoch = 1
	owner.JoinedAt = time.Now()
	key := memberKey{conv.ConversationID, owner.Identity}
	s.members[key] = append(s.members[key], &owner)
	return nil
}

func (s *Store) GetConversation(conversationID string) (*models.Conversation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	conv, ok := s.conversations[conversationID]
	if !ok {
		return nil, storage.ErrConversationNotFound
	}
	copied := *conv
	return &copied, nil
}

func (s *Store) activeMember(conversationID, identity string) *models.ConversationMember {
	for _, m := range s.members[memberKey{conversationID, identity}] {
		if m.LeftAt == nil {
			return m
		}
	}
	return nil
}

func (s *Store) AddMember(member models.ConversationMember) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.conversations[member.ConversationID]; !ok {
		return storage.ErrConversationNotFound
	}
	if s.activeMember(member.ConversationID, member.Identity) != nil {
		return storage.ErrMemberExists
	}
	member.JoinedAt = time.Now()
	key := memberKey{member.ConversationID, member.Identity}
	s.members[key] = append(s.members[key], &member)
	return nil
}

func (s *Store) RemoveMember(conversationID, identity string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	m := s.activeMember(conversationID, identity)
	if m == nil {
		return storage.ErrNotAMember
	}
	now := time.Now()
	m.LeftAt = &now
	return nil
}

func (s *Store) GetMember(conversationID, identity string) (*models.ConversationMember, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	m := s.activeMember(conversationID, identity)
	if m == nil {
		return nil, storage.ErrNotAMember
	}
	copied := *m
	return &copied, nil
}

func (s *Store) GetActiveMembers(conversationID string) ([]models.ConversationMember, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []models.ConversationMember
	for key, rows := range s.members {
		if key.conversationID != conversationID {
			continue
		}
		for _, m := range rows {
			if m.LeftAt == nil {
				out = append(out, *m)
			}
		}
	}
	return out, nil
}

func (s *Store) CreateLink(link models.SharedLink, member models.ConversationMember) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.conversations[link.ConversationID]; !ok {
		return storage.ErrConversationNotFound
	}
	link.CreatedAt = time.Now()
	s.links[link.LinkID] = &link

	member.JoinedAt = time.Now()
	key := memberKey{member.ConversationID, member.Identity}
	s.members[key] = append(s.members[key], &member)
	return nil
}

func (s *Store) GetLink(linkID string) (*models.SharedLink, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	link, ok := s.links[linkID]
	if !ok {
		return nil, storage.ErrLinkNotFound
	}
	copied := *link
	return &copied, nil
}

func (s *Store) RevokeLink(conversationID, linkID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	link, ok := s.links[linkID]
	if !ok || link.ConversationID != conversationID || link.RevokedAt != nil {
		return storage.ErrLinkNotFound
	}
	now := time.Now()
	link.RevokedAt = &now
	if m := s.activeMember(conversationID, linkID); m != nil {
		m.LeftAt = &now
	}
	return nil
}

func (s *Store) SubmitRotation(req models.RotationRequest) (*models.Epoch, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	conv, ok := s.conversations[req.ConversationID]
	if !ok {
		return nil, storage.ErrConversationNotFound
	}

	if conv.CurrentEpochID != req.ExpectedCurrentEpochID {
		if conv.CurrentEpoch == req.EpochNumber {
			if committed, ok := s.epochs[conv.CurrentEpochID]; ok &&
				bytes.Equal(committed.ConfirmationHash, req.ConfirmationHash) {
				copied := *committed
				return &copied, nil
			}
		}
		return nil, &storage.StaleEpochError{
			CurrentEpochID:     conv.CurrentEpochID,
			CurrentEpochNumber: conv.CurrentEpoch,
		}
	}

	if req.EpochNumber != conv.CurrentEpoch+1 {
		return nil, &storage.StaleEpochError{
			CurrentEpochID:     conv.CurrentEpochID,
			CurrentEpochNumber: conv.CurrentEpoch,
		}
	}

	epoch := &models.Epoch{
		EpochID:          uuid.New().String(),
		ConversationID:   req.ConversationID,
		EpochNumber:      req.EpochNumber,
		ConfirmationHash: req.ConfirmationHash,
		ChainLink:        req.ChainLink,
		CreatedAt:        time.Now(),
	}
	s.epochs[epoch.EpochID] = epoch

	seen := make(map[string]bool, len(req.MemberWraps))
	for _, w := range req.MemberWraps {
		if seen[string(w.MemberPublicKey)] {
			continue
		}
		seen[string(w.MemberPublicKey)] = true
		s.wraps[epoch.EpochID] = append(s.wraps[epoch.EpochID], models.EpochMember{
			EpochID:          epoch.EpochID,
			MemberPublicKey:  w.MemberPublicKey,
			Wrap:             w.Wrap,
			VisibleFromEpoch: w.VisibleFromEpoch,
			CreatedAt:        time.Now(),
		})
	}

	conv.CurrentEpochID = epoch.EpochID
	conv.CurrentEpoch = epoch.EpochNumber

	copied := *epoch
	return &copied, nil
}

func (s *Store) GetEpochsForMember(conversationID string, memberPublicKey []byte, visibleFrom int) ([]models.MemberEpochView, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	conv, ok := s.conversations[conversationID]
	if !ok {
		return nil, storage.ErrConversationNotFound
	}

	views := make([]models.MemberEpochView, 0, conv.CurrentEpoch)
	for n := visibleFrom; n <= conv.CurrentEpoch; n++ {
		epoch := s.epochByNumber(conversationID, n)
		if epoch == nil {
			continue
		}
		v := models.MemberEpochView{
			EpochNumber:      epoch.EpochNumber,
			ConfirmationHash: epoch.ConfirmationHash,
		}
		// The boundary epoch's chain link reaches below the member's
		// visibility and stays on the server.
		if epoch.EpochNumber > visibleFrom {
			v.ChainLink = epoch.ChainLink
		}
		for _, w := range s.wraps[epoch.EpochID] {
			if bytes.Equal(w.MemberPublicKey, memberPublicKey) {
				v.Wrap = w.Wrap
				break
			}
		}
		views = append(views, v)
	}
	return views, nil
}

func (s *Store) epochByNumber(conversationID string, number int) *models.Epoch {
	for _, e := range s.epochs {
		if e.ConversationID == conversationID && e.EpochNumber == number {
			return e
		}
	}
	return nil
}

func (s *Store) SaveShare(share models.MessageShare) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if share.ExpiresAt.IsZero() {
		share.ExpiresAt = time.Now().Add(7 * 24 * time.Hour)
	}
	s.shares[share.ShareID] = &share
	return nil
}

func (s *Store) GetShare(shareID string) (*models.MessageShare, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	share, ok := s.shares[shareID]
	if !ok || time.Now().After(share.ExpiresAt) {
		return nil, storage.ErrShareNotFound
	}
	copied := *share
	return &copied, nil
}

func (s *Store) DeleteShare(shareID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.shares[shareID]; !ok {
		return storage.ErrShareNotFound
	}
	delete(s.shares, shareID)
	return nil
}
