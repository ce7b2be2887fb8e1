// Copyright (C) 2025 efchat.net <tj@efchat.net>
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.

package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/efchatnet/efepoch/backend/models"
	"github.com/efchatnet/efepoch/backend/storage"
)

const (
	// DefaultShareTTL bounds how long an unclaimed share blob lives.
	DefaultShareTTL = 7 * 24 * time.Hour

	sharePrefix = "share:blob:" // share:blob:{shareId} -> blob JSON
)

// ShareStore keeps message-share blobs in redis. Shares are ephemeral
// single-message payloads with a natural expiry, so redis with a TTL
// is the store of record: no cleanup job, no relational rows.
type ShareStore struct {
	rdb *redis.Client
	ctx context.Context
}

func NewShareStore(rdb *redis.Client) *ShareStore {
	return &ShareStore{
		rdb: rdb,
		ctx: context.Background(),
	}
}

func (s *ShareStore) SaveShare(share models.MessageShare) error {
	if share.ExpiresAt.IsZero() {
		share.ExpiresAt = time.Now().Add(DefaultShareTTL)
	}
	ttl := time.Until(share.ExpiresAt)
	if ttl <= 0 {
		return fmt.Errorf("share %s already expired", share.ShareID)
	}

	data, err := json.Marshal(share)
	if err != nil {
		return fmt.Errorf("failed to marshal share: %w", err)
	}

	if err := s.rdb.Set(s.ctx, sharePrefix+share.ShareID, data, ttl).Err(); err != nil {
		return fmt.Errorf("failed to store share: %w", err)
	}
	return nil
}

func (s *ShareStore) GetShare(shareID string) (*models.MessageShare, error) {
	data, err := s.rdb.Get(s.ctx, sharePrefix+shareID).Result()
	if err == redis.Nil {
		return nil, storage.ErrShareNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get share: %w", err)
	}

	var share models.MessageShare
	if err := json.Unmarshal([]byte(data), &share); err != nil {
		return nil, fmt.Errorf("failed to unmarshal share: %w", err)
	}
	return &share, nil
}

func (s *ShareStore) DeleteShare(shareID string) error {
	deleted, err := s.rdb.Del(s.ctx, sharePrefix+shareID).Result()
	if err != nil {
		return fmt.Errorf("failed to delete share: %w", err)
	}
	if deleted == 0 {
		return storage.ErrShareNotFound
	}
	return nil
}
