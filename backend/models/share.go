// Copyright (C) 2025 efchat.net <tj@efchat.net>
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.

package models

import "time"

// MessageShare is a single-message encrypted share blob. The share
// secret never reaches the server — it lives in the URL fragment — so
// the blob is opaque here and expires on its own.
type MessageShare struct {
	ShareID   string    `json:"share_id" db:"share_id"`
	Blob      []byte    `json:"blob" db:"blob"`
	CreatedBy string    `json:"created_by,omitempty" db:"created_by"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
	ExpiresAt time.Time `json:"expires_at" db:"expires_at"`
}
