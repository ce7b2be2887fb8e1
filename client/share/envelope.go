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

// Package share builds self-contained encrypted blobs for sharing a
// single message outside any conversation's epoch graph. The share
// secret travels only in a URL fragment, which browsers never send to
// servers; the server stores nothing but the opaque blob.
package share

import (
	"bytes"
	"crypto/rand"
	"io"
	"sync"

	"github.com/pierrec/lz4/v4"

	"github.com/efchatnet/efepoch/client/crypto"
)

const shareLabel = "efepoch/share-msg/v1"

// Reuse LZ4 codecs across shares to reduce allocations.
var compressorPool = sync.Pool{
	New: func() interface{} {
		return lz4.NewWriter(nil)
	},
}

var decompressorPool = sync.Pool{
	New: func() interface{} {
		return lz4.NewReader(nil)
	},
}

// CreateShare encrypts a plaintext into a share blob under a fresh
// 32-byte secret. The plaintext is LZ4-compressed before encryption to
// keep URL-embedded payloads small. Only the blob is ever persisted;
// the secret belongs to whoever holds the share URL.
func CreateShare(plaintext []byte) (secret [crypto.KeySize]byte, blob []byte, err error) {
	if _, err = io.ReadFull(rand.Reader, secret[:]); err != nil {
		return secret, nil, err
	}
	blob, err = sealShare(secret, plaintext)
	return secret, blob, err
}

func sealShare(secret [crypto.KeySize]byte, plaintext []byte) ([]byte, error) {
	key, err := crypto.DeriveKey(secret[:], []byte(shareLabel))
	if err != nil {
		return nil, err
	}
	compressed, err := compress(plaintext)
	if err != nil {
		return nil, err
	}
	return crypto.Seal(key, compressed, nil)
}

// OpenShare decrypts and decompresses a share blob. Any failure —
// wrong secret, truncated blob, tampered ciphertext, corrupt
// compression frame — surfaces as crypto.ErrDecryptionFailed; the
// caller cannot tell which, and retrying with the same secret is
// pointless.
func OpenShare(secret [crypto.KeySize]byte, blob []byte) ([]byte, error) {
	key, err := crypto.DeriveKey(secret[:], []byte(shareLabel))
	if err != nil {
		return nil, err
	}
	compressed, err := crypto.Open(key, blob, nil)
	if err != nil {
		return nil, crypto.ErrDecryptionFailed
	}
	plaintext, err := decompress(compressed)
	if err != nil {
		return nil, crypto.ErrDecryptionFailed
	}
	return plaintext, nil
}

func compress(data []byte) ([]byte, error) {
	var buf bytes.Buffer
	w := compressorPool.Get().(*lz4.Writer)
	defer compressorPool.Put(w)

	w.Reset(&buf)
	_ = w.Apply(lz4.CompressionLevelOption(lz4.Level4))

	if _, err := w.Write(data); err != nil {
		return nil, err
	}
	if err := w.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func decompress(data []byte) ([]byte, error) {
	r := decompressorPool.Get().(*lz4.Reader)
	defer decompressorPool.Put(r)

	r.Reset(bytes.NewReader(data))

	var buf bytes.Buffer
	if _, err := io.Copy(&buf, r); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
