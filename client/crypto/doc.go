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

// Package crypto provides the client-side primitives for the epoch
// key-rotation protocol.
//
//   - X25519 key agreement (RFC 7748)
//   - AEAD encryption via ChaCha20-Poly1305 (RFC 8439)
//   - Key derivation via HKDF-SHA256
//   - Epoch key confirmation hashing via BLAKE3
//
// Everything in this package is pure and synchronous: no I/O, no
// hidden state. Private key material never leaves the caller.
package crypto
