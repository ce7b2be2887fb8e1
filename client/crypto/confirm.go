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

package crypto

import (
	"crypto/subtle"

	"github.com/zeebo/blake3"
)

const confirmationLabel = "efepoch/confirm/v1"

// ConfirmationHash computes the one-way fingerprint of an epoch private
// key. It lets a party prove it recovered the right key without ever
// transmitting the key, and yields nothing about the key itself.
func ConfirmationHash(privateKey [KeySize]byte) [32]byte {
	h := blake3.New()
	h.Write(privateKey[:])
	h.Write([]byte(confirmationLabel))
	var out [32]byte
	copy(out[:], h.Sum(nil))
	return out
}

// VerifyConfirmation reports whether candidate is the private key the
// confirmation hash was computed over. The comparison is constant-time.
func VerifyConfirmation(candidate [KeySize]byte, confirmation [32]byte) bool {
	computed := ConfirmationHash(candidate)
	return subtle.ConstantTimeCompare(computed[:], confirmation[:]) == 1
}
