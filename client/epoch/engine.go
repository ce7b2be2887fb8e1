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

package epoch

import (
	"errors"

	"github.com/efchatnet/efepoch/client/crypto"
)

var (
	ErrBadEpochNumber = errors.New("epoch: epoch number must increase by one")
	ErrMalformedWrap  = errors.New("epoch: malformed wrap")
)

// KDF labels. Distinct labels keep wrap keys and chain-link keys
// unrelated even when derived from overlapping secrets.
const (
	wrapLabel  = "efepoch/wrap/v1"
	chainLabel = "efepoch/chain/v1"
)

// MemberWrap is one epoch private key encrypted so that only the named
// member can recover it.
type MemberWrap struct {
	MemberPublicKey [crypto.KeySize]byte
	Wrap            []byte
}

// NewEpoch is the client-side result of creating or rotating an epoch.
// Everything except PrivateKey is safe to submit to the server.
type NewEpoch struct {
	Number           int
	PublicKey        [crypto.KeySize]byte
	PrivateKey       [crypto.KeySize]byte
	ConfirmationHash [32]byte
	ChainLink        []byte // absent on the first epoch
	Wraps            []MemberWrap
}

// CreateFirstEpoch creates epoch 1 of a conversation: a fresh epoch
// keypair plus one wrap per member. There is no chain link because
// there is nothing older to chain to. Duplicate member keys are
// deduplicated.
func CreateFirstEpoch(memberPublicKeys [][crypto.KeySize]byte) (*NewEpoch, error) {
	return newEpoch(1, nil, memberPublicKeys)
}

// Rotate advances a conversation to the given epoch number. The new
// epoch key is a brand-new random keypair, never derived from the
// previous one; the only artifact binding the epochs is the chain
// link, which encrypts the previous private key under a key derived
// from the new one.
//
// The member set is the set after the membership edit that motivated
// the rotation. An empty set is legal and produces an epoch nobody can
// currently read; callers are expected to guard against that.
func Rotate(previousPrivateKey [crypto.KeySize]byte, number int, memberPublicKeys [][crypto.KeySize]byte) (*NewEpoch, error) {
	if number < 2 {
		return nil, ErrBadEpochNumber
	}
	return newEpoch(number, previousPrivateKey[:], memberPublicKeys)
}

func newEpoch(number int, previousPrivateKey []byte, memberPublicKeys [][crypto.KeySize]byte) (*NewEpoch, error) {
	kp, err := crypto.GenerateKeyPair()
	if err != nil {
		return nil, err
	}

	e := &NewEpoch{
		Number:           number,
		PublicKey:        kp.PublicKey,
		PrivateKey:       kp.PrivateKey,
		ConfirmationHash: crypto.ConfirmationHash(kp.PrivateKey),
	}

	seen := make(map[[crypto.KeySize]byte]bool, len(memberPublicKeys))
	for _, memberPub := range memberPublicKeys {
		if seen[memberPub] {
			continue
		}
		seen[memberPub] = true

		wrap, err := wrapFor(kp.PrivateKey, memberPub)
		if err != nil {
			return nil, err
		}
		e.Wraps = append(e.Wraps, MemberWrap{MemberPublicKey: memberPub, Wrap: wrap})
	}

	if previousPrivateKey != nil {
		chainKey, err := crypto.DeriveKey(kp.PrivateKey[:], []byte(chainLabel))
		if err != nil {
			return nil, err
		}
		e.ChainLink, err = crypto.Seal(chainKey, previousPrivateKey, nil)
		if err != nil {
			return nil, err
		}
	}

	return e, nil
}

// wrapFor encrypts an epoch private key to a single member.
//
// Wire format: ephemeralPub (32) || nonce (12) || ciphertext+tag.
// The AEAD key is HKDF(ECDH(eph, member), label || ephPub || memberPub),
// binding the wrap to both halves of the key agreement.
func wrapFor(epochPrivateKey, memberPublicKey [crypto.KeySize]byte) ([]byte, error) {
	eph, err := crypto.GenerateKeyPair()
	if err != nil {
		return nil, err
	}
	shared, err := crypto.SharedSecret(eph.PrivateKey, memberPublicKey)
	if err != nil {
		return nil, err
	}
	key, err := crypto.DeriveKey(shared, wrapInfo(eph.PublicKey, memberPublicKey))
	if err != nil {
		return nil, err
	}
	sealed, err := crypto.Seal(key, epochPrivateKey[:], nil)
	if err != nil {
		return nil, err
	}

	wrap := make([]byte, 0, crypto.KeySize+len(sealed))
	wrap = append(wrap, eph.PublicKey[:]...)
	wrap = append(wrap, sealed...)
	return wrap, nil
}

// UnwrapKey recovers an epoch private key from a wrap addressed to the
// holder of memberPrivateKey. A wrap addressed to anyone else fails
// with crypto.ErrDecryptionFailed.
func UnwrapKey(memberPrivateKey [crypto.KeySize]byte, wrap []byte) ([crypto.KeySize]byte, error) {
	var recovered [crypto.KeySize]byte
	if len(wrap) < crypto.KeySize+crypto.SealOverhead {
		return recovered, ErrMalformedWrap
	}

	var ephPub [crypto.KeySize]byte
	copy(ephPub[:], wrap[:crypto.KeySize])

	shared, err := crypto.SharedSecret(memberPrivateKey, ephPub)
	if err != nil {
		return recovered, err
	}
	memberPub := crypto.PublicKey(memberPrivateKey)
	key, err := crypto.DeriveKey(shared, wrapInfo(ephPub, memberPub))
	if err != nil {
		return recovered, err
	}
	plain, err := crypto.Open(key, wrap[crypto.KeySize:], nil)
	if err != nil {
		return recovered, err
	}
	if len(plain) != crypto.KeySize {
		return recovered, ErrMalformedWrap
	}
	copy(recovered[:], plain)
	return recovered, nil
}

// TraverseChainLink recovers epoch N-1's private key from epoch N's
// private key and epoch N's chain link. The direction is deliberate:
// the chain-link key derives from the newer private key, so the holder
// of only the older key learns nothing about the newer one. This is
// what revokes future access for removed members.
func TraverseChainLink(newerPrivateKey [crypto.KeySize]byte, chainLink []byte) ([crypto.KeySize]byte, error) {
	var recovered [crypto.KeySize]byte
	chainKey, err := crypto.DeriveKey(newerPrivateKey[:], []byte(chainLabel))
	if err != nil {
		return recovered, err
	}
	plain, err := crypto.Open(chainKey, chainLink, nil)
	if err != nil {
		return recovered, err
	}
	if len(plain) != crypto.KeySize {
		return recovered, crypto.ErrDecryptionFailed
	}
	copy(recovered[:], plain)
	return recovered, nil
}

func wrapInfo(ephemeralPub, memberPub [crypto.KeySize]byte) []byte {
	info := make([]byte, 0, len(wrapLabel)+2*crypto.KeySize)
	info = append(info, []byte(wrapLabel)...)
	info = append(info, ephemeralPub[:]...)
	info = append(info, memberPub[:]...)
	return info
}
