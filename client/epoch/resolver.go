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
	"sync"

	"github.com/efchatnet/efepoch/client/crypto"
)

var (
	ErrEpochNotVisible      = errors.New("epoch: epoch predates this member's visibility")
	ErrUnknownEpoch         = errors.New("epoch: no key material reaches this epoch")
	ErrConfirmationMismatch = errors.New("epoch: recovered key fails confirmation check")
)

// View is the per-epoch material the server's read path hands a single
// member: the confirmation hash, the chain link if the epoch has one,
// and a wrap if one is addressed to this member.
type View struct {
	Number           int
	ConfirmationHash [32]byte
	ChainLink        []byte
	Wrap             []byte
}

// Resolver reconstructs epoch keys for one member of one conversation.
// It seeds from the highest epoch the member holds a wrap for and
// walks chain links backward on demand, memoizing every key it
// recovers. The cache is local to a single member session; recovered
// keys are immutable, so recomputation is always safe, memoization
// just avoids repeated asymmetric operations over long histories.
type Resolver struct {
	mu          sync.Mutex
	privateKey  [crypto.KeySize]byte
	visibleFrom int
	current     int
	views       map[int]View
	keys        map[int][crypto.KeySize]byte
}

// NewResolver builds a resolver from the member's private key, the
// earliest epoch the member is entitled to read, and the epoch views
// returned by the server's read path.
func NewResolver(memberPrivateKey [crypto.KeySize]byte, visibleFromEpoch int, views []View) *Resolver {
	r := &Resolver{
		privateKey:  memberPrivateKey,
		visibleFrom: visibleFromEpoch,
		views:       make(map[int]View, len(views)),
		keys:        make(map[int][crypto.KeySize]byte),
	}
	for _, v := range views {
		r.views[v.Number] = v
		if v.Number > r.current {
			r.current = v.Number
		}
	}
	return r
}

// CurrentEpoch returns the highest epoch number the resolver has
// material for.
func (r *Resolver) CurrentEpoch() int { return r.current }

// Key returns the private key for the requested epoch number.
//
// Requests below the member's visibleFromEpoch are refused before any
// cryptography runs. That refusal is policy, not math: the chain would
// often still decrypt further back, which is exactly why the server
// must also withhold that material rather than rely on this check.
func (r *Resolver) Key(number int) ([crypto.KeySize]byte, error) {
	var zero [crypto.KeySize]byte
	if number < r.visibleFrom {
		return zero, ErrEpochNotVisible
	}
	if number < 1 || number > r.current {
		return zero, ErrUnknownEpoch
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if key, ok := r.keys[number]; ok {
		return key, nil
	}

	// Seed: the highest epoch at or above the target that has a wrap
	// addressed to this member.
	seed := 0
	for n := r.current; n >= number; n-- {
		if v, ok := r.views[n]; ok && len(v.Wrap) > 0 {
			seed = n
			break
		}
	}
	if seed == 0 {
		return zero, ErrUnknownEpoch
	}

	key, ok := r.keys[seed]
	if !ok {
		unwrapped, err := UnwrapKey(r.privateKey, r.views[seed].Wrap)
		if err != nil {
			return zero, err
		}
		if err := r.confirm(seed, unwrapped); err != nil {
			return zero, err
		}
		r.keys[seed] = unwrapped
		key = unwrapped
	}

	// Walk backward through chain links down to the target.
	for n := seed; n > number; n-- {
		if cached, ok := r.keys[n-1]; ok {
			key = cached
			continue
		}
		v, ok := r.views[n]
		if !ok || len(v.ChainLink) == 0 {
			return zero, ErrUnknownEpoch
		}
		prev, err := TraverseChainLink(key, v.ChainLink)
		if err != nil {
			return zero, err
		}
		if err := r.confirm(n-1, prev); err != nil {
			return zero, err
		}
		r.keys[n-1] = prev
		key = prev
	}

	return key, nil
}

// confirm checks a recovered key against the epoch's confirmation hash
// when the server supplied one.
func (r *Resolver) confirm(number int, key [crypto.KeySize]byte) error {
	v, ok := r.views[number]
	if !ok {
		return nil
	}
	var zero [32]byte
	if v.ConfirmationHash == zero {
		return nil
	}
	if !crypto.VerifyConfirmation(key, v.ConfirmationHash) {
		return ErrConfirmationMismatch
	}
	return nil
}
