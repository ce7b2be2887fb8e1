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
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/efchatnet/efepoch/client/crypto"
)

func members(t *testing.T, n int) []crypto.KeyPair {
	t.Helper()
	out := make([]crypto.KeyPair, n)
	for i := range out {
		kp, err := crypto.GenerateKeyPair()
		require.NoError(t, err)
		out[i] = kp
	}
	return out
}

func publicKeys(kps []crypto.KeyPair) [][crypto.KeySize]byte {
	out := make([][crypto.KeySize]byte, len(kps))
	for i, kp := range kps {
		out[i] = kp.PublicKey
	}
	return out
}

func TestCreateFirstEpochEveryMemberUnwraps(t *testing.T) {
	ms := members(t, 3)
	first, err := CreateFirstEpoch(publicKeys(ms))
	require.NoError(t, err)

	assert.Equal(t, 1, first.Number)
	assert.Nil(t, first.ChainLink)
	require.Len(t, first.Wraps, 3)
	assert.True(t, crypto.VerifyConfirmation(first.PrivateKey, first.ConfirmationHash))

	for i, m := range ms {
		recovered, err := UnwrapKey(m.PrivateKey, first.Wraps[i].Wrap)
		require.NoError(t, err)
		assert.Equal(t, first.PrivateKey, recovered)
	}
}

func TestCreateFirstEpochDeduplicatesMembers(t *testing.T) {
	ms := members(t, 1)
	pubs := [][crypto.KeySize]byte{ms[0].PublicKey, ms[0].PublicKey, ms[0].PublicKey}

	first, err := CreateFirstEpoch(pubs)
	require.NoError(t, err)
	assert.Len(t, first.Wraps, 1)
}

func TestUnwrapRejectsWrongRecipient(t *testing.T) {
	ms := members(t, 2)
	first, err := CreateFirstEpoch(publicKeys(ms[:1]))
	require.NoError(t, err)

	_, err = UnwrapKey(ms[1].PrivateKey, first.Wraps[0].Wrap)
	assert.ErrorIs(t, err, crypto.ErrDecryptionFailed)
}

func TestUnwrapRejectsMalformedWrap(t *testing.T) {
	ms := members(t, 1)
	_, err := UnwrapKey(ms[0].PrivateKey, []byte("short"))
	assert.ErrorIs(t, err, ErrMalformedWrap)
}

func TestRotationIsFreshKey(t *testing.T) {
	ms := members(t, 2)
	first, err := CreateFirstEpoch(publicKeys(ms))
	require.NoError(t, err)

	second, err := Rotate(first.PrivateKey, 2, publicKeys(ms))
	require.NoError(t, err)

	assert.NotEqual(t, first.PrivateKey, second.PrivateKey)
	assert.NotEqual(t, first.PublicKey, second.PublicKey)
	assert.NotEqual(t, first.ConfirmationHash, second.ConfirmationHash)
	assert.NotNil(t, second.ChainLink)
}

func TestRotateRejectsFirstEpochNumber(t *testing.T) {
	ms := members(t, 1)
	first, err := CreateFirstEpoch(publicKeys(ms))
	require.NoError(t, err)

	_, err = Rotate(first.PrivateKey, 1, publicKeys(ms))
	assert.ErrorIs(t, err, ErrBadEpochNumber)
}

func TestRotateWithEmptyMemberSet(t *testing.T) {
	ms := members(t, 1)
	first, err := CreateFirstEpoch(publicKeys(ms))
	require.NoError(t, err)

	second, err := Rotate(first.PrivateKey, 2, nil)
	require.NoError(t, err)
	assert.Empty(t, second.Wraps)
	assert.NotNil(t, second.ChainLink)
}

func TestChainTraversalRecoversFullHistory(t *testing.T) {
	ms := members(t, 2)
	const depth = 8

	epochs := make([]*NewEpoch, 0, depth)
	first, err := CreateFirstEpoch(publicKeys(ms))
	require.NoError(t, err)
	epochs = append(epochs, first)

	for n := 2; n <= depth; n++ {
		next, err := Rotate(epochs[len(epochs)-1].PrivateKey, n, publicKeys(ms))
		require.NoError(t, err)
		epochs = append(epochs, next)
	}

	// Walk from the newest key all the way back to epoch 1.
	key := epochs[depth-1].PrivateKey
	for n := depth; n > 1; n-- {
		prev, err := TraverseChainLink(key, epochs[n-1].ChainLink)
		require.NoError(t, err)
		assert.Equal(t, epochs[n-2].PrivateKey, prev, "epoch %d", n-1)
		assert.True(t, crypto.VerifyConfirmation(prev, epochs[n-2].ConfirmationHash))
		key = prev
	}
	assert.Equal(t, epochs[0].PrivateKey, key)
}

func TestChainLinkIsOneDirectional(t *testing.T) {
	ms := members(t, 2)
	first, err := CreateFirstEpoch(publicKeys(ms))
	require.NoError(t, err)
	second, err := Rotate(first.PrivateKey, 2, publicKeys(ms[:1]))
	require.NoError(t, err)

	// The old key plus the new chain link must not yield the new key.
	// The chain-link AEAD key derives from the newer private key, so
	// decrypting with the older one is just a wrong-key failure.
	_, err = TraverseChainLink(first.PrivateKey, second.ChainLink)
	assert.ErrorIs(t, err, crypto.ErrDecryptionFailed)
}

func TestRemovedMemberLosesFutureEpochs(t *testing.T) {
	ms := members(t, 2) // A and B
	a, b := ms[0], ms[1]

	first, err := CreateFirstEpoch([][crypto.KeySize]byte{a.PublicKey, b.PublicKey})
	require.NoError(t, err)

	// B is removed; epoch 2 wraps only for A.
	second, err := Rotate(first.PrivateKey, 2, [][crypto.KeySize]byte{a.PublicKey})
	require.NoError(t, err)
	require.Len(t, second.Wraps, 1)

	// A reaches epoch 2.
	aKey, err := UnwrapKey(a.PrivateKey, second.Wraps[0].Wrap)
	require.NoError(t, err)
	assert.Equal(t, second.PrivateKey, aKey)

	// B still holds epoch 1's key but has no wrap for epoch 2 and the
	// chain link runs the wrong way.
	bKey, err := UnwrapKey(b.PrivateKey, first.Wraps[1].Wrap)
	require.NoError(t, err)
	assert.Equal(t, first.PrivateKey, bKey)

	_, err = UnwrapKey(b.PrivateKey, second.Wraps[0].Wrap)
	assert.Error(t, err)

	_, err = TraverseChainLink(bKey, second.ChainLink)
	assert.ErrorIs(t, err, crypto.ErrDecryptionFailed)

	// A message sealed under epoch 2 stays dark to B.
	msgKey, err := crypto.DeriveKey(second.PrivateKey[:], []byte("message-key"))
	require.NoError(t, err)
	ciphertext, err := crypto.Seal(msgKey, []byte("post-removal message"), nil)
	require.NoError(t, err)

	bGuess, err := crypto.DeriveKey(bKey[:], []byte("message-key"))
	require.NoError(t, err)
	_, err = crypto.Open(bGuess, ciphertext, nil)
	assert.ErrorIs(t, err, crypto.ErrDecryptionFailed)
}
