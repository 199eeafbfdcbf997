// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package pedersen

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/luxfi/confidential/curve"
)

func TestCommitDeterministic(t *testing.T) {
	require := require.New(t)

	o := NewOpening(curve.ScalarFromUint64(1234))
	require.Equal(Commit(42, o), Commit(42, o))
	require.NotEqual(Commit(42, o), Commit(43, o))

	other := NewOpening(curve.ScalarFromUint64(1235))
	require.NotEqual(Commit(42, o), Commit(42, other))
}

func TestCommitmentVerify(t *testing.T) {
	require := require.New(t)

	c, o, err := New(500)
	require.NoError(err)
	require.True(c.Verify(500, o))
	require.False(c.Verify(501, o))
}

func TestCommitmentHomomorphism(t *testing.T) {
	require := require.New(t)

	a, oa, err := New(70)
	require.NoError(err)
	b, ob, err := New(30)
	require.NoError(err)

	sum, err := a.Add(b)
	require.NoError(err)
	require.True(sum.Verify(100, AddOpenings(oa, ob)))

	diff, err := a.Sub(b)
	require.NoError(err)
	require.True(diff.Verify(40, SubOpenings(oa, ob)))
}

func TestParseCommitment(t *testing.T) {
	require := require.New(t)

	c, o, err := New(1)
	require.NoError(err)
	parsed, err := ParseCommitment(c[:])
	require.NoError(err)
	require.Equal(c, parsed)

	_, err = ParseCommitment(c[:16])
	require.ErrorIs(err, ErrInvalidCommitment)

	enc := o.Bytes()
	back, err := ParseOpening(enc[:])
	require.NoError(err)
	require.True(c.Verify(1, back))
}
