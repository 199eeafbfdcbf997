// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package instruction

import (
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestContextStateSize(t *testing.T) {
	tests := []struct {
		proofType ProofType
		want      uint64
	}{
		{proofType: ProofTypeRange, want: 33 + 32},
		{proofType: ProofTypeValidity, want: 33 + 96},
		{proofType: ProofTypeEquality, want: 33 + 192},
		{proofType: ProofTypeTransfer, want: 33 + 96},
		{proofType: ProofTypeTransferWithFee, want: 33 + 192},
		{proofType: ProofTypeBatchedRange, want: 33 + 1 + 255*32},
	}
	for _, tt := range tests {
		t.Run(tt.proofType.String(), func(t *testing.T) {
			got, err := ContextStateSize(tt.proofType)
			require.NoError(t, err)
			require.Equal(t, tt.want, got)
		})
	}

	_, err := ContextStateSize(ProofType(0))
	require.ErrorIs(t, err, ErrUnknownProofType)
}

func TestRentExemptLamports(t *testing.T) {
	require.Equal(t, uint64((128+65)*3480*2), RentExemptLamports(65))
	require.Equal(t, uint64(128*3480*2), RentExemptLamports(0))
}

func TestCreateContextInstruction(t *testing.T) {
	require := require.New(t)

	var payer, context Address
	payer[0], context[0] = 0xaa, 0xbb
	space, err := ContextStateSize(ProofTypeRange)
	require.NoError(err)
	lamports := RentExemptLamports(space)

	ix, err := NewCreateContextInstruction(DefaultVerifierProgramID, payer, context, ProofTypeRange, lamports)
	require.NoError(err)
	require.Equal(SystemProgramID, ix.ProgramID)
	require.Len(ix.Data, 52)
	require.Zero(binary.LittleEndian.Uint32(ix.Data[0:4]))
	require.Equal(lamports, binary.LittleEndian.Uint64(ix.Data[4:12]))
	require.Equal(space, binary.LittleEndian.Uint64(ix.Data[12:20]))
	require.Equal(DefaultVerifierProgramID[:], ix.Data[20:52])
	require.True(ix.Accounts[0].IsSigner)
	require.Equal(context, ix.Accounts[1].Address)

	_, err = NewCreateContextInstruction(DefaultVerifierProgramID, payer, context, ProofType(42), lamports)
	require.ErrorIs(err, ErrUnknownProofType)
}

func TestCloseContextInstruction(t *testing.T) {
	require := require.New(t)

	var context, dest, authority Address
	context[0], dest[0], authority[0] = 1, 2, 3
	ix := NewCloseContextInstruction(DefaultVerifierProgramID, context, dest, authority)
	require.Equal([]byte{byte(CloseContextState)}, ix.Data)
	require.Equal([]AccountMeta{
		{Address: context, IsWritable: true},
		{Address: dest, IsWritable: true},
		{Address: authority, IsSigner: true},
	}, ix.Accounts)

	p, err := Parse(ix.Data)
	require.NoError(err)
	require.Equal(CloseContextState, p.Discriminator())
}

func TestParseProofType(t *testing.T) {
	require := require.New(t)

	for name, want := range proofTypeNames {
		got, err := ParseProofType(name)
		require.NoError(err)
		require.Equal(want, got)
	}
	_, err := ParseProofType("VerifyRangeProof")
	require.ErrorIs(err, ErrUnknownProofType)
}
