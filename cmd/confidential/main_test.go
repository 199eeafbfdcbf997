// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package main

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/luxfi/confidential/instruction"
)

func run(t *testing.T, out any, args ...string) {
	t.Helper()
	cmd := newRootCmd()
	var buf bytes.Buffer
	cmd.SetOut(&buf)
	cmd.SetArgs(args)
	require.NoError(t, cmd.Execute())
	require.NoError(t, json.Unmarshal(buf.Bytes(), out))
}

func TestParseAmount(t *testing.T) {
	tests := []struct {
		in      string
		want    uint64
		wantErr bool
	}{
		{in: "0", want: 0},
		{in: "42", want: 42},
		{in: "18446744073709551615", want: 1<<64 - 1},
		{in: "18446744073709551616", wantErr: true},
		{in: "-1", wantErr: true},
		{in: "ten", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := parseAmount(tt.in)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			require.Equal(t, tt.want, got)
		})
	}
}

func TestEncryptDecrypt(t *testing.T) {
	require := require.New(t)

	var kp map[string]string
	run(t, &kp, "keygen")
	require.NotEmpty(kp["publicKey"])

	var ct map[string]string
	run(t, &ct, "encrypt", "--public-key", kp["publicKey"], "--amount", "42")

	var dec map[string]uint64
	run(t, &dec, "decrypt", "--secret-key", kp["secretKey"], "--ciphertext", ct["ciphertext"], "--bound", "100")
	require.Equal(uint64(42), dec["amount"])
}

func TestProveRangeDecode(t *testing.T) {
	require := require.New(t)

	var c map[string]string
	run(t, &c, "commit", "--amount", "7")

	var proof proofOutput
	run(t, &proof, "prove-range", "--amount", "7", "--opening", c["opening"])
	require.Equal(c["commitment"], proof.Commitment.String())
	require.Equal(instruction.DefaultVerifierProgramID.String(), proof.ProgramID)

	var decoded decodedInstruction
	run(t, &decoded, "decode", "--data", proof.Instruction.String())
	require.Equal("VerifyRangeProof", decoded.Discriminator)
	require.Len(decoded.RangeProofs, 1)
	require.True(decoded.RangeProofs[0].Valid)
}

func TestContextAddress(t *testing.T) {
	require := require.New(t)

	authority := instruction.Address{1, 2, 3}
	var out contextAddressOutput
	run(t, &out, "context-address", "--authority", authority.String(), "--proof-type", "validity", "--nonce", "9")

	want, bump, err := instruction.DeriveContextAddress(instruction.DefaultVerifierProgramID, authority, instruction.ProofTypeValidity, 9)
	require.NoError(err)
	require.Equal(want.String(), out.Address)
	require.Equal(bump, out.Bump)
	require.Equal(instruction.RentExemptLamports(out.Space), out.Lamports)
}

func TestBench(t *testing.T) {
	var out benchOutput
	run(t, &out, "bench", "--count", "3")
	require.Equal(t, 3, out.Requests)
	require.Equal(t, 1, out.Tasks)
	require.Equal(t, 1, out.NativeProofs)
	require.Equal(t, 2, out.BoundaryCrossings)
}
