// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package main

import (
	"fmt"

	"github.com/luxfi/geth/common/hexutil"
	"github.com/spf13/cobra"

	"github.com/luxfi/confidential/engine"
	"github.com/luxfi/confidential/instruction"
	"github.com/luxfi/confidential/pedersen"
	"github.com/luxfi/confidential/rangeproof"
)

type proofOutput struct {
	Type           string        `json:"type"`
	Commitment     hexutil.Bytes `json:"commitment,omitempty"`
	Proof          hexutil.Bytes `json:"proof"`
	ProgramID      string        `json:"programId"`
	Instruction    hexutil.Bytes `json:"instruction"`
	UsedNativePath bool          `json:"usedNativePath"`
	Retries        int           `json:"retries"`
	GenerationTime string        `json:"generationTime"`
}

func newProveRangeCmd() *cobra.Command {
	var amountStr, openingHex string
	cmd := &cobra.Command{
		Use:   "prove-range",
		Short: "Commit to an amount and prove it lies in [0, 2^64)",
		Long: `Commits to --amount, using --opening as the blinding factor when given,
and prints the range proof with its VerifyRangeProof instruction.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			amount, err := parseAmount(amountStr)
			if err != nil {
				return err
			}
			commitment, opening, err := commitTo(amount, openingHex)
			if err != nil {
				return err
			}

			s, err := newSession(cmd)
			if err != nil {
				return err
			}
			proof, err := s.ProveRange(cmd.Context(), amount, commitment, opening)
			if err != nil {
				return err
			}
			return printJSON(cmd, proofOutput{
				Type:           proof.Type.String(),
				Commitment:     commitment[:],
				Proof:          proof.ProofBytes,
				ProgramID:      proof.Instruction.ProgramID.String(),
				Instruction:    proof.Instruction.Data,
				UsedNativePath: proof.UsedNativePath,
				Retries:        proof.Retries,
				GenerationTime: proof.GenerationTime.String(),
			})
		},
	}
	cmd.Flags().StringVarP(&amountStr, "amount", "a", "", "amount to prove")
	cmd.Flags().StringVarP(&openingHex, "opening", "o", "", "blinding factor (hex), random when empty")
	_ = cmd.MarkFlagRequired("amount")
	return cmd
}

// commitTo commits to amount, under openingHex when it is set
func commitTo(amount uint64, openingHex string) (pedersen.Commitment, pedersen.Opening, error) {
	if openingHex == "" {
		return pedersen.New(amount)
	}
	b, err := decodeHex(openingHex)
	if err != nil {
		return pedersen.Commitment{}, pedersen.Opening{}, err
	}
	opening, err := pedersen.ParseOpening(b)
	if err != nil {
		return pedersen.Commitment{}, pedersen.Opening{}, err
	}
	return pedersen.Commit(amount, opening), opening, nil
}

type decodedEntry struct {
	Commitment hexutil.Bytes `json:"commitment"`
	ProofLen   int           `json:"proofLen"`
	Valid      bool          `json:"valid"`
}

type decodedInstruction struct {
	Discriminator string          `json:"discriminator"`
	Size          int             `json:"size"`
	Ciphertexts   []hexutil.Bytes `json:"ciphertexts,omitempty"`
	Proofs        []hexutil.Bytes `json:"proofs,omitempty"`
	RangeProofs   []decodedEntry  `json:"rangeProofs,omitempty"`
}

func newDecodeCmd() *cobra.Command {
	var dataHex string
	cmd := &cobra.Command{
		Use:   "decode",
		Short: "Decode verifier instruction data",
		Long: `Decodes instruction data produced by prove-range or any other verifier
instruction. Range proofs are checked against their commitments.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			data, err := decodeHex(dataHex)
			if err != nil {
				return err
			}
			p, err := instruction.Parse(data)
			if err != nil {
				return err
			}
			return printJSON(cmd, describe(p, len(data)))
		},
	}
	cmd.Flags().StringVarP(&dataHex, "data", "d", "", "instruction data (hex)")
	_ = cmd.MarkFlagRequired("data")
	return cmd
}

func rangeEntry(c pedersen.Commitment, proof []byte) decodedEntry {
	entry := decodedEntry{Commitment: c[:], ProofLen: len(proof)}
	if parsed, err := rangeproof.ParseProof(proof); err == nil {
		entry.Valid = rangeproof.Verify(c, &parsed)
	}
	return entry
}

func describe(p instruction.Payload, size int) decodedInstruction {
	out := decodedInstruction{Discriminator: p.Discriminator().String(), Size: size}
	switch p := p.(type) {
	case *instruction.RangeProof:
		out.RangeProofs = []decodedEntry{rangeEntry(p.Commitment, p.Proof)}
	case *instruction.BatchedRangeProof:
		for _, e := range p.Entries {
			out.RangeProofs = append(out.RangeProofs, rangeEntry(e.Commitment, e.Proof))
		}
	case *instruction.ValidityProof:
		ct := p.Ciphertext.Bytes()
		out.Ciphertexts = []hexutil.Bytes{ct[:]}
		out.Proofs = []hexutil.Bytes{p.Proof.Bytes()}
	case *instruction.EqualityProof:
		first, second := p.First.Bytes(), p.Second.Bytes()
		out.Ciphertexts = []hexutil.Bytes{first[:], second[:]}
		out.Proofs = []hexutil.Bytes{p.Proof.Bytes()}
	case *instruction.Transfer:
		ct := p.EncryptedAmount.Bytes()
		out.Ciphertexts = []hexutil.Bytes{ct[:]}
		out.Proofs = []hexutil.Bytes{p.EqualityProof.Bytes(), p.ValidityProof.Bytes()}
		out.RangeProofs = []decodedEntry{rangeEntry(p.NewCommitment, p.RangeProof)}
	case *instruction.TransferWithFee:
		ct, fee := p.EncryptedAmount.Bytes(), p.EncryptedFee.Bytes()
		out.Ciphertexts = []hexutil.Bytes{ct[:], fee[:]}
		out.Proofs = []hexutil.Bytes{p.EqualityProof.Bytes(), p.ValidityProof.Bytes(), p.FeeValidityProof.Bytes()}
		out.RangeProofs = []decodedEntry{rangeEntry(p.NewCommitment, p.RangeProof)}
	}
	return out
}

type contextAddressOutput struct {
	Address   string `json:"address"`
	Bump      uint8  `json:"bump"`
	ProofType string `json:"proofType"`
	Space     uint64 `json:"space"`
	Lamports  uint64 `json:"lamports"`
}

func newContextAddressCmd() *cobra.Command {
	var (
		authorityStr, proofTypeStr string
		nonce                      uint64
	)
	cmd := &cobra.Command{
		Use:   "context-address",
		Short: "Derive the proof context account of an authority",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			programID, err := cfg.ProgramID()
			if err != nil {
				return err
			}
			authority, err := instruction.ParseAddress(authorityStr)
			if err != nil {
				return err
			}
			proofType, err := instruction.ParseProofType(proofTypeStr)
			if err != nil {
				return err
			}
			address, bump, err := instruction.DeriveContextAddress(programID, authority, proofType, nonce)
			if err != nil {
				return err
			}
			space, err := instruction.ContextStateSize(proofType)
			if err != nil {
				return err
			}
			return printJSON(cmd, contextAddressOutput{
				Address:   address.String(),
				Bump:      bump,
				ProofType: proofType.String(),
				Space:     space,
				Lamports:  instruction.RentExemptLamports(space),
			})
		},
	}
	cmd.Flags().StringVar(&authorityStr, "authority", "", "authority address (base58)")
	cmd.Flags().StringVar(&proofTypeStr, "proof-type", "range", "range, validity, equality, transfer, transfer-with-fee or batched-range")
	cmd.Flags().Uint64Var(&nonce, "nonce", 0, "context nonce")
	_ = cmd.MarkFlagRequired("authority")
	return cmd
}

type benchOutput struct {
	Requests          int     `json:"requests"`
	Tasks             int     `json:"tasks"`
	Batches           int     `json:"batches"`
	NativeProofs      int     `json:"nativeProofs"`
	FallbackProofs    int     `json:"fallbackProofs"`
	BoundaryCrossings int     `json:"boundaryCrossings"`
	NativeShare       float64 `json:"nativeShare"`
	AvgBatchTime      string  `json:"avgBatchTime"`
	AvgBridgeTime     string  `json:"avgBridgeTime"`
	AvgSpeedupFactor  float64 `json:"avgSpeedupFactor"`
}

func newBenchCmd() *cobra.Command {
	var count int
	cmd := &cobra.Command{
		Use:   "bench",
		Short: "Prove --count range proofs through the scheduler and report the batch metrics",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if count < 1 {
				return fmt.Errorf("count must be positive, got %d", count)
			}
			s, err := newSession(cmd)
			if err != nil {
				return err
			}
			requests := make([]engine.RangePayload, count)
			for i := range requests {
				amount := uint64(i) * 1_000_003
				c, o, err := pedersen.New(amount)
				if err != nil {
					return err
				}
				requests[i] = engine.RangePayload{Amount: amount, Commitment: c, Opening: o}
			}
			proofs, err := s.ProveRangeBatch(cmd.Context(), requests)
			if err != nil {
				return err
			}
			report := s.Scheduler().Report()
			return printJSON(cmd, benchOutput{
				Requests:          count,
				Tasks:             len(proofs),
				Batches:           report.Batches,
				NativeProofs:      report.NativeProofs,
				FallbackProofs:    report.FallbackProofs,
				BoundaryCrossings: report.BoundaryCrossings,
				NativeShare:       report.NativeShare,
				AvgBatchTime:      report.AvgTotalTime.String(),
				AvgBridgeTime:     report.AvgBridgeTime.String(),
				AvgSpeedupFactor:  report.AvgSpeedupFactor,
			})
		},
	}
	cmd.Flags().IntVarP(&count, "count", "n", 16, "number of range proofs")
	return cmd
}
