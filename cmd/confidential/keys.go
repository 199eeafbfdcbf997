// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package main

import (
	"github.com/luxfi/geth/common/hexutil"
	"github.com/spf13/cobra"

	"github.com/luxfi/confidential/curve"
	"github.com/luxfi/confidential/elgamal"
	"github.com/luxfi/confidential/pedersen"
)

type keypairOutput struct {
	PublicKey hexutil.Bytes `json:"publicKey"`
	SecretKey hexutil.Bytes `json:"secretKey"`
}

type ciphertextOutput struct {
	Ciphertext hexutil.Bytes `json:"ciphertext"`
	Commitment hexutil.Bytes `json:"commitment"`
	Handle     hexutil.Bytes `json:"handle"`
	Opening    hexutil.Bytes `json:"opening"`
}

type commitmentOutput struct {
	Commitment hexutil.Bytes `json:"commitment"`
	Opening    hexutil.Bytes `json:"opening"`
}

func newKeygenCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "keygen",
		Short: "Generate an ElGamal keypair",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			kp, err := elgamal.GenerateKeypair()
			if err != nil {
				return err
			}
			return printJSON(cmd, keypairOutput{
				PublicKey: kp.PublicKey.Bytes(),
				SecretKey: kp.SecretKey.Bytes(),
			})
		},
	}
}

func newEncryptCmd() *cobra.Command {
	var pkHex, amountStr string
	cmd := &cobra.Command{
		Use:   "encrypt",
		Short: "Encrypt an amount to a public key",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			pkBytes, err := decodeHex(pkHex)
			if err != nil {
				return err
			}
			pk, err := elgamal.ParsePublicKey(pkBytes)
			if err != nil {
				return err
			}
			amount, err := parseAmount(amountStr)
			if err != nil {
				return err
			}
			ct, opening, err := elgamal.Encrypt(amount, pk)
			if err != nil {
				return err
			}
			raw := ct.Bytes()
			r := opening.Scalar()
			scalar := curve.EncodeScalar(&r)
			return printJSON(cmd, ciphertextOutput{
				Ciphertext: raw[:],
				Commitment: ct.Commitment[:],
				Handle:     ct.Handle[:],
				Opening:    scalar[:],
			})
		},
	}
	cmd.Flags().StringVarP(&pkHex, "public-key", "k", "", "ElGamal public key (hex)")
	cmd.Flags().StringVarP(&amountStr, "amount", "a", "", "amount to encrypt")
	_ = cmd.MarkFlagRequired("public-key")
	_ = cmd.MarkFlagRequired("amount")
	return cmd
}

func newDecryptCmd() *cobra.Command {
	var (
		skHex, ctHex string
		bound        uint64
	)
	cmd := &cobra.Command{
		Use:   "decrypt",
		Short: "Decrypt a ciphertext whose amount is at most --bound",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			skBytes, err := decodeHex(skHex)
			if err != nil {
				return err
			}
			sk, err := elgamal.ParseSecretKey(skBytes)
			if err != nil {
				return err
			}
			ctBytes, err := decodeHex(ctHex)
			if err != nil {
				return err
			}
			ct, err := elgamal.ParseCiphertext(ctBytes)
			if err != nil {
				return err
			}
			amount, err := elgamal.Decrypt(ct, sk, bound)
			if err != nil {
				return err
			}
			return printJSON(cmd, map[string]uint64{"amount": amount})
		},
	}
	cmd.Flags().StringVarP(&skHex, "secret-key", "s", "", "ElGamal secret key (hex)")
	cmd.Flags().StringVarP(&ctHex, "ciphertext", "c", "", "ciphertext (hex)")
	cmd.Flags().Uint64VarP(&bound, "bound", "b", 1<<32, "largest amount searched")
	_ = cmd.MarkFlagRequired("secret-key")
	_ = cmd.MarkFlagRequired("ciphertext")
	return cmd
}

func newCommitCmd() *cobra.Command {
	var amountStr string
	cmd := &cobra.Command{
		Use:   "commit",
		Short: "Commit to an amount under a fresh blinding factor",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			amount, err := parseAmount(amountStr)
			if err != nil {
				return err
			}
			c, o, err := pedersen.New(amount)
			if err != nil {
				return err
			}
			blinding := o.Bytes()
			return printJSON(cmd, commitmentOutput{
				Commitment: c[:],
				Opening:    blinding[:],
			})
		},
	}
	cmd.Flags().StringVarP(&amountStr, "amount", "a", "", "amount to commit to")
	_ = cmd.MarkFlagRequired("amount")
	return cmd
}
