// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package main

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/holiman/uint256"
	"github.com/luxfi/geth/common/hexutil"
	"github.com/luxfi/log"
	"github.com/spf13/cobra"

	"github.com/luxfi/confidential"
	"github.com/luxfi/confidential/config"
)

var (
	version   = "dev"
	buildDate = "unknown"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "confidential",
		Short: "Confidential amount cryptography and proof tooling",
		Long: `Generates twisted ElGamal keys and ciphertexts, Pedersen commitments and
range, validity and equality proofs, and encodes them as verifier
instructions.`,
		Version:       fmt.Sprintf("%s (built %s)", version, buildDate),
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	config.AddFlags(rootCmd.PersistentFlags())

	rootCmd.AddCommand(
		newKeygenCmd(),
		newEncryptCmd(),
		newDecryptCmd(),
		newCommitCmd(),
		newProveRangeCmd(),
		newDecodeCmd(),
		newContextAddressCmd(),
		newBenchCmd(),
	)
	return rootCmd
}

func loadConfig(cmd *cobra.Command) (config.Config, error) {
	v, err := config.BuildViper(cmd.Flags())
	if err != nil {
		return config.Config{}, err
	}
	return config.NewConfig(v)
}

func newLogger(cfg config.Config) log.Logger {
	if cfg.LogLevel == "debug" {
		return log.NewTestLogger(log.DebugLevel)
	}
	return log.NewTestLogger(log.InfoLevel)
}

func newSession(cmd *cobra.Command) (*confidential.Session, error) {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return nil, err
	}
	return confidential.NewSession(cmd.Context(), cfg, newLogger(cfg))
}

func printJSON(cmd *cobra.Command, v any) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// decodeHex accepts input with or without the 0x prefix
func decodeHex(s string) ([]byte, error) {
	if !strings.HasPrefix(s, "0x") && !strings.HasPrefix(s, "0X") {
		s = "0x" + s
	}
	return hexutil.Decode(s)
}

// parseAmount parses a decimal amount, rejecting values that do not fit
// in 64 bits
func parseAmount(s string) (uint64, error) {
	v, err := uint256.FromDecimal(s)
	if err != nil {
		return 0, fmt.Errorf("invalid amount %q: %w", s, err)
	}
	if !v.IsUint64() {
		return 0, fmt.Errorf("amount %s exceeds 2^64-1", s)
	}
	return v.Uint64(), nil
}
