// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package config holds the tunables of the proof pipeline and loads them
// from flags, environment and an optional JSON file.
package config

import (
	"errors"
	"fmt"
	"time"

	"github.com/luxfi/confidential/engine"
	"github.com/luxfi/confidential/instruction"
)

const (
	DefaultMaxProofsPerBatch           = 10
	DefaultMaxComputeUnits             = 1_400_000
	DefaultMaxTransactionSize          = 1232
	DefaultMaxRetries                  = 3
	DefaultProofTimeout                = 30 * time.Second
	DefaultEnableNativeAcceleration    = true
	DefaultMinBatchSizeForAcceleration = 3
	DefaultMaxBoundaryCrossings        = 10
	DefaultEnableFallback              = true
	DefaultNativeMemoryLimit           = 512 << 20
	DefaultNativeWorkers               = 0
	DefaultFallbackWorkers             = 1
	DefaultMetricsHistorySize          = 100
	DefaultLogLevel                    = "info"

	// performanceInfoTTL bounds how long one accelerator probe is trusted
	performanceInfoTTL = 5 * time.Second
)

var (
	ErrInvalidConfig = errors.New("invalid configuration")

	logLevels = map[string]struct{}{
		"debug": {},
		"info":  {},
	}
)

// Config is the full set of pipeline tunables
type Config struct {
	MaxProofsPerBatch           int           `mapstructure:"max-proofs-per-batch" json:"max-proofs-per-batch"`
	MaxComputeUnits             uint64        `mapstructure:"max-compute-units" json:"max-compute-units"`
	MaxTransactionSize          int           `mapstructure:"max-transaction-size" json:"max-transaction-size"`
	MaxBoundaryCrossings        int           `mapstructure:"max-boundary-crossings" json:"max-boundary-crossings"`
	MaxRetries                  int           `mapstructure:"max-retries" json:"max-retries"`
	ProofTimeout                time.Duration `mapstructure:"proof-timeout" json:"proof-timeout"`
	EnableNativeAcceleration    bool          `mapstructure:"enable-native-acceleration" json:"enable-native-acceleration"`
	MinBatchSizeForAcceleration int           `mapstructure:"min-batch-size-for-acceleration" json:"min-batch-size-for-acceleration"`
	EnableFallback              bool          `mapstructure:"enable-fallback" json:"enable-fallback"`
	NativeMemoryLimit           uint64        `mapstructure:"native-memory-limit" json:"native-memory-limit"`
	NativeWorkers               int           `mapstructure:"native-workers" json:"native-workers"`
	FallbackWorkers             int           `mapstructure:"fallback-workers" json:"fallback-workers"`
	MetricsHistorySize          int           `mapstructure:"metrics-history-size" json:"metrics-history-size"`
	LogLevel                    string        `mapstructure:"log-level" json:"log-level"`
	VerifierProgramID           string        `mapstructure:"verifier-program-id" json:"verifier-program-id"`
}

// Default returns the configuration used when nothing is overridden
func Default() Config {
	return Config{
		MaxProofsPerBatch:           DefaultMaxProofsPerBatch,
		MaxComputeUnits:             DefaultMaxComputeUnits,
		MaxTransactionSize:          DefaultMaxTransactionSize,
		MaxBoundaryCrossings:        DefaultMaxBoundaryCrossings,
		MaxRetries:                  DefaultMaxRetries,
		ProofTimeout:                DefaultProofTimeout,
		EnableNativeAcceleration:    DefaultEnableNativeAcceleration,
		MinBatchSizeForAcceleration: DefaultMinBatchSizeForAcceleration,
		EnableFallback:              DefaultEnableFallback,
		NativeMemoryLimit:           DefaultNativeMemoryLimit,
		NativeWorkers:               DefaultNativeWorkers,
		FallbackWorkers:             DefaultFallbackWorkers,
		MetricsHistorySize:          DefaultMetricsHistorySize,
		LogLevel:                    DefaultLogLevel,
		VerifierProgramID:           instruction.DefaultVerifierProgramID.String(),
	}
}

// Validate rejects values no component can run with
func (c *Config) Validate() error {
	switch {
	case c.MaxProofsPerBatch < 1:
		return fmt.Errorf("%w: %s must be at least 1", ErrInvalidConfig, MaxProofsPerBatchKey)
	case c.MaxComputeUnits == 0:
		return fmt.Errorf("%w: %s must be positive", ErrInvalidConfig, MaxComputeUnitsKey)
	case c.MaxTransactionSize < 1:
		return fmt.Errorf("%w: %s must be positive", ErrInvalidConfig, MaxTransactionSizeKey)
	case c.MaxBoundaryCrossings < 0:
		return fmt.Errorf("%w: %s must not be negative", ErrInvalidConfig, MaxBoundaryCrossingsKey)
	case c.MaxRetries < 0:
		return fmt.Errorf("%w: %s must not be negative", ErrInvalidConfig, MaxRetriesKey)
	case c.ProofTimeout < 0:
		return fmt.Errorf("%w: %s must not be negative", ErrInvalidConfig, ProofTimeoutKey)
	case c.MinBatchSizeForAcceleration < 1:
		return fmt.Errorf("%w: %s must be at least 1", ErrInvalidConfig, MinBatchSizeForAccelerationKey)
	case c.NativeWorkers < 0:
		return fmt.Errorf("%w: %s must not be negative", ErrInvalidConfig, NativeWorkersKey)
	case c.FallbackWorkers < 1:
		return fmt.Errorf("%w: %s must be at least 1", ErrInvalidConfig, FallbackWorkersKey)
	case c.MetricsHistorySize < 1:
		return fmt.Errorf("%w: %s must be at least 1", ErrInvalidConfig, MetricsHistorySizeKey)
	}
	if _, ok := logLevels[c.LogLevel]; !ok {
		return fmt.Errorf("%w: unknown %s %q", ErrInvalidConfig, LogLevelKey, c.LogLevel)
	}
	if _, err := c.ProgramID(); err != nil {
		return fmt.Errorf("%w: %s: %v", ErrInvalidConfig, VerifierProgramIDKey, err)
	}
	return nil
}

// ProgramID parses the verifier program address
func (c *Config) ProgramID() (instruction.Address, error) {
	return instruction.ParseAddress(c.VerifierProgramID)
}

// Engine returns the execution engine's view of the configuration
func (c *Config) Engine() engine.Config {
	return engine.Config{
		EnableNativeAcceleration:    c.EnableNativeAcceleration,
		EnableFallback:              c.EnableFallback,
		MinBatchSizeForAcceleration: c.MinBatchSizeForAcceleration,
		FallbackWorkers:             c.FallbackWorkers,
		PerformanceInfoTTL:          performanceInfoTTL,
	}
}
