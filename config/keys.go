// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package config

const (
	// Command line option keys
	ConfigFileKey = "config-file"

	// Environment variable keys
	ConfigFileEnvKey = "CONFIDENTIAL_CONFIG_FILE"
	envPrefix        = "CONFIDENTIAL"

	// Batch admission ceilings
	MaxProofsPerBatchKey    = "max-proofs-per-batch"
	MaxComputeUnitsKey      = "max-compute-units"
	MaxTransactionSizeKey   = "max-transaction-size"
	MaxBoundaryCrossingsKey = "max-boundary-crossings"

	// Retry and timing
	MaxRetriesKey   = "max-retries"
	ProofTimeoutKey = "proof-timeout"

	// Execution paths
	EnableNativeAccelerationKey    = "enable-native-acceleration"
	MinBatchSizeForAccelerationKey = "min-batch-size-for-acceleration"
	EnableFallbackKey              = "enable-fallback"
	NativeMemoryLimitKey           = "native-memory-limit"
	NativeWorkersKey               = "native-workers"
	FallbackWorkersKey             = "fallback-workers"

	// Reporting
	MetricsHistorySizeKey = "metrics-history-size"
	LogLevelKey           = "log-level"

	// Wire
	VerifierProgramIDKey = "verifier-program-id"
)
