// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// NewConfig builds and validates the configuration held by v
func NewConfig(v *viper.Viper) (Config, error) {
	cfg, err := BuildConfig(v)
	if err != nil {
		return cfg, err
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, fmt.Errorf("failed to validate configuration: %w", err)
	}
	return cfg, nil
}

// AddFlags registers every configuration key on fs
func AddFlags(fs *pflag.FlagSet) {
	d := Default()
	fs.String(ConfigFileKey, "", "path to a JSON configuration file")
	fs.Int(MaxProofsPerBatchKey, d.MaxProofsPerBatch, "maximum proofs admitted into one batch")
	fs.Uint64(MaxComputeUnitsKey, d.MaxComputeUnits, "maximum estimated compute units per batch")
	fs.Int(MaxTransactionSizeKey, d.MaxTransactionSize, "maximum estimated transaction bytes per batch")
	fs.Int(MaxBoundaryCrossingsKey, d.MaxBoundaryCrossings, "maximum native boundary crossings per batch")
	fs.Int(MaxRetriesKey, d.MaxRetries, "retries before a failure becomes terminal")
	fs.Duration(ProofTimeoutKey, d.ProofTimeout, "advisory timeout for callers wrapping proof generation")
	fs.Bool(EnableNativeAccelerationKey, d.EnableNativeAcceleration, "offer eligible tasks to the native accelerator")
	fs.Int(MinBatchSizeForAccelerationKey, d.MinBatchSizeForAcceleration, "minimum range proofs worth one native call")
	fs.Bool(EnableFallbackKey, d.EnableFallback, "retry native failures in-process")
	fs.Uint64(NativeMemoryLimitKey, d.NativeMemoryLimit, "native accelerator memory limit in bytes")
	fs.Int(NativeWorkersKey, d.NativeWorkers, "native worker goroutines (0 uses GOMAXPROCS)")
	fs.Int(FallbackWorkersKey, d.FallbackWorkers, "concurrent in-process proofs")
	fs.Int(MetricsHistorySizeKey, d.MetricsHistorySize, "batches kept in the metrics history")
	fs.String(LogLevelKey, d.LogLevel, "log level (debug, info)")
	fs.String(VerifierProgramIDKey, d.VerifierProgramID, "base58 address of the proof verifier program")
}

// BuildViper binds fs and the environment. A config file is read when one
// is named by flag or environment.
func BuildViper(fs *pflag.FlagSet) (*viper.Viper, error) {
	v := viper.New()
	v.SetEnvPrefix(envPrefix)
	v.AutomaticEnv()
	// max-retries is read from CONFIDENTIAL_MAX_RETRIES
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	if err := v.BindPFlags(fs); err != nil {
		return nil, err
	}

	filename := v.GetString(ConfigFileKey)
	if filename == "" {
		filename = os.Getenv(ConfigFileEnvKey)
	}
	if filename == "" {
		return v, nil
	}
	v.SetConfigFile(filename)
	v.SetConfigType("json")
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", filename, err)
	}
	return v, nil
}

// SetDefaultConfigValues registers the defaults on v
func SetDefaultConfigValues(v *viper.Viper) {
	d := Default()
	v.SetDefault(MaxProofsPerBatchKey, d.MaxProofsPerBatch)
	v.SetDefault(MaxComputeUnitsKey, d.MaxComputeUnits)
	v.SetDefault(MaxTransactionSizeKey, d.MaxTransactionSize)
	v.SetDefault(MaxBoundaryCrossingsKey, d.MaxBoundaryCrossings)
	v.SetDefault(MaxRetriesKey, d.MaxRetries)
	v.SetDefault(ProofTimeoutKey, d.ProofTimeout)
	v.SetDefault(EnableNativeAccelerationKey, d.EnableNativeAcceleration)
	v.SetDefault(MinBatchSizeForAccelerationKey, d.MinBatchSizeForAcceleration)
	v.SetDefault(EnableFallbackKey, d.EnableFallback)
	v.SetDefault(NativeMemoryLimitKey, d.NativeMemoryLimit)
	v.SetDefault(NativeWorkersKey, d.NativeWorkers)
	v.SetDefault(FallbackWorkersKey, d.FallbackWorkers)
	v.SetDefault(MetricsHistorySizeKey, d.MetricsHistorySize)
	v.SetDefault(LogLevelKey, d.LogLevel)
	v.SetDefault(VerifierProgramIDKey, d.VerifierProgramID)
}

// BuildConfig decodes v after applying defaults. Precedence, highest first:
//  1. Flags
//  2. Environment
//  3. Config file
//  4. Defaults
func BuildConfig(v *viper.Viper) (Config, error) {
	SetDefaultConfigValues(v)

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return cfg, fmt.Errorf("failed to unmarshal viper config: %w", err)
	}
	return cfg, nil
}
