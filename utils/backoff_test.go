// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package utils

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/luxfi/log"
	"github.com/stretchr/testify/require"
)

var errBusy = errors.New("busy")

func TestWithRetriesTimeout(t *testing.T) {
	logger := log.NewTestLogger(log.InfoLevel)

	t.Run("NotEnoughTime", func(t *testing.T) {
		retryable := newMockRetryableFn(1000)
		err := WithRetriesTimeout(context.Background(), logger, func() error {
			_, err := retryable.Run()
			return err
		}, 50*time.Millisecond)
		require.ErrorIs(t, err, errBusy)
	})
	t.Run("EnoughTime", func(t *testing.T) {
		retryable := newMockRetryableFn(2)
		var res bool
		err := WithRetriesTimeout(context.Background(), logger, func() (err error) {
			res, err = retryable.Run()
			return err
		}, 2*time.Second)
		require.NoError(t, err)
		require.True(t, res)
	})
	t.Run("Permanent", func(t *testing.T) {
		calls := 0
		errStop := errors.New("stop")
		err := WithRetriesTimeout(context.Background(), logger, func() error {
			calls++
			return backoff.Permanent(errStop)
		}, time.Second)
		require.ErrorIs(t, err, errStop)
		require.Equal(t, 1, calls)
	})
	t.Run("Cancelled", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		retryable := newMockRetryableFn(1000)
		err := WithRetriesTimeout(ctx, logger, func() error {
			_, err := retryable.Run()
			return err
		}, time.Second)
		require.Error(t, err)
		require.Less(t, retryable.counter, uint64(1000))
	})
}

type mockRetryableFn struct {
	counter uint64
	trigger uint64
}

func newMockRetryableFn(trigger uint64) *mockRetryableFn {
	return &mockRetryableFn{
		counter: 0,
		trigger: trigger,
	}
}

func (m *mockRetryableFn) Run() (bool, error) {
	if m.counter >= m.trigger {
		return true, nil
	}
	m.counter++
	return false, errBusy
}
