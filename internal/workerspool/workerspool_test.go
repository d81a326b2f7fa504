// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package workerspool

import (
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRunExecutesAllTasks(t *testing.T) {
	pool := New()
	var counter atomic.Int32
	tasks := make([]func(), 100)
	for i := range tasks {
		tasks[i] = func() { counter.Add(1) }
	}
	pool.Run(tasks)
	require.Equal(t, int32(100), counter.Load())
}

func TestRunInlineWhenDisabled(t *testing.T) {
	pool := New()
	pool.SetMaxParallelism(0)
	assert.False(t, pool.IsEnabled())

	ran := false
	pool.Run([]func(){func() { ran = true }, func() {}})
	require.True(t, ran)
}

func TestParallelismBound(t *testing.T) {
	pool := New()
	pool.SetMaxParallelism(2)

	var running, peak atomic.Int32
	tasks := make([]func(), 20)
	for i := range tasks {
		tasks[i] = func() {
			now := running.Add(1)
			for {
				old := peak.Load()
				if now <= old || peak.CompareAndSwap(old, now) {
					break
				}
			}
			running.Add(-1)
		}
	}
	pool.Run(tasks)
	assert.LessOrEqual(t, peak.Load(), int32(2))
}

func TestStartIfAvailable(t *testing.T) {
	pool := New()
	pool.SetMaxParallelism(1)

	release := make(chan struct{})
	done := make(chan struct{})
	ok := pool.StartIfAvailable(func() {
		<-release
		close(done)
	})
	require.True(t, ok)

	// The single worker is busy.
	assert.False(t, pool.StartIfAvailable(func() {}))

	close(release)
	<-done
}
