package power_test

import (
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/NamanBalaji/updater/internal/power"
)

type countingInhibitor struct {
	mu       sync.Mutex
	inhibits int
	releases int
	fail     bool
	calls    int
}

func (c *countingInhibitor) Inhibit(string) (func() error, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.calls++

	if c.fail {
		return nil, errors.New("no bus")
	}

	c.inhibits++

	return func() error {
		c.mu.Lock()
		defer c.mu.Unlock()
		c.releases++
		return nil
	}, nil
}

func (c *countingInhibitor) held() bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.inhibits > c.releases
}

type blockingInhibitor struct {
	unblock chan struct{}
}

func (b *blockingInhibitor) Inhibit(string) (func() error, error) {
	<-b.unblock
	return func() error { return nil }, nil
}

func TestLeaseRefCounting(t *testing.T) {
	inh := &countingInhibitor{}
	lease := power.NewLease(inh, "test")

	assert.False(t, lease.Held())

	lease.Acquire()
	lease.Sync()
	lease.Acquire()
	lease.Sync()
	assert.Equal(t, 2, lease.Count())
	assert.True(t, inh.held())
	assert.Equal(t, 1, inh.inhibits)

	lease.Release()
	lease.Sync()
	assert.True(t, lease.Held())
	assert.True(t, inh.held())

	lease.Release()
	lease.Sync()
	assert.False(t, lease.Held())
	assert.False(t, inh.held())

	lease.Release()
	lease.Sync()
	assert.Equal(t, 0, lease.Count())
	assert.Equal(t, 1, inh.releases)
}

func TestLeaseInhibitFailureStillCounts(t *testing.T) {
	inh := &countingInhibitor{fail: true}
	lease := power.NewLease(inh, "test")

	lease.Acquire()
	lease.Sync()
	assert.True(t, lease.Held())
	assert.False(t, lease.Inhibiting())

	lease.Release()
	lease.Sync()
	assert.False(t, lease.Held())
}

func TestLeaseRetriesFailedInhibit(t *testing.T) {
	inh := &countingInhibitor{fail: true}
	lease := power.NewLease(inh, "test")

	lease.Acquire()
	lease.Sync()
	assert.False(t, lease.Inhibiting())

	inh.mu.Lock()
	inh.fail = false
	inh.mu.Unlock()

	lease.Acquire()
	lease.Sync()
	assert.True(t, lease.Inhibiting())
	assert.True(t, inh.held())
	assert.Equal(t, 2, inh.calls)

	lease.Release()
	lease.Release()
	lease.Sync()
	assert.False(t, lease.Inhibiting())
	assert.False(t, inh.held())
}

func TestLeaseCountingDoesNotWaitForInhibitor(t *testing.T) {
	inh := &blockingInhibitor{unblock: make(chan struct{})}
	lease := power.NewLease(inh, "test")

	lease.Acquire()

	done := make(chan struct{})
	go func() {
		lease.Sync()
		close(done)
	}()

	// Counting proceeds while Sync waits on the inhibitor.
	lease.Acquire()
	lease.Release()
	assert.Equal(t, 1, lease.Count())

	close(inh.unblock)
	<-done
	assert.True(t, lease.Inhibiting())
}

func TestLeaseConcurrent(t *testing.T) {
	inh := &countingInhibitor{}
	lease := power.NewLease(inh, "test")

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			lease.Acquire()
			lease.Sync()
			lease.Release()
			lease.Sync()
		}()
	}
	wg.Wait()

	assert.False(t, lease.Held())
	assert.False(t, inh.held())
}

func TestNopLease(t *testing.T) {
	lease := power.NewLease(nil, "test")
	lease.Acquire()
	lease.Sync()
	assert.True(t, lease.Held())
	assert.True(t, lease.Inhibiting())
	lease.Release()
	lease.Sync()
	assert.False(t, lease.Held())

	_, ok := power.NewInhibitor(true, "updater").(power.Nop)
	assert.True(t, ok)
}
