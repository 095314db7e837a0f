// Package cleanup runs compensating steps in reverse registration order when
// a multi-step operation fails part way.
package cleanup

import (
	"context"
	"fmt"
	"sync"

	"github.com/hashicorp/go-multierror"
	"github.com/lxt/lxt/pkg/logging"
)

type CleanupFunc func(context.Context) error

type Cleaner struct {
	mu       sync.Mutex
	cleanups []namedCleanup
	logger   Logger
}

type namedCleanup struct {
	name string
	fn   CleanupFunc
}

type Logger interface {
	Error(msg string, args ...any)
	Warn(msg string, args ...any)
}

func New(logger Logger) *Cleaner {
	if logger == nil {
		logger = logging.Default()
	}
	return &Cleaner{
		cleanups: make([]namedCleanup, 0),
		logger:   logger,
	}
}

func (c *Cleaner) Add(name string, fn CleanupFunc) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.cleanups = append(c.cleanups, namedCleanup{name: name, fn: fn})
}

// Release forgets every registered cleanup. Call it once the operation has
// succeeded.
func (c *Cleaner) Release() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.cleanups = c.cleanups[:0]
}

// Cleanup runs the registered cleanups newest first. Every cleanup runs even
// if an earlier one failed.
func (c *Cleaner) Cleanup(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	var result *multierror.Error
	for i := len(c.cleanups) - 1; i >= 0; i-- {
		cleanup := c.cleanups[i]
		if err := cleanup.fn(ctx); err != nil {
			c.logger.Error("cleanup failed",
				logging.WithField("cleanup", cleanup.name),
				logging.WithError(err))
			result = multierror.Append(result, fmt.Errorf("%s: %w", cleanup.name, err))
		}
	}

	c.cleanups = c.cleanups[:0]
	return result.ErrorOrNil()
}

// CleanupOnError runs the cleanups when *errPtr is set. Meant for defer.
func (c *Cleaner) CleanupOnError(ctx context.Context, errPtr *error) {
	if *errPtr != nil {
		if cleanupErr := c.Cleanup(ctx); cleanupErr != nil {
			c.logger.Warn("cleanup failed during error recovery",
				logging.WithError(cleanupErr))
		}
	}
}
