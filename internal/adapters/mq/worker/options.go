// Package worker contains the dispatcher that drives the aggregation engine
// from the ingest queue.
package worker

import (
	"github.com/okian/pitwall/pkg/logger"
)

// Option applies a configuration option to the Dispatcher.
type Option func(*Dispatcher)

// WithLaneSize sets the initial pending-buffer capacity of each per-session
// lane.
func WithLaneSize(size int) Option {
	return func(d *Dispatcher) {
		if size > 0 {
			d.laneSize = size
		}
	}
}

// WithLogger sets a custom logger for the dispatcher.
func WithLogger(log logger.Logger) Option {
	return func(d *Dispatcher) {
		if log != nil {
			d.logger = log
		}
	}
}
