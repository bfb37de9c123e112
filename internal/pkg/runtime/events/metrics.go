// Copyright (c) 2026, runcore contributors. All rights reserved.
// This software is licensed under a 3-clause BSD license. Please consult the
// LICENSE.md file distributed with the sources of this project regarding your
// rights to use or distribute this software.

package events

import (
	"github.com/prometheus/client_golang/prometheus"
)

// MetricsBus wraps another Bus and additionally records counters for block
// and SSH lifecycle events, giving a host Prometheus scrape target real
// signal without the runtime needing to know anything about scraping.
type MetricsBus struct {
	inner Bus

	blockTotal   *prometheus.CounterVec
	sshFailTotal prometheus.Counter
	ptyOpenTotal prometheus.Counter
}

// NewMetricsBus registers its collectors against reg and returns a Bus that
// forwards every event to inner after observing it.
func NewMetricsBus(inner Bus, reg prometheus.Registerer) *MetricsBus {
	mb := &MetricsBus{
		inner: inner,
		blockTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "runcore",
			Subsystem: "blocks",
			Name:      "events_total",
			Help:      "Count of block lifecycle events by kind.",
		}, []string{"kind"}),
		sshFailTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "runcore",
			Subsystem: "ssh",
			Name:      "connection_failures_total",
			Help:      "Count of failed SSH pool connection attempts.",
		}),
		ptyOpenTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "runcore",
			Subsystem: "pty",
			Name:      "opened_total",
			Help:      "Count of PTYs opened by the PTY store.",
		}),
	}

	if reg != nil {
		reg.MustRegister(mb.blockTotal, mb.sshFailTotal, mb.ptyOpenTotal)
	}

	return mb
}

func (mb *MetricsBus) Emit(evt Event) {
	switch evt.Kind {
	case KindBlockStarted, KindBlockFinished, KindBlockFailed, KindBlockCancelled:
		mb.blockTotal.WithLabelValues(string(evt.Kind)).Inc()
	case KindSshConnectionFailed:
		mb.sshFailTotal.Inc()
	case KindPtyOpened:
		mb.ptyOpenTotal.Inc()
	}

	if mb.inner != nil {
		mb.inner.Emit(evt)
	}
}
