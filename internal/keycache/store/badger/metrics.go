// Copyright 2023 The Accumulate Authors
//
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file or at
// https://opensource.org/licenses/MIT.

package badger

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Badger store metrics
var (
	mDbOpen = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "sigreq",
		Subsystem: "badger",
		Name:      "db_open",
		Help:      "Number of open databases",
	})
	mGcRun = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "sigreq",
		Subsystem: "badger",
		Name:      "gc_run",
		Help:      "Number of times garbage collection has run",
	})
	mGcDuration = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "sigreq",
		Subsystem: "badger",
		Name:      "gc_duration",
		Help:      "Garbage collection duration in seconds",
	})
	mCommitDuration = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "sigreq",
		Subsystem: "badger",
		Name:      "commit_duration",
		Help:      "Commit duration in seconds",
	})
	mConflicts = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "sigreq",
		Subsystem: "badger",
		Name:      "txn_conflicts",
		Help:      "Number of transactions retried after a conflict",
	})
)
