// Copyright 2025 The Accumulate Authors
//
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file or at
// https://opensource.org/licenses/MIT.

package keycache

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	mLookups = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "sigreq",
		Subsystem: "keycache",
		Name:      "lookups",
		Help:      "Number of lookups by cache layer and result",
	}, []string{"layer", "result"})
	mFetches = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "sigreq",
		Subsystem: "keycache",
		Name:      "fetches",
		Help:      "Number of mirror fetches by outcome",
	}, []string{"outcome"})
	mLeases = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "sigreq",
		Subsystem: "keycache",
		Name:      "leases",
		Help:      "Number of refresh lease claims by outcome",
	}, []string{"outcome"})
	mFetchDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: "sigreq",
		Subsystem: "keycache",
		Name:      "fetch_duration",
		Help:      "Mirror fetch duration in seconds",
	})
)

// Lookup results
const (
	resultHit  = "hit"
	resultMiss = "miss"
	resultJoin = "join"
)

// Lease outcomes
const (
	leaseAcquired  = "acquired"
	leaseReclaimed = "reclaimed"
	leaseBusy      = "busy"
	leaseLost      = "lost"
	leaseReleased  = "released"
)
