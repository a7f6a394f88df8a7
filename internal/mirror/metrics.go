// Copyright 2025 The Accumulate Authors
//
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file or at
// https://opensource.org/licenses/MIT.

package mirror

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	mRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "sigreq",
		Subsystem: "mirror",
		Name:      "requests",
		Help:      "Number of mirror requests by network and status",
	}, []string{"network", "status"})
	mRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "sigreq",
		Subsystem: "mirror",
		Name:      "request_duration",
		Help:      "Mirror request duration in seconds",
	}, []string{"network"})
)
