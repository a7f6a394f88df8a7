// Copyright 2025 The Accumulate Authors
//
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file or at
// https://opensource.org/licenses/MIT.

package resolver

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var mAnomalies = promauto.NewCounter(prometheus.CounterOpts{
	Namespace: "sigreq",
	Subsystem: "resolver",
	Name:      "key_anomalies",
	Help:      "Number of malformed keys repaired",
})
