// Copyright 2025 The Accumulate Authors
//
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file or at
// https://opensource.org/licenses/MIT.

// Package sigreq resolves the keys that must sign a ledger transaction. The
// version variables are set at link time.
package sigreq

const unknownVersion = "version unknown"

var (
	Version = unknownVersion
	Commit  = "unknown"
)

func IsVersionKnown() bool {
	return Version != unknownVersion
}
