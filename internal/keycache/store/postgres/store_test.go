// Copyright 2025 The Accumulate Authors
//
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file or at
// https://opensource.org/licenses/MIT.

package postgres

import (
	"os"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
	"gitlab.com/accumulatenetwork/sigreq/internal/keycache"
	"gitlab.com/accumulatenetwork/sigreq/internal/keycache/storetest"
)

func TestStore(t *testing.T) {
	dsn := strings.TrimSpace(os.Getenv("POSTGRES_DSN_TEST"))
	if dsn == "" {
		t.Skip("POSTGRES_DSN_TEST not set")
	}

	storetest.TestStore(t, func(t testing.TB) keycache.Store {
		s, err := Open(dsn)
		require.NoError(t, err)
		return s
	})
}
