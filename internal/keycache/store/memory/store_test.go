// Copyright 2025 The Accumulate Authors
//
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file or at
// https://opensource.org/licenses/MIT.

package memory

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
	"gitlab.com/accumulatenetwork/sigreq/internal/keycache"
	"gitlab.com/accumulatenetwork/sigreq/internal/keycache/storetest"
	"gitlab.com/accumulatenetwork/sigreq/pkg/ledger"
)

func TestStore(t *testing.T) {
	storetest.TestStore(t, func(testing.TB) keycache.Store { return New() })
}

func TestExportImport(t *testing.T) {
	a := New()
	key := keycache.AccountKey(ledger.Testnet, ledger.NewEntityID(9))
	_, ok, err := a.Claim(context.Background(), key, "lease", storetest.Epoch, storetest.Epoch)
	require.NoError(t, err)
	require.True(t, ok)

	b := New()
	b.Import(a.Export())
	r, err := b.Get(context.Background(), key)
	require.NoError(t, err)
	require.Equal(t, "lease", r.RefreshLease)
}
