// Copyright 2025 The Accumulate Authors
//
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file or at
// https://opensource.org/licenses/MIT.

package signers_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"gitlab.com/accumulatenetwork/sigreq/internal/resolver"
	. "gitlab.com/accumulatenetwork/sigreq/internal/signers"
	"gitlab.com/accumulatenetwork/sigreq/pkg/keytree"
	"gitlab.com/accumulatenetwork/sigreq/pkg/ledger"
)

func audit(root *keytree.KeyTree) *resolver.SignatureAudit {
	return &resolver.SignatureAudit{Root: keytree.Union(root)}
}

func signed(keys ...keytree.PublicKey) []RecordedSignature {
	var r []RecordedSignature
	for _, k := range keys {
		r = append(r, RecordedSignature{PublicKey: k})
	}
	return r
}

func TestTwoOfThree(t *testing.T) {
	a := audit(keytree.NewThreshold(2, keytree.Leaf("A"), keytree.Leaf("B"), keytree.Leaf("C")))

	// Either of the user's keys would help
	owed := KeysStillOwed(a, keytree.NewSet("B", "C"), signed("A"))
	require.True(t, keytree.NewSet("B", "C").Equal(owed))
	require.False(t, IsComplete(a, signed("A")))

	require.True(t, IsComplete(a, signed("A", "B")))
	owed = KeysStillOwed(a, keytree.NewSet("B", "C"), signed("A", "B"))
	require.True(t, keytree.NewSet("C").Equal(owed))
}

func TestOwedIsEmptyOnceEveryKeySigned(t *testing.T) {
	a := audit(keytree.All(
		keytree.Leaf("A"),
		keytree.NewThreshold(1, keytree.Leaf("B"), keytree.Leaf("C")),
	))
	owed := KeysStillOwed(a, keytree.NewSet("A", "B", "C", "Z"), signed("A", "B", "C"))
	require.Zero(t, owed.Len())
}

func TestRevokedSignatures(t *testing.T) {
	a := audit(keytree.Leaf("A"))
	recorded := []RecordedSignature{{PublicKey: "A", Revoked: true}}

	require.False(t, IsComplete(a, recorded))
	require.True(t, keytree.NewSet("A").Equal(KeysStillOwed(a, keytree.NewSet("A"), recorded)))
}

func TestUnrelatedKeys(t *testing.T) {
	a := audit(keytree.Leaf("A"))
	require.Zero(t, KeysStillOwed(a, keytree.NewSet("B"), nil).Len())
}

func TestExpired(t *testing.T) {
	a := audit(keytree.Leaf("A"))
	a.Expired = true
	require.Zero(t, KeysStillOwed(a, keytree.NewSet("A"), nil).Len())
	require.False(t, IsComplete(a, signed("A")))
}

func TestCalculator(t *testing.T) {
	id := ledger.TransactionID{AccountID: ledger.NewEntityID(1001), ValidStart: time.Unix(1740830400, 0)}
	src := StaticSource{id: signed("A")}
	c := NewCalculator(src)
	a := audit(keytree.NewThreshold(2, keytree.Leaf("A"), keytree.Leaf("B"), keytree.Leaf("C")))

	owed, err := c.KeysStillOwed(context.Background(), id, a, keytree.NewSet("A", "B"))
	require.NoError(t, err)
	require.True(t, keytree.NewSet("B").Equal(owed))

	ok, err := c.IsComplete(context.Background(), id, a)
	require.NoError(t, err)
	require.False(t, ok)
}
