// Copyright 2025 The Accumulate Authors
//
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file or at
// https://opensource.org/licenses/MIT.

package resolver

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"gitlab.com/accumulatenetwork/sigreq/internal/keycache"
	"gitlab.com/accumulatenetwork/sigreq/internal/logging"
	"gitlab.com/accumulatenetwork/sigreq/pkg/errors"
	"gitlab.com/accumulatenetwork/sigreq/pkg/keytree"
	"gitlab.com/accumulatenetwork/sigreq/pkg/ledger"
)

var start = time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

var (
	payer    = ledger.NewEntityID(1001)
	receiver = ledger.NewEntityID(1002)
	other    = ledger.NewEntityID(1003)
)

type mockKeys struct{ mock.Mock }

func (m *mockKeys) Lookup(_ context.Context, key keycache.EntityKey, force bool) (*keycache.Record, error) {
	args := m.Called(key, force)
	r, _ := args.Get(0).(*keycache.Record)
	return r, args.Error(1)
}

// has registers the key of an entity.
func (m *mockKeys) has(key keycache.EntityKey, tree *keytree.KeyTree, receiverRequired ...bool) {
	r := keycache.NewPlaceholder(key, "", start)
	u := &keycache.Update{KeyTree: tree, CheckedAt: start}
	if len(receiverRequired) > 0 {
		u.ReceiverSignatureRequired = &receiverRequired[0]
	}
	u.Apply(r)
	m.On("Lookup", key, false).Return(r, nil)
}

func account(id ledger.EntityID) keycache.EntityKey {
	return keycache.AccountKey(ledger.Testnet, id)
}

func node(id uint64) keycache.EntityKey {
	return keycache.NodeKey(ledger.Testnet, id)
}

func newTestResolver(t *testing.T, keys *mockKeys) *Resolver {
	return New(Options{
		Keys:   keys,
		Logger: logging.NewTestLogger(t),
		Now:    func() time.Time { return start.Add(time.Minute) },
	})
}

func newTx(body ledger.TransactionBody) *ledger.Transaction {
	return &ledger.Transaction{
		ID:   ledger.TransactionID{AccountID: payer, ValidStart: start},
		Body: body,
	}
}

func transfer(amounts ...ledger.AccountAmount) *ledger.Transaction {
	return newTx(&ledger.CryptoTransfer{Transfers: amounts})
}

func resolve(t *testing.T, r *Resolver, tx *ledger.Transaction) *SignatureAudit {
	t.Helper()
	audit, err := r.Resolve(context.Background(), tx, ledger.Testnet)
	require.NoError(t, err)
	return audit
}

func requireRoot(t *testing.T, audit *SignatureAudit, children ...*keytree.KeyTree) {
	t.Helper()
	require.True(t, keytree.All(children...).Equal(audit.Root), "got %v", audit.Root)
}

var (
	keyA = keytree.Leaf("A")
	keyB = keytree.Leaf("B")
	keyC = keytree.Leaf("C")
	keyD = keytree.Leaf("D")
)

func TestReceiverFlag(t *testing.T) {
	tx := transfer(
		ledger.AccountAmount{AccountID: payer, Amount: -10},
		ledger.AccountAmount{AccountID: receiver, Amount: 10},
	)

	keys := new(mockKeys)
	keys.has(account(payer), keyA, false)
	keys.has(account(receiver), keyB, false)
	audit := resolve(t, newTestResolver(t, keys), tx)
	requireRoot(t, audit, keyA)
	require.Equal(t, []ledger.EntityID{payer, receiver}, audit.ConsultedAccounts)
	require.Equal(t, []ledger.EntityID{receiver}, audit.ReceiverAccounts)
	keys.AssertExpectations(t)

	// Once the receiver requires a signature its key is included
	keys = new(mockKeys)
	keys.has(account(payer), keyA, false)
	keys.has(account(receiver), keyB, true)
	audit = resolve(t, newTestResolver(t, keys), tx)
	requireRoot(t, audit, keyA, keyB)
}

func TestTransferRoles(t *testing.T) {
	keys := new(mockKeys)
	keys.has(account(payer), keyA, false)
	keys.has(account(receiver), keyB, true)
	keys.has(account(other), keyC, true)

	// The payer both pays and receives, so it counts once, as a signer.
	// An approved debit is authorized by the payer.
	tx := newTx(&ledger.CryptoTransfer{
		Transfers: []ledger.AccountAmount{
			{AccountID: other, Amount: -10, IsApproval: true},
			{AccountID: payer, Amount: 10},
		},
		TokenTransfers: []ledger.TokenTransferList{{
			Token: ledger.NewEntityID(2000),
			NftTransfers: []ledger.NftTransfer{
				{SenderAccountID: receiver, ReceiverAccountID: payer, SerialNumber: 1},
			},
		}},
	})
	audit := resolve(t, newTestResolver(t, keys), tx)
	requireRoot(t, audit, keyA, keyB)
	require.Empty(t, audit.ReceiverAccounts)
	require.Equal(t, []ledger.EntityID{payer, receiver}, audit.ConsultedAccounts)
}

func TestNullKey(t *testing.T) {
	keys := new(mockKeys)
	keys.has(account(payer), nil, false)

	audit := resolve(t, newTestResolver(t, keys), newTx(&ledger.Freeze{FreezeType: "freeze_only"}))
	require.Empty(t, audit.Root.Children)
	require.True(t, keytree.IsSatisfied(audit.Root, keytree.NewSet()))
	require.False(t, audit.Expired)
}

func TestUpdateAccount(t *testing.T) {
	keys := new(mockKeys)
	keys.has(account(payer), keyA, false)
	keys.has(account(other), keyB, false)

	audit := resolve(t, newTestResolver(t, keys), newTx(&ledger.CryptoUpdateAccount{
		AccountIDToUpdate: other,
		Key:               ledger.Ed25519Key("D"),
	}))
	requireRoot(t, audit, keyA, keyB, keyD)
	require.True(t, keytree.NewSet("D").Equal(audit.NewlyIntroducedKeys))
}

func TestUpdateSystemAccount(t *testing.T) {
	keys := new(mockKeys)
	keys.has(account(payer), keyA, false)

	// Neither the current nor the new key of a system account is needed
	audit := resolve(t, newTestResolver(t, keys), newTx(&ledger.CryptoUpdateAccount{
		AccountIDToUpdate: ledger.NewEntityID(50),
		Key:               ledger.Ed25519Key("D"),
	}))
	requireRoot(t, audit, keyA)
	require.Empty(t, audit.NewlyIntroducedKeys)
	keys.AssertExpectations(t)
}

func TestCreateAccount(t *testing.T) {
	keys := new(mockKeys)
	keys.has(account(payer), keyA, false)

	audit := resolve(t, newTestResolver(t, keys), newTx(&ledger.CryptoCreateAccount{
		Key: ledger.NewThresholdKey(1, ledger.Ed25519Key("C"), ledger.Ed25519Key("D")),
	}))
	requireRoot(t, audit, keyA, keytree.NewThreshold(1, keyC, keyD))
	require.True(t, keytree.NewSet("C", "D").Equal(audit.NewlyIntroducedKeys))
}

func TestMalformedNewKey(t *testing.T) {
	keys := new(mockKeys)
	keys.has(account(payer), keyA, false)

	_, err := newTestResolver(t, keys).Resolve(context.Background(), newTx(&ledger.CryptoCreateAccount{Key: &ledger.Key{}}), ledger.Testnet)
	require.ErrorIs(t, err, errors.BadRequest)
}

func TestDeleteAccount(t *testing.T) {
	keys := new(mockKeys)
	keys.has(account(payer), keyA, false)
	keys.has(account(other), keyB, false)
	keys.has(account(receiver), keyC, false)

	audit := resolve(t, newTestResolver(t, keys), newTx(&ledger.CryptoDelete{
		DeleteAccountID:   other,
		TransferAccountID: receiver,
	}))
	requireRoot(t, audit, keyA, keyB)
	require.Equal(t, []ledger.EntityID{receiver}, audit.ReceiverAccounts)
}

func TestAllowances(t *testing.T) {
	keys := new(mockKeys)
	keys.has(account(payer), keyA, false)
	keys.has(account(other), keyB, false)

	// An allowance without an owner is granted by the payer
	audit := resolve(t, newTestResolver(t, keys), newTx(&ledger.CryptoApproveAllowance{
		CryptoAllowances: []ledger.CryptoAllowance{{Spender: receiver, Amount: 10}},
		NftAllowances:    []ledger.NftAllowance{{Token: ledger.NewEntityID(2000), Owner: &other, Spender: receiver}},
	}))
	requireRoot(t, audit, keyA, keyB)

	audit = resolve(t, newTestResolver(t, keys), newTx(&ledger.CryptoDeleteAllowance{
		NftAllowances: []ledger.NftRemoveAllowance{{Token: ledger.NewEntityID(2000), Owner: &other}},
	}))
	requireRoot(t, audit, keyA, keyB)
}

func TestFiles(t *testing.T) {
	keys := new(mockKeys)
	keys.has(account(payer), keyA, false)
	r := newTestResolver(t, keys)

	audit := resolve(t, r, newTx(&ledger.FileUpdate{FileID: ledger.NewEntityID(150)}))
	requireRoot(t, audit, keyA)

	_, err := r.Resolve(context.Background(), newTx(&ledger.FileUpdate{FileID: ledger.NewEntityID(5000)}), ledger.Testnet)
	require.ErrorIs(t, err, errors.BadRequest)
	_, err = r.Resolve(context.Background(), newTx(&ledger.FileAppend{FileID: ledger.NewEntityID(5000)}), ledger.Testnet)
	require.ErrorIs(t, err, errors.BadRequest)
}

func TestNodes(t *testing.T) {
	keys := new(mockKeys)
	keys.has(account(payer), keyA, false)
	keys.has(account(other), keyB, false)
	keys.has(node(3), keyC)

	audit := resolve(t, newTestResolver(t, keys), newTx(&ledger.NodeUpdate{
		NodeID:    3,
		AccountID: &other,
		AdminKey:  ledger.Ed25519Key("D"),
	}))
	requireRoot(t, audit, keyA, keyB, keyC, keyD)
	require.Equal(t, []uint64{3}, audit.ConsultedNodes)
	require.True(t, keytree.NewSet("D").Equal(audit.NewlyIntroducedKeys))

	audit = resolve(t, newTestResolver(t, keys), newTx(&ledger.NodeDelete{NodeID: 3}))
	requireRoot(t, audit, keyA, keyC)

	audit = resolve(t, newTestResolver(t, keys), newTx(&ledger.NodeCreate{AccountID: other, AdminKey: ledger.Ed25519Key("D")}))
	requireRoot(t, audit, keyA, keyD)
}

func TestExpired(t *testing.T) {
	keys := new(mockKeys)
	r := New(Options{
		Keys: keys,
		Now:  func() time.Time { return start.Add(ledger.DefaultValidDuration) },
	})

	audit := resolve(t, r, transfer(ledger.AccountAmount{AccountID: payer, Amount: -10}))
	require.True(t, audit.Expired)
	require.Empty(t, audit.Root.Children)
	keys.AssertNotCalled(t, "Lookup", mock.Anything, mock.Anything)
}

func TestLookupFailure(t *testing.T) {
	keys := new(mockKeys)
	keys.has(account(payer), keyA, false)
	keys.On("Lookup", account(receiver), false).Return(nil, errors.LookupFailed.With("mirror unavailable"))

	_, err := newTestResolver(t, keys).Resolve(context.Background(), transfer(
		ledger.AccountAmount{AccountID: receiver, Amount: 10},
	), ledger.Testnet)
	require.ErrorIs(t, err, errors.LookupFailed)
}

func TestSanitizesFetchedKeys(t *testing.T) {
	keys := new(mockKeys)
	keys.has(account(payer), keytree.NewThreshold(0, keyA, keyB), false)

	audit := resolve(t, newTestResolver(t, keys), newTx(&ledger.Freeze{}))
	requireRoot(t, audit, keytree.All(keyA, keyB))
}

func TestResolveBytes(t *testing.T) {
	keys := new(mockKeys)
	keys.has(account(payer), keyA, false)
	keys.has(account(receiver), keyB, true)
	r := newTestResolver(t, keys)

	audit, err := r.ResolveBytes(context.Background(), []byte(`{
		"transactionId": {"accountId": "0.0.1001", "validStart": "2025-03-01T12:00:00Z"},
		"body": {"type": "cryptoTransfer", "transfers": [
			{"accountId": "0.0.1001", "amount": -5},
			{"accountId": "0.0.1002", "amount": 5}
		]}
	}`), ledger.Testnet)
	require.NoError(t, err)
	requireRoot(t, audit, keyA, keyB)

	_, err = r.ResolveBytes(context.Background(), []byte(`{`), ledger.Testnet)
	require.ErrorIs(t, err, errors.EncodingError)
}
