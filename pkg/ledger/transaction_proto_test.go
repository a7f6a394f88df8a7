// Copyright 2025 The Accumulate Authors
//
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file or at
// https://opensource.org/licenses/MIT.

package ledger_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"gitlab.com/accumulatenetwork/sigreq/pkg/errors"
	. "gitlab.com/accumulatenetwork/sigreq/pkg/ledger"
	"google.golang.org/protobuf/encoding/protowire"
)

func pbMessage(fields ...[]byte) []byte {
	var b []byte
	for _, f := range fields {
		b = append(b, f...)
	}
	return b
}

func pbBytes(num protowire.Number, v []byte) []byte {
	b := protowire.AppendTag(nil, num, protowire.BytesType)
	return protowire.AppendBytes(b, v)
}

func pbVarint(num protowire.Number, x uint64) []byte {
	b := protowire.AppendTag(nil, num, protowire.VarintType)
	return protowire.AppendVarint(b, x)
}

func pbEntity(num protowire.Number, id EntityID) []byte {
	return pbBytes(num, pbMessage(
		pbVarint(1, id.Shard),
		pbVarint(2, id.Realm),
		pbVarint(3, id.Num),
	))
}

func pbTimestamp(num protowire.Number, t time.Time) []byte {
	return pbBytes(num, pbMessage(
		pbVarint(1, uint64(t.Unix())),
		pbVarint(2, uint64(t.Nanosecond())),
	))
}

// pbSignedTransaction wraps a body in SignedTransaction and Transaction the
// way wallets submit it.
func pbSignedTransaction(payer EntityID, start time.Time, body ...[]byte) []byte {
	txBody := pbMessage(append([][]byte{
		pbBytes(1, pbMessage(pbTimestamp(1, start), pbEntity(2, payer))),
		pbEntity(2, NewEntityID(3)),
		pbVarint(3, 100_000_000), // transaction fee
		pbBytes(4, pbVarint(1, 180)),
		pbBytes(6, []byte("rent")),
	}, body...)...)

	sigMap := pbBytes(1, pbMessage(pbBytes(1, []byte{0xe0}), pbBytes(3, make([]byte, 64))))
	signed := pbMessage(pbBytes(1, txBody), pbBytes(2, sigMap))
	return pbBytes(5, signed)
}

func TestTransactionProto(t *testing.T) {
	start := time.Date(2025, 3, 1, 12, 0, 0, 500, time.UTC)
	payer := NewEntityID(1001)

	t.Run("Crypto transfer", func(t *testing.T) {
		b := pbSignedTransaction(payer, start,
			pbBytes(14, pbMessage(
				pbBytes(1, pbMessage(
					pbBytes(1, pbMessage(pbEntity(1, payer), pbVarint(2, protowire.EncodeZigZag(-10)))),
					pbBytes(1, pbMessage(pbEntity(1, NewEntityID(1002)), pbVarint(2, protowire.EncodeZigZag(10)))),
				)),
				pbBytes(2, pbMessage(
					pbEntity(1, NewEntityID(5000)),
					pbBytes(3, pbMessage(
						pbEntity(1, NewEntityID(1003)),
						pbEntity(2, payer),
						pbVarint(3, 7),
						pbVarint(4, 1),
					)),
				)),
			)))

		tx, err := UnmarshalTransaction(b)
		require.NoError(t, err)
		require.Equal(t, payer, tx.Payer())
		require.True(t, start.Equal(tx.ID.ValidStart))
		require.Equal(t, []EntityID{NewEntityID(3)}, tx.NodeAccountIDs)
		require.Equal(t, 180*time.Second, tx.ValidDuration)
		require.Equal(t, "rent", tx.Memo)
		require.Equal(t, &CryptoTransfer{
			Transfers: []AccountAmount{
				{AccountID: payer, Amount: -10},
				{AccountID: NewEntityID(1002), Amount: 10},
			},
			TokenTransfers: []TokenTransferList{{
				Token: NewEntityID(5000),
				NftTransfers: []NftTransfer{{
					SenderAccountID:   NewEntityID(1003),
					ReceiverAccountID: payer,
					SerialNumber:      7,
					IsApproval:        true,
				}},
			}},
		}, tx.Body)
	})

	t.Run("Crypto update", func(t *testing.T) {
		key := NewThresholdKey(1, Ed25519Key(keyA), Secp256k1Key(keyC))
		b := pbSignedTransaction(payer, start,
			pbBytes(15, pbMessage(
				pbEntity(2, NewEntityID(1002)),
				pbBytes(3, key.MarshalProto()),
				pbBytes(14, pbBytes(1, []byte("new memo"))),
				pbBytes(15, pbVarint(1, 1)),
			)))

		tx, err := UnmarshalTransaction(b)
		require.NoError(t, err)
		body, ok := tx.Body.(*CryptoUpdateAccount)
		require.True(t, ok)
		require.Equal(t, NewEntityID(1002), body.AccountIDToUpdate)
		require.Equal(t, key, body.Key)
		require.NotNil(t, body.ReceiverSigRequired)
		require.True(t, *body.ReceiverSigRequired)
		require.NotNil(t, body.Memo)
		require.Equal(t, "new memo", *body.Memo)
	})

	t.Run("Approve allowance", func(t *testing.T) {
		owner := NewEntityID(1004)
		b := pbSignedTransaction(payer, start,
			pbBytes(48, pbMessage(
				pbBytes(1, pbMessage(pbEntity(1, owner), pbEntity(2, NewEntityID(1005)), pbVarint(3, 50))),
				pbBytes(2, pbMessage(
					pbEntity(1, NewEntityID(5000)),
					pbEntity(3, NewEntityID(1005)),
					pbBytes(4, pbMessage(protowire.AppendVarint(protowire.AppendVarint(nil, 1), 2))),
				)),
			)))

		tx, err := UnmarshalTransaction(b)
		require.NoError(t, err)
		require.Equal(t, &CryptoApproveAllowance{
			CryptoAllowances: []CryptoAllowance{{Owner: &owner, Spender: NewEntityID(1005), Amount: 50}},
			NftAllowances:    []NftAllowance{{Token: NewEntityID(5000), Spender: NewEntityID(1005), SerialNumbers: []int64{1, 2}}},
		}, tx.Body)
	})

	t.Run("Freeze", func(t *testing.T) {
		b := pbSignedTransaction(NewEntityID(58), start,
			pbBytes(23, pbMessage(pbTimestamp(7, start), pbVarint(8, 1))))

		tx, err := UnmarshalTransaction(b)
		require.NoError(t, err)
		body, ok := tx.Body.(*Freeze)
		require.True(t, ok)
		require.Equal(t, "freeze_only", body.FreezeType)
		require.True(t, start.Equal(*body.StartTime))
	})

	t.Run("Node update", func(t *testing.T) {
		b := pbSignedTransaction(payer, start,
			pbBytes(55, pbMessage(pbVarint(1, 4), pbEntity(2, NewEntityID(1006)), pbBytes(8, Ed25519Key(keyB).MarshalProto()))))

		tx, err := UnmarshalTransaction(b)
		require.NoError(t, err)
		body, ok := tx.Body.(*NodeUpdate)
		require.True(t, ok)
		require.Equal(t, uint64(4), body.NodeID)
		require.Equal(t, NewEntityID(1006), *body.AccountID)
		require.Equal(t, Ed25519Key(keyB), body.AdminKey)
		require.Nil(t, body.Description)
	})

	t.Run("Deprecated body bytes", func(t *testing.T) {
		txBody := pbMessage(
			pbBytes(1, pbMessage(pbTimestamp(1, start), pbEntity(2, payer))),
			pbBytes(56, pbVarint(1, 9)),
		)

		tx, err := UnmarshalTransaction(pbBytes(4, txBody))
		require.NoError(t, err)
		require.Equal(t, &NodeDelete{NodeID: 9}, tx.Body)
	})
}

func TestTransactionProtoErrors(t *testing.T) {
	start := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

	// Contract call
	_, err := UnmarshalTransaction(pbSignedTransaction(NewEntityID(2), start, pbBytes(7, nil)))
	require.ErrorIs(t, err, errors.WrongType)

	// No body
	_, err = UnmarshalTransaction(pbSignedTransaction(NewEntityID(2), start))
	require.ErrorIs(t, err, errors.BadRequest)

	// No signed transaction
	_, err = UnmarshalTransaction(pbVarint(1, 1))
	require.ErrorIs(t, err, errors.EncodingError)

	// Truncated
	b := pbSignedTransaction(NewEntityID(2), start, pbBytes(56, pbVarint(1, 1)))
	_, err = UnmarshalTransaction(b[:len(b)-1])
	require.ErrorIs(t, err, errors.EncodingError)

	_, err = UnmarshalTransaction(nil)
	require.ErrorIs(t, err, errors.EncodingError)
}
