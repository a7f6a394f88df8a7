// Copyright 2025 The Accumulate Authors
//
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file or at
// https://opensource.org/licenses/MIT.

package ledger

import (
	"time"

	"gitlab.com/accumulatenetwork/sigreq/pkg/errors"
	"google.golang.org/protobuf/encoding/protowire"
)

// Field numbers of the ledger's Transaction and SignedTransaction messages.
const (
	fieldTransactionBodyBytes   protowire.Number = 4
	fieldTransactionSignedBytes protowire.Number = 5

	fieldSignedBodyBytes protowire.Number = 1
)

// Field numbers of TransactionBody. The body is a oneof; only the fields
// that affect signing are listed.
const (
	fieldBodyTransactionID protowire.Number = 1
	fieldBodyNodeAccountID protowire.Number = 2
	fieldBodyValidDuration protowire.Number = 4
	fieldBodyMemo          protowire.Number = 6

	fieldBodyCryptoCreateAccount    protowire.Number = 11
	fieldBodyCryptoDelete           protowire.Number = 12
	fieldBodyCryptoTransfer         protowire.Number = 14
	fieldBodyCryptoUpdateAccount    protowire.Number = 15
	fieldBodyFileAppend             protowire.Number = 16
	fieldBodyFileUpdate             protowire.Number = 19
	fieldBodyFreeze                 protowire.Number = 23
	fieldBodyCryptoApproveAllowance protowire.Number = 48
	fieldBodyCryptoDeleteAllowance  protowire.Number = 49
	fieldBodyNodeCreate             protowire.Number = 54
	fieldBodyNodeUpdate             protowire.Number = 55
	fieldBodyNodeDelete             protowire.Number = 56
)

var bodyFields = map[protowire.Number]TransactionType{
	fieldBodyCryptoCreateAccount:    TransactionTypeCryptoCreateAccount,
	fieldBodyCryptoDelete:           TransactionTypeCryptoDelete,
	fieldBodyCryptoTransfer:         TransactionTypeCryptoTransfer,
	fieldBodyCryptoUpdateAccount:    TransactionTypeCryptoUpdateAccount,
	fieldBodyFileAppend:             TransactionTypeFileAppend,
	fieldBodyFileUpdate:             TransactionTypeFileUpdate,
	fieldBodyFreeze:                 TransactionTypeFreeze,
	fieldBodyCryptoApproveAllowance: TransactionTypeCryptoApproveAllowance,
	fieldBodyCryptoDeleteAllowance:  TransactionTypeCryptoDeleteAllowance,
	fieldBodyNodeCreate:             TransactionTypeNodeCreate,
	fieldBodyNodeUpdate:             TransactionTypeNodeUpdate,
	fieldBodyNodeDelete:             TransactionTypeNodeDelete,
}

var freezeTypeNames = []string{
	"unknown_freeze_type",
	"freeze_only",
	"prepare_upgrade",
	"freeze_upgrade",
	"freeze_abort",
	"telemetry_upgrade",
}

// UnmarshalTransactionProto decodes the protobuf encoding of a signed
// Transaction. Signatures are ignored.
func UnmarshalTransactionProto(b []byte) (*Transaction, error) {
	var bodyBytes []byte
	err := walkProto(b, func(num protowire.Number, typ protowire.Type, v []byte, _ uint64) error {
		if typ != protowire.BytesType {
			return nil
		}
		switch num {
		case fieldTransactionBodyBytes:
			bodyBytes = v
		case fieldTransactionSignedBytes:
			return walkProto(v, func(num protowire.Number, typ protowire.Type, v []byte, _ uint64) error {
				if num == fieldSignedBodyBytes && typ == protowire.BytesType {
					bodyBytes = v
				}
				return nil
			})
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	if bodyBytes == nil {
		return nil, errors.EncodingError.With("decode transaction: no body bytes")
	}
	return UnmarshalTransactionBodyProto(bodyBytes)
}

// UnmarshalTransactionBodyProto decodes the protobuf encoding of a
// TransactionBody.
func UnmarshalTransactionBodyProto(b []byte) (*Transaction, error) {
	tx := new(Transaction)
	err := walkProto(b, func(num protowire.Number, typ protowire.Type, v []byte, _ uint64) error {
		if typ != protowire.BytesType {
			return nil
		}

		var err error
		switch num {
		case fieldBodyTransactionID:
			err = tx.ID.unmarshalProto(v)
		case fieldBodyNodeAccountID:
			var id EntityID
			id, err = unmarshalEntityIDProto(v)
			tx.NodeAccountIDs = append(tx.NodeAccountIDs, id)
		case fieldBodyValidDuration:
			tx.ValidDuration, err = unmarshalDurationProto(v)
		case fieldBodyMemo:
			tx.Memo = string(v)
		default:
			bodyType, ok := bodyFields[num]
			if !ok {
				return errors.WrongType.WithFormat("unsupported transaction body field %d", num)
			}
			tx.Body, err = unmarshalBodyProto(bodyType, v)
		}
		return err
	})
	if err != nil {
		return nil, err
	}

	err = tx.Validate()
	if err != nil {
		return nil, err
	}
	return tx, nil
}

func (id *TransactionID) unmarshalProto(b []byte) error {
	return walkProto(b, func(num protowire.Number, typ protowire.Type, v []byte, _ uint64) error {
		if typ != protowire.BytesType {
			return nil
		}
		var err error
		switch num {
		case 1:
			id.ValidStart, err = unmarshalTimestampProto(v)
		case 2:
			id.AccountID, err = unmarshalEntityIDProto(v)
		}
		return err
	})
}

func unmarshalBodyProto(typ TransactionType, b []byte) (TransactionBody, error) {
	body, err := NewTransactionBody(typ)
	if err != nil {
		return nil, err
	}

	var fn func(protowire.Number, protowire.Type, []byte, uint64) error
	switch body := body.(type) {
	case *CryptoTransfer:
		fn = body.unmarshalProtoField
	case *CryptoCreateAccount:
		fn = body.unmarshalProtoField
	case *CryptoUpdateAccount:
		fn = body.unmarshalProtoField
	case *CryptoDelete:
		fn = body.unmarshalProtoField
	case *CryptoApproveAllowance:
		fn = body.unmarshalProtoField
	case *CryptoDeleteAllowance:
		fn = body.unmarshalProtoField
	case *FileUpdate:
		fn = body.unmarshalProtoField
	case *FileAppend:
		fn = body.unmarshalProtoField
	case *Freeze:
		fn = body.unmarshalProtoField
	case *NodeCreate:
		fn = body.unmarshalProtoField
	case *NodeUpdate:
		fn = body.unmarshalProtoField
	case *NodeDelete:
		fn = body.unmarshalProtoField
	}

	err = walkProto(b, fn)
	if err != nil {
		return nil, errors.EncodingError.WithFormat("decode %v body: %w", typ, err)
	}
	return body, nil
}

func (t *CryptoTransfer) unmarshalProtoField(num protowire.Number, typ protowire.Type, v []byte, _ uint64) error {
	if typ != protowire.BytesType {
		return nil
	}
	switch num {
	case 1: // TransferList
		return walkProto(v, func(num protowire.Number, typ protowire.Type, v []byte, _ uint64) error {
			if num != 1 || typ != protowire.BytesType {
				return nil
			}
			aa, err := unmarshalAccountAmountProto(v)
			t.Transfers = append(t.Transfers, aa)
			return err
		})
	case 2:
		l, err := unmarshalTokenTransferListProto(v)
		t.TokenTransfers = append(t.TokenTransfers, l)
		return err
	}
	return nil
}

func unmarshalAccountAmountProto(b []byte) (AccountAmount, error) {
	var aa AccountAmount
	err := walkProto(b, func(num protowire.Number, typ protowire.Type, v []byte, x uint64) error {
		var err error
		switch {
		case num == 1 && typ == protowire.BytesType:
			aa.AccountID, err = unmarshalEntityIDProto(v)
		case num == 2 && typ == protowire.VarintType:
			// sint64
			aa.Amount = protowire.DecodeZigZag(x)
		case num == 3 && typ == protowire.VarintType:
			aa.IsApproval = x != 0
		}
		return err
	})
	return aa, err
}

func unmarshalTokenTransferListProto(b []byte) (TokenTransferList, error) {
	var l TokenTransferList
	err := walkProto(b, func(num protowire.Number, typ protowire.Type, v []byte, _ uint64) error {
		if typ != protowire.BytesType {
			return nil
		}
		var err error
		switch num {
		case 1:
			l.Token, err = unmarshalEntityIDProto(v)
		case 2:
			var aa AccountAmount
			aa, err = unmarshalAccountAmountProto(v)
			l.Transfers = append(l.Transfers, aa)
		case 3:
			var nft NftTransfer
			nft, err = unmarshalNftTransferProto(v)
			l.NftTransfers = append(l.NftTransfers, nft)
		}
		return err
	})
	return l, err
}

func unmarshalNftTransferProto(b []byte) (NftTransfer, error) {
	var t NftTransfer
	err := walkProto(b, func(num protowire.Number, typ protowire.Type, v []byte, x uint64) error {
		var err error
		switch {
		case num == 1 && typ == protowire.BytesType:
			t.SenderAccountID, err = unmarshalEntityIDProto(v)
		case num == 2 && typ == protowire.BytesType:
			t.ReceiverAccountID, err = unmarshalEntityIDProto(v)
		case num == 3 && typ == protowire.VarintType:
			t.SerialNumber = int64(x)
		case num == 4 && typ == protowire.VarintType:
			t.IsApproval = x != 0
		}
		return err
	})
	return t, err
}

func (c *CryptoCreateAccount) unmarshalProtoField(num protowire.Number, typ protowire.Type, v []byte, x uint64) error {
	var err error
	switch {
	case num == 1 && typ == protowire.BytesType:
		c.Key, err = UnmarshalKeyProto(v)
	case num == 2 && typ == protowire.VarintType:
		c.InitialBalance = x
	case num == 8 && typ == protowire.VarintType:
		c.ReceiverSigRequired = x != 0
	case num == 13 && typ == protowire.BytesType:
		c.Memo = string(v)
	}
	return err
}

func (u *CryptoUpdateAccount) unmarshalProtoField(num protowire.Number, typ protowire.Type, v []byte, x uint64) error {
	var err error
	switch {
	case num == 2 && typ == protowire.BytesType:
		u.AccountIDToUpdate, err = unmarshalEntityIDProto(v)
	case num == 3 && typ == protowire.BytesType:
		u.Key, err = UnmarshalKeyProto(v)
	case num == 10 && typ == protowire.VarintType:
		required := x != 0
		u.ReceiverSigRequired = &required
	case num == 15 && typ == protowire.BytesType:
		var required bool
		required, err = unmarshalBoolValueProto(v)
		u.ReceiverSigRequired = &required
	case num == 14 && typ == protowire.BytesType:
		var memo string
		memo, err = unmarshalStringValueProto(v)
		u.Memo = &memo
	}
	return err
}

func (d *CryptoDelete) unmarshalProtoField(num protowire.Number, typ protowire.Type, v []byte, _ uint64) error {
	if typ != protowire.BytesType {
		return nil
	}
	var err error
	switch num {
	case 1:
		d.TransferAccountID, err = unmarshalEntityIDProto(v)
	case 2:
		d.DeleteAccountID, err = unmarshalEntityIDProto(v)
	}
	return err
}

func (a *CryptoApproveAllowance) unmarshalProtoField(num protowire.Number, typ protowire.Type, v []byte, _ uint64) error {
	if typ != protowire.BytesType {
		return nil
	}
	switch num {
	case 1:
		var c CryptoAllowance
		err := walkProto(v, func(num protowire.Number, typ protowire.Type, v []byte, x uint64) error {
			var err error
			switch {
			case num == 1 && typ == protowire.BytesType:
				c.Owner, err = unmarshalOptionalEntityIDProto(v)
			case num == 2 && typ == protowire.BytesType:
				c.Spender, err = unmarshalEntityIDProto(v)
			case num == 3 && typ == protowire.VarintType:
				c.Amount = int64(x)
			}
			return err
		})
		a.CryptoAllowances = append(a.CryptoAllowances, c)
		return err

	case 2:
		var n NftAllowance
		err := walkProto(v, func(num protowire.Number, typ protowire.Type, v []byte, x uint64) error {
			var err error
			switch {
			case num == 1 && typ == protowire.BytesType:
				n.Token, err = unmarshalEntityIDProto(v)
			case num == 2 && typ == protowire.BytesType:
				n.Owner, err = unmarshalOptionalEntityIDProto(v)
			case num == 3 && typ == protowire.BytesType:
				n.Spender, err = unmarshalEntityIDProto(v)
			case num == 4:
				n.SerialNumbers, err = appendInt64sProto(n.SerialNumbers, typ, v, x)
			case num == 5 && typ == protowire.BytesType:
				var all bool
				all, err = unmarshalBoolValueProto(v)
				n.ApprovedForAll = &all
			}
			return err
		})
		a.NftAllowances = append(a.NftAllowances, n)
		return err

	case 3:
		var t TokenAllowance
		err := walkProto(v, func(num protowire.Number, typ protowire.Type, v []byte, x uint64) error {
			var err error
			switch {
			case num == 1 && typ == protowire.BytesType:
				t.Token, err = unmarshalEntityIDProto(v)
			case num == 2 && typ == protowire.BytesType:
				t.Owner, err = unmarshalOptionalEntityIDProto(v)
			case num == 3 && typ == protowire.BytesType:
				t.Spender, err = unmarshalEntityIDProto(v)
			case num == 4 && typ == protowire.VarintType:
				t.Amount = int64(x)
			}
			return err
		})
		a.TokenAllowances = append(a.TokenAllowances, t)
		return err
	}
	return nil
}

func (d *CryptoDeleteAllowance) unmarshalProtoField(num protowire.Number, typ protowire.Type, v []byte, _ uint64) error {
	if num != 2 || typ != protowire.BytesType {
		return nil
	}
	var n NftRemoveAllowance
	err := walkProto(v, func(num protowire.Number, typ protowire.Type, v []byte, x uint64) error {
		var err error
		switch {
		case num == 1 && typ == protowire.BytesType:
			n.Token, err = unmarshalEntityIDProto(v)
		case num == 2 && typ == protowire.BytesType:
			n.Owner, err = unmarshalOptionalEntityIDProto(v)
		case num == 3:
			n.SerialNumbers, err = appendInt64sProto(n.SerialNumbers, typ, v, x)
		}
		return err
	})
	d.NftAllowances = append(d.NftAllowances, n)
	return err
}

func (f *FileUpdate) unmarshalProtoField(num protowire.Number, typ protowire.Type, v []byte, _ uint64) error {
	if typ != protowire.BytesType {
		return nil
	}
	var err error
	switch num {
	case 1:
		f.FileID, err = unmarshalEntityIDProto(v)
	case 2:
		var t time.Time
		t, err = unmarshalTimestampProto(v)
		f.ExpirationTime = &t
	case 3:
		f.Keys, err = unmarshalKeyListProto(v, 0)
	case 4:
		f.Contents = v
	}
	return err
}

func (f *FileAppend) unmarshalProtoField(num protowire.Number, typ protowire.Type, v []byte, _ uint64) error {
	if typ != protowire.BytesType {
		return nil
	}
	var err error
	switch num {
	case 2:
		f.FileID, err = unmarshalEntityIDProto(v)
	case 4:
		f.Contents = v
	}
	return err
}

func (f *Freeze) unmarshalProtoField(num protowire.Number, typ protowire.Type, v []byte, x uint64) error {
	var err error
	switch {
	case num == 5 && typ == protowire.BytesType:
		f.UpdateFile, err = unmarshalOptionalEntityIDProto(v)
	case num == 6 && typ == protowire.BytesType:
		f.FileHash = v
	case num == 7 && typ == protowire.BytesType:
		var t time.Time
		t, err = unmarshalTimestampProto(v)
		f.StartTime = &t
	case num == 8 && typ == protowire.VarintType:
		if x >= uint64(len(freezeTypeNames)) {
			return errors.EncodingError.WithFormat("unknown freeze type %d", x)
		}
		f.FreezeType = freezeTypeNames[x]
	}
	return err
}

func (n *NodeCreate) unmarshalProtoField(num protowire.Number, typ protowire.Type, v []byte, _ uint64) error {
	if typ != protowire.BytesType {
		return nil
	}
	var err error
	switch num {
	case 1:
		n.AccountID, err = unmarshalEntityIDProto(v)
	case 2:
		n.Description = string(v)
	case 7:
		n.AdminKey, err = UnmarshalKeyProto(v)
	}
	return err
}

func (n *NodeUpdate) unmarshalProtoField(num protowire.Number, typ protowire.Type, v []byte, x uint64) error {
	var err error
	switch {
	case num == 1 && typ == protowire.VarintType:
		n.NodeID = x
	case num == 2 && typ == protowire.BytesType:
		n.AccountID, err = unmarshalOptionalEntityIDProto(v)
	case num == 3 && typ == protowire.BytesType:
		var s string
		s, err = unmarshalStringValueProto(v)
		n.Description = &s
	case num == 8 && typ == protowire.BytesType:
		n.AdminKey, err = UnmarshalKeyProto(v)
	}
	return err
}

func (n *NodeDelete) unmarshalProtoField(num protowire.Number, typ protowire.Type, _ []byte, x uint64) error {
	if num == 1 && typ == protowire.VarintType {
		n.NodeID = x
	}
	return nil
}

// unmarshalEntityIDProto decodes an AccountID, FileID, or TokenID. They
// share the shard, realm, num layout.
func unmarshalEntityIDProto(b []byte) (EntityID, error) {
	id, err := unmarshalContractIDProto(b)
	if err != nil {
		return EntityID{}, err
	}
	return *id, nil
}

func unmarshalOptionalEntityIDProto(b []byte) (*EntityID, error) {
	return unmarshalContractIDProto(b)
}

func unmarshalTimestampProto(b []byte) (time.Time, error) {
	var sec, nsec int64
	err := walkProto(b, func(num protowire.Number, typ protowire.Type, _ []byte, x uint64) error {
		if typ != protowire.VarintType {
			return nil
		}
		switch num {
		case 1:
			sec = int64(x)
		case 2:
			nsec = int64(int32(x))
		}
		return nil
	})
	if err != nil {
		return time.Time{}, err
	}
	return time.Unix(sec, nsec).UTC(), nil
}

func unmarshalDurationProto(b []byte) (time.Duration, error) {
	var sec int64
	err := walkProto(b, func(num protowire.Number, typ protowire.Type, _ []byte, x uint64) error {
		if num == 1 && typ == protowire.VarintType {
			sec = int64(x)
		}
		return nil
	})
	return time.Duration(sec) * time.Second, err
}

func unmarshalBoolValueProto(b []byte) (bool, error) {
	var value bool
	err := walkProto(b, func(num protowire.Number, typ protowire.Type, _ []byte, x uint64) error {
		if num == 1 && typ == protowire.VarintType {
			value = x != 0
		}
		return nil
	})
	return value, err
}

func unmarshalStringValueProto(b []byte) (string, error) {
	var value string
	err := walkProto(b, func(num protowire.Number, typ protowire.Type, v []byte, _ uint64) error {
		if num == 1 && typ == protowire.BytesType {
			value = string(v)
		}
		return nil
	})
	return value, err
}

// appendInt64sProto appends a repeated int64 field, packed or not.
func appendInt64sProto(s []int64, typ protowire.Type, v []byte, x uint64) ([]int64, error) {
	if typ == protowire.VarintType {
		return append(s, int64(x)), nil
	}
	for len(v) > 0 {
		x, n := protowire.ConsumeVarint(v)
		if n < 0 {
			return nil, errors.EncodingError.WithFormat("decode packed int64: %w", protowire.ParseError(n))
		}
		s = append(s, int64(x))
		v = v[n:]
	}
	return s, nil
}
