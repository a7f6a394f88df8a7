// Copyright 2025 The Accumulate Authors
//
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file or at
// https://opensource.org/licenses/MIT.

package ledger

import (
	"bytes"
	"encoding/json"
	"fmt"
	"time"

	"gitlab.com/accumulatenetwork/sigreq/pkg/errors"
)

// DefaultValidDuration is used when a transaction does not specify one.
const DefaultValidDuration = 120 * time.Second

// TransactionID is the payer and valid start time of a transaction.
type TransactionID struct {
	AccountID  EntityID  `json:"accountId"`
	ValidStart time.Time `json:"validStart"`
}

func (id TransactionID) String() string {
	return fmt.Sprintf("%v@%d.%09d", id.AccountID, id.ValidStart.Unix(), id.ValidStart.Nanosecond())
}

// Transaction is a decoded ledger transaction.
type Transaction struct {
	ID             TransactionID
	NodeAccountIDs []EntityID
	ValidDuration  time.Duration
	Memo           string
	Body           TransactionBody
}

type jsonTransaction struct {
	ID             TransactionID   `json:"transactionId"`
	NodeAccountIDs []EntityID      `json:"nodeAccountIds,omitempty"`
	ValidDuration  uint64          `json:"validDuration,omitempty"`
	Memo           string          `json:"memo,omitempty"`
	Body           json.RawMessage `json:"body"`
}

// UnmarshalTransaction decodes and checks transaction bytes. A JSON object is
// decoded as JSON, anything else as the protobuf encoding of a signed
// transaction.
func UnmarshalTransaction(b []byte) (*Transaction, error) {
	if t := bytes.TrimLeft(b, " \t\r\n"); len(t) == 0 || t[0] != '{' {
		return UnmarshalTransactionProto(b)
	}

	tx := new(Transaction)
	err := json.Unmarshal(b, tx)
	if err != nil {
		return nil, errors.EncodingError.WithFormat("decode transaction: %w", err)
	}
	err = tx.Validate()
	if err != nil {
		return nil, err
	}
	return tx, nil
}

// Validate checks that the fields required to derive signers are present.
func (tx *Transaction) Validate() error {
	switch {
	case tx.ID.AccountID.IsZero():
		return errors.BadRequest.With("transaction has no payer")
	case tx.ID.ValidStart.IsZero():
		return errors.BadRequest.With("transaction has no valid start")
	case tx.Body == nil:
		return errors.BadRequest.With("transaction has no body")
	case tx.ValidDuration < 0:
		return errors.BadRequest.WithFormat("invalid valid duration %v", tx.ValidDuration)
	}
	return nil
}

// Payer returns the account that pays the transaction fee.
func (tx *Transaction) Payer() EntityID { return tx.ID.AccountID }

// ExpiresAt returns the end of the transaction's validity window.
func (tx *Transaction) ExpiresAt() time.Time {
	d := tx.ValidDuration
	if d == 0 {
		d = DefaultValidDuration
	}
	return tx.ID.ValidStart.Add(d)
}

// IsExpired returns true if the transaction can no longer be submitted.
func (tx *Transaction) IsExpired(now time.Time) bool {
	return !now.Before(tx.ExpiresAt())
}

func (tx *Transaction) MarshalJSON() ([]byte, error) {
	v := jsonTransaction{
		ID:             tx.ID,
		NodeAccountIDs: tx.NodeAccountIDs,
		ValidDuration:  uint64(tx.ValidDuration / time.Second),
		Memo:           tx.Memo,
	}
	if tx.Body != nil {
		b, err := MarshalBodyJSON(tx.Body)
		if err != nil {
			return nil, err
		}
		v.Body = b
	}
	return json.Marshal(v)
}

func (tx *Transaction) UnmarshalJSON(b []byte) error {
	var v jsonTransaction
	err := json.Unmarshal(b, &v)
	if err != nil {
		return err
	}
	tx.ID = v.ID
	tx.NodeAccountIDs = v.NodeAccountIDs
	tx.ValidDuration = time.Duration(v.ValidDuration) * time.Second
	tx.Memo = v.Memo
	tx.Body = nil
	if len(v.Body) == 0 || string(v.Body) == "null" {
		return nil
	}
	tx.Body, err = UnmarshalBodyJSON(v.Body)
	return err
}

// TransactionBody is the type-specific part of a transaction.
type TransactionBody interface {
	Type() TransactionType
}

// MarshalBodyJSON encodes the body with its type discriminator.
func MarshalBodyJSON(body TransactionBody) ([]byte, error) {
	b, err := json.Marshal(body)
	if err != nil {
		return nil, err
	}
	var fields map[string]json.RawMessage
	err = json.Unmarshal(b, &fields)
	if err != nil {
		return nil, err
	}
	fields["type"], err = json.Marshal(body.Type())
	if err != nil {
		return nil, err
	}
	return json.Marshal(fields)
}

// UnmarshalBodyJSON decodes a body using its type discriminator.
func UnmarshalBodyJSON(b []byte) (TransactionBody, error) {
	var typ struct {
		Type TransactionType `json:"type"`
	}
	err := json.Unmarshal(b, &typ)
	if err != nil {
		return nil, err
	}
	body, err := NewTransactionBody(typ.Type)
	if err != nil {
		return nil, err
	}
	err = json.Unmarshal(b, body)
	if err != nil {
		return nil, errors.EncodingError.WithFormat("decode %v body: %w", typ.Type, err)
	}
	return body, nil
}

// NewTransactionBody returns an empty body of the given type.
func NewTransactionBody(typ TransactionType) (TransactionBody, error) {
	switch typ {
	case TransactionTypeCryptoTransfer:
		return new(CryptoTransfer), nil
	case TransactionTypeCryptoCreateAccount:
		return new(CryptoCreateAccount), nil
	case TransactionTypeCryptoUpdateAccount:
		return new(CryptoUpdateAccount), nil
	case TransactionTypeCryptoDelete:
		return new(CryptoDelete), nil
	case TransactionTypeCryptoApproveAllowance:
		return new(CryptoApproveAllowance), nil
	case TransactionTypeCryptoDeleteAllowance:
		return new(CryptoDeleteAllowance), nil
	case TransactionTypeFileUpdate:
		return new(FileUpdate), nil
	case TransactionTypeFileAppend:
		return new(FileAppend), nil
	case TransactionTypeFreeze:
		return new(Freeze), nil
	case TransactionTypeNodeCreate:
		return new(NodeCreate), nil
	case TransactionTypeNodeUpdate:
		return new(NodeUpdate), nil
	case TransactionTypeNodeDelete:
		return new(NodeDelete), nil
	default:
		return nil, errors.WrongType.WithFormat("unsupported transaction type %v", typ)
	}
}
