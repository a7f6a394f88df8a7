// Copyright 2025 The Accumulate Authors
//
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file or at
// https://opensource.org/licenses/MIT.

package ledger

import (
	"encoding/json"
	"fmt"
	"strings"
)

type TransactionType uint8

const (
	TransactionTypeUnknown TransactionType = iota
	TransactionTypeCryptoTransfer
	TransactionTypeCryptoCreateAccount
	TransactionTypeCryptoUpdateAccount
	TransactionTypeCryptoDelete
	TransactionTypeCryptoApproveAllowance
	TransactionTypeCryptoDeleteAllowance
	TransactionTypeFileUpdate
	TransactionTypeFileAppend
	TransactionTypeFreeze
	TransactionTypeNodeCreate
	TransactionTypeNodeUpdate
	TransactionTypeNodeDelete
)

var transactionTypeNames = map[TransactionType]string{
	TransactionTypeCryptoTransfer:         "cryptoTransfer",
	TransactionTypeCryptoCreateAccount:    "cryptoCreateAccount",
	TransactionTypeCryptoUpdateAccount:    "cryptoUpdateAccount",
	TransactionTypeCryptoDelete:           "cryptoDelete",
	TransactionTypeCryptoApproveAllowance: "cryptoApproveAllowance",
	TransactionTypeCryptoDeleteAllowance:  "cryptoDeleteAllowance",
	TransactionTypeFileUpdate:             "fileUpdate",
	TransactionTypeFileAppend:             "fileAppend",
	TransactionTypeFreeze:                 "freeze",
	TransactionTypeNodeCreate:             "nodeCreate",
	TransactionTypeNodeUpdate:             "nodeUpdate",
	TransactionTypeNodeDelete:             "nodeDelete",
}

// TransactionTypeByName returns the named type, ignoring case.
func TransactionTypeByName(s string) (TransactionType, bool) {
	for typ, name := range transactionTypeNames {
		if strings.EqualFold(name, s) {
			return typ, true
		}
	}
	return TransactionTypeUnknown, false
}

func (t TransactionType) String() string {
	if name, ok := transactionTypeNames[t]; ok {
		return name
	}
	return fmt.Sprintf("TransactionType:%d", t)
}

func (t TransactionType) MarshalJSON() ([]byte, error) {
	return json.Marshal(t.String())
}

func (t *TransactionType) UnmarshalJSON(b []byte) error {
	var s *string
	err := json.Unmarshal(b, &s)
	if err != nil {
		return err
	}
	if s == nil {
		*t = TransactionTypeUnknown
		return nil
	}

	var ok bool
	*t, ok = TransactionTypeByName(*s)
	if !ok {
		return fmt.Errorf("invalid transaction type: %q", *s)
	}
	return nil
}
