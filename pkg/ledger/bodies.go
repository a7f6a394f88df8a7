// Copyright 2025 The Accumulate Authors
//
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file or at
// https://opensource.org/licenses/MIT.

package ledger

import "time"

// AccountAmount is a signed balance change. Negative amounts debit the
// account.
type AccountAmount struct {
	AccountID  EntityID `json:"accountId"`
	Amount     int64    `json:"amount"`
	IsApproval bool     `json:"isApproval,omitempty"`
}

type NftTransfer struct {
	SenderAccountID   EntityID `json:"senderAccountId"`
	ReceiverAccountID EntityID `json:"receiverAccountId"`
	SerialNumber      int64    `json:"serialNumber"`
	IsApproval        bool     `json:"isApproval,omitempty"`
}

type TokenTransferList struct {
	Token        EntityID        `json:"token"`
	Transfers    []AccountAmount `json:"transfers,omitempty"`
	NftTransfers []NftTransfer   `json:"nftTransfers,omitempty"`
}

type CryptoTransfer struct {
	Transfers      []AccountAmount     `json:"transfers,omitempty"`
	TokenTransfers []TokenTransferList `json:"tokenTransfers,omitempty"`
}

type CryptoCreateAccount struct {
	Key                 *Key   `json:"key,omitempty"`
	InitialBalance      uint64 `json:"initialBalance,omitempty"`
	ReceiverSigRequired bool   `json:"receiverSigRequired,omitempty"`
	Memo                string `json:"memo,omitempty"`
}

type CryptoUpdateAccount struct {
	AccountIDToUpdate   EntityID `json:"accountIdToUpdate"`
	Key                 *Key     `json:"key,omitempty"`
	ReceiverSigRequired *bool    `json:"receiverSigRequired,omitempty"`
	Memo                *string  `json:"memo,omitempty"`
}

type CryptoDelete struct {
	DeleteAccountID   EntityID `json:"deleteAccountId"`
	TransferAccountID EntityID `json:"transferAccountId"`
}

// CryptoAllowance lets the spender move the owner's balance. A missing owner
// is the payer.
type CryptoAllowance struct {
	Owner   *EntityID `json:"owner,omitempty"`
	Spender EntityID  `json:"spender"`
	Amount  int64     `json:"amount"`
}

type TokenAllowance struct {
	Token   EntityID  `json:"tokenId"`
	Owner   *EntityID `json:"owner,omitempty"`
	Spender EntityID  `json:"spender"`
	Amount  int64     `json:"amount"`
}

type NftAllowance struct {
	Token          EntityID  `json:"tokenId"`
	Owner          *EntityID `json:"owner,omitempty"`
	Spender        EntityID  `json:"spender"`
	SerialNumbers  []int64   `json:"serialNumbers,omitempty"`
	ApprovedForAll *bool     `json:"approvedForAll,omitempty"`
}

type CryptoApproveAllowance struct {
	CryptoAllowances []CryptoAllowance `json:"cryptoAllowances,omitempty"`
	TokenAllowances  []TokenAllowance  `json:"tokenAllowances,omitempty"`
	NftAllowances    []NftAllowance    `json:"nftAllowances,omitempty"`
}

type NftRemoveAllowance struct {
	Token         EntityID  `json:"tokenId"`
	Owner         *EntityID `json:"owner,omitempty"`
	SerialNumbers []int64   `json:"serialNumbers,omitempty"`
}

type CryptoDeleteAllowance struct {
	NftAllowances []NftRemoveAllowance `json:"nftAllowances,omitempty"`
}

type FileUpdate struct {
	FileID         EntityID   `json:"fileId"`
	Keys           *KeyList   `json:"keys,omitempty"`
	Contents       []byte     `json:"contents,omitempty"`
	ExpirationTime *time.Time `json:"expirationTime,omitempty"`
}

type FileAppend struct {
	FileID   EntityID `json:"fileId"`
	Contents []byte   `json:"contents,omitempty"`
}

type Freeze struct {
	FreezeType string     `json:"freezeType"`
	StartTime  *time.Time `json:"startTime,omitempty"`
	UpdateFile *EntityID  `json:"updateFile,omitempty"`
	FileHash   []byte     `json:"fileHash,omitempty"`
}

type NodeCreate struct {
	AccountID   EntityID `json:"accountId"`
	Description string   `json:"description,omitempty"`
	AdminKey    *Key     `json:"adminKey,omitempty"`
}

type NodeUpdate struct {
	NodeID      uint64    `json:"nodeId"`
	AccountID   *EntityID `json:"accountId,omitempty"`
	Description *string   `json:"description,omitempty"`
	AdminKey    *Key      `json:"adminKey,omitempty"`
}

type NodeDelete struct {
	NodeID uint64 `json:"nodeId"`
}

func (*CryptoTransfer) Type() TransactionType         { return TransactionTypeCryptoTransfer }
func (*CryptoCreateAccount) Type() TransactionType    { return TransactionTypeCryptoCreateAccount }
func (*CryptoUpdateAccount) Type() TransactionType    { return TransactionTypeCryptoUpdateAccount }
func (*CryptoDelete) Type() TransactionType           { return TransactionTypeCryptoDelete }
func (*CryptoApproveAllowance) Type() TransactionType { return TransactionTypeCryptoApproveAllowance }
func (*CryptoDeleteAllowance) Type() TransactionType  { return TransactionTypeCryptoDeleteAllowance }
func (*FileUpdate) Type() TransactionType             { return TransactionTypeFileUpdate }
func (*FileAppend) Type() TransactionType             { return TransactionTypeFileAppend }
func (*Freeze) Type() TransactionType                 { return TransactionTypeFreeze }
func (*NodeCreate) Type() TransactionType             { return TransactionTypeNodeCreate }
func (*NodeUpdate) Type() TransactionType             { return TransactionTypeNodeUpdate }
func (*NodeDelete) Type() TransactionType             { return TransactionTypeNodeDelete }
