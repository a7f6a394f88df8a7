// Copyright 2025 The Accumulate Authors
//
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file or at
// https://opensource.org/licenses/MIT.

package ledger

import (
	"gitlab.com/accumulatenetwork/sigreq/pkg/errors"
	"gitlab.com/accumulatenetwork/sigreq/pkg/keytree"
	"google.golang.org/protobuf/encoding/protowire"
)

// Field numbers of the ledger's protobuf Key message and its children.
const (
	fieldKeyContractID            protowire.Number = 1
	fieldKeyEd25519               protowire.Number = 2
	fieldKeyRSA3072               protowire.Number = 3
	fieldKeyECDSA384              protowire.Number = 4
	fieldKeyThresholdKey          protowire.Number = 5
	fieldKeyKeyList               protowire.Number = 6
	fieldKeyECDSASecp256k1        protowire.Number = 7
	fieldKeyDelegatableContractID protowire.Number = 8

	fieldThresholdThreshold protowire.Number = 1
	fieldThresholdKeys      protowire.Number = 2

	fieldKeyListKeys protowire.Number = 1

	fieldContractShard protowire.Number = 1
	fieldContractRealm protowire.Number = 2
	fieldContractNum   protowire.Number = 3
)

// UnmarshalKeyProto decodes the protobuf encoding of a Key.
func UnmarshalKeyProto(b []byte) (*Key, error) {
	return unmarshalKeyProto(b, 0)
}

// MarshalProto returns the protobuf encoding of the key.
func (k *Key) MarshalProto() []byte {
	var b []byte
	appendPK := func(num protowire.Number, pk *keytree.PublicKey) {
		if pk != nil {
			b = protowire.AppendTag(b, num, protowire.BytesType)
			b = protowire.AppendBytes(b, pk.Bytes())
		}
	}
	appendContract := func(num protowire.Number, id *EntityID) {
		if id != nil {
			b = protowire.AppendTag(b, num, protowire.BytesType)
			b = protowire.AppendBytes(b, marshalContractIDProto(id))
		}
	}

	appendContract(fieldKeyContractID, k.ContractID)
	appendPK(fieldKeyEd25519, k.Ed25519)
	appendPK(fieldKeyRSA3072, k.RSA3072)
	appendPK(fieldKeyECDSA384, k.ECDSA384)
	if k.ThresholdKey != nil {
		var v []byte
		v = protowire.AppendTag(v, fieldThresholdThreshold, protowire.VarintType)
		v = protowire.AppendVarint(v, uint64(k.ThresholdKey.Threshold))
		if k.ThresholdKey.Keys != nil {
			v = protowire.AppendTag(v, fieldThresholdKeys, protowire.BytesType)
			v = protowire.AppendBytes(v, marshalKeyListProto(k.ThresholdKey.Keys))
		}
		b = protowire.AppendTag(b, fieldKeyThresholdKey, protowire.BytesType)
		b = protowire.AppendBytes(b, v)
	}
	if k.KeyList != nil {
		b = protowire.AppendTag(b, fieldKeyKeyList, protowire.BytesType)
		b = protowire.AppendBytes(b, marshalKeyListProto(k.KeyList))
	}
	appendPK(fieldKeyECDSASecp256k1, k.ECDSASecp256k1)
	appendContract(fieldKeyDelegatableContractID, k.DelegatableContractID)
	return b
}

func marshalKeyListProto(l *KeyList) []byte {
	var b []byte
	for _, k := range l.Keys {
		b = protowire.AppendTag(b, fieldKeyListKeys, protowire.BytesType)
		b = protowire.AppendBytes(b, k.MarshalProto())
	}
	return b
}

func marshalContractIDProto(id *EntityID) []byte {
	var b []byte
	b = protowire.AppendTag(b, fieldContractShard, protowire.VarintType)
	b = protowire.AppendVarint(b, id.Shard)
	b = protowire.AppendTag(b, fieldContractRealm, protowire.VarintType)
	b = protowire.AppendVarint(b, id.Realm)
	b = protowire.AppendTag(b, fieldContractNum, protowire.VarintType)
	b = protowire.AppendVarint(b, id.Num)
	return b
}

func unmarshalKeyProto(b []byte, depth int) (*Key, error) {
	if depth > 4*keytree.MaxDepth {
		return nil, errors.MalformedKey.WithFormat("key nested deeper than %d", 4*keytree.MaxDepth)
	}

	k := new(Key)
	err := walkProto(b, func(num protowire.Number, typ protowire.Type, v []byte, x uint64) error {
		if typ != protowire.BytesType {
			return nil
		}

		pk := func() *keytree.PublicKey {
			p := keytree.PublicKeyFromBytes(v)
			return &p
		}

		switch num {
		case fieldKeyEd25519:
			k.Ed25519 = pk()
		case fieldKeyECDSASecp256k1:
			k.ECDSASecp256k1 = pk()
		case fieldKeyECDSA384:
			k.ECDSA384 = pk()
		case fieldKeyRSA3072:
			k.RSA3072 = pk()

		case fieldKeyContractID, fieldKeyDelegatableContractID:
			id, err := unmarshalContractIDProto(v)
			if err != nil {
				return err
			}
			if num == fieldKeyContractID {
				k.ContractID = id
			} else {
				k.DelegatableContractID = id
			}

		case fieldKeyKeyList:
			l, err := unmarshalKeyListProto(v, depth)
			if err != nil {
				return err
			}
			k.KeyList = l

		case fieldKeyThresholdKey:
			tk := new(ThresholdKey)
			err := walkProto(v, func(num protowire.Number, typ protowire.Type, v []byte, x uint64) error {
				switch {
				case num == fieldThresholdThreshold && typ == protowire.VarintType:
					tk.Threshold = uint32(x)
				case num == fieldThresholdKeys && typ == protowire.BytesType:
					l, err := unmarshalKeyListProto(v, depth)
					if err != nil {
						return err
					}
					tk.Keys = l
				}
				return nil
			})
			if err != nil {
				return err
			}
			k.ThresholdKey = tk
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return k, nil
}

func unmarshalKeyListProto(b []byte, depth int) (*KeyList, error) {
	l := new(KeyList)
	err := walkProto(b, func(num protowire.Number, typ protowire.Type, v []byte, _ uint64) error {
		if num != fieldKeyListKeys || typ != protowire.BytesType {
			return nil
		}
		k, err := unmarshalKeyProto(v, depth+1)
		if err != nil {
			return err
		}
		l.Keys = append(l.Keys, k)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return l, nil
}

func unmarshalContractIDProto(b []byte) (*EntityID, error) {
	id := new(EntityID)
	err := walkProto(b, func(num protowire.Number, typ protowire.Type, _ []byte, x uint64) error {
		if typ != protowire.VarintType {
			return nil
		}
		switch num {
		case fieldContractShard:
			id.Shard = x
		case fieldContractRealm:
			id.Realm = x
		case fieldContractNum:
			id.Num = x
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return id, nil
}

// walkProto calls fn for each field of a message. Length-delimited fields
// are passed as v, varints as x. Other wire types are skipped.
func walkProto(b []byte, fn func(num protowire.Number, typ protowire.Type, v []byte, x uint64) error) error {
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return errors.EncodingError.WithFormat("decode tag: %w", protowire.ParseError(n))
		}
		b = b[n:]

		var v []byte
		var x uint64
		switch typ {
		case protowire.BytesType:
			v, n = protowire.ConsumeBytes(b)
		case protowire.VarintType:
			x, n = protowire.ConsumeVarint(b)
		default:
			n = protowire.ConsumeFieldValue(num, typ, b)
		}
		if n < 0 {
			return errors.EncodingError.WithFormat("decode field %d: %w", num, protowire.ParseError(n))
		}
		b = b[n:]

		if typ != protowire.BytesType && typ != protowire.VarintType {
			continue
		}
		err := fn(num, typ, v, x)
		if err != nil {
			return err
		}
	}
	return nil
}
