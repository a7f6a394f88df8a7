// Copyright 2025 The Accumulate Authors
//
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file or at
// https://opensource.org/licenses/MIT.

package ledger

import (
	"encoding/hex"
	"strings"

	"gitlab.com/accumulatenetwork/sigreq/pkg/errors"
	"gitlab.com/accumulatenetwork/sigreq/pkg/keytree"
)

// Key types reported by the mirror's REST API.
const (
	MirrorKeyEd25519          = "ED25519"
	MirrorKeySecp256k1        = "ECDSA_SECP256K1"
	MirrorKeyProtobufEncoding = "ProtobufEncoding"
)

// MirrorKey is a key as reported by the mirror's REST API. Simple keys are
// hex encoded, possibly DER prefixed. Anything else is the hex encoded
// protobuf Key message.
type MirrorKey struct {
	Type string `json:"_type"`
	Key  string `json:"key"`
}

// Decode returns the native key.
func (m *MirrorKey) Decode() (*Key, error) {
	if m == nil {
		return nil, nil
	}

	b, err := hex.DecodeString(strings.TrimPrefix(m.Key, "0x"))
	if err != nil {
		return nil, errors.EncodingError.WithFormat("decode %s key: %w", m.Type, err)
	}

	switch strings.ToUpper(m.Type) {
	case MirrorKeyEd25519:
		return Ed25519Key(keytree.PublicKeyFromBytes(b)), nil
	case MirrorKeySecp256k1:
		return Secp256k1Key(keytree.PublicKeyFromBytes(b)), nil
	case strings.ToUpper(MirrorKeyProtobufEncoding):
		return UnmarshalKeyProto(b)
	default:
		return nil, errors.WrongType.WithFormat("unknown mirror key type %q", m.Type)
	}
}

// DecodeMirrorKey translates a mirror key into a key tree. A nil key means
// the entity has no controlling key.
func DecodeMirrorKey(m *MirrorKey) (*keytree.KeyTree, error) {
	k, err := m.Decode()
	if err != nil {
		return nil, err
	}
	return k.KeyTree()
}
