// Package cid derives content identifiers for runtime entities.
//
// An identifier is computed by canonically encoding the payload (unsigned-varint
// length prefix followed by the bytes), hashing it with blake3-256, wrapping the
// digest as a multihash, and rendering a CIDv1 with the raw codec in lowercase
// base32 multibase. Equal payloads always yield equal identifiers.
package cid

import (
	"fmt"

	gocid "github.com/ipfs/go-cid"
	"github.com/multiformats/go-multibase"
	"github.com/multiformats/go-multihash"
	"github.com/multiformats/go-varint"
	"lukechampine.com/blake3"
)

// ID is the textual content identifier of a payload.
type ID string

// Default is returned by ToCID when an identifier cannot be produced.
const Default ID = ""

func (id ID) String() string {
	return string(id)
}

// IsDefault reports whether id is the fallback identifier.
func (id ID) IsDefault() bool {
	return id == Default
}

// Encode returns the canonical encoding of data.
func Encode(data []byte) []byte {
	out := make([]byte, 0, varint.UvarintSize(uint64(len(data)))+len(data))
	out = append(out, varint.ToUvarint(uint64(len(data)))...)
	return append(out, data...)
}

// Generate computes the identifier of data.
func Generate(data []byte) (ID, error) {
	digest := blake3.Sum256(Encode(data))
	mh, err := multihash.Encode(digest[:], multihash.BLAKE3)
	if err != nil {
		return Default, fmt.Errorf("encode multihash: %w", err)
	}
	s, err := gocid.NewCidV1(gocid.Raw, mh).StringOfBase(multibase.Base32)
	if err != nil {
		return Default, fmt.Errorf("encode multibase: %w", err)
	}
	return ID(s), nil
}

// ToCID computes the identifier of data, falling back to Default on failure.
func ToCID(data []byte) ID {
	id, err := Generate(data)
	if err != nil {
		return Default
	}
	return id
}

// Parse validates a textual identifier and returns it.
func Parse(s string) (ID, error) {
	c, err := gocid.Decode(s)
	if err != nil {
		return Default, fmt.Errorf("parse cid: %w", err)
	}
	if c.Version() != 1 || c.Type() != gocid.Raw {
		return Default, fmt.Errorf("parse cid: unsupported cid version %d codec %#x", c.Version(), c.Type())
	}
	return ID(s), nil
}
