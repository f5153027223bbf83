package models

import (
	"bytes"
	"testing"
)

// FuzzDecodeContext feeds arbitrary storage keys through the decoder. Whatever
// decodes must encode back to the same bytes, since the encoding is the key.
func FuzzDecodeContext(f *testing.F) {
	for _, c := range []Context{
		Unbounded(),
		URLForDomain("anagolay.network"),
		URLForDomainWithSubdomain("anagolay.network", "_verify"),
		URLForDomainWithUsernameAndRepository("github.com", "anagolay", "js-sdk"),
	} {
		b, err := c.Encode()
		if err != nil {
			f.Fatal(err)
		}
		f.Add(b)
	}
	f.Add([]byte{})
	f.Add([]byte{0x09})
	f.Add([]byte{0x01, 0xff, 0xff})

	f.Fuzz(func(t *testing.T, input []byte) {
		c, err := DecodeContext(input)
		if err != nil {
			return
		}
		out, err := c.Encode()
		if err != nil {
			t.Fatalf("decoded context does not encode: %v", err)
		}
		if !bytes.Equal(out, input) {
			t.Fatalf("re-encoding changed the key: %x != %x", out, input)
		}
	})
}
