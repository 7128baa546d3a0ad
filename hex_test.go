package vbaunlock

import (
	"bytes"
	"errors"
	"testing"
)

func TestDecodeHex(t *testing.T) {
	for _, test := range []struct {
		hex      string
		expected []byte
	}{
		{"", []byte{}},
		{"00", []byte{0x00}},
		{"0aFf", []byte{0x0a, 0xff}},
		{"B9BB15", []byte{0xb9, 0xbb, 0x15}},

		// The unpaired digit is dropped.
		{"ABC", []byte{0xab}},
	} {
		data, err := DecodeHex(test.hex)
		if err != nil {
			t.Fatalf("DecodeHex(%q): %v", test.hex, err)
		}
		if !bytes.Equal(data, test.expected) {
			t.Fatalf("DecodeHex(%q) = %x, expected %x", test.hex, data, test.expected)
		}
	}
}

func TestDecodeHexInvalid(t *testing.T) {
	for _, hex := range []string{"0G", "zz", "12 4", "ABC-"} {
		_, err := DecodeHex(hex)

		var hex_err *InvalidHexError
		if !errors.As(err, &hex_err) {
			t.Fatalf("DecodeHex(%q) expected InvalidHexError, got %v", hex, err)
		}
		if hex_err.Hex != hex {
			t.Fatalf("InvalidHexError carries %q, expected %q", hex_err.Hex, hex)
		}
	}
}

func TestDataString(t *testing.T) {
	data := Data{0x00, 0x0f, 0xa5, 0xff}
	if data.String() != "000FA5FF" {
		t.Fatalf("unexpected hex %v", data.String())
	}

	decoded, err := DecodeHex(data.String())
	if err != nil || !bytes.Equal(decoded, data) {
		t.Fatalf("hex did not round trip: %x %v", decoded, err)
	}
}
