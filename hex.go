package vbaunlock

import (
	"strings"
)

const HEX_DIGITS = "0123456789ABCDEF"

// Data is an owned byte buffer that converts to and from its hex
// representation.
type Data []byte

func (self Data) String() string {
	result := strings.Builder{}
	result.Grow(len(self) * 2)
	for _, b := range self {
		result.WriteByte(HEX_DIGITS[b>>4])
		result.WriteByte(HEX_DIGITS[b&0x0f])
	}
	return result.String()
}

// DecodeHex converts a string of hex digits into bytes. Every character
// must be a hex digit. A trailing unpaired digit is dropped.
func DecodeHex(s string) (Data, error) {
	for i := 0; i < len(s); i++ {
		if _, ok := hexValue(s[i]); !ok {
			return nil, &InvalidHexError{Hex: s}
		}
	}

	result := make(Data, 0, len(s)/2)
	for i := 0; i+1 < len(s); i += 2 {
		upper, _ := hexValue(s[i])
		lower, _ := hexValue(s[i+1])
		result = append(result, upper<<4|lower)
	}
	return result, nil
}

func hexValue(c byte) (byte, bool) {
	switch {
	case c >= '0' && c <= '9':
		return c - '0', true
	case c >= 'a' && c <= 'f':
		return c - 'a' + 10, true
	case c >= 'A' && c <= 'F':
		return c - 'A' + 10, true
	}
	return 0, false
}

func isHexDigit(c byte) bool {
	_, ok := hexValue(c)
	return ok
}

func lowerHex(data []byte) string {
	return strings.ToLower(Data(data).String())
}
