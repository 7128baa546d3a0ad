package vbaunlock

import (
	"bytes"
	"fmt"
	"strconv"
)

// Parsers for the ABNF terminals of the PROJECT stream (MS-OVBA
// 2.3.1). Each parser takes the input and returns what is left of it
// together with the parsed value.

type syntaxError struct {
	remaining []byte
	expected  string
	err       error
}

func (self *syntaxError) Error() string {
	if self.err != nil {
		return fmt.Sprintf("%s: %v", self.expected, self.err)
	}
	return "expected " + self.expected
}

func (self *syntaxError) Unwrap() error { return self.err }

func fail(input []byte, expected string) error {
	return &syntaxError{remaining: input, expected: expected}
}

func failWith(input []byte, expected string, err error) error {
	return &syntaxError{remaining: input, expected: expected, err: err}
}

func parseTag(input []byte, tag string) ([]byte, error) {
	if !bytes.HasPrefix(input, []byte(tag)) {
		return input, fail(input, fmt.Sprintf("%q", tag))
	}
	return input[len(tag):], nil
}

// NWLN = (CR LF) / (LF CR)
func parseNewLine(input []byte) ([]byte, error) {
	if len(input) >= 2 &&
		(input[0] == '\r' && input[1] == '\n' ||
			input[0] == '\n' && input[1] == '\r') {
		return input[2:], nil
	}
	return input, fail(input, "newline")
}

func isWhitespace(c byte) bool {
	return c == 0x20 || c == 0x09
}

func isAlpha(c byte) bool {
	return c >= 'a' && c <= 'z' || c >= 'A' && c <= 'Z'
}

func isDigit(c byte) bool {
	return c >= '0' && c <= '9'
}

// takeHex consumes exactly n hex digits.
func takeHex(input []byte, n int) ([]byte, []byte, error) {
	if len(input) < n {
		return input, nil, fail(input, fmt.Sprintf("%d hex digits", n))
	}
	for i := 0; i < n; i++ {
		if !isHexDigit(input[i]) {
			return input, nil, fail(input, fmt.Sprintf("%d hex digits", n))
		}
	}
	return input[n:], input[:n], nil
}

func hexNumber(digits []byte) uint64 {
	result := uint64(0)
	for _, c := range digits {
		v, _ := hexValue(c)
		result = result<<4 | uint64(v)
	}
	return result
}

var guid_groups = []int{8, 4, 4, 4, 12}

// GUID = "{" 8HEXDIG "-" 4HEXDIG "-" 4HEXDIG "-" 4HEXDIG "-" 12HEXDIG "}"
func parseGUID(input []byte) ([]byte, GUID, error) {
	var result GUID

	rest, err := parseTag(input, "{")
	if err != nil {
		return input, result, err
	}

	digits := make([]byte, 0, 32)
	for i, width := range guid_groups {
		if i > 0 {
			rest, err = parseTag(rest, "-")
			if err != nil {
				return input, result, err
			}
		}

		var group []byte
		rest, group, err = takeHex(rest, width)
		if err != nil {
			return input, result, err
		}
		digits = append(digits, group...)
	}

	rest, err = parseTag(rest, "}")
	if err != nil {
		return input, result, err
	}

	// Most significant digit first.
	for i := range result {
		result[i] = byte(hexNumber(digits[2*i : 2*i+2]))
	}

	return rest, result, nil
}

// HEXINT32 = "&H" 8HEXDIG
func parseHexInt32(input []byte) ([]byte, int32, error) {
	rest, err := parseTag(input, "&H")
	if err != nil {
		return input, 0, err
	}

	rest, digits, err := takeHex(rest, 8)
	if err != nil {
		return input, 0, err
	}

	return rest, int32(uint32(hexNumber(digits))), nil
}

// INT32 = ["-"] 1*DIGIT
func parseInt32(input []byte) ([]byte, int32, error) {
	end := 0
	if end < len(input) && input[end] == '-' {
		end++
	}
	start := end
	for end < len(input) && isDigit(input[end]) {
		end++
	}
	if end == start {
		return input, 0, fail(input, "decimal digits")
	}

	value, err := strconv.ParseInt(string(input[:end]), 10, 32)
	if err != nil {
		return input, 0, failWith(input, "32 bit integer", err)
	}
	return input[end:], int32(value), nil
}

// ModuleIdentifier = ALPHA 0*30(ALPHA / DIGIT / "_")
func parseModuleIdentifier(input []byte) ([]byte, string, error) {
	if len(input) == 0 || !isAlpha(input[0]) {
		return input, "", fail(input, "module identifier")
	}

	end := 1
	for end < len(input) && end <= 30 {
		c := input[end]
		if !isAlpha(c) && !isDigit(c) && c != '_' {
			break
		}
		end++
	}
	return input[end:], string(input[:end]), nil
}

// QUOTEDCHAR = WSP / NQCHAR / (DQUOTE DQUOTE)
// NQCHAR     = %x21 / %x23-7E / %x80-FF
func parseQuotedChar(input []byte) ([]byte, byte, error) {
	if len(input) == 0 {
		return input, 0, fail(input, "quoted character")
	}

	c := input[0]
	switch {
	case c >= 0x23 || c == 0x21:
		return input[1:], c, nil
	case isWhitespace(c):
		return input[1:], c, nil
	case c == '"' && len(input) >= 2 && input[1] == '"':
		return input[2:], '"', nil
	}
	return input, 0, fail(input, "quoted character")
}

// parseQuotedString parses DQUOTE min*max(QUOTEDCHAR) DQUOTE. The
// characters are in the project code page and are returned as UTF-8.
func parseQuotedString(min, max int) func([]byte) ([]byte, string, error) {
	return func(input []byte) ([]byte, string, error) {
		rest, err := parseTag(input, "\"")
		if err != nil {
			return input, "", err
		}

		value := []byte{}
		for count := 0; count < max; count++ {
			next, c, err := parseQuotedChar(rest)
			if err != nil {
				break
			}
			value = append(value, c)
			rest = next
		}

		if len(value) < min {
			return input, "", fail(rest, fmt.Sprintf(
				"at least %d quoted characters", min))
		}

		rest, err = parseTag(rest, "\"")
		if err != nil {
			return input, "", err
		}

		return rest, decodeMBCS(value), nil
	}
}

// parseHexDigits consumes between min and max hex digits as pairs and
// returns the bytes they encode.
func parseHexDigits(min, max int) func([]byte) ([]byte, Data, error) {
	return func(input []byte) ([]byte, Data, error) {
		rest := input
		result := Data{}
		for len(result) < max/2 {
			next, pair, err := takeHex(rest, 2)
			if err != nil {
				break
			}
			result = append(result, byte(hexNumber(pair)))
			rest = next
		}

		if len(result) < min/2 {
			return input, nil, fail(rest, fmt.Sprintf(
				"at least %d hex digits", min))
		}
		return rest, result, nil
	}
}

// LibName is any run of bytes above space apart from ";".
func parseLibName(input []byte) ([]byte, string, error) {
	end := 0
	for end < len(input) && input[end] > 0x20 && input[end] != ';' {
		end++
	}
	return input[end:], decodeMBCS(input[:end]), nil
}

func parseWindowState(input []byte) ([]byte, WindowState, error) {
	if len(input) > 0 {
		switch state := WindowState(input[0]); state {
		case WINDOW_CLOSED, WINDOW_ZOOMED, WINDOW_MINIMIZED:
			return input[1:], state, nil
		}
	}
	return input, 0, fail(input, "window state (C, Z or I)")
}
