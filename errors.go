package vbaunlock

import (
	"errors"
	"fmt"
)

var (
	// The decrypted password field held no bytes at all.
	ErrNoData = errors.New("the decrypted password had no data")

	ErrNotFound         = errors.New("Not found")
	ErrNoVBAProject     = errors.New("no VBA project found")
	ErrStreamRelocation = errors.New("rewritten stream does not fit its existing allocation")
)

type InvalidHexError struct {
	Hex string
}

func (self *InvalidHexError) Error() string {
	return fmt.Sprintf(
		"cannot apply VBA data decryption as supplied value is not valid hex: %s",
		self.Hex)
}

type TooShortError struct {
	Hex string
}

func (self *TooShortError) Error() string {
	return fmt.Sprintf("the hex string %s is too short to be decrypted", self.Hex)
}

type VersionError struct {
	Version byte
}

func (self *VersionError) Error() string {
	return fmt.Sprintf(
		"VBA data encryption version MUST be 2, not %d", self.Version)
}

type LengthMismatchError struct {
	Actual   uint32
	Expected uint32
}

func (self *LengthMismatchError) Error() string {
	return fmt.Sprintf(
		"the length of the decrypted data: %d does not match decrypted length: %d",
		self.Actual, self.Expected)
}

// Password hash structure (MS-OVBA 2.3.1.16).
type HashLengthError struct {
	Length int
}

func (self *HashLengthError) Error() string {
	return fmt.Sprintf(
		"the password hash structure must be 29 bytes, not %d", self.Length)
}

type HashReservedError struct {
	Value byte
}

func (self *HashReservedError) Error() string {
	return fmt.Sprintf(
		"the reserved byte of the password hash MUST be 0xff, not 0x%02x", self.Value)
}

type HashTerminatorError struct {
	Value byte
}

func (self *HashTerminatorError) Error() string {
	return fmt.Sprintf(
		"the terminator of the password hash MUST be 0x00, not 0x%02x", self.Value)
}

type SaltNullError struct {
	Salt     Salt
	Position int
}

func (self *SaltNullError) Error() string {
	return fmt.Sprintf(
		"byte %d of the salt %x is marked null but is not 0x01", self.Position, self.Salt[:])
}

type HashNullError struct {
	Hash     Hash
	Position int
}

func (self *HashNullError) Error() string {
	return fmt.Sprintf(
		"byte %d of the hash %x is marked null but is not 0x01", self.Position, self.Hash[:])
}

type NotNullError struct {
	Value byte
}

func (self *NotNullError) Error() string {
	return fmt.Sprintf(
		"the data value for a project without a password MUST be 0x00, not 0x%02x",
		self.Value)
}

type PlainTextTerminatorError struct {
	Value byte
}

func (self *PlainTextTerminatorError) Error() string {
	return fmt.Sprintf(
		"the plain-text password MUST be null terminated, got 0x%02x", self.Value)
}

type DataLengthError struct {
	Expected int
	Length   int
}

func (self *DataLengthError) Error() string {
	return fmt.Sprintf(
		"decrypted data should be %d bytes, not %d", self.Expected, self.Length)
}

type ReservedBitsError struct {
	Data [4]byte
}

func (self *ReservedBitsError) Error() string {
	return fmt.Sprintf(
		"the upper 29 bits of the protection state are reserved and MUST be 0, "+
			"data decoded to %08b%08b%08b%08b",
		self.Data[0], self.Data[1], self.Data[2], self.Data[3])
}

type InvalidStateError struct {
	Value byte
}

func (self *InvalidStateError) Error() string {
	return fmt.Sprintf(
		"visibility only has two valid values 0x00 and 0xff, found 0x%02x", self.Value)
}

// Field errors carry the reason the CMG, DPB or GC value was rejected.
type ProtectionStateError struct {
	Err error
}

func (self *ProtectionStateError) Error() string {
	return "protection state (CMG): " + self.Err.Error()
}

func (self *ProtectionStateError) Unwrap() error { return self.Err }

type PasswordError struct {
	Err error
}

func (self *PasswordError) Error() string {
	return "password (DPB): " + self.Err.Error()
}

func (self *PasswordError) Unwrap() error { return self.Err }

type VisibilityError struct {
	Err error
}

func (self *VisibilityError) Error() string {
	return "visibility (GC): " + self.Err.Error()
}

func (self *VisibilityError) Unwrap() error { return self.Err }

// ParseError is returned for any failure while parsing the PROJECT
// stream. Remaining is the input that was not consumed when parsing
// stopped.
type ParseError struct {
	Remaining []byte
	Input     []byte
	Err       error
}

func (self *ParseError) Error() string {
	context := self.Remaining
	if len(context) > 40 {
		context = context[:40]
	}
	return fmt.Sprintf("invalid PROJECT stream at offset %d (%q): %v",
		len(self.Input)-len(self.Remaining), context, self.Err)
}

func (self *ParseError) Unwrap() error { return self.Err }

type NotExcelError struct {
	Filename string
}

func (self *NotExcelError) Error() string {
	return fmt.Sprintf("%s is not an Excel file", self.Filename)
}

type XlsxError struct {
	Filename string
}

func (self *XlsxError) Error() string {
	return fmt.Sprintf(
		"%s is Excel's format for files with no VBA. There is nothing to operate on",
		self.Filename)
}
