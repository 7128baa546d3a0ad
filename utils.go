package vbaunlock

import (
	"strings"

	"github.com/davecgh/go-spew/spew"
	"golang.org/x/text/encoding/charmap"
)

// DebugDump traces a structure at debug level.
func DebugDump(name string, arg interface{}) {
	if VBAUNLOCK_DEBUG != nil && *VBAUNLOCK_DEBUG {
		DebugPrintf("%v: %v", name, spew.Sdump(arg))
	}
}

// Project strings are stored in the project code page. Western
// workbooks use Windows-1252 which covers every byte value.
func decodeMBCS(data []byte) string {
	decoded, err := charmap.Windows1252.NewDecoder().Bytes(data)
	if err != nil {
		return string(data)
	}
	return string(decoded)
}

func toValidUTF8(data []byte) string {
	return strings.ToValidUTF8(string(data), "\uFFFD")
}

func uint32_min(a, b uint32) uint32 {
	if a < b {
		return a
	}
	return b
}
