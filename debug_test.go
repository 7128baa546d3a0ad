package vbaunlock

import (
	"bytes"
	"io"
	"strings"
	"testing"
)

func TestConfigureLogging(t *testing.T) {
	defer ConfigureLogging(io.Discard, "info")

	err := ConfigureLogging(io.Discard, "loud")
	if err == nil {
		t.Fatalf("an unknown level should be rejected")
	}

	buffer := &bytes.Buffer{}
	err = ConfigureLogging(buffer, "DEBUG")
	if err != nil {
		t.Fatalf("ConfigureLogging: %v", err)
	}

	_, err = DecryptHex("B9BB156616661699")
	if err != nil {
		t.Fatalf("DecryptHex: %v", err)
	}
	if !strings.Contains(buffer.String(), "Decrypted 1 bytes") {
		t.Fatalf("debug output missing: %q", buffer.String())
	}

	buffer.Reset()
	err = ConfigureLogging(buffer, "warn")
	if err != nil {
		t.Fatalf("ConfigureLogging: %v", err)
	}

	DebugPrintf("hidden %d", 1)
	if buffer.Len() != 0 && !debugFromEnv() {
		t.Fatalf("debug output at warn level: %q", buffer.String())
	}
}
