package main

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"www.velocidex.com/golang/vbaunlock"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), "vbaunlock.toml")
	err := os.WriteFile(path, []byte(content), 0644)
	if err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	return path
}

func TestLoadSettings(t *testing.T) {
	path := writeConfig(t, `
wordlist = "/usr/share/wordlists/rockyou.txt"
max_size = "16MiB"
suffix = "_open"
log_level = "debug"
`)

	cfg, err := loadSettings(path, defaultSettings())
	if err != nil {
		t.Fatalf("loadSettings: %v", err)
	}

	if cfg.Wordlist != "/usr/share/wordlists/rockyou.txt" ||
		cfg.Options.MaxSize != 16*1024*1024 ||
		cfg.Options.Suffix != "_open" ||
		cfg.LogLevel != "debug" {
		t.Fatalf("unexpected settings %+v", cfg)
	}
}

func TestLoadSettingsPartial(t *testing.T) {
	cfg, err := loadSettings(writeConfig(t, `suffix = "-x"`), defaultSettings())
	if err != nil {
		t.Fatalf("loadSettings: %v", err)
	}

	defaults := defaultSettings()
	if cfg.Options.MaxSize != defaults.Options.MaxSize ||
		cfg.LogLevel != defaults.LogLevel || cfg.Options.Suffix != "-x" {
		t.Fatalf("undefined keys should keep their defaults: %+v", cfg)
	}
}

func TestLoadSettingsErrors(t *testing.T) {
	for _, content := range []string{
		`max_size = "lots"`,
		`suffix = ""`,
		`colour = "blue"`,
		`wordlist = `,
	} {
		_, err := loadSettings(writeConfig(t, content), defaultSettings())
		if err == nil {
			t.Fatalf("%q should be rejected", content)
		}
	}

	_, err := loadSettings(filepath.Join(t.TempDir(), "missing.toml"), defaultSettings())
	if err == nil {
		t.Fatalf("a missing config file should be an error")
	}
}

func TestPrintInfo(t *testing.T) {
	stream := strings.Join([]string{
		`ID="{00000000-0000-0000-0000-000000000000}"`,
		`Module=Module1`,
		`Name="VBAProject"`,
		`HelpContextID="0"`,
		strings.TrimSpace(vbaunlock.UNLOCKED_CMG),
		strings.TrimSpace(vbaunlock.UNLOCKED_DPB),
		strings.TrimSpace(vbaunlock.UNLOCKED_GC),
		``,
		`[Host Extender Info]`,
		``,
	}, "\r\n")

	project, err := vbaunlock.ParseProject([]byte(stream))
	if err != nil {
		t.Fatalf("ParseProject: %v", err)
	}

	out := &bytes.Buffer{}
	printInfo(out, project, nil)

	expected := "Project Protection State:\n" +
		"  User Protected: false\n" +
		"  Host Protected: false\n" +
		"  VBE Protected: false\n" +
		"Project Password: None\n" +
		"Project Visibility:\n" +
		"  Visible\n"
	if out.String() != expected {
		t.Fatalf("unexpected output:\n%v", out.String())
	}
}
