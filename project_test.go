package vbaunlock

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/sebdah/goldie"
)

var test_project_lines = []string{
	`ID="{917DED54-440B-4FD1-A5C1-74ACF261E600}"`,
	`Document=ThisWorkbook/&H00000000`,
	`Document=Sheet1/&HFFFFFFFF`,
	`Module=Module1`,
	`Class=Class1`,
	`BaseClass=UserForm1`,
	`Package={AC9F2F90-E877-11CE-9F68-00AA00574A4F}`,
	`HelpFile=""`,
	`Name="VBAProject"`,
	`HelpContextID="0"`,
	`Description="Budget ""macros"" 2024"`,
	`VersionCompatible32="393222000"`,
	`CMG="0F0DD045DF5C9260926096649664"`,
	`DPB="6B69B4E140FE40FEBF02510E1A154D2AFB10A36F6629CC47CC704934F8FE84518CD71B8A3C"`,
	`GC="90924F705070508F"`,
	``,
	`[Host Extender Info]`,
	`&H00000001={3832D640-CF90-11CF-8E43-00A0C911005A};VBE;&H00000000`,
	``,
	`[Workspace]`,
	`ThisWorkbook=0, 0, 0, 0, C`,
	`Module1=26, 26, 1349, 522, Z`,
	`UserForm1=0, 0, 0, 0, C, 44, 44, 1175, 625, I`,
}

// The project key of the test project id.
const test_project_key = 0xdf

func buildProjectStream(lines []string, newline string) []byte {
	return []byte(strings.Join(lines, newline) + newline)
}

// replaceLine swaps the line starting with prefix.
func replaceLine(lines []string, prefix, replacement string) []string {
	result := []string{}
	for _, line := range lines {
		if strings.HasPrefix(line, prefix) {
			if replacement == "" {
				continue
			}
			line = replacement
		}
		result = append(result, line)
	}
	return result
}

func encryptedLine(tag string, seed byte, data []byte) string {
	return fmt.Sprintf(`%s="%v"`, tag, Data(Encrypt(seed, test_project_key, data)))
}

func TestProjectReport(t *testing.T) {
	project, err := ParseProject(buildProjectStream(test_project_lines, "\r\n"))
	if err != nil {
		t.Fatalf("ParseProject: %v", err)
	}

	serialized, _ := json.MarshalIndent(project.Report(), " ", " ")
	goldie.Assert(t, "project_report", serialized)
}

func TestProjectAccessors(t *testing.T) {
	project, err := ParseProject(buildProjectStream(test_project_lines, "\r\n"))
	if err != nil {
		t.Fatalf("ParseProject: %v", err)
	}

	if !project.IsLocked() {
		t.Fatalf("project should be locked")
	}

	hashed, ok := project.Password().(PasswordHash)
	if !ok {
		t.Fatalf("expected a hashed password, got %v", project.Password())
	}

	// Byte 8 of the hash is a null stored as 0x01.
	if hashed.Hash[8] != 0 || hashed.Salt != (Salt{0x4a, 0x4d, 0x2a, 0x15}) {
		t.Fatalf("unexpected hash %v", hashed)
	}
	if !PasswordMatchHash("P@ssw0rd", hashed.Salt, hashed.Hash) {
		t.Fatalf("hash does not match the password")
	}

	if project.Visibility() != VISIBLE {
		t.Fatalf("unexpected visibility %v", project.Visibility())
	}

	if project.Name() != "VBAProject" || project.HelpID() != 0 {
		t.Fatalf("unexpected name %v help id %v", project.Name(), project.HelpID())
	}

	description, ok := project.Description()
	if !ok || description != `Budget "macros" 2024` {
		t.Fatalf("unexpected description %q", description)
	}

	if _, ok := project.ExeName(); ok {
		t.Fatalf("ExeName32 is not in the stream")
	}

	items := project.Items()
	if len(items) != 6 {
		t.Fatalf("expected 6 items, got %d", len(items))
	}
	if sheet, ok := items[1].(Module); !ok || sheet.DocTlibVer != -1 {
		t.Fatalf("unexpected item %v", items[1])
	}

	// Items returns a copy.
	items[0] = Package{}
	if _, ok := project.Items()[0].(Module); !ok {
		t.Fatalf("project was mutated through Items()")
	}

	workspace, ok := project.Workspace()
	if !ok || len(workspace) != 3 || workspace[2].Designer == nil {
		t.Fatalf("unexpected workspace %v", workspace)
	}
}

func TestProjectNewLines(t *testing.T) {
	// LF CR is as good as CR LF.
	project, err := ParseProject(buildProjectStream(test_project_lines, "\n\r"))
	if err != nil {
		t.Fatalf("ParseProject(LFCR): %v", err)
	}
	if !project.IsLocked() {
		t.Fatalf("project should be locked")
	}

	for _, newline := range []string{"\n", "\r"} {
		_, err := ParseProject(buildProjectStream(test_project_lines, newline))

		var parse_err *ParseError
		if !errors.As(err, &parse_err) {
			t.Fatalf("bare %q newline should fail, got %v", newline, err)
		}
	}
}

func TestProjectMinimal(t *testing.T) {
	lines := []string{
		`ID="{00000000-0000-0000-0000-000000000000}"`,
		`Name="A"`,
		`HelpContextID="-1"`,
		UNLOCKED_CMG[:len(UNLOCKED_CMG)-2],
		UNLOCKED_DPB[:len(UNLOCKED_DPB)-2],
		UNLOCKED_GC[:len(UNLOCKED_GC)-2],
		``,
		`[Host Extender Info]`,
	}

	project, err := ParseProject(buildProjectStream(lines, "\r\n"))
	if err != nil {
		t.Fatalf("ParseProject: %v", err)
	}

	if project.IsLocked() || project.ProtectionState() != (ProtectionState{}) {
		t.Fatalf("unexpected protection state %v", project.ProtectionState())
	}
	if _, ok := project.Password().(PasswordNone); !ok {
		t.Fatalf("unexpected password %v", project.Password())
	}
	if project.Visibility() != VISIBLE || project.HelpID() != -1 {
		t.Fatalf("unexpected project %v", project.Report())
	}
	if len(project.Items()) != 0 || len(project.HostExtenders()) != 0 {
		t.Fatalf("expected no items")
	}
	if _, ok := project.Workspace(); ok {
		t.Fatalf("no workspace expected")
	}
}

func TestProjectTrailingData(t *testing.T) {
	stream := buildProjectStream(test_project_lines, "\r\n")
	stream = append(stream, []byte("garbage that is ignored")...)

	_, err := ParseProject(stream)
	if err != nil {
		t.Fatalf("trailing bytes should be ignored: %v", err)
	}
}

func TestProjectPasswords(t *testing.T) {
	for _, test := range []struct {
		name     string
		line     string
		expected Password
	}{
		{"none", encryptedLine("DPB", 0x13, []byte{0x00}), PasswordNone{}},
		{"plain", encryptedLine("DPB", 0x70, []byte("secret\x00")),
			PasswordPlain{Text: "secret"}},
		{"plain invalid utf8", encryptedLine("DPB", 0x70, []byte("a\xffb\x00")),
			PasswordPlain{Text: "a�b"}},
	} {
		lines := replaceLine(test_project_lines, "DPB=", test.line)
		project, err := ParseProject(buildProjectStream(lines, "\r\n"))
		if err != nil {
			t.Fatalf("%v: ParseProject: %v", test.name, err)
		}
		if project.Password() != test.expected {
			t.Fatalf("%v: got %v", test.name, project.Password())
		}
	}
}

func TestProjectFieldErrors(t *testing.T) {
	parse := func(prefix, line string) error {
		lines := replaceLine(test_project_lines, prefix, line)
		_, err := ParseProject(buildProjectStream(lines, "\r\n"))
		return err
	}

	err := parse("CMG=", encryptedLine("CMG", 0x0f, []byte{0x08, 0, 0, 0}))
	var reserved *ReservedBitsError
	var state_err *ProtectionStateError
	if !errors.As(err, &reserved) || !errors.As(err, &state_err) {
		t.Fatalf("expected ReservedBitsError, got %v", err)
	}
	if reserved.Data != [4]byte{0x08, 0, 0, 0} {
		t.Fatalf("unexpected reserved bits %v", reserved.Data)
	}

	err = parse("CMG=", encryptedLine("CMG", 0x0f, []byte{0x01, 0, 1, 0}))
	if !errors.As(err, &reserved) {
		t.Fatalf("expected ReservedBitsError, got %v", err)
	}

	err = parse("CMG=", encryptedLine("CMG", 0x01, []byte{0x01, 0, 0, 0, 0}))
	var length *DataLengthError
	if !errors.As(err, &length) || length.Expected != 4 || length.Length != 5 {
		t.Fatalf("expected DataLengthError, got %v", err)
	}

	err = parse("DPB=", encryptedLine("DPB", 0x02, []byte{}))
	var password_err *PasswordError
	if !errors.Is(err, ErrNoData) || !errors.As(err, &password_err) {
		t.Fatalf("expected ErrNoData, got %v", err)
	}

	err = parse("DPB=", encryptedLine("DPB", 0x13, []byte{0x01}))
	var not_null *NotNullError
	if !errors.As(err, &not_null) || not_null.Value != 0x01 {
		t.Fatalf("expected NotNullError, got %v", err)
	}

	err = parse("DPB=", encryptedLine("DPB", 0x70, []byte("secret")))
	var terminator *PlainTextTerminatorError
	if !errors.As(err, &terminator) || terminator.Value != 't' {
		t.Fatalf("expected PlainTextTerminatorError, got %v", err)
	}

	bad_hash := make([]byte, PASSWORD_HASH_LENGTH)
	bad_hash[0] = 0xfe
	err = parse("DPB=", encryptedLine("DPB", 0x70, bad_hash))
	var hash_reserved *HashReservedError
	if !errors.As(err, &hash_reserved) || !errors.As(err, &password_err) {
		t.Fatalf("expected HashReservedError, got %v", err)
	}

	err = parse("GC=", encryptedLine("GC", 0x90, []byte{0x42}))
	var invalid *InvalidStateError
	var visibility_err *VisibilityError
	if !errors.As(err, &invalid) || !errors.As(err, &visibility_err) || invalid.Value != 0x42 {
		t.Fatalf("expected InvalidStateError, got %v", err)
	}

	err = parse("GC=", encryptedLine("GC", 0x00, []byte{0xff, 0xff}))
	if !errors.As(err, &length) || length.Expected != 1 {
		t.Fatalf("expected DataLengthError, got %v", err)
	}

	// Version errors surface through the field they were found in.
	err = parse("GC=", `GC="0123456789ABCDEF"`)
	var version *VersionError
	if !errors.As(err, &version) || !errors.As(err, &visibility_err) {
		t.Fatalf("expected VersionError, got %v", err)
	}
}

func TestProjectSyntaxErrors(t *testing.T) {
	for _, test := range []struct {
		name      string
		lines     []string
		remaining string
	}{
		{"missing name", replaceLine(test_project_lines, "Name=", ""),
			"HelpContextID="},
		{"long name", replaceLine(test_project_lines, "Name=",
			`Name="`+strings.Repeat("n", 129)+`"`), "n\"\r\n"},
		{"bad id", replaceLine(test_project_lines, "ID=",
			`ID="{917DED54-440B-4FD1-A5C1}"`), `}"`},
		{"bad document", replaceLine(test_project_lines, "Document=Sheet1",
			`Document=Sheet1`), `Document=Sheet1`},
		{"missing host extenders", test_project_lines[:15], ""},
		{"short cmg", replaceLine(test_project_lines, "CMG=",
			`CMG="0F0DD045DF5C926092"`), "\"\r\nDPB="},
	} {
		_, err := ParseProject(buildProjectStream(test.lines, "\r\n"))

		var parse_err *ParseError
		if !errors.As(err, &parse_err) {
			t.Fatalf("%v: expected ParseError, got %v", test.name, err)
		}
		if !strings.HasPrefix(string(parse_err.Remaining), test.remaining) {
			t.Fatalf("%v: unexpected remaining %q", test.name, parse_err.Remaining)
		}
	}
}

func TestProjectLongName(t *testing.T) {
	lines := replaceLine(test_project_lines, "Name=",
		`Name="`+strings.Repeat("n", 128)+`"`)

	project, err := ParseProject(buildProjectStream(lines, "\r\n"))
	if err != nil || len(project.Name()) != 128 {
		t.Fatalf("128 character name should parse: %v", err)
	}
}
