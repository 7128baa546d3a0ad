package vbaunlock

import (
	"fmt"
)

// MS-OVBA 2.3.1 PROJECT Stream
//
//	VBAPROJECTText = ProjectId
//	                 *ProjectItem
//	                 [ProjectHelpFile]
//	                 [ProjectExeName32]
//	                 ProjectName
//	                 ProjectHelpId
//	                 [ProjectDescription]
//	                 [ProjectVersionCompat32]
//	                 ProjectProtectionState
//	                 ProjectPassword
//	                 ProjectVisibilityState
//	                 NWLN HostExtenders
//	                 [NWLN ProjectWorkspace]

const (
	MODULE_EXTENSION = "bas"
	CLASS_EXTENSION  = "cls"
	FORM_EXTENSION   = "frm"
)

type GUID [16]byte

func (self GUID) String() string {
	h := Data(self[:]).String()
	return fmt.Sprintf("{%s-%s-%s-%s-%s}", h[0:8], h[8:12], h[12:16], h[16:20], h[20:32])
}

type ModuleKind int

const (
	MODULE_DOCUMENT ModuleKind = iota
	MODULE_STD
	MODULE_CLASS
	MODULE_DESIGNER
)

func (self ModuleKind) String() string {
	switch self {
	case MODULE_DOCUMENT:
		return "Document"
	case MODULE_STD:
		return "Module"
	case MODULE_CLASS:
		return "Class"
	case MODULE_DESIGNER:
		return "BaseClass"
	}
	return fmt.Sprintf("ModuleKind(%d)", int(self))
}

// Extension is the file extension the VBA editor exports the module
// with.
func (self ModuleKind) Extension() string {
	switch self {
	case MODULE_STD:
		return MODULE_EXTENSION
	case MODULE_DESIGNER:
		return FORM_EXTENSION
	}
	return CLASS_EXTENSION
}

// Item is either a Module or a Package.
type Item interface {
	isItem()
}

type Module struct {
	Kind ModuleKind
	Name string

	// Only set for documents.
	DocTlibVer int32
}

func (Module) isItem() {}

type Package struct {
	ID GUID
}

func (Package) isItem() {}

type ProtectionState struct {
	User bool
	Host bool
	Vbe  bool
}

// Password is one of PasswordNone, PasswordHash or PasswordPlain.
type Password interface {
	isPassword()
	String() string
}

type PasswordNone struct{}

func (PasswordNone) isPassword() {}

func (PasswordNone) String() string { return "None" }

type PasswordHash struct {
	Salt Salt
	Hash Hash
}

func (PasswordHash) isPassword() {}

func (self PasswordHash) String() string {
	return fmt.Sprintf("Hashed (SHA1) salt %s hash %s",
		lowerHex(self.Salt[:]), lowerHex(self.Hash[:]))
}

type PasswordPlain struct {
	Text string
}

func (PasswordPlain) isPassword() {}

func (self PasswordPlain) String() string {
	return fmt.Sprintf("%s (plain-text)", self.Text)
}

type Visibility int

const (
	NOT_VISIBLE Visibility = iota
	VISIBLE
)

func (self Visibility) String() string {
	if self == VISIBLE {
		return "Visible"
	}
	return "Not Visible"
}

type HostExtenderRef struct {
	Index         int32
	GUID          GUID
	LibName       string
	CreationFlags int32
}

type WindowState byte

const (
	WINDOW_CLOSED    WindowState = 'C'
	WINDOW_ZOOMED    WindowState = 'Z'
	WINDOW_MINIMIZED WindowState = 'I'
)

func (self WindowState) String() string {
	switch self {
	case WINDOW_CLOSED:
		return "Closed"
	case WINDOW_ZOOMED:
		return "Zoomed"
	case WINDOW_MINIMIZED:
		return "Minimized"
	}
	return fmt.Sprintf("WindowState(%q)", byte(self))
}

type Window struct {
	Left   int32
	Top    int32
	Right  int32
	Bottom int32
	State  WindowState
}

type WindowRecord struct {
	Module   string
	Code     Window
	Designer *Window
}

// Project is the parsed PROJECT stream. It is built once by
// ParseProject and never modified.
type Project struct {
	id               GUID
	items            []Item
	help_file        *string
	exe_name         *string
	name             string
	help_id          int32
	description      *string
	version_compat   bool
	protection_state ProtectionState
	password         Password
	visibility       Visibility
	host_extenders   []HostExtenderRef
	workspace        []WindowRecord
	has_workspace    bool
}

func (self *Project) IsLocked() bool {
	return self.protection_state.Vbe
}

func (self *Project) Password() Password {
	return self.password
}

func (self *Project) ID() GUID                         { return self.id }
func (self *Project) Name() string                     { return self.name }
func (self *Project) HelpID() int32                    { return self.help_id }
func (self *Project) ProtectionState() ProtectionState { return self.protection_state }
func (self *Project) Visibility() Visibility           { return self.visibility }

// VersionCompatible tells if the VersionCompatible32 record was present.
func (self *Project) VersionCompatible() bool { return self.version_compat }

func (self *Project) Items() []Item {
	return append([]Item(nil), self.items...)
}

func (self *Project) HostExtenders() []HostExtenderRef {
	return append([]HostExtenderRef(nil), self.host_extenders...)
}

// Workspace returns the window records and whether a [Workspace]
// section was present at all.
func (self *Project) Workspace() ([]WindowRecord, bool) {
	return append([]WindowRecord(nil), self.workspace...), self.has_workspace
}

func (self *Project) HelpFile() (string, bool) { return optional(self.help_file) }

func (self *Project) ExeName() (string, bool) { return optional(self.exe_name) }

func (self *Project) Description() (string, bool) { return optional(self.description) }

func optional(value *string) (string, bool) {
	if value == nil {
		return "", false
	}
	return *value, true
}

// ParseProject parses the full contents of a PROJECT stream. Any
// failure rejects the whole stream.
func ParseProject(data []byte) (*Project, error) {
	_, project, err := parseProject(data)
	if err != nil {
		result := &ParseError{Remaining: data, Input: data, Err: err}

		syntax_err, ok := err.(*syntaxError)
		if ok {
			result.Remaining = syntax_err.remaining
			if syntax_err.err != nil {
				result.Err = syntax_err.err
			}
		}
		DebugPrintf("PROJECT stream rejected: %v", result)
		return nil, result
	}

	return project, nil
}
