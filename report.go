package vbaunlock

import (
	"github.com/Velocidex/ordereddict"
)

// Report returns an ordered view of the project suitable for
// serialization.
func (self *Project) Report() *ordereddict.Dict {
	items := []*ordereddict.Dict{}
	for _, item := range self.items {
		switch t := item.(type) {
		case Module:
			row := ordereddict.NewDict().
				Set("Type", t.Kind.String()).
				Set("Name", t.Name).
				Set("Extension", t.Kind.Extension())
			if t.Kind == MODULE_DOCUMENT {
				row.Set("DocTlibVer", t.DocTlibVer)
			}
			items = append(items, row)

		case Package:
			items = append(items, ordereddict.NewDict().
				Set("Type", "Package").
				Set("GUID", t.ID.String()))
		}
	}

	extenders := []*ordereddict.Dict{}
	for _, ref := range self.host_extenders {
		extenders = append(extenders, ordereddict.NewDict().
			Set("Index", ref.Index).
			Set("GUID", ref.GUID.String()).
			Set("LibName", ref.LibName).
			Set("CreationFlags", ref.CreationFlags))
	}

	result := ordereddict.NewDict().
		Set("ID", self.id.String()).
		Set("Name", self.name)

	// Optional records only appear when the stream has them.
	if self.help_file != nil {
		result.Set("HelpFile", *self.help_file)
	}
	if self.exe_name != nil {
		result.Set("ExeName32", *self.exe_name)
	}
	result.Set("HelpContextID", self.help_id)
	if self.description != nil {
		result.Set("Description", *self.description)
	}

	result.Set("Items", items).
		Set("Locked", self.IsLocked()).
		Set("ProtectionState", ordereddict.NewDict().
			Set("User", self.protection_state.User).
			Set("Host", self.protection_state.Host).
			Set("VBE", self.protection_state.Vbe)).
		Set("Password", passwordReport(self.password)).
		Set("Visibility", self.visibility.String()).
		Set("HostExtenders", extenders)

	if self.has_workspace {
		windows := []*ordereddict.Dict{}
		for _, record := range self.workspace {
			row := ordereddict.NewDict().
				Set("Module", record.Module).
				Set("Code", windowReport(record.Code))
			if record.Designer != nil {
				row.Set("Designer", windowReport(*record.Designer))
			}
			windows = append(windows, row)
		}
		result.Set("Workspace", windows)
	}

	return result
}

func passwordReport(password Password) *ordereddict.Dict {
	switch t := password.(type) {
	case PasswordHash:
		return ordereddict.NewDict().
			Set("Type", "Hash").
			Set("Salt", lowerHex(t.Salt[:])).
			Set("Hash", lowerHex(t.Hash[:]))

	case PasswordPlain:
		return ordereddict.NewDict().
			Set("Type", "PlainText").
			Set("Password", t.Text)
	}
	return ordereddict.NewDict().Set("Type", "None")
}

func windowReport(window Window) *ordereddict.Dict {
	return ordereddict.NewDict().
		Set("Left", window.Left).
		Set("Top", window.Top).
		Set("Right", window.Right).
		Set("Bottom", window.Bottom).
		Set("State", window.State.String())
}
