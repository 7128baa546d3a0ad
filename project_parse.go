package vbaunlock

func parseProject(input []byte) ([]byte, *Project, error) {
	var err error
	result := &Project{}

	rest, id, err := parseProjectID(input)
	if err != nil {
		return input, nil, err
	}
	result.id = id

	for {
		next, item, err := parseProjectItem(rest)
		if err != nil {
			break
		}
		result.items = append(result.items, item)
		rest = next
	}

	if next, value, err := parsePathRecord(rest, "HelpFile="); err == nil {
		result.help_file = &value
		rest = next
	}

	if next, value, err := parsePathRecord(rest, "ExeName32="); err == nil {
		result.exe_name = &value
		rest = next
	}

	rest, result.name, err = parseQuotedRecord(rest, "Name=", 1, 128)
	if err != nil {
		return input, nil, err
	}

	rest, result.help_id, err = parseHelpID(rest)
	if err != nil {
		return input, nil, err
	}

	if next, value, err := parseQuotedRecord(rest, "Description=", 0, 2000); err == nil {
		result.description = &value
		rest = next
	}

	if next, err := parseVersionCompat32(rest); err == nil {
		result.version_compat = true
		rest = next
	}

	rest, result.protection_state, err = parseProtectionState(rest)
	if err != nil {
		return input, nil, err
	}

	rest, result.password, err = parsePassword(rest)
	if err != nil {
		return input, nil, err
	}

	rest, result.visibility, err = parseVisibility(rest)
	if err != nil {
		return input, nil, err
	}

	rest, result.host_extenders, err = parseHostExtenders(rest)
	if err != nil {
		return input, nil, err
	}

	if next, records, err := parseWorkspace(rest); err == nil {
		result.workspace = records
		result.has_workspace = true
		rest = next
	}

	if len(rest) > 0 {
		DebugPrintf("Ignoring %d bytes after the PROJECT stream", len(rest))
	}

	return rest, result, nil
}

// ProjectId = "ID=" DQUOTE ProjectCLSID DQUOTE NWLN
func parseProjectID(input []byte) ([]byte, GUID, error) {
	var id GUID

	rest, err := parseTag(input, "ID=\"")
	if err != nil {
		return input, id, err
	}

	rest, id, err = parseGUID(rest)
	if err != nil {
		return input, id, err
	}

	rest, err = parseQuoteNewLine(rest)
	if err != nil {
		return input, id, err
	}
	return rest, id, nil
}

func parseQuoteNewLine(input []byte) ([]byte, error) {
	rest, err := parseTag(input, "\"")
	if err != nil {
		return input, err
	}
	return parseNewLine(rest)
}

// ProjectItem = ( ProjectModule / ProjectPackage ) NWLN
func parseProjectItem(input []byte) ([]byte, Item, error) {
	var item Item

	rest, item, err := parseProjectModule(input)
	if err != nil {
		rest, err = parseTag(input, "Package=")
		if err != nil {
			return input, nil, fail(input, "project item")
		}

		var id GUID
		rest, id, err = parseGUID(rest)
		if err != nil {
			return input, nil, err
		}
		item = Package{ID: id}
	}

	rest, err = parseNewLine(rest)
	if err != nil {
		return input, nil, err
	}
	return rest, item, nil
}

var module_tags = []struct {
	tag  string
	kind ModuleKind
}{
	{"Document=", MODULE_DOCUMENT},
	{"Module=", MODULE_STD},
	{"Class=", MODULE_CLASS},
	{"BaseClass=", MODULE_DESIGNER},
}

func parseProjectModule(input []byte) ([]byte, Item, error) {
	for _, candidate := range module_tags {
		rest, err := parseTag(input, candidate.tag)
		if err != nil {
			continue
		}

		rest, name, err := parseModuleIdentifier(rest)
		if err != nil {
			return input, nil, err
		}

		module := Module{Kind: candidate.kind, Name: name}
		if candidate.kind == MODULE_DOCUMENT {
			// ProjectDocModule = "Document=" ModuleIdentifier %x2f DocTlibVer
			rest, err = parseTag(rest, "/")
			if err != nil {
				return input, nil, err
			}

			rest, module.DocTlibVer, err = parseHexInt32(rest)
			if err != nil {
				return input, nil, err
			}
		}
		return rest, module, nil
	}

	return input, nil, fail(input, "module")
}

// ProjectHelpFile  = "HelpFile=" PATH NWLN
// ProjectExeName32 = "ExeName32=" PATH NWLN
func parsePathRecord(input []byte, tag string) ([]byte, string, error) {
	return parseQuotedRecord(input, tag, 0, 259)
}

func parseQuotedRecord(input []byte, tag string, min, max int) ([]byte, string, error) {
	rest, err := parseTag(input, tag)
	if err != nil {
		return input, "", err
	}

	rest, value, err := parseQuotedString(min, max)(rest)
	if err != nil {
		return input, "", err
	}

	rest, err = parseNewLine(rest)
	if err != nil {
		return input, "", err
	}
	return rest, value, nil
}

// ProjectHelpId = "HelpContextID=" DQUOTE TopicId DQUOTE NWLN
func parseHelpID(input []byte) ([]byte, int32, error) {
	rest, err := parseTag(input, "HelpContextID=\"")
	if err != nil {
		return input, 0, err
	}

	rest, value, err := parseInt32(rest)
	if err != nil {
		return input, 0, err
	}

	rest, err = parseQuoteNewLine(rest)
	if err != nil {
		return input, 0, err
	}
	return rest, value, nil
}

func parseVersionCompat32(input []byte) ([]byte, error) {
	rest, err := parseTag(input, "VersionCompatible32=\"393222000\"")
	if err != nil {
		return input, err
	}
	return parseNewLine(rest)
}

// parseEncryptedRecord parses TAG DQUOTE min*max(HEXDIG) DQUOTE NWLN
// and decrypts the hex value.
func parseEncryptedRecord(input []byte, tag string, min, max int) ([]byte, []byte, error) {
	rest, err := parseTag(input, tag)
	if err != nil {
		return input, nil, err
	}

	rest, encrypted, err := parseHexDigits(min, max)(rest)
	if err != nil {
		return input, nil, err
	}

	rest, err = parseQuoteNewLine(rest)
	if err != nil {
		return input, nil, err
	}

	data, err := Decrypt(encrypted)
	if err != nil {
		return input, nil, err
	}
	return rest, data, nil
}

// ProjectProtectionState = "CMG=" DQUOTE EncryptedState DQUOTE NWLN
func parseProtectionState(input []byte) ([]byte, ProtectionState, error) {
	var state ProtectionState

	rest, data, err := parseEncryptedRecord(input, "CMG=\"", 22, 28)
	if err != nil {
		return input, state, wrapField(input, err, "CMG",
			func(err error) error { return &ProtectionStateError{Err: err} })
	}

	state, err = decodeProtectionState(data)
	if err != nil {
		return input, state, failWith(input, "CMG", &ProtectionStateError{Err: err})
	}
	return rest, state, nil
}

func decodeProtectionState(data []byte) (ProtectionState, error) {
	var state ProtectionState

	if len(data) != 4 {
		return state, &DataLengthError{Expected: 4, Length: len(data)}
	}

	if data[0] > 7 || data[1] != 0 || data[2] != 0 || data[3] != 0 {
		reserved := &ReservedBitsError{}
		copy(reserved.Data[:], data)
		return state, reserved
	}

	state.User = data[0]&1 == 1
	state.Host = data[0]&2 == 2
	state.Vbe = data[0]&4 == 4

	return state, nil
}

// ProjectPassword = "DPB=" DQUOTE EncryptedPassword DQUOTE NWLN
func parsePassword(input []byte) ([]byte, Password, error) {
	rest, data, err := parseEncryptedRecord(input, "DPB=\"", 16, 2000)
	if err != nil {
		return input, nil, wrapField(input, err, "DPB",
			func(err error) error { return &PasswordError{Err: err} })
	}

	password, err := decodePassword(data)
	if err != nil {
		return input, nil, failWith(input, "DPB", &PasswordError{Err: err})
	}
	return rest, password, nil
}

func decodePassword(data []byte) (Password, error) {
	switch len(data) {
	case 0:
		return nil, ErrNoData

	case 1:
		if data[0] != 0x00 {
			return nil, &NotNullError{Value: data[0]}
		}
		return PasswordNone{}, nil

	case PASSWORD_HASH_LENGTH:
		salt, hash, err := DecodePasswordHash(data)
		if err != nil {
			return nil, err
		}
		return PasswordHash{Salt: salt, Hash: hash}, nil
	}

	last := data[len(data)-1]
	if last != 0x00 {
		return nil, &PlainTextTerminatorError{Value: last}
	}
	return PasswordPlain{Text: toValidUTF8(data[:len(data)-1])}, nil
}

// ProjectVisibilityState = "GC=" DQUOTE EncryptedProjectVisibility DQUOTE NWLN
func parseVisibility(input []byte) ([]byte, Visibility, error) {
	rest, data, err := parseEncryptedRecord(input, "GC=\"", 16, 22)
	if err != nil {
		return input, NOT_VISIBLE, wrapField(input, err, "GC",
			func(err error) error { return &VisibilityError{Err: err} })
	}

	visibility, err := decodeVisibility(data)
	if err != nil {
		return input, NOT_VISIBLE, failWith(input, "GC", &VisibilityError{Err: err})
	}
	return rest, visibility, nil
}

func decodeVisibility(data []byte) (Visibility, error) {
	if len(data) != 1 {
		return NOT_VISIBLE, &DataLengthError{Expected: 1, Length: len(data)}
	}

	switch data[0] {
	case 0x00:
		return NOT_VISIBLE, nil
	case 0xFF:
		return VISIBLE, nil
	}
	return NOT_VISIBLE, &InvalidStateError{Value: data[0]}
}

// wrapField leaves grammar errors alone and attaches decryption errors
// to the field they came from.
func wrapField(input []byte, err error, field string, wrap func(error) error) error {
	if _, ok := err.(*syntaxError); ok {
		return err
	}
	return failWith(input, field, wrap(err))
}

// HostExtenders = "[Host Extender Info]" NWLN *HostExtenderRef
func parseHostExtenders(input []byte) ([]byte, []HostExtenderRef, error) {
	rest, err := parseNewLine(input)
	if err != nil {
		return input, nil, err
	}

	rest, err = parseTag(rest, "[Host Extender Info]")
	if err != nil {
		return input, nil, err
	}

	rest, err = parseNewLine(rest)
	if err != nil {
		return input, nil, err
	}

	result := []HostExtenderRef{}
	for {
		next, ref, err := parseHostExtenderRef(rest)
		if err != nil {
			break
		}
		result = append(result, ref)
		rest = next
	}
	return rest, result, nil
}

// HostExtenderRef = ExtenderIndex "=" ExtenderGuid ";" LibName ";" CreationFlags NWLN
func parseHostExtenderRef(input []byte) ([]byte, HostExtenderRef, error) {
	var ref HostExtenderRef

	rest, index, err := parseHexInt32(input)
	if err != nil {
		return input, ref, err
	}
	ref.Index = index

	rest, err = parseTag(rest, "=")
	if err != nil {
		return input, ref, err
	}

	rest, ref.GUID, err = parseGUID(rest)
	if err != nil {
		return input, ref, err
	}

	rest, err = parseTag(rest, ";")
	if err != nil {
		return input, ref, err
	}

	rest, ref.LibName, _ = parseLibName(rest)

	rest, err = parseTag(rest, ";")
	if err != nil {
		return input, ref, err
	}

	rest, ref.CreationFlags, err = parseHexInt32(rest)
	if err != nil {
		return input, ref, err
	}

	rest, err = parseNewLine(rest)
	if err != nil {
		return input, ref, err
	}
	return rest, ref, nil
}

// ProjectWorkspace = "[Workspace]" NWLN *ProjectWindowRecord
func parseWorkspace(input []byte) ([]byte, []WindowRecord, error) {
	rest, err := parseNewLine(input)
	if err != nil {
		return input, nil, err
	}

	rest, err = parseTag(rest, "[Workspace]")
	if err != nil {
		return input, nil, err
	}

	rest, err = parseNewLine(rest)
	if err != nil {
		return input, nil, err
	}

	result := []WindowRecord{}
	for {
		next, record, err := parseWindowRecord(rest)
		if err != nil {
			break
		}
		result = append(result, record)
		rest = next
	}
	return rest, result, nil
}

// ProjectWindowRecord = ModuleIdentifier "=" ProjectWindowState NWLN
// ProjectWindowState  = CodeWindow [ ", " DesignerWindow ]
func parseWindowRecord(input []byte) ([]byte, WindowRecord, error) {
	var record WindowRecord

	rest, module, err := parseModuleIdentifier(input)
	if err != nil {
		return input, record, err
	}
	record.Module = module

	rest, err = parseTag(rest, "=")
	if err != nil {
		return input, record, err
	}

	rest, record.Code, err = parseWindow(rest)
	if err != nil {
		return input, record, err
	}

	if next, err := parseTag(rest, ", "); err == nil {
		if next, designer, err := parseWindow(next); err == nil {
			record.Designer = &designer
			rest = next
		}
	}

	rest, err = parseNewLine(rest)
	if err != nil {
		return input, record, err
	}
	return rest, record, nil
}

// Window = Left ", " Top ", " Right ", " Bottom ", " WindowState
func parseWindow(input []byte) ([]byte, Window, error) {
	var window Window
	var err error

	rest := input
	for _, dimension := range []*int32{
		&window.Left, &window.Top, &window.Right, &window.Bottom} {
		rest, *dimension, err = parseInt32(rest)
		if err != nil {
			return input, window, err
		}

		rest, err = parseTag(rest, ", ")
		if err != nil {
			return input, window, err
		}
	}

	rest, window.State, err = parseWindowState(rest)
	if err != nil {
		return input, window, err
	}
	return rest, window, nil
}
