package vbaunlock

// MS-OVBA 2.4.3 Data Encryption.
//
// CMG, DPB and GC values are stored as hex strings of data encrypted
// with a running key XOR. The first three bytes hold a seed, the
// version and the project key, each XORed with the seed.

const ENCRYPTION_VERSION = 2

// Decrypt reverses the VBA data encryption and returns the payload.
func Decrypt(encrypted []byte) ([]byte, error) {
	// seed, version and project key + 4 length bytes + 1 data byte.
	if len(encrypted) < 8 {
		return nil, &TooShortError{Hex: lowerHex(encrypted)}
	}

	seed := encrypted[0]
	version_enc := encrypted[1]
	project_key_enc := encrypted[2]

	version := seed ^ version_enc
	if version != ENCRYPTION_VERSION {
		return nil, &VersionError{Version: version}
	}

	project_key := seed ^ project_key_enc
	ignored_length := int(seed&6) >> 1

	unencrypted_byte_1 := project_key
	encrypted_byte_1 := project_key_enc
	encrypted_byte_2 := version_enc

	data := make([]byte, 0, len(encrypted))
	length := uint32(0)
	for i, byte_enc := range encrypted[3:] {
		// byte arithmetic wraps mod 256.
		b := byte_enc ^ (encrypted_byte_2 + unencrypted_byte_1)
		encrypted_byte_2 = encrypted_byte_1
		encrypted_byte_1 = byte_enc
		unencrypted_byte_1 = b

		switch {
		case i < ignored_length:
			// Random padding.

		case i < ignored_length+4:
			// The shift moves a nibble per byte, not a full
			// byte. Files written by Office decode correctly with
			// this so it must not be changed to 8.
			length |= uint32(b) << (4 * uint(i-ignored_length))

		default:
			data = append(data, b)
		}
	}

	if uint64(len(data)) > 0xFFFFFFFF {
		return nil, &LengthMismatchError{Actual: 0xFFFFFFFF, Expected: length}
	}

	if uint32(len(data)) != length {
		return nil, &LengthMismatchError{
			Actual: uint32(len(data)), Expected: length}
	}

	DebugPrintf("Decrypted %d bytes with seed %02x project key %02x",
		len(data), seed, project_key)

	return data, nil
}

// DecryptHex decrypts the hex encoded value of a CMG, DPB or GC field.
func DecryptHex(hex string) ([]byte, error) {
	encrypted, err := DecodeHex(hex)
	if err != nil {
		return nil, err
	}
	return Decrypt(encrypted)
}

// Encrypt applies the VBA data encryption to data. The bytes the
// algorithm ignores are filled deterministically so output is
// reproducible. The length is written one nibble per byte to match
// Decrypt, which covers payloads up to 1MiB.
func Encrypt(seed, project_key byte, data []byte) []byte {
	version_enc := seed ^ ENCRYPTION_VERSION
	project_key_enc := seed ^ project_key
	ignored_length := int(seed&6) >> 1

	length := uint32(len(data))

	plain := make([]byte, 0, ignored_length+4+len(data))
	for i := 0; i < ignored_length; i++ {
		plain = append(plain, byte(i*0x0f)^0xa9)
	}
	plain = append(plain,
		byte(length&0xf), byte((length>>4)&0xf), byte((length>>8)&0xf),
		byte(length>>12))
	plain = append(plain, data...)

	result := make([]byte, 0, 3+len(plain))
	result = append(result, seed, version_enc, project_key_enc)

	unencrypted_byte_1 := project_key
	encrypted_byte_1 := project_key_enc
	encrypted_byte_2 := version_enc

	for _, b := range plain {
		byte_enc := b ^ (encrypted_byte_2 + unencrypted_byte_1)
		result = append(result, byte_enc)
		encrypted_byte_2 = encrypted_byte_1
		encrypted_byte_1 = byte_enc
		unencrypted_byte_1 = b
	}

	return result
}

// ProjectKey derives the project key from the text of the project id
// (MS-OVBA 2.4.3.1). Decryption never checks it.
func ProjectKey(project_id string) byte {
	key := byte(0)
	for i := 0; i < len(project_id); i++ {
		key += project_id[i]
	}
	return key
}
