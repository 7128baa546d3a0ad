package vbaunlock

import (
	"crypto/rand"
	"crypto/sha1"
)

// MS-OVBA 2.3.1.16 ProjectPassword hash structure:
//
//	Reserved(1) GrbitKey(4 bits) GrbitHashNull(20 bits) Salt(4) Hash(20) Terminator(1)
//
// Null bytes in the salt or hash are stored as 0x01 with the
// corresponding grbit cleared.

const (
	PASSWORD_HASH_LENGTH     = 29
	PASSWORD_HASH_RESERVED   = 0xFF
	PASSWORD_HASH_TERMINATOR = 0x00
	NULL_MARKER              = 0x01
)

type Salt [4]byte
type Hash [20]byte

// DecodePasswordHash validates the 29 byte hash structure and returns
// the salt and hash with their null bytes restored.
func DecodePasswordHash(data []byte) (Salt, Hash, error) {
	var salt Salt
	var hash Hash

	if len(data) != PASSWORD_HASH_LENGTH {
		return salt, hash, &HashLengthError{Length: len(data)}
	}

	if data[0] != PASSWORD_HASH_RESERVED {
		return salt, hash, &HashReservedError{Value: data[0]}
	}

	if data[28] != PASSWORD_HASH_TERMINATOR {
		return salt, hash, &HashTerminatorError{Value: data[28]}
	}

	copy(salt[:], data[4:8])
	copy(hash[:], data[8:28])

	// Only the low nibble of the first grbit byte belongs to the salt.
	grbit_key := uint32(data[1] & 0x0f)
	for i := range salt {
		if grbit_key&1 == 0 {
			if salt[i] != NULL_MARKER {
				return salt, hash, &SaltNullError{Salt: salt, Position: i}
			}
			salt[i] = 0
		}
		grbit_key >>= 1
	}

	grbit_hash_null := uint32(data[1]) >> 4
	grbit_hash_null |= uint32(data[2]) << 4
	grbit_hash_null |= uint32(data[3]) << 12
	for i := range hash {
		if grbit_hash_null&1 == 0 {
			if hash[i] != NULL_MARKER {
				return salt, hash, &HashNullError{Hash: hash, Position: i}
			}
			hash[i] = 0
		}
		grbit_hash_null >>= 1
	}

	return salt, hash, nil
}

// EncodePasswordHash builds the stored representation of a salt and
// hash.
func EncodePasswordHash(salt Salt, hash Hash) Data {
	grbit_key := uint32(0)
	nulled_salt := salt
	for i := len(salt) - 1; i >= 0; i-- {
		grbit_key <<= 1
		if salt[i] == 0 {
			nulled_salt[i] = NULL_MARKER
		} else {
			grbit_key |= 1
		}
	}

	grbit_hash_null := uint32(0)
	nulled_hash := hash
	for i := len(hash) - 1; i >= 0; i-- {
		grbit_hash_null <<= 1
		if hash[i] == 0 {
			nulled_hash[i] = NULL_MARKER
		} else {
			grbit_hash_null |= 1
		}
	}

	result := make(Data, 0, PASSWORD_HASH_LENGTH)
	result = append(result,
		PASSWORD_HASH_RESERVED,
		byte(grbit_hash_null&0x0f)<<4|byte(grbit_key),
		byte((grbit_hash_null&0xff0)>>4),
		byte((grbit_hash_null&0xff000)>>12))
	result = append(result, nulled_salt[:]...)
	result = append(result, nulled_hash[:]...)
	result = append(result, PASSWORD_HASH_TERMINATOR)

	return result
}

// GenerateHash is SHA-1 over the password bytes followed by the salt.
func GenerateHash(password string, salt Salt) Hash {
	hasher := sha1.New()
	hasher.Write([]byte(password))
	hasher.Write(salt[:])

	var result Hash
	copy(result[:], hasher.Sum(nil))
	return result
}

func EncodePasswordWithSalt(password string, salt Salt) Data {
	return EncodePasswordHash(salt, GenerateHash(password, salt))
}

// EncodePassword hashes the password with a random salt.
func EncodePassword(password string) (Data, error) {
	var salt Salt
	_, err := rand.Read(salt[:])
	if err != nil {
		return nil, err
	}
	return EncodePasswordWithSalt(password, salt), nil
}

func PasswordMatchHash(candidate string, salt Salt, hash Hash) bool {
	return GenerateHash(candidate, salt) == hash
}

// PasswordMatch decodes the hash structure and checks the candidate
// against it.
func PasswordMatch(candidate string, encoded []byte) (bool, error) {
	salt, hash, err := DecodePasswordHash(encoded)
	if err != nil {
		return false, err
	}
	return PasswordMatchHash(candidate, salt, hash), nil
}
