package vbaunlock

import (
	"bufio"
	"bytes"
	_ "embed"
	"io"
	"strings"
)

// A short list of the most common passwords.
//
//go:embed passwords.lst
var default_wordlist []byte

// DefaultWordlist returns a reader over the built in password list.
func DefaultWordlist() io.Reader {
	return bytes.NewReader(default_wordlist)
}

// CrackPassword hashes every line of the wordlist with the salt and
// returns the first one matching hash.
func CrackPassword(salt Salt, hash Hash, wordlist io.Reader) (string, bool, error) {
	scanner := bufio.NewScanner(wordlist)
	tried := 0

	for scanner.Scan() {
		candidate := strings.TrimSuffix(scanner.Text(), "\r")
		tried++

		if PasswordMatchHash(candidate, salt, hash) {
			DebugPrintf("Password found after %d candidates", tried)
			return candidate, true, nil
		}
	}

	DebugPrintf("Password not found in %d candidates", tried)
	return "", false, scanner.Err()
}

// CrackProject attempts to recover the password of a project whose DPB
// record holds a hash.
func CrackProject(project *Project, wordlist io.Reader) (string, bool, error) {
	hashed, ok := project.Password().(PasswordHash)
	if !ok {
		return "", false, nil
	}
	return CrackPassword(hashed.Salt, hashed.Hash, wordlist)
}
