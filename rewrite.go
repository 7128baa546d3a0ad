package vbaunlock

import (
	"bufio"
	"bytes"
	"io"
)

// Replacement lines for removing protection. The values were
// encrypted with seed 0xB9 and the project key of the all zero project
// id and decode to protection state 0, no password and visible. They
// are the shortest values the grammar allows.
const (
	UNLOCKED_ID  = "ID=\"{00000000-0000-0000-0000-000000000000}\"\r\n"
	UNLOCKED_CMG = "CMG=\"B9BB156319631963196319\"\r\n"
	UNLOCKED_DPB = "DPB=\"B9BB156616661666\"\r\n"
	UNLOCKED_GC  = "GC=\"B9BB156616661699\"\r\n"
)

// UnlockProjectStream copies a PROJECT stream replacing the project id
// and the CMG, DPB and GC lines with the fixed unlocked values. Every
// other line is copied unchanged, including its terminator. The
// stream is not parsed, so it need not be valid.
func UnlockProjectStream(project io.Reader) ([]byte, error) {
	reader := bufio.NewReader(project)
	output := bytes.Buffer{}

	for {
		line, err := reader.ReadBytes('\n')
		if len(line) > 0 {
			output.Write(unlockLine(line))
		}

		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, err
		}
	}

	return output.Bytes(), nil
}

func unlockLine(line []byte) []byte {
	if len(line) < 5 {
		return line
	}

	switch {
	case bytes.HasPrefix(line, []byte("ID=\"{")):
		return []byte(UNLOCKED_ID)
	case bytes.HasPrefix(line, []byte("CMG=\"")):
		return []byte(UNLOCKED_CMG)
	case bytes.HasPrefix(line, []byte("DPB=\"")):
		return []byte(UNLOCKED_DPB)
	case bytes.HasPrefix(line, []byte("GC=\"")):
		return []byte(UNLOCKED_GC)
	}
	return line
}
