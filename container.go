package vbaunlock

import (
	"archive/zip"
	"bytes"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/pkg/errors"
	"github.com/richardlehane/mscfb"
)

const (
	// The vba project inside an xlsm or xlsb file.
	ZIP_VBA_PATH = "xl/vbaProject.bin"

	// The PROJECT stream inside an xls file.
	CFB_VBA_PATH = "/_VBA_PROJECT_CUR/PROJECT"

	// The PROJECT stream inside vbaProject.bin.
	PROJECT_PATH = "/PROJECT"

	UNLOCKED_SUFFIX  = "_unlocked"
	DEFAULT_MAX_SIZE = 100 * 1024 * 1024
)

type ContainerKind int

const (
	CONTAINER_CFB ContainerKind = iota
	CONTAINER_ZIP
)

func (self ContainerKind) String() string {
	if self == CONTAINER_ZIP {
		return "zip"
	}
	return "cfb"
}

type Options struct {
	// Files larger than this are refused.
	MaxSize int64

	// Appended to the stem of the output file when not editing in place.
	Suffix string
}

func DefaultOptions() Options {
	return Options{
		MaxSize: DEFAULT_MAX_SIZE,
		Suffix:  UNLOCKED_SUFFIX,
	}
}

// ContainerKindForFile picks the container format from the extension.
func ContainerKindForFile(filename string) (ContainerKind, error) {
	switch strings.ToLower(strings.TrimPrefix(filepath.Ext(filename), ".")) {
	case "xls":
		return CONTAINER_CFB, nil
	case "xlsm", "xlsb":
		return CONTAINER_ZIP, nil
	case "xlsx":
		return 0, &XlsxError{Filename: filename}
	}
	return 0, &NotExcelError{Filename: filename}
}

func readFile(filename string, max_size int64) ([]byte, error) {
	fd, err := os.Open(filename)
	if err != nil {
		return nil, err
	}
	defer fd.Close()

	stat, err := fd.Stat()
	if err != nil {
		return nil, err
	}

	if max_size > 0 && stat.Size() > max_size {
		return nil, errors.Errorf(
			"%v is %d bytes, larger than the limit of %d",
			filename, stat.Size(), max_size)
	}

	return io.ReadAll(fd)
}

// readCFBStream reads a stream from a compound file image. Path
// components compare case insensitively.
func readCFBStream(data []byte, path string) ([]byte, error) {
	doc, err := mscfb.New(bytes.NewReader(data))
	if err != nil {
		return nil, errors.Wrap(err, "opening compound file")
	}

	components := strings.Split(strings.Trim(path, "/"), "/")
	name := components[len(components)-1]
	storage := components[:len(components)-1]

	for entry, err := doc.Next(); err == nil; entry, err = doc.Next() {
		if !strings.EqualFold(entry.Name, name) ||
			!pathEqual(entry.Path, storage) {
			continue
		}

		buf := make([]byte, entry.Size)
		n, err := io.ReadFull(doc, buf)
		if err != nil && err != io.ErrUnexpectedEOF {
			return nil, errors.Wrapf(err, "reading %v", path)
		}
		return buf[:n], nil
	}

	return nil, errors.Wrapf(ErrNoVBAProject, "stream %v", path)
}

func pathEqual(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if !strings.EqualFold(a[i], b[i]) {
			return false
		}
	}
	return true
}

func readZipEntry(data []byte, name string, max_size int64) ([]byte, error) {
	archive, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, errors.Wrap(err, "opening zip")
	}

	for _, f := range archive.File {
		if f.Name != name {
			continue
		}

		if max_size > 0 && f.UncompressedSize64 > uint64(max_size) {
			return nil, errors.Errorf(
				"%v is %d bytes, larger than the limit of %d",
				name, f.UncompressedSize64, max_size)
		}

		reader, err := f.Open()
		if err != nil {
			return nil, errors.Wrapf(err, "opening %v", name)
		}
		defer reader.Close()

		result, err := io.ReadAll(reader)
		if err != nil {
			return nil, errors.Wrapf(err, "reading %v", name)
		}
		return result, nil
	}

	return nil, errors.Wrapf(ErrNoVBAProject, "zip entry %v", name)
}

// ReadProjectStream extracts the raw PROJECT stream from a file image.
func ReadProjectStream(data []byte, kind ContainerKind, options Options) ([]byte, error) {
	if kind == CONTAINER_CFB {
		return readCFBStream(data, CFB_VBA_PATH)
	}

	vba, err := readZipEntry(data, ZIP_VBA_PATH, options.MaxSize)
	if err != nil {
		return nil, err
	}
	return readCFBStream(vba, PROJECT_PATH)
}

// ReadProjectFile loads an Excel file and parses its PROJECT stream.
func ReadProjectFile(filename string, options Options) (*Project, error) {
	kind, err := ContainerKindForFile(filename)
	if err != nil {
		return nil, err
	}

	data, err := readFile(filename, options.MaxSize)
	if err != nil {
		return nil, err
	}

	stream, err := ReadProjectStream(data, kind, options)
	if err != nil {
		return nil, errors.Wrap(err, filename)
	}

	project, err := ParseProject(stream)
	if err != nil {
		return nil, errors.Wrap(err, filename)
	}

	DebugDump("project", project)
	return project, nil
}

// unlockCFB rewrites the PROJECT stream at path inside a compound file
// image.
func unlockCFB(data []byte, path string) ([]byte, error) {
	ole, err := NewOLEFile(data)
	if err != nil {
		return nil, errors.Wrap(err, "opening compound file")
	}

	directory, err := ole.FindStreamByPath(path)
	if err != nil {
		if errors.Cause(err) == ErrNotFound {
			return nil, errors.Wrapf(ErrNoVBAProject, "stream %v", path)
		}
		return nil, err
	}

	stream, err := ole.GetStream(directory)
	if err != nil {
		return nil, err
	}

	unlocked, err := UnlockProjectStream(bytes.NewReader(stream))
	if err != nil {
		return nil, err
	}

	return ole.WriteStream(directory, unlocked)
}

// rewriteZip copies every entry of the archive unchanged except name,
// which is replaced by content.
func rewriteZip(data []byte, name string, content []byte) ([]byte, error) {
	archive, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, errors.Wrap(err, "opening zip")
	}

	buffer := &bytes.Buffer{}
	writer := zip.NewWriter(buffer)
	writer.SetComment(archive.Comment)

	for _, f := range archive.File {
		if f.Name != name {
			err = writer.Copy(f)
			if err != nil {
				return nil, errors.Wrapf(err, "copying %v", f.Name)
			}
			continue
		}

		header := &zip.FileHeader{
			Name:     f.Name,
			Method:   zip.Deflate,
			Modified: f.Modified,
		}
		out, err := writer.CreateHeader(header)
		if err != nil {
			return nil, errors.Wrapf(err, "creating %v", f.Name)
		}

		_, err = out.Write(content)
		if err != nil {
			return nil, errors.Wrapf(err, "writing %v", f.Name)
		}
	}

	err = writer.Close()
	if err != nil {
		return nil, err
	}
	return buffer.Bytes(), nil
}

// UnlockImage returns a copy of the file image with the protection
// records of its PROJECT stream replaced.
func UnlockImage(data []byte, kind ContainerKind, options Options) ([]byte, error) {
	image := append([]byte{}, data...)

	if kind == CONTAINER_CFB {
		return unlockCFB(image, CFB_VBA_PATH)
	}

	vba, err := readZipEntry(image, ZIP_VBA_PATH, options.MaxSize)
	if err != nil {
		return nil, err
	}

	vba, err = unlockCFB(vba, PROJECT_PATH)
	if err != nil {
		return nil, errors.Wrap(err, ZIP_VBA_PATH)
	}

	return rewriteZip(image, ZIP_VBA_PATH, vba)
}

// UnlockedFilename gives the name of the copy written alongside the
// original, e.g. book.xls becomes book_unlocked.xls.
func UnlockedFilename(filename, suffix string) string {
	ext := filepath.Ext(filename)
	return strings.TrimSuffix(filename, ext) + suffix + ext
}

// RemoveProtection strips the protection from an Excel file. Unless
// inplace is set the result is written next to the original. Returns
// the name of the file written.
func RemoveProtection(filename string, inplace bool, options Options) (string, error) {
	kind, err := ContainerKindForFile(filename)
	if err != nil {
		return "", err
	}

	data, err := readFile(filename, options.MaxSize)
	if err != nil {
		return "", err
	}

	unlocked, err := UnlockImage(data, kind, options)
	if err != nil {
		return "", errors.Wrap(err, filename)
	}

	output := filename
	if !inplace {
		output = UnlockedFilename(filename, options.Suffix)
	}

	err = writeFileAtomic(output, unlocked)
	if err != nil {
		return "", errors.Wrapf(err, "writing %v", output)
	}

	logger.Info().Str("file", output).Str("container", kind.String()).
		Msg("Removed VBA project protection")

	return output, nil
}

func writeFileAtomic(filename string, data []byte) error {
	tmp, err := os.CreateTemp(filepath.Dir(filename), ".vbaunlock-*")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())

	err = tmp.Chmod(0644)
	if err == nil {
		_, err = tmp.Write(data)
	}
	if err != nil {
		tmp.Close()
		return err
	}

	err = tmp.Close()
	if err != nil {
		return err
	}

	return os.Rename(tmp.Name(), filename)
}
