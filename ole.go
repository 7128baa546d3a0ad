package vbaunlock

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"strings"
	"unicode/utf16"

	"github.com/pkg/errors"
)

// A minimal Compound File Binary reader which also knows where every
// stream byte lives in the file image, so a stream can be overwritten
// in place.

const (
	FREESECT      = 0xFFFFFFFF
	ENDOFCHAIN    = 0xFFFFFFFE
	FATSECT       = 0xFFFFFFFD
	NOSTREAM      = 0xFFFFFFFF
	OLE_SIGNATURE = "\xD0\xCF\x11\xE0\xA1\xB1\x1A\xE1"

	MAX_SECTOR_SHIFT = 12
	MAX_SECTORS      = 1 << 20

	DIRECTORY_ENTRY_SIZE  = 128
	DIRECTORY_SIZE_OFFSET = 120

	STGTY_STORAGE = 1
	STGTY_STREAM  = 2
	STGTY_ROOT    = 5
)

type OLEHeader struct {
	AbSig [8]byte
	Clid  [16]byte

	MinorVersion    uint16
	DllVersion      uint16
	ByteOrder       uint16
	SectorShift     uint16
	MiniSectorShift uint16
	Reserved        uint16

	Reserved1        uint32
	CsectDir         uint32
	CsectFat         uint32
	SectDirStart     uint32
	Signature        uint32
	MiniSectorCutoff uint32
	SectMiniFatStart uint32
	CsectMiniFat     uint32
	SectDifStart     uint32
	CsectDif         uint32

	SectFat [109]uint32
}

type DirectoryHeader struct {
	AB          [32]uint16
	CB          uint16
	Mse         byte
	Flags       byte
	SidLeftSib  uint32
	SidRightSib uint32
	SidChild    uint32
	ClsId       [16]byte
	UserFlags   uint32
	CreateTime  uint64
	ModifyTime  uint64
	SectStart   uint32
	Size        uint32
	PropType    uint16
}

type Directory struct {
	Header DirectoryHeader
	Index  uint32
	Name   string
}

func NewDirectory(data []byte, index uint32) (*Directory, error) {
	self := &Directory{Index: index}

	buffer := bytes.NewBuffer(data)
	err := binary.Read(buffer, binary.LittleEndian, &self.Header)
	if err != nil {
		return nil, err
	}

	name_length := int(self.Header.CB) / 2
	if name_length > len(self.Header.AB) {
		name_length = len(self.Header.AB)
	}
	self.Name = strings.TrimRight(
		string(utf16.Decode(self.Header.AB[:name_length])), "\x00")

	return self, nil
}

type OLEFile struct {
	data           []byte
	Header         OLEHeader
	SectorSize     int
	MiniSectorSize int
	FatSectors     []uint32
	Fat            []uint32
	MiniFat        []uint32
	Directory      []*Directory

	// Sectors of the directory, MiniFAT and ministream chains.
	dir_chain        []uint32
	minifat_chain    []uint32
	ministream_chain []uint32
}

func (self *OLEFile) sectorOffset(sector uint32) int {
	// The header occupies the first sector.
	return self.SectorSize * (int(sector) + 1)
}

func (self *OLEFile) ReadSector(sector uint32) []byte {
	start := self.sectorOffset(sector)

	to_read := self.SectorSize
	if start > len(self.data) {
		return nil
	}

	if start+to_read >= len(self.data) {
		to_read = len(self.data) - start
	}
	return self.data[start : start+to_read]
}

func (self *OLEFile) ReadFat(sector uint32) uint32 {
	if int(sector) >= len(self.Fat) {
		return ENDOFCHAIN
	}
	return self.Fat[sector]
}

func (self *OLEFile) ReadMiniFat(sector uint32) uint32 {
	if int(sector) >= len(self.MiniFat) {
		return ENDOFCHAIN
	}
	return self.MiniFat[sector]
}

// chain follows a sector chain through the given allocation table.
func (self *OLEFile) chain(
	start uint32, next func(sector uint32) uint32) ([]uint32, error) {
	seen := make(map[uint32]bool)
	result := []uint32{}

	for sector := start; sector != ENDOFCHAIN && sector != FREESECT; {
		if seen[sector] || len(result) > MAX_SECTORS {
			return nil, fmt.Errorf(
				"infinite loop detected at %v starting at %v", sector, start)
		}
		seen[sector] = true
		result = append(result, sector)
		sector = next(sector)
	}
	return result, nil
}

func (self *OLEFile) ReadChain(start uint32) ([]byte, error) {
	sectors, err := self.chain(start, self.ReadFat)
	if err != nil {
		return nil, err
	}

	result := []byte{}
	for _, sector := range sectors {
		result = append(result, self.ReadSector(sector)...)
	}
	return result, nil
}

func NewOLEFile(data []byte) (*OLEFile, error) {
	if len(data) < 512 ||
		string(data[:8]) != OLE_SIGNATURE {
		return nil, errors.New("Invalid signature")
	}

	self := OLEFile{data: data}
	buffer := bytes.NewBuffer(data)
	err := binary.Read(buffer, binary.LittleEndian, &self.Header)
	if err != nil {
		return nil, err
	}

	if self.Header.SectorShift > MAX_SECTOR_SHIFT {
		return nil, fmt.Errorf(
			"Sector size too large: %v", self.Header.SectorShift)
	}

	self.SectorSize = 1 << self.Header.SectorShift
	if self.SectorSize < 128 {
		return nil, fmt.Errorf(
			"Sector size too small: %v", self.SectorSize)
	}

	// Mini sectors must tile a regular sector.
	if self.Header.MiniSectorShift > self.Header.SectorShift {
		return nil, fmt.Errorf(
			"Mini sector shift %v exceeds sector shift %v",
			self.Header.MiniSectorShift, self.Header.SectorShift)
	}

	self.MiniSectorSize = 1 << self.Header.MiniSectorShift
	if (len(data)-self.SectorSize)%self.SectorSize != 0 {
		DebugPrintf("Last sector has invalid size\n")
	}

	for _, sect := range self.Header.SectFat {
		if sect != FREESECT {
			self.FatSectors = append(self.FatSectors, sect)
		}
	}

	// load any DIF sectors
	sector := self.Header.SectDifStart
	seen := make(map[uint32]bool)
	for sector != FREESECT && sector != ENDOFCHAIN {
		dif_values := make([]uint32, self.SectorSize/4)
		err := binary.Read(bytes.NewBuffer(self.ReadSector(sector)),
			binary.LittleEndian, dif_values)
		if err != nil {
			return nil, err
		}

		// the last entry is actually a pointer to next DIF
		next := dif_values[len(dif_values)-1]
		for _, value := range dif_values[:len(dif_values)-1] {
			if value != FREESECT {
				self.FatSectors = append(self.FatSectors, value)
			}
		}

		if seen[next] || len(seen) > MAX_SECTORS {
			return nil, fmt.Errorf(
				"infinite loop detected at %v to %v starting at DIF",
				sector, next)
		}

		seen[next] = true
		sector = next
	}

	// load the FAT
	for _, fat_sect := range self.FatSectors {
		sect_longs := make([]uint32, self.SectorSize/4)
		err := binary.Read(bytes.NewBuffer(self.ReadSector(fat_sect)),
			binary.LittleEndian, sect_longs)
		if err != nil {
			return nil, err
		}

		self.Fat = append(self.Fat, sect_longs...)
	}

	// get the list of directory sectors
	self.dir_chain, err = self.chain(self.Header.SectDirStart, self.ReadFat)
	if err != nil {
		return nil, err
	}

	dir_buffer := []byte{}
	for _, sector := range self.dir_chain {
		dir_buffer = append(dir_buffer, self.ReadSector(sector)...)
	}

	for directory_index := 0; (directory_index+1)*DIRECTORY_ENTRY_SIZE <= len(dir_buffer); directory_index += 1 {
		dir_obj, err := NewDirectory(
			dir_buffer[directory_index*DIRECTORY_ENTRY_SIZE:],
			uint32(directory_index))
		if err != nil {
			return nil, err
		}
		self.Directory = append(self.Directory, dir_obj)
	}

	if len(self.Directory) == 0 {
		return nil, errors.New("Directory not found")
	}

	// The ministream is stored as a regular chain starting at the root
	// entry. The MiniFat locating sectors within it is also a regular
	// chain, beginning at the sector named in the header.
	root_directory := self.Directory[0]
	if root_directory.Header.SectStart != ENDOFCHAIN {
		self.ministream_chain, err = self.chain(
			root_directory.Header.SectStart, self.ReadFat)
		if err != nil {
			return nil, err
		}

		if len(self.ministream_chain)*self.SectorSize < int(root_directory.Header.Size) {
			return nil, fmt.Errorf(
				"specified size is larger than actual stream length %v",
				len(self.ministream_chain)*self.SectorSize)
		}

		self.minifat_chain, err = self.chain(
			self.Header.SectMiniFatStart, self.ReadFat)
		if err != nil {
			return nil, err
		}

		data := []byte{}
		for _, sector := range self.minifat_chain {
			data = append(data, self.ReadSector(sector)...)
		}

		for i := 0; i+self.SectorSize <= len(data); i += self.SectorSize {
			chunk := make([]uint32, self.SectorSize/4)
			err := binary.Read(bytes.NewBuffer(data[i:i+self.SectorSize]),
				binary.LittleEndian, &chunk)
			if err != nil {
				return nil, err
			}

			self.MiniFat = append(self.MiniFat, chunk...)
		}
	}

	return &self, nil
}

// children returns the entries of the red-black tree hanging off the
// storage at index.
func (self *OLEFile) children(index uint32) []*Directory {
	result := []*Directory{}
	seen := make(map[uint32]bool)

	var walk func(sid uint32)
	walk = func(sid uint32) {
		if sid == NOSTREAM || int(sid) >= len(self.Directory) || seen[sid] {
			return
		}
		seen[sid] = true

		d := self.Directory[sid]
		walk(d.Header.SidLeftSib)
		result = append(result, d)
		walk(d.Header.SidRightSib)
	}

	if int(index) < len(self.Directory) {
		walk(self.Directory[index].Header.SidChild)
	}
	return result
}

// FindStreamByPath resolves a path like "/_VBA_PROJECT_CUR/PROJECT".
// Names compare case insensitively, as MS-CFB requires.
func (self *OLEFile) FindStreamByPath(path string) (*Directory, error) {
	current := self.Directory[0]

	for _, component := range strings.Split(strings.Trim(path, "/"), "/") {
		var found *Directory
		for _, child := range self.children(current.Index) {
			if strings.EqualFold(child.Name, component) {
				found = child
				break
			}
		}

		if found == nil {
			return nil, errors.Wrapf(ErrNotFound, "stream %v", path)
		}
		current = found
	}

	if current.Header.Mse != STGTY_STREAM {
		return nil, errors.Errorf("%v is not a stream", path)
	}
	return current, nil
}

// isMini tells if a stream of this size lives in the ministream.
func (self *OLEFile) isMini(size uint32) bool {
	return size < self.Header.MiniSectorCutoff
}

// streamSectors returns the chain of the stream, in mini sectors when
// the stream lives in the ministream.
func (self *OLEFile) streamSectors(d *Directory) ([]uint32, error) {
	if self.isMini(d.Header.Size) {
		return self.chain(d.Header.SectStart, self.ReadMiniFat)
	}
	return self.chain(d.Header.SectStart, self.ReadFat)
}

// streamRanges returns the file offsets of every sector holding the
// stream, each of the given length.
func (self *OLEFile) streamRanges(d *Directory) ([]int, int, error) {
	sectors, err := self.streamSectors(d)
	if err != nil {
		return nil, 0, err
	}

	if !self.isMini(d.Header.Size) {
		result := make([]int, 0, len(sectors))
		for _, sector := range sectors {
			result = append(result, self.sectorOffset(sector))
		}
		return result, self.SectorSize, nil
	}

	per_sector := self.SectorSize / self.MiniSectorSize
	result := make([]int, 0, len(sectors))
	for _, mini_sector := range sectors {
		index := int(mini_sector) / per_sector
		if index >= len(self.ministream_chain) {
			return nil, 0, fmt.Errorf(
				"mini sector %v is outside the ministream", mini_sector)
		}

		result = append(result,
			self.sectorOffset(self.ministream_chain[index])+
				(int(mini_sector)%per_sector)*self.MiniSectorSize)
	}
	return result, self.MiniSectorSize, nil
}

func (self *OLEFile) GetStream(d *Directory) ([]byte, error) {
	offsets, length, err := self.streamRanges(d)
	if err != nil {
		return nil, err
	}

	result := make([]byte, 0, len(offsets)*length)
	for _, offset := range offsets {
		end := offset + length
		if end > len(self.data) {
			end = len(self.data)
		}
		if offset < end {
			result = append(result, self.data[offset:end]...)
		}
	}

	return result[:uint32_min(d.Header.Size, uint32(len(result)))], nil
}

func (self *OLEFile) OpenStreamByPath(path string) ([]byte, error) {
	d, err := self.FindStreamByPath(path)
	if err != nil {
		return nil, err
	}
	return self.GetStream(d)
}

// WriteStream overwrites the stream in place. The new content must fit
// the sectors the stream already owns and must stay on the same side of
// the ministream cutoff. Sectors no longer needed are freed. Returns the
// updated file image.
func (self *OLEFile) WriteStream(d *Directory, content []byte) ([]byte, error) {
	if self.isMini(d.Header.Size) != self.isMini(uint32(len(content))) {
		return nil, errors.Wrapf(ErrStreamRelocation,
			"%v would move between mini and regular storage", d.Name)
	}

	mini := self.isMini(d.Header.Size)
	sectors, err := self.streamSectors(d)
	if err != nil {
		return nil, err
	}

	offsets, length, err := self.streamRanges(d)
	if err != nil {
		return nil, err
	}

	if len(content) > len(offsets)*length {
		return nil, errors.Wrapf(ErrStreamRelocation,
			"%v needs %d bytes but only %d are allocated",
			d.Name, len(content), len(offsets)*length)
	}

	remaining := content
	for _, offset := range offsets {
		end := offset + length
		if end > len(self.data) {
			return nil, fmt.Errorf("sector at %v is truncated", offset)
		}

		n := copy(self.data[offset:end], remaining)
		remaining = remaining[n:]

		// Clear whatever the old content left behind.
		for i := offset + n; i < end; i++ {
			self.data[i] = 0
		}
	}

	// An empty stream keeps its first sector.
	needed := (len(content) + length - 1) / length
	if needed == 0 {
		needed = 1
	}
	if needed < len(sectors) {
		err := self.setAllocation(mini, sectors[needed-1], ENDOFCHAIN)
		if err != nil {
			return nil, err
		}
		for _, sector := range sectors[needed:] {
			err := self.setAllocation(mini, sector, FREESECT)
			if err != nil {
				return nil, err
			}
		}
		DebugPrintf("Freed %d sectors of %v", len(sectors)-needed, d.Name)
	}

	entry_offset, err := self.directoryOffset(d.Index)
	if err != nil {
		return nil, err
	}
	binary.LittleEndian.PutUint32(
		self.data[entry_offset+DIRECTORY_SIZE_OFFSET:], uint32(len(content)))
	d.Header.Size = uint32(len(content))

	DebugPrintf("Rewrote stream %v with %d bytes", d.Name, len(content))

	return self.data, nil
}

func (self *OLEFile) directoryOffset(index uint32) (int, error) {
	per_sector := self.SectorSize / DIRECTORY_ENTRY_SIZE
	chain_index := int(index) / per_sector
	if chain_index >= len(self.dir_chain) {
		return 0, fmt.Errorf("directory entry %v out of range", index)
	}

	return self.sectorOffset(self.dir_chain[chain_index]) +
		(int(index)%per_sector)*DIRECTORY_ENTRY_SIZE, nil
}

// setAllocation updates the FAT or MiniFAT entry of sector both in the
// image and in the loaded table.
func (self *OLEFile) setAllocation(mini bool, sector, value uint32) error {
	table, table_sectors := self.Fat, self.FatSectors
	if mini {
		table, table_sectors = self.MiniFat, self.minifat_chain
	}

	per_sector := uint32(self.SectorSize / 4)
	index := int(sector / per_sector)
	if index >= len(table_sectors) || int(sector) >= len(table) {
		return fmt.Errorf("sector %v has no allocation entry", sector)
	}

	offset := self.sectorOffset(table_sectors[index]) +
		int(sector%per_sector)*4
	if offset+4 > len(self.data) {
		return fmt.Errorf("allocation entry of sector %v is truncated", sector)
	}

	binary.LittleEndian.PutUint32(self.data[offset:], value)
	table[sector] = value
	return nil
}
