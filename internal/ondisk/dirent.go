package ondisk

import (
	"encoding/binary"

	"github.com/pkg/errors"
)

// Dirent is one variable-length directory entry record, decoded in
// place from a directory block buffer (§3). RecLen/NameLen/FileType
// and Name are all copied out of the owning block's buffer.
type Dirent struct {
	Offset   int // byte offset of this entry within its block
	Inode    uint32
	RecLen   uint16
	NameLen  uint8
	FileType uint8
	Name     string
}

// ErrDirentOverrun is returned by DecodeDirent when an entry's header
// or rec_len would run past the end of the block.
var ErrDirentOverrun = errors.New("directory entry overruns block")

// DecodeDirent parses one entry at offset within block, which must
// have length blockSize. hasFiletype controls whether the byte after
// name_len is read as FileType (IncompatFiletype feature); without it
// that byte is ignored and name_len is the single low byte.
func DecodeDirent(block []byte, offset int, hasFiletype bool) (*Dirent, error) {
	if offset < 0 || offset+DirentHeaderSize > len(block) {
		return nil, ErrDirentOverrun
	}

	d := &Dirent{Offset: offset}
	d.Inode = binary.LittleEndian.Uint32(block[offset:])
	d.RecLen = binary.LittleEndian.Uint16(block[offset+4:])
	d.NameLen = block[offset+6]
	if hasFiletype {
		d.FileType = block[offset+7]
	}

	if d.RecLen < DirentHeaderSize {
		return d, errors.New("rec_len shorter than directory entry header")
	}
	if offset+int(d.RecLen) > len(block) {
		return d, ErrDirentOverrun
	}
	if int(DirentHeaderSize)+int(d.NameLen) > int(d.RecLen) {
		return d, errors.New("name_len does not fit within rec_len")
	}

	nameEnd := offset + DirentHeaderSize + int(d.NameLen)
	if nameEnd > len(block) {
		return d, ErrDirentOverrun
	}
	d.Name = string(block[offset+DirentHeaderSize : nameEnd])

	return d, nil
}

// EncodeDirent writes d back into block at d.Offset.
func EncodeDirent(block []byte, d *Dirent, hasFiletype bool) {
	o := d.Offset
	binary.LittleEndian.PutUint32(block[o:], d.Inode)
	binary.LittleEndian.PutUint16(block[o+4:], d.RecLen)
	block[o+6] = d.NameLen
	if hasFiletype {
		block[o+7] = d.FileType
	} else {
		block[o+7] = 0
	}
	copy(block[o+DirentHeaderSize:], d.Name)
	// zero any trailer between the name and the next record so stale
	// bytes from a previous, longer name never leak into a salvage scan.
	for i := o + DirentHeaderSize + len(d.Name); i < o+int(d.RecLen); i++ {
		block[i] = 0
	}
}

// MinRecLen returns the minimum legal rec_len for an entry with the
// given name length: header + name, rounded up to a multiple of 4,
// with an 8-byte floor (§3 invariants).
func MinRecLen(nameLen int) uint16 {
	n := DirentHeaderSize + nameLen
	n = (n + 3) &^ 3
	if n < DirentHeaderSize {
		n = DirentHeaderSize
	}
	return uint16(n)
}

// IterateDirents walks every entry in block front-to-back, invoking fn
// with the decoded entry. fn returns (keepGoing, err); a decode error
// at any position stops iteration and is returned to the caller so
// pass2 can offer its Salvage prompt at the right spot.
func IterateDirents(block []byte, hasFiletype bool, fn func(d *Dirent) (bool, error)) error {
	offset := 0
	for offset < len(block) {
		d, err := DecodeDirent(block, offset, hasFiletype)
		if err != nil {
			return err
		}
		keepGoing, err := fn(d)
		if err != nil || !keepGoing {
			return err
		}
		offset += int(d.RecLen)
	}
	return nil
}
