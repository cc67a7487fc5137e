package ondisk

import (
	"bytes"
	"encoding/binary"

	"github.com/pkg/errors"
)

// Journal block types and the shared 12-byte header magic (§6). All
// journal fields are big-endian on disk, unlike the rest of the
// filesystem.
const (
	JournalMagic = 0xc03b3998

	JournalDescriptorBlock = 1
	JournalCommitBlock     = 2
	JournalSuperblockV1    = 3
	JournalSuperblockV2    = 4
	JournalRevokeBlock     = 5
)

// Journal tag flags (§4.7).
const (
	JournalFlagEscape   = 1
	JournalFlagSameUUID = 2
	JournalFlagDeleted  = 4
	JournalFlagLastTag  = 8
)

// BlockHeader is the common 12-byte prefix of every journal block.
type BlockHeader struct {
	Magic    uint32
	BlockType uint32
	Sequence uint32
}

// JournalSuperblock is the journal's own superblock (§6), read from
// the journal device/inode's first block.
type JournalSuperblock struct {
	BlockHeader
	BlockSize         uint32
	MaxLen            uint32
	First             uint32
	SequenceField     uint32
	Start             uint32
	ErrNo             int32
	FeatureCompat     uint32
	FeatureIncompat   uint32
	FeatureROCompat   uint32
	UUID              [16]byte
	NrUsers           uint32
	DynSuper          uint32
	MaxTransaction    uint32
	MaxTransData      uint32
	_                 [44]byte
	Users             [16 * 48]byte
}

// DecodeJournalSuperblock parses a big-endian journal superblock.
func DecodeJournalSuperblock(buf []byte) (*JournalSuperblock, error) {
	jsb := new(JournalSuperblock)
	if err := binary.Read(bytes.NewReader(buf), binary.BigEndian, jsb); err != nil {
		return nil, errors.Wrap(err, "decoding journal superblock")
	}
	if jsb.Magic != JournalMagic {
		return nil, errors.New("journal superblock missing magic number")
	}
	return jsb, nil
}

// EncodeJournalSuperblock serializes jsb back to big-endian bytes.
func EncodeJournalSuperblock(jsb *JournalSuperblock) ([]byte, error) {
	buf := new(bytes.Buffer)
	if err := binary.Write(buf, binary.BigEndian, jsb); err != nil {
		return nil, errors.Wrap(err, "encoding journal superblock")
	}
	return buf.Bytes(), nil
}

// DescriptorTag is one (block_nr, flags[, uuid]) entry following a
// descriptor block's header (§4.7).
type DescriptorTag struct {
	BlockNr uint32
	Flags   uint32
	UUID    [16]byte // present only when SAME_UUID is clear
}

// TagSize returns the on-disk size of a tag, which varies with
// whether the UUID is repeated.
func (t *DescriptorTag) TagSize() int {
	if t.Flags&JournalFlagSameUUID != 0 {
		return 8
	}
	return 24
}

// DecodeBlockHeader reads the common 12-byte header at the start of buf.
func DecodeBlockHeader(buf []byte) (*BlockHeader, error) {
	h := new(BlockHeader)
	if err := binary.Read(bytes.NewReader(buf[:12]), binary.BigEndian, h); err != nil {
		return nil, err
	}
	if h.Magic != JournalMagic {
		return nil, errors.New("journal block missing magic number")
	}
	return h, nil
}

// DecodeDescriptorTags parses the tag array following a descriptor
// block's 12-byte header, stopping at LAST_TAG or the block boundary.
func DecodeDescriptorTags(buf []byte, blockSize int) ([]DescriptorTag, error) {
	var tags []DescriptorTag
	off := 12

	for off+8 <= blockSize {
		var tag DescriptorTag
		tag.BlockNr = binary.BigEndian.Uint32(buf[off:])
		tag.Flags = binary.BigEndian.Uint32(buf[off+4:])
		off += 8

		if tag.Flags&JournalFlagSameUUID == 0 {
			if off+16 > blockSize {
				return tags, errors.New("descriptor tag uuid runs past block")
			}
			copy(tag.UUID[:], buf[off:off+16])
			off += 16
		}

		tags = append(tags, tag)

		if tag.Flags&JournalFlagLastTag != 0 {
			break
		}
	}

	return tags, nil
}

// DecodeRevokeBlock parses a revoke block's body: a 4-byte byte count
// (covering the 12-byte header and the count field itself, so the
// records start at offset 16) followed by that many bytes of
// big-endian block numbers (64-bit if the journal's 64BIT feature is
// set; this checker only supports the common 32-bit block-number
// revoke format).
func DecodeRevokeBlock(buf []byte) ([]uint32, error) {
	count := binary.BigEndian.Uint32(buf[12:16])
	if int(count) > len(buf) {
		return nil, errors.New("revoke block count exceeds block size")
	}

	var blocks []uint32
	for off := 16; off+4 <= int(count); off += 4 {
		blocks = append(blocks, binary.BigEndian.Uint32(buf[off:]))
	}
	return blocks, nil
}
