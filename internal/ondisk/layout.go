// Package ondisk is the external on-disk-structure collaborator of
// spec.md §6: byte-exact superblock/group-descriptor/inode/dirent/journal
// layouts, a block-device I/O manager, and the bitmap/block-iterate/
// allocator surface the five-pass engine consumes. It owns no
// consistency-checking policy — that lives in internal/engine,
// internal/journal and internal/htree.
package ondisk

const (
	// Signature is the magic value at Superblock.Signature.
	Signature = 0xEF53

	// RootInode is the well-known inode number of the root directory.
	RootInode = 2
	// BadBlocksInode collects blocks the device is known to have lost.
	BadBlocksInode = 1
	// FirstReservedInode is the lowest inode number a filesystem is free
	// to hand out to user files; 1..10 are reserved.
	FirstReservedInode = 11

	JournalInode  = 8
	LostFoundName = "lost+found"

	SuperblockOffset = 1024
	GroupDescSize    = 32
	DefaultInodeSize = 128

	// DirentHeaderSize is the fixed portion of a directory entry
	// preceding the name (inode, rec_len, name_len, file_type).
	DirentHeaderSize = 8
)

// Feature flags, subset relevant to the checker.
const (
	CompatDirIndex    = 0x20
	CompatHasJournal  = 0x4
	IncompatFiletype  = 0x2
	IncompatExtents   = 0x40
	IncompatFlexBG    = 0x200
	IncompatMetaBG    = 0x10
	ROCompatSparse    = 0x1
	ROCompatLargeFile = 0x2
)

// Superblock State values.
const (
	StateValid = 1
	StateError = 2
)

// Inode type bits (Inode.Mode high nibble).
const (
	ModeTypeMask   = 0xF000
	ModeFIFO       = 0x1000
	ModeCharDev    = 0x2000
	ModeDirectory  = 0x4000
	ModeBlockDev   = 0x6000
	ModeRegular    = 0x8000
	ModeSymlink    = 0xA000
	ModeSocket     = 0xC000
	PermissionBits = 0x0FFF
)

// Inode flags relevant to the checker.
const (
	InodeFlagIndex      = 0x00001000 // EXT2_INDEX_FL: HTree-indexed directory
	InodeFlagExtents    = 0x00080000
	InodeFlagEAInode    = 0x00200000
	InodeFlagInlineData = 0x10000000
)

// Direct/indirect block-pointer tree shape (§3, GLOSSARY).
const (
	DirectBlocks     = 12
	IndBlockIdx      = 12
	DIndBlockIdx     = 13
	TIndBlockIdx     = 14
	BlockPointersLen = 15
)

// Dirent file-type hints (on-disk, when IncompatFiletype is set).
const (
	FileTypeUnknown = 0
	FileTypeRegular = 1
	FileTypeDir     = 2
	FileTypeChrdev  = 3
	FileTypeBlkdev  = 4
	FileTypeFifo    = 5
	FileTypeSock    = 6
	FileTypeSymlink = 7
)

func divCeil(a, b int64) int64 {
	return (a + b - 1) / b
}
