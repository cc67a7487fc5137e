// Package htree rebuilds the hash-indexed directory structure
// (spec.md §4.8) for directories flagged during pass1/pass2 as having
// an inconsistent or unusable index, grounded on the original
// rehash.c/dx_dirinfo.c algorithm: read every leaf-block entry linearly
// (ignoring the existing, possibly-corrupt index), compute each name's
// hash, and write the entries back out in hash order as a plain linear
// directory with INDEX_FL cleared, rather than regenerating a dx_root
// tree.
package htree

import (
	"sort"

	"github.com/pkg/errors"

	"github.com/vorteil/e2fsck/internal/ondisk"
)

// HashVersion identifies which hash function a directory's index was
// built with (superblock DefHashVersion, or an inode-local override).
type HashVersion uint8

const (
	HashVersionLegacy HashVersion = 0
	HashVersionHalfMD4 HashVersion = 1
	HashVersionTea     HashVersion = 2
)

// hashEntry is one directory entry's computed hash plus enough to
// relocate it into the rebuilt leaf blocks, mirroring rehash.c's
// struct hash_entry (minus the C version's realloc-growth array,
// since Go's slice append already amortizes that).
type hashEntry struct {
	Hash      uint32
	MinorHash uint32
	Ino       uint32
	FileType  uint8
	Name      string
}

// Rebuild reads every entry across a directory's data blocks, hashes
// each name, sorts by (hash, minor_hash, name) the way hash_cmp does,
// and rewrites the directory as a linear sequence of leaf blocks in
// hash order, with the synthetic "."/".." pair restored at the head
// of block 0. The caller is responsible for clearing INDEX_FL, since
// this never writes a dx_root/dx_entry tree: the result is a plain
// linear directory, readable by anything whether or not it honors
// the hashed-index feature.
func Rebuild(dev ondisk.Device, sb *ondisk.Superblock, ino int64, in *ondisk.Inode, version HashVersion, seed [4]uint32) error {
	entries, blocks, dotDotIno, err := collectEntries(dev, sb, in)
	if err != nil {
		return errors.Wrap(err, "htree: collecting directory entries")
	}

	for i := range entries {
		entries[i].Hash, entries[i].MinorHash = hashName(version, seed, entries[i].Name)
	}

	sort.Slice(entries, func(i, j int) bool {
		if entries[i].Hash != entries[j].Hash {
			return entries[i].Hash < entries[j].Hash
		}
		if entries[i].MinorHash != entries[j].MinorHash {
			return entries[i].MinorHash < entries[j].MinorHash
		}
		return entries[i].Name < entries[j].Name
	})

	return writeLinearDir(dev, sb, blocks, uint32(ino), dotDotIno, entries, sb.HasFeatureIncompat(ondisk.IncompatFiletype))
}

// collectEntries reads every non-dot entry across the directory's
// blocks for rehashing, capturing the existing ".." target (§4.8 step
// 6 rewrites it unchanged; step 2 only drops the dot entries from the
// set being hashed and re-laid-out) so writeLinearDir can re-emit it
// at the head of block 0. Falls back to the root inode if no ".."
// entry was found, matching pass2's own PR_2_LINK_DOT_DOT fallback.
func collectEntries(dev ondisk.Device, sb *ondisk.Superblock, in *ondisk.Inode) ([]hashEntry, []int64, uint32, error) {
	blocks, err := ondisk.DirBlockList(dev, sb, in)
	if err != nil {
		return nil, nil, 0, err
	}

	hasFT := sb.HasFeatureIncompat(ondisk.IncompatFiletype)
	var entries []hashEntry
	dotDotIno := uint32(ondisk.RootInode)

	err = ondisk.DirIterate(dev, sb, blocks, hasFT, func(_ int, _ []byte, d *ondisk.Dirent) (bool, error) {
		if d.Inode == 0 {
			return true, nil
		}
		if d.Name == "." {
			return true, nil
		}
		if d.Name == ".." {
			dotDotIno = d.Inode
			return true, nil
		}
		entries = append(entries, hashEntry{Ino: d.Inode, FileType: d.FileType, Name: d.Name})
		return true, nil
	})
	return entries, blocks, dotDotIno, err
}

// writeLinearDir lays the synthetic "."/".." pair at the head of
// block 0, then every hashed entry after them across the directory's
// existing blocks in order, packing as many as fit per block; any
// trailing space in the last block becomes one free entry. Directory
// growth is not handled: if the entries need more blocks than the
// directory already has, writeLinearDir returns an error (rehashing
// never changes the entry count).
func writeLinearDir(dev ondisk.Device, sb *ondisk.Superblock, blocks []int64, selfIno, dotDotIno uint32, entries []hashEntry, hasFT bool) error {
	blockSize := int(sb.BlockSize())
	bi := 0
	offset := 0
	buf := make([]byte, blockSize)

	flushBlock := func() error {
		if offset < blockSize {
			free := &ondisk.Dirent{Offset: offset, Inode: 0, RecLen: uint16(blockSize - offset)}
			ondisk.EncodeDirent(buf, free, hasFT)
		}
		if bi >= len(blocks) {
			return errors.New("htree: rehashed directory needs more blocks than it has")
		}
		if err := dev.WriteAt(buf, blocks[bi]*sb.BlockSize()); err != nil {
			return err
		}
		bi++
		offset = 0
		buf = make([]byte, blockSize)
		return nil
	}

	dot := &ondisk.Dirent{Offset: 0, Inode: selfIno, RecLen: 12, NameLen: 1, FileType: ondisk.FileTypeDir, Name: "."}
	ondisk.EncodeDirent(buf, dot, hasFT)
	offset += 12

	dotDot := &ondisk.Dirent{Offset: offset, Inode: dotDotIno, RecLen: 12, NameLen: 2, FileType: ondisk.FileTypeDir, Name: ".."}
	ondisk.EncodeDirent(buf, dotDot, hasFT)
	offset += 12

	for _, e := range entries {
		need := int(ondisk.MinRecLen(len(e.Name)))
		if offset+need > blockSize {
			if err := flushBlock(); err != nil {
				return err
			}
		}
		d := &ondisk.Dirent{
			Offset:   offset,
			Inode:    e.Ino,
			RecLen:   uint16(need),
			NameLen:  uint8(len(e.Name)),
			FileType: e.FileType,
			Name:     e.Name,
		}
		ondisk.EncodeDirent(buf, d, hasFT)
		offset += need
	}

	if err := flushBlock(); err != nil {
		return err
	}

	// any blocks the directory had beyond what the rehashed entries
	// needed become a single empty directory block each.
	for ; bi < len(blocks); bi++ {
		empty := make([]byte, blockSize)
		free := &ondisk.Dirent{Offset: 0, Inode: 0, RecLen: uint16(blockSize)}
		ondisk.EncodeDirent(empty, free, hasFT)
		if err := dev.WriteAt(empty, blocks[bi]*sb.BlockSize()); err != nil {
			return err
		}
	}

	return nil
}
