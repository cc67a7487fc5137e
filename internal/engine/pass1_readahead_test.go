package engine

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vorteil/e2fsck/internal/ondisk"
	"github.com/vorteil/e2fsck/internal/problem"
)

func TestReadInodesAheadDeliversEveryInodeInOrder(t *testing.T) {
	total := int64(600) // spans several inodeReadaheadBatch-sized chunks
	sb := &ondisk.Superblock{
		TotalInodes:    uint32(total),
		TotalBlocks:    4096,
		InodesPerGroup: uint32(total),
		BlocksPerGroup: 4096,
		InodeSize:      128,
	}
	groups := []ondisk.GroupDescriptor{{InodeTableAddr: 1}}
	dev := ondisk.NewMemDevice(sb.BlockSize() * 1024)

	probEngine := problem.NewEngine(testView{}, "dev", false, true, false)
	ctx := NewContext(dev, sb, groups, testView{}, probEngine)

	batches, wait := readInodesAhead(ctx, total)

	var seen []int64
	for batch := range batches {
		for i := range batch.inos {
			seen = append(seen, batch.first+int64(i))
		}
	}
	require.NoError(t, wait())

	require.Len(t, seen, int(total))
	for i, ino := range seen {
		assert.EqualValues(t, i+1, ino)
	}
}
