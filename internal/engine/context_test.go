package engine

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/vorteil/e2fsck/internal/ondisk"
)

func TestNewContextSizesBitmapsAndTables(t *testing.T) {
	sb := &ondisk.Superblock{TotalInodes: 32, TotalBlocks: 4096, InodesPerGroup: 32, BlocksPerGroup: 4096}
	ctx := newTestContext(t, sb)

	assert.NotNil(t, ctx.BlockFound)
	assert.NotNil(t, ctx.InodeUsed)
	assert.NotNil(t, ctx.DirInfo)
	assert.NotNil(t, ctx.DxDirInfo)
	assert.NotNil(t, ctx.DupRegistry)
	assert.NotNil(t, ctx.KillSectors)
}

func TestContextGroupOf(t *testing.T) {
	sb := &ondisk.Superblock{TotalInodes: 64, InodesPerGroup: 32, TotalBlocks: 4096, BlocksPerGroup: 4096}
	ctx := newTestContext(t, sb)

	assert.EqualValues(t, 0, ctx.GroupOf(1))
	assert.EqualValues(t, 0, ctx.GroupOf(32))
	assert.EqualValues(t, 1, ctx.GroupOf(33))
}

func TestContextBlockInRange(t *testing.T) {
	sb := &ondisk.Superblock{FirstDataBlock: 1, TotalBlocks: 100, TotalInodes: 16, InodesPerGroup: 16, BlocksPerGroup: 100}
	ctx := newTestContext(t, sb)

	assert.False(t, ctx.BlockInRange(0))
	assert.True(t, ctx.BlockInRange(1))
	assert.True(t, ctx.BlockInRange(99))
	assert.False(t, ctx.BlockInRange(100))
}
