package engine

import (
	"context"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"

	"github.com/vorteil/e2fsck/internal/ondisk"
)

// inodeReadaheadBatch is the unit of concurrent I/O: RunPass1 hands out
// contiguous inode ranges of this size to the reader pool so the disk
// can be kept busy while processInode's bitmap bookkeeping, which must
// stay single-threaded, works through whatever the previous batch
// already decoded.
const inodeReadaheadBatch = 256

// maxConcurrentReaders bounds how many batches are in flight at once,
// the same role globalMaxBlocksSem plays for gcsfuse's buffered reader:
// cap outstanding I/O instead of firing one goroutine per unit of work.
const maxConcurrentReaders = 8

type inodeBatch struct {
	first int64 // first inode number in this batch, inclusive
	inos  []*ondisk.Inode
}

// readInodesAhead fans out maxConcurrentReaders readers across
// [1, total] in inodeReadaheadBatch-sized chunks and streams decoded
// batches back in order on the returned channel. The caller still
// applies processInode serially; this only overlaps the ReadInode
// decode/IO with that bookkeeping instead of doing both in lockstep.
func readInodesAhead(ctx *Context, total int64) (<-chan inodeBatch, func() error) {
	out := make(chan inodeBatch, maxConcurrentReaders)
	sem := semaphore.NewWeighted(int64(maxConcurrentReaders))
	group, gctx := errgroup.WithContext(context.Background())

	results := make(chan chan inodeBatch, maxConcurrentReaders)
	go func() {
		defer close(results)
		for first := int64(1); first <= total; first += inodeReadaheadBatch {
			last := first + inodeReadaheadBatch - 1
			if last > total {
				last = total
			}
			if err := sem.Acquire(gctx, 1); err != nil {
				// a prior batch failed and cancelled gctx: stop handing
				// out batches; every slot already queued is closed by
				// its reader, so the fan-in goroutine below never blocks.
				break
			}
			slot := make(chan inodeBatch, 1)
			results <- slot

			first, last := first, last
			group.Go(func() error {
				defer sem.Release(1)
				defer close(slot)
				batch := inodeBatch{first: first, inos: make([]*ondisk.Inode, 0, last-first+1)}
				for ino := first; ino <= last; ino++ {
					in, err := ondisk.ReadInode(ctx.Device, ctx.SB, ctx.Groups, ino)
					if err != nil {
						return err
					}
					batch.inos = append(batch.inos, in)
				}
				slot <- batch
				return nil
			})
		}
	}()

	go func() {
		for slot := range results {
			if batch, ok := <-slot; ok {
				out <- batch
			}
		}
		close(out)
	}()

	return out, group.Wait
}
