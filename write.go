package raid

import (
	"time"

	"github.com/LeoZ100/RaidArrayDriver/internal/disktable"
	"github.com/LeoZ100/RaidArrayDriver/internal/tagmap"
	"github.com/LeoZ100/RaidArrayDriver/internal/wire"
)

// Write implements the append/rewrite policy. An append
// (start_block >= tag_count[tag]) writes count blocks as a
// single WRITE per side. A rewrite reuses the contiguous prefix of
// already-allocated mapping cells and falls back to cell-by-cell
// allocation for anything past that prefix.
func (d *Driver) Write(tag int, startBlock int, count int, in []byte) error {
	if err := d.checkBounds("write", tag, startBlock, count); err != nil {
		return err
	}
	blockSize := d.cfg.BlockSize
	if len(in) < count*blockSize {
		return NewTagError("write", tag, ErrCodeInvalid, "in buffer too small")
	}
	if count == 0 {
		return nil
	}

	primaryDisk, backupDisk := choosePair(d.rng, d.disks)
	rewrite := startBlock < d.tags.Count(tag)

	start := time.Now()
	var err error
	if rewrite {
		err = d.writeRewrite(tag, startBlock, count, primaryDisk, backupDisk, in)
	} else {
		err = d.writeAppend(tag, startBlock, count, primaryDisk, backupDisk, in)
	}

	success := err == nil
	d.observer.ObserveWrite(uint64(count*blockSize), uint64(time.Since(start)), success)
	if err != nil {
		return err
	}

	// tag_count must end at max(tag_count[tag], start_block+count)
	// regardless of which side(s) allocated new cells.
	d.tags.Advance(tag, startBlock+count)
	d.logger.Info("write", "tag", tag, "start_block", startBlock, "count", count, "rewrite", rewrite)
	return nil
}

// writeAppend handles the !rewrite path: count blocks as one WRITE per
// side, then one new mapping cell per block.
func (d *Driver) writeAppend(tag, startBlock, count, primaryDisk, backupDisk int, in []byte) error {
	if d.disks.WouldOverflow(primaryDisk, count) || d.disks.WouldOverflow(backupDisk, count) {
		return NewTagError("write", tag, ErrCodeIO, "disk full")
	}

	blockSize := d.cfg.BlockSize
	primaryStart := d.disks.Reserve(primaryDisk, count)
	primaryOp := wire.Opcode{Type: wire.Write, BlockQuantity: uint8(count), DiskNumber: uint8(primaryDisk), ID: uint32(primaryStart)}
	resp, err := d.bus.Send(primaryOp, in[:count*blockSize], nil)
	if err != nil {
		return WrapError("write", ErrCodeIO, err)
	}
	if werr := resp.WellFormed(primaryOp); werr != nil {
		return WrapError("write", ErrCodeMalformedResponse, werr)
	}
	for i := 0; i < count; i++ {
		cell := d.tags.Get(tag, startBlock+i)
		cell.PrimaryDisk, cell.PrimaryOffset = primaryDisk, primaryStart+i
		d.tags.Set(tag, startBlock+i, cell)
		d.blk.Put(primaryDisk, primaryStart+i, in[i*blockSize:(i+1)*blockSize])
	}

	backupStart := d.disks.Reserve(backupDisk, count)
	backupOp := wire.Opcode{Type: wire.Write, BlockQuantity: uint8(count), DiskNumber: uint8(backupDisk), ID: uint32(backupStart)}
	resp, err = d.bus.Send(backupOp, in[:count*blockSize], nil)
	if err != nil {
		return WrapError("write", ErrCodeIO, err)
	}
	if werr := resp.WellFormed(backupOp); werr != nil {
		return WrapError("write", ErrCodeMalformedResponse, werr)
	}
	for i := 0; i < count; i++ {
		cell := d.tags.Get(tag, startBlock+i)
		cell.BackupDisk, cell.BackupOffset = backupDisk, backupStart+i
		d.tags.Set(tag, startBlock+i, cell)
		d.blk.Put(backupDisk, backupStart+i, in[i*blockSize:(i+1)*blockSize])
	}

	return nil
}

// writeRewrite handles the rewrite path: primary and backup sides are
// processed independently, each over its own contiguous-prefix
// computation.
func (d *Driver) writeRewrite(tag, startBlock, count, primaryDisk, backupDisk int, in []byte) error {
	if _, err := d.processSide(tag, startBlock, count, true, primaryDisk, in); err != nil {
		return err
	}
	if _, err := d.processSide(tag, startBlock, count, false, backupDisk, in); err != nil {
		return err
	}
	return nil
}

// processSide implements the rewrite algorithm for one side (primary or
// backup) of the mirror, independent of the other side's state except
// for collision avoidance on newly allocated cells.
func (d *Driver) processSide(tag, startBlock, count int, primary bool, chosenDisk int, in []byte) (newCells int, err error) {
	blockSize := d.cfg.BlockSize

	k := d.contiguousPrefixLen(tag, startBlock, count, primary)
	if k > 0 {
		base := d.tags.Get(tag, startBlock)
		disk, offset := sideOf(base, primary)
		op := wire.Opcode{Type: wire.Write, BlockQuantity: uint8(k), DiskNumber: uint8(disk), ID: uint32(offset)}
		payload := in[:k*blockSize]
		resp, sendErr := d.bus.Send(op, payload, nil)
		if sendErr != nil {
			return newCells, WrapError("write", ErrCodeIO, sendErr)
		}
		if werr := resp.WellFormed(op); werr != nil {
			return newCells, WrapError("write", ErrCodeMalformedResponse, werr)
		}
		for b := 0; b < k; b++ {
			d.blk.Put(disk, offset+b, in[b*blockSize:(b+1)*blockSize])
		}
	}

	for j := k; j < count; j++ {
		cell := d.tags.Get(tag, startBlock+j)
		disk, offset := sideOf(cell, primary)

		if disk == -1 {
			candidate := chosenDisk
			other := otherSideOf(cell, primary)
			for !d.disks.Ready(candidate) || (other != -1 && candidate == other) {
				candidate = d.rng.Intn(d.cfg.DiskCount)
			}
			if d.disks.WouldOverflow(candidate, 1) {
				return newCells, NewTagError("write", tag, ErrCodeIO, "disk full")
			}
			offset = d.disks.Reserve(candidate, 1)
			disk = candidate
			setSide(&cell, primary, disk, offset)
			d.tags.Set(tag, startBlock+j, cell)
			newCells++
		}

		op := wire.Opcode{Type: wire.Write, BlockQuantity: 1, DiskNumber: uint8(disk), ID: uint32(offset)}
		payload := in[j*blockSize : (j+1)*blockSize]
		resp, sendErr := d.bus.Send(op, payload, nil)
		if sendErr != nil {
			return newCells, WrapError("write", ErrCodeIO, sendErr)
		}
		if werr := resp.WellFormed(op); werr != nil {
			return newCells, WrapError("write", ErrCodeMalformedResponse, werr)
		}
		d.blk.Put(disk, offset, payload)
	}

	return newCells, nil
}

// contiguousPrefixLen returns the largest k such that, starting at
// start_block, cells [0,k) on the given side form a strictly increasing
// run on the same disk. A -1 (unmapped) cell at start_block yields
// k == 0.
func (d *Driver) contiguousPrefixLen(tag, startBlock, count int, primary bool) int {
	if count == 0 {
		return 0
	}
	base := d.tags.Get(tag, startBlock)
	d0, o0 := sideOf(base, primary)
	if d0 == -1 {
		return 0
	}
	k := 1
	for k < count {
		c := d.tags.Get(tag, startBlock+k)
		dk, ok := sideOf(c, primary)
		if dk != d0 || ok != o0+k {
			break
		}
		k++
	}
	return k
}

func sideOf(c tagmap.Cell, primary bool) (disk, offset int) {
	if primary {
		return c.PrimaryDisk, c.PrimaryOffset
	}
	return c.BackupDisk, c.BackupOffset
}

func otherSideOf(c tagmap.Cell, primary bool) int {
	if primary {
		return c.BackupDisk
	}
	return c.PrimaryDisk
}

func setSide(c *tagmap.Cell, primary bool, disk, offset int) {
	if primary {
		c.PrimaryDisk, c.PrimaryOffset = disk, offset
	} else {
		c.BackupDisk, c.BackupOffset = disk, offset
	}
}

// choosePair draws two uniformly random, distinct Ready disk indices.
// A Failed disk is recovered before new writes may target it, so both
// draws are redrawn until they land on a Ready disk (per spec.md §3's
// per-cell invariant). Used for append and for the tail of a rewrite
// that exceeds its contiguous region.
func choosePair(rng RandSource, disks *disktable.Table) (primary, backup int) {
	n := disks.Count()
	primary = rng.Intn(n)
	for !disks.Ready(primary) {
		primary = rng.Intn(n)
	}
	backup = rng.Intn(n)
	for backup == primary || !disks.Ready(backup) {
		backup = rng.Intn(n)
	}
	return primary, backup
}
