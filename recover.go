package raid

import (
	"time"

	"github.com/LeoZ100/RaidArrayDriver/internal/constants"
	"github.com/LeoZ100/RaidArrayDriver/internal/disktable"
	"github.com/LeoZ100/RaidArrayDriver/internal/wire"
)

// StatusPoll sends STATUS to every disk. A disk whose response id equals
// DiskFailed is marked Failed and rebuilt via Recover. The disk failure
// is never surfaced directly; it only shows up as an error if recovery
// itself fails. A failed or malformed STATUS exchange is returned as an
// error.
func (d *Driver) StatusPoll() error {
	if d.closed || d.disks == nil {
		return NewError("status_poll", ErrCodeInvalid, "driver is not initialised")
	}
	for disk := 0; disk < d.disks.Count(); disk++ {
		op := wire.Opcode{Type: wire.Status, DiskNumber: uint8(disk)}
		resp, err := d.bus.Send(op, nil, nil)
		if err != nil {
			return WrapError("status_poll", ErrCodeTransport, err)
		}
		if werr := resp.WellFormed(op); werr != nil {
			return WrapError("status_poll", ErrCodeMalformedResponse, werr)
		}
		if resp.ID != constants.DiskFailed {
			continue
		}
		d.disks.SetStatus(disk, disktable.Failed)
		d.metrics.RecordDiskFailed()
		if err := d.Recover(disk); err != nil {
			return WrapError("status_poll", ErrCodeRecoveryFailed, err)
		}
	}
	return nil
}

// Recover formats the failed disk and rebuilds every mirror copy that
// resided on it from its surviving counterpart, then marks it Ready.
// Offsets are preserved: next_free_offset is not touched.
func (d *Driver) Recover(disk int) error {
	start := time.Now()
	preservedNextFree := d.disks.Get(disk).NextFree
	if err := d.format(disk); err != nil {
		d.observer.ObserveRecovery(0, false)
		return WrapError("recover", ErrCodeTransport, err)
	}
	// format resets next_free_offset to -1; recovery preserves offsets.
	d.disks.SetNextFree(disk, preservedNextFree)
	d.disks.SetStatus(disk, disktable.Failed)

	var rebuilt uint64
	for tag := 0; tag < d.tags.MaxTags(); tag++ {
		for block := 0; block < d.tags.MaxTagBlocks(); block++ {
			cell := d.tags.Get(tag, block)
			if cell.Unmapped() {
				continue
			}
			switch disk {
			case cell.PrimaryDisk:
				if err := d.rebuildSide(cell.PrimaryDisk, cell.PrimaryOffset, cell.BackupDisk, cell.BackupOffset); err != nil {
					d.observer.ObserveRecovery(rebuilt, false)
					return WrapError("recover", ErrCodeRecoveryFailed, err)
				}
				rebuilt++
			case cell.BackupDisk:
				if err := d.rebuildSide(cell.BackupDisk, cell.BackupOffset, cell.PrimaryDisk, cell.PrimaryOffset); err != nil {
					d.observer.ObserveRecovery(rebuilt, false)
					return WrapError("recover", ErrCodeRecoveryFailed, err)
				}
				rebuilt++
			}
		}
	}

	d.disks.SetStatus(disk, disktable.Ready)
	d.observer.ObserveRecovery(rebuilt, true)
	d.logger.Info("disk recovered", "disk", disk, "cells_rebuilt", rebuilt, "elapsed", time.Since(start))
	return nil
}

// rebuildSide restores one (disk, offset) location from its surviving
// mirror (srcDisk, srcOffset), preferring the cache over a READ.
func (d *Driver) rebuildSide(dstDisk, dstOffset, srcDisk, srcOffset int) error {
	blockSize := d.cfg.BlockSize
	data, hit := d.blk.Get(srcDisk, srcOffset)
	if !hit {
		buf := make([]byte, blockSize)
		readOp := wire.Opcode{Type: wire.Read, BlockQuantity: 1, DiskNumber: uint8(srcDisk), ID: uint32(srcOffset)}
		resp, err := d.bus.Send(readOp, nil, buf)
		if err != nil {
			return err
		}
		if werr := resp.WellFormed(readOp); werr != nil {
			return werr
		}
		data = buf
	}

	writeOp := wire.Opcode{Type: wire.Write, BlockQuantity: 1, DiskNumber: uint8(dstDisk), ID: uint32(dstOffset)}
	resp, err := d.bus.Send(writeOp, data, nil)
	if err != nil {
		return err
	}
	if werr := resp.WellFormed(writeOp); werr != nil {
		return werr
	}
	d.blk.Put(dstDisk, dstOffset, data)
	return nil
}
