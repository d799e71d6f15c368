package raid

import (
	"time"

	"github.com/LeoZ100/RaidArrayDriver/internal/wire"
)

// Read services count blocks of tag starting at startBlock from the
// primary copy only, through the cache. All blocks are satisfied
// before returning; out must hold count*BlockSize bytes.
func (d *Driver) Read(tag int, startBlock int, count int, out []byte) error {
	if err := d.checkBounds("read", tag, startBlock, count); err != nil {
		return err
	}
	blockSize := d.cfg.BlockSize
	if len(out) < count*blockSize {
		return NewTagError("read", tag, ErrCodeInvalid, "out buffer too small")
	}

	start := time.Now()
	var readBytes uint64
	ok := true

	for i := 0; i < count; i++ {
		cell := d.tags.Get(tag, startBlock+i)
		if cell.Unmapped() {
			ok = false
			d.observer.ObserveRead(readBytes, uint64(time.Since(start)), false)
			return NewTagError("read", tag, ErrCodeInvalid, "read of unmapped block")
		}

		dst := out[i*blockSize : (i+1)*blockSize]
		if data, hit := d.blk.Get(cell.PrimaryDisk, cell.PrimaryOffset); hit {
			d.observer.ObserveCache(true)
			copy(dst, data)
			readBytes += uint64(blockSize)
			continue
		}
		d.observer.ObserveCache(false)

		op := wire.Opcode{Type: wire.Read, BlockQuantity: 1, DiskNumber: uint8(cell.PrimaryDisk), ID: uint32(cell.PrimaryOffset)}
		resp, err := d.bus.Send(op, nil, dst)
		if err != nil {
			ok = false
			d.observer.ObserveRead(readBytes, uint64(time.Since(start)), false)
			return WrapError("read", ErrCodeIO, err)
		}
		if werr := resp.WellFormed(op); werr != nil {
			ok = false
			d.observer.ObserveRead(readBytes, uint64(time.Since(start)), false)
			return WrapError("read", ErrCodeMalformedResponse, werr)
		}

		d.blk.Put(cell.PrimaryDisk, cell.PrimaryOffset, dst)
		readBytes += uint64(blockSize)
	}

	d.observer.ObserveRead(readBytes, uint64(time.Since(start)), ok)
	d.logger.Info("read", "tag", tag, "start_block", startBlock, "count", count)
	return nil
}

func (d *Driver) checkBounds(op string, tag, startBlock, count int) error {
	if d.closed || d.tags == nil {
		return NewError(op, ErrCodeInvalid, "driver is not initialised")
	}
	if tag < 0 || tag >= d.maxTags {
		return NewTagError(op, tag, ErrCodeInvalid, "tag out of range")
	}
	if count < 0 || count > 255 {
		return NewTagError(op, tag, ErrCodeInvalid, "count must fit in 8 bits")
	}
	if startBlock < 0 || startBlock+count > d.cfg.MaxTagBlocks {
		return NewTagError(op, tag, ErrCodeInvalid, "block range exceeds max_tag_blocks")
	}
	return nil
}
