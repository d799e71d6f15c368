package raid

import (
	"testing"

	"github.com/LeoZ100/RaidArrayDriver/internal/disktable"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func block(d *Driver, b byte) []byte {
	buf := make([]byte, d.cfg.BlockSize)
	for i := range buf {
		buf[i] = b
	}
	return buf
}

func concatBlocks(bufs ...[]byte) []byte {
	var out []byte
	for _, b := range bufs {
		out = append(out, b...)
	}
	return out
}

// Scenario 2: write(tag=0,b=0,n=3,buf=A|B|C) then read yields A|B|C;
// tag_count[0]==3; two distinct disks chosen; both advanced by 3.
func TestWriteAppendThenReadRoundTrips(t *testing.T) {
	cfg := testConfig()
	fake := NewFakeServer(cfg.DiskCount, cfg.DiskBlocks, cfg.BlockSize)
	d := newTestDriver(t, fake, NewSequentialRand(0, 1))
	require.NoError(t, d.Init(4))

	a, b, c := []byte("AAAAAAAA"), []byte("BBBBBBBB"), []byte("CCCCCCCC")
	in := concatBlocks(a, b, c)
	require.NoError(t, d.Write(0, 0, 3, in))

	assert.Equal(t, 3, d.tags.Count(0))

	cell0 := d.tags.Get(0, 0)
	require.False(t, cell0.Unmapped())
	assert.NotEqual(t, cell0.PrimaryDisk, cell0.BackupDisk)

	primaryDisk, backupDisk := cell0.PrimaryDisk, cell0.BackupDisk
	assert.Equal(t, 2, d.disks.Get(primaryDisk).NextFree)
	assert.Equal(t, 2, d.disks.Get(backupDisk).NextFree)

	out := make([]byte, 3*cfg.BlockSize)
	require.NoError(t, d.Read(0, 0, 3, out))
	assert.Equal(t, in, out)
}

// Scenario 3: rewrite of the middle block preserves tag_count and the
// surrounding blocks.
func TestWriteRewriteMiddleBlockPreservesCount(t *testing.T) {
	cfg := testConfig()
	fake := NewFakeServer(cfg.DiskCount, cfg.DiskBlocks, cfg.BlockSize)
	d := newTestDriver(t, fake, NewSequentialRand(0, 1))
	require.NoError(t, d.Init(4))

	a, b, c := []byte("AAAAAAAA"), []byte("BBBBBBBB"), []byte("CCCCCCCC")
	require.NoError(t, d.Write(0, 0, 3, concatBlocks(a, b, c)))

	bPrime := []byte("bbbbbbbb")
	require.NoError(t, d.Write(0, 1, 1, bPrime))
	assert.Equal(t, 3, d.tags.Count(0))

	out := make([]byte, 3*cfg.BlockSize)
	require.NoError(t, d.Read(0, 0, 3, out))
	assert.Equal(t, concatBlocks(a, bPrime, c), out)
}

// Scenario 6: a rewrite that overlaps the boundary between previously
// allocated and new territory reuses the overlapping cell and allocates
// fresh, primary != backup cells for the extension.
func TestWriteOverlappingRewriteExtendsTag(t *testing.T) {
	cfg := testConfig()
	fake := NewFakeServer(cfg.DiskCount, cfg.DiskBlocks, cfg.BlockSize)
	d := newTestDriver(t, fake, NewSequentialRand(0, 1, 2, 3))
	require.NoError(t, d.Init(4))

	a, b := []byte("AAAAAAAA"), []byte("BBBBBBBB")
	require.NoError(t, d.Write(0, 0, 2, concatBlocks(a, b)))
	assert.Equal(t, 2, d.tags.Count(0))
	cell1Before := d.tags.Get(0, 1)

	bPrime, x, y := []byte("bbbbbbbb"), []byte("XXXXXXXX"), []byte("YYYYYYYY")
	require.NoError(t, d.Write(0, 1, 3, concatBlocks(bPrime, x, y)))

	assert.Equal(t, 4, d.tags.Count(0))

	// The overlapping cell keeps its original mapping; only its
	// contents change.
	assert.Equal(t, cell1Before, d.tags.Get(0, 1))

	cell2 := d.tags.Get(0, 2)
	cell3 := d.tags.Get(0, 3)
	require.False(t, cell2.Unmapped())
	require.False(t, cell3.Unmapped())
	assert.NotEqual(t, cell2.PrimaryDisk, cell2.BackupDisk)
	assert.NotEqual(t, cell3.PrimaryDisk, cell3.BackupDisk)

	out := make([]byte, 4*cfg.BlockSize)
	require.NoError(t, d.Read(0, 0, 4, out))
	assert.Equal(t, concatBlocks(a, bPrime, x, y), out)
}

func TestWriteRejectsShortBuffer(t *testing.T) {
	cfg := testConfig()
	fake := NewFakeServer(cfg.DiskCount, cfg.DiskBlocks, cfg.BlockSize)
	d := newTestDriver(t, fake, nil)
	require.NoError(t, d.Init(4))

	err := d.Write(0, 0, 3, make([]byte, cfg.BlockSize))
	require.Error(t, err)
	assert.True(t, IsCode(err, ErrCodeInvalid))
}

func TestWriteSurfacesDiskFullBeforeOverrunning(t *testing.T) {
	cfg := testConfig()
	fake := NewFakeServer(cfg.DiskCount, cfg.DiskBlocks, cfg.BlockSize)
	// Every Write draws the same (primary=0, backup=1) pair, so every
	// append consumes exactly one more offset on disk 0.
	d := newTestDriver(t, fake, NewSequentialRand(0, 1))
	require.NoError(t, d.Init(4))

	buf := block(d, 'z')
	appends := 0
	sawDiskFull := false
	for tag := 0; tag < cfg.MaxTags && !sawDiskFull; tag++ {
		for tagBlock := 0; tagBlock < cfg.MaxTagBlocks; tagBlock++ {
			err := d.Write(tag, tagBlock, 1, buf)
			if err != nil {
				require.True(t, IsCode(err, ErrCodeIO))
				sawDiskFull = true
				break
			}
			appends++
		}
	}

	require.True(t, sawDiskFull, "expected disk 0 to fill up and surface an IO error")
	assert.Equal(t, cfg.DiskBlocks, appends)
}

// A Failed disk must never be chosen for a new mapping cell, per
// spec.md §3's per-cell invariant that both sides of an allocated cell
// are Ready.
func TestWriteSkipsFailedDiskForNewCells(t *testing.T) {
	cfg := testConfig()
	fake := NewFakeServer(cfg.DiskCount, cfg.DiskBlocks, cfg.BlockSize)
	// Sequential draws offer disk 0 first; disk 0 is Failed, so both
	// the primary and backup selection must skip past it.
	d := newTestDriver(t, fake, NewSequentialRand(0, 1, 2))
	require.NoError(t, d.Init(4))
	d.disks.SetStatus(0, disktable.Failed)

	require.NoError(t, d.Write(0, 0, 1, block(d, 'A')))

	cell := d.tags.Get(0, 0)
	assert.NotEqual(t, 0, cell.PrimaryDisk)
	assert.NotEqual(t, 0, cell.BackupDisk)
	assert.NotEqual(t, cell.PrimaryDisk, cell.BackupDisk)
}

// The rewrite path's cell-by-cell allocation (processSide's disk == -1
// branch) must redraw past both a colliding disk and a Failed one, not
// just a collision. A cell unmapped on the primary side, already
// mirrored to disk 2 on the backup side, with chosenDisk also 2 forces
// a collision redraw; disk 1 is Failed and must be skipped even though
// it doesn't collide.
func TestProcessSideRewriteTailSkipsFailedDisk(t *testing.T) {
	cfg := testConfig()
	fake := NewFakeServer(cfg.DiskCount, cfg.DiskBlocks, cfg.BlockSize)
	d := newTestDriver(t, fake, nil)
	require.NoError(t, d.Init(4))

	cell := d.tags.Get(0, 0)
	cell.BackupDisk, cell.BackupOffset = 2, 0
	d.tags.Set(0, 0, cell)
	d.disks.SetStatus(1, disktable.Failed)
	d.rng = NewSequentialRand(1, 3)

	_, err := d.processSide(0, 0, 1, true, 2, block(d, 'A'))
	require.NoError(t, err)

	got := d.tags.Get(0, 0)
	assert.Equal(t, 3, got.PrimaryDisk)
}
