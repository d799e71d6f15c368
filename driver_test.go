package raid

import (
	"testing"

	"github.com/LeoZ100/RaidArrayDriver/internal/config"
	"github.com/LeoZ100/RaidArrayDriver/internal/disktable"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testConfig() *config.Config {
	return &config.Config{
		ServerAddr:    "unused",
		DiskCount:     4,
		DiskBlocks:    32,
		BlockSize:     8,
		TrackBlocks:   4,
		MaxTagBlocks:  16,
		CacheCapacity: 8,
		MaxTags:       4,
	}
}

func newTestDriver(t *testing.T, fake *FakeServer, rng RandSource) *Driver {
	t.Helper()
	opts := []Option{WithBus(fake)}
	if rng != nil {
		opts = append(opts, WithRandSource(rng))
	}
	return New(testConfig(), opts...)
}

// Scenario 1: init(4) on a fresh server sends one INIT then DISK_COUNT
// FORMATs; all disks end Ready with next_free_offset = -1.
func TestInitFormatsEveryDisk(t *testing.T) {
	cfg := testConfig()
	fake := NewFakeServer(cfg.DiskCount, cfg.DiskBlocks, cfg.BlockSize)
	d := newTestDriver(t, fake, nil)

	require.NoError(t, d.Init(4))

	assert.Equal(t, 1, fake.InitCalls())
	for disk := 0; disk < cfg.DiskCount; disk++ {
		assert.Equal(t, 1, fake.FormatCalls(disk), "disk %d", disk)
		slot := d.disks.Get(disk)
		assert.Equal(t, disktable.Ready, slot.Status)
		assert.Equal(t, -1, slot.NextFree)
	}
}

func TestInitRejectsNonPositiveMaxTags(t *testing.T) {
	d := newTestDriver(t, NewFakeServer(4, 32, 8), nil)
	err := d.Init(0)
	require.Error(t, err)
	assert.True(t, IsCode(err, ErrCodeInvalid))
}

func TestCloseSendsCloseAndReleasesState(t *testing.T) {
	cfg := testConfig()
	fake := NewFakeServer(cfg.DiskCount, cfg.DiskBlocks, cfg.BlockSize)
	d := newTestDriver(t, fake, nil)
	require.NoError(t, d.Init(4))

	require.NoError(t, d.Close())
	assert.True(t, d.closed)
	assert.Nil(t, d.tags)
	assert.Nil(t, d.disks)
	assert.Nil(t, d.blk)
}

func TestReadOfUnmappedBlockIsInvalid(t *testing.T) {
	cfg := testConfig()
	fake := NewFakeServer(cfg.DiskCount, cfg.DiskBlocks, cfg.BlockSize)
	d := newTestDriver(t, fake, nil)
	require.NoError(t, d.Init(4))

	out := make([]byte, cfg.BlockSize)
	err := d.Read(0, 0, 1, out)
	require.Error(t, err)
	assert.True(t, IsCode(err, ErrCodeInvalid))
}

func TestReadRejectsOutOfRangeTag(t *testing.T) {
	cfg := testConfig()
	fake := NewFakeServer(cfg.DiskCount, cfg.DiskBlocks, cfg.BlockSize)
	d := newTestDriver(t, fake, nil)
	require.NoError(t, d.Init(4))

	out := make([]byte, cfg.BlockSize)
	err := d.Read(cfg.MaxTags, 0, 1, out)
	require.Error(t, err)
	assert.True(t, IsCode(err, ErrCodeInvalid))
}
