package raid

import (
	"math/rand"
	"time"

	"github.com/LeoZ100/RaidArrayDriver/internal/bus"
	"github.com/LeoZ100/RaidArrayDriver/internal/cache"
	"github.com/LeoZ100/RaidArrayDriver/internal/config"
	"github.com/LeoZ100/RaidArrayDriver/internal/disktable"
	"github.com/LeoZ100/RaidArrayDriver/internal/logging"
	"github.com/LeoZ100/RaidArrayDriver/internal/tagmap"
	"github.com/LeoZ100/RaidArrayDriver/internal/wire"
)

// Bus is the contract the driver engine needs from a transport. It is
// satisfied by *internal/bus.Client in production and by *FakeServer in
// tests (testing.go).
type Bus interface {
	Send(op wire.Opcode, payload []byte, out []byte) (wire.Opcode, error)
}

// RandSource is the external random-number collaborator: the engine
// never re-implements randomness, it only asks for uniform disk
// indices. Tests must not assume a particular seed but may inject a
// deterministic source here.
type RandSource interface {
	Intn(n int) int
}

type defaultRand struct {
	r *rand.Rand
}

func (d *defaultRand) Intn(n int) int { return d.r.Intn(n) }

func newDefaultRand() RandSource {
	return &defaultRand{r: rand.New(rand.NewSource(time.Now().UnixNano()))}
}

// Driver bundles the tag map, disk table, cache, bus client and counters
// as a single value constructed by Init and released by Close, rather
// than a set of global singletons.
type Driver struct {
	cfg *config.Config
	bus Bus
	rng RandSource

	disks *disktable.Table
	tags  *tagmap.Map
	blk   *cache.Cache

	metrics  *Metrics
	observer Observer
	logger   *logging.Logger

	maxTags int
	closed  bool
}

// Option customises a Driver at construction time.
type Option func(*Driver)

// WithBus overrides the transport (used by tests to inject a FakeServer).
func WithBus(b Bus) Option {
	return func(d *Driver) { d.bus = b }
}

// WithRandSource overrides the disk-pair randomiser.
func WithRandSource(r RandSource) Option {
	return func(d *Driver) { d.rng = r }
}

// WithObserver overrides the metrics observer.
func WithObserver(o Observer) Option {
	return func(d *Driver) { d.observer = o }
}

// WithLogger overrides the logger.
func WithLogger(l *logging.Logger) Option {
	return func(d *Driver) { d.logger = l }
}

// New constructs a Driver bound to cfg. No socket is opened and no
// tables are allocated until Init is called.
func New(cfg *config.Config, opts ...Option) *Driver {
	if cfg == nil {
		cfg = config.Default()
	}
	d := &Driver{
		cfg:     cfg,
		rng:     newDefaultRand(),
		metrics: NewMetrics(),
		logger:  logging.Default(),
	}
	d.observer = NewMetricsObserver(d.metrics)
	for _, opt := range opts {
		opt(d)
	}
	if d.bus == nil {
		d.bus = bus.New(cfg.ServerAddr, cfg.BlockSize)
	}
	return d
}

// Metrics returns the driver's metrics instance.
func (d *Driver) Metrics() *Metrics {
	return d.metrics
}

// BlockSize returns the configured block size in bytes.
func (d *Driver) BlockSize() int {
	return d.cfg.BlockSize
}

// Init allocates the tag map, disk table and cache, opens the socket to
// the RAID server with INIT, and FORMATs every Uninitialized disk.
func (d *Driver) Init(maxTags int) error {
	if maxTags <= 0 {
		return NewError("init", ErrCodeInvalid, "max_tags must be positive")
	}

	d.tags = tagmap.New(maxTags, d.cfg.MaxTagBlocks)
	d.disks = disktable.New(d.cfg.DiskCount, d.cfg.DiskBlocks)
	d.blk = cache.New(d.cfg.CacheCapacity)
	d.maxTags = maxTags
	d.closed = false

	blockQuantity := d.cfg.DiskBlocks/d.cfg.TrackBlocks + 3
	if blockQuantity > 255 {
		d.tags, d.disks, d.blk = nil, nil, nil
		return NewError("init", ErrCodeAlloc, "disk_blocks/track_blocks + 3 overflows the 8-bit block_quantity field")
	}

	initOp := wire.Opcode{Type: wire.Init, BlockQuantity: uint8(blockQuantity), DiskNumber: uint8(d.cfg.DiskCount)}
	resp, err := d.bus.Send(initOp, nil, nil)
	if err != nil {
		d.tags, d.disks, d.blk = nil, nil, nil
		return WrapError("init", ErrCodeTransport, err)
	}
	if werr := resp.WellFormed(initOp); werr != nil {
		d.tags, d.disks, d.blk = nil, nil, nil
		return WrapError("init", ErrCodeMalformedResponse, werr)
	}

	for disk := 0; disk < d.disks.Count(); disk++ {
		if d.disks.Get(disk).Status != disktable.Uninitialized {
			continue
		}
		if err := d.format(disk); err != nil {
			d.tags, d.disks, d.blk = nil, nil, nil
			return WrapError("init", ErrCodeTransport, err)
		}
	}

	d.logger.Info("driver initialised", "max_tags", maxTags, "disk_count", d.cfg.DiskCount)
	return nil
}

func (d *Driver) format(disk int) error {
	op := wire.Opcode{Type: wire.Format, DiskNumber: uint8(disk)}
	resp, err := d.bus.Send(op, nil, nil)
	if err != nil {
		return err
	}
	if werr := resp.WellFormed(op); werr != nil {
		return werr
	}
	d.disks.SetStatus(disk, disktable.Ready)
	d.disks.SetNextFree(disk, -1)
	return nil
}

// Close sends CLOSE, releases the tag map/disk table/cache, and emits
// the cache statistics summary.
func (d *Driver) Close() error {
	if d.closed {
		return nil
	}
	op := wire.Opcode{Type: wire.Close}
	_, err := d.bus.Send(op, nil, nil)

	stats := d.blk.Stats()
	d.logger.Info("cache statistics",
		"hit", stats.Hit, "miss", stats.Miss, "insert", stats.Insert, "get", stats.Get)

	d.tags = nil
	d.disks = nil
	d.blk = nil
	d.closed = true
	d.metrics.Stop()

	if err != nil {
		return WrapError("close", ErrCodeTransport, err)
	}
	d.logger.Info("driver closed")
	return nil
}
