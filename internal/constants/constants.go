// Package constants holds the environment-provided sizing constants for
// the tagline address space and the physical RAID array, plus the
// network/timing defaults used when no config file overrides them.
package constants

import "time"

// Environment-provided sizing constants. These are the
// compiled-in defaults; internal/config can override every one of them
// from an INI file.
const (
	// DiskCount is the number of physical disks in the RAID array.
	DiskCount = 4

	// DiskBlocks is the number of blocks available on each disk.
	DiskBlocks = 1 << 16

	// BlockSize is the size in bytes of one physical or logical block.
	BlockSize = 512

	// TrackBlocks is the number of blocks per track; it only affects the
	// INIT opcode's block_quantity field.
	TrackBlocks = 64

	// MaxTagBlocks is the number of mapping cells allocated per tag;
	// legal tag_block indices are 0 .. MaxTagBlocks-1.
	MaxTagBlocks = 256

	// CacheCapacity is the number of lines the block cache holds.
	CacheCapacity = 256

	// MaxTagsDefault is used when no config overrides the number of
	// tags the tag map is dimensioned for.
	MaxTagsDefault = 64
)

// DiskFailed is the sentinel id value a STATUS response uses to report
// that the queried disk has failed.
const DiskFailed = 1

// Unmapped is the sentinel value for "no disk"/"no offset" stored in a
// tag mapping cell: sentinel -1 means "unmapped".
const Unmapped = -1

// DefaultServerAddr is the default TCP endpoint of the remote RAID
// server, used when no config file overrides it.
const DefaultServerAddr = "127.0.0.1:9876"

// Timing constants for the bus client.
const (
	// DialTimeout bounds how long INIT waits to connect to the server.
	DialTimeout = 5 * time.Second

	// IOTimeout bounds a single request/response exchange.
	IOTimeout = 10 * time.Second
)
