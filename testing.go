package raid

import (
	"sync"

	"github.com/LeoZ100/RaidArrayDriver/internal/constants"
	"github.com/LeoZ100/RaidArrayDriver/internal/wire"
)

// FakeServer is an in-memory stand-in for the remote RAID server. It
// implements Bus directly so a Driver can be exercised without opening
// a real socket, mirroring how the teacher's MockBackend implements
// its domain interface directly rather than faking a device node.
type FakeServer struct {
	mu sync.Mutex

	diskCount  int
	diskBlocks int
	blockSize  int

	disks  [][]byte
	failed map[int]bool

	connected bool

	initCalls   int
	formatCalls map[int]int
	readCalls   int
	writeCalls  int
	statusCalls int
}

// NewFakeServer creates a fake RAID server with diskCount disks of
// diskBlocks blocks each, blockSize bytes per block.
func NewFakeServer(diskCount, diskBlocks, blockSize int) *FakeServer {
	disks := make([][]byte, diskCount)
	for i := range disks {
		disks[i] = make([]byte, diskBlocks*blockSize)
	}
	return &FakeServer{
		diskCount:   diskCount,
		diskBlocks:  diskBlocks,
		blockSize:   blockSize,
		disks:       disks,
		failed:      make(map[int]bool),
		formatCalls: make(map[int]int),
	}
}

// FailDisk marks a disk as failed: any STATUS request against it
// reports DiskFailed until Healthy is called or the disk is FORMATted.
func (f *FakeServer) FailDisk(disk int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.failed[disk] = true
}

// Healthy clears a previously injected failure.
func (f *FakeServer) Healthy(disk int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.failed, disk)
}

// InitCalls, FormatCalls, ReadCalls, WriteCalls, StatusCalls report how
// many times each opcode type has been exchanged, for scenario
// assertions.
func (f *FakeServer) InitCalls() int { f.mu.Lock(); defer f.mu.Unlock(); return f.initCalls }
func (f *FakeServer) ReadCalls() int { f.mu.Lock(); defer f.mu.Unlock(); return f.readCalls }
func (f *FakeServer) WriteCalls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.writeCalls
}
func (f *FakeServer) StatusCalls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.statusCalls
}
func (f *FakeServer) FormatCalls(disk int) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.formatCalls[disk]
}

// Send implements Bus. It behaves like the real server for every
// opcode the driver engine emits.
func (f *FakeServer) Send(op wire.Opcode, payload []byte, out []byte) (wire.Opcode, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	switch op.Type {
	case wire.Init:
		f.initCalls++
		f.connected = true
		return op, nil

	case wire.Format:
		f.formatCalls[int(op.DiskNumber)]++
		delete(f.failed, int(op.DiskNumber))
		return op, nil

	case wire.Read:
		f.readCalls++
		disk := int(op.DiskNumber)
		offset := int(op.ID)
		n := int(op.BlockQuantity) * f.blockSize
		start := offset * f.blockSize
		copy(out[:n], f.disks[disk][start:start+n])
		return op, nil

	case wire.Write:
		f.writeCalls++
		disk := int(op.DiskNumber)
		offset := int(op.ID)
		n := int(op.BlockQuantity) * f.blockSize
		start := offset * f.blockSize
		copy(f.disks[disk][start:start+n], payload[:n])
		return op, nil

	case wire.Status:
		f.statusCalls++
		resp := op
		if f.failed[int(op.DiskNumber)] {
			resp.ID = constants.DiskFailed
		} else {
			resp.ID = op.ID
		}
		return resp, nil

	case wire.Close:
		f.connected = false
		return op, nil
	}

	return op, nil
}

var _ Bus = (*FakeServer)(nil)

// sequentialRand is a deterministic RandSource for tests: it cycles
// through a fixed sequence instead of drawing from math/rand.
type sequentialRand struct {
	mu  sync.Mutex
	seq []int
	pos int
}

// NewSequentialRand returns a RandSource that yields seq[0], seq[1], ...
// modulo n on every call, wrapping around. Used to pin disk-pair
// selection in deterministic tests.
func NewSequentialRand(seq ...int) RandSource {
	return &sequentialRand{seq: seq}
}

func (s *sequentialRand) Intn(n int) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.seq) == 0 {
		return 0
	}
	v := s.seq[s.pos%len(s.seq)] % n
	s.pos++
	return v
}

var _ RandSource = (*sequentialRand)(nil)
