package rvaindex

import (
	"errors"
	"sort"
)

var (
	index1Magic = []byte{'I', 'D', 'X', '1'}
	index2Magic = []byte{'I', 'D', 'X', '2'}
)

// Supported format versions. Version 1 and 2 indexes map RVAs to dump line
// numbers, version 3 maps them to byte offsets into the dump.
const (
	minVersion = 1
	maxVersion = 3
)

// ErrNotFound is returned by FindFloor when no indexed RVA is less than or
// equal to the query.
var ErrNotFound = errors.New("rvaindex: not found")

var (
	errClosed          = errors.New("rvaindex: is closed")
	errBadMagic        = errors.New("rvaindex: bad magic byte sequence")
	errBadVersion      = errors.New("rvaindex: unsupported format version")
	errNoEntries       = errors.New("rvaindex: routing table has no entries")
	errTableUnsorted   = errors.New("rvaindex: routing table is not sorted by start RVA")
	errCountMismatch   = errors.New("rvaindex: routing entry count does not match block count")
	errBlockUndersized = errors.New("rvaindex: corrupt block, size smaller than block header")
	errBlockSize       = errors.New("rvaindex: corrupt block, record count does not match block size")
	errBlockUnsorted   = errors.New("rvaindex: corrupt block, RVAs are not sorted")
)

// routingEntry locates one block of the block store.
type routingEntry struct {
	StartRVA uint64 // lowest RVA covered by the block
	Offset   uint64 // absolute block offset within the block store
	Size     uint32 // block size in bytes
}

// --------------------------------------------------------------------

// decodedBlock holds one block's records as parallel, RVA-sorted slices.
type decodedBlock struct {
	rvas  []uint64
	lines []uint32
}

// floor returns the line paired with the greatest decoded RVA <= rva.
func (b *decodedBlock) floor(rva uint64) (uint32, bool) {
	i := sort.Search(len(b.rvas), func(i int) bool { return b.rvas[i] > rva }) - 1
	if i < 0 {
		return 0, false
	}
	return b.lines[i], true
}
