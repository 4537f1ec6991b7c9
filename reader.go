package rvaindex

import (
	"bufio"
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
	"os"
	"sort"
	"sync"
)

const (
	routingHeaderLen = 12
	routingEntryLen  = 24
	storeHeaderLen   = 12
	blockHeaderLen   = 16
	blockRecordLen   = 8
)

// Reader answers floor queries against a two-file RVA index. Instances are
// not safe for concurrent use: lookups mutate the single-slot block cache and
// the lazily opened block store handle. Use LockReader or one Reader per
// goroutine when querying concurrently.
type Reader struct {
	entries    []routingEntry
	totalLines uint32

	blockPath string
	blockFile *os.File
	openErr   error

	cached    decodedBlock
	cachedPos int

	closed bool
}

// Open loads the routing table from index1Path and validates the block store
// header at index2Path. It fails closed: on any error no Reader is retained
// and nothing can be queried.
func Open(index1Path, index2Path string) (*Reader, error) {
	entries, err := loadRouting(index1Path)
	if err != nil {
		return nil, err
	}

	r := &Reader{
		entries:   entries,
		blockPath: index2Path,
		cachedPos: -1,
	}
	if err := r.checkStoreHeader(); err != nil {
		return nil, err
	}
	return r, nil
}

// NumBlocks returns the number of blocks listed in the routing table.
func (r *Reader) NumBlocks() int { return len(r.entries) }

// TotalLines returns the total dump line count declared by the block store
// header. It is zero for version 1 indexes and purely informational.
func (r *Reader) TotalLines() uint32 { return r.totalLines }

// FindFloor returns the value mapped to the greatest indexed RVA that is less
// than or equal to rva: a dump line number for version 1 and 2 indexes, a
// byte offset for version 3. It returns ErrNotFound when rva is below the
// smallest indexed RVA. Any other error means a block could not be read or
// decoded; callers should treat it as "no result" for this query and may use
// the error detail for diagnostics.
func (r *Reader) FindFloor(rva uint64) (uint32, error) {
	if r.closed {
		return 0, errClosed
	}
	if len(r.entries) == 0 || rva < r.entries[0].StartRVA {
		return 0, ErrNotFound
	}

	// The routing table is a coarse hint: it selects the last block whose
	// start RVA is <= the query, not necessarily a block that contains it.
	pos := sort.Search(len(r.entries), func(i int) bool {
		return r.entries[i].StartRVA > rva
	}) - 1
	if pos < 0 {
		return 0, ErrNotFound
	}

	block, err := r.block(pos)
	if err != nil {
		return 0, err
	}
	if line, ok := block.floor(rva); ok {
		return line, nil
	}

	// Every record in the selected block lies above the query: start RVAs
	// bound a block's coverage, not its content. The previous block's final
	// record is then the closest indexed RVA below the query.
	if pos == 0 {
		return 0, ErrNotFound
	}
	prev, err := r.block(pos - 1)
	if err != nil {
		return 0, err
	}
	if len(prev.lines) == 0 {
		return 0, ErrNotFound
	}
	return prev.lines[len(prev.lines)-1], nil
}

// Close releases the block store handle. The reader must not be used after
// this method is called.
func (r *Reader) Close() error {
	if r.closed {
		return errClosed
	}
	r.closed = true
	r.entries = nil
	r.cached = decodedBlock{}
	r.cachedPos = -1

	if r.blockFile != nil {
		f := r.blockFile
		r.blockFile = nil
		return f.Close()
	}
	return nil
}

// block returns the decoded block at pos, reusing the single cached slot when
// the same block is requested twice in a row. Any successfully decoded block
// replaces the slot unconditionally.
func (r *Reader) block(pos int) (*decodedBlock, error) {
	if r.cachedPos == pos {
		return &r.cached, nil
	}

	f, err := r.ensureBlockFile()
	if err != nil {
		return nil, err
	}

	block, err := decodeBlock(f, r.entries[pos])
	if err != nil {
		return nil, err
	}

	r.cached = block
	r.cachedPos = pos
	return &r.cached, nil
}

// ensureBlockFile opens the block store on first use. A failed open is
// recorded and replayed on subsequent calls instead of retrying the
// filesystem on every query.
func (r *Reader) ensureBlockFile() (*os.File, error) {
	if r.blockFile != nil {
		return r.blockFile, nil
	}
	if r.openErr != nil {
		return nil, r.openErr
	}

	f, err := os.Open(r.blockPath)
	if err != nil {
		r.openErr = fmt.Errorf("rvaindex: failed to open block store: %v", err)
		return nil, r.openErr
	}
	r.blockFile = f
	return f, nil
}

// checkStoreHeader validates the block store header with a short-lived
// handle; blocks themselves are read later through the lazily opened handle.
func (r *Reader) checkStoreHeader() error {
	f, err := os.Open(r.blockPath)
	if err != nil {
		return fmt.Errorf("rvaindex: failed to open block store: %v", err)
	}
	defer f.Close()

	tmp := make([]byte, storeHeaderLen)
	if _, err := io.ReadFull(f, tmp); err != nil {
		return fmt.Errorf("rvaindex: failed to read block store header: %v", err)
	}
	if !bytes.Equal(tmp[0:4], index2Magic) {
		return errBadMagic
	}

	version := binary.LittleEndian.Uint16(tmp[4:6])
	if version < minVersion || version > maxVersion {
		return errBadVersion
	}
	blockCount := binary.LittleEndian.Uint32(tmp[8:12])

	if version >= 2 {
		if _, err := io.ReadFull(f, tmp[:4]); err != nil {
			return fmt.Errorf("rvaindex: failed to read total line count: %v", err)
		}
		r.totalLines = binary.LittleEndian.Uint32(tmp[:4])
	}

	if blockCount != uint32(len(r.entries)) {
		return errCountMismatch
	}
	return nil
}

func loadRouting(path string) ([]routingEntry, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("rvaindex: failed to open routing table: %v", err)
	}
	defer f.Close()

	br := bufio.NewReader(f)
	tmp := make([]byte, routingEntryLen)

	if _, err := io.ReadFull(br, tmp[:routingHeaderLen]); err != nil {
		return nil, fmt.Errorf("rvaindex: failed to read routing table header: %v", err)
	}
	if !bytes.Equal(tmp[0:4], index1Magic) {
		return nil, errBadMagic
	}
	if version := binary.LittleEndian.Uint16(tmp[4:6]); version < minVersion || version > maxVersion {
		return nil, errBadVersion
	}

	count := binary.LittleEndian.Uint32(tmp[8:12])
	entries := make([]routingEntry, 0, count)
	for i := uint32(0); i < count; i++ {
		if _, err := io.ReadFull(br, tmp); err != nil {
			return nil, fmt.Errorf("rvaindex: failed to read routing entry: %v", err)
		}
		entries = append(entries, routingEntry{
			StartRVA: binary.LittleEndian.Uint64(tmp[0:8]),
			Offset:   binary.LittleEndian.Uint64(tmp[8:16]),
			Size:     binary.LittleEndian.Uint32(tmp[16:20]),
		})
	}

	if len(entries) == 0 {
		return nil, errNoEntries
	}
	sorted := sort.SliceIsSorted(entries, func(i, j int) bool {
		return entries[i].StartRVA < entries[j].StartRVA
	})
	if !sorted {
		return nil, errTableUnsorted
	}
	return entries, nil
}

func decodeBlock(f io.ReaderAt, ent routingEntry) (decodedBlock, error) {
	if ent.Size < blockHeaderLen {
		return decodedBlock{}, errBlockUndersized
	}

	raw := fetchBuffer(int(ent.Size))
	defer releaseBuffer(raw)

	if _, err := f.ReadAt(raw, int64(ent.Offset)); err != nil {
		return decodedBlock{}, fmt.Errorf("rvaindex: failed to read block: %v", err)
	}

	startRVA := binary.LittleEndian.Uint64(raw[0:8])
	startLine := binary.LittleEndian.Uint32(raw[8:12])
	count := binary.LittleEndian.Uint32(raw[12:16])

	if blockHeaderLen+uint64(count)*blockRecordLen != uint64(ent.Size) {
		return decodedBlock{}, errBlockSize
	}

	block := decodedBlock{
		rvas:  make([]uint64, 0, count),
		lines: make([]uint32, 0, count),
	}

	rva := startRVA
	for i, off := uint32(0), blockHeaderLen; i < count; i, off = i+1, off+blockRecordLen {
		delta := binary.LittleEndian.Uint32(raw[off : off+4])
		line := binary.LittleEndian.Uint32(raw[off+4 : off+8])

		if i == 0 {
			rva = startRVA + uint64(delta)
			// The encoder may write the first record's line verbatim or as
			// a zero meaning "use the header's start line". A genuine line
			// 0 is indistinguishable from an omitted one.
			if line == 0 {
				line = startLine
			}
		} else {
			rva += uint64(delta)
		}

		block.rvas = append(block.rvas, rva)
		block.lines = append(block.lines, line)
	}

	// Unsigned deltas can only break ordering through 64-bit wraparound,
	// which still marks the block as corrupt.
	for i := 1; i < len(block.rvas); i++ {
		if block.rvas[i] < block.rvas[i-1] {
			return decodedBlock{}, errBlockUnsorted
		}
	}

	return block, nil
}

// --------------------------------------------------------------------

var bufPool sync.Pool

func fetchBuffer(sz int) []byte {
	if v := bufPool.Get(); v != nil {
		if p := v.([]byte); sz <= cap(p) {
			return p[:sz]
		}
	}
	return make([]byte, sz)
}

func releaseBuffer(p []byte) {
	if cap(p) != 0 {
		bufPool.Put(p)
	}
}
