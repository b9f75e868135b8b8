// Package diskcache implements an LRU, page-grained cache mediating
// between a filesystem that addresses fixed-size FS blocks and a storage
// device that only understands logical sectors. A cache slot (io_size
// bytes) holds one or more whole FS blocks; dirty slots are written back on
// eviction or an explicit flush.
package diskcache

import (
	lru "github.com/hashicorp/golang-lru/v2/simplelru"

	"github.com/nexuskernel/nexus/kernel"
	"github.com/nexuskernel/nexus/kernel/hal/storage"
	"github.com/nexuskernel/nexus/kernel/kfmt/early"
	"github.com/nexuskernel/nexus/kernel/mem"
)

var (
	errUnsupportedSectorSize = &kernel.Error{Module: "diskcache", Message: "device logical block size must be 512 or 4096"}
	errMisalignedIOSize      = &kernel.Error{Module: "diskcache", Message: "filesystem block size is not a multiple of the page size"}
	errZeroCapacity          = &kernel.Error{Module: "diskcache", Message: "block capacity must not be zero"}
	errCapacityTooSmall      = &kernel.Error{Module: "diskcache", Message: "block capacity is smaller than one cache slot"}
	errRangeOutOfBounds      = &kernel.Error{Module: "diskcache", Message: "cache slot's LBA range falls outside the filesystem's LBA range"}
	errBlockBoundsExceeded   = &kernel.Error{Module: "diskcache", Message: "offset+length exceeds the filesystem block size"}

	// panicFn is mocked by tests; see kernel/mem/bootmem for the idiom.
	panicFn = func(err *kernel.Error) { kernel.Panic(err) }
)

// cachedBlock is one in-memory slot: io_size bytes backing one or more FS
// blocks starting at firstBlock, along with whether it has unwritten data.
type cachedBlock struct {
	buffer     []byte
	firstBlock uint64
	dirty      bool
}

// DiskCache implements the cache contract described in spec.md: read_one,
// write_one, zero_fill_one, flush_specific, flush_all, all addressed by FS
// block index, never by LBA. Per the source, this structure has no lock of
// its own: callers are expected to serialize access to a single DiskCache
// themselves (the "single-caller invariant" in the ordering guarantees).
type DiskCache struct {
	device     storage.Device
	fsLBARange storage.LBARange

	logicalBlockSize uint64
	fsBlockSize      uint64
	// ioSize is 0 for a RAM-backed device: the filesystem lives entirely
	// in memory already, so every operation routes through the
	// synchronous ramdisk fast-path instead of being cached.
	ioSize        uint64
	fsBlocksPerIO uint64

	cache *lru.LRU[uint64, *cachedBlock]
}

// New builds a DiskCache in front of device, caching blockCapacity FS
// blocks' worth of data (rounded down to whole cache slots) for the
// filesystem occupying fsLBARange with the given fsBlockSize.
func New(device storage.Device, fsLBARange storage.LBARange, fsBlockSize uint64, blockCapacity uint64) (*DiskCache, *kernel.Error) {
	info := device.QueryInfo()
	if info.LogicalBlockSize != 512 && info.LogicalBlockSize != 4096 {
		panicFn(errUnsupportedSectorSize)
		return nil, errUnsupportedSectorSize
	}

	dc := &DiskCache{
		device:           device,
		fsLBARange:       fsLBARange,
		logicalBlockSize: uint64(info.LogicalBlockSize),
		fsBlockSize:      fsBlockSize,
	}

	if info.Medium == storage.MediumRAM {
		return dc, nil
	}

	pageSize := uint64(mem.PageSize)
	if fsBlockSize >= pageSize {
		if fsBlockSize%pageSize != 0 {
			panicFn(errMisalignedIOSize)
			return nil, errMisalignedIOSize
		}
		dc.ioSize = fsBlockSize
	} else {
		dc.ioSize = pageSize
	}
	dc.fsBlocksPerIO = dc.ioSize / fsBlockSize

	if blockCapacity == 0 {
		panicFn(errZeroCapacity)
		return nil, errZeroCapacity
	}
	capacitySlots := int(blockCapacity / dc.fsBlocksPerIO)
	if capacitySlots == 0 {
		panicFn(errCapacityTooSmall)
		return nil, errCapacityTooSmall
	}

	cache, err := lru.NewLRU[uint64, *cachedBlock](capacitySlots, dc.onEvict)
	if err != nil {
		panicFn(errCapacityTooSmall)
		return nil, errCapacityTooSmall
	}
	dc.cache = cache

	if dc.logicalBlockSize == 512 && uint64(fsLBARange.Begin)%8 != 0 {
		early.Printf("[diskcache] partition starts at an unaligned logical block %d, expect poor performance\n", fsLBARange.Begin)
	}

	return dc, nil
}

// blockToFirstLBA returns the first logical block address backing FS block
// blockIndex.
func (dc *DiskCache) blockToFirstLBA(blockIndex uint64) storage.LBA {
	offset := blockIndex * dc.fsBlockSize
	return dc.fsLBARange.Begin + storage.LBA(offset/dc.logicalBlockSize)
}

// blockToLBARange returns the LBA range a cache slot starting at blockIndex
// needs to read or write on the device.
func (dc *DiskCache) blockToLBARange(blockIndex uint64) storage.LBARange {
	offset := blockIndex * dc.fsBlockSize
	lba := offset / dc.logicalBlockSize
	logicalBlocksPerSlot := dc.ioSize / dc.logicalBlockSize

	if dc.fsBlockSize < dc.ioSize && dc.logicalBlockSize == 512 {
		lba &^= 0b111
	}

	return storage.LBARange{Begin: dc.fsLBARange.Begin + storage.LBA(lba), Count: logicalBlocksPerSlot}
}

// blockIndexToCachedIndex returns the slot key blockIndex belongs to.
func (dc *DiskCache) blockIndexToCachedIndex(blockIndex uint64) uint64 {
	return blockIndex &^ (dc.fsBlocksPerIO - 1)
}

// cachedBlockAndOffset resolves blockIndex to its backing slot and the
// byte offset within that slot, reading it from the device on a miss.
func (dc *DiskCache) cachedBlockAndOffset(blockIndex uint64) (*cachedBlock, uint64) {
	aligned := dc.blockIndexToCachedIndex(blockIndex)
	offset := (blockIndex - aligned) * dc.fsBlockSize

	if cb, ok := dc.cache.Get(aligned); ok {
		return cb, offset
	}

	lbaRange := dc.blockToLBARange(aligned)
	if !dc.fsLBARange.Contains(lbaRange) {
		panicFn(errRangeOutOfBounds)
		return nil, 0
	}

	buffer := make([]byte, dc.ioSize)
	req := storage.MakeReadRequest(buffer, lbaRange)
	dc.device.SubmitRequest(req)
	req.Wait()

	cb := &cachedBlock{buffer: buffer, firstBlock: aligned}
	dc.cache.Add(aligned, cb)

	return cb, offset
}

// onEvict is the LRU's eviction callback: write a dirty slot back before it
// is dropped, the Go-idiomatic replacement for the original's explicit
// evict_one() — simplelru already tracks MRU/LRU order and owns calling
// this the moment Add() pushes the cache over capacity.
func (dc *DiskCache) onEvict(_ uint64, cb *cachedBlock) {
	dc.flushBlock(cb)
}

func (dc *DiskCache) flushBlock(cb *cachedBlock) {
	if !cb.dirty {
		return
	}

	lbaRange := dc.blockToLBARange(cb.firstBlock)
	req := storage.MakeWriteRequest(cb.buffer, lbaRange)
	dc.device.SubmitRequest(req)
	req.Wait()
	cb.dirty = false
}

// ReadOne copies length bytes starting at offset within FS block blockIndex
// into dst.
func (dc *DiskCache) ReadOne(blockIndex, offset, length uint64, dst []byte) kernel.ErrorCode {
	if offset+length > dc.fsBlockSize {
		panicFn(errBlockBoundsExceeded)
		return kernel.NoError
	}

	if dc.ioSize == 0 {
		req := storage.MakeRamdiskRead(dst, offset+blockIndex*dc.fsBlockSize)
		dc.device.SubmitRamdiskRequest(req)
		return req.Result()
	}

	cb, slotOffset := dc.cachedBlockAndOffset(blockIndex)
	if _, ok := mem.SafeCopy(dst, cb.buffer[slotOffset+offset:slotOffset+offset+length], int(length)); !ok {
		return kernel.MemoryAccessViolation
	}
	return kernel.NoError
}

// WriteOne copies length bytes from src into FS block blockIndex starting
// at offset.
func (dc *DiskCache) WriteOne(blockIndex, offset, length uint64, src []byte) kernel.ErrorCode {
	if offset+length > dc.fsBlockSize {
		panicFn(errBlockBoundsExceeded)
		return kernel.NoError
	}

	if dc.ioSize == 0 {
		// The ramdisk fast-path must route through the write request,
		// not the read one — a ramdisk write that actually issued a
		// read would silently discard every byte the caller meant to
		// persist.
		req := storage.MakeRamdiskWrite(src, offset+blockIndex*dc.fsBlockSize)
		dc.device.SubmitRamdiskRequest(req)
		return req.Result()
	}

	cb, slotOffset := dc.cachedBlockAndOffset(blockIndex)
	if _, ok := mem.SafeCopy(cb.buffer[slotOffset+offset:slotOffset+offset+length], src, int(length)); !ok {
		return kernel.MemoryAccessViolation
	}
	cb.dirty = true
	return kernel.NoError
}

// ZeroFillOne zeroes the entirety of FS block blockIndex.
func (dc *DiskCache) ZeroFillOne(blockIndex uint64) kernel.ErrorCode {
	if dc.ioSize == 0 {
		zeroed := make([]byte, dc.fsBlockSize)
		req := storage.MakeRamdiskWrite(zeroed, blockIndex*dc.fsBlockSize)
		dc.device.SubmitRamdiskRequest(req)
		return req.Result()
	}

	cb, slotOffset := dc.cachedBlockAndOffset(blockIndex)
	clear(cb.buffer[slotOffset : slotOffset+dc.fsBlockSize])
	cb.dirty = true
	return kernel.NoError
}

// FlushSpecific writes blockIndex's slot back if it is cached and dirty,
// warning (not panicking) if it isn't cached at all.
func (dc *DiskCache) FlushSpecific(blockIndex uint64) {
	if dc.ioSize == 0 {
		return
	}

	aligned := dc.blockIndexToCachedIndex(blockIndex)
	cb, ok := dc.cache.Peek(aligned)
	if !ok {
		early.Printf("[diskcache] asked to flush uncached block %d\n", blockIndex)
		return
	}
	dc.flushBlock(cb)
}

// FlushAll writes every dirty slot back to the device.
func (dc *DiskCache) FlushAll() {
	if dc.ioSize == 0 {
		return
	}

	for _, key := range dc.cache.Keys() {
		if cb, ok := dc.cache.Peek(key); ok {
			dc.flushBlock(cb)
		}
	}
}
