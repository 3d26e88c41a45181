// Package recordstore implements the heap file this storage engine's B+
// tree indexes point into: a fixed-size paged disk file, a slotted-page
// record manager on top of it, and a full-scan iterator. It plays the
// role the specification treats as an external collaborator — something
// that assigns opaque integer record ids and supports insert/delete/select
// and a full scan with a reversible (page, slot) encoding.
//
// This package deliberately has no third-party dependencies: the
// reversible integer encoding of a (page, slot) pair and the slotted-page
// layout are exact-format requirements, not a concern any general-purpose
// storage driver is built to preserve.
package recordstore

import (
	"encoding/binary"
	"fmt"
	"os"
)

const (
	pageSize   = 4096
	pageHeader = 8 // slot count (uint32) + 4 unused bytes
	slotSize   = 8 // offset (uint32) + length (uint32); length 0 means tombstoned
)

// RecordID is an opaque handle to a stored record: a reversible encoding
// of (pageID, slotID) into one int64, high 32 bits the page, low 32 the
// slot.
type RecordID int64

// Encode packs a page id and slot id into a RecordID.
func Encode(pageID, slotID uint32) RecordID {
	return RecordID(int64(pageID)<<32 | int64(slotID))
}

// Decode unpacks a RecordID into its page id and slot id.
func (r RecordID) Decode() (pageID, slotID uint32) {
	return uint32(int64(r) >> 32), uint32(int64(r) & 0xFFFFFFFF)
}

// DiskManager owns the heap file and its fixed-size pages.
type DiskManager struct {
	file      *os.File
	pageCount uint32
}

// OpenDiskManager opens (creating if necessary) the heap file at path.
func OpenDiskManager(path string) (*DiskManager, error) {
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE, 0644)
	if err != nil {
		return nil, fmt.Errorf("open heap file: %w", err)
	}
	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("stat heap file: %w", err)
	}
	return &DiskManager{
		file:      f,
		pageCount: uint32(info.Size() / pageSize),
	}, nil
}

// AllocatePage extends the heap file by one zeroed page and returns its id.
func (d *DiskManager) AllocatePage() (uint32, error) {
	id := d.pageCount
	buf := make([]byte, pageSize) // slot count defaults to 0
	if _, err := d.file.WriteAt(buf, int64(id)*pageSize); err != nil {
		return 0, fmt.Errorf("allocate page %d: %w", id, err)
	}
	d.pageCount++
	return id, nil
}

// ReadPage reads the raw bytes of page id.
func (d *DiskManager) ReadPage(id uint32) ([]byte, error) {
	buf := make([]byte, pageSize)
	if _, err := d.file.ReadAt(buf, int64(id)*pageSize); err != nil {
		return nil, fmt.Errorf("read page %d: %w", id, err)
	}
	return buf, nil
}

// WritePage overwrites page id with buf (must be pageSize bytes).
func (d *DiskManager) WritePage(id uint32, buf []byte) error {
	if len(buf) != pageSize {
		return fmt.Errorf("write page %d: buffer must be %d bytes, got %d", id, pageSize, len(buf))
	}
	if _, err := d.file.WriteAt(buf, int64(id)*pageSize); err != nil {
		return fmt.Errorf("write page %d: %w", id, err)
	}
	return nil
}

// PageCount returns the number of allocated pages.
func (d *DiskManager) PageCount() uint32 {
	return d.pageCount
}

// Close flushes and closes the heap file.
func (d *DiskManager) Close() error {
	if err := d.file.Sync(); err != nil {
		return fmt.Errorf("sync heap file: %w", err)
	}
	return d.file.Close()
}

// RecordManager is a slotted-page heap built on a DiskManager: each page
// holds a slot directory (offset, length per slot, with length 0 marking
// a deleted slot) and variable-length record bytes growing down from the
// end of the page.
type RecordManager struct {
	disk *DiskManager
}

// NewRecordManager wraps disk in a RecordManager.
func NewRecordManager(disk *DiskManager) *RecordManager {
	return &RecordManager{disk: disk}
}

func slotCount(page []byte) uint32 {
	return binary.LittleEndian.Uint32(page[0:4])
}

func setSlotCount(page []byte, n uint32) {
	binary.LittleEndian.PutUint32(page[0:4], n)
}

func slotAt(page []byte, slot uint32) (offset, length uint32) {
	base := pageHeader + int(slot)*slotSize
	return binary.LittleEndian.Uint32(page[base : base+4]), binary.LittleEndian.Uint32(page[base+4 : base+8])
}

func setSlotAt(page []byte, slot uint32, offset, length uint32) {
	base := pageHeader + int(slot)*slotSize
	binary.LittleEndian.PutUint32(page[base:base+4], offset)
	binary.LittleEndian.PutUint32(page[base+4:base+8], length)
}

// Insert appends data as a new record and returns its id.
func (rm *RecordManager) Insert(data []byte) (RecordID, error) {
	if len(data)+slotSize > pageSize-pageHeader {
		return 0, fmt.Errorf("record of %d bytes exceeds page capacity", len(data))
	}

	for pid := uint32(0); pid < rm.disk.PageCount(); pid++ {
		page, err := rm.disk.ReadPage(pid)
		if err != nil {
			return 0, err
		}
		if id, ok, err := rm.tryInsertInPage(pid, page, data); err != nil {
			return 0, err
		} else if ok {
			return id, nil
		}
	}

	pid, err := rm.disk.AllocatePage()
	if err != nil {
		return 0, err
	}
	page, err := rm.disk.ReadPage(pid)
	if err != nil {
		return 0, err
	}
	id, ok, err := rm.tryInsertInPage(pid, page, data)
	if err != nil {
		return 0, err
	}
	if !ok {
		return 0, fmt.Errorf("record does not fit even in a fresh page")
	}
	return id, nil
}

// tryInsertInPage reuses the first tombstoned slot if the record fits,
// else appends a new slot, else reports no room (caller tries the next
// page or allocates a fresh one). Record bytes grow down from the end of
// the page; the slot directory grows up from the header.
func (rm *RecordManager) tryInsertInPage(pid uint32, page []byte, data []byte) (RecordID, bool, error) {
	n := slotCount(page)
	used := pageHeader + int(n)*slotSize
	dataUsed := int(rm.dataBytesUsed(page, n))

	for slot := uint32(0); slot < n; slot++ {
		off, length := slotAt(page, slot)
		if length == 0 && off == 0 {
			if len(data) > pageSize-used-dataUsed {
				continue
			}
			newOff := pageSize - dataUsed - len(data)
			copy(page[newOff:newOff+len(data)], data)
			setSlotAt(page, slot, uint32(newOff), uint32(len(data)))
			if err := rm.disk.WritePage(pid, page); err != nil {
				return 0, false, err
			}
			return Encode(pid, slot), true, nil
		}
	}

	if len(data) > pageSize-used-slotSize-dataUsed {
		return 0, false, nil
	}

	newOff := pageSize - dataUsed - len(data)
	copy(page[newOff:newOff+len(data)], data)
	setSlotAt(page, n, uint32(newOff), uint32(len(data)))
	setSlotCount(page, n+1)
	if err := rm.disk.WritePage(pid, page); err != nil {
		return 0, false, err
	}
	return Encode(pid, n), true, nil
}

// dataBytesUsed returns the size of the record-data region: the bytes from
// the lowest live record's offset to the end of the page. Space freed by a
// deleted record inside that region is not reused until the page is empty.
func (rm *RecordManager) dataBytesUsed(page []byte, n uint32) uint32 {
	low := uint32(pageSize)
	for slot := uint32(0); slot < n; slot++ {
		off, length := slotAt(page, slot)
		if length > 0 && off < low {
			low = off
		}
	}
	return pageSize - low
}

// Select returns the bytes stored under id, or an error if the slot is
// empty or was deleted.
func (rm *RecordManager) Select(id RecordID) ([]byte, error) {
	pid, slot := id.Decode()
	page, err := rm.disk.ReadPage(pid)
	if err != nil {
		return nil, err
	}
	if slot >= slotCount(page) {
		return nil, fmt.Errorf("record %d: slot out of range", id)
	}
	off, length := slotAt(page, slot)
	if length == 0 {
		return nil, fmt.Errorf("record %d: not found", id)
	}
	out := make([]byte, length)
	copy(out, page[off:off+length])
	return out, nil
}

// Delete tombstones the slot for id, releasing it for reuse.
func (rm *RecordManager) Delete(id RecordID) error {
	pid, slot := id.Decode()
	page, err := rm.disk.ReadPage(pid)
	if err != nil {
		return err
	}
	if slot >= slotCount(page) {
		return fmt.Errorf("record %d: slot out of range", id)
	}
	_, length := slotAt(page, slot)
	if length == 0 {
		return fmt.Errorf("record %d: not found", id)
	}
	setSlotAt(page, slot, 0, 0)
	return rm.disk.WritePage(pid, page)
}

// Update overwrites the bytes for an existing record id in place,
// deleting and reinserting if the new payload no longer fits its slot.
func (rm *RecordManager) Update(id RecordID, data []byte) (RecordID, error) {
	pid, slot := id.Decode()
	page, err := rm.disk.ReadPage(pid)
	if err != nil {
		return 0, err
	}
	if slot >= slotCount(page) {
		return 0, fmt.Errorf("record %d: slot out of range", id)
	}
	off, length := slotAt(page, slot)
	if length == 0 {
		return 0, fmt.Errorf("record %d: not found", id)
	}
	if uint32(len(data)) <= length {
		copy(page[off:off+uint32(len(data))], data)
		setSlotAt(page, slot, off, uint32(len(data)))
		if err := rm.disk.WritePage(pid, page); err != nil {
			return 0, err
		}
		return id, nil
	}

	if err := rm.Delete(id); err != nil {
		return 0, err
	}
	return rm.Insert(data)
}

// RecordIterator performs a full scan of every live record in page order.
type RecordIterator struct {
	rm      *RecordManager
	pid     uint32
	slot    uint32
	page    []byte
	n       uint32
}

// Scan returns an iterator positioned before the first record.
func (rm *RecordManager) Scan() *RecordIterator {
	return &RecordIterator{rm: rm}
}

// Next advances the iterator, returning the next live record's bytes and
// id and true, or false when the scan is exhausted.
func (it *RecordIterator) Next() ([]byte, RecordID, bool, error) {
	for {
		if it.page == nil {
			if it.pid >= it.rm.disk.PageCount() {
				return nil, 0, false, nil
			}
			page, err := it.rm.disk.ReadPage(it.pid)
			if err != nil {
				return nil, 0, false, err
			}
			it.page = page
			it.n = slotCount(page)
			it.slot = 0
		}

		if it.slot >= it.n {
			it.page = nil
			it.pid++
			continue
		}

		off, length := slotAt(it.page, it.slot)
		id := Encode(it.pid, it.slot)
		it.slot++
		if length == 0 {
			continue
		}
		data := make([]byte, length)
		copy(data, it.page[off:off+length])
		return data, id, true, nil
	}
}
