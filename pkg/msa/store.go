// Copyright 2025 Raamsri Kumar <raam@tinkershack.in>
// Copyright 2025 The StrataSTOR Authors and Contributors
// SPDX-License-Identifier: Apache-2.0

package msa

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/stratastor/afdmon/pkg/afdconfig"
	"github.com/stratastor/afdmon/pkg/errors"
	"github.com/stratastor/logger"
)

// Store owns the currently-attached region and the on-disk ID file
// that arbitrates which backing file is "current" (§3.2, §4.B).
type Store struct {
	dir string // fifodir-equivalent: directory holding status.<N> and msa.id
	l   logger.Logger

	mu       sync.RWMutex
	id       int32
	header   *Header
	rows     []*Row
	mapping  *mapping
	writable bool
}

func statusFilePath(dir string, id int32) string {
	return filepath.Join(dir, fmt.Sprintf("status.%d", id))
}

func idFilePath(dir string) string {
	return filepath.Join(dir, "msa.id")
}

// AttachPassive maps whatever region msa.id currently names, read-only,
// without taking the ID-file lock (§4.B "readers attach passively").
// Callers (status/probe tooling) must call Reattach whenever IsStale()
// is observed on the returned Store.
func AttachPassive(dir string, l logger.Logger) (*Store, error) {
	idf, err := OpenIDFile(idFilePath(dir))
	if err != nil {
		return nil, err
	}
	defer idf.Close()

	id, err := idf.Read()
	if err != nil {
		return nil, err
	}
	if id < 0 {
		return nil, errors.New(errors.MsaStaleRegion, "no MSA has ever been published")
	}

	s := &Store{dir: dir, l: l}
	if err := s.attach(id, false); err != nil {
		return nil, err
	}
	return s, nil
}

// AttachActive maps whatever region msa.id currently names PROT_WRITE
// as well as PROT_READ (§4.B "attach_active()"). Monitor (F) and
// log-mux (G) workers use this, not AttachPassive, since both publish
// their own row into the live mapping on every poll/frame.
func AttachActive(dir string, l logger.Logger) (*Store, error) {
	idf, err := OpenIDFile(idFilePath(dir))
	if err != nil {
		return nil, err
	}
	defer idf.Close()

	id, err := idf.Read()
	if err != nil {
		return nil, err
	}
	if id < 0 {
		return nil, errors.New(errors.MsaStaleRegion, "no MSA has ever been published")
	}

	s := &Store{dir: dir, l: l}
	if err := s.attach(id, true); err != nil {
		return nil, err
	}
	return s, nil
}

// attach maps status.<id> at its current size and decodes every row.
// Holds s.mu only while swapping the new mapping in.
func (s *Store) attach(id int32, writable bool) error {
	path := statusFilePath(s.dir, id)
	f, err := os.OpenFile(path, os.O_RDWR, 0644)
	if err != nil {
		return errors.Wrap(err, errors.MsaAttachFailed).WithMetadata("path", path)
	}

	info, err := f.Stat()
	if err != nil {
		f.Close()
		return errors.Wrap(err, errors.MsaAttachFailed).WithMetadata("path", path)
	}
	if info.Size() < HeaderSize {
		f.Close()
		return errors.New(errors.MsaTruncatedFile, "backing file smaller than header")
	}

	m, err := mmapFile(f, info.Size(), writable)
	if err != nil {
		f.Close()
		return err
	}

	h, err := DecodeHeader(m.data[:HeaderSize])
	if err != nil {
		m.unmap()
		f.Close()
		return err
	}

	var rows []*Row
	if !h.IsStale() {
		rows = make([]*Row, h.Count)
		for i := int32(0); i < h.Count; i++ {
			off := AfdWordOffset + int(i)*RowSize
			if off+RowSize > len(m.data) {
				m.unmap()
				f.Close()
				return errors.New(errors.MsaTruncatedFile, "row data shorter than header's declared count")
			}
			rows[i] = DecodeRow(m.data[off : off+RowSize])
		}
	}

	s.mu.Lock()
	if s.mapping != nil {
		s.mapping.unmap()
		s.mapping.file.Close()
	}
	s.id = id
	s.header = h
	s.rows = rows
	s.mapping = m
	s.writable = writable
	s.mu.Unlock()

	return nil
}

// Reattach re-reads msa.id and, if it names a different region than
// the one currently mapped, detaches the old region and attaches the
// new one (§3.2 "stale -> re-lookup msa_id -> remap"). The remap keeps
// whichever protection this Store was originally opened with
// (AttachActive stays writable across a reattach).
func (s *Store) Reattach() error {
	idf, err := OpenIDFile(idFilePath(s.dir))
	if err != nil {
		return err
	}
	defer idf.Close()

	id, err := idf.Read()
	if err != nil {
		return err
	}
	if id < 0 {
		return errors.New(errors.MsaStaleRegion, "no MSA has ever been published")
	}

	s.mu.RLock()
	same := id == s.id
	writable := s.writable
	s.mu.RUnlock()
	if same {
		return nil
	}
	return s.attach(id, writable)
}

// IsStale reports whether the currently-mapped header carries the
// stale sentinel; callers should call Reattach and retry.
func (s *Store) IsStale() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.header == nil || s.header.IsStale()
}

// Rows returns a snapshot slice of the currently-mapped rows. The
// slice itself is not safe for concurrent mutation by callers; use
// UpdateRow for writes.
func (s *Store) Rows() []*Row {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*Row, len(s.rows))
	copy(out, s.rows)
	return out
}

// RowByAlias returns the row for alias, or nil.
func (s *Store) RowByAlias(alias string) *Row {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, r := range s.rows {
		if r.Alias == alias {
			return r
		}
	}
	return nil
}

// UpdateRow re-encodes r into its slot and syncs the bytes into the
// mapped region in place (no swap: a poll update never changes the
// row count or schema, so it writes straight into the live mapping,
// §4.F "publishes into its MSA slot on the poll cadence").
func (s *Store) UpdateRow(index int, r *Row) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.writable {
		return errors.New(errors.MsaNotWritable, "use AttachActive to publish rows")
	}
	if index < 0 || index >= len(s.rows) {
		return errors.New(errors.MsaRowOutOfRange, fmt.Sprintf("index %d", index))
	}

	buf := EncodeRow(r)
	off := AfdWordOffset + index*RowSize
	copy(s.mapping.data[off:off+RowSize], buf)
	s.rows[index] = r
	return nil
}

// RotateBuckets advances every row's rolling sum-counter window by one
// slot and writes the result back into the live mapping, the periodic
// maintenance counterpart to the per-poll accumulation into
// CurrentSumBucket (§3.1 "six rolling windows").
func (s *Store) RotateBuckets() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.writable {
		return errors.New(errors.MsaNotWritable, "use AttachActive to rotate buckets")
	}

	for i, r := range s.rows {
		rotateRowBuckets(r)
		off := AfdWordOffset + i*RowSize
		copy(s.mapping.data[off:off+RowSize], EncodeRow(r))
	}
	return nil
}

// RefreshGroupSummary re-runs group aggregation over the
// currently-mapped rows against entries (which must be the same
// configuration the region was last rebuilt from) and writes the
// updated header rows back into the live mapping. Used by the
// supervisor's periodic maintenance job to keep group status current
// between rebuilds (§4.B "Group aggregation").
func (s *Store) RefreshGroupSummary(entries []*afdconfig.ConfigEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.writable {
		return errors.New(errors.MsaNotWritable, "use AttachActive to refresh group summary")
	}

	if err := updateGroupSummary(entries, s.rows); err != nil {
		return err
	}
	for i, r := range s.rows {
		off := AfdWordOffset + i*RowSize
		copy(s.mapping.data[off:off+RowSize], EncodeRow(r))
	}
	return nil
}

// Detach unmaps and closes the current region without touching
// msa.id or unlinking the backing file (used when switching to a
// newly-rebuilt region: the old file is unlinked separately once every
// known reader has had a chance to reattach, §4.B step 8).
func (s *Store) Detach() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.mapping == nil {
		return nil
	}
	err := s.mapping.unmap()
	s.mapping.file.Close()
	s.mapping = nil
	return err
}

// Rebuild implements §4.B's 9-step rebuild algorithm: given the
// freshly-parsed configuration, it produces a new MSA generation that
// carries over every row's runtime state from the previous generation
// (matched by alias) and publishes it atomically via the ID file.
//
// Only the supervisor (component E) calls Rebuild; every other
// component only ever attaches passively and reacts to staleness.
func Rebuild(dir string, entries []*afdconfig.ConfigEntry, l logger.Logger) (*Store, error) {
	// Step 1: acquire the ID-file lock; this serializes rebuild
	// against any concurrent rebuild (there is at most one supervisor,
	// but the lock also protects against a stale supervisor lingering
	// past a liveness-probe defeat, §4.D).
	idf, err := OpenIDFile(idFilePath(dir))
	if err != nil {
		return nil, err
	}
	defer idf.Close()

	if err := idf.Lock(); err != nil {
		return nil, err
	}
	defer idf.Unlock()

	oldID, err := idf.Read()
	if err != nil {
		return nil, err
	}

	// Step 2-3: if a previous generation exists, attach it (converting
	// forward to v3 if its on-disk version is older) and mark it
	// stale so any reader observing it mid-swap backs off (§3.2).
	var oldRows []*Row
	if oldID >= 0 {
		oldRows, err = loadAndConvert(dir, oldID)
		if err != nil {
			l.Warn("rebuild: previous MSA generation unreadable, starting fresh", "error", err.Error())
			oldRows = nil
		} else {
			if err := markStale(dir, oldID); err != nil {
				l.Warn("rebuild: failed to mark previous generation stale", "error", err.Error())
			}
		}
	}

	// Step 4: choose new_msa_id and pre-allocate the backing file.
	newID := oldID + 1
	if newID < 0 {
		newID = 0
	}
	count := int32(len(entries))
	size := int64(AfdWordOffset) + int64(count)*int64(RowSize)
	path := statusFilePath(dir, newID)
	if err := writeZeroFilledFile(path, size); err != nil {
		return nil, err
	}

	f, err := os.OpenFile(path, os.O_RDWR, 0644)
	if err != nil {
		return nil, errors.Wrap(err, errors.MsaRebuildFailed).WithMetadata("path", path)
	}

	m, err := mmapFile(f, size, true)
	if err != nil {
		f.Close()
		return nil, err
	}

	// Step 5-6: build every row from the new config, carrying over
	// runtime state from a same-alias row in the old generation (the
	// "gotcha" bitset: each old row is matched to at most one new row
	// in a single pass, so a renamed-then-reused alias never double
	// matches).
	matched := make([]bool, len(oldRows))
	rows := make([]*Row, count)
	for i, e := range entries {
		nr := NewRowFromEntry(e)
		for j, or := range oldRows {
			if matched[j] || or.Alias != e.Alias {
				continue
			}
			carryOverRuntimeState(nr, or)
			matched[j] = true
			break
		}
		rows[i] = nr
		copy(m.data[AfdWordOffset+i*RowSize:AfdWordOffset+(i+1)*RowSize], EncodeRow(nr))
	}

	if err := updateGroupSummary(entries, rows); err != nil {
		m.unmap()
		f.Close()
		return nil, err
	}
	for i, r := range rows {
		copy(m.data[AfdWordOffset+i*RowSize:AfdWordOffset+(i+1)*RowSize], EncodeRow(r))
	}

	// Step 7: stamp the header last, after every row is in place, so a
	// concurrent passive reader never observes a non-stale header with
	// partially-written rows.
	h := &Header{Count: count, Version: CurrentVersion, PageSize: int32(RowSize)}
	copy(m.data[0:HeaderSize], EncodeHeader(h))
	if err := f.Sync(); err != nil {
		m.unmap()
		f.Close()
		return nil, errors.Wrap(err, errors.MsaRebuildFailed)
	}

	// Step 8: unlink the previous generation's backing file; readers
	// still holding it mapped keep a valid (if stale) view until they
	// reattach, per mmap-survives-unlink semantics.
	if oldID >= 0 {
		os.Remove(statusFilePath(dir, oldID))
	}

	// Step 9: publish new_msa_id and release the lock (deferred Unlock
	// above).
	if err := idf.Write(newID); err != nil {
		m.unmap()
		f.Close()
		return nil, err
	}

	s := &Store{dir: dir, l: l, id: newID, header: h, rows: rows, mapping: m, writable: true}
	return s, nil
}

// loadAndConvert attaches status.<id> read-only and upgrades its rows
// to v3 if the on-disk header carries an older version (§4.B
// "Conversion rules").
func loadAndConvert(dir string, id int32) ([]*Row, error) {
	path := statusFilePath(dir, id)
	f, err := os.OpenFile(path, os.O_RDONLY, 0644)
	if err != nil {
		return nil, errors.Wrap(err, errors.MsaAttachFailed).WithMetadata("path", path)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return nil, errors.Wrap(err, errors.MsaAttachFailed)
	}
	buf := make([]byte, info.Size())
	if _, err := f.ReadAt(buf, 0); err != nil {
		return nil, errors.Wrap(err, errors.MsaAttachFailed)
	}

	h, err := DecodeHeader(buf[:HeaderSize])
	if err != nil {
		return nil, err
	}
	if h.IsStale() {
		return nil, errors.New(errors.MsaStaleRegion, "previous generation already stale")
	}

	return ConvertRows(buf[AfdWordOffset:], h.Version, h.Count)
}

// markStale flips status.<id>'s header count to the stale sentinel in
// place, without needing to hold the region mapped (§3.2).
func markStale(dir string, id int32) error {
	path := statusFilePath(dir, id)
	f, err := os.OpenFile(path, os.O_RDWR, 0644)
	if err != nil {
		return errors.Wrap(err, errors.MsaAttachFailed).WithMetadata("path", path)
	}
	defer f.Close()

	stale := make([]byte, 4)
	// Count is the header's first field; overwrite just those 4 bytes.
	for i := range stale {
		stale[i] = 0xff
	}
	_, err = f.WriteAt(stale, 0)
	return err
}

// carryOverRuntimeState copies the fields that must survive a rebuild
// (§4.B step 6: counters, history, sum buckets, afd_toggle) from an
// old-generation row into a freshly config-initialized new row.
func carryOverRuntimeState(dst, src *Row) {
	dst.AfdID = src.AfdID
	dst.ConnectStatus = src.ConnectStatus
	dst.AfdToggle = src.AfdToggle
	dst.SpecialFlag = src.SpecialFlag
	dst.AMG = src.AMG
	dst.FD = src.FD
	dst.ArchiveWatch = src.ArchiveWatch

	dst.JobsInQueue = src.JobsInQueue
	dst.NoOfTransfers = src.NoOfTransfers
	dst.HostErrorCounter = src.HostErrorCounter
	dst.NoOfHosts = src.NoOfHosts
	dst.NoOfDirs = src.NoOfDirs
	dst.NoOfJobs = src.NoOfJobs
	dst.DangerNoOfJobs = src.DangerNoOfJobs
	dst.FC = src.FC
	dst.FS = src.FS
	dst.TR = src.TR
	dst.FR = src.FR
	dst.EC = src.EC

	dst.TopNoOfTransfers = src.TopNoOfTransfers
	dst.TopTR = src.TopTR
	dst.TopFR = src.TopFR
	dst.TopNoOfTransfersTime = src.TopNoOfTransfersTime
	dst.TopTRTime = src.TopTRTime
	dst.TopFRTime = src.TopFRTime

	dst.Sum = src.Sum
	dst.LogHistory = src.LogHistory
	dst.LastDataTime = src.LastDataTime
}
