// Package store implements the scene store (C8): a unified view over the
// console's on-device scene/snippet slots and the local backup-file
// sandbox.
package store

import (
	"context"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/dchest/safefile"
	"github.com/fsnotify/fsnotify"
	"github.com/gofrs/flock"

	"github.com/gravwell/x32mgr/internal/bulk"
	"github.com/gravwell/x32mgr/internal/errs"
	"github.com/gravwell/x32mgr/internal/eventbus"
	"github.com/gravwell/x32mgr/internal/exporter"
	"github.com/gravwell/x32mgr/internal/importer"
	"github.com/gravwell/x32mgr/internal/manifest"
	"github.com/gravwell/x32mgr/internal/osc"
	"github.com/gravwell/x32mgr/internal/scenefile"
	"github.com/gravwell/x32mgr/internal/xlog"
)

// Kind discriminates the two structurally identical slot ranges:
// scenes and snippets each occupy their own 0..99 range.
type Kind string

const (
	KindScene   Kind = "scene"
	KindSnippet Kind = "snippet"
)

func (k Kind) extension() string {
	if k == KindSnippet {
		return ".snp"
	}
	return ".scn"
}

// recallAddress is the console's documented scene-recall command
// address; the slot index is sent as its one integer arg.
const recallAddress = "/-action/gosnap"

// Origin names where a record's data lives.
type Origin int

const (
	OnDevice Origin = iota
	OnDisk
	Both
)

func (o Origin) String() string {
	switch o {
	case OnDevice:
		return "on-device"
	case OnDisk:
		return "on-disk"
	case Both:
		return "both"
	}
	return "unknown"
}

// Record is the union view of a device slot and/or a local backup file
// (a single stored scene or snippet record).
type Record struct {
	ID             string
	Kind           Kind
	Name           string
	SlotIndex      int // -1 if no device slot backs this record
	Origin         Origin
	LastModified   time.Time
	HasLocalBackup bool
	Notes          string
	filename       string // local backup filename, empty if device-only
}

// Requester is the blocking correlator surface used for slot enumeration
// and the post-recall identity-less commands that don't need one.
type Requester interface {
	bulk.Requester
}

// Sender is the fire-and-forget surface used for the recall command.
type Sender interface {
	Send(address string, args []osc.Arg) error
}

const listCacheTTL = 1 * time.Second

// Store owns one sandbox directory plus the live console surfaces it
// needs to enumerate and mutate device slots.
type Store struct {
	log *xlog.Logger
	bus *eventbus.Bus
	req Requester
	snd Sender
	dir string

	mtx        sync.Mutex
	cachedAt   time.Time
	cachedKind Kind
	cachedList []Record

	watcher *fsnotify.Watcher
}

// New builds a Store rooted at dir. dir must already exist.
func New(log *xlog.Logger, bus *eventbus.Bus, req Requester, snd Sender, dir string) (*Store, error) {
	abs, err := filepath.Abs(dir)
	if err != nil {
		return nil, errs.New("store.New", errs.PathEscape, err)
	}
	s := &Store{log: log, bus: bus, req: req, snd: snd, dir: abs}

	w, err := fsnotify.NewWatcher()
	if err == nil {
		if addErr := w.Add(abs); addErr == nil {
			s.watcher = w
			go s.watchLoop()
		} else {
			w.Close()
		}
	}
	return s, nil
}

// Dir returns the sandbox root, for callers that need to operate on raw
// files outside the record abstraction.
func (s *Store) Dir() string { return s.dir }

// Close releases the directory watcher, if one was started.
func (s *Store) Close() error {
	if s.watcher != nil {
		return s.watcher.Close()
	}
	return nil
}

// watchLoop invalidates the list cache whenever the sandbox directory
// changes out from under the store (an externally dropped or removed
// file).
func (s *Store) watchLoop() {
	for {
		select {
		case ev, ok := <-s.watcher.Events:
			if !ok {
				return
			}
			if ev.Op&(fsnotify.Create|fsnotify.Write|fsnotify.Remove|fsnotify.Rename) != 0 {
				s.invalidateCache()
				if s.bus != nil {
					s.bus.Publish(eventbus.Event{Kind: eventbus.SceneListInvalidated})
				}
			}
		case _, ok := <-s.watcher.Errors:
			if !ok {
				return
			}
		}
	}
}

func (s *Store) invalidateCache() {
	s.mtx.Lock()
	s.cachedAt = time.Time{}
	s.cachedList = nil
	s.mtx.Unlock()
}

func (s *Store) fileLock(path string) *flock.Flock {
	return flock.New(path + ".lock")
}

// atomicWrite writes data to path via safefile.Create/Commit so a crash
// mid-export never leaves a half-written file in the sandbox.
func atomicWrite(path string, data []byte) error {
	f, err := safefile.Create(path, 0o644)
	if err != nil {
		return err
	}
	defer f.Close()
	if _, err := f.Write(data); err != nil {
		return err
	}
	return f.Commit()
}

// List enumerates device slots 0..99 for kind plus backup files in the
// sandbox, merged by name. Results are memoized for listCacheTTL to
// collapse bursts of concurrent callers.
func (s *Store) List(ctx context.Context, kind Kind) ([]Record, error) {
	s.mtx.Lock()
	if time.Since(s.cachedAt) < listCacheTTL && s.cachedList != nil && s.cachedKind == kind {
		cached := make([]Record, len(s.cachedList))
		copy(cached, s.cachedList)
		s.mtx.Unlock()
		return cached, nil
	}
	s.mtx.Unlock()

	deviceRecords, err := s.listDeviceSlots(ctx, kind)
	if err != nil {
		return nil, err
	}
	diskRecords, err := s.listDiskFiles(kind)
	if err != nil {
		return nil, err
	}
	merged := mergeRecords(deviceRecords, diskRecords)

	s.mtx.Lock()
	s.cachedAt = time.Now()
	s.cachedKind = kind
	s.cachedList = merged
	s.mtx.Unlock()

	out := make([]Record, len(merged))
	copy(out, merged)
	return out, nil
}

func (s *Store) listDeviceSlots(ctx context.Context, kind Kind) ([]Record, error) {
	queries := make([]bulk.Query, 0, manifest.NumSlots*2)
	for i := 0; i < manifest.NumSlots; i++ {
		queries = append(queries,
			bulk.Query{Address: manifest.SlotNameAddress(string(kind), i), Label: "name"},
			bulk.Query{Address: manifest.SlotNotesAddress(string(kind), i), Label: "notes"},
		)
	}
	results, err := bulk.Sweep(ctx, s.req, queries, bulk.DefaultPolicy(), nil)
	if err != nil && errs.KindOf(err) != errs.Canceled {
		return nil, err
	}

	var records []Record
	for i := 0; i < manifest.NumSlots; i++ {
		nameRes := results[i*2]
		notesRes := results[i*2+1]
		var name, notes string
		if nameRes.Err == nil && len(nameRes.Args) > 0 {
			name = nameRes.Args[0].S
		}
		if notesRes.Err == nil && len(notesRes.Args) > 0 {
			notes = notesRes.Args[0].S
		}
		if name == "" {
			continue // empty name means the slot is absent
		}
		records = append(records, Record{
			ID:        "device-" + strconv.Itoa(i),
			Kind:      kind,
			Name:      name,
			Notes:     notes,
			SlotIndex: i,
			Origin:    OnDevice,
		})
	}
	return records, nil
}

func (s *Store) listDiskFiles(kind Kind) ([]Record, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, errs.New("store.listDiskFiles", errs.TransportError, err)
	}
	var records []Record
	ext := kind.extension()
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ext) {
			continue
		}
		info, err := e.Info()
		if err != nil {
			continue
		}
		base := strings.TrimSuffix(e.Name(), ext)
		records = append(records, Record{
			ID:             "local-" + base,
			Kind:           kind,
			Name:           base,
			SlotIndex:      -1,
			Origin:         OnDisk,
			LastModified:   info.ModTime(),
			HasLocalBackup: true,
			filename:       e.Name(),
		})
	}
	return records, nil
}

// mergeRecords merges by name: an on-device slot
// and a backup file merge into one record (origin=both, keeping the
// device ID) when their names match case-insensitively.
func mergeRecords(device, disk []Record) []Record {
	used := make([]bool, len(disk))
	merged := make([]Record, 0, len(device)+len(disk))

	for _, d := range device {
		matchedIdx := -1
		for i, f := range disk {
			if used[i] {
				continue
			}
			if strings.EqualFold(f.Name, d.Name) {
				matchedIdx = i
				break
			}
		}
		if matchedIdx >= 0 {
			used[matchedIdx] = true
			f := disk[matchedIdx]
			d.Origin = Both
			d.HasLocalBackup = true
			d.LastModified = f.LastModified
			d.filename = f.filename
		}
		merged = append(merged, d)
	}
	for i, f := range disk {
		if !used[i] {
			merged = append(merged, f)
		}
	}

	sort.Slice(merged, func(i, j int) bool { return merged[i].Name < merged[j].Name })
	return merged
}

// Get returns the single record matching id, or NOT_FOUND.
func (s *Store) Get(ctx context.Context, kind Kind, id string) (Record, error) {
	records, err := s.List(ctx, kind)
	if err != nil {
		return Record{}, err
	}
	for _, r := range records {
		if r.ID == id {
			return r, nil
		}
	}
	return Record{}, errs.New("store.Get", errs.NotFound, nil)
}

// Save writes a new backup file to the sandbox containing a
// template-formatted scene header; it does not mutate the device.
func (s *Store) Save(kind Kind, name, notes string) (Record, error) {
	path, err := sanitizeFilename(s.dir, name+kind.extension())
	if err != nil {
		return Record{}, err
	}
	lock := s.fileLock(path)
	if err := lock.Lock(); err != nil {
		return Record{}, errs.New("store.Save", errs.TransportError, err)
	}
	defer lock.Unlock()

	h := scenefile.Header{Firmware: "", Name: name, Notes: notes}
	buf, err := scenefile.Write(h, nil, nil)
	if err != nil {
		return Record{}, err
	}
	if err := atomicWrite(path, buf); err != nil {
		return Record{}, errs.New("store.Save", errs.TransportError, err)
	}
	s.invalidateCache()
	if s.bus != nil {
		s.bus.Publish(eventbus.Event{Kind: eventbus.SceneListInvalidated})
	}
	return Record{ID: "local-" + name, Kind: kind, Name: name, Notes: notes, SlotIndex: -1, Origin: OnDisk, HasLocalBackup: true}, nil
}

// Delete removes a local-or-merged record's backing file; deleting a
// device-only record is UNSUPPORTED (the system never erases on-device
// slots).
func (s *Store) Delete(ctx context.Context, kind Kind, id string) error {
	rec, err := s.Get(ctx, kind, id)
	if err != nil {
		return err
	}
	if rec.Origin == OnDevice {
		return errs.New("store.Delete", errs.Unsupported, nil)
	}
	path := filepath.Join(s.dir, rec.filename)
	lock := s.fileLock(path)
	if err := lock.Lock(); err != nil {
		return errs.New("store.Delete", errs.TransportError, err)
	}
	defer lock.Unlock()

	if err := os.Remove(path); err != nil {
		return errs.New("store.Delete", errs.TransportError, err)
	}
	s.invalidateCache()
	if s.bus != nil {
		s.bus.Publish(eventbus.Event{Kind: eventbus.SceneListInvalidated})
	}
	return nil
}

// Load applies a record: a device slot is recalled with the console's
// scene-recall command; a disk-only backup is replayed via the import
// orchestrator (C7).
func (s *Store) Load(ctx context.Context, kind Kind, id string) error {
	rec, err := s.Get(ctx, kind, id)
	if err != nil {
		return err
	}
	switch rec.Origin {
	case OnDevice, Both:
		if err := s.snd.Send(recallAddress, []osc.Arg{osc.Int(int32(rec.SlotIndex))}); err != nil {
			return errs.New("store.Load", errs.TransportError, err)
		}
		if s.bus != nil {
			s.bus.Publish(eventbus.Event{Kind: eventbus.SceneLoaded, Payload: rec})
		}
		return nil
	default:
		data, err := os.ReadFile(filepath.Join(s.dir, rec.filename))
		if err != nil {
			return errs.New("store.Load", errs.TransportError, err)
		}
		policy := importer.DefaultPolicy()
		_, err = importer.Import(ctx, s.snd, s.req, s.bus, data, "", policy, nil)
		return err
	}
}

// Backup copies the device slot's current parameters into a local file
// via the export orchestrator's scene-export path.
func (s *Store) Backup(ctx context.Context, kind Kind, id string) (Record, error) {
	rec, err := s.Get(ctx, kind, id)
	if err != nil {
		return Record{}, err
	}
	if rec.SlotIndex < 0 {
		return Record{}, errs.New("store.Backup", errs.Unsupported, nil)
	}

	buf, _, err := exporter.ExportScene(ctx, s.req, rec.Name, rec.Notes, bulk.DefaultPolicy(), nil)
	if err != nil {
		return Record{}, err
	}

	filename := rec.Name + kind.extension()
	path, err := sanitizeFilename(s.dir, filename)
	if err != nil {
		return Record{}, err
	}
	lock := s.fileLock(path)
	if err := lock.Lock(); err != nil {
		return Record{}, errs.New("store.Backup", errs.TransportError, err)
	}
	defer lock.Unlock()

	if err := atomicWrite(path, buf); err != nil {
		return Record{}, errs.New("store.Backup", errs.TransportError, err)
	}
	s.invalidateCache()
	if s.bus != nil {
		s.bus.Publish(eventbus.Event{Kind: eventbus.SceneListInvalidated})
	}
	rec.Origin = Both
	rec.HasLocalBackup = true
	rec.filename = filename
	return rec, nil
}

// ReadBackupFile returns the raw bytes of a local backup file by its
// on-disk filename, routed through the same sandbox sanitizer and
// per-file advisory lock every other disk path in this package uses.
// Callers that only have a filename (e.g. a directory listing) and
// haven't resolved it to a Record use this instead of touching the
// filesystem directly.
func (s *Store) ReadBackupFile(filename string) ([]byte, error) {
	path, err := sanitizeFilename(s.dir, filename)
	if err != nil {
		return nil, err
	}
	lock := s.fileLock(path)
	if err := lock.Lock(); err != nil {
		return nil, errs.New("store.ReadBackupFile", errs.TransportError, err)
	}
	defer lock.Unlock()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, errs.New("store.ReadBackupFile", errs.NotFound, err)
		}
		return nil, errs.New("store.ReadBackupFile", errs.TransportError, err)
	}
	return data, nil
}
