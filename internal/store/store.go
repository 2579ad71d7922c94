package store

import (
	"context"
	"encoding/json"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/inboxvault/inboxvault/internal/models"
	appErrors "github.com/inboxvault/inboxvault/pkg/errors"
)

// guardLinger keeps the guard raised briefly past each write because
// the notification the write triggers is delivered asynchronously.
const guardLinger = 100 * time.Millisecond

// Store holds the deduplicated archive collection in memory and
// persists every mutation to the shared medium as a whole-collection
// JSON document. All mutating methods raise the guard around the
// medium write.
type Store struct {
	medium Medium
	guard  *Guard
	logger *zap.Logger

	mu      sync.RWMutex
	records map[string]models.ArchivedRecord
	seq     uint64

	persistMu sync.Mutex
	persisted uint64
}

func New(medium Medium, guard *Guard, logger *zap.Logger) *Store {
	return &Store{
		medium:  medium,
		guard:   guard,
		logger:  logger,
		records: make(map[string]models.ArchivedRecord),
	}
}

// Guard exposes the shared reentrancy guard for the reconciler.
func (s *Store) Guard() *Guard {
	return s.guard
}

// Load reads the persisted collection into memory. A missing or empty
// payload loads an empty collection; a corrupt payload is an error so
// a later write cannot silently destroy data.
func (s *Store) Load(ctx context.Context) error {
	raw, err := s.medium.Get(ctx)
	if err != nil {
		return err
	}

	records := make(map[string]models.ArchivedRecord)
	if len(raw) > 0 {
		var list []models.ArchivedRecord
		if err := json.Unmarshal(raw, &list); err != nil {
			return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "decode archive collection")
		}
		for _, rec := range list {
			if rec.ID == "" {
				continue
			}
			records[rec.ID] = rec
		}
	}

	s.mu.Lock()
	s.records = records
	s.mu.Unlock()
	s.logger.Info("archive collection loaded", zap.Int("records", len(records)))
	return nil
}

// Reload re-reads the collection after an external change
// notification. It never raises the guard: the change was not ours.
func (s *Store) Reload(ctx context.Context) error {
	return s.Load(ctx)
}

// Add inserts a record unless its id is already archived. The archival
// timestamp is stamped here when the caller left it zero. Returns the
// stored record and whether it was newly added.
func (s *Store) Add(ctx context.Context, rec models.ArchivedRecord) (models.ArchivedRecord, bool, error) {
	s.mu.Lock()
	if existing, ok := s.records[rec.ID]; ok {
		s.mu.Unlock()
		return existing, false, nil
	}
	if rec.Timestamp.IsZero() {
		rec.Timestamp = time.Now().UTC()
	}
	s.records[rec.ID] = rec
	payload, err := s.snapshotLocked()
	s.mu.Unlock()
	if err != nil {
		return models.ArchivedRecord{}, false, err
	}
	if err := s.persist(ctx, payload); err != nil {
		return models.ArchivedRecord{}, false, err
	}
	return rec, true, nil
}

// Get returns the record archived under id.
func (s *Store) Get(id string) (models.ArchivedRecord, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.records[id]
	return rec, ok
}

// Contains reports whether id is archived.
func (s *Store) Contains(id string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.records[id]
	return ok
}

// All returns every archived record, newest first by effective
// timestamp.
func (s *Store) All() []models.ArchivedRecord {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.sortedLocked()
}

// Len returns the number of archived records.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.records)
}

// RemoveMany deletes the given ids and returns the records that were
// actually archived. Unknown ids are skipped, not errors: a restore
// races with external writers removing the same records.
func (s *Store) RemoveMany(ctx context.Context, ids []string) ([]models.ArchivedRecord, error) {
	s.mu.Lock()
	removed := make([]models.ArchivedRecord, 0, len(ids))
	for _, id := range ids {
		if rec, ok := s.records[id]; ok {
			removed = append(removed, rec)
			delete(s.records, id)
		}
	}
	if len(removed) == 0 {
		s.mu.Unlock()
		return nil, nil
	}
	payload, err := s.snapshotLocked()
	s.mu.Unlock()
	if err != nil {
		return nil, err
	}
	if err := s.persist(ctx, payload); err != nil {
		return nil, err
	}
	return removed, nil
}

// SetNotes replaces the notes on an archived record. An unknown id is
// a warned no-op, not an error: a notes edit racing an external
// removal must not fail the operator flow.
func (s *Store) SetNotes(ctx context.Context, id, notes string) (models.ArchivedRecord, bool, error) {
	s.mu.Lock()
	rec, ok := s.records[id]
	if !ok {
		s.mu.Unlock()
		s.logger.Warn("notes for unknown record", zap.String("id", id))
		return models.ArchivedRecord{}, false, nil
	}
	rec.Notes = notes
	s.records[id] = rec
	payload, err := s.snapshotLocked()
	s.mu.Unlock()
	if err != nil {
		return models.ArchivedRecord{}, false, err
	}
	if err := s.persist(ctx, payload); err != nil {
		return models.ArchivedRecord{}, false, err
	}
	return rec, true, nil
}

// Clear empties the collection and returns how many records were
// dropped.
func (s *Store) Clear(ctx context.Context) (int, error) {
	s.mu.Lock()
	dropped := len(s.records)
	s.records = make(map[string]models.ArchivedRecord)
	payload, err := s.snapshotLocked()
	s.mu.Unlock()
	if err != nil {
		return 0, err
	}
	if err := s.persist(ctx, payload); err != nil {
		return 0, err
	}
	return dropped, nil
}

// ReplaceAll swaps the whole collection for the imported records.
func (s *Store) ReplaceAll(ctx context.Context, recs []models.ArchivedRecord) (int, error) {
	s.mu.Lock()
	s.records = make(map[string]models.ArchivedRecord, len(recs))
	for _, rec := range recs {
		if rec.ID == "" {
			continue
		}
		s.records[rec.ID] = rec
	}
	count := len(s.records)
	payload, err := s.snapshotLocked()
	s.mu.Unlock()
	if err != nil {
		return 0, err
	}
	if err := s.persist(ctx, payload); err != nil {
		return 0, err
	}
	return count, nil
}

// MergeIn adds imported records whose ids are not archived yet.
// Existing records always win over imported ones.
func (s *Store) MergeIn(ctx context.Context, recs []models.ArchivedRecord) (int, error) {
	s.mu.Lock()
	added := 0
	for _, rec := range recs {
		if rec.ID == "" {
			continue
		}
		if _, ok := s.records[rec.ID]; ok {
			continue
		}
		if rec.Timestamp.IsZero() {
			rec.Timestamp = time.Now().UTC()
		}
		s.records[rec.ID] = rec
		added++
	}
	if added == 0 {
		s.mu.Unlock()
		return 0, nil
	}
	payload, err := s.snapshotLocked()
	s.mu.Unlock()
	if err != nil {
		return 0, err
	}
	if err := s.persist(ctx, payload); err != nil {
		return 0, err
	}
	return added, nil
}

func (s *Store) sortedLocked() []models.ArchivedRecord {
	list := make([]models.ArchivedRecord, 0, len(s.records))
	for _, rec := range s.records {
		list = append(list, rec)
	}
	sort.Slice(list, func(i, j int) bool {
		ti, tj := list[i].EffectiveTimestamp(), list[j].EffectiveTimestamp()
		if ti.Equal(tj) {
			return list[i].ID < list[j].ID
		}
		return ti.After(tj)
	})
	return list
}

// snapshot pairs an encoded collection with its mutation sequence so
// persist can tell which of two racing writes is the newer state.
type snapshot struct {
	seq     uint64
	payload []byte
}

func (s *Store) snapshotLocked() (snapshot, error) {
	payload, err := json.Marshal(s.sortedLocked())
	if err != nil {
		return snapshot{}, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "encode archive collection")
	}
	s.seq++
	return snapshot{seq: s.seq, payload: payload}, nil
}

// persist writes one snapshot to the medium. Writes are serialized and
// a snapshot older than the last persisted one is dropped, so racing
// mutations cannot land in inverted order. The guard stays raised
// until the medium acknowledges the write, then lingers briefly so
// the write's own change notification arrives while it is still up.
func (s *Store) persist(ctx context.Context, snap snapshot) error {
	s.persistMu.Lock()
	defer s.persistMu.Unlock()
	if snap.seq <= s.persisted {
		return nil
	}

	s.guard.Raise()
	defer time.AfterFunc(guardLinger, s.guard.Lower)

	if err := s.medium.Set(ctx, snap.payload); err != nil {
		return err
	}
	s.persisted = snap.seq
	return nil
}
