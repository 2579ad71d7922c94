package store

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/inboxvault/inboxvault/internal/models"
)

type fakeMedium struct {
	mu             sync.Mutex
	payload        []byte
	getErr         error
	setErr         error
	setCalls       int
	guardHeldAtSet []bool
	guardHeldAtAck []bool
	blockSet       chan struct{}
	guard          *Guard
	notifications  chan Notification
}

func newFakeMedium(guard *Guard) *fakeMedium {
	return &fakeMedium{guard: guard, notifications: make(chan Notification, 1)}
}

func (m *fakeMedium) Get(context.Context) ([]byte, error) {
	return m.payload, m.getErr
}

func (m *fakeMedium) Set(_ context.Context, payload []byte) error {
	m.mu.Lock()
	m.setCalls++
	if m.guard != nil {
		m.guardHeldAtSet = append(m.guardHeldAtSet, m.guard.Held())
	}
	block := m.blockSet
	err := m.setErr
	m.mu.Unlock()

	if block != nil {
		<-block
	}
	if err != nil {
		return err
	}

	m.mu.Lock()
	m.payload = payload
	if m.guard != nil {
		m.guardHeldAtAck = append(m.guardHeldAtAck, m.guard.Held())
	}
	m.mu.Unlock()
	return nil
}

func (m *fakeMedium) calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.setCalls
}

func (m *fakeMedium) Subscribe(context.Context) (<-chan Notification, error) {
	return m.notifications, nil
}

func (m *fakeMedium) stored(t *testing.T) []models.ArchivedRecord {
	t.Helper()
	var list []models.ArchivedRecord
	require.NoError(t, json.Unmarshal(m.payload, &list))
	return list
}

func newTestStore(t *testing.T) (*Store, *fakeMedium) {
	t.Helper()
	guard := NewGuard()
	medium := newFakeMedium(guard)
	return New(medium, guard, zap.NewNop()), medium
}

func record(id string) models.ArchivedRecord {
	return models.ArchivedRecord{ID: id, Username: "User " + id, Timestamp: time.Now().UTC()}
}

func TestStore_AddDeduplicates(t *testing.T) {
	s, medium := newTestStore(t)
	ctx := context.Background()

	first, added, err := s.Add(ctx, record("conv-1"))
	require.NoError(t, err)
	assert.True(t, added)
	assert.Equal(t, "conv-1", first.ID)

	dup := record("conv-1")
	dup.Username = "Changed"
	second, added, err := s.Add(ctx, dup)
	require.NoError(t, err)
	assert.False(t, added)
	assert.Equal(t, first.Username, second.Username, "existing record wins over duplicate")
	assert.Equal(t, 1, s.Len())
	assert.Equal(t, 1, medium.setCalls, "duplicate add must not write")
}

func TestStore_AddStampsArchivalTime(t *testing.T) {
	s, _ := newTestStore(t)

	rec, added, err := s.Add(context.Background(), models.ArchivedRecord{ID: "conv-1"})
	require.NoError(t, err)
	require.True(t, added)
	assert.False(t, rec.Timestamp.IsZero())
}

func TestStore_RemoveMany(t *testing.T) {
	s, medium := newTestStore(t)
	ctx := context.Background()
	for _, id := range []string{"a", "b", "c"} {
		_, _, err := s.Add(ctx, record(id))
		require.NoError(t, err)
	}

	removed, err := s.RemoveMany(ctx, []string{"a", "missing", "c"})
	require.NoError(t, err)
	assert.Len(t, removed, 2)
	assert.Equal(t, 1, s.Len())
	assert.Len(t, medium.stored(t), 1)

	removed, err = s.RemoveMany(ctx, []string{"missing"})
	require.NoError(t, err)
	assert.Empty(t, removed)
}

func TestStore_SetNotes(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()
	_, _, err := s.Add(ctx, record("conv-1"))
	require.NoError(t, err)

	rec, updated, err := s.SetNotes(ctx, "conv-1", "follow up tomorrow")
	require.NoError(t, err)
	assert.True(t, updated)
	assert.Equal(t, "follow up tomorrow", rec.Notes)

	stored, ok := s.Get("conv-1")
	require.True(t, ok)
	assert.Equal(t, "follow up tomorrow", stored.Notes)
}

func TestStore_SetNotesUnknownIDIsNoop(t *testing.T) {
	s, medium := newTestStore(t)

	_, updated, err := s.SetNotes(context.Background(), "missing", "notes")
	require.NoError(t, err)
	assert.False(t, updated)
	assert.Equal(t, 0, medium.calls(), "a no-op must not write to the medium")
}

func TestStore_Clear(t *testing.T) {
	s, medium := newTestStore(t)
	ctx := context.Background()
	for _, id := range []string{"a", "b"} {
		_, _, err := s.Add(ctx, record(id))
		require.NoError(t, err)
	}

	dropped, err := s.Clear(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, dropped)
	assert.Equal(t, 0, s.Len())
	assert.Empty(t, medium.stored(t))
}

func TestStore_MergeInExistingWins(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()
	original := record("conv-1")
	original.Notes = "keep me"
	_, _, err := s.Add(ctx, original)
	require.NoError(t, err)

	imported := record("conv-1")
	imported.Notes = "overwrite attempt"
	added, err := s.MergeIn(ctx, []models.ArchivedRecord{imported, record("conv-2")})
	require.NoError(t, err)
	assert.Equal(t, 1, added)

	kept, _ := s.Get("conv-1")
	assert.Equal(t, "keep me", kept.Notes)
	assert.Equal(t, 2, s.Len())
}

func TestStore_ReplaceAll(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()
	_, _, err := s.Add(ctx, record("old"))
	require.NoError(t, err)

	count, err := s.ReplaceAll(ctx, []models.ArchivedRecord{record("new-1"), record("new-2")})
	require.NoError(t, err)
	assert.Equal(t, 2, count)
	assert.False(t, s.Contains("old"))
	assert.True(t, s.Contains("new-1"))
}

func TestStore_AllSortedNewestFirst(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()
	older := models.ArchivedRecord{ID: "older", Timestamp: time.Now().Add(-2 * time.Hour)}
	newer := models.ArchivedRecord{ID: "newer", MessageTimestamp: time.Now()}
	for _, rec := range []models.ArchivedRecord{older, newer} {
		_, _, err := s.Add(ctx, rec)
		require.NoError(t, err)
	}

	all := s.All()
	require.Len(t, all, 2)
	assert.Equal(t, "newer", all[0].ID)
	assert.Equal(t, "older", all[1].ID)
}

func TestStore_LoadCorruptPayload(t *testing.T) {
	s, medium := newTestStore(t)
	medium.payload = []byte("{not json")

	err := s.Load(context.Background())
	require.Error(t, err)
	assert.Equal(t, 0, s.Len())
}

func TestStore_LoadEmptyMedium(t *testing.T) {
	s, _ := newTestStore(t)

	require.NoError(t, s.Load(context.Background()))
	assert.Equal(t, 0, s.Len())
}

func TestStore_GuardRaisedDuringPersist(t *testing.T) {
	s, medium := newTestStore(t)

	_, _, err := s.Add(context.Background(), record("conv-1"))
	require.NoError(t, err)
	require.Len(t, medium.guardHeldAtSet, 1)
	assert.True(t, medium.guardHeldAtSet[0], "guard must cover the medium write")
}

func TestStore_GuardHeldUntilSlowWriteAcknowledged(t *testing.T) {
	s, medium := newTestStore(t)
	medium.blockSet = make(chan struct{})

	done := make(chan struct{})
	go func() {
		defer close(done)
		_, _, _ = s.Add(context.Background(), record("conv-1"))
	}()

	require.Eventually(t, func() bool { return medium.calls() == 1 }, time.Second, time.Millisecond)

	// Hold the write in flight well past the linger window. The guard
	// must stay up for the whole write, not just the first 100ms.
	time.Sleep(150 * time.Millisecond)
	assert.True(t, s.Guard().Held(), "guard must still be held while the write is in flight")

	medium.blockSet <- struct{}{}
	<-done

	require.Len(t, medium.guardHeldAtAck, 1)
	assert.True(t, medium.guardHeldAtAck[0], "guard must still be held when the medium acknowledges the write")
	assert.Eventually(t, func() bool { return !s.Guard().Held() }, time.Second, 10*time.Millisecond)
}

func TestStore_ConcurrentWritesKeepNewestState(t *testing.T) {
	s, medium := newTestStore(t)
	medium.blockSet = make(chan struct{})
	ctx := context.Background()

	first := make(chan struct{})
	go func() {
		defer close(first)
		_, _, _ = s.Add(ctx, record("a"))
	}()
	require.Eventually(t, func() bool { return medium.calls() == 1 }, time.Second, time.Millisecond)

	// The second mutation lands in memory while the first write is
	// still in flight; its snapshot must not be overwritten by the
	// older one.
	second := make(chan struct{})
	go func() {
		defer close(second)
		_, _, _ = s.Add(ctx, record("b"))
	}()
	require.Eventually(t, func() bool { return s.Contains("b") }, time.Second, time.Millisecond)

	medium.blockSet <- struct{}{}
	<-first
	require.Eventually(t, func() bool { return medium.calls() == 2 }, time.Second, time.Millisecond)
	medium.blockSet <- struct{}{}
	<-second

	ids := make([]string, 0, 2)
	for _, rec := range medium.stored(t) {
		ids = append(ids, rec.ID)
	}
	assert.ElementsMatch(t, []string{"a", "b"}, ids, "the newest snapshot must be the one persisted")
}

func TestStore_GuardLingersPastWrite(t *testing.T) {
	s, _ := newTestStore(t)

	_, _, err := s.Add(context.Background(), record("conv-1"))
	require.NoError(t, err)
	assert.True(t, s.Guard().Held(), "guard stays raised until the linger elapses")
	assert.Eventually(t, func() bool { return !s.Guard().Held() }, time.Second, 10*time.Millisecond)
}
