package audit_test

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/edirhub/verify-backend/pkg/audit"
	"github.com/edirhub/verify-backend/pkg/models"
	"github.com/edirhub/verify-backend/pkg/storage/fs"
	"github.com/edirhub/verify-backend/pkg/storage/model"
)

type memoryIndexer struct {
	mu      sync.Mutex
	records []models.AuditRecord
	err     error
}

func (m *memoryIndexer) Index(_ context.Context, rec models.AuditRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	m.records = append(m.records, rec)
	return nil
}

func (m *memoryIndexer) ids() []uuid.UUID {
	m.mu.Lock()
	defer m.mu.Unlock()
	var ids []uuid.UUID
	for _, r := range m.records {
		ids = append(ids, r.ID)
	}
	return ids
}

func TestTrail_StoresAndIndexes(t *testing.T) {
	storage, err := fs.New(t.TempDir())
	require.NoError(t, err)
	idx := &memoryIndexer{}

	trail := audit.NewTrail(storage, idx, audit.WithWorkers(3))
	var recs []models.AuditRecord
	for i := 0; i < 10; i++ {
		rec := newRecord("addis")
		recs = append(recs, rec)
		trail.Record(rec)
	}
	trail.Close()

	ctx := context.Background()
	for _, rec := range recs {
		got, err := storage.Retrieve(ctx, "addis", rec.ID)
		require.NoError(t, err)
		assert.Equal(t, rec.Message, got.Message)
		assert.Contains(t, idx.ids(), rec.ID)
	}
}

func TestTrail_StorageFailureSkipsIndex(t *testing.T) {
	idx := &memoryIndexer{}
	trail := audit.NewTrail(failingStorer{}, idx)
	trail.Record(newRecord("addis"))
	trail.Close()
	assert.Empty(t, idx.ids())
}

func TestTrail_IndexOnly(t *testing.T) {
	idx := &memoryIndexer{}
	trail := audit.NewTrail(nil, idx)
	rec := newRecord("addis")
	trail.Record(rec)
	trail.Close()
	assert.Equal(t, []uuid.UUID{rec.ID}, idx.ids())
}

func TestTrail_RecordAfterClose(t *testing.T) {
	idx := &memoryIndexer{}
	trail := audit.NewTrail(nil, idx)
	trail.Close()
	trail.Close()
	trail.Record(newRecord("addis"))
	assert.Empty(t, idx.ids())
}

func TestTrail_IndexFailureIsLogged(t *testing.T) {
	idx := &memoryIndexer{err: errors.New("opensearch down")}
	trail := audit.NewTrail(nil, idx)
	trail.Record(newRecord("addis"))
	trail.Close()
	assert.Empty(t, idx.ids())
}

type failingStorer struct{}

func (failingStorer) Store(context.Context, models.AuditRecord) error {
	return errors.New("disk full")
}

var _ model.Storer = failingStorer{}
