package store

import (
	"context"
	"sync"
	"time"

	"payment-gateway/models"
)

// Memory keeps records in process. It is the default backend for local runs
// and tests.
type Memory struct {
	mu          sync.RWMutex
	byID        map[string]*models.PaymentRecord
	byReference map[string]string
	// order holds ids by insertion for stable newest-first listing.
	order []string
	now   func() time.Time
}

func NewMemory() *Memory {
	return &Memory{
		byID:        make(map[string]*models.PaymentRecord),
		byReference: make(map[string]string),
		now:         time.Now,
	}
}

func (m *Memory) Create(_ context.Context, rec *models.PaymentRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, taken := m.byReference[rec.Reference]; taken {
		return ErrDuplicateReference
	}
	m.byID[rec.ID] = rec.Clone()
	m.byReference[rec.Reference] = rec.ID
	m.order = append(m.order, rec.ID)
	return nil
}

func (m *Memory) FindByID(_ context.Context, id string) (*models.PaymentRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	rec, ok := m.byID[id]
	if !ok {
		return nil, ErrNotFound
	}
	return rec.Clone(), nil
}

func (m *Memory) FindByReference(_ context.Context, reference string) (*models.PaymentRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	id, ok := m.byReference[reference]
	if !ok {
		return nil, ErrNotFound
	}
	return m.byID[id].Clone(), nil
}

func (m *Memory) Update(_ context.Context, id string, u Update) (*models.PaymentRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	rec, ok := m.byID[id]
	if !ok {
		return nil, ErrNotFound
	}
	if blocked(rec.Status, u.ExpectNot) {
		return nil, ErrStatusConflict
	}
	apply(rec, u, m.now().UTC())
	return rec.Clone(), nil
}

func (m *Memory) List(_ context.Context, filter models.ListFilter, limit, skip int) ([]*models.PaymentRecord, int64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var (
		out   []*models.PaymentRecord
		total int64
	)
	for i := len(m.order) - 1; i >= 0; i-- {
		rec := m.byID[m.order[i]]
		if filter.Status != "" && rec.Status != filter.Status {
			continue
		}
		if filter.Email != "" && rec.Email != filter.Email {
			continue
		}
		if total >= int64(skip) && len(out) < limit {
			out = append(out, rec.Clone())
		}
		total++
	}
	return out, total, nil
}

func (m *Memory) Close(context.Context) error { return nil }

var _ PaymentStore = (*Memory)(nil)
