package registry

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/andreasstove999/agroflow-system/internal/contracts"
	"github.com/andreasstove999/agroflow-system/internal/harvest"
)

// memRepo is an in-memory Repository used by service and relay tests.
type memRepo struct {
	mu sync.Mutex

	farmers  map[string]Farmer
	harvests map[int64]*Harvest
	outbox   map[int64]*memOutbox
	nextID   int64

	createErr error
	failures  []string
}

type memOutbox struct {
	entry     OutboxEntry
	published bool
}

func newMemRepo() *memRepo {
	return &memRepo{
		farmers:  map[string]Farmer{},
		harvests: map[int64]*Harvest{},
		outbox:   map[int64]*memOutbox{},
	}
}

func (m *memRepo) id() int64 {
	m.nextID++
	return m.nextID
}

func (m *memRepo) addFarmer(uuid, name string) Farmer {
	m.mu.Lock()
	defer m.mu.Unlock()
	f := Farmer{ID: m.id(), UUID: uuid, Name: name}
	m.farmers[uuid] = f
	return f
}

func (m *memRepo) CreateFarmer(ctx context.Context, name string) (Farmer, error) {
	return m.addFarmer("00000000-0000-4000-8000-000000000001", name), nil
}

func (m *memRepo) ListFarmers(ctx context.Context) ([]Farmer, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := []Farmer{}
	for _, f := range m.farmers {
		out = append(out, f)
	}
	return out, nil
}

func (m *memRepo) GetFarmerByUUID(ctx context.Context, farmerUUID string) (Farmer, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	f, ok := m.farmers[farmerUUID]
	if !ok {
		return Farmer{}, ErrFarmerNotFound
	}
	return f, nil
}

func (m *memRepo) CreateHarvest(ctx context.Context, in NewHarvest) (Harvest, OutboxEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.createErr != nil {
		return Harvest{}, OutboxEntry{}, m.createErr
	}
	h := Harvest{
		ID:         m.id(),
		UUID:       uuid.NewString(),
		FarmerID:   in.Farmer.ID,
		FarmerUUID: in.Farmer.UUID,
		Product:    in.Product,
		Tonnes:     in.Tonnes,
		Location:   in.Location,
		Status:     harvest.StatusRegistered,
	}
	payload, err := contracts.EncodeHarvestCreated(HarvestCreatedEvent(h))
	if err != nil {
		return Harvest{}, OutboxEntry{}, err
	}
	e := OutboxEntry{ID: m.id(), HarvestID: h.ID, EventType: contracts.EventTypeHarvestCreated, Payload: payload, CreatedAt: time.Now()}
	m.harvests[h.ID] = &h
	m.outbox[e.ID] = &memOutbox{entry: e}
	return h, e, nil
}

func (m *memRepo) find(ref HarvestRef) *Harvest {
	for _, h := range m.harvests {
		if (ref.UUID != "" && h.UUID == ref.UUID) || (ref.UUID == "" && h.ID == ref.ID) {
			return h
		}
	}
	return nil
}

func (m *memRepo) GetHarvest(ctx context.Context, ref HarvestRef) (Harvest, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	h := m.find(ref)
	if h == nil {
		return Harvest{}, ErrHarvestNotFound
	}
	return *h, nil
}

func (m *memRepo) TransitionStatus(ctx context.Context, ref HarvestRef, next harvest.Status, invoice *harvest.InvoiceRef) (Harvest, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	h := m.find(ref)
	if h == nil {
		return Harvest{}, false, ErrHarvestNotFound
	}
	lc := h.Lifecycle()
	changed, err := lc.Apply(next, invoice)
	if err != nil || !changed {
		return *h, false, err
	}
	h.setLifecycle(lc)
	return *h, true, nil
}

func (m *memRepo) PendingOutbox(ctx context.Context, createdBefore time.Time, limit int) ([]OutboxEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []OutboxEntry
	for id := int64(1); id <= m.nextID && len(out) < limit; id++ {
		o, ok := m.outbox[id]
		if ok && !o.published && o.entry.CreatedAt.Before(createdBefore) {
			out = append(out, o.entry)
		}
	}
	return out, nil
}

func (m *memRepo) MarkOutboxPublished(ctx context.Context, id int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	o, ok := m.outbox[id]
	if !ok {
		return errors.New("no outbox entry")
	}
	o.published = true
	o.entry.Attempts++
	return nil
}

func (m *memRepo) RecordOutboxFailure(ctx context.Context, id int64, cause string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if o, ok := m.outbox[id]; ok {
		o.entry.Attempts++
	}
	m.failures = append(m.failures, cause)
	return nil
}

func (m *memRepo) unpublished() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, o := range m.outbox {
		if !o.published {
			n++
		}
	}
	return n
}

type fakePublisher struct {
	mu        sync.Mutex
	err       error
	failTimes int
	published []contracts.HarvestCreated
}

func (p *fakePublisher) PublishHarvestCreated(ctx context.Context, ev contracts.HarvestCreated) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.failTimes > 0 {
		p.failTimes--
		return errors.New("broker unavailable")
	}
	if p.err != nil {
		return p.err
	}
	p.published = append(p.published, ev)
	return nil
}

func (p *fakePublisher) count() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.published)
}
