// Package memory is an in-process implementation of the matrix storage contract.
// Transactions are serialized by one mutex and applied to a copy of the state,
// which replaces the live state only on commit.
package memory

import (
	"context"
	"sort"
	"sync"

	"github.com/google/uuid"

	"matrix/internal/domain"
	"matrix/internal/repository"
	pkgerrors "matrix/pkg/errors"
)

type tableKey struct {
	owner int64
	tier  int
}

type state struct {
	participants map[int64]domain.Participant
	tables       map[tableKey]domain.MatrixTable
	payouts      []domain.PayoutRecord
	revenue      []domain.RevenueRecord
	processed    map[uuid.UUID]domain.ProcessedEvent
}

func newState() *state {
	return &state{
		participants: make(map[int64]domain.Participant),
		tables:       make(map[tableKey]domain.MatrixTable),
		processed:    make(map[uuid.UUID]domain.ProcessedEvent),
	}
}

func (s *state) clone() *state {
	c := &state{
		participants: make(map[int64]domain.Participant, len(s.participants)),
		tables:       make(map[tableKey]domain.MatrixTable, len(s.tables)),
		payouts:      append([]domain.PayoutRecord(nil), s.payouts...),
		revenue:      append([]domain.RevenueRecord(nil), s.revenue...),
		processed:    make(map[uuid.UUID]domain.ProcessedEvent, len(s.processed)),
	}
	for k, v := range s.participants {
		if v.ReferrerID != nil {
			ref := *v.ReferrerID
			v.ReferrerID = &ref
		}
		c.participants[k] = v
	}
	for k, v := range s.tables {
		c.tables[k] = v
	}
	for k, v := range s.processed {
		c.processed[k] = v
	}
	return c
}

type Store struct {
	mu    sync.Mutex
	state *state
}

func New() *Store {
	return &Store{state: newState()}
}

func (s *Store) Ping(ctx context.Context) error {
	return ctx.Err()
}

func (s *Store) WithinTx(ctx context.Context, fn func(ctx context.Context, tx repository.Tx) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return err
	}
	work := s.state.clone()
	if err := fn(ctx, &txRepo{st: work}); err != nil {
		return err
	}
	s.state = work
	return nil
}

type txRepo struct {
	st *state
}

func (r *txRepo) CreateParticipant(ctx context.Context, p *domain.Participant) error {
	if _, ok := r.st.participants[p.ID]; ok {
		return pkgerrors.ErrParticipantExists
	}
	r.st.participants[p.ID] = *p
	return nil
}

func (r *txRepo) GetParticipant(ctx context.Context, id int64) (*domain.Participant, error) {
	p, ok := r.st.participants[id]
	if !ok {
		return nil, pkgerrors.ErrParticipantNotFound
	}
	return &p, nil
}

func (r *txRepo) update(id int64, fn func(p *domain.Participant) error) error {
	p, ok := r.st.participants[id]
	if !ok {
		return pkgerrors.ErrParticipantNotFound
	}
	if err := fn(&p); err != nil {
		return err
	}
	r.st.participants[id] = p
	return nil
}

func (r *txRepo) CreditBalance(ctx context.Context, id int64, amount domain.Money) error {
	return r.update(id, func(p *domain.Participant) error {
		p.Balance += amount
		return nil
	})
}

func (r *txRepo) CreditEarnings(ctx context.Context, id int64, amount domain.Money) error {
	return r.update(id, func(p *domain.Participant) error {
		p.Balance += amount
		p.TotalEarned += amount
		return nil
	})
}

func (r *txRepo) DebitBalance(ctx context.Context, id int64, amount domain.Money) error {
	return r.update(id, func(p *domain.Participant) error {
		if p.Balance < amount {
			return pkgerrors.ErrInsufficientBalance
		}
		p.Balance -= amount
		return nil
	})
}

func (r *txRepo) IncrementActiveTiers(ctx context.Context, id int64) error {
	return r.update(id, func(p *domain.Participant) error {
		p.ActiveTiers++
		return nil
	})
}

func (r *txRepo) IncrementCycles(ctx context.Context, id int64) error {
	return r.update(id, func(p *domain.Participant) error {
		p.TotalCycles++
		return nil
	})
}

func (r *txRepo) CreateTable(ctx context.Context, t *domain.MatrixTable) error {
	key := tableKey{t.OwnerID, t.Tier}
	if _, ok := r.st.tables[key]; ok {
		return pkgerrors.ErrTableExists
	}
	r.st.tables[key] = *t
	return nil
}

func (r *txRepo) GetTable(ctx context.Context, ownerID int64, tier int) (*domain.MatrixTable, error) {
	t, ok := r.st.tables[tableKey{ownerID, tier}]
	if !ok {
		return nil, pkgerrors.ErrTableNotFound
	}
	return &t, nil
}

func (r *txRepo) ListTables(ctx context.Context, ownerID int64) ([]*domain.MatrixTable, error) {
	var tables []*domain.MatrixTable
	for key, t := range r.st.tables {
		if key.owner == ownerID {
			t := t
			tables = append(tables, &t)
		}
	}
	sort.Slice(tables, func(i, j int) bool { return tables[i].Tier < tables[j].Tier })
	return tables, nil
}

func (r *txRepo) OwnsTier(ctx context.Context, ownerID int64, tier int) (bool, error) {
	_, ok := r.st.tables[tableKey{ownerID, tier}]
	return ok, nil
}

func (r *txRepo) updateTable(ownerID int64, tier int, fn func(t *domain.MatrixTable) error) error {
	key := tableKey{ownerID, tier}
	t, ok := r.st.tables[key]
	if !ok {
		return pkgerrors.ErrTableNotFound
	}
	if err := fn(&t); err != nil {
		return err
	}
	r.st.tables[key] = t
	return nil
}

func (r *txRepo) OccupySlot(ctx context.Context, ownerID int64, tier, slot int, memberID int64) error {
	if slot < 1 || slot > domain.SlotsPerTable {
		return pkgerrors.ErrSlotConflict
	}
	return r.updateTable(ownerID, tier, func(t *domain.MatrixTable) error {
		if t.Slots[slot-1] != 0 || (slot > 1 && t.Slots[slot-2] == 0) {
			return pkgerrors.ErrSlotConflict
		}
		t.Slots[slot-1] = memberID
		return nil
	})
}

func (r *txRepo) SetFrozen(ctx context.Context, ownerID int64, tier int, amount domain.Money) error {
	return r.updateTable(ownerID, tier, func(t *domain.MatrixTable) error {
		t.FrozenAmount = amount
		return nil
	})
}

func (r *txRepo) TakeFrozen(ctx context.Context, ownerID int64, tier int) (domain.Money, error) {
	var held domain.Money
	err := r.updateTable(ownerID, tier, func(t *domain.MatrixTable) error {
		held = t.FrozenAmount
		t.FrozenAmount = 0
		return nil
	})
	return held, err
}

func (r *txRepo) ResetTable(ctx context.Context, ownerID int64, tier int) (int, error) {
	var cycle int
	err := r.updateTable(ownerID, tier, func(t *domain.MatrixTable) error {
		if !t.IsFull() {
			return pkgerrors.ErrTableNotFull
		}
		t.Slots = [domain.SlotsPerTable]int64{}
		t.Cycle++
		cycle = t.Cycle
		return nil
	})
	return cycle, err
}

func (r *txRepo) InsertPayout(ctx context.Context, rec *domain.PayoutRecord) error {
	r.st.payouts = append(r.st.payouts, *rec)
	return nil
}

func (r *txRepo) InsertRevenue(ctx context.Context, rec *domain.RevenueRecord) error {
	r.st.revenue = append(r.st.revenue, *rec)
	return nil
}

func (r *txRepo) ListPayouts(ctx context.Context, recipientID int64) ([]*domain.PayoutRecord, error) {
	var out []*domain.PayoutRecord
	for i := range r.st.payouts {
		if r.st.payouts[i].RecipientID == recipientID {
			rec := r.st.payouts[i]
			out = append(out, &rec)
		}
	}
	return out, nil
}

func (r *txRepo) ListRevenueByEvent(ctx context.Context, eventID uuid.UUID) ([]*domain.RevenueRecord, error) {
	var out []*domain.RevenueRecord
	for i := range r.st.revenue {
		if r.st.revenue[i].EventID == eventID {
			rec := r.st.revenue[i]
			out = append(out, &rec)
		}
	}
	return out, nil
}

func (r *txRepo) MarkEventProcessed(ctx context.Context, e *domain.ProcessedEvent) error {
	if _, ok := r.st.processed[e.EventID]; ok {
		return pkgerrors.ErrEventAlreadyProcessed
	}
	r.st.processed[e.EventID] = *e
	return nil
}
