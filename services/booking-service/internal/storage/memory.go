package storage

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/md-rashed-zaman/salonbook/services/booking-service/internal/booking"
	"github.com/md-rashed-zaman/salonbook/services/booking-service/internal/model"
	"github.com/md-rashed-zaman/salonbook/services/booking-service/internal/outbox"
)

// MemoryStore keeps everything in process. Booking writes are serialised per shop with
// one mutex each; other shops proceed in parallel.
type MemoryStore struct {
	mu          sync.RWMutex
	shops       map[string]model.Shop
	blocks      map[string][]model.WeeklyBlock
	exceptions  map[string]map[string]model.ScheduleException
	services    map[string]model.Service
	modifiers   map[string][]model.ServiceModifier
	bookings    map[string][]model.Booking
	links       map[string]model.BookingLink
	idempotency map[string]string
	events      []outbox.Event

	shopLocks sync.Map
}

var _ booking.Store = (*MemoryStore)(nil)

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		shops:       make(map[string]model.Shop),
		blocks:      make(map[string][]model.WeeklyBlock),
		exceptions:  make(map[string]map[string]model.ScheduleException),
		services:    make(map[string]model.Service),
		modifiers:   make(map[string][]model.ServiceModifier),
		bookings:    make(map[string][]model.Booking),
		links:       make(map[string]model.BookingLink),
		idempotency: make(map[string]string),
	}
}

func (m *MemoryStore) PutShop(s model.Shop) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.shops[s.ID] = s
}

func (m *MemoryStore) PutService(s model.Service) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.services[s.ID] = s
}

func (m *MemoryStore) PutModifier(mod model.ServiceModifier) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.modifiers[mod.ServiceID] = append(m.modifiers[mod.ServiceID], mod)
}

func (m *MemoryStore) PutLink(l model.BookingLink) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.links[l.Token] = l
}

// Events returns a copy of every event written so far.
func (m *MemoryStore) Events() []outbox.Event {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]outbox.Event(nil), m.events...)
}

// InsertNow records an event outside any booking write.
func (m *MemoryStore) InsertNow(_ context.Context, evt outbox.Event) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = append(m.events, evt)
	return nil
}

func (m *MemoryStore) Shop(_ context.Context, shopID string) (*model.Shop, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.shops[shopID]
	if !ok {
		return nil, nil
	}
	return &s, nil
}

func (m *MemoryStore) WeeklySchedule(_ context.Context, shopID string) ([]model.WeeklyBlock, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]model.WeeklyBlock(nil), m.blocks[shopID]...), nil
}

func (m *MemoryStore) Exception(_ context.Context, shopID string, date time.Time) (*model.ScheduleException, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	exc, ok := m.exceptions[shopID][model.DateKey(date)]
	if !ok {
		return nil, nil
	}
	return &exc, nil
}

func (m *MemoryStore) Exceptions(_ context.Context, shopID string, from, to time.Time) ([]model.ScheduleException, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []model.ScheduleException
	for _, exc := range m.exceptions[shopID] {
		if inRange(exc.Date, from, to) {
			out = append(out, exc)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Date.Before(out[j].Date) })
	return out, nil
}

func (m *MemoryStore) Bookings(_ context.Context, shopID string, from, to time.Time) ([]model.Booking, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.activeBookings(shopID, from, to), nil
}

func (m *MemoryStore) activeBookings(shopID string, from, to time.Time) []model.Booking {
	var out []model.Booking
	for _, b := range m.bookings[shopID] {
		if b.Active() && inRange(b.Date, from, to) {
			out = append(out, b)
		}
	}
	return out
}

func (m *MemoryStore) Service(_ context.Context, serviceID string) (*model.Service, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.services[serviceID]
	if !ok {
		return nil, nil
	}
	return &s, nil
}

func (m *MemoryStore) Modifiers(_ context.Context, serviceID string) ([]model.ServiceModifier, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]model.ServiceModifier(nil), m.modifiers[serviceID]...), nil
}

func (m *MemoryStore) BookingLink(_ context.Context, token string) (*model.BookingLink, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	l, ok := m.links[token]
	if !ok {
		return nil, nil
	}
	return &l, nil
}

func (m *MemoryStore) shopLock(shopID string) *sync.Mutex {
	v, _ := m.shopLocks.LoadOrStore(shopID, &sync.Mutex{})
	return v.(*sync.Mutex)
}

func (m *MemoryStore) PlaceBooking(ctx context.Context, req booking.PlaceRequest, place func(ctx context.Context, existing []model.Booking) (booking.Placement, error)) (model.Booking, bool, error) {
	lock := m.shopLock(req.ShopID)
	lock.Lock()
	defer lock.Unlock()

	idemKey := req.ShopID + "|" + req.IdempotencyKey
	m.mu.RLock()
	if req.IdempotencyKey != "" {
		if id, ok := m.idempotency[idemKey]; ok {
			for _, b := range m.bookings[req.ShopID] {
				if b.ID == id {
					m.mu.RUnlock()
					return b, true, nil
				}
			}
		}
	}
	if req.LinkToken != "" {
		l, ok := m.links[req.LinkToken]
		if !ok || l.ShopID != req.ShopID || !l.Valid(req.Now) {
			m.mu.RUnlock()
			return model.Booking{}, false, booking.ErrLinkInvalid
		}
	}
	existing := m.activeBookings(req.ShopID, req.Date, req.Date)
	m.mu.RUnlock()

	p, err := place(ctx, existing)
	if err != nil {
		return model.Booking{}, false, err
	}
	if err := checkLineKeys(p.Booking); err != nil {
		return model.Booking{}, false, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.bookings[req.ShopID] = append(m.bookings[req.ShopID], p.Booking)
	m.events = append(m.events, p.Events...)
	if req.LinkToken != "" {
		l := m.links[req.LinkToken]
		l.CurrentUses++
		m.links[req.LinkToken] = l
	}
	if req.IdempotencyKey != "" {
		m.idempotency[idemKey] = p.Booking.ID
	}
	return p.Booking, false, nil
}

func (m *MemoryStore) UpdateBookingStatus(_ context.Context, shopID, bookingID string, change func(b *model.Booking) ([]outbox.Event, error)) (model.Booking, error) {
	lock := m.shopLock(shopID)
	lock.Lock()
	defer lock.Unlock()

	m.mu.Lock()
	defer m.mu.Unlock()
	list := m.bookings[shopID]
	for i := range list {
		if list[i].ID != bookingID {
			continue
		}
		b := list[i]
		events, err := change(&b)
		if err != nil {
			return model.Booking{}, err
		}
		list[i] = b
		m.events = append(m.events, events...)
		return b, nil
	}
	return model.Booking{}, booking.ErrBookingNotFound
}

func (m *MemoryStore) ReplaceWeeklySchedule(_ context.Context, shopID string, blocks []model.WeeklyBlock) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.blocks[shopID] = append([]model.WeeklyBlock(nil), blocks...)
	return nil
}

func (m *MemoryStore) UpsertException(_ context.Context, exc model.ScheduleException) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.exceptions[exc.ShopID] == nil {
		m.exceptions[exc.ShopID] = make(map[string]model.ScheduleException)
	}
	m.exceptions[exc.ShopID][model.DateKey(exc.Date)] = exc
	return nil
}

func (m *MemoryStore) DeleteException(_ context.Context, shopID string, date time.Time) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	key := model.DateKey(date)
	if _, ok := m.exceptions[shopID][key]; !ok {
		return false, nil
	}
	delete(m.exceptions[shopID], key)
	return true, nil
}

// checkLineKeys enforces the same uniqueness as the booking_applied_modifiers primary key.
func checkLineKeys(b model.Booking) error {
	type key struct {
		position   int
		modifierID string
	}
	seen := make(map[key]struct{}, len(b.AppliedModifiers))
	for _, a := range b.AppliedModifiers {
		if a.Position < 0 || a.Position >= len(b.Services) || b.Services[a.Position].ServiceID != a.ServiceID {
			return fmt.Errorf("applied modifier %s does not match service line %d", a.ServiceModifierID, a.Position)
		}
		k := key{a.Position, a.ServiceModifierID}
		if _, dup := seen[k]; dup {
			return fmt.Errorf("applied modifier %s repeated on service line %d", a.ServiceModifierID, a.Position)
		}
		seen[k] = struct{}{}
	}
	return nil
}

func inRange(d, from, to time.Time) bool {
	k := model.DateKey(d)
	return k >= model.DateKey(from) && k <= model.DateKey(to)
}
