package engine

import (
	"sync"
	"time"

	"github.com/google/uuid"

	"cryptodesk/internal/models"
)

// Store - единственная разделяемая мутабельная структура движка.
// Хранит заявки в памяти по order_id, все изменения идут через Mutate
// под per-order локом. Индекс по владельцу обеспечивает политику
// "одна активная заявка на пользователя".
type Store struct {
	mu sync.RWMutex

	orders map[string]*orderEntry
	// Активная (нетерминальная) заявка владельца
	byOwner map[int64]string
	// Занятые payment_reference - защита от коллизий мониторинга
	byPaymentRef map[string]string

	clock Clock
}

// orderEntry - заявка со своим локом.
// Лок сериализует все события одной заявки (гарантия порядка из контракта шины).
type orderEntry struct {
	mu    sync.Mutex
	order *models.Order
}

// NewStore создаёт пустой Store
func NewStore(clock Clock) *Store {
	if clock == nil {
		clock = NewRealClock()
	}
	return &Store{
		orders:       make(map[string]*orderEntry),
		byOwner:      make(map[int64]string),
		byPaymentRef: make(map[string]string),
		clock:        clock,
	}
}

// Create создаёт новую заявку владельца в статусе CREATED.
// Возвращает ErrDuplicateActiveOrder, если у владельца уже есть
// нетерминальная заявка.
func (s *Store) Create(ownerID int64) (*models.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if existingID, ok := s.byOwner[ownerID]; ok {
		if entry, found := s.orders[existingID]; found && !models.IsTerminal(entry.order.Status) {
			return nil, ErrDuplicateActiveOrder
		}
	}

	now := s.clock.Now()
	order := &models.Order{
		ID:        uuid.NewString(),
		OwnerID:   ownerID,
		Status:    models.StatusCreated,
		CreatedAt: now,
		UpdatedAt: now,
	}

	s.orders[order.ID] = &orderEntry{order: order}
	s.byOwner[ownerID] = order.ID

	copy := *order
	return &copy, nil
}

// Get возвращает копию заявки или ErrOrderNotFound
func (s *Store) Get(orderID string) (*models.Order, error) {
	s.mu.RLock()
	entry, ok := s.orders[orderID]
	s.mu.RUnlock()

	if !ok {
		return nil, ErrOrderNotFound
	}

	entry.mu.Lock()
	defer entry.mu.Unlock()

	copy := *entry.order
	return &copy, nil
}

// GetByOwner возвращает активную заявку владельца
func (s *Store) GetByOwner(ownerID int64) (*models.Order, error) {
	s.mu.RLock()
	orderID, ok := s.byOwner[ownerID]
	s.mu.RUnlock()

	if !ok {
		return nil, ErrOrderNotFound
	}
	return s.Get(orderID)
}

// Mutate применяет fn к заявке под её локом.
// fn работает с копией: при ошибке заявка остаётся без изменений.
// Терминальные заявки неизменяемы - ErrOrderTerminal.
// Возвращает копию заявки после изменения.
func (s *Store) Mutate(orderID string, fn func(*models.Order) error) (*models.Order, error) {
	s.mu.RLock()
	entry, ok := s.orders[orderID]
	s.mu.RUnlock()

	if !ok {
		return nil, ErrOrderNotFound
	}

	entry.mu.Lock()
	defer entry.mu.Unlock()

	if models.IsTerminal(entry.order.Status) {
		return nil, ErrOrderTerminal
	}

	// fn мутирует копию; откат при ошибке = не коммитим копию
	draft := *entry.order
	if err := fn(&draft); err != nil {
		return nil, err
	}

	// Новый payment_reference регистрируем в индексе до коммита:
	// коллизия ссылки означает конфликт мониторинга двух заявок
	if draft.PaymentRef != "" && draft.PaymentRef != entry.order.PaymentRef {
		if err := s.bindPaymentRef(draft.PaymentRef, orderID); err != nil {
			return nil, err
		}
	}

	draft.UpdatedAt = s.clock.Now()
	*entry.order = draft

	copy := draft
	return &copy, nil
}

// bindPaymentRef регистрирует payment_reference за заявкой
func (s *Store) bindPaymentRef(ref, orderID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if owner, ok := s.byPaymentRef[ref]; ok && owner != orderID {
		return ErrPaymentRefInUse
	}
	s.byPaymentRef[ref] = orderID
	return nil
}

// FindByPaymentRef возвращает заявку по payment_reference (для webhook)
func (s *Store) FindByPaymentRef(ref string) (*models.Order, error) {
	s.mu.RLock()
	orderID, ok := s.byPaymentRef[ref]
	s.mu.RUnlock()

	if !ok {
		return nil, ErrOrderNotFound
	}
	return s.Get(orderID)
}

// Active возвращает копии всех нетерминальных заявок (для admin API)
func (s *Store) Active() []*models.Order {
	s.mu.RLock()
	entries := make([]*orderEntry, 0, len(s.orders))
	for _, e := range s.orders {
		entries = append(entries, e)
	}
	s.mu.RUnlock()

	var result []*models.Order
	for _, e := range entries {
		e.mu.Lock()
		if !models.IsTerminal(e.order.Status) {
			copy := *e.order
			result = append(result, &copy)
		}
		e.mu.Unlock()
	}
	return result
}

// Sweep удаляет терминальные заявки старше olderThan.
// Возвращает число удалённых. Запускается периодически движком.
//
// Порядок захвата локов строго entry.mu -> store.mu (как в Mutate
// при регистрации payment_reference), поэтому кандидаты собираются
// без store.mu и только потом удаляются под ним. Терминальная заявка
// неизменяема, между проходами решение устареть не может.
func (s *Store) Sweep(olderThan time.Duration) int {
	cutoff := s.clock.Now().Add(-olderThan)

	s.mu.RLock()
	entries := make(map[string]*orderEntry, len(s.orders))
	for id, entry := range s.orders {
		entries[id] = entry
	}
	s.mu.RUnlock()

	type victim struct {
		id         string
		ownerID    int64
		paymentRef string
	}
	var victims []victim
	for id, entry := range entries {
		entry.mu.Lock()
		if models.IsTerminal(entry.order.Status) && entry.order.UpdatedAt.Before(cutoff) {
			victims = append(victims, victim{
				id:         id,
				ownerID:    entry.order.OwnerID,
				paymentRef: entry.order.PaymentRef,
			})
		}
		entry.mu.Unlock()
	}

	if len(victims) == 0 {
		return 0
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	count := 0
	for _, v := range victims {
		if s.orders[v.id] != entries[v.id] {
			continue
		}
		delete(s.orders, v.id)
		if s.byOwner[v.ownerID] == v.id {
			delete(s.byOwner, v.ownerID)
		}
		if v.paymentRef != "" && s.byPaymentRef[v.paymentRef] == v.id {
			delete(s.byPaymentRef, v.paymentRef)
		}
		count++
	}
	return count
}

// Len возвращает число заявок в памяти (для метрик)
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.orders)
}
