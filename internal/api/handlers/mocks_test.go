package handlers

import (
	"errors"
	"sync"
	"time"

	"cryptodesk/internal/engine"
	"cryptodesk/internal/models"
	"cryptodesk/internal/repository"
	"cryptodesk/pkg/utils"
)

// ErrMockDatabase - общая ошибка БД для тестов
var ErrMockDatabase = errors.New("database error")

// ============ Mock Order Engine ============

type publishedEvent struct {
	kind    string
	orderID string
	payload interface{}
}

// MockOrderEngine мок для OrderEngine
type MockOrderEngine struct {
	mu        sync.Mutex
	orders    map[string]*models.Order
	published []publishedEvent
	queueFull bool
}

// NewMockOrderEngine создает новый мок движка
func NewMockOrderEngine() *MockOrderEngine {
	return &MockOrderEngine{orders: make(map[string]*models.Order)}
}

// AddOrder кладёт заявку в мок
func (m *MockOrderEngine) AddOrder(o *models.Order) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.orders[o.ID] = o
}

func (m *MockOrderEngine) Order(orderID string) (*models.Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if o, ok := m.orders[orderID]; ok {
		return o, nil
	}
	return nil, engine.ErrOrderNotFound
}

func (m *MockOrderEngine) ActiveOrders() []*models.Order {
	m.mu.Lock()
	defer m.mu.Unlock()
	var result []*models.Order
	for _, o := range m.orders {
		if !models.IsTerminal(o.Status) {
			result = append(result, o)
		}
	}
	return result
}

func (m *MockOrderEngine) Publish(kind, orderID string, payload interface{}) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.queueFull {
		return false
	}
	m.published = append(m.published, publishedEvent{kind: kind, orderID: orderID, payload: payload})
	return true
}

func (m *MockOrderEngine) publishedEvents() []publishedEvent {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]publishedEvent, len(m.published))
	copy(out, m.published)
	return out
}

// ============ Mock Payment Confirmer ============

type confirmation struct {
	paymentRef    string
	settlementRef string
}

// MockConfirmer мок для PaymentConfirmer
type MockConfirmer struct {
	mu         sync.Mutex
	confirmErr error
	confirmed  []confirmation
}

func (m *MockConfirmer) ConfirmByPaymentRef(paymentRef, settlementRef string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.confirmErr != nil {
		return m.confirmErr
	}
	m.confirmed = append(m.confirmed, confirmation{paymentRef: paymentRef, settlementRef: settlementRef})
	return nil
}

func (m *MockConfirmer) confirmations() []confirmation {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]confirmation, len(m.confirmed))
	copy(out, m.confirmed)
	return out
}

// ============ Mock Stats Source ============

// MockStatsSource мок для StatsSource
type MockStatsSource struct {
	stats     *repository.OrderStats
	statsErr  error
	volumes   map[string]int64
	volumeErr error
	gotPeriod utils.PeriodType
	gotDays   int
}

func (m *MockStatsSource) GetStats(period utils.PeriodType) (*repository.OrderStats, error) {
	m.gotPeriod = period
	if m.statsErr != nil {
		return nil, m.statsErr
	}
	return m.stats, nil
}

func (m *MockStatsSource) GetDailyVolume(days int) (map[string]int64, error) {
	m.gotDays = days
	if m.volumeErr != nil {
		return nil, m.volumeErr
	}
	return m.volumes, nil
}

// ============ Mock Notification Source ============

// MockNotificationSource мок для NotificationSource
type MockNotificationSource struct {
	mu            sync.Mutex
	notifications []*models.Notification
	getErr        error
	clearErr      error
	nextID        int
}

// AddNotification добавляет запись в мок журнала
func (m *MockNotificationSource) AddNotification(orderID, notifyType, message string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextID++
	m.notifications = append(m.notifications, &models.Notification{
		ID:        m.nextID,
		OrderID:   orderID,
		Type:      notifyType,
		Message:   message,
		CreatedAt: time.Now(),
	})
}

func (m *MockNotificationSource) GetRecent(orderID string, limit int) ([]*models.Notification, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.getErr != nil {
		return nil, m.getErr
	}

	var result []*models.Notification
	for _, n := range m.notifications {
		if orderID != "" && n.OrderID != orderID {
			continue
		}
		result = append(result, n)
		if len(result) >= limit {
			break
		}
	}
	return result, nil
}

func (m *MockNotificationSource) Clear() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.clearErr != nil {
		return m.clearErr
	}
	m.notifications = nil
	return nil
}
