package engine

import (
	"context"
	"hash/fnv"
	"strconv"
	"sync"

	"go.uber.org/zap"

	"cryptodesk/internal/models"
)

// Event - событие жизненного цикла заявки.
// Закрытый набор видов (models.Event*) вместо динамических callback'ов.
type Event struct {
	Kind    string
	OrderID string
	Payload interface{}
}

// Handler - подписчик, вызывается ПОСЛЕ успешного перехода состояния.
// Получает копию заявки, мутировать её бессмысленно.
type Handler func(order *models.Order, evt Event)

// Bus - шина событий между продюсерами (чат-обработчики, монитор,
// webhook) и движком.
//
// Контракт упорядоченности: события одной заявки обрабатываются
// строго в порядке публикации. Достигается шардированием по order_id
// с ОДНИМ воркером на шард - одна заявка всегда попадает в один шард,
// внутри шарда обработка последовательная. События разных заявок
// идут параллельно.
type Bus struct {
	shards    []*busShard
	numShards int

	// apply - обработчик событий (движок). Выполняется в воркере шарда.
	apply func(Event)

	subsMu sync.RWMutex
	subs   map[string][]Handler

	log *zap.Logger
}

// busShard - очередь событий одного шарда
type busShard struct {
	events chan Event
}

// NewBus создаёт шину. apply вызывается воркером для каждого события.
func NewBus(numShards, buffer int, apply func(Event), log *zap.Logger) *Bus {
	if numShards < 1 {
		numShards = 4
	}
	if buffer < 1 {
		buffer = 64
	}

	b := &Bus{
		shards:    make([]*busShard, numShards),
		numShards: numShards,
		apply:     apply,
		subs:      make(map[string][]Handler),
		log:       log,
	}
	for i := 0; i < numShards; i++ {
		b.shards[i] = &busShard{events: make(chan Event, buffer)}
	}
	return b
}

// Run запускает по одному воркеру на шард и блокируется до отмены контекста.
// Ровно один воркер на шард - иначе ломается порядок событий заявки.
func (b *Bus) Run(ctx context.Context) {
	var wg sync.WaitGroup
	for i := 0; i < b.numShards; i++ {
		wg.Add(1)
		go func(shard *busShard) {
			defer wg.Done()
			for {
				select {
				case <-ctx.Done():
					return
				case evt := <-shard.events:
					b.apply(evt)
					RecordEvent(evt.Kind)
				}
			}
		}(b.shards[i])
	}
	wg.Wait()
}

// Publish публикует событие. Fire-and-forget: вызывающий не ждёт обработки.
// Возвращает false при переполнении буфера шарда (событие отброшено).
func (b *Bus) Publish(kind, orderID string, payload interface{}) bool {
	idx := b.shardIndex(orderID)
	evt := Event{Kind: kind, OrderID: orderID, Payload: payload}

	select {
	case b.shards[idx].events <- evt:
		return true
	default:
		RecordBufferOverflow(strconv.Itoa(idx))
		b.log.Warn("bus buffer overflow, event dropped",
			zap.String("kind", kind),
			zap.String("order_id", orderID),
			zap.Int("shard", idx))
		return false
	}
}

// Subscribe регистрирует подписчика на вид события.
// Подписчики вызываются синхронно из воркера шарда после перехода.
func (b *Bus) Subscribe(kind string, h Handler) {
	b.subsMu.Lock()
	b.subs[kind] = append(b.subs[kind], h)
	b.subsMu.Unlock()
}

// Notify вызывает подписчиков события. Вызывается движком после
// успешного перехода состояния.
func (b *Bus) Notify(kind string, order *models.Order, evt Event) {
	b.subsMu.RLock()
	handlers := b.subs[kind]
	b.subsMu.RUnlock()

	for _, h := range handlers {
		h(order, evt)
	}
}

// shardIndex - детерминированный шард по order_id (FNV-1a)
func (b *Bus) shardIndex(orderID string) int {
	h := fnv.New32a()
	h.Write([]byte(orderID))
	return int(h.Sum32()) % b.numShards
}
