package engine

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"

	"cryptodesk/internal/models"
)

// ============ Bus Tests ============

func TestBusPerOrderOrdering(t *testing.T) {
	// События одной заявки должны применяться строго в порядке
	// публикации независимо от числа шардов
	const perOrder = 200
	orders := []string{"order-a", "order-b", "order-c", "order-d"}

	var mu sync.Mutex
	seen := make(map[string][]int)

	bus := NewBus(4, perOrder*len(orders), func(evt Event) {
		mu.Lock()
		seen[evt.OrderID] = append(seen[evt.OrderID], evt.Payload.(int))
		mu.Unlock()
	}, zap.NewNop())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		bus.Run(ctx)
		close(done)
	}()

	// Публикуем из нескольких горутин: по горутине на заявку,
	// внутри заявки порядок публикации фиксирован
	var wg sync.WaitGroup
	for _, orderID := range orders {
		wg.Add(1)
		go func(id string) {
			defer wg.Done()
			for seq := 0; seq < perOrder; seq++ {
				if !bus.Publish("test_event", id, seq) {
					t.Errorf("publish failed for %s seq %d", id, seq)
					return
				}
			}
		}(orderID)
	}
	wg.Wait()

	// Ждём обработку
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		mu.Lock()
		total := 0
		for _, s := range seen {
			total += len(s)
		}
		mu.Unlock()
		if total == perOrder*len(orders) {
			break
		}
		time.Sleep(5 * time.Millisecond)
	}

	cancel()
	<-done

	mu.Lock()
	defer mu.Unlock()
	for _, orderID := range orders {
		got := seen[orderID]
		if len(got) != perOrder {
			t.Fatalf("order %s: processed %d events, want %d", orderID, len(got), perOrder)
		}
		for i, seq := range got {
			if seq != i {
				t.Fatalf("order %s: event %d has seq %d, ordering broken", orderID, i, seq)
			}
		}
	}
}

func TestBusShardIsStable(t *testing.T) {
	bus := NewBus(8, 1, nil, zap.NewNop())

	for _, id := range []string{"o-1", "o-2", "abc", ""} {
		first := bus.shardIndex(id)
		for i := 0; i < 10; i++ {
			if got := bus.shardIndex(id); got != first {
				t.Fatalf("shard for %q not stable: %d vs %d", id, first, got)
			}
		}
	}
}

func TestBusPublishOverflow(t *testing.T) {
	// apply не запущен - буфер переполняется
	bus := NewBus(1, 2, func(Event) {}, zap.NewNop())

	if !bus.Publish("e", "o-1", nil) {
		t.Fatal("first publish should fit")
	}
	if !bus.Publish("e", "o-1", nil) {
		t.Fatal("second publish should fit")
	}
	if bus.Publish("e", "o-1", nil) {
		t.Error("publish into full shard should report drop")
	}
}

func TestBusSubscribeNotify(t *testing.T) {
	bus := NewBus(1, 8, func(Event) {}, zap.NewNop())

	var mu sync.Mutex
	var calls []string

	bus.Subscribe(models.EventStateChanged, func(order *models.Order, evt Event) {
		mu.Lock()
		calls = append(calls, "first:"+order.ID)
		mu.Unlock()
	})
	bus.Subscribe(models.EventStateChanged, func(order *models.Order, evt Event) {
		mu.Lock()
		calls = append(calls, "second:"+order.ID)
		mu.Unlock()
	})

	order := &models.Order{ID: "o-9"}
	bus.Notify(models.EventStateChanged, order, Event{Kind: models.EventStateChanged, OrderID: order.ID})

	mu.Lock()
	defer mu.Unlock()
	if len(calls) != 2 || calls[0] != "first:o-9" || calls[1] != "second:o-9" {
		t.Errorf("subscriber calls = %v", calls)
	}
}

func BenchmarkBusPublish(b *testing.B) {
	bus := NewBus(8, 1024, func(Event) {}, zap.NewNop())
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go bus.Run(ctx)

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		bus.Publish("bench", fmt.Sprintf("order-%d", i%100), i)
	}
}
