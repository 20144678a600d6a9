package engine

import (
	"context"
	"time"
)

// Clock абстрагирует время для монитора подтверждения.
// В тестах подменяется фейковой реализацией - без реальных sleep'ов.
type Clock interface {
	Now() time.Time

	// Sleep ждёт d или отмену контекста. Возвращает false при отмене.
	Sleep(ctx context.Context, d time.Duration) bool
}

// realClock - боевая реализация на time
type realClock struct{}

// NewRealClock возвращает Clock на системном времени
func NewRealClock() Clock {
	return realClock{}
}

func (realClock) Now() time.Time {
	return time.Now().UTC()
}

func (realClock) Sleep(ctx context.Context, d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-timer.C:
		return true
	case <-ctx.Done():
		return false
	}
}
