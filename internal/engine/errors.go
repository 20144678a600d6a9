package engine

import (
	"errors"
	"fmt"
)

// Таксономия ошибок движка заявок.
//
// Валидационные - заявка остаётся на месте, пользователь вводит заново.
// Протокольные - ошибка использования, заявка не затронута.
// Терминальные интеграционные - заявка переходит в FAILED, нужен оператор.
// Временные интеграционные - retry внутри компонента-владельца.
var (
	// Валидационные
	ErrAmountOutOfRange           = errors.New("amount out of range")
	ErrInvalidDestination         = errors.New("invalid payout destination")
	ErrUnsupportedCurrencyNetwork = errors.New("unsupported currency/network combination")

	// Протокольные
	ErrOrderNotFound        = errors.New("order not found")
	ErrDuplicateActiveOrder = errors.New("owner already has an active order")
	ErrPaymentRefInUse      = errors.New("payment reference already monitored")
	ErrOrderTerminal        = errors.New("order is in a terminal state")

	// Терминальные интеграционные
	ErrInsufficientBalance = errors.New("insufficient wallet balance")
)

// StateTransitionError - попытка недопустимого перехода состояния.
// Возвращается из TryTransition, заявка при этом не изменяется.
type StateTransitionError struct {
	OrderID string
	From    string
	To      string
}

func (e *StateTransitionError) Error() string {
	return fmt.Sprintf("invalid state transition %s → %s (order %s)", e.From, e.To, e.OrderID)
}
