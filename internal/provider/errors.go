package provider

import (
	"errors"
	"fmt"
)

// ProviderError - ошибка внешнего провайдера с признаком восстановимости.
// Permanent=true означает, что retry бессмысленен (авторизация,
// некорректный ответ, отклонение платежа провайдером).
type ProviderError struct {
	Provider  string // invoice, wallet, alias
	Permanent bool
	Err       error
}

func (e *ProviderError) Error() string {
	kind := "transient"
	if e.Permanent {
		kind = "permanent"
	}
	return fmt.Sprintf("%s provider error (%s): %v", e.Provider, kind, e.Err)
}

func (e *ProviderError) Unwrap() error {
	return e.Err
}

// Retryable реализует retry.RetryableError
func (e *ProviderError) Retryable() bool {
	return !e.Permanent
}

// IsPermanent проверяет, что ошибка провайдера невосстановима
func IsPermanent(err error) bool {
	var pe *ProviderError
	return errors.As(err, &pe) && pe.Permanent
}

// DestinationResolutionError - не удалось разрешить алиас получателя.
// Заявка остаётся в ожидании исправленного адреса.
type DestinationResolutionError struct {
	Destination string
	Err         error
}

func (e *DestinationResolutionError) Error() string {
	return fmt.Sprintf("failed to resolve destination %q: %v", e.Destination, e.Err)
}

func (e *DestinationResolutionError) Unwrap() error {
	return e.Err
}
