package engine

import "cryptodesk/internal/models"

// ValidTransitions определяет допустимые переходы между статусами заявки.
// Граф монотонный: назад вернуться нельзя, только вперёд либо в одну из
// побочных терминальных веток (FAILED, EXPIRED, CANCELLED).
var ValidTransitions = map[string][]string{
	models.StatusCreated:          {models.StatusCurrencySelected},
	models.StatusCurrencySelected: {models.StatusNetworkSelected},
	models.StatusNetworkSelected:  {models.StatusAmountEntered},
	models.StatusAmountEntered:    {models.StatusMethodSelected},
	models.StatusMethodSelected:   {models.StatusInvoiceGenerated},
	models.StatusInvoiceGenerated: {models.StatusPaymentConfirmed},
	models.StatusPaymentConfirmed: {models.StatusDestinationSet},
	models.StatusDestinationSet:   {models.StatusPayoutDispatched},
	models.StatusPayoutDispatched: {models.StatusCompleted},
	// Терминальные статусы переходов не имеют
	models.StatusCompleted: {},
	models.StatusFailed:    {},
	models.StatusExpired:   {},
	models.StatusCancelled: {},
}

// CanTransition проверяет допустимость перехода.
// FAILED, EXPIRED и CANCELLED достижимы из любого нетерминального статуса.
func CanTransition(from, to string) bool {
	allowed, ok := ValidTransitions[from]
	if !ok {
		return false
	}

	if !models.IsTerminal(from) {
		switch to {
		case models.StatusFailed, models.StatusExpired, models.StatusCancelled:
			return true
		}
	}

	for _, s := range allowed {
		if s == to {
			return true
		}
	}
	return false
}

// TryTransition выполняет переход статуса заявки.
// При недопустимом переходе возвращает StateTransitionError, заявка не меняется.
// Вызывается только изнутри Store.Mutate под per-order локом.
func TryTransition(order *models.Order, to string) error {
	if !CanTransition(order.Status, to) {
		return &StateTransitionError{
			OrderID: order.ID,
			From:    order.Status,
			To:      to,
		}
	}
	order.Status = to
	return nil
}

// StateInfo возвращает описание статуса для чат-интерфейса
func StateInfo(s string) string {
	switch s {
	case models.StatusCreated:
		return "Заявка создана"
	case models.StatusCurrencySelected:
		return "Выберите сеть"
	case models.StatusNetworkSelected:
		return "Введите сумму"
	case models.StatusAmountEntered:
		return "Выберите способ оплаты"
	case models.StatusMethodSelected:
		return "Формируем счёт..."
	case models.StatusInvoiceGenerated:
		return "Ожидаем поступление оплаты"
	case models.StatusPaymentConfirmed:
		return "Оплата получена! Укажите адрес для выплаты"
	case models.StatusDestinationSet:
		return "Отправляем выплату..."
	case models.StatusPayoutDispatched:
		return "Выплата отправлена, ожидаем подтверждение"
	case models.StatusCompleted:
		return "Готово! Выплата доставлена"
	case models.StatusFailed:
		return "Не удалось завершить заявку, обратитесь в поддержку"
	case models.StatusExpired:
		return "Срок оплаты истёк, создайте новую заявку"
	case models.StatusCancelled:
		return "Заявка отменена"
	default:
		return "Неизвестный статус"
	}
}
