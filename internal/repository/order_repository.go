package repository

import (
	"database/sql"
	"errors"
	"time"

	"cryptodesk/internal/models"
)

// Ошибки репозитория заявок
var (
	ErrOrderNotFound = errors.New("order record not found")
)

// OrderRepository - работа с таблицей orders.
//
// Таблица - отчётное зеркало in-memory store движка: каждая смена
// статуса перезаписывает строку целиком (upsert по id). Источником
// истины для активных заявок остаётся память, БД нужна для истории
// и статистики после выгрузки заявки из памяти.
type OrderRepository struct {
	db *sql.DB
}

// NewOrderRepository создает новый экземпляр репозитория
func NewOrderRepository(db *sql.DB) *OrderRepository {
	return &OrderRepository{db: db}
}

const orderColumns = `id, owner_id, currency, network, method,
		fiat_amount_minor, commission_minor, partner_fee_minor, net_payout_minor,
		payment_ref, settlement_ref, payout_destination, payout_payment_id, payout_dispatched,
		pay_url, status, error_message, attempt_count, created_at, updated_at`

// Upsert записывает текущее состояние заявки
func (r *OrderRepository) Upsert(order *models.Order) error {
	query := `
		INSERT INTO orders (` + orderColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19, $20)
		ON CONFLICT (id) DO UPDATE SET
			currency = EXCLUDED.currency,
			network = EXCLUDED.network,
			method = EXCLUDED.method,
			fiat_amount_minor = EXCLUDED.fiat_amount_minor,
			commission_minor = EXCLUDED.commission_minor,
			partner_fee_minor = EXCLUDED.partner_fee_minor,
			net_payout_minor = EXCLUDED.net_payout_minor,
			payment_ref = EXCLUDED.payment_ref,
			settlement_ref = EXCLUDED.settlement_ref,
			payout_destination = EXCLUDED.payout_destination,
			payout_payment_id = EXCLUDED.payout_payment_id,
			payout_dispatched = EXCLUDED.payout_dispatched,
			pay_url = EXCLUDED.pay_url,
			status = EXCLUDED.status,
			error_message = EXCLUDED.error_message,
			attempt_count = EXCLUDED.attempt_count,
			updated_at = EXCLUDED.updated_at`

	_, err := r.db.Exec(
		query,
		order.ID,
		order.OwnerID,
		order.Currency,
		order.Network,
		order.Method,
		order.FiatAmountMinor,
		order.CommissionMinor,
		order.PartnerFeeMinor,
		order.NetPayoutMinor,
		order.PaymentRef,
		order.SettlementRef,
		order.PayoutDestination,
		order.PayoutPaymentID,
		order.PayoutDispatched,
		order.PayURL,
		order.Status,
		order.ErrorMessage,
		order.AttemptCount,
		order.CreatedAt,
		order.UpdatedAt,
	)

	return err
}

// scanOrder читает строку в модель
func scanOrder(scan func(dest ...interface{}) error) (*models.Order, error) {
	order := &models.Order{}
	err := scan(
		&order.ID,
		&order.OwnerID,
		&order.Currency,
		&order.Network,
		&order.Method,
		&order.FiatAmountMinor,
		&order.CommissionMinor,
		&order.PartnerFeeMinor,
		&order.NetPayoutMinor,
		&order.PaymentRef,
		&order.SettlementRef,
		&order.PayoutDestination,
		&order.PayoutPaymentID,
		&order.PayoutDispatched,
		&order.PayURL,
		&order.Status,
		&order.ErrorMessage,
		&order.AttemptCount,
		&order.CreatedAt,
		&order.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return order, nil
}

// GetByID возвращает заявку по идентификатору
func (r *OrderRepository) GetByID(id string) (*models.Order, error) {
	query := `
		SELECT ` + orderColumns + `
		FROM orders
		WHERE id = $1`

	order, err := scanOrder(r.db.QueryRow(query, id).Scan)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrOrderNotFound
		}
		return nil, err
	}

	return order, nil
}

// GetRecent возвращает последние N заявок
func (r *OrderRepository) GetRecent(limit int) ([]*models.Order, error) {
	query := `
		SELECT ` + orderColumns + `
		FROM orders
		ORDER BY created_at DESC
		LIMIT $1`

	rows, err := r.db.Query(query, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var orders []*models.Order
	for rows.Next() {
		order, err := scanOrder(rows.Scan)
		if err != nil {
			return nil, err
		}
		orders = append(orders, order)
	}

	if err = rows.Err(); err != nil {
		return nil, err
	}

	return orders, nil
}

// GetByOwner возвращает заявки пользователя, новые первыми
func (r *OrderRepository) GetByOwner(ownerID int64, limit int) ([]*models.Order, error) {
	query := `
		SELECT ` + orderColumns + `
		FROM orders
		WHERE owner_id = $1
		ORDER BY created_at DESC
		LIMIT $2`

	rows, err := r.db.Query(query, ownerID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var orders []*models.Order
	for rows.Next() {
		order, err := scanOrder(rows.Scan)
		if err != nil {
			return nil, err
		}
		orders = append(orders, order)
	}

	if err = rows.Err(); err != nil {
		return nil, err
	}

	return orders, nil
}

// GetByStatus возвращает заявки с определенным статусом
func (r *OrderRepository) GetByStatus(status string, limit int) ([]*models.Order, error) {
	query := `
		SELECT ` + orderColumns + `
		FROM orders
		WHERE status = $1
		ORDER BY created_at DESC
		LIMIT $2`

	rows, err := r.db.Query(query, status, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var orders []*models.Order
	for rows.Next() {
		order, err := scanOrder(rows.Scan)
		if err != nil {
			return nil, err
		}
		orders = append(orders, order)
	}

	if err = rows.Err(); err != nil {
		return nil, err
	}

	return orders, nil
}

// CountByStatus возвращает количество заявок с определенным статусом
func (r *OrderRepository) CountByStatus(status string) (int, error) {
	query := `SELECT COUNT(*) FROM orders WHERE status = $1`

	var count int
	err := r.db.QueryRow(query, status).Scan(&count)
	if err != nil {
		return 0, err
	}

	return count, nil
}

// DeleteOlderThan удаляет заявки, созданные раньше указанной даты
func (r *OrderRepository) DeleteOlderThan(timestamp time.Time) (int64, error) {
	query := `DELETE FROM orders WHERE created_at < $1`

	result, err := r.db.Exec(query, timestamp)
	if err != nil {
		return 0, err
	}

	return result.RowsAffected()
}
