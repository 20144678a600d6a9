package repository

import (
	"database/sql"
	"time"

	"cryptodesk/internal/models"
)

// NotificationRepository - работа с таблицей notifications
// (журнал событий заявок для операторской панели)
type NotificationRepository struct {
	db *sql.DB
}

// NewNotificationRepository создает новый экземпляр репозитория
func NewNotificationRepository(db *sql.DB) *NotificationRepository {
	return &NotificationRepository{db: db}
}

// Create добавляет запись в журнал
func (r *NotificationRepository) Create(n *models.Notification) error {
	query := `
		INSERT INTO notifications (order_id, type, message, created_at)
		VALUES ($1, $2, $3, $4)
		RETURNING id`

	n.CreatedAt = time.Now()

	return r.db.QueryRow(query, n.OrderID, n.Type, n.Message, n.CreatedAt).Scan(&n.ID)
}

// GetRecent возвращает последние N записей журнала.
// orderID пустой - записи по всем заявкам.
func (r *NotificationRepository) GetRecent(orderID string, limit int) ([]*models.Notification, error) {
	var rows *sql.Rows
	var err error

	if orderID != "" {
		query := `
			SELECT id, order_id, type, message, created_at
			FROM notifications
			WHERE order_id = $1
			ORDER BY created_at DESC
			LIMIT $2`
		rows, err = r.db.Query(query, orderID, limit)
	} else {
		query := `
			SELECT id, order_id, type, message, created_at
			FROM notifications
			ORDER BY created_at DESC
			LIMIT $1`
		rows, err = r.db.Query(query, limit)
	}
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var notifications []*models.Notification
	for rows.Next() {
		n := &models.Notification{}
		if err := rows.Scan(&n.ID, &n.OrderID, &n.Type, &n.Message, &n.CreatedAt); err != nil {
			return nil, err
		}
		notifications = append(notifications, n)
	}

	if err = rows.Err(); err != nil {
		return nil, err
	}

	return notifications, nil
}

// Clear очищает журнал
func (r *NotificationRepository) Clear() error {
	_, err := r.db.Exec(`DELETE FROM notifications`)
	return err
}

// DeleteOlderThan удаляет записи старше указанной даты
func (r *NotificationRepository) DeleteOlderThan(timestamp time.Time) (int64, error) {
	result, err := r.db.Exec(`DELETE FROM notifications WHERE created_at < $1`, timestamp)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}
