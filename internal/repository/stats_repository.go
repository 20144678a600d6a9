package repository

import (
	"database/sql"
	"time"

	"cryptodesk/pkg/utils"
)

// OrderStats - агрегированная статистика заявок за период
type OrderStats struct {
	Period          string `json:"period"`
	TotalOrders     int    `json:"total_orders"`
	CompletedOrders int    `json:"completed_orders"`
	FailedOrders    int    `json:"failed_orders"`
	ExpiredOrders   int    `json:"expired_orders"`
	CancelledOrders int    `json:"cancelled_orders"`
	FiatVolumeMinor int64  `json:"fiat_volume_minor"` // оборот завершённых заявок, копейки
	CommissionMinor int64  `json:"commission_minor"`  // заработанная комиссия, копейки
}

// StatsRepository - агрегатные запросы по таблице orders
type StatsRepository struct {
	db *sql.DB
}

// NewStatsRepository создает новый экземпляр репозитория
func NewStatsRepository(db *sql.DB) *StatsRepository {
	return &StatsRepository{db: db}
}

// GetStats возвращает статистику заявок за период (day/week/month/all).
// Оборот и комиссия считаются только по завершённым заявкам:
// незавершённые деньги ещё не наши.
func (r *StatsRepository) GetStats(period utils.PeriodType) (*OrderStats, error) {
	from := utils.GetPeriodStart(period)

	query := `
		SELECT
			COUNT(*),
			COUNT(*) FILTER (WHERE status = 'COMPLETED'),
			COUNT(*) FILTER (WHERE status = 'FAILED'),
			COUNT(*) FILTER (WHERE status = 'EXPIRED'),
			COUNT(*) FILTER (WHERE status = 'CANCELLED'),
			COALESCE(SUM(fiat_amount_minor) FILTER (WHERE status = 'COMPLETED'), 0),
			COALESCE(SUM(commission_minor) FILTER (WHERE status = 'COMPLETED'), 0)
		FROM orders
		WHERE created_at >= $1`

	stats := &OrderStats{Period: string(period)}
	err := r.db.QueryRow(query, from).Scan(
		&stats.TotalOrders,
		&stats.CompletedOrders,
		&stats.FailedOrders,
		&stats.ExpiredOrders,
		&stats.CancelledOrders,
		&stats.FiatVolumeMinor,
		&stats.CommissionMinor,
	)
	if err != nil {
		return nil, err
	}

	return stats, nil
}

// GetDailyVolume возвращает оборот завершённых заявок по дням
// за последние N дней (для графика на панели)
func (r *StatsRepository) GetDailyVolume(days int) (map[string]int64, error) {
	span := utils.GetLastNDays(days)

	query := `
		SELECT date_trunc('day', created_at)::date, COALESCE(SUM(fiat_amount_minor), 0)
		FROM orders
		WHERE status = 'COMPLETED' AND created_at >= $1
		GROUP BY 1`

	rows, err := r.db.Query(query, span.Start)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	volumes := make(map[string]int64, days)
	for rows.Next() {
		var day time.Time
		var volume int64
		if err := rows.Scan(&day, &volume); err != nil {
			return nil, err
		}
		volumes[day.Format("2006-01-02")] = volume
	}

	if err = rows.Err(); err != nil {
		return nil, err
	}

	return volumes, nil
}
