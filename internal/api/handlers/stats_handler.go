package handlers

import (
	"net/http"

	"cryptodesk/internal/repository"
	"cryptodesk/pkg/utils"
)

// StatsSource - агрегатные запросы, нужные панели
type StatsSource interface {
	GetStats(period utils.PeriodType) (*repository.OrderStats, error)
	GetDailyVolume(days int) (map[string]int64, error)
}

// StatsHandler отвечает за статистику заявок
//
// Endpoints:
// - GET /api/v1/stats - статистика за период
// - GET /api/v1/stats/daily - оборот по дням для графика
type StatsHandler struct {
	stats StatsSource
}

// NewStatsHandler создает новый StatsHandler с внедрением зависимости
func NewStatsHandler(stats StatsSource) *StatsHandler {
	return &StatsHandler{stats: stats}
}

// GetStatsResponse представляет ответ статистики
type GetStatsResponse struct {
	Stats      *repository.OrderStats `json:"stats"`
	FiatVolume string                 `json:"fiat_volume"` // для панели, в рублях
	Commission string                 `json:"commission"`
}

// GetStats возвращает статистику заявок
//
// GET /api/v1/stats?period=day|week|month|all
//
// period по умолчанию day. Неизвестный период трактуется как day.
//
// HTTP коды:
// - 200 OK: успешно
// - 500 Internal Server Error: ошибка БД
func (h *StatsHandler) GetStats(w http.ResponseWriter, r *http.Request) {
	period := utils.PeriodType(r.URL.Query().Get("period"))
	if period == "" {
		period = utils.PeriodDay
	}

	stats, err := h.stats.GetStats(period)
	if err != nil {
		respondWithError(w, http.StatusInternalServerError, "Failed to get stats: "+err.Error())
		return
	}

	respondWithJSON(w, http.StatusOK, GetStatsResponse{
		Stats:      stats,
		FiatVolume: utils.FormatFiatMinor(stats.FiatVolumeMinor),
		Commission: utils.FormatFiatMinor(stats.CommissionMinor),
	})
}

// GetDailyVolumeResponse представляет оборот по дням
type GetDailyVolumeResponse struct {
	Days map[string]int64 `json:"days"` // дата -> оборот в копейках
}

// GetDailyVolume возвращает оборот завершённых заявок по дням
//
// GET /api/v1/stats/daily?days=7
//
// days по умолчанию 7, максимум 90.
//
// HTTP коды:
// - 200 OK: успешно
// - 500 Internal Server Error: ошибка БД
func (h *StatsHandler) GetDailyVolume(w http.ResponseWriter, r *http.Request) {
	days := 7
	if param := r.URL.Query().Get("days"); param != "" {
		if parsed, ok := parsePositiveInt(param); ok {
			days = parsed
		}
	}
	if days > 90 {
		days = 90
	}

	volumes, err := h.stats.GetDailyVolume(days)
	if err != nil {
		respondWithError(w, http.StatusInternalServerError, "Failed to get daily volume: "+err.Error())
		return
	}

	respondWithJSON(w, http.StatusOK, GetDailyVolumeResponse{Days: volumes})
}
