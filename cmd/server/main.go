package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/lib/pq"

	"cryptodesk/internal/api"
	"cryptodesk/internal/config"
	"cryptodesk/internal/engine"
	"cryptodesk/internal/models"
	"cryptodesk/internal/provider"
	"cryptodesk/internal/repository"
	"cryptodesk/internal/websocket"
	"cryptodesk/pkg/utils"
)

func main() {
	// Загрузка конфигурации
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}

	// Инициализация логгера
	log := utils.InitGlobalLogger(utils.LogConfig{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
	})
	defer log.Sync()

	// Инициализация базы данных
	db, err := initDatabase(cfg)
	if err != nil {
		log.Fatal("Failed to connect to database",
			utils.String("dsn", cfg.Database.DSNWithoutPassword()),
			utils.Err(err))
	}
	defer db.Close()

	log.Info("Connected to database",
		utils.String("dsn", cfg.Database.DSNWithoutPassword()))

	// Инициализация репозиториев
	orderRepo := repository.NewOrderRepository(db)
	notificationRepo := repository.NewNotificationRepository(db)
	statsRepo := repository.NewStatsRepository(db)
	credsRepo := repository.NewCredentialsRepository(db, cfg.Security.EncryptionKey)

	// Ключи провайдеров: зашифрованное хранилище в БД, переменные
	// окружения как fallback для первого запуска
	invoiceKey := providerKey(credsRepo, "invoice", cfg.Providers.InvoiceAPIKey, log)
	walletKey := providerKey(credsRepo, "wallet", cfg.Providers.WalletAdminKey, log)

	// Клиенты внешних провайдеров
	invoices := provider.NewInvoiceClient(cfg.Providers.InvoiceBaseURL, invoiceKey)
	resolver := provider.NewLNURLResolver()
	wallet := provider.NewWalletClient(cfg.Providers.WalletBaseURL, walletKey)
	rates := provider.NewRatesClient(cfg.Providers.RatesBaseURL)

	// Движок заявок
	eng := engine.NewEngine(cfg.Engine, invoices, resolver, wallet, rates, engine.NewRealClock(), log.Logger)

	rootCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// WebSocket hub операторской панели
	hub := websocket.NewHub()
	go hub.Run()

	// Зеркалирование заявок и журнала в Postgres, новые записи
	// журнала уходят панели по WebSocket
	mirror := repository.NewMirror(orderRepo, notificationRepo, 256, log.Logger)
	mirror.OnJournal(hub.BroadcastNotification)
	go mirror.Run(rootCtx)

	// Подписчики смен состояния: зеркало в БД и рассылка панели
	eng.Subscribe(models.EventStateChanged, func(order *models.Order, evt engine.Event) {
		mirror.Handle(order, evt.Kind)
		hub.BroadcastOrderUpdate(order)
		if models.IsTerminal(order.Status) {
			go broadcastStats(statsRepo, hub, log)
		}
	})

	// Запуск движка (шина, монитор, sweep)
	engineDone := make(chan error, 1)
	go func() {
		engineDone <- eng.Run(rootCtx)
	}()

	// Настройка HTTP роутера
	deps := &api.Dependencies{
		Engine:        eng,
		Confirmer:     eng,
		Stats:         statsRepo,
		Notifications: notificationRepo,
		Hub:           hub,
		APITokenHash:  cfg.Security.APITokenHash,
		WebhookSecret: cfg.Security.WebhookSecret,
	}
	router := api.SetupRoutes(deps)

	server := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Запуск сервера в отдельной горутине
	go func() {
		log.Info("Starting server", utils.String("addr", server.Addr))
		var err error
		if cfg.Server.UseHTTPS {
			err = server.ListenAndServeTLS(cfg.Server.CertFile, cfg.Server.KeyFile)
		} else {
			err = server.ListenAndServe()
		}
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal("Server failed", utils.Err(err))
		}
	}()

	// Graceful shutdown по сигналу
	<-rootCtx.Done()
	log.Info("Shutting down server")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		log.Error("Server forced to shutdown", utils.Err(err))
	}

	// Ждём остановки движка (воркеры шины, монитор)
	select {
	case <-engineDone:
	case <-ctx.Done():
		log.Warn("Engine did not stop in time")
	}

	log.Info("Server exited")
}

// providerKey получает ключ провайдера: сначала зашифрованное
// хранилище, затем переменная окружения. Ключ из окружения
// сохраняется в хранилище для следующих запусков.
func providerKey(repo *repository.CredentialsRepository, provider, envKey string, log *utils.Logger) string {
	key, err := repo.GetKey(provider)
	if err == nil && key != "" {
		return key
	}
	if err != nil && !errors.Is(err, repository.ErrCredentialsNotFound) {
		log.Warn("Failed to load provider key from store",
			utils.Provider(provider), utils.Err(err))
	}

	if envKey != "" {
		if err := repo.SaveKey(provider, envKey); err != nil {
			log.Warn("Failed to persist provider key",
				utils.Provider(provider), utils.Err(err))
		}
	}
	return envKey
}

// broadcastStats отправляет панели свежую статистику после того,
// как заявка достигла терминального состояния. Запрос к БД идёт в
// отдельной горутине, чтобы не задерживать воркер шины.
func broadcastStats(stats *repository.StatsRepository, hub *websocket.Hub, log *utils.Logger) {
	s, err := stats.GetStats(utils.PeriodDay)
	if err != nil {
		log.Warn("Failed to refresh stats for broadcast", utils.Err(err))
		return
	}
	hub.BroadcastStatsUpdate(s)
}

// initDatabase создает подключение к базе данных
func initDatabase(cfg *config.Config) (*sql.DB, error) {
	db, err := sql.Open(cfg.Database.Driver, cfg.Database.DSN())
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Настройка пула соединений
	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	// Проверка подключения
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := db.PingContext(ctx); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return db, nil
}
