// Package utils - общие утилиты: логирование, валидация ввода,
// денежная арифметика.
package utils

import (
	"os"
	"strings"
	"sync"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// LogConfig - конфигурация логгера
type LogConfig struct {
	Level       string // debug, info, warn, error, fatal
	Format      string // json или text
	Development bool   // режим разработки (stacktrace на warn)
	Output      string // путь к файлу, пусто = stderr
}

// Logger - обёртка над zap с доменными конструкторами полей.
// Встроенный *zap.Logger даёт прямой доступ к Info/Warn/Error.
type Logger struct {
	*zap.Logger
	sugar *zap.SugaredLogger
}

// InitLogger создаёт логгер по конфигурации. Не возвращает ошибку:
// при недоступном файле вывода откатывается на stderr.
func InitLogger(cfg LogConfig) *Logger {
	level := parseLevel(cfg.Level)

	encoderCfg := zapcore.EncoderConfig{
		TimeKey:        "ts",
		LevelKey:       "level",
		NameKey:        "logger",
		CallerKey:      "caller",
		MessageKey:     "message",
		StacktraceKey:  "stacktrace",
		LineEnding:     zapcore.DefaultLineEnding,
		EncodeLevel:    zapcore.LowercaseLevelEncoder,
		EncodeTime:     zapcore.ISO8601TimeEncoder,
		EncodeDuration: zapcore.StringDurationEncoder,
		EncodeCaller:   zapcore.ShortCallerEncoder,
	}

	var encoder zapcore.Encoder
	if strings.ToLower(cfg.Format) == "text" {
		encoderCfg.EncodeLevel = zapcore.CapitalLevelEncoder
		encoder = zapcore.NewConsoleEncoder(encoderCfg)
	} else {
		encoder = zapcore.NewJSONEncoder(encoderCfg)
	}

	var sink zapcore.WriteSyncer = zapcore.AddSync(os.Stderr)
	if cfg.Output != "" {
		f, err := os.OpenFile(cfg.Output, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
		if err == nil {
			sink = zapcore.AddSync(f)
		}
		// Ошибка открытия - остаёмся на stderr
	}

	core := zapcore.NewCore(encoder, sink, level)

	opts := []zap.Option{zap.AddCaller()}
	if cfg.Development {
		opts = append(opts, zap.Development(), zap.AddStacktrace(zapcore.WarnLevel))
	} else {
		opts = append(opts, zap.AddStacktrace(zapcore.ErrorLevel))
	}

	z := zap.New(core, opts...)
	return &Logger{Logger: z, sugar: z.Sugar()}
}

// parseLevel преобразует строку в уровень zap, по умолчанию info
func parseLevel(level string) zapcore.Level {
	switch strings.ToLower(level) {
	case "debug":
		return zapcore.DebugLevel
	case "info":
		return zapcore.InfoLevel
	case "warn", "warning":
		return zapcore.WarnLevel
	case "error":
		return zapcore.ErrorLevel
	case "fatal":
		return zapcore.FatalLevel
	default:
		return zapcore.InfoLevel
	}
}

// ============================================================
// Глобальный логгер
// ============================================================

var (
	globalMu     sync.RWMutex
	globalLogger *Logger
)

// GetGlobalLogger возвращает глобальный логгер, при необходимости
// создавая логгер по умолчанию
func GetGlobalLogger() *Logger {
	globalMu.RLock()
	l := globalLogger
	globalMu.RUnlock()
	if l != nil {
		return l
	}

	globalMu.Lock()
	defer globalMu.Unlock()
	if globalLogger == nil {
		globalLogger = InitLogger(LogConfig{})
	}
	return globalLogger
}

// L - короткий доступ к глобальному логгеру
func L() *Logger {
	return GetGlobalLogger()
}

// InitGlobalLogger создаёт и устанавливает глобальный логгер
func InitGlobalLogger(cfg LogConfig) *Logger {
	l := InitLogger(cfg)
	SetGlobalLogger(l)
	return l
}

// SetGlobalLogger устанавливает глобальный логгер
func SetGlobalLogger(l *Logger) {
	globalMu.Lock()
	globalLogger = l
	globalMu.Unlock()
}

// ============================================================
// Методы Logger
// ============================================================

// With возвращает дочерний логгер с дополнительными полями
func (l *Logger) With(fields ...zap.Field) *Logger {
	z := l.Logger.With(fields...)
	return &Logger{Logger: z, sugar: z.Sugar()}
}

// WithComponent возвращает логгер компонента
func (l *Logger) WithComponent(name string) *Logger {
	return l.With(Component(name))
}

// WithOrderID возвращает логгер заявки
func (l *Logger) WithOrderID(id string) *Logger {
	return l.With(OrderID(id))
}

// WithOwnerID возвращает логгер владельца заявки
func (l *Logger) WithOwnerID(id int64) *Logger {
	return l.With(OwnerID(id))
}

// WithProvider возвращает логгер внешнего провайдера
func (l *Logger) WithProvider(name string) *Logger {
	return l.With(Provider(name))
}

// Sugar возвращает sugared-логгер для printf-стиля
func (l *Logger) Sugar() *zap.SugaredLogger {
	return l.sugar
}

// ============================================================
// Глобальные функции логирования
// ============================================================

func Debug(msg string, fields ...zap.Field) { L().Debug(msg, fields...) }
func Info(msg string, fields ...zap.Field)  { L().Info(msg, fields...) }
func Warn(msg string, fields ...zap.Field)  { L().Warn(msg, fields...) }
func Error(msg string, fields ...zap.Field) { L().Error(msg, fields...) }
func Fatal(msg string, fields ...zap.Field) { L().Fatal(msg, fields...) }

func Debugf(template string, args ...interface{}) { L().sugar.Debugf(template, args...) }
func Infof(template string, args ...interface{})  { L().sugar.Infof(template, args...) }
func Warnf(template string, args ...interface{})  { L().sugar.Warnf(template, args...) }
func Errorf(template string, args ...interface{}) { L().sugar.Errorf(template, args...) }
func Fatalf(template string, args ...interface{}) { L().sugar.Fatalf(template, args...) }

// ============================================================
// Доменные конструкторы полей
// ============================================================

// OrderID - идентификатор заявки
func OrderID(id string) zap.Field { return zap.String("order_id", id) }

// OwnerID - владелец заявки (id пользователя чата)
func OwnerID(id int64) zap.Field { return zap.Int64("owner_id", id) }

// Currency - валюта заявки
func Currency(c string) zap.Field { return zap.String("currency", c) }

// Network - сеть выплаты
func Network(n string) zap.Field { return zap.String("network", n) }

// Method - способ оплаты
func Method(m string) zap.Field { return zap.String("method", m) }

// AmountMinor - сумма в минорных единицах (копейки, sat)
func AmountMinor(a int64) zap.Field { return zap.Int64("amount_minor", a) }

// PaymentRef - внешний идентификатор счёта
func PaymentRef(ref string) zap.Field { return zap.String("payment_ref", ref) }

// State - статус заявки
func State(s string) zap.Field { return zap.String("state", s) }

// EventKind - вид события шины
func EventKind(k string) zap.Field { return zap.String("event", k) }

// Attempt - номер попытки опроса
func Attempt(n int) zap.Field { return zap.Int("attempt", n) }

// Provider - имя внешнего провайдера
func Provider(name string) zap.Field { return zap.String("provider", name) }

// Latency - длительность операции в миллисекундах
func Latency(ms float64) zap.Field { return zap.Float64("latency_ms", ms) }

// RequestID - идентификатор HTTP-запроса
func RequestID(id string) zap.Field { return zap.String("request_id", id) }

// Component - имя компонента
func Component(name string) zap.Field { return zap.String("component", name) }

// Field - псевдоним zap.Field, чтобы вызывающим не требовался
// прямой импорт zap
type Field = zap.Field

// Переэкспорт стандартных конструкторов, чтобы вызывающим не
// требовался прямой импорт zap
var (
	String  = zap.String
	Int     = zap.Int
	Int64   = zap.Int64
	Float64 = zap.Float64
	Bool    = zap.Bool
	Err     = zap.Error
	Any     = zap.Any
)

// fieldsToInterface разворачивает поля в плоский список key, value
// для sugared-логгера
func fieldsToInterface(fields []zap.Field) []interface{} {
	result := make([]interface{}, 0, len(fields)*2)
	for _, f := range fields {
		result = append(result, f.Key, f.Interface)
	}
	return result
}
