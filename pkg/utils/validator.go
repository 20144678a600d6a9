package utils

// validator.go - валидация пользовательского ввода: адреса выплат,
// алиасы, суммы. Проверяется только синтаксис - семантику (домен
// алиаса отвечает, адрес существует) проверяют провайдеры.

import (
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// Сентинельные ошибки валидации
var (
	ErrInvalidAlias       = errors.New("invalid lightning alias")
	ErrInvalidBolt11      = errors.New("invalid bolt11 invoice")
	ErrInvalidBTCAddress  = errors.New("invalid bitcoin address")
	ErrInvalidTronAddress = errors.New("invalid tron address")
	ErrUnknownNetwork     = errors.New("unknown payout network")
	ErrInvalidAmount      = errors.New("invalid amount")
)

var (
	// name@domain, как email, но без плюсов и кавычек - LNURL-pay алиас
	aliasRe = regexp.MustCompile(`^[a-z0-9._-]+@[a-z0-9-]+(\.[a-z0-9-]+)+$`)

	// bech32-часть bolt11 после префикса
	bolt11Re = regexp.MustCompile(`^lnbc[0-9]*[munp]?1[02-9ac-hj-np-z]{50,}$`)

	// base58 legacy/p2sh либо bech32 segwit
	btcLegacyRe = regexp.MustCompile(`^[13][1-9A-HJ-NP-Za-km-z]{25,34}$`)
	btcBech32Re = regexp.MustCompile(`^bc1[02-9ac-hj-np-z]{11,87}$`)

	// TRON: T + 33 символа base58
	tronRe = regexp.MustCompile(`^T[1-9A-HJ-NP-Za-km-z]{33}$`)
)

// ValidateDestination проверяет синтаксис адреса выплаты для сети.
// Для lightning допустимы и алиас name@domain, и bolt11 инвойс.
func ValidateDestination(network, destination string) error {
	destination = strings.TrimSpace(destination)
	if destination == "" {
		return fmt.Errorf("destination is empty")
	}

	switch network {
	case "lightning":
		if strings.Contains(destination, "@") {
			return ValidateAlias(destination)
		}
		return ValidateBolt11(destination)
	case "onchain":
		return ValidateBTCAddress(destination)
	case "trc20":
		return ValidateTronAddress(destination)
	default:
		return fmt.Errorf("%w: %s", ErrUnknownNetwork, network)
	}
}

// ValidateAlias проверяет lightning-алиас name@domain
func ValidateAlias(alias string) error {
	if alias == "" {
		return ErrInvalidAlias
	}
	if !aliasRe.MatchString(strings.ToLower(alias)) {
		return fmt.Errorf("%w: %s", ErrInvalidAlias, alias)
	}
	return nil
}

// ValidateBolt11 проверяет формат lightning-инвойса (mainnet)
func ValidateBolt11(invoice string) error {
	inv := strings.ToLower(invoice)
	if !strings.HasPrefix(inv, "lnbc") {
		return fmt.Errorf("%w: must start with lnbc", ErrInvalidBolt11)
	}
	if !bolt11Re.MatchString(inv) {
		return ErrInvalidBolt11
	}
	return nil
}

// ValidateBTCAddress проверяет формат биткоин-адреса (legacy, p2sh, bech32)
func ValidateBTCAddress(addr string) error {
	if btcLegacyRe.MatchString(addr) {
		return nil
	}
	if btcBech32Re.MatchString(strings.ToLower(addr)) {
		return nil
	}
	return fmt.Errorf("%w: %s", ErrInvalidBTCAddress, addr)
}

// ValidateTronAddress проверяет формат TRC-20 адреса
func ValidateTronAddress(addr string) error {
	if !tronRe.MatchString(addr) {
		return fmt.Errorf("%w: %s", ErrInvalidTronAddress, addr)
	}
	return nil
}

// ParseFiatMinor разбирает сумму из чата ("1500", "1500.50") в копейки.
// Допускается точка или запятая, не больше двух знаков после.
func ParseFiatMinor(s string) (int64, error) {
	s = strings.TrimSpace(strings.ReplaceAll(s, ",", "."))
	if s == "" {
		return 0, ErrInvalidAmount
	}

	parts := strings.SplitN(s, ".", 2)
	whole, err := strconv.ParseInt(parts[0], 10, 64)
	if err != nil || whole < 0 {
		return 0, fmt.Errorf("%w: %s", ErrInvalidAmount, s)
	}

	var frac int64
	if len(parts) == 2 {
		f := parts[1]
		if f == "" || len(f) > 2 {
			return 0, fmt.Errorf("%w: %s", ErrInvalidAmount, s)
		}
		if len(f) == 1 {
			f += "0"
		}
		frac, err = strconv.ParseInt(f, 10, 64)
		if err != nil {
			return 0, fmt.Errorf("%w: %s", ErrInvalidAmount, s)
		}
	}

	return whole*100 + frac, nil
}

// Is* хелперы для мест, где причина не нужна

func IsValidDestination(network, destination string) bool {
	return ValidateDestination(network, destination) == nil
}

func IsValidAlias(alias string) bool {
	return ValidateAlias(alias) == nil
}

// ValidationErrors - накопитель ошибок по нескольким полям формы
type ValidationErrors []FieldError

// FieldError - ошибка отдельного поля
type FieldError struct {
	Field   string
	Message string
}

// Add добавляет ошибку поля
func (v *ValidationErrors) Add(field, message string) {
	*v = append(*v, FieldError{Field: field, Message: message})
}

// AddError добавляет error как ошибку поля, nil игнорируется
func (v *ValidationErrors) AddError(field string, err error) {
	if err == nil {
		return
	}
	v.Add(field, err.Error())
}

// HasErrors возвращает true, если накоплена хотя бы одна ошибка
func (v ValidationErrors) HasErrors() bool {
	return len(v) > 0
}

func (v ValidationErrors) Error() string {
	if len(v) == 0 {
		return ""
	}
	parts := make([]string, 0, len(v))
	for _, e := range v {
		parts = append(parts, fmt.Sprintf("%s: %s", e.Field, e.Message))
	}
	return strings.Join(parts, "; ")
}
