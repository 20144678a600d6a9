// Package crypto - хеширование операторских токенов, подпись
// webhook'ов и шифрование ключей провайдеров.
package crypto

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"

	"golang.org/x/crypto/bcrypt"
)

// Ошибки хеширования и подписи
var (
	ErrEmptyToken       = errors.New("token cannot be empty")
	ErrTokenMismatch    = errors.New("token does not match hash")
	ErrInvalidHash      = errors.New("invalid token hash format")
	ErrTokenTooLong     = errors.New("token exceeds maximum length of 72 bytes")
	ErrInvalidSignature = errors.New("invalid webhook signature")
)

// DefaultCost - стоимость bcrypt по умолчанию.
// Токен проверяется на каждый админ-запрос, 12 - разумный компромисс.
const DefaultCost = 12

// MaxTokenLength - ограничение bcrypt (72 байта)
const MaxTokenLength = 72

// HashToken хеширует операторский токен через bcrypt.
// Salt генерируется автоматически.
func HashToken(token string) (string, error) {
	return HashTokenWithCost(token, DefaultCost)
}

// HashTokenWithCost хеширует токен с указанной стоимостью.
// cost вне [bcrypt.MinCost, bcrypt.MaxCost] приводится к границе.
func HashTokenWithCost(token string, cost int) (string, error) {
	if token == "" {
		return "", ErrEmptyToken
	}

	if len(token) > MaxTokenLength {
		return "", ErrTokenTooLong
	}

	if cost < bcrypt.MinCost {
		cost = bcrypt.MinCost
	}
	if cost > bcrypt.MaxCost {
		cost = bcrypt.MaxCost
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(token), cost)
	if err != nil {
		return "", err
	}

	return string(hash), nil
}

// VerifyToken проверяет соответствие токена хешу.
// bcrypt сравнивает за константное время.
func VerifyToken(token, hash string) error {
	if token == "" {
		return ErrEmptyToken
	}

	if hash == "" {
		return ErrInvalidHash
	}

	err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(token))
	if err != nil {
		if errors.Is(err, bcrypt.ErrMismatchedHashAndPassword) {
			return ErrTokenMismatch
		}
		return ErrInvalidHash
	}

	return nil
}

// CheckTokenMatch - булева обёртка над VerifyToken
func CheckTokenMatch(token, hash string) bool {
	return VerifyToken(token, hash) == nil
}

// GetHashCost извлекает cost из существующего хеша
func GetHashCost(hash string) (int, error) {
	if hash == "" {
		return 0, ErrInvalidHash
	}

	cost, err := bcrypt.Cost([]byte(hash))
	if err != nil {
		return 0, ErrInvalidHash
	}

	return cost, nil
}

// NeedsRehash возвращает true, если cost хеша меньше желаемого
func NeedsRehash(hash string, desiredCost int) bool {
	currentCost, err := GetHashCost(hash)
	if err != nil {
		return true
	}
	return currentCost < desiredCost
}

// ============================================================
// Подпись webhook'ов
// ============================================================

// SignPayload считает HMAC-SHA256 подпись тела webhook'а.
// Возвращает hex-строку, как передаёт её провайдер в заголовке.
func SignPayload(payload []byte, secret string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(payload)
	return hex.EncodeToString(mac.Sum(nil))
}

// VerifySignature проверяет подпись webhook'а за константное время
func VerifySignature(payload []byte, signature, secret string) error {
	if signature == "" {
		return ErrInvalidSignature
	}

	expected := SignPayload(payload, secret)
	if !hmac.Equal([]byte(expected), []byte(signature)) {
		return ErrInvalidSignature
	}

	return nil
}
