package repository

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"cryptodesk/pkg/crypto"
)

// Ошибки репозитория учётных данных
var (
	ErrCredentialsNotFound = errors.New("provider credentials not found")
)

// CredentialsRepository - работа с таблицей provider_credentials.
// Ключи провайдеров (платёжный, кошелёк) хранятся зашифрованными
// AES-256-GCM, в открытом виде ключ существует только в памяти процесса.
type CredentialsRepository struct {
	db            *sql.DB
	encryptionKey string
}

// NewCredentialsRepository создает новый экземпляр репозитория.
// encryptionKey - 32 байта из ENCRYPTION_KEY.
func NewCredentialsRepository(db *sql.DB, encryptionKey string) *CredentialsRepository {
	return &CredentialsRepository{db: db, encryptionKey: encryptionKey}
}

// SaveKey шифрует и сохраняет ключ провайдера
func (r *CredentialsRepository) SaveKey(provider, apiKey string) error {
	encrypted, err := crypto.EncryptWithKeyString(apiKey, r.encryptionKey)
	if err != nil {
		return fmt.Errorf("failed to encrypt key for %s: %w", provider, err)
	}

	query := `
		INSERT INTO provider_credentials (provider, encrypted_key, updated_at)
		VALUES ($1, $2, $3)
		ON CONFLICT (provider) DO UPDATE SET
			encrypted_key = EXCLUDED.encrypted_key,
			updated_at = EXCLUDED.updated_at`

	_, err = r.db.Exec(query, provider, encrypted, time.Now())
	return err
}

// GetKey читает и расшифровывает ключ провайдера
func (r *CredentialsRepository) GetKey(provider string) (string, error) {
	query := `SELECT encrypted_key FROM provider_credentials WHERE provider = $1`

	var encrypted string
	err := r.db.QueryRow(query, provider).Scan(&encrypted)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", ErrCredentialsNotFound
		}
		return "", err
	}

	apiKey, err := crypto.DecryptWithKeyString(encrypted, r.encryptionKey)
	if err != nil {
		return "", fmt.Errorf("failed to decrypt key for %s: %w", provider, err)
	}

	return apiKey, nil
}

// DeleteKey удаляет ключ провайдера
func (r *CredentialsRepository) DeleteKey(provider string) error {
	result, err := r.db.Exec(`DELETE FROM provider_credentials WHERE provider = $1`, provider)
	if err != nil {
		return err
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rowsAffected == 0 {
		return ErrCredentialsNotFound
	}

	return nil
}
