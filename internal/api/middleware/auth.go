package middleware

import (
	"net/http"
	"strings"

	"cryptodesk/pkg/crypto"
	"cryptodesk/pkg/utils"
)

// Auth - middleware аутентификации операторского API.
//
// Ожидает заголовок Authorization: Bearer <token>.
// Токен сверяется с bcrypt-хэшем из конфигурации (API_TOKEN_HASH),
// сам токен нигде не хранится и не логируется.
//
// Webhook'и провайдеров этим middleware НЕ защищаются - у них своя
// проверка HMAC подписи тела запроса в handler'е.
func Auth(apiTokenHash string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token, ok := bearerToken(r)
			if !ok {
				unauthorized(w, "missing bearer token")
				return
			}

			if err := crypto.VerifyToken(token, apiTokenHash); err != nil {
				// Не различаем "неверный токен" и "битый хэш" в ответе,
				// детали только в лог
				utils.L().Warn("api auth failed",
					utils.String("remote", r.RemoteAddr),
					utils.String("path", r.URL.Path))
				unauthorized(w, "invalid token")
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// bearerToken извлекает токен из Authorization: Bearer <token>
func bearerToken(r *http.Request) (string, bool) {
	header := r.Header.Get("Authorization")
	if header == "" {
		return "", false
	}
	const prefix = "Bearer "
	if !strings.HasPrefix(header, prefix) {
		return "", false
	}
	token := strings.TrimSpace(header[len(prefix):])
	if token == "" {
		return "", false
	}
	return token, true
}

func unauthorized(w http.ResponseWriter, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("WWW-Authenticate", `Bearer realm="cryptodesk"`)
	w.WriteHeader(http.StatusUnauthorized)
	w.Write([]byte(`{"error":"` + message + `"}`))
}
