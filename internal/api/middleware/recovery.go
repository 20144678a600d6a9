package middleware

import (
	"net/http"
	"runtime/debug"

	"cryptodesk/pkg/utils"
)

// Recovery - middleware восстановления после паник в handler'ах.
// Паника одного запроса не должна ронять весь сервис.
// Значение паники наружу не отдаётся, только в лог со стеком.
func Recovery(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if rec := recover(); rec != nil {
				utils.L().Error("panic in http handler",
					utils.Any("panic", rec),
					utils.String("method", r.Method),
					utils.String("path", r.URL.Path),
					utils.String("stack", string(debug.Stack())))

				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(http.StatusInternalServerError)
				w.Write([]byte(`{"error":"internal server error"}`))
			}
		}()

		next.ServeHTTP(w, r)
	})
}
