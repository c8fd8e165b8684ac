package middleware

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	idempotencyLock = "PROCESSING"
	lockTTL         = 10 * time.Second
	resultTTL       = 24 * time.Hour
)

type storedResponse struct {
	Status int             `json:"status"`
	Body   json.RawMessage `json:"body"`
}

// Idempotency replays the stored response for a repeated Idempotency-Key.
// Keys are scoped to the caller. Without Redis, or while Redis fails,
// requests pass through.
func Idempotency(redisClient *redis.Client) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			// Only apply to state-changing methods
			if redisClient == nil || (r.Method != http.MethodPost && r.Method != http.MethodPut && r.Method != http.MethodPatch) {
				next.ServeHTTP(w, r)
				return
			}

			key := r.Header.Get("Idempotency-Key")
			if key == "" {
				next.ServeHTTP(w, r)
				return
			}

			idemKey := fmt.Sprintf("idempotency:%s:%s", UserID(r.Context()), key)
			ctx := r.Context()

			val, err := redisClient.Get(ctx, idemKey).Result()
			switch {
			case err == nil && val == idempotencyLock:
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(http.StatusConflict)
				w.Write([]byte(`{"error": "concurrent request"}`))
				return
			case err == nil:
				var stored storedResponse
				if jerr := json.Unmarshal([]byte(val), &stored); jerr == nil {
					w.Header().Set("Content-Type", "application/json")
					w.Header().Set("X-Idempotency-Hit", "true")
					w.WriteHeader(stored.Status)
					w.Write(stored.Body)
					return
				}
			case !errors.Is(err, redis.Nil):
				slog.Warn("idempotency store unavailable", "error", err)
				next.ServeHTTP(w, r)
				return
			}

			acquired, err := redisClient.SetNX(ctx, idemKey, idempotencyLock, lockTTL).Result()
			if err != nil {
				next.ServeHTTP(w, r)
				return
			}
			if !acquired {
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(http.StatusConflict)
				w.Write([]byte(`{"error": "concurrent request"}`))
				return
			}

			rec := &recorder{ResponseWriter: w, status: http.StatusOK}
			next.ServeHTTP(rec, r)

			// server errors may be retried with the same key
			if rec.status >= http.StatusInternalServerError || !json.Valid(rec.body.Bytes()) {
				redisClient.Del(ctx, idemKey)
				return
			}
			data, err := json.Marshal(storedResponse{Status: rec.status, Body: rec.body.Bytes()})
			if err != nil {
				redisClient.Del(ctx, idemKey)
				return
			}
			redisClient.Set(ctx, idemKey, data, resultTTL)
		})
	}
}

type recorder struct {
	http.ResponseWriter
	status int
	body   bytes.Buffer
}

func (r *recorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

func (r *recorder) Write(b []byte) (int, error) {
	r.body.Write(b)
	return r.ResponseWriter.Write(b)
}
