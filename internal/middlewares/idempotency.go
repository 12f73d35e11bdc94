package middlewares

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/sbilibin2017/gw-wallet-transfer/internal/logger"
)

// cachedResponse is the stored outcome of an idempotent request.
type cachedResponse struct {
	RequestHash string `json:"request_hash"`
	StatusCode  int    `json:"status_code"`
	Body        []byte `json:"body"`
	ContentType string `json:"content_type"`
}

// IdempotencyMiddleware caches responses by the Idempotency-Key header so
// client retries of a non-idempotent endpoint (deposit) return the first
// outcome instead of moving money again. Requests without the header pass
// through. Reusing a key with a different request body is rejected.
func IdempotencyMiddleware(rdb *redis.Client, ttl time.Duration) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := r.Header.Get("Idempotency-Key")
			if key == "" {
				next.ServeHTTP(w, r)
				return
			}

			ctx := r.Context()

			body, err := io.ReadAll(r.Body)
			if err != nil {
				w.WriteHeader(http.StatusBadRequest)
				return
			}
			r.Body = io.NopCloser(bytes.NewReader(body))

			hash := sha256.Sum256(body)
			requestHash := hex.EncodeToString(hash[:])
			cacheKey := "idempotency:" + key

			data, err := rdb.Get(ctx, cacheKey).Bytes()
			if err != nil && !errors.Is(err, redis.Nil) {
				logger.Log.Errorw("idempotency cache read failed", "key", key, "error", err)
			}
			if err == nil {
				var cached cachedResponse
				if err := json.Unmarshal(data, &cached); err == nil {
					if cached.RequestHash != requestHash {
						w.Header().Set("Content-Type", "application/json")
						w.WriteHeader(http.StatusConflict)
						json.NewEncoder(w).Encode(map[string]string{
							"error": "Idempotency key reused with a different request",
						})
						return
					}
					if cached.ContentType != "" {
						w.Header().Set("Content-Type", cached.ContentType)
					}
					w.WriteHeader(cached.StatusCode)
					w.Write(cached.Body)
					return
				}
			}

			rec := &recordingWriter{ResponseWriter: w, statusCode: http.StatusOK}
			next.ServeHTTP(rec, r)

			// Only successful outcomes are worth replaying; a retry of a
			// failed request should run again.
			if rec.statusCode >= http.StatusInternalServerError {
				return
			}

			cached := cachedResponse{
				RequestHash: requestHash,
				StatusCode:  rec.statusCode,
				Body:        rec.body.Bytes(),
				ContentType: rec.Header().Get("Content-Type"),
			}
			payload, err := json.Marshal(cached)
			if err != nil {
				logger.Log.Errorw("idempotency cache marshal failed", "key", key, "error", err)
				return
			}
			if err := rdb.Set(ctx, cacheKey, payload, ttl).Err(); err != nil {
				logger.Log.Errorw("idempotency cache write failed", "key", key, "error", err)
			}
		})
	}
}

type recordingWriter struct {
	http.ResponseWriter
	statusCode int
	body       bytes.Buffer
}

func (rw *recordingWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

func (rw *recordingWriter) Write(b []byte) (int, error) {
	rw.body.Write(b)
	return rw.ResponseWriter.Write(b)
}
