package middleware

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"

	"stockflow/internal/core/apperror"
	appctx "stockflow/internal/core/context"
	"stockflow/internal/infrastructure/storage/postgres"
	"stockflow/pkg/logger"
)

const (
	HeaderIdempotencyKey   = "X-Idempotency-Key"
	HeaderIdempotentReplay = "Idempotent-Replay"
)

const maxIdempotencyBodyBytes = 1 << 20 // 1 MiB

const (
	ctxIdempotencyKey   = "idempotency_key"
	ctxIdempotencyStore = "idempotency_store"
	ctxIdempotencyDone  = "idempotency_done"
)

// IdempotencyStore is the part of postgres.IdempotencyStore the middleware uses.
type IdempotencyStore interface {
	AcquireKey(ctx context.Context, key, operator, operation, requestHash string) (*postgres.IdempotencyReplay, error)
	CompleteKey(ctx context.Context, key string, statusCode int, contentType string, body []byte) error
	ReleaseKey(ctx context.Context, key string) error
}

// Idempotency middleware protects against duplicate submissions.
// Only POST requests carrying X-Idempotency-Key are guarded.
func Idempotency(store IdempotencyStore) gin.HandlerFunc {
	return func(c *gin.Context) {
		if c.Request.Method != http.MethodPost {
			c.Next()
			return
		}

		key := c.GetHeader(HeaderIdempotencyKey)
		if key == "" {
			c.Next()
			return
		}

		limited := io.LimitReader(c.Request.Body, maxIdempotencyBodyBytes+1)
		body, _ := io.ReadAll(limited)
		if len(body) > maxIdempotencyBodyBytes {
			appErr := apperror.NewValidation("request body too large for idempotency")
			appErr.HTTPStatus = http.StatusRequestEntityTooLarge
			_ = c.Error(appErr.WithDetail("max_bytes", maxIdempotencyBodyBytes))
			c.Abort()
			return
		}
		c.Request.Body = io.NopCloser(bytes.NewReader(body))
		hash := sha256.Sum256(body)
		requestHash := hex.EncodeToString(hash[:])

		operation := c.Request.Method + " " + c.FullPath()
		operator := appctx.GetOperatorName(c.Request.Context())

		replay, err := store.AcquireKey(c.Request.Context(), key, operator, operation, requestHash)
		if err != nil {
			if appErr, ok := apperror.AsAppError(err); ok {
				_ = c.Error(appErr)
				c.Abort()
				return
			}
			_ = c.Error(apperror.NewInternal(err).WithDetail("component", "idempotency"))
			c.Abort()
			return
		}

		if replay != nil {
			c.Header(HeaderIdempotentReplay, "true")
			c.Data(replay.StatusCode, replay.ContentType, replay.Body)
			c.Abort()
			return
		}

		c.Set(ctxIdempotencyKey, key)
		c.Set(ctxIdempotencyStore, store)

		// A panicking handler never produced a response to replay.
		defer func() {
			if r := recover(); r != nil {
				if !c.GetBool(ctxIdempotencyDone) {
					if err := store.ReleaseKey(context.WithoutCancel(c.Request.Context()), key); err != nil {
						logger.Warn(c.Request.Context(), "idempotency release failed", "key", key, "error", err)
					}
				}
				panic(r)
			}
		}()

		c.Next()
	}
}

// CompleteIdempotency stores the response about to be sent for the key the
// request claimed, if any. Replays carry the same status and body.
func CompleteIdempotency(c *gin.Context, statusCode int, response any) {
	key := c.GetString(ctxIdempotencyKey)
	if key == "" || c.GetBool(ctxIdempotencyDone) {
		return
	}
	v, ok := c.Get(ctxIdempotencyStore)
	if !ok {
		return
	}
	store := v.(IdempotencyStore)
	c.Set(ctxIdempotencyDone, true)

	body, err := json.Marshal(response)
	if err != nil {
		logger.Warn(c.Request.Context(), "idempotency response not encodable", "key", key, "error", err)
		return
	}
	if err := store.CompleteKey(context.WithoutCancel(c.Request.Context()), key, statusCode, "application/json; charset=utf-8", body); err != nil {
		logger.Warn(c.Request.Context(), "idempotency completion failed", "key", key, "error", err)
	}
}
