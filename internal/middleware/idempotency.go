package middleware

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"reforest-portal/portal-backend/pkg/apperrors"
	"reforest-portal/portal-backend/pkg/cache"
)

const (
	IdempotencyHeader     = "Idempotency-Key"
	DefaultIdempotencyTTL = 24 * time.Hour
	maxIdempotencyKeyLen  = 128

	// idempotencyLease bounds how long a crashed request keeps its key reserved.
	idempotencyLease = time.Minute
)

type idempotencyRecord struct {
	Pending     bool   `json:"pending,omitempty"`
	Status      int    `json:"status,omitempty"`
	Body        string `json:"body,omitempty"`
	ContentType string `json:"content_type,omitempty"`
	RequestHash string `json:"request_hash"`
}

// Idempotency replays the stored response when a write is repeated with the
// same Idempotency-Key and body. The key is reserved before the handler runs,
// so a retry that arrives while the first attempt is still running gets a 409
// instead of a second execution. The same key with a different body is also a
// conflict. Requests without the header pass through untouched. A 5xx response
// releases the key so the client can retry.
func Idempotency(store cache.LockingStore, ttl time.Duration, logger *zap.Logger) gin.HandlerFunc {
	if ttl <= 0 {
		ttl = DefaultIdempotencyTTL
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return func(c *gin.Context) {
		key := strings.TrimSpace(c.GetHeader(IdempotencyHeader))
		if key == "" || store == nil {
			c.Next()
			return
		}
		if len(key) > maxIdempotencyKeyLen {
			apperrors.Respond(c, logger, apperrors.New(apperrors.KindInvalidArgument, "Idempotency-Key is too long"))
			return
		}

		var body []byte
		if c.Request.Body != nil {
			var err error
			body, err = io.ReadAll(c.Request.Body)
			if err != nil {
				apperrors.Respond(c, logger, apperrors.Wrap(apperrors.KindInvalidArgument, err, "failed to read request body"))
				return
			}
		}
		c.Request.Body = io.NopCloser(bytes.NewReader(body))

		requestHash := hashBody(body)
		storeKey := "idempotency:" + scope(c) + ":" + key

		ctx := c.Request.Context()
		pending, err := json.Marshal(idempotencyRecord{Pending: true, RequestHash: requestHash})
		if err != nil {
			apperrors.Respond(c, logger, apperrors.Wrap(apperrors.KindInternal, err, "failed to encode idempotency record"))
			return
		}
		reserved, err := store.SetNX(ctx, storeKey, pending, idempotencyLease)
		if err != nil {
			apperrors.Respond(c, logger, apperrors.Wrap(apperrors.KindInternal, err, "failed to reserve idempotency key"))
			return
		}
		if !reserved {
			respondExisting(c, logger, store, storeKey, requestHash)
			return
		}

		capture := &responseCapture{ResponseWriter: c.Writer}
		c.Writer = capture
		c.Next()

		// The outcome is recorded even if the client has gone away.
		ctx = context.WithoutCancel(ctx)
		status := capture.Status()
		if status >= http.StatusInternalServerError {
			if err := store.Delete(ctx, storeKey); err != nil {
				logger.Warn("Failed to release idempotency key",
					zap.String("path", c.FullPath()),
					zap.Error(err))
			}
			return
		}

		payload, err := json.Marshal(idempotencyRecord{
			Status:      status,
			Body:        base64.StdEncoding.EncodeToString(capture.body.Bytes()),
			ContentType: capture.Header().Get("Content-Type"),
			RequestHash: requestHash,
		})
		if err != nil {
			logger.Error("Failed to encode idempotency record", zap.Error(err))
			return
		}
		if err := store.Set(ctx, storeKey, payload, ttl); err != nil {
			logger.Warn("Failed to persist idempotency record",
				zap.String("path", c.FullPath()),
				zap.Error(err))
		}
	}
}

// respondExisting answers a request whose key is already reserved or completed.
func respondExisting(c *gin.Context, logger *zap.Logger, store cache.Store, storeKey, requestHash string) {
	stored, found, err := store.Get(c.Request.Context(), storeKey)
	if err != nil {
		apperrors.Respond(c, logger, apperrors.Wrap(apperrors.KindInternal, err, "failed to check idempotency key"))
		return
	}
	if !found {
		// Released by a failed attempt between our reservation and this read.
		apperrors.Respond(c, logger, apperrors.New(apperrors.KindConflict,
			"request with this Idempotency-Key is still in progress"))
		return
	}

	var record idempotencyRecord
	if err := json.Unmarshal(stored, &record); err != nil {
		apperrors.Respond(c, logger, apperrors.Wrap(apperrors.KindInternal, err, "failed to decode idempotency record"))
		return
	}
	switch {
	case record.RequestHash != requestHash:
		apperrors.Respond(c, logger, apperrors.New(apperrors.KindConflict,
			"Idempotency-Key reused with a different request body"))
	case record.Pending:
		apperrors.Respond(c, logger, apperrors.New(apperrors.KindConflict,
			"request with this Idempotency-Key is still in progress"))
	default:
		replay(c, record)
	}
}

// scope keeps keys from different callers and routes apart.
func scope(c *gin.Context) string {
	return strings.Join([]string{UserID(c), c.Request.Method, c.Request.URL.Path}, "|")
}

func replay(c *gin.Context, record idempotencyRecord) {
	data, err := base64.StdEncoding.DecodeString(record.Body)
	if err != nil {
		data = nil
	}
	contentType := record.ContentType
	if contentType == "" {
		contentType = "application/json; charset=utf-8"
	}
	c.Header("Idempotent-Replayed", "true")
	c.Data(record.Status, contentType, data)
	c.Abort()
}

func hashBody(payload []byte) string {
	sum := sha256.Sum256(payload)
	return base64.StdEncoding.EncodeToString(sum[:])
}

type responseCapture struct {
	gin.ResponseWriter
	body bytes.Buffer
}

func (r *responseCapture) Write(b []byte) (int, error) {
	r.body.Write(b)
	return r.ResponseWriter.Write(b)
}

func (r *responseCapture) WriteString(s string) (int, error) {
	r.body.WriteString(s)
	return r.ResponseWriter.WriteString(s)
}
