package middleware

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/wsic/generator/internal/pkg/response"
	"go.uber.org/zap"
)

const (
	// HeaderMessageID is set by the scheduler and stays the same across
	// redeliveries of one message.
	HeaderMessageID   = "Upstash-Message-Id"
	idempotenceHeader = "x-idempotence"
	// HeaderReplayed marks a response served from the replay cache.
	HeaderReplayed = "X-Idempotent-Replay"

	idempotenceKeyPrefix = "wsic:idempotence:"
	pendingMarker        = "pending"
	// DefaultReplayTTL is used when the configured TTL is not positive.
	DefaultReplayTTL = 10 * time.Minute
)

// ReplayStore is the key-value subset the replay cache needs.
type ReplayStore interface {
	Get(ctx context.Context, key string) (string, error)
	SetNX(ctx context.Context, key string, value interface{}, ttl time.Duration) (bool, error)
	Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error
	Del(ctx context.Context, keys ...string) error
}

type storedResponse struct {
	Status      int    `json:"status"`
	ContentType string `json:"content_type"`
	Body        []byte `json:"body"`
}

type recordingWriter struct {
	gin.ResponseWriter
	body bytes.Buffer
}

func (w *recordingWriter) Write(b []byte) (int, error) {
	w.body.Write(b)
	return w.ResponseWriter.Write(b)
}

func (w *recordingWriter) WriteString(s string) (int, error) {
	w.body.WriteString(s)
	return w.ResponseWriter.WriteString(s)
}

// Idempotence replays the stored 2xx response of a redelivered message
// instead of running the handler again. Requests without a message id pass
// through, and so does every request while the store is unreachable.
func Idempotence(store ReplayStore, ttl time.Duration, log *zap.Logger) gin.HandlerFunc {
	if ttl <= 0 {
		ttl = DefaultReplayTTL
	}
	if log == nil {
		log = zap.NewNop()
	}
	return func(c *gin.Context) {
		if store == nil || c.Request.Method != http.MethodPost {
			c.Next()
			return
		}
		id := resolveMessageID(c)
		if id == "" {
			c.Next()
			return
		}

		key := replayKey(c.Request.URL.Path, id)
		ctx := c.Request.Context()

		val, err := store.Get(ctx, key)
		if err != nil {
			log.Warn("replay cache unavailable", zap.String("message_id", id), zap.Error(err))
			c.Next()
			return
		}
		if val != "" {
			serveStored(c, val, log)
			return
		}

		ok, err := store.SetNX(ctx, key, pendingMarker, ttl)
		if err != nil {
			log.Warn("replay cache unavailable", zap.String("message_id", id), zap.Error(err))
			c.Next()
			return
		}
		if !ok {
			response.Conflict(c, "an identical message is being processed")
			return
		}

		release := func() {
			if err := store.Del(context.WithoutCancel(ctx), key); err != nil {
				log.Warn("release replay key failed", zap.String("message_id", id), zap.Error(err))
			}
		}
		// A panicking handler unwinds past the code below; the pending
		// marker must not outlive it.
		handled := false
		defer func() {
			if !handled {
				release()
			}
		}()

		w := &recordingWriter{ResponseWriter: c.Writer}
		c.Writer = w
		c.Next()
		handled = true

		status := w.Status()
		if status < 200 || status >= 300 {
			release()
			return
		}
		raw, _ := json.Marshal(storedResponse{
			Status:      status,
			ContentType: w.Header().Get("Content-Type"),
			Body:        w.body.Bytes(),
		})
		if err := store.Set(context.WithoutCancel(ctx), key, string(raw), ttl); err != nil {
			log.Warn("store replay response failed", zap.String("message_id", id), zap.Error(err))
		}
	}
}

func serveStored(c *gin.Context, val string, log *zap.Logger) {
	if val == pendingMarker {
		response.Conflict(c, "an identical message is being processed")
		return
	}
	var stored storedResponse
	if err := json.Unmarshal([]byte(val), &stored); err != nil {
		log.Warn("discarding unreadable replay entry", zap.Error(err))
		c.Next()
		return
	}
	contentType := stored.ContentType
	if contentType == "" {
		contentType = "application/json; charset=utf-8"
	}
	c.Header(HeaderReplayed, "true")
	c.Data(stored.Status, contentType, stored.Body)
	c.Abort()
}

func resolveMessageID(c *gin.Context) string {
	if id := strings.TrimSpace(c.GetHeader(HeaderMessageID)); id != "" {
		return id
	}
	return strings.TrimSpace(c.GetHeader(idempotenceHeader))
}

func replayKey(path, id string) string {
	h := sha256.Sum256([]byte(strings.TrimRight(strings.ToLower(path), "/") + "|" + id))
	return idempotenceKeyPrefix + hex.EncodeToString(h[:])
}
