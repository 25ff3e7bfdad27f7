package middleware

import (
	"bytes"
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/wsic/generator/internal/config"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func init() { gin.SetMode(gin.TestMode) }

type memStore struct {
	mu     sync.Mutex
	values map[string]string
	err    error
}

func newMemStore() *memStore { return &memStore{values: map[string]string{}} }

func (m *memStore) Get(_ context.Context, key string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.values[key], m.err
}

func (m *memStore) SetNX(_ context.Context, key string, value interface{}, _ time.Duration) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return false, m.err
	}
	if _, ok := m.values[key]; ok {
		return false, nil
	}
	m.values[key] = value.(string)
	return true, nil
}

func (m *memStore) Set(_ context.Context, key string, value interface{}, _ time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.values[key] = value.(string)
	return m.err
}

func (m *memStore) Del(_ context.Context, keys ...string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, k := range keys {
		delete(m.values, k)
	}
	return m.err
}

func replayRouter(store ReplayStore, status *int, calls *int) *gin.Engine {
	r := gin.New()
	r.Use(Idempotence(store, time.Minute, nil))
	r.POST("/generate-topic", func(c *gin.Context) {
		*calls++
		c.JSON(*status, gin.H{"call": *calls})
	})
	return r
}

func postWithID(r http.Handler, id string) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/generate-topic", bytes.NewBufferString(`{}`))
	if id != "" {
		req.Header.Set(HeaderMessageID, id)
	}
	r.ServeHTTP(w, req)
	return w
}

func TestIdempotenceReplaysSuccess(t *testing.T) {
	store := newMemStore()
	status, calls := http.StatusOK, 0
	r := replayRouter(store, &status, &calls)

	first := postWithID(r, "msg_1")
	second := postWithID(r, "msg_1")

	assert.Equal(t, 1, calls)
	assert.Equal(t, http.StatusOK, second.Code)
	assert.JSONEq(t, first.Body.String(), second.Body.String())
	assert.Equal(t, "true", second.Header().Get(HeaderReplayed))
	assert.Contains(t, second.Header().Get("Content-Type"), "application/json")

	postWithID(r, "msg_2")
	assert.Equal(t, 2, calls, "a different message runs the handler")
}

func TestIdempotenceReleasesFailures(t *testing.T) {
	store := newMemStore()
	status, calls := http.StatusInternalServerError, 0
	r := replayRouter(store, &status, &calls)

	postWithID(r, "msg_1")
	assert.Empty(t, store.values)

	status = http.StatusOK
	w := postWithID(r, "msg_1")
	assert.Equal(t, 2, calls)
	assert.Empty(t, w.Header().Get(HeaderReplayed))
}

func TestIdempotenceReleasesAfterHandlerPanic(t *testing.T) {
	store := newMemStore()
	fail, calls := true, 0
	r := gin.New()
	r.Use(gin.Recovery(), Idempotence(store, time.Minute, nil))
	r.POST("/generate-topic", func(c *gin.Context) {
		calls++
		if fail {
			panic("insert exploded")
		}
		c.JSON(http.StatusOK, gin.H{"call": calls})
	})

	first := postWithID(r, "msg_panic")
	assert.Equal(t, http.StatusInternalServerError, first.Code)
	assert.Empty(t, store.values, "pending marker must be released")

	fail = false
	second := postWithID(r, "msg_panic")
	assert.Equal(t, http.StatusOK, second.Code)
	assert.Equal(t, 2, calls)
}

func TestIdempotenceConflictWhileInFlight(t *testing.T) {
	store := newMemStore()
	store.values[replayKey("/generate-topic", "msg_1")] = pendingMarker
	status, calls := http.StatusOK, 0
	r := replayRouter(store, &status, &calls)

	w := postWithID(r, "msg_1")

	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Zero(t, calls)
}

func TestIdempotencePassesThrough(t *testing.T) {
	t.Run("no message id", func(t *testing.T) {
		store := newMemStore()
		status, calls := http.StatusOK, 0
		r := replayRouter(store, &status, &calls)
		postWithID(r, "")
		postWithID(r, "")
		assert.Equal(t, 2, calls)
		assert.Empty(t, store.values)
	})
	t.Run("store unavailable", func(t *testing.T) {
		store := newMemStore()
		store.err = errors.New("connection refused")
		status, calls := http.StatusOK, 0
		r := replayRouter(store, &status, &calls)
		w := postWithID(r, "msg_1")
		assert.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, 1, calls)
	})
	t.Run("nil store", func(t *testing.T) {
		status, calls := http.StatusOK, 0
		r := replayRouter(nil, &status, &calls)
		postWithID(r, "msg_1")
		assert.Equal(t, 1, calls)
	})
}

func TestIdempotenceFallsBackToIdempotenceHeader(t *testing.T) {
	store := newMemStore()
	status, calls := http.StatusOK, 0
	r := replayRouter(store, &status, &calls)

	for i := 0; i < 2; i++ {
		req := httptest.NewRequest(http.MethodPost, "/generate-topic", nil)
		req.Header.Set("x-idempotence", "abc")
		r.ServeHTTP(httptest.NewRecorder(), req)
	}
	assert.Equal(t, 1, calls)
}

const (
	currentKey = "sig_current"
	nextKey    = "sig_next"
)

func sign(t *testing.T, key string, body []byte, sub string, mutate func(jwt.MapClaims)) string {
	t.Helper()
	now := time.Now()
	claims := jwt.MapClaims{
		"iss":  "Upstash",
		"sub":  sub,
		"iat":  now.Unix(),
		"nbf":  now.Unix(),
		"exp":  now.Add(5 * time.Minute).Unix(),
		"jti":  "jwt_1",
		"body": BodyHash(body) + "=",
	}
	if mutate != nil {
		mutate(claims)
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(key))
	require.NoError(t, err)
	return token
}

func signatureRouter(cfg config.QStashConfig, seen *string) *gin.Engine {
	r := gin.New()
	r.Use(Signature(cfg, nil))
	r.POST("/check-topic", func(c *gin.Context) {
		raw, _ := c.GetRawData()
		*seen = string(raw)
		c.Status(http.StatusOK)
	})
	return r
}

func TestSignature(t *testing.T) {
	body := []byte(`{"topic":"Go","user_id":"u1"}`)
	cfg := config.QStashConfig{CurrentSigningKey: currentKey, NextSigningKey: nextKey, BaseURL: "https://gen.example.com/"}
	url := "https://gen.example.com/check-topic"

	tests := []struct {
		name   string
		token  func(t *testing.T) string
		status int
	}{
		{"current key", func(t *testing.T) string { return sign(t, currentKey, body, url, nil) }, http.StatusOK},
		{"next key", func(t *testing.T) string { return sign(t, nextKey, body, url, nil) }, http.StatusOK},
		{"missing", func(*testing.T) string { return "" }, http.StatusUnauthorized},
		{"unknown key", func(t *testing.T) string { return sign(t, "other", body, url, nil) }, http.StatusUnauthorized},
		{"tampered body", func(t *testing.T) string { return sign(t, currentKey, []byte(`{}`), url, nil) }, http.StatusUnauthorized},
		{"other url", func(t *testing.T) string { return sign(t, currentKey, body, "https://evil.example.com/check-topic", nil) }, http.StatusUnauthorized},
		{"wrong issuer", func(t *testing.T) string {
			return sign(t, currentKey, body, url, func(c jwt.MapClaims) { c["iss"] = "someone" })
		}, http.StatusUnauthorized},
		{"expired", func(t *testing.T) string {
			return sign(t, currentKey, body, url, func(c jwt.MapClaims) { c["exp"] = time.Now().Add(-time.Hour).Unix() })
		}, http.StatusUnauthorized},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var seen string
			r := signatureRouter(cfg, &seen)
			req := httptest.NewRequest(http.MethodPost, "/check-topic", bytes.NewReader(body))
			if token := tt.token(t); token != "" {
				req.Header.Set(HeaderSignature, token)
			}
			w := httptest.NewRecorder()
			r.ServeHTTP(w, req)

			assert.Equal(t, tt.status, w.Code)
			if tt.status == http.StatusOK {
				assert.Equal(t, string(body), seen, "body is restored for the handler")
			}
		})
	}
}

func TestSignatureDisabledWithoutKeys(t *testing.T) {
	var seen string
	r := signatureRouter(config.QStashConfig{}, &seen)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/check-topic", bytes.NewBufferString("x")))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "x", seen)
}

func TestVerifySignatureSkipsURLWhenUnset(t *testing.T) {
	body := []byte("payload")
	token := sign(t, currentKey, body, "https://anywhere.example.com/x", nil)
	assert.NoError(t, VerifySignature(token, currentKey, body, ""))
	assert.ErrorIs(t, VerifySignature(token, currentKey, []byte("other"), ""), ErrBodyMismatch)
}

func TestLoggerLevels(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	r := gin.New()
	r.Use(Logger(zap.New(core)))
	r.GET("/status/:code", func(c *gin.Context) {
		switch c.Param("code") {
		case "500":
			c.Status(http.StatusInternalServerError)
		case "489":
			c.Status(489)
		default:
			c.Status(http.StatusOK)
		}
	})

	for _, code := range []string{"200", "489", "500"} {
		req := httptest.NewRequest(http.MethodGet, "/status/"+code, nil)
		req.Header.Set(HeaderMessageID, "msg_"+code)
		r.ServeHTTP(httptest.NewRecorder(), req)
	}

	entries := logs.All()
	require.Len(t, entries, 3)
	assert.Equal(t, zapcore.InfoLevel, entries[0].Level)
	assert.Equal(t, zapcore.WarnLevel, entries[1].Level)
	assert.Equal(t, zapcore.ErrorLevel, entries[2].Level)
	assert.Equal(t, "msg_489", entries[1].ContextMap()["message_id"])
	assert.EqualValues(t, 500, entries[2].ContextMap()["status"])
}
