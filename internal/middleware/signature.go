package middleware

import (
	"bytes"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/wsic/generator/internal/config"
	"github.com/wsic/generator/internal/pkg/response"
	"go.uber.org/zap"
)

const (
	// HeaderSignature carries the scheduler's signed JWT.
	HeaderSignature = "Upstash-Signature"
	signatureIssuer = "Upstash"
	signatureLeeway = time.Minute
)

var (
	ErrMissingSignature = errors.New("missing request signature")
	ErrBodyMismatch     = errors.New("signature does not match request body")
	ErrURLMismatch      = errors.New("signature does not match request url")
)

// Signature rejects requests whose Upstash-Signature header does not verify
// against the current or the next signing key. With no keys configured every
// request passes.
func Signature(cfg config.QStashConfig, log *zap.Logger) gin.HandlerFunc {
	var keys []string
	for _, k := range []string{cfg.CurrentSigningKey, cfg.NextSigningKey} {
		if k = strings.TrimSpace(k); k != "" {
			keys = append(keys, k)
		}
	}
	if log == nil {
		log = zap.NewNop()
	}
	if len(keys) == 0 {
		return func(c *gin.Context) { c.Next() }
	}
	baseURL := strings.TrimRight(cfg.BaseURL, "/")

	return func(c *gin.Context) {
		token := strings.TrimSpace(c.GetHeader(HeaderSignature))
		if token == "" {
			response.Unauthorized(c, ErrMissingSignature.Error())
			return
		}
		body, err := io.ReadAll(c.Request.Body)
		if err != nil {
			response.Unauthorized(c, "unreadable request body")
			return
		}
		c.Request.Body = io.NopCloser(bytes.NewReader(body))

		url := ""
		if baseURL != "" {
			url = baseURL + c.Request.URL.RequestURI()
		}

		var lastErr error
		for _, key := range keys {
			if lastErr = VerifySignature(token, key, body, url); lastErr == nil {
				c.Next()
				return
			}
		}
		log.Warn("signature verification failed",
			zap.String("path", c.Request.URL.Path),
			zap.Error(lastErr),
		)
		response.Unauthorized(c, "invalid request signature")
	}
}

// VerifySignature checks one signing key. url is compared with the subject
// claim only when non-empty.
func VerifySignature(token, key string, body []byte, url string) error {
	claims := jwt.MapClaims{}
	_, err := jwt.ParseWithClaims(token, claims, func(*jwt.Token) (interface{}, error) {
		return []byte(key), nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(signatureIssuer),
		jwt.WithLeeway(signatureLeeway),
	)
	if err != nil {
		return fmt.Errorf("parse signature: %w", err)
	}

	if url != "" {
		sub, _ := claims.GetSubject()
		if sub != url {
			return ErrURLMismatch
		}
	}

	claimed, _ := claims["body"].(string)
	if strings.TrimRight(claimed, "=") != BodyHash(body) {
		return ErrBodyMismatch
	}
	return nil
}

// BodyHash is the unpadded base64url SHA-256 of body.
func BodyHash(body []byte) string {
	sum := sha256.Sum256(body)
	return base64.RawURLEncoding.EncodeToString(sum[:])
}
