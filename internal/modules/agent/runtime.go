package agent

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	neturl "net/url"
	"strings"
	"time"
)

// StatusError reports a non-200 answer from the agent runtime.
type StatusError struct {
	Op         string
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	body := strings.TrimSpace(e.Body)
	if len(body) > 200 {
		body = body[:200] + "..."
	}
	if body == "" {
		return fmt.Sprintf("agent runtime %s failed with status %d", e.Op, e.StatusCode)
	}
	return fmt.Sprintf("agent runtime %s failed with status %d: %s", e.Op, e.StatusCode, body)
}

// SessionClient speaks the session create/run/delete protocol of an agent
// runtime serving a single app.
type SessionClient struct {
	baseURL string
	appName string
	http    *http.Client
}

// NewSessionClient builds a client for appName hosted at baseURL.
func NewSessionClient(baseURL, appName string, timeout time.Duration) *SessionClient {
	if timeout <= 0 {
		timeout = 5 * time.Minute
	}
	return &SessionClient{
		baseURL: strings.TrimRight(strings.TrimSpace(baseURL), "/"),
		appName: strings.TrimSpace(appName),
		http:    &http.Client{Timeout: timeout},
	}
}

// AppName returns the app this client drives.
func (c *SessionClient) AppName() string { return c.appName }

func (c *SessionClient) sessionURL(userID, sessionID string) string {
	return fmt.Sprintf("%s/apps/%s/users/%s/sessions/%s",
		c.baseURL,
		neturl.PathEscape(c.appName),
		neturl.PathEscape(userID),
		neturl.PathEscape(sessionID),
	)
}

// CreateSession opens a session for userID.
func (c *SessionClient) CreateSession(ctx context.Context, userID, sessionID string) error {
	body, _ := json.Marshal(map[string]any{
		"state": map[string]string{"preferred_language": "English"},
	})
	_, err := c.do(ctx, "create session", http.MethodPost, c.sessionURL(userID, sessionID), body)
	return err
}

type runRequest struct {
	AppName    string     `json:"app_name"`
	UserID     string     `json:"user_id"`
	SessionID  string     `json:"session_id"`
	NewMessage runMessage `json:"new_message"`
	Streaming  bool       `json:"streaming"`
}

type runMessage struct {
	Role  string    `json:"role"`
	Parts []runPart `json:"parts"`
}

type runPart struct {
	Text string `json:"text"`
}

// Run sends one user message into the session and returns every turn the
// runtime produced.
func (c *SessionClient) Run(ctx context.Context, userID, sessionID, message string) ([]Event, error) {
	body, err := json.Marshal(runRequest{
		AppName:   c.appName,
		UserID:    userID,
		SessionID: sessionID,
		NewMessage: runMessage{
			Role:  "user",
			Parts: []runPart{{Text: message}},
		},
	})
	if err != nil {
		return nil, err
	}

	respBody, err := c.do(ctx, "run", http.MethodPost, c.baseURL+"/run", body)
	if err != nil {
		return nil, err
	}

	var events []Event
	if err := json.Unmarshal(respBody, &events); err != nil {
		return nil, fmt.Errorf("decode run response: %w", err)
	}
	return events, nil
}

// DeleteSession closes the session.
func (c *SessionClient) DeleteSession(ctx context.Context, userID, sessionID string) error {
	_, err := c.do(ctx, "delete session", http.MethodDelete, c.sessionURL(userID, sessionID), nil)
	return err
}

func (c *SessionClient) do(ctx context.Context, op, method, url string, body []byte) ([]byte, error) {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, url, reader)
	if err != nil {
		return nil, err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("agent runtime %s: %w", op, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("agent runtime %s: read body: %w", op, err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, &StatusError{Op: op, StatusCode: resp.StatusCode, Body: string(respBody)}
	}
	return respBody, nil
}
