package runner

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/jwebster45206/quest-engine/internal/handlers"
)

const (
	// PollInterval is how often to check the session for updates
	PollInterval = 50 * time.Millisecond
	// StepTimeout is max time to wait for a step's expectations to hold
	StepTimeout = 10 * time.Second
)

// ErrSessionNotFound is returned by GetSession on a 404
var ErrSessionNotFound = errors.New("session not found")

// send issues a request and decodes a JSON response into out when out is
// non-nil. Any status other than want is an error.
func send(ctx context.Context, client *http.Client, method, url string, body []byte, want int, out any) error {
	req, err := http.NewRequestWithContext(ctx, method, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to create %s request: %w", method, err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("failed to send %s %s: %w", method, url, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != want {
		data, _ := io.ReadAll(resp.Body)
		return &statusError{code: resp.StatusCode, body: string(data)}
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}

type statusError struct {
	code int
	body string
}

func (e *statusError) Error() string {
	return fmt.Sprintf("unexpected status %d: %s", e.code, e.body)
}

func sessionURL(baseURL string, sessionID uuid.UUID) string {
	return fmt.Sprintf("%s/v1/sessions/%s", baseURL, sessionID.String())
}

// PostEvent queues a gameplay event envelope and returns the request id
func PostEvent(ctx context.Context, client *http.Client, baseURL string, sessionID uuid.UUID, envelope []byte) (string, error) {
	var accepted handlers.AcceptedResponse
	if err := send(ctx, client, http.MethodPost, sessionURL(baseURL, sessionID)+"/events", envelope, http.StatusAccepted, &accepted); err != nil {
		return "", fmt.Errorf("post event: %w", err)
	}
	return accepted.RequestID, nil
}

// StartQuest queues a start_quest request and returns the request id
func StartQuest(ctx context.Context, client *http.Client, baseURL string, sessionID uuid.UUID, questID string) (string, error) {
	var accepted handlers.AcceptedResponse
	if err := send(ctx, client, http.MethodPost, sessionURL(baseURL, sessionID)+"/quests/"+questID, nil, http.StatusAccepted, &accepted); err != nil {
		return "", fmt.Errorf("start quest %s: %w", questID, err)
	}
	return accepted.RequestID, nil
}

// AbandonQuest queues an abandon_quest request and returns the request id
func AbandonQuest(ctx context.Context, client *http.Client, baseURL string, sessionID uuid.UUID, questID string) (string, error) {
	var accepted handlers.AcceptedResponse
	if err := send(ctx, client, http.MethodDelete, sessionURL(baseURL, sessionID)+"/quests/"+questID, nil, http.StatusAccepted, &accepted); err != nil {
		return "", fmt.Errorf("abandon quest %s: %w", questID, err)
	}
	return accepted.RequestID, nil
}

// GetSession retrieves the persisted session state
func GetSession(ctx context.Context, client *http.Client, baseURL string, sessionID uuid.UUID) (*handlers.SessionResponse, error) {
	var resp handlers.SessionResponse
	err := send(ctx, client, http.MethodGet, sessionURL(baseURL, sessionID), nil, http.StatusOK, &resp)
	var se *statusError
	if errors.As(err, &se) && se.code == http.StatusNotFound {
		return nil, ErrSessionNotFound
	}
	if err != nil {
		return nil, err
	}
	return &resp, nil
}

// DeleteSession removes the session's queue, snapshots and world state
func DeleteSession(ctx context.Context, client *http.Client, baseURL string, sessionID uuid.UUID) error {
	return send(ctx, client, http.MethodDelete, sessionURL(baseURL, sessionID), nil, http.StatusNoContent, nil)
}

// PollForExpectations polls the session until exp holds, returning the last
// mismatch on timeout
func PollForExpectations(ctx context.Context, client *http.Client, baseURL string, sessionID uuid.UUID, exp Expectations) error {
	timeout := time.After(StepTimeout)
	ticker := time.NewTicker(PollInterval)
	defer ticker.Stop()

	lastErr := errors.New("no poll completed")
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-timeout:
			return fmt.Errorf("timeout waiting for expectations (waited %v): %w", StepTimeout, lastErr)
		case <-ticker.C:
			session, err := GetSession(ctx, client, baseURL, sessionID)
			if errors.Is(err, ErrSessionNotFound) {
				session = &handlers.SessionResponse{}
			} else if err != nil {
				// Keep polling through transient errors
				lastErr = err
				continue
			}
			if lastErr = CheckExpectations(exp, session); lastErr == nil {
				return nil
			}
		}
	}
}
