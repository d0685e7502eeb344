package oracle

import (
	"bytes"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/samber/do/v2"
)

// Oracle accepts a randomness request and hands back the coordinator's
// correlation key. The response arrives later through the fulfillment
// callback, exactly once per accepted request, or never.
type Oracle interface {
	RequestRandomness(req Request) (string, error)
}

// SignFulfillment computes the callback signature for a fulfillment.
func SignFulfillment(key string, requestID string, words []uint64) string {
	message := requestID
	for _, word := range words {
		message += "|" + strconv.FormatUint(word, 10)
	}

	h := hmac.New(sha256.New, []byte(key))
	h.Write([]byte(message))

	return hex.EncodeToString(h.Sum(nil))
}

// VerifyFulfillment checks a callback signature in constant time.
func VerifyFulfillment(key string, f Fulfillment) bool {
	expected := SignFulfillment(key, f.RequestID, f.RandomWords)

	return hmac.Equal([]byte(expected), []byte(f.Signature))
}

// HTTPCoordinator submits randomness requests to an external coordinator
// over its REST API.
type HTTPCoordinator struct {
	BaseURL string
	Client  *http.Client
}

func NewHTTPCoordinator(i do.Injector) (Oracle, error) {
	baseURL := do.MustInvokeNamed[string](i, "oracle-url")

	if baseURL == "" {
		return nil, errors.New("oracle coordinator URL is required")
	}

	return &HTTPCoordinator{
		BaseURL: baseURL,
		Client:  &http.Client{Timeout: 10 * time.Second}, //nolint:mnd
	}, nil
}

type requestResponse struct {
	RequestID string `json:"request_id"`
}

func (c *HTTPCoordinator) RequestRandomness(req Request) (string, error) {
	payload, err := json.Marshal(req)
	if err != nil {
		return "", fmt.Errorf("failed to marshal randomness request: %w", err)
	}

	endpoint := c.BaseURL + "/api/requests"

	resp, err := c.Client.Post(endpoint, "application/json", bytes.NewReader(payload))
	if err != nil {
		return "", fmt.Errorf("failed to submit randomness request: %w", err)
	}

	defer func() {
		_ = resp.Body.Close()
	}()

	if resp.StatusCode >= http.StatusBadRequest {
		return "", fmt.Errorf("oracle coordinator returned status %d", resp.StatusCode)
	}

	var result requestResponse

	err = json.NewDecoder(resp.Body).Decode(&result)
	if err != nil {
		return "", fmt.Errorf("failed to decode randomness response: %w", err)
	}

	if result.RequestID == "" {
		return "", errors.New("oracle coordinator returned an empty request id")
	}

	return result.RequestID, nil
}

// Stub is an in-process oracle used by tests and local runs. It only accepts
// requests; fulfillment is the caller's job.
type Stub struct {
	mu       sync.Mutex
	requests []Request

	// RequestErr, when set, makes every request fail with that error.
	RequestErr error
}

func NewStub() *Stub {
	return &Stub{}
}

func (s *Stub) RequestRandomness(req Request) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.RequestErr != nil {
		return "", s.RequestErr
	}

	id, err := uuid.NewV7()
	if err != nil {
		return "", fmt.Errorf("failed to generate request id: %w", err)
	}

	s.requests = append(s.requests, req)

	return id.String(), nil
}

func (s *Stub) Requests() []Request {
	s.mu.Lock()
	defer s.mu.Unlock()

	return append([]Request(nil), s.requests...)
}
