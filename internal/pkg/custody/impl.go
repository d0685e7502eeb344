package custody

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/samber/do/v2"
)

var (
	ErrUnknownAsset       = errors.New("asset is not known to the custody registry")
	ErrTransferUnapproved = errors.New("custody registry refused the transfer")
)

// Custody abstracts asset ownership lookup and movement so the escrow logic
// never talks to an asset registry directly.
type Custody interface {
	OwnerOf(ref Ref) (string, error)
	Transfer(ref Ref, from string, to string) error
}

// HTTPCustody talks to an external custody registry over its REST API.
type HTTPCustody struct {
	BaseURL string
	Client  *http.Client
}

func NewHTTPCustody(i do.Injector) (Custody, error) {
	baseURL := do.MustInvokeNamed[string](i, "custody-url")

	if baseURL == "" {
		return nil, errors.New("custody registry URL is required")
	}

	return &HTTPCustody{
		BaseURL: baseURL,
		Client:  &http.Client{Timeout: 10 * time.Second}, //nolint:mnd
	}, nil
}

type ownerResponse struct {
	Owner string `json:"owner"`
}

type transferRequest struct {
	Collection string `json:"collection"`
	Token      string `json:"token"`
	From       string `json:"from"`
	To         string `json:"to"`
}

func (c *HTTPCustody) OwnerOf(ref Ref) (string, error) {
	endpoint := fmt.Sprintf("%s/api/assets/%s/%s/owner",
		c.BaseURL, url.PathEscape(ref.Collection), url.PathEscape(ref.Token))

	resp, err := c.Client.Get(endpoint)
	if err != nil {
		return "", fmt.Errorf("failed to query asset owner: %w", err)
	}

	defer func() {
		_ = resp.Body.Close()
	}()

	if resp.StatusCode == http.StatusNotFound {
		return "", ErrUnknownAsset
	}

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("custody registry returned status %d", resp.StatusCode)
	}

	var owner ownerResponse

	err = json.NewDecoder(resp.Body).Decode(&owner)
	if err != nil {
		return "", fmt.Errorf("failed to decode owner response: %w", err)
	}

	return owner.Owner, nil
}

func (c *HTTPCustody) Transfer(ref Ref, from string, to string) error {
	payload, err := json.Marshal(transferRequest{
		Collection: ref.Collection,
		Token:      ref.Token,
		From:       from,
		To:         to,
	})
	if err != nil {
		return fmt.Errorf("failed to marshal transfer request: %w", err)
	}

	endpoint := c.BaseURL + "/api/transfers"

	resp, err := c.Client.Post(endpoint, "application/json", bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("failed to submit transfer: %w", err)
	}

	defer func() {
		_ = resp.Body.Close()
	}()

	if resp.StatusCode >= http.StatusBadRequest {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512)) //nolint:mnd

		return fmt.Errorf("%w: status %d: %s", ErrTransferUnapproved, resp.StatusCode, string(body))
	}

	return nil
}
