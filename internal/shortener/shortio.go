package shortener

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

const linksEndpoint = "https://api.short.io/links"

// ShortIO creates short links on a short.io custom domain.
type ShortIO struct {
	apiKey string
	domain string
	client *http.Client
}

func NewShortIO(apiKey, domain string) *ShortIO {
	return &ShortIO{
		apiKey: apiKey,
		domain: domain,
		client: &http.Client{Timeout: 10 * time.Second},
	}
}

// Shorten registers longURL and returns the short link.
func (s *ShortIO) Shorten(ctx context.Context, longURL string) (string, error) {
	payload, err := json.Marshal(map[string]string{
		"originalURL": longURL,
		"domain":      s.domain,
	})
	if err != nil {
		return "", err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, linksEndpoint, bytes.NewReader(payload))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", s.apiKey)

	resp, err := s.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("short.io request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return "", fmt.Errorf("read short.io response: %w", err)
	}
	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		return "", fmt.Errorf("short.io returned status %d: %s", resp.StatusCode, body)
	}

	var parsed struct {
		ShortURL       string `json:"shortURL"`
		SecureShortURL string `json:"secureShortURL"`
	}
	if err := json.Unmarshal(body, &parsed); err != nil {
		return "", fmt.Errorf("parse short.io response: %w", err)
	}
	if parsed.SecureShortURL != "" {
		return parsed.SecureShortURL, nil
	}
	if parsed.ShortURL == "" {
		return "", fmt.Errorf("no short url in response: %s", body)
	}
	return parsed.ShortURL, nil
}
