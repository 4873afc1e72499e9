// Package privacy - клиент сервиса обезличивания изображений (AI engine)
package privacy

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"
)

var errEmptyResult = errors.New("privacy: empty processed_url in response")

// Client вызывает POST {baseURL}/process-image
type Client struct {
	baseURL string
	client  *http.Client
}

func NewClient(baseURL string, timeout time.Duration) (*Client, error) {
	if baseURL == "" {
		return nil, errors.New("privacy: empty base url")
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  &http.Client{Timeout: timeout},
	}, nil
}

type processRequest struct {
	ImageURL string `json:"image_url"`
}

type processResponse struct {
	Success bool `json:"success"`
	Data    struct {
		ProcessedURL string `json:"processed_url"`
	} `json:"data"`
	Error string `json:"error"`
}

// Process возвращает ссылку на изображение со скрытыми лицами и номерами
func (c *Client) Process(ctx context.Context, imageURL string) (string, error) {
	payload, err := json.Marshal(processRequest{ImageURL: imageURL})
	if err != nil {
		return "", err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/process-image", bytes.NewReader(payload))
	if err != nil {
		return "", fmt.Errorf("privacy: failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("privacy: request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return "", fmt.Errorf("privacy: http %d", resp.StatusCode)
	}
	var out processResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("privacy: failed to decode response: %w", err)
	}
	if out.Error != "" {
		return "", fmt.Errorf("privacy: %s", out.Error)
	}
	if out.Data.ProcessedURL == "" {
		return "", errEmptyResult
	}
	return out.Data.ProcessedURL, nil
}
