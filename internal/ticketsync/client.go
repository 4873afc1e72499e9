// Package ticketsync передает заявки во внешнюю муниципальную систему
package ticketsync

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/shenikar/road_hazard_engine/internal/models"
)

// HTTPSyncer - клиент POST {baseURL}/tickets
type HTTPSyncer struct {
	baseURL string
	system  string
	client  *http.Client
}

func NewHTTPSyncer(baseURL, system string, timeout time.Duration) (*HTTPSyncer, error) {
	if baseURL == "" {
		return nil, errors.New("ticketsync: empty base url")
	}
	if system == "" {
		system = "municipal"
	}
	return &HTTPSyncer{
		baseURL: strings.TrimRight(baseURL, "/"),
		system:  system,
		client:  &http.Client{Timeout: timeout},
	}, nil
}

func (s *HTTPSyncer) System() string { return s.system }

type syncResponse struct {
	ExternalID string `json:"external_id"`
	Status     string `json:"status"`
}

// Sync отправляет заявку и возвращает внешний идентификатор и статус
func (s *HTTPSyncer) Sync(ctx context.Context, ticket *models.Ticket) (string, string, error) {
	payload, err := json.Marshal(ticket)
	if err != nil {
		return "", "", fmt.Errorf("ticketsync: failed to marshal ticket: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.baseURL+"/tickets", bytes.NewReader(payload))
	if err != nil {
		return "", "", fmt.Errorf("ticketsync: failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Source-System", s.system)

	resp, err := s.client.Do(req)
	if err != nil {
		return "", "", fmt.Errorf("ticketsync: request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return "", "", fmt.Errorf("ticketsync: http %d", resp.StatusCode)
	}
	var out syncResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", "", fmt.Errorf("ticketsync: failed to decode response: %w", err)
	}
	if out.ExternalID == "" {
		return "", "", errors.New("ticketsync: response has no external_id")
	}
	if out.Status == "" {
		out.Status = "synced"
	}
	return out.ExternalID, out.Status, nil
}
