package homeassistant

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/barnabee/barnabee/internal/domain/entity"
	"github.com/barnabee/barnabee/internal/domain/home"
	apperrors "github.com/barnabee/barnabee/pkg/errors"
	"go.uber.org/zap"
)

// Client implements home.Platform against the Home Assistant REST and
// WebSocket APIs.
type Client struct {
	baseURL string
	token   string
	client  *http.Client
	logger  *zap.Logger
}

var _ home.Platform = (*Client)(nil)

// NewClient creates a platform client. token is the long-lived bearer
// token from the secrets store.
func NewClient(baseURL, token string, logger *zap.Logger) *Client {
	return &Client{
		baseURL: baseURL,
		token:   token,
		client:  &http.Client{Timeout: 10 * time.Second},
		logger:  logger.With(zap.String("component", "homeassistant")),
	}
}

// stateRow matches the /api/states response element.
type stateRow struct {
	EntityID   string         `json:"entity_id"`
	State      string         `json:"state"`
	Attributes map[string]any `json:"attributes"`
}

// ListEntities fetches every entity the platform exposes.
func (c *Client) ListEntities(ctx context.Context) ([]entity.HomeEntity, error) {
	var rows []stateRow
	if err := c.get(ctx, "/api/states", &rows); err != nil {
		return nil, err
	}

	entities := make([]entity.HomeEntity, 0, len(rows))
	for _, row := range rows {
		entities = append(entities, entity.HomeEntity{
			EntityID: row.EntityID,
			Name:     attrString(row.Attributes, "friendly_name", row.EntityID),
			Area:     attrString(row.Attributes, "area", ""),
			Floor:    attrString(row.Attributes, "floor", ""),
			Domain:   entity.DomainOf(row.EntityID),
		})
	}
	return entities, nil
}

// GetState fetches one entity's current state and attributes.
func (c *Client) GetState(ctx context.Context, entityID string) (*entity.EntityState, error) {
	var row stateRow
	if err := c.get(ctx, "/api/states/"+entityID, &row); err != nil {
		return nil, err
	}
	return &entity.EntityState{
		EntityID:   row.EntityID,
		State:      row.State,
		Attributes: row.Attributes,
	}, nil
}

// CallService invokes one platform service against one target.
func (c *Client) CallService(ctx context.Context, call entity.ServiceCall) error {
	payload := map[string]any{"entity_id": call.Target}
	for k, v := range call.Data {
		payload[k] = v
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return apperrors.Wrap(apperrors.CodeInternalInvariant, "encode service call", err)
	}

	path := fmt.Sprintf("/api/services/%s/%s", call.Domain, call.Service)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return apperrors.NewPermanent("build service call", err)
	}
	c.setHeaders(req)

	resp, err := c.client.Do(req)
	if err != nil {
		return apperrors.NewTransient("service call failed", err)
	}
	defer resp.Body.Close()
	return c.checkStatus(resp, "service call")
}

func (c *Client) get(ctx context.Context, path string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return apperrors.NewPermanent("build request", err)
	}
	c.setHeaders(req)

	resp, err := c.client.Do(req)
	if err != nil {
		return apperrors.NewTransient("platform request failed", err)
	}
	defer resp.Body.Close()

	if err := c.checkStatus(resp, path); err != nil {
		return err
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return apperrors.NewPermanent("decode platform response", err)
	}
	return nil
}

func (c *Client) checkStatus(resp *http.Response, what string) error {
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return nil
	}
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
	msg := fmt.Sprintf("%s returned %d: %s", what, resp.StatusCode, body)
	if resp.StatusCode >= 500 || resp.StatusCode == http.StatusTooManyRequests {
		return apperrors.NewTransient(msg, nil)
	}
	return apperrors.NewPermanent(msg, nil)
}

func (c *Client) setHeaders(req *http.Request) {
	req.Header.Set("Authorization", "Bearer "+c.token)
	req.Header.Set("Content-Type", "application/json")
}

func attrString(attrs map[string]any, key, fallback string) string {
	if v, ok := attrs[key].(string); ok && v != "" {
		return v
	}
	return fallback
}
