package homeassistant

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"github.com/barnabee/barnabee/internal/domain/entity"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

// wsMessage covers the Home Assistant WebSocket envelope for the auth
// handshake and state_changed events.
type wsMessage struct {
	ID    int    `json:"id,omitempty"`
	Type  string `json:"type"`
	Event *struct {
		EventType string `json:"event_type"`
		Data      struct {
			EntityID string    `json:"entity_id"`
			NewState *stateRow `json:"new_state"`
		} `json:"data"`
	} `json:"event,omitempty"`
}

// SubscribeStateChanges opens the WebSocket API, authenticates and
// subscribes to state_changed events. The returned channel closes when
// ctx is cancelled; connection drops reconnect with backoff.
func (c *Client) SubscribeStateChanges(ctx context.Context) (<-chan entity.EntityState, error) {
	out := make(chan entity.EntityState, 64)

	go func() {
		defer close(out)
		backoff := time.Second
		for {
			if err := c.streamOnce(ctx, out); err != nil {
				if ctx.Err() != nil {
					return
				}
				c.logger.Warn("State stream dropped, reconnecting",
					zap.Duration("backoff", backoff),
					zap.Error(err),
				)
			}
			select {
			case <-ctx.Done():
				return
			case <-time.After(backoff):
			}
			backoff *= 2
			if backoff > 30*time.Second {
				backoff = 30 * time.Second
			}
		}
	}()
	return out, nil
}

func (c *Client) streamOnce(ctx context.Context, out chan<- entity.EntityState) error {
	wsURL := strings.Replace(c.baseURL, "http", "ws", 1) + "/api/websocket"
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, wsURL, nil)
	if err != nil {
		return err
	}
	defer conn.Close()

	// The dialer does not observe ctx after the handshake; close the
	// connection to unblock ReadJSON on cancellation.
	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			conn.Close()
		case <-done:
		}
	}()

	// Auth handshake: auth_required -> auth -> auth_ok.
	var hello wsMessage
	if err := conn.ReadJSON(&hello); err != nil {
		return err
	}
	if err := conn.WriteJSON(map[string]string{"type": "auth", "access_token": c.token}); err != nil {
		return err
	}
	var authResult wsMessage
	if err := conn.ReadJSON(&authResult); err != nil {
		return err
	}
	if authResult.Type != "auth_ok" {
		return websocket.ErrBadHandshake
	}

	if err := conn.WriteJSON(map[string]any{
		"id":         1,
		"type":       "subscribe_events",
		"event_type": "state_changed",
	}); err != nil {
		return err
	}
	c.logger.Info("Subscribed to platform state changes")

	for {
		var msg wsMessage
		if err := conn.ReadJSON(&msg); err != nil {
			return err
		}
		if msg.Type != "event" || msg.Event == nil || msg.Event.Data.NewState == nil {
			continue
		}
		state := entity.EntityState{
			EntityID:   msg.Event.Data.EntityID,
			State:      msg.Event.Data.NewState.State,
			Attributes: msg.Event.Data.NewState.Attributes,
		}
		select {
		case out <- state:
		default:
			// Slow consumers drop events; the registry refreshes on TTL
			// anyway.
		}
	}
}

// parseStateChange decodes one WebSocket frame into a state update.
func parseStateChange(data []byte) (*entity.EntityState, bool) {
	var msg wsMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, false
	}
	if msg.Type != "event" || msg.Event == nil || msg.Event.Data.NewState == nil {
		return nil, false
	}
	return &entity.EntityState{
		EntityID:   msg.Event.Data.EntityID,
		State:      msg.Event.Data.NewState.State,
		Attributes: msg.Event.Data.NewState.Attributes,
	}, true
}
