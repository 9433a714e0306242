package publisher

import (
	"context"
	"fmt"
	"time"

	"github.com/gorilla/websocket"
	"github.com/jgoulah/linkyscraper/internal/config"
	"github.com/jgoulah/linkyscraper/pkg/models"
)

const (
	haTimeout        = 30 * time.Second
	importCommandID  = 1
	statisticsSource = "linky"
	statisticsUnit   = "Wh"
)

// StatisticMetadata describes the external statistic being imported
type StatisticMetadata struct {
	HasMean           bool   `json:"has_mean"`
	HasSum            bool   `json:"has_sum"`
	Name              string `json:"name"`
	Source            string `json:"source"`
	StatisticID       string `json:"statistic_id"`
	UnitOfMeasurement string `json:"unit_of_measurement"`
}

// NewStatisticMetadata builds metadata for a cumulative Wh statistic
func NewStatisticMetadata(statisticID, name string) StatisticMetadata {
	return StatisticMetadata{
		HasMean:           false,
		HasSum:            true,
		Name:              name,
		Source:            statisticsSource,
		StatisticID:       statisticID,
		UnitOfMeasurement: statisticsUnit,
	}
}

type haStat struct {
	Start string  `json:"start"`
	State float64 `json:"state"`
	Sum   float64 `json:"sum"`
}

type haMessage struct {
	ID          int    `json:"id,omitempty"`
	Type        string `json:"type"`
	Success     bool   `json:"success,omitempty"`
	Message     string `json:"message,omitempty"`
	AccessToken string `json:"access_token,omitempty"`
	Error       *struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error,omitempty"`
}

type importStatisticsCommand struct {
	ID       int               `json:"id"`
	Type     string            `json:"type"`
	Metadata StatisticMetadata `json:"metadata"`
	Stats    []haStat          `json:"stats"`
}

// HomeAssistant imports statistics through the Home Assistant websocket API
type HomeAssistant struct {
	url     string
	token   string
	dialer  *websocket.Dialer
	timeout time.Duration
}

// NewHomeAssistant validates the config and returns a client. It does not connect.
func NewHomeAssistant(cfg config.HAConfig) (*HomeAssistant, error) {
	if cfg.URL == "" {
		return nil, fmt.Errorf("Home Assistant URL is required when enabled")
	}
	if cfg.Token == "" {
		return nil, fmt.Errorf("Home Assistant token is required when enabled")
	}
	return &HomeAssistant{
		url:     cfg.URL,
		token:   cfg.Token,
		dialer:  websocket.DefaultDialer,
		timeout: haTimeout,
	}, nil
}

// ImportStatistics opens a connection, authenticates and imports stats
func (h *HomeAssistant) ImportStatistics(ctx context.Context, meta StatisticMetadata, stats []models.StatisticDataPoint) error {
	conn, _, err := h.dialer.DialContext(ctx, h.url, nil)
	if err != nil {
		return fmt.Errorf("connecting to Home Assistant: %w", err)
	}
	defer conn.Close()

	deadline := time.Now().Add(h.timeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}
	conn.SetReadDeadline(deadline)
	conn.SetWriteDeadline(deadline)

	if err := h.authenticate(conn); err != nil {
		return err
	}

	cmd := importStatisticsCommand{
		ID:       importCommandID,
		Type:     "recorder/import_statistics",
		Metadata: meta,
		Stats:    make([]haStat, 0, len(stats)),
	}
	for _, s := range stats {
		cmd.Stats = append(cmd.Stats, haStat{
			Start: s.Start.Format(time.RFC3339),
			State: s.State,
			Sum:   s.Sum,
		})
	}

	if err := conn.WriteJSON(cmd); err != nil {
		return fmt.Errorf("sending import_statistics: %w", err)
	}

	// Skip unrelated frames until our result arrives
	for {
		var msg haMessage
		if err := conn.ReadJSON(&msg); err != nil {
			return fmt.Errorf("reading import_statistics result: %w", err)
		}
		if msg.Type != "result" || msg.ID != importCommandID {
			continue
		}
		if !msg.Success {
			if msg.Error != nil {
				return fmt.Errorf("import_statistics failed: %s: %s", msg.Error.Code, msg.Error.Message)
			}
			return fmt.Errorf("import_statistics failed")
		}
		return nil
	}
}

func (h *HomeAssistant) authenticate(conn *websocket.Conn) error {
	var msg haMessage
	if err := conn.ReadJSON(&msg); err != nil {
		return fmt.Errorf("reading auth_required: %w", err)
	}
	if msg.Type != "auth_required" {
		return fmt.Errorf("unexpected first message %q", msg.Type)
	}

	if err := conn.WriteJSON(haMessage{Type: "auth", AccessToken: h.token}); err != nil {
		return fmt.Errorf("sending auth: %w", err)
	}

	if err := conn.ReadJSON(&msg); err != nil {
		return fmt.Errorf("reading auth result: %w", err)
	}
	switch msg.Type {
	case "auth_ok":
		return nil
	case "auth_invalid":
		return fmt.Errorf("Home Assistant rejected the token: %s", msg.Message)
	default:
		return fmt.Errorf("unexpected auth response %q", msg.Type)
	}
}
