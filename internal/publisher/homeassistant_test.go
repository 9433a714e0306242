package publisher

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/jgoulah/linkyscraper/internal/config"
	"github.com/jgoulah/linkyscraper/pkg/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type haServer struct {
	token    string
	fail     bool
	received chan importStatisticsCommand
}

func (s *haServer) handler(t *testing.T) http.HandlerFunc {
	upgrader := websocket.Upgrader{}
	return func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			t.Errorf("upgrade: %v", err)
			return
		}
		defer conn.Close()

		conn.WriteJSON(map[string]string{"type": "auth_required", "ha_version": "2024.6.0"})

		var auth map[string]string
		if err := conn.ReadJSON(&auth); err != nil {
			return
		}
		if auth["type"] != "auth" || auth["access_token"] != s.token {
			conn.WriteJSON(map[string]string{"type": "auth_invalid", "message": "Invalid access token or password"})
			return
		}
		conn.WriteJSON(map[string]string{"type": "auth_ok"})

		var cmd importStatisticsCommand
		if err := conn.ReadJSON(&cmd); err != nil {
			return
		}
		s.received <- cmd

		// An unrelated event frame before the result
		conn.WriteJSON(map[string]interface{}{"id": 99, "type": "event"})
		if s.fail {
			conn.WriteJSON(map[string]interface{}{
				"id": cmd.ID, "type": "result", "success": false,
				"error": map[string]string{"code": "invalid_format", "message": "Invalid timestamps"},
			})
			return
		}
		conn.WriteJSON(map[string]interface{}{"id": cmd.ID, "type": "result", "success": true, "result": nil})
	}
}

func newHAServer(t *testing.T, s *haServer) string {
	t.Helper()
	srv := httptest.NewServer(s.handler(t))
	t.Cleanup(srv.Close)
	return "ws" + strings.TrimPrefix(srv.URL, "http") + "/api/websocket"
}

func sampleStats() []models.StatisticDataPoint {
	start := time.Date(2024, 6, 14, 0, 0, 0, 0, time.UTC)
	return []models.StatisticDataPoint{
		{Start: start, State: 1500, Sum: 1500},
		{Start: start.Add(time.Hour), State: 500, Sum: 2000},
	}
}

func TestImportStatistics(t *testing.T) {
	s := &haServer{token: "ha-token", received: make(chan importStatisticsCommand, 1)}
	ha, err := NewHomeAssistant(config.HAConfig{Enabled: true, URL: newHAServer(t, s), Token: "ha-token"})
	require.NoError(t, err)

	meta := NewStatisticMetadata("linky:12345678901234", "Linky consumption")
	require.NoError(t, ha.ImportStatistics(context.Background(), meta, sampleStats()))

	cmd := <-s.received
	assert.Equal(t, "recorder/import_statistics", cmd.Type)
	assert.Equal(t, meta, cmd.Metadata)
	require.Len(t, cmd.Stats, 2)
	assert.Equal(t, "2024-06-14T01:00:00Z", cmd.Stats[1].Start)
	assert.Equal(t, 2000.0, cmd.Stats[1].Sum)
}

func TestImportStatisticsFailure(t *testing.T) {
	s := &haServer{token: "ha-token", fail: true, received: make(chan importStatisticsCommand, 1)}
	ha, err := NewHomeAssistant(config.HAConfig{URL: newHAServer(t, s), Token: "ha-token"})
	require.NoError(t, err)

	err = ha.ImportStatistics(context.Background(), NewStatisticMetadata("linky:1", "x"), sampleStats())
	assert.ErrorContains(t, err, "invalid_format")
}

func TestImportStatisticsBadToken(t *testing.T) {
	s := &haServer{token: "ha-token", received: make(chan importStatisticsCommand, 1)}
	ha, err := NewHomeAssistant(config.HAConfig{URL: newHAServer(t, s), Token: "wrong"})
	require.NoError(t, err)

	err = ha.ImportStatistics(context.Background(), NewStatisticMetadata("linky:1", "x"), sampleStats())
	assert.ErrorContains(t, err, "rejected the token")
}

func TestNewHomeAssistantValidation(t *testing.T) {
	_, err := NewHomeAssistant(config.HAConfig{Token: "t"})
	assert.ErrorContains(t, err, "URL is required")
	_, err = NewHomeAssistant(config.HAConfig{URL: "ws://x"})
	assert.ErrorContains(t, err, "token is required")
}

func TestStatisticMetadataJSON(t *testing.T) {
	data, err := json.Marshal(NewStatisticMetadata("linky:1", "Linky"))
	require.NoError(t, err)
	assert.JSONEq(t, `{
		"has_mean": false,
		"has_sum": true,
		"name": "Linky",
		"source": "linky",
		"statistic_id": "linky:1",
		"unit_of_measurement": "Wh"
	}`, string(data))
}
