package publisher

import (
	"context"
	"fmt"

	"github.com/jgoulah/linkyscraper/internal/config"
	"github.com/jgoulah/linkyscraper/internal/logger"
	"github.com/jgoulah/linkyscraper/pkg/models"
)

// StatisticsImporter imports a statistics series into Home Assistant
type StatisticsImporter interface {
	ImportStatistics(ctx context.Context, meta StatisticMetadata, stats []models.StatisticDataPoint) error
}

// Publisher fans statistics out to every enabled destination
type Publisher struct {
	ha     StatisticsImporter
	mqtt   *MQTTPublisher
	meta   StatisticMetadata
	logger *logger.Logger
}

// New creates a publisher for the destinations enabled in cfg
func New(cfg *config.Config, log *logger.Logger) (*Publisher, error) {
	p := &Publisher{
		meta:   NewStatisticMetadata(cfg.GetStatisticID(), cfg.GetStatisticName()),
		logger: log.WithComponent("publisher"),
	}

	if cfg.HomeAssistant.Enabled {
		ha, err := NewHomeAssistant(cfg.HomeAssistant)
		if err != nil {
			return nil, err
		}
		p.ha = ha
	}

	if cfg.MQTT.Enabled {
		m, err := NewMQTT(cfg.MQTT, cfg.GetTopicPrefix())
		if err != nil {
			return nil, err
		}
		p.mqtt = m
	}

	return p, nil
}

// Enabled reports whether at least one destination is configured
func (p *Publisher) Enabled() bool {
	return p.ha != nil || p.mqtt != nil
}

// Publish sends stats to Home Assistant and MQTT. Both are attempted; the
// first error is returned.
func (p *Publisher) Publish(ctx context.Context, usagePointID string, stats []models.StatisticDataPoint) error {
	if !p.Enabled() {
		return fmt.Errorf("no publishing destination is enabled in config")
	}

	var firstErr error

	if p.ha != nil {
		if err := p.ha.ImportStatistics(ctx, p.meta, stats); err != nil {
			p.logger.Errorw("Home Assistant import failed", "statistic_id", p.meta.StatisticID, "error", err)
			firstErr = fmt.Errorf("importing into Home Assistant: %w", err)
		} else {
			p.logger.Infow("imported statistics into Home Assistant", "statistic_id", p.meta.StatisticID, "count", len(stats))
		}
	}

	if p.mqtt != nil {
		if err := p.mqtt.PublishStatistics(usagePointID, stats); err != nil {
			p.logger.Errorw("MQTT publish failed", "error", err)
			if firstErr == nil {
				firstErr = fmt.Errorf("publishing to MQTT: %w", err)
			}
		} else {
			p.logger.Infow("published statistics to MQTT", "topic", p.mqtt.StatisticsTopic(usagePointID), "count", len(stats))
		}
	}

	return firstErr
}

// Close releases broker connections
func (p *Publisher) Close() {
	if p.mqtt != nil {
		p.mqtt.Close()
	}
}
