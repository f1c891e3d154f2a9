// Package kafka is the intake channel for federation events. Heartbeats and
// incident reports produced elsewhere in the platform are consumed here and
// recorded in the registry; the trust engine implements no federation
// transport of its own.
package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/IBM/sarama"

	"github.com/harvestnet/trust-engine/internal/config"
	"github.com/harvestnet/trust-engine/internal/metrics"
	"github.com/harvestnet/trust-engine/internal/registry"
)

// HeartbeatEvent is a federation node heartbeat delivered over the intake
// topic.
type HeartbeatEvent struct {
	OrganizationID string   `json:"organization_id"`
	Endpoint       string   `json:"endpoint"`
	Capabilities   []string `json:"capabilities"`
	Regions        []string `json:"regions"`
	Version        string   `json:"version"`
}

// IncidentEvent is an incident report against a trust relationship.
type IncidentEvent struct {
	FromOrgID   string  `json:"from_org_id"`
	ToOrgID     string  `json:"to_org_id"`
	Severity    float64 `json:"severity"`
	Description string  `json:"description"`
}

// Consumer handles Kafka message consumption.
type Consumer struct {
	consumer sarama.ConsumerGroup
	registry *registry.Registry
	metrics  *metrics.Collector
	config   config.Config
	logger   *slog.Logger
	topics   []string
	ctx      context.Context
	cancel   context.CancelFunc
}

// NewConsumer creates a consumer group over the heartbeat and incident
// topics.
func NewConsumer(
	reg *registry.Registry,
	collector *metrics.Collector,
	cfg config.Config,
	logger *slog.Logger,
) (*Consumer, error) {
	kafkaConfig := sarama.NewConfig()
	kafkaConfig.Consumer.Group.Rebalance.Strategy = sarama.BalanceStrategyRoundRobin
	kafkaConfig.Consumer.Offsets.Initial = sarama.OffsetNewest
	kafkaConfig.Consumer.Group.Session.Timeout = 10 * time.Second
	kafkaConfig.Consumer.Group.Heartbeat.Interval = 3 * time.Second
	kafkaConfig.Consumer.Return.Errors = true

	consumer, err := sarama.NewConsumerGroup(cfg.Kafka.Brokers, cfg.Kafka.GroupID, kafkaConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create consumer group: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())

	return &Consumer{
		consumer: consumer,
		registry: reg,
		metrics:  collector,
		config:   cfg,
		logger:   logger,
		topics: []string{
			cfg.Kafka.HeartbeatsTopic,
			cfg.Kafka.IncidentsTopic,
		},
		ctx:    ctx,
		cancel: cancel,
	}, nil
}

// Start begins consuming messages.
func (c *Consumer) Start() error {
	c.logger.Info("starting kafka consumer",
		"topics", c.topics,
		"group_id", c.config.Kafka.GroupID)

	go func() {
		for {
			select {
			case <-c.ctx.Done():
				return
			default:
				if err := c.consumer.Consume(c.ctx, c.topics, c); err != nil {
					c.logger.Error("error consuming from kafka", "error", err)
					time.Sleep(5 * time.Second)
				}
			}
		}
	}()

	go func() {
		for {
			select {
			case err := <-c.consumer.Errors():
				c.logger.Error("kafka consumer error", "error", err)
			case <-c.ctx.Done():
				return
			}
		}
	}()

	return nil
}

// Stop stops the consumer.
func (c *Consumer) Stop() error {
	c.logger.Info("stopping kafka consumer")
	c.cancel()
	return c.consumer.Close()
}

// Setup implements sarama.ConsumerGroupHandler.
func (c *Consumer) Setup(sarama.ConsumerGroupSession) error {
	return nil
}

// Cleanup implements sarama.ConsumerGroupHandler.
func (c *Consumer) Cleanup(sarama.ConsumerGroupSession) error {
	return nil
}

// ConsumeClaim implements sarama.ConsumerGroupHandler.
func (c *Consumer) ConsumeClaim(session sarama.ConsumerGroupSession, claim sarama.ConsumerGroupClaim) error {
	for {
		select {
		case message := <-claim.Messages():
			if message == nil {
				return nil
			}

			if err := c.handleMessage(message); err != nil {
				c.metrics.ConsumeError(message.Topic)
				c.logger.Error("failed to handle message",
					"topic", message.Topic,
					"partition", message.Partition,
					"offset", message.Offset,
					"error", err)
			} else {
				c.metrics.MessageConsumed(message.Topic)
			}
			session.MarkMessage(message, "")

		case <-session.Context().Done():
			return nil
		}
	}
}

func (c *Consumer) handleMessage(message *sarama.ConsumerMessage) error {
	switch message.Topic {
	case c.config.Kafka.HeartbeatsTopic:
		return c.handleHeartbeat(message)
	case c.config.Kafka.IncidentsTopic:
		return c.handleIncident(message)
	default:
		c.logger.Warn("unknown topic", "topic", message.Topic)
		return nil
	}
}

// handleHeartbeat records the heartbeat: a known node is refreshed, an
// unknown one is registered from the event payload.
func (c *Consumer) handleHeartbeat(message *sarama.ConsumerMessage) error {
	var event HeartbeatEvent
	if err := json.Unmarshal(message.Value, &event); err != nil {
		return fmt.Errorf("failed to unmarshal heartbeat event: %w", err)
	}
	if event.OrganizationID == "" {
		return fmt.Errorf("heartbeat event missing organization_id")
	}

	if node := c.registry.UpdateNodeHeartbeat(event.OrganizationID); node != nil {
		return nil
	}

	capabilities := make([]registry.FederationCapability, 0, len(event.Capabilities))
	for _, capability := range event.Capabilities {
		capabilities = append(capabilities, registry.FederationCapability(capability))
	}
	c.registry.RegisterNode(registry.FederationNode{
		OrganizationID: event.OrganizationID,
		Endpoint:       event.Endpoint,
		Capabilities:   capabilities,
		Regions:        event.Regions,
		Version:        event.Version,
	})
	return nil
}

// handleIncident records an incident against an established relationship. A
// report against a relationship that was never established is logged and
// dropped rather than retried.
func (c *Consumer) handleIncident(message *sarama.ConsumerMessage) error {
	var event IncidentEvent
	if err := json.Unmarshal(message.Value, &event); err != nil {
		return fmt.Errorf("failed to unmarshal incident event: %w", err)
	}

	_, err := c.registry.RecordIncident(event.FromOrgID, event.ToOrgID, event.Severity)
	if errors.Is(err, registry.ErrRelationshipNotFound) {
		c.logger.Warn("incident against unknown relationship",
			"from", event.FromOrgID,
			"to", event.ToOrgID)
		return nil
	}
	return err
}
