// Package kafka builds the franz-go client used for the audit stream.
package kafka

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/twmb/franz-go/pkg/kadm"
	"github.com/twmb/franz-go/pkg/kerr"
	"github.com/twmb/franz-go/pkg/kgo"

	"vitalis/internal/platform/config"
)

// NewProducer connects to the brokers and makes sure the audit topic exists.
// Returns nil when no brokers are configured.
func NewProducer(ctx context.Context, cfg config.KafkaConfig, logger *slog.Logger) (*kgo.Client, error) {
	if len(cfg.Brokers) == 0 {
		return nil, nil
	}

	client, err := kgo.NewClient(
		kgo.SeedBrokers(cfg.Brokers...),
		kgo.DefaultProduceTopic(cfg.AuditTopic),
		kgo.RequiredAcks(kgo.AllISRAcks()),
		kgo.ProducerLinger(5*time.Millisecond),
		kgo.RecordRetries(5),
	)
	if err != nil {
		return nil, fmt.Errorf("create kafka client: %w", err)
	}

	if err := EnsureTopic(ctx, kadm.NewClient(client), cfg.AuditTopic, cfg.Partitions); err != nil {
		client.Close()
		return nil, err
	}
	logger.InfoContext(ctx, "kafka audit stream ready", "topic", cfg.AuditTopic, "brokers", cfg.Brokers)
	return client, nil
}

// TopicAdmin is the subset of *kadm.Client used to provision topics.
type TopicAdmin interface {
	CreateTopic(ctx context.Context, partitions int32, replicationFactor int16, configs map[string]*string, topic string) (kadm.CreateTopicResponse, error)
}

// EnsureTopic creates topic if it does not exist yet. The broker default
// replication factor is used.
func EnsureTopic(ctx context.Context, admin TopicAdmin, topic string, partitions int32) error {
	if partitions <= 0 {
		partitions = 1
	}
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	retention := "-1"
	resp, err := admin.CreateTopic(ctx, partitions, -1, map[string]*string{"retention.ms": &retention}, topic)
	if err == nil {
		err = resp.Err
	}
	if err != nil && !errors.Is(err, kerr.TopicAlreadyExists) {
		return fmt.Errorf("create topic %s: %w", topic, err)
	}
	return nil
}
