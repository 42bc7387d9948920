package ingest

import (
	"context"
	"encoding/json"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/example/ride-dispatch/internal/models"
)

// KafkaProducer streams captain location updates and ride lifecycle events
// to their topics for downstream consumers.
type KafkaProducer struct {
	locations *kafka.Writer
	rides     *kafka.Writer
}

func NewKafkaProducer(brokers []string, locationTopic, rideTopic string) *KafkaProducer {
	return &KafkaProducer{
		locations: kafka.NewWriter(kafka.WriterConfig{Brokers: brokers, Topic: locationTopic, Balancer: &kafka.LeastBytes{}}),
		rides:     kafka.NewWriter(kafka.WriterConfig{Brokers: brokers, Topic: rideTopic, Balancer: &kafka.LeastBytes{}}),
	}
}

func (k *KafkaProducer) PublishLocation(ctx context.Context, c models.Captain) error {
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	b, _ := json.Marshal(c)
	return k.locations.WriteMessages(ctx, kafka.Message{Key: []byte(c.ID), Value: b})
}

// RideEvent is the lifecycle record on the ride topic.
type RideEvent struct {
	Event string       `json:"event"`
	Ride  *models.Ride `json:"ride"`
	At    time.Time    `json:"at"`
}

func (k *KafkaProducer) PublishRideEvent(ctx context.Context, event string, r *models.Ride) error {
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	b, _ := json.Marshal(RideEvent{Event: event, Ride: r, At: time.Now()})
	return k.rides.WriteMessages(ctx, kafka.Message{Key: []byte(r.ID), Value: b})
}

func (k *KafkaProducer) Close() error {
	var first error
	for _, w := range []*kafka.Writer{k.locations, k.rides} {
		if w == nil {
			continue
		}
		if err := w.Close(); err != nil && first == nil {
			first = err
		}
	}
	return first
}
