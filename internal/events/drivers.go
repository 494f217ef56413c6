package events

import (
	"fmt"
	"log/slog"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill-redisstream/pkg/redisstream"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
	"github.com/redis/go-redis/v9"
)

// Supported drivers
const (
	DriverGoChannel = "gochannel"
	DriverRedis     = "redis"
)

// NewGoChannel creates an in-process pub/sub shared by every bus built on it
func NewGoChannel(logger *slog.Logger) *gochannel.GoChannel {
	return gochannel.NewGoChannel(gochannel.Config{OutputChannelBuffer: 16}, watermillLogger(logger))
}

// NewRedisBus creates a bus over redis streams. Every subscriber reads the
// whole stream, so all instances see every change.
func NewRedisBus(client redis.UniversalClient, logger *slog.Logger, opts ...BusOption) (*Bus, error) {
	wlogger := watermillLogger(logger)

	pub, err := redisstream.NewPublisher(redisstream.PublisherConfig{
		Client:     client,
		Marshaller: redisstream.DefaultMarshallerUnmarshaller{},
	}, wlogger)
	if err != nil {
		return nil, fmt.Errorf("failed to create redis publisher: %w", err)
	}

	sub, err := redisstream.NewSubscriber(redisstream.SubscriberConfig{
		Client:       client,
		Unmarshaller: redisstream.DefaultMarshallerUnmarshaller{},
	}, wlogger)
	if err != nil {
		_ = pub.Close()
		return nil, fmt.Errorf("failed to create redis subscriber: %w", err)
	}

	return NewBus(pub, sub, logger, opts...), nil
}

func watermillLogger(logger *slog.Logger) watermill.LoggerAdapter {
	if logger == nil {
		logger = slog.Default()
	}
	return watermill.NewSlogLogger(logger)
}
