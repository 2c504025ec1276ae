package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"cloud.google.com/go/pubsub/v2"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/weatherroute/weatherroute/internal/travel"
)

// Job types carried in PrefetchMessage.JobType.
const (
	JobTypePrefetchRoute = "prefetch_route"
	JobTypeHealthCheck   = "health_check"
)

// ErrMalformedMessage is returned for messages that can never succeed.
var ErrMalformedMessage = errors.New("malformed message")

// PrefetchMessage is the Pub/Sub payload. A prefetch_route message without
// a vessel_id warms every recently active vessel; a zero range means the
// configured lookback.
type PrefetchMessage struct {
	JobType  string    `json:"job_type"`
	JobID    string    `json:"job_id,omitempty"`
	VesselID string    `json:"vessel_id,omitempty"`
	From     time.Time `json:"from,omitempty"`
	To       time.Time `json:"to,omitempty"`

	// RequestID is the API request that queued the job, for log correlation.
	RequestID string `json:"request_id,omitempty"`
}

// PubSubHandler handles Pub/Sub messages for the worker.
type PubSubHandler struct {
	client           *pubsub.Client
	subscriber       *pubsub.Subscriber
	subscriptionName string
	prefetchJob      *PrefetchJob
	logger           zerolog.Logger
}

// PubSubConfig holds configuration for the Pub/Sub handler.
type PubSubConfig struct {
	ProjectID        string
	SubscriptionName string
	PrefetchJob      *PrefetchJob
	Logger           zerolog.Logger
}

// NewPubSubHandler creates a new Pub/Sub handler.
func NewPubSubHandler(ctx context.Context, cfg PubSubConfig) (*PubSubHandler, error) {
	client, err := pubsub.NewClient(ctx, cfg.ProjectID)
	if err != nil {
		return nil, fmt.Errorf("creating pubsub client: %w", err)
	}

	subscriber := client.Subscriber(cfg.SubscriptionName)

	// Configure receive settings.
	subscriber.ReceiveSettings.MaxOutstandingMessages = 10
	subscriber.ReceiveSettings.MaxExtension = 10 * time.Minute

	return &PubSubHandler{
		client:           client,
		subscriber:       subscriber,
		subscriptionName: cfg.SubscriptionName,
		prefetchJob:      cfg.PrefetchJob,
		logger:           cfg.Logger,
	}, nil
}

// NewDispatcher creates a handler without a Pub/Sub connection, for
// running jobs in-process.
func NewDispatcher(job *PrefetchJob, logger zerolog.Logger) *PubSubHandler {
	return &PubSubHandler{prefetchJob: job, logger: logger}
}

// Start begins processing Pub/Sub messages.
func (h *PubSubHandler) Start(ctx context.Context) error {
	h.logger.Info().
		Str("subscription", h.subscriptionName).
		Msg("starting pubsub handler")

	return h.subscriber.Receive(ctx, func(ctx context.Context, msg *pubsub.Message) {
		h.handleMessage(ctx, msg)
	})
}

// Close closes the Pub/Sub client.
func (h *PubSubHandler) Close() error {
	if h.client == nil {
		return nil
	}
	return h.client.Close()
}

func (h *PubSubHandler) handleMessage(ctx context.Context, msg *pubsub.Message) {
	logger := h.logger.With().
		Str("message_id", msg.ID).
		Str("publish_time", msg.PublishTime.Format(time.RFC3339)).
		Logger()

	logger.Debug().Msg("received pubsub message")

	err := h.Dispatch(logger.WithContext(ctx), msg.Data)
	switch {
	case errors.Is(err, ErrMalformedMessage):
		// Redelivery cannot fix a bad payload
		logger.Error().Err(err).Msg("dropping message")
		msg.Ack()
	case err != nil:
		logger.Error().Err(err).Msg("job failed")
		msg.Nack()
	default:
		msg.Ack()
	}
}

// Dispatch decodes and runs one job message. Unknown job types are ignored.
func (h *PubSubHandler) Dispatch(ctx context.Context, data []byte) error {
	startTime := time.Now()

	var m PrefetchMessage
	if err := json.Unmarshal(data, &m); err != nil {
		return fmt.Errorf("%w: %w", ErrMalformedMessage, err)
	}

	logger := h.logger.With().
		Str("job_type", m.JobType).
		Str("job_id", m.JobID).
		Str("request_id", m.RequestID).
		Logger()

	var err error
	switch m.JobType {
	case JobTypePrefetchRoute:
		err = h.handlePrefetch(ctx, m)
	case JobTypeHealthCheck:
		err = h.prefetchJob.HealthCheck(ctx)
	default:
		logger.Warn().Msg("unknown job type")
		return nil
	}
	if err != nil {
		return err
	}

	logger.Info().
		Dur("duration", time.Since(startTime)).
		Msg("job completed successfully")
	return nil
}

func (h *PubSubHandler) handlePrefetch(ctx context.Context, m PrefetchMessage) error {
	var (
		result *PrefetchResult
		err    error
	)

	vesselID := strings.TrimSpace(m.VesselID)
	if vesselID == "" {
		result, err = h.prefetchJob.RunActive(ctx)
		if err != nil {
			return err
		}
	} else {
		rng := h.prefetchJob.DefaultRange()
		if !m.From.IsZero() || !m.To.IsZero() {
			rng = travel.Range{From: m.From, To: m.To}
		}
		if err := rng.Validate(); err != nil {
			return fmt.Errorf("%w: %w", ErrMalformedMessage, err)
		}
		result = h.prefetchJob.Run(ctx, []PrefetchTarget{{VesselID: vesselID, Range: rng}})
	}

	// Consider it successful if at least half the vessels were warmed.
	if result.Failed > result.Successful {
		return fmt.Errorf("too many prefetch failures: %d/%d", result.Failed, result.Vessels)
	}
	return nil
}

// Publisher enqueues prefetch jobs on a Pub/Sub topic.
type Publisher struct {
	client    *pubsub.Client
	publisher *pubsub.Publisher
	topic     string
}

// NewPublisher creates a publisher for the given project and topic.
func NewPublisher(ctx context.Context, projectID, topic string) (*Publisher, error) {
	client, err := pubsub.NewClient(ctx, projectID)
	if err != nil {
		return nil, fmt.Errorf("creating pubsub client: %w", err)
	}
	return &Publisher{
		client:    client,
		publisher: client.Publisher(topic),
		topic:     topic,
	}, nil
}

// NewPrefetchMessage builds a prefetch_route message with a fresh job ID.
func NewPrefetchMessage(vesselID string, rng travel.Range) PrefetchMessage {
	return PrefetchMessage{
		JobType:  JobTypePrefetchRoute,
		JobID:    uuid.NewString(),
		VesselID: vesselID,
		From:     rng.From,
		To:       rng.To,
	}
}

// Publish sends the message and waits for the server ID.
func (p *Publisher) Publish(ctx context.Context, m PrefetchMessage) (string, error) {
	data, err := json.Marshal(m)
	if err != nil {
		return "", fmt.Errorf("encoding message: %w", err)
	}
	id, err := p.publisher.Publish(ctx, &pubsub.Message{
		Data:       data,
		Attributes: map[string]string{"job_type": m.JobType},
	}).Get(ctx)
	if err != nil {
		return "", fmt.Errorf("publishing to %s: %w", p.topic, err)
	}
	return id, nil
}

// Close flushes pending messages and closes the client.
func (p *Publisher) Close() error {
	p.publisher.Stop()
	return p.client.Close()
}
