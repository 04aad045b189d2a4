package scheduler

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"cloud.google.com/go/pubsub/v2"
	"github.com/rs/zerolog"

	"github.com/switchpilot/switchpilot/internal/controller"
	"github.com/switchpilot/switchpilot/internal/fleet"
)

// PubSubHandler consumes trigger messages so operators and upstream
// deploy pipelines can request work out of band of the cron sweep.
type PubSubHandler struct {
	client           *pubsub.Client
	subscriber       *pubsub.Subscriber
	subscriptionName string
	ctrl             *controller.Controller
	sweeper          *Sweeper
	logger           zerolog.Logger
}

// PubSubConfig holds configuration for the Pub/Sub handler.
type PubSubConfig struct {
	ProjectID        string
	SubscriptionName string
	Controller       *controller.Controller
	Sweeper          *Sweeper
	Logger           zerolog.Logger
}

// TriggerMessage is a control-plane trigger.
type TriggerMessage struct {
	JobType string `json:"job_type"` // assess_team | switch_team | sweep
	Team    string `json:"team,omitempty"`
	Target  string `json:"target,omitempty"` // blue | green, empty for standby
	Reason  string `json:"reason,omitempty"`
}

// NewPubSubHandler creates a new Pub/Sub handler.
func NewPubSubHandler(ctx context.Context, cfg PubSubConfig) (*PubSubHandler, error) {
	client, err := pubsub.NewClient(ctx, cfg.ProjectID)
	if err != nil {
		return nil, fmt.Errorf("creating pubsub client: %w", err)
	}

	subscriber := client.Subscriber(cfg.SubscriptionName)

	// A switch attempt can legitimately take several minutes of
	// stabilization, so extend the ack deadline well past that.
	subscriber.ReceiveSettings.MaxOutstandingMessages = 1
	subscriber.ReceiveSettings.MaxExtension = 30 * time.Minute

	return &PubSubHandler{
		client:           client,
		subscriber:       subscriber,
		subscriptionName: cfg.SubscriptionName,
		ctrl:             cfg.Controller,
		sweeper:          cfg.Sweeper,
		logger:           cfg.Logger,
	}, nil
}

// Start begins processing trigger messages. It blocks until ctx is done.
func (h *PubSubHandler) Start(ctx context.Context) error {
	h.logger.Info().
		Str("subscription", h.subscriptionName).
		Msg("starting pubsub trigger handler")

	return h.subscriber.Receive(ctx, func(ctx context.Context, msg *pubsub.Message) {
		h.handleMessage(ctx, msg)
	})
}

// Close closes the Pub/Sub client.
func (h *PubSubHandler) Close() error {
	return h.client.Close()
}

func (h *PubSubHandler) handleMessage(ctx context.Context, msg *pubsub.Message) {
	startTime := time.Now()

	logger := h.logger.With().
		Str("message_id", msg.ID).
		Str("publish_time", msg.PublishTime.Format(time.RFC3339)).
		Logger()

	var trigger TriggerMessage
	if err := json.Unmarshal(msg.Data, &trigger); err != nil {
		logger.Error().Err(err).Msg("failed to parse trigger message")
		msg.Nack()
		return
	}

	var err error
	switch trigger.JobType {
	case "assess_team":
		err = h.handleAssess(ctx, trigger)
	case "switch_team":
		err = h.handleSwitch(ctx, trigger)
	case "sweep":
		h.sweeper.Sweep(ctx)
	default:
		logger.Warn().Str("job_type", trigger.JobType).Msg("unknown job type")
		msg.Ack() // Ack unknown messages to prevent redelivery
		return
	}

	if err != nil {
		logger.Error().Err(err).Str("job_type", trigger.JobType).Msg("trigger failed")
		msg.Nack()
		return
	}

	logger.Info().
		Str("job_type", trigger.JobType).
		Str("team", trigger.Team).
		Dur("duration", time.Since(startTime)).
		Msg("trigger completed")
	msg.Ack()
}

func (h *PubSubHandler) handleAssess(ctx context.Context, trigger TriggerMessage) error {
	if trigger.Team == "" {
		return fmt.Errorf("assess_team trigger missing team")
	}
	assessment, err := h.ctrl.Assess(ctx, trigger.Team)
	if err != nil {
		return err
	}
	h.logger.Info().
		Str("team", trigger.Team).
		Float64("score", assessment.TotalScore).
		Str("status", string(assessment.Status)).
		Msg("triggered assessment")
	return nil
}

func (h *PubSubHandler) handleSwitch(ctx context.Context, trigger TriggerMessage) error {
	if trigger.Team == "" {
		return fmt.Errorf("switch_team trigger missing team")
	}
	var target fleet.Color
	if trigger.Target != "" {
		parsed, err := fleet.ParseColor(trigger.Target)
		if err != nil {
			return err
		}
		target = parsed
	}
	reason := trigger.Reason
	if reason == "" {
		reason = "pubsub trigger"
	}

	result, err := h.ctrl.ExecuteSwitch(ctx, trigger.Team, target, reason, false)
	if err != nil {
		// A gate denial is a legitimate answer, not a redeliverable
		// failure.
		h.logger.Warn().Err(err).Str("team", trigger.Team).Msg("triggered switch denied")
		return nil
	}
	h.logger.Info().
		Str("team", trigger.Team).
		Str("outcome", string(result.Outcome)).
		Msg("triggered switch finished")
	return nil
}
