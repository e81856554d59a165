package webhook

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	webhookDatamodel "github.com/frahmantamala/atelier/internal/core/datamodel/webhook"
	"github.com/frahmantamala/atelier/internal/core/database"
	"github.com/frahmantamala/atelier/internal/enrollment"
	"github.com/frahmantamala/atelier/internal/gateway"
)

const (
	OutcomeIgnored   = "ignored"
	OutcomeDuplicate = "duplicate"
	OutcomeSkipped   = "skipped"
)

type EventLog interface {
	Processed(ctx context.Context, provider, eventID string) (bool, error)
	// Record inserts e unless (provider, event_id) is already logged.
	Record(ctx context.Context, e *webhookDatamodel.Event) (bool, error)
}

type Committer interface {
	Commit(ctx context.Context, in enrollment.GatewayPayment) (*enrollment.Result, error)
	MarkFailed(ctx context.Context, method, externalID, reason string) (*enrollment.Result, error)
}

type Ack struct {
	Received bool   `json:"received"`
	EventID  string `json:"event_id,omitempty"`
	Outcome  string `json:"outcome"`
}

// Dispatcher applies one verified gateway event inside a single transaction.
type Dispatcher struct {
	log        EventLog
	committer  Committer
	transactor database.Transactor
	logger     *slog.Logger
	now        func() time.Time
}

func NewDispatcher(log EventLog, committer Committer, transactor database.Transactor, logger *slog.Logger) *Dispatcher {
	return &Dispatcher{
		log:        log,
		committer:  committer,
		transactor: transactor,
		logger:     logger,
		now:        time.Now,
	}
}

func (d *Dispatcher) Dispatch(ctx context.Context, ev *gateway.Event) (*Ack, error) {
	log := d.logger.With(
		"provider", ev.Provider,
		"event_id", ev.EventID,
		"gateway_type", ev.GatewayType,
		"external_id", ev.ExternalID)

	if !ev.Handled() {
		log.Info("gateway event type not handled, acknowledging")
		return &Ack{Received: true, EventID: ev.EventID, Outcome: OutcomeIgnored}, nil
	}

	ack := &Ack{Received: true, EventID: ev.EventID}
	err := d.transactor.WithinTransaction(ctx, func(ctx context.Context) error {
		seen, err := d.log.Processed(ctx, ev.Provider, ev.EventID)
		if err != nil {
			return fmt.Errorf("failed to check event log: %w", err)
		}
		if seen {
			log.Info("gateway event already processed")
			ack.Outcome = OutcomeDuplicate
			return nil
		}

		outcome, err := d.apply(ctx, log, ev)
		if err != nil {
			return err
		}
		ack.Outcome = outcome
		if outcome == OutcomeSkipped {
			return nil
		}

		if _, err := d.log.Record(ctx, &webhookDatamodel.Event{
			Provider:    ev.Provider,
			EventID:     ev.EventID,
			EventType:   ev.GatewayType,
			ExternalID:  ev.ExternalID,
			Outcome:     outcome,
			Payload:     ev.Raw,
			ProcessedAt: d.now().UTC(),
		}); err != nil {
			return fmt.Errorf("failed to record gateway event: %w", err)
		}
		return nil
	})
	if err != nil {
		log.Error("gateway event dispatch failed, rolled back", "kind", ev.Kind.String(), "error", err)
		return nil, err
	}

	log.Info("gateway event dispatched", "kind", ev.Kind.String(), "outcome", ack.Outcome)
	return ack, nil
}

func (d *Dispatcher) apply(ctx context.Context, log *slog.Logger, ev *gateway.Event) (string, error) {
	switch ev.Kind {
	case gateway.KindSucceeded:
		if !ev.Metadata.Present() {
			log.Warn("succeeded event without course/user metadata, skipping")
			return OutcomeSkipped, nil
		}
		res, err := d.committer.Commit(ctx, enrollment.GatewayPayment{
			Method:     ev.Provider,
			ExternalID: ev.ExternalID,
			CourseID:   ev.Metadata.CourseID,
			UserID:     ev.Metadata.UserID,
			BuyerName:  ev.Metadata.BuyerName,
			BuyerEmail: ev.Metadata.BuyerEmail,
		})
		if err != nil {
			return "", err
		}
		return string(res.Outcome), nil

	case gateway.KindFailed, gateway.KindCanceled:
		reason := ev.FailureReason
		if reason == "" {
			reason = ev.Kind.String()
		}
		res, err := d.committer.MarkFailed(ctx, ev.Provider, ev.ExternalID, reason)
		if err != nil {
			return "", err
		}
		return string(res.Outcome), nil

	case gateway.KindUnhandled:
		return OutcomeIgnored, nil

	default:
		return "", fmt.Errorf("unknown event kind %d", ev.Kind)
	}
}
