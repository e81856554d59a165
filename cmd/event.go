package cmd

import (
	"context"
	"fmt"
	"os"

	courseDatamodel "github.com/frahmantamala/atelier/internal/core/datamodel/course"
	paymentDatamodel "github.com/frahmantamala/atelier/internal/core/datamodel/payment"
	"github.com/frahmantamala/atelier/internal/core/events"
	"github.com/frahmantamala/atelier/pkg/logger"
	"github.com/spf13/cobra"
)

var eventCmd = &cobra.Command{
	Use:   "event",
	Short: "Event management commands",
	Long:  `Replay domain events through the registered subscribers`,
}

var publishEventCmd = &cobra.Command{
	Use:   "publish [event-type]",
	Short: "Publish a domain event synchronously",
	Long: `Publish enrollment.completed, payment_request.reviewed or payment.failed to the
in-process subscribers. Useful to resend notifications an operator knows were lost.`,
	Args: cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		if err := publishEvent(args[0]); err != nil {
			fmt.Fprintf(os.Stderr, "event publish: %v\n", err)
			os.Exit(1)
		}
	},
}

var (
	eventCourseID  int64
	eventUserID    int64
	eventThrough   string
	eventStatus    string
	eventNotes     string
	eventReason    string
	eventRequestID int64
)

func buildEvent(eventType string) (events.Event, error) {
	if eventCourseID <= 0 || eventUserID <= 0 {
		return nil, fmt.Errorf("--course and --user are required")
	}

	switch eventType {
	case events.EventTypeEnrollmentCompleted:
		return events.NewEnrollmentCompletedEvent(eventCourseID, eventUserID, eventThrough, "", 0, "", ""), nil
	case events.EventTypeRequestReviewed:
		if eventStatus != paymentDatamodel.RequestStatusApproved && eventStatus != paymentDatamodel.RequestStatusRejected {
			return nil, fmt.Errorf("--status must be %s or %s", paymentDatamodel.RequestStatusApproved, paymentDatamodel.RequestStatusRejected)
		}
		return events.NewRequestReviewedEvent(eventRequestID, eventCourseID, eventUserID, 0, eventStatus, eventNotes), nil
	case events.EventTypePaymentFailed:
		return events.NewPaymentFailedEvent(0, eventCourseID, eventUserID, "", "", eventReason), nil
	default:
		return nil, fmt.Errorf("unsupported event type %q", eventType)
	}
}

func publishEvent(eventType string) error {
	ev, err := buildEvent(eventType)
	if err != nil {
		return err
	}

	cfg, err := loadConfig(configPath)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	log := logger.LoggerWrapper()

	sqlxDB, db, err := initDB(cfg.Database)
	if err != nil {
		return fmt.Errorf("failed to initialize database: %w", err)
	}
	defer sqlxDB.Close()

	ctx := context.Background()
	svc, err := buildServices(ctx, cfg, sqlxDB, db, log)
	if err != nil {
		return err
	}

	log.Info("publishing event", "event_type", ev.EventType(), "event_id", ev.EventID())
	if err := svc.Bus.PublishSync(ctx, ev); err != nil {
		return err
	}

	log.Info("event published successfully", "event_id", ev.EventID())
	return nil
}

func init() {
	publishEventCmd.Flags().Int64Var(&eventCourseID, "course", 0, "Course id")
	publishEventCmd.Flags().Int64Var(&eventUserID, "user", 0, "Student user id")
	publishEventCmd.Flags().StringVar(&eventThrough, "through", courseDatamodel.EnrolledThroughPayment, "enrolled_through for enrollment.completed")
	publishEventCmd.Flags().StringVar(&eventStatus, "status", paymentDatamodel.RequestStatusApproved, "Review status for payment_request.reviewed")
	publishEventCmd.Flags().StringVar(&eventNotes, "notes", "", "Admin notes for payment_request.reviewed")
	publishEventCmd.Flags().Int64Var(&eventRequestID, "request", 0, "Payment request id for payment_request.reviewed")
	publishEventCmd.Flags().StringVar(&eventReason, "reason", "", "Failure reason for payment.failed")

	eventCmd.AddCommand(publishEventCmd)
}
