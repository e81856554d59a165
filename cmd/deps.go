package cmd

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/aws/aws-sdk-go-v2/aws"
	awscfg "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/frahmantamala/atelier/internal"
	"github.com/frahmantamala/atelier/internal/approval"
	approvalPostgres "github.com/frahmantamala/atelier/internal/approval/postgres"
	"github.com/frahmantamala/atelier/internal/checkout"
	checkoutPostgres "github.com/frahmantamala/atelier/internal/checkout/postgres"
	"github.com/frahmantamala/atelier/internal/core/database"
	"github.com/frahmantamala/atelier/internal/core/events"
	"github.com/frahmantamala/atelier/internal/course"
	coursePostgres "github.com/frahmantamala/atelier/internal/course/postgres"
	"github.com/frahmantamala/atelier/internal/enrollment"
	"github.com/frahmantamala/atelier/internal/gateway"
	"github.com/frahmantamala/atelier/internal/notification"
	notificationPostgres "github.com/frahmantamala/atelier/internal/notification/postgres"
	"github.com/frahmantamala/atelier/internal/payment"
	paymentPostgres "github.com/frahmantamala/atelier/internal/payment/postgres"
	"github.com/frahmantamala/atelier/internal/progress"
	progressPostgres "github.com/frahmantamala/atelier/internal/progress/postgres"
	"github.com/frahmantamala/atelier/internal/user"
	userPostgres "github.com/frahmantamala/atelier/internal/user/postgres"
	"github.com/frahmantamala/atelier/internal/webhook"
	webhookPostgres "github.com/frahmantamala/atelier/internal/webhook/postgres"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/jmoiron/sqlx"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormLogger "gorm.io/gorm/logger"
)

// Services is the wired domain graph shared by the server, worker and CLI commands.
type Services struct {
	Transactor   *database.GormTransactor
	Bus          *events.EventBus
	Users        *user.Service
	Courses      *course.Service
	Enroller     *course.Enroller
	Tracker      *checkout.Tracker
	Checkout     *checkout.Service
	Reports      *checkoutPostgres.ReportRepository
	Pending      *checkoutPostgres.PendingRepository
	Ledger       *payment.Ledger
	Committer    *enrollment.Committer
	Dispatcher   *webhook.Dispatcher
	Approval     *approval.Service
	Notification *notification.Service
	Stripe       *gateway.StripeClient
	Khalti       *gateway.KhaltiClient
}

// initDB opens the pgx pool through sqlx and layers gorm on the same *sql.DB.
func initDB(cfg internal.DatabaseConfig) (*sqlx.DB, *gorm.DB, error) {
	const driver = "pgx"

	dbConn, err := sqlx.Connect(driver, cfg.GetDSN())
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open db connection: %w", err)
	}

	dbConn.SetMaxIdleConns(cfg.MaxIdleConns)
	dbConn.SetMaxOpenConns(cfg.MaxOpenConns)
	dbConn.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	dbConn.SetConnMaxIdleTime(cfg.ConnMaxIdleTime)

	gormDB, err := gorm.Open(postgres.New(postgres.Config{Conn: dbConn.DB}), &gorm.Config{
		TranslateError: true,
		Logger:         gormLogger.Default.LogMode(gormLogger.Warn),
	})
	if err != nil {
		_ = dbConn.Close()
		return nil, nil, fmt.Errorf("failed to open gorm: %w", err)
	}

	return dbConn, gormDB, nil
}

func newPresigner(ctx context.Context, cfg internal.StorageConfig) (*s3.PresignClient, error) {
	var opts []func(*awscfg.LoadOptions) error
	if cfg.Region != "" {
		opts = append(opts, awscfg.WithRegion(cfg.Region))
	}

	awsCfg, err := awscfg.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load aws config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.UsePathStyle = true
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		}
	})
	return s3.NewPresignClient(client), nil
}

func buildServices(ctx context.Context, cfg *internal.Config, sqlxDB *sqlx.DB, db *gorm.DB, logger *slog.Logger) (*Services, error) {
	transactor := database.NewTransactor(db)
	bus := events.NewEventBus(logger)

	userRepo := userPostgres.NewUserRepository(db)
	courseRepo := coursePostgres.NewCourseRepository(db)
	progressRepo := progressPostgres.NewProgressRepository(db)
	pendingRepo := checkoutPostgres.NewPendingRepository(db)
	paymentRepo := paymentPostgres.NewPaymentRepository(db)
	requestRepo := approvalPostgres.NewRequestRepository(db)
	eventRepo := webhookPostgres.NewEventRepository(db)
	notificationRepo := notificationPostgres.NewNotificationRepository(db)

	userService := user.NewService(userRepo)
	initializer := progress.NewInitializer(progressRepo, courseRepo, logger)
	enroller := course.NewEnroller(courseRepo, initializer, transactor, logger)
	courseService := course.NewService(courseRepo, enroller, transactor, bus, logger)
	ledger := payment.NewLedger(paymentRepo, transactor, logger)
	tracker := checkout.NewTracker(pendingRepo, courseService, enroller, transactor, logger)

	svc := &Services{
		Transactor: transactor,
		Bus:        bus,
		Users:      userService,
		Courses:    courseService,
		Enroller:   enroller,
		Tracker:    tracker,
		Reports:    checkoutPostgres.NewReportRepository(sqlxDB),
		Pending:    pendingRepo,
		Ledger:     ledger,
	}

	var intents []checkout.IntentCreator
	if cfg.Payment.StripeEnabled() {
		svc.Stripe = gateway.NewStripeClient(cfg.Payment.Stripe, logger)
		intents = append(intents, svc.Stripe)
	}
	if cfg.Payment.KhaltiEnabled() {
		svc.Khalti = gateway.NewKhaltiClient(cfg.Payment.Khalti, logger)
		intents = append(intents, svc.Khalti)
	}
	svc.Checkout = checkout.NewService(tracker, cfg.Payment, logger, intents...)

	svc.Committer = enrollment.NewCommitter(pendingRepo, courseService, userService, enroller, ledger, bus, transactor, logger)
	svc.Dispatcher = webhook.NewDispatcher(eventRepo, svc.Committer, transactor, logger)

	var proofs approval.ProofStore
	if cfg.Storage.Bucket != "" {
		presigner, err := newPresigner(ctx, cfg.Storage)
		if err != nil {
			return nil, err
		}
		proofs = approval.NewS3ProofStore(presigner, cfg.Storage)
	}
	svc.Approval = approval.NewService(requestRepo, courseService, enroller, proofs, bus, transactor, logger)

	var sender notification.EmailSender
	if cfg.Notification.Enabled {
		sender = notification.NewSMTPSender(cfg.Notification)
	}
	svc.Notification = notification.NewService(notificationRepo, courseService, userService, sender, logger)
	svc.Notification.RegisterEventHandlers(bus)

	return svc, nil
}
