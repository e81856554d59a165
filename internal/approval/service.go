package approval

import (
	"context"
	stdErrors "errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	errors "github.com/frahmantamala/atelier/internal"
	courseDatamodel "github.com/frahmantamala/atelier/internal/core/datamodel/course"
	paymentDatamodel "github.com/frahmantamala/atelier/internal/core/datamodel/payment"
	"github.com/frahmantamala/atelier/internal/core/database"
	"github.com/frahmantamala/atelier/internal/core/events"
	"github.com/frahmantamala/atelier/internal/course"
	"gorm.io/gorm"
)

type Repository interface {
	Create(ctx context.Context, r *paymentDatamodel.PaymentRequest) error
	GetByID(ctx context.Context, id int64) (*paymentDatamodel.PaymentRequest, error)
	FindPending(ctx context.Context, userID, courseID int64) (*paymentDatamodel.PaymentRequest, error)
	ListByUser(ctx context.Context, userID int64, limit, offset int) ([]*paymentDatamodel.PaymentRequest, error)
	List(ctx context.Context, status string, limit, offset int) ([]*paymentDatamodel.PaymentRequest, error)
	// Transition applies updates only while the row is still pending.
	Transition(ctx context.Context, id int64, status string, updates map[string]interface{}) (bool, error)
}

type CourseReader interface {
	GetCourse(ctx context.Context, courseID int64) (*course.Course, error)
}

type RosterWriter interface {
	IsEnrolled(ctx context.Context, courseID, userID int64) (bool, error)
	Enroll(ctx context.Context, entry course.StudentEntry) (bool, error)
}

type ProofStore interface {
	PresignUpload(ctx context.Context, userID int64, filename, contentType string) (*ProofUpload, error)
}

type EventPublisher interface {
	Publish(ctx context.Context, event events.Event) error
}

type ServiceAPI interface {
	Submit(ctx context.Context, caller *errors.User, req *SubmitRequest) (*PaymentRequest, error)
	Approve(ctx context.Context, admin *errors.User, requestID int64, notes string) (*PaymentRequest, error)
	Reject(ctx context.Context, admin *errors.User, requestID int64, notes string) (*PaymentRequest, error)
	Cancel(ctx context.Context, caller *errors.User, requestID int64) (*PaymentRequest, error)
	ListMine(ctx context.Context, caller *errors.User, limit, offset int) ([]*PaymentRequest, error)
	List(ctx context.Context, status string, limit, offset int) ([]*PaymentRequest, error)
	PresignProofUpload(ctx context.Context, caller *errors.User, req *ProofUploadRequest) (*ProofUpload, error)
}

// Service is the manual enrollment path: a student submits proof of an
// off-gateway payment and an admin approves or rejects it.
type Service struct {
	repo       Repository
	courses    CourseReader
	roster     RosterWriter
	proofs     ProofStore
	publisher  EventPublisher
	transactor database.Transactor
	logger     *slog.Logger
	now        func() time.Time
}

func NewService(repo Repository, courses CourseReader, roster RosterWriter, proofs ProofStore, publisher EventPublisher, transactor database.Transactor, logger *slog.Logger) *Service {
	return &Service{
		repo:       repo,
		courses:    courses,
		roster:     roster,
		proofs:     proofs,
		publisher:  publisher,
		transactor: transactor,
		logger:     logger,
		now:        time.Now,
	}
}

func (s *Service) Submit(ctx context.Context, caller *errors.User, req *SubmitRequest) (*PaymentRequest, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	var created *paymentDatamodel.PaymentRequest
	err := s.transactor.WithinTransaction(ctx, func(ctx context.Context) error {
		c, err := s.courses.GetCourse(ctx, req.CourseID)
		if err != nil {
			return err
		}
		if !c.IsPayable() {
			return errors.ErrCourseNotPayable
		}

		enrolled, err := s.roster.IsEnrolled(ctx, req.CourseID, caller.ID)
		if err != nil {
			return err
		}
		if enrolled {
			return errors.ErrAlreadyEnrolled
		}

		existing, err := s.repo.FindPending(ctx, caller.ID, req.CourseID)
		if err != nil {
			return fmt.Errorf("failed to check pending requests: %w", err)
		}
		if existing != nil {
			return errors.ErrRequestPending.WithDetails(map[string]interface{}{"request_id": existing.ID})
		}

		record := &paymentDatamodel.PaymentRequest{
			UserID:        caller.ID,
			CourseID:      req.CourseID,
			Amount:        c.Price,
			Currency:      c.Currency,
			PaymentMethod: req.PaymentMethod,
			TransactionID: strings.TrimSpace(req.TransactionID),
			Status:        paymentDatamodel.RequestStatusPending,
		}
		if req.ProofURL != "" {
			url, filename := req.ProofURL, req.ProofFilename
			uploadedAt := s.now().UTC()
			record.ProofURL = &url
			record.ProofFilename = &filename
			record.ProofUploadedAt = &uploadedAt
		}

		if err := s.repo.Create(ctx, record); err != nil {
			if stdErrors.Is(err, gorm.ErrDuplicatedKey) {
				return errors.ErrRequestPending
			}
			return fmt.Errorf("failed to create payment request: %w", err)
		}
		created = record
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("payment request submitted",
		"request_id", created.ID,
		"user_id", created.UserID,
		"course_id", created.CourseID,
		"payment_method", created.PaymentMethod)
	return FromDataModel(created), nil
}

// Approve re-checks enrollment at approval time. A user enrolled by another
// path since submission gets ErrAlreadyEnrolled and the request stays pending.
func (s *Service) Approve(ctx context.Context, admin *errors.User, requestID int64, notes string) (*PaymentRequest, error) {
	if !admin.IsAdmin() {
		return nil, errors.ErrAdminRequired
	}

	var approved *paymentDatamodel.PaymentRequest
	err := s.transactor.WithinTransaction(ctx, func(ctx context.Context) error {
		record, err := s.pendingRequest(ctx, requestID)
		if err != nil {
			return err
		}

		enrolled, err := s.roster.IsEnrolled(ctx, record.CourseID, record.UserID)
		if err != nil {
			return err
		}
		if enrolled {
			return errors.ErrAlreadyEnrolled
		}

		adminID := admin.ID
		added, err := s.roster.Enroll(ctx, course.StudentEntry{
			CourseID:        record.CourseID,
			UserID:          record.UserID,
			EnrolledThrough: courseDatamodel.EnrolledThroughManualGrant,
			PaymentMethod:   record.PaymentMethod,
			PaymentAmount:   record.Amount,
			GrantedBy:       &adminID,
			EnrolledAt:      s.now().UTC(),
		})
		if err != nil {
			return err
		}
		if !added {
			return errors.ErrAlreadyEnrolled
		}

		if err := s.review(ctx, record, paymentDatamodel.RequestStatusApproved, admin.ID, notes); err != nil {
			return err
		}
		approved = record

		database.AfterCommit(ctx, func() {
			s.publish(ctx, events.NewEnrollmentCompletedEvent(record.CourseID, record.UserID,
				courseDatamodel.EnrolledThroughManualGrant, record.PaymentMethod, record.Amount, record.Currency, record.TransactionID))
			s.publish(ctx, events.NewRequestReviewedEvent(record.ID, record.CourseID, record.UserID, admin.ID,
				paymentDatamodel.RequestStatusApproved, notes))
		})
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("payment request approved",
		"request_id", approved.ID,
		"user_id", approved.UserID,
		"course_id", approved.CourseID,
		"admin_id", admin.ID)
	return FromDataModel(approved), nil
}

func (s *Service) Reject(ctx context.Context, admin *errors.User, requestID int64, notes string) (*PaymentRequest, error) {
	if !admin.IsAdmin() {
		return nil, errors.ErrAdminRequired
	}

	var rejected *paymentDatamodel.PaymentRequest
	err := s.transactor.WithinTransaction(ctx, func(ctx context.Context) error {
		record, err := s.pendingRequest(ctx, requestID)
		if err != nil {
			return err
		}
		if err := s.review(ctx, record, paymentDatamodel.RequestStatusRejected, admin.ID, notes); err != nil {
			return err
		}
		rejected = record

		database.AfterCommit(ctx, func() {
			s.publish(ctx, events.NewRequestReviewedEvent(record.ID, record.CourseID, record.UserID, admin.ID,
				paymentDatamodel.RequestStatusRejected, notes))
		})
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("payment request rejected", "request_id", rejected.ID, "admin_id", admin.ID)
	return FromDataModel(rejected), nil
}

// Cancel lets the owner withdraw a request that is still pending.
func (s *Service) Cancel(ctx context.Context, caller *errors.User, requestID int64) (*PaymentRequest, error) {
	var cancelled *paymentDatamodel.PaymentRequest
	err := s.transactor.WithinTransaction(ctx, func(ctx context.Context) error {
		record, err := s.repo.GetByID(ctx, requestID)
		if err != nil {
			return fmt.Errorf("failed to load payment request: %w", err)
		}
		if record == nil || record.UserID != caller.ID {
			return errors.ErrRequestNotFound
		}
		if record.IsTerminal() {
			return errors.ErrInvalidStatus
		}

		now := s.now().UTC()
		ok, err := s.repo.Transition(ctx, record.ID, paymentDatamodel.RequestStatusCancelled, map[string]interface{}{
			"updated_at": now,
		})
		if err != nil {
			return fmt.Errorf("failed to cancel payment request: %w", err)
		}
		if !ok {
			return errors.ErrInvalidStatus
		}
		record.Status = paymentDatamodel.RequestStatusCancelled
		cancelled = record
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("payment request cancelled", "request_id", cancelled.ID, "user_id", caller.ID)
	return FromDataModel(cancelled), nil
}

func (s *Service) ListMine(ctx context.Context, caller *errors.User, limit, offset int) ([]*PaymentRequest, error) {
	rows, err := s.repo.ListByUser(ctx, caller.ID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to list payment requests: %w", err)
	}
	return FromDataModels(rows), nil
}

func (s *Service) List(ctx context.Context, status string, limit, offset int) ([]*PaymentRequest, error) {
	switch status {
	case "", paymentDatamodel.RequestStatusPending, paymentDatamodel.RequestStatusApproved,
		paymentDatamodel.RequestStatusRejected, paymentDatamodel.RequestStatusCancelled:
	default:
		return nil, errors.NewValidationFieldError("status", "unknown status", errors.ErrCodeValidationFailed)
	}

	rows, err := s.repo.List(ctx, status, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to list payment requests: %w", err)
	}
	return FromDataModels(rows), nil
}

func (s *Service) PresignProofUpload(ctx context.Context, caller *errors.User, req *ProofUploadRequest) (*ProofUpload, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	if s.proofs == nil {
		return nil, errors.NewExternalError("proof storage is not configured", errors.ErrCodeGatewayFailed, nil)
	}

	upload, err := s.proofs.PresignUpload(ctx, caller.ID, req.Filename, req.ContentType)
	if err != nil {
		return nil, errors.NewExternalError("failed to prepare proof upload", errors.ErrCodeGatewayFailed, err)
	}
	return upload, nil
}

func (s *Service) pendingRequest(ctx context.Context, requestID int64) (*paymentDatamodel.PaymentRequest, error) {
	record, err := s.repo.GetByID(ctx, requestID)
	if err != nil {
		return nil, fmt.Errorf("failed to load payment request: %w", err)
	}
	if record == nil {
		return nil, errors.ErrRequestNotFound
	}
	if record.IsTerminal() {
		return nil, errors.ErrInvalidStatus
	}
	return record, nil
}

// review moves a pending request to a terminal status. approved_by and
// approved_at record the reviewer for either outcome.
func (s *Service) review(ctx context.Context, record *paymentDatamodel.PaymentRequest, status string, adminID int64, notes string) error {
	now := s.now().UTC()
	updates := map[string]interface{}{
		"approved_by": adminID,
		"approved_at": now,
		"updated_at":  now,
	}
	if notes != "" {
		updates["admin_notes"] = notes
	}

	ok, err := s.repo.Transition(ctx, record.ID, status, updates)
	if err != nil {
		return fmt.Errorf("failed to update payment request: %w", err)
	}
	if !ok {
		return errors.ErrInvalidStatus
	}

	record.Status = status
	record.ApprovedBy = &adminID
	record.ApprovedAt = &now
	if notes != "" {
		record.AdminNotes = &notes
	}
	return nil
}

func (s *Service) publish(ctx context.Context, event events.Event) {
	if err := s.publisher.Publish(ctx, event); err != nil {
		s.logger.Error("failed to publish event", "event_type", event.EventType(), "event_id", event.EventID(), "error", err)
	}
}
