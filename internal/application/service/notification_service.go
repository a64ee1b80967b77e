package service

import (
	"context"
	"fmt"

	"github.com/garyjia/erp-workflow/internal/application/dispatcher"
	"github.com/garyjia/erp-workflow/internal/application/port"
	"github.com/garyjia/erp-workflow/internal/domain/apperror"
	"github.com/garyjia/erp-workflow/internal/domain/entity"
	"github.com/garyjia/erp-workflow/internal/domain/event"
)

const (
	defaultNotificationLimit = 50
	maxNotificationLimit     = 200
)

// NotificationService exposes a user's in-app notifications
type NotificationService interface {
	ListForUser(ctx context.Context, companyID, userID int64, unreadOnly bool, limit int) ([]*entity.Notification, error)
	MarkRead(ctx context.Context, companyID, userID, id int64) error
}

type notificationServiceImpl struct {
	notifications port.NotificationRepository
	logger        Logger
}

// NewNotificationService creates a new NotificationService
func NewNotificationService(notifications port.NotificationRepository, logger Logger) NotificationService {
	return &notificationServiceImpl{
		notifications: notifications,
		logger:        logger,
	}
}

func (s *notificationServiceImpl) ListForUser(ctx context.Context, companyID, userID int64, unreadOnly bool, limit int) ([]*entity.Notification, error) {
	if limit <= 0 {
		limit = defaultNotificationLimit
	}
	if limit > maxNotificationLimit {
		limit = maxNotificationLimit
	}
	list, err := s.notifications.ListForUser(ctx, companyID, userID, unreadOnly, limit)
	if err != nil {
		return nil, err
	}
	if list == nil {
		list = []*entity.Notification{}
	}
	return list, nil
}

func (s *notificationServiceImpl) MarkRead(ctx context.Context, companyID, userID, id int64) error {
	ok, err := s.notifications.MarkRead(ctx, companyID, userID, id)
	if err != nil {
		return err
	}
	if !ok {
		return apperror.NotFound("notification", id)
	}
	return nil
}

// SubmitterNotifier tells the original submitter that their document reached a final outcome
type SubmitterNotifier struct {
	notifications port.NotificationRepository
	linkPrefix    string
	logger        Logger
}

// NewSubmitterNotifier creates the observer; linkPrefix is prepended to the instance id
func NewSubmitterNotifier(notifications port.NotificationRepository, linkPrefix string, logger Logger) *SubmitterNotifier {
	return &SubmitterNotifier{
		notifications: notifications,
		linkPrefix:    linkPrefix,
		logger:        logger,
	}
}

// Register subscribes the notifier to terminal instance events
func (n *SubmitterNotifier) Register(d dispatcher.Dispatcher) {
	d.Subscribe("submitter-notifier", n.Handle,
		event.TypeInstanceApproved,
		event.TypeInstanceRejected,
		event.TypeInstanceReturned,
	)
}

// Handle writes one notification for the submitter of the event's instance
func (n *SubmitterNotifier) Handle(ctx context.Context, evt *event.Event) error {
	submitter := evt.GetPayloadInt("submitted_by")
	if submitter == 0 {
		return fmt.Errorf("event %s has no submitter", evt.ID)
	}

	label := entity.DocumentKind(evt.DocumentType).Label()
	number := evt.GetPayloadString("number")

	var outcome string
	switch evt.Type {
	case event.TypeInstanceApproved:
		outcome = "approved"
	case event.TypeInstanceRejected:
		outcome = "rejected"
	case event.TypeInstanceReturned:
		outcome = "returned for changes"
	default:
		return nil
	}

	message := fmt.Sprintf("%s %s was %s", label, number, outcome)
	if c := evt.GetPayloadString("comments"); c != "" {
		message += ": " + c
	}

	err := n.notifications.Create(ctx, &entity.Notification{
		CompanyID: evt.CompanyID,
		UserID:    submitter,
		Title:     fmt.Sprintf("%s %s", label, outcome),
		Message:   message,
		Link:      fmt.Sprintf("%s%d", n.linkPrefix, evt.InstanceID),
	})
	if err != nil {
		return err
	}
	n.logger.Info("Submitter notified", "instance_id", evt.InstanceID, "user_id", submitter, "event_type", evt.Type)
	return nil
}
