package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/bs1gr/AUT-MIEEK-SMS-sub003/internal/microservices/http-api/dto"
	"github.com/bs1gr/AUT-MIEEK-SMS-sub003/internal/microservices/http-api/models"
	"github.com/bs1gr/AUT-MIEEK-SMS-sub003/internal/microservices/http-api/repository"
	wire "github.com/bs1gr/AUT-MIEEK-SMS-sub003/pkg/models"
)

var (
	ErrNotificationNotFound = errors.New("notification not found")
	ErrInvalidNotification  = errors.New("invalid notification")
)

// EventPublisher fans push events out to the user's open channels
type EventPublisher interface {
	Publish(ctx context.Context, userID string, ev *wire.Event) error
}

type NotificationService interface {
	List(ctx context.Context, userID string, q dto.ListNotificationsQuery) (*wire.NotificationPage, error)
	UnreadCount(ctx context.Context, userID string) (int, error)
	MarkAsRead(ctx context.Context, userID string, notificationID int64) error
	MarkAllAsRead(ctx context.Context, userID string) error
	Delete(ctx context.Context, userID string, notificationID int64) error
	Create(ctx context.Context, req dto.CreateNotificationRequest) (*wire.Notification, error)
}

type notificationService struct {
	repo      repository.NotificationRepository
	publisher EventPublisher
	logger    *slog.Logger
	now       func() time.Time
}

func NewNotificationService(repo repository.NotificationRepository, publisher EventPublisher, logger *slog.Logger) NotificationService {
	if logger == nil {
		logger = slog.Default()
	}
	return &notificationService{repo: repo, publisher: publisher, logger: logger, now: time.Now}
}

func (s *notificationService) List(ctx context.Context, userID string, q dto.ListNotificationsQuery) (*wire.NotificationPage, error) {
	limit := q.Limit
	if limit <= 0 {
		limit = dto.DefaultPageLimit
	}
	limit = min(limit, dto.MaxPageLimit)

	rows, total, err := s.repo.ListByUser(ctx, userID, max(q.Skip, 0), limit, q.UnreadOnly)
	if err != nil {
		return nil, err
	}
	unread, err := s.repo.CountUnread(ctx, userID)
	if err != nil {
		return nil, err
	}
	return &wire.NotificationPage{
		Items:       dto.ToNotificationResponses(rows),
		Total:       int(total),
		UnreadCount: int(unread),
	}, nil
}

func (s *notificationService) UnreadCount(ctx context.Context, userID string) (int, error) {
	n, err := s.repo.CountUnread(ctx, userID)
	return int(n), err
}

// MarkAsRead is idempotent: an already read notification succeeds without an event
func (s *notificationService) MarkAsRead(ctx context.Context, userID string, notificationID int64) error {
	if _, err := s.owned(ctx, userID, notificationID); err != nil {
		return err
	}

	at := s.now().UTC()
	changed, err := s.repo.MarkAsRead(ctx, notificationID, at)
	if err != nil {
		return err
	}
	if changed {
		s.publish(ctx, userID, &wire.Event{
			Type:           wire.EventNotificationRead,
			NotificationID: notificationID,
			Timestamp:      at,
		})
	}
	return nil
}

func (s *notificationService) MarkAllAsRead(ctx context.Context, userID string) error {
	at := s.now().UTC()
	changed, err := s.repo.MarkAllAsRead(ctx, userID, at)
	if err != nil {
		return err
	}
	if changed > 0 {
		s.publish(ctx, userID, &wire.Event{Type: wire.EventNotificationsRead, Timestamp: at})
	}
	return nil
}

func (s *notificationService) Delete(ctx context.Context, userID string, notificationID int64) error {
	if _, err := s.owned(ctx, userID, notificationID); err != nil {
		return err
	}
	if err := s.repo.Delete(ctx, notificationID); err != nil {
		if errors.Is(err, repository.ErrNotificationNotFound) {
			return ErrNotificationNotFound
		}
		return err
	}
	s.publish(ctx, userID, &wire.Event{
		Type:           wire.EventNotificationDeleted,
		NotificationID: notificationID,
		Timestamp:      s.now().UTC(),
	})
	return nil
}

func (s *notificationService) Create(ctx context.Context, req dto.CreateNotificationRequest) (*wire.Notification, error) {
	if !req.Type.Valid() {
		return nil, fmt.Errorf("%w: unknown type %q", ErrInvalidNotification, req.Type)
	}
	if req.Priority == "" {
		req.Priority = wire.PriorityNormal
	}
	if !req.Priority.Valid() {
		return nil, fmt.Errorf("%w: unknown priority %q", ErrInvalidNotification, req.Priority)
	}

	row := &models.Notification{
		UserID:    req.UserID,
		Type:      string(req.Type),
		Title:     req.Title,
		Message:   req.Message,
		Data:      req.Data,
		Priority:  string(req.Priority),
		Icon:      req.Icon,
		CreatedAt: s.now().UTC(),
	}
	if err := s.repo.Create(ctx, row); err != nil {
		return nil, err
	}

	out := dto.ToNotificationResponse(row)
	s.publish(ctx, req.UserID, &wire.Event{
		Type:         wire.EventNotification,
		Notification: &out,
		Timestamp:    row.CreatedAt,
	})
	return &out, nil
}

// owned hides other users' notifications behind ErrNotificationNotFound
func (s *notificationService) owned(ctx context.Context, userID string, notificationID int64) (*models.Notification, error) {
	n, err := s.repo.FindByID(ctx, notificationID)
	if errors.Is(err, repository.ErrNotificationNotFound) {
		return nil, ErrNotificationNotFound
	}
	if err != nil {
		return nil, err
	}
	if n.UserID != userID {
		return nil, ErrNotificationNotFound
	}
	return n, nil
}

// publish failures are logged only; the pull channel reconciles missed events
func (s *notificationService) publish(ctx context.Context, userID string, ev *wire.Event) {
	if s.publisher == nil {
		return
	}
	ev.UserID = userID
	if err := s.publisher.Publish(ctx, userID, ev); err != nil {
		s.logger.Warn("notification_publish_failed",
			slog.String("user_id", userID),
			slog.String("event", string(ev.Type)),
			slog.Any("error", err),
		)
	}
}
