package notification

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
	"github.com/terminal-bench/incidenthub/internal/models"
)

const recentListLength = 100

// Store is the persistence contract for notification records.
type Store interface {
	Create(ctx context.Context, n *models.Notification) error
	MarkEmailSent(ctx context.Context, id uuid.UUID) error
}

// UserLookup resolves a recipient for email delivery.
type UserLookup interface {
	GetByID(ctx context.Context, id uuid.UUID) (*models.User, error)
}

// Mailer is the outbound email transport.
type Mailer interface {
	Send(ctx context.Context, to *models.User, n models.Notification) error
}

// Service accepts notification records and delivers them best-effort. Notify
// persists the record synchronously and hands delivery (redis fan-out,
// in-process subscribers, email) to a queue drained by Run, so callers never
// block on delivery work.
type Service struct {
	store  Store
	users  UserLookup
	redis  *redis.Client
	mailer Mailer

	mu          sync.RWMutex
	subscribers map[uuid.UUID][]chan models.Notification

	queue chan models.Notification
}

// NewService creates a new notification service. The redis client and mailer
// may be nil; the corresponding delivery channels are then skipped.
func NewService(store Store, users UserLookup, rdb *redis.Client, mailer Mailer) *Service {
	return &Service{
		store:       store,
		users:       users,
		redis:       rdb,
		mailer:      mailer,
		subscribers: make(map[uuid.UUID][]chan models.Notification),
		queue:       make(chan models.Notification, 256),
	}
}

// Notify records a notification for a user and queues its delivery. The
// record is persisted before Notify returns; everything after that is
// best-effort and handled off the caller's path.
func (s *Service) Notify(ctx context.Context, kind, message string, recipientID uuid.UUID, entityType string, entityID uuid.UUID, data map[string]interface{}) error {
	var dataJSON json.RawMessage
	if data != nil {
		var err error
		dataJSON, err = json.Marshal(data)
		if err != nil {
			return fmt.Errorf("failed to marshal notification data: %w", err)
		}
	}

	n := models.Notification{
		ID:          uuid.New(),
		Kind:        kind,
		Message:     message,
		RecipientID: recipientID,
		EntityType:  entityType,
		EntityID:    entityID,
		Data:        dataJSON,
		CreatedAt:   time.Now(),
	}

	if err := s.store.Create(ctx, &n); err != nil {
		return fmt.Errorf("failed to persist notification: %w", err)
	}

	select {
	case s.queue <- n:
	default:
		// The record is already durable; only the push delivery is lost.
		log.Warn().
			Str("notification_id", n.ID.String()).
			Msg("delivery queue full, skipping push delivery")
	}
	return nil
}

// Run drains the delivery queue until the context is cancelled.
func (s *Service) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case n := <-s.queue:
			s.deliver(context.Background(), n)
		}
	}
}

// deliver pushes one notification through every best-effort channel.
// Failures are logged and never retried here; the persisted record remains
// the source of truth.
func (s *Service) deliver(ctx context.Context, n models.Notification) {
	if s.redis != nil {
		payload, err := json.Marshal(n)
		if err == nil {
			key := fmt.Sprintf("notifications:%s", n.RecipientID.String())
			if err := s.redis.LPush(ctx, key, payload).Err(); err != nil {
				log.Error().Err(err).Str("notification_id", n.ID.String()).Msg("failed to push notification to redis")
			} else {
				s.redis.LTrim(ctx, key, 0, recentListLength-1)
			}
			if err := s.redis.Publish(ctx, "notifications", payload).Err(); err != nil {
				log.Error().Err(err).Str("notification_id", n.ID.String()).Msg("failed to publish notification")
			}
		}
	}

	s.broadcast(n)
	s.sendEmail(ctx, n)
}

// broadcast fans the notification out to in-process subscribers. Slow
// subscribers are skipped rather than blocking the delivery worker.
func (s *Service) broadcast(n models.Notification) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, ch := range s.subscribers[n.RecipientID] {
		select {
		case ch <- n:
		default:
		}
	}
}

func (s *Service) sendEmail(ctx context.Context, n models.Notification) {
	if s.mailer == nil {
		return
	}

	user, err := s.users.GetByID(ctx, n.RecipientID)
	if err != nil {
		log.Error().Err(err).Str("recipient_id", n.RecipientID.String()).Msg("failed to look up notification recipient")
		return
	}
	if user == nil || user.Email == "" {
		log.Warn().Str("recipient_id", n.RecipientID.String()).Msg("notification recipient has no email address")
		return
	}

	if err := s.mailer.Send(ctx, user, n); err != nil {
		log.Error().Err(err).
			Str("notification_id", n.ID.String()).
			Str("recipient_id", n.RecipientID.String()).
			Msg("failed to send notification email")
		return
	}

	if err := s.store.MarkEmailSent(ctx, n.ID); err != nil {
		log.Error().Err(err).Str("notification_id", n.ID.String()).Msg("failed to record email delivery")
	}
}

// Subscribe registers an in-process listener for a user's notifications.
// The returned cleanup removes the subscription and closes the channel.
func (s *Service) Subscribe(userID uuid.UUID) (<-chan models.Notification, func()) {
	ch := make(chan models.Notification, 8)

	s.mu.Lock()
	s.subscribers[userID] = append(s.subscribers[userID], ch)
	s.mu.Unlock()

	cleanup := func() {
		s.mu.Lock()
		defer s.mu.Unlock()

		subs := s.subscribers[userID]
		for i, sub := range subs {
			if sub == ch {
				s.subscribers[userID] = append(subs[:i], subs[i+1:]...)
				close(ch)
				break
			}
		}
	}
	return ch, cleanup
}

// GetRecent retrieves a user's most recent notifications from the redis list.
func (s *Service) GetRecent(ctx context.Context, userID uuid.UUID, limit int) ([]models.Notification, error) {
	if s.redis == nil {
		return nil, fmt.Errorf("redis not configured")
	}

	key := fmt.Sprintf("notifications:%s", userID.String())
	items, err := s.redis.LRange(ctx, key, 0, int64(limit-1)).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to get recent notifications: %w", err)
	}

	notifications := make([]models.Notification, 0, len(items))
	for _, item := range items {
		var n models.Notification
		if err := json.Unmarshal([]byte(item), &n); err != nil {
			continue
		}
		notifications = append(notifications, n)
	}
	return notifications, nil
}

// LogMailer is a placeholder email transport that only logs the send. The
// real transport is an external collaborator.
type LogMailer struct{}

// Send implements Mailer
func (LogMailer) Send(_ context.Context, to *models.User, n models.Notification) error {
	log.Info().
		Str("email", to.Email).
		Str("kind", n.Kind).
		Str("message", n.Message).
		Msg("email notification dispatched")
	return nil
}
