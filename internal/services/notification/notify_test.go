package notification_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/terminal-bench/incidenthub/internal/models"
	"github.com/terminal-bench/incidenthub/internal/services/notification"
)

type memoryStore struct {
	mu        sync.Mutex
	records   []models.Notification
	emailSent map[uuid.UUID]bool
	createErr error
}

func newMemoryStore() *memoryStore {
	return &memoryStore{emailSent: make(map[uuid.UUID]bool)}
}

func (s *memoryStore) Create(_ context.Context, n *models.Notification) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.createErr != nil {
		return s.createErr
	}
	s.records = append(s.records, *n)
	return nil
}

func (s *memoryStore) MarkEmailSent(_ context.Context, id uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.emailSent[id] = true
	return nil
}

func (s *memoryStore) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.records)
}

type memoryUsers struct {
	users map[uuid.UUID]*models.User
}

func (u *memoryUsers) GetByID(_ context.Context, id uuid.UUID) (*models.User, error) {
	return u.users[id], nil
}

type recordingMailer struct {
	mu   sync.Mutex
	sent []string
	err  error
}

func (m *recordingMailer) Send(_ context.Context, to *models.User, _ models.Notification) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	m.sent = append(m.sent, to.Email)
	return nil
}

func (m *recordingMailer) addresses() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.sent...)
}

func TestNotifyPersistsBeforeReturning(t *testing.T) {
	store := newMemoryStore()
	svc := notification.NewService(store, &memoryUsers{}, nil, nil)

	recipient := uuid.New()
	err := svc.Notify(context.Background(), models.NotificationDueDate, "reminder", recipient,
		models.EntityIncident, uuid.New(), map[string]interface{}{"percent_remaining": 50})
	require.NoError(t, err)
	assert.Equal(t, 1, store.count())
}

func TestNotifySurfacesPersistenceError(t *testing.T) {
	store := newMemoryStore()
	store.createErr = assert.AnError
	svc := notification.NewService(store, &memoryUsers{}, nil, nil)

	err := svc.Notify(context.Background(), models.NotificationEscalation, "escalated", uuid.New(),
		models.EntityIncident, uuid.New(), nil)
	assert.Error(t, err)
}

func TestSubscriberReceivesDeliveredNotification(t *testing.T) {
	store := newMemoryStore()
	svc := notification.NewService(store, &memoryUsers{users: map[uuid.UUID]*models.User{}}, nil, nil)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go svc.Run(ctx)

	recipient := uuid.New()
	ch, cleanup := svc.Subscribe(recipient)
	defer cleanup()

	require.NoError(t, svc.Notify(context.Background(), models.NotificationAssignment, "assigned",
		recipient, models.EntityIncident, uuid.New(), nil))

	select {
	case n := <-ch:
		assert.Equal(t, models.NotificationAssignment, n.Kind)
		assert.Equal(t, recipient, n.RecipientID)
	case <-time.After(2 * time.Second):
		t.Fatal("timeout waiting for notification")
	}
}

func TestEmailDeliveryMarksRecord(t *testing.T) {
	recipient := uuid.New()
	store := newMemoryStore()
	users := &memoryUsers{users: map[uuid.UUID]*models.User{
		recipient: {ID: recipient, Email: "oncall@example.com"},
	}}
	mailer := &recordingMailer{}
	svc := notification.NewService(store, users, nil, mailer)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go svc.Run(ctx)

	require.NoError(t, svc.Notify(context.Background(), models.NotificationEscalation, "escalated",
		recipient, models.EntityIncident, uuid.New(), nil))

	assert.Eventually(t, func() bool {
		return len(mailer.addresses()) == 1
	}, 2*time.Second, 10*time.Millisecond)
	assert.Equal(t, []string{"oncall@example.com"}, mailer.addresses())

	store.mu.Lock()
	id := store.records[0].ID
	store.mu.Unlock()
	assert.Eventually(t, func() bool {
		store.mu.Lock()
		defer store.mu.Unlock()
		return store.emailSent[id]
	}, 2*time.Second, 10*time.Millisecond)
}

func TestMailerFailureDoesNotAffectCaller(t *testing.T) {
	recipient := uuid.New()
	store := newMemoryStore()
	users := &memoryUsers{users: map[uuid.UUID]*models.User{
		recipient: {ID: recipient, Email: "oncall@example.com"},
	}}
	mailer := &recordingMailer{err: assert.AnError}
	svc := notification.NewService(store, users, nil, mailer)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go svc.Run(ctx)

	err := svc.Notify(context.Background(), models.NotificationEscalation, "escalated",
		recipient, models.EntityIncident, uuid.New(), nil)
	assert.NoError(t, err, "delivery failure must not surface to the caller")
	assert.Equal(t, 1, store.count())
}

func TestSlowSubscriberDoesNotBlockDelivery(t *testing.T) {
	store := newMemoryStore()
	svc := notification.NewService(store, &memoryUsers{}, nil, nil)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go svc.Run(ctx)

	recipient := uuid.New()
	_, cleanup := svc.Subscribe(recipient)
	defer cleanup()

	// Flood well past the subscriber channel capacity without reading.
	for i := 0; i < 50; i++ {
		require.NoError(t, svc.Notify(context.Background(), models.NotificationComment, "comment",
			recipient, models.EntityIncident, uuid.New(), nil))
	}

	assert.Eventually(t, func() bool {
		return store.count() == 50
	}, 2*time.Second, 10*time.Millisecond)
}
