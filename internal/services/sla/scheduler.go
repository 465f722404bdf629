package sla

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"github.com/terminal-bench/incidenthub/internal/models"
)

// Checkpoint identifies one of the three evaluation points of an SLA window.
type Checkpoint string

// Checkpoint kinds. Half fires when 50% of the remaining time has elapsed,
// quarter at 75% elapsed, final at the deadline itself.
const (
	CheckpointHalf    Checkpoint = "half"
	CheckpointQuarter Checkpoint = "quarter"
	CheckpointFinal   Checkpoint = "final"
)

// ItemStore is the incident persistence contract the scheduler depends on.
// GetByID returns (nil, nil) when the incident no longer exists.
type ItemStore interface {
	GetByID(ctx context.Context, id uuid.UUID) (*models.Incident, error)
	MarkEscalated(ctx context.Context, id, targetID uuid.UUID, at time.Time) (bool, error)
	ListPendingOverdue(ctx context.Context, now time.Time) ([]models.Incident, error)
	ListPending(ctx context.Context) ([]models.Incident, error)
}

// Notifier dispatches a notification record. Delivery is fire-and-forget;
// the scheduler only cares that the record was accepted.
type Notifier interface {
	Notify(ctx context.Context, kind, message string, recipientID uuid.UUID, entityType string, entityID uuid.UUID, data map[string]interface{}) error
}

// Scheduler arms SLA checkpoints for incidents and escalates the ones that
// blow their deadline. Armed timers are a latency optimization only: due_at
// in the store is the durable source of truth, and SweepPending recovers any
// checkpoint lost to a restart.
type Scheduler struct {
	store    ItemStore
	resolver *Resolver
	notifier Notifier
	clock    Clock

	mu        sync.Mutex
	schedules map[uuid.UUID]*itemSchedule
	locks     map[uuid.UUID]*itemLock
}

// itemSchedule is one armed checkpoint set. The generation is compared when
// a timer fires; rescheduling bumps it, which invalidates every timer armed
// under the previous deadline.
type itemSchedule struct {
	generation uint64
	timers     []Timer
}

type itemLock struct {
	mu   sync.Mutex
	refs int
}

// NewScheduler creates a new SLA scheduler
func NewScheduler(store ItemStore, resolver *Resolver, notifier Notifier, clock Clock) *Scheduler {
	if clock == nil {
		clock = SystemClock()
	}
	return &Scheduler{
		store:     store,
		resolver:  resolver,
		notifier:  notifier,
		clock:     clock,
		schedules: make(map[uuid.UUID]*itemSchedule),
		locks:     make(map[uuid.UUID]*itemLock),
	}
}

// Schedule arms the checkpoint set for an incident. Any previously armed set
// for the same incident is invalidated first, so a stale timer can never act
// on an outdated deadline. A deadline already in the past skips the reminder
// checkpoints and evaluates the final checkpoint synchronously.
func (s *Scheduler) Schedule(ctx context.Context, itemID uuid.UUID, dueAt time.Time) error {
	remaining := dueAt.Sub(s.clock.Now())
	if remaining <= 0 {
		s.Cancel(itemID)
		return s.Evaluate(ctx, itemID, CheckpointFinal)
	}

	s.mu.Lock()
	sched, ok := s.schedules[itemID]
	if ok {
		for _, t := range sched.timers {
			t.Stop()
		}
	} else {
		sched = &itemSchedule{}
		s.schedules[itemID] = sched
	}
	sched.generation++
	sched.timers = sched.timers[:0]

	gen := sched.generation
	arm := func(after time.Duration, kind Checkpoint) {
		timer := s.clock.AfterFunc(after, func() {
			s.fire(itemID, gen, kind)
		})
		sched.timers = append(sched.timers, timer)
	}
	arm(remaining/2, CheckpointHalf)
	arm(remaining*3/4, CheckpointQuarter)
	arm(remaining, CheckpointFinal)
	s.mu.Unlock()

	log.Debug().
		Str("incident_id", itemID.String()).
		Time("due_at", dueAt).
		Msg("sla checkpoints armed")
	return nil
}

// Cancel drops the armed checkpoint set for an incident, if any. Called when
// an incident reaches a terminal status or is deleted.
func (s *Scheduler) Cancel(itemID uuid.UUID) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sched, ok := s.schedules[itemID]
	if !ok {
		return
	}
	for _, t := range sched.timers {
		t.Stop()
	}
	delete(s.schedules, itemID)
}

// fire runs on a timer goroutine. A generation mismatch means the incident
// was rescheduled after this timer was armed.
func (s *Scheduler) fire(itemID uuid.UUID, gen uint64, kind Checkpoint) {
	s.mu.Lock()
	sched, ok := s.schedules[itemID]
	if !ok || sched.generation != gen {
		s.mu.Unlock()
		return
	}
	if kind == CheckpointFinal {
		delete(s.schedules, itemID)
	}
	s.mu.Unlock()

	if err := s.Evaluate(context.Background(), itemID, kind); err != nil {
		log.Error().Err(err).
			Str("incident_id", itemID.String()).
			Str("checkpoint", string(kind)).
			Msg("checkpoint evaluation failed")
	}
}

// Evaluate loads the incident and acts on the given checkpoint. Evaluation
// for a given incident is mutually exclusive: a live timer and a sweep pass
// racing on the same incident cannot both perform the escalation.
func (s *Scheduler) Evaluate(ctx context.Context, itemID uuid.UUID, kind Checkpoint) error {
	unlock := s.lockItem(itemID)
	defer unlock()

	incident, err := s.store.GetByID(ctx, itemID)
	if err != nil {
		return fmt.Errorf("failed to load incident for %s checkpoint: %w", kind, err)
	}
	if incident == nil {
		log.Warn().
			Str("incident_id", itemID.String()).
			Str("checkpoint", string(kind)).
			Msg("incident no longer exists, dropping checkpoint")
		return nil
	}
	if incident.IsTerminal() {
		return nil
	}

	switch kind {
	case CheckpointHalf:
		s.remind(ctx, incident, 50)
	case CheckpointQuarter:
		s.remind(ctx, incident, 25)
	case CheckpointFinal:
		// The deadline may have moved since this checkpoint was armed.
		if s.clock.Now().Before(incident.DueAt) {
			return nil
		}
		return s.escalate(ctx, incident)
	}
	return nil
}

// remind notifies the assignee how much of the SLA window remains. Reminders
// never mutate the incident, and an unassigned incident has no recipient.
func (s *Scheduler) remind(ctx context.Context, incident *models.Incident, percentRemaining int) {
	if incident.AssignedToID == nil {
		return
	}

	message := fmt.Sprintf("Reminder: %d%% of the time to resolve incident %q remains",
		percentRemaining, incident.Title)
	err := s.notifier.Notify(ctx, models.NotificationDueDate, message, *incident.AssignedToID,
		models.EntityIncident, incident.ID, map[string]interface{}{
			"incident_id":       incident.ID.String(),
			"incident_title":    incident.Title,
			"due_at":            incident.DueAt,
			"percent_remaining": percentRemaining,
		})
	if err != nil {
		log.Error().Err(err).
			Str("incident_id", incident.ID.String()).
			Int("percent_remaining", percentRemaining).
			Msg("failed to send sla reminder")
		return
	}

	log.Info().
		Str("incident_id", incident.ID.String()).
		Str("recipient_id", incident.AssignedToID.String()).
		Int("percent_remaining", percentRemaining).
		Msg("sla reminder sent")
}

// escalate performs the escalation transition: resolve a target, commit the
// state change, then fan out notifications. The state change comes first so
// notifications are only ever a consequence of a committed escalation.
func (s *Scheduler) escalate(ctx context.Context, incident *models.Incident) error {
	targetID, found, err := s.resolver.Resolve(ctx, incident.AssignedToID)
	if err != nil {
		return fmt.Errorf("failed to resolve escalation target: %w", err)
	}
	if !found {
		// Left untouched: the next sweep pass retries once a coordinator
		// or admin becomes active.
		log.Warn().
			Str("incident_id", incident.ID.String()).
			Msg("no escalation target available, deferring to next sweep")
		return nil
	}

	now := s.clock.Now()
	updated, err := s.store.MarkEscalated(ctx, incident.ID, targetID, now)
	if err != nil {
		return fmt.Errorf("failed to persist escalation: %w", err)
	}
	if !updated {
		// A concurrent evaluation already escalated or closed out the
		// incident.
		return nil
	}

	message := fmt.Sprintf("Incident %q was automatically escalated for exceeding its SLA", incident.Title)
	data := map[string]interface{}{
		"incident_id":    incident.ID.String(),
		"incident_title": incident.Title,
		"due_at":         incident.DueAt,
		"reason":         "SLA exceeded",
	}

	s.notify(ctx, incident, models.NotificationEscalation, message, targetID, data)

	if incident.AssignedToID != nil {
		assigneeData := map[string]interface{}{
			"incident_id":     incident.ID.String(),
			"incident_title":  incident.Title,
			"due_at":          incident.DueAt,
			"escalated_to_id": targetID.String(),
			"reason":          "SLA exceeded",
		}
		s.notify(ctx, incident, models.NotificationEscalation, message, *incident.AssignedToID, assigneeData)
	}

	s.notify(ctx, incident, models.NotificationEscalation, message, incident.CreatedByID, data)

	log.Info().
		Str("incident_id", incident.ID.String()).
		Str("escalated_to_id", targetID.String()).
		Time("due_at", incident.DueAt).
		Msg("incident escalated for exceeding sla")
	return nil
}

// notify is the best-effort half of the transition: failures are logged and
// never roll back the committed state change.
func (s *Scheduler) notify(ctx context.Context, incident *models.Incident, kind, message string, recipientID uuid.UUID, data map[string]interface{}) {
	err := s.notifier.Notify(ctx, kind, message, recipientID, models.EntityIncident, incident.ID, data)
	if err != nil {
		log.Error().Err(err).
			Str("incident_id", incident.ID.String()).
			Str("recipient_id", recipientID.String()).
			Msg("failed to send escalation notification")
	}
}

// SweepPending re-evaluates every incident whose deadline has passed. It is
// the durability backstop for timers lost to a restart and runs safely
// alongside live checkpoint firings. Per-incident failures are logged and do
// not abort the sweep.
func (s *Scheduler) SweepPending(ctx context.Context, now time.Time) (int, error) {
	incidents, err := s.store.ListPendingOverdue(ctx, now)
	if err != nil {
		return 0, fmt.Errorf("failed to query overdue incidents: %w", err)
	}

	for _, incident := range incidents {
		if err := s.Evaluate(ctx, incident.ID, CheckpointFinal); err != nil {
			log.Error().Err(err).
				Str("incident_id", incident.ID.String()).
				Msg("sweep evaluation failed")
		}
	}

	if len(incidents) > 0 {
		log.Info().Int("count", len(incidents)).Msg("sla sweep completed")
	}
	return len(incidents), nil
}

// RearmPending re-arms checkpoint sets for every non-terminal incident.
// Called once at startup so reminders survive a restart; incidents already
// overdue are evaluated immediately.
func (s *Scheduler) RearmPending(ctx context.Context) (int, error) {
	incidents, err := s.store.ListPending(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to query pending incidents: %w", err)
	}

	for _, incident := range incidents {
		if err := s.Schedule(ctx, incident.ID, incident.DueAt); err != nil {
			log.Error().Err(err).
				Str("incident_id", incident.ID.String()).
				Msg("failed to rearm sla schedule")
		}
	}
	return len(incidents), nil
}

// lockItem acquires the per-incident critical section. The returned func
// releases it and drops the lock entry once no evaluation holds or awaits it.
func (s *Scheduler) lockItem(id uuid.UUID) func() {
	s.mu.Lock()
	l, ok := s.locks[id]
	if !ok {
		l = &itemLock{}
		s.locks[id] = l
	}
	l.refs++
	s.mu.Unlock()

	l.mu.Lock()
	return func() {
		l.mu.Unlock()

		s.mu.Lock()
		l.refs--
		if l.refs == 0 {
			delete(s.locks, id)
		}
		s.mu.Unlock()
	}
}
