package services

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"festreg/internal/domain"
)

// Dispatcher runs best-effort side effects (in-app notifications, emails,
// audit entries) on worker goroutines, decoupled from the transaction that
// triggered them. A failed or dropped task is logged and never fails the
// parent operation.
type Dispatcher struct {
	logger *slog.Logger
	tasks  chan task
	wg     sync.WaitGroup
}

type task struct {
	name string
	fn   func(context.Context) error
}

// taskTimeout bounds each side-effect task so a slow mailer cannot pile up
// workers forever.
const taskTimeout = 30 * time.Second

// NewDispatcher starts workers goroutines consuming a queue of the given
// buffer size.
func NewDispatcher(logger *slog.Logger, buffer, workers int) *Dispatcher {
	if buffer <= 0 {
		buffer = 64
	}
	if workers <= 0 {
		workers = 1
	}
	d := &Dispatcher{
		logger: logger,
		tasks:  make(chan task, buffer),
	}
	for i := 0; i < workers; i++ {
		d.wg.Add(1)
		go d.worker()
	}
	return d
}

func (d *Dispatcher) worker() {
	defer d.wg.Done()
	for t := range d.tasks {
		ctx, cancel := context.WithTimeout(context.Background(), taskTimeout)
		if err := t.fn(ctx); err != nil {
			d.logger.Error("side effect failed", "task", t.name, "err", err)
		}
		cancel()
	}
}

// Enqueue hands a task to the workers. When the queue is full the task is
// dropped with a log entry rather than blocking the caller.
func (d *Dispatcher) Enqueue(name string, fn func(context.Context) error) {
	select {
	case d.tasks <- task{name: name, fn: fn}:
	default:
		d.logger.Warn("side effect queue full, dropping task", "task", name)
	}
}

// Close stops accepting tasks and waits for in-flight ones to finish.
func (d *Dispatcher) Close() {
	close(d.tasks)
	d.wg.Wait()
}

// SideEffects groups the notification, email, and audit fan-out attached to
// registration and payment transitions. Every method enqueues work on the
// Dispatcher; participant and event lookups happen on the worker, off the
// request path.
type SideEffects struct {
	dispatcher    *Dispatcher
	notifications domain.NotificationRepository
	audit         domain.AuditRepository
	participants  domain.ParticipantRepository
	events        domain.EventRepository
	email         domain.EmailService
}

// NewSideEffects wires the side-effect fan-out.
func NewSideEffects(
	dispatcher *Dispatcher,
	notifications domain.NotificationRepository,
	audit domain.AuditRepository,
	participants domain.ParticipantRepository,
	events domain.EventRepository,
	email domain.EmailService,
) *SideEffects {
	return &SideEffects{
		dispatcher:    dispatcher,
		notifications: notifications,
		audit:         audit,
		participants:  participants,
		events:        events,
		email:         email,
	}
}

// Audit appends an audit entry for a state-changing action. Old and new
// values are JSON-encoded snapshots.
func (e *SideEffects) Audit(actorID, action, entityType, entityID string, oldValues, newValues any) {
	oldJSON := marshalValues(oldValues)
	newJSON := marshalValues(newValues)
	e.dispatcher.Enqueue("audit:"+action, func(ctx context.Context) error {
		return e.audit.Record(ctx, &domain.AuditEntry{
			ActorID:    actorID,
			Action:     action,
			EntityType: entityType,
			EntityID:   entityID,
			OldValues:  oldJSON,
			NewValues:  newJSON,
			CreatedAt:  time.Now(),
		})
	})
}

func marshalValues(v any) json.RawMessage {
	if v == nil {
		return nil
	}
	raw, err := json.Marshal(v)
	if err != nil {
		return json.RawMessage(fmt.Sprintf(`{"marshal_error":%q}`, err.Error()))
	}
	return raw
}

func (e *SideEffects) notify(recipientID, title, message, registrationID, paymentID string) {
	e.dispatcher.Enqueue("notify:"+title, func(ctx context.Context) error {
		return e.notifications.Create(ctx, &domain.Notification{
			RecipientID:    recipientID,
			Title:          title,
			Message:        message,
			RegistrationID: registrationID,
			PaymentID:      paymentID,
			CreatedAt:      time.Now(),
		})
	})
}

// RegistrationCreated sends the admission or waitlist notification and email
// for a freshly created registration.
func (e *SideEffects) RegistrationCreated(reg *domain.Registration, ev *domain.Event) {
	switch reg.Status {
	case domain.RegistrationWaitlist:
		pos := 0
		if reg.WaitlistPosition != nil {
			pos = *reg.WaitlistPosition
		}
		e.notify(reg.ParticipantID, "Waitlisted",
			fmt.Sprintf("%s is full; you are number %d on the waitlist.", ev.Name, pos),
			reg.ID, "")
		e.sendRegistrationEmail(reg, ev.Name, "waitlisted", pos)
	case domain.RegistrationConfirmed:
		e.notify(reg.ParticipantID, "Registration confirmed",
			fmt.Sprintf("Your registration for %s is confirmed.", ev.Name),
			reg.ID, "")
		e.sendRegistrationEmail(reg, ev.Name, "registration_confirmed", 0)
	default:
		e.notify(reg.ParticipantID, "Registration received",
			fmt.Sprintf("Complete the payment to confirm your spot at %s.", ev.Name),
			reg.ID, "")
	}
}

// RegistrationTerminated records the cancellation or withdrawal notification.
func (e *SideEffects) RegistrationTerminated(reg *domain.Registration, eventName string) {
	verb := "withdrawn"
	if reg.Status == domain.RegistrationCancelled {
		verb = "cancelled"
	}
	e.notify(reg.ParticipantID, "Registration "+verb,
		fmt.Sprintf("Your registration for %s has been %s.", eventName, verb),
		reg.ID, "")
}

// RegistrationPromoted notifies a waitlisted participant that a slot opened.
func (e *SideEffects) RegistrationPromoted(reg *domain.Registration) {
	e.dispatcher.Enqueue("promotion", func(ctx context.Context) error {
		ev, err := e.events.GetByID(ctx, reg.EventID)
		if err != nil {
			return fmt.Errorf("get event: %w", err)
		}
		if err := e.notifications.Create(ctx, &domain.Notification{
			RecipientID:    reg.ParticipantID,
			Title:          "A spot opened up",
			Message:        fmt.Sprintf("A spot opened up at %s. Complete the payment to confirm it.", ev.Name),
			RegistrationID: reg.ID,
			CreatedAt:      time.Now(),
		}); err != nil {
			return fmt.Errorf("create notification: %w", err)
		}
		p, err := e.participants.GetByID(ctx, reg.ParticipantID)
		if err != nil {
			return fmt.Errorf("get participant: %w", err)
		}
		return e.email.SendWaitlistPromoted(ctx, &domain.RegistrationEmailData{
			Email:     p.Email,
			Name:      p.Name,
			EventName: ev.Name,
			TeamName:  reg.TeamName,
		})
	})
}

// PaymentCaptured sends the payment receipt and confirmation messages.
func (e *SideEffects) PaymentCaptured(p *domain.Payment, reg *domain.Registration) {
	e.notify(p.PayerID, "Payment received",
		"Your payment was received and your registration is confirmed.",
		reg.ID, p.ID)
	eventID := reg.EventID
	payerID, amount, reference := p.PayerID, p.TotalAmount, p.GatewayPaymentID
	teamName := reg.TeamName
	e.dispatcher.Enqueue("payment_emails", func(ctx context.Context) error {
		ev, err := e.events.GetByID(ctx, eventID)
		if err != nil {
			return fmt.Errorf("get event: %w", err)
		}
		payer, err := e.participants.GetByID(ctx, payerID)
		if err != nil {
			return fmt.Errorf("get participant: %w", err)
		}
		if err := e.email.SendPaymentReceived(ctx, &domain.PaymentEmailData{
			Email:     payer.Email,
			Name:      payer.Name,
			EventName: ev.Name,
			Amount:    amount,
			Reference: reference,
		}); err != nil {
			return fmt.Errorf("send payment email: %w", err)
		}
		return e.email.SendRegistrationConfirmed(ctx, &domain.RegistrationEmailData{
			Email:     payer.Email,
			Name:      payer.Name,
			EventName: ev.Name,
			TeamName:  teamName,
		})
	})
}

// RefundProcessed sends the refund notification and email.
func (e *SideEffects) RefundProcessed(p *domain.Payment, eventID string, amount int64, reason string) {
	e.notify(p.PayerID, "Refund processed",
		fmt.Sprintf("A refund of %d was processed for your payment.", amount),
		p.RegistrationID, p.ID)
	payerID := p.PayerID
	e.dispatcher.Enqueue("refund_email", func(ctx context.Context) error {
		ev, err := e.events.GetByID(ctx, eventID)
		if err != nil {
			return fmt.Errorf("get event: %w", err)
		}
		payer, err := e.participants.GetByID(ctx, payerID)
		if err != nil {
			return fmt.Errorf("get participant: %w", err)
		}
		return e.email.SendRefundProcessed(ctx, &domain.RefundEmailData{
			Email:     payer.Email,
			Name:      payer.Name,
			EventName: ev.Name,
			Amount:    amount,
			Reason:    reason,
		})
	})
}

func (e *SideEffects) sendRegistrationEmail(reg *domain.Registration, eventName, template string, position int) {
	participantID, teamName := reg.ParticipantID, reg.TeamName
	e.dispatcher.Enqueue("email:"+template, func(ctx context.Context) error {
		p, err := e.participants.GetByID(ctx, participantID)
		if err != nil {
			return fmt.Errorf("get participant: %w", err)
		}
		data := &domain.RegistrationEmailData{
			Email:            p.Email,
			Name:             p.Name,
			EventName:        eventName,
			TeamName:         teamName,
			WaitlistPosition: position,
		}
		switch template {
		case "waitlisted":
			return e.email.SendWaitlisted(ctx, data)
		default:
			return e.email.SendRegistrationConfirmed(ctx, data)
		}
	})
}
