package services

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sync"

	"festreg/internal/domain"
)

// fakeEventRepo is an in-memory EventRepository for tests.
type fakeEventRepo struct {
	byID map[string]*domain.Event
	err  error
}

func newFakeEventRepo(events ...*domain.Event) *fakeEventRepo {
	f := &fakeEventRepo{byID: make(map[string]*domain.Event)}
	for _, ev := range events {
		f.byID[ev.ID] = ev
	}
	return f
}

func (f *fakeEventRepo) GetByID(ctx context.Context, id string) (*domain.Event, error) {
	if f.err != nil {
		return nil, f.err
	}
	if ev, ok := f.byID[id]; ok {
		return ev, nil
	}
	return nil, domain.ErrNotFound
}

func (f *fakeEventRepo) List(ctx context.Context) ([]*domain.Event, error) {
	if f.err != nil {
		return nil, f.err
	}
	out := make([]*domain.Event, 0, len(f.byID))
	for _, ev := range f.byID {
		out = append(out, ev)
	}
	return out, nil
}

// fakeRegistrationRepo is an in-memory RegistrationRepository. Create mimics
// the transactional slot claim: when wantSlot is true and the event fake says
// the slot race was lost, the registration falls back to the waitlist.
type fakeRegistrationRepo struct {
	byID    map[string]*domain.Registration
	members map[string][]*domain.TeamMember
	nextID  int

	createErr          error
	loseSlotRace       bool // Create with wantSlot behaves as if capacity filled up
	waitlistOnLostRace bool
	nextPosition       int

	promoteOnTerminate string // registration id promoted when a slot holder terminates
	terminateErr       error
	confirmErr         error
	replaceErr         error

	lastWantSlot bool
}

func newFakeRegistrationRepo(regs ...*domain.Registration) *fakeRegistrationRepo {
	f := &fakeRegistrationRepo{
		byID:         make(map[string]*domain.Registration),
		members:      make(map[string][]*domain.TeamMember),
		nextID:       1,
		nextPosition: 1,
	}
	for _, reg := range regs {
		f.byID[reg.ID] = reg
	}
	return f
}

func (f *fakeRegistrationRepo) Create(ctx context.Context, reg *domain.Registration, members []*domain.TeamMember, wantSlot bool) error {
	if f.createErr != nil {
		return f.createErr
	}
	f.lastWantSlot = wantSlot
	if wantSlot && f.loseSlotRace {
		if !f.waitlistOnLostRace {
			return fmt.Errorf("%w: %s", domain.ErrEligibility, domain.ReasonEventFull)
		}
		pos := f.nextPosition
		f.nextPosition++
		reg.Status = domain.RegistrationWaitlist
		reg.WaitlistPosition = &pos
	}
	if !wantSlot && reg.WaitlistPosition == nil {
		pos := f.nextPosition
		f.nextPosition++
		reg.WaitlistPosition = &pos
	}
	reg.ID = fmt.Sprintf("reg-%d", f.nextID)
	f.nextID++
	f.byID[reg.ID] = reg
	if len(members) > 0 {
		f.members[reg.ID] = members
	}
	return nil
}

func (f *fakeRegistrationRepo) GetByID(ctx context.Context, id string) (*domain.Registration, error) {
	if reg, ok := f.byID[id]; ok {
		return reg, nil
	}
	return nil, domain.ErrNotFound
}

func (f *fakeRegistrationRepo) GetActiveByEventAndParticipant(ctx context.Context, eventID, participantID string) (*domain.Registration, error) {
	for _, reg := range f.byID {
		if reg.EventID == eventID && reg.ParticipantID == participantID && !reg.IsTerminal() {
			return reg, nil
		}
	}
	return nil, domain.ErrNotFound
}

func (f *fakeRegistrationRepo) ListByParticipant(ctx context.Context, participantID string) ([]*domain.Registration, error) {
	var out []*domain.Registration
	for _, reg := range f.byID {
		if reg.ParticipantID == participantID {
			out = append(out, reg)
		}
	}
	return out, nil
}

func (f *fakeRegistrationRepo) ListByEvent(ctx context.Context, eventID string) ([]*domain.Registration, error) {
	var out []*domain.Registration
	for _, reg := range f.byID {
		if reg.EventID == eventID {
			out = append(out, reg)
		}
	}
	return out, nil
}

func (f *fakeRegistrationRepo) Terminate(ctx context.Context, id string, status domain.RegistrationStatus, cancelledBy, reason string) (*domain.Registration, error) {
	if f.terminateErr != nil {
		return nil, f.terminateErr
	}
	reg, ok := f.byID[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	if reg.IsTerminal() {
		return nil, fmt.Errorf("%w: already cancelled", domain.ErrConflict)
	}
	heldSlot := reg.HoldsSlot()
	reg.Status = status
	reg.CancelledBy = cancelledBy
	reg.WithdrawalReason = reason
	reg.WaitlistPosition = nil
	if heldSlot && f.promoteOnTerminate != "" {
		promoted := f.byID[f.promoteOnTerminate]
		promoted.Status = domain.RegistrationPaymentPending
		promoted.WaitlistPosition = nil
		return promoted, nil
	}
	return nil, nil
}

func (f *fakeRegistrationRepo) Confirm(ctx context.Context, id string) (bool, error) {
	if f.confirmErr != nil {
		return false, f.confirmErr
	}
	reg, ok := f.byID[id]
	if !ok || reg.Status != domain.RegistrationPaymentPending {
		return false, nil
	}
	reg.Status = domain.RegistrationConfirmed
	return true, nil
}

func (f *fakeRegistrationRepo) ReplaceTeam(ctx context.Context, id string, teamName string, members []*domain.TeamMember) error {
	if f.replaceErr != nil {
		return f.replaceErr
	}
	reg, ok := f.byID[id]
	if !ok {
		return domain.ErrNotFound
	}
	reg.TeamName = teamName
	f.members[id] = members
	return nil
}

func (f *fakeRegistrationRepo) ListTeamMembers(ctx context.Context, registrationID string) ([]*domain.TeamMember, error) {
	return f.members[registrationID], nil
}

// fakePaymentRepo is an in-memory PaymentRepository mirroring the conditional
// update semantics of the real one.
type fakePaymentRepo struct {
	mu     sync.Mutex
	byID   map[string]*domain.Payment
	nextID int

	createErr error
}

func newFakePaymentRepo(payments ...*domain.Payment) *fakePaymentRepo {
	f := &fakePaymentRepo{byID: make(map[string]*domain.Payment), nextID: 1}
	for _, p := range payments {
		f.byID[p.ID] = p
	}
	return f
}

func (f *fakePaymentRepo) Create(ctx context.Context, p *domain.Payment) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.createErr != nil {
		return f.createErr
	}
	for _, existing := range f.byID {
		if existing.RegistrationID == p.RegistrationID &&
			(existing.Status == domain.PaymentPending || existing.Status == domain.PaymentProcessing) {
			return fmt.Errorf("%w: an open payment already exists for this registration", domain.ErrConflict)
		}
	}
	p.ID = fmt.Sprintf("pay-%d", f.nextID)
	f.nextID++
	f.byID[p.ID] = p
	return nil
}

func (f *fakePaymentRepo) GetByID(ctx context.Context, id string) (*domain.Payment, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if p, ok := f.byID[id]; ok {
		return clonePayment(p), nil
	}
	return nil, domain.ErrNotFound
}

// clonePayment mirrors the real repository, which hands out a freshly scanned
// row per query rather than a shared object.
func clonePayment(p *domain.Payment) *domain.Payment {
	cp := *p
	return &cp
}

func (f *fakePaymentRepo) GetByGatewayOrderID(ctx context.Context, orderID string) (*domain.Payment, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, p := range f.byID {
		if p.GatewayOrderID == orderID && orderID != "" {
			return clonePayment(p), nil
		}
	}
	return nil, domain.ErrNotFound
}

func (f *fakePaymentRepo) GetByGatewayPaymentID(ctx context.Context, paymentID string) (*domain.Payment, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, p := range f.byID {
		if p.GatewayPaymentID == paymentID && paymentID != "" {
			return clonePayment(p), nil
		}
	}
	return nil, domain.ErrNotFound
}

func (f *fakePaymentRepo) GetOpenByRegistration(ctx context.Context, registrationID string) (*domain.Payment, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, p := range f.byID {
		if p.RegistrationID == registrationID && p.Status == domain.PaymentPending && p.GatewayOrderID != "" {
			return clonePayment(p), nil
		}
	}
	return nil, domain.ErrNotFound
}

func (f *fakePaymentRepo) GetPendingByRegistration(ctx context.Context, registrationID string) (*domain.Payment, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, p := range f.byID {
		if p.RegistrationID == registrationID && p.Status == domain.PaymentPending {
			return clonePayment(p), nil
		}
	}
	return nil, domain.ErrNotFound
}

func (f *fakePaymentRepo) HasSuccessfulByRegistration(ctx context.Context, registrationID string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, p := range f.byID {
		if p.RegistrationID != registrationID {
			continue
		}
		switch p.Status {
		case domain.PaymentSuccess, domain.PaymentRefunded, domain.PaymentPartiallyRefunded:
			return true, nil
		}
	}
	return false, nil
}

func (f *fakePaymentRepo) SetGatewayOrder(ctx context.Context, id, orderID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	p, ok := f.byID[id]
	if !ok || p.Status != domain.PaymentPending {
		return fmt.Errorf("%w: payment %s is no longer pending", domain.ErrInconsistentState, id)
	}
	p.GatewayOrderID = orderID
	return nil
}

func (f *fakePaymentRepo) Capture(ctx context.Context, id, gatewayPaymentID, signature string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	p, ok := f.byID[id]
	if !ok || p.Status != domain.PaymentPending {
		return false, nil
	}
	p.Status = domain.PaymentSuccess
	p.GatewayPaymentID = gatewayPaymentID
	p.GatewaySignature = signature
	return true, nil
}

func (f *fakePaymentRepo) CaptureOffline(ctx context.Context, registrationID, verifiedBy, note string, amount int64) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, p := range f.byID {
		if p.RegistrationID == registrationID && p.Status == domain.PaymentPending {
			p.Status = domain.PaymentSuccess
			p.Method = domain.PaymentMethodOffline
			p.Amount = amount
			p.TotalAmount = amount
			p.ConvenienceFee = 0
			p.VerifiedBy = verifiedBy
			p.VerificationNote = note
			return p.ID, nil
		}
	}
	return "", nil
}

func (f *fakePaymentRepo) MarkFailed(ctx context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	p, ok := f.byID[id]
	if !ok {
		return nil
	}
	if p.Status == domain.PaymentPending || p.Status == domain.PaymentProcessing {
		p.Status = domain.PaymentFailed
	}
	return nil
}

func (f *fakePaymentRepo) ApplyRefund(ctx context.Context, id string, amount int64, refundID, reason, actor string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	p, ok := f.byID[id]
	if !ok {
		return false, nil
	}
	if p.Status != domain.PaymentSuccess && p.Status != domain.PaymentPartiallyRefunded {
		return false, nil
	}
	if p.RefundAmount+amount > p.TotalAmount {
		return false, nil
	}
	p.RefundAmount += amount
	if p.RefundAmount >= p.TotalAmount {
		p.Status = domain.PaymentRefunded
	} else {
		p.Status = domain.PaymentPartiallyRefunded
	}
	p.RefundID = refundID
	p.RefundReason = reason
	p.RefundedBy = actor
	return true, nil
}

// fakeGateway is a programmable PaymentGateway.
type fakeGateway struct {
	mu             sync.Mutex
	orderID        string
	createOrderErr error
	refundID       string
	refundErr      error
	checkoutValid  bool
	webhookValid   bool

	createOrderCalls int
	refundCalls      int
}

func (f *fakeGateway) CreateOrder(ctx context.Context, amount int64, currency, receipt string, notes map[string]string) (*domain.GatewayOrder, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.createOrderCalls++
	if f.createOrderErr != nil {
		return nil, f.createOrderErr
	}
	id := f.orderID
	if id == "" {
		id = "order_1"
	}
	return &domain.GatewayOrder{ID: id, Amount: amount, Currency: currency, Receipt: receipt, Status: "created"}, nil
}

func (f *fakeGateway) FetchPayment(ctx context.Context, paymentID string) (*domain.GatewayPayment, error) {
	return &domain.GatewayPayment{ID: paymentID, Status: "captured"}, nil
}

func (f *fakeGateway) CreateRefund(ctx context.Context, paymentID string, amount int64) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.refundCalls++
	if f.refundErr != nil {
		return "", f.refundErr
	}
	if f.refundID == "" {
		return "rfnd_1", nil
	}
	return f.refundID, nil
}

func (f *fakeGateway) VerifyCheckoutSignature(orderID, paymentID, signature string) bool {
	return f.checkoutValid
}

func (f *fakeGateway) VerifyWebhookSignature(body []byte, signature string) bool {
	return f.webhookValid
}

// fakeNotificationRepo records notifications created by the dispatcher
// workers; guarded because writes happen off the test goroutine.
type fakeNotificationRepo struct {
	mu      sync.Mutex
	created []*domain.Notification
}

func (f *fakeNotificationRepo) Create(ctx context.Context, n *domain.Notification) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.created = append(f.created, n)
	return nil
}

func (f *fakeNotificationRepo) ListByRecipient(ctx context.Context, recipientID string) ([]*domain.Notification, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*domain.Notification
	for _, n := range f.created {
		if n.RecipientID == recipientID {
			out = append(out, n)
		}
	}
	return out, nil
}

func (f *fakeNotificationRepo) all() []*domain.Notification {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]*domain.Notification(nil), f.created...)
}

type fakeAuditRepo struct {
	mu      sync.Mutex
	entries []*domain.AuditEntry
}

func (f *fakeAuditRepo) Record(ctx context.Context, entry *domain.AuditEntry) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.entries = append(f.entries, entry)
	return nil
}

func (f *fakeAuditRepo) actions() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, 0, len(f.entries))
	for _, e := range f.entries {
		out = append(out, e.Action)
	}
	return out
}

type fakeParticipantRepo struct {
	byID map[string]*domain.Participant
}

func (f *fakeParticipantRepo) GetByID(ctx context.Context, id string) (*domain.Participant, error) {
	if p, ok := f.byID[id]; ok {
		return p, nil
	}
	return nil, domain.ErrNotFound
}

type fakeEmailService struct {
	mu   sync.Mutex
	sent []string
}

func (f *fakeEmailService) record(name string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, name)
	return nil
}

func (f *fakeEmailService) SendRegistrationConfirmed(ctx context.Context, data *domain.RegistrationEmailData) error {
	return f.record("registration_confirmed")
}

func (f *fakeEmailService) SendWaitlisted(ctx context.Context, data *domain.RegistrationEmailData) error {
	return f.record("waitlisted")
}

func (f *fakeEmailService) SendWaitlistPromoted(ctx context.Context, data *domain.RegistrationEmailData) error {
	return f.record("waitlist_promoted")
}

func (f *fakeEmailService) SendPaymentReceived(ctx context.Context, data *domain.PaymentEmailData) error {
	return f.record("payment_received")
}

func (f *fakeEmailService) SendRefundProcessed(ctx context.Context, data *domain.RefundEmailData) error {
	return f.record("refund_processed")
}

// testEffects bundles a SideEffects wired to fakes plus a flush that drains
// the dispatcher before assertions.
type testEffects struct {
	effects       *SideEffects
	dispatcher    *Dispatcher
	notifications *fakeNotificationRepo
	audit         *fakeAuditRepo
	email         *fakeEmailService
}

func newTestEffects(events domain.EventRepository, participants domain.ParticipantRepository) *testEffects {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	d := NewDispatcher(logger, 64, 1)
	notifications := &fakeNotificationRepo{}
	audit := &fakeAuditRepo{}
	email := &fakeEmailService{}
	if participants == nil {
		participants = &fakeParticipantRepo{byID: map[string]*domain.Participant{}}
	}
	return &testEffects{
		effects:       NewSideEffects(d, notifications, audit, participants, events, email),
		dispatcher:    d,
		notifications: notifications,
		audit:         audit,
		email:         email,
	}
}

// flush waits for every queued side effect to run. The dispatcher cannot be
// reused afterwards.
func (te *testEffects) flush() {
	te.dispatcher.Close()
}
