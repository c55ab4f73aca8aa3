package core

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"
)

// memoryWorld backs every in-memory store used by the core tests.
type memoryWorld struct {
	mu            sync.Mutex
	orders        map[string]Order
	proposals     map[string]Proposal
	notifications map[string]Notification
	preferences   map[string]NotificationPreferences
	categories    map[string]Category
	users         map[string]User
	outbox        []OutboxEvent
	next          int

	failAssign           error
	beforeAssign         func(w *memoryWorld)
	beforeProposalCreate func()
	prefErr              error
}

func newMemoryWorld() *memoryWorld {
	return &memoryWorld{
		orders:        map[string]Order{},
		proposals:     map[string]Proposal{},
		notifications: map[string]Notification{},
		preferences:   map[string]NotificationPreferences{},
		categories: map[string]Category{
			"cat_plumbing": {ID: "cat_plumbing", Name: "Plumbing", Active: true},
			"cat_retired":  {ID: "cat_retired", Name: "Retired", Active: false},
		},
		users: map[string]User{
			"client_1":     {ID: "client_1", Role: UserRoleClient, Email: "client@example.com"},
			"contractor_1": {ID: "contractor_1", Role: UserRoleContractor, Email: "c1@example.com", DeviceTokens: []string{"tok_1"}, CategoryIDs: []string{"cat_plumbing"}},
			"contractor_2": {ID: "contractor_2", Role: UserRoleContractor, Email: "c2@example.com", CategoryIDs: []string{"cat_plumbing"}},
			"contractor_3": {ID: "contractor_3", Role: UserRoleContractor, CategoryIDs: []string{"cat_other"}},
		},
	}
}

func (w *memoryWorld) nextID(prefix string) string {
	w.next++
	return fmt.Sprintf("%s_%d", prefix, w.next)
}

func (w *memoryWorld) order(id string) Order {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.orders[id]
}

func (w *memoryWorld) proposal(id string) Proposal {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.proposals[id]
}

func (w *memoryWorld) notificationsFor(userID string) []Notification {
	w.mu.Lock()
	defer w.mu.Unlock()
	var out []Notification
	for _, notification := range w.notifications {
		if notification.UserID == userID {
			out = append(out, notification)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (w *memoryWorld) stores() (memoryOrderStore, memoryProposalStore, memoryUnitOfWork, memoryNotificationStore) {
	return memoryOrderStore{w: w}, memoryProposalStore{w: w}, memoryUnitOfWork{w: w}, memoryNotificationStore{w: w}
}

type memoryOrderStore struct{ w *memoryWorld }

func (s memoryOrderStore) Create(_ context.Context, order Order) (Order, error) {
	s.w.mu.Lock()
	defer s.w.mu.Unlock()
	if order.ID == "" {
		order.ID = s.w.nextID("ord")
	}
	s.w.orders[order.ID] = order
	return order, nil
}

func (s memoryOrderStore) Get(_ context.Context, id string) (Order, error) {
	s.w.mu.Lock()
	defer s.w.mu.Unlock()
	order, ok := s.w.orders[id]
	if !ok || order.DeletedAt != nil {
		return Order{}, fmt.Errorf("%w: order %s", ErrNotFound, id)
	}
	return order, nil
}

func (s memoryOrderStore) UpdateIfStatus(_ context.Context, order Order, expected OrderStatus) (Order, error) {
	s.w.mu.Lock()
	defer s.w.mu.Unlock()
	current, ok := s.w.orders[order.ID]
	if !ok {
		return Order{}, fmt.Errorf("%w: order %s", ErrNotFound, order.ID)
	}
	if current.Status != expected {
		return Order{}, ErrStaleState
	}
	s.w.orders[order.ID] = order
	return order, nil
}

func (s memoryOrderStore) SoftDelete(_ context.Context, id string, expected OrderStatus, at time.Time) error {
	s.w.mu.Lock()
	defer s.w.mu.Unlock()
	current, ok := s.w.orders[id]
	if !ok {
		return fmt.Errorf("%w: order %s", ErrNotFound, id)
	}
	if current.Status != expected {
		return ErrStaleState
	}
	current.DeletedAt = &at
	s.w.orders[id] = current
	return nil
}

func (s memoryOrderStore) Search(_ context.Context, filter OrderFilter) (OrderPage, error) {
	s.w.mu.Lock()
	defer s.w.mu.Unlock()
	var matched []Order
	for _, order := range s.w.orders {
		if order.DeletedAt != nil {
			continue
		}
		if filter.Status != "" && order.Status != filter.Status {
			continue
		}
		if filter.CategoryID != "" && order.CategoryID != filter.CategoryID {
			continue
		}
		if filter.ClientID != "" && order.ClientID != filter.ClientID {
			continue
		}
		if filter.Query != "" && !strings.Contains(strings.ToLower(order.Title), strings.ToLower(filter.Query)) {
			continue
		}
		matched = append(matched, order)
	}
	sort.Slice(matched, func(i, j int) bool { return matched[i].ID < matched[j].ID })
	return OrderPage{Items: matched, Total: len(matched), Page: filter.Page, PerPage: filter.PerPage}, nil
}

type memoryProposalStore struct{ w *memoryWorld }

func (s memoryProposalStore) Create(_ context.Context, proposal Proposal) (Proposal, error) {
	if hook := s.w.beforeProposalCreate; hook != nil {
		s.w.beforeProposalCreate = nil
		hook()
	}
	s.w.mu.Lock()
	defer s.w.mu.Unlock()
	order, ok := s.w.orders[proposal.OrderID]
	if !ok || order.DeletedAt != nil || order.Status != OrderStatusPublished || order.Type != OrderTypePublic {
		return Proposal{}, fmt.Errorf("%w: order %s no longer accepts proposals", ErrStaleState, proposal.OrderID)
	}
	for _, existing := range s.w.proposals {
		if existing.OrderID == proposal.OrderID && existing.ContractorID == proposal.ContractorID {
			return Proposal{}, fmt.Errorf("%w: proposals(order_id, contractor_id)", ErrUniqueViolation)
		}
	}
	if proposal.ID == "" {
		proposal.ID = s.w.nextID("prop")
	}
	s.w.proposals[proposal.ID] = proposal
	return proposal, nil
}

func (s memoryProposalStore) Get(_ context.Context, id string) (Proposal, error) {
	s.w.mu.Lock()
	defer s.w.mu.Unlock()
	proposal, ok := s.w.proposals[id]
	if !ok {
		return Proposal{}, fmt.Errorf("%w: proposal %s", ErrNotFound, id)
	}
	return proposal, nil
}

func (s memoryProposalStore) UpdateIfStatus(_ context.Context, proposal Proposal, expected ProposalStatus) (Proposal, error) {
	s.w.mu.Lock()
	defer s.w.mu.Unlock()
	current, ok := s.w.proposals[proposal.ID]
	if !ok {
		return Proposal{}, fmt.Errorf("%w: proposal %s", ErrNotFound, proposal.ID)
	}
	if current.Status != expected {
		return Proposal{}, ErrStaleState
	}
	s.w.proposals[proposal.ID] = proposal
	return proposal, nil
}

func (s memoryProposalStore) ListByOrder(_ context.Context, orderID string) ([]Proposal, error) {
	s.w.mu.Lock()
	defer s.w.mu.Unlock()
	var out []Proposal
	for _, proposal := range s.w.proposals {
		if proposal.OrderID == orderID {
			out = append(out, proposal)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s memoryProposalStore) ListByContractor(_ context.Context, contractorID string, filter ProposalFilter) (ProposalPage, error) {
	s.w.mu.Lock()
	defer s.w.mu.Unlock()
	var out []Proposal
	for _, proposal := range s.w.proposals {
		if proposal.ContractorID != contractorID {
			continue
		}
		if filter.Status != "" && proposal.Status != filter.Status {
			continue
		}
		out = append(out, proposal)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return ProposalPage{Items: out, Total: len(out), Page: filter.Page, PerPage: filter.PerPage}, nil
}

// memoryUnitOfWork serializes transactions on the world lock and restores a
// snapshot when the callback fails.
type memoryUnitOfWork struct{ w *memoryWorld }

func (u memoryUnitOfWork) RunInTx(ctx context.Context, fn func(ctx context.Context, tx TxStores) error) error {
	u.w.mu.Lock()
	defer u.w.mu.Unlock()
	orders := make(map[string]Order, len(u.w.orders))
	for key, value := range u.w.orders {
		orders[key] = value
	}
	proposals := make(map[string]Proposal, len(u.w.proposals))
	for key, value := range u.w.proposals {
		proposals[key] = value
	}
	outbox := append([]OutboxEvent(nil), u.w.outbox...)

	if err := fn(ctx, memoryTx{w: u.w}); err != nil {
		u.w.orders = orders
		u.w.proposals = proposals
		u.w.outbox = outbox
		return err
	}
	return nil
}

type memoryTx struct{ w *memoryWorld }

func (t memoryTx) GetOrder(_ context.Context, id string) (Order, error) {
	order, ok := t.w.orders[id]
	if !ok {
		return Order{}, fmt.Errorf("%w: order %s", ErrNotFound, id)
	}
	return order, nil
}

func (t memoryTx) GetProposal(_ context.Context, id string) (Proposal, error) {
	proposal, ok := t.w.proposals[id]
	if !ok {
		return Proposal{}, fmt.Errorf("%w: proposal %s", ErrNotFound, id)
	}
	return proposal, nil
}

func (t memoryTx) TransitionProposal(_ context.Context, id string, from ProposalStatus, to ProposalStatus, at time.Time) (bool, error) {
	proposal, ok := t.w.proposals[id]
	if !ok || proposal.Status != from {
		return false, nil
	}
	proposal.Status = to
	proposal.UpdatedAt = at
	t.w.proposals[id] = proposal
	return true, nil
}

func (t memoryTx) RejectPendingProposals(_ context.Context, orderID string, exceptID string, at time.Time) ([]Proposal, error) {
	var rejected []Proposal
	for id, proposal := range t.w.proposals {
		if proposal.OrderID != orderID || id == exceptID || proposal.Status != ProposalStatusPending {
			continue
		}
		proposal.Status = ProposalStatusRejected
		proposal.UpdatedAt = at
		t.w.proposals[id] = proposal
		rejected = append(rejected, proposal)
	}
	sort.Slice(rejected, func(i, j int) bool { return rejected[i].ID < rejected[j].ID })
	return rejected, nil
}

func (t memoryTx) AssignContractor(_ context.Context, in AssignContractorInput) (bool, error) {
	if t.w.beforeAssign != nil {
		t.w.beforeAssign(t.w)
	}
	if t.w.failAssign != nil {
		return false, t.w.failAssign
	}
	order, ok := t.w.orders[in.OrderID]
	if !ok || order.Status != OrderStatusPublished {
		return false, nil
	}
	price := in.AgreedPrice
	order.ContractorID = in.ContractorID
	order.AgreedPrice = &price
	order.Status = OrderStatusInProgress
	order.StartedAt = timePtr(in.StartedAt)
	order.UpdatedAt = in.StartedAt
	t.w.orders[in.OrderID] = order
	return true, nil
}

func (t memoryTx) EnqueueOutbox(_ context.Context, event OutboxEvent) error {
	t.w.outbox = append(t.w.outbox, event)
	return nil
}

type memoryNotificationStore struct{ w *memoryWorld }

func (s memoryNotificationStore) Create(_ context.Context, notification Notification) (Notification, error) {
	s.w.mu.Lock()
	defer s.w.mu.Unlock()
	if notification.ID == "" {
		notification.ID = s.w.nextID("ntf")
	}
	s.w.notifications[notification.ID] = notification
	return notification, nil
}

func (s memoryNotificationStore) Get(_ context.Context, id string) (Notification, error) {
	s.w.mu.Lock()
	defer s.w.mu.Unlock()
	notification, ok := s.w.notifications[id]
	if !ok {
		return Notification{}, fmt.Errorf("%w: notification %s", ErrNotFound, id)
	}
	return notification, nil
}

func (s memoryNotificationStore) List(_ context.Context, userID string, filter NotificationFilter) (NotificationPage, error) {
	s.w.mu.Lock()
	defer s.w.mu.Unlock()
	page := NotificationPage{Page: filter.Page, PerPage: filter.PerPage}
	for _, notification := range s.w.notifications {
		if notification.UserID != userID {
			continue
		}
		if !notification.Read {
			page.Unread++
		}
		if filter.UnreadOnly && notification.Read {
			continue
		}
		if filter.Type != "" && notification.Type != filter.Type {
			continue
		}
		page.Items = append(page.Items, notification)
	}
	page.Total = len(page.Items)
	return page, nil
}

func (s memoryNotificationStore) MarkRead(_ context.Context, userID string, id string, at time.Time) (bool, error) {
	s.w.mu.Lock()
	defer s.w.mu.Unlock()
	notification, ok := s.w.notifications[id]
	if !ok || notification.UserID != userID {
		return false, nil
	}
	if !notification.Read {
		notification.Read = true
		notification.ReadAt = &at
		s.w.notifications[id] = notification
	}
	return true, nil
}

func (s memoryNotificationStore) MarkAllRead(_ context.Context, userID string, at time.Time) (int, error) {
	s.w.mu.Lock()
	defer s.w.mu.Unlock()
	updated := 0
	for id, notification := range s.w.notifications {
		if notification.UserID != userID || notification.Read {
			continue
		}
		notification.Read = true
		notification.ReadAt = &at
		s.w.notifications[id] = notification
		updated++
	}
	return updated, nil
}

func (s memoryNotificationStore) MarkSent(_ context.Context, id string, at time.Time) error {
	s.w.mu.Lock()
	defer s.w.mu.Unlock()
	notification, ok := s.w.notifications[id]
	if !ok {
		return fmt.Errorf("%w: notification %s", ErrNotFound, id)
	}
	notification.SentAt = &at
	s.w.notifications[id] = notification
	return nil
}

func (s memoryNotificationStore) Delete(_ context.Context, userID string, id string) (bool, error) {
	s.w.mu.Lock()
	defer s.w.mu.Unlock()
	notification, ok := s.w.notifications[id]
	if !ok || notification.UserID != userID {
		return false, nil
	}
	delete(s.w.notifications, id)
	return true, nil
}

func (s memoryNotificationStore) DeleteAll(_ context.Context, userID string) (int, error) {
	s.w.mu.Lock()
	defer s.w.mu.Unlock()
	deleted := 0
	for id, notification := range s.w.notifications {
		if notification.UserID == userID {
			delete(s.w.notifications, id)
			deleted++
		}
	}
	return deleted, nil
}

func (s memoryNotificationStore) CountUnread(_ context.Context, userID string) (int, error) {
	s.w.mu.Lock()
	defer s.w.mu.Unlock()
	count := 0
	for _, notification := range s.w.notifications {
		if notification.UserID == userID && !notification.Read {
			count++
		}
	}
	return count, nil
}

func (s memoryNotificationStore) DeleteExpired(_ context.Context, now time.Time) (int, error) {
	s.w.mu.Lock()
	defer s.w.mu.Unlock()
	deleted := 0
	for id, notification := range s.w.notifications {
		if notification.ExpiresAt != nil && notification.ExpiresAt.Before(now) {
			delete(s.w.notifications, id)
			deleted++
		}
	}
	return deleted, nil
}

type memoryPreferenceStore struct{ w *memoryWorld }

func (s memoryPreferenceStore) Get(_ context.Context, userID string) (NotificationPreferences, error) {
	s.w.mu.Lock()
	defer s.w.mu.Unlock()
	if s.w.prefErr != nil {
		return NotificationPreferences{}, s.w.prefErr
	}
	prefs, ok := s.w.preferences[userID]
	if !ok {
		return NotificationPreferences{}, fmt.Errorf("%w: preferences for %s", ErrNotFound, userID)
	}
	return prefs, nil
}

func (s memoryPreferenceStore) Upsert(_ context.Context, prefs NotificationPreferences) (NotificationPreferences, error) {
	s.w.mu.Lock()
	defer s.w.mu.Unlock()
	s.w.preferences[prefs.UserID] = prefs
	return prefs, nil
}

type memoryDirectory struct{ w *memoryWorld }

func (d memoryDirectory) GetCategory(_ context.Context, id string) (Category, error) {
	d.w.mu.Lock()
	defer d.w.mu.Unlock()
	category, ok := d.w.categories[id]
	if !ok {
		return Category{}, fmt.Errorf("%w: category %s", ErrNotFound, id)
	}
	return category, nil
}

func (d memoryDirectory) GetUser(_ context.Context, id string) (User, error) {
	d.w.mu.Lock()
	defer d.w.mu.Unlock()
	user, ok := d.w.users[id]
	if !ok {
		return User{}, fmt.Errorf("%w: user %s", ErrNotFound, id)
	}
	return user, nil
}

func (d memoryDirectory) ListContractors(_ context.Context, filter ContractorFilter) ([]User, error) {
	d.w.mu.Lock()
	defer d.w.mu.Unlock()
	excluded := map[string]struct{}{}
	for _, id := range filter.ExcludeIDs {
		excluded[id] = struct{}{}
	}
	var out []User
	for _, user := range d.w.users {
		if user.Role != UserRoleContractor {
			continue
		}
		if _, skip := excluded[user.ID]; skip {
			continue
		}
		if filter.CategoryID != "" && !containsString(user.CategoryIDs, filter.CategoryID) {
			continue
		}
		out = append(out, user)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	if filter.Limit > 0 && len(out) > filter.Limit {
		out = out[:filter.Limit]
	}
	return out, nil
}

func containsString(values []string, target string) bool {
	for _, value := range values {
		if value == target {
			return true
		}
	}
	return false
}

type captureEnqueuer struct {
	mu       sync.Mutex
	messages []*JobExecutionMessage
	err      error
}

func (e *captureEnqueuer) Enqueue(_ context.Context, msg *JobExecutionMessage) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.err != nil {
		return e.err
	}
	e.messages = append(e.messages, msg)
	return nil
}

func (e *captureEnqueuer) byChannel(channel Channel) []*JobExecutionMessage {
	e.mu.Lock()
	defer e.mu.Unlock()
	var out []*JobExecutionMessage
	for _, msg := range e.messages {
		if msg.Parameters[JobParamChannel] == string(channel) {
			out = append(out, msg)
		}
	}
	return out
}

func (e *captureEnqueuer) byJobID(jobID string) []*JobExecutionMessage {
	e.mu.Lock()
	defer e.mu.Unlock()
	var out []*JobExecutionMessage
	for _, msg := range e.messages {
		if msg.JobID == jobID {
			out = append(out, msg)
		}
	}
	return out
}

type realtimeEvent struct {
	kind           string
	userID         string
	notificationID string
	count          int
}

type captureRealtime struct {
	mu       sync.Mutex
	events   []realtimeEvent
	sendErr  error
	countErr error
	panics   bool
}

func (r *captureRealtime) SendToUser(_ context.Context, userID string, notification Notification) error {
	if r.panics {
		panic("registry unreachable")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.sendErr != nil {
		return r.sendErr
	}
	r.events = append(r.events, realtimeEvent{kind: "notification", userID: userID, notificationID: notification.ID})
	return nil
}

func (r *captureRealtime) UpdateUnreadCount(_ context.Context, userID string, count int) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.countErr != nil {
		return r.countErr
	}
	r.events = append(r.events, realtimeEvent{kind: "unread_count", userID: userID, count: count})
	return nil
}

func (r *captureRealtime) setErrors(sendErr error, countErr error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sendErr = sendErr
	r.countErr = countErr
}

func (r *captureRealtime) notificationsSent() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	sent := 0
	for _, event := range r.events {
		if event.kind == "notification" {
			sent++
		}
	}
	return sent
}

func (r *captureRealtime) snapshot() []realtimeEvent {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]realtimeEvent(nil), r.events...)
}

func (r *captureRealtime) lastCount(userID string) (int, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i := len(r.events) - 1; i >= 0; i-- {
		if r.events[i].kind == "unread_count" && r.events[i].userID == userID {
			return r.events[i].count, true
		}
	}
	return 0, false
}

type captureSender struct {
	mu       sync.Mutex
	requests []NotificationRequest
	err      error
}

func (s *captureSender) Send(_ context.Context, req NotificationRequest) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	s.requests = append(s.requests, req)
	return nil
}

type memoryLedger struct {
	mu      sync.Mutex
	records map[string]DispatchRecord
}

func newMemoryLedger() *memoryLedger {
	return &memoryLedger{records: map[string]DispatchRecord{}}
}

func (l *memoryLedger) Claim(_ context.Context, record DispatchRecord) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if _, exists := l.records[record.IdempotencyKey]; exists {
		return false, nil
	}
	l.records[record.IdempotencyKey] = record
	return true, nil
}

func (l *memoryLedger) Complete(_ context.Context, key string, status string, errText string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	record, ok := l.records[key]
	if !ok {
		return errors.New("ledger: unknown key")
	}
	record.Status = status
	record.Error = errText
	l.records[key] = record
	return nil
}

func (l *memoryLedger) status(key string) (string, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	record, ok := l.records[key]
	return record.Status, ok
}

func (l *memoryLedger) Release(_ context.Context, key string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.records, key)
	return nil
}

type fixedClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFixedClock() *fixedClock {
	return &fixedClock{now: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fixedClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fixedClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type marketplaceHarness struct {
	world    *memoryWorld
	svc      *Service
	jobs     *captureEnqueuer
	realtime *captureRealtime
	clock    *fixedClock
}

func newMarketplaceHarness(cfg Config, opts ...Option) *marketplaceHarness {
	world := newMemoryWorld()
	orders, proposals, uow, notifications := world.stores()
	jobs := &captureEnqueuer{}
	realtime := &captureRealtime{}
	clock := newFixedClock()
	base := []Option{
		WithLogger(stubLogger{}),
		WithOrderStore(orders),
		WithProposalStore(proposals),
		WithUnitOfWork(uow),
		WithNotificationStore(notifications),
		WithPreferenceStore(memoryPreferenceStore{w: world}),
		WithCategoryDirectory(memoryDirectory{w: world}),
		WithUserDirectory(memoryDirectory{w: world}),
		WithJobEnqueuer(jobs),
		WithRealtimePublisher(realtime),
		WithClock(clock.Now),
	}
	svc, err := NewService(cfg, append(base, opts...)...)
	if err != nil {
		panic(err)
	}
	return &marketplaceHarness{world: world, svc: svc, jobs: jobs, realtime: realtime, clock: clock}
}

// publishedOrder creates and publishes a public order owned by client_1.
func (h *marketplaceHarness) publishedOrder(ctx context.Context) (Order, error) {
	order, err := h.svc.Orders().Create(ctx, "client_1", OrderDraft{
		Title:      "Fix kitchen sink",
		Type:       OrderTypePublic,
		Budget:     30000,
		CategoryID: "cat_plumbing",
		Location:   Location{City: "Lisbon", CountryCode: "pt"},
	})
	if err != nil {
		return Order{}, err
	}
	return h.svc.Orders().Publish(ctx, order.ID, "client_1")
}

type stubLogger struct{}

func (stubLogger) Trace(string, ...any) {}
func (stubLogger) Debug(string, ...any) {}
func (stubLogger) Info(string, ...any)  {}
func (stubLogger) Warn(string, ...any)  {}
func (stubLogger) Error(string, ...any) {}
func (stubLogger) Fatal(string, ...any) {}
func (s stubLogger) WithContext(context.Context) Logger {
	return s
}

type stubLoggerProvider struct {
	logger Logger
}

func (s stubLoggerProvider) GetLogger(string) Logger {
	return s.logger
}

type mapRawLoader struct {
	values map[string]any
}

func (l mapRawLoader) LoadRaw(context.Context) (map[string]any, error) {
	if len(l.values) == 0 {
		return map[string]any{}, nil
	}
	out := make(map[string]any, len(l.values))
	for key, value := range l.values {
		out[key] = value
	}
	return out, nil
}
