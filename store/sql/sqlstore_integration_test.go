package sqlstore_test

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io/fs"
	"sync"
	"testing"
	"time"

	job "github.com/goliatone/go-job"
	"github.com/goliatone/go-job/queue"
	"github.com/goliatone/go-marketplace/core"
	marketplacemigrations "github.com/goliatone/go-marketplace/migrations"
	sqlstore "github.com/goliatone/go-marketplace/store/sql"
	persistence "github.com/goliatone/go-persistence-bun"
	_ "github.com/mattn/go-sqlite3"
	"github.com/uptrace/bun/dialect/sqlitedialect"
)

type testPersistenceConfig struct {
	driver string
	server string
}

func (c testPersistenceConfig) GetDebug() bool {
	return false
}

func (c testPersistenceConfig) GetDriver() string {
	return c.driver
}

func (c testPersistenceConfig) GetServer() string {
	return c.server
}

func (c testPersistenceConfig) GetPingTimeout() time.Duration {
	return time.Second
}

func (c testPersistenceConfig) GetOtelIdentifier() string {
	return "go-marketplace-tests"
}

func TestMigrationSmokeApplySQLite(t *testing.T) {
	client, cleanup := newSQLiteClient(t)
	defer cleanup()

	for _, table := range []string{"marketplace_orders", "marketplace_proposals", "marketplace_jobs"} {
		var tableName string
		if err := client.DB().NewRaw(
			"SELECT name FROM sqlite_master WHERE type = 'table' AND name = ?",
			table,
		).Scan(context.Background(), &tableName); err != nil {
			t.Fatalf("query sqlite master for %s: %v", table, err)
		}
		if tableName != table {
			t.Fatalf("expected %s table, got %q", table, tableName)
		}
	}
}

func TestOrderStore_CompareAndSwapAndSoftDelete(t *testing.T) {
	ctx := context.Background()
	factory := newFactory(t)
	orders := factory.OrderStore()

	created, err := orders.Create(ctx, testOrder("client-1", core.OrderStatusDraft))
	if err != nil {
		t.Fatalf("create order: %v", err)
	}
	if created.ID == "" {
		t.Fatalf("expected generated order id")
	}

	published := created
	published.Status = core.OrderStatusPublished
	now := time.Now().UTC()
	published.PublishedAt = &now
	updated, err := orders.UpdateIfStatus(ctx, published, core.OrderStatusDraft)
	if err != nil {
		t.Fatalf("publish order: %v", err)
	}
	if updated.Status != core.OrderStatusPublished || updated.PublishedAt == nil {
		t.Fatalf("expected published order with timestamp, got %+v", updated)
	}

	if _, err := orders.UpdateIfStatus(ctx, published, core.OrderStatusDraft); !errors.Is(err, core.ErrStaleState) {
		t.Fatalf("expected stale state on second draft->published, got %v", err)
	}

	missing := published
	missing.ID = "order-missing"
	if _, err := orders.UpdateIfStatus(ctx, missing, core.OrderStatusDraft); !errors.Is(err, core.ErrNotFound) {
		t.Fatalf("expected not found for unknown order, got %v", err)
	}

	if err := orders.SoftDelete(ctx, created.ID, core.OrderStatusDraft, now); !errors.Is(err, core.ErrStaleState) {
		t.Fatalf("expected stale state deleting a published order as draft, got %v", err)
	}
	if err := orders.SoftDelete(ctx, created.ID, core.OrderStatusPublished, now); err != nil {
		t.Fatalf("soft delete: %v", err)
	}
	if _, err := orders.Get(ctx, created.ID); !errors.Is(err, core.ErrNotFound) {
		t.Fatalf("expected soft deleted order to be hidden, got %v", err)
	}
}

func TestOrderStore_SearchFiltersAndPaginates(t *testing.T) {
	ctx := context.Background()
	factory := newFactory(t)
	orders := factory.OrderStore()

	seed := []core.Order{
		withTitle(testOrder("client-1", core.OrderStatusPublished), "Fix kitchen sink", 5000),
		withTitle(testOrder("client-1", core.OrderStatusPublished), "Paint fence", 12000),
		withTitle(testOrder("client-2", core.OrderStatusDraft), "Sink replacement", 8000),
		withTitle(testOrder("client-2", core.OrderStatusPublished), "100% done_right", 3000),
	}
	base := time.Now().UTC().Add(-time.Hour)
	for i := range seed {
		seed[i].CreatedAt = base.Add(time.Duration(i) * time.Minute)
		if _, err := orders.Create(ctx, seed[i]); err != nil {
			t.Fatalf("create order %d: %v", i, err)
		}
	}

	page, err := orders.Search(ctx, core.OrderFilter{Query: "SINK"})
	if err != nil {
		t.Fatalf("search by text: %v", err)
	}
	if page.Total != 2 {
		t.Fatalf("expected 2 sink orders, got %d", page.Total)
	}
	if page.Items[0].Title != "Sink replacement" {
		t.Fatalf("expected newest first, got %q", page.Items[0].Title)
	}

	page, err = orders.Search(ctx, core.OrderFilter{Query: "100%"})
	if err != nil {
		t.Fatalf("search with wildcard: %v", err)
	}
	if page.Total != 1 {
		t.Fatalf("expected LIKE wildcards to be escaped, got %d matches", page.Total)
	}

	minBudget := int64(4000)
	maxBudget := int64(10000)
	page, err = orders.Search(ctx, core.OrderFilter{
		Status:    core.OrderStatusPublished,
		MinBudget: &minBudget,
		MaxBudget: &maxBudget,
	})
	if err != nil {
		t.Fatalf("search by budget: %v", err)
	}
	if page.Total != 1 || page.Items[0].Title != "Fix kitchen sink" {
		t.Fatalf("expected only the published sink order in budget range, got %+v", page.Items)
	}

	page, err = orders.Search(ctx, core.OrderFilter{PerPage: 2, Page: 2})
	if err != nil {
		t.Fatalf("search page 2: %v", err)
	}
	if page.Total != 4 || len(page.Items) != 2 || page.Page != 2 || page.PerPage != 2 {
		t.Fatalf("unexpected pagination: total=%d items=%d page=%d per_page=%d", page.Total, len(page.Items), page.Page, page.PerPage)
	}
}

func TestProposalStore_UniquePerContractorAndListing(t *testing.T) {
	ctx := context.Background()
	factory := newFactory(t)
	order := mustCreateOrder(t, factory, core.OrderStatusPublished)
	proposals := factory.ProposalStore()

	first, err := proposals.Create(ctx, core.Proposal{OrderID: order.ID, ContractorID: "contractor-1", Price: 4500})
	if err != nil {
		t.Fatalf("create proposal: %v", err)
	}
	if first.Status != core.ProposalStatusPending {
		t.Fatalf("expected pending proposal, got %q", first.Status)
	}
	if _, err := proposals.Create(ctx, core.Proposal{OrderID: order.ID, ContractorID: "contractor-1", Price: 4000}); !errors.Is(err, core.ErrUniqueViolation) {
		t.Fatalf("expected unique violation for duplicate proposal, got %v", err)
	}
	if _, err := proposals.Create(ctx, core.Proposal{
		OrderID:      order.ID,
		ContractorID: "contractor-2",
		Price:        4800,
		CreatedAt:    first.CreatedAt.Add(time.Second),
	}); err != nil {
		t.Fatalf("create second proposal: %v", err)
	}

	listed, err := proposals.ListByOrder(ctx, order.ID)
	if err != nil {
		t.Fatalf("list by order: %v", err)
	}
	if len(listed) != 2 || listed[0].ContractorID != "contractor-1" {
		t.Fatalf("expected proposals in submission order, got %+v", listed)
	}

	edited := first
	edited.Price = 4200
	if _, err := proposals.UpdateIfStatus(ctx, edited, core.ProposalStatusPending); err != nil {
		t.Fatalf("update pending proposal: %v", err)
	}
	if _, err := proposals.UpdateIfStatus(ctx, edited, core.ProposalStatusAccepted); !errors.Is(err, core.ErrStaleState) {
		t.Fatalf("expected stale state when status differs, got %v", err)
	}

	page, err := proposals.ListByContractor(ctx, "contractor-1", core.ProposalFilter{Status: core.ProposalStatusPending})
	if err != nil {
		t.Fatalf("list by contractor: %v", err)
	}
	if page.Total != 1 || page.Items[0].Price != 4200 {
		t.Fatalf("expected updated proposal in contractor listing, got %+v", page.Items)
	}
}

func TestUnitOfWork_AcceptFlowCommitsAtomically(t *testing.T) {
	ctx := context.Background()
	factory := newFactory(t)
	order := mustCreateOrder(t, factory, core.OrderStatusPublished)
	proposals := factory.ProposalStore()

	accepted, err := proposals.Create(ctx, core.Proposal{OrderID: order.ID, ContractorID: "contractor-1", Price: 4500})
	if err != nil {
		t.Fatalf("create proposal: %v", err)
	}
	other, err := proposals.Create(ctx, core.Proposal{OrderID: order.ID, ContractorID: "contractor-2", Price: 4700})
	if err != nil {
		t.Fatalf("create proposal: %v", err)
	}

	now := time.Now().UTC()
	var rejected []core.Proposal
	err = factory.UnitOfWork().RunInTx(ctx, func(ctx context.Context, tx core.TxStores) error {
		if _, err := tx.GetOrder(ctx, order.ID); err != nil {
			return err
		}
		ok, err := tx.TransitionProposal(ctx, accepted.ID, core.ProposalStatusPending, core.ProposalStatusAccepted, now)
		if err != nil || !ok {
			return fmt.Errorf("transition proposal: ok=%v err=%v", ok, err)
		}
		rejected, err = tx.RejectPendingProposals(ctx, order.ID, accepted.ID, now)
		if err != nil {
			return err
		}
		assigned, err := tx.AssignContractor(ctx, core.AssignContractorInput{
			OrderID:      order.ID,
			ContractorID: accepted.ContractorID,
			AgreedPrice:  accepted.Price,
			StartedAt:    now,
		})
		if err != nil || !assigned {
			return fmt.Errorf("assign contractor: ok=%v err=%v", assigned, err)
		}
		return tx.EnqueueOutbox(ctx, core.OutboxEvent{
			ID:            "evt-accept-1",
			Name:          "proposal.accepted",
			AggregateType: "order",
			AggregateID:   order.ID,
			OccurredAt:    now,
			Payload:       map[string]any{"proposal_id": accepted.ID},
		})
	})
	if err != nil {
		t.Fatalf("accept transaction: %v", err)
	}

	if len(rejected) != 1 || rejected[0].ID != other.ID || rejected[0].Status != core.ProposalStatusRejected {
		t.Fatalf("expected the other proposal rejected, got %+v", rejected)
	}
	stored, err := factory.OrderStore().Get(ctx, order.ID)
	if err != nil {
		t.Fatalf("get order: %v", err)
	}
	if stored.Status != core.OrderStatusInProgress || stored.ContractorID != "contractor-1" {
		t.Fatalf("expected in_progress order assigned to contractor-1, got %+v", stored)
	}
	if stored.AgreedPrice == nil || *stored.AgreedPrice != 4500 {
		t.Fatalf("expected agreed price 4500, got %v", stored.AgreedPrice)
	}

	events, err := factory.OutboxStore().ClaimBatch(ctx, 10)
	if err != nil {
		t.Fatalf("claim outbox: %v", err)
	}
	if len(events) != 1 || events[0].ID != "evt-accept-1" {
		t.Fatalf("expected committed outbox event, got %+v", events)
	}
}

func TestUnitOfWork_RollsBackOnError(t *testing.T) {
	ctx := context.Background()
	factory := newFactory(t)
	order := mustCreateOrder(t, factory, core.OrderStatusPublished)
	proposal, err := factory.ProposalStore().Create(ctx, core.Proposal{OrderID: order.ID, ContractorID: "contractor-1", Price: 100})
	if err != nil {
		t.Fatalf("create proposal: %v", err)
	}

	boom := errors.New("abort")
	err = factory.UnitOfWork().RunInTx(ctx, func(ctx context.Context, tx core.TxStores) error {
		if _, err := tx.TransitionProposal(ctx, proposal.ID, core.ProposalStatusPending, core.ProposalStatusAccepted, time.Now()); err != nil {
			return err
		}
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("expected callback error, got %v", err)
	}

	stored, err := factory.ProposalStore().Get(ctx, proposal.ID)
	if err != nil {
		t.Fatalf("get proposal: %v", err)
	}
	if stored.Status != core.ProposalStatusPending {
		t.Fatalf("expected rollback to keep proposal pending, got %q", stored.Status)
	}

	err = factory.UnitOfWork().RunInTx(ctx, func(ctx context.Context, tx core.TxStores) error {
		ok, err := tx.AssignContractor(ctx, core.AssignContractorInput{OrderID: "order-missing", ContractorID: "c", StartedAt: time.Now()})
		if err != nil {
			return err
		}
		if ok {
			t.Fatalf("expected no assignment for unknown order")
		}
		return nil
	})
	if err != nil {
		t.Fatalf("assign unknown order: %v", err)
	}
}

func TestProposalStore_CreateRequiresOpenOrder(t *testing.T) {
	ctx := context.Background()
	factory := newFactory(t)
	proposals := factory.ProposalStore()

	draft := mustCreateOrder(t, factory, core.OrderStatusDraft)
	if _, err := proposals.Create(ctx, core.Proposal{OrderID: draft.ID, ContractorID: "contractor-1", Price: 100}); !errors.Is(err, core.ErrStaleState) {
		t.Fatalf("expected stale state for a draft order, got %v", err)
	}

	order := mustCreateOrder(t, factory, core.OrderStatusPublished)
	if _, err := proposals.Create(ctx, core.Proposal{OrderID: order.ID, ContractorID: "contractor-1", Price: 100}); err != nil {
		t.Fatalf("create proposal on published order: %v", err)
	}
	err := factory.UnitOfWork().RunInTx(ctx, func(ctx context.Context, tx core.TxStores) error {
		ok, err := tx.AssignContractor(ctx, core.AssignContractorInput{
			OrderID:      order.ID,
			ContractorID: "contractor-1",
			AgreedPrice:  100,
			StartedAt:    time.Now(),
		})
		if err != nil || !ok {
			return fmt.Errorf("assign contractor: ok=%v err=%v", ok, err)
		}
		return nil
	})
	if err != nil {
		t.Fatalf("assign: %v", err)
	}

	if _, err := proposals.Create(ctx, core.Proposal{OrderID: order.ID, ContractorID: "contractor-2", Price: 90}); !errors.Is(err, core.ErrStaleState) {
		t.Fatalf("expected stale state once the order is in progress, got %v", err)
	}
	listed, err := proposals.ListByOrder(ctx, order.ID)
	if err != nil {
		t.Fatalf("list by order: %v", err)
	}
	if len(listed) != 1 || listed[0].ContractorID != "contractor-1" {
		t.Fatalf("expected no proposal inserted after assignment, got %+v", listed)
	}
}

func TestUnitOfWork_RejectPendingReturnsOnlyMovedRows(t *testing.T) {
	ctx := context.Background()
	factory := newFactory(t)
	order := mustCreateOrder(t, factory, core.OrderStatusPublished)
	proposals := factory.ProposalStore()

	var created []core.Proposal
	for i, contractor := range []string{"contractor-1", "contractor-2", "contractor-3"} {
		proposal, err := proposals.Create(ctx, core.Proposal{
			OrderID:      order.ID,
			ContractorID: contractor,
			Price:        int64(100 + i),
			CreatedAt:    time.Now().UTC().Add(time.Duration(i) * time.Second),
		})
		if err != nil {
			t.Fatalf("create proposal: %v", err)
		}
		created = append(created, proposal)
	}

	alreadyRejected := created[1]
	alreadyRejected.Status = core.ProposalStatusRejected
	if _, err := proposals.UpdateIfStatus(ctx, alreadyRejected, core.ProposalStatusPending); err != nil {
		t.Fatalf("reject proposal: %v", err)
	}

	var rejected []core.Proposal
	err := factory.UnitOfWork().RunInTx(ctx, func(ctx context.Context, tx core.TxStores) error {
		var err error
		rejected, err = tx.RejectPendingProposals(ctx, order.ID, created[0].ID, time.Now())
		return err
	})
	if err != nil {
		t.Fatalf("reject pending: %v", err)
	}
	if len(rejected) != 1 || rejected[0].ID != created[2].ID || rejected[0].Status != core.ProposalStatusRejected {
		t.Fatalf("expected only the still pending proposal reported, got %+v", rejected)
	}
}

func TestProposalCoordinator_ConcurrentAcceptSQLite(t *testing.T) {
	ctx := context.Background()
	factory := newFactory(t)
	cfg := core.DefaultConfig()
	cfg.Outbox.Enabled = true
	svc, err := core.NewService(cfg,
		core.WithOrderStore(factory.OrderStore()),
		core.WithProposalStore(factory.ProposalStore()),
		core.WithUnitOfWork(factory.UnitOfWork()),
		core.WithNotificationStore(factory.NotificationStore()),
	)
	if err != nil {
		t.Fatalf("new service: %v", err)
	}

	order := mustCreateOrder(t, factory, core.OrderStatusPublished)
	var ids []string
	for _, contractor := range []string{"contractor-1", "contractor-2"} {
		proposal, err := factory.ProposalStore().Create(ctx, core.Proposal{OrderID: order.ID, ContractorID: contractor, Price: 4000})
		if err != nil {
			t.Fatalf("create proposal: %v", err)
		}
		ids = append(ids, proposal.ID)
	}

	var wg sync.WaitGroup
	errs := make([]error, len(ids))
	start := make(chan struct{})
	for i, id := range ids {
		wg.Add(1)
		go func(i int, id string) {
			defer wg.Done()
			<-start
			_, errs[i] = svc.Proposals().Accept(ctx, id, "client-1")
		}(i, id)
	}
	close(start)
	wg.Wait()

	succeeded, invalid := 0, 0
	for _, err := range errs {
		switch {
		case err == nil:
			succeeded++
		case core.IsInvalidState(err):
			invalid++
		default:
			t.Fatalf("unexpected accept error: %v", err)
		}
	}
	if succeeded != 1 || invalid != 1 {
		t.Fatalf("expected one success and one invalid state, got success=%d invalid=%d", succeeded, invalid)
	}

	listed, err := factory.ProposalStore().ListByOrder(ctx, order.ID)
	if err != nil {
		t.Fatalf("list by order: %v", err)
	}
	accepted := 0
	for _, proposal := range listed {
		switch proposal.Status {
		case core.ProposalStatusAccepted:
			accepted++
		case core.ProposalStatusPending:
			t.Fatalf("expected no pending proposal left, got %+v", proposal)
		}
	}
	if accepted != 1 {
		t.Fatalf("expected exactly one accepted proposal, got %d", accepted)
	}
	stored, err := factory.OrderStore().Get(ctx, order.ID)
	if err != nil {
		t.Fatalf("get order: %v", err)
	}
	if stored.Status != core.OrderStatusInProgress {
		t.Fatalf("expected order in progress, got %s", stored.Status)
	}
}

func TestNotificationStore_ReadStateAndExpiry(t *testing.T) {
	ctx := context.Background()
	factory := newFactory(t)
	notifications := factory.NotificationStore()

	now := time.Now().UTC()
	expired := now.Add(-time.Minute)
	first, err := notifications.Create(ctx, core.Notification{
		UserID:   "user-1",
		Type:     core.NotificationNewProposal,
		Priority: core.PriorityNormal,
		Title:    "New proposal",
		Metadata: map[string]any{"order_id": "order-1"},
		Channels: []core.Channel{core.ChannelInApp, core.ChannelEmail},
	})
	if err != nil {
		t.Fatalf("create notification: %v", err)
	}
	if _, err := notifications.Create(ctx, core.Notification{
		UserID:    "user-1",
		Type:      core.NotificationSystemAnnouncement,
		Priority:  core.PriorityLow,
		Title:     "Maintenance",
		ExpiresAt: &expired,
	}); err != nil {
		t.Fatalf("create expiring notification: %v", err)
	}

	fetched, err := notifications.Get(ctx, first.ID)
	if err != nil {
		t.Fatalf("get notification: %v", err)
	}
	if !fetched.HasChannel(core.ChannelEmail) || fetched.Metadata["order_id"] != "order-1" {
		t.Fatalf("expected channels and metadata round trip, got %+v", fetched)
	}

	unread, err := notifications.CountUnread(ctx, "user-1")
	if err != nil || unread != 2 {
		t.Fatalf("expected 2 unread, got %d (%v)", unread, err)
	}

	found, err := notifications.MarkRead(ctx, "user-1", first.ID, now)
	if err != nil || !found {
		t.Fatalf("mark read: found=%v err=%v", found, err)
	}
	found, err = notifications.MarkRead(ctx, "user-1", first.ID, now.Add(time.Hour))
	if err != nil || !found {
		t.Fatalf("expected repeated mark read to report found, got found=%v err=%v", found, err)
	}
	found, err = notifications.MarkRead(ctx, "user-2", first.ID, now)
	if err != nil || found {
		t.Fatalf("expected other user mark read to report not found, got found=%v err=%v", found, err)
	}

	page, err := notifications.List(ctx, "user-1", core.NotificationFilter{UnreadOnly: true})
	if err != nil {
		t.Fatalf("list unread: %v", err)
	}
	if page.Total != 1 || page.Unread != 1 {
		t.Fatalf("expected one unread notification, got total=%d unread=%d", page.Total, page.Unread)
	}

	if err := notifications.MarkSent(ctx, first.ID, now); err != nil {
		t.Fatalf("mark sent: %v", err)
	}

	deleted, err := notifications.DeleteExpired(ctx, now)
	if err != nil || deleted != 1 {
		t.Fatalf("expected one expired notification deleted, got %d (%v)", deleted, err)
	}

	removed, err := notifications.Delete(ctx, "user-2", first.ID)
	if err != nil || removed {
		t.Fatalf("expected delete by another user to be a no-op, got %v (%v)", removed, err)
	}
	count, err := notifications.DeleteAll(ctx, "user-1")
	if err != nil || count != 1 {
		t.Fatalf("expected delete all to remove 1, got %d (%v)", count, err)
	}
}

func TestPreferenceStore_UpsertRoundTrip(t *testing.T) {
	ctx := context.Background()
	factory := newFactory(t)
	prefs := factory.PreferenceStore()

	if _, err := prefs.Get(ctx, "user-1"); !errors.Is(err, core.ErrNotFound) {
		t.Fatalf("expected not found before upsert, got %v", err)
	}

	value := core.DefaultNotificationPreferences("user-1")
	value.Channels.Push = false
	value.Email.Marketing = false
	if _, err := prefs.Upsert(ctx, value); err != nil {
		t.Fatalf("first upsert: %v", err)
	}
	value.Channels.Email = false
	saved, err := prefs.Upsert(ctx, value)
	if err != nil {
		t.Fatalf("second upsert: %v", err)
	}
	if saved.Channels.Push || saved.Channels.Email || !saved.Channels.InApp {
		t.Fatalf("unexpected channel toggles: %+v", saved.Channels)
	}
	if saved.Email.Marketing || !saved.Email.Proposals {
		t.Fatalf("unexpected email categories: %+v", saved.Email)
	}
}

func TestDirectoryStore_ListContractors(t *testing.T) {
	ctx := context.Background()
	factory := newFactory(t)
	directory := factory.Directory()

	if err := directory.SaveCategory(ctx, core.Category{ID: "plumbing", Name: "Plumbing", Active: true}); err != nil {
		t.Fatalf("save category: %v", err)
	}
	users := []core.User{
		{ID: "c1", Role: core.UserRoleContractor, Email: "c1@example.com", CategoryIDs: []string{"plumbing"}, Location: core.Location{City: "Berlin", CountryCode: "DE"}},
		{ID: "c2", Role: core.UserRoleContractor, CategoryIDs: []string{"plumbing", "painting"}, Location: core.Location{City: "berlin", CountryCode: "de"}},
		{ID: "c3", Role: core.UserRoleContractor, CategoryIDs: []string{"painting"}, Location: core.Location{City: "Berlin", CountryCode: "DE"}},
		{ID: "u1", Role: core.UserRoleClient, CategoryIDs: []string{"plumbing"}, Location: core.Location{City: "Berlin", CountryCode: "DE"}},
	}
	for _, user := range users {
		if err := directory.SaveUser(ctx, user); err != nil {
			t.Fatalf("save user %s: %v", user.ID, err)
		}
	}

	contractors, err := directory.ListContractors(ctx, core.ContractorFilter{
		CategoryID:  "plumbing",
		City:        "BERLIN",
		CountryCode: "de",
		ExcludeIDs:  []string{"c1"},
	})
	if err != nil {
		t.Fatalf("list contractors: %v", err)
	}
	if len(contractors) != 1 || contractors[0].ID != "c2" {
		t.Fatalf("expected only c2, got %+v", contractors)
	}
	if len(contractors[0].CategoryIDs) != 2 {
		t.Fatalf("expected c2 categories loaded, got %v", contractors[0].CategoryIDs)
	}

	category, err := directory.GetCategory(ctx, "plumbing")
	if err != nil || !category.Active {
		t.Fatalf("get category: %+v (%v)", category, err)
	}
	if _, err := directory.GetUser(ctx, "missing"); !errors.Is(err, core.ErrNotFound) {
		t.Fatalf("expected not found user, got %v", err)
	}
}

func TestOutboxStore_RetryAndAck(t *testing.T) {
	ctx := context.Background()
	factory := newFactory(t)
	outbox := factory.OutboxStore()

	if err := outbox.Enqueue(ctx, core.OutboxEvent{ID: "evt-1", Name: "order.published", OccurredAt: time.Now().UTC()}); err != nil {
		t.Fatalf("enqueue: %v", err)
	}
	claimed, err := outbox.ClaimBatch(ctx, 5)
	if err != nil || len(claimed) != 1 {
		t.Fatalf("claim: %d events (%v)", len(claimed), err)
	}
	again, err := outbox.ClaimBatch(ctx, 5)
	if err != nil || len(again) != 0 {
		t.Fatalf("expected claimed event to be invisible, got %d (%v)", len(again), err)
	}

	if err := outbox.Retry(ctx, "evt-1", errors.New("handler down"), time.Now().UTC().Add(-time.Second)); err != nil {
		t.Fatalf("retry: %v", err)
	}
	claimed, err = outbox.ClaimBatch(ctx, 5)
	if err != nil || len(claimed) != 1 {
		t.Fatalf("expected retried event claimable, got %d (%v)", len(claimed), err)
	}
	if claimed[0].Metadata[core.MetadataKeyOutboxAttempts] != 1 {
		t.Fatalf("expected attempt count 1, got %v", claimed[0].Metadata[core.MetadataKeyOutboxAttempts])
	}

	if err := outbox.Ack(ctx, "evt-1"); err != nil {
		t.Fatalf("ack: %v", err)
	}
	claimed, err = outbox.ClaimBatch(ctx, 5)
	if err != nil || len(claimed) != 0 {
		t.Fatalf("expected delivered event to stay delivered, got %d (%v)", len(claimed), err)
	}
}

func TestDispatchLedgerStore_ClaimCompleteRelease(t *testing.T) {
	ctx := context.Background()
	factory := newFactory(t)
	ledger := factory.DispatchLedger()

	record := core.DispatchRecord{
		IdempotencyKey: core.DeliveryIdempotencyKey("notif-1", core.ChannelEmail),
		NotificationID: "notif-1",
		Channel:        core.ChannelEmail,
		Metadata:       map[string]any{"device_token": "secret"},
	}
	ok, err := ledger.Claim(ctx, record)
	if err != nil || !ok {
		t.Fatalf("first claim: ok=%v err=%v", ok, err)
	}
	ok, err = ledger.Claim(ctx, record)
	if err != nil || ok {
		t.Fatalf("expected duplicate claim to be refused, got ok=%v err=%v", ok, err)
	}

	if err := ledger.Release(ctx, record.IdempotencyKey); err != nil {
		t.Fatalf("release: %v", err)
	}
	ok, err = ledger.Claim(ctx, record)
	if err != nil || !ok {
		t.Fatalf("expected claim after release, got ok=%v err=%v", ok, err)
	}

	if err := ledger.Complete(ctx, record.IdempotencyKey, core.DispatchStatusDelivered, ""); err != nil {
		t.Fatalf("complete: %v", err)
	}
	if err := ledger.Release(ctx, record.IdempotencyKey); err != nil {
		t.Fatalf("release delivered: %v", err)
	}
	status, err := ledger.Status(ctx, record.IdempotencyKey)
	if err != nil {
		t.Fatalf("status: %v", err)
	}
	if status != core.DispatchStatusDelivered {
		t.Fatalf("expected delivered claim to survive release, got %q", status)
	}
}

func TestAuditStore_RedactsMetadata(t *testing.T) {
	ctx := context.Background()
	factory := newFactory(t)
	audit := factory.AuditStore()

	base := time.Now().UTC()
	events := []core.AuditEvent{
		{Action: "order.published", ActorID: "client-1", ObjectType: "order", ObjectID: "order-1", OccurredAt: base},
		{Action: "order.cancelled", ActorID: "client-1", ObjectType: "order", ObjectID: "order-1", OccurredAt: base.Add(time.Minute),
			Metadata: map[string]any{"reason": "changed plans", "access_token": "tok"}},
	}
	for _, event := range events {
		if err := audit.Log(ctx, event); err != nil {
			t.Fatalf("log %s: %v", event.Action, err)
		}
	}

	trail, err := audit.ListByObject(ctx, "order", "order-1")
	if err != nil {
		t.Fatalf("list audit: %v", err)
	}
	if len(trail) != 2 || trail[0].Action != "order.published" {
		t.Fatalf("expected oldest first audit trail, got %+v", trail)
	}
	if trail[1].Metadata["access_token"] == "tok" {
		t.Fatalf("expected sensitive metadata to be redacted")
	}
	if trail[1].Metadata["reason"] != "changed plans" {
		t.Fatalf("expected plain metadata kept, got %v", trail[1].Metadata["reason"])
	}
}

func TestJobQueue_DedupLeaseAndNack(t *testing.T) {
	ctx := context.Background()
	factory := newFactory(t)
	jobs := factory.JobQueue()

	msg := &job.ExecutionMessage{
		JobID:          "marketplace.notification.deliver",
		Parameters:     map[string]any{"notification_id": "notif-1", "channel": "email"},
		IdempotencyKey: "notif-1:email",
	}
	if err := jobs.Enqueue(ctx, msg); err != nil {
		t.Fatalf("enqueue: %v", err)
	}
	if err := jobs.Enqueue(ctx, msg); err != nil {
		t.Fatalf("enqueue duplicate: %v", err)
	}
	pending, err := jobs.Pending(ctx)
	if err != nil || pending != 1 {
		t.Fatalf("expected one pending job after dedup, got %d (%v)", pending, err)
	}

	delivery, err := jobs.Dequeue(ctx)
	if err != nil {
		t.Fatalf("dequeue: %v", err)
	}
	if got := delivery.Message().Parameters["notification_id"]; got != "notif-1" {
		t.Fatalf("expected parameters round trip, got %v", got)
	}
	attempted, ok := delivery.(interface{ Attempt() int })
	if !ok || attempted.Attempt() != 1 {
		t.Fatalf("expected first attempt")
	}
	if _, err := jobs.Dequeue(ctx); !errors.Is(err, core.ErrNoJobs) {
		t.Fatalf("expected no jobs while leased, got %v", err)
	}

	if err := delivery.Nack(ctx, queue.NackOptions{Requeue: true, Reason: "smtp down"}); err != nil {
		t.Fatalf("nack requeue: %v", err)
	}
	delivery, err = jobs.Dequeue(ctx)
	if err != nil {
		t.Fatalf("dequeue after requeue: %v", err)
	}
	if attempted, ok := delivery.(interface{ Attempt() int }); !ok || attempted.Attempt() != 2 {
		t.Fatalf("expected second attempt after requeue")
	}
	if err := delivery.Nack(ctx, queue.NackOptions{DeadLetter: true, Reason: "gave up"}); err != nil {
		t.Fatalf("nack dead letter: %v", err)
	}
	if _, err := jobs.Dequeue(ctx); !errors.Is(err, core.ErrNoJobs) {
		t.Fatalf("expected dead lettered job to stay out of the queue, got %v", err)
	}
}

func TestJobQueue_ConcurrentWorkersClaimOnce(t *testing.T) {
	ctx := context.Background()
	factory := newFactory(t)
	jobs := factory.JobQueue()

	if err := jobs.Enqueue(ctx, &job.ExecutionMessage{
		JobID:      "marketplace.order.fanout",
		Parameters: map[string]any{"order_id": "order-1"},
	}); err != nil {
		t.Fatalf("enqueue: %v", err)
	}

	const workers = 8
	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		claimed []int
	)
	start := make(chan struct{})
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			delivery, err := jobs.Dequeue(ctx)
			if errors.Is(err, core.ErrNoJobs) {
				return
			}
			if err != nil {
				t.Errorf("dequeue: %v", err)
				return
			}
			attempt := 0
			if attempted, ok := delivery.(interface{ Attempt() int }); ok {
				attempt = attempted.Attempt()
			}
			mu.Lock()
			claimed = append(claimed, attempt)
			mu.Unlock()
		}()
	}
	close(start)
	wg.Wait()

	if len(claimed) != 1 || claimed[0] != 1 {
		t.Fatalf("expected a single first-attempt claim, got %v", claimed)
	}
}

func TestJobQueue_ReclaimsExpiredLease(t *testing.T) {
	ctx := context.Background()
	client, cleanup := newSQLiteClient(t)
	defer cleanup()

	clock := time.Now().UTC()
	jobs, err := sqlstore.NewJobQueue(client.DB(),
		sqlstore.WithJobLease(time.Minute),
		sqlstore.WithJobClock(func() time.Time { return clock }),
	)
	if err != nil {
		t.Fatalf("new job queue: %v", err)
	}
	if err := jobs.Enqueue(ctx, &job.ExecutionMessage{JobID: "marketplace.notification.fanout"}); err != nil {
		t.Fatalf("enqueue: %v", err)
	}
	if _, err := jobs.Dequeue(ctx); err != nil {
		t.Fatalf("first dequeue: %v", err)
	}

	clock = clock.Add(2 * time.Minute)
	delivery, err := jobs.Dequeue(ctx)
	if err != nil {
		t.Fatalf("expected expired lease to be reclaimed, got %v", err)
	}
	if err := delivery.Ack(ctx); err != nil {
		t.Fatalf("ack: %v", err)
	}
	if _, err := jobs.Dequeue(ctx); !errors.Is(err, core.ErrNoJobs) {
		t.Fatalf("expected acked job to be done, got %v", err)
	}
}

func newFactory(t *testing.T) *sqlstore.RepositoryFactory {
	t.Helper()
	client, cleanup := newSQLiteClient(t)
	t.Cleanup(cleanup)
	factory, err := sqlstore.NewRepositoryFactoryFromPersistence(client)
	if err != nil {
		t.Fatalf("new repository factory: %v", err)
	}
	return factory
}

func testOrder(clientID string, status core.OrderStatus) core.Order {
	return core.Order{
		Title:      "Fix sink",
		Type:       core.OrderTypePublic,
		Status:     status,
		ClientID:   clientID,
		Budget:     5000,
		CategoryID: "plumbing",
		Location:   core.Location{City: "Berlin", CountryCode: "DE"},
	}
}

func withTitle(order core.Order, title string, budget int64) core.Order {
	order.Title = title
	order.Budget = budget
	return order
}

func mustCreateOrder(t *testing.T, factory *sqlstore.RepositoryFactory, status core.OrderStatus) core.Order {
	t.Helper()
	order, err := factory.OrderStore().Create(context.Background(), testOrder("client-1", status))
	if err != nil {
		t.Fatalf("create order: %v", err)
	}
	return order
}

func newSQLiteClient(t *testing.T) (*persistence.Client, func()) {
	t.Helper()

	dsn := fmt.Sprintf(
		"file:marketplace-test-%d?mode=memory&cache=shared&_foreign_keys=on",
		time.Now().UnixNano(),
	)
	sqlDB, err := sql.Open("sqlite3", dsn)
	if err != nil {
		t.Fatalf("open sqlite db: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)

	cfg := testPersistenceConfig{
		driver: "sqlite3",
		server: dsn,
	}
	client, err := persistence.New(cfg, sqlDB, sqlitedialect.New())
	if err != nil {
		_ = sqlDB.Close()
		t.Fatalf("new persistence client: %v", err)
	}

	ctx := context.Background()
	_, err = marketplacemigrations.Register(ctx, func(_ context.Context, dialect string, _ string, fsys fs.FS) error {
		if dialect != marketplacemigrations.DialectSQLite {
			return nil
		}
		client.RegisterSQLMigrations(fsys)
		return nil
	}, marketplacemigrations.WithValidationTargets(marketplacemigrations.DialectSQLite))
	if err != nil {
		_ = client.Close()
		t.Fatalf("register migrations: %v", err)
	}
	if err := client.Migrate(ctx); err != nil {
		_ = client.Close()
		t.Fatalf("migrate: %v", err)
	}

	return client, func() {
		_ = client.Close()
	}
}
