package core

import (
	"context"
	"testing"
	"time"
)

func (h *marketplaceHarness) seedOrder(order Order) Order {
	h.world.mu.Lock()
	defer h.world.mu.Unlock()
	if order.ID == "" {
		order.ID = h.world.nextID("seed")
	}
	if order.ClientID == "" {
		order.ClientID = "client_1"
	}
	if order.CategoryID == "" {
		order.CategoryID = "cat_plumbing"
	}
	if order.Type == "" {
		order.Type = OrderTypePublic
	}
	h.world.orders[order.ID] = order
	return order
}

func TestOrderLifecycle_CreateValidatesReferences(t *testing.T) {
	ctx := context.Background()
	h := newMarketplaceHarness(Config{})

	cases := []struct {
		name  string
		draft OrderDraft
	}{
		{name: "missing category", draft: OrderDraft{Title: "t", Type: OrderTypePublic, CategoryID: "cat_missing"}},
		{name: "inactive category", draft: OrderDraft{Title: "t", Type: OrderTypePublic, CategoryID: "cat_retired"}},
		{name: "unknown contractor", draft: OrderDraft{Title: "t", Type: OrderTypeDirect, CategoryID: "cat_plumbing", DirectContractorID: "ghost"}},
		{name: "target is not a contractor", draft: OrderDraft{Title: "t", Type: OrderTypeDirect, CategoryID: "cat_plumbing", DirectContractorID: "client_1"}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := h.svc.Orders().Create(ctx, "client_1", tc.draft)
			if !IsNotFound(err) {
				t.Fatalf("expected not found, got %v", err)
			}
		})
	}

	if _, err := h.svc.Orders().Create(ctx, "client_1", OrderDraft{Type: OrderTypePublic, CategoryID: "cat_plumbing"}); !IsValidation(err) {
		t.Fatalf("expected validation error for missing title, got %v", err)
	}

	order, err := h.svc.Orders().Create(ctx, "client_1", OrderDraft{
		Title:      " Paint the fence ",
		Type:       OrderTypePublic,
		CategoryID: "cat_plumbing",
		Location:   Location{City: " Porto ", CountryCode: "pt"},
	})
	if err != nil {
		t.Fatalf("create order: %v", err)
	}
	if order.Status != OrderStatusDraft || order.Title != "Paint the fence" {
		t.Fatalf("unexpected created order: %+v", order)
	}
	if order.Location.City != "Porto" || order.Location.CountryCode != "PT" {
		t.Fatalf("expected normalized location, got %+v", order.Location)
	}
	if order.HasContractor() {
		t.Fatalf("draft order must not carry a contractor")
	}
}

func TestOrderLifecycle_PublishPublicEnqueuesFanout(t *testing.T) {
	ctx := context.Background()
	h := newMarketplaceHarness(Config{})

	order, err := h.publishedOrder(ctx)
	if err != nil {
		t.Fatalf("publish order: %v", err)
	}
	if order.Status != OrderStatusPublished || order.PublishedAt == nil {
		t.Fatalf("expected published order with timestamp, got %+v", order)
	}
	fanout := h.jobs.byJobID(DefaultFanoutJobID)
	if len(fanout) != 1 {
		t.Fatalf("expected one fan-out job, got %d", len(fanout))
	}
	if fanout[0].Parameters[JobParamCategoryID] != "cat_plumbing" || fanout[0].Parameters[JobParamCity] != "Lisbon" {
		t.Fatalf("expected fan-out scoped by category and location, got %#v", fanout[0].Parameters)
	}

	if _, err := h.svc.Orders().Publish(ctx, order.ID, "client_1"); !IsInvalidState(err) {
		t.Fatalf("expected repeat publish to be rejected, got %v", err)
	}
	if got := len(h.jobs.byJobID(DefaultFanoutJobID)); got != 1 {
		t.Fatalf("expected no extra fan-out job, got %d", got)
	}
}

func TestOrderLifecycle_PublishRejectsNonOwner(t *testing.T) {
	ctx := context.Background()
	h := newMarketplaceHarness(Config{})
	order := h.seedOrder(Order{Status: OrderStatusDraft})

	if _, err := h.svc.Orders().Publish(ctx, order.ID, "contractor_1"); !IsForbidden(err) {
		t.Fatalf("expected forbidden, got %v", err)
	}
	if _, err := h.svc.Orders().Publish(ctx, "missing", "client_1"); !IsNotFound(err) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestOrderLifecycle_PublishDirectInvitesContractor(t *testing.T) {
	ctx := context.Background()
	h := newMarketplaceHarness(Config{})

	order, err := h.svc.Orders().Create(ctx, "client_1", OrderDraft{
		Title:              "Replace boiler",
		Type:               OrderTypeDirect,
		CategoryID:         "cat_plumbing",
		DirectContractorID: "contractor_1",
	})
	if err != nil {
		t.Fatalf("create direct order: %v", err)
	}
	if _, err := h.svc.Orders().Publish(ctx, order.ID, "client_1"); err != nil {
		t.Fatalf("publish direct order: %v", err)
	}
	if got := len(h.jobs.byJobID(DefaultFanoutJobID)); got != 0 {
		t.Fatalf("direct orders must not fan out, got %d jobs", got)
	}
	invites := h.world.notificationsFor("contractor_1")
	if len(invites) != 1 {
		t.Fatalf("expected one invitation, got %d", len(invites))
	}
	if invites[0].Metadata["action"] != ActionOrderInvitation {
		t.Fatalf("expected invitation action, got %#v", invites[0].Metadata)
	}

	started, err := h.svc.Orders().UpdateStatus(ctx, order.ID, "contractor_1", OrderStatusInProgress)
	if err != nil {
		t.Fatalf("invited contractor starts work: %v", err)
	}
	if started.ContractorID != "contractor_1" || started.StartedAt == nil {
		t.Fatalf("expected contractor assignment on start, got %+v", started)
	}
}

func TestOrderLifecycle_StateMachineCompleteness(t *testing.T) {
	ctx := context.Background()
	for _, from := range OrderStatuses() {
		for _, to := range OrderStatuses() {
			h := newMarketplaceHarness(Config{})
			seed := Order{Status: from}
			if from.RequiresContractor() {
				seed.ContractorID = "contractor_1"
			}
			if from == OrderStatusPublished {
				seed.Type = OrderTypeDirect
				seed.DirectContractorID = "contractor_1"
			}
			order := h.seedOrder(seed)

			updated, err := h.svc.Orders().UpdateStatus(ctx, order.ID, "client_1", to)
			if !OrderTransitionAllowed(from, to) {
				if !IsInvalidState(err) {
					t.Fatalf("%s -> %s: expected invalid state, got %v", from, to, err)
				}
				if h.world.order(order.ID).Status != from {
					t.Fatalf("%s -> %s: rejected transition changed the order", from, to)
				}
				continue
			}
			if err != nil {
				t.Fatalf("%s -> %s: unexpected error %v", from, to, err)
			}
			if updated.Status != to {
				t.Fatalf("%s -> %s: got status %s", from, to, updated.Status)
			}
			if err := h.world.order(order.ID).CheckContractorInvariant(); err != nil {
				t.Fatalf("%s -> %s: %v", from, to, err)
			}
		}
	}
}

func TestOrderLifecycle_InProgressRequiresContractor(t *testing.T) {
	ctx := context.Background()
	h := newMarketplaceHarness(Config{})
	order, err := h.publishedOrder(ctx)
	if err != nil {
		t.Fatalf("publish order: %v", err)
	}
	if _, err := h.svc.Orders().UpdateStatus(ctx, order.ID, "client_1", OrderStatusInProgress); !IsInvalidState(err) {
		t.Fatalf("expected invalid state without contractor, got %v", err)
	}
}

func TestOrderLifecycle_CompletionStampsReviewWindow(t *testing.T) {
	ctx := context.Background()
	h := newMarketplaceHarness(Config{})
	order := h.seedOrder(Order{Status: OrderStatusPendingReview, ContractorID: "contractor_1"})

	completed, err := h.svc.Orders().UpdateStatus(ctx, order.ID, "client_1", OrderStatusCompleted)
	if err != nil {
		t.Fatalf("complete order: %v", err)
	}
	if completed.CompletedAt == nil || completed.ReviewEligibleUntil == nil {
		t.Fatalf("expected completion timestamps, got %+v", completed)
	}
	if got := completed.ReviewEligibleUntil.Sub(*completed.CompletedAt); got != 14*24*time.Hour {
		t.Fatalf("expected 14 day review window, got %s", got)
	}

	for _, userID := range []string{"client_1", "contractor_1"} {
		notifications := h.world.notificationsFor(userID)
		if len(notifications) != 1 || notifications[0].Type != NotificationOrderStatusChanged {
			t.Fatalf("expected status notification for %s, got %+v", userID, notifications)
		}
	}
}

func TestOrderLifecycle_UpdateStatusAuthorization(t *testing.T) {
	ctx := context.Background()
	h := newMarketplaceHarness(Config{})
	order := h.seedOrder(Order{Status: OrderStatusInProgress, ContractorID: "contractor_1"})

	if _, err := h.svc.Orders().UpdateStatus(ctx, order.ID, "contractor_2", OrderStatusPendingReview); !IsForbidden(err) {
		t.Fatalf("expected forbidden for unrelated contractor, got %v", err)
	}
	if _, err := h.svc.Orders().UpdateStatus(ctx, order.ID, "contractor_1", OrderStatusPendingReview); err != nil {
		t.Fatalf("assigned contractor submits for review: %v", err)
	}
	if _, err := h.svc.Orders().UpdateStatus(ctx, order.ID, "client_1", "archived"); !IsValidation(err) {
		t.Fatalf("expected validation error for unknown status, got %v", err)
	}
}

func TestOrderLifecycle_UpdateAndDeleteOnlyWhileDraft(t *testing.T) {
	ctx := context.Background()
	h := newMarketplaceHarness(Config{})
	draft := h.seedOrder(Order{Status: OrderStatusDraft, Title: "old"})
	published := h.seedOrder(Order{Status: OrderStatusPublished, Title: "live"})

	title := "new title"
	updated, err := h.svc.Orders().Update(ctx, draft.ID, "client_1", OrderPatch{Title: &title})
	if err != nil {
		t.Fatalf("update draft: %v", err)
	}
	if updated.Title != "new title" {
		t.Fatalf("expected patched title, got %q", updated.Title)
	}
	if _, err := h.svc.Orders().Update(ctx, published.ID, "client_1", OrderPatch{Title: &title}); !IsInvalidState(err) {
		t.Fatalf("expected invalid state updating published order, got %v", err)
	}
	if _, err := h.svc.Orders().Update(ctx, draft.ID, "contractor_1", OrderPatch{Title: &title}); !IsForbidden(err) {
		t.Fatalf("expected forbidden for non-owner, got %v", err)
	}

	if err := h.svc.Orders().Delete(ctx, published.ID, "client_1"); !IsInvalidState(err) {
		t.Fatalf("expected invalid state deleting published order, got %v", err)
	}
	if err := h.svc.Orders().Delete(ctx, draft.ID, "client_1"); err != nil {
		t.Fatalf("delete draft: %v", err)
	}
	if _, err := h.svc.Orders().Get(ctx, draft.ID); !IsNotFound(err) {
		t.Fatalf("expected soft-deleted order to be hidden, got %v", err)
	}
}

func TestOrderLifecycle_FanOutNotifiesMatchingContractors(t *testing.T) {
	ctx := context.Background()
	h := newMarketplaceHarness(Config{})
	order, err := h.publishedOrder(ctx)
	if err != nil {
		t.Fatalf("publish order: %v", err)
	}

	notified, err := h.svc.Orders().FanOut(ctx, order.ID)
	if err != nil {
		t.Fatalf("fan out: %v", err)
	}
	if notified != 2 {
		t.Fatalf("expected two matching contractors, got %d", notified)
	}
	if got := h.world.notificationsFor("contractor_3"); len(got) != 0 {
		t.Fatalf("contractor outside the category must not be notified")
	}
	if got := h.world.notificationsFor("contractor_1"); len(got) != 1 || got[0].Metadata["action"] != ActionNewOrderAvailable {
		t.Fatalf("expected new order notification, got %+v", got)
	}
}

func TestOrderLifecycle_SearchValidatesFilter(t *testing.T) {
	ctx := context.Background()
	h := newMarketplaceHarness(Config{})
	h.seedOrder(Order{Status: OrderStatusPublished, Title: "Fix roof"})
	h.seedOrder(Order{Status: OrderStatusDraft, Title: "Fix sink"})

	page, err := h.svc.Orders().Search(ctx, OrderFilter{Status: OrderStatusPublished})
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if page.Total != 1 || page.Items[0].Title != "Fix roof" {
		t.Fatalf("unexpected search page: %+v", page)
	}
	if page.Page != 1 || page.PerPage != 20 {
		t.Fatalf("expected default pagination, got page=%d per_page=%d", page.Page, page.PerPage)
	}

	min, max := int64(500), int64(100)
	if _, err := h.svc.Orders().Search(ctx, OrderFilter{MinBudget: &min, MaxBudget: &max}); !IsValidation(err) {
		t.Fatalf("expected validation error for inverted budget range, got %v", err)
	}
}
