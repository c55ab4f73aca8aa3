package core

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

const (
	OutboxEventProposalAccepted = "proposal.accepted"

	ActionProposalSubmitted = "proposal_submitted"
	ActionProposalAccepted  = "proposal_accepted"
	ActionProposalRejected  = "proposal_rejected"
)

// AcceptResult describes the committed outcome of an acceptance.
type AcceptResult struct {
	Order    Order
	Accepted Proposal
	Rejected []Proposal
}

// ProposalCoordinator owns proposal submission and the accept/reject protocol.
type ProposalCoordinator struct {
	*operationRuntime
	orders    OrderStore
	proposals ProposalStore
	uow       UnitOfWork
	notifier  NotificationSender
}

func (c *ProposalCoordinator) Submit(ctx context.Context, orderID string, contractorID string, draft ProposalDraft) (proposal Proposal, err error) {
	startedAt := time.Now().UTC()
	fields := map[string]any{"order_id": orderID, "contractor_id": contractorID}
	defer func() {
		if proposal.ID != "" {
			fields["proposal_id"] = proposal.ID
		}
		c.observeOperation(ctx, startedAt, "proposal_submit", err, fields)
	}()

	if err = requireIDs(map[string]string{"order_id": orderID, "contractor_id": contractorID}); err != nil {
		err = c.mapError(err)
		return Proposal{}, err
	}
	if err = draft.Validate(); err != nil {
		err = c.mapError(err)
		return Proposal{}, err
	}
	order, err := c.loadOrder(ctx, orderID)
	if err != nil {
		return Proposal{}, err
	}
	if order.Status != OrderStatusPublished || order.Type != OrderTypePublic {
		err = InvalidStateError(fmt.Sprintf("order %s (%s, %s) does not accept proposals", order.ID, order.Type, order.Status))
		return Proposal{}, err
	}
	if order.OwnedBy(contractorID) {
		err = ForbiddenError("clients cannot submit proposals on their own orders")
		return Proposal{}, err
	}

	now := c.clock()
	proposal, err = c.proposals.Create(ctx, Proposal{
		ID:            uuid.NewString(),
		OrderID:       order.ID,
		ContractorID:  strings.TrimSpace(contractorID),
		Price:         draft.Price,
		Message:       strings.TrimSpace(draft.Message),
		EstimatedDays: draft.EstimatedDays,
		Status:        ProposalStatusPending,
		CreatedAt:     now,
		UpdatedAt:     now,
	})
	if err != nil {
		if errors.Is(err, ErrUniqueViolation) {
			err = ConflictError(fmt.Sprintf("contractor %s already submitted a proposal for order %s", contractorID, order.ID))
			return Proposal{}, err
		}
		if errors.Is(err, ErrInvalidState) {
			err = InvalidStateError(fmt.Sprintf("order %s stopped accepting proposals", order.ID))
			return Proposal{}, err
		}
		err = c.mapError(err)
		return Proposal{}, err
	}

	c.sendNotification(ctx, c.notifier, NotificationRequest{
		UserID:    order.ClientID,
		Type:      NotificationNewProposal,
		Title:     "New proposal received",
		Body:      fmt.Sprintf("A contractor submitted a proposal for %q.", order.Title),
		ActionURL: orderActionURL(order.ID),
		Metadata: map[string]any{
			"action":        ActionProposalSubmitted,
			"order_id":      order.ID,
			"proposal_id":   proposal.ID,
			"contractor_id": proposal.ContractorID,
			"price":         proposal.Price,
		},
	})
	c.recordAudit(ctx, AuditEvent{
		Action:     "proposal.submitted",
		ActorID:    proposal.ContractorID,
		ObjectType: "proposal",
		ObjectID:   proposal.ID,
		Metadata:   map[string]any{"order_id": order.ID},
		OccurredAt: now,
	})
	return proposal, nil
}

// Accept accepts a pending proposal, rejects its competitors and assigns the
// contractor to the order in one transaction.
func (c *ProposalCoordinator) Accept(ctx context.Context, proposalID string, clientID string) (result AcceptResult, err error) {
	startedAt := time.Now().UTC()
	fields := map[string]any{"proposal_id": proposalID, "client_id": clientID}
	defer func() {
		if result.Order.ID != "" {
			fields["order_id"] = result.Order.ID
			fields["rejected"] = len(result.Rejected)
		}
		c.observeOperation(ctx, startedAt, "proposal_accept", err, fields)
	}()

	proposal, order, err := c.loadForClient(ctx, proposalID, clientID)
	if err != nil {
		return AcceptResult{}, err
	}
	if order.Status != OrderStatusPublished {
		err = InvalidStateError(fmt.Sprintf("order %s is %s, proposals can only be accepted while published", order.ID, order.Status))
		return AcceptResult{}, err
	}
	if err = ValidateProposalTransition(proposal.Status, ProposalStatusAccepted); err != nil {
		err = InvalidStateError(fmt.Sprintf("proposal %s is %s", proposal.ID, proposal.Status))
		return AcceptResult{}, err
	}
	if c.uow == nil {
		err = fmt.Errorf("core: unit of work is not configured")
		return AcceptResult{}, err
	}

	now := c.clock()
	var rejected []Proposal
	var committed Order
	txErr := c.uow.RunInTx(ctx, func(ctx context.Context, tx TxStores) error {
		rejected = nil
		locked, err := tx.GetOrder(ctx, order.ID)
		if err != nil {
			if errors.Is(err, ErrNotFound) {
				return fmt.Errorf("%w: order %s was removed", ErrStaleState, order.ID)
			}
			return err
		}
		if locked.Status != OrderStatusPublished || locked.DeletedAt != nil {
			return fmt.Errorf("%w: order %s is no longer published", ErrStaleState, order.ID)
		}
		moved, err := tx.TransitionProposal(ctx, proposal.ID, ProposalStatusPending, ProposalStatusAccepted, now)
		if err != nil {
			return err
		}
		if !moved {
			return fmt.Errorf("%w: proposal %s is no longer pending", ErrStaleState, proposal.ID)
		}
		rejected, err = tx.RejectPendingProposals(ctx, order.ID, proposal.ID, now)
		if err != nil {
			return err
		}
		assigned, err := tx.AssignContractor(ctx, AssignContractorInput{
			OrderID:      order.ID,
			ContractorID: proposal.ContractorID,
			AgreedPrice:  proposal.Price,
			StartedAt:    now,
		})
		if err != nil {
			return err
		}
		if !assigned {
			return fmt.Errorf("%w: order %s is no longer published", ErrStaleState, order.ID)
		}
		committed = assignedOrder(locked, proposal, now)
		if c.config.Outbox.Enabled {
			return tx.EnqueueOutbox(ctx, proposalAcceptedEvent(committed, proposal, rejected, now))
		}
		return nil
	})
	if txErr != nil {
		if errors.Is(txErr, ErrInvalidState) {
			err = InvalidStateError(txErr.Error())
			return AcceptResult{}, err
		}
		err = TransactionFailedError(txErr)
		return AcceptResult{}, err
	}

	proposal.Status = ProposalStatusAccepted
	proposal.UpdatedAt = now
	result = AcceptResult{Order: committed, Accepted: proposal, Rejected: rejected}

	if !c.config.Outbox.Enabled {
		c.notifyAcceptance(ctx, committed, proposal, rejected)
	}
	c.recordAudit(ctx, AuditEvent{
		Action:     "proposal.accepted",
		ActorID:    committed.ClientID,
		ObjectType: "proposal",
		ObjectID:   proposal.ID,
		Metadata: map[string]any{
			"order_id":     committed.ID,
			"agreed_price": proposal.Price,
			"rejected":     len(rejected),
		},
		OccurredAt: now,
	})
	return result, nil
}

func (c *ProposalCoordinator) Reject(ctx context.Context, proposalID string, clientID string) (proposal Proposal, err error) {
	startedAt := time.Now().UTC()
	fields := map[string]any{"proposal_id": proposalID, "client_id": clientID}
	defer func() {
		c.observeOperation(ctx, startedAt, "proposal_reject", err, fields)
	}()

	current, order, err := c.loadForClient(ctx, proposalID, clientID)
	if err != nil {
		return Proposal{}, err
	}
	if err = ValidateProposalTransition(current.Status, ProposalStatusRejected); err != nil {
		err = InvalidStateError(fmt.Sprintf("proposal %s is %s", current.ID, current.Status))
		return Proposal{}, err
	}

	next := current
	next.Status = ProposalStatusRejected
	next.UpdatedAt = c.clock()
	proposal, err = c.proposals.UpdateIfStatus(ctx, next, ProposalStatusPending)
	if err != nil {
		err = c.mapError(err)
		return Proposal{}, err
	}

	c.sendNotification(ctx, c.notifier, rejectionRequest(order, proposal))
	c.recordAudit(ctx, AuditEvent{
		Action:     "proposal.rejected",
		ActorID:    order.ClientID,
		ObjectType: "proposal",
		ObjectID:   proposal.ID,
		Metadata:   map[string]any{"order_id": order.ID},
	})
	return proposal, nil
}

func (c *ProposalCoordinator) Update(ctx context.Context, proposalID string, contractorID string, patch ProposalPatch) (proposal Proposal, err error) {
	startedAt := time.Now().UTC()
	fields := map[string]any{"proposal_id": proposalID, "contractor_id": contractorID}
	defer func() {
		c.observeOperation(ctx, startedAt, "proposal_update", err, fields)
	}()

	current, err := c.loadProposal(ctx, proposalID)
	if err != nil {
		return Proposal{}, err
	}
	if strings.TrimSpace(contractorID) == "" || current.ContractorID != strings.TrimSpace(contractorID) {
		err = ForbiddenError("only the submitting contractor can update a proposal")
		return Proposal{}, err
	}
	if current.Status != ProposalStatusPending {
		err = InvalidStateError(fmt.Sprintf("proposal %s is %s, only pending proposals can be updated", current.ID, current.Status))
		return Proposal{}, err
	}
	next, err := patch.Apply(current)
	if err != nil {
		err = c.mapError(err)
		return Proposal{}, err
	}
	next.UpdatedAt = c.clock()
	proposal, err = c.proposals.UpdateIfStatus(ctx, next, ProposalStatusPending)
	if err != nil {
		err = c.mapError(err)
		return Proposal{}, err
	}
	return proposal, nil
}

// ListForOrder returns every proposal of the order to its owner and only the
// caller's own proposal to a contractor.
func (c *ProposalCoordinator) ListForOrder(ctx context.Context, orderID string, callerID string) ([]Proposal, error) {
	if err := requireIDs(map[string]string{"caller_id": callerID}); err != nil {
		return nil, c.mapError(err)
	}
	order, err := c.loadOrder(ctx, orderID)
	if err != nil {
		return nil, err
	}
	proposals, err := c.proposals.ListByOrder(ctx, order.ID)
	if err != nil {
		return nil, c.mapError(err)
	}
	if order.OwnedBy(callerID) {
		return proposals, nil
	}
	callerID = strings.TrimSpace(callerID)
	own := make([]Proposal, 0, 1)
	for _, proposal := range proposals {
		if proposal.ContractorID == callerID {
			own = append(own, proposal)
		}
	}
	return own, nil
}

func (c *ProposalCoordinator) ListForContractor(ctx context.Context, contractorID string, filter ProposalFilter) (ProposalPage, error) {
	if err := requireIDs(map[string]string{"contractor_id": contractorID}); err != nil {
		return ProposalPage{}, c.mapError(err)
	}
	switch filter.Status {
	case "", ProposalStatusPending, ProposalStatusAccepted, ProposalStatusRejected:
	default:
		return ProposalPage{}, c.mapError(ValidationError("status", fmt.Sprintf("unknown proposal status %q", filter.Status)))
	}
	filter.Page, filter.PerPage = normalizePage(filter.Page, filter.PerPage)
	page, err := c.proposals.ListByContractor(ctx, strings.TrimSpace(contractorID), filter)
	if err != nil {
		return ProposalPage{}, c.mapError(err)
	}
	return page, nil
}

func (c *ProposalCoordinator) notifyAcceptance(ctx context.Context, order Order, accepted Proposal, rejected []Proposal) {
	c.sendNotification(ctx, c.notifier, acceptanceRequest(order, accepted))
	for _, proposal := range rejected {
		c.sendNotification(ctx, c.notifier, rejectionRequest(order, proposal))
	}
}

func (c *ProposalCoordinator) loadForClient(ctx context.Context, proposalID string, clientID string) (Proposal, Order, error) {
	if err := requireIDs(map[string]string{"client_id": clientID}); err != nil {
		return Proposal{}, Order{}, c.mapError(err)
	}
	proposal, err := c.loadProposal(ctx, proposalID)
	if err != nil {
		return Proposal{}, Order{}, err
	}
	order, err := c.loadOrder(ctx, proposal.OrderID)
	if err != nil {
		return Proposal{}, Order{}, err
	}
	if !order.OwnedBy(clientID) {
		return Proposal{}, Order{}, ForbiddenError("only the owning client can decide on proposals")
	}
	return proposal, order, nil
}

func (c *ProposalCoordinator) loadProposal(ctx context.Context, proposalID string) (Proposal, error) {
	if err := requireIDs(map[string]string{"proposal_id": proposalID}); err != nil {
		return Proposal{}, c.mapError(err)
	}
	proposal, err := c.proposals.Get(ctx, strings.TrimSpace(proposalID))
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return Proposal{}, NotFoundError("proposal", proposalID)
		}
		return Proposal{}, c.mapError(err)
	}
	return proposal, nil
}

func (c *ProposalCoordinator) loadOrder(ctx context.Context, orderID string) (Order, error) {
	if err := requireIDs(map[string]string{"order_id": orderID}); err != nil {
		return Order{}, c.mapError(err)
	}
	order, err := c.orders.Get(ctx, strings.TrimSpace(orderID))
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return Order{}, NotFoundError("order", orderID)
		}
		return Order{}, c.mapError(err)
	}
	if order.DeletedAt != nil {
		return Order{}, NotFoundError("order", orderID)
	}
	return order, nil
}

// assignedOrder mirrors the row AssignContractor wrote.
func assignedOrder(order Order, accepted Proposal, at time.Time) Order {
	price := accepted.Price
	order.Status = OrderStatusInProgress
	order.ContractorID = accepted.ContractorID
	order.AgreedPrice = &price
	order.StartedAt = timePtr(at)
	order.UpdatedAt = at.UTC()
	return order
}

func acceptanceRequest(order Order, accepted Proposal) NotificationRequest {
	return NotificationRequest{
		UserID:    accepted.ContractorID,
		Type:      NotificationProposalAccepted,
		Title:     "Proposal accepted",
		Body:      fmt.Sprintf("Your proposal for %q was accepted.", order.Title),
		ActionURL: orderActionURL(order.ID),
		Metadata: map[string]any{
			"action":       ActionProposalAccepted,
			"order_id":     order.ID,
			"proposal_id":  accepted.ID,
			"agreed_price": accepted.Price,
		},
	}
}

func rejectionRequest(order Order, proposal Proposal) NotificationRequest {
	return NotificationRequest{
		UserID:    proposal.ContractorID,
		Type:      NotificationProposalRejected,
		Title:     "Proposal not selected",
		Body:      fmt.Sprintf("Your proposal for %q was not selected.", order.Title),
		ActionURL: orderActionURL(order.ID),
		Metadata: map[string]any{
			"action":      ActionProposalRejected,
			"order_id":    order.ID,
			"proposal_id": proposal.ID,
		},
	}
}

func proposalAcceptedEvent(order Order, accepted Proposal, rejected []Proposal, at time.Time) OutboxEvent {
	rejectedProposals := make([]string, 0, len(rejected))
	rejectedContractors := make([]string, 0, len(rejected))
	for _, proposal := range rejected {
		rejectedProposals = append(rejectedProposals, proposal.ID)
		rejectedContractors = append(rejectedContractors, proposal.ContractorID)
	}
	return OutboxEvent{
		ID:            uuid.NewString(),
		Name:          OutboxEventProposalAccepted,
		AggregateType: "order",
		AggregateID:   order.ID,
		OccurredAt:    at,
		Payload: map[string]any{
			"order_id":                order.ID,
			"order_title":             order.Title,
			"client_id":               order.ClientID,
			"proposal_id":             accepted.ID,
			"contractor_id":           accepted.ContractorID,
			"agreed_price":            accepted.Price,
			"rejected_proposal_ids":   rejectedProposals,
			"rejected_contractor_ids": rejectedContractors,
		},
		Metadata: map[string]any{},
	}
}
