package core

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strconv"
	"strings"
)

const (
	DispatchStatusClaimed   = "claimed"
	DispatchStatusDelivered = "delivered"
	DispatchStatusFailed    = "failed"
)

// ProposalAcceptedHandler delivers the acceptance and rejection notifications
// recorded by an outbox-enabled Accept. Each recipient is claimed in the
// dispatch ledger so a retried event never notifies the same contractor twice.
type ProposalAcceptedHandler struct {
	notifier NotificationSender
	ledger   DispatchLedger
}

func NewProposalAcceptedHandler(notifier NotificationSender, ledger DispatchLedger) *ProposalAcceptedHandler {
	return &ProposalAcceptedHandler{notifier: notifier, ledger: ledger}
}

func (h *ProposalAcceptedHandler) Handle(ctx context.Context, event OutboxEvent) error {
	if h == nil || h.notifier == nil {
		return fmt.Errorf("core: proposal accepted handler is not configured")
	}
	if event.Name != OutboxEventProposalAccepted {
		return nil
	}
	order := Order{
		ID:       payloadString(event.Payload, "order_id"),
		Title:    payloadString(event.Payload, "order_title"),
		ClientID: payloadString(event.Payload, "client_id"),
	}
	accepted := Proposal{
		ID:           payloadString(event.Payload, "proposal_id"),
		ContractorID: payloadString(event.Payload, "contractor_id"),
		Price:        payloadInt64(event.Payload, "agreed_price"),
	}
	if order.ID == "" || accepted.ContractorID == "" {
		return fmt.Errorf("core: outbox event %q has an incomplete payload", event.ID)
	}

	requests := []NotificationRequest{acceptanceRequest(order, accepted)}
	proposalIDs := payloadStrings(event.Payload, "rejected_proposal_ids")
	contractorIDs := payloadStrings(event.Payload, "rejected_contractor_ids")
	for i, contractorID := range contractorIDs {
		rejected := Proposal{ContractorID: contractorID}
		if i < len(proposalIDs) {
			rejected.ID = proposalIDs[i]
		}
		requests = append(requests, rejectionRequest(order, rejected))
	}

	var handleErr error
	for _, req := range requests {
		if err := h.deliver(ctx, event, req); err != nil {
			handleErr = joinErrors(handleErr, err)
		}
	}
	return handleErr
}

func (h *ProposalAcceptedHandler) deliver(ctx context.Context, event OutboxEvent, req NotificationRequest) error {
	if h.ledger == nil {
		return h.notifier.Send(ctx, req)
	}
	key := DispatchKey(event.ID, req.UserID, string(req.Type))
	claimed, err := h.ledger.Claim(ctx, DispatchRecord{
		IdempotencyKey: key,
		NotificationID: event.ID,
		Channel:        ChannelInApp,
		RecipientKey:   req.UserID,
		Status:         DispatchStatusClaimed,
		Metadata: map[string]any{
			"event_name":        event.Name,
			"notification_type": string(req.Type),
		},
	})
	if err != nil {
		return err
	}
	if !claimed {
		return nil
	}
	if err := h.notifier.Send(ctx, req); err != nil {
		if releaseErr := h.ledger.Release(ctx, key); releaseErr != nil {
			return joinErrors(err, releaseErr)
		}
		return err
	}
	return h.ledger.Complete(ctx, key, DispatchStatusDelivered, "")
}

// DispatchKey derives a stable ledger key from its parts.
func DispatchKey(parts ...string) string {
	normalized := make([]string, 0, len(parts))
	for _, part := range parts {
		normalized = append(normalized, strings.TrimSpace(part))
	}
	sum := sha256.Sum256([]byte(strings.Join(normalized, "|")))
	return hex.EncodeToString(sum[:])
}

func payloadString(payload map[string]any, key string) string {
	if len(payload) == 0 {
		return ""
	}
	switch typed := payload[key].(type) {
	case string:
		return strings.TrimSpace(typed)
	case fmt.Stringer:
		return strings.TrimSpace(typed.String())
	case nil:
		return ""
	default:
		return strings.TrimSpace(fmt.Sprint(typed))
	}
}

func payloadInt64(payload map[string]any, key string) int64 {
	switch typed := payload[key].(type) {
	case int:
		return int64(typed)
	case int64:
		return typed
	case float64:
		return int64(typed)
	case string:
		parsed, err := strconv.ParseInt(strings.TrimSpace(typed), 10, 64)
		if err == nil {
			return parsed
		}
	}
	return 0
}

func payloadStrings(payload map[string]any, key string) []string {
	switch typed := payload[key].(type) {
	case []string:
		return append([]string(nil), typed...)
	case []any:
		out := make([]string, 0, len(typed))
		for _, item := range typed {
			if value, ok := item.(string); ok {
				out = append(out, value)
			}
		}
		return out
	}
	return nil
}
