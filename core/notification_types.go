package core

import (
	"fmt"
	"strings"
	"time"
)

type Channel string

const (
	ChannelInApp Channel = "in_app"
	ChannelEmail Channel = "email"
	ChannelPush  Channel = "push"
)

// Channels returns every delivery channel in resolution order.
func Channels() []Channel {
	return []Channel{ChannelInApp, ChannelEmail, ChannelPush}
}

func (c Channel) Valid() bool {
	switch c {
	case ChannelInApp, ChannelEmail, ChannelPush:
		return true
	default:
		return false
	}
}

type NotificationPriority string

const (
	PriorityLow    NotificationPriority = "low"
	PriorityNormal NotificationPriority = "normal"
	PriorityHigh   NotificationPriority = "high"
	PriorityUrgent NotificationPriority = "urgent"
)

type NotificationType string

const (
	NotificationOrderStatusChanged   NotificationType = "order_status_changed"
	NotificationNewProposal          NotificationType = "new_proposal"
	NotificationProposalAccepted     NotificationType = "proposal_accepted"
	NotificationProposalRejected     NotificationType = "proposal_rejected"
	NotificationMessageReceived      NotificationType = "message_received"
	NotificationPaymentReceived      NotificationType = "payment_received"
	NotificationPaymentFailed        NotificationType = "payment_failed"
	NotificationReviewSubmitted      NotificationType = "review_submitted"
	NotificationReviewResponse       NotificationType = "review_response"
	NotificationDisputeOpened        NotificationType = "dispute_opened"
	NotificationDisputeStatusChanged NotificationType = "dispute_status_changed"
	NotificationDisputeResolved      NotificationType = "dispute_resolved"
	NotificationVerificationStatus   NotificationType = "verification_status"
	NotificationSecurityAlert        NotificationType = "security_alert"
	NotificationSystemAnnouncement   NotificationType = "system_announcement"
	NotificationSubscriptionCreated  NotificationType = "subscription_created"
	NotificationSubscriptionUpdated  NotificationType = "subscription_updated"
	NotificationSubscriptionCanceled NotificationType = "subscription_canceled"
)

// PreferenceCategory groups notification types under one stored per-category
// toggle.
type PreferenceCategory string

const (
	PreferenceOrderUpdates  PreferenceCategory = "order_updates"
	PreferenceProposals     PreferenceCategory = "proposals"
	PreferenceMessages      PreferenceCategory = "messages"
	PreferencePayments      PreferenceCategory = "payments"
	PreferenceReviews       PreferenceCategory = "reviews"
	PreferenceDisputes      PreferenceCategory = "disputes"
	PreferenceVerification  PreferenceCategory = "verification"
	PreferenceSecurity      PreferenceCategory = "security"
	PreferenceMarketing     PreferenceCategory = "marketing"
	PreferenceSubscriptions PreferenceCategory = "subscriptions"
)

type NotificationTypeConfig struct {
	Type            NotificationType
	Priority        NotificationPriority
	DefaultChannels []Channel
	TemplateKey     string
	Category        PreferenceCategory
	AlwaysOn        bool
}

func (c NotificationTypeConfig) clone() NotificationTypeConfig {
	c.DefaultChannels = append([]Channel(nil), c.DefaultChannels...)
	return c
}

func (c NotificationTypeConfig) hasDefault(channel Channel) bool {
	for _, candidate := range c.DefaultChannels {
		if candidate == channel {
			return true
		}
	}
	return false
}

var (
	allChannels     = []Channel{ChannelInApp, ChannelEmail, ChannelPush}
	inAppEmail      = []Channel{ChannelInApp, ChannelEmail}
	inAppPush       = []Channel{ChannelInApp, ChannelPush}
	inAppOnly       = []Channel{ChannelInApp}
	notificationCfg = buildNotificationTypeTable([]NotificationTypeConfig{
		{Type: NotificationOrderStatusChanged, Priority: PriorityNormal, DefaultChannels: allChannels, TemplateKey: "order.status_changed", Category: PreferenceOrderUpdates},
		{Type: NotificationNewProposal, Priority: PriorityNormal, DefaultChannels: allChannels, TemplateKey: "proposal.new", Category: PreferenceProposals},
		{Type: NotificationProposalAccepted, Priority: PriorityHigh, DefaultChannels: allChannels, TemplateKey: "proposal.accepted", Category: PreferenceProposals},
		{Type: NotificationProposalRejected, Priority: PriorityNormal, DefaultChannels: inAppEmail, TemplateKey: "proposal.rejected", Category: PreferenceProposals},
		{Type: NotificationMessageReceived, Priority: PriorityNormal, DefaultChannels: inAppPush, TemplateKey: "message.received", Category: PreferenceMessages},
		{Type: NotificationPaymentReceived, Priority: PriorityHigh, DefaultChannels: allChannels, TemplateKey: "payment.received", Category: PreferencePayments},
		{Type: NotificationPaymentFailed, Priority: PriorityUrgent, DefaultChannels: allChannels, TemplateKey: "payment.failed", Category: PreferencePayments},
		{Type: NotificationReviewSubmitted, Priority: PriorityNormal, DefaultChannels: inAppEmail, TemplateKey: "review.submitted", Category: PreferenceReviews},
		{Type: NotificationReviewResponse, Priority: PriorityLow, DefaultChannels: inAppOnly, TemplateKey: "review.response", Category: PreferenceReviews},
		{Type: NotificationDisputeOpened, Priority: PriorityUrgent, DefaultChannels: allChannels, TemplateKey: "dispute.opened", Category: PreferenceDisputes},
		{Type: NotificationDisputeStatusChanged, Priority: PriorityHigh, DefaultChannels: allChannels, TemplateKey: "dispute.status_changed", Category: PreferenceDisputes},
		{Type: NotificationDisputeResolved, Priority: PriorityHigh, DefaultChannels: allChannels, TemplateKey: "dispute.resolved", Category: PreferenceDisputes},
		{Type: NotificationVerificationStatus, Priority: PriorityHigh, DefaultChannels: inAppEmail, TemplateKey: "verification.status", Category: PreferenceVerification},
		{Type: NotificationSecurityAlert, Priority: PriorityUrgent, DefaultChannels: allChannels, TemplateKey: "security.alert", Category: PreferenceSecurity, AlwaysOn: true},
		{Type: NotificationSystemAnnouncement, Priority: PriorityLow, DefaultChannels: inAppOnly, TemplateKey: "system.announcement", Category: PreferenceMarketing},
		{Type: NotificationSubscriptionCreated, Priority: PriorityNormal, DefaultChannels: inAppEmail, TemplateKey: "subscription.created", Category: PreferenceSubscriptions},
		{Type: NotificationSubscriptionUpdated, Priority: PriorityNormal, DefaultChannels: inAppEmail, TemplateKey: "subscription.updated", Category: PreferenceSubscriptions},
		{Type: NotificationSubscriptionCanceled, Priority: PriorityHigh, DefaultChannels: inAppEmail, TemplateKey: "subscription.canceled", Category: PreferenceSubscriptions},
	})
)

func buildNotificationTypeTable(entries []NotificationTypeConfig) map[NotificationType]NotificationTypeConfig {
	table := make(map[NotificationType]NotificationTypeConfig, len(entries))
	for _, entry := range entries {
		if _, exists := table[entry.Type]; exists {
			panic(fmt.Sprintf("core: duplicate notification type %q", entry.Type))
		}
		table[entry.Type] = entry.clone()
	}
	return table
}

// LookupNotificationType returns a copy of the configuration for a type.
func LookupNotificationType(notificationType NotificationType) (NotificationTypeConfig, bool) {
	cfg, ok := notificationCfg[notificationType]
	if !ok {
		return NotificationTypeConfig{}, false
	}
	return cfg.clone(), true
}

// NotificationTypes returns copies of every configured type, sorted by type.
func NotificationTypes() []NotificationTypeConfig {
	out := make([]NotificationTypeConfig, 0, len(notificationCfg))
	for _, notificationType := range notificationTypeOrder() {
		out = append(out, notificationCfg[notificationType].clone())
	}
	return out
}

func notificationTypeOrder() []NotificationType {
	return []NotificationType{
		NotificationOrderStatusChanged,
		NotificationNewProposal,
		NotificationProposalAccepted,
		NotificationProposalRejected,
		NotificationMessageReceived,
		NotificationPaymentReceived,
		NotificationPaymentFailed,
		NotificationReviewSubmitted,
		NotificationReviewResponse,
		NotificationDisputeOpened,
		NotificationDisputeStatusChanged,
		NotificationDisputeResolved,
		NotificationVerificationStatus,
		NotificationSecurityAlert,
		NotificationSystemAnnouncement,
		NotificationSubscriptionCreated,
		NotificationSubscriptionUpdated,
		NotificationSubscriptionCanceled,
	}
}

func (t NotificationType) Valid() bool {
	_, ok := notificationCfg[t]
	return ok
}

type CategoryToggles struct {
	OrderUpdates  bool
	Proposals     bool
	Messages      bool
	Payments      bool
	Reviews       bool
	Disputes      bool
	Verification  bool
	Security      bool
	Marketing     bool
	Subscriptions bool
}

func AllCategoriesEnabled() CategoryToggles {
	return CategoryToggles{
		OrderUpdates:  true,
		Proposals:     true,
		Messages:      true,
		Payments:      true,
		Reviews:       true,
		Disputes:      true,
		Verification:  true,
		Security:      true,
		Marketing:     true,
		Subscriptions: true,
	}
}

type ChannelToggles struct {
	InApp bool
	Email bool
	Push  bool
}

type NotificationPreferences struct {
	UserID    string
	Channels  ChannelToggles
	Email     CategoryToggles
	Push      CategoryToggles
	UpdatedAt time.Time
}

// DefaultNotificationPreferences enables every channel and category.
func DefaultNotificationPreferences(userID string) NotificationPreferences {
	return NotificationPreferences{
		UserID:   strings.TrimSpace(userID),
		Channels: ChannelToggles{InApp: true, Email: true, Push: true},
		Email:    AllCategoriesEnabled(),
		Push:     AllCategoriesEnabled(),
	}
}

var preferenceAccessors = map[PreferenceCategory]func(CategoryToggles) bool{
	PreferenceOrderUpdates:  func(t CategoryToggles) bool { return t.OrderUpdates },
	PreferenceProposals:     func(t CategoryToggles) bool { return t.Proposals },
	PreferenceMessages:      func(t CategoryToggles) bool { return t.Messages },
	PreferencePayments:      func(t CategoryToggles) bool { return t.Payments },
	PreferenceReviews:       func(t CategoryToggles) bool { return t.Reviews },
	PreferenceDisputes:      func(t CategoryToggles) bool { return t.Disputes },
	PreferenceVerification:  func(t CategoryToggles) bool { return t.Verification },
	PreferenceSecurity:      func(t CategoryToggles) bool { return t.Security },
	PreferenceMarketing:     func(t CategoryToggles) bool { return t.Marketing },
	PreferenceSubscriptions: func(t CategoryToggles) bool { return t.Subscriptions },
}

// categoryEnabled evaluates the stored per-category toggle for a type. Types
// without an accessor are governed by the channel toggle alone.
func categoryEnabled(toggles CategoryToggles, category PreferenceCategory) bool {
	accessor, ok := preferenceAccessors[category]
	if !ok {
		return true
	}
	return accessor(toggles)
}

type Notification struct {
	ID        string
	UserID    string
	Type      NotificationType
	Priority  NotificationPriority
	Title     string
	Body      string
	ActionURL string
	Metadata  map[string]any
	Read      bool
	ReadAt    *time.Time
	Channels  []Channel
	SentAt    *time.Time
	ExpiresAt *time.Time
	CreatedAt time.Time
}

func (n Notification) HasChannel(channel Channel) bool {
	for _, candidate := range n.Channels {
		if candidate == channel {
			return true
		}
	}
	return false
}

type NotificationRequest struct {
	UserID    string
	Type      NotificationType
	Title     string
	Body      string
	ActionURL string
	Metadata  map[string]any
}

func (r NotificationRequest) Validate() error {
	if strings.TrimSpace(r.UserID) == "" {
		return fmt.Errorf("%w: notification user id is required", ErrValidation)
	}
	if !r.Type.Valid() {
		return fmt.Errorf("%w: unknown notification type %q", ErrValidation, r.Type)
	}
	if strings.TrimSpace(r.Title) == "" {
		return fmt.Errorf("%w: notification title is required", ErrValidation)
	}
	return nil
}

type NotificationFilter struct {
	UnreadOnly bool
	Type       NotificationType
	Page       int
	PerPage    int
}

type NotificationPage struct {
	Items   []Notification
	Total   int
	Unread  int
	Page    int
	PerPage int
}
