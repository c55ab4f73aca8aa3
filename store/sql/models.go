package sqlstore

import (
	"strings"
	"time"

	"github.com/goliatone/go-marketplace/core"
	"github.com/uptrace/bun"
)

type orderRecord struct {
	bun.BaseModel `bun:"table:marketplace_orders,alias:mo"`

	ID                  string     `bun:"id,pk"`
	Title               string     `bun:"title,notnull"`
	Description         string     `bun:"description,notnull"`
	OrderType           string     `bun:"order_type,notnull"`
	Status              string     `bun:"status,notnull"`
	ClientID            string     `bun:"client_id,notnull"`
	ContractorID        *string    `bun:"contractor_id"`
	DirectContractorID  *string    `bun:"direct_contractor_id"`
	AgreedPrice         *int64     `bun:"agreed_price"`
	Budget              int64      `bun:"budget,notnull"`
	CategoryID          string     `bun:"category_id,notnull"`
	City                string     `bun:"city,notnull"`
	Region              string     `bun:"region,notnull"`
	CountryCode         string     `bun:"country_code,notnull"`
	PostalCode          string     `bun:"postal_code,notnull"`
	PublishedAt         *time.Time `bun:"published_at,nullzero"`
	StartedAt           *time.Time `bun:"started_at,nullzero"`
	CompletedAt         *time.Time `bun:"completed_at,nullzero"`
	ReviewEligibleUntil *time.Time `bun:"review_eligible_until,nullzero"`
	DeletedAt           *time.Time `bun:"deleted_at,nullzero"`
	CreatedAt           time.Time  `bun:"created_at,nullzero,notnull,default:current_timestamp"`
	UpdatedAt           time.Time  `bun:"updated_at,nullzero,notnull,default:current_timestamp"`
}

func newOrderRecord(order core.Order) *orderRecord {
	return &orderRecord{
		ID:                  strings.TrimSpace(order.ID),
		Title:               order.Title,
		Description:         order.Description,
		OrderType:           string(order.Type),
		Status:              string(order.Status),
		ClientID:            strings.TrimSpace(order.ClientID),
		ContractorID:        optionalString(order.ContractorID),
		DirectContractorID:  optionalString(order.DirectContractorID),
		AgreedPrice:         cloneInt64Pointer(order.AgreedPrice),
		Budget:              order.Budget,
		CategoryID:          strings.TrimSpace(order.CategoryID),
		City:                order.Location.City,
		Region:              order.Location.Region,
		CountryCode:         order.Location.CountryCode,
		PostalCode:          order.Location.PostalCode,
		PublishedAt:         cloneTimePointer(order.PublishedAt),
		StartedAt:           cloneTimePointer(order.StartedAt),
		CompletedAt:         cloneTimePointer(order.CompletedAt),
		ReviewEligibleUntil: cloneTimePointer(order.ReviewEligibleUntil),
		DeletedAt:           cloneTimePointer(order.DeletedAt),
		CreatedAt:           order.CreatedAt.UTC(),
		UpdatedAt:           order.UpdatedAt.UTC(),
	}
}

func (r *orderRecord) toDomain() core.Order {
	if r == nil {
		return core.Order{}
	}
	return core.Order{
		ID:                 r.ID,
		Title:              r.Title,
		Description:        r.Description,
		Type:               core.OrderType(r.OrderType),
		Status:             core.OrderStatus(r.Status),
		ClientID:           r.ClientID,
		ContractorID:       derefString(r.ContractorID),
		DirectContractorID: derefString(r.DirectContractorID),
		AgreedPrice:        cloneInt64Pointer(r.AgreedPrice),
		Budget:             r.Budget,
		CategoryID:         r.CategoryID,
		Location: core.Location{
			City:        r.City,
			Region:      r.Region,
			CountryCode: r.CountryCode,
			PostalCode:  r.PostalCode,
		},
		PublishedAt:         cloneTimePointer(r.PublishedAt),
		StartedAt:           cloneTimePointer(r.StartedAt),
		CompletedAt:         cloneTimePointer(r.CompletedAt),
		ReviewEligibleUntil: cloneTimePointer(r.ReviewEligibleUntil),
		DeletedAt:           cloneTimePointer(r.DeletedAt),
		CreatedAt:           r.CreatedAt.UTC(),
		UpdatedAt:           r.UpdatedAt.UTC(),
	}
}

type proposalRecord struct {
	bun.BaseModel `bun:"table:marketplace_proposals,alias:mp"`

	ID            string    `bun:"id,pk"`
	OrderID       string    `bun:"order_id,notnull"`
	ContractorID  string    `bun:"contractor_id,notnull"`
	Price         int64     `bun:"price,notnull"`
	Message       string    `bun:"message,notnull"`
	EstimatedDays *int      `bun:"estimated_days"`
	Status        string    `bun:"status,notnull"`
	CreatedAt     time.Time `bun:"created_at,nullzero,notnull,default:current_timestamp"`
	UpdatedAt     time.Time `bun:"updated_at,nullzero,notnull,default:current_timestamp"`
}

func newProposalRecord(proposal core.Proposal) *proposalRecord {
	return &proposalRecord{
		ID:            strings.TrimSpace(proposal.ID),
		OrderID:       strings.TrimSpace(proposal.OrderID),
		ContractorID:  strings.TrimSpace(proposal.ContractorID),
		Price:         proposal.Price,
		Message:       proposal.Message,
		EstimatedDays: cloneIntPointer(proposal.EstimatedDays),
		Status:        string(proposal.Status),
		CreatedAt:     proposal.CreatedAt.UTC(),
		UpdatedAt:     proposal.UpdatedAt.UTC(),
	}
}

func (r *proposalRecord) toDomain() core.Proposal {
	if r == nil {
		return core.Proposal{}
	}
	return core.Proposal{
		ID:            r.ID,
		OrderID:       r.OrderID,
		ContractorID:  r.ContractorID,
		Price:         r.Price,
		Message:       r.Message,
		EstimatedDays: cloneIntPointer(r.EstimatedDays),
		Status:        core.ProposalStatus(r.Status),
		CreatedAt:     r.CreatedAt.UTC(),
		UpdatedAt:     r.UpdatedAt.UTC(),
	}
}

type notificationRecord struct {
	bun.BaseModel `bun:"table:marketplace_notifications,alias:mn"`

	ID               string         `bun:"id,pk"`
	UserID           string         `bun:"user_id,notnull"`
	NotificationType string         `bun:"notification_type,notnull"`
	Priority         string         `bun:"priority,notnull"`
	Title            string         `bun:"title,notnull"`
	Body             string         `bun:"body,notnull"`
	ActionURL        string         `bun:"action_url,notnull"`
	Metadata         map[string]any `bun:"metadata,type:jsonb,notnull"`
	Channels         []string       `bun:"channels,type:jsonb,notnull"`
	IsRead           bool           `bun:"is_read,notnull"`
	ReadAt           *time.Time     `bun:"read_at,nullzero"`
	SentAt           *time.Time     `bun:"sent_at,nullzero"`
	ExpiresAt        *time.Time     `bun:"expires_at,nullzero"`
	CreatedAt        time.Time      `bun:"created_at,nullzero,notnull,default:current_timestamp"`
}

func newNotificationRecord(notification core.Notification) *notificationRecord {
	channels := make([]string, 0, len(notification.Channels))
	for _, channel := range notification.Channels {
		channels = append(channels, string(channel))
	}
	return &notificationRecord{
		ID:               strings.TrimSpace(notification.ID),
		UserID:           strings.TrimSpace(notification.UserID),
		NotificationType: string(notification.Type),
		Priority:         string(notification.Priority),
		Title:            notification.Title,
		Body:             notification.Body,
		ActionURL:        notification.ActionURL,
		Metadata:         copyAnyMap(notification.Metadata),
		Channels:         channels,
		IsRead:           notification.Read,
		ReadAt:           cloneTimePointer(notification.ReadAt),
		SentAt:           cloneTimePointer(notification.SentAt),
		ExpiresAt:        cloneTimePointer(notification.ExpiresAt),
		CreatedAt:        notification.CreatedAt.UTC(),
	}
}

func (r *notificationRecord) toDomain() core.Notification {
	if r == nil {
		return core.Notification{}
	}
	channels := make([]core.Channel, 0, len(r.Channels))
	for _, channel := range r.Channels {
		channels = append(channels, core.Channel(channel))
	}
	return core.Notification{
		ID:        r.ID,
		UserID:    r.UserID,
		Type:      core.NotificationType(r.NotificationType),
		Priority:  core.NotificationPriority(r.Priority),
		Title:     r.Title,
		Body:      r.Body,
		ActionURL: r.ActionURL,
		Metadata:  copyAnyMap(r.Metadata),
		Read:      r.IsRead,
		ReadAt:    cloneTimePointer(r.ReadAt),
		Channels:  channels,
		SentAt:    cloneTimePointer(r.SentAt),
		ExpiresAt: cloneTimePointer(r.ExpiresAt),
		CreatedAt: r.CreatedAt.UTC(),
	}
}

// preferenceRecord stores the category toggles as JSON maps keyed by
// preference category.
type preferenceRecord struct {
	bun.BaseModel `bun:"table:marketplace_notification_preferences,alias:mnp"`

	ID           string          `bun:"id,pk"`
	UserID       string          `bun:"user_id,notnull"`
	InAppEnabled bool            `bun:"in_app_enabled,notnull"`
	EmailEnabled bool            `bun:"email_enabled,notnull"`
	PushEnabled  bool            `bun:"push_enabled,notnull"`
	Email        map[string]bool `bun:"email_categories,type:jsonb,notnull"`
	Push         map[string]bool `bun:"push_categories,type:jsonb,notnull"`
	CreatedAt    time.Time       `bun:"created_at,nullzero,notnull,default:current_timestamp"`
	UpdatedAt    time.Time       `bun:"updated_at,nullzero,notnull,default:current_timestamp"`
}

func newPreferenceRecord(prefs core.NotificationPreferences, now time.Time) *preferenceRecord {
	return &preferenceRecord{
		UserID:       strings.TrimSpace(prefs.UserID),
		InAppEnabled: prefs.Channels.InApp,
		EmailEnabled: prefs.Channels.Email,
		PushEnabled:  prefs.Channels.Push,
		Email:        togglesToMap(prefs.Email),
		Push:         togglesToMap(prefs.Push),
		CreatedAt:    now,
		UpdatedAt:    now,
	}
}

func (r *preferenceRecord) toDomain() core.NotificationPreferences {
	if r == nil {
		return core.NotificationPreferences{}
	}
	return core.NotificationPreferences{
		UserID: r.UserID,
		Channels: core.ChannelToggles{
			InApp: r.InAppEnabled,
			Email: r.EmailEnabled,
			Push:  r.PushEnabled,
		},
		Email:     togglesFromMap(r.Email),
		Push:      togglesFromMap(r.Push),
		UpdatedAt: r.UpdatedAt.UTC(),
	}
}

func togglesToMap(toggles core.CategoryToggles) map[string]bool {
	return map[string]bool{
		string(core.PreferenceOrderUpdates):  toggles.OrderUpdates,
		string(core.PreferenceProposals):     toggles.Proposals,
		string(core.PreferenceMessages):      toggles.Messages,
		string(core.PreferencePayments):      toggles.Payments,
		string(core.PreferenceReviews):       toggles.Reviews,
		string(core.PreferenceDisputes):      toggles.Disputes,
		string(core.PreferenceVerification):  toggles.Verification,
		string(core.PreferenceSecurity):      toggles.Security,
		string(core.PreferenceMarketing):     toggles.Marketing,
		string(core.PreferenceSubscriptions): toggles.Subscriptions,
	}
}

func togglesFromMap(values map[string]bool) core.CategoryToggles {
	return core.CategoryToggles{
		OrderUpdates:  values[string(core.PreferenceOrderUpdates)],
		Proposals:     values[string(core.PreferenceProposals)],
		Messages:      values[string(core.PreferenceMessages)],
		Payments:      values[string(core.PreferencePayments)],
		Reviews:       values[string(core.PreferenceReviews)],
		Disputes:      values[string(core.PreferenceDisputes)],
		Verification:  values[string(core.PreferenceVerification)],
		Security:      values[string(core.PreferenceSecurity)],
		Marketing:     values[string(core.PreferenceMarketing)],
		Subscriptions: values[string(core.PreferenceSubscriptions)],
	}
}

type userRecord struct {
	bun.BaseModel `bun:"table:marketplace_users,alias:mu"`

	ID           string    `bun:"id,pk"`
	Role         string    `bun:"role,notnull"`
	Name         string    `bun:"name,notnull"`
	Email        string    `bun:"email,notnull"`
	DeviceTokens []string  `bun:"device_tokens,type:jsonb,notnull"`
	City         string    `bun:"city,notnull"`
	Region       string    `bun:"region,notnull"`
	CountryCode  string    `bun:"country_code,notnull"`
	PostalCode   string    `bun:"postal_code,notnull"`
	CreatedAt    time.Time `bun:"created_at,nullzero,notnull,default:current_timestamp"`
	UpdatedAt    time.Time `bun:"updated_at,nullzero,notnull,default:current_timestamp"`
}

func (r *userRecord) toDomain(categoryIDs []string) core.User {
	if r == nil {
		return core.User{}
	}
	return core.User{
		ID:           r.ID,
		Role:         core.UserRole(r.Role),
		Name:         r.Name,
		Email:        r.Email,
		DeviceTokens: append([]string(nil), r.DeviceTokens...),
		CategoryIDs:  append([]string(nil), categoryIDs...),
		Location: core.Location{
			City:        r.City,
			Region:      r.Region,
			CountryCode: r.CountryCode,
			PostalCode:  r.PostalCode,
		},
	}
}

type userCategoryRecord struct {
	bun.BaseModel `bun:"table:marketplace_user_categories,alias:muc"`

	UserID     string `bun:"user_id,pk"`
	CategoryID string `bun:"category_id,pk"`
}

type categoryRecord struct {
	bun.BaseModel `bun:"table:marketplace_categories,alias:mc"`

	ID        string    `bun:"id,pk"`
	Name      string    `bun:"name,notnull"`
	Active    bool      `bun:"active,notnull"`
	CreatedAt time.Time `bun:"created_at,nullzero,notnull,default:current_timestamp"`
}

func (r *categoryRecord) toDomain() core.Category {
	if r == nil {
		return core.Category{}
	}
	return core.Category{ID: r.ID, Name: r.Name, Active: r.Active}
}

type outboxRecord struct {
	bun.BaseModel `bun:"table:marketplace_outbox,alias:mob"`

	ID            string         `bun:"id,pk"`
	EventID       string         `bun:"event_id,notnull"`
	EventName     string         `bun:"event_name,notnull"`
	AggregateType string         `bun:"aggregate_type,notnull"`
	AggregateID   string         `bun:"aggregate_id,notnull"`
	Payload       map[string]any `bun:"payload,type:jsonb,notnull"`
	Metadata      map[string]any `bun:"metadata,type:jsonb,notnull"`
	Status        string         `bun:"status,notnull"`
	Attempts      int            `bun:"attempts,notnull"`
	NextAttemptAt *time.Time     `bun:"next_attempt_at,nullzero"`
	LastError     string         `bun:"last_error,notnull"`
	OccurredAt    time.Time      `bun:"occurred_at,notnull"`
	CreatedAt     time.Time      `bun:"created_at,nullzero,notnull,default:current_timestamp"`
	UpdatedAt     time.Time      `bun:"updated_at,nullzero,notnull,default:current_timestamp"`
}

type dispatchRecord struct {
	bun.BaseModel `bun:"table:marketplace_dispatch_ledger,alias:mdl"`

	ID             string         `bun:"id,pk"`
	IdempotencyKey string         `bun:"idempotency_key,notnull"`
	NotificationID string         `bun:"notification_id,notnull"`
	Channel        string         `bun:"channel,notnull"`
	RecipientKey   string         `bun:"recipient_key,notnull"`
	Status         string         `bun:"status,notnull"`
	Error          string         `bun:"error,notnull"`
	Metadata       map[string]any `bun:"metadata,type:jsonb,notnull"`
	CreatedAt      time.Time      `bun:"created_at,nullzero,notnull,default:current_timestamp"`
	UpdatedAt      time.Time      `bun:"updated_at,nullzero,notnull,default:current_timestamp"`
}

type auditRecord struct {
	bun.BaseModel `bun:"table:marketplace_audit_log,alias:mal"`

	ID         string         `bun:"id,pk"`
	Action     string         `bun:"action,notnull"`
	ActorID    string         `bun:"actor_id,notnull"`
	ObjectType string         `bun:"object_type,notnull"`
	ObjectID   string         `bun:"object_id,notnull"`
	Metadata   map[string]any `bun:"metadata,type:jsonb,notnull"`
	OccurredAt time.Time      `bun:"occurred_at,notnull"`
	CreatedAt  time.Time      `bun:"created_at,nullzero,notnull,default:current_timestamp"`
}

type jobRecord struct {
	bun.BaseModel `bun:"table:marketplace_jobs,alias:mj"`

	ID             string         `bun:"id,pk"`
	JobID          string         `bun:"job_id,notnull"`
	ScriptPath     string         `bun:"script_path,notnull"`
	Parameters     map[string]any `bun:"parameters,type:jsonb,notnull"`
	IdempotencyKey *string        `bun:"idempotency_key"`
	DedupPolicy    string         `bun:"dedup_policy,notnull"`
	Status         string         `bun:"status,notnull"`
	Attempts       int            `bun:"attempts,notnull"`
	AvailableAt    time.Time      `bun:"available_at,notnull"`
	LockedUntil    *time.Time     `bun:"locked_until,nullzero"`
	LastError      string         `bun:"last_error,notnull"`
	CreatedAt      time.Time      `bun:"created_at,nullzero,notnull,default:current_timestamp"`
	UpdatedAt      time.Time      `bun:"updated_at,nullzero,notnull,default:current_timestamp"`
}
