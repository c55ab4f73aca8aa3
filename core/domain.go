package core

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

var (
	ErrNotFound          = errors.New("core: not found")
	ErrForbidden         = errors.New("core: forbidden")
	ErrInvalidState      = errors.New("core: invalid state")
	ErrConflict          = errors.New("core: conflict")
	ErrValidation        = errors.New("core: validation failed")
	ErrTransactionFailed = errors.New("core: transaction failed")
	ErrUniqueViolation   = errors.New("core: unique constraint violation")
	ErrStaleState        = fmt.Errorf("%w: record changed concurrently", ErrInvalidState)

	ErrInvalidOrderTransition    = fmt.Errorf("%w: order status transition", ErrInvalidState)
	ErrInvalidProposalTransition = fmt.Errorf("%w: proposal status transition", ErrInvalidState)
)

type OrderType string

const (
	OrderTypePublic OrderType = "public"
	OrderTypeDirect OrderType = "direct"
)

func (t OrderType) Valid() bool {
	return t == OrderTypePublic || t == OrderTypeDirect
}

type OrderStatus string

const (
	OrderStatusDraft         OrderStatus = "draft"
	OrderStatusPublished     OrderStatus = "published"
	OrderStatusInProgress    OrderStatus = "in_progress"
	OrderStatusPendingReview OrderStatus = "pending_review"
	OrderStatusCompleted     OrderStatus = "completed"
	OrderStatusDisputed      OrderStatus = "disputed"
	OrderStatusCancelled     OrderStatus = "cancelled"
)

// OrderStatuses lists every order status in lifecycle order.
func OrderStatuses() []OrderStatus {
	return []OrderStatus{
		OrderStatusDraft,
		OrderStatusPublished,
		OrderStatusInProgress,
		OrderStatusPendingReview,
		OrderStatusCompleted,
		OrderStatusDisputed,
		OrderStatusCancelled,
	}
}

var orderTransitions = map[OrderStatus]map[OrderStatus]struct{}{
	OrderStatusDraft: {
		OrderStatusPublished: {},
		OrderStatusCancelled: {},
	},
	OrderStatusPublished: {
		OrderStatusInProgress: {},
		OrderStatusCancelled:  {},
	},
	OrderStatusInProgress: {
		OrderStatusPendingReview: {},
		OrderStatusDisputed:      {},
		OrderStatusCancelled:     {},
	},
	OrderStatusPendingReview: {
		OrderStatusCompleted: {},
		OrderStatusDisputed:  {},
	},
	OrderStatusDisputed: {
		OrderStatusCompleted: {},
		OrderStatusCancelled: {},
	},
	OrderStatusCompleted: {},
	OrderStatusCancelled: {},
}

func (s OrderStatus) Valid() bool {
	_, ok := orderTransitions[s]
	return ok
}

func (s OrderStatus) Terminal() bool {
	next, ok := orderTransitions[s]
	return ok && len(next) == 0
}

// RequiresContractor reports whether an order in this status must carry an
// assigned contractor.
func (s OrderStatus) RequiresContractor() bool {
	switch s {
	case OrderStatusInProgress, OrderStatusPendingReview, OrderStatusCompleted, OrderStatusDisputed:
		return true
	default:
		return false
	}
}

func OrderTransitionAllowed(current, next OrderStatus) bool {
	allowed, ok := orderTransitions[current]
	if !ok {
		return false
	}
	_, ok = allowed[next]
	return ok
}

func ValidateOrderTransition(current, next OrderStatus) error {
	if !OrderTransitionAllowed(current, next) {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidOrderTransition, current, next)
	}
	return nil
}

type Location struct {
	City        string
	Region      string
	CountryCode string
	PostalCode  string
}

func (l Location) Normalize() Location {
	return Location{
		City:        strings.TrimSpace(l.City),
		Region:      strings.TrimSpace(l.Region),
		CountryCode: strings.ToUpper(strings.TrimSpace(l.CountryCode)),
		PostalCode:  strings.TrimSpace(l.PostalCode),
	}
}

// Order is a unit of requested work. Amounts are expressed in minor currency
// units.
type Order struct {
	ID                  string
	Title               string
	Description         string
	Type                OrderType
	Status              OrderStatus
	ClientID            string
	ContractorID        string
	DirectContractorID  string
	AgreedPrice         *int64
	Budget              int64
	CategoryID          string
	Location            Location
	PublishedAt         *time.Time
	StartedAt           *time.Time
	CompletedAt         *time.Time
	ReviewEligibleUntil *time.Time
	DeletedAt           *time.Time
	CreatedAt           time.Time
	UpdatedAt           time.Time
}

func (o Order) HasContractor() bool {
	return strings.TrimSpace(o.ContractorID) != ""
}

func (o Order) OwnedBy(userID string) bool {
	userID = strings.TrimSpace(userID)
	return userID != "" && o.ClientID == userID
}

func (o Order) AssignedTo(userID string) bool {
	userID = strings.TrimSpace(userID)
	return userID != "" && o.ContractorID == userID
}

// CheckContractorInvariant verifies that a contractor is assigned exactly when
// the status requires one.
func (o Order) CheckContractorInvariant() error {
	if o.Status.RequiresContractor() != o.HasContractor() {
		return fmt.Errorf(
			"%w: order %q status %s with contractor %q",
			ErrInvalidState,
			o.ID,
			o.Status,
			o.ContractorID,
		)
	}
	return nil
}

type OrderDraft struct {
	Title              string
	Description        string
	Type               OrderType
	Budget             int64
	CategoryID         string
	DirectContractorID string
	Location           Location
}

func (d OrderDraft) Validate() error {
	var problems []string
	if strings.TrimSpace(d.Title) == "" {
		problems = append(problems, "title is required")
	}
	if !d.Type.Valid() {
		problems = append(problems, fmt.Sprintf("order type %q is invalid", d.Type))
	}
	if strings.TrimSpace(d.CategoryID) == "" {
		problems = append(problems, "category id is required")
	}
	if d.Budget < 0 {
		problems = append(problems, "budget must not be negative")
	}
	if d.Type == OrderTypeDirect && strings.TrimSpace(d.DirectContractorID) == "" {
		problems = append(problems, "direct orders require a contractor id")
	}
	if d.Type == OrderTypePublic && strings.TrimSpace(d.DirectContractorID) != "" {
		problems = append(problems, "public orders must not target a contractor")
	}
	if len(problems) > 0 {
		return fmt.Errorf("%w: %s", ErrValidation, strings.Join(problems, "; "))
	}
	return nil
}

// OrderPatch carries optional draft edits; nil fields are left untouched.
type OrderPatch struct {
	Title       *string
	Description *string
	Budget      *int64
	CategoryID  *string
	Location    *Location
}

func (p OrderPatch) Empty() bool {
	return p.Title == nil && p.Description == nil && p.Budget == nil && p.CategoryID == nil && p.Location == nil
}

func (p OrderPatch) Apply(order Order) (Order, error) {
	if p.Title != nil {
		if strings.TrimSpace(*p.Title) == "" {
			return order, fmt.Errorf("%w: title must not be empty", ErrValidation)
		}
		order.Title = strings.TrimSpace(*p.Title)
	}
	if p.Description != nil {
		order.Description = strings.TrimSpace(*p.Description)
	}
	if p.Budget != nil {
		if *p.Budget < 0 {
			return order, fmt.Errorf("%w: budget must not be negative", ErrValidation)
		}
		order.Budget = *p.Budget
	}
	if p.CategoryID != nil {
		if strings.TrimSpace(*p.CategoryID) == "" {
			return order, fmt.Errorf("%w: category id must not be empty", ErrValidation)
		}
		order.CategoryID = strings.TrimSpace(*p.CategoryID)
	}
	if p.Location != nil {
		order.Location = p.Location.Normalize()
	}
	return order, nil
}

type OrderFilter struct {
	Status       OrderStatus
	Type         OrderType
	CategoryID   string
	ClientID     string
	ContractorID string
	City         string
	CountryCode  string
	MinBudget    *int64
	MaxBudget    *int64
	Query        string
	Page         int
	PerPage      int
}

type OrderPage struct {
	Items   []Order
	Total   int
	Page    int
	PerPage int
}

type ProposalStatus string

const (
	ProposalStatusPending  ProposalStatus = "pending"
	ProposalStatusAccepted ProposalStatus = "accepted"
	ProposalStatusRejected ProposalStatus = "rejected"
)

func (s ProposalStatus) Valid() bool {
	switch s {
	case ProposalStatusPending, ProposalStatusAccepted, ProposalStatusRejected:
		return true
	}
	return false
}

func ProposalTransitionAllowed(current, next ProposalStatus) bool {
	return current == ProposalStatusPending &&
		(next == ProposalStatusAccepted || next == ProposalStatusRejected)
}

func ValidateProposalTransition(current, next ProposalStatus) error {
	if !ProposalTransitionAllowed(current, next) {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidProposalTransition, current, next)
	}
	return nil
}

type Proposal struct {
	ID            string
	OrderID       string
	ContractorID  string
	Price         int64
	Message       string
	EstimatedDays *int
	Status        ProposalStatus
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

type ProposalDraft struct {
	Price         int64
	Message       string
	EstimatedDays *int
}

func (d ProposalDraft) Validate() error {
	if d.Price <= 0 {
		return fmt.Errorf("%w: proposal price must be positive", ErrValidation)
	}
	if d.EstimatedDays != nil && *d.EstimatedDays <= 0 {
		return fmt.Errorf("%w: estimated days must be positive", ErrValidation)
	}
	return nil
}

type ProposalPatch struct {
	Price         *int64
	Message       *string
	EstimatedDays *int
}

func (p ProposalPatch) Apply(proposal Proposal) (Proposal, error) {
	if p.Price != nil {
		if *p.Price <= 0 {
			return proposal, fmt.Errorf("%w: proposal price must be positive", ErrValidation)
		}
		proposal.Price = *p.Price
	}
	if p.Message != nil {
		proposal.Message = strings.TrimSpace(*p.Message)
	}
	if p.EstimatedDays != nil {
		if *p.EstimatedDays <= 0 {
			return proposal, fmt.Errorf("%w: estimated days must be positive", ErrValidation)
		}
		days := *p.EstimatedDays
		proposal.EstimatedDays = &days
	}
	return proposal, nil
}

type ProposalFilter struct {
	Status  ProposalStatus
	Page    int
	PerPage int
}

type ProposalPage struct {
	Items   []Proposal
	Total   int
	Page    int
	PerPage int
}

type UserRole string

const (
	UserRoleClient     UserRole = "client"
	UserRoleContractor UserRole = "contractor"
	UserRoleAdmin      UserRole = "admin"
)

type User struct {
	ID           string
	Role         UserRole
	Name         string
	Email        string
	DeviceTokens []string
	CategoryIDs  []string
	Location     Location
}

type Category struct {
	ID     string
	Name   string
	Active bool
}

type ContractorFilter struct {
	CategoryID  string
	City        string
	CountryCode string
	ExcludeIDs  []string
	Limit       int
}

func normalizePage(page, perPage int) (int, int) {
	if page < 1 {
		page = 1
	}
	if perPage <= 0 {
		perPage = 20
	}
	if perPage > 100 {
		perPage = 100
	}
	return page, perPage
}

func timePtr(t time.Time) *time.Time {
	value := t.UTC()
	return &value
}
