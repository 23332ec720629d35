package core

import (
	"time"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/v2/mongo"
)

// TenantContext is built once per request by the tenancy middleware and
// carries everything the route layer needs. The connection handles are
// shared with every other request for the same tenant; requests borrow
// them and never close them.
type TenantContext struct {
	TenantID  string
	DBName    string
	DB        *mongo.Database
	CentralDB *mongo.Database
}

// SubscriptionStatus values as stored in the central organizations collection.
const (
	SubscriptionActive    = "active"
	SubscriptionInactive  = "inactive"
	SubscriptionSuspended = "suspended"
	SubscriptionPending   = "pending"
)

type Subscription struct {
	Status  string     `json:"status" bson:"status"`
	EndDate *time.Time `json:"end_date,omitempty" bson:"end_date,omitempty"`
}

type Organization struct {
	ID           uuid.UUID    `json:"id" bson:"_id"`
	Subdomain    string       `json:"subdomain" bson:"subdomain"`
	Name         string       `json:"name" bson:"name"`
	DisplayName  string       `json:"display_name" bson:"display_name"`
	ContactEmail string       `json:"contact_email" bson:"contact_email"`
	Subscription Subscription `json:"subscription" bson:"subscription"`
	CreatedAt    time.Time    `json:"created_at" bson:"created_at"`
	UpdatedAt    time.Time    `json:"updated_at" bson:"updated_at"`
}

// LicenseValid reports whether the organization's subscription currently
// permits serving requests: an active status with no end date, or an end
// date still in the future.
func (o *Organization) LicenseValid(now time.Time) bool {
	if o.Subscription.Status != SubscriptionActive {
		return false
	}
	if o.Subscription.EndDate == nil {
		return true
	}
	return o.Subscription.EndDate.After(now)
}

// OrganizationSummary is the minimal slice of an organization exposed in
// license-denial responses.
type OrganizationSummary struct {
	Name         string `json:"name"`
	DisplayName  string `json:"displayName"`
	ContactEmail string `json:"contactEmail"`
}

func (o *Organization) Summary() OrganizationSummary {
	return OrganizationSummary{
		Name:         o.Name,
		DisplayName:  o.DisplayName,
		ContactEmail: o.ContactEmail,
	}
}
