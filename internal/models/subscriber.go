package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// GB is the multiplier used when quotas are entered in gigabytes.
const GB uint64 = 1024 * 1024 * 1024

// Disable reasons, derived at read time and never stored.
const (
	DisableReasonNone    = ""
	DisableReasonManual  = "manual"
	DisableReasonExpired = "expired"
	DisableReasonQuota   = "quota"
)

// Subscriber is a PPPoE account mirrored against a router secret.
type Subscriber struct {
	ID             uint                 `gorm:"column:id;primaryKey" json:"id"`
	Username       string               `gorm:"column:username;uniqueIndex;size:100;not null" json:"username"`
	Name           string               `gorm:"column:name;size:255" json:"name"`
	Password       string               `gorm:"column:password;size:255" json:"-"`
	Mobile         string               `gorm:"column:mobile;size:50" json:"mobile"`
	Email          string               `gorm:"column:email;size:255" json:"email"`
	Address        string               `gorm:"column:address;size:500" json:"address"`
	Salesperson    string               `gorm:"column:salesperson;size:100" json:"salesperson"`
	Package        string               `gorm:"column:package;size:100;index" json:"package"`
	PackagePrice   *decimal.Decimal     `gorm:"column:package_price;type:decimal(15,2)" json:"package_price"`
	Balance        *decimal.Decimal     `gorm:"column:balance;type:decimal(15,2)" json:"balance"`
	ConnectionType string               `gorm:"column:connection_type;size:20;default:pppoe" json:"connection_type"`
	Disabled       bool                 `gorm:"column:disabled;default:false;index" json:"disabled"`
	Online         bool                 `gorm:"column:online;default:false" json:"online"`
	ExpiryDate     *time.Time           `gorm:"column:expiry_date" json:"expiry_date"`

	// Usage accounting. UsedBytesTotal only goes down on renew.
	DataLimitBytes    uint64     `gorm:"column:data_limit_bytes;default:0" json:"data_limit_bytes"`
	UsedBytesTotal    uint64     `gorm:"column:used_bytes_total;default:0" json:"used_bytes_total"`
	LastBytesSnapshot uint64     `gorm:"column:last_bytes_snapshot;default:0" json:"last_bytes_snapshot"`
	LastSync          *time.Time `gorm:"column:last_sync" json:"last_sync"`

	CreatedAt time.Time `gorm:"column:created_at" json:"created_at"`
	UpdatedAt time.Time `gorm:"column:updated_at" json:"updated_at"`
}

func (Subscriber) TableName() string {
	return "subscribers"
}

// HasQuota reports whether a data limit is set. Zero means unlimited.
func (s *Subscriber) HasQuota() bool {
	return s.DataLimitBytes > 0
}

// QuotaRemaining is max(0, limit - used). Only meaningful when HasQuota.
func (s *Subscriber) QuotaRemaining() uint64 {
	if s.UsedBytesTotal >= s.DataLimitBytes {
		return 0
	}
	return s.DataLimitBytes - s.UsedBytesTotal
}

// QuotaExceeded reports used >= limit for limited subscribers.
func (s *Subscriber) QuotaExceeded() bool {
	return s.HasQuota() && s.UsedBytesTotal >= s.DataLimitBytes
}

// IsExpired reports whether the expiry date is strictly before now.
func (s *Subscriber) IsExpired(now time.Time) bool {
	return s.ExpiryDate != nil && s.ExpiryDate.Before(now)
}

// DisableReason explains a disabled subscriber: expiry first, then quota,
// otherwise it was switched off by hand.
func (s *Subscriber) DisableReason(now time.Time) string {
	if !s.Disabled {
		return DisableReasonNone
	}
	if s.IsExpired(now) {
		return DisableReasonExpired
	}
	if s.QuotaExceeded() {
		return DisableReasonQuota
	}
	return DisableReasonManual
}

// SubscriberPatch is a partial update. Nil fields are left untouched.
type SubscriberPatch struct {
	Name              *string
	Password          *string
	Mobile            *string
	Email             *string
	Address           *string
	Salesperson       *string
	Package           *string
	PackagePrice      *decimal.Decimal
	Balance           *decimal.Decimal
	ConnectionType    *string
	Disabled          *bool
	Online            *bool
	ExpiryDate        *time.Time
	ClearExpiry       bool
	DataLimitBytes    *uint64
	UsedBytesTotal    *uint64
	LastBytesSnapshot *uint64
	LastSync          *time.Time
}

// IsEmpty reports whether the patch changes nothing.
func (p *SubscriberPatch) IsEmpty() bool {
	return len(p.Columns()) == 0
}

// Columns maps the patch onto column names for a gorm Updates call.
func (p *SubscriberPatch) Columns() map[string]interface{} {
	cols := map[string]interface{}{}
	if p.Name != nil {
		cols["name"] = *p.Name
	}
	if p.Password != nil {
		cols["password"] = *p.Password
	}
	if p.Mobile != nil {
		cols["mobile"] = *p.Mobile
	}
	if p.Email != nil {
		cols["email"] = *p.Email
	}
	if p.Address != nil {
		cols["address"] = *p.Address
	}
	if p.Salesperson != nil {
		cols["salesperson"] = *p.Salesperson
	}
	if p.Package != nil {
		cols["package"] = *p.Package
	}
	if p.PackagePrice != nil {
		cols["package_price"] = *p.PackagePrice
	}
	if p.Balance != nil {
		cols["balance"] = *p.Balance
	}
	if p.ConnectionType != nil {
		cols["connection_type"] = *p.ConnectionType
	}
	if p.Disabled != nil {
		cols["disabled"] = *p.Disabled
	}
	if p.Online != nil {
		cols["online"] = *p.Online
	}
	if p.ClearExpiry {
		cols["expiry_date"] = nil
	} else if p.ExpiryDate != nil {
		cols["expiry_date"] = *p.ExpiryDate
	}
	if p.DataLimitBytes != nil {
		cols["data_limit_bytes"] = *p.DataLimitBytes
	}
	if p.UsedBytesTotal != nil {
		cols["used_bytes_total"] = *p.UsedBytesTotal
	}
	if p.LastBytesSnapshot != nil {
		cols["last_bytes_snapshot"] = *p.LastBytesSnapshot
	}
	if p.LastSync != nil {
		cols["last_sync"] = *p.LastSync
	}
	return cols
}

// Apply writes the patch into s.
func (p *SubscriberPatch) Apply(s *Subscriber) {
	if p.Name != nil {
		s.Name = *p.Name
	}
	if p.Password != nil {
		s.Password = *p.Password
	}
	if p.Mobile != nil {
		s.Mobile = *p.Mobile
	}
	if p.Email != nil {
		s.Email = *p.Email
	}
	if p.Address != nil {
		s.Address = *p.Address
	}
	if p.Salesperson != nil {
		s.Salesperson = *p.Salesperson
	}
	if p.Package != nil {
		s.Package = *p.Package
	}
	if p.PackagePrice != nil {
		v := *p.PackagePrice
		s.PackagePrice = &v
	}
	if p.Balance != nil {
		v := *p.Balance
		s.Balance = &v
	}
	if p.ConnectionType != nil {
		s.ConnectionType = *p.ConnectionType
	}
	if p.Disabled != nil {
		s.Disabled = *p.Disabled
	}
	if p.Online != nil {
		s.Online = *p.Online
	}
	if p.ClearExpiry {
		s.ExpiryDate = nil
	} else if p.ExpiryDate != nil {
		t := *p.ExpiryDate
		s.ExpiryDate = &t
	}
	if p.DataLimitBytes != nil {
		s.DataLimitBytes = *p.DataLimitBytes
	}
	if p.UsedBytesTotal != nil {
		s.UsedBytesTotal = *p.UsedBytesTotal
	}
	if p.LastBytesSnapshot != nil {
		s.LastBytesSnapshot = *p.LastBytesSnapshot
	}
	if p.LastSync != nil {
		t := *p.LastSync
		s.LastSync = &t
	}
}
