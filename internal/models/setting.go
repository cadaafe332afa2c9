package models

import "time"

// Setting is the panel-wide settings row. Only the newest row is used.
type Setting struct {
	ID                uint      `gorm:"column:id;primaryKey" json:"id"`
	CompanyName       string    `gorm:"column:company_name;size:255" json:"company_name"`
	MikrotikHost      string    `gorm:"column:mikrotik_host;size:255" json:"mikrotik_host"`
	MikrotikUser      string    `gorm:"column:mikrotik_user;size:100" json:"mikrotik_user"`
	MikrotikPassword  string    `gorm:"column:mikrotik_password;size:255" json:"-"`
	MikrotikTimeoutMs int       `gorm:"column:mikrotik_timeout_ms;default:0" json:"mikrotik_timeout_ms"`
	CreatedAt         time.Time `gorm:"column:created_at" json:"created_at"`
	UpdatedAt         time.Time `gorm:"column:updated_at" json:"updated_at"`
}

func (Setting) TableName() string {
	return "settings"
}

// HasRouter reports whether router credentials are present.
func (s *Setting) HasRouter() bool {
	return s != nil && s.MikrotikHost != "" && s.MikrotikUser != ""
}

// SystemPreference is a key/value row for values generated at runtime.
type SystemPreference struct {
	ID        uint   `gorm:"column:id;primaryKey"`
	Key       string `gorm:"column:key;size:100;uniqueIndex;not null"`
	Value     string `gorm:"column:value;type:text"`
	ValueType string `gorm:"column:value_type;size:20;default:string"`
}

func (SystemPreference) TableName() string {
	return "system_preferences"
}
