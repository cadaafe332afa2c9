package models

import "time"

// User is a panel administrator.
type User struct {
	ID        uint       `gorm:"column:id;primaryKey" json:"id"`
	Username  string     `gorm:"column:username;uniqueIndex;size:100;not null" json:"username"`
	Password  string     `gorm:"column:password;size:255;not null" json:"-"`
	FullName  string     `gorm:"column:full_name;size:255" json:"full_name"`
	Email     string     `gorm:"column:email;size:255" json:"email"`
	IsActive  bool       `gorm:"column:is_active;default:true" json:"is_active"`
	LastLogin *time.Time `gorm:"column:last_login" json:"last_login"`
	CreatedAt time.Time  `gorm:"column:created_at" json:"created_at"`
	UpdatedAt time.Time  `gorm:"column:updated_at" json:"updated_at"`
}

func (User) TableName() string {
	return "users"
}
