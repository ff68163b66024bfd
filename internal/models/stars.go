package models

import (
	"time"

	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// StarFields is the canonical shape of one starred repository, shared by the
// transient staging rows and the durable snapshots.
type StarFields struct {
	Provider    string  `gorm:"not null;size:50" json:"provider"`
	ProviderID  string  `gorm:"not null;size:255;index" json:"provider_id"`
	Owner       string  `gorm:"not null;size:255" json:"owner"`
	OwnerID     string  `gorm:"not null;size:255" json:"owner_id"`
	Name        string  `gorm:"not null;size:255" json:"name"`
	Description *string `gorm:"size:500" json:"description,omitempty"`
	StarCount   int     `gorm:"not null" json:"star_count"`
	RepoURL     string  `gorm:"not null;size:500" json:"repo_url"`
	ProjectURL  *string `gorm:"size:500" json:"project_url,omitempty"`
	Archived    bool    `gorm:"not null;default:false" json:"archived"`
}

// FullName renders the conventional owner/name form.
func (f StarFields) FullName() string {
	return f.Owner + "/" + f.Name
}

// TempStar is one staged record discovered during the current fetch cycle.
// Rows live only until the pipeline's cleanup stage; duplicates across pages
// are tolerated.
type TempStar struct {
	ID         uint   `gorm:"primaryKey" json:"id"`
	UserID     string `gorm:"not null;size:32;index" json:"user_id"`
	StarFields `gorm:"embedded" json:"star"`

	// Raw keeps the provider's original record for debugging a bad normalize.
	Raw datatypes.JSON `gorm:"type:json" json:"-"`

	CreatedAt time.Time `json:"created_at"`

	User User `gorm:"foreignKey:UserID" json:"-"`
}

// Reminder is one durable, timestamped digest of sampled repositories.
// Never mutated after creation.
type Reminder struct {
	ID        string    `gorm:"primaryKey;type:varchar(32)" json:"id"`
	UserID    string    `gorm:"not null;size:32;index" json:"user_id"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	Stars []Star `gorm:"foreignKey:ReminderID;constraint:OnDelete:CASCADE" json:"stars"`
	User  User   `gorm:"foreignKey:UserID" json:"-"`
}

func (r *Reminder) BeforeCreate(tx *gorm.DB) error {
	if r.ID == "" {
		r.ID = GenerateID()
	}
	return nil
}

// Star is an immutable snapshot of a staged record at sampling time. Its
// autoincrementing ID doubles as the cycle-boundary marker referenced by
// UserProfile.CycleStartID.
type Star struct {
	ID         uint   `gorm:"primaryKey" json:"id"`
	ReminderID string `gorm:"not null;size:32;index" json:"reminder_id"`
	UserID     string `gorm:"not null;size:32;index" json:"user_id"`
	StarFields `gorm:"embedded" json:"star"`

	CreatedAt time.Time `json:"created_at"`
}

func (TempStar) TableName() string { return "temp_stars" }
func (Reminder) TableName() string { return "reminders" }
func (Star) TableName() string     { return "stars" }
