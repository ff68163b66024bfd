package models

import (
	"math/rand"
	"time"

	"gorm.io/gorm"
)

// EveryDay is the DayOfWeek sentinel for profiles reminded every day.
const EveryDay = 7

// DefaultMaxEntries bounds a reminder when the profile does not override it.
const DefaultMaxEntries = 5

type User struct {
	ID        string    `gorm:"primaryKey;type:varchar(32)" json:"id"`
	Username  string    `gorm:"uniqueIndex;not null;size:100" json:"username"`
	Name      string    `gorm:"size:255" json:"name"`
	Email     string    `gorm:"size:255" json:"email"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	Profile   *UserProfile    `gorm:"foreignKey:UserID;constraint:OnDelete:CASCADE" json:"-"`
	Tokens    []ProviderToken `gorm:"foreignKey:UserID;constraint:OnDelete:CASCADE" json:"-"`
	Reminders []Reminder      `gorm:"foreignKey:UserID;constraint:OnDelete:CASCADE" json:"-"`
}

func (u *User) BeforeCreate(tx *gorm.DB) error {
	if u.ID == "" {
		u.ID = GenerateID()
	}
	return nil
}

// DisplayName renders "Name (login)" when a real name is known, otherwise the login.
func (u *User) DisplayName() string {
	if u.Name != "" {
		return u.Name + " (" + u.Username + ")"
	}
	return u.Username
}

// UserProfile holds per-user scheduling configuration. The pipeline only ever
// mutates CycleStartID; everything else belongs to the settings surface.
type UserProfile struct {
	ID     string `gorm:"primaryKey;type:varchar(32)" json:"id"`
	UserID string `gorm:"uniqueIndex;not null;size:32" json:"user_id"`

	// FeedID is the capability key for the public reminder feeds.
	FeedID string `gorm:"uniqueIndex;not null;size:32" json:"feed_id"`

	// DayOfWeek is 0=Monday .. 6=Sunday, or EveryDay.
	DayOfWeek  int `gorm:"not null;default:7" json:"day_of_week"`
	HourOfDay  int `gorm:"not null;default:0" json:"hour_of_day"`
	MaxEntries int `gorm:"not null;default:5" json:"max_entries"`

	ReminderEmail   *string `gorm:"size:255" json:"reminder_email,omitempty"`
	IncludeArchived bool    `gorm:"not null;default:false" json:"include_archived"`

	// CycleStartID marks the earliest Star row of the current reminder cycle.
	// Null means a fresh cycle starts on the next run.
	CycleStartID *uint `gorm:"index" json:"cycle_start_id,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	User User `gorm:"foreignKey:UserID" json:"-"`
}

func (p *UserProfile) BeforeCreate(tx *gorm.DB) error {
	if p.ID == "" {
		p.ID = GenerateID()
	}
	if p.FeedID == "" {
		p.FeedID = GenerateID()
	}
	return nil
}

// DueAt reports whether the profile's schedule matches the given instant.
// Days follow the profile encoding (0=Monday), hours match exactly.
func (p *UserProfile) DueAt(t time.Time) bool {
	if t.Hour() != p.HourOfDay {
		return false
	}
	if p.DayOfWeek == EveryDay {
		return true
	}
	weekday := (int(t.Weekday()) + 6) % 7 // time.Weekday starts on Sunday
	return weekday == p.DayOfWeek
}

// WantsEmail reports whether a reminder email should be sent for this profile.
func (p *UserProfile) WantsEmail() bool {
	return p.ReminderEmail != nil && *p.ReminderEmail != ""
}

// ProviderToken is a bearer credential for one star provider. The secret is
// sealed at rest; the database layer handles sealing and opening.
type ProviderToken struct {
	ID          string    `gorm:"primaryKey;type:varchar(32)" json:"id"`
	UserID      string    `gorm:"not null;size:32;index" json:"user_id"`
	Provider    string    `gorm:"not null;size:50;index" json:"provider"`
	TokenSealed string    `gorm:"not null;size:512" json:"-"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`

	User User `gorm:"foreignKey:UserID" json:"-"`
}

func (t *ProviderToken) BeforeCreate(tx *gorm.DB) error {
	if t.ID == "" {
		t.ID = GenerateID()
	}
	return nil
}

func (User) TableName() string          { return "users" }
func (UserProfile) TableName() string   { return "user_profiles" }
func (ProviderToken) TableName() string { return "provider_tokens" }

func GenerateID() string {
	return generateRandomString(32)
}

func generateRandomString(length int) string {
	const charset = "abcdefghijklmnopqrstuvwxyz0123456789"
	b := make([]byte, length)
	for i := range b {
		b[i] = charset[rand.Intn(len(charset))]
	}
	return string(b)
}
