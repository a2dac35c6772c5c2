package models

const (
	DefaultPlannerStartHour = 5
	DefaultPlannerEndHour   = 21
)

// PlannerConfig is the visible hour range of a user's day planner.
type PlannerConfig struct {
	UserID    string `gorm:"primaryKey;type:varchar(64)" json:"user_id"`
	StartHour int    `gorm:"not null" json:"start_hour"`
	EndHour   int    `gorm:"not null" json:"end_hour"`
	Timestamps
}
