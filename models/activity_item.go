package models

// ActivityDateLayout is the calendar date format used by activity items.
const ActivityDateLayout = "2006-01-02"

// ActivityItem is a scheduled block of work on a given date. Completed items
// count toward stake progress and settlement.
type ActivityItem struct {
	ID            string `gorm:"primaryKey;type:varchar(36)" json:"id"`
	UserID        string `gorm:"index" json:"user_id,omitempty"`
	WalletAddress string `gorm:"size:42;index" json:"wallet_address,omitempty"`
	Title         string `gorm:"not null" json:"title"`
	Date          string `gorm:"size:10;not null;index" json:"date"`
	StartTime     string `gorm:"size:5" json:"start_time"`
	EndTime       string `gorm:"size:5" json:"end_time"`
	CategoryID    string `gorm:"size:64;index" json:"category_id,omitempty"`
	Completed     bool   `gorm:"not null;default:false" json:"completed"`
	Timestamps
	SoftDelete
}

func (a ActivityItem) IsComplete() bool { return a.Completed }
