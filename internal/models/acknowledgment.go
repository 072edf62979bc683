package models

import "time"

// Acknowledgment records that a user acknowledged a policy. At most one row
// exists per (user_id, policy_id), enforced by idx_ack_user_policy.
type Acknowledgment struct {
	ID             uint      `gorm:"primaryKey" json:"id"`
	UserID         uint      `gorm:"not null;uniqueIndex:idx_ack_user_policy" json:"user_id"`
	User           *User     `gorm:"foreignKey:UserID" json:"-"`
	PolicyID       uint      `gorm:"not null;uniqueIndex:idx_ack_user_policy;index" json:"policy_id"`
	Policy         *Policy   `gorm:"foreignKey:PolicyID" json:"-"`
	AcknowledgedAt time.Time `gorm:"not null" json:"acknowledged_at"`
}
