package models

import "time"

// Policy is a document that users are asked to acknowledge.
type Policy struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
	Title     string    `gorm:"size:255;not null" json:"title"`
	Content   string    `gorm:"type:text;not null" json:"content"`
}

// TitleMaxLength mirrors the column size of Policy.Title.
const TitleMaxLength = 255
