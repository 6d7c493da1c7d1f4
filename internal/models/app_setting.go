package models

import "time"

// AppSetting stores a named JSON document, such as the last applied
// settings snapshot.
type AppSetting struct {
	Name      string    `json:"name" gorm:"type:varchar(64);primaryKey"`
	Value     string    `json:"value" gorm:"type:text;not null"`
	UpdatedAt time.Time `json:"updatedAt"`
}

func (AppSetting) TableName() string {
	return "app_settings"
}
