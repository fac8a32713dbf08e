package model

import "time"

// Tag is a registered label that chunks may carry.
type Tag struct {
	ID        int64     `json:"id" gorm:"primaryKey;autoIncrement;comment:标签ID"`
	Name      string    `json:"name" gorm:"size:100;not null;uniqueIndex:tags_name_unique;comment:标签名"`
	CreatedAt time.Time `json:"created_at" gorm:"autoCreateTime;comment:创建时间"`
}

// TableName specifies the table name for Tag.
func (Tag) TableName() string {
	return "tags"
}
