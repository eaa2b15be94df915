package model

import (
	"time"

	"gorm.io/datatypes"
)

// Progress 每个 (courseId, userId) 一条的本地学习进度记录。
// 除两个索引字段外负载不做结构约束，前端写入什么原样读回什么。
type Progress struct {
	UUIDBase
	CourseID string `gorm:"index;type:varchar(64);not null" json:"courseId"`
	UserID   string `gorm:"type:varchar(64);not null" json:"userId"`

	CompletedLessons datatypes.JSON `json:"completedLessons,omitempty"`
	CurrentLesson    string         `gorm:"size:64" json:"currentLesson,omitempty"`
	TimeSpent        int            `gorm:"default:0" json:"timeSpent"`
	Payload          datatypes.JSON `json:"payload,omitempty"`
	LastAccessed     time.Time      `json:"lastAccessed"`
}

func (Progress) TableName() string {
	return "offline_progress"
}
