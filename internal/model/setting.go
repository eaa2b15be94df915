package model

import "time"

// 已约定的设置键
const (
	SettingLastSync = "lastSync"
)

// Setting 键值设置，首次写入时创建，之后每次缓存变更或同步都会覆盖
type Setting struct {
	Name      string    `gorm:"primaryKey;type:varchar(64)" json:"name"`
	Value     string    `gorm:"size:255" json:"value"`
	UpdatedAt time.Time `json:"updatedAt"`
}

func (Setting) TableName() string {
	return "cache_settings"
}

// CacheStatus 每次请求时从实际存储记录重新推导，从不落盘
type CacheStatus struct {
	TotalSize      int64    `json:"totalSize"`
	AvailableSpace int64    `json:"availableSpace"`
	CachedCourses  []string `json:"cachedCourses"`
	LastSync       string   `json:"lastSync"`
	IsOnline       bool     `json:"isOnline"`
}
