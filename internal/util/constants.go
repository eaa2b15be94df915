package util

// 媒体存储后端类型
const (
	StorageLocal = "local"
	StorageMinio = "minio"
)
