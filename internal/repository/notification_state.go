package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"offline_cache_backend/internal/model"

	"github.com/go-redis/redis/v8"
)

// NotificationStateRepository 通知权限与推送订阅。
// 这是宿主环境状态而非缓存数据，放 Redis 不占用缓存库的三个分区。
type NotificationStateRepository struct {
	Redis *redis.Client
}

func NewNotificationStateRepository(rdb *redis.Client) *NotificationStateRepository {
	return &NotificationStateRepository{Redis: rdb}
}

func permissionKey(userID string) string {
	return fmt.Sprintf("notify:permission:%s", userID)
}

func subscriptionKey(userID string) string {
	return fmt.Sprintf("notify:subscription:%s", userID)
}

// GetPermission 未记录过的用户返回 default
func (r *NotificationStateRepository) GetPermission(ctx context.Context, userID string) (model.PermissionState, error) {
	val, err := r.Redis.Get(ctx, permissionKey(userID)).Result()
	if err == redis.Nil {
		return model.PermissionDefault, nil
	}
	if err != nil {
		return model.PermissionDefault, err
	}
	return model.PermissionState(val), nil
}

func (r *NotificationStateRepository) SetPermission(ctx context.Context, userID string, state model.PermissionState) error {
	return r.Redis.Set(ctx, permissionKey(userID), string(state), 0).Err()
}

func (r *NotificationStateRepository) GetSubscription(ctx context.Context, userID string) (*model.PushSubscription, error) {
	val, err := r.Redis.Get(ctx, subscriptionKey(userID)).Result()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	var sub model.PushSubscription
	if err := json.Unmarshal([]byte(val), &sub); err != nil {
		return nil, err
	}
	return &sub, nil
}

func (r *NotificationStateRepository) SetSubscription(ctx context.Context, userID string, sub *model.PushSubscription) error {
	data, err := json.Marshal(sub)
	if err != nil {
		return err
	}
	return r.Redis.Set(ctx, subscriptionKey(userID), data, 0).Err()
}

func (r *NotificationStateRepository) DeleteSubscription(ctx context.Context, userID string) error {
	return r.Redis.Del(ctx, subscriptionKey(userID)).Err()
}
