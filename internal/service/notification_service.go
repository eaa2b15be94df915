package service

import (
	"context"
	"fmt"
	"offline_cache_backend/internal/config"
	"offline_cache_backend/internal/model"
	"offline_cache_backend/pkg/logger"
	"offline_cache_backend/pkg/monitoring"

	"go.uber.org/zap"
)

// PermissionStore 通知权限与推送订阅的宿主状态。
// 这是宿主环境的状态，本服务只读取和按用户请求更新，从不自动改写。
type PermissionStore interface {
	GetPermission(ctx context.Context, userID string) (model.PermissionState, error)
	SetPermission(ctx context.Context, userID string, state model.PermissionState) error
	GetSubscription(ctx context.Context, userID string) (*model.PushSubscription, error)
	SetSubscription(ctx context.Context, userID string, sub *model.PushSubscription) error
	DeleteSubscription(ctx context.Context, userID string) error
}

// NotificationHost 宿主通知能力：向客户端展示通知、发起权限询问
type NotificationHost interface {
	Supported() bool
	Deliver(ctx context.Context, userID string, payload *model.NotificationPayload) error
	Prompt(ctx context.Context, userID string) error
}

// NotificationService 权限生命周期 + 固定几类用户可见通知，
// 全部通过 ShowNotification 这一个原语展示。
type NotificationService struct {
	Host        NotificationHost
	Permissions PermissionStore

	icon      string
	badge     string
	enabled   bool
	supported bool
}

func NewNotificationService(host NotificationHost, permissions PermissionStore, cfg *config.Config) *NotificationService {
	return &NotificationService{
		Host:        host,
		Permissions: permissions,
		icon:        cfg.Notification.Icon,
		badge:       cfg.Notification.Badge,
		enabled:     cfg.Notification.Enabled,
	}
}

// Initialize 检查宿主是否支持通知展示。不支持时返回 false（非致命），
// 之后所有 Show* 调用静默返回 false。
func (s *NotificationService) Initialize(ctx context.Context) bool {
	if !s.enabled || s.Host == nil || !s.Host.Supported() {
		logger.Log.Warn("notifications unsupported, dispatch disabled")
		s.supported = false
		return false
	}
	s.supported = true
	return true
}

// RequestPermission 发起一次权限询问并返回当前状态。
// 重复调用安全；denied 状态下不再询问，只返回状态。
func (s *NotificationService) RequestPermission(ctx context.Context, userID string) model.PermissionState {
	state, err := s.Permissions.GetPermission(ctx, userID)
	if err != nil {
		logger.Log.Error("failed to read permission state", zap.String("userId", userID), zap.Error(err))
		return model.PermissionDefault
	}

	if state != model.PermissionDefault {
		return state
	}

	if s.supported {
		if err := s.Host.Prompt(ctx, userID); err != nil {
			logger.Log.Warn("permission prompt failed", zap.String("userId", userID), zap.Error(err))
		}
	}
	return state
}

// ReportPermission 宿主回报用户的授权决定
func (s *NotificationService) ReportPermission(ctx context.Context, userID string, state model.PermissionState) error {
	switch state {
	case model.PermissionDefault, model.PermissionGranted, model.PermissionDenied:
	default:
		return fmt.Errorf("unknown permission state: %s", state)
	}
	return s.Permissions.SetPermission(ctx, userID, state)
}

// GetPermissionStatus 纯读取，从不触发询问
func (s *NotificationService) GetPermissionStatus(ctx context.Context, userID string) model.PermissionState {
	state, err := s.Permissions.GetPermission(ctx, userID)
	if err != nil {
		logger.Log.Error("failed to read permission state", zap.String("userId", userID), zap.Error(err))
		return model.PermissionDefault
	}
	return state
}

// SubscribeToPush 权限已授予时登记推送订阅，否则返回 nil
func (s *NotificationService) SubscribeToPush(ctx context.Context, userID string, sub *model.PushSubscription) *model.PushSubscription {
	if !s.supported || s.GetPermissionStatus(ctx, userID) != model.PermissionGranted {
		return nil
	}
	if err := s.Permissions.SetSubscription(ctx, userID, sub); err != nil {
		logger.Log.Error("failed to save push subscription", zap.String("userId", userID), zap.Error(err))
		return nil
	}
	return sub
}

// UnsubscribeFromPush 无订阅或权限未授予时为 no-op，返回 false
func (s *NotificationService) UnsubscribeFromPush(ctx context.Context, userID string) bool {
	if !s.supported || s.GetPermissionStatus(ctx, userID) != model.PermissionGranted {
		return false
	}
	sub, err := s.Permissions.GetSubscription(ctx, userID)
	if err != nil || sub == nil {
		return false
	}
	if err := s.Permissions.DeleteSubscription(ctx, userID); err != nil {
		logger.Log.Error("failed to remove push subscription", zap.String("userId", userID), zap.Error(err))
		return false
	}
	return true
}

// ShowNotification 通用展示原语。前置条件：宿主受支持且权限为 granted，
// 否则不产生任何副作用，返回 false。
func (s *NotificationService) ShowNotification(ctx context.Context, userID string, payload *model.NotificationPayload) bool {
	if !s.supported {
		return false
	}
	if s.GetPermissionStatus(ctx, userID) != model.PermissionGranted {
		return false
	}

	if payload.Icon == "" {
		payload.Icon = s.icon
	}
	if payload.Badge == "" {
		payload.Badge = s.badge
	}

	if err := s.Host.Deliver(ctx, userID, payload); err != nil {
		logger.Log.Warn("notification delivery failed",
			zap.String("userId", userID),
			zap.String("tag", payload.Tag),
			zap.Error(err))
		return false
	}

	if t, ok := payload.Data["type"].(string); ok {
		monitoring.NotificationCounter.WithLabelValues(t).Inc()
	}
	return true
}

// RouteClick 根据通知 data.type 解析点击目的地。
// 未知或缺失的 type 返回 ok=false，表示只聚焦应用，不导航。
func (s *NotificationService) RouteClick(data map[string]interface{}) (string, bool) {
	t, _ := data["type"].(string)
	switch t {
	case model.NotifyCourseReminder, model.NotifyNewCourse, model.NotifyStreakReminder:
		return model.DestCourses, true
	case model.NotifyAchievement:
		return model.DestAchievements, true
	case model.NotifyAITutor:
		return model.DestAITutor, true
	case model.NotifyOfflineContent:
		return model.DestOffline, true
	default:
		return "", false
	}
}

// ShowCourseReminder 课程学习提醒
func (s *NotificationService) ShowCourseReminder(ctx context.Context, userID, courseTitle string) bool {
	return s.ShowNotification(ctx, userID, &model.NotificationPayload{
		Title: "Time to continue learning!",
		Body:  fmt.Sprintf("Continue your progress in %s", courseTitle),
		Tag:   model.NotifyCourseReminder,
		Data:  map[string]interface{}{"type": model.NotifyCourseReminder, "courseTitle": courseTitle},
		Actions: []model.NotificationAction{
			{Action: "continue", Title: "Continue Learning"},
			{Action: "later", Title: "Remind Later"},
		},
	})
}

// ShowAchievementUnlocked 成就解锁
func (s *NotificationService) ShowAchievementUnlocked(ctx context.Context, userID, achievementName string) bool {
	return s.ShowNotification(ctx, userID, &model.NotificationPayload{
		Title:              "Achievement Unlocked! 🎉",
		Body:               fmt.Sprintf("You earned: %s", achievementName),
		Tag:                model.NotifyAchievement,
		Data:               map[string]interface{}{"type": model.NotifyAchievement, "achievement": achievementName},
		RequireInteraction: true,
		Actions: []model.NotificationAction{
			{Action: "view", Title: "View Achievement"},
			{Action: "dismiss", Title: "Dismiss"},
		},
	})
}

// ShowNewCourseAvailable 新课程上架
func (s *NotificationService) ShowNewCourseAvailable(ctx context.Context, userID, courseTitle string) bool {
	return s.ShowNotification(ctx, userID, &model.NotificationPayload{
		Title: "New course available",
		Body:  fmt.Sprintf("%s is now available", courseTitle),
		Tag:   model.NotifyNewCourse,
		Data:  map[string]interface{}{"type": model.NotifyNewCourse, "courseTitle": courseTitle},
		Actions: []model.NotificationAction{
			{Action: "view", Title: "View Course"},
			{Action: "later", Title: "Maybe Later"},
		},
	})
}

// ShowStreakReminder 连续学习打卡提醒
func (s *NotificationService) ShowStreakReminder(ctx context.Context, userID string, days int) bool {
	return s.ShowNotification(ctx, userID, &model.NotificationPayload{
		Title: "Keep your streak going! 🔥",
		Body:  fmt.Sprintf("You have a %d-day learning streak. Learn today to keep it going!", days),
		Tag:   model.NotifyStreakReminder,
		Data:  map[string]interface{}{"type": model.NotifyStreakReminder, "days": days},
		Actions: []model.NotificationAction{
			{Action: "continue", Title: "Continue Learning"},
			{Action: "later", Title: "Remind Later"},
		},
	})
}

// ShowAITutorAvailable AI 助教可用
func (s *NotificationService) ShowAITutorAvailable(ctx context.Context, userID string) bool {
	return s.ShowNotification(ctx, userID, &model.NotificationPayload{
		Title: "AI Tutor is ready",
		Body:  "Your AI tutor is available to answer questions",
		Tag:   model.NotifyAITutor,
		Data:  map[string]interface{}{"type": model.NotifyAITutor},
		Actions: []model.NotificationAction{
			{Action: "ask", Title: "Ask a Question"},
			{Action: "dismiss", Title: "Dismiss"},
		},
	})
}

// ShowOfflineContentReady 离线内容下载完成
func (s *NotificationService) ShowOfflineContentReady(ctx context.Context, userID string, count int) bool {
	return s.ShowNotification(ctx, userID, &model.NotificationPayload{
		Title: "Offline content ready",
		Body:  fmt.Sprintf("%d course(s) downloaded and available offline", count),
		Tag:   model.NotifyOfflineContent,
		Data:  map[string]interface{}{"type": model.NotifyOfflineContent, "count": count},
		Actions: []model.NotificationAction{
			{Action: "view", Title: "View Offline Courses"},
			{Action: "dismiss", Title: "Dismiss"},
		},
	})
}
