package model

// PermissionState 通知权限三态，由宿主环境控制
type PermissionState string

const (
	PermissionDefault PermissionState = "default"
	PermissionGranted PermissionState = "granted"
	PermissionDenied  PermissionState = "denied"
)

// 通知类型标识，既是 tag（同类通知折叠）也是 data.type 的路由键
const (
	NotifyCourseReminder = "course-reminder"
	NotifyAchievement    = "achievement"
	NotifyNewCourse      = "new-course"
	NotifyStreakReminder = "streak-reminder"
	NotifyAITutor        = "ai-tutor"
	NotifyOfflineContent = "offline-content"
)

// 点击路由目的地
const (
	DestCourses      = "/courses"
	DestAchievements = "/profile?tab=achievements"
	DestAITutor      = "/ai-tutor"
	DestOffline      = "/offline-courses"
)

type NotificationAction struct {
	Action string `json:"action"`
	Title  string `json:"title"`
	Icon   string `json:"icon,omitempty"`
}

// NotificationPayload 一次通知展示的全部参数，仅存在于内存，从不落盘。
// Data 必须带 type 判别字段用于点击路由。
type NotificationPayload struct {
	Title              string                 `json:"title"`
	Body               string                 `json:"body"`
	Icon               string                 `json:"icon,omitempty"`
	Badge              string                 `json:"badge,omitempty"`
	Image              string                 `json:"image,omitempty"`
	Tag                string                 `json:"tag,omitempty"`
	Data               map[string]interface{} `json:"data,omitempty"`
	Actions            []NotificationAction   `json:"actions,omitempty"`
	RequireInteraction bool                   `json:"requireInteraction,omitempty"`
	Silent             bool                   `json:"silent,omitempty"`
}

// PushSubscription 浏览器推送订阅的句柄信息
type PushSubscription struct {
	Endpoint string `json:"endpoint"`
	Auth     string `json:"auth,omitempty"`
	P256dh   string `json:"p256dh,omitempty"`
}
