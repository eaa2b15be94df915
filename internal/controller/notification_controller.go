package controller

import (
	"offline_cache_backend/internal/model"
	"offline_cache_backend/internal/service"
	"offline_cache_backend/internal/util"

	"github.com/gin-gonic/gin"
)

type NotificationController struct {
	NotificationService *service.NotificationService
	Hub                 *service.NotificationHub
}

func NewNotificationController(notificationService *service.NotificationService, hub *service.NotificationHub) *NotificationController {
	return &NotificationController{
		NotificationService: notificationService,
		Hub:                 hub,
	}
}

// @Summary 通知权限状态
// @Tags 通知
// @Produce json
// @Security ApiKeyAuth
// @Success 200 {object} util.Response
// @Router /api/notifications/permission [get]
func (c *NotificationController) GetPermissionStatus(ctx *gin.Context) {
	user := util.GetUserFromContext(ctx)
	if user == nil {
		util.Unauthorized(ctx)
		return
	}

	state := c.NotificationService.GetPermissionStatus(ctx.Request.Context(), user.UserID)
	util.Success(ctx, gin.H{"permission": state})
}

// @Summary 发起权限询问
// @Description 已是 denied 的用户不会再次询问，只返回当前状态
// @Tags 通知
// @Produce json
// @Security ApiKeyAuth
// @Success 200 {object} util.Response
// @Router /api/notifications/permission/request [post]
func (c *NotificationController) RequestPermission(ctx *gin.Context) {
	user := util.GetUserFromContext(ctx)
	if user == nil {
		util.Unauthorized(ctx)
		return
	}

	state := c.NotificationService.RequestPermission(ctx.Request.Context(), user.UserID)
	util.Success(ctx, gin.H{"permission": state})
}

type permissionReport struct {
	State string `json:"state" binding:"required"`
}

// @Summary 回报授权决定
// @Description 前端把浏览器的授权结果回报给服务
// @Tags 通知
// @Accept json
// @Produce json
// @Security ApiKeyAuth
// @Param report body permissionReport true "授权状态"
// @Success 200 {object} util.Response
// @Router /api/notifications/permission/report [post]
func (c *NotificationController) ReportPermission(ctx *gin.Context) {
	user := util.GetUserFromContext(ctx)
	if user == nil {
		util.Unauthorized(ctx)
		return
	}

	var report permissionReport
	if err := ctx.ShouldBindJSON(&report); err != nil {
		util.BadRequest(ctx, "state is required")
		return
	}

	if err := c.NotificationService.ReportPermission(ctx.Request.Context(), user.UserID, model.PermissionState(report.State)); err != nil {
		util.BadRequest(ctx, err.Error())
		return
	}
	util.Success(ctx, nil)
}

// @Summary 登记推送订阅
// @Tags 通知
// @Accept json
// @Produce json
// @Security ApiKeyAuth
// @Param subscription body model.PushSubscription true "推送订阅"
// @Success 200 {object} util.Response
// @Router /api/notifications/subscribe [post]
func (c *NotificationController) SubscribeToPush(ctx *gin.Context) {
	user := util.GetUserFromContext(ctx)
	if user == nil {
		util.Unauthorized(ctx)
		return
	}

	var sub model.PushSubscription
	if err := ctx.ShouldBindJSON(&sub); err != nil {
		util.BadRequest(ctx, "invalid subscription payload")
		return
	}

	result := c.NotificationService.SubscribeToPush(ctx.Request.Context(), user.UserID, &sub)
	util.Success(ctx, gin.H{"subscription": result})
}

// @Summary 取消推送订阅
// @Tags 通知
// @Produce json
// @Security ApiKeyAuth
// @Success 200 {object} util.Response
// @Router /api/notifications/subscribe [delete]
func (c *NotificationController) UnsubscribeFromPush(ctx *gin.Context) {
	user := util.GetUserFromContext(ctx)
	if user == nil {
		util.Unauthorized(ctx)
		return
	}

	ok := c.NotificationService.UnsubscribeFromPush(ctx.Request.Context(), user.UserID)
	util.Success(ctx, gin.H{"unsubscribed": ok})
}

type showRequest struct {
	Type        string `json:"type" binding:"required"`
	UserID      string `json:"userId" binding:"required"`
	CourseTitle string `json:"courseTitle"`
	Achievement string `json:"achievement"`
	Days        int    `json:"days"`
	Count       int    `json:"count"`
}

// @Summary 触发一条类型化通知
// @Description 学习平台服务端调用，向指定用户展示某一类通知
// @Tags 通知
// @Accept json
// @Produce json
// @Param request body showRequest true "通知参数"
// @Success 200 {object} util.Response
// @Router /api/admin/notifications/show [post]
func (c *NotificationController) ShowNotification(ctx *gin.Context) {
	var req showRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		util.BadRequest(ctx, "type and userId are required")
		return
	}

	rctx := ctx.Request.Context()
	var shown bool
	switch req.Type {
	case model.NotifyCourseReminder:
		shown = c.NotificationService.ShowCourseReminder(rctx, req.UserID, req.CourseTitle)
	case model.NotifyAchievement:
		shown = c.NotificationService.ShowAchievementUnlocked(rctx, req.UserID, req.Achievement)
	case model.NotifyNewCourse:
		shown = c.NotificationService.ShowNewCourseAvailable(rctx, req.UserID, req.CourseTitle)
	case model.NotifyStreakReminder:
		shown = c.NotificationService.ShowStreakReminder(rctx, req.UserID, req.Days)
	case model.NotifyAITutor:
		shown = c.NotificationService.ShowAITutorAvailable(rctx, req.UserID)
	case model.NotifyOfflineContent:
		shown = c.NotificationService.ShowOfflineContentReady(rctx, req.UserID, req.Count)
	default:
		util.BadRequest(ctx, "unknown notification type")
		return
	}

	util.Success(ctx, gin.H{"shown": shown})
}

// @Summary 通知通道
// @Description 升级为 WebSocket，通知经此下发，点击事件原路回传
// @Tags 通知
// @Security ApiKeyAuth
// @Router /ws/notifications [get]
func (c *NotificationController) ServeWS(ctx *gin.Context) {
	user := util.GetUserFromContext(ctx)
	if user == nil {
		util.Unauthorized(ctx)
		return
	}
	c.Hub.ServeWS(ctx.Writer, ctx.Request, user.UserID)
}
