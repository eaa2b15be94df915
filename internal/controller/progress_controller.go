package controller

import (
	"offline_cache_backend/internal/model"
	"offline_cache_backend/internal/service"
	"offline_cache_backend/internal/util"

	"github.com/gin-gonic/gin"
)

type ProgressController struct {
	CacheService *service.CacheService
}

func NewProgressController(cacheService *service.CacheService) *ProgressController {
	return &ProgressController{CacheService: cacheService}
}

// @Summary 保存学习进度
// @Description 按 (courseId, userId) 更新或创建，userId 取自令牌
// @Tags 学习进度
// @Accept json
// @Produce json
// @Security ApiKeyAuth
// @Param progress body model.Progress true "进度记录"
// @Success 200 {object} util.Response
// @Router /api/progress [post]
func (c *ProgressController) SaveProgress(ctx *gin.Context) {
	user := util.GetUserFromContext(ctx)
	if user == nil {
		util.Unauthorized(ctx)
		return
	}

	var progress model.Progress
	if err := ctx.ShouldBindJSON(&progress); err != nil {
		util.BadRequest(ctx, "invalid progress payload")
		return
	}
	if progress.CourseID == "" {
		util.BadRequest(ctx, "courseId is required")
		return
	}
	// 进度只能写到自己名下
	progress.UserID = user.UserID

	if err := c.CacheService.SaveProgress(ctx.Request.Context(), &progress); err != nil {
		util.LogInternalError(ctx, err)
		return
	}
	util.Success(ctx, progress)
}

// @Summary 读取学习进度
// @Tags 学习进度
// @Produce json
// @Security ApiKeyAuth
// @Param courseId path string true "课程ID"
// @Success 200 {object} util.Response
// @Router /api/progress/{courseId} [get]
func (c *ProgressController) GetProgress(ctx *gin.Context) {
	user := util.GetUserFromContext(ctx)
	if user == nil {
		util.Unauthorized(ctx)
		return
	}

	progress, err := c.CacheService.GetProgress(ctx.Request.Context(), ctx.Param("courseId"), user.UserID)
	if err != nil {
		util.LogInternalError(ctx, err)
		return
	}
	if progress == nil {
		util.NotFound(ctx)
		return
	}
	util.Success(ctx, progress)
}
