package controller

import (
	"errors"
	"net/http"
	"offline_cache_backend/internal/model"
	"offline_cache_backend/internal/service"
	"offline_cache_backend/internal/util"

	"github.com/gin-gonic/gin"
)

type CacheController struct {
	CacheService *service.CacheService
}

func NewCacheController(cacheService *service.CacheService) *CacheController {
	return &CacheController{CacheService: cacheService}
}

// @Summary 缓存课程
// @Description 把一门课程的完整内容快照缓存到本地，容量不足时自动淘汰最旧条目
// @Tags 离线缓存
// @Accept json
// @Produce json
// @Security ApiKeyAuth
// @Param course body model.CourseContent true "课程内容"
// @Success 201 {object} util.Response
// @Router /api/cache/courses [post]
func (c *CacheController) CacheCourse(ctx *gin.Context) {
	user := util.GetUserFromContext(ctx)
	if user == nil {
		util.Unauthorized(ctx)
		return
	}

	var course model.CourseContent
	if err := ctx.ShouldBindJSON(&course); err != nil {
		util.BadRequest(ctx, "invalid course payload")
		return
	}
	if course.ID == "" {
		util.BadRequest(ctx, "course id is required")
		return
	}

	err := c.CacheService.CacheCourse(ctx.Request.Context(), &course, user.UserID)
	switch {
	case errors.Is(err, util.ErrInvalidCourseSize), errors.Is(err, util.ErrCourseTooLarge):
		util.BadRequest(ctx, err.Error())
	case errors.Is(err, util.ErrInsufficientCapacity):
		util.Error(ctx, http.StatusInsufficientStorage, err.Error())
	case err != nil:
		util.LogInternalError(ctx, err)
	default:
		util.Created(ctx, gin.H{"courseId": course.ID})
	}
}

// @Summary 获取缓存课程
// @Tags 离线缓存
// @Produce json
// @Security ApiKeyAuth
// @Param id path string true "课程ID"
// @Success 200 {object} util.Response
// @Router /api/cache/courses/{id} [get]
func (c *CacheController) GetCachedCourse(ctx *gin.Context) {
	course, err := c.CacheService.GetCachedCourse(ctx.Request.Context(), ctx.Param("id"))
	if err != nil {
		util.LogInternalError(ctx, err)
		return
	}
	if course == nil {
		util.NotFound(ctx)
		return
	}
	util.Success(ctx, course)
}

// @Summary 列出缓存课程
// @Description 默认全量返回，可用 category / instructor 查询参数过滤
// @Tags 离线缓存
// @Produce json
// @Security ApiKeyAuth
// @Param category query string false "按分类过滤"
// @Param instructor query string false "按讲师过滤"
// @Success 200 {object} util.Response
// @Router /api/cache/courses [get]
func (c *CacheController) GetAllCachedCourses(ctx *gin.Context) {
	courses, err := c.CacheService.GetAllCachedCourses(ctx.Request.Context(), ctx.Query("category"), ctx.Query("instructor"))
	if err != nil {
		util.LogInternalError(ctx, err)
		return
	}
	util.Success(ctx, courses)
}

// @Summary 移除缓存课程
// @Description 删除不存在的课程也视为成功
// @Tags 离线缓存
// @Produce json
// @Security ApiKeyAuth
// @Param id path string true "课程ID"
// @Success 200 {object} util.Response
// @Router /api/cache/courses/{id} [delete]
func (c *CacheController) RemoveCachedCourse(ctx *gin.Context) {
	if err := c.CacheService.RemoveCachedCourse(ctx.Request.Context(), ctx.Param("id")); err != nil {
		util.LogInternalError(ctx, err)
		return
	}
	util.Success(ctx, nil)
}

// @Summary 缓存状态
// @Description 实时推导的容量占用、可用空间、已缓存课程与在线状态
// @Tags 离线缓存
// @Produce json
// @Security ApiKeyAuth
// @Success 200 {object} util.Response
// @Router /api/cache/status [get]
func (c *CacheController) GetCacheStatus(ctx *gin.Context) {
	status, err := c.CacheService.GetCacheStatus(ctx.Request.Context())
	if err != nil {
		util.LogInternalError(ctx, err)
		return
	}
	util.Success(ctx, status)
}

type cleanupRequest struct {
	RequiredSpace int64 `json:"requiredSpace" binding:"required"`
}

// @Summary 手动腾出空间
// @Tags 离线缓存
// @Accept json
// @Produce json
// @Param request body cleanupRequest true "需要的空闲字节数"
// @Success 200 {object} util.Response
// @Router /api/admin/cache/cleanup [post]
func (c *CacheController) CleanupCache(ctx *gin.Context) {
	var req cleanupRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		util.BadRequest(ctx, "requiredSpace is required")
		return
	}

	err := c.CacheService.CleanupCache(ctx.Request.Context(), req.RequiredSpace)
	switch {
	case errors.Is(err, util.ErrInsufficientCapacity):
		util.Error(ctx, http.StatusInsufficientStorage, err.Error())
	case err != nil:
		util.LogInternalError(ctx, err)
	default:
		util.Success(ctx, nil)
	}
}

// @Summary 手动触发同步
// @Description 在线时逐门课程同步进度，返回每门课程的结果；离线时返回空列表
// @Tags 同步
// @Produce json
// @Security ApiKeyAuth
// @Success 200 {object} util.Response
// @Router /api/cache/sync [post]
func (c *CacheController) TriggerSync(ctx *gin.Context) {
	results, err := c.CacheService.SyncWhenOnline(ctx.Request.Context())
	if err != nil {
		util.LogInternalError(ctx, err)
		return
	}
	if results == nil {
		results = []service.SyncResult{}
	}
	util.Success(ctx, results)
}
