package controller

import (
	"net/http"
	"offline_cache_backend/internal/util"
	"offline_cache_backend/pkg/netstatus"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"
)

type HealthController struct {
	DB      *gorm.DB
	Monitor netstatus.Monitor
}

func NewHealthController(db *gorm.DB, monitor netstatus.Monitor) *HealthController {
	return &HealthController{DB: db, Monitor: monitor}
}

// @Summary 健康检查
// @Description 检查本地存储与网络状态
// @Tags 系统
// @Produce json
// @Success 200 {object} util.Response
// @Router /health [get]
func (c *HealthController) HealthCheck(ctx *gin.Context) {
	sqlDB, err := c.DB.DB()
	if err != nil {
		util.InternalServerError(ctx)
		return
	}

	if err := sqlDB.Ping(); err != nil {
		util.Error(ctx, http.StatusServiceUnavailable, "Database unavailable")
		return
	}

	online := false
	if c.Monitor != nil {
		online = c.Monitor.IsOnline()
	}

	util.Success(ctx, gin.H{
		"status": "ok",
		"components": gin.H{
			"database": "up",
		},
		"online": online,
	})
}
