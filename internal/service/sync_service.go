package service

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"offline_cache_backend/internal/config"
	"offline_cache_backend/internal/model"
)

// HTTPCourseSyncer 把一门课程的本地进度 POST 给学习平台服务端。
// 服务端协议不属于本服务，这里只承担调用点。
type HTTPCourseSyncer struct {
	Progress  ProgressStore
	serverURL string
	client    *http.Client
}

func NewHTTPCourseSyncer(progress ProgressStore, cfg *config.Config) *HTTPCourseSyncer {
	return &HTTPCourseSyncer{
		Progress:  progress,
		serverURL: cfg.Sync.ServerURL,
		client:    &http.Client{Timeout: cfg.Sync.RequestTimeout()},
	}
}

type syncRequest struct {
	CourseID string           `json:"courseId"`
	Records  []model.Progress `json:"records"`
}

// SyncCourse 实现 CourseSyncer
func (s *HTTPCourseSyncer) SyncCourse(ctx context.Context, course *model.CourseContent) error {
	records, err := s.Progress.FindByCourse(course.ID)
	if err != nil {
		return err
	}

	body, err := json.Marshal(syncRequest{CourseID: course.ID, Records: records})
	if err != nil {
		return err
	}

	url := fmt.Sprintf("%s/api/sync/courses/%s/progress", s.serverURL, course.ID)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusBadRequest {
		return fmt.Errorf("sync server returned %d for course %s", resp.StatusCode, course.ID)
	}
	return nil
}
