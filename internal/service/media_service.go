package service

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"offline_cache_backend/internal/config"
	"offline_cache_backend/internal/model"
	"offline_cache_backend/internal/util"
	"offline_cache_backend/pkg/logger"
	"os"
	"path/filepath"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"go.uber.org/zap"
)

// StorageProvider 预取媒体的落盘后端
type StorageProvider interface {
	Upload(ctx context.Context, filename string, reader io.Reader, size int64, contentType string) (string, error)
	UploadFile(ctx context.Context, filename string, localPath string, contentType string) (string, error)
	Delete(ctx context.Context, filename string) error
	GetURL(filename string) string
}

// LocalStorageProvider 本地磁盘实现
type LocalStorageProvider struct {
	Config *config.StorageConfig
}

func (p *LocalStorageProvider) Upload(ctx context.Context, filename string, reader io.Reader, size int64, contentType string) (string, error) {
	dst := filepath.Join(p.Config.LocalPath, filename)
	if err := os.MkdirAll(filepath.Dir(dst), 0755); err != nil {
		return "", err
	}

	out, err := os.Create(dst)
	if err != nil {
		return "", err
	}
	defer out.Close()

	if _, err = io.Copy(out, reader); err != nil {
		return "", err
	}

	return p.GetURL(filename), nil
}

func (p *LocalStorageProvider) UploadFile(ctx context.Context, filename string, localPath string, contentType string) (string, error) {
	dst := filepath.Join(p.Config.LocalPath, filename)
	if localPath == dst {
		return p.GetURL(filename), nil
	}

	src, err := os.Open(localPath)
	if err != nil {
		return "", err
	}
	defer src.Close()

	return p.Upload(ctx, filename, src, -1, contentType)
}

func (p *LocalStorageProvider) Delete(ctx context.Context, filename string) error {
	return os.Remove(filepath.Join(p.Config.LocalPath, filename))
}

func (p *LocalStorageProvider) GetURL(filename string) string {
	return "/media/" + filename
}

// MinioStorageProvider MinIO 实现
type MinioStorageProvider struct {
	Config *config.StorageConfig
	Client *minio.Client
}

func NewMinioStorageProvider(cfg *config.StorageConfig) (*MinioStorageProvider, error) {
	client, err := minio.New(cfg.MinioEndpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.MinioAccessID, cfg.MinioSecret, ""),
		Secure: false,
	})
	if err != nil {
		return nil, err
	}
	return &MinioStorageProvider{Config: cfg, Client: client}, nil
}

func (p *MinioStorageProvider) Upload(ctx context.Context, filename string, reader io.Reader, size int64, contentType string) (string, error) {
	_, err := p.Client.PutObject(ctx, p.Config.MinioBucket, filename, reader, size, minio.PutObjectOptions{
		ContentType: contentType,
	})
	if err != nil {
		return "", err
	}
	return p.GetURL(filename), nil
}

func (p *MinioStorageProvider) UploadFile(ctx context.Context, filename string, localPath string, contentType string) (string, error) {
	_, err := p.Client.FPutObject(ctx, p.Config.MinioBucket, filename, localPath, minio.PutObjectOptions{
		ContentType: contentType,
	})
	if err != nil {
		return "", err
	}
	return p.GetURL(filename), nil
}

func (p *MinioStorageProvider) Delete(ctx context.Context, filename string) error {
	return p.Client.RemoveObject(ctx, p.Config.MinioBucket, filename, minio.RemoveObjectOptions{})
}

func (p *MinioStorageProvider) GetURL(filename string) string {
	return "/" + p.Config.MinioBucket + "/" + filename
}

// MediaService 课时媒体预取：把课程里的视频/音频/附件拉到本地存储，
// 让缓存的课程真正可离线播放。预取失败只降级（记日志），
// 不影响课程记录本身的缓存结果。
type MediaService struct {
	Provider StorageProvider
	client   *http.Client
}

func NewMediaService(cfg *config.Config) *MediaService {
	var provider StorageProvider
	switch cfg.Storage.Type {
	case util.StorageMinio:
		p, err := NewMinioStorageProvider(&cfg.Storage)
		if err != nil {
			logger.Log.Error("minio init failed, falling back to local storage", zap.Error(err))
			provider = &LocalStorageProvider{Config: &cfg.Storage}
		} else {
			provider = p
		}
	default:
		provider = &LocalStorageProvider{Config: &cfg.Storage}
	}

	return &MediaService{
		Provider: provider,
		client:   &http.Client{},
	}
}

// PrefetchCourse 逐课时拉取媒体。视频预取成功后顺带生成缩略图。
func (m *MediaService) PrefetchCourse(ctx context.Context, course *model.CourseContent) {
	for _, lesson := range course.Lessons {
		if lesson.VideoURL != "" {
			localPath, err := m.fetch(ctx, course.ID, lesson.ID+".mp4", lesson.VideoURL)
			if err != nil {
				logger.Log.Warn("video prefetch failed",
					zap.String("courseId", course.ID),
					zap.String("lessonId", lesson.ID),
					zap.Error(err))
			} else {
				m.generateThumbnail(course.ID, lesson.ID, localPath)
			}
		}

		if lesson.AudioURL != "" {
			if _, err := m.fetch(ctx, course.ID, lesson.ID+".mp3", lesson.AudioURL); err != nil {
				logger.Log.Warn("audio prefetch failed",
					zap.String("courseId", course.ID),
					zap.String("lessonId", lesson.ID),
					zap.Error(err))
			}
		}

		for _, res := range lesson.Resources {
			if res.Type == model.ResourceLink || res.URL == "" {
				continue
			}
			name := fmt.Sprintf("%s_%s", lesson.ID, res.ID)
			if _, err := m.fetch(ctx, course.ID, name, res.URL); err != nil {
				logger.Log.Warn("resource prefetch failed",
					zap.String("courseId", course.ID),
					zap.String("resourceId", res.ID),
					zap.Error(err))
			}
		}
	}
	logger.Log.Info("media prefetch finished", zap.String("courseId", course.ID))
}

// RemoveCourseMedia 课程被移除或淘汰后清理其预取媒体
func (m *MediaService) RemoveCourseMedia(ctx context.Context, courseID string, lessons []model.Lesson) {
	for _, lesson := range lessons {
		m.Provider.Delete(ctx, filepath.Join(courseID, lesson.ID+".mp4"))
		m.Provider.Delete(ctx, filepath.Join(courseID, lesson.ID+".mp3"))
		m.Provider.Delete(ctx, filepath.Join(courseID, lesson.ID+"_thumb.jpg"))
		for _, res := range lesson.Resources {
			m.Provider.Delete(ctx, filepath.Join(courseID, fmt.Sprintf("%s_%s", lesson.ID, res.ID)))
		}
	}
}

func (m *MediaService) fetch(ctx context.Context, courseID, name, url string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return "", err
	}

	resp, err := m.client.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("fetch %s: status %d", url, resp.StatusCode)
	}

	filename := filepath.Join(courseID, name)
	if _, err := m.Provider.Upload(ctx, filename, resp.Body, resp.ContentLength, resp.Header.Get("Content-Type")); err != nil {
		return "", err
	}

	// 本地存储时返回磁盘路径，供 ffmpeg 探测使用
	if p, ok := m.Provider.(*LocalStorageProvider); ok {
		return filepath.Join(p.Config.LocalPath, filename), nil
	}
	return "", nil
}

func (m *MediaService) generateThumbnail(courseID, lessonID, localPath string) {
	if localPath == "" {
		return
	}

	if info, err := util.GetVideoInfo(localPath); err == nil {
		logger.Log.Debug("prefetched video",
			zap.String("lessonId", lessonID),
			zap.Float64("duration", info.Duration),
			zap.Int64("size", info.Size))
	}

	thumbPath := filepath.Join(filepath.Dir(localPath), lessonID+"_thumb.jpg")
	if err := util.GenerateThumbnail(localPath, thumbPath, "3"); err != nil {
		logger.Log.Warn("thumbnail generation failed", zap.String("lessonId", lessonID), zap.Error(err))
	}
}
