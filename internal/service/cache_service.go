package service

import (
	"context"
	"errors"
	"offline_cache_backend/internal/config"
	"offline_cache_backend/internal/model"
	"offline_cache_backend/internal/util"
	"offline_cache_backend/pkg/logger"
	"offline_cache_backend/pkg/monitoring"
	"offline_cache_backend/pkg/netstatus"
	"time"

	"go.uber.org/zap"
)

// CourseStore 课程分区的存储操作
type CourseStore interface {
	FindByID(id string) (*model.CourseContent, error)
	FindAll() ([]model.CourseContent, error)
	FindByCategory(category string) ([]model.CourseContent, error)
	FindByInstructor(instructor string) ([]model.CourseContent, error)
	FindOldestFirst() ([]model.CourseContent, error)
	Upsert(course *model.CourseContent) error
	Delete(id string) error
	DeleteBatch(ids []string) error
	TotalSize() (int64, error)
	IDs() ([]string, error)
}

// ProgressStore 进度分区，只按 course_id 建二级索引
type ProgressStore interface {
	FindByCourse(courseID string) ([]model.Progress, error)
	Save(progress *model.Progress) error
	DeleteByCourse(courseID string) error
}

// SettingStore 设置分区
type SettingStore interface {
	Get(name string) (string, error)
	Set(name, value string) error
}

// CourseSyncer 外部同步协作方：把一门课程的本地进度同步到服务端。
// 协议细节不属于本服务，这里只保证调用点和遍历顺序。
type CourseSyncer interface {
	SyncCourse(ctx context.Context, course *model.CourseContent) error
}

// SyncResult 单门课程的同步结果
type SyncResult struct {
	CourseID string `json:"courseId"`
	Synced   bool   `json:"synced"`
	Error    string `json:"error,omitempty"`
}

// CacheService 有容量上限的课程内容本地缓存。
// 容量不足时按 lastUpdated 最旧优先淘汰（时间相同按 id 升序），
// 容量核算每次从存量记录求和，不维护运行计数器，避免并发写入时漂移。
type CacheService struct {
	Courses  CourseStore
	Progress ProgressStore
	Settings SettingStore

	Syncer   CourseSyncer
	Monitor  netstatus.Monitor
	Notifier *NotificationService
	Media    *MediaService

	maxCacheSize  int64
	prefetchMedia bool
}

func NewCacheService(
	courses CourseStore,
	progress ProgressStore,
	settings SettingStore,
	syncer CourseSyncer,
	monitor netstatus.Monitor,
	notifier *NotificationService,
	media *MediaService,
	cfg *config.Config,
) *CacheService {
	return &CacheService{
		Courses:       courses,
		Progress:      progress,
		Settings:      settings,
		Syncer:        syncer,
		Monitor:       monitor,
		Notifier:      notifier,
		Media:         media,
		maxCacheSize:  cfg.Cache.MaxCacheSize(),
		prefetchMedia: cfg.Cache.PrefetchMedia,
	}
}

// MaxCacheSize 当前配置的容量上限（字节）
func (s *CacheService) MaxCacheSize() int64 {
	return s.maxCacheSize
}

// CacheCourse 缓存一门课程：容量检查 → 必要时淘汰 → 写入 →
// 更新 lastSync → 发送"离线内容就绪"通知。步骤严格按此顺序执行，
// 淘汰过程中不可中途取消。
func (s *CacheService) CacheCourse(ctx context.Context, course *model.CourseContent, userID string) error {
	if course.Size < 0 {
		return util.ErrInvalidCourseSize
	}
	if course.Size > s.maxCacheSize {
		return util.ErrCourseTooLarge
	}

	if err := s.CleanupCache(ctx, course.Size); err != nil {
		logger.Log.Error("cache admission failed",
			zap.String("courseId", course.ID), zap.Error(err))
		return err
	}

	now := time.Now()
	if course.LastUpdated.IsZero() {
		course.LastUpdated = now
	}
	course.CachedAt = now

	if err := s.Courses.Upsert(course); err != nil {
		logger.Log.Error("failed to cache course",
			zap.String("courseId", course.ID), zap.Error(err))
		return err
	}

	if err := s.Settings.Set(model.SettingLastSync, now.Format(time.RFC3339)); err != nil {
		logger.Log.Error("failed to update lastSync", zap.Error(err))
		return err
	}

	s.updateCacheMetrics()

	// 通知失败不影响缓存结果
	if s.Notifier != nil {
		s.Notifier.ShowOfflineContentReady(ctx, userID, 1)
	}

	// 课时媒体预取在后台进行，失败只记日志
	if s.prefetchMedia && s.Media != nil {
		go s.Media.PrefetchCourse(context.Background(), course)
	}

	logger.Log.Info("course cached",
		zap.String("courseId", course.ID),
		zap.Int64("size", course.Size))
	return nil
}

func (s *CacheService) GetCachedCourse(ctx context.Context, id string) (*model.CourseContent, error) {
	course, err := s.Courses.FindByID(id)
	if err != nil {
		logger.Log.Error("failed to read cached course", zap.String("courseId", id), zap.Error(err))
		return nil, err
	}
	return course, nil
}

// GetAllCachedCourses 全量扫描，可选按 category / instructor 二级索引过滤
func (s *CacheService) GetAllCachedCourses(ctx context.Context, category, instructor string) ([]model.CourseContent, error) {
	var courses []model.CourseContent
	var err error
	switch {
	case category != "":
		courses, err = s.Courses.FindByCategory(category)
	case instructor != "":
		courses, err = s.Courses.FindByInstructor(instructor)
	default:
		courses, err = s.Courses.FindAll()
	}
	if err != nil {
		logger.Log.Error("failed to list cached courses", zap.Error(err))
		return nil, err
	}
	return courses, nil
}

// RemoveCachedCourse 按 id 删除，删除不存在的 id 视为成功
func (s *CacheService) RemoveCachedCourse(ctx context.Context, id string) error {
	course, err := s.Courses.FindByID(id)
	if err != nil {
		logger.Log.Error("failed to look up course for removal", zap.String("courseId", id), zap.Error(err))
		return err
	}

	if err := s.Courses.Delete(id); err != nil {
		logger.Log.Error("failed to remove cached course", zap.String("courseId", id), zap.Error(err))
		return err
	}

	// 课程没了，进度记录也没有归属，一并清掉
	if err := s.Progress.DeleteByCourse(id); err != nil {
		logger.Log.Warn("failed to remove progress for course", zap.String("courseId", id), zap.Error(err))
	}

	if course != nil && s.Media != nil {
		go s.Media.RemoveCourseMedia(context.Background(), id, course.Lessons)
	}

	s.updateCacheMetrics()
	return nil
}

// GetCacheStatus 实时推导缓存状态，availableSpace 下限为 0
func (s *CacheService) GetCacheStatus(ctx context.Context) (*model.CacheStatus, error) {
	totalSize, err := s.Courses.TotalSize()
	if err != nil {
		return nil, err
	}

	ids, err := s.Courses.IDs()
	if err != nil {
		return nil, err
	}

	lastSync, err := s.Settings.Get(model.SettingLastSync)
	if err != nil {
		return nil, err
	}

	available := s.maxCacheSize - totalSize
	if available < 0 {
		available = 0
	}

	online := false
	if s.Monitor != nil {
		online = s.Monitor.IsOnline()
	}

	return &model.CacheStatus{
		TotalSize:      totalSize,
		AvailableSpace: available,
		CachedCourses:  ids,
		LastSync:       lastSync,
		IsOnline:       online,
	}, nil
}

// CleanupCache 保证至少 requiredSpace 字节空闲。已有足够空间时不做任何事；
// 否则按 lastUpdated 最旧优先逐门淘汰，直到释放的空间补足缺口。
// 整库淘汰也补不足时返回 ErrInsufficientCapacity，不做部分淘汰。
func (s *CacheService) CleanupCache(ctx context.Context, requiredSpace int64) error {
	totalSize, err := s.Courses.TotalSize()
	if err != nil {
		return err
	}

	available := s.maxCacheSize - totalSize
	if available >= requiredSpace {
		return nil
	}

	shortfall := requiredSpace - available
	if totalSize < shortfall {
		return util.ErrInsufficientCapacity
	}

	courses, err := s.Courses.FindOldestFirst()
	if err != nil {
		return err
	}

	var evict []string
	var freed int64
	for _, c := range courses {
		evict = append(evict, c.ID)
		freed += c.Size
		if freed >= shortfall {
			break
		}
	}

	if err := s.Courses.DeleteBatch(evict); err != nil {
		logger.Log.Error("eviction failed", zap.Strings("courseIds", evict), zap.Error(err))
		return err
	}

	for _, id := range evict {
		if err := s.Progress.DeleteByCourse(id); err != nil {
			logger.Log.Warn("failed to remove progress for evicted course", zap.String("courseId", id), zap.Error(err))
		}
	}

	monitoring.EvictionCounter.Add(float64(len(evict)))
	logger.Log.Info("evicted courses to reclaim space",
		zap.Strings("courseIds", evict),
		zap.Int64("freed", freed),
		zap.Int64("required", requiredSpace))
	return nil
}

// SaveProgress 按 (courseId, userId) 更新或创建进度记录
func (s *CacheService) SaveProgress(ctx context.Context, progress *model.Progress) error {
	if progress.CourseID == "" || progress.UserID == "" {
		return errors.New("progress requires courseId and userId")
	}

	// course_id 索引只到课程级，同课程多用户需在结果里匹配 userId
	existing, err := s.Progress.FindByCourse(progress.CourseID)
	if err != nil {
		logger.Log.Error("failed to look up progress", zap.String("courseId", progress.CourseID), zap.Error(err))
		return err
	}
	for i := range existing {
		if existing[i].UserID == progress.UserID {
			progress.ID = existing[i].ID
			progress.CreatedAt = existing[i].CreatedAt
			break
		}
	}

	progress.LastAccessed = time.Now()
	if err := s.Progress.Save(progress); err != nil {
		logger.Log.Error("failed to save progress",
			zap.String("courseId", progress.CourseID),
			zap.String("userId", progress.UserID),
			zap.Error(err))
		return err
	}
	return nil
}

// GetProgress 读取某用户在某课程的进度，不存在返回 nil
func (s *CacheService) GetProgress(ctx context.Context, courseID, userID string) (*model.Progress, error) {
	records, err := s.Progress.FindByCourse(courseID)
	if err != nil {
		logger.Log.Error("failed to read progress", zap.String("courseId", courseID), zap.Error(err))
		return nil, err
	}
	for i := range records {
		if records[i].UserID == userID {
			return &records[i], nil
		}
	}
	return nil, nil
}

// SyncWhenOnline 离线时不做任何事。在线时逐门课程串行调用同步协作方，
// 单门失败记日志并继续，最后更新 lastSync 并返回每门课程的结果。
func (s *CacheService) SyncWhenOnline(ctx context.Context) ([]SyncResult, error) {
	if s.Monitor == nil || !s.Monitor.IsOnline() {
		logger.Log.Debug("skipping sync, host is offline")
		return nil, nil
	}
	if s.Syncer == nil {
		return nil, nil
	}

	courses, err := s.Courses.FindAll()
	if err != nil {
		logger.Log.Error("failed to enumerate courses for sync", zap.Error(err))
		return nil, err
	}

	results := make([]SyncResult, 0, len(courses))
	for i := range courses {
		result := SyncResult{CourseID: courses[i].ID, Synced: true}
		if err := s.Syncer.SyncCourse(ctx, &courses[i]); err != nil {
			result.Synced = false
			result.Error = err.Error()
			monitoring.SyncCounter.WithLabelValues("failure").Inc()
			logger.Log.Warn("course sync failed",
				zap.String("courseId", courses[i].ID), zap.Error(err))
		} else {
			monitoring.SyncCounter.WithLabelValues("success").Inc()
		}
		results = append(results, result)
	}

	if err := s.Settings.Set(model.SettingLastSync, time.Now().Format(time.RFC3339)); err != nil {
		logger.Log.Error("failed to update lastSync after sync", zap.Error(err))
		return results, err
	}

	logger.Log.Info("sync completed", zap.Int("courses", len(results)))
	return results, nil
}

// SetupOnlineSync 订阅网络恢复事件，恢复在线后在后台自动触发同步
func (s *CacheService) SetupOnlineSync() {
	if s.Monitor == nil {
		return
	}
	s.Monitor.Subscribe(func(online bool) {
		if !online {
			return
		}
		go func() {
			if _, err := s.SyncWhenOnline(context.Background()); err != nil {
				logger.Log.Error("online-triggered sync failed", zap.Error(err))
			}
		}()
	})
}

func (s *CacheService) updateCacheMetrics() {
	totalSize, err := s.Courses.TotalSize()
	if err != nil {
		return
	}
	ids, err := s.Courses.IDs()
	if err != nil {
		return
	}
	monitoring.CacheSizeBytes.Set(float64(totalSize))
	monitoring.CachedCourses.Set(float64(len(ids)))
}
