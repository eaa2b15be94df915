package service

import (
	"context"
	"fmt"
	"os"
	"sort"
	"sync"
	"testing"
	"time"

	"offline_cache_backend/internal/model"
	"offline_cache_backend/internal/util"
	"offline_cache_backend/pkg/logger"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestMain(m *testing.M) {
	logger.Log = zap.NewNop()
	os.Exit(m.Run())
}

// memCourseStore 内存课程分区，语义与 CourseRepository 对齐
type memCourseStore struct {
	mu      sync.Mutex
	courses map[string]model.CourseContent
}

func newMemCourseStore() *memCourseStore {
	return &memCourseStore{courses: make(map[string]model.CourseContent)}
}

func (s *memCourseStore) FindByID(id string) (*model.CourseContent, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.courses[id]
	if !ok {
		return nil, nil
	}
	return &c, nil
}

func (s *memCourseStore) FindAll() ([]model.CourseContent, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]model.CourseContent, 0, len(s.courses))
	for _, c := range s.courses {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CachedAt.Before(out[j].CachedAt) })
	return out, nil
}

func (s *memCourseStore) FindByCategory(category string) ([]model.CourseContent, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []model.CourseContent
	for _, c := range s.courses {
		if c.Category == category {
			out = append(out, c)
		}
	}
	return out, nil
}

func (s *memCourseStore) FindByInstructor(instructor string) ([]model.CourseContent, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []model.CourseContent
	for _, c := range s.courses {
		if c.Instructor == instructor {
			out = append(out, c)
		}
	}
	return out, nil
}

func (s *memCourseStore) FindOldestFirst() ([]model.CourseContent, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]model.CourseContent, 0, len(s.courses))
	for _, c := range s.courses {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].LastUpdated.Equal(out[j].LastUpdated) {
			return out[i].ID < out[j].ID
		}
		return out[i].LastUpdated.Before(out[j].LastUpdated)
	})
	return out, nil
}

func (s *memCourseStore) Upsert(course *model.CourseContent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.courses[course.ID] = *course
	return nil
}

func (s *memCourseStore) Delete(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.courses, id)
	return nil
}

func (s *memCourseStore) DeleteBatch(ids []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, id := range ids {
		delete(s.courses, id)
	}
	return nil
}

func (s *memCourseStore) TotalSize() (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var total int64
	for _, c := range s.courses {
		total += c.Size
	}
	return total, nil
}

func (s *memCourseStore) IDs() ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ids := make([]string, 0, len(s.courses))
	for id := range s.courses {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids, nil
}

type memProgressStore struct {
	mu      sync.Mutex
	records []model.Progress
	nextID  int
}

func (s *memProgressStore) FindByCourse(courseID string) ([]model.Progress, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []model.Progress
	for _, r := range s.records {
		if r.CourseID == courseID {
			out = append(out, r)
		}
	}
	return out, nil
}

func (s *memProgressStore) Save(progress *model.Progress) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if progress.ID != "" {
		for i := range s.records {
			if s.records[i].ID == progress.ID {
				s.records[i] = *progress
				return nil
			}
		}
	}
	s.nextID++
	progress.ID = fmt.Sprintf("p-%d", s.nextID)
	s.records = append(s.records, *progress)
	return nil
}

func (s *memProgressStore) DeleteByCourse(courseID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	kept := s.records[:0]
	for _, r := range s.records {
		if r.CourseID != courseID {
			kept = append(kept, r)
		}
	}
	s.records = kept
	return nil
}

type memSettingStore struct {
	mu     sync.Mutex
	values map[string]string
}

func newMemSettingStore() *memSettingStore {
	return &memSettingStore{values: make(map[string]string)}
}

func (s *memSettingStore) Get(name string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.values[name], nil
}

func (s *memSettingStore) Set(name, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.values[name] = value
	return nil
}

type stubSyncer struct {
	mu      sync.Mutex
	calls   []string
	failFor map[string]error
}

func (s *stubSyncer) SyncCourse(ctx context.Context, course *model.CourseContent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls = append(s.calls, course.ID)
	if s.failFor != nil {
		if err, ok := s.failFor[course.ID]; ok {
			return err
		}
	}
	return nil
}

type stubMonitor struct {
	online bool
	subs   []func(bool)
}

func (m *stubMonitor) IsOnline() bool          { return m.online }
func (m *stubMonitor) Subscribe(fn func(bool)) { m.subs = append(m.subs, fn) }
func (m *stubMonitor) setOnline(online bool) {
	m.online = online
	for _, fn := range m.subs {
		fn(online)
	}
}

type cacheFixture struct {
	svc      *CacheService
	courses  *memCourseStore
	progress *memProgressStore
	settings *memSettingStore
	syncer   *stubSyncer
	monitor  *stubMonitor
}

func newCacheFixture(maxCacheSize int64) *cacheFixture {
	f := &cacheFixture{
		courses:  newMemCourseStore(),
		progress: &memProgressStore{},
		settings: newMemSettingStore(),
		syncer:   &stubSyncer{},
		monitor:  &stubMonitor{online: true},
	}
	f.svc = &CacheService{
		Courses:      f.courses,
		Progress:     f.progress,
		Settings:     f.settings,
		Syncer:       f.syncer,
		Monitor:      f.monitor,
		maxCacheSize: maxCacheSize,
	}
	return f
}

func course(id string, size int64, lastUpdated time.Time) *model.CourseContent {
	return &model.CourseContent{
		ID:          id,
		Title:       "Course " + id,
		Size:        size,
		LastUpdated: lastUpdated,
	}
}

func TestCacheCourseRoundTrip(t *testing.T) {
	f := newCacheFixture(1000)
	ctx := context.Background()

	updated := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	require.NoError(t, f.svc.CacheCourse(ctx, course("go-101", 400, updated), "user-1"))

	got, err := f.svc.GetCachedCourse(ctx, "go-101")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "go-101", got.ID)
	assert.Equal(t, int64(400), got.Size)
	assert.True(t, got.LastUpdated.Equal(updated))
	assert.False(t, got.CachedAt.IsZero())

	status, err := f.svc.GetCacheStatus(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(400), status.TotalSize)
	assert.Equal(t, int64(600), status.AvailableSpace)
	assert.Equal(t, []string{"go-101"}, status.CachedCourses)
	assert.NotEmpty(t, status.LastSync)
	assert.True(t, status.IsOnline)
}

func TestCacheCourseRejectsBadSizes(t *testing.T) {
	f := newCacheFixture(1000)
	ctx := context.Background()

	err := f.svc.CacheCourse(ctx, course("neg", -1, time.Now()), "user-1")
	assert.ErrorIs(t, err, util.ErrInvalidCourseSize)

	err = f.svc.CacheCourse(ctx, course("huge", 1001, time.Now()), "user-1")
	assert.ErrorIs(t, err, util.ErrCourseTooLarge)

	ids, _ := f.courses.IDs()
	assert.Empty(t, ids)
}

func TestCacheCourseEvictsOldestFirst(t *testing.T) {
	f := newCacheFixture(1000)
	ctx := context.Background()
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	// 容量 1000：A(600) 在先，B(500) 进入时必须淘汰最旧的 A
	require.NoError(t, f.svc.CacheCourse(ctx, course("course-a", 600, base), "user-1"))
	require.NoError(t, f.svc.CacheCourse(ctx, course("course-b", 500, base.Add(time.Hour)), "user-1"))

	a, _ := f.svc.GetCachedCourse(ctx, "course-a")
	assert.Nil(t, a)
	b, _ := f.svc.GetCachedCourse(ctx, "course-b")
	require.NotNil(t, b)

	total, _ := f.courses.TotalSize()
	assert.Equal(t, int64(500), total)
}

func TestCapacityNeverExceeded(t *testing.T) {
	f := newCacheFixture(1000)
	ctx := context.Background()
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	sizes := []int64{300, 400, 600, 250, 900, 100}
	for i, size := range sizes {
		id := fmt.Sprintf("c-%d", i)
		require.NoError(t, f.svc.CacheCourse(ctx, course(id, size, base.Add(time.Duration(i)*time.Minute)), "user-1"))

		total, err := f.courses.TotalSize()
		require.NoError(t, err)
		assert.LessOrEqual(t, total, int64(1000), "after caching %s", id)
	}
}

func TestEvictionScenario(t *testing.T) {
	// 容量 1000：A(600) + B(300) 共存，C(500) 进入时只淘汰最旧的 A
	f := newCacheFixture(1000)
	ctx := context.Background()
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	require.NoError(t, f.svc.CacheCourse(ctx, course("a", 600, base), "u"))
	require.NoError(t, f.svc.CacheCourse(ctx, course("b", 300, base.Add(time.Hour)), "u"))
	require.NoError(t, f.svc.CacheCourse(ctx, course("c", 500, base.Add(2*time.Hour)), "u"))

	ids, _ := f.courses.IDs()
	assert.Equal(t, []string{"b", "c"}, ids)

	total, _ := f.courses.TotalSize()
	assert.Equal(t, int64(800), total)
}

func TestEvictionSpansMultipleCourses(t *testing.T) {
	// A(t1), B(t2), C(t3) 占满后，缺口大于 A 但不超过 A+B 的新课程
	// 恰好淘汰 {A, B}，C 保留
	f := newCacheFixture(1000)
	ctx := context.Background()
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	require.NoError(t, f.svc.CacheCourse(ctx, course("a", 300, base), "u"))
	require.NoError(t, f.svc.CacheCourse(ctx, course("b", 300, base.Add(time.Hour)), "u"))
	require.NoError(t, f.svc.CacheCourse(ctx, course("c", 300, base.Add(2*time.Hour)), "u"))

	// 可用 100，缺口 400：淘汰 A 还差 100，必须连 B 一起淘汰
	require.NoError(t, f.svc.CacheCourse(ctx, course("d", 500, base.Add(3*time.Hour)), "u"))

	ids, _ := f.courses.IDs()
	assert.Equal(t, []string{"c", "d"}, ids)
}

func TestEvictionTieBreaksByID(t *testing.T) {
	f := newCacheFixture(1000)
	ctx := context.Background()
	same := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	require.NoError(t, f.svc.CacheCourse(ctx, course("beta", 400, same), "u"))
	require.NoError(t, f.svc.CacheCourse(ctx, course("alpha", 400, same), "u"))
	require.NoError(t, f.svc.CacheCourse(ctx, course("gamma", 400, same.Add(time.Hour)), "u"))

	// alpha 与 beta 的 lastUpdated 相同，id 较小的 alpha 先被淘汰
	ids, _ := f.courses.IDs()
	assert.Equal(t, []string{"beta", "gamma"}, ids)
}

func TestCleanupCacheNoopWhenSpaceSufficient(t *testing.T) {
	f := newCacheFixture(1000)
	ctx := context.Background()

	require.NoError(t, f.svc.CacheCourse(ctx, course("a", 300, time.Now()), "u"))
	require.NoError(t, f.svc.CleanupCache(ctx, 500))

	ids, _ := f.courses.IDs()
	assert.Equal(t, []string{"a"}, ids)
}

func TestCleanupCacheInsufficientCapacity(t *testing.T) {
	f := newCacheFixture(1000)
	ctx := context.Background()

	require.NoError(t, f.svc.CacheCourse(ctx, course("a", 300, time.Now()), "u"))

	// 整库淘汰也腾不出 1500 字节：报错且不做部分淘汰
	err := f.svc.CleanupCache(ctx, 1500)
	assert.ErrorIs(t, err, util.ErrInsufficientCapacity)

	ids, _ := f.courses.IDs()
	assert.Equal(t, []string{"a"}, ids)
}

func TestRemoveCachedCourseAbsentIsNoop(t *testing.T) {
	f := newCacheFixture(1000)
	assert.NoError(t, f.svc.RemoveCachedCourse(context.Background(), "missing"))
}

func TestRemoveCachedCourse(t *testing.T) {
	f := newCacheFixture(1000)
	ctx := context.Background()

	require.NoError(t, f.svc.CacheCourse(ctx, course("a", 300, time.Now()), "u"))
	require.NoError(t, f.svc.SaveProgress(ctx, &model.Progress{CourseID: "a", UserID: "alice"}))
	require.NoError(t, f.svc.RemoveCachedCourse(ctx, "a"))

	got, err := f.svc.GetCachedCourse(ctx, "a")
	require.NoError(t, err)
	assert.Nil(t, got)

	// 课程没了，进度记录也随之清掉
	records, _ := f.progress.FindByCourse("a")
	assert.Empty(t, records)
}

func TestEvictionCleansProgressOfEvictedCourse(t *testing.T) {
	f := newCacheFixture(1000)
	ctx := context.Background()
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	require.NoError(t, f.svc.CacheCourse(ctx, course("old", 600, base), "u"))
	require.NoError(t, f.svc.SaveProgress(ctx, &model.Progress{CourseID: "old", UserID: "alice"}))

	require.NoError(t, f.svc.CacheCourse(ctx, course("new", 500, base.Add(time.Hour)), "u"))

	records, _ := f.progress.FindByCourse("old")
	assert.Empty(t, records)
}

func TestGetAllCachedCoursesWithFilters(t *testing.T) {
	f := newCacheFixture(10000)
	ctx := context.Background()

	a := course("a", 100, time.Now())
	a.Category = "go"
	a.Instructor = "rob"
	b := course("b", 100, time.Now())
	b.Category = "rust"
	b.Instructor = "rob"
	require.NoError(t, f.svc.CacheCourse(ctx, a, "u"))
	require.NoError(t, f.svc.CacheCourse(ctx, b, "u"))

	all, err := f.svc.GetAllCachedCourses(ctx, "", "")
	require.NoError(t, err)
	assert.Len(t, all, 2)

	goOnly, err := f.svc.GetAllCachedCourses(ctx, "go", "")
	require.NoError(t, err)
	require.Len(t, goOnly, 1)
	assert.Equal(t, "a", goOnly[0].ID)

	byRob, err := f.svc.GetAllCachedCourses(ctx, "", "rob")
	require.NoError(t, err)
	assert.Len(t, byRob, 2)
}

func TestCacheStatusAvailableSpaceFloorsAtZero(t *testing.T) {
	f := newCacheFixture(1000)

	// 直接构造超额存量（例如容量配置被调小之后）
	f.courses.Upsert(course("big", 1200, time.Now()))

	status, err := f.svc.GetCacheStatus(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(1200), status.TotalSize)
	assert.Equal(t, int64(0), status.AvailableSpace)
}

func TestSaveProgressPerUserIsolation(t *testing.T) {
	f := newCacheFixture(1000)
	ctx := context.Background()

	require.NoError(t, f.svc.SaveProgress(ctx, &model.Progress{
		CourseID: "go-101", UserID: "alice", CurrentLesson: "l1", TimeSpent: 10,
	}))
	require.NoError(t, f.svc.SaveProgress(ctx, &model.Progress{
		CourseID: "go-101", UserID: "bob", CurrentLesson: "l3", TimeSpent: 25,
	}))

	alice, err := f.svc.GetProgress(ctx, "go-101", "alice")
	require.NoError(t, err)
	require.NotNil(t, alice)
	assert.Equal(t, "l1", alice.CurrentLesson)

	bob, err := f.svc.GetProgress(ctx, "go-101", "bob")
	require.NoError(t, err)
	require.NotNil(t, bob)
	assert.Equal(t, "l3", bob.CurrentLesson)

	// 同一 (courseId, userId) 的再次保存是更新而不是新增
	require.NoError(t, f.svc.SaveProgress(ctx, &model.Progress{
		CourseID: "go-101", UserID: "alice", CurrentLesson: "l2", TimeSpent: 20,
	}))
	records, _ := f.progress.FindByCourse("go-101")
	assert.Len(t, records, 2)

	alice, _ = f.svc.GetProgress(ctx, "go-101", "alice")
	assert.Equal(t, "l2", alice.CurrentLesson)
	assert.False(t, alice.LastAccessed.IsZero())
}

func TestSaveProgressRequiresKeys(t *testing.T) {
	f := newCacheFixture(1000)
	err := f.svc.SaveProgress(context.Background(), &model.Progress{CourseID: "go-101"})
	assert.Error(t, err)
}

func TestGetProgressMissingReturnsNil(t *testing.T) {
	f := newCacheFixture(1000)
	p, err := f.svc.GetProgress(context.Background(), "go-101", "nobody")
	require.NoError(t, err)
	assert.Nil(t, p)
}

func TestSyncWhenOnlineSkipsWhileOffline(t *testing.T) {
	f := newCacheFixture(1000)
	f.monitor.online = false
	require.NoError(t, f.svc.CacheCourse(context.Background(), course("a", 100, time.Now()), "u"))

	results, err := f.svc.SyncWhenOnline(context.Background())
	require.NoError(t, err)
	assert.Nil(t, results)
	assert.Empty(t, f.syncer.calls)
}

func TestSyncWhenOnlineContinuesAfterFailure(t *testing.T) {
	f := newCacheFixture(10000)
	ctx := context.Background()
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	require.NoError(t, f.svc.CacheCourse(ctx, course("a", 100, base), "u"))
	require.NoError(t, f.svc.CacheCourse(ctx, course("b", 100, base.Add(time.Minute)), "u"))
	require.NoError(t, f.svc.CacheCourse(ctx, course("c", 100, base.Add(2*time.Minute)), "u"))

	f.syncer.failFor = map[string]error{"b": fmt.Errorf("server rejected records")}
	f.settings.Set(model.SettingLastSync, "")

	results, err := f.svc.SyncWhenOnline(ctx)
	require.NoError(t, err)
	require.Len(t, results, 3)

	byID := map[string]SyncResult{}
	for _, r := range results {
		byID[r.CourseID] = r
	}
	assert.True(t, byID["a"].Synced)
	assert.False(t, byID["b"].Synced)
	assert.Contains(t, byID["b"].Error, "server rejected")
	assert.True(t, byID["c"].Synced)

	// 单门失败不阻止 lastSync 更新
	lastSync, _ := f.settings.Get(model.SettingLastSync)
	assert.NotEmpty(t, lastSync)
	assert.Len(t, f.syncer.calls, 3)
}

func TestSetupOnlineSyncTriggersOnRecovery(t *testing.T) {
	f := newCacheFixture(1000)
	ctx := context.Background()
	f.monitor.online = false

	require.NoError(t, f.svc.CacheCourse(ctx, course("a", 100, time.Now()), "u"))
	f.svc.SetupOnlineSync()
	require.Len(t, f.monitor.subs, 1)

	f.monitor.setOnline(true)

	// 同步在后台协程中执行
	assert.Eventually(t, func() bool {
		f.syncer.mu.Lock()
		defer f.syncer.mu.Unlock()
		return len(f.syncer.calls) == 1
	}, time.Second, 10*time.Millisecond)
}
