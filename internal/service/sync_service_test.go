package service

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"offline_cache_backend/internal/config"
	"offline_cache_backend/internal/model"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newSyncerFixture(t *testing.T, handler http.HandlerFunc) (*HTTPCourseSyncer, *memProgressStore) {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	progress := &memProgressStore{}
	cfg := &config.Config{}
	cfg.Sync.ServerURL = server.URL
	cfg.Sync.RequestTimeoutSec = 5
	return NewHTTPCourseSyncer(progress, cfg), progress
}

func TestSyncCoursePostsProgressRecords(t *testing.T) {
	var gotPath string
	var gotBody syncRequest

	syncer, progress := newSyncerFixture(t, func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		body, _ := io.ReadAll(r.Body)
		require.NoError(t, json.Unmarshal(body, &gotBody))
		w.WriteHeader(http.StatusOK)
	})

	require.NoError(t, progress.Save(&model.Progress{CourseID: "go-101", UserID: "alice", TimeSpent: 42}))
	require.NoError(t, progress.Save(&model.Progress{CourseID: "other", UserID: "alice"}))

	err := syncer.SyncCourse(context.Background(), &model.CourseContent{ID: "go-101"})
	require.NoError(t, err)

	assert.Equal(t, "/api/sync/courses/go-101/progress", gotPath)
	assert.Equal(t, "go-101", gotBody.CourseID)
	// 只携带该课程的进度记录
	require.Len(t, gotBody.Records, 1)
	assert.Equal(t, "alice", gotBody.Records[0].UserID)
	assert.Equal(t, 42, gotBody.Records[0].TimeSpent)
}

func TestSyncCourseServerError(t *testing.T) {
	syncer, _ := newSyncerFixture(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	})

	err := syncer.SyncCourse(context.Background(), &model.CourseContent{ID: "go-101"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "502")
}
