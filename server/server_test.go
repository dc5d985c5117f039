package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/tejiriaustin/tiffwatch/config"
	"github.com/tejiriaustin/tiffwatch/daemon"
	"github.com/tejiriaustin/tiffwatch/db"
	"github.com/tejiriaustin/tiffwatch/logger"
	"github.com/tejiriaustin/tiffwatch/models"
)

// MockRepository is a mock implementation of the db.Repository interface
type MockRepository struct {
	mock.Mock
}

func (m *MockRepository) Close() error {
	return m.Called().Error(0)
}

func (m *MockRepository) CreatePollResultsTable(ctx context.Context) error {
	return m.Called().Error(0)
}

func (m *MockRepository) InsertPollResult(ctx context.Context, result models.PollResult) (int64, error) {
	args := m.Called(result)
	return args.Get(0).(int64), args.Error(1)
}

func (m *MockRepository) GetPollResults(ctx context.Context, filter db.PollFilter) ([]models.PollResult, error) {
	args := m.Called(filter)
	return args.Get(0).([]models.PollResult), args.Error(1)
}

type stubSource struct {
	snap models.Snapshot
	ok   bool
}

func (s stubSource) Latest() (models.Snapshot, bool) {
	return s.snap, s.ok
}

func TestNew(t *testing.T) {
	cfg := &config.Config{Port: ":8080"}
	log := logger.NewNop()
	server := New(cfg, log)
	assert.NotNil(t, server)
	assert.Equal(t, cfg, server.cfg)
	assert.Equal(t, ":8080", server.server.Addr)
	assert.Equal(t, log, server.logger)
}

func TestServer_StartStopsOnCancel(t *testing.T) {
	server := New(&config.Config{Port: "127.0.0.1:0"}, logger.NewNop())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- server.Start(ctx, http.NotFoundHandler()) }()

	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("server did not stop")
	}
}

func TestHandler_Endpoints(t *testing.T) {
	gin.SetMode(gin.TestMode)

	runID := "6f1c2a9e-3b7d-4c1e-9a52-0d8e4b7f1a23"
	polledAt := time.Date(2024, 3, 1, 8, 0, 0, 0, time.UTC)

	mockRepo := new(MockRepository)
	mockRepo.On("GetPollResults", db.PollFilter{Limit: 50}).Return([]models.PollResult{
		{ID: 2, RunID: runID, Sequence: 2, Directory: "/data/scans", PolledAt: polledAt, FileCount: 3, Net: 1, Added: 1, FreeGB: 100},
	}, nil)
	mockRepo.On("GetPollResults", db.PollFilter{Limit: 5, RunID: runID}).Return([]models.PollResult{}, errors.New("database is locked"))

	mtime := time.Date(2024, 3, 1, 7, 59, 0, 0, time.UTC)
	source := stubSource{ok: true, snap: models.Snapshot{
		Directory: "/data/scans",
		TakenAt:   polledAt,
		FreeGB:    100,
		Files: map[string]models.FileEntry{
			"b.tif": {Name: "b.tif", Size: 2, ModTime: mtime, Pending: true},
			"a.tif": {Name: "a.tif", Size: 1, ModTime: mtime},
		},
	}}

	cmdChan := make(chan daemon.Command, 1)

	h := NewHandler(logger.NewNop())
	router := h.SetupHandler(source, mockRepo, cmdChan)

	tests := []struct {
		name           string
		method         string
		url            string
		expectedStatus int
		expectedBody   interface{}
		validateFunc   func(*testing.T, *httptest.ResponseRecorder)
	}{
		{
			name:           "Health Check",
			method:         "GET",
			url:            "/health",
			expectedStatus: http.StatusOK,
			expectedBody:   map[string]interface{}{"status": "alive and well"},
		},
		{
			name:           "Latest Snapshot",
			method:         "GET",
			url:            "/snapshot",
			expectedStatus: http.StatusOK,
			expectedBody: map[string]interface{}{
				"directory": "/data/scans",
				"taken_at":  "2024-03-01T08:00:00Z",
				"free_gb":   float64(100),
				"count":     float64(2),
				"pending":   float64(1),
				"files": []interface{}{
					map[string]interface{}{"name": "a.tif", "size": float64(1), "mod_time": "2024-03-01T07:59:00Z", "pending": false},
					map[string]interface{}{"name": "b.tif", "size": float64(2), "mod_time": "2024-03-01T07:59:00Z", "pending": true},
				},
			},
		},
		{
			name:           "Poll History",
			method:         "GET",
			url:            "/polls",
			expectedStatus: http.StatusOK,
			validateFunc: func(t *testing.T, w *httptest.ResponseRecorder) {
				var results []models.PollResult
				require.NoError(t, json.Unmarshal(w.Body.Bytes(), &results))
				require.Len(t, results, 1)
				assert.Equal(t, runID, results[0].RunID)
				assert.Equal(t, 1, results[0].Net)
			},
		},
		{
			name:           "Poll History Invalid Limit",
			method:         "GET",
			url:            "/polls?limit=0",
			expectedStatus: http.StatusBadRequest,
			expectedBody:   map[string]interface{}{"error": "limit must be between 1 and 1000"},
		},
		{
			name:           "Poll History Store Failure",
			method:         "GET",
			url:            "/polls?limit=5&run_id=" + runID,
			expectedStatus: http.StatusInternalServerError,
			expectedBody:   map[string]interface{}{"error": "database is locked"},
		},
		{
			name:           "Manual Poll",
			method:         "POST",
			url:            "/poll",
			expectedStatus: http.StatusAccepted,
			expectedBody:   map[string]interface{}{"status": "poll requested"},
		},
		{
			name:           "Manual Poll Already Queued",
			method:         "POST",
			url:            "/poll",
			expectedStatus: http.StatusServiceUnavailable,
			expectedBody:   map[string]interface{}{"error": "a poll is already queued"},
			validateFunc: func(t *testing.T, w *httptest.ResponseRecorder) {
				cmd := <-cmdChan
				assert.Equal(t, daemon.CommandPoll, cmd.Name)
			},
		},
		{
			name:           "Unknown Route",
			method:         "GET",
			url:            "/events",
			expectedStatus: http.StatusNotFound,
			expectedBody:   map[string]interface{}{"status": "not found"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			req, _ := http.NewRequest(tt.method, tt.url, nil)

			router.ServeHTTP(w, req)

			assert.Equal(t, tt.expectedStatus, w.Code)

			if tt.expectedBody != nil {
				var response interface{}
				err := json.Unmarshal(w.Body.Bytes(), &response)
				assert.NoError(t, err)
				assert.Equal(t, tt.expectedBody, response)
			}

			if tt.validateFunc != nil {
				tt.validateFunc(t, w)
			}
		})
	}

	mockRepo.AssertExpectations(t)
}

func TestHandler_SnapshotBeforeFirstScan(t *testing.T) {
	router := NewHandler(logger.NewNop()).SetupHandler(stubSource{}, new(MockRepository), make(chan daemon.Command, 1))

	w := httptest.NewRecorder()
	req, _ := http.NewRequest("GET", "/snapshot", nil)
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestServer_setupRouter(t *testing.T) {
	handler := NewHandler(logger.NewNop())
	router := handler.SetupHandler(stubSource{}, new(MockRepository), make(chan daemon.Command, 1))

	assert.NotNil(t, router)

	expectedRoutes := []string{"/health", "/snapshot", "/polls", "/poll"}
	routes := router.Routes()

	assert.Len(t, routes, len(expectedRoutes))

	for _, route := range routes {
		assert.Contains(t, expectedRoutes, route.Path)
	}
}
