package handlers_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"motion-transfer-backend/internal/database"
	"motion-transfer-backend/internal/handlers"
	"motion-transfer-backend/internal/metrics"
	"motion-transfer-backend/internal/models"
	"motion-transfer-backend/internal/processing"
	"motion-transfer-backend/internal/storage"
)

const identityFrame = "https://placehold.co/600x400/1a1a1a/FFF?text=Identity+Frame"

type testServer struct {
	router    *gin.Engine
	store     database.ProjectStore
	trigger   *processing.Trigger
	metrics   *metrics.Metrics
	uploadDir string
}

type serverOption func(*serverSetup)

type serverSetup struct {
	store     database.ProjectStore
	files     storage.FileStore
	delay     time.Duration
	maxUpload int64
	jwtSecret string
}

func withStore(s database.ProjectStore) serverOption {
	return func(o *serverSetup) { o.store = s }
}

func withFiles(f storage.FileStore) serverOption {
	return func(o *serverSetup) { o.files = f }
}

func withDelay(d time.Duration) serverOption {
	return func(o *serverSetup) { o.delay = d }
}

func withMaxUpload(n int64) serverOption {
	return func(o *serverSetup) { o.maxUpload = n }
}

func withJWTSecret(secret string) serverOption {
	return func(o *serverSetup) { o.jwtSecret = secret }
}

func newTestServer(t *testing.T, opts ...serverOption) *testServer {
	t.Helper()
	gin.SetMode(gin.TestMode)

	uploadDir := t.TempDir()
	local, err := storage.NewLocalStorage(uploadDir, "/uploads")
	require.NoError(t, err)

	setup := serverSetup{
		store:     database.NewMemoryStore(),
		files:     local,
		delay:     time.Hour,
		maxUpload: 50 << 20,
	}
	for _, opt := range opts {
		opt(&setup)
	}

	log, _ := test.NewNullLogger()
	m := metrics.New()
	trigger := processing.NewTrigger(setup.store, processing.Options{
		Delay:     setup.delay,
		Generator: processing.PlaceholderGenerator{IdentityFrameURL: identityFrame},
		Metrics:   m,
	}, log)
	t.Cleanup(trigger.Shutdown)

	router := handlers.NewRouter(handlers.RouterConfig{
		Projects:        handlers.NewProjectsHandler(setup.store, setup.files, trigger, m, setup.maxUpload, log),
		Health:          handlers.NewHealthHandler(nil, "test"),
		Metrics:         m,
		Log:             log,
		UploadDir:       uploadDir,
		UploadURLPrefix: "/uploads",
		AuthJWTSecret:   setup.jwtSecret,
	})

	return &testServer{router: router, store: setup.store, trigger: trigger, metrics: m, uploadDir: uploadDir}
}

func (s *testServer) do(req *http.Request) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)
	return w
}

func uploadRequest(t *testing.T, field, filename string, content []byte) *http.Request {
	t.Helper()
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	if field != "" {
		part, err := mw.CreateFormFile(field, filename)
		require.NoError(t, err)
		_, err = part.Write(content)
		require.NoError(t, err)
	} else {
		require.NoError(t, mw.WriteField("title", "no file here"))
	}
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, "/api/projects", &body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	return req
}

func decodeProject(t *testing.T, w *httptest.ResponseRecorder) models.Project {
	t.Helper()
	var p models.Project
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &p))
	return p
}

func decodeMessage(t *testing.T, w *httptest.ResponseRecorder) string {
	t.Helper()
	var resp models.ErrorResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	return resp.Message
}

func (s *testServer) createProject(t *testing.T) models.Project {
	t.Helper()
	w := s.do(uploadRequest(t, "video", "dance.mp4", []byte("fake mp4 bytes")))
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	return decodeProject(t, w)
}

func TestCreateProject_StoresVideoAndReturnsPendingProject(t *testing.T) {
	srv := newTestServer(t)

	w := srv.do(uploadRequest(t, "video", "Dance.MP4", []byte("fake mp4 bytes")))

	require.Equal(t, http.StatusCreated, w.Code)
	p := decodeProject(t, w)
	assert.Equal(t, 1, p.ID)
	assert.Equal(t, models.StatusPending, p.Status)
	assert.Nil(t, p.IdentityFrameURL)
	assert.Nil(t, p.GeneratedVideoURL)
	assert.False(t, p.CreatedAt.IsZero())
	assert.True(t, strings.HasPrefix(p.OriginalVideoURL, "/uploads/"))
	assert.True(t, strings.HasSuffix(p.OriginalVideoURL, ".mp4"))

	stored, err := os.ReadFile(filepath.Join(srv.uploadDir, strings.TrimPrefix(p.OriginalVideoURL, "/uploads/")))
	require.NoError(t, err)
	assert.Equal(t, "fake mp4 bytes", string(stored))

	served := srv.do(httptest.NewRequest(http.MethodGet, p.OriginalVideoURL, nil))
	assert.Equal(t, http.StatusOK, served.Code)
	assert.Equal(t, "fake mp4 bytes", served.Body.String())

	assert.Equal(t, 1.0, testutil.ToFloat64(srv.metrics.ProjectsCreated))
}

func TestCreateProject_MissingFile(t *testing.T) {
	srv := newTestServer(t)

	w := srv.do(uploadRequest(t, "", "", nil))

	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "No video file provided", decodeMessage(t, w))

	_, err := srv.store.GetProject(context.Background(), 1)
	assert.ErrorIs(t, err, models.ErrProjectNotFound)
}

func TestCreateProject_WrongFieldName(t *testing.T) {
	srv := newTestServer(t)

	w := srv.do(uploadRequest(t, "file", "dance.mp4", []byte("x")))

	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "No video file provided", decodeMessage(t, w))
}

func TestCreateProject_RejectsNonVideoExtension(t *testing.T) {
	srv := newTestServer(t)

	w := srv.do(uploadRequest(t, "video", "notes.txt", []byte("hello")))

	assert.Equal(t, http.StatusBadRequest, w.Code)
	entries, err := os.ReadDir(srv.uploadDir)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestCreateProject_AcceptsVideoAtSizeLimit(t *testing.T) {
	srv := newTestServer(t, withMaxUpload(1024))

	w := srv.do(uploadRequest(t, "video", "exact.mp4", bytes.Repeat([]byte("a"), 1024)))

	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	assert.Equal(t, models.StatusPending, decodeProject(t, w).Status)
}

func TestCreateProject_RejectsVideoOverSizeLimit(t *testing.T) {
	srv := newTestServer(t, withMaxUpload(1024))

	w := srv.do(uploadRequest(t, "video", "big.mov", bytes.Repeat([]byte("a"), 1025)))

	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "Video exceeds the maximum upload size", decodeMessage(t, w))
	_, err := srv.store.GetProject(context.Background(), 1)
	assert.ErrorIs(t, err, models.ErrProjectNotFound)
}

func TestCreateProject_RejectsBodyBeyondFramingSlack(t *testing.T) {
	srv := newTestServer(t, withMaxUpload(1024))

	w := srv.do(uploadRequest(t, "video", "huge.webm", bytes.Repeat([]byte("a"), 2<<20)))

	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "Video exceeds the maximum upload size", decodeMessage(t, w))
	entries, err := os.ReadDir(srv.uploadDir)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

type brokenFileStore struct{}

func (brokenFileStore) Save(context.Context, string, io.Reader, int64, string) (string, error) {
	return "", errors.New("disk full")
}

func TestCreateProject_StorageFailureIsInternalError(t *testing.T) {
	srv := newTestServer(t, withFiles(brokenFileStore{}))

	w := srv.do(uploadRequest(t, "video", "dance.webm", []byte("x")))

	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Equal(t, "Internal Server Error", decodeMessage(t, w))
}

type brokenStore struct {
	*database.MemoryStore
}

func (brokenStore) CreateProject(context.Context, string) (*models.Project, error) {
	return nil, errors.New("connection refused")
}

func (brokenStore) GetProject(context.Context, int) (*models.Project, error) {
	return nil, errors.New("connection refused")
}

func TestCreateProject_StoreFailureIsInternalError(t *testing.T) {
	srv := newTestServer(t, withStore(brokenStore{database.NewMemoryStore()}))

	w := srv.do(uploadRequest(t, "video", "dance.mp4", []byte("x")))

	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Equal(t, "Internal Server Error", decodeMessage(t, w))
}

func TestGetProject(t *testing.T) {
	srv := newTestServer(t)
	created := srv.createProject(t)

	w := srv.do(httptest.NewRequest(http.MethodGet, "/api/projects/1", nil))

	require.Equal(t, http.StatusOK, w.Code)
	got := decodeProject(t, w)
	assert.Equal(t, created.ID, got.ID)
	assert.Equal(t, created.OriginalVideoURL, got.OriginalVideoURL)
	assert.Equal(t, models.StatusPending, got.Status)
}

func TestGetProject_NotFound(t *testing.T) {
	srv := newTestServer(t)

	for _, path := range []string{"/api/projects/999", "/api/projects/abc", "/api/projects/-1"} {
		w := srv.do(httptest.NewRequest(http.MethodGet, path, nil))
		assert.Equal(t, http.StatusNotFound, w.Code, path)
		assert.Equal(t, "Project not found", decodeMessage(t, w), path)
	}
}

func TestGetProject_StoreFailureIsInternalError(t *testing.T) {
	srv := newTestServer(t, withStore(brokenStore{database.NewMemoryStore()}))

	w := srv.do(httptest.NewRequest(http.MethodGet, "/api/projects/1", nil))

	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Equal(t, "Internal Server Error", decodeMessage(t, w))
}

func TestProcessProject_ReturnsProcessingSnapshot(t *testing.T) {
	srv := newTestServer(t)
	created := srv.createProject(t)

	req := httptest.NewRequest(http.MethodPost, "/api/projects/1/process", strings.NewReader(`{}`))
	req.Header.Set("Content-Type", "application/json")
	w := srv.do(req)

	require.Equal(t, http.StatusOK, w.Code)
	p := decodeProject(t, w)
	assert.Equal(t, created.ID, p.ID)
	assert.Equal(t, models.StatusProcessing, p.Status)
	assert.Nil(t, p.IdentityFrameURL)
	assert.Nil(t, p.GeneratedVideoURL)
	assert.True(t, srv.trigger.Pending(created.ID))
}

func TestProcessProject_NotFound(t *testing.T) {
	srv := newTestServer(t)

	w := srv.do(httptest.NewRequest(http.MethodPost, "/api/projects/42/process", nil))

	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, "Project not found", decodeMessage(t, w))
}

func TestProcessProject_SecondCallConflicts(t *testing.T) {
	srv := newTestServer(t)
	srv.createProject(t)

	first := srv.do(httptest.NewRequest(http.MethodPost, "/api/projects/1/process", nil))
	require.Equal(t, http.StatusOK, first.Code)

	second := srv.do(httptest.NewRequest(http.MethodPost, "/api/projects/1/process", nil))
	assert.Equal(t, http.StatusConflict, second.Code)
	assert.NotEmpty(t, decodeMessage(t, second))
	assert.Equal(t, 1.0, testutil.ToFloat64(srv.metrics.ScheduledJobs))
}

func TestProjectLifecycle_EndToEnd(t *testing.T) {
	srv := newTestServer(t, withDelay(50*time.Millisecond))
	created := srv.createProject(t)

	w := srv.do(httptest.NewRequest(http.MethodPost, "/api/projects/1/process", strings.NewReader(`{}`)))
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, models.StatusProcessing, decodeProject(t, w).Status)

	var final models.Project
	require.Eventually(t, func() bool {
		w := srv.do(httptest.NewRequest(http.MethodGet, "/api/projects/1", nil))
		if w.Code != http.StatusOK || json.Unmarshal(w.Body.Bytes(), &final) != nil {
			return false
		}
		return final.Status == models.StatusCompleted
	}, 2*time.Second, 10*time.Millisecond)

	require.NotNil(t, final.IdentityFrameURL)
	require.NotNil(t, final.GeneratedVideoURL)
	assert.Equal(t, identityFrame, *final.IdentityFrameURL)
	assert.Equal(t, created.OriginalVideoURL, *final.GeneratedVideoURL)
	assert.Equal(t, created.OriginalVideoURL, final.OriginalVideoURL)
	assert.Equal(t, created.CreatedAt.UTC(), final.CreatedAt.UTC())
}

func TestAPI_RequiresTokenWhenSecretConfigured(t *testing.T) {
	srv := newTestServer(t, withJWTSecret("test-secret-key-for-jwt-signing-must-be-long-enough"))

	w := srv.do(httptest.NewRequest(http.MethodGet, "/api/projects/1", nil))
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	health := srv.do(httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusOK, health.Code)
}

func TestRouter_ServesMetricsAndRequestID(t *testing.T) {
	srv := newTestServer(t)
	srv.createProject(t)

	req := httptest.NewRequest(http.MethodGet, "/api/projects/1", nil)
	req.Header.Set("X-Request-Id", "req-123")
	w := srv.do(req)
	assert.Equal(t, "req-123", w.Header().Get("X-Request-Id"))

	metricsResp := srv.do(httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, metricsResp.Code)
	assert.Contains(t, metricsResp.Body.String(), "motion_projects_created_total 1")
	assert.Contains(t, metricsResp.Body.String(), `route="/api/projects/:id"`)
}
