package middleware_test

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"motion-transfer-backend/internal/middleware"
)

func TestRequestID_GeneratesAndPropagates(t *testing.T) {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.Use(middleware.RequestID())
	router.GET("/test", func(c *gin.Context) {
		c.String(http.StatusOK, c.GetString(middleware.RequestIDKey))
	})

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest("GET", "/test", nil))
	generated := w.Header().Get(middleware.RequestIDHeader)
	assert.Len(t, generated, 36)
	assert.Equal(t, generated, w.Body.String())

	req := httptest.NewRequest("GET", "/test", nil)
	req.Header.Set(middleware.RequestIDHeader, "abc-123")
	w = httptest.NewRecorder()
	router.ServeHTTP(w, req)
	assert.Equal(t, "abc-123", w.Header().Get(middleware.RequestIDHeader))
	assert.Equal(t, "abc-123", w.Body.String())
}

func TestRequestLogger_LevelFollowsStatus(t *testing.T) {
	gin.SetMode(gin.TestMode)
	log, hook := test.NewNullLogger()

	router := gin.New()
	router.Use(middleware.RequestID())
	router.Use(middleware.RequestLogger(log))
	router.GET("/ok", func(c *gin.Context) { c.Status(http.StatusOK) })
	router.GET("/missing", func(c *gin.Context) { c.Status(http.StatusNotFound) })
	router.GET("/boom", func(c *gin.Context) { c.Status(http.StatusInternalServerError) })

	cases := []struct {
		path  string
		level logrus.Level
	}{
		{"/ok", logrus.InfoLevel},
		{"/missing", logrus.WarnLevel},
		{"/boom", logrus.ErrorLevel},
	}
	for _, tc := range cases {
		hook.Reset()
		router.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest("GET", tc.path, nil))

		entry := hook.LastEntry()
		require.NotNil(t, entry, tc.path)
		assert.Equal(t, tc.level, entry.Level, tc.path)
		assert.Equal(t, tc.path, entry.Data["path"])
		assert.NotEmpty(t, entry.Data["request_id"])
	}
}
