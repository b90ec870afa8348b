package client_test

import (
	"context"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"motion-transfer-backend/internal/database"
	"motion-transfer-backend/internal/handlers"
	"motion-transfer-backend/internal/metrics"
	"motion-transfer-backend/internal/processing"
	"motion-transfer-backend/internal/storage"
	"motion-transfer-backend/pkg/client"
)

const identityFrame = "https://placehold.co/600x400/1a1a1a/FFF?text=Identity+Frame"

func startServer(t *testing.T, delay time.Duration) string {
	t.Helper()
	gin.SetMode(gin.TestMode)
	log, _ := test.NewNullLogger()

	store := database.NewMemoryStore()
	dir := t.TempDir()
	files, err := storage.NewLocalStorage(dir, "/uploads")
	require.NoError(t, err)

	m := metrics.New()
	trigger := processing.NewTrigger(store, processing.Options{
		Delay:     delay,
		Generator: processing.PlaceholderGenerator{IdentityFrameURL: identityFrame},
		Metrics:   m,
	}, log)
	t.Cleanup(trigger.Shutdown)

	router := handlers.NewRouter(handlers.RouterConfig{
		Projects:        handlers.NewProjectsHandler(store, files, trigger, m, 50<<20, log),
		Health:          handlers.NewHealthHandler(nil, "test"),
		Metrics:         m,
		Log:             log,
		UploadDir:       dir,
		UploadURLPrefix: "/uploads",
	})
	srv := httptest.NewServer(router)
	t.Cleanup(srv.Close)
	return srv.URL
}

func TestLifecycle_UploadProcessPollUntilCompleted(t *testing.T) {
	c := client.New(startServer(t, 150*time.Millisecond))

	var statuses []client.Status
	q := client.NewProjectQuery(c,
		client.WithRefetchInterval(20*time.Millisecond),
		client.OnChange(func(s client.Snapshot) {
			if s.Data != nil {
				statuses = append(statuses, s.Data.Status)
			}
		}),
	)
	var titles []string
	m := client.NewMutations(c, q, client.NotifierFunc(func(n client.Notification) {
		titles = append(titles, n.Title)
	}))
	ctx := context.Background()

	created, err := m.Create(ctx, "sample.mp4", strings.NewReader("not really a video"))
	require.NoError(t, err)
	assert.Equal(t, 1, created.ID)
	assert.Equal(t, client.StatusPending, created.Status)

	started, err := m.Process(ctx, created.ID)
	require.NoError(t, err)
	assert.Equal(t, client.StatusProcessing, started.Status)

	runCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	require.NoError(t, q.Run(runCtx))

	final, err := q.Data()
	require.NoError(t, err)
	assert.Equal(t, client.StatusCompleted, final.Status)
	require.NotNil(t, final.GeneratedVideoURL)
	require.NotNil(t, final.IdentityFrameURL)
	assert.Equal(t, created.OriginalVideoURL, *final.GeneratedVideoURL)
	assert.Equal(t, identityFrame, *final.IdentityFrameURL)

	// processing is observed before completion, and completion exactly once at the end
	require.NotEmpty(t, statuses)
	assert.Equal(t, client.StatusProcessing, statuses[0])
	assert.Equal(t, client.StatusCompleted, statuses[len(statuses)-1])
	for _, s := range statuses[:len(statuses)-1] {
		assert.Equal(t, client.StatusProcessing, s)
	}

	assert.Equal(t, []string{"Video Uploaded", "Processing Started"}, titles)

	_, err = m.Process(ctx, created.ID)
	assert.Error(t, err)
}
