package handlers

import (
	"errors"
	"net/http"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
	"motion-transfer-backend/internal/database"
	"motion-transfer-backend/internal/metrics"
	"motion-transfer-backend/internal/middleware"
	"motion-transfer-backend/internal/models"
	"motion-transfer-backend/internal/processing"
	"motion-transfer-backend/internal/storage"
)

const (
	msgNoVideo          = "No video file provided"
	msgUnsupportedVideo = "Only MP4, MOV and WEBM videos are supported"
	msgVideoTooLarge    = "Video exceeds the maximum upload size"
	msgNotFound         = "Project not found"
	msgAlreadyStarted   = "Project has already been processed or is processing"
	msgInternal         = "Internal Server Error"
)

// multipartSlack is the framing allowance on top of the file size limit for the whole body.
const multipartSlack = 1 << 20

var allowedVideoExts = map[string]string{
	".mp4":  "video/mp4",
	".mov":  "video/quicktime",
	".webm": "video/webm",
}

type ProjectsHandler struct {
	store          database.ProjectStore
	files          storage.FileStore
	trigger        *processing.Trigger
	metrics        *metrics.Metrics
	maxUploadBytes int64
	log            logrus.FieldLogger
}

func NewProjectsHandler(
	store database.ProjectStore,
	files storage.FileStore,
	trigger *processing.Trigger,
	m *metrics.Metrics,
	maxUploadBytes int64,
	log logrus.FieldLogger,
) *ProjectsHandler {
	return &ProjectsHandler{
		store:          store,
		files:          files,
		trigger:        trigger,
		metrics:        m,
		maxUploadBytes: maxUploadBytes,
		log:            log,
	}
}

// CreateProject godoc
// @Summary     Upload a reference video
// @Description Stores the uploaded video and creates a pending project pointing at it.
// @Tags        projects
// @Accept      multipart/form-data
// @Produce     json
// @Param       video formData file true "Reference video (mp4, mov or webm, up to 50MB)"
// @Success     201 {object} models.Project
// @Failure     400 {object} models.ErrorResponse
// @Failure     500 {object} models.ErrorResponse
// @Router      /api/projects [post]
func (h *ProjectsHandler) CreateProject(c *gin.Context) {
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, h.maxUploadBytes+multipartSlack)

	fileHeader, err := c.FormFile("video")
	if err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			c.JSON(http.StatusBadRequest, models.ErrorResponse{Message: msgVideoTooLarge})
			return
		}
		c.JSON(http.StatusBadRequest, models.ErrorResponse{Message: msgNoVideo})
		return
	}
	if fileHeader.Size > h.maxUploadBytes {
		c.JSON(http.StatusBadRequest, models.ErrorResponse{Message: msgVideoTooLarge})
		return
	}

	ext := strings.ToLower(filepath.Ext(fileHeader.Filename))
	contentType, ok := allowedVideoExts[ext]
	if !ok {
		c.JSON(http.StatusBadRequest, models.ErrorResponse{Message: msgUnsupportedVideo})
		return
	}

	file, err := fileHeader.Open()
	if err != nil {
		h.internalError(c, err, "failed to open uploaded video")
		return
	}
	defer file.Close()

	url, err := h.files.Save(c.Request.Context(), storage.ObjectName(fileHeader.Filename), file, fileHeader.Size, contentType)
	if err != nil {
		h.internalError(c, err, "failed to store uploaded video")
		return
	}

	project, err := h.store.CreateProject(c.Request.Context(), url)
	if err != nil {
		h.internalError(c, err, "failed to create project")
		return
	}
	h.metrics.ProjectsCreated.Inc()

	h.requestLog(c).WithFields(logrus.Fields{
		"project_id": project.ID,
		"video_url":  project.OriginalVideoURL,
		"size":       fileHeader.Size,
	}).Info("project created")

	c.JSON(http.StatusCreated, project)
}

// GetProject godoc
// @Summary     Get a project
// @Description Returns the project with its current status and, once completed, its output URLs.
// @Tags        projects
// @Produce     json
// @Param       id path int true "Project ID"
// @Success     200 {object} models.Project
// @Failure     404 {object} models.ErrorResponse
// @Failure     500 {object} models.ErrorResponse
// @Router      /api/projects/{id} [get]
func (h *ProjectsHandler) GetProject(c *gin.Context) {
	id, ok := projectID(c)
	if !ok {
		c.JSON(http.StatusNotFound, models.ErrorResponse{Message: msgNotFound})
		return
	}

	project, err := h.store.GetProject(c.Request.Context(), id)
	if err != nil {
		h.storeError(c, err, "failed to get project")
		return
	}

	c.JSON(http.StatusOK, project)
}

// ProcessProject godoc
// @Summary     Start processing a project
// @Description Moves a pending project to processing and schedules its completion.
// @Description The response is the project as it is right after the transition (status processing).
// @Tags        projects
// @Accept      json
// @Produce     json
// @Param       id path int true "Project ID"
// @Param       request body models.ProcessRequest false "Empty object"
// @Success     200 {object} models.Project
// @Failure     404 {object} models.ErrorResponse
// @Failure     409 {object} models.ErrorResponse
// @Failure     500 {object} models.ErrorResponse
// @Router      /api/projects/{id}/process [post]
func (h *ProjectsHandler) ProcessProject(c *gin.Context) {
	id, ok := projectID(c)
	if !ok {
		c.JSON(http.StatusNotFound, models.ErrorResponse{Message: msgNotFound})
		return
	}

	project, err := h.trigger.Start(c.Request.Context(), id)
	if err != nil {
		h.storeError(c, err, "failed to start processing")
		return
	}

	h.requestLog(c).WithField("project_id", id).Info("processing requested")
	c.JSON(http.StatusOK, project)
}

func projectID(c *gin.Context) (int, bool) {
	id, err := strconv.Atoi(c.Param("id"))
	if err != nil || id <= 0 {
		return 0, false
	}
	return id, true
}

func (h *ProjectsHandler) storeError(c *gin.Context, err error, msg string) {
	switch {
	case errors.Is(err, models.ErrProjectNotFound):
		c.JSON(http.StatusNotFound, models.ErrorResponse{Message: msgNotFound})
	case errors.Is(err, models.ErrInvalidTransition):
		c.JSON(http.StatusConflict, models.ErrorResponse{Message: msgAlreadyStarted})
	default:
		h.internalError(c, err, msg)
	}
}

func (h *ProjectsHandler) internalError(c *gin.Context, err error, msg string) {
	h.requestLog(c).WithError(err).Error(msg)
	c.JSON(http.StatusInternalServerError, models.ErrorResponse{Message: msgInternal})
}

func (h *ProjectsHandler) requestLog(c *gin.Context) logrus.FieldLogger {
	return h.log.WithField("request_id", c.GetString(middleware.RequestIDKey))
}
