package transport

import (
	"context"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"time"

	"go-image-tagger/internal/batch"
	"go-image-tagger/internal/config"
	apperrors "go-image-tagger/internal/errors"
	"go-image-tagger/internal/export"
	"go-image-tagger/internal/logger"
	"go-image-tagger/internal/prompt"
	"go-image-tagger/internal/service"
	"go-image-tagger/internal/settings"
	"go-image-tagger/pkg/models"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
)

type handler struct {
	svc service.WorkspaceService
	cfg *config.Config
}

func NewHandler(svc service.WorkspaceService, cfg *config.Config) http.Handler {
	r := gin.New()
	h := &handler{svc: svc, cfg: cfg}

	// Add middleware
	r.Use(
		gin.Recovery(),
		requestLogger(),
		cors.New(cors.Config{
			AllowAllOrigins: true,
			AllowMethods:    []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
			AllowHeaders:    []string{"Origin", "Content-Type", "Accept", "Cache-Control"},
			ExposeHeaders:   []string{"Content-Length", "Content-Disposition"},
			MaxAge:          12 * time.Hour,
		}),
		requestSizeLimiter(cfg.MaxRequestBodySize),
		errorHandler(),
	)

	// Configure routes
	r.GET("/health", healthCheck)
	r.GET("/fields", h.listFields)

	r.GET("/settings", h.getSettings)
	r.PUT("/settings", h.updateSettings)
	r.PUT("/settings/provider", h.setProvider)
	r.POST("/settings/fields/all", h.enableAllFields)
	r.POST("/settings/fields/reset", h.resetFields)
	r.POST("/settings/fields/:name/toggle", h.toggleField)
	r.PUT("/settings/fields/:name/instruction", h.setInstruction)

	r.GET("/images", h.listImages)
	r.POST("/images", h.uploadImages)
	r.POST("/images/url", h.addImageURL)
	r.POST("/images/retry", h.retryFailed)
	r.DELETE("/images", h.clearImages)
	r.GET("/images/:id", h.getImage)
	r.GET("/images/:id/preview", h.getPreview)
	r.DELETE("/images/:id", h.removeImage)

	r.POST("/batch/start", h.startBatch)
	r.POST("/batch/stop", h.stopBatch)
	r.GET("/batch/progress", h.batchProgress)
	r.GET("/batch/events", h.batchEvents)

	r.GET("/export/:format", h.exportResults)

	if cfg.AssetStore == config.AssetStoreLocal {
		r.Static("/assets", cfg.LocalAssetDir)
	}

	return r
}

func healthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":  "available",
		"version": "1.0.0",
		"time":    time.Now().UTC().Format(time.RFC3339),
	})
}

func (h *handler) listFields(c *gin.Context) {
	c.JSON(http.StatusOK, models.FieldsResponse{Fields: h.svc.Catalog()})
}

func (h *handler) getSettings(c *gin.Context) {
	c.JSON(http.StatusOK, h.settingsResponse(h.svc.Settings()))
}

// updateSettings replaces the settings. An omitted API key keeps the stored
// one while the provider is unchanged, since responses never carry it.
func (h *handler) updateSettings(c *gin.Context) {
	var req settings.Settings
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, http.StatusBadRequest, "invalid request format", err)
		return
	}
	if current := h.svc.Settings(); req.APIKey == "" && req.Provider == current.Provider {
		req.APIKey = current.APIKey
	}
	updated, err := h.svc.UpdateSettings(req)
	if err != nil {
		fail(c, "invalid settings", err)
		return
	}
	logger.WithFields(logrus.Fields{
		"provider": updated.Provider,
		"model":    updated.EffectiveModel(),
		"fields":   updated.Enabled,
	}).Info("Settings updated")
	c.JSON(http.StatusOK, h.settingsResponse(updated))
}

func (h *handler) setProvider(c *gin.Context) {
	var req models.SetProviderRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, http.StatusBadRequest, "invalid request format", err)
		return
	}
	updated, err := h.svc.SetProvider(req.Provider)
	if err != nil {
		fail(c, "failed to set provider", err)
		return
	}
	logger.WithFields(logrus.Fields{
		"provider": updated.Provider,
		"model":    updated.EffectiveModel(),
	}).Info("Provider changed")
	c.JSON(http.StatusOK, h.settingsResponse(updated))
}

func (h *handler) enableAllFields(c *gin.Context) {
	updated, err := h.svc.EnableAllFields()
	if err != nil {
		fail(c, "failed to enable fields", err)
		return
	}
	c.JSON(http.StatusOK, h.settingsResponse(updated))
}

func (h *handler) resetFields(c *gin.Context) {
	updated, err := h.svc.ResetFields()
	if err != nil {
		fail(c, "failed to reset fields", err)
		return
	}
	c.JSON(http.StatusOK, h.settingsResponse(updated))
}

func (h *handler) setInstruction(c *gin.Context) {
	var req models.SetInstructionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, http.StatusBadRequest, "invalid request format", err)
		return
	}
	updated, err := h.svc.SetInstruction(c.Param("name"), req.Instruction)
	if err != nil {
		fail(c, "failed to set instruction", err)
		return
	}
	c.JSON(http.StatusOK, h.settingsResponse(updated))
}

func (h *handler) toggleField(c *gin.Context) {
	updated, err := h.svc.ToggleField(c.Param("name"))
	if err != nil {
		fail(c, "failed to toggle field", err)
		return
	}
	c.JSON(http.StatusOK, h.settingsResponse(updated))
}

func (h *handler) settingsResponse(s settings.Settings) models.SettingsResponse {
	directive := prompt.Assemble(s, h.svc.Catalog())
	hasKey := s.APIKey != ""
	s.APIKey = ""
	return models.SettingsResponse{
		Settings:  s,
		HasAPIKey: hasKey,
		Providers: settings.Providers(),
		Models:    settings.GatewayModels(),
		Tones:     prompt.Tones(),
		Directive: directive,
	}
}

func (h *handler) listImages(c *gin.Context) {
	items := h.svc.Items()
	resp := models.ImagesResponse{
		Images: make([]models.ImageResponse, 0, len(items)),
		Counts: toCounts(h.svc.Counts()),
	}
	for _, item := range items {
		resp.Images = append(resp.Images, toImageResponse(item))
	}
	c.JSON(http.StatusOK, resp)
}

func (h *handler) uploadImages(c *gin.Context) {
	form, err := c.MultipartForm()
	if err != nil {
		respondError(c, http.StatusBadRequest, "invalid multipart form", err)
		return
	}
	files := form.File["files"]
	if len(files) == 0 {
		fail(c, "no files uploaded", apperrors.NewValidationError("form field \"files\" is empty", nil))
		return
	}

	resp := models.AddImagesResponse{Added: make([]models.ImageResponse, 0, len(files))}
	for _, fh := range files {
		data, err := readUpload(fh, h.cfg.MaxImageSize)
		if err == nil {
			var item batch.Item
			item, err = h.svc.AddImage(c.Request.Context(), fh.Filename, data)
			if err == nil {
				resp.Added = append(resp.Added, toImageResponse(item))
				continue
			}
		}
		logger.WithError(err).WithField("filename", fh.Filename).Warn("Rejected uploaded image")
		resp.Errors = append(resp.Errors, models.UploadError{Filename: fh.Filename, Message: apperrors.Message(err)})
	}

	status := http.StatusCreated
	if len(resp.Added) == 0 {
		status = http.StatusBadRequest
	}
	c.JSON(status, resp)
}

func readUpload(fh *multipart.FileHeader, maxSize int64) ([]byte, error) {
	if maxSize > 0 && fh.Size > maxSize {
		return nil, apperrors.NewValidationError(
			fmt.Sprintf("file size exceeds limit: %d bytes (max %d bytes)", fh.Size, maxSize), nil)
	}
	f, err := fh.Open()
	if err != nil {
		return nil, apperrors.NewValidationError("failed to open upload", err)
	}
	defer f.Close()

	data, err := io.ReadAll(f)
	if err != nil {
		return nil, apperrors.NewValidationError("failed to read upload", err)
	}
	return data, nil
}

func (h *handler) addImageURL(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), h.cfg.RequestTimeout)
	defer cancel()

	var req models.AddImageURLRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, http.StatusBadRequest, "invalid request format", err)
		return
	}

	item, err := h.svc.AddImageFromURL(ctx, req.URL)
	if err != nil {
		logger.WithError(err).WithFields(logrus.Fields{
			"url": req.URL,
			"ip":  c.ClientIP(),
		}).Error("Failed to add image from URL")
		fail(c, "failed to add image", err)
		return
	}
	c.JSON(http.StatusCreated, toImageResponse(item))
}

func (h *handler) retryFailed(c *gin.Context) {
	n, err := h.svc.RetryFailed()
	if err != nil {
		fail(c, "failed to retry images", err)
		return
	}
	c.JSON(http.StatusOK, models.CountResponse{Count: n})
}

func (h *handler) clearImages(c *gin.Context) {
	n, err := h.svc.Clear()
	if err != nil {
		fail(c, "failed to clear images", err)
		return
	}
	c.JSON(http.StatusOK, models.CountResponse{Count: n})
}

func (h *handler) getImage(c *gin.Context) {
	item, err := h.svc.Item(c.Param("id"))
	if err != nil {
		fail(c, "failed to get image", err)
		return
	}
	c.JSON(http.StatusOK, toImageResponse(item))
}

func (h *handler) getPreview(c *gin.Context) {
	p, err := h.svc.Preview(c.Param("id"))
	if err != nil {
		fail(c, "failed to get preview", err)
		return
	}
	c.Header("Cache-Control", "private, max-age=300")
	c.Data(http.StatusOK, p.MediaType, p.Data)
}

func (h *handler) removeImage(c *gin.Context) {
	if err := h.svc.Remove(c.Param("id")); err != nil {
		fail(c, "failed to remove image", err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *handler) startBatch(c *gin.Context) {
	n, err := h.svc.Start()
	if err != nil {
		fail(c, "failed to start batch", err)
		return
	}
	c.JSON(http.StatusAccepted, models.StartBatchResponse{Selected: n})
}

func (h *handler) stopBatch(c *gin.Context) {
	c.JSON(http.StatusOK, models.StopBatchResponse{Stopping: h.svc.Stop()})
}

func (h *handler) batchProgress(c *gin.Context) {
	c.JSON(http.StatusOK, h.svc.Progress())
}

// batchEvents streams run events as server-sent events, starting with the
// current progress.
func (h *handler) batchEvents(c *gin.Context) {
	events, unsubscribe := h.svc.Subscribe()
	defer unsubscribe()

	c.Header("Content-Type", "text/event-stream")
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")
	c.SSEvent("progress", h.svc.Progress())
	c.Writer.Flush()

	ctx := c.Request.Context()
	c.Stream(func(w io.Writer) bool {
		select {
		case <-ctx.Done():
			return false
		case event, ok := <-events:
			if !ok {
				return false
			}
			c.SSEvent(string(event.Type), event)
			return true
		}
	})
}

func (h *handler) exportResults(c *gin.Context) {
	format, err := export.ParseFormat(c.Param("format"))
	if err != nil {
		fail(c, "invalid export format", err)
		return
	}
	data, err := h.svc.Export(format)
	if err != nil {
		fail(c, "export failed", err)
		return
	}
	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%q", export.Filename(format)))
	c.Data(http.StatusOK, export.ContentType(format), data)
}

func toImageResponse(item batch.Item) models.ImageResponse {
	return models.ImageResponse{
		ID:         item.ID,
		Filename:   item.Filename,
		MediaType:  item.MediaType,
		Size:       item.Size,
		Status:     string(item.Status),
		Result:     item.Result,
		AssetURL:   item.AssetURL,
		AssetPath:  item.AssetPath,
		IndexID:    item.IndexID,
		Error:      item.Error,
		PreviewURL: "/images/" + item.ID + "/preview",
		AddedAt:    item.AddedAt,
		UpdatedAt:  item.UpdatedAt,
	}
}

func toCounts(c batch.Counts) models.QueueCounts {
	return models.QueueCounts{
		Total:      c.Total,
		Pending:    c.Pending,
		Processing: c.Processing,
		Complete:   c.Complete,
		Error:      c.Error,
	}
}

// Middleware and helper functions
func requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		entry := logger.WithFields(logrus.Fields{
			"method":      c.Request.Method,
			"path":        c.Request.URL.Path,
			"status":      c.Writer.Status(),
			"duration_ms": time.Since(start).Milliseconds(),
			"ip":          c.ClientIP(),
		})
		if c.Writer.Status() >= http.StatusInternalServerError {
			entry.Error("Request completed")
		} else {
			entry.Debug("Request completed")
		}
	}
}

func requestSizeLimiter(maxBytes int64) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxBytes)
		c.Next()
	}
}

func errorHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		if len(c.Errors) > 0 && !c.Writer.Written() {
			err := c.Errors.Last()
			message, _ := err.Meta.(string)
			if message == "" {
				message = "request processing failed"
			}
			respondError(c, determineStatusCode(err.Err), message, err.Err)
		}
	}
}

func determineStatusCode(err error) int {
	// Check if it's a custom app error first
	var appErr *apperrors.AppError
	if errors.As(err, &appErr) {
		return appErr.StatusCode
	}

	// Fallback to context-based errors
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	case errors.Is(err, context.Canceled):
		return http.StatusTooManyRequests
	default:
		return http.StatusInternalServerError
	}
}

// fail records err for errorHandler, which writes the response.
func fail(c *gin.Context, message string, err error) {
	_ = c.Error(err).SetMeta(message)
	c.Abort()
}

func respondError(c *gin.Context, code int, message string, err error) {
	// Log the error with context
	entry := logger.WithError(err).WithFields(logrus.Fields{
		"status_code": code,
		"message":     message,
		"path":        c.Request.URL.Path,
		"method":      c.Request.Method,
		"ip":          c.ClientIP(),
	})
	if code >= http.StatusInternalServerError {
		entry.Error("Request failed")
	} else {
		entry.Warn("Request failed")
	}

	c.AbortWithStatusJSON(code, models.ErrorResponse{
		Error:   http.StatusText(code),
		Message: fmt.Sprintf("%s: %s", message, apperrors.Message(err)),
	})
}
