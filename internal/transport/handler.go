package transport

import (
	"context"
	"errors"
	"fmt"
	"mime"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"go-signature-extractor/internal/config"
	apperrors "go-signature-extractor/internal/errors"
	"go-signature-extractor/internal/logger"
	"go-signature-extractor/internal/service"
	"go-signature-extractor/pkg/geometry"
	"go-signature-extractor/pkg/models"
)

// MetricsProvider exposes counters collected from signature events
type MetricsProvider interface {
	GetMetrics() map[string]interface{}
}

func NewHandler(svc service.SessionService, metrics MetricsProvider, cfg *config.Config) http.Handler {
	r := gin.New()

	// Add middleware
	r.Use(
		gin.Recovery(),
		requestLogger(),
		requestSizeLimiter(cfg.MaxRequestBodySize),
		errorHandler(),
	)

	// Configure routes
	r.GET("/health", healthCheck)
	r.GET("/metrics", metricsSnapshot(metrics))

	r.GET("/settings", getSettings(svc))
	r.PUT("/settings", updateSettings(svc))

	r.POST("/sessions", createSession(svc))

	s := r.Group("/sessions/:id")
	s.GET("", getSession(svc))
	s.DELETE("", deleteSession(svc))
	s.POST("/document", loadDocument(svc, cfg))

	s.GET("/viewport", getViewport(svc))
	s.PUT("/viewport/size", setViewportSize(svc))
	for _, action := range []service.ViewportAction{
		service.ActionWheel, service.ActionZoomIn, service.ActionZoomOut, service.ActionPan, service.ActionReset,
	} {
		s.POST("/viewport/"+string(action), viewportGesture(svc, service.CanvasViewport, action))
		s.POST("/preview/"+string(action), viewportGesture(svc, service.PreviewViewport, action))
	}

	s.POST("/selections", createSelection(svc))
	s.GET("/signatures", listSignatures(svc))
	s.GET("/signatures/:sid", getSignature(svc))
	s.GET("/signatures/:sid/artifact", getArtifact(svc))
	s.PATCH("/signatures/:sid", renameSignature(svc))
	s.DELETE("/signatures/:sid", removeSignature(svc))
	s.POST("/undo", undo(svc))

	s.GET("/export", downloadArchive(svc))
	s.POST("/export", storeArchive(svc, cfg))
	s.GET("/accuracy", accuracy(svc))

	return r
}

func createSession(svc service.SessionService) gin.HandlerFunc {
	return func(c *gin.Context) {
		resp, err := svc.CreateSession(c.Request.Context())
		if err != nil {
			fail(c, "failed to create session", err)
			return
		}
		c.JSON(http.StatusCreated, resp)
	}
}

func getSession(svc service.SessionService) gin.HandlerFunc {
	return func(c *gin.Context) {
		resp, err := svc.GetSession(c.Request.Context(), c.Param("id"))
		if err != nil {
			fail(c, "failed to get session", err)
			return
		}
		c.JSON(http.StatusOK, resp)
	}
}

func deleteSession(svc service.SessionService) gin.HandlerFunc {
	return func(c *gin.Context) {
		if err := svc.DeleteSession(c.Request.Context(), c.Param("id")); err != nil {
			fail(c, "failed to delete session", err)
			return
		}
		c.Status(http.StatusNoContent)
	}
}

// loadDocument accepts either a multipart "file" field or a JSON body
// naming a URL to fetch.
func loadDocument(svc service.SessionService, cfg *config.Config) gin.HandlerFunc {
	return func(c *gin.Context) {
		startTime := time.Now()
		ctx, cancel := context.WithTimeout(c.Request.Context(), cfg.RequestTimeout)
		defer cancel()

		id := c.Param("id")
		var (
			info *models.DocumentInfo
			err  error
		)

		if strings.HasPrefix(c.ContentType(), "multipart/") {
			fh, ferr := c.FormFile("file")
			if ferr != nil {
				respondError(c, bodyStatus(ferr), "missing document file", ferr)
				return
			}
			f, ferr := fh.Open()
			if ferr != nil {
				respondError(c, http.StatusBadRequest, "unreadable document file", ferr)
				return
			}
			defer f.Close()
			info, err = svc.LoadDocument(ctx, id, f, fh.Filename)
		} else {
			var req models.DocumentRequest
			if berr := c.ShouldBindJSON(&req); berr != nil {
				respondError(c, bodyStatus(berr), "invalid request format", berr)
				return
			}
			info, err = svc.LoadDocumentFromURL(ctx, id, req.URL)
		}

		if err != nil {
			if errors.Is(err, context.DeadlineExceeded) {
				err = apperrors.NewTimeoutError("document load timeout", err)
			}
			fail(c, "failed to load document", err)
			return
		}

		logger.WithFields(logrus.Fields{
			"session_id":         id,
			"width":              info.Width,
			"height":             info.Height,
			"processing_time_ms": time.Since(startTime).Milliseconds(),
		}).Info("Document load completed successfully")
		c.JSON(http.StatusOK, info)
	}
}

func getViewport(svc service.SessionService) gin.HandlerFunc {
	return func(c *gin.Context) {
		state, err := svc.GetViewport(c.Request.Context(), c.Param("id"))
		if err != nil {
			fail(c, "failed to get viewport", err)
			return
		}
		c.JSON(http.StatusOK, state)
	}
}

func setViewportSize(svc service.SessionService) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req models.ViewportSizeRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			respondError(c, bodyStatus(err), "invalid request format", err)
			return
		}
		state, err := svc.SetViewportSize(c.Request.Context(), c.Param("id"), geometry.Size{Width: req.Width, Height: req.Height})
		if err != nil {
			fail(c, "failed to set viewport size", err)
			return
		}
		c.JSON(http.StatusOK, state)
	}
}

func viewportGesture(svc service.SessionService, target service.ViewportTarget, action service.ViewportAction) gin.HandlerFunc {
	return func(c *gin.Context) {
		cmd := service.ViewportCommand{Action: action}

		switch action {
		case service.ActionWheel:
			var req models.WheelRequest
			if err := c.ShouldBindJSON(&req); err != nil {
				respondError(c, bodyStatus(err), "invalid request format", err)
				return
			}
			cmd.Anchor = geometry.Point{X: req.X, Y: req.Y}
			cmd.DeltaY = req.DeltaY
		case service.ActionPan:
			var req models.PanRequest
			if err := c.ShouldBindJSON(&req); err != nil {
				respondError(c, bodyStatus(err), "invalid request format", err)
				return
			}
			cmd.DX, cmd.DY = req.DX, req.DY
		}

		state, err := svc.ApplyViewport(c.Request.Context(), c.Param("id"), target, cmd)
		if err != nil {
			fail(c, "viewport update failed", err)
			return
		}
		c.JSON(http.StatusOK, state)
	}
}

// createSelection answers 201 with the new record, or 204 when the drag was
// too small to count as a selection.
func createSelection(svc service.SessionService) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req models.SelectionRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			respondError(c, bodyStatus(err), "invalid request format", err)
			return
		}

		sig, err := svc.Select(c.Request.Context(), c.Param("id"), req)
		if err != nil {
			fail(c, "selection failed", err)
			return
		}
		if sig == nil {
			c.Status(http.StatusNoContent)
			return
		}
		c.JSON(http.StatusCreated, sig)
	}
}

func listSignatures(svc service.SessionService) gin.HandlerFunc {
	return func(c *gin.Context) {
		resp, err := svc.ListSignatures(c.Request.Context(), c.Param("id"))
		if err != nil {
			fail(c, "failed to list signatures", err)
			return
		}
		c.JSON(http.StatusOK, resp)
	}
}

func getSignature(svc service.SessionService) gin.HandlerFunc {
	return func(c *gin.Context) {
		sid, ok := signatureID(c)
		if !ok {
			return
		}
		sig, err := svc.GetSignature(c.Request.Context(), c.Param("id"), sid)
		if err != nil {
			fail(c, "failed to get signature", err)
			return
		}
		c.JSON(http.StatusOK, sig)
	}
}

func getArtifact(svc service.SessionService) gin.HandlerFunc {
	return func(c *gin.Context) {
		sid, ok := signatureID(c)
		if !ok {
			return
		}
		data, err := svc.Artifact(c.Request.Context(), c.Param("id"), sid)
		if err != nil {
			fail(c, "failed to get artifact", err)
			return
		}
		c.Data(http.StatusOK, "image/png", data)
	}
}

func renameSignature(svc service.SessionService) gin.HandlerFunc {
	return func(c *gin.Context) {
		sid, ok := signatureID(c)
		if !ok {
			return
		}
		var req models.RenameRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			respondError(c, bodyStatus(err), "invalid request format", err)
			return
		}
		sig, err := svc.RenameSignature(c.Request.Context(), c.Param("id"), sid, *req.Label)
		if err != nil {
			fail(c, "failed to rename signature", err)
			return
		}
		c.JSON(http.StatusOK, sig)
	}
}

func removeSignature(svc service.SessionService) gin.HandlerFunc {
	return func(c *gin.Context) {
		sid, ok := signatureID(c)
		if !ok {
			return
		}
		if err := svc.RemoveSignature(c.Request.Context(), c.Param("id"), sid); err != nil {
			fail(c, "failed to remove signature", err)
			return
		}
		c.Status(http.StatusNoContent)
	}
}

func undo(svc service.SessionService) gin.HandlerFunc {
	return func(c *gin.Context) {
		resp, err := svc.Undo(c.Request.Context(), c.Param("id"))
		if err != nil {
			fail(c, "undo failed", err)
			return
		}
		c.JSON(http.StatusOK, resp)
	}
}

func downloadArchive(svc service.SessionService) gin.HandlerFunc {
	return func(c *gin.Context) {
		archive, err := svc.ExportArchive(c.Request.Context(), c.Param("id"))
		if err != nil {
			fail(c, "export failed", err)
			return
		}
		c.Header("Content-Disposition", mime.FormatMediaType("attachment", map[string]string{"filename": archive.Name}))
		c.Data(http.StatusOK, "application/zip", archive.Data)
	}
}

func storeArchive(svc service.SessionService, cfg *config.Config) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx, cancel := context.WithTimeout(c.Request.Context(), cfg.RequestTimeout)
		defer cancel()

		resp, err := svc.ExportToSink(ctx, c.Param("id"))
		if err != nil {
			fail(c, "export failed", err)
			return
		}
		c.JSON(http.StatusCreated, resp)
	}
}

func accuracy(svc service.SessionService) gin.HandlerFunc {
	return func(c *gin.Context) {
		report, err := svc.Accuracy(c.Request.Context(), c.Param("id"))
		if err != nil {
			fail(c, "accuracy report failed", err)
			return
		}
		c.JSON(http.StatusOK, report)
	}
}

func getSettings(svc service.SessionService) gin.HandlerFunc {
	return func(c *gin.Context) {
		resp, err := svc.GetSettings(c.Request.Context())
		if err != nil {
			fail(c, "failed to read settings", err)
			return
		}
		c.JSON(http.StatusOK, resp)
	}
}

func updateSettings(svc service.SessionService) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req models.SettingsRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			respondError(c, bodyStatus(err), "invalid request format", err)
			return
		}
		resp, err := svc.UpdateSettings(c.Request.Context(), req)
		if err != nil {
			fail(c, "failed to update settings", err)
			return
		}
		c.JSON(http.StatusOK, resp)
	}
}

func metricsSnapshot(metrics MetricsProvider) gin.HandlerFunc {
	return func(c *gin.Context) {
		if metrics == nil {
			c.JSON(http.StatusOK, gin.H{})
			return
		}
		c.JSON(http.StatusOK, metrics.GetMetrics())
	}
}

func healthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":  "available",
		"version": "1.0.0",
		"time":    time.Now().UTC().Format(time.RFC3339),
	})
}

func signatureID(c *gin.Context) (int64, bool) {
	sid, err := strconv.ParseInt(c.Param("sid"), 10, 64)
	if err != nil {
		respondError(c, http.StatusBadRequest, "invalid signature id", err)
		return 0, false
	}
	return sid, true
}

// Middleware and helper functions
func requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		logger.WithFields(logrus.Fields{
			"method":      c.Request.Method,
			"path":        c.FullPath(),
			"status_code": c.Writer.Status(),
			"duration_ms": time.Since(start).Milliseconds(),
			"user_agent":  c.Request.UserAgent(),
			"ip":          c.ClientIP(),
		}).Info("Request handled")
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
			respondError(c, determineStatusCode(err.Err), "request processing failed", err)
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

// bodyStatus tells an oversized body apart from a malformed one
func bodyStatus(err error) int {
	var tooLarge *http.MaxBytesError
	if errors.As(err, &tooLarge) {
		return http.StatusRequestEntityTooLarge
	}
	return http.StatusBadRequest
}

func fail(c *gin.Context, message string, err error) {
	respondError(c, determineStatusCode(err), message, err)
}

func respondError(c *gin.Context, code int, message string, err error) {
	// Log the error with context
	logger.WithError(err).WithFields(logrus.Fields{
		"status_code": code,
		"message":     message,
		"path":        c.Request.URL.Path,
		"method":      c.Request.Method,
		"ip":          c.ClientIP(),
	}).Error("Request failed")

	c.AbortWithStatusJSON(code, models.ErrorResponse{
		Error:   http.StatusText(code),
		Message: fmt.Sprintf("%s: %v", message, err),
	})
}
