package handlers

import (
	"embed"
	"errors"
	"html/template"
	"log/slog"
	"net/http"
	"path/filepath"

	"github.com/gin-contrib/sessions"
	"github.com/gin-gonic/gin"
	"github.com/wachiwi/pi-camcorder/pkg/library"
	"github.com/wachiwi/pi-camcorder/pkg/settings"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
)

//go:embed templates/*
var templateFS embed.FS

var indexTemplate = template.Must(template.ParseFS(templateFS, "templates/index.html"))

var downloadsCounter metric.Int64Counter

func init() {
	var err error
	meter := otel.Meter("github.com/wachiwi/pi-camcorder/cmd/camcorder")
	downloadsCounter, err = meter.Int64Counter("camcorder.downloads",
		metric.WithDescription("Recordings downloaded through the web interface"),
		metric.WithUnit("{files}"),
	)
	if err != nil {
		slog.Error("Failed to create download metrics", "error", err)
	}
}

type FileHandler struct {
	Library  *library.Library
	Settings *settings.Store
	Status   StatusSource
}

func (h *FileHandler) Index(c *gin.Context) {
	recordings, err := h.Library.List()
	if err != nil {
		slog.Error("Failed to list recordings", "error", err)
		recordings = []library.Recording{}
	}

	session := sessions.Default(c)
	flashes := session.Flashes()
	if len(flashes) > 0 {
		if err := session.Save(); err != nil {
			slog.Error("Failed to save session", "error", err)
		}
	}

	snapshot := h.Settings.Snapshot()
	status := h.Status.Status()
	c.Header("Content-Type", "text/html; charset=utf-8")
	err = indexTemplate.Execute(c.Writer, gin.H{
		"recordings": recordings,
		"fps":        snapshot.FPS,
		"allowedFPS": h.Settings.Allowed(),
		"vintage":    snapshot.Vintage,
		"recording":  status.Recording,
		"lastError":  status.LastError,
		"flashes":    flashes,
	})
	if err != nil {
		slog.Error("Template execution error", "error", err)
		c.String(http.StatusInternalServerError, "Failed to render page")
	}
}

// List returns the recordings as JSON, newest first.
func (h *FileHandler) List(c *gin.Context) {
	recordings, err := h.Library.List()
	if err != nil {
		slog.Error("Failed to list recordings", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to list recordings"})
		return
	}
	c.JSON(http.StatusOK, recordings)
}

// Download serves one recording as an attachment.
func (h *FileHandler) Download(c *gin.Context) {
	path, err := h.Library.Resolve(c.Param("filename"))
	switch {
	case err == nil:
	case errors.Is(err, library.ErrInvalidName):
		slog.Warn("Rejected download", "filename", c.Param("filename"))
		c.String(http.StatusBadRequest, "Invalid file name")
		return
	case errors.Is(err, library.ErrNotFound):
		c.String(http.StatusNotFound, "Recording not found")
		return
	default:
		slog.Error("Failed to resolve download", "error", err)
		c.String(http.StatusInternalServerError, "Failed to read recording")
		return
	}

	if downloadsCounter != nil {
		downloadsCounter.Add(c.Request.Context(), 1)
	}
	c.FileAttachment(path, filepath.Base(path))
}
