package handlers

import (
	"net/http"
	"path/filepath"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/wachiwi/pi-camcorder/pkg/camera"
	"github.com/wachiwi/pi-camcorder/pkg/coordinator"
	"github.com/wachiwi/pi-camcorder/pkg/settings"
)

// StatusSource reports the recording flag and the last session outcome.
type StatusSource interface {
	Status() coordinator.Status
}

// ModeSource reports the active camera configuration.
type ModeSource interface {
	Mode() camera.Mode
}

type StatusHandler struct {
	Status   StatusSource
	Camera   ModeSource
	Settings *settings.Store
}

func (h *StatusHandler) Get(c *gin.Context) {
	status := h.Status.Status()
	snapshot := h.Settings.Snapshot()

	resp := gin.H{
		"recording":   status.Recording,
		"camera_mode": h.Camera.Mode().String(),
		"fps":         snapshot.FPS,
		"allowed_fps": h.Settings.Allowed(),
		"vintage":     snapshot.Vintage,
		"last_error":  "",
	}
	if status.LastError != nil {
		resp["last_error"] = status.LastError.Error()
	}
	if status.Last != nil {
		resp["last_recording"] = gin.H{
			"name":             filepath.Base(status.Last.Path),
			"duration_seconds": int(status.Last.Duration / time.Second),
			"fps":              status.Last.FPS,
		}
	}
	c.JSON(http.StatusOK, resp)
}

func Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":    "healthy",
		"timestamp": time.Now().Format(time.RFC3339),
	})
}
