package handlers

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/gin-contrib/sessions"
	"github.com/gin-gonic/gin"
	"github.com/wachiwi/pi-camcorder/pkg/settings"
)

type SettingsHandler struct {
	Settings *settings.Store
}

// ToggleVintage flips the preview look and returns to the index page.
func (h *SettingsHandler) ToggleVintage(c *gin.Context) {
	on, err := h.Settings.ToggleVintage()
	if err != nil {
		slog.Warn("Failed to persist settings", "error", err)
	}
	state := "off"
	if on {
		state = "on"
	}
	flash(c, "Vintage mode "+state)
	c.Redirect(http.StatusFound, "/")
}

// SetFPS changes the framerate of the next recording. Values outside the
// allowed set are ignored.
func (h *SettingsHandler) SetFPS(c *gin.Context) {
	fps, err := strconv.Atoi(c.Param("fps"))
	if err == nil {
		err = h.Settings.SetFPS(fps)
	}

	switch {
	case err == nil:
		flash(c, fmt.Sprintf("Recording framerate set to %d fps", fps))
	case errors.Is(err, settings.ErrUnsupportedFramerate), errors.Is(err, strconv.ErrSyntax), errors.Is(err, strconv.ErrRange):
		slog.Debug("Ignoring framerate change", "value", c.Param("fps"))
		flash(c, "Unsupported framerate "+c.Param("fps"))
	default:
		// Applied in memory, only persisting failed.
		slog.Warn("Failed to persist settings", "error", err)
		flash(c, fmt.Sprintf("Recording framerate set to %d fps", fps))
	}
	c.Redirect(http.StatusFound, "/")
}

func flash(c *gin.Context, msg string) {
	session := sessions.Default(c)
	session.AddFlash(msg)
	if err := session.Save(); err != nil {
		slog.Error("Failed to save session", "error", err)
	}
}
