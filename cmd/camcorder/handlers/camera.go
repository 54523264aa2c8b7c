package handlers

import (
	"context"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
)

// FrameSource yields encoded preview frames until ctx ends.
type FrameSource interface {
	Frames(ctx context.Context) <-chan []byte
}

type CameraHandler struct {
	Frames FrameSource
}

// Stream serves the preview as multipart/x-mixed-replace JPEG parts. The
// pipeline paces the frames; while the camera records, no parts are sent.
func (h *CameraHandler) Stream(c *gin.Context) {
	w := c.Writer
	flusher, ok := w.(http.Flusher)
	if !ok {
		c.String(http.StatusInternalServerError, "Streaming not supported")
		return
	}

	c.Header("Content-Type", "multipart/x-mixed-replace; boundary=frame")
	c.Header("Cache-Control", "no-cache, no-store, must-revalidate")
	c.Header("Pragma", "no-cache")
	c.Header("Expires", "0")
	c.Status(http.StatusOK)
	flusher.Flush()

	for frame := range h.Frames.Frames(c.Request.Context()) {
		fmt.Fprintf(w, "--frame\r\n")
		fmt.Fprintf(w, "Content-Type: image/jpeg\r\n")
		fmt.Fprintf(w, "Content-Length: %d\r\n\r\n", len(frame))
		if _, err := w.Write(frame); err != nil {
			return
		}
		fmt.Fprintf(w, "\r\n")
		flusher.Flush()
	}
}
