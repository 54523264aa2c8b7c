package handlers

import (
	"github.com/gin-contrib/sessions"
	"github.com/gin-contrib/sessions/cookie"
	"github.com/gin-gonic/gin"
	"github.com/wachiwi/pi-camcorder/pkg/library"
	"github.com/wachiwi/pi-camcorder/pkg/settings"
)

// Deps are the components the web surface reads from and acts on.
type Deps struct {
	Frames   FrameSource
	Settings *settings.Store
	Library  *library.Library
	Status   StatusSource
	Camera   ModeSource
}

// NewRouter wires all routes. secret signs the flash message cookie.
func NewRouter(d Deps, secret []byte) *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery())
	router.SetTrustedProxies([]string{"127.0.0.1"})

	store := cookie.NewStore(secret)
	store.Options(sessions.Options{Path: "/", HttpOnly: true, MaxAge: 3600})
	router.Use(sessions.Sessions("camcorder", store))

	cameraHandler := &CameraHandler{Frames: d.Frames}
	settingsHandler := &SettingsHandler{Settings: d.Settings}
	fileHandler := &FileHandler{Library: d.Library, Settings: d.Settings, Status: d.Status}
	statusHandler := &StatusHandler{Status: d.Status, Camera: d.Camera, Settings: d.Settings}

	router.GET("/", fileHandler.Index)
	router.GET("/video_feed", cameraHandler.Stream)
	router.GET("/toggle_vintage", settingsHandler.ToggleVintage)
	router.GET("/set_fps/:fps", settingsHandler.SetFPS)
	router.GET("/download/*filename", fileHandler.Download)
	router.GET("/api/recordings", fileHandler.List)
	router.GET("/api/status", statusHandler.Get)
	router.GET("/health", Health)

	return router
}
