package config

import (
	"errors"
	"fmt"
	"os"
	"slices"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds the whole appliance configuration.
type Config struct {
	LogLevel  string          `yaml:"log_level"`
	DataDir   string          `yaml:"data_dir"` // settings state lives here
	Server    ServerConfig    `yaml:"server"`
	Camera    CameraConfig    `yaml:"camera"`
	Recording RecordingConfig `yaml:"recording"`
	GPIO      GPIOConfig      `yaml:"gpio"`
	Chime     ChimeConfig     `yaml:"chime"`
	Retention RetentionConfig `yaml:"retention"`
	Telemetry TelemetryConfig `yaml:"telemetry"`
}

type ServerConfig struct {
	Host          string        `yaml:"host"`
	Port          int           `yaml:"port"`
	SessionSecret string        `yaml:"session_secret"`
	ReadTimeout   time.Duration `yaml:"read_timeout"`
}

// Profile is one named camera configuration.
type Profile struct {
	Width   int  `yaml:"width"`
	Height  int  `yaml:"height"`
	FPS     int  `yaml:"fps"`
	Bitrate int  `yaml:"bitrate"` // bits per second, recording only
	HFlip   bool `yaml:"hflip"`
	VFlip   bool `yaml:"vflip"`
}

type CameraConfig struct {
	Driver    string  `yaml:"driver"` // "auto", "rpicam" or "testpattern"
	Streaming Profile `yaml:"streaming"`
	Recording Profile `yaml:"recording"`
}

type RecordingConfig struct {
	Dir        string `yaml:"dir"`
	Extension  string `yaml:"extension"`
	DefaultFPS int    `yaml:"default_fps"`
	AllowedFPS []int  `yaml:"allowed_fps"`
}

type GPIOConfig struct {
	Chip          string        `yaml:"chip"`
	ButtonPin     string        `yaml:"button_pin"`
	LEDPin        string        `yaml:"led_pin"`
	PollInterval  time.Duration `yaml:"poll_interval"`
	Debounce      time.Duration `yaml:"debounce"`
	BlinkInterval time.Duration `yaml:"blink_interval"`
}

// ChimeConfig points at optional WAV or MP3 cues. Empty paths disable them.
type ChimeConfig struct {
	StartSound string `yaml:"start_sound"`
	StopSound  string `yaml:"stop_sound"`
}

// RetentionConfig prunes finished recordings older than MaxAge on Schedule.
// A zero MaxAge disables pruning.
type RetentionConfig struct {
	Schedule   string        `yaml:"schedule"`
	MaxAge     time.Duration `yaml:"max_age"`
	KeepLatest int           `yaml:"keep_latest"`
}

type TelemetryConfig struct {
	Endpoint    string        `yaml:"endpoint"`
	ServiceName string        `yaml:"service_name"`
	Interval    time.Duration `yaml:"interval"`
}

// Default returns the built-in configuration of the appliance.
func Default() *Config {
	return &Config{
		LogLevel: "info",
		DataDir:  "/home/pi/.camcorder",
		Server: ServerConfig{
			Host:        "0.0.0.0",
			Port:        8000,
			ReadTimeout: 10 * time.Second,
		},
		Camera: CameraConfig{
			Driver: "auto",
			Streaming: Profile{
				Width:  1280,
				Height: 720,
				FPS:    10,
				HFlip:  true,
				VFlip:  true,
			},
			Recording: Profile{
				Width:   1920,
				Height:  1080,
				FPS:     18,
				Bitrate: 10_000_000,
				HFlip:   true,
				VFlip:   true,
			},
		},
		Recording: RecordingConfig{
			Dir:        "/home/pi/Desktop/videos",
			Extension:  "h264",
			DefaultFPS: 18,
			AllowedFPS: []int{18, 24},
		},
		GPIO: GPIOConfig{
			Chip:          "gpiochip0",
			ButtonPin:     "GPIO17",
			LEDPin:        "GPIO18",
			PollInterval:  100 * time.Millisecond,
			Debounce:      100 * time.Millisecond,
			BlinkInterval: 200 * time.Millisecond,
		},
		Retention: RetentionConfig{
			Schedule: "@daily",
		},
		Telemetry: TelemetryConfig{
			ServiceName: "camcorder",
			Interval:    10 * time.Second,
		},
	}
}

// Load builds the configuration from the defaults, the YAML file at path
// (skipped when path is empty) and environment overrides, then validates it.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config: %w", err)
		}
	}

	cfg.applyEnv()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

func (c *Config) applyEnv() {
	c.Server.Host = getEnvOrDefault("CAMCORDER_HOST", c.Server.Host)
	c.Server.Port = getEnvAsIntOrDefault("PORT", c.Server.Port)
	c.Server.SessionSecret = getEnvOrDefault("CAMCORDER_SESSION_SECRET", c.Server.SessionSecret)
	c.Recording.Dir = getEnvOrDefault("CAMCORDER_RECORDINGS_DIR", c.Recording.Dir)
	c.DataDir = getEnvOrDefault("CAMCORDER_DATA_DIR", c.DataDir)
	c.LogLevel = getEnvOrDefault("CAMCORDER_LOG_LEVEL", c.LogLevel)
	c.Camera.Driver = getEnvOrDefault("CAMCORDER_CAMERA_DRIVER", c.Camera.Driver)
	c.GPIO.Chip = getEnvOrDefault("CAMCORDER_GPIO_CHIP", c.GPIO.Chip)
	c.Telemetry.Endpoint = getEnvOrDefault("CAMCORDER_OTEL_ENDPOINT", c.Telemetry.Endpoint)
}

// Validate checks the configuration for values the appliance cannot run with.
func (c *Config) Validate() error {
	var errs []error

	if c.Server.Port < 1 || c.Server.Port > 65535 {
		errs = append(errs, fmt.Errorf("invalid port: %d", c.Server.Port))
	}
	switch c.Camera.Driver {
	case "auto", "rpicam", "testpattern":
	default:
		errs = append(errs, fmt.Errorf("unknown camera driver %q", c.Camera.Driver))
	}
	for name, p := range map[string]Profile{"streaming": c.Camera.Streaming, "recording": c.Camera.Recording} {
		if p.Width <= 0 || p.Height <= 0 || p.FPS <= 0 {
			errs = append(errs, fmt.Errorf("camera %s profile needs positive width, height and fps", name))
		}
	}
	if c.Recording.Dir == "" {
		errs = append(errs, errors.New("recording dir must be set"))
	}
	if c.Recording.Extension == "" {
		errs = append(errs, errors.New("recording extension must be set"))
	}
	if len(c.Recording.AllowedFPS) == 0 {
		errs = append(errs, errors.New("at least one allowed recording fps is required"))
	}
	for _, fps := range c.Recording.AllowedFPS {
		if fps <= 0 {
			errs = append(errs, fmt.Errorf("invalid allowed fps: %d", fps))
		}
	}
	if !slices.Contains(c.Recording.AllowedFPS, c.Recording.DefaultFPS) {
		errs = append(errs, fmt.Errorf("default fps %d is not in the allowed set %v", c.Recording.DefaultFPS, c.Recording.AllowedFPS))
	}
	if c.GPIO.PollInterval <= 0 || c.GPIO.Debounce <= 0 || c.GPIO.BlinkInterval <= 0 {
		errs = append(errs, errors.New("gpio intervals must be positive"))
	}
	if c.Retention.MaxAge < 0 || c.Retention.KeepLatest < 0 {
		errs = append(errs, errors.New("retention values must not be negative"))
	}

	return errors.Join(errs...)
}

// ServerAddress returns the listen address of the web server.
func (c *Config) ServerAddress() string {
	return fmt.Sprintf("%s:%d", c.Server.Host, c.Server.Port)
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsIntOrDefault(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if n, err := strconv.Atoi(value); err == nil {
			return n
		}
	}
	return defaultValue
}
