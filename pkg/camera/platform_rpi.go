//go:build linux && arm64

package camera

// DefaultDriver is the driver "auto" resolves to on this platform.
const DefaultDriver = "rpicam"
