package recorder

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// TimestampLayout is the local-time stamp embedded in every file name.
const TimestampLayout = "20060102_150405"

// ProvisionalName is the name a recording is written under while it runs.
func ProvisionalName(started time.Time, ext string) string {
	return "rec_" + started.Format(TimestampLayout) + "." + strings.TrimPrefix(ext, ".")
}

// FinalName inserts the duration and framerate before the extension:
// rec_20240301_120000.h264 becomes rec_20240301_120000_5s_fps18.h264.
func FinalName(provisional string, seconds, fps int) string {
	ext := filepath.Ext(provisional)
	base := strings.TrimSuffix(provisional, ext)
	return fmt.Sprintf("%s_%ds_fps%d%s", base, seconds, fps, ext)
}

// Disambiguate appends _n before the extension, counting from 1.
func Disambiguate(name string, n int) string {
	ext := filepath.Ext(name)
	return fmt.Sprintf("%s_%d%s", strings.TrimSuffix(name, ext), n, ext)
}

// freePath returns name joined to dir, or the first disambiguated variant
// that does not exist yet. Sessions never overlap, so nothing else claims
// the name between the check and the write.
func freePath(dir, name string) (string, error) {
	path := filepath.Join(dir, name)
	for n := 1; ; n++ {
		_, err := os.Lstat(path)
		if errors.Is(err, os.ErrNotExist) {
			return path, nil
		}
		if err != nil {
			return "", err
		}
		path = filepath.Join(dir, Disambiguate(name, n))
	}
}
