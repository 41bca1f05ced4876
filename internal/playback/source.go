package playback

import (
	"errors"
	"regexp"
)

// ErrInvalidSource reports a load whose source reference cannot be resolved.
var ErrInvalidSource = errors.New("media source cannot be resolved")

var (
	rawIDPattern = regexp.MustCompile(`^[A-Za-z0-9_-]{11}$`)
	watchPattern = regexp.MustCompile(`[?&]v=([A-Za-z0-9_-]{11})(?:[^A-Za-z0-9_-]|$)`)
	shortPattern = regexp.MustCompile(`/([A-Za-z0-9_-]{11})(?:[?&#]|$)`)
)

// ExtractStreamID pulls the 11-character stream id out of a raw id, a
// watch?v= URL, or a short-link URL. Reports false when no id is present.
func ExtractStreamID(raw string) (string, bool) {
	if raw == "" {
		return "", false
	}
	if rawIDPattern.MatchString(raw) {
		return raw, true
	}
	if m := watchPattern.FindStringSubmatch(raw); m != nil {
		return m[1], true
	}
	if m := shortPattern.FindStringSubmatch(raw); m != nil {
		return m[1], true
	}
	return "", false
}
