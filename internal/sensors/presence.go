package sensors

import (
	"context"
	"strconv"
	"strings"
)

// IsHome interprets a presence entity. The meaning of the state depends on
// the entity domain: trackers report zones, zones report head counts,
// booleans and groups report on/off.
func IsHome(s *EntityState) bool {
	value := strings.ToLower(strings.TrimSpace(s.State))
	domain := s.EntityID
	if idx := strings.Index(domain, "."); idx >= 0 {
		domain = domain[:idx]
	}

	switch domain {
	case "device_tracker", "person":
		return !in(value, "away", "not_home", "unknown", "unavailable")
	case "zone":
		if n, err := strconv.Atoi(s.State); err == nil {
			return n > 0
		}
		return !in(value, "0", "unknown", "unavailable")
	case "sensor":
		if in(value, "home", "on", "true", "1") {
			return true
		}
		if in(value, "away", "not_home", "not home", "off", "false", "0", "unknown", "unavailable") {
			return false
		}
		return true
	case "input_boolean":
		return value == "on"
	case "group":
		return in(value, "on", "home")
	default:
		return !in(value, "away", "not_home", "not home", "off", "0", "false", "unknown", "unavailable")
	}
}

// Present reports whether someone is home according to the tracker.
// Without a tracker, or without a known state, the house counts as occupied.
func Present(ctx context.Context, r Reader, tracker string) bool {
	if tracker == "" {
		return true
	}
	st, err := r.State(ctx, tracker)
	if err != nil {
		return true
	}
	return IsHome(st)
}

func in(value string, options ...string) bool {
	for _, o := range options {
		if value == o {
			return true
		}
	}
	return false
}
