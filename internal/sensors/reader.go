// Package sensors reads entity states by id and interprets them the way the
// climate rules need: numeric readings, open/closed contacts and presence.
package sensors

import (
	"context"
	"errors"
	"strconv"
	"strings"
	"time"
)

// ErrNotFound is returned when no state is known for an entity
var ErrNotFound = errors.New("entity state not found")

// EntityState is the latest known state of one entity
type EntityState struct {
	EntityID   string                 `json:"entity_id"`
	State      string                 `json:"state"`
	Name       string                 `json:"name,omitempty"`
	Attributes map[string]interface{} `json:"attributes,omitempty"`
	UpdatedAt  time.Time              `json:"updated_at"`
}

// Reader looks up entity states by id
type Reader interface {
	State(ctx context.Context, entityID string) (*EntityState, error)
}

// Float parses the state as a number. Unknown and unavailable states are not numbers.
func (s *EntityState) Float() (float64, bool) {
	if s == nil || isUnavailable(s.State) {
		return 0, false
	}
	v, err := strconv.ParseFloat(strings.TrimSpace(s.State), 64)
	if err != nil {
		return 0, false
	}
	return v, true
}

// IsOpen reports whether a contact-like state means open/on
func (s *EntityState) IsOpen() bool {
	if s == nil {
		return false
	}
	switch strings.ToLower(s.State) {
	case "on", "true", "open":
		return true
	}
	return false
}

// DisplayName returns the friendly name, falling back to the entity id
func (s *EntityState) DisplayName() string {
	if s.Name != "" {
		return s.Name
	}
	return s.EntityID
}

// FloatAttribute returns a numeric attribute
func (s *EntityState) FloatAttribute(name string) (float64, bool) {
	if s == nil {
		return 0, false
	}
	switch v := s.Attributes[name].(type) {
	case float64:
		return v, true
	case int:
		return float64(v), true
	case string:
		f, err := strconv.ParseFloat(v, 64)
		return f, err == nil
	}
	return 0, false
}

// StringAttribute returns a string attribute or ""
func (s *EntityState) StringAttribute(name string) string {
	if s == nil {
		return ""
	}
	if v, ok := s.Attributes[name].(string); ok {
		return v
	}
	return ""
}

// ReadFloat reads a numeric entity. Empty ids, lookup errors and
// non-numeric states all report false.
func ReadFloat(ctx context.Context, r Reader, entityID string) (float64, bool) {
	if entityID == "" {
		return 0, false
	}
	st, err := r.State(ctx, entityID)
	if err != nil {
		return 0, false
	}
	return st.Float()
}

// MaxFloat returns the highest readable value among the entities, 0 when none is readable
func MaxFloat(ctx context.Context, r Reader, entityIDs []string) float64 {
	max := 0.0
	for _, id := range entityIDs {
		if v, ok := ReadFloat(ctx, r, id); ok && v > max {
			max = v
		}
	}
	return max
}

// OpenEntities returns the display names of the entities that are currently open
func OpenEntities(ctx context.Context, r Reader, entityIDs []string) []string {
	var open []string
	for _, id := range entityIDs {
		if id == "" {
			continue
		}
		st, err := r.State(ctx, id)
		if err != nil || !st.IsOpen() {
			continue
		}
		open = append(open, st.DisplayName())
	}
	return open
}

func isUnavailable(state string) bool {
	return state == "" || state == "unknown" || state == "unavailable"
}
