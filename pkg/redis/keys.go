package redis

import (
	"fmt"
	"strings"
)

const entityStatePrefix = "state:"

// EntityStateKey returns the key for the latest state of an entity (hash)
// Pattern: state:{entity_id}
func EntityStateKey(entityID string) string {
	return entityStatePrefix + entityID
}

// EntityFromStateKey extracts the entity id from an entity state key
func EntityFromStateKey(key string) (string, bool) {
	if !strings.HasPrefix(key, entityStatePrefix) {
		return "", false
	}
	return key[len(entityStatePrefix):], true
}

// ControllerStateKey returns the key for the persisted settings of a controller (hash)
// Pattern: climate:state:{controller}
func ControllerStateKey(controller string) string {
	return fmt.Sprintf("climate:state:%s", controller)
}
