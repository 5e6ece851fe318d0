package redis

import "fmt"

// Key construction helpers for anticipation state

// StateKey returns the key holding the latest saved state blob (string)
// Pattern: anticipation:state:{user}
func StateKey(userID string) string {
	return fmt.Sprintf("anticipation:state:%s", userID)
}

// CheckpointsKey returns the key of the capped list of previous state blobs (list, newest first)
// Pattern: anticipation:checkpoints:{user}
func CheckpointsKey(userID string) string {
	return fmt.Sprintf("anticipation:checkpoints:%s", userID)
}
