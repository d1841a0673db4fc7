package middleware

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestSeenUpdatesDedupesWithinTTL(t *testing.T) {
	s := &seenUpdates{ttl: time.Second, at: make(map[int]time.Time)}
	now := time.Unix(1000, 0)

	assert.True(t, s.first(7, now))
	assert.False(t, s.first(7, now.Add(500*time.Millisecond)))
	assert.True(t, s.first(8, now))
	assert.True(t, s.first(7, now.Add(2*time.Second)))
	assert.Len(t, s.at, 1)
}
