package telegram

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	coreconfig "github.com/m3rciful/marketbot/core/config"
)

func TestSenderOptions(t *testing.T) {
	opts := SenderOptions(coreconfig.SenderConfig{Workers: 2, QueueSize: 8, MaxRetries: 3, RetryBackoffMS: 250})
	assert.Equal(t, 2, opts.Workers)
	assert.Equal(t, 8, opts.QueueSize)
	assert.Equal(t, 3, opts.MaxRetries)
	assert.Equal(t, 250*time.Millisecond, opts.RetryBackoff)

	assert.Zero(t, SenderOptions(coreconfig.SenderConfig{MaxRetries: -1}).MaxRetries)
}
