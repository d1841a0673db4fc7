package router

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

type codedErr struct{ code string }

func (e *codedErr) Error() string { return "coded" }
func (e *codedErr) Code() string  { return e.code }

type StoreDown struct{}

func (StoreDown) Error() string { return "store down" }

func TestHandlerName(t *testing.T) {
	assert.Equal(t, "sell", handlerName("/sell"))
	assert.Equal(t, "browse_items", handlerName("  Browse   Items "))
	assert.Equal(t, "unknown", handlerName(" / "))
}

func TestErrorCode(t *testing.T) {
	wrapped := fmt.Errorf("advance: %w", &codedErr{code: "validation"})
	assert.Equal(t, "VALIDATION", errorCode(wrapped))
	assert.Equal(t, "RATE_LIMITED", errorCode(&codedErr{code: "rate limited"}))
	assert.Equal(t, "INTERNAL", errorCode(&codedErr{}))
	assert.Equal(t, "STOREDOWN", errorCode(StoreDown{}))
	assert.Equal(t, "INTERNAL", errorCode(errors.New("boom")))
}
