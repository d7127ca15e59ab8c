package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestRegisterIdempotent(t *testing.T) {
	assert.NotPanics(t, func() {
		Register()
		Register()
	})
}

func TestCounters(t *testing.T) {
	Register()

	before := testutil.ToFloat64(chatMessages.WithLabelValues("telegram"))
	IncChatMessage("telegram")
	assert.Equal(t, before+1, testutil.ToFloat64(chatMessages.WithLabelValues("telegram")))

	before = testutil.ToFloat64(functionCalls.WithLabelValues("create_booking", "success"))
	IncFunctionCall("create_booking", "success")
	assert.Equal(t, before+1, testutil.ToFloat64(functionCalls.WithLabelValues("create_booking", "success")))

	before = testutil.ToFloat64(bookingConflicts)
	IncConflict()
	assert.Equal(t, before+1, testutil.ToFloat64(bookingConflicts))

	before = testutil.ToFloat64(llmRequests.WithLabelValues("gemini", "success"))
	ObserveLLMRequest("gemini", "success", 500*time.Millisecond)
	assert.Equal(t, before+1, testutil.ToFloat64(llmRequests.WithLabelValues("gemini", "success")))

	assert.NotPanics(t, func() {
		IncBooking("confirmed")
		IncHTTP("/api/v1/chat")
	})
}
