package parse

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"apptchat/internal/models"
)

var now = time.Date(2026, 9, 9, 15, 0, 0, 0, time.UTC)

func TestDate(t *testing.T) {
	tests := []struct {
		in   string
		want string
		ok   bool
	}{
		{"today", "2026-09-09", true},
		{"tomorrow", "2026-09-10", true},
		{"day after tomorrow", "2026-09-11", true},
		{"өнөөдөр", "2026-09-09", true},
		{"маргааш 10 цагт", "2026-09-10", true},
		{"нөгөөдөр", "2026-09-11", true},
		{"2026-09-15", "2026-09-15", true},
		{"on 2026-09-15 please", "2026-09-15", true},
		{"2026-13-40", "", false},
		{"next week", "", false},
		{"", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, ok := Date(tt.in, now)
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestTime(t *testing.T) {
	tests := []struct {
		in   string
		want string
		ok   bool
	}{
		{"10:00", "10:00", true},
		{"at 9:30", "09:30", true},
		{"14:05", "14:05", true},
		{"3pm", "15:00", true},
		{"at 10 AM", "10:00", true},
		{"25:00", "", false},
		{"10:75", "", false},
		{"sometime", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, ok := Time(tt.in)
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestPhone(t *testing.T) {
	got, ok := Phone("my number is 99112233")
	require.True(t, ok)
	assert.Equal(t, "99112233", got)

	got, ok = Phone("call +97699112233 tomorrow")
	require.True(t, ok)
	assert.Equal(t, "+97699112233", got)

	_, ok = Phone("no digits here")
	assert.False(t, ok)
}

func TestService(t *testing.T) {
	services := []models.Service{
		{Name: "haircut", Label: "Үс засуулах"},
		{Name: "manicure", Label: "Маникюр"},
	}

	got, ok := Service("I want a Haircut at 10", services)
	require.True(t, ok)
	assert.Equal(t, "haircut", got)

	got, ok = Service("маникюр хийлгэмээр байна", services)
	require.True(t, ok)
	assert.Equal(t, "manicure", got)

	_, ok = Service("just chatting", services)
	assert.False(t, ok)
}

func TestMinutesOfDay(t *testing.T) {
	min, err := MinutesOfDay("10:30")
	require.NoError(t, err)
	assert.Equal(t, 630, min)

	_, err = MinutesOfDay("bad")
	assert.Error(t, err)
}

func TestClockFromMinutes(t *testing.T) {
	assert.Equal(t, "10:30", ClockFromMinutes(630))
	assert.Equal(t, "09:00", ClockFromMinutes(540))
	assert.Equal(t, "00:00", ClockFromMinutes(0))
}
