package model

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestNewReadCursor(t *testing.T) {
	beforeCreate := time.Now()
	c := NewReadCursor(42, 7)

	assert.Equal(t, int64(42), c.SubscriberID)
	assert.Equal(t, int64(7), c.RoomID)
	assert.Equal(t, int64(0), c.LastReadSeq)
	assert.WithinDuration(t, beforeCreate, c.LastHeartbeatAt, 1*time.Second)
	assert.WithinDuration(t, beforeCreate, c.CreatedAt, 1*time.Second)
}

func TestReadCursor_Advance(t *testing.T) {
	c := NewReadCursor(42, 7)

	c.Advance(10)
	assert.Equal(t, int64(10), c.LastReadSeq)

	// Monotonic: stale ack never moves the watermark back
	c.Advance(5)
	assert.Equal(t, int64(10), c.LastReadSeq)

	// Duplicate ack is a no-op
	c.Advance(10)
	assert.Equal(t, int64(10), c.LastReadSeq)

	c.Advance(11)
	assert.Equal(t, int64(11), c.LastReadSeq)
}

func TestReadCursor_PresentWithin(t *testing.T) {
	now := time.Now()
	grace := 45 * time.Second

	tests := []struct {
		name          string
		lastHeartbeat time.Time
		expected      bool
	}{
		{
			name:          "Heartbeat just now",
			lastHeartbeat: now,
			expected:      true,
		},
		{
			name:          "Heartbeat inside grace window",
			lastHeartbeat: now.Add(-30 * time.Second),
			expected:      true,
		},
		{
			name:          "Heartbeat exactly at grace boundary",
			lastHeartbeat: now.Add(-grace),
			expected:      true,
		},
		{
			name:          "Heartbeat past grace window",
			lastHeartbeat: now.Add(-grace - time.Second),
			expected:      false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := NewReadCursor(42, 7)
			c.LastHeartbeatAt = tt.lastHeartbeat
			assert.Equal(t, tt.expected, c.PresentWithin(grace, now))
		})
	}
}

func TestReadCursor_Beat(t *testing.T) {
	c := NewReadCursor(42, 7)
	later := time.Now().Add(time.Minute)

	c.Beat(later)

	assert.Equal(t, later, c.LastHeartbeatAt)
	assert.Equal(t, later, c.UpdatedAt)
}
