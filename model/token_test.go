package model

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestCapabilityToken_Expired(t *testing.T) {
	now := time.Now()
	token := CapabilityToken{
		Subject:   42,
		IssuedAt:  now,
		ExpiresAt: now.Add(6 * time.Hour),
	}

	assert.False(t, token.Expired(now))
	assert.False(t, token.Expired(now.Add(6*time.Hour)))
	assert.True(t, token.Expired(now.Add(6*time.Hour+time.Second)))
}

func TestCapabilityToken_Includes(t *testing.T) {
	token := CapabilityToken{
		Subject:  42,
		Channels: ChannelSet{"inbox.42", "room.1", "room.2"},
	}

	assert.True(t, token.Includes("room.1"))
	assert.True(t, token.Includes("inbox.42"))
	assert.False(t, token.Includes("room.3"))
	assert.False(t, token.Includes("inbox.43"))
}
