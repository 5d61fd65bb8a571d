package model

import "time"

// CapabilityToken is a signed, time-bounded credential encoding exactly which
// channels its holder may subscribe to.
//
// Invariant: Channels is a subset of the channels derived from the subject's
// actual memberships at issuance time. The token is self-contained — the hub
// verifies the signature and expiry without calling back into this system.
//
// Tokens are never renewed in place. When one expires, a new Issue call is
// required.
type CapabilityToken struct {
	Subject   int64      `json:"subject"`   // Subscriber the token was issued to
	Channels  ChannelSet `json:"channels"`  // Channels the holder may read
	IssuedAt  time.Time  `json:"issuedAt"`  // Issuance time
	ExpiresAt time.Time  `json:"expiresAt"` // Fixed-lifetime expiry
	Signed    string     `json:"signed"`    // Compact signed form (JWT)
}

// Expired reports whether the token is past its expiry at the given time.
func (t CapabilityToken) Expired(now time.Time) bool {
	return now.After(t.ExpiresAt)
}

// Includes reports whether the token scope covers the given channel.
func (t CapabilityToken) Includes(channel string) bool {
	return t.Channels.Contains(channel)
}
