package mock

import (
	"github.com/trailintercasteller/mailrelay"
)

// Compile-time interface check
var _ mailrelay.RateLimiter = (*RateLimiter)(nil)

// RateLimiter is a mock implementation of mailrelay.RateLimiter.
// The zero value admits everything.
type RateLimiter struct {
	AllowFn func(key string) (bool, error)

	// Keys records every composite key presented, in order.
	Keys []string
}

func (r *RateLimiter) Allow(key string) (bool, error) {
	r.Keys = append(r.Keys, key)
	if r.AllowFn != nil {
		return r.AllowFn(key)
	}
	return true, nil
}

// Reset clears recorded keys.
func (r *RateLimiter) Reset() {
	r.Keys = nil
}
