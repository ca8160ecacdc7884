// Package model defines the core data types shared by the push dispatch engine.
package model

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// EndpointStatus is the lifecycle status of an endpoint, channel or group.
type EndpointStatus string

const (
	// StatusActive marks a record that may be dispatched to.
	StatusActive EndpointStatus = "active"
	// StatusInactive marks a record that is disabled.
	StatusInactive EndpointStatus = "inactive"
)

// Delivery tuning bounds and defaults.
const (
	MinTimeoutMs      = 1000
	MaxTimeoutMs      = 120000
	DefaultTimeoutMs  = 8000
	MinRetryCount     = 0
	MaxRetryCount     = 20
	DefaultRetryCount = 3
)

// Endpoint is a named, user-owned push target bound to one channel.
type Endpoint struct {
	ID         string         `json:"id"                   db:"id"`
	UserID     string         `json:"userId"               db:"user_id"`
	Name       string         `json:"name"                 db:"name"`
	Status     EndpointStatus `json:"status"               db:"status"`
	ChannelID  string         `json:"channelId"            db:"channel_id"`
	Rule       string         `json:"rule"                 db:"rule"`
	TimeoutMs  int            `json:"timeoutMs"            db:"timeout_ms"`
	RetryCount int            `json:"retryCount"           db:"retry_count"`
	CreatedAt  time.Time      `json:"createdAt"            db:"created_at"`
	UpdatedAt  *time.Time     `json:"updatedAt,omitempty"  db:"updated_at"`
}

// Validate checks the delivery tuning invariants.
func (e *Endpoint) Validate() error {
	if strings.TrimSpace(e.ID) == "" {
		return errors.New("endpoint id is required")
	}
	if e.TimeoutMs != 0 && (e.TimeoutMs < MinTimeoutMs || e.TimeoutMs > MaxTimeoutMs) {
		return fmt.Errorf("timeoutMs must be between %d and %d", MinTimeoutMs, MaxTimeoutMs)
	}
	if e.RetryCount < MinRetryCount || e.RetryCount > MaxRetryCount {
		return fmt.Errorf("retryCount must be between %d and %d", MinRetryCount, MaxRetryCount)
	}
	return nil
}

// Timeout returns the per-attempt provider timeout, falling back to the default when unset.
func (e *Endpoint) Timeout() time.Duration {
	ms := e.TimeoutMs
	if ms <= 0 {
		ms = DefaultTimeoutMs
	}
	ms = min(max(ms, MinTimeoutMs), MaxTimeoutMs)
	return time.Duration(ms) * time.Millisecond
}

// MaxAttempts returns retryCount+1 with retryCount clamped to its valid range.
func (e *Endpoint) MaxAttempts() int {
	return min(max(e.RetryCount, MinRetryCount), MaxRetryCount) + 1
}

// Active reports whether the endpoint may be dispatched to.
func (e *Endpoint) Active() bool {
	return e.Status == StatusActive
}

// EndpointWithChannel is the denormalized endpoint + channel join cached and consumed by dispatch.
type EndpointWithChannel struct {
	Endpoint
	Channel *Channel `json:"channel"`
}

// Dispatchable reports whether a channel is bound.
func (e *EndpointWithChannel) Dispatchable() bool {
	return e != nil && e.Channel != nil
}
