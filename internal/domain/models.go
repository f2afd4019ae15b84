// Package domain holds the core types shared across the allocator modules.
// It has no infrastructure dependencies.
package domain

import "time"

// Direction is the directional call carried by a forecast.
type Direction string

const (
	DirectionUp   Direction = "up"
	DirectionDown Direction = "down"
	DirectionFlat Direction = "flat"
)

// Sign returns the link-matrix sign for the direction (+1 up, -1 down, 0 flat).
func (d Direction) Sign() float64 {
	switch d {
	case DirectionUp:
		return 1.0
	case DirectionDown:
		return -1.0
	default:
		return 0.0
	}
}

// Forecast is a single directional return forecast from an upstream source.
// Batches arriving at the engine are already filtered to active forecasts and
// deduplicated to the most recent forecast per (source, symbol) pair.
//
// Magnitude is a pointer on purpose: an absent magnitude is a configuration
// error that must be surfaced, never silently treated as zero.
type Forecast struct {
	Symbol      string    `json:"symbol"`
	Source      string    `json:"source"`
	Direction   Direction `json:"direction"`
	Magnitude   *float64  `json:"magnitude,omitempty"`
	GeneratedAt time.Time `json:"generated_at"`
	ExpiresAt   time.Time `json:"expires_at"`
}

// Target is a percentage-of-portfolio target weight for one asset.
// Weight 0 is an explicit flatten instruction for assets leaving the universe.
type Target struct {
	Symbol string  `json:"symbol"`
	Weight float64 `json:"weight"`
}
