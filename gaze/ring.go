package gaze

import "time"

// movementCapacity is the number of recent movements kept for inspection.
const movementCapacity = 10

// Movement is one sample's displacement from the previous accepted sample.
type Movement struct {
	At           time.Time `json:"at"`
	Displacement float64   `json:"displacement"`
}

// movementRing is a fixed-capacity circular buffer of movements.
// It is not safe for concurrent use; the owner serialises access.
type movementRing struct {
	buf  [movementCapacity]Movement
	pos  int // next write position
	full bool
}

func (r *movementRing) push(m Movement) {
	r.buf[r.pos] = m
	r.pos = (r.pos + 1) % movementCapacity
	if r.pos == 0 {
		r.full = true
	}
}

// all returns the buffered movements in chronological order.
func (r *movementRing) all() []Movement {
	if !r.full {
		out := make([]Movement, r.pos)
		copy(out, r.buf[:r.pos])
		return out
	}

	out := make([]Movement, movementCapacity)
	n := copy(out, r.buf[r.pos:])
	copy(out[n:], r.buf[:r.pos])
	return out
}
