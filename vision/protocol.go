package vision

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"go.aimuz.me/iris/internal/types"
)

// ErrMalformedRecord is returned for lines that are not tracker records.
var ErrMalformedRecord = errors.New("malformed tracker record")

// RecordKind discriminates tracker output lines.
type RecordKind int

const (
	RecordStatus RecordKind = iota + 1
	RecordSample
	RecordError
)

// Tracker status values.
const (
	StatusStarted     = "started"
	StatusLoading     = "loading"
	StatusCalibrating = "calibrating"
	StatusCalibrated  = "calibrated"
	StatusReady       = "ready"
)

// Record is one decoded line of tracker output.
type Record struct {
	Kind   RecordKind
	Status string
	Sample types.GazeSample
	Error  string
}

// wireRecord is the JSON shape written by the tracker, one object per line:
//
//	{"status":"ready"}
//	{"x":812.5,"y":440.1,"ear":0.27,"seq":1042,"ts":1718000000123}
//	{"error":"camera unavailable"}
type wireRecord struct {
	Status *string  `json:"status"`
	Error  *string  `json:"error"`
	X      *float64 `json:"x"`
	Y      *float64 `json:"y"`
	EAR    *float64 `json:"ear"`
	Blink  *bool    `json:"blink"`
	Seq    uint64   `json:"seq"`
	TS     int64    `json:"ts"` // unix milliseconds
}

// ParseRecord decodes one line of tracker output.
// Samples without a timestamp are stamped with now.
func ParseRecord(line []byte, now time.Time) (Record, error) {
	var w wireRecord
	if err := json.Unmarshal(line, &w); err != nil {
		return Record{}, fmt.Errorf("%w: %v", ErrMalformedRecord, err)
	}

	switch {
	case w.Error != nil:
		return Record{Kind: RecordError, Error: *w.Error}, nil

	case w.Status != nil:
		return Record{Kind: RecordStatus, Status: *w.Status}, nil

	case w.X != nil && w.Y != nil:
		s := types.GazeSample{
			Point:     types.Point{X: *w.X, Y: *w.Y},
			Seq:       w.Seq,
			Timestamp: now,
		}
		if w.TS > 0 {
			s.Timestamp = time.UnixMilli(w.TS)
		}
		switch {
		case w.EAR != nil:
			s.EAR = *w.EAR
		case w.Blink != nil && *w.Blink:
			s.EAR = 0
		default:
			s.EAR = 1
		}
		return Record{Kind: RecordSample, Sample: s}, nil
	}

	return Record{}, fmt.Errorf("%w: no status, error or coordinates", ErrMalformedRecord)
}
