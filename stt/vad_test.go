package stt

import (
	"math"
	"testing"
	"time"
)

func makeSilence(n int) []float32 { return make([]float32, n) }

func makeSpeech(n int, amplitude float32) []float32 {
	out := make([]float32, n)
	for i := range out {
		out[i] = amplitude * float32(math.Sin(float64(i)*0.1))
	}
	return out
}

func newTestVAD() *VAD {
	return NewVAD(
		0.02,                 // threshold
		300*time.Millisecond, // minSpeech
		5*time.Second,        // maxSpeech
		400*time.Millisecond, // silence
		300*time.Millisecond, // delay
	)
}

func TestVAD_SpeechDetection(t *testing.T) {
	tests := []struct {
		name         string
		samples      []float32
		wantEvent    SpeechEvent
		wantInSpeech bool
	}{
		{"silence", makeSilence(1000), EventNone, false},
		{"speech start", makeSpeech(1000, 0.05), EventSpeechStart, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v := newTestVAD()
			result := v.Process(tt.samples, time.Unix(0, 0))
			if result.Event != tt.wantEvent {
				t.Errorf("Event = %v, want %v", result.Event, tt.wantEvent)
			}
			if result.ShouldTranscribe {
				t.Error("ShouldTranscribe = true on first chunk")
			}
			if v.InSpeech() != tt.wantInSpeech {
				t.Errorf("InSpeech() = %v, want %v", v.InSpeech(), tt.wantInSpeech)
			}
		})
	}
}

func TestVAD_SpeechSequence(t *testing.T) {
	v := newTestVAD()
	base := time.Unix(0, 0)

	sequence := []struct {
		name           string
		samples        []float32
		at             time.Duration
		wantEvent      SpeechEvent
		wantTranscribe bool
	}{
		{"silence", makeSilence(1000), 0, EventNone, false},
		{"speech starts", makeSpeech(1000, 0.05), 100 * time.Millisecond, EventSpeechStart, false},
		{"speech continues", makeSpeech(1000, 0.05), 500 * time.Millisecond, EventSpeechContinue, false},
		{"short pause", makeSilence(1000), 700 * time.Millisecond, EventNone, false},
		{"pause long enough", makeSilence(1000), time.Second, EventSpeechEnd, true},
		{"silence after end", makeSilence(1000), 1200 * time.Millisecond, EventNone, false},
	}

	for _, step := range sequence {
		r := v.Process(step.samples, base.Add(step.at))
		if r.Event != step.wantEvent || r.ShouldTranscribe != step.wantTranscribe {
			t.Errorf("%s: got (%v, %v), want (%v, %v)", step.name, r.Event, r.ShouldTranscribe, step.wantEvent, step.wantTranscribe)
		}
	}
}

func TestVAD_MaxDuration(t *testing.T) {
	v := newTestVAD()
	base := time.Unix(0, 0)

	v.Process(makeSpeech(1000, 0.05), base)
	r := v.Process(makeSpeech(1000, 0.05), base.Add(5100*time.Millisecond))
	if r.Event != EventSpeechMaxDuration || !r.ShouldTranscribe {
		t.Errorf("got (%v, %v), want max-duration trigger", r.Event, r.ShouldTranscribe)
	}
	if !v.InSpeech() {
		t.Error("long speech should stay in speech")
	}
}

func TestCalculateRMS(t *testing.T) {
	if got := calculateRMS(nil); got != 0 {
		t.Errorf("calculateRMS(nil) = %v", got)
	}
	if got := calculateRMS([]float32{0.5, -0.5}); math.Abs(float64(got)-0.5) > 1e-6 {
		t.Errorf("calculateRMS = %v, want 0.5", got)
	}
}
