package stt

import (
	"math"
	"time"
)

// VAD is an energy-based voice activity detector. It decides when buffered
// audio is worth sending to a batch transcriber.
type VAD struct {
	threshold float32 // RMS threshold for speech

	minSpeechDur    time.Duration // speech shorter than this never triggers
	maxSpeechDur    time.Duration // long speech triggers periodically
	silenceDur      time.Duration // silence that ends a speech segment
	transcribeDelay time.Duration // minimum gap between triggers

	inSpeech       bool
	speechStart    time.Time
	lastSpeech     time.Time
	lastTranscribe time.Time
}

// NewVAD creates a voice activity detector.
func NewVAD(threshold float32, minSpeech, maxSpeech, silence, delay time.Duration) *VAD {
	return &VAD{
		threshold:       threshold,
		minSpeechDur:    minSpeech,
		maxSpeechDur:    maxSpeech,
		silenceDur:      silence,
		transcribeDelay: delay,
	}
}

// SpeechEvent is what a chunk of audio did to the detector.
type SpeechEvent int

const (
	EventNone SpeechEvent = iota
	EventSpeechStart
	EventSpeechContinue
	EventSpeechEnd
	EventSpeechMaxDuration
)

// VADResult contains the result of processing audio samples.
type VADResult struct {
	Event            SpeechEvent
	Speech           bool // the chunk itself was above threshold
	ShouldTranscribe bool
}

// Process classifies one chunk of audio observed at now.
func (v *VAD) Process(samples []float32, now time.Time) VADResult {
	isSpeech := calculateRMS(samples) > v.threshold
	result := VADResult{Speech: isSpeech}

	if isSpeech {
		if !v.inSpeech {
			v.inSpeech = true
			v.speechStart = now
			result.Event = EventSpeechStart
		} else {
			result.Event = EventSpeechContinue
		}
		v.lastSpeech = now
	}

	if !v.inSpeech {
		return result
	}

	speechDuration := now.Sub(v.speechStart)
	silenceDuration := now.Sub(v.lastSpeech)

	var trigger SpeechEvent
	switch {
	case silenceDuration > v.silenceDur && speechDuration > v.minSpeechDur:
		trigger = EventSpeechEnd
		v.inSpeech = false
	case speechDuration > v.maxSpeechDur:
		// stays in speech for continuous long input
		trigger = EventSpeechMaxDuration
	default:
		return result
	}

	if now.Sub(v.lastTranscribe) < v.transcribeDelay {
		return result
	}
	v.lastTranscribe = now
	result.Event = trigger
	result.ShouldTranscribe = true
	return result
}

// Reset clears the detector state.
func (v *VAD) Reset() {
	v.inSpeech = false
	v.speechStart = time.Time{}
	v.lastSpeech = time.Time{}
	v.lastTranscribe = time.Time{}
}

// InSpeech returns true if currently in a speech segment.
func (v *VAD) InSpeech() bool {
	return v.inSpeech
}

// calculateRMS calculates the root mean square of audio samples.
func calculateRMS(samples []float32) float32 {
	if len(samples) == 0 {
		return 0
	}

	var sum float64
	for _, s := range samples {
		sum += float64(s) * float64(s)
	}
	return float32(math.Sqrt(sum / float64(len(samples))))
}
