package realtime

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	opuscodec "github.com/jj11hh/opus"
	"github.com/pion/webrtc/v4"
	"github.com/pion/webrtc/v4/pkg/media"
)

const (
	sampleRate    = 48000
	channels      = 2
	frameSamples  = sampleRate / 50 * channels // 20ms of interleaved stereo
	maxOpusPacket = 1275
)

var (
	ErrNotReady = errors.New("realtime client not ready")
	ErrClosed   = errors.New("realtime client closed")
)

// Client is a WebRTC connection to the Realtime transcription API.
type Client struct {
	// ─── Audio path ──────────────────────────────────────────────────────────
	audioMu sync.Mutex
	encoder *opuscodec.Encoder
	track   *webrtc.TrackLocalStaticSample
	pending []float32
	packet  []byte

	// ─── Connection ──────────────────────────────────────────────────────────
	mu     sync.Mutex
	closed bool
	cfg    SessionConfig
	pc     *webrtc.PeerConnection
	events chan Event
	errs   chan error
}

// NewClient creates an unconnected client.
func NewClient(cfg SessionConfig) *Client {
	return &Client{
		cfg:    cfg,
		events: make(chan Event, 100),
		errs:   make(chan error, 1),
		packet: make([]byte, maxOpusPacket),
	}
}

// Connect mints a session token, negotiates the peer connection and
// returns once the remote description is set.
func (c *Client) Connect(ctx context.Context) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrClosed
	}
	c.mu.Unlock()

	token, err := CreateToken(ctx, c.cfg)
	if err != nil {
		return fmt.Errorf("create session: %w", err)
	}
	slog.Info("realtime session created", "expires", token.ExpiresAt)

	mediaEngine := &webrtc.MediaEngine{}
	if err := mediaEngine.RegisterDefaultCodecs(); err != nil {
		return fmt.Errorf("register codecs: %w", err)
	}
	api := webrtc.NewAPI(webrtc.WithMediaEngine(mediaEngine))
	pc, err := api.NewPeerConnection(webrtc.Configuration{
		ICEServers: []webrtc.ICEServer{{URLs: []string{"stun:stun.l.google.com:19302"}}},
	})
	if err != nil {
		return fmt.Errorf("create peer connection: %w", err)
	}

	track, err := webrtc.NewTrackLocalStaticSample(
		webrtc.RTPCodecCapability{MimeType: webrtc.MimeTypeOpus, ClockRate: sampleRate, Channels: channels},
		"audio",
		"iris-mic",
	)
	if err != nil {
		pc.Close()
		return fmt.Errorf("create audio track: %w", err)
	}
	if _, err := pc.AddTrack(track); err != nil {
		pc.Close()
		return fmt.Errorf("add audio track: %w", err)
	}

	encoder, err := opuscodec.NewEncoder(sampleRate, channels, opuscodec.AppRestrictedLowdelay)
	if err != nil {
		pc.Close()
		return fmt.Errorf("create opus encoder: %w", err)
	}

	dc, err := pc.CreateDataChannel("oai-events", nil)
	if err != nil {
		pc.Close()
		return fmt.Errorf("create data channel: %w", err)
	}
	dc.OnOpen(func() { slog.Debug("realtime data channel open") })
	dc.OnMessage(c.handleMessage)

	// incoming audio is unused but must be drained
	pc.OnTrack(func(remote *webrtc.TrackRemote, _ *webrtc.RTPReceiver) {
		go func() {
			buf := make([]byte, 1500)
			for {
				if _, _, err := remote.Read(buf); err != nil {
					return
				}
			}
		}()
	})
	pc.OnICEConnectionStateChange(func(state webrtc.ICEConnectionState) {
		if state == webrtc.ICEConnectionStateFailed || state == webrtc.ICEConnectionStateClosed {
			c.fail(fmt.Errorf("ice connection %s", state))
		}
	})

	c.mu.Lock()
	c.pc = pc
	c.mu.Unlock()

	c.audioMu.Lock()
	c.encoder = encoder
	c.track = track
	c.audioMu.Unlock()

	offer, err := pc.CreateOffer(nil)
	if err != nil {
		return fmt.Errorf("create offer: %w", err)
	}
	if err := pc.SetLocalDescription(offer); err != nil {
		return fmt.Errorf("set local description: %w", err)
	}

	select {
	case <-webrtc.GatheringCompletePromise(pc):
	case <-ctx.Done():
		return ctx.Err()
	}

	answer, err := ExchangeSDP(ctx, c.cfg.CallsURL, pc.LocalDescription().SDP, token.Value)
	if err != nil {
		return fmt.Errorf("exchange sdp: %w", err)
	}
	if err := pc.SetRemoteDescription(webrtc.SessionDescription{Type: webrtc.SDPTypeAnswer, SDP: answer}); err != nil {
		return fmt.Errorf("set remote description: %w", err)
	}
	return nil
}

func (c *Client) handleMessage(msg webrtc.DataChannelMessage) {
	event, err := ParseEvent(msg.Data)
	if err != nil {
		slog.Warn("parse realtime event", "error", err)
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	select {
	case c.events <- event:
	default:
		slog.Warn("realtime event dropped", "type", event.Type())
	}
}

func (c *Client) fail(err error) {
	select {
	case c.errs <- err:
	default:
	}
}

// SendAudio buffers 48kHz stereo interleaved samples and sends every full
// 20ms frame.
func (c *Client) SendAudio(samples []float32) error {
	c.mu.Lock()
	closed := c.closed
	c.mu.Unlock()
	if closed {
		return ErrClosed
	}

	c.audioMu.Lock()
	defer c.audioMu.Unlock()
	if c.track == nil || c.encoder == nil {
		return ErrNotReady
	}

	c.pending = append(c.pending, samples...)
	off := 0
	for len(c.pending)-off >= frameSamples {
		n, err := c.encoder.EncodeFloat32(c.pending[off:off+frameSamples], c.packet)
		if err != nil {
			return fmt.Errorf("opus encode: %w", err)
		}
		off += frameSamples
		if err := c.track.WriteSample(media.Sample{Data: c.packet[:n], Duration: 20 * time.Millisecond}); err != nil {
			return fmt.Errorf("write sample: %w", err)
		}
	}
	c.pending = c.pending[:copy(c.pending, c.pending[off:])]
	return nil
}

// Events delivers parsed server events until Close.
func (c *Client) Events() <-chan Event { return c.events }

// Errors delivers connection failures.
func (c *Client) Errors() <-chan error { return c.errs }

// Close tears down the connection and closes Events.
func (c *Client) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	pc := c.pc
	close(c.events)
	c.mu.Unlock()

	if pc != nil {
		return pc.Close()
	}
	return nil
}
