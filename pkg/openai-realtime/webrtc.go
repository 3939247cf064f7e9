package openairealtime

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"sync"

	"github.com/pion/webrtc/v3"
)

// EventsChannelLabel is the data channel label the API expects.
const EventsChannelLabel = "oai-events"

// DialConfig configures a WebRTC connection.
type DialConfig struct {
	// HTTPURL defaults to DefaultHTTPURL.
	HTTPURL string

	// HTTPClient defaults to http.DefaultClient.
	HTTPClient *http.Client

	// ICEServers defaults to a public STUN server.
	ICEServers []string

	// LocalTrack is the outbound microphone track. When nil the audio
	// transceiver is receive-only.
	LocalTrack webrtc.TrackLocal

	// OnOpen is called when the events channel opens.
	OnOpen func()

	// OnMessage is called for every message on the events channel.
	OnMessage func(data []byte)

	// OnClose is called when the events channel closes.
	OnClose func()

	// OnError is called when the events channel reports an error.
	OnError func(err error)

	// OnConnectionState is called on every peer connection state change.
	OnConnectionState func(state webrtc.PeerConnectionState)

	// OnTrack is called when the remote audio track arrives.
	OnTrack func(track *webrtc.TrackRemote)

	// Logger defaults to slog.Default().
	Logger *slog.Logger
}

// Conn is a WebRTC connection to the Realtime API.
type Conn struct {
	pc     *webrtc.PeerConnection
	dc     *webrtc.DataChannel
	logger *slog.Logger

	dcOnce  sync.Once
	pcOnce  sync.Once
	closeMu sync.Mutex
}

// Dial establishes a WebRTC connection authorized by a client secret.
//
// Dial returns once the SDP answer is applied. The events channel opens
// asynchronously; wait for OnOpen before sending.
func Dial(ctx context.Context, secret string, config DialConfig) (*Conn, error) {
	if secret == "" {
		return nil, fmt.Errorf("openai-realtime: client secret is required")
	}
	if config.HTTPURL == "" {
		config.HTTPURL = DefaultHTTPURL
	}
	if config.HTTPClient == nil {
		config.HTTPClient = http.DefaultClient
	}
	if len(config.ICEServers) == 0 {
		config.ICEServers = []string{"stun:stun.l.google.com:19302"}
	}
	logger := config.Logger
	if logger == nil {
		logger = slog.Default()
	}

	pc, err := webrtc.NewPeerConnection(webrtc.Configuration{
		ICEServers: []webrtc.ICEServer{{URLs: config.ICEServers}},
	})
	if err != nil {
		return nil, fmt.Errorf("create peer connection: %w", err)
	}
	conn := &Conn{pc: pc, logger: logger}

	if config.LocalTrack != nil {
		sender, err := pc.AddTrack(config.LocalTrack)
		if err != nil {
			pc.Close()
			return nil, fmt.Errorf("add local track: %w", err)
		}
		go drainRTCP(sender)
	} else {
		_, err = pc.AddTransceiverFromKind(webrtc.RTPCodecTypeAudio, webrtc.RTPTransceiverInit{
			Direction: webrtc.RTPTransceiverDirectionRecvonly,
		})
		if err != nil {
			pc.Close()
			return nil, fmt.Errorf("add audio transceiver: %w", err)
		}
	}

	dc, err := pc.CreateDataChannel(EventsChannelLabel, nil)
	if err != nil {
		pc.Close()
		return nil, fmt.Errorf("create data channel: %w", err)
	}
	conn.dc = dc

	dc.OnOpen(func() {
		logger.Debug("data channel opened")
		if config.OnOpen != nil {
			config.OnOpen()
		}
	})
	dc.OnMessage(func(msg webrtc.DataChannelMessage) {
		if !msg.IsString {
			return
		}
		if logger.Enabled(context.Background(), slog.LevelDebug) {
			s := string(msg.Data)
			if len(s) > 1000 {
				s = s[:1000] + "..."
			}
			logger.Debug("received message", "len", len(msg.Data), "content", s)
		}
		if config.OnMessage != nil {
			config.OnMessage(msg.Data)
		}
	})
	dc.OnClose(func() {
		logger.Debug("data channel closed")
		if config.OnClose != nil {
			config.OnClose()
		}
	})
	dc.OnError(func(err error) {
		logger.Warn("data channel error", "error", err)
		if config.OnError != nil {
			config.OnError(err)
		}
	})

	pc.OnConnectionStateChange(func(state webrtc.PeerConnectionState) {
		logger.Debug("peer connection state", "state", state.String())
		if config.OnConnectionState != nil {
			config.OnConnectionState(state)
		}
	})
	pc.OnTrack(func(track *webrtc.TrackRemote, receiver *webrtc.RTPReceiver) {
		logger.Debug("received remote track", "kind", track.Kind(), "codec", track.Codec().MimeType)
		if track.Kind() == webrtc.RTPCodecTypeAudio && config.OnTrack != nil {
			config.OnTrack(track)
		}
	})

	offer, err := pc.CreateOffer(nil)
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("create offer: %w", err)
	}
	if err := pc.SetLocalDescription(offer); err != nil {
		conn.Close()
		return nil, fmt.Errorf("set local description: %w", err)
	}

	select {
	case <-webrtc.GatheringCompletePromise(pc):
	case <-ctx.Done():
		conn.Close()
		return nil, ctx.Err()
	}

	answer, err := exchangeSDP(ctx, config.HTTPClient, config.HTTPURL, secret, pc.LocalDescription().SDP)
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("exchange sdp: %w", err)
	}
	err = pc.SetRemoteDescription(webrtc.SessionDescription{
		Type: webrtc.SDPTypeAnswer,
		SDP:  answer,
	})
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("set remote description: %w", err)
	}

	return conn, nil
}

// drainRTCP reads incoming RTCP so interceptors keep working.
func drainRTCP(sender *webrtc.RTPSender) {
	buf := make([]byte, 1500)
	for {
		if _, _, err := sender.Read(buf); err != nil {
			return
		}
	}
}

// ChannelOpen reports whether the events channel is open.
func (c *Conn) ChannelOpen() bool {
	return c.dc != nil && c.dc.ReadyState() == webrtc.DataChannelStateOpen
}

// Send marshals event as JSON and sends it on the events channel.
func (c *Conn) Send(event any) error {
	data, err := json.Marshal(event)
	if err != nil {
		return err
	}
	return c.SendRaw(data)
}

// SendRaw sends a pre-encoded JSON event.
func (c *Conn) SendRaw(data []byte) error {
	if !c.ChannelOpen() {
		return ErrChannelNotReady
	}
	if c.logger.Enabled(context.Background(), slog.LevelDebug) {
		s := string(data)
		if len(s) > 500 {
			s = s[:500] + "..."
		}
		c.logger.Debug("sending event", "content", s)
	}
	return c.dc.SendText(string(data))
}

// CloseChannel closes the events channel. Safe to call more than once.
func (c *Conn) CloseChannel() error {
	var err error
	c.dcOnce.Do(func() {
		if c.dc != nil {
			err = c.dc.Close()
		}
	})
	return err
}

// Close closes the events channel and the peer connection. Safe to call
// more than once.
func (c *Conn) Close() error {
	c.closeMu.Lock()
	defer c.closeMu.Unlock()
	dcErr := c.CloseChannel()
	var err error
	c.pcOnce.Do(func() {
		err = c.pc.Close()
	})
	if err != nil {
		return err
	}
	return dcErr
}

// PeerConnection returns the underlying WebRTC peer connection.
func (c *Conn) PeerConnection() *webrtc.PeerConnection {
	return c.pc
}
