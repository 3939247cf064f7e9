package realtime

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/pion/rtp"
	"github.com/pion/webrtc/v3"

	openairealtime "github.com/haivivi/giztalk/pkg/openai-realtime"
)

// TrackSource is implemented by captures that feed a WebRTC track.
type TrackSource interface {
	LocalTrack() webrtc.TrackLocal
}

// AudioConsumer is implemented by playbacks that take the remote audio
// track. Consume runs on its own goroutine until read fails.
type AudioConsumer interface {
	Consume(read func() (*rtp.Packet, error))
}

// WebRTCDialer dials the provider over pion WebRTC.
type WebRTCDialer struct {
	HTTPURL    string
	HTTPClient *http.Client
	ICEServers []string
	Logger     *slog.Logger
}

// Dial connects one session. Control channel messages are decoded and
// emitted as Events; undecodable messages become MalformedMessage.
func (d *WebRTCDialer) Dial(ctx context.Context, req DialRequest) (Transport, error) {
	logger := d.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("session_id", req.SessionID)

	var track webrtc.TrackLocal
	if ts, ok := req.Capture.(TrackSource); ok {
		track = ts.LocalTrack()
	}
	consumer, _ := req.Playback.(AudioConsumer)

	conn, err := openairealtime.Dial(ctx, req.Secret, openairealtime.DialConfig{
		HTTPURL:    d.HTTPURL,
		HTTPClient: d.HTTPClient,
		ICEServers: d.ICEServers,
		LocalTrack: track,
		Logger:     logger,
		OnOpen: func() {
			req.Emit(ChannelOpened{})
		},
		OnMessage: func(data []byte) {
			ev, err := Decode(data)
			if err != nil {
				req.Emit(MalformedMessage{Err: err})
				return
			}
			req.Emit(ev)
		},
		OnClose: func() {
			req.Emit(ChannelClosed{})
		},
		OnError: func(err error) {
			req.Emit(ChannelFailed{Err: err})
		},
		OnConnectionState: func(state webrtc.PeerConnectionState) {
			req.Emit(TransportChanged{State: transportState(state)})
		},
		OnTrack: func(remote *webrtc.TrackRemote) {
			read := func() (*rtp.Packet, error) {
				pkt, _, err := remote.ReadRTP()
				return pkt, err
			}
			if consumer != nil {
				go consumer.Consume(read)
				return
			}
			// Nobody plays it; keep reading so the receiver does not stall.
			go func() {
				for {
					if _, err := read(); err != nil {
						return
					}
				}
			}()
		},
	})
	if err != nil {
		return nil, err
	}
	return conn, nil
}

func transportState(s webrtc.PeerConnectionState) TransportState {
	switch s {
	case webrtc.PeerConnectionStateConnecting:
		return TransportConnecting
	case webrtc.PeerConnectionStateConnected:
		return TransportConnected
	case webrtc.PeerConnectionStateDisconnected:
		return TransportDisconnected
	case webrtc.PeerConnectionStateFailed:
		return TransportFailed
	case webrtc.PeerConnectionStateClosed:
		return TransportClosed
	default:
		return TransportNew
	}
}
