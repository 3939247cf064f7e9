// Package recording stores the assistant's audio of realtime sessions as
// Ogg Opus files, on local disk or in an S3 bucket.
package recording

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"

	"github.com/pion/rtp"
	"github.com/pion/webrtc/v3/pkg/media/oggwriter"

	"github.com/haivivi/giztalk/pkg/realtime"
)

const (
	sampleRate = 48000
	channels   = 2
	extension  = ".ogg"
)

// ErrInvalidName is returned for recording names that are empty or contain
// path elements.
var ErrInvalidName = errors.New("recording: invalid name")

// Store keeps recordings by name. Names are flat; a store never creates
// nested paths. Implementations must be safe for concurrent use.
type Store interface {
	// Create starts a new recording, replacing one with the same name. The
	// caller must close the writer to finish it.
	Create(ctx context.Context, name string) (io.WriteCloser, error)

	// Open reads a finished recording. A missing recording yields an error
	// wrapping fs.ErrNotExist.
	Open(ctx context.Context, name string) (io.ReadCloser, error)

	// Remove deletes a recording. Removing a missing one is not an error.
	Remove(ctx context.Context, name string) error

	// Exists reports whether the recording exists.
	Exists(ctx context.Context, name string) (bool, error)
}

// FileName is the name a session's recording is stored under.
func FileName(sessionID string) string {
	return sessionID + extension
}

func checkName(name string) error {
	if name == "" || name == "." || name == ".." || strings.ContainsAny(name, `/\`) {
		return fmt.Errorf("%w: %q", ErrInvalidName, name)
	}
	return nil
}

// Sink records each session's assistant audio into Store.
type Sink struct {
	Store  Store
	Logger *slog.Logger
}

var _ realtime.PlaybackSink = (*Sink)(nil)

// Open starts the recording for sessionID.
func (s *Sink) Open(ctx context.Context, sessionID string) (realtime.Playback, error) {
	name := FileName(sessionID)
	if err := checkName(name); err != nil {
		return nil, err
	}
	w, err := s.Store.Create(ctx, name)
	if err != nil {
		return nil, fmt.Errorf("recording: create %s: %w", name, err)
	}
	ogg, err := oggwriter.NewWith(w, sampleRate, channels)
	if err != nil {
		w.Close()
		return nil, fmt.Errorf("recording: ogg header: %w", err)
	}
	logger := s.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Recorder{name: name, ogg: ogg, logger: logger.With("recording", name)}, nil
}

// Recorder writes one session's remote audio track to an Ogg file.
type Recorder struct {
	name   string
	logger *slog.Logger

	mu      sync.Mutex
	ogg     *oggwriter.OggWriter
	closed  bool
	packets int
	bytes   int
}

// Name returns the recording's name in the store.
func (r *Recorder) Name() string {
	return r.name
}

// Consume writes packets until read fails or the recorder is closed.
func (r *Recorder) Consume(read func() (*rtp.Packet, error)) {
	for {
		pkt, err := read()
		if err != nil {
			r.logger.Debug("remote audio ended", "error", err)
			return
		}
		r.mu.Lock()
		if r.closed {
			r.mu.Unlock()
			return
		}
		err = r.ogg.WriteRTP(pkt)
		if err == nil {
			r.packets++
			r.bytes += len(pkt.Payload)
		}
		r.mu.Unlock()
		if err != nil {
			r.logger.Warn("write audio failed", "error", err)
			return
		}
	}
}

// Stats returns how many packets and payload bytes were recorded.
func (r *Recorder) Stats() (packets, bytes int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.packets, r.bytes
}

// Close finishes the recording. Later calls return nil.
func (r *Recorder) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return nil
	}
	r.closed = true
	if err := r.ogg.Close(); err != nil {
		return fmt.Errorf("recording: close %s: %w", r.name, err)
	}
	r.logger.Info("recording saved", "packets", r.packets, "bytes", r.bytes)
	return nil
}

// Closed reports whether Close has been called.
func (r *Recorder) Closed() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.closed
}

// Discard is a PlaybackSink that reads and drops the assistant's audio.
type Discard struct{}

// Open returns a playback that drains the remote track.
func (Discard) Open(context.Context, string) (realtime.Playback, error) {
	return &discardPlayback{}, nil
}

type discardPlayback struct {
	mu     sync.Mutex
	closed bool
}

func (p *discardPlayback) Consume(read func() (*rtp.Packet, error)) {
	for {
		if _, err := read(); err != nil || p.Closed() {
			return
		}
	}
}

func (p *discardPlayback) Close() error {
	p.mu.Lock()
	p.closed = true
	p.mu.Unlock()
	return nil
}

func (p *discardPlayback) Closed() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.closed
}
