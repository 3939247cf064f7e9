// Package capture provides local audio inputs for realtime sessions.
package capture

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/pion/webrtc/v3"
	"github.com/pion/webrtc/v3/pkg/media"
	"github.com/pion/webrtc/v3/pkg/media/oggreader"

	"github.com/haivivi/giztalk/pkg/realtime"
)

const (
	pageInterval = 20 * time.Millisecond
	sampleRate   = 48000
)

var opusTags = []byte("OpusTags")

// OggSource captures audio from an Ogg Opus file, paced in real time. It
// stands in for a microphone on hosts without one.
type OggSource struct {
	Path string

	// Loop restarts the file when it ends.
	Loop bool

	Logger *slog.Logger
}

// Acquire opens the file and returns a capture whose track starts sending
// once the peer connection binds it.
func (s *OggSource) Acquire(ctx context.Context) (realtime.Capture, error) {
	f, err := os.Open(s.Path)
	if err != nil {
		return nil, fmt.Errorf("capture: %w", err)
	}
	reader, _, err := oggreader.NewWith(f)
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("capture: %s: %w", s.Path, err)
	}
	sample, err := webrtc.NewTrackLocalStaticSample(
		webrtc.RTPCodecCapability{MimeType: webrtc.MimeTypeOpus, ClockRate: sampleRate, Channels: 2},
		"audio", "giztalk",
	)
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("capture: create track: %w", err)
	}
	logger := s.Logger
	if logger == nil {
		logger = slog.Default()
	}
	track := &boundTrack{TrackLocalStaticSample: sample, bound: make(chan struct{})}
	c := newOggCapture(f, reader, track, track.bound, s.Loop, logger.With("capture", s.Path))
	c.track = track
	return c, nil
}

// boundTrack reports the first Bind so the pump does not write into a track
// nobody reads yet.
type boundTrack struct {
	*webrtc.TrackLocalStaticSample
	once  sync.Once
	bound chan struct{}
}

func (t *boundTrack) Bind(ctx webrtc.TrackLocalContext) (webrtc.RTPCodecParameters, error) {
	params, err := t.TrackLocalStaticSample.Bind(ctx)
	if err == nil {
		t.once.Do(func() { close(t.bound) })
	}
	return params, err
}

type sampleWriter interface {
	WriteSample(media.Sample) error
}

// OggCapture is an acquired Ogg file input.
type OggCapture struct {
	track  webrtc.TrackLocal
	file   *os.File
	loop   bool
	logger *slog.Logger

	stop     chan struct{}
	done     chan struct{}
	stopOnce sync.Once
}

func newOggCapture(f *os.File, r *oggreader.OggReader, w sampleWriter, bound <-chan struct{}, loop bool, logger *slog.Logger) *OggCapture {
	c := &OggCapture{
		file:   f,
		loop:   loop,
		logger: logger,
		stop:   make(chan struct{}),
		done:   make(chan struct{}),
	}
	go c.pump(r, w, bound)
	return c
}

// LocalTrack returns the outgoing Opus track.
func (c *OggCapture) LocalTrack() webrtc.TrackLocal {
	return c.track
}

// Done is closed when the pump has stopped.
func (c *OggCapture) Done() <-chan struct{} {
	return c.done
}

// Stop ends the capture and closes the file. It is safe to call more than
// once.
func (c *OggCapture) Stop() error {
	var err error
	c.stopOnce.Do(func() {
		close(c.stop)
		<-c.done
		err = c.file.Close()
	})
	return err
}

func (c *OggCapture) pump(r *oggreader.OggReader, w sampleWriter, bound <-chan struct{}) {
	defer close(c.done)

	select {
	case <-bound:
	case <-c.stop:
		return
	}

	ticker := time.NewTicker(pageInterval)
	defer ticker.Stop()

	var lastGranule uint64
	for {
		select {
		case <-c.stop:
			return
		case <-ticker.C:
		}

		page, header, err := r.ParseNextPage()
		if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
			if !c.loop {
				c.logger.Info("capture finished")
				return
			}
			if r, err = c.rewind(); err != nil {
				c.logger.Error("capture rewind failed", "error", err)
				return
			}
			lastGranule = 0
			continue
		}
		if err != nil {
			c.logger.Error("capture read failed", "error", err)
			return
		}
		if bytes.HasPrefix(page, opusTags) {
			continue
		}

		samples := header.GranulePosition - lastGranule
		lastGranule = header.GranulePosition
		duration := time.Duration(samples) * time.Second / sampleRate
		if err := w.WriteSample(media.Sample{Data: page, Duration: duration}); err != nil {
			c.logger.Warn("capture write failed", "error", err)
			return
		}
	}
}

func (c *OggCapture) rewind() (*oggreader.OggReader, error) {
	if _, err := c.file.Seek(0, io.SeekStart); err != nil {
		return nil, err
	}
	r, _, err := oggreader.NewWith(c.file)
	return r, err
}
