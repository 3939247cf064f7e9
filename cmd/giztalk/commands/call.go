package commands

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/haivivi/giztalk/cmd/giztalk/internal/config"
	"github.com/haivivi/giztalk/pkg/account"
	"github.com/haivivi/giztalk/pkg/apiclient"
	"github.com/haivivi/giztalk/pkg/capture"
	"github.com/haivivi/giztalk/pkg/cli"
	"github.com/haivivi/giztalk/pkg/conversation"
	"github.com/haivivi/giztalk/pkg/projection"
	"github.com/haivivi/giztalk/pkg/realtime"
	"github.com/haivivi/giztalk/pkg/recording"
	"github.com/haivivi/giztalk/pkg/styles"
)

var (
	callStyle  string
	callMic    string
	callLoop   bool
	callRecord bool
	callUIAddr string
	callTitle  string
)

var callCmd = &cobra.Command{
	Use:   "call",
	Short: "Hold a realtime voice conversation from the terminal",
	Long: `Hold a realtime voice conversation through a running giztalk server.

The microphone is an Ogg/Opus file streamed at real-time pace. Lines typed
on stdin are sent as text messages. The transcript is printed as the
conversation goes; Ctrl-D or Ctrl-C ends the call and finalizes the
conversation.

With --record the assistant's audio is saved as <session>.ogg in
recording.dir, or uploaded to recording.s3 when a bucket is configured.
With --ui-addr the live conversation state is served as JSON snapshots on
ws://<addr>/ws/status and the recent session log on http://<addr>/debug/log.

Examples:
  giztalk call --mic hello.ogg
  giztalk call --style counseling --mic hello.ogg --loop --record
  giztalk call --mic hello.ogg --ui-addr 127.0.0.1:7070`,
	RunE: runCall,
}

func init() {
	callCmd.Flags().StringVar(&callStyle, "style", "", "conversation style id (default from call.style)")
	callCmd.Flags().StringVar(&callMic, "mic", "", "Ogg/Opus file used as the microphone")
	callCmd.Flags().BoolVar(&callLoop, "loop", false, "replay the mic file when it ends")
	callCmd.Flags().BoolVar(&callRecord, "record", false, "record the assistant's audio")
	callCmd.Flags().StringVar(&callUIAddr, "ui-addr", "", "serve the conversation state on this address")
	callCmd.Flags().StringVar(&callTitle, "title", "", "conversation title")
	callCmd.MarkFlagRequired("mic")
	rootCmd.AddCommand(callCmd)
}

func runCall(cmd *cobra.Command, args []string) error {
	cfg, err := GetConfig()
	if err != nil {
		return err
	}
	ctx := cmd.Context()
	logger := slog.Default()
	out := cmd.OutOrStdout()
	st := cli.NewStyles(cli.DefaultTheme)

	style := callStyle
	if style == "" {
		style = cfg.Call.Style
	}
	if style != "" {
		if _, ok := styles.Lookup(style); !ok {
			return fmt.Errorf("unknown style %q", style)
		}
	}

	client := apiclient.New(cfg.Call.APIURL, callUser(cfg))
	profile, err := client.Profile(ctx)
	if err != nil {
		return fmt.Errorf("load profile: %w", err)
	}
	conv, err := client.CreateConversation(ctx, conversation.CreateRequest{Title: callTitle})
	if err != nil {
		return fmt.Errorf("create conversation: %w", err)
	}

	var playback realtime.PlaybackSink = recording.Discard{}
	if callRecord {
		store, err := recordingStore(cfg)
		if err != nil {
			return err
		}
		playback = &recording.Sink{Store: store, Logger: logger}
	}

	proj := projection.New()
	orch := realtime.New(realtime.Options{
		Credentials: client,
		Capture:     &capture.OggSource{Path: callMic, Loop: callLoop, Logger: logger},
		Dialer:      &realtime.WebRTCDialer{HTTPURL: cfg.OpenAI.RealtimeURL, Logger: logger},
		Playback:    playback,
		Turns:       client,
		Projection:  proj,
		OnError: func(sess *realtime.Session, message string, err error) {
			logger.Debug("session error", "session_id", sess.ID(), "message", message, "error", err)
		},
		OnUsage: func(sess *realtime.Session, u realtime.ResponseDone) {
			rctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			res, err := client.ReportUsage(rctx, apiclient.UsageReport{
				ConversationID: sess.ConversationID(),
				InputTokens:    u.InputTokens,
				OutputTokens:   u.OutputTokens,
			})
			if err != nil {
				logger.Warn("usage report failed", "response_id", u.ResponseID, "error", err)
				return
			}
			logger.Debug("usage charged", "response_id", u.ResponseID, "cost", res.Applied, "balance", res.NewBalance)
		},
		Logger: logger,
	})

	if callUIAddr != "" {
		stop, err := serveStatus(ctx, callUIAddr, proj, logger)
		if err != nil {
			return err
		}
		defer stop()
		cli.PrintInfo(out, "status stream on ws://%s/ws/status", callUIAddr)
	}

	ended := make(chan struct{})
	printed := make(chan struct{})
	updates, unsubscribe := proj.Subscribe(16)
	go func() {
		defer close(printed)
		tr := cli.NewTranscript(st)
		connected := false
		for s := range updates {
			for _, line := range tr.Update(s) {
				fmt.Fprintln(out, line)
			}
			switch {
			case s.IsConnected:
				connected = true
			case s.Status == projection.StatusError,
				connected && s.Status == projection.StatusDisconnected:
				select {
				case <-ended:
				default:
					close(ended)
				}
			}
		}
	}()

	started := time.Now()
	sess, err := orch.Open(ctx, realtime.OpenRequest{
		ConversationID: conv.ID,
		StyleID:        style,
		Profile:        profile,
	})
	if err != nil {
		unsubscribe()
		<-printed
		finalizeCall(client, conv.ID, logger)
		return err
	}

	lines := make(chan string)
	stopLines := make(chan struct{})
	defer close(stopLines)
	go readLines(os.Stdin, lines, stopLines)

	for running := true; running; {
		select {
		case <-ctx.Done():
			running = false
		case <-ended:
			running = false
		case line, ok := <-lines:
			if !ok {
				running = false
				break
			}
			if line == "" {
				continue
			}
			if err := orch.SendText(ctx, sess, line); err != nil {
				cli.PrintWarning(out, "%v", err)
			}
		}
	}

	orch.Close(sess)
	unsubscribe()
	<-printed
	finalizeCall(client, conv.ID, logger)

	bctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if bal, err := client.Balance(bctx); err == nil {
		cli.PrintSuccess(out, "통화 시간 %s, 남은 크레딧 %s", cli.FormatDuration(time.Since(started)), cli.FormatCredits(bal))
	}
	return nil
}

func callUser(cfg *config.Config) account.User {
	u := account.User{ID: cfg.Call.UserID, Email: cfg.Call.UserEmail, Name: cfg.Call.UserName}
	if u.ID == "" {
		u.ID = "local"
	}
	return u
}

func recordingStore(cfg *config.Config) (recording.Store, error) {
	if s3cfg := cfg.Recording.S3; s3cfg != nil && s3cfg.Bucket != "" {
		return recording.NewBucket(recording.NewS3Client(*s3cfg), s3cfg.Bucket, s3cfg.Prefix), nil
	}
	return recording.NewDir(cfg.Recording.Dir)
}

func finalizeCall(client *apiclient.Client, conversationID string, logger *slog.Logger) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := client.FinalizeConversation(ctx, conversationID); err != nil {
		logger.Warn("finalize conversation failed", "conversation_id", conversationID, "error", err)
	}
}

// readLines sends trimmed lines from r until EOF or done, then closes
// lines.
func readLines(r io.Reader, lines chan<- string, done <-chan struct{}) {
	defer close(lines)
	sc := bufio.NewScanner(r)
	for sc.Scan() {
		select {
		case lines <- strings.TrimSpace(sc.Text()):
		case <-done:
			return
		}
	}
}

// serveStatus serves the projection stream until stop is called or ctx
// ends.
func serveStatus(ctx context.Context, addr string, proj *projection.Store, logger *slog.Logger) (stop func(), err error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("listen %s: %w", addr, err)
	}
	mux := http.NewServeMux()
	mux.Handle("GET /ws/status", projection.StreamHandler(proj, logger))
	mux.HandleFunc("GET /debug/log", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(proj.Debug().Entries())
	})
	srv := &http.Server{Handler: mux, BaseContext: func(net.Listener) context.Context { return ctx }}
	go func() {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Warn("status server stopped", "error", err)
		}
	}()
	return func() {
		sctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		srv.Shutdown(sctx)
	}, nil
}
