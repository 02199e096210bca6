package commands

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/bytedance/sonic"
	"github.com/spf13/cobra"

	"github.com/penwyp/podscope/internal/core/constants"
	"github.com/penwyp/podscope/internal/stream"
	"github.com/penwyp/podscope/internal/util"
)

var (
	streamChannel   string
	streamType      string
	streamInterval  time.Duration
	streamWindow    float64
	streamMaxEvents int
	streamWidth     int
	streamHeight    int
)

var streamCmd = &cobra.Command{
	Use:   "stream [file.edf|dir]",
	Short: "Stream one EDF channel as JSON lines",
	Long: `Replays one channel of an EDF recording at its paced cadence and prints every
event as a JSON line: samples by default, or rendered snapshots with band powers
and a sleep-stage estimate with --type plot. A directory selects its newest
recording; without an argument the sessions directory is used.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runStream,
}

func init() {
	rootCmd.AddCommand(streamCmd)

	streamCmd.Flags().StringVar(&streamChannel, "channel", "",
		"Channel label (default: first signal)")
	streamCmd.Flags().StringVar(&streamType, "type", "",
		"Session type (empty for samples, plot for snapshots)")
	streamCmd.Flags().DurationVar(&streamInterval, "interval", 0,
		"Event cadence (default 10ms for samples, 1s for snapshots)")
	streamCmd.Flags().Float64Var(&streamWindow, "window", constants.SnapshotWindowSeconds,
		"Seconds of signal per snapshot")
	streamCmd.Flags().IntVar(&streamMaxEvents, "max-events", 0,
		"Stop after this many events (0 = until the recording ends)")
	streamCmd.Flags().IntVar(&streamWidth, "width", 0,
		"Snapshot image width")
	streamCmd.Flags().IntVar(&streamHeight, "height", 0,
		"Snapshot image height")
}

func runStream(cmd *cobra.Command, args []string) error {
	if err := initLogging(logLevel(), logFile, logFormat, false); err != nil {
		return err
	}

	kind, err := stream.ParseSessionKind(streamType)
	if err != nil {
		return err
	}

	target := "sessions"
	if len(args) == 1 {
		target = args[0]
	}
	path, err := resolveRecording(expandPath(target))
	if err != nil {
		return err
	}

	source, err := stream.OpenEDF(path, streamChannel)
	if err != nil {
		return err
	}
	util.LogInfo("Streaming recording",
		util.F("file", path),
		util.F("channel", source.Label()),
		util.F("rate", source.Rate()),
		util.F("type", kind))

	opts := stream.Options{
		WindowSeconds: streamWindow,
		Renderer:      stream.PNGRenderer{Width: streamWidth, Height: streamHeight},
	}
	if kind == stream.KindSnapshots {
		opts.SnapshotInterval = streamInterval
	} else {
		opts.SampleInterval = streamInterval
	}
	manager := stream.NewManager(opts)
	defer manager.Shutdown()

	session, err := manager.OpenSession(kind, source)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	return printEvents(ctx, cmd.OutOrStdout(), session, streamMaxEvents)
}

// resolveRecording accepts a file or a directory holding recordings.
func resolveRecording(path string) (string, error) {
	info, err := os.Stat(path)
	if err != nil {
		return "", fmt.Errorf("recording not found: %w", err)
	}
	if info.IsDir() {
		return stream.FindEDF(path)
	}
	return path, nil
}

// printEvents writes one JSON line per event until the session ends, ctx is
// cancelled or max events (when positive) have been written.
func printEvents(ctx context.Context, w io.Writer, s *stream.Session, max int) error {
	defer s.Close()

	written := 0
	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-s.Events():
			if !ok {
				return nil
			}
			data, err := sonic.Marshal(event)
			if err != nil {
				return fmt.Errorf("encode event: %w", err)
			}
			if _, err := fmt.Fprintf(w, "%s\n", data); err != nil {
				return err
			}
			if event.Error != "" {
				return fmt.Errorf("stream failed: %s", event.Error)
			}
			written++
			if max > 0 && written >= max {
				return nil
			}
		}
	}
}
