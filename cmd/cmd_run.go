// cmd_run.go - Run Command: Pipeline ueber ein Bildverzeichnis
// Hauptfunktionen: RunHandler, runPipeline, renderTiming
package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"
	orderedmap "github.com/wk8/go-ordered-map/v2"
	"golang.org/x/term"

	"github.com/7blacky7/rocal/api"
	"github.com/7blacky7/rocal/decoder"
	"github.com/7blacky7/rocal/envconfig"
	"github.com/7blacky7/rocal/logutil"
	"github.com/7blacky7/rocal/node"
	"github.com/7blacky7/rocal/pipeline"
	"github.com/7blacky7/rocal/reader"
	"github.com/7blacky7/rocal/server"
	"github.com/7blacky7/rocal/tensor"
)

// runOptions - Optionen fuer einen Pipeline-Lauf
type runOptions struct {
	Dir           string
	Batch         int
	Threads       int
	Shards        int
	MaxW, MaxH    int // Dekodier-Footprint
	Width, Height int // Resize, 0 = aus
	Angles        []float32
	Epochs        int
	Shuffle       bool
	Policy        reader.LastBatchPolicy
	Decoder       decoder.Type
}

// runStats - Ergebnis eines Laufs
type runStats struct {
	Epochs  int
	Batches int
	Images  int
	Elapsed time.Duration
}

// parseSize - Liest "WxH"
func parseSize(s string) (int, int, error) {
	if s == "" {
		return 0, 0, nil
	}
	ws, hs, ok := strings.Cut(strings.ToLower(s), "x")
	if !ok {
		return 0, 0, fmt.Errorf("invalid size %q, expected WIDTHxHEIGHT", s)
	}
	w, err := strconv.Atoi(ws)
	if err != nil {
		return 0, 0, fmt.Errorf("invalid width in %q: %w", s, err)
	}
	h, err := strconv.Atoi(hs)
	if err != nil {
		return 0, 0, fmt.Errorf("invalid height in %q: %w", s, err)
	}
	if w < 0 || h < 0 {
		return 0, 0, fmt.Errorf("invalid size %q", s)
	}
	return w, h, nil
}

// parseAngles - Liest die Winkel der diskreten Rotationsverteilung
func parseAngles(ss []string) ([]float32, error) {
	var out []float32
	for _, s := range ss {
		f, err := strconv.ParseFloat(strings.TrimSpace(s), 32)
		if err != nil {
			return nil, fmt.Errorf("invalid angle %q: %w", s, err)
		}
		out = append(out, float32(f))
	}
	return out, nil
}

// buildGraph - FileSource, optional Resize und Rotate; der letzte Knoten ist Ausgang
func buildGraph(h api.Handle, o runOptions) error {
	resize := o.Width > 0 || o.Height > 0
	rotate := len(o.Angles) > 0

	cur := api.FileSource(h, pipeline.SourceOptions{
		Path:            o.Dir,
		Color:           tensor.ColorRGB24,
		Shards:          o.Shards,
		IsOutput:        !resize && !rotate,
		Shuffle:         o.Shuffle,
		MaxWidth:        o.MaxW,
		MaxHeight:       o.MaxH,
		Decoder:         o.Decoder,
		LastBatchPolicy: o.Policy,
	})
	if cur == api.InvalidTensor {
		return errors.New(api.GetErrorMessage(h))
	}

	if resize {
		cur = api.Resize(h, cur, !rotate, node.ResizeOptions{Width: o.Width, Height: o.Height})
		if cur == api.InvalidTensor {
			return errors.New(api.GetErrorMessage(h))
		}
	}

	if rotate {
		var angle api.ParamHandle
		if len(o.Angles) == 1 {
			angle = api.CreateFloatParameter(o.Angles[0])
		} else {
			freq := make([]float64, len(o.Angles))
			for i := range freq {
				freq[i] = 1
			}
			angle = api.CreateFloatRand(o.Angles, freq)
		}
		if angle == api.NoParam {
			return fmt.Errorf("invalid rotation angles %v", o.Angles)
		}
		if api.Rotate(h, cur, true, angle, 0, 0, node.InterpLinear) == api.InvalidTensor {
			return errors.New(api.GetErrorMessage(h))
		}
	}
	return nil
}

// runPipeline - Baut die Pipeline und liest o.Epochs Epochen.
// Das Handle bleibt registriert, der Aufrufer gibt es frei.
func runPipeline(ctx context.Context, o runOptions) (api.Handle, runStats, error) {
	var stats runStats

	threads := o.Threads
	if threads == 0 {
		threads = int(envconfig.NumThreads())
	}
	h := api.Create(o.Batch, pipeline.ModeCPU, 0, threads)
	if h == api.InvalidHandle {
		return h, stats, errors.New(api.GetErrorMessage(api.InvalidHandle))
	}

	if err := buildGraph(h, o); err != nil {
		return h, stats, err
	}
	if st := api.Verify(h); st != api.StatusOK {
		return h, stats, fmt.Errorf("verify: %s", api.GetErrorMessage(h))
	}

	start := time.Now()
	for epoch := range o.Epochs {
		if epoch > 0 {
			if st := api.Reset(h); st != api.StatusOK {
				return h, stats, fmt.Errorf("reset: %s", api.GetErrorMessage(h))
			}
		}

		for {
			if err := ctx.Err(); err != nil {
				return h, stats, err
			}
			st := api.Run(h)
			if st == api.RunNoMoreData {
				break
			}
			if st != api.RunOK {
				return h, stats, fmt.Errorf("run: %s: %s", st, api.GetErrorMessage(h))
			}
			stats.Batches++
			stats.Images += o.Batch
			logutil.Trace("batch", "epoch", epoch, "batch", stats.Batches, "remaining", api.GetRemainingImages(h))
		}
		stats.Images -= api.GetLastBatchPaddedSize(h)
		stats.Epochs++
		slog.Debug("epoch done", "epoch", epoch, "batches", stats.Batches)
	}
	stats.Elapsed = time.Since(start)
	return h, stats, nil
}

// renderTiming - Tabelle am Terminal, sonst key=value Zeilen
func renderTiming(w io.Writer, stats runStats, report *orderedmap.OrderedMap[string, time.Duration], table bool) {
	if !table {
		fmt.Fprintf(w, "epochs=%d\nbatches=%d\nimages=%d\nelapsed=%s\n", stats.Epochs, stats.Batches, stats.Images, stats.Elapsed)
		for pair := report.Oldest(); pair != nil; pair = pair.Next() {
			fmt.Fprintf(w, "%s=%s\n", pair.Key, pair.Value)
		}
		return
	}

	fmt.Fprintf(w, "%d epochs, %d batches, %d images in %s\n\n", stats.Epochs, stats.Batches, stats.Images, stats.Elapsed.Round(time.Millisecond))

	var data [][]string
	for pair := report.Oldest(); pair != nil; pair = pair.Next() {
		data = append(data, []string{strings.ToUpper(pair.Key), pair.Value.Round(time.Microsecond).String()})
	}

	tw := tablewriter.NewWriter(w)
	tw.SetHeader([]string{"STAGE", "TIME"})
	tw.SetHeaderAlignment(tablewriter.ALIGN_LEFT)
	tw.SetAlignment(tablewriter.ALIGN_LEFT)
	tw.SetHeaderLine(false)
	tw.SetBorder(false)
	tw.SetNoWhiteSpace(true)
	tw.SetTablePadding("    ")
	tw.AppendBulk(data)
	tw.Render()
}

// RunHandler - Fuehrt eine Pipeline ueber DIR aus
func RunHandler(cmd *cobra.Command, args []string) error {
	o := runOptions{Dir: args[0]}
	flags := cmd.Flags()

	var err error
	if o.Batch, err = flags.GetInt("batch"); err != nil {
		return err
	}
	if o.Threads, err = flags.GetInt("threads"); err != nil {
		return err
	}
	if o.Shards, err = flags.GetInt("shards"); err != nil {
		return err
	}
	if o.Epochs, err = flags.GetInt("epochs"); err != nil {
		return err
	}
	if o.Shuffle, err = flags.GetBool("shuffle"); err != nil {
		return err
	}

	s, _ := flags.GetString("decode-size")
	if o.MaxW, o.MaxH, err = parseSize(s); err != nil {
		return err
	}
	s, _ = flags.GetString("resize")
	if o.Width, o.Height, err = parseSize(s); err != nil {
		return err
	}
	angles, _ := flags.GetStringSlice("rotate")
	if o.Angles, err = parseAngles(angles); err != nil {
		return err
	}
	s, _ = flags.GetString("policy")
	if o.Policy, err = reader.ParsePolicy(s); err != nil {
		return err
	}
	if o.Decoder, err = decoder.ParseType(envconfig.Decoder()); err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	serve, _ := flags.GetBool("serve")
	var serveErr chan error
	if serve {
		ln, err := net.Listen("tcp", envconfig.Host())
		if err != nil {
			return err
		}
		serveErr = make(chan error, 1)
		go func() { serveErr <- server.Serve(ctx, ln) }()
	}

	h, stats, err := runPipeline(ctx, o)
	defer api.Release(h)
	if err != nil {
		return err
	}

	renderTiming(cmd.OutOrStdout(), stats, api.GetTimingReport(h), term.IsTerminal(int(os.Stdout.Fd())))

	if serve {
		fmt.Fprintf(cmd.ErrOrStderr(), "status server on http://%s, press Ctrl+C to exit\n", envconfig.Host())
		return <-serveErr
	}
	return nil
}

// newRunCmd - Erstellt den run Command
func newRunCmd() *cobra.Command {
	runCmd := &cobra.Command{
		Use:   "run DIR",
		Short: "Load, decode and augment every image in DIR",
		Args:  cobra.ExactArgs(1),
		RunE:  RunHandler,
	}

	runCmd.Flags().IntP("batch", "b", 4, "Batch size")
	runCmd.Flags().Int("threads", 0, "Decode threads (0 = ROCAL_NUM_THREADS or derived)")
	runCmd.Flags().Int("shards", 1, "Number of reader shards")
	runCmd.Flags().String("decode-size", "1024x1024", "Maximum decoded image size")
	runCmd.Flags().String("resize", "", "Resize output to WIDTHxHEIGHT")
	runCmd.Flags().StringSlice("rotate", nil, "Rotation angles, one is drawn per image")
	runCmd.Flags().IntP("epochs", "e", 1, "Number of epochs")
	runCmd.Flags().Bool("shuffle", false, "Shuffle the file order")
	runCmd.Flags().String("policy", "fill", "Last batch policy (fill, drop, partial)")
	runCmd.Flags().Bool("serve", false, "Serve pipeline status while running and after the last epoch")
	return runCmd
}
