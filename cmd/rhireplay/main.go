// Command rhireplay records a synthetic frame on several goroutines and
// replays it on a registered backend.
//
// Usage:
//
//	rhireplay [-backend noop] [-producers 4] [-draws 256] [-frames 3] [-flame dir]
//
// Executor settings come from RHI_* environment variables. Traces are
// exported when RHI_OTEL_ENDPOINT is set.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"github.com/gogpu/rhi"
	"github.com/gogpu/rhi/backend"
	_ "github.com/gogpu/rhi/backend/capture"
	_ "github.com/gogpu/rhi/backend/native"
	"github.com/gogpu/rhi/breadcrumb"
	"github.com/gogpu/rhi/breadcrumb/flame"
	"github.com/gogpu/rhi/internal/telemetry"
)

func main() {
	if err := run(context.Background(), os.Args[1:], os.Stdout); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			os.Exit(2)
		}
		fmt.Fprintln(os.Stderr, "rhireplay:", err)
		os.Exit(1)
	}
}

type options struct {
	backend   string
	producers int
	draws     int
	frames    int
	flame     string
	verbose   bool
}

func parseFlags(args []string) (options, error) {
	var o options
	fs := flag.NewFlagSet("rhireplay", flag.ContinueOnError)
	fs.StringVar(&o.backend, "backend", "", "backend name (default: first available)")
	fs.IntVar(&o.producers, "producers", 4, "goroutines recording in parallel")
	fs.IntVar(&o.draws, "draws", 256, "draws per producer")
	fs.IntVar(&o.frames, "frames", 3, "frames to record and replay")
	fs.StringVar(&o.flame, "flame", "", "directory for GPU flame charts of the last frame")
	fs.BoolVar(&o.verbose, "v", false, "debug logging")
	if err := fs.Parse(args); err != nil {
		return o, err
	}
	if o.producers < 1 || o.draws < 0 || o.frames < 1 {
		return o, fmt.Errorf("invalid sizes: producers=%d draws=%d frames=%d", o.producers, o.draws, o.frames)
	}
	return o, nil
}

func run(ctx context.Context, args []string, out io.Writer) error {
	o, err := parseFlags(args)
	if err != nil {
		return err
	}
	if o.verbose {
		rhi.SetLogger(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelDebug})))
	}

	cfg, err := rhi.ConfigFromEnv()
	if err != nil {
		return err
	}
	tcfg, err := telemetry.ConfigFromEnv()
	if err != nil {
		return err
	}
	shutdown, err := telemetry.Setup(ctx, "rhireplay", tcfg)
	if err != nil {
		return err
	}
	defer func() { _ = shutdown(context.Background()) }()

	dev, err := openDevice(o.backend)
	if err != nil {
		return err
	}
	if c, ok := dev.(io.Closer); ok {
		defer c.Close()
	}

	e, err := rhi.NewExecutor(dev, rhi.WithConfig(cfg))
	if err != nil {
		return err
	}
	defer e.Close()

	sc, err := newScene(dev, o.producers)
	if err != nil {
		return err
	}
	defer sc.release()

	start := time.Now()
	for frame := range o.frames {
		if err := runFrame(ctx, e, sc, o, frame); err != nil {
			return fmt.Errorf("frame %d: %w", frame, err)
		}
	}
	report(out, dev.Name(), e.Stats(), o.frames, time.Since(start))
	return nil
}

func openDevice(name string) (rhi.Device, error) {
	if name == "" {
		return backend.Default()
	}
	return backend.Open(name)
}

// runFrame records one buffer per producer concurrently and submits them in
// producer order.
func runFrame(ctx context.Context, e *rhi.Executor, sc *scene, o options, frame int) error {
	bufs := make([]*rhi.CommandBuffer, o.producers)
	var g errgroup.Group
	for i := range bufs {
		g.Go(func() (err error) {
			defer func() {
				if r := recover(); r != nil {
					fe, ok := r.(*rhi.FatalError)
					if !ok {
						panic(r)
					}
					err = fe
				}
			}()
			bufs[i] = sc.record(e, frame, i, o.draws)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	last := frame == o.frames-1 && o.flame != ""
	var crumbs []*breadcrumb.Allocator
	if last {
		for _, b := range bufs {
			crumbs = append(crumbs, b.Breadcrumbs().Acquire())
		}
		defer func() {
			for _, a := range crumbs {
				a.Release()
			}
		}()
	}

	if err := e.Submit(ctx, bufs...).Wait(ctx); err != nil {
		return err
	}
	if last {
		return writeFlames(o.flame, crumbs)
	}
	return nil
}

func writeFlames(dir string, crumbs []*breadcrumb.Allocator) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	for i, a := range crumbs {
		path := filepath.Join(dir, fmt.Sprintf("producer%d.png", i))
		f, err := os.Create(path)
		if err != nil {
			return err
		}
		err = flame.WritePNG(f, a.Root(), flame.Options{Timeline: breadcrumb.GPU, Pipeline: int(rhi.PipelinePrimary)})
		if cerr := f.Close(); err == nil {
			err = cerr
		}
		if err != nil {
			return fmt.Errorf("flame %s: %w", path, err)
		}
	}
	return nil
}

func report(out io.Writer, device string, st rhi.Stats, frames int, elapsed time.Duration) {
	p := message.NewPrinter(language.English)
	p.Fprintf(out, "device      %s\n", device)
	p.Fprintf(out, "frames      %d in %v\n", frames, elapsed.Round(time.Microsecond))
	p.Fprintf(out, "buffers     %d\n", st.Buffers)
	p.Fprintf(out, "commands    %d\n", st.Commands)
	p.Fprintf(out, "draws       %d (%d vertices)\n", st.Draws, st.Vertices)
	p.Fprintf(out, "dispatches  %d\n", st.Dispatches)
	p.Fprintf(out, "copies      %d\n", st.Copies)
	p.Fprintf(out, "transitions %d\n", st.Transitions)
	p.Fprintf(out, "submissions %d (%d failed)\n", st.Submissions, st.FailedSubmissions)
	p.Fprintf(out, "translate   %d serial, %d parallel tasks\n", st.SerialBuffers, st.ParallelTasks)
}
