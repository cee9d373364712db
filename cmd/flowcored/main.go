// Command flowcored is the daemon that hosts the core pipeline
// (Capture -> Reassemble -> Finalize -> Store) behind an HTTP API and
// WebSocket event feed, plus one-shot gc/export/replay subcommands
// that operate on an existing data directory without starting a
// server.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/flowtap/flowcore/pkg/capture"
	"github.com/flowtap/flowcore/pkg/command"
	"github.com/flowtap/flowcore/pkg/entities"
	"github.com/flowtap/flowcore/pkg/eventbus"
	"github.com/flowtap/flowcore/pkg/export"
	"github.com/flowtap/flowcore/pkg/fctelemetry"
	"github.com/flowtap/flowcore/pkg/filestore"
	"github.com/flowtap/flowcore/pkg/finalize"
	"github.com/flowtap/flowcore/pkg/flowconfig"
	"github.com/flowtap/flowcore/pkg/memstore"
	"github.com/flowtap/flowcore/pkg/query"
	"github.com/flowtap/flowcore/pkg/reassemble"
	"github.com/flowtap/flowcore/pkg/retention"
	"github.com/flowtap/flowcore/pkg/threshold"
	"github.com/flowtap/flowcore/pkg/wsgateway"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/spf13/cobra"
)

var configPath string

func main() {
	root := &cobra.Command{
		Use:   "flowcored",
		Short: "LLM traffic observability core daemon",
	}
	root.PersistentFlags().StringVar(&configPath, "config", "./flowcore.yaml", "path to the YAML configuration file")

	root.AddCommand(serveCommand())
	root.AddCommand(gcCommand())
	root.AddCommand(exportCommand())
	root.AddCommand(replayCommand())

	if err := root.Execute(); err != nil {
		log.Fatal(err)
	}
}

type core struct {
	cfg     *flowconfig.Watcher
	mem     *memstore.Store
	files   *filestore.Store
	bus     *eventbus.Bus
	capturer *capture.Capturer
	finalizer *finalize.Finalizer
	query   *query.Service
	ents    *entities.Store
	dispatch *command.Dispatcher
	gateway *wsgateway.Gateway
	gc      *retention.Scheduler
	telemetry *fctelemetry.Exporter
}

func newCore(logger *log.Logger) (*core, error) {
	cfgWatcher, err := flowconfig.NewWatcher(configPath, logger)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	cfg := cfgWatcher.Current()

	files, err := filestore.Open(filestore.Options{
		Root:            cfg.Storage.Root,
		MaxFileSize:     cfg.Storage.MaxShardFileSize,
		ChannelCapacity: cfg.Storage.WriteQueueSize,
	})
	if err != nil {
		return nil, fmt.Errorf("open file store: %w", err)
	}

	mem := memstore.New(cfg.Storage.MemoryStoreSize)
	bus := eventbus.New(cfg.EventBus.SubscriberCapacity)
	ents := entities.New()

	capturer := capture.New(mem, bus, capture.Options{
		Limits: reassemble.Limits{
			MaxResponseBytes: int(cfg.Capture.MaxResponseBodyBytes),
			MaxRequestBytes:  int(cfg.Capture.MaxRequestBodyBytes),
			RetainRawChunks:  cfg.Capture.PersistRawChunks,
		},
		SampleRate: cfg.Capture.SampleRate,
	}, logger)

	monitor := threshold.New(threshold.Rules{
		LatencyLimitMs: cfg.Thresholds.LatencyLimitMs,
		TotalLimit:     cfg.Thresholds.TotalLimit,
		InputLimit:     cfg.Thresholds.InputLimit,
		OutputLimit:    cfg.Thresholds.OutputLimit,
	})
	finalizer := finalize.New(capturer, bus, files, monitor)

	q := query.New(mem, files)
	dispatch := command.New(q, mem, files, bus, ents, nil)
	gateway := wsgateway.New(bus, logger)

	gc := retention.NewScheduler(files, cfg.Storage.RetentionDays, 24*time.Hour)

	cfgWatcher.OnChange(func(updated flowconfig.Config) {
		logger.Printf("flowcored: configuration reloaded")
	})

	var exporter *fctelemetry.Exporter
	if cfg.Telemetry.Enabled && cfg.Telemetry.OTLPEndpoint != "" {
		telSettings := fctelemetry.DefaultSettings().
			WithEnabled(true).
			WithRecordContent(cfg.Telemetry.RecordContent)
		telSettings.ServiceName = cfg.Telemetry.ServiceName
		exporter, err = fctelemetry.NewExporter(context.Background(), telSettings, fctelemetry.ExporterConfig{
			Endpoint: cfg.Telemetry.OTLPEndpoint,
			Insecure: cfg.Telemetry.Insecure,
			Headers:  cfg.Telemetry.Headers,
		})
		if err != nil {
			return nil, fmt.Errorf("start telemetry exporter: %w", err)
		}
	}

	return &core{
		cfg: cfgWatcher, mem: mem, files: files, bus: bus,
		capturer: capturer, finalizer: finalizer, query: q, ents: ents,
		dispatch: dispatch, gateway: gateway, gc: gc, telemetry: exporter,
	}, nil
}

func (c *core) Close() {
	c.gc.Stop()
	c.cfg.Close()
	c.files.Close()
	if c.telemetry != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		c.telemetry.Shutdown(ctx)
	}
}

func serveCommand() *cobra.Command {
	var addr string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "run the daemon: command API, event WebSocket, and retention GC",
		RunE: func(cmd *cobra.Command, args []string) error {
			logger := log.New(os.Stderr, "flowcored: ", log.LstdFlags)
			c, err := newCore(logger)
			if err != nil {
				return err
			}
			defer c.Close()
			c.gc.Start()

			r := chi.NewRouter()
			r.Use(middleware.Logger)
			r.Use(middleware.Recoverer)
			r.Use(middleware.Timeout(60 * time.Second))
			r.Use(cors.Handler(cors.Options{
				AllowedOrigins: []string{"*"},
				AllowedMethods: []string{"GET", "POST", "DELETE"},
			}))

			mountAPI(r, c.dispatch)
			r.Handle("/ws/flow-events", c.gateway)

			srv := &http.Server{Addr: addr, Handler: r}
			go func() {
				logger.Printf("flowcored: listening on %s", addr)
				if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
					logger.Fatalf("flowcored: %v", err)
				}
			}()

			sig := make(chan os.Signal, 1)
			signal.Notify(sig, os.Interrupt, syscall.SIGTERM)
			<-sig

			ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			return srv.Shutdown(ctx)
		},
	}
	cmd.Flags().StringVar(&addr, "addr", ":4317", "HTTP listen address")
	return cmd
}

func gcCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "gc",
		Short: "run retention garbage collection once and exit",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := flowconfig.Load(configPath)
			if err != nil {
				return err
			}
			files, err := filestore.Open(filestore.Options{Root: cfg.Storage.Root})
			if err != nil {
				return err
			}
			defer files.Close()

			removed, err := retention.GC(context.Background(), files, cfg.Storage.RetentionDays)
			if err != nil {
				return err
			}
			for _, day := range removed {
				fmt.Println("removed", day)
			}
			return nil
		},
	}
}

func exportCommand() *cobra.Command {
	var filterExpr, format, out string
	cmd := &cobra.Command{
		Use:   "export",
		Short: "export flows matching a filter expression to a file",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := flowconfig.Load(configPath)
			if err != nil {
				return err
			}
			files, err := filestore.Open(filestore.Options{Root: cfg.Storage.Root})
			if err != nil {
				return err
			}
			defer files.Close()

			mem := memstore.New(cfg.Storage.MemoryStoreSize)
			q := query.New(mem, files)
			ents := entities.New()
			dispatch := command.New(q, mem, files, eventbus.New(1), ents, nil)

			res, err := dispatch.ExportFlows(context.Background(), command.ExportFlowsRequest{
				Filter:  filterExpr,
				Options: export.Options{Format: export.Format(format)},
			})
			if err != nil {
				return err
			}
			return os.WriteFile(out, res.ExportData, 0o644)
		},
	}
	cmd.Flags().StringVar(&filterExpr, "filter", "", "filter expression selecting flows")
	cmd.Flags().StringVar(&format, "format", "json", "export format: json|jsonl|har|markdown|csv")
	cmd.Flags().StringVar(&out, "out", "flows.export", "output file path")
	return cmd
}

func replayCommand() *cobra.Command {
	var id string
	cmd := &cobra.Command{
		Use:   "replay",
		Short: "re-issue one stored flow's request against its original provider (requires --addr daemon running with a replayer wired in)",
		RunE: func(cmd *cobra.Command, args []string) error {
			return fmt.Errorf("replay requires a running daemon with a provider-specific replayer; see cmd/flowcored's serve subcommand")
		},
	}
	cmd.Flags().StringVar(&id, "id", "", "flow id to replay")
	return cmd
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
