package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/basekick-labs/fmilog/internal/api"
	"github.com/basekick-labs/fmilog/internal/config"
	"github.com/basekick-labs/fmilog/internal/ingest"
	"github.com/basekick-labs/fmilog/internal/logger"
	"github.com/basekick-labs/fmilog/internal/metrics"
	"github.com/basekick-labs/fmilog/internal/shutdown"
	"github.com/rs/zerolog/log"
)

// Version is set at build time
var Version = "dev"

const usage = `usage: fmilog <command> [flags] [args]

commands:
  header FILE              print the declared variables of an event log
  convert [flags] FILE...  convert event logs to jsonl, msgpack or parquet
  serve                    run the HTTP API
  version                  print the version
`

func main() {
	if len(os.Args) < 2 {
		fmt.Fprint(os.Stderr, usage)
		os.Exit(2)
	}

	cmd, args := os.Args[1], os.Args[2:]
	if cmd == "version" {
		fmt.Println(Version)
		return
	}

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}

	logger.Setup(cfg.Log.Level, cfg.Log.Format)
	metrics.Init(log.Logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	switch cmd {
	case "header":
		err = runHeader(cfg, args, os.Stdout)
	case "convert":
		err = runConvert(ctx, cfg, args)
	case "serve":
		err = runServe(cfg)
	default:
		fmt.Fprintf(os.Stderr, "unknown command %q\n\n%s", cmd, usage)
		os.Exit(2)
	}

	if err != nil {
		log.Error().Err(err).Str("command", cmd).Msg("Command failed")
		stop()
		os.Exit(1)
	}
}

func runHeader(cfg *config.Config, args []string, out io.Writer) error {
	fs := flag.NewFlagSet("header", flag.ContinueOnError)
	compression := fs.String("compression", cfg.Input.Compression, "input compression: auto, none, gzip, zstd")
	duplicates := fs.String("duplicates", cfg.Parse.DuplicateNames, "duplicate variable names: reject, last-wins")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() != 1 {
		return fmt.Errorf("header expects exactly one file, got %d", fs.NArg())
	}

	cfg.Input.Compression = *compression
	cfg.Parse.DuplicateNames = *duplicates
	if err := cfg.Validate(); err != nil {
		return err
	}

	reader, closeFn, err := openLog(fs.Arg(0), cfg)
	if err != nil {
		return err
	}
	defer closeFn()

	return printHeader(out, reader.ParsedHeader())
}

func printHeader(out io.Writer, h *ingest.Header) error {
	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "NAME\tTYPE")
	for _, name := range h.Names() {
		typ, _ := h.Type(name)
		fmt.Fprintf(tw, "%s\t%s\n", name, typ)
	}
	return tw.Flush()
}

// openLog opens path and reads its header. closeFn releases the file and
// any decompressor.
func openLog(path string, cfg *config.Config) (*ingest.Reader, func(), error) {
	policy, err := ingest.ParseDuplicatePolicy(cfg.Parse.DuplicateNames)
	if err != nil {
		return nil, nil, err
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open %s: %w", path, err)
	}
	if info, err := f.Stat(); err == nil {
		metrics.Get().IncBytesRead(info.Size())
	}

	body, release, err := ingest.Decompress(f, cfg.Input.Compression)
	if err != nil {
		f.Close()
		return nil, nil, fmt.Errorf("%s: %w", path, err)
	}
	closeFn := func() {
		release()
		f.Close()
	}

	metrics.Get().IncLogsOpened()
	reader, err := ingest.NewReader(
		ingest.NewLineSource(body, int(cfg.Input.MaxLineSize)),
		ingest.WithDuplicatePolicy(policy),
		ingest.WithLogger(logger.Get("event-reader").With().Str("file", path).Logger()),
	)
	if err != nil {
		closeFn()
		return nil, nil, fmt.Errorf("%s: %w", path, err)
	}
	return reader, closeFn, nil
}

func runServe(cfg *config.Config) error {
	if err := cfg.Validate(); err != nil {
		return err
	}
	policy, err := ingest.ParseDuplicatePolicy(cfg.Parse.DuplicateNames)
	if err != nil {
		return err
	}

	log.Info().Str("version", Version).Msg("Starting fmilog...")

	serverCfg := api.DefaultServerConfig()
	serverCfg.Host = cfg.Server.Host
	serverCfg.Port = cfg.Server.Port
	serverCfg.ReadTimeout = time.Duration(cfg.Server.ReadTimeout) * time.Second
	serverCfg.WriteTimeout = time.Duration(cfg.Server.WriteTimeout) * time.Second
	serverCfg.MaxPayloadSize = cfg.Server.MaxPayloadSize

	server := api.NewServer(serverCfg, logger.Get("api"))
	server.RegisterRoutes()

	api.NewParseHandler(api.ParseHandlerConfig{
		MaxPayloadSize: cfg.Server.MaxPayloadSize,
		MaxLineSize:    int(cfg.Input.MaxLineSize),
		Duplicates:     policy,
	}, logger.Get("api")).RegisterRoutes(server.GetApp())

	coordinator := shutdown.New(serverCfg.ShutdownTimeout, logger.Get("shutdown"))
	coordinator.RegisterHook("http-server", server.Shutdown, shutdown.PriorityHTTPServer)
	coordinator.RegisterHook("metrics", func(context.Context) error {
		log.Info().Fields(metrics.Get().Snapshot()).Msg("Final metrics")
		return nil
	}, shutdown.PriorityMetrics)

	if err := server.Start(); err != nil {
		return fmt.Errorf("failed to start server: %w", err)
	}

	coordinator.WaitForSignal()
	return coordinator.Shutdown()
}
