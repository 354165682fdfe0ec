package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
)

func main() {
	configPath := flag.String("config", "", "Path to YAML config file")
	jobsFile := flag.String("jobs-file", "", "Restrict planning to the regions listed in this file")
	debug := flag.Bool("debug", false, "Enable debug logging")
	help := flag.Bool("help", false, "Show help message")
	args := reorderFlagsFirst(os.Args[1:])
	flag.CommandLine.Parse(args)

	rest := flag.Args()
	if *help || len(rest) == 0 {
		showHelp()
		os.Exit(0)
	}
	command := rest[0]

	logLevel := slog.LevelInfo
	if *debug {
		logLevel = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: logLevel})))

	if *configPath == "" {
		slog.Error("--config is required")
		os.Exit(1)
	}

	var err error
	switch command {
	case "server":
		err = cmdServer(*configPath, *jobsFile)
	case "enqueue-downloads":
		err = cmdEnqueueDownloads(*configPath, *jobsFile)
	case "enqueue-renders":
		err = cmdEnqueueRenders(*configPath, *jobsFile)
	default:
		slog.Error("unknown command", "command", command)
		showHelp()
		os.Exit(1)
	}
	if err != nil {
		slog.Error(command+" failed", "error", err)
		os.Exit(1)
	}
}

// reorderFlagsFirst moves every flag token (with the token after it,
// when that one does not start with '-') ahead of all positional tokens,
// so the subcommand name can appear anywhere on the command line, matching the teacher's main.go flag-reordering
// idiom for a flat, non-subcommand-aware flag.FlagSet.
func reorderFlagsFirst(args []string) []string {
	var flags, positional []string
	for i := 0; i < len(args); i++ {
		a := args[i]
		if len(a) > 0 && a[0] == '-' {
			flags = append(flags, a)
			if i+1 < len(args) && (len(args[i+1]) == 0 || args[i+1][0] != '-') {
				flags = append(flags, args[i+1])
				i++
			}
		} else {
			positional = append(positional, a)
		}
	}
	return append(flags, positional...)
}

func showHelp() {
	fmt.Fprintln(os.Stderr, `joerd - distributed elevation tile production pipeline

Usage:
  joerd --config <path> [--jobs-file <path>] <command>

Commands:
  server              run the worker loop against the configured queue
  enqueue-downloads   run download planning and enqueue download jobs
  enqueue-renders     run render planning and enqueue render jobs

Flags:
  --config <path>     path to a YAML configuration file (required)
  --jobs-file <path>  restrict planning to the regions listed in this file
  --debug             enable debug logging

Environment:
  SKIP_EXISTING       when set, enqueue-downloads suppresses jobs whose
                       output already exists in the source store`)
}

// buildPlugins constructs every source/output/store plugin instance
// named in cfg (the queue is built separately by buildQueue), through the type-string registries described
// in DESIGN NOTES ("Plugin registry by string name").
func buildPlugins(cfg *Config) (sources map[string]Source, outputs map[string]Output, sourceStore, outputStore Store, err error) {
	sources = make(map[string]Source)
	for _, opts := range cfg.Sources {
		s, err := NewSource(opts)
		if err != nil {
			return nil, nil, nil, nil, err
		}
		sources[s.Name()] = s
	}

	outputs = make(map[string]Output)
	for _, opts := range cfg.Outputs {
		o, err := NewOutput(opts)
		if err != nil {
			return nil, nil, nil, nil, err
		}
		outputs[o.ProductKind()] = o
	}

	sourceStoreOpts, _ := cfg.Store["source_store"].(map[string]any)
	if sourceStoreOpts == nil {
		sourceStoreOpts = cfg.Store
	}
	sourceStore, err = NewStore(sourceStoreOpts)
	if err != nil {
		return nil, nil, nil, nil, fmt.Errorf("building source store: %w", err)
	}
	outputStore, err = NewStore(cfg.Store)
	if err != nil {
		return nil, nil, nil, nil, fmt.Errorf("building output store: %w", err)
	}
	return sources, outputs, sourceStore, outputStore, nil
}

func buildQueue(cfg *Config) (Queue, error) {
	opts := map[string]any{"type": "direct"}
	if cfg.Cluster.SQSQueueName != "" {
		opts = map[string]any{"type": "sqs", "sqs_queue_name": cfg.Cluster.SQSQueueName}
	}
	return NewQueue(opts)
}

func loadPlannerRegions(cfg *Config, jobsFile string) ([]Region, error) {
	if jobsFile == "" {
		return cfg.RegionList(), nil
	}
	return loadRegionsFromJobsFile(jobsFile)
}

func cmdServer(configPath, jobsFile string) error {
	cfg, err := LoadConfig(configPath)
	if err != nil {
		return err
	}
	sources, outputs, sourceStore, outputStore, err := buildPlugins(cfg)
	if err != nil {
		return err
	}
	queue, err := buildQueue(cfg)
	if err != nil {
		return fmt.Errorf("building queue: %w", err)
	}

	worker := NewWorker(sources, outputs, sourceStore, outputStore)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		slog.Info("received shutdown signal, finishing in-flight message")
		cancel()
	}()

	return worker.Run(ctx, queue)
}

func cmdEnqueueDownloads(configPath, jobsFile string) error {
	cfg, err := LoadConfig(configPath)
	if err != nil {
		return err
	}
	sources, outputs, sourceStore, _, err := buildPlugins(cfg)
	if err != nil {
		return err
	}
	queue, err := buildQueue(cfg)
	if err != nil {
		return fmt.Errorf("building queue: %w", err)
	}
	regions, err := loadPlannerRegions(cfg, jobsFile)
	if err != nil {
		return err
	}

	ctx := context.Background()
	for _, source := range sources {
		if err := source.GetIndex(ctx); err != nil {
			return fmt.Errorf("refreshing index for %s: %w", source.Name(), err)
		}
	}

	planner := NewPlanner(sourceMapValues(sources), outputMapValues(outputs), sourceStore)
	dispatcher := NewDispatcher(queue, DefaultMaxBytes, DefaultMaxBatchLen)
	return planner.PlanDownloads(ctx, regions, dispatcher)
}

func cmdEnqueueRenders(configPath, jobsFile string) error {
	cfg, err := LoadConfig(configPath)
	if err != nil {
		return err
	}
	sources, outputs, sourceStore, _, err := buildPlugins(cfg)
	if err != nil {
		return err
	}
	queue, err := buildQueue(cfg)
	if err != nil {
		return fmt.Errorf("building queue: %w", err)
	}
	regions, err := loadPlannerRegions(cfg, jobsFile)
	if err != nil {
		return err
	}

	ctx := context.Background()
	planner := NewPlanner(sourceMapValues(sources), outputMapValues(outputs), sourceStore)
	dispatcher := NewDispatcher(queue, DefaultMaxBytes, DefaultMaxBatchLen)
	return planner.PlanRenders(ctx, regions, dispatcher)
}

func sourceMapValues(m map[string]Source) []Source {
	out := make([]Source, 0, len(m))
	for _, v := range m {
		out = append(out, v)
	}
	return out
}

func outputMapValues(m map[string]Output) []Output {
	out := make([]Output, 0, len(m))
	for _, v := range m {
		out = append(out, v)
	}
	return out
}
