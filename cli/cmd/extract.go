package cmd

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/urfave/cli/v2"

	"github.com/lodeworks/sluice/adapter"
	adapterredis "github.com/lodeworks/sluice/adapter/redis"
	"github.com/lodeworks/sluice/adapter/webhook"
	"github.com/lodeworks/sluice/cli/config"
	"github.com/lodeworks/sluice/cli/tui"
	"github.com/lodeworks/sluice/compound"
	"github.com/lodeworks/sluice/engine"
	"github.com/lodeworks/sluice/metrics"
	"github.com/lodeworks/sluice/policy"
	"github.com/lodeworks/sluice/runtime"
	"github.com/lodeworks/sluice/store"
	"github.com/lodeworks/sluice/types"
)

// ExtractCommand returns the extract command.
// This is the only command that consumes a stream.
func ExtractCommand() *cli.Command {
	return &cli.Command{
		Name:  "extract",
		Usage: "Extract components from a fragment stream (the only execution entrypoint)",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "config",
				Usage: "Path to sluice.yaml config file",
			},
			// Input flags
			&cli.StringFlag{
				Name:  "input",
				Usage: "Input path, or - for stdin",
				Value: "-",
			},
			&cli.StringFlag{
				Name:  "input-format",
				Usage: "Input format: framed (length-prefixed msgpack) or raw",
			},
			&cli.IntFlag{
				Name:  "chunk-size",
				Usage: "Synthetic fragment size for raw input",
			},
			// Session identity
			&cli.StringFlag{
				Name:  "session-id",
				Usage: "Session ID (generated if empty)",
			},
			&cli.StringFlag{
				Name:  "request-id",
				Usage: "Upstream request ID (optional)",
			},
			// Store limits
			&cli.IntFlag{
				Name:  "max-component-bytes",
				Usage: "Per-component byte ceiling (0 = default)",
			},
			&cli.IntFlag{
				Name:  "max-components",
				Usage: "Session component count ceiling (0 = default)",
			},
			&cli.StringSliceFlag{
				Name:  "alias",
				Usage: "Extra name alias as Alias=Canonical (repeatable)",
			},
			// Budgets and parse errors
			&cli.DurationFlag{
				Name:  "session-budget",
				Usage: "Session wall-clock budget (0 = default 30s)",
			},
			&cli.DurationFlag{
				Name:  "compound-wait",
				Usage: "Compound completion wait budget (0 = default 10s)",
			},
			&cli.IntFlag{
				Name:  "parse-error-max",
				Usage: "Parse errors inside the window that abort the stream",
			},
			&cli.DurationFlag{
				Name:  "parse-error-window",
				Usage: "Rolling parse-error window",
			},
			// Policy flags
			&cli.StringFlag{
				Name:  "policy",
				Usage: "Delivery policy: strict, streaming, or noop",
			},
			&cli.IntFlag{
				Name:  "flush-count",
				Usage: "Event count flush trigger (streaming policy)",
			},
			&cli.DurationFlag{
				Name:  "flush-interval",
				Usage: "Interval flush trigger (streaming policy)",
			},
			// Adapter flags
			&cli.StringFlag{
				Name:  "adapter",
				Usage: "Completion adapter: webhook or redis",
			},
			&cli.StringFlag{
				Name:  "adapter-url",
				Usage: "Adapter endpoint URL",
			},
			&cli.StringFlag{
				Name:  "adapter-channel",
				Usage: "Redis pub/sub channel (redis adapter)",
			},
			&cli.StringSliceFlag{
				Name:  "adapter-header",
				Usage: "Extra HTTP header as Key=Value (webhook adapter, repeatable)",
			},
			// Output flags
			&cli.StringFlag{
				Name:  "report",
				Usage: "Session report path, or - for stderr",
				Value: "-",
			},
			&cli.BoolFlag{
				Name:  "watch",
				Usage: "Render live extraction progress instead of writing events",
			},
			&cli.BoolFlag{
				Name:  "quiet",
				Usage: "Suppress the session report",
			},
		},
		Action: extractAction,
	}
}

// extractOptions is the merged view of config file values and flags.
// Flags win over the config file; the config file wins over defaults.
type extractOptions struct {
	sessionID string
	requestID string

	inputPath   string
	inputFormat string
	chunkSize   int

	maxComponentBytes int
	maxComponents     int
	aliases           map[string]string
	compounds         map[string]map[string]string

	budgets     runtime.Budgets
	parseErrors runtime.ParseErrorPolicy

	policyName    string
	flushCount    int
	flushInterval time.Duration

	adapterType    string
	adapterURL     string
	adapterChannel string
	adapterHeaders map[string]string
	adapterTimeout time.Duration
	// adapterRetries is nil when unset so each adapter's default applies.
	adapterRetries *int

	reportPath string
	watch      bool
	quiet      bool
}

func extractAction(c *cli.Context) error {
	var cfg config.Config
	if path := c.String("config"); path != "" {
		loaded, err := config.Load(path)
		if err != nil {
			return cli.Exit(fmt.Sprintf("config: %v", err), 1)
		}
		cfg = *loaded
	}

	opts, err := resolveOptions(c, &cfg)
	if err != nil {
		return cli.Exit(err.Error(), 1)
	}

	in, closeIn, err := openInput(opts.inputPath)
	if err != nil {
		return cli.Exit(fmt.Sprintf("input: %v", err), 1)
	}
	defer closeIn()

	meta := &types.SessionMeta{
		SessionID: opts.sessionID,
		RequestID: opts.requestID,
	}
	collector := metrics.NewCollector(opts.sessionID, opts.policyName)

	eng := engine.New(engine.Config{
		Store: store.Config{
			MaxComponentBytes: opts.maxComponentBytes,
			MaxComponents:     opts.maxComponents,
		},
		Aliases:   opts.aliases,
		Registry:  buildRegistry(opts.compounds),
		Collector: collector,
	})

	var events chan tea.Msg
	var sink policy.Sink
	if opts.watch {
		events = make(chan tea.Msg, 16)
		sink = &watchSink{ch: events}
	} else {
		sink = policy.NewWriterSink(os.Stdout)
	}

	pol, err := buildPolicy(opts, sink)
	if err != nil {
		return cli.Exit(fmt.Sprintf("policy: %v", err), 1)
	}
	defer func() { _ = pol.Close() }()

	adapters, err := buildAdapters(opts)
	if err != nil {
		return cli.Exit(fmt.Sprintf("adapter: %v", err), 1)
	}
	defer func() {
		for _, a := range adapters {
			_ = a.Close()
		}
	}()

	orch, err := runtime.NewOrchestrator(runtime.SessionConfig{
		Meta:        meta,
		Source:      buildSource(in, opts),
		Engine:      eng,
		Policy:      pol,
		Collector:   collector,
		Budgets:     opts.budgets,
		ParseErrors: opts.parseErrors,
		Adapters:    adapters,
	})
	if err != nil {
		return fmt.Errorf("failed to create orchestrator: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		cancel()
	}()

	var result *runtime.SessionResult
	if opts.watch {
		result, err = runWatched(ctx, cancel, orch, events, opts.sessionID)
	} else {
		result, err = orch.Run(ctx)
	}
	if result == nil {
		return fmt.Errorf("extraction failed: %w", err)
	}

	exitCode := runtime.ExitCodeFor(result.Outcome)
	if !opts.quiet {
		report := runtime.BuildSessionReport(result, opts.policyName, exitCode)
		if werr := runtime.WriteSessionReport(report, opts.reportPath); werr != nil {
			return fmt.Errorf("report: %w", werr)
		}
	}

	return cli.Exit("", exitCode)
}

// runWatched runs the orchestrator behind a live TUI. The orchestrator
// owns the session; the TUI is a read-only view fed by the watch sink.
func runWatched(ctx context.Context, cancel context.CancelFunc, orch *runtime.Orchestrator, events chan tea.Msg, sessionID string) (*runtime.SessionResult, error) {
	type runOutput struct {
		result *runtime.SessionResult
		err    error
	}
	done := make(chan runOutput, 1)

	go func() {
		result, err := orch.Run(ctx)
		outcome := "failed"
		if result != nil {
			outcome = string(result.Outcome)
		}
		events <- tui.DoneMsg{Outcome: outcome}
		close(events)
		done <- runOutput{result: result, err: err}
	}()

	watchErr := tui.RunWatch(sessionID, events)

	// Quitting the view cancels the session; keep draining so the watch
	// sink never blocks the orchestrator's delivery path.
	cancel()
	go func() {
		for range events {
		}
	}()

	out := <-done
	if watchErr != nil {
		return out.result, fmt.Errorf("watch: %w", watchErr)
	}
	return out.result, out.err
}

// watchSink forwards delivered events to the watch TUI.
type watchSink struct {
	ch chan<- tea.Msg
}

func (s *watchSink) WriteEvents(_ context.Context, events []types.Event) error {
	s.ch <- tui.EventsMsg(append([]types.Event(nil), events...))
	return nil
}

func (s *watchSink) Close() error { return nil }

func resolveOptions(c *cli.Context, cfg *config.Config) (extractOptions, error) {
	opts := extractOptions{
		sessionID: firstNonEmpty(c.String("session-id"), cfg.SessionID),
		requestID: firstNonEmpty(c.String("request-id"), cfg.RequestID),

		inputPath:   c.String("input"),
		inputFormat: firstNonEmpty(c.String("input-format"), cfg.Input.Format, "framed"),

		aliases:   cfg.Aliases,
		compounds: cfg.Compounds,

		policyName: firstNonEmpty(c.String("policy"), cfg.Policy.Name, "strict"),

		adapterType:    firstNonEmpty(c.String("adapter"), cfg.Adapter.Type),
		adapterURL:     firstNonEmpty(c.String("adapter-url"), cfg.Adapter.URL),
		adapterChannel: firstNonEmpty(c.String("adapter-channel"), cfg.Adapter.Channel),
		adapterHeaders: cfg.Adapter.Headers,
		adapterTimeout: cfg.Adapter.Timeout.Duration,

		reportPath: c.String("report"),
		watch:      c.Bool("watch"),
		quiet:      c.Bool("quiet"),
	}

	opts.adapterRetries = cfg.Adapter.Retries

	if opts.sessionID == "" {
		opts.sessionID = fmt.Sprintf("sess-%d", time.Now().UnixNano())
	}

	switch opts.inputFormat {
	case "framed", "raw":
	default:
		return opts, fmt.Errorf("invalid input-format: %s (must be framed or raw)", opts.inputFormat)
	}
	switch opts.policyName {
	case "strict", "streaming", "noop":
	default:
		return opts, fmt.Errorf("invalid policy: %s (must be strict, streaming, or noop)", opts.policyName)
	}

	opts.chunkSize = firstPositive(c.Int("chunk-size"), cfg.Input.ChunkSize)
	opts.maxComponentBytes = firstPositive(c.Int("max-component-bytes"), cfg.Limits.ComponentBytes)
	opts.maxComponents = firstPositive(c.Int("max-components"), cfg.Limits.Components)
	opts.flushCount = firstPositive(c.Int("flush-count"), cfg.Policy.FlushCount)
	opts.flushInterval = firstPositiveDuration(c.Duration("flush-interval"), cfg.Policy.FlushInterval.Duration)

	opts.budgets = runtime.Budgets{
		Session:      firstPositiveDuration(c.Duration("session-budget"), cfg.Budgets.Session.Duration),
		CompoundWait: firstPositiveDuration(c.Duration("compound-wait"), cfg.Budgets.CompoundWait.Duration),
	}
	opts.parseErrors = runtime.ParseErrorPolicy{
		Max:    firstPositive(c.Int("parse-error-max"), cfg.ParseErrors.Max),
		Window: firstPositiveDuration(c.Duration("parse-error-window"), cfg.ParseErrors.Window.Duration),
	}

	extraAliases, err := parsePairs(c.StringSlice("alias"))
	if err != nil {
		return opts, fmt.Errorf("invalid --alias: %w", err)
	}
	if len(extraAliases) > 0 {
		merged := make(map[string]string, len(opts.aliases)+len(extraAliases))
		for k, v := range opts.aliases {
			merged[k] = v
		}
		for k, v := range extraAliases {
			merged[k] = v
		}
		opts.aliases = merged
	}

	extraHeaders, err := parsePairs(c.StringSlice("adapter-header"))
	if err != nil {
		return opts, fmt.Errorf("invalid --adapter-header: %w", err)
	}
	if len(extraHeaders) > 0 {
		merged := make(map[string]string, len(opts.adapterHeaders)+len(extraHeaders))
		for k, v := range opts.adapterHeaders {
			merged[k] = v
		}
		for k, v := range extraHeaders {
			merged[k] = v
		}
		opts.adapterHeaders = merged
	}

	return opts, nil
}

func buildSource(r io.Reader, opts extractOptions) runtime.FragmentSource {
	if opts.inputFormat == "raw" {
		return runtime.NewRawSource(r, opts.sessionID, opts.chunkSize)
	}
	return runtime.NewFramedSource(r)
}

// buildRegistry extends the built-in compound definitions with the
// config file's entries. A config entry for a built-in name replaces it.
func buildRegistry(compounds map[string]map[string]string) *compound.Registry {
	registry := compound.DefaultRegistry()
	for name, subpatterns := range compounds {
		registry.Register(compound.Definition{
			CanonicalName: name,
			Subpatterns:   subpatterns,
		})
	}
	return registry
}

func buildPolicy(opts extractOptions, sink policy.Sink) (policy.Policy, error) {
	switch opts.policyName {
	case "strict":
		return policy.NewStrictPolicy(sink), nil
	case "streaming":
		streamCfg := policy.StreamingConfig{
			FlushCount:    opts.flushCount,
			FlushInterval: opts.flushInterval,
		}
		if streamCfg.FlushCount <= 0 && streamCfg.FlushInterval <= 0 {
			streamCfg.FlushCount = 32
		}
		return policy.NewStreamingPolicy(sink, streamCfg)
	case "noop":
		return policy.NewNoopPolicy(), nil
	default:
		return nil, fmt.Errorf("unknown policy: %s", opts.policyName)
	}
}

func buildAdapters(opts extractOptions) ([]adapter.Adapter, error) {
	switch opts.adapterType {
	case "":
		return nil, nil
	case "webhook":
		retries := webhook.DefaultRetries
		if opts.adapterRetries != nil {
			retries = *opts.adapterRetries
		}
		a, err := webhook.New(webhook.Config{
			URL:     opts.adapterURL,
			Headers: opts.adapterHeaders,
			Timeout: opts.adapterTimeout,
			Retries: retries,
		})
		if err != nil {
			return nil, err
		}
		return []adapter.Adapter{a}, nil
	case "redis":
		retries := adapterredis.DefaultRetries
		if opts.adapterRetries != nil {
			retries = *opts.adapterRetries
		}
		a, err := adapterredis.New(adapterredis.Config{
			URL:     opts.adapterURL,
			Channel: opts.adapterChannel,
			Timeout: opts.adapterTimeout,
			Retries: retries,
		})
		if err != nil {
			return nil, err
		}
		return []adapter.Adapter{a}, nil
	default:
		return nil, fmt.Errorf("unknown adapter: %s (must be webhook or redis)", opts.adapterType)
	}
}

func openInput(path string) (io.Reader, func(), error) {
	if path == "" || path == "-" {
		return os.Stdin, func() {}, nil
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, nil, err
	}
	return f, func() { _ = f.Close() }, nil
}

// parsePairs parses repeated Key=Value flag values into a map.
func parsePairs(pairs []string) (map[string]string, error) {
	if len(pairs) == 0 {
		return nil, nil
	}
	out := make(map[string]string, len(pairs))
	for _, p := range pairs {
		k, v, ok := strings.Cut(p, "=")
		if !ok || k == "" {
			return nil, fmt.Errorf("expected Key=Value, got %q", p)
		}
		out[k] = v
	}
	return out, nil
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

func firstPositive(values ...int) int {
	for _, v := range values {
		if v > 0 {
			return v
		}
	}
	return 0
}

func firstPositiveDuration(values ...time.Duration) time.Duration {
	for _, v := range values {
		if v > 0 {
			return v
		}
	}
	return 0
}
