// Package application provides application-level services and dependency
// injection.
package application

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"

	"github.com/flowtonehq/flowtone/internal/adapters/audio"
	"github.com/flowtonehq/flowtone/internal/adapters/fgcontext/x11"
	"github.com/flowtonehq/flowtone/internal/adapters/intent"
	"github.com/flowtonehq/flowtone/internal/adapters/stream"
	appFocus "github.com/flowtonehq/flowtone/internal/application/focus"
	"github.com/flowtonehq/flowtone/internal/application/ports"
	appRouting "github.com/flowtonehq/flowtone/internal/application/routing"
	"github.com/flowtonehq/flowtone/internal/application/session"
	"github.com/flowtonehq/flowtone/internal/application/steering"
	"github.com/flowtonehq/flowtone/internal/domain/focus"
	domainRouting "github.com/flowtonehq/flowtone/internal/domain/routing"
	"github.com/flowtonehq/flowtone/internal/infrastructure/config"
	"github.com/flowtonehq/flowtone/internal/infrastructure/logging"
	"github.com/flowtonehq/flowtone/internal/infrastructure/storage"
	"github.com/flowtonehq/flowtone/internal/infrastructure/tracing"
	"github.com/flowtonehq/flowtone/internal/infrastructure/watch"
)

// selfAppName exempts flowtone's own windows from focus classification.
const selfAppName = "flowtone"

// Container holds all application dependencies and provides a central point
// for dependency injection. It manages the lifecycle of services and
// ensures proper initialization order.
type Container struct {
	// Configuration
	config  *config.Config
	verbose bool // Override log level to debug when true

	// Database connection
	dbConn *storage.Connection

	// Repositories
	rulesRepo  ports.RuleStoragePort
	policyRepo ports.PolicyStoragePort
	prefsRepo  ports.PreferenceStoragePort

	// Observability
	logger *logging.Logger
	tracer *tracing.Tracer

	// Playback
	sink     *audio.Sink
	reminder *audio.Reminder

	// Streaming
	streamClient *stream.Client

	// Application services
	coordinator   *session.Coordinator
	focusEngine   *appFocus.Engine
	routingEngine *appRouting.Engine
	steerService  *steering.Service
	classifier    *intent.Classifier

	// Foreground monitoring, created on demand in StartMonitoring.
	contextSource ports.ContextSourcePort
	rulesWatcher  *watch.RulesWatcher
	monitorCancel context.CancelFunc
	monitorWG     sync.WaitGroup

	// policyMu guards the mutable policy snapshot used by steering edits.
	policyMu sync.Mutex
	policy   focus.Policy

	// AudioOutput overrides the playback destination; nil means discard
	// with real-time pacing.
	audioOut io.Writer

	// dbPath overrides the default database location.
	dbPath string
}

// Option configures the container.
type Option func(*Container)

// WithAudioOutput directs raw PCM output to the given writer, typically a
// pipe into a system player.
func WithAudioOutput(w io.Writer) Option {
	return func(c *Container) { c.audioOut = w }
}

// WithDatabasePath overrides the default database location.
func WithDatabasePath(path string) Option {
	return func(c *Container) { c.dbPath = path }
}

// NewContainer creates a dependency injection container with all services
// initialized based on the provided configuration.
func NewContainer(cfg *config.Config, verbose bool, opts ...Option) (*Container, error) {
	if cfg == nil {
		cfg = config.NewDefaultConfig()
	}

	c := &Container{
		config:  cfg,
		verbose: verbose,
	}
	for _, opt := range opts {
		opt(c)
	}

	if err := c.initObservability(); err != nil {
		return nil, fmt.Errorf("failed to initialize observability: %w", err)
	}

	if err := c.initDatabase(); err != nil {
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}
	c.initRepositories()

	c.initPlayback()
	c.initStream()

	if err := c.initServices(); err != nil {
		_ = c.Close()
		return nil, fmt.Errorf("failed to initialize services: %w", err)
	}

	return c, nil
}

// initObservability initializes the logger and tracer.
func (c *Container) initObservability() error {
	logLevel := logging.Level(c.config.Logging.Level)
	if c.verbose {
		logLevel = logging.LevelDebug
	}
	logFormat := logging.FormatText
	if c.config.Logging.Format == "json" {
		logFormat = logging.FormatJSON
	}

	c.logger = logging.New(logging.Config{
		Level:  logLevel,
		Format: logFormat,
		Output: os.Stderr,
	})

	if c.config.Observability.Tracing.Enabled {
		tracer, err := tracing.New(context.Background(), tracing.Config{
			Enabled:      true,
			ExporterType: tracing.ExporterType(c.config.Observability.Tracing.ExporterType),
			OTLPEndpoint: c.config.Observability.Tracing.OTLPEndpoint,
			ServiceName:  c.config.Observability.Tracing.ServiceName,
			Environment:  "production",
			SampleRate:   c.config.Observability.Tracing.SampleRate,
		})
		if err != nil {
			return fmt.Errorf("failed to create tracer: %w", err)
		}
		c.tracer = tracer
	} else {
		c.tracer = tracing.Default()
	}

	return nil
}

// initDatabase opens the SQLite database.
func (c *Container) initDatabase() error {
	path := c.dbPath
	if path == "" {
		loader, err := config.NewLoader("")
		if err != nil {
			return err
		}
		path = loader.DefaultDatabasePath()
	}

	conn, err := storage.NewConnection(path)
	if err != nil {
		return fmt.Errorf("failed to create database connection: %w", err)
	}
	if err := conn.Open(); err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}

	c.dbConn = conn
	return nil
}

// initRepositories initializes all storage repositories.
func (c *Container) initRepositories() {
	c.rulesRepo = storage.NewRuleRepository(c.dbConn)
	c.policyRepo = storage.NewPolicyRepository(c.dbConn)
	c.prefsRepo = storage.NewPreferenceRepository(c.dbConn)
}

// initPlayback creates the audio sink and the reminder pinger.
func (c *Container) initPlayback() {
	out := c.audioOut
	if out == nil {
		switch path := c.config.Audio.Output; path {
		case "":
		case "stdout", "-":
			out = os.Stdout
		default:
			f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_APPEND, 0644)
			if err != nil {
				c.logger.Warn("audio output unavailable, discarding playback",
					"path", path,
					"error", err.Error(),
				)
			} else {
				out = f
			}
		}
	}

	var device audio.Device
	if out != nil {
		device = audio.NewWriterDevice(out, c.config.Audio.SampleRate, c.config.Audio.Channels)
	} else {
		device = audio.NewDiscardDevice(c.config.Audio.SampleRate, c.config.Audio.Channels)
	}

	c.sink = audio.NewSink(device, c.logger)
	c.reminder = audio.NewReminder(c.sink)
}

// initStream creates the streaming client over the configured backend.
func (c *Container) initStream() {
	c.streamClient = stream.NewClient(
		c.config.Backend.URL,
		c.config.Backend.Model,
		c.config.Backend.APIKey,
		c.sink,
		stream.WithLogger(c.logger),
		stream.WithTracer(c.tracer),
	)
}

// initServices wires the coordinator, the policy engines, and steering.
func (c *Container) initServices() error {
	ctx := context.Background()

	opts := session.Options{
		APIKey:         c.config.Backend.APIKey,
		CalmPrompt:     c.config.Session.CalmPrompt,
		IntensePrompt:  c.config.Session.IntensePrompt,
		FreePlayPrompt: c.config.Session.FreePlayPrompt,
		Temperature:    c.config.Backend.Temperature,
	}
	c.applyPromptPreferences(ctx, &opts)

	c.coordinator = session.NewCoordinator(opts, c.streamClient, c.reminder, c.tracer, c.logger)

	policy, err := c.loadPolicy(ctx)
	if err != nil {
		return err
	}
	c.policy = policy

	c.focusEngine = appFocus.NewEngine(policy,
		func(offending focus.Context) {
			if err := c.coordinator.Suspend(context.Background(), offending.AppName, offending.ActiveHost); err != nil {
				c.logger.Warn("suspend on violation failed", "error", err.Error())
			}
		},
		func() {
			if err := c.coordinator.ResumeSuspended(context.Background()); err != nil {
				c.logger.Warn("resume after refocus failed", "error", err.Error())
			}
		},
		c.logger,
	)

	rules, err := c.loadRules(ctx)
	if err != nil {
		return err
	}
	c.routingEngine = appRouting.NewEngine(rules, func(rule *domainRouting.Rule) {
		bg := context.Background()
		var err error
		if rule == nil {
			err = c.coordinator.SetRouted(bg, "", "")
		} else {
			err = c.coordinator.SetRouted(bg, rule.Label, rule.Prompt)
		}
		if err != nil {
			c.logger.Debug("routing switch skipped", "error", err.Error())
		}
	}, c.logger)

	c.initSteering()
	return nil
}

// applyPromptPreferences overlays stored prompt preferences on the session
// options.
func (c *Container) applyPromptPreferences(ctx context.Context, opts *session.Options) {
	for _, pref := range []struct {
		key  string
		dest *string
	}{
		{storage.PrefCalmPrompt, &opts.CalmPrompt},
		{storage.PrefIntensePrompt, &opts.IntensePrompt},
		{storage.PrefFreePlayPrompt, &opts.FreePlayPrompt},
	} {
		if value, ok, err := c.prefsRepo.GetPreference(ctx, pref.key); err == nil && ok {
			*pref.dest = value
		}
	}
}

// loadPolicy returns the stored policy, falling back to the configured one.
func (c *Container) loadPolicy(ctx context.Context) (focus.Policy, error) {
	stored, ok, err := c.policyRepo.LoadPolicy(ctx)
	if err != nil {
		return focus.Policy{}, fmt.Errorf("failed to load focus policy: %w", err)
	}
	if ok {
		stored.SelfAppName = selfAppName
		return stored, nil
	}

	return focus.Policy{
		Mode:           focus.Mode(c.config.Policy.Mode),
		BlockedApps:    c.config.Policy.BlockedApps,
		BlockedDomains: c.config.Policy.BlockedDomains,
		AllowedApps:    c.config.Policy.AllowedApps,
		AllowedDomains: c.config.Policy.AllowedDomains,
		SelfAppName:    selfAppName,
	}, nil
}

// loadRules returns the routing rule set: the configured rules file when
// set, the database otherwise.
func (c *Container) loadRules(ctx context.Context) (*domainRouting.Set, error) {
	if path := c.config.Routing.RulesFile; path != "" {
		set, err := watch.LoadRulesFile(path)
		if err == nil {
			return set, nil
		}
		if !errors.Is(err, os.ErrNotExist) {
			c.logger.Warn("rules file unreadable, falling back to database",
				"path", path,
				"error", err.Error(),
			)
		}
	}

	rules, err := c.rulesRepo.ListRules(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load routing rules: %w", err)
	}
	return domainRouting.NewSet(rules), nil
}

// initSteering wires the classifier and the intent dispatch actions.
func (c *Container) initSteering() {
	c.classifier = intent.NewClassifier(intent.Config{
		BaseURL: c.config.Classifier.URL,
		APIKey:  c.config.Classifier.APIKey,
		Model:   c.config.Classifier.Model,
		Timeout: c.config.Classifier.Timeout,
	})

	actions := steering.Actions{
		SteerMusic: func(ctx context.Context, prompt string) error {
			return c.coordinator.SetOverride(ctx, prompt)
		},
		Block: func(ctx context.Context, targets []string) error {
			return c.editPolicy(ctx, targets, true)
		},
		Unblock: func(ctx context.Context, targets []string) error {
			return c.editPolicy(ctx, targets, false)
		},
	}
	c.steerService = steering.NewService(c.classifier, actions, c.blockContextSnapshot, c.tracer, c.logger)
}

// blockContextSnapshot copies the current blocked lists for classification
// requests, so the classifier can resolve references to already-blocked
// targets.
func (c *Container) blockContextSnapshot() ports.BlockContext {
	c.policyMu.Lock()
	defer c.policyMu.Unlock()
	return ports.BlockContext{
		BlockedApps:    append([]string(nil), c.policy.BlockedApps...),
		BlockedDomains: append([]string(nil), c.policy.BlockedDomains...),
	}
}

// EditBlockedTargets adds or removes targets on the active policy's blocked
// lists. It is the exported form of editPolicy used by the CLI.
func (c *Container) EditBlockedTargets(ctx context.Context, targets []string, block bool) error {
	return c.editPolicy(ctx, targets, block)
}

// editPolicy adds or removes targets on the active policy's blocked lists,
// persists the result, and swaps it into the focus engine. Targets with a
// dot are treated as domains, everything else as application names.
func (c *Container) editPolicy(ctx context.Context, targets []string, block bool) error {
	c.policyMu.Lock()
	policy := c.policy

	for _, target := range targets {
		target = strings.TrimSpace(target)
		if target == "" {
			continue
		}
		if strings.Contains(target, ".") {
			policy.BlockedDomains = editList(policy.BlockedDomains, target, block)
		} else {
			policy.BlockedApps = editList(policy.BlockedApps, target, block)
		}
	}

	c.policy = policy
	c.policyMu.Unlock()

	if err := c.policyRepo.SavePolicy(ctx, policy); err != nil {
		return fmt.Errorf("failed to persist focus policy: %w", err)
	}
	c.focusEngine.SetPolicy(policy)
	return nil
}

// editList adds or removes an entry, case-insensitively and without
// duplicates.
func editList(list []string, entry string, add bool) []string {
	out := make([]string, 0, len(list)+1)
	for _, item := range list {
		if !strings.EqualFold(item, entry) {
			out = append(out, item)
		}
	}
	if add {
		out = append(out, entry)
	}
	return out
}

// StartMonitoring begins foreground-context monitoring: the X11 source, the
// focus and routing engines, and the rules file watcher. It should be
// called once a session is running; monitoring is optional and failure to
// reach the display server is reported, not fatal.
func (c *Container) StartMonitoring(ctx context.Context) error {
	if c.contextSource != nil {
		return nil
	}

	source, err := x11.NewSource(c.logger)
	if err != nil {
		return fmt.Errorf("foreground monitoring unavailable: %w", err)
	}

	monitorCtx, cancel := context.WithCancel(ctx)
	if err := source.Start(monitorCtx); err != nil {
		cancel()
		_ = source.Close()
		return err
	}

	c.contextSource = source
	c.monitorCancel = cancel

	c.focusEngine.Enable(monitorCtx)
	if c.config.Routing.Enabled {
		c.routingEngine.Enable(monitorCtx)
	}

	// Fan snapshots out to both engines.
	c.monitorWG.Add(1)
	go func() {
		defer c.monitorWG.Done()
		for {
			select {
			case <-monitorCtx.Done():
				return
			case snapshot, ok := <-source.Contexts():
				if !ok {
					return
				}
				c.focusEngine.HandleContext(snapshot)
				if c.config.Routing.Enabled {
					c.routingEngine.HandleContext(snapshot)
				}
			}
		}
	}()

	if path := c.config.Routing.RulesFile; path != "" && c.config.Routing.Enabled {
		watcher, err := watch.NewRulesWatcher(path, watch.DefaultWatcherConfig(), c.routingEngine.SetRules, c.logger)
		if err != nil {
			c.logger.Warn("rules watcher unavailable", "error", err.Error())
		} else if err := watcher.Start(monitorCtx); err != nil {
			c.logger.Warn("rules watcher failed to start", "error", err.Error())
			_ = watcher.Close()
		} else {
			c.rulesWatcher = watcher
		}
	}

	return nil
}

// StopMonitoring stops the engines and the context source.
func (c *Container) StopMonitoring() {
	if c.contextSource == nil {
		return
	}

	c.focusEngine.Disable()
	c.routingEngine.Disable()

	if c.rulesWatcher != nil {
		_ = c.rulesWatcher.Close()
		c.rulesWatcher = nil
	}

	c.monitorCancel()
	_ = c.contextSource.Close()
	c.monitorWG.Wait()

	c.contextSource = nil
	c.monitorCancel = nil
}

// Close releases all resources held by the container.
func (c *Container) Close() error {
	c.StopMonitoring()

	if c.coordinator != nil {
		_ = c.coordinator.Cancel(context.Background())
	}
	if c.sink != nil {
		_ = c.sink.Stop()
	}
	if c.tracer != nil {
		_ = c.tracer.Shutdown(context.Background())
	}
	if c.dbConn != nil {
		return c.dbConn.Close()
	}
	return nil
}

// Config returns the application configuration.
func (c *Container) Config() *config.Config {
	return c.config
}

// Logger returns the structured logger.
func (c *Container) Logger() *logging.Logger {
	return c.logger
}

// Tracer returns the OpenTelemetry tracer.
func (c *Container) Tracer() *tracing.Tracer {
	return c.tracer
}

// Coordinator returns the session coordinator.
func (c *Container) Coordinator() *session.Coordinator {
	return c.coordinator
}

// Steering returns the steering service.
func (c *Container) Steering() *steering.Service {
	return c.steerService
}

// FocusEngine returns the focus-policy engine.
func (c *Container) FocusEngine() *appFocus.Engine {
	return c.focusEngine
}

// RoutingEngine returns the prompt-routing engine.
func (c *Container) RoutingEngine() *appRouting.Engine {
	return c.routingEngine
}

// Policy returns the active focus policy snapshot.
func (c *Container) Policy() focus.Policy {
	c.policyMu.Lock()
	defer c.policyMu.Unlock()
	return c.policy
}

// SetPolicyMode switches between blocklist and allowlist, persists the
// result, and swaps it into the focus engine.
func (c *Container) SetPolicyMode(ctx context.Context, mode focus.Mode) error {
	c.policyMu.Lock()
	policy := c.policy
	policy.Mode = mode
	c.policy = policy
	c.policyMu.Unlock()

	if err := c.policyRepo.SavePolicy(ctx, policy); err != nil {
		return fmt.Errorf("failed to persist focus policy: %w", err)
	}
	c.focusEngine.SetPolicy(policy)
	return nil
}

// RulesRepository returns the routing rules repository.
func (c *Container) RulesRepository() ports.RuleStoragePort {
	return c.rulesRepo
}

// PolicyRepository returns the focus policy repository.
func (c *Container) PolicyRepository() ports.PolicyStoragePort {
	return c.policyRepo
}

// PreferenceRepository returns the preference repository.
func (c *Container) PreferenceRepository() ports.PreferenceStoragePort {
	return c.prefsRepo
}

// ReloadRules re-reads the routing rules and swaps them into the engine.
func (c *Container) ReloadRules(ctx context.Context) error {
	rules, err := c.loadRules(ctx)
	if err != nil {
		return err
	}
	c.routingEngine.SetRules(rules)
	return nil
}
