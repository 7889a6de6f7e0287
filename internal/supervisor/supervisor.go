package supervisor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/roach88/bypassd/internal/catalog"
	"github.com/roach88/bypassd/internal/config"
	"github.com/roach88/bypassd/internal/learning"
	"github.com/roach88/bypassd/internal/metrics"
	"github.com/roach88/bypassd/internal/model"
	"github.com/roach88/bypassd/internal/preload"
	"github.com/roach88/bypassd/internal/store"
	"github.com/roach88/bypassd/internal/whitelist"
)

// Files written into the engine work dir besides the catalogs.
const (
	ExclusionFile = "exclude-hosts.txt"
	PreloadFile   = "history-preload.lua"
)

const verboseFlag = "--verbose=1"

// PrepareReport describes the artifacts Prepare produced.
type PrepareReport struct {
	Binary          string   `json:"binary"`
	WorkDir         string   `json:"work_dir"`
	ConfigPath      string   `json:"config_path"`
	ExclusionPath   string   `json:"exclusion_path"`
	TLSStrategies   int      `json:"tls_strategies"`
	HTTPStrategies  int      `json:"http_strategies"`
	ExcludedDomains int      `json:"excluded_domains"`
	Warnings        []string `json:"warnings,omitempty"`
}

// Supervisor owns the engine process and the learning state fed by it.
type Supervisor struct {
	cfg         *config.Config
	learn       *learning.Store
	allow       *whitelist.Registry
	logger      *slog.Logger
	metrics     *metrics.Metrics
	ids         SessionIDGenerator
	lockSink    func(domain string, strategy int)
	lineSink    func(Notification)
	queueSize   int
	flushEvery  int
	stopTimeout time.Duration
	notes       chan Notification

	ctl      sync.Mutex
	prepared *PrepareReport // guarded by ctl
	state    atomic.Int32
	current  atomic.Pointer[run]
}

// run is the per-Start state. Fields below readerDone are touched only by
// the reader goroutine.
type run struct {
	session    string
	logger     *slog.Logger
	proc       *process
	output     *os.File
	debug      *debugSink
	readerDone chan struct{}
	stopped    chan struct{}

	outcomes    int
	debugFailed bool
}

// Option configures a Supervisor.
type Option func(*Supervisor)

// WithLockSink registers a callback for lock changes. strategy is 0 after
// an unlock. It runs on the reader goroutine and must not call Stop
// directly, since Stop waits for that goroutine; use go s.Stop() instead.
func WithLockSink(fn func(domain string, strategy int)) Option {
	return func(s *Supervisor) {
		s.lockSink = fn
	}
}

// WithLineSink registers a callback for every engine output line,
// recognized or not. It runs on the reader goroutine and, like the lock
// sink, must not call Stop synchronously.
func WithLineSink(fn func(Notification)) Option {
	return func(s *Supervisor) {
		s.lineSink = fn
	}
}

// WithMetrics records reader activity on m.
func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Supervisor) {
		s.metrics = m
	}
}

// WithQueueSize overrides the notification queue capacity.
func WithQueueSize(n int) Option {
	return func(s *Supervisor) {
		s.queueSize = n
	}
}

// WithLogger sets the logger. Default: slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(s *Supervisor) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithSessionIDs replaces the UUIDv7 session id generator.
func WithSessionIDs(g SessionIDGenerator) Option {
	return func(s *Supervisor) {
		s.ids = g
	}
}

// New creates a Stopped supervisor. kv backs both the learning store and
// the whitelist.
func New(cfg *config.Config, kv store.KV, opts ...Option) *Supervisor {
	s := &Supervisor{
		cfg:         cfg,
		logger:      slog.Default(),
		ids:         UUIDv7Generator{},
		queueSize:   cfg.QueueSize,
		flushEvery:  cfg.Learning.FlushEvery,
		stopTimeout: cfg.Engine.StopTimeout,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.queueSize <= 0 {
		s.queueSize = config.DefaultQueueSize
	}
	if s.flushEvery <= 0 {
		s.flushEvery = config.DefaultFlushEvery
	}
	if s.stopTimeout <= 0 {
		s.stopTimeout = config.DefaultStopTimeout
	}
	s.notes = make(chan Notification, s.queueSize)
	s.learn = learning.New(kv, learning.WithLogger(s.logger))
	s.allow = whitelist.New(kv)
	return s
}

// State returns the current lifecycle state.
func (s *Supervisor) State() State {
	return State(s.state.Load())
}

// IsRunning reports whether the engine process is alive. It never blocks.
func (s *Supervisor) IsRunning() bool {
	if s.State() != StateRunning {
		return false
	}
	r := s.current.Load()
	return r != nil && !r.proc.exited()
}

// Store returns the learning store.
func (s *Supervisor) Store() *learning.Store {
	return s.learn
}

// Whitelist returns the whitelist registry.
func (s *Supervisor) Whitelist() *whitelist.Registry {
	return s.allow
}

// Notifications returns the bounded queue of recognized events. When the
// queue is full new notifications are dropped, never blocking the reader.
// The channel is never closed; use Done to observe the end of a run.
func (s *Supervisor) Notifications() <-chan Notification {
	return s.notes
}

// SessionID returns the id of the most recent run, or "" before the first
// Start.
func (s *Supervisor) SessionID() string {
	if r := s.current.Load(); r != nil {
		return r.session
	}
	return ""
}

// Done returns a channel closed once the most recent run has fully
// stopped. Before the first Start it returns a closed channel.
func (s *Supervisor) Done() <-chan struct{} {
	if r := s.current.Load(); r != nil {
		return r.stopped
	}
	c := make(chan struct{})
	close(c)
	return c
}

// Prepare verifies the engine binary, support files and TLS template, then
// writes the numbered catalogs, the engine config and the exclusion file
// into the work dir. Every missing required artifact is reported in one
// *ConfigError.
func (s *Supervisor) Prepare(ctx context.Context) (*PrepareReport, error) {
	s.ctl.Lock()
	defer s.ctl.Unlock()

	if !s.state.CompareAndSwap(int32(StateStopped), int32(StatePreparing)) {
		return nil, fmt.Errorf("prepare: %w", errBusy)
	}
	defer s.state.Store(int32(StateStopped))
	return s.prepareLocked(ctx)
}

func (s *Supervisor) prepareLocked(ctx context.Context) (*PrepareReport, error) {
	eng := s.cfg.Engine

	var missing []string
	if err := checkBinary(eng.Binary); err != nil {
		s.logger.Debug("engine binary check failed", "binary", eng.Binary, "error", err)
		missing = append(missing, "engine binary: "+eng.Binary)
	}
	for _, f := range eng.SupportFiles {
		if _, err := os.Stat(f); err != nil {
			missing = append(missing, "support file: "+f)
		}
	}
	if _, err := os.Stat(s.cfg.Catalog.TLSTemplate); err != nil {
		missing = append(missing, "TLS strategy template: "+s.cfg.Catalog.TLSTemplate)
	}
	if len(missing) > 0 {
		err := &ConfigError{Code: ErrCodeConfigMissing, Missing: missing}
		s.logger.Error("prepare failed", "missing", len(missing), "error", err)
		return nil, err
	}

	if err := s.allow.Load(ctx); err != nil {
		return nil, fmt.Errorf("load whitelist: %w", err)
	}

	built, err := catalog.BuildSet(catalog.BuildOptions{
		TLSTemplate:  s.cfg.Catalog.TLSTemplate,
		HTTPTemplate: s.cfg.Catalog.HTTPTemplate,
		Marker:       s.cfg.Catalog.Marker,
		Separator:    s.cfg.Catalog.Separator,
		OutputDir:    eng.WorkDir,
	})
	if err != nil {
		return nil, fmt.Errorf("build catalogs: %w", err)
	}

	exclusion := filepath.Join(eng.WorkDir, ExclusionFile)
	if err := s.allow.GenerateExclusionFile(exclusion); err != nil {
		return nil, fmt.Errorf("generate exclusion file: %w", err)
	}

	report := &PrepareReport{
		Binary:          eng.Binary,
		WorkDir:         eng.WorkDir,
		ConfigPath:      built.ConfigPath,
		ExclusionPath:   exclusion,
		TLSStrategies:   built.TLS.Count(),
		ExcludedDomains: len(s.allow.All()),
		Warnings:        built.Warnings,
	}
	if built.HTTP != nil {
		report.HTTPStrategies = built.HTTP.Count()
	}
	for _, w := range built.Warnings {
		s.logger.Warn(w)
	}
	s.logger.Info("engine prepared",
		"tls_strategies", report.TLSStrategies,
		"http_strategies", report.HTTPStrategies,
		"excluded_domains", report.ExcludedDomains)

	s.prepared = report
	return report, nil
}

func checkBinary(path string) error {
	if path == "" {
		return errors.New("not configured")
	}
	if !strings.ContainsRune(path, filepath.Separator) {
		_, err := exec.LookPath(path)
		return err
	}
	info, err := os.Stat(path)
	if err != nil {
		return err
	}
	if info.IsDir() {
		return fmt.Errorf("%s is a directory", path)
	}
	if info.Mode().Perm()&0o111 == 0 {
		return fmt.Errorf("%s is not executable", path)
	}
	return nil
}

// Start launches the engine. It returns false with a nil error when the
// supervisor is not Stopped. Every Start re-runs the Prepare checks and
// regenerates the catalogs and exclusion file, so whitelist and template
// edits made between runs take effect. It then migrates legacy keys, loads
// the learning store, writes the history preload and spawns the engine with
// a single reader goroutine.
func (s *Supervisor) Start(ctx context.Context) (bool, error) {
	s.ctl.Lock()
	defer s.ctl.Unlock()

	if !s.state.CompareAndSwap(int32(StateStopped), int32(StatePreparing)) {
		return false, nil
	}

	r, err := s.launchLocked(ctx)
	if err != nil {
		s.state.Store(int32(StateStopped))
		return false, err
	}

	s.current.Store(r)
	s.state.Store(int32(StateRunning))
	s.metrics.SetRunning(true)
	go s.readLoop(r)
	return true, nil
}

func (s *Supervisor) launchLocked(ctx context.Context) (*run, error) {
	if _, err := s.prepareLocked(ctx); err != nil {
		return nil, err
	}
	if err := s.loadLearning(ctx); err != nil {
		return nil, err
	}
	s.updateLockGauges()

	session := s.ids.Generate()
	logger := s.logger.With("session", session)

	preloadPath, err := s.writePreload(logger)
	if err != nil {
		return nil, err
	}
	args := s.engineArgs(preloadPath)

	var debug *debugSink
	if s.cfg.Debug.Enabled {
		path := s.cfg.Debug.Path
		if path == "" {
			path = filepath.Join(s.cfg.Engine.WorkDir, fmt.Sprintf("engine-debug-%s.log", session))
		}
		if debug, err = openDebugSink(path); err != nil {
			return nil, err
		}
	}

	output, w, err := os.Pipe()
	if err != nil {
		_ = debug.close()
		return nil, fmt.Errorf("create output pipe: %w", err)
	}
	cmd := exec.Command(s.cfg.Engine.Binary, args...)
	cmd.Dir = s.cfg.Engine.WorkDir
	cmd.Stdout = w
	cmd.Stderr = w

	proc := newProcess(cmd)
	err = proc.start()
	_ = w.Close()
	if err != nil {
		_ = output.Close()
		_ = debug.close()
		_ = debug.remove()
		return nil, err
	}

	logger.Info("engine started", "pid", proc.pid(), "binary", s.cfg.Engine.Binary, "args", args)
	return &run{
		session:    session,
		logger:     logger,
		proc:       proc,
		output:     output,
		debug:      debug,
		readerDone: make(chan struct{}),
		stopped:    make(chan struct{}),
	}, nil
}

// loadLearning refreshes the learning store from the database. Keys left
// dirty by a failed persist are flushed first; when they still cannot be
// written, the in-memory state is kept rather than replaced by older data.
func (s *Supervisor) loadLearning(ctx context.Context) error {
	if s.learn.DirtyCount() > 0 {
		if err := s.learn.Persist(ctx); err != nil {
			s.metrics.ObservePersistFailure()
			s.logger.Warn("unsaved learning data, keeping in-memory state",
				"dirty", s.learn.DirtyCount(), "error", err)
			return nil
		}
	}

	migrated, err := s.learn.Migrate(ctx)
	switch {
	case err != nil:
		s.logger.Warn("legacy migration failed, continuing", "error", err)
	case migrated:
		s.logger.Info("migrated legacy learning data")
	}
	if err := s.learn.Load(ctx); err != nil {
		return fmt.Errorf("load learning store: %w", err)
	}
	return nil
}

// writePreload writes the history preload and dry-runs it. It returns ""
// when there is no history or the artifact does not validate; the engine
// then starts without --preload.
func (s *Supervisor) writePreload(logger *slog.Logger) (string, error) {
	path := filepath.Join(s.cfg.Engine.WorkDir, PreloadFile)
	records := s.learn.HistoryRecords()
	if len(records) == 0 {
		if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
			logger.Warn("remove stale preload", "path", path, "error", err)
		}
		return "", nil
	}

	if _, err := preload.Write(path, records); err != nil {
		return "", err
	}
	got, err := preload.Read(path)
	if err == nil && len(got) != len(records) {
		err = fmt.Errorf("read back %d of %d records", len(got), len(records))
	}
	if err != nil {
		logger.Warn("preload failed validation, starting without history", "path", path, "error", err)
		return "", nil
	}
	logger.Info("history preload written", "records", len(records), "path", path)
	return path, nil
}

func (s *Supervisor) engineArgs(preloadPath string) []string {
	args := []string{"@" + s.prepared.ConfigPath}
	if preloadPath != "" {
		args = append(args, "--preload=@"+preloadPath)
	}
	args = append(args, s.cfg.Engine.ExcludeFlag+"="+s.prepared.ExclusionPath, verboseFlag)
	return append(args, s.cfg.Engine.ExtraArgs...)
}

// Stop terminates the engine and returns false if it was not Running.
// SIGTERM is followed by SIGKILL after the stop timeout. The reader is
// joined, the store persisted, and the debug file deleted unless kept.
func (s *Supervisor) Stop() bool {
	s.ctl.Lock()
	defer s.ctl.Unlock()

	if !s.state.CompareAndSwap(int32(StateRunning), int32(StateStopping)) {
		return false
	}
	r := s.current.Load()
	r.logger.Info("stopping engine", "pid", r.proc.pid())

	s.terminate(r)
	s.joinReader(r)
	s.finish(r, true)
	return true
}

func (s *Supervisor) terminate(r *run) {
	if err := r.proc.terminate(); err != nil && !errors.Is(err, errProcessExited) {
		r.logger.Warn("SIGTERM failed", "error", err)
	}

	timer := time.NewTimer(s.stopTimeout)
	defer timer.Stop()
	select {
	case <-r.proc.Done():
	case <-timer.C:
		r.logger.Warn("engine ignored SIGTERM, killing", "timeout", s.stopTimeout)
		if err := r.proc.kill(); err != nil && !errors.Is(err, errProcessExited) {
			r.logger.Warn("SIGKILL failed", "error", err)
		}
		<-r.proc.Done()
	}
}

// joinReader waits for the reader to drain the pipe. A descendant that
// inherited the write end can hold it open past the engine's exit, so the
// read end is closed after the stop timeout.
func (s *Supervisor) joinReader(r *run) {
	timer := time.NewTimer(s.stopTimeout)
	defer timer.Stop()
	select {
	case <-r.readerDone:
	case <-timer.C:
		r.logger.Warn("engine output still open after exit, closing")
		_ = r.output.Close()
		<-r.readerDone
	}
}

// awaitExit is the natural-exit counterpart of terminate: the output
// closed, so give the process the stop timeout to exit before signalling.
func (s *Supervisor) awaitExit(r *run) {
	timer := time.NewTimer(s.stopTimeout)
	defer timer.Stop()
	select {
	case <-r.proc.Done():
	case <-timer.C:
		s.terminate(r)
	}
}

// finish runs once per run, on whichever side won the Running -> Stopping
// transition.
func (s *Supervisor) finish(r *run, requested bool) {
	s.persist()
	_ = r.output.Close()
	if err := r.debug.close(); err != nil {
		r.logger.Warn("close debug file", "error", err)
	}
	if requested && !s.cfg.Debug.Keep {
		if err := r.debug.remove(); err != nil {
			r.logger.Warn("remove debug file", "error", err)
		}
	}
	s.metrics.SetRunning(false)

	r.logger.Info("engine stopped",
		"requested", requested,
		"exit_code", r.proc.exitCode(),
		"runtime", r.proc.runtime().Round(time.Millisecond))
	s.state.Store(int32(StateStopped))
	close(r.stopped)
}

func (s *Supervisor) persist() {
	if err := s.learn.Persist(context.Background()); err != nil {
		s.metrics.ObservePersistFailure()
	}
}

func (s *Supervisor) updateLockGauges() {
	counts := make(map[model.Protocol]int, len(model.Protocols))
	for _, l := range s.learn.Locks() {
		counts[l.Protocol]++
	}
	for _, p := range model.Protocols {
		s.metrics.SetLocks(p, counts[p])
	}
}
