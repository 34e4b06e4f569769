package cli

import (
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	"github.com/dshills/geostorm/internal/config"
	"github.com/dshills/geostorm/internal/engine"
	"github.com/dshills/geostorm/internal/engine/store"
	"github.com/dshills/geostorm/internal/journal"
	"github.com/dshills/geostorm/internal/logx"
	"github.com/dshills/geostorm/internal/workspace"
)

// session bundles the workspace, store, journal and engine a command
// operates on. Commands that only read (info, journal) open a partial
// session; editing commands open the full stack.
type session struct {
	cfg config.Config
	log logx.Logger

	ws  *workspace.Workspace
	st  *store.Store
	jrn *journal.Journal
	eng *engine.Engine

	metrics *http.Server
}

// loadConfig resolves the effective configuration for a command:
// viper-managed sources first, then explicitly set root flags.
func loadConfig(cmd *cobra.Command) (config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		return config.Config{}, err
	}
	if ws, _ := cmd.Flags().GetString("workspace"); ws != "" {
		cfg.Workspace = ws
	}
	if v, _ := cmd.Flags().GetBool("verbose"); v {
		cfg.Verbose = true
	}
	return cfg, nil
}

// openSession loads the workspace and its collections and brings up
// the journal-backed engine.
func openSession(cmd *cobra.Command) (*session, error) {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return nil, err
	}
	log := logx.New(cfg.SlogLevel())

	ws, err := workspace.Load(cfg.Workspace, workspace.WithLogger(log))
	if err != nil {
		return nil, err
	}

	st := store.NewStore()
	if _, err := ws.LoadInto(st); err != nil {
		return nil, err
	}

	jrn, err := journal.Open(cfg.JournalDir(),
		journal.WithLogger(log),
		journal.WithSync(cfg.Journal.Sync),
		journal.WithCacheSize(cfg.Journal.CacheSize),
	)
	if err != nil {
		return nil, err
	}

	eng := engine.New(st,
		engine.WithLogger(log),
		engine.WithJournal(jrn),
		engine.WithSeqBase(jrn.LastSeq()),
		engine.WithMaxUndoEntries(cfg.MaxUndo),
		engine.WithQueueDepth(cfg.QueueDepth),
	)

	s := &session{cfg: cfg, log: log, ws: ws, st: st, jrn: jrn, eng: eng}
	if cfg.MetricsAddr != "" {
		s.serveMetrics(cfg.MetricsAddr)
	}
	return s, nil
}

// openReadSession loads the workspace and journal without an engine,
// for commands that never mutate.
func openReadSession(cmd *cobra.Command) (*session, error) {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return nil, err
	}
	log := logx.New(cfg.SlogLevel())

	ws, err := workspace.Load(cfg.Workspace, workspace.WithLogger(log))
	if err != nil {
		return nil, err
	}
	jrn, err := journal.Open(cfg.JournalDir(), journal.WithLogger(log))
	if err != nil {
		return nil, err
	}
	return &session{cfg: cfg, log: log, ws: ws, jrn: jrn}, nil
}

// serveMetrics registers the engine and journal collectors on a
// private registry and serves them in the background. Best effort: a
// busy port logs a warning and the command proceeds.
func (s *session) serveMetrics(addr string) {
	reg := prometheus.NewRegistry()
	reg.MustRegister(engine.NewEngineCollector(s.eng))
	reg.MustRegister(journal.NewCollector(s.jrn))

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	s.metrics = &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		if err := s.metrics.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.log.Warn("metrics server stopped", "addr", addr, "err", err)
		}
	}()
	s.log.Info("serving metrics", "addr", addr)
}

// export writes every collection back to its workspace file.
func (s *session) export() error {
	n, err := s.ws.Export(s.st)
	if err != nil {
		return fmt.Errorf("export workspace: %w", err)
	}
	s.log.Info("workspace exported", "features", n)
	return nil
}

// Close tears the session down in dependency order.
func (s *session) Close() error {
	var first error
	if s.metrics != nil {
		if err := s.metrics.Close(); err != nil && first == nil {
			first = err
		}
	}
	if s.eng != nil {
		if err := s.eng.Close(); err != nil && first == nil {
			first = err
		}
	}
	if s.jrn != nil {
		if err := s.jrn.Close(); err != nil && first == nil {
			first = err
		}
	}
	return first
}
