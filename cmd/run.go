package cmd

import (
	"context"
	"fmt"

	"github.com/abhisek/alis/internal/agents"
	"github.com/abhisek/alis/internal/config"
	"github.com/abhisek/alis/internal/llm"
	"github.com/abhisek/alis/internal/lock"
	"github.com/abhisek/alis/internal/logger"
	"github.com/abhisek/alis/internal/session"
	"github.com/abhisek/alis/internal/store"
	"github.com/abhisek/alis/internal/tutor"
)

// runtime is everything a command needs to drive sessions.
type runtime struct {
	store      *store.Store
	dispatcher *session.Dispatcher
	llm        llm.Config
	closers    []func() error
}

func (r *runtime) Close() {
	for i := len(r.closers) - 1; i >= 0; i-- {
		_ = r.closers[i]()
	}
}

// buildRuntime opens the store, builds the LLM provider, and wires the
// dispatcher. Without an API key the simulator answers generation
// requests so the tutor still runs end to end.
func buildRuntime(ctx context.Context, cfg config.Config, log *logger.Logger) (*runtime, error) {
	st, err := openStore(cfg)
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}
	rt := &runtime{store: st, closers: []func() error{st.Close}}

	provider, llmCfg, err := llm.NewProviderFromEnv(ctx, st.EventRepo(), log, agents.Simulator())
	if err != nil {
		rt.Close()
		return nil, fmt.Errorf("configure LLM provider: %w", err)
	}
	rt.llm = llmCfg
	log.Info("LLM provider ready", "provider", llmCfg.Provider)

	gen := agents.New(provider, agents.DefaultConfig())
	machine, err := tutor.NewMachine(gen, cfg.Tutor)
	if err != nil {
		rt.Close()
		return nil, err
	}

	var locker lock.Locker
	if cfg.RedisAddr != "" {
		rl, err := lock.NewRedisLocker(ctx, cfg.RedisAddr, lock.DefaultTTL)
		if err != nil {
			rt.Close()
			return nil, err
		}
		rt.closers = append(rt.closers, rl.Close)
		locker = rl
		log.Info("using redis session locks", "addr", cfg.RedisAddr)
	}

	rt.dispatcher = session.NewDispatcher(machine, st.SessionRepo(), st.LogRepo(), locker, log)
	return rt, nil
}
