package health

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/bytedance/sonic"
	"go.uber.org/fx"

	"trade_engine/internal/modules/config"
	"trade_engine/internal/modules/health/service"
	"trade_engine/internal/runner"
	"trade_engine/pkg/logger"
	"trade_engine/pkg/metrics"
)

type Config struct {
	Addr string
}

func NewConfig(cfg *config.Config) Config {
	return Config{Addr: fmt.Sprintf("%s:%d", cfg.Service.Host, cfg.Service.AdminPort)}
}

type healthResponse struct {
	Ready            bool                 `json:"ready"`
	UptimeSec        int64                `json:"uptime_sec"`
	ActiveStrategies int                  `json:"active_strategies"`
	ActiveSessions   int                  `json:"active_sessions"`
	LastSignalUnix   int64                `json:"last_signal_unix"`
	Heartbeats       map[string]time.Time `json:"heartbeats"`
	Stale            []string             `json:"stale"`
}

func NewMux(state *service.State) *http.ServeMux {
	mux := http.NewServeMux()

	mux.HandleFunc("/livez", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	mux.HandleFunc("/readyz", func(w http.ResponseWriter, r *http.Request) {
		if !state.Ready() {
			http.Error(w, "not ready", http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ready"))
	})

	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		st := state.Status()
		resp := healthResponse{
			Ready:            state.Ready(),
			UptimeSec:        int64(st.Uptime.Seconds()),
			ActiveStrategies: st.ActiveStrategies,
			ActiveSessions:   st.ActiveSessions,
			Heartbeats:       st.Heartbeats,
			Stale:            st.Stale,
		}
		if !st.LastSignalAt.IsZero() {
			resp.LastSignalUnix = st.LastSignalAt.Unix()
		}
		body, err := sonic.Marshal(resp)
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write(body)
	})

	mux.Handle("/metrics", metrics.Handler())
	return mux
}

func RunHTTP(lc fx.Lifecycle, cfg Config, mux *http.ServeMux, state *service.State) {
	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			ln, err := net.Listen("tcp", cfg.Addr)
			if err != nil {
				return err
			}
			go func() {
				if err := srv.Serve(ln); err != nil && err != http.ErrServerClosed {
					logger.Error("[HEALTH] serve %s: %v", cfg.Addr, err)
				}
			}()
			state.SetReady(true)
			logger.Info("[HEALTH] listening on %s", cfg.Addr)
			return nil
		},
		OnStop: func(ctx context.Context) error {
			state.SetReady(false)
			return srv.Shutdown(ctx)
		},
	})
}

func Module() fx.Option {
	return fx.Module("health",
		fx.Provide(
			func(m *runner.Manager) *service.State { return service.NewState(m) },
			NewConfig,
			NewMux,
		),
		fx.Invoke(RunHTTP),
	)
}
