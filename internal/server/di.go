package server

import (
	"github.com/go-chi/chi/v5"
	"github.com/samber/do/v2"

	"github.com/foxseedlab/roundup/internal/config"
)

func RegisterDI(injector do.Injector) {
	do.Provide(injector, func(i do.Injector) (*Hub, error) {
		cfg := do.MustInvoke[*config.ServerConfig](i)
		return NewHub(cfg.DailyPushQuota), nil
	})
	do.Provide(injector, func(i do.Injector) (*Service, error) {
		st := do.MustInvoke[Store](i)
		hub := do.MustInvoke[*Hub](i)
		return NewService(st, hub), nil
	})
	do.Provide(injector, func(i do.Injector) (*Sweeper, error) {
		cfg := do.MustInvoke[*config.ServerConfig](i)
		st := do.MustInvoke[Store](i)
		return NewSweeper(st, cfg.SessionLifetime(), cfg.SweepSchedule), nil
	})
	do.Provide(injector, func(i do.Injector) (*chi.Mux, error) {
		svc := do.MustInvoke[*Service](i)
		hub := do.MustInvoke[*Hub](i)
		return NewRouter(svc, hub), nil
	})
}
