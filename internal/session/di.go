package session

import (
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/samber/do/v2"

	"github.com/foxseedlab/roundup/internal/backend"
	"github.com/foxseedlab/roundup/internal/config"
	"github.com/foxseedlab/roundup/internal/push"
	"github.com/foxseedlab/roundup/internal/store"
)

func RegisterDI(injector do.Injector) {
	do.Provide(injector, func(i do.Injector) (*Engine, error) {
		cfg := do.MustInvoke[*config.Config](i)
		bc := do.MustInvoke[backend.Client](i)
		ch := do.MustInvoke[push.Channel](i)
		st := do.MustInvoke[store.Store](i)
		pub := do.MustInvoke[message.Publisher](i)
		return NewEngine(cfg, bc, ch, st, pub), nil
	})
}
