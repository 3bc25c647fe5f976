package push

import (
	"github.com/foxseedlab/roundup/internal/config"
	internalpush "github.com/foxseedlab/roundup/internal/push"
	"github.com/samber/do/v2"
)

func RegisterDI(injector do.Injector) {
	do.Provide(injector, func(i do.Injector) (internalpush.Channel, error) {
		cfg := do.MustInvoke[*config.Config](i)
		return NewWSChannel(cfg.PushURL), nil
	})
}
