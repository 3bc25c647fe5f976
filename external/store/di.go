package store

import (
	"github.com/foxseedlab/roundup/internal/config"
	internalstore "github.com/foxseedlab/roundup/internal/store"
	"github.com/samber/do/v2"
)

func RegisterDI(injector do.Injector) {
	do.Provide(injector, func(i do.Injector) (internalstore.Store, error) {
		cfg := do.MustInvoke[*config.Config](i)
		return Open(cfg.DataDir)
	})
}
