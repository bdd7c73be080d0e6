package realtime

import (
	"github.com/smallbiznis/tabledesk/internal/config"
	"go.uber.org/fx"
)

var Module = fx.Module("realtime",
	fx.Provide(func(cfg config.Config) *Hub {
		return NewHub(cfg.Realtime.BacklogSize)
	}),
	fx.Provide(NewBroadcaster),
	fx.Provide(func(b *Broadcaster) Publisher { return b }),
	fx.Invoke(func(lc fx.Lifecycle, b *Broadcaster) {
		lc.Append(fx.Hook{OnStart: b.Start, OnStop: b.Stop})
	}),
)
