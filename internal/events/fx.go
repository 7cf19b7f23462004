package events

import (
	"context"

	"go.uber.org/fx"
)

var Module = fx.Module("events",
	fx.Provide(NewOutbox),
	fx.Provide(NewRelay),
	fx.Invoke(runRelay),
)

func runRelay(lc fx.Lifecycle, relay *Relay) {
	lc.Append(fx.Hook{
		OnStart: func(context.Context) error {
			relay.Start()
			return nil
		},
		OnStop: func(context.Context) error {
			relay.Stop()
			return nil
		},
	})
}
