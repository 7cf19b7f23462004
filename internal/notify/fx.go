package notify

import (
	"go.uber.org/fx"

	"github.com/retailware/bonusgate/internal/events"
)

var Module = fx.Module("notify",
	fx.Provide(
		NewTelegram,
		func(t *Telegram) Notifier { return t },
		func(t *Telegram) events.Sink { return t },
	),
)
