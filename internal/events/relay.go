package events

import (
	"context"
	"time"

	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// Sink consumes published outbox events. The Telegram notifier is the only
// production sink today.
type Sink interface {
	Deliver(ctx context.Context, event LoyaltyEvent) error
}

// Relay drains unpublished outbox rows in the background.
type Relay struct {
	db       *gorm.DB
	log      *zap.Logger
	sink     Sink
	interval time.Duration
	batch    int

	cancel context.CancelFunc
	done   chan struct{}
}

// RelayParam collects the relay dependencies. The sink is optional; without
// one the relay only marks rows published.
type RelayParam struct {
	fx.In

	DB   *gorm.DB
	Log  *zap.Logger
	Sink Sink `optional:"true"`
}

func NewRelay(p RelayParam) *Relay {
	return &Relay{
		db:       p.DB,
		log:      p.Log.Named("events.relay"),
		sink:     p.Sink,
		interval: 5 * time.Second,
		batch:    50,
	}
}

// Start launches the polling loop.
func (r *Relay) Start() {
	ctx, cancel := context.WithCancel(context.Background())
	r.cancel = cancel
	r.done = make(chan struct{})
	go r.run(ctx)
}

// Stop terminates the polling loop and waits for it to drain.
func (r *Relay) Stop() {
	if r.cancel == nil {
		return
	}
	r.cancel()
	<-r.done
}

func (r *Relay) run(ctx context.Context) {
	defer close(r.done)
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := r.drainOnce(ctx); err != nil && ctx.Err() == nil {
				r.log.Warn("outbox drain failed", zap.Error(err))
			}
		}
	}
}

func (r *Relay) drainOnce(ctx context.Context) error {
	var pending []LoyaltyEvent
	err := r.db.WithContext(ctx).
		Where("published = ?", false).
		Order("created_at").
		Limit(r.batch).
		Find(&pending).Error
	if err != nil {
		return err
	}

	for _, event := range pending {
		if r.sink != nil {
			if err := r.sink.Deliver(ctx, event); err != nil {
				// Leave the row unpublished; it is retried next tick.
				r.log.Warn("event delivery failed",
					zap.String("event_type", event.EventType),
					zap.Int64("event_id", int64(event.ID)),
					zap.Error(err),
				)
				continue
			}
		}
		if err := r.db.WithContext(ctx).
			Model(&LoyaltyEvent{}).
			Where("id = ?", event.ID).
			Update("published", true).Error; err != nil {
			return err
		}
	}
	return nil
}
