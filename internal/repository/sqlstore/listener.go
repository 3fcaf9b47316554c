package sqlstore

import (
	"context"
	"fmt"
	"time"

	"github.com/lib/pq"

	"github.com/jwalitptl/travel-notifications/pkg/changefeed"
	"github.com/jwalitptl/travel-notifications/pkg/logger"
	"github.com/jwalitptl/travel-notifications/pkg/metrics"
)

const (
	minReconnectInterval = 10 * time.Second
	maxReconnectInterval = time.Minute
	listenerPingInterval = 90 * time.Second
)

// Relay forwards postgres trigger notifications on ChangeChannel to a
// changefeed publisher.
type Relay struct {
	dsn     string
	pub     changefeed.Publisher
	logger  *logger.Logger
	metrics *metrics.Metrics
}

func NewRelay(dsn string, pub changefeed.Publisher, log *logger.Logger, m *metrics.Metrics) *Relay {
	if log == nil {
		log = logger.Nop()
	}
	return &Relay{dsn: dsn, pub: pub, logger: log, metrics: m}
}

// Run listens until ctx is cancelled. Notifications raised while the
// listener is reconnecting are lost; subscribers resync on their next load.
func (r *Relay) Run(ctx context.Context) error {
	listener := pq.NewListener(r.dsn, minReconnectInterval, maxReconnectInterval, r.reportEvent)
	defer listener.Close()

	if err := listener.Listen(ChangeChannel); err != nil {
		return fmt.Errorf("failed to listen on %s: %w", ChangeChannel, err)
	}
	r.logger.Info("relay listening", "channel", ChangeChannel)

	ticker := time.NewTicker(listenerPingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case n := <-listener.Notify:
			if n == nil {
				// Sent after a reconnect.
				continue
			}
			if err := r.Forward(ctx, n.Extra); err != nil {
				r.logger.Error(err, "failed to forward change", "channel", n.Channel)
			}
		case <-ticker.C:
			go func() {
				if err := listener.Ping(); err != nil {
					r.logger.Warn("listener ping failed", "error", err.Error())
				}
			}()
		}
	}
}

// Forward decodes one trigger payload and publishes it.
func (r *Relay) Forward(ctx context.Context, payload string) error {
	event, err := changefeed.Decode([]byte(payload))
	if err != nil {
		r.failed()
		return err
	}
	if err := r.pub.Publish(ctx, event); err != nil {
		r.failed()
		return fmt.Errorf("failed to publish %s change: %w", event.Table, err)
	}
	if r.metrics != nil {
		r.metrics.RelayEventsForwarded.WithLabelValues(event.Table).Inc()
	}
	return nil
}

func (r *Relay) failed() {
	if r.metrics != nil {
		r.metrics.RelayEventsFailed.Inc()
	}
}

func (r *Relay) reportEvent(ev pq.ListenerEventType, err error) {
	switch ev {
	case pq.ListenerEventConnected:
		r.logger.Info("listener connected")
	case pq.ListenerEventDisconnected:
		r.logger.Error(err, "listener disconnected")
	case pq.ListenerEventReconnected:
		r.logger.Info("listener reconnected")
	case pq.ListenerEventConnectionAttemptFailed:
		r.logger.Error(err, "listener connection attempt failed")
	}
}
