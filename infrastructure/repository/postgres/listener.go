package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/lib/pq"

	"github.com/MaanVader/Chack/domain/entity/assessment"
	"github.com/MaanVader/Chack/observability/types"
)

const (
	listenerMinReconnect = 10 * time.Second
	listenerMaxReconnect = time.Minute
)

// Subscribe delivers the current snapshot and re-reads the row whenever a
// notification for id arrives on the store channel. A periodic re-read bounds
// latency when a notification is lost during a reconnect.
func (s *Store) Subscribe(ctx context.Context, id string) (<-chan assessment.Assessment, error) {
	current, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	log := s.logger.WithFields(types.Fields{"assessment_id": id, "channel": s.channel})

	listener := pq.NewListener(s.dsn, listenerMinReconnect, listenerMaxReconnect,
		func(ev pq.ListenerEventType, err error) {
			if err != nil {
				log.Warn(ctx, "Listener connection event", types.Fields{"event": int(ev), "error": err.Error()})
			}
		})
	if err := listener.Listen(s.channel); err != nil {
		listener.Close()
		return nil, fmt.Errorf("listen %s: %w", s.channel, err)
	}

	out := make(chan assessment.Assessment, 1)
	out <- *current

	go s.watch(ctx, id, listener, out, current, log)

	return out, nil
}

func (s *Store) watch(ctx context.Context, id string, listener *pq.Listener, out chan assessment.Assessment, last *assessment.Assessment, log types.Logger) {
	defer close(out)
	defer listener.Close()

	ticker := time.NewTicker(s.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case n, ok := <-listener.Notify:
			if !ok {
				return
			}
			// nil marks a reconnect; anything may have changed meanwhile
			if n != nil && n.Extra != id {
				continue
			}
		case <-ticker.C:
		}

		snap, err := s.Get(ctx, id)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			log.Error(ctx, "Failed to refresh subscribed assessment", err, nil)
			continue
		}
		if snap.Status == last.Status && snap.UpdatedAt.Equal(last.UpdatedAt) {
			continue
		}
		last = snap

		select {
		case out <- *snap:
		default:
			select {
			case <-out:
			default:
			}
			out <- *snap
		}
	}
}
