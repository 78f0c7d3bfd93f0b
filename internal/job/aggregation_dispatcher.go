package job

import (
	"context"
	"encoding/json"
	"sync/atomic"
	"time"

	"homeledger/internal/model"
	"homeledger/internal/repository"

	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// AggregationDispatcher turns period refresh notifications into outbox rows.
// NotifyPeriodRefresh never blocks: when the buffer is full the event is
// dropped and logged, the posting that raised it is unaffected.
type AggregationDispatcher struct {
	events  chan model.PeriodRefreshEvent
	outbox  *repository.OutboxRepository
	topic   string
	log     *logrus.Logger
	dropped atomic.Int64
}

func NewAggregationDispatcher(db *gorm.DB, topic string, buffer int, log *logrus.Logger) *AggregationDispatcher {
	return &AggregationDispatcher{
		events: make(chan model.PeriodRefreshEvent, buffer),
		outbox: repository.NewOutboxRepository(db),
		topic:  topic,
		log:    log,
	}
}

func (d *AggregationDispatcher) NotifyPeriodRefresh(event model.PeriodRefreshEvent) {
	select {
	case d.events <- event:
	default:
		n := d.dropped.Add(1)
		d.log.WithFields(logrus.Fields{
			"account_id": event.AccountID,
			"period":     event.Period,
			"dropped":    n,
		}).Warn("[AggregationDispatcher] buffer full, refresh dropped")
	}
}

func (d *AggregationDispatcher) Dropped() int64 {
	return d.dropped.Load()
}

// Start consumes events until ctx is cancelled, then flushes what is left.
func (d *AggregationDispatcher) Start(ctx context.Context) error {
	d.log.Info("[AggregationDispatcher] started")
	for {
		select {
		case <-ctx.Done():
			d.flush(ctx, d.drain(nil))
			d.log.Info("[AggregationDispatcher] stopped")
			return nil
		case event := <-d.events:
			d.flush(ctx, d.drain([]model.PeriodRefreshEvent{event}))
		}
	}
}

// flush writes outside ctx's cancellation so shutdown cannot lose a batch
// that was already taken off the channel.
func (d *AggregationDispatcher) flush(ctx context.Context, batch []model.PeriodRefreshEvent) {
	writeCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()
	d.persist(writeCtx, batch)
}

// drain appends whatever is buffered right now without waiting.
func (d *AggregationDispatcher) drain(batch []model.PeriodRefreshEvent) []model.PeriodRefreshEvent {
	for {
		select {
		case event := <-d.events:
			batch = append(batch, event)
		default:
			return batch
		}
	}
}

// persist writes one outbox row per account-month in the batch; the last
// event for a key wins.
func (d *AggregationDispatcher) persist(ctx context.Context, batch []model.PeriodRefreshEvent) {
	if len(batch) == 0 {
		return
	}
	latest := make(map[string]model.PeriodRefreshEvent, len(batch))
	order := make([]string, 0, len(batch))
	for _, event := range batch {
		if _, seen := latest[event.Key()]; !seen {
			order = append(order, event.Key())
		}
		latest[event.Key()] = event
	}

	for _, key := range order {
		payload, err := json.Marshal(latest[key])
		if err != nil {
			d.log.WithError(err).WithField("key", key).Error("[AggregationDispatcher] encode event")
			continue
		}
		msg := &model.OutboxMessage{
			MessageKey: key,
			Topic:      d.topic,
			Payload:    string(payload),
			Status:     model.OutboxStatusPending,
		}
		if err := d.outbox.Create(ctx, msg); err != nil {
			d.log.WithError(err).WithField("key", key).Error("[AggregationDispatcher] write outbox")
		}
	}
}
