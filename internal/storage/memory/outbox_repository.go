package memory

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/vladislavdragonenkov/crm/internal/domain"
)

// outboxRecord хранит сообщение и служебные поля для in-memory реализации.
type outboxRecord struct {
	msg        domain.OutboxMessage
	status     string
	attemptCnt int
	createdAt  time.Time
	updatedAt  time.Time
}

// outboxLog - журнал outbox. Транзакция пишет в слой с base, который при
// коммите вливается в base; откат просто отбрасывает слой.
type outboxLog struct {
	base    *outboxLog
	records map[string]outboxRecord
	// order - id, впервые добавленные в этом слое, в порядке вставки.
	order []string
}

func newOutboxLog(base *outboxLog) *outboxLog {
	return &outboxLog{base: base, records: make(map[string]outboxRecord)}
}

func (l *outboxLog) get(id string) (outboxRecord, bool) {
	if rec, ok := l.records[id]; ok {
		return rec, true
	}
	if l.base != nil {
		return l.base.get(id)
	}
	return outboxRecord{}, false
}

func (l *outboxLog) put(id string, rec outboxRecord) {
	if _, known := l.get(id); !known {
		l.order = append(l.order, id)
	}
	l.records[id] = rec
}

// each обходит записи в порядке вставки, пока fn возвращает true.
func (l *outboxLog) each(fn func(rec outboxRecord) bool) bool {
	if l.base != nil && !l.base.each(func(rec outboxRecord) bool {
		if staged, ok := l.records[rec.msg.ID]; ok {
			rec = staged
		}
		return fn(rec)
	}) {
		return false
	}
	for _, id := range l.order {
		if !fn(l.records[id]) {
			return false
		}
	}
	return true
}

// merge переносит слой в base и возвращает base.
func (l *outboxLog) merge() *outboxLog {
	if l.base == nil {
		return l
	}
	for id, rec := range l.records {
		l.base.records[id] = rec
	}
	l.base.order = append(l.base.order, l.order...)
	return l.base
}

type outboxRepository struct {
	acc access
}

// Enqueue сохраняет событие со статусом `pending` и возвращает его с идентификатором.
func (r *outboxRepository) Enqueue(_ context.Context, msg domain.OutboxMessage) (domain.OutboxMessage, error) {
	if msg.ID == "" {
		msg.ID = uuid.NewString()
	}
	msg.Payload = append([]byte(nil), msg.Payload...)

	err := r.acc.write(func(st *state) error {
		if _, exists := st.outbox.get(msg.ID); exists {
			return domain.ErrDuplicateID
		}
		now := time.Now().UTC()
		st.outbox.put(msg.ID, outboxRecord{
			msg:       msg,
			status:    domain.OutboxStatusPending,
			createdAt: now,
			updatedAt: now,
		})
		return nil
	})
	if err != nil {
		return domain.OutboxMessage{}, err
	}
	return msg, nil
}

// PullPending возвращает до limit сообщений со статусом `pending` в порядке вставки.
func (r *outboxRepository) PullPending(_ context.Context, limit int) ([]domain.OutboxMessage, error) {
	if limit <= 0 {
		limit = 100
	}

	var result []domain.OutboxMessage
	err := r.acc.read(func(st *state) error {
		result = make([]domain.OutboxMessage, 0, limit)
		st.outbox.each(func(rec outboxRecord) bool {
			if rec.status == domain.OutboxStatusPending {
				result = append(result, rec.msg)
			}
			return len(result) < limit
		})
		return nil
	})
	return result, err
}

func (r *outboxRepository) Stats(context.Context) (domain.OutboxStats, error) {
	var stats domain.OutboxStats
	err := r.acc.read(func(st *state) error {
		st.outbox.each(func(rec outboxRecord) bool {
			if rec.status != domain.OutboxStatusPending {
				return true
			}
			stats.PendingCount++
			if stats.OldestPendingAt.IsZero() || rec.createdAt.Before(stats.OldestPendingAt) {
				stats.OldestPendingAt = rec.createdAt
			}
			return true
		})
		return nil
	})
	return stats, err
}

// MarkSent обновляет статус события после успешной публикации.
func (r *outboxRepository) MarkSent(_ context.Context, id string) error {
	return r.mark(id, domain.OutboxStatusSent)
}

// MarkFailed фиксирует ошибку публикации.
func (r *outboxRepository) MarkFailed(_ context.Context, id string) error {
	return r.mark(id, domain.OutboxStatusFailed)
}

func (r *outboxRepository) mark(id, status string) error {
	return r.acc.write(func(st *state) error {
		rec, ok := st.outbox.get(id)
		if !ok {
			return domain.ErrOutboxPublish
		}
		rec.status = status
		rec.attemptCnt++
		rec.updatedAt = time.Now().UTC()
		st.outbox.put(id, rec)
		return nil
	})
}

var _ domain.OutboxRepository = (*outboxRepository)(nil)
