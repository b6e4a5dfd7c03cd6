package notify

import (
	"context"
	"log/slog"
)

// Mutator is the authoritative side of the action dispatchers
type Mutator interface {
	MarkAsRead(ctx context.Context, id int64) error
	MarkAllAsRead(ctx context.Context) error
	DeleteNotification(ctx context.Context, id int64) error
}

// Dispatcher runs user actions optimistically: apply locally, call the server,
// then confirm or roll back.
type Dispatcher struct {
	store  *Store
	api    Mutator
	logger *slog.Logger
}

func NewDispatcher(store *Store, api Mutator, logger *slog.Logger) *Dispatcher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Dispatcher{store: store, api: api, logger: logger}
}

// MarkAsRead marks id read. Marking an entry that is already read succeeds
// without a request.
func (d *Dispatcher) MarkAsRead(ctx context.Context, id int64) error {
	m := d.store.BeginMarkRead(id)
	if m == nil {
		return nil
	}
	return d.resolve(m, d.api.MarkAsRead(ctx, id))
}

// MarkAllAsRead marks every loaded entry read locally and the full set on the server
func (d *Dispatcher) MarkAllAsRead(ctx context.Context) error {
	m := d.store.BeginMarkAllRead()
	return d.resolve(m, d.api.MarkAllAsRead(ctx))
}

// DeleteNotification removes id; on failure it reappears at its old position
func (d *Dispatcher) DeleteNotification(ctx context.Context, id int64) error {
	m := d.store.BeginDelete(id)
	return d.resolve(m, d.api.DeleteNotification(ctx, id))
}

func (d *Dispatcher) resolve(m *Mutation, err error) error {
	if err != nil {
		d.store.Rollback(m)
		d.logger.Warn("mutation_rolled_back",
			"mutation_id", m.ID,
			"kind", m.Kind.String(),
			"targets", m.TargetIDs,
			"error", err,
		)
		return err
	}
	d.store.Confirm(m)
	return nil
}
