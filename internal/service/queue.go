package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"hydrosync"
	"hydrosync/internal/client"
	"hydrosync/internal/logger"
	"hydrosync/internal/metrics"
	"hydrosync/internal/models"
	"hydrosync/internal/store"
	"hydrosync/internal/validation"
)

// DefaultRequestTimeout bounds one write request.
const DefaultRequestTimeout = 10 * time.Second

// Ticket tracks one admitted write until the backend answers.
type Ticket struct {
	Pending hydrosync.PendingOperation

	done chan struct{}
	err  error
}

// Done is closed once the write is acknowledged or rolled back.
func (t *Ticket) Done() <-chan struct{} { return t.done }

// Err is the resolution error; only valid after Done is closed.
func (t *Ticket) Err() error { return t.err }

// Wait blocks until resolution or ctx ends. A ctx error does not cancel
// the write itself.
func (t *Ticket) Wait(ctx context.Context) error {
	select {
	case <-t.done:
		return t.err
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (t *Ticket) resolve(err error) {
	t.err = err
	close(t.done)
}

// ActionQueue is the only path for operator writes: validate, admit,
// issue the request, then acknowledge or roll back.
type ActionQueue struct {
	store   *store.Store
	backend Backend
	timeout time.Duration
	journal *journal
	metrics *metrics.Metrics
	log     *logger.Logger
	now     func() time.Time
}

func NewActionQueue(st *store.Store, backend Backend, timeout time.Duration, j *journal, m *metrics.Metrics, log *logger.Logger) *ActionQueue {
	if timeout <= 0 {
		timeout = DefaultRequestTimeout
	}
	if log == nil {
		log = logger.Nop()
	}
	return &ActionQueue{
		store:   st,
		backend: backend,
		timeout: timeout,
		journal: j,
		metrics: m,
		log:     log.With("component", "queue"),
		now:     time.Now,
	}
}

// Submit admits op for key and starts the request in the background.
// Validation and admission errors are returned synchronously and leave the
// store untouched. The request outlives ctx cancellation but not the
// queue timeout.
func (q *ActionQueue) Submit(ctx context.Context, key hydrosync.ChannelKey, op hydrosync.Operation, guards ...store.Guard) (*Ticket, error) {
	if err := validateOperation(key, op); err != nil {
		q.reject(key, op, models.EventRejected, metrics.OutcomeRejected, err)
		return nil, err
	}

	p, err := q.store.SubmitWrite(key, op, guards...)
	if err != nil {
		if errors.Is(err, hydrosync.ErrChannelBusy) {
			q.reject(key, op, models.EventBusy, metrics.OutcomeBusy, err)
		} else {
			q.reject(key, op, models.EventRejected, metrics.OutcomeRejected, err)
		}
		return nil, err
	}

	q.log.Infow("write_submitted", "op_id", p.ID, "key", key.String(), "kind", op.Kind)
	q.journal.record(models.EventSubmit, &key, describe(op), map[string]any{"op_id": p.ID, "kind": string(op.Kind)})

	t := &Ticket{Pending: p, done: make(chan struct{})}
	reqCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), q.timeout)
	go func() {
		defer cancel()
		echoes, others, err := q.execute(reqCtx, p)
		t.resolve(q.finish(p, echoes, others, err))
	}()
	return t, nil
}

func validateOperation(key hydrosync.ChannelKey, op hydrosync.Operation) error {
	if _, err := hydrosync.ParseChannel(string(key.Channel)); err != nil {
		return err
	}
	switch op.Kind {
	case hydrosync.OpToggle:
		if _, err := hydrosync.ParseRelay(string(op.Relay)); err != nil {
			return err
		}
	case hydrosync.OpModeChange:
		if _, err := hydrosync.ParseMode(string(op.Mode)); err != nil {
			return err
		}
	case hydrosync.OpScheduleEdit:
		if op.Schedule == nil {
			return fmt.Errorf("%w: no schedule given", hydrosync.ErrInvalidSchedule)
		}
		return validation.ValidateSchedule(key.Channel, *op.Schedule)
	default:
		return fmt.Errorf("unknown operation kind %q", op.Kind)
	}
	return nil
}

func (q *ActionQueue) reject(key hydrosync.ChannelKey, op hydrosync.Operation, typ, outcome string, err error) {
	q.metrics.Write(string(op.Kind), outcome)
	q.log.Infow("write_rejected", "key", key.String(), "kind", op.Kind, "err", err)
	q.journal.record(typ, &key, describe(op), map[string]any{"error": err.Error()})
}

// execute issues the request. echoes belong to the written channel; others
// are observations of sibling channels carried by the same response.
func (q *ActionQueue) execute(ctx context.Context, p hydrosync.PendingOperation) (echoes, others []store.Observation, err error) {
	key, op := p.Key, p.Op
	switch op.Kind {
	case hydrosync.OpToggle:
		snap, err := q.backend.SetRelay(ctx, key.UnitID, key.Channel, op.Relay)
		if err != nil {
			return nil, nil, err
		}
		obs := relayObservations(snap, store.SourceAck)
		// the backend moves a toggled channel to manual
		manual := hydrosync.ModeManual
		obs = append(obs, store.Observation{Key: key, Mode: &manual, ObservedAt: q.now(), Source: store.SourceAck})
		echoes, others = splitByKey(key, obs)
		return echoes, others, nil

	case hydrosync.OpModeChange:
		res, err := q.backend.SetControlMode(ctx, key.UnitID, key.Channel, op.Mode)
		if err != nil {
			return nil, nil, err
		}
		modes := res.ControlModes
		if len(modes) == 0 && res.Mode != "" {
			modes = map[hydrosync.ChannelID]hydrosync.ControlMode{key.Channel: res.Mode}
		}
		echoes, others = splitByKey(key, modeObservations(key.UnitID, modes, q.now(), store.SourceAck))
		return echoes, others, nil

	case hydrosync.OpScheduleEdit:
		doc := q.scheduleDocument(key, *op.Schedule)
		res, err := q.backend.UpdateSchedule(ctx, key.UnitID, doc)
		if err != nil {
			return nil, nil, err
		}
		echoes, others = splitByKey(key, scheduleObservations(key.UnitID, res, q.now(), store.SourceAck))
		return echoes, others, nil
	}
	return nil, nil, fmt.Errorf("unknown operation kind %q", op.Kind)
}

// scheduleDocument builds the full unit document the backend expects: the
// edited schedule plus every other observed schedule and control mode, so
// nothing is dropped when the backend replaces the active schedule.
func (q *ActionQueue) scheduleDocument(key hydrosync.ChannelKey, sched hydrosync.Schedule) client.ScheduleDocument {
	var doc client.ScheduleDocument
	for _, ch := range hydrosync.Channels {
		v, ok := q.store.Observed(hydrosync.ChannelKey{UnitID: key.UnitID, Channel: ch})
		if !ok {
			continue
		}
		if !v.Schedule.IsZero() {
			doc.SetSchedule(ch, v.Schedule)
		}
		if v.Mode != "" {
			if doc.ControlModes == nil {
				doc.ControlModes = make(map[hydrosync.ChannelID]hydrosync.ControlMode)
			}
			doc.ControlModes[ch] = v.Mode
		}
	}
	doc.SetSchedule(key.Channel, sched)
	if doc.ControlModes != nil {
		doc.ControlModes[key.Channel] = hydrosync.ModeTimer
	}
	return doc
}

// finish resolves p in the store and returns the error handed to the ticket.
func (q *ActionQueue) finish(p hydrosync.PendingOperation, echoes, others []store.Observation, err error) error {
	kind := string(p.Op.Kind)
	if err != nil {
		if !errors.Is(err, hydrosync.ErrRequestFailed) {
			err = &hydrosync.RequestFailedError{Op: kind, Err: err}
		}
		q.store.Fail(p.ID, err)
		q.metrics.Write(kind, metrics.OutcomeRollback)
		q.log.Warnw("write_rolled_back", "op_id", p.ID, "key", p.Key.String(), "kind", kind, "err", err)
		q.journal.record(models.EventRollback, &p.Key, describe(p.Op), map[string]any{"op_id": p.ID, "error": err.Error()})
		return err
	}

	q.store.Acknowledge(p.ID, echoes...)
	for _, o := range others {
		q.metrics.Observation(string(o.Source), string(q.store.ApplyObserved(o)))
	}
	q.metrics.Write(kind, metrics.OutcomeAck)
	q.log.Infow("write_acknowledged", "op_id", p.ID, "key", p.Key.String(), "kind", kind,
		"elapsed", q.now().Sub(p.IssuedAt))
	q.journal.record(models.EventAck, &p.Key, describe(p.Op), map[string]any{"op_id": p.ID})
	return nil
}

func splitByKey(key hydrosync.ChannelKey, obs []store.Observation) (mine, others []store.Observation) {
	for _, o := range obs {
		if o.Key == key {
			mine = append(mine, o)
		} else {
			others = append(others, o)
		}
	}
	return mine, others
}

func describe(op hydrosync.Operation) string {
	switch op.Kind {
	case hydrosync.OpToggle:
		return "toggle " + string(op.Relay)
	case hydrosync.OpModeChange:
		return "mode " + string(op.Mode)
	case hydrosync.OpScheduleEdit:
		if op.Schedule != nil && op.Schedule.Cycle != nil {
			return fmt.Sprintf("cycle %ds every %ds", op.Schedule.Cycle.OnDurationSec, op.Schedule.Cycle.IntervalSec)
		}
		if op.Schedule != nil && op.Schedule.Window != nil {
			return "window " + op.Schedule.Window.On + "-" + op.Schedule.Window.Off
		}
	}
	return string(op.Kind)
}
