package service

import (
	"context"
	"sync"

	"hydrosync"
	"hydrosync/internal/store"
)

// UnitService mounts units for live views and serves their state.
type UnitService struct {
	store  *store.Store
	push   PushConn
	poller Poller
	syncer *Syncer
}

func NewUnitService(st *store.Store, p PushConn, poller Poller, syncer *Syncer) *UnitService {
	return &UnitService{store: st, push: p, poller: poller, syncer: syncer}
}

// Mount joins the unit on the push connection and starts polling it. The
// returned unmount undoes both and is safe to call more than once.
func (s *UnitService) Mount(unitID string) (func(), error) {
	s.push.Subscribe(unitID)
	if err := s.poller.Start(unitID); err != nil {
		s.push.Unsubscribe(unitID)
		return nil, err
	}
	var once sync.Once
	return func() {
		once.Do(func() {
			s.push.Unsubscribe(unitID)
			s.poller.Stop(unitID)
		})
	}, nil
}

func (s *UnitService) Channels(unitID string) []hydrosync.ChannelView {
	return s.store.Unit(unitID)
}

func (s *UnitService) Channel(key hydrosync.ChannelKey) (hydrosync.ChannelView, bool) {
	return s.store.Channel(key)
}

func (s *UnitService) UnitSensors(unitID string) (SensorSnapshot, bool) {
	return s.syncer.Sensors(unitID)
}

// Refresh runs an on-demand full refresh.
func (s *UnitService) Refresh(ctx context.Context, unitID string) error {
	return s.poller.RefreshNow(ctx, unitID)
}

func (s *UnitService) Connection() hydrosync.ConnectionState {
	return s.push.State()
}

func (s *UnitService) Watch(fn func(Event)) func() {
	return s.syncer.Watch(fn)
}
