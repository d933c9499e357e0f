package service

import (
	"context"
	"encoding/json"
	"fmt"

	"hydrosync/internal/client"
	"hydrosync/internal/validation"
)

// ErrUnknownRoom is returned for rooms other than front and back.
var ErrUnknownRoom = fmt.Errorf("unknown room: must be %s or %s", client.RoomFront, client.RoomBack)

// RoomService reads room telemetry through and edits the AC schedule.
type RoomService struct {
	backend Backend
}

func NewRoomService(b Backend) *RoomService {
	return &RoomService{backend: b}
}

func (s *RoomService) RoomSensors(ctx context.Context, room string) (json.RawMessage, error) {
	if room != client.RoomFront && room != client.RoomBack {
		return nil, fmt.Errorf("%w: %q", ErrUnknownRoom, room)
	}
	return s.backend.GetRoomSensors(ctx, room)
}

func (s *RoomService) ACSchedule(ctx context.Context) (client.ACSchedule, error) {
	return s.backend.GetACSchedule(ctx)
}

// UpdateACSchedule validates every hour before writing.
func (s *RoomService) UpdateACSchedule(ctx context.Context, sched client.ACSchedule) (client.ACSchedule, error) {
	if err := validation.ValidateACSchedule(sched); err != nil {
		return nil, err
	}
	return s.backend.UpdateACSchedule(ctx, sched)
}
