package service

import (
	"context"
	"time"

	"hydrosync"
	"hydrosync/internal/logger"
	"hydrosync/internal/models"
	"hydrosync/internal/repository"
)

const journalTimeout = 2 * time.Second

// journal appends control events. A nil repo disables it; append errors are
// logged and never fail the operation being recorded.
type journal struct {
	repo repository.EventRepo
	log  *logger.Logger
}

func newJournal(repo repository.EventRepo, log *logger.Logger) *journal {
	return &journal{repo: repo, log: log}
}

func (j *journal) record(typ string, key *hydrosync.ChannelKey, desc string, meta map[string]any) {
	if j == nil || j.repo == nil {
		return
	}
	ev := models.ControlEvent{
		OccurredAt:  time.Now().UTC(),
		Type:        typ,
		Description: desc,
	}
	if key != nil {
		ev.UnitID = key.UnitID
		ev.Channel = string(key.Channel)
	}
	if len(meta) > 0 {
		ev.Metadata = meta
	}

	ctx, cancel := context.WithTimeout(context.Background(), journalTimeout)
	defer cancel()
	if err := j.repo.Append(ctx, ev); err != nil {
		j.log.Errorw("journal_append_failed", "type", typ, "err", err)
	}
}
