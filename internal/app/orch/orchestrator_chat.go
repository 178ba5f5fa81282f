package orch

import (
	"context"
	"fmt"
	"strings"

	"github.com/dkeye/Huddle/internal/core"
	"github.com/dkeye/Huddle/internal/domain"
	"github.com/dkeye/Huddle/internal/protocol"
	"github.com/rs/zerolog/log"
)

func (o *Orchestrator) SendMessage(ctx context.Context, cid core.ConnID, p protocol.SendMessage) error {
	id, err := o.actor(cid, p.SenderID)
	if err != nil {
		return err
	}
	_, err = o.send(ctx, id.ID, p.GroupID, p.MessageText)
	return err
}

// PostMessage is the REST entry to the same ordered send path.
func (o *Orchestrator) PostMessage(ctx context.Context, sender domain.UserID, group domain.GroupID, text string) (*domain.Message, error) {
	return o.send(ctx, sender, group, text)
}

// send re-checks membership, persists, then broadcasts the stored record
// to every subscriber of the room, sender included.
func (o *Orchestrator) send(ctx context.Context, sender domain.UserID, group domain.GroupID, text string) (*domain.Message, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, fmt.Errorf("%w: empty message", domain.ErrInvalidPayload)
	}
	if len(text) > o.maxMessageLen() {
		return nil, fmt.Errorf("%w: message longer than %d bytes", domain.ErrInvalidPayload, o.maxMessageLen())
	}

	unlock := o.seq.lock(group)
	defer unlock()

	err := o.Rooms.Authorize(ctx, group, sender)
	o.observeMembership(err)
	if err != nil {
		return nil, err
	}

	storeCtx, cancel := context.WithTimeout(ctx, o.storeTimeout())
	defer cancel()
	msg, err := o.Messages.PersistMessage(storeCtx, group, sender, text)
	if err != nil {
		return nil, fmt.Errorf("persist message: %w", err)
	}

	o.broadcast(domain.GroupRoom(group), protocol.EventNewMessage, msg, "")
	o.Metrics.MessageSent()
	log.Debug().Str("module", "orch").Str("group", string(group)).Int64("message", int64(msg.ID)).Msg("message broadcast")
	return msg, nil
}

// DeleteMessages broadcasts deleted ids to the room. Whether the requester
// may delete them was settled by the store when it deleted the rows.
func (o *Orchestrator) DeleteMessages(ctx context.Context, cid core.ConnID, p protocol.DeleteMessages) error {
	id, err := o.actor(cid, "")
	if err != nil {
		return err
	}
	return o.AnnounceDeleted(ctx, id.ID, p.GroupID, p.MessageIDs)
}

// AnnounceDeleted is the REST entry of DeleteMessages, called after the
// store removed the rows.
func (o *Orchestrator) AnnounceDeleted(ctx context.Context, requester domain.UserID, group domain.GroupID, ids []domain.MessageID) error {
	unlock := o.seq.lock(group)
	defer unlock()

	err := o.Rooms.Authorize(ctx, group, requester)
	o.observeMembership(err)
	if err != nil {
		return err
	}
	if len(ids) == 0 {
		return nil
	}
	o.broadcast(domain.GroupRoom(group), protocol.EventMessagesDeleted, protocol.MessagesDeleted{
		GroupID:    group,
		MessageIDs: ids,
	}, "")
	return nil
}
