package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/dkeye/Huddle/internal/domain"
	"github.com/samber/lo"
)

const selectMessage = `
	SELECT m.id, m.group_id, m.sender_id, m.message_text, m.created_at,
	       COALESCE(s.name, ''), COALESCE(s.college_name, '')
	FROM messages m
	LEFT JOIN students s ON s.id = m.sender_id`

// PersistMessage stores the message and returns it with the sender's
// profile joined in, the way it is broadcast.
func (d *DB) PersistMessage(ctx context.Context, group domain.GroupID, sender domain.UserID, text string) (*domain.Message, error) {
	res, err := d.db.ExecContext(ctx,
		`INSERT INTO messages (group_id, sender_id, message_text, created_at) VALUES (?, ?, ?, ?)`,
		string(group), string(sender), text, d.now().UnixMilli(),
	)
	if err != nil {
		return nil, fmt.Errorf("insert message: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("insert message: %w", err)
	}
	return d.Message(ctx, domain.MessageID(id))
}

func (d *DB) Message(ctx context.Context, id domain.MessageID) (*domain.Message, error) {
	row := d.db.QueryRowContext(ctx, selectMessage+` WHERE m.id = ?`, int64(id))
	m, err := scanMessage(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("message %d: %w", id, domain.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get message: %w", err)
	}
	return &m, nil
}

// GroupMessages returns the latest limit messages of a group, oldest first.
func (d *DB) GroupMessages(ctx context.Context, group domain.GroupID, limit int) ([]domain.Message, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := d.db.QueryContext(ctx, `
		SELECT * FROM (`+selectMessage+` WHERE m.group_id = ? ORDER BY m.id DESC LIMIT ?)
		ORDER BY 1 ASC`, string(group), limit)
	if err != nil {
		return nil, fmt.Errorf("list messages: %w", err)
	}
	defer rows.Close()

	msgs := []domain.Message{}
	for rows.Next() {
		m, err := scanMessage(rows)
		if err != nil {
			return nil, err
		}
		msgs = append(msgs, m)
	}
	return msgs, rows.Err()
}

// DeleteMessage removes one message on behalf of its sender.
func (d *DB) DeleteMessage(ctx context.Context, id domain.MessageID, requester domain.UserID) (*domain.Message, error) {
	m, err := d.Message(ctx, id)
	if err != nil {
		return nil, err
	}
	if m.SenderID != requester {
		return nil, fmt.Errorf("%w: message %d belongs to %s", domain.ErrUnauthorized, id, m.SenderID)
	}
	if _, err := d.db.ExecContext(ctx, `DELETE FROM messages WHERE id = ?`, int64(id)); err != nil {
		return nil, fmt.Errorf("delete message: %w", err)
	}
	return m, nil
}

// DeleteMessages removes the requester's own messages among ids within the
// group and returns the ids that were actually deleted.
func (d *DB) DeleteMessages(ctx context.Context, group domain.GroupID, requester domain.UserID, ids []domain.MessageID) ([]domain.MessageID, error) {
	ids = lo.Uniq(ids)
	if len(ids) == 0 {
		return []domain.MessageID{}, nil
	}
	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(ids)), ",")
	args := []any{string(group), string(requester)}
	args = append(args, lo.Map(ids, func(id domain.MessageID, _ int) any { return int64(id) })...)

	tx, err := d.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("delete messages: %w", err)
	}
	defer tx.Rollback()

	rows, err := tx.QueryContext(ctx,
		`SELECT id FROM messages WHERE group_id = ? AND sender_id = ? AND id IN (`+placeholders+`) ORDER BY id`, args...)
	if err != nil {
		return nil, fmt.Errorf("delete messages: %w", err)
	}
	deleted := []domain.MessageID{}
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			rows.Close()
			return nil, err
		}
		deleted = append(deleted, domain.MessageID(id))
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}

	if _, err := tx.ExecContext(ctx,
		`DELETE FROM messages WHERE group_id = ? AND sender_id = ? AND id IN (`+placeholders+`)`, args...); err != nil {
		return nil, fmt.Errorf("delete messages: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("delete messages: %w", err)
	}
	return deleted, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanMessage(s scanner) (domain.Message, error) {
	var (
		m                 domain.Message
		id, created       int64
		group, sender     string
		name, collegeName string
	)
	if err := s.Scan(&id, &group, &sender, &m.Text, &created, &name, &collegeName); err != nil {
		return domain.Message{}, err
	}
	m.ID = domain.MessageID(id)
	m.GroupID = domain.GroupID(group)
	m.SenderID = domain.UserID(sender)
	m.CreatedAt = time.UnixMilli(created).UTC()
	m.SenderName = name
	m.SenderCollege = collegeName
	return m, nil
}
