package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/dkeye/Huddle/internal/domain"
	"github.com/google/uuid"
)

// UpsertStudent inserts the student or refreshes its profile fields.
func (d *DB) UpsertStudent(ctx context.Context, s domain.Identity) error {
	_, err := d.db.ExecContext(ctx, `
		INSERT INTO students (id, name, email, college_name) VALUES (?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET name = excluded.name, email = excluded.email, college_name = excluded.college_name`,
		string(s.ID), s.Name, s.Email, s.College,
	)
	if err != nil {
		return fmt.Errorf("upsert student: %w", err)
	}
	return nil
}

func (d *DB) Student(ctx context.Context, id domain.UserID) (domain.Identity, error) {
	var s domain.Identity
	var sid string
	err := d.db.QueryRowContext(ctx,
		`SELECT id, name, email, college_name FROM students WHERE id = ?`, string(id),
	).Scan(&sid, &s.Name, &s.Email, &s.College)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Identity{}, fmt.Errorf("student %s: %w", id, domain.ErrNotFound)
	}
	if err != nil {
		return domain.Identity{}, fmt.Errorf("get student: %w", err)
	}
	s.ID = domain.UserID(sid)
	return s, nil
}

// CreateGroup creates a group and makes its creator the first member.
func (d *DB) CreateGroup(ctx context.Context, name string, creator domain.UserID) (domain.Group, error) {
	g := domain.Group{ID: domain.GroupID(uuid.NewString()), Name: name}

	tx, err := d.db.BeginTx(ctx, nil)
	if err != nil {
		return domain.Group{}, fmt.Errorf("create group: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx,
		`INSERT INTO groups (id, name, created_by, created_at) VALUES (?, ?, ?, ?)`,
		string(g.ID), g.Name, string(creator), d.now().UnixMilli(),
	); err != nil {
		return domain.Group{}, fmt.Errorf("create group: %w", err)
	}
	if _, err := tx.ExecContext(ctx,
		`INSERT INTO group_members (group_id, student_id) VALUES (?, ?)`,
		string(g.ID), string(creator),
	); err != nil {
		return domain.Group{}, fmt.Errorf("add creator: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return domain.Group{}, fmt.Errorf("create group: %w", err)
	}
	return g, nil
}

func (d *DB) Group(ctx context.Context, id domain.GroupID) (domain.Group, error) {
	var g domain.Group
	var gid string
	err := d.db.QueryRowContext(ctx, `SELECT id, name FROM groups WHERE id = ?`, string(id)).Scan(&gid, &g.Name)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Group{}, fmt.Errorf("group %s: %w", id, domain.ErrNotFound)
	}
	if err != nil {
		return domain.Group{}, fmt.Errorf("get group: %w", err)
	}
	g.ID = domain.GroupID(gid)
	return g, nil
}

// GroupsOf lists the groups a student belongs to, by name.
func (d *DB) GroupsOf(ctx context.Context, student domain.UserID) ([]domain.Group, error) {
	rows, err := d.db.QueryContext(ctx, `
		SELECT g.id, g.name FROM groups g
		JOIN group_members m ON m.group_id = g.id
		WHERE m.student_id = ?
		ORDER BY g.name`, string(student))
	if err != nil {
		return nil, fmt.Errorf("list groups: %w", err)
	}
	defer rows.Close()

	groups := []domain.Group{}
	for rows.Next() {
		var id, name string
		if err := rows.Scan(&id, &name); err != nil {
			return nil, err
		}
		groups = append(groups, domain.Group{ID: domain.GroupID(id), Name: name})
	}
	return groups, rows.Err()
}

// AddMember is idempotent. The group must exist.
func (d *DB) AddMember(ctx context.Context, group domain.GroupID, student domain.UserID) error {
	if _, err := d.Group(ctx, group); err != nil {
		return err
	}
	_, err := d.db.ExecContext(ctx,
		`INSERT OR IGNORE INTO group_members (group_id, student_id) VALUES (?, ?)`,
		string(group), string(student),
	)
	if err != nil {
		return fmt.Errorf("add member: %w", err)
	}
	return nil
}

func (d *DB) RemoveMember(ctx context.Context, group domain.GroupID, student domain.UserID) error {
	_, err := d.db.ExecContext(ctx,
		`DELETE FROM group_members WHERE group_id = ? AND student_id = ?`,
		string(group), string(student),
	)
	if err != nil {
		return fmt.Errorf("remove member: %w", err)
	}
	return nil
}

// IsMember answers the hub's membership checks.
func (d *DB) IsMember(ctx context.Context, group domain.GroupID, student domain.UserID) (bool, error) {
	var n int
	err := d.db.QueryRowContext(ctx,
		`SELECT COUNT(1) FROM group_members WHERE group_id = ? AND student_id = ?`,
		string(group), string(student),
	).Scan(&n)
	if err != nil {
		return false, fmt.Errorf("check membership: %w", err)
	}
	return n > 0, nil
}
