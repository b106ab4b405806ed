package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// Invocation is one recorded worklet run.
type Invocation struct {
	ID          int64     `json:"id"`
	Invocation  string    `json:"invocation"` // UUID
	Operation   string    `json:"operation"`
	Key         string    `json:"key"`
	CharIndex   int       `json:"char_index"`
	Matched     bool      `json:"matched"`
	SelectedURL string    `json:"selected_url,omitempty"`
	RanAt       time.Time `json:"ran_at"`
}

// Beacon is one hit on the collect endpoint.
type Beacon struct {
	ID         int64     `json:"id"`
	Char       string    `json:"char"`
	CharIndex  int       `json:"char_index"`
	RemoteAddr string    `json:"remote_addr,omitempty"`
	ReceivedAt time.Time `json:"received_at"`
}

// InsertInvocation persists one worklet run and returns its row ID.
func (db *DB) InsertInvocation(ctx context.Context, inv *Invocation) (int64, error) {
	matched := 0
	if inv.Matched {
		matched = 1
	}
	res, err := db.ExecContext(ctx, `
		INSERT INTO invocations (invocation, operation, key, char_index, matched, selected_url, ran_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		inv.Invocation, inv.Operation, inv.Key, inv.CharIndex,
		matched, inv.SelectedURL, inv.RanAt.UnixMilli(),
	)
	if err != nil {
		return 0, fmt.Errorf("store: insert invocation: %w", err)
	}
	return res.LastInsertId()
}

// RecentInvocations returns the n most recent worklet runs, newest first.
func (db *DB) RecentInvocations(ctx context.Context, n int) ([]*Invocation, error) {
	rows, err := db.QueryContext(ctx, `
		SELECT id, invocation, operation, key, char_index, matched, selected_url, ran_at
		FROM invocations
		ORDER BY ran_at DESC, id DESC
		LIMIT ?`, n)
	if err != nil {
		return nil, fmt.Errorf("store: list invocations: %w", err)
	}
	defer rows.Close()

	var out []*Invocation
	for rows.Next() {
		var (
			inv     Invocation
			matched int
			ranAt   int64
		)
		if err := rows.Scan(&inv.ID, &inv.Invocation, &inv.Operation,
			&inv.Key, &inv.CharIndex, &matched, &inv.SelectedURL, &ranAt); err != nil {
			return nil, fmt.Errorf("store: scan invocation: %w", err)
		}
		inv.Matched = matched != 0
		inv.RanAt = time.UnixMilli(ranAt).UTC()
		out = append(out, &inv)
	}
	return out, rows.Err()
}

// InsertBeacon persists one collect hit and returns its row ID.
func (db *DB) InsertBeacon(ctx context.Context, b *Beacon) (int64, error) {
	res, err := db.ExecContext(ctx, `
		INSERT INTO beacons (char, char_index, remote_addr, received_at)
		VALUES (?, ?, ?, ?)`,
		b.Char, b.CharIndex, b.RemoteAddr, b.ReceivedAt.UnixMilli(),
	)
	if err != nil {
		return 0, fmt.Errorf("store: insert beacon: %w", err)
	}
	return res.LastInsertId()
}

// BeaconsForIndex returns every beacon recorded for one character
// position, newest first.
func (db *DB) BeaconsForIndex(ctx context.Context, charIndex int) ([]*Beacon, error) {
	rows, err := db.QueryContext(ctx, `
		SELECT id, char, char_index, remote_addr, received_at
		FROM beacons
		WHERE char_index = ?
		ORDER BY received_at DESC, id DESC`, charIndex)
	if err != nil {
		return nil, fmt.Errorf("store: list beacons: %w", err)
	}
	defer rows.Close()
	return scanBeacons(rows)
}

// RecentBeacons returns the n most recent beacons, newest first.
func (db *DB) RecentBeacons(ctx context.Context, n int) ([]*Beacon, error) {
	rows, err := db.QueryContext(ctx, `
		SELECT id, char, char_index, remote_addr, received_at
		FROM beacons
		ORDER BY received_at DESC, id DESC
		LIMIT ?`, n)
	if err != nil {
		return nil, fmt.Errorf("store: list beacons: %w", err)
	}
	defer rows.Close()
	return scanBeacons(rows)
}

func scanBeacons(rows *sql.Rows) ([]*Beacon, error) {
	var out []*Beacon
	for rows.Next() {
		var (
			b          Beacon
			receivedAt int64
		)
		if err := rows.Scan(&b.ID, &b.Char, &b.CharIndex, &b.RemoteAddr, &receivedAt); err != nil {
			return nil, fmt.Errorf("store: scan beacon: %w", err)
		}
		b.ReceivedAt = time.UnixMilli(receivedAt).UTC()
		out = append(out, &b)
	}
	return out, rows.Err()
}
