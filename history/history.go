// Package history journals finished machine tasks in a SQLite database.
package history

import (
	"database/sql"
	"fmt"
	"time"

	// Need to use SQLite connections.
	_ "github.com/mattn/go-sqlite3"

	"github.com/mastercactapus/lasercard/machine"
)

// DB is a task journal. It implements machine.Journal.
type DB struct {
	*sql.DB
	insert *sql.Stmt
}

var _ machine.Journal = &DB{}

// Open opens or creates the journal at path.
func Open(path string) (*DB, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("history: open: %w", err)
	}

	_, err = db.Exec(`
		create table if not exists task
		(
			task_id    varchar(200) not null primary key,
			kind       varchar(100) not null,
			outcome    integer      not null,
			error      text         not null default '',
			start_time integer      not null,
			end_time   integer      not null
		);
		create index if not exists task_start_time_index
			on task (start_time);
	`)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("history: create table: %w", err)
	}

	insert, err := db.Prepare(`
		insert or replace into task
		(task_id, kind, outcome, error, start_time, end_time)
		values (?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("history: prepare: %w", err)
	}

	return &DB{DB: db, insert: insert}, nil
}

// Record stores one finished task.
func (db *DB) Record(r machine.TaskRecord) error {
	_, err := db.insert.Exec(
		r.ID,
		string(r.Kind),
		int(r.Outcome),
		r.Err,
		r.Start.UnixNano(),
		r.End.UnixNano(),
	)
	if err != nil {
		return fmt.Errorf("history: record %s: %w", r.ID, err)
	}
	return nil
}

// Recent returns up to limit tasks, most recently started first.
func (db *DB) Recent(limit int) ([]machine.TaskRecord, error) {
	rows, err := db.Query(`
		select task_id, kind, outcome, error, start_time, end_time
		from task
		order by start_time desc
		limit ?
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("history: query: %w", err)
	}
	defer rows.Close()

	var res []machine.TaskRecord
	for rows.Next() {
		var r machine.TaskRecord
		var kind string
		var outcome int
		var start, end int64
		err = rows.Scan(&r.ID, &kind, &outcome, &r.Err, &start, &end)
		if err != nil {
			return nil, fmt.Errorf("history: scan: %w", err)
		}
		r.Kind = machine.Kind(kind)
		r.Outcome = machine.Outcome(outcome)
		r.Start = time.Unix(0, start)
		r.End = time.Unix(0, end)
		res = append(res, r)
	}
	return res, rows.Err()
}

func (db *DB) Close() error {
	db.insert.Close()
	return db.DB.Close()
}
