// Package persistence provides SQLite-based storage for simulation
// events, transactions, and optimization-run records. Persisted events
// are a lossless serialization of engine events: loading them back and
// rendering must match rendering during the live run.
package persistence

import (
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite"

	"github.com/aerugo/simcash/internal/engine"
	"github.com/aerugo/simcash/internal/journal"
	"github.com/aerugo/simcash/internal/optimize"
)

// DB wraps a SQLite connection.
type DB struct {
	conn *sqlx.DB
}

// Open opens or creates a SQLite database at the given path.
func Open(path string) (*DB, error) {
	conn, err := sqlx.Open("sqlite", path+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}

	db := &DB{conn: conn}
	if err := db.migrate(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}

	return db, nil
}

// Close closes the database connection.
func (db *DB) Close() error {
	return db.conn.Close()
}

func (db *DB) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS simulations (
		id TEXT PRIMARY KEY,
		config_json TEXT NOT NULL,
		ticks_per_day INTEGER NOT NULL,
		num_days INTEGER NOT NULL,
		rng_seed INTEGER NOT NULL
	);

	CREATE TABLE IF NOT EXISTS events (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		simulation_id TEXT NOT NULL,
		seq INTEGER NOT NULL,
		tick INTEGER NOT NULL,
		day INTEGER NOT NULL,
		event_type TEXT NOT NULL,
		agent_id TEXT,
		tx_id TEXT,
		details_json TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS transactions (
		simulation_id TEXT NOT NULL,
		tx_id TEXT NOT NULL,
		day INTEGER NOT NULL,
		sender_id TEXT NOT NULL,
		receiver_id TEXT NOT NULL,
		amount INTEGER NOT NULL,
		amount_settled INTEGER NOT NULL,
		priority INTEGER NOT NULL,
		arrival_tick INTEGER NOT NULL,
		deadline_tick INTEGER NOT NULL,
		is_divisible INTEGER NOT NULL,
		status TEXT NOT NULL,
		parent_tx_id TEXT,
		PRIMARY KEY (simulation_id, tx_id)
	);

	CREATE TABLE IF NOT EXISTS run_events (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		run_id TEXT NOT NULL,
		seq INTEGER NOT NULL,
		iteration INTEGER NOT NULL,
		event_type TEXT NOT NULL,
		agent_id TEXT,
		timestamp TEXT NOT NULL,
		data_json TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_events_sim_tick ON events(simulation_id, tick);
	CREATE INDEX IF NOT EXISTS idx_events_type ON events(simulation_id, event_type);
	CREATE INDEX IF NOT EXISTS idx_txns_day ON transactions(simulation_id, day);
	CREATE INDEX IF NOT EXISTS idx_run_events ON run_events(run_id, seq);
	`
	_, err := db.conn.Exec(schema)
	return err
}

// SaveSimulation registers a simulation run with its configuration.
func (db *DB) SaveSimulation(simulationID, configJSON string, ticksPerDay, numDays int64, rngSeed uint64) error {
	_, err := db.conn.Exec(
		"INSERT OR REPLACE INTO simulations (id, config_json, ticks_per_day, num_days, rng_seed) VALUES (?, ?, ?, ?, ?)",
		simulationID, configJSON, ticksPerDay, numDays, int64(rngSeed),
	)
	return err
}

// SaveEvents appends a simulation's events in journal order. Sequence
// numbers preserve the append order exactly, so replay reproduces it.
func (db *DB) SaveEvents(simulationID string, ticksPerDay int64, events []journal.Event) error {
	if len(events) == 0 {
		return nil
	}

	tx, err := db.conn.Beginx()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	stmt, err := tx.Preparex(`INSERT INTO events
		(simulation_id, seq, tick, day, event_type, agent_id, tx_id, details_json)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for seq, e := range events {
		detailsJSON, err := json.Marshal(e.Details)
		if err != nil {
			return fmt.Errorf("marshal event %d details: %w", seq, err)
		}

		agentID := stringDetail(e.Details, "agent_id")
		if agentID == "" {
			agentID = stringDetail(e.Details, "sender_id")
		}
		txID := stringDetail(e.Details, "tx_id")

		if _, err := stmt.Exec(
			simulationID, seq, e.Tick, e.Tick/ticksPerDay, e.Type,
			nullable(agentID), nullable(txID), string(detailsJSON),
		); err != nil {
			return fmt.Errorf("insert event %d: %w", seq, err)
		}
	}

	return tx.Commit()
}

// LoadEvents reads a simulation's full event stream in sequence order.
func (db *DB) LoadEvents(simulationID string) ([]journal.Event, error) {
	return db.loadEventsWhere(
		"simulation_id = ? ORDER BY seq",
		simulationID,
	)
}

// LoadEventsRange reads events within an inclusive tick range.
func (db *DB) LoadEventsRange(simulationID string, fromTick, toTick int64) ([]journal.Event, error) {
	return db.loadEventsWhere(
		"simulation_id = ? AND tick >= ? AND tick <= ? ORDER BY seq",
		simulationID, fromTick, toTick,
	)
}

func (db *DB) loadEventsWhere(where string, args ...any) ([]journal.Event, error) {
	type eventRow struct {
		Tick        int64  `db:"tick"`
		EventType   string `db:"event_type"`
		DetailsJSON string `db:"details_json"`
	}

	var rows []eventRow
	query := "SELECT tick, event_type, details_json FROM events WHERE " + where
	if err := db.conn.Select(&rows, query, args...); err != nil {
		return nil, fmt.Errorf("load events: %w", err)
	}

	events := make([]journal.Event, 0, len(rows))
	for _, r := range rows {
		var details map[string]any
		if err := json.Unmarshal([]byte(r.DetailsJSON), &details); err != nil {
			return nil, fmt.Errorf("parse event details: %w", err)
		}
		events = append(events, journal.Event{Tick: r.Tick, Type: r.EventType, Details: details})
	}
	return events, nil
}

// RecentEvents returns the most recent N events for a simulation.
func (db *DB) RecentEvents(simulationID string, limit int) ([]journal.Event, error) {
	type eventRow struct {
		Tick        int64  `db:"tick"`
		EventType   string `db:"event_type"`
		DetailsJSON string `db:"details_json"`
	}

	var rows []eventRow
	err := db.conn.Select(&rows,
		"SELECT tick, event_type, details_json FROM events WHERE simulation_id = ? ORDER BY seq DESC LIMIT ?",
		simulationID, limit,
	)
	if err != nil {
		return nil, err
	}

	events := make([]journal.Event, 0, len(rows))
	for i := len(rows) - 1; i >= 0; i-- {
		var details map[string]any
		json.Unmarshal([]byte(rows[i].DetailsJSON), &details)
		events = append(events, journal.Event{Tick: rows[i].Tick, Type: rows[i].EventType, Details: details})
	}
	return events, nil
}

// OverdueTxIDs returns the transactions that went overdue, from events.
func (db *DB) OverdueTxIDs(simulationID string) ([]string, error) {
	var ids []string
	err := db.conn.Select(&ids,
		"SELECT DISTINCT tx_id FROM events WHERE simulation_id = ? AND event_type = ? AND tx_id IS NOT NULL ORDER BY tx_id",
		simulationID, journal.EventTransactionWentOverdue,
	)
	return ids, err
}

// SaveTransactions writes transaction views for one simulation.
func (db *DB) SaveTransactions(simulationID string, ticksPerDay int64, txns []engine.TxView) error {
	if len(txns) == 0 {
		return nil
	}

	tx, err := db.conn.Beginx()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	stmt, err := tx.Preparex(`INSERT OR REPLACE INTO transactions
		(simulation_id, tx_id, day, sender_id, receiver_id, amount, amount_settled,
		 priority, arrival_tick, deadline_tick, is_divisible, status, parent_tx_id)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for _, t := range txns {
		divisible := 0
		if t.IsDivisible {
			divisible = 1
		}
		if _, err := stmt.Exec(
			simulationID, t.ID, t.ArrivalTick/ticksPerDay, t.Sender, t.Receiver,
			int64(t.Amount), int64(t.AmountSettled), t.Priority,
			t.ArrivalTick, t.DeadlineTick, divisible, t.Status, nullable(t.ParentID),
		); err != nil {
			return fmt.Errorf("insert transaction %s: %w", t.ID, err)
		}
	}

	return tx.Commit()
}

// SaveRunEvents appends an optimization run's audit trail.
func (db *DB) SaveRunEvents(runID string, events []optimize.RunEvent) error {
	if len(events) == 0 {
		return nil
	}

	tx, err := db.conn.Beginx()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	stmt, err := tx.Preparex(`INSERT INTO run_events
		(run_id, seq, iteration, event_type, agent_id, timestamp, data_json)
		VALUES (?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for _, e := range events {
		dataJSON, _ := json.Marshal(e.Data)
		if _, err := stmt.Exec(
			runID, e.Seq, e.Iteration, e.EventType,
			nullable(e.AgentID), e.Timestamp.Format("2006-01-02T15:04:05.000Z07:00"), string(dataJSON),
		); err != nil {
			return fmt.Errorf("insert run event %d: %w", e.Seq, err)
		}
	}

	slog.Debug("run events saved", "run_id", runID, "count", len(events))
	return tx.Commit()
}

func stringDetail(details map[string]any, key string) string {
	if s, ok := details[key].(string); ok {
		return s
	}
	return ""
}

func nullable(s string) any {
	if s == "" {
		return nil
	}
	return s
}
