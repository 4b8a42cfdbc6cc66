package postgres

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	_ "github.com/lib/pq"

	"github.com/AaronLay10/ARTutor/internal/config"
)

// EventRow represents an event stored in Postgres.
type EventRow struct {
	EventID    int64                  `json:"event_id"`
	Timestamp  time.Time              `json:"ts"`
	Level      string                 `json:"level"`
	Event      string                 `json:"event"`
	Message    *string                `json:"msg,omitempty"`
	Fields     map[string]interface{} `json:"fields,omitempty"`
	InstanceID string                 `json:"instance_id"`
	SessionID  *string                `json:"session_id,omitempty"`
}

// Client stores orchestration events for one deployment instance.
type Client struct {
	db         *sql.DB
	instanceID string
}

// DSN builds the connection string from PG* environment variables.
// The password may come from PGPASSWORD or the file named by PGPASSWORD_FILE.
func DSN() (string, error) {
	host := config.EnvOr("PGHOST", "127.0.0.1")
	port := config.EnvOr("PGPORT", "5432")
	user := config.EnvOr("PGUSER", "artutor")
	dbname := config.EnvOr("PGDATABASE", "artutor")
	sslmode := config.EnvOr("PGSSLMODE", "disable")

	password, err := config.ResolveSecret("PGPASSWORD")
	if err != nil {
		return "", err
	}

	if password != "" {
		return fmt.Sprintf("host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
			host, port, user, password, dbname, sslmode), nil
	}
	return fmt.Sprintf("host=%s port=%s user=%s dbname=%s sslmode=%s",
		host, port, user, dbname, sslmode), nil
}

// New connects using DSN and ensures the events table exists.
func New(instanceID string) (*Client, error) {
	connStr, err := DSN()
	if err != nil {
		return nil, err
	}

	db, err := sql.Open("postgres", connStr)
	if err != nil {
		return nil, fmt.Errorf("failed to open postgres: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping postgres: %w", err)
	}

	client := &Client{
		db:         db,
		instanceID: instanceID,
	}

	if err := client.createTable(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create events table: %w", err)
	}

	return client, nil
}

func (c *Client) createTable() error {
	query := `
		CREATE TABLE IF NOT EXISTS session_events (
			event_id    BIGSERIAL PRIMARY KEY,
			ts          TIMESTAMPTZ NOT NULL,
			level       TEXT NOT NULL,
			event       TEXT NOT NULL,
			msg         TEXT,
			fields      JSONB,
			instance_id TEXT NOT NULL,
			session_id  TEXT
		);
		CREATE INDEX IF NOT EXISTS idx_session_events_ts ON session_events(ts DESC);
		CREATE INDEX IF NOT EXISTS idx_session_events_session ON session_events(session_id);
	`
	_, err := c.db.Exec(query)
	return err
}

// Append inserts an event.
func (c *Client) Append(ts time.Time, level, event, msg string, fields map[string]interface{}, sessionID string) error {
	var fieldsJSON []byte
	var err error
	if fields != nil {
		fieldsJSON, err = json.Marshal(fields)
		if err != nil {
			return fmt.Errorf("failed to marshal fields: %w", err)
		}
	}

	var msgPtr *string
	if msg != "" {
		msgPtr = &msg
	}

	var sessionPtr *string
	if sessionID != "" {
		sessionPtr = &sessionID
	}

	query := `
		INSERT INTO session_events (ts, level, event, msg, fields, instance_id, session_id)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`
	_, err = c.db.Exec(query, ts, level, event, msgPtr, fieldsJSON, c.instanceID, sessionPtr)
	return err
}

// Query returns the last N events for this instance, newest first.
func (c *Client) Query(limit int) ([]EventRow, error) {
	limit = clampLimit(limit)
	query := `
		SELECT event_id, ts, level, event, msg, fields, instance_id, session_id
		FROM session_events
		WHERE instance_id = $1
		ORDER BY ts DESC
		LIMIT $2
	`
	rows, err := c.db.Query(query, c.instanceID, limit)
	if err != nil {
		return nil, err
	}
	return scanRows(rows)
}

// QuerySession returns the events of one session in emission order.
func (c *Client) QuerySession(sessionID string, limit int) ([]EventRow, error) {
	limit = clampLimit(limit)
	query := `
		SELECT event_id, ts, level, event, msg, fields, instance_id, session_id
		FROM session_events
		WHERE instance_id = $1 AND session_id = $2
		ORDER BY event_id ASC
		LIMIT $3
	`
	rows, err := c.db.Query(query, c.instanceID, sessionID, limit)
	if err != nil {
		return nil, err
	}
	return scanRows(rows)
}

func clampLimit(limit int) int {
	if limit <= 0 {
		return 200
	}
	if limit > 10000 {
		return 10000
	}
	return limit
}

func scanRows(rows *sql.Rows) ([]EventRow, error) {
	defer rows.Close()

	var events []EventRow
	for rows.Next() {
		var e EventRow
		var fieldsJSON []byte
		var msg, sessionID sql.NullString

		if err := rows.Scan(&e.EventID, &e.Timestamp, &e.Level, &e.Event, &msg, &fieldsJSON, &e.InstanceID, &sessionID); err != nil {
			return nil, err
		}

		if msg.Valid {
			e.Message = &msg.String
		}
		if sessionID.Valid {
			e.SessionID = &sessionID.String
		}
		if len(fieldsJSON) > 0 {
			if err := json.Unmarshal(fieldsJSON, &e.Fields); err != nil {
				return nil, fmt.Errorf("failed to unmarshal fields: %w", err)
			}
		}

		events = append(events, e)
	}

	return events, rows.Err()
}

// Ping checks connectivity.
func (c *Client) Ping() error {
	return c.db.Ping()
}

// Close closes the database connection.
func (c *Client) Close() error {
	if c.db != nil {
		return c.db.Close()
	}
	return nil
}
