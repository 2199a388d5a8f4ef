package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"kodibridge"
)

type DeviceSQLite struct {
	db *sql.DB
}

func NewDeviceSQLite(db *sql.DB) *DeviceSQLite {
	return &DeviceSQLite{db: db}
}

var _ DeviceRepo = (*DeviceSQLite)(nil)

const (
	upsertDeviceSQL = `
		INSERT INTO devices (id, name, host, port, ws_port, username, password, ssl)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			name=excluded.name,
			host=excluded.host,
			port=excluded.port,
			ws_port=excluded.ws_port,
			username=excluded.username,
			password=excluded.password,
			ssl=excluded.ssl
	`

	selectDeviceSQL = `
		SELECT id, name, host, port, ws_port, username, password, ssl
		FROM devices WHERE id=?
	`

	listDevicesSQL = `
		SELECT id, name, host, port, ws_port, username, password, ssl
		FROM devices ORDER BY name ASC
	`

	deleteDeviceSQL = `DELETE FROM devices WHERE id=?`
)

// Upsert inserts the device or replaces its configuration in place.
func (r *DeviceSQLite) Upsert(ctx context.Context, d kodibridge.DeviceEndpoint) error {
	_, err := r.db.ExecContext(ctx, upsertDeviceSQL,
		d.ID, d.Name, d.Host, d.Port, d.WSPort, d.Username, d.Password, d.SSL)
	if err != nil {
		return fmt.Errorf("upsert device %q: %w", d.ID, err)
	}
	return nil
}

// Get fetches one device by id. Returns (nil, nil) if not found.
func (r *DeviceSQLite) Get(ctx context.Context, id string) (*kodibridge.DeviceEndpoint, error) {
	var d kodibridge.DeviceEndpoint
	err := r.db.QueryRowContext(ctx, selectDeviceSQL, id).Scan(
		&d.ID, &d.Name, &d.Host, &d.Port, &d.WSPort, &d.Username, &d.Password, &d.SSL)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("select device %q: %w", id, err)
	}
	return &d, nil
}

// List returns every configured device ordered by name.
func (r *DeviceSQLite) List(ctx context.Context) ([]kodibridge.DeviceEndpoint, error) {
	rows, err := r.db.QueryContext(ctx, listDevicesSQL)
	if err != nil {
		return nil, fmt.Errorf("list devices: %w", err)
	}
	defer rows.Close()

	out := make([]kodibridge.DeviceEndpoint, 0, 8)
	for rows.Next() {
		var d kodibridge.DeviceEndpoint
		if err := rows.Scan(&d.ID, &d.Name, &d.Host, &d.Port, &d.WSPort, &d.Username, &d.Password, &d.SSL); err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

// Delete removes the device. Deleting an unknown id is not an error.
func (r *DeviceSQLite) Delete(ctx context.Context, id string) error {
	if _, err := r.db.ExecContext(ctx, deleteDeviceSQL, id); err != nil {
		return fmt.Errorf("delete device %q: %w", id, err)
	}
	return nil
}
