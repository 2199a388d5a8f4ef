package repository

import (
	"context"
	"database/sql"
	"time"

	"kodibridge"
)

type Authorization interface {
	Create(username, hash string) (int, error)
	GetByUsername(username string) (*kodibridge.User, error)
}

type DeviceRepo interface {
	Upsert(ctx context.Context, d kodibridge.DeviceEndpoint) error
	Get(ctx context.Context, id string) (*kodibridge.DeviceEndpoint, error)
	List(ctx context.Context) ([]kodibridge.DeviceEndpoint, error)
	Delete(ctx context.Context, id string) error
}

type EventRepo interface {
	Append(ctx context.Context, e kodibridge.BridgeEvent) error
	List(ctx context.Context, from, to time.Time, deviceID, typ string) ([]kodibridge.BridgeEvent, error)
}

type Repository struct {
	DeviceRepo DeviceRepo
	EventRepo  EventRepo
	Auth       Authorization
}

func NewRepository(db *sql.DB) *Repository {
	return &Repository{
		DeviceRepo: NewDeviceSQLite(db),
		EventRepo:  NewEventSQLite(db),
		Auth:       NewUserRepository(db),
	}
}
