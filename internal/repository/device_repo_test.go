package repository

import (
	"database/sql"
	"errors"
	"regexp"
	"strings"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"

	"kodibridge"
)

func newDeviceRepo(t *testing.T) (*DeviceSQLite, sqlmock.Sqlmock, func()) {
	t.Helper()

	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("failed to create sqlmock: %v", err)
	}

	repo := NewDeviceSQLite(db)
	cleanup := func() {
		if err := mock.ExpectationsWereMet(); err != nil {
			t.Fatalf("unmet sqlmock expectations: %v", err)
		}
		_ = db.Close()
	}
	return repo, mock, cleanup
}

func TestDeviceRepo_Upsert(t *testing.T) {
	repo, mock, cleanup := newDeviceRepo(t)
	defer cleanup()

	mock.ExpectExec(regexp.QuoteMeta(upsertDeviceSQL)).
		WithArgs("living-room", "Living Room", "10.0.0.5", 8080, 9090, "kodi", "secret", false).
		WillReturnResult(sqlmock.NewResult(0, 1))

	err := repo.Upsert(ctx(t), kodibridge.DeviceEndpoint{
		ID:       "living-room",
		Name:     "Living Room",
		Host:     "10.0.0.5",
		Port:     8080,
		WSPort:   9090,
		Username: "kodi",
		Password: "secret",
	})
	if err != nil {
		t.Fatalf("Upsert: %v", err)
	}
}

func TestDeviceRepo_Upsert_DBError(t *testing.T) {
	repo, mock, cleanup := newDeviceRepo(t)
	defer cleanup()

	mock.ExpectExec("INSERT INTO devices").
		WillReturnError(errors.New("disk full"))

	err := repo.Upsert(ctx(t), kodibridge.DeviceEndpoint{ID: "x"})
	if err == nil || !strings.Contains(err.Error(), "upsert device") {
		t.Fatalf("expected wrapped error, got %v", err)
	}
}

func TestDeviceRepo_Get(t *testing.T) {
	repo, mock, cleanup := newDeviceRepo(t)
	defer cleanup()

	rows := sqlmock.NewRows([]string{"id", "name", "host", "port", "ws_port", "username", "password", "ssl"}).
		AddRow("living-room", "Living Room", "10.0.0.5", 8080, 9090, "kodi", "secret", true)

	mock.ExpectQuery(regexp.QuoteMeta(selectDeviceSQL)).
		WithArgs("living-room").
		WillReturnRows(rows)

	d, err := repo.Get(ctx(t), "living-room")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if d == nil {
		t.Fatalf("expected device, got nil")
	}
	if d.Host != "10.0.0.5" || d.WSPort != 9090 || !d.SSL {
		t.Fatalf("unexpected device: %+v", d)
	}
}

func TestDeviceRepo_Get_NotFound(t *testing.T) {
	repo, mock, cleanup := newDeviceRepo(t)
	defer cleanup()

	mock.ExpectQuery(regexp.QuoteMeta(selectDeviceSQL)).
		WithArgs("missing").
		WillReturnError(sql.ErrNoRows)

	d, err := repo.Get(ctx(t), "missing")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if d != nil {
		t.Fatalf("expected nil for unknown id, got %+v", d)
	}
}

func TestDeviceRepo_List(t *testing.T) {
	repo, mock, cleanup := newDeviceRepo(t)
	defer cleanup()

	rows := sqlmock.NewRows([]string{"id", "name", "host", "port", "ws_port", "username", "password", "ssl"}).
		AddRow("bedroom", "Bedroom", "10.0.0.6", 8080, 9090, "", "", false).
		AddRow("living-room", "Living Room", "10.0.0.5", 8080, 9090, "kodi", "secret", false)

	mock.ExpectQuery(regexp.QuoteMeta(listDevicesSQL)).
		WillReturnRows(rows)

	got, err := repo.List(ctx(t))
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(got) != 2 || got[0].ID != "bedroom" || got[1].ID != "living-room" {
		t.Fatalf("unexpected results: %+v", got)
	}
}

func TestDeviceRepo_Delete(t *testing.T) {
	repo, mock, cleanup := newDeviceRepo(t)
	defer cleanup()

	mock.ExpectExec(regexp.QuoteMeta(deleteDeviceSQL)).
		WithArgs("living-room").
		WillReturnResult(sqlmock.NewResult(0, 1))

	if err := repo.Delete(ctx(t), "living-room"); err != nil {
		t.Fatalf("Delete: %v", err)
	}
}
