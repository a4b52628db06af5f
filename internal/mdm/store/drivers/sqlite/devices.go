package sqlite

import (
	"context"
	"fmt"
	"strings"

	"github.com/aussiebroadwan/mdm/internal/mdm/domain"
	"github.com/aussiebroadwan/mdm/internal/mdm/store"
)

type devicesRepo struct {
	db dbtx
}

const deviceColumns = `id, name, serial_number, model, os_version, assigned_user, created_at, updated_at`

// deviceFields maps API field names to columns. Doubles as the whitelist for
// sort and filter expressions so user input never reaches the SQL directly.
var deviceFields = map[string]string{
	"id":           "id",
	"name":         "name",
	"serialNumber": "serial_number",
	"model":        "model",
	"osVersion":    "os_version",
	"assignedUser": "assigned_user",
	"createdAt":    "created_at",
	"updatedAt":    "updated_at",
}

func (r *devicesRepo) GetDeviceByID(ctx context.Context, id string) (domain.Device, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+deviceColumns+` FROM devices WHERE id = ?`, id)
	return scanDevice(row)
}

func (r *devicesRepo) CreateDevice(ctx context.Context, d domain.Device) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO devices (id, name, serial_number, model, os_version, assigned_user)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		d.ID, d.Name, d.SerialNumber, d.Model, d.OSVersion, mapStringNull(d.AssignedUser))
	if err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed") {
		return store.ErrAlreadyExists
	}
	return err
}

func (r *devicesRepo) UpdateDevice(ctx context.Context, d domain.Device) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE devices
		    SET name = ?, serial_number = ?, model = ?, os_version = ?,
		        assigned_user = ?, updated_at = CURRENT_TIMESTAMP
		  WHERE id = ?`,
		d.Name, d.SerialNumber, d.Model, d.OSVersion, mapStringNull(d.AssignedUser), d.ID)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return store.ErrNotFound
	}
	return nil
}

func (r *devicesRepo) DeleteDevice(ctx context.Context, deviceID string) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM devices WHERE id = ?`, deviceID)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return store.ErrNotFound
	}
	return nil
}

func (r *devicesRepo) ListDevices(ctx context.Context, q domain.ListQuery) (domain.DeviceListPage, error) {
	where, args, err := buildDeviceFilter(q.Filter)
	if err != nil {
		return domain.DeviceListPage{}, err
	}

	orderBy, err := buildDeviceSort(q.Sort)
	if err != nil {
		return domain.DeviceListPage{}, err
	}

	var total int
	countQuery := `SELECT COUNT(*) FROM devices` + where
	if err := r.db.QueryRowContext(ctx, countQuery, args...).Scan(&total); err != nil {
		return domain.DeviceListPage{}, err
	}

	listQuery := `SELECT ` + deviceColumns + ` FROM devices` + where + orderBy + ` LIMIT ? OFFSET ?`
	listArgs := append(append([]any{}, args...), q.PageSize, q.Page*q.PageSize)

	rows, err := r.db.QueryContext(ctx, listQuery, listArgs...)
	if err != nil {
		return domain.DeviceListPage{}, err
	}
	defer rows.Close()

	results := []domain.Device{}
	for rows.Next() {
		d, err := scanDevice(rows)
		if err != nil {
			return domain.DeviceListPage{}, err
		}
		results = append(results, d)
	}
	if err := rows.Err(); err != nil {
		return domain.DeviceListPage{}, err
	}

	return domain.DeviceListPage{Results: results, TotalCount: total}, nil
}

// buildDeviceFilter turns a "field==value" expression into a WHERE clause.
// Only equality against whitelisted fields is supported.
func buildDeviceFilter(filter string) (where string, args []any, err error) {
	filter = strings.TrimSpace(filter)
	if filter == "" {
		return "", nil, nil
	}

	field, value, found := strings.Cut(filter, "==")
	if !found {
		return "", nil, fmt.Errorf("%w: unsupported filter expression %q", store.ErrInvalidQuery, filter)
	}

	column, ok := deviceFields[strings.TrimSpace(field)]
	if !ok {
		return "", nil, fmt.Errorf("%w: unknown filter field %q", store.ErrInvalidQuery, field)
	}

	return ` WHERE ` + column + ` = ?`, []any{strings.TrimSpace(value)}, nil
}

// buildDeviceSort turns a "field:asc" / "field:desc" fragment into an ORDER BY
// clause. An empty sort orders by id for stable paging.
func buildDeviceSort(sort string) (string, error) {
	sort = strings.TrimSpace(sort)
	if sort == "" {
		return ` ORDER BY id`, nil
	}

	field, dir, found := strings.Cut(sort, ":")
	if !found {
		dir = "asc"
	}

	column, ok := deviceFields[strings.TrimSpace(field)]
	if !ok {
		return "", fmt.Errorf("%w: unknown sort field %q", store.ErrInvalidQuery, field)
	}

	switch strings.ToLower(strings.TrimSpace(dir)) {
	case "asc":
		return ` ORDER BY ` + column + ` ASC`, nil
	case "desc":
		return ` ORDER BY ` + column + ` DESC`, nil
	default:
		return "", fmt.Errorf("%w: unknown sort direction %q", store.ErrInvalidQuery, dir)
	}
}

func scanDevice(row rowScanner) (domain.Device, error) {
	var (
		d        domain.Device
		assigned = mapStringNull("")
	)
	err := row.Scan(&d.ID, &d.Name, &d.SerialNumber, &d.Model, &d.OSVersion,
		&assigned, &d.CreatedAt, &d.UpdatedAt)
	if err != nil {
		return domain.Device{}, mapNotFound(err)
	}
	d.AssignedUser = mapNullString(assigned)
	return d, nil
}
