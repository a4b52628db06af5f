package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/aussiebroadwan/mdm/internal/mdm/domain"
	"github.com/aussiebroadwan/mdm/internal/mdm/store"
	"github.com/aussiebroadwan/mdm/pkg/idx"
)

// Page size bounds for device list requests. Out-of-range sizes are rejected
// rather than clamped so clients notice their mistake.
const (
	DefaultPageSize = 100
	MinPageSize     = 1
	MaxPageSize     = 2000
)

var ErrInvalidQuery = errors.New("invalid_query")

type DeviceService struct {
	Store store.Store
}

func (s *DeviceService) GetDevice(ctx context.Context, id string) (domain.Device, error) {
	return s.Store.Devices().GetDeviceByID(ctx, id)
}

func (s *DeviceService) CreateDevice(ctx context.Context, d domain.Device) (domain.Device, error) {
	d.Name = strings.TrimSpace(d.Name)
	d.SerialNumber = strings.TrimSpace(d.SerialNumber)
	if d.Name == "" || d.SerialNumber == "" {
		return domain.Device{}, ErrInvalidQuery
	}

	d.ID = idx.New().String()
	if err := s.Store.Devices().CreateDevice(ctx, d); err != nil {
		return domain.Device{}, err
	}
	return s.Store.Devices().GetDeviceByID(ctx, d.ID)
}

func (s *DeviceService) UpdateDevice(ctx context.Context, d domain.Device) (domain.Device, error) {
	d.Name = strings.TrimSpace(d.Name)
	d.SerialNumber = strings.TrimSpace(d.SerialNumber)
	if d.Name == "" || d.SerialNumber == "" {
		return domain.Device{}, ErrInvalidQuery
	}

	if err := s.Store.Devices().UpdateDevice(ctx, d); err != nil {
		return domain.Device{}, err
	}
	return s.Store.Devices().GetDeviceByID(ctx, d.ID)
}

func (s *DeviceService) DeleteDevice(ctx context.Context, id string) error {
	return s.Store.Devices().DeleteDevice(ctx, id)
}

// ListDevices validates the query bounds and fetches one page. A sort or
// filter expression the store refuses is client error, not storage failure.
func (s *DeviceService) ListDevices(ctx context.Context, q domain.ListQuery) (domain.DeviceListPage, error) {
	if q.PageSize == 0 {
		q.PageSize = DefaultPageSize
	}
	if q.PageSize < MinPageSize || q.PageSize > MaxPageSize || q.Page < 0 {
		return domain.DeviceListPage{}, ErrInvalidQuery
	}

	page, err := s.Store.Devices().ListDevices(ctx, q)
	if errors.Is(err, store.ErrInvalidQuery) {
		return domain.DeviceListPage{}, fmt.Errorf("%w: %v", ErrInvalidQuery, err)
	}
	return page, err
}

// AllDevices walks the whole collection a page at a time. Used by exports.
func (s *DeviceService) AllDevices(ctx context.Context) ([]domain.Device, error) {
	var all []domain.Device
	for page := 0; ; page++ {
		pg, err := s.Store.Devices().ListDevices(ctx, domain.ListQuery{
			Page:     page,
			PageSize: MaxPageSize,
		})
		if err != nil {
			return nil, err
		}
		all = append(all, pg.Results...)
		if len(pg.Results) == 0 || len(all) >= pg.TotalCount {
			return all, nil
		}
	}
}
