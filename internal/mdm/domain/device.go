package domain

import "time"

type Device struct {
	ID           string    `json:"id"`
	Name         string    `json:"name"`
	SerialNumber string    `json:"serialNumber"`
	Model        string    `json:"model"`
	OSVersion    string    `json:"osVersion"`
	AssignedUser string    `json:"assignedUser,omitempty"`
	CreatedAt    time.Time `json:"createdAt"`
	UpdatedAt    time.Time `json:"updatedAt"`
}

// ListQuery carries the paging parameters of a device list request. Page is
// zero based. Sort is "field:asc" or "field:desc"; Filter is a "field==value"
// equality expression. Both are optional.
type ListQuery struct {
	Page     int
	PageSize int
	Sort     string
	Filter   string
}

// DeviceListPage is one page of the device collection plus the collection's
// total size under the query's filter.
type DeviceListPage struct {
	Results    []Device `json:"results"`
	TotalCount int      `json:"totalCount"`
}
