package repository

import (
	"errors"
	"strconv"
)

const (
	DefaultPageSize = 20
	MaxPageSize     = 100
)

// ListOptions defines pagination for list queries
type ListOptions struct {
	Offset int `json:"offset"` // Number of records to skip
	Limit  int `json:"limit"`  // Maximum number of records to return
	// Paged is false when the caller asked for the full list
	Paged bool `json:"-"`
}

// Validate validates the ListOptions and sets defaults
func (o *ListOptions) Validate() error {
	if o.Limit <= 0 {
		o.Limit = DefaultPageSize
	}
	if o.Limit > MaxPageSize {
		return errors.New("limit exceeds maximum allowed value of 100")
	}
	if o.Offset < 0 {
		return errors.New("offset must be non-negative")
	}
	return nil
}

// SetPagination sets pagination parameters
func (o *ListOptions) SetPagination(page, pageSize int) {
	if page < 1 {
		page = 1
	}
	if pageSize < 1 {
		pageSize = DefaultPageSize
	}
	o.Offset = (page - 1) * pageSize
	o.Limit = pageSize
	o.Paged = true
}

// Page returns the 1-based page number
func (o ListOptions) Page() int {
	if o.Limit <= 0 {
		return 1
	}
	return o.Offset/o.Limit + 1
}

// ParsePage builds options from raw page/limit query values.
// Both empty means an unpaged request.
func ParsePage(pageRaw, limitRaw string) (ListOptions, error) {
	var opts ListOptions
	if pageRaw == "" && limitRaw == "" {
		return opts, nil
	}
	page, limit := 1, DefaultPageSize
	var err error
	if pageRaw != "" {
		if page, err = strconv.Atoi(pageRaw); err != nil || page < 1 {
			return opts, errors.New("page must be a positive integer")
		}
	}
	if limitRaw != "" {
		if limit, err = strconv.Atoi(limitRaw); err != nil || limit < 1 {
			return opts, errors.New("limit must be a positive integer")
		}
	}
	opts.SetPagination(page, limit)
	return opts, opts.Validate()
}

// TotalPages computes the page count for total records
func TotalPages(total int64, limit int) int {
	if limit <= 0 {
		return 0
	}
	return int((total + int64(limit) - 1) / int64(limit))
}
