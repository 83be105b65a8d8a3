package async

import (
	"sort"
	"strconv"
)

const (
	MinListLimit     = 1
	MaxListLimit     = 100
	DefaultListLimit = 20
)

// ListOptions selects a page of jobs. Cursor is the decimal offset returned
// as NextCursor by the previous page; empty means the first page.
type ListOptions struct {
	Status string
	Limit  int
	Cursor string
}

// Page is one slice of the CreatedAt-descending job listing
type Page struct {
	Items      []JobView `json:"items"`
	NextCursor string    `json:"nextCursor,omitempty"`
}

// listQuery is ListOptions after validation
type listQuery struct {
	status JobStatus
	limit  int
	offset int
}

func (o ListOptions) validate() (listQuery, error) {
	var q listQuery
	if o.Limit < MinListLimit || o.Limit > MaxListLimit {
		return q, errInvalidLimit(o.Limit)
	}
	q.limit = o.Limit

	if o.Cursor != "" {
		offset, err := strconv.Atoi(o.Cursor)
		if err != nil || offset < 0 {
			return q, errInvalidCursor(o.Cursor)
		}
		q.offset = offset
	}

	if o.Status != "" {
		status, ok := ParseStatus(o.Status)
		if !ok {
			return q, errInvalidStatus(o.Status)
		}
		q.status = status
	}
	return q, nil
}

// paginate orders newest first, filters and slices
func paginate(jobs []*Job, q listQuery) Page {
	sort.Slice(jobs, func(a, b int) bool {
		return olderThan(jobs[b], jobs[a])
	})

	filtered := jobs[:0]
	for _, job := range jobs {
		if q.status != "" && job.Status != q.status {
			continue
		}
		filtered = append(filtered, job)
	}

	page := Page{Items: []JobView{}}
	if q.offset >= len(filtered) {
		return page
	}
	end := q.offset + q.limit
	if end > len(filtered) {
		end = len(filtered)
	}
	for _, job := range filtered[q.offset:end] {
		page.Items = append(page.Items, job.View())
	}
	if end < len(filtered) {
		page.NextCursor = strconv.Itoa(end)
	}
	return page
}
