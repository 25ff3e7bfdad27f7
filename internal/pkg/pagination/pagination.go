// Package pagination reads the list endpoints' query string: a 1-based page,
// a clamped size and one optional filter restricted to known values.
package pagination

import (
	"fmt"
	"slices"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/wsic/generator/internal/pkg/response"
	"gorm.io/gorm"
)

const (
	DefaultSize = 10
	MaxSize     = 100
)

// Filter names the query parameter of a list endpoint and the values it
// accepts, e.g. "outcome" on /generation-runs.
type Filter struct {
	Param   string
	Allowed []string
}

// Query is a parsed list request. Value is the filter value, empty when the
// parameter was not given.
type Query struct {
	Page  int
	Size  int
	Value string
}

// Offset is the number of rows before the requested page.
func (q Query) Offset() int { return (q.Page - 1) * q.Size }

// Parse reads page, size and the filter parameter. Malformed numbers fall
// back to defaults; a filter value outside Allowed is an error.
func Parse(c *gin.Context, f Filter) (Query, error) {
	q := Query{
		Page: clamp(c.Query("page"), 1, 1, 0),
		Size: clamp(c.Query("size"), DefaultSize, 1, MaxSize),
	}
	if f.Param == "" {
		return q, nil
	}
	raw := strings.ToLower(strings.TrimSpace(c.Query(f.Param)))
	if raw == "" {
		return q, nil
	}
	if !slices.Contains(f.Allowed, raw) {
		return q, fmt.Errorf("%s must be one of %s", f.Param, strings.Join(f.Allowed, ", "))
	}
	q.Value = raw
	return q, nil
}

// Scope filters column by the query value when one was given and orders the
// rows newest first.
func (q Query) Scope(column string) func(*gorm.DB) *gorm.DB {
	return func(db *gorm.DB) *gorm.DB {
		if q.Value != "" {
			db = db.Where(column+" = ?", q.Value)
		}
		return db.Order("created_at DESC")
	}
}

// Find counts and loads one page of db into dest.
func Find[T any](db *gorm.DB, q Query, dest *[]T) (response.Pagination, error) {
	var total int64
	if err := db.Count(&total).Error; err != nil {
		return response.Pagination{}, err
	}
	if err := db.Offset(q.Offset()).Limit(q.Size).Find(dest).Error; err != nil {
		return response.Pagination{}, err
	}
	return Meta(total, q), nil
}

// Meta builds pagination metadata for an already sliced result.
func Meta(total int64, q Query) response.Pagination {
	totalPage := int((total + int64(q.Size) - 1) / int64(q.Size))
	return response.Pagination{
		Total:       total,
		CurrentPage: q.Page,
		TotalPage:   totalPage,
		Size:        q.Size,
		HasNextPage: q.Page < totalPage,
	}
}

// clamp parses s, using def when it is not a number, and bounds the result.
// hi 0 means unbounded.
func clamp(s string, def, lo, hi int) int {
	v, err := strconv.Atoi(s)
	if err != nil {
		v = def
	}
	if v < lo {
		v = def
	}
	if hi > 0 && v > hi {
		v = hi
	}
	return v
}
