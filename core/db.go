package core

import (
	"strings"
)

const (
	defaultPerPage = 20
	maxPerPage     = 200
)

type DBOrdering struct {
	Field     string
	Ascending bool
}

func (ord DBOrdering) String() string {
	direction := "DESC"
	if ord.Ascending {
		direction = "ASC"
	}
	return ord.Field + " " + direction
}

// OrderBy builds an ORDER BY clause body from client orderings.
// Only fields present in `columns` ({field: column}) are kept; `fallback` is used when none remain.
func OrderBy(orderings []DBOrdering, columns map[string]string, fallback string) string {
	parts := make([]string, 0, len(orderings))
	for _, ord := range orderings {
		col, ok := columns[ord.Field]
		if !ok {
			continue
		}
		parts = append(parts, DBOrdering{Field: col, Ascending: ord.Ascending}.String())
	}
	if len(parts) == 0 {
		return fallback
	}
	return strings.Join(parts, ", ")
}

// Pagination is a 1-based page request. Zero values mean "first page, default size".
type Pagination struct {
	Page    int `json:"page" query:"page"`
	PerPage int `json:"per_page" query:"per_page"`
}

func (p Pagination) Normalize() Pagination {
	if p.Page < 1 {
		p.Page = 1
	}
	if p.PerPage < 1 {
		p.PerPage = defaultPerPage
	} else if p.PerPage > maxPerPage {
		p.PerPage = maxPerPage
	}
	return p
}

func (p Pagination) Limit() int  { return p.Normalize().PerPage }
func (p Pagination) Offset() int { n := p.Normalize(); return (n.Page - 1) * n.PerPage }

type PageInfo struct {
	Page       int `json:"page"`
	PerPage    int `json:"per_page"`
	Total      int `json:"total"`
	TotalPages int `json:"total_pages"`
}

func NewPageInfo(p Pagination, total int) PageInfo {
	p = p.Normalize()
	pages := total / p.PerPage
	if total%p.PerPage != 0 {
		pages++
	}
	return PageInfo{Page: p.Page, PerPage: p.PerPage, Total: total, TotalPages: pages}
}
