package httputil

import (
	"net/http"
	"net/url"
	"strconv"

	apperrors "github.com/R3E-Network/sentinel/internal/errors"
)

const (
	DefaultPageSize = 20
	MaxPageSize     = 100
)

// Page is the paginated list shape: {count, next, previous, results}.
type Page struct {
	Count    int         `json:"count"`
	Next     *string     `json:"next"`
	Previous *string     `json:"previous"`
	Results  interface{} `json:"results"`
}

// PageRequest is a parsed page/page_size pair.
type PageRequest struct {
	Page int
	Size int
}

// Offset returns the zero-based index of the first item.
func (p PageRequest) Offset() int { return (p.Page - 1) * p.Size }

// ParsePageRequest reads page and page_size from the query string. Unparsable
// values fall back to defaults.
func ParsePageRequest(r *http.Request) PageRequest {
	q := r.URL.Query()
	pr := PageRequest{Page: 1, Size: DefaultPageSize}
	if v, err := strconv.Atoi(q.Get("page")); err == nil && v > 0 {
		pr.Page = v
	}
	if v, err := strconv.Atoi(q.Get("page_size")); err == nil && v > 0 {
		if v > MaxPageSize {
			v = MaxPageSize
		}
		pr.Size = v
	}
	return pr
}

// Window returns the [start,end) bounds of the page within total items, or a
// not-found error when the page lies beyond the last one.
func (p PageRequest) Window(total int) (int, int, error) {
	start := p.Offset()
	if start >= total {
		if p.Page == 1 {
			return 0, 0, nil
		}
		return 0, 0, apperrors.NotFound("page").WithDetails("reason", "Invalid page.")
	}
	end := start + p.Size
	if end > total {
		end = total
	}
	return start, end, nil
}

// NewPage builds a Page with next/previous links relative to r.
func NewPage(r *http.Request, pr PageRequest, total int, results interface{}) Page {
	page := Page{Count: total, Results: results}
	if pr.Offset()+pr.Size < total {
		page.Next = pageLink(r, pr.Page+1)
	}
	if pr.Page > 1 {
		page.Previous = pageLink(r, pr.Page-1)
	}
	return page
}

func pageLink(r *http.Request, page int) *string {
	u := url.URL{Path: r.URL.Path}
	scheme := "http"
	if r.TLS != nil {
		scheme = "https"
	}
	if fwd := r.Header.Get("X-Forwarded-Proto"); fwd != "" {
		scheme = fwd
	}
	u.Scheme = scheme
	u.Host = r.Host
	q := r.URL.Query()
	if page == 1 {
		q.Del("page")
	} else {
		q.Set("page", strconv.Itoa(page))
	}
	u.RawQuery = q.Encode()
	s := u.String()
	return &s
}
