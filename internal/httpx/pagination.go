package httpx

import (
	"net/http"
	"strconv"
)

type PageMeta struct {
	Page  int `json:"page"`
	Limit int `json:"limit"`
	Total int `json:"total"`
}

func getPage(r *http.Request) int {
	p, _ := strconv.Atoi(r.URL.Query().Get("page"))
	if p < 1 {
		p = 1
	}
	return p
}

func getLimit(r *http.Request, def, max int) int {
	l, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	if l <= 0 {
		l = def
	}
	if l > max {
		l = max
	}
	return l
}

// paginate returns the bounds of page within n items.
func paginate(n, page, limit int) (from, to int) {
	if page < 1 {
		page = 1
	}
	if limit < 1 || page-1 > n/limit {
		return n, n
	}
	from = (page - 1) * limit
	if from > n {
		from = n
	}
	to = from + limit
	if to > n {
		to = n
	}
	return from, to
}
