package rest

import (
	"fmt"
	"net/url"
	"sort"
	"strings"
)

// Pager computes the navigation hrefs of a collection response. Hrefs
// rewrite start and num and preserve every other query parameter of the
// original request.
type Pager struct {
	Start int
	Num   int
	Total int64
}

// NewPager creates a pager for a result window
func NewPager(start, num int, total int64) *Pager {
	return &Pager{Start: start, Num: num, Total: total}
}

// NextHref returns the href of the next page, or "" on the last page
func (p *Pager) NextHref(path string, params url.Values) string {
	if int64(p.Start+p.Num) >= p.Total {
		return ""
	}
	return pageHref(path, p.Start+p.Num, p.Num, params)
}

// PrevHref returns the href of the previous page, or "" on the first page
func (p *Pager) PrevHref(path string, params url.Values) string {
	if p.Start == 0 {
		return ""
	}
	prev := p.Start - p.Num
	if prev < 0 {
		prev = 0
	}
	return pageHref(path, prev, p.Num, params)
}

// pageHref renders "<path>?start=<start>&num=<num>" followed by the other
// request parameters in stable order
func pageHref(path string, start, num int, params url.Values) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "%s?start=%d&num=%d", path, start, num)

	keys := make([]string, 0, len(params))
	for key := range params {
		if key == "start" || key == "num" {
			continue
		}
		keys = append(keys, key)
	}
	sort.Strings(keys)
	for _, key := range keys {
		for _, value := range params[key] {
			fmt.Fprintf(&sb, "&%s=%s", url.QueryEscape(key), url.QueryEscape(value))
		}
	}
	return sb.String()
}
