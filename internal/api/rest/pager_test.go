package rest

import (
	"net/url"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestPagerHrefs(t *testing.T) {
	p := NewPager(10, 10, 25)

	assert.Equal(t, "/test?start=20&num=10", p.NextHref("/test", nil))
	assert.Equal(t, "/test?start=0&num=10", p.PrevHref("/test", nil))
}

func TestPagerFirstPageHasNoPrev(t *testing.T) {
	p := NewPager(0, 10, 25)
	assert.Equal(t, "", p.PrevHref("/test", nil))
	assert.Equal(t, "/test?start=10&num=10", p.NextHref("/test", nil))
}

func TestPagerLastPageHasNoNext(t *testing.T) {
	p := NewPager(20, 10, 25)
	assert.Equal(t, "", p.NextHref("/test", nil))
	assert.Equal(t, "/test?start=10&num=10", p.PrevHref("/test", nil))
}

func TestPagerExactBoundary(t *testing.T) {
	p := NewPager(10, 10, 20)
	assert.Equal(t, "", p.NextHref("/test", nil))
}

func TestPagerPrevClampsToZero(t *testing.T) {
	p := NewPager(5, 10, 100)
	assert.Equal(t, "/test?start=0&num=10", p.PrevHref("/test", nil))
}

func TestPagerPreservesOtherParams(t *testing.T) {
	params := url.Values{
		"start": {"10"},
		"num":   {"10"},
		"q":     {"name==x"},
		"attrs": {"id,name"},
	}
	p := NewPager(10, 10, 100)

	assert.Equal(t, "/test?start=20&num=10&attrs=id%2Cname&q=name%3D%3Dx", p.NextHref("/test", params))
}
