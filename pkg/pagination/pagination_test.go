package pagination_test

import (
	"net/url"
	"testing"

	"github.com/JaimeStill/docflow/pkg/pagination"
)

var cfg = pagination.Config{DefaultPageSize: 20, MaxPageSize: 100}

func TestPageRequestFromQuery(t *testing.T) {
	tests := []struct {
		name         string
		query        string
		wantPage     int
		wantPageSize int
		wantSearch   bool
	}{
		{"empty", "", 1, 20, false},
		{"explicit", "page=3&page_size=5", 3, 5, false},
		{"clamped", "page=-1&page_size=1000", 1, 100, false},
		{"search", "search=pump", 1, 20, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			values, _ := url.ParseQuery(tt.query)
			req := pagination.PageRequestFromQuery(values, cfg)

			if req.Page != tt.wantPage || req.PageSize != tt.wantPageSize {
				t.Errorf("page = %d/%d, want %d/%d", req.Page, req.PageSize, tt.wantPage, tt.wantPageSize)
			}
			if (req.Search != nil) != tt.wantSearch {
				t.Errorf("search = %v, want set %v", req.Search, tt.wantSearch)
			}
		})
	}
}

func TestNewPageResult(t *testing.T) {
	tests := []struct {
		total, size, want int
	}{
		{0, 10, 1},
		{10, 10, 1},
		{11, 10, 2},
		{95, 20, 5},
	}

	for _, tt := range tests {
		r := pagination.NewPageResult[int](nil, tt.total, 1, tt.size)
		if r.TotalPages != tt.want {
			t.Errorf("NewPageResult(total=%d, size=%d).TotalPages = %d, want %d", tt.total, tt.size, r.TotalPages, tt.want)
		}
		if r.Data == nil {
			t.Error("Data should never be nil")
		}
	}
}

func TestSlice(t *testing.T) {
	items := []int{1, 2, 3, 4, 5}

	r := pagination.Slice(items, pagination.PageRequest{Page: 2, PageSize: 2})
	if len(r.Data) != 2 || r.Data[0] != 3 || r.Total != 5 || r.TotalPages != 3 {
		t.Errorf("Slice() = %+v", r)
	}

	r = pagination.Slice(items, pagination.PageRequest{Page: 9, PageSize: 2})
	if len(r.Data) != 0 {
		t.Errorf("Slice() past end = %v, want empty", r.Data)
	}
}
