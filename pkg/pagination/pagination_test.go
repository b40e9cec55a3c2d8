// Copyright (c) 2026 Meridian Labs. All rights reserved.
// Author: platform@meridianhq.io

package pagination_test

import (
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/meridianhq/adminkit/pkg/pagination"
)

/*
TestFromRequest_Clamping tests that query parameters are parsed and clamped
to sane defaults and the upper limit bound.
*/
func TestFromRequest_Clamping(t *testing.T) {
	tests := []struct {
		name      string
		query     string
		wantPage  int
		wantLimit int
	}{
		{"defaults_when_absent", "", pagination.DefaultPage, pagination.DefaultLimit},
		{"explicit_values", "page=3&limit=50", 3, 50},
		{"zero_page_clamps", "page=0&limit=10", pagination.DefaultPage, 10},
		{"negative_values_clamp", "page=-2&limit=-5", pagination.DefaultPage, pagination.DefaultLimit},
		{"over_max_limit_clamps", "page=1&limit=9999", 1, pagination.DefaultLimit},
		{"garbage_falls_back", "page=abc&limit=xyz", pagination.DefaultPage, pagination.DefaultLimit},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			request := httptest.NewRequest("GET", "/api/v1/users?"+tt.query, nil)

			params := pagination.FromRequest(request)

			assert.Equal(t, tt.wantPage, params.Page)
			assert.Equal(t, tt.wantLimit, params.Limit)
		})
	}
}

func TestParams_Offset(t *testing.T) {
	assert.Equal(t, 0, pagination.Params{Page: 1, Limit: 20}.Offset())
	assert.Equal(t, 0, pagination.Params{Page: 0, Limit: 20}.Offset())
	assert.Equal(t, 40, pagination.Params{Page: 3, Limit: 20}.Offset())
}

/*
TestNewMeta tests total-page rounding, including the empty result set.
*/
func TestNewMeta(t *testing.T) {
	tests := []struct {
		name           string
		limit, total   int
		wantTotalPages int
	}{
		{"exact_division", 20, 40, 2},
		{"partial_last_page", 20, 41, 3},
		{"empty_result", 20, 0, 0},
		{"zero_limit_guard", 0, 10, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			meta := pagination.NewMeta(1, tt.limit, tt.total)

			assert.Equal(t, tt.wantTotalPages, meta.TotalPages)
			assert.Equal(t, tt.total, meta.Total)
		})
	}
}
