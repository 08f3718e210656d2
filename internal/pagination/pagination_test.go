package pagination

import "testing"

func TestDefaults(t *testing.T) {
	tests := []struct {
		name         string
		in           PageRequest
		wantPage     int
		wantPageSize int
	}{
		{"zero_values", PageRequest{}, 1, 20},
		{"explicit", PageRequest{Page: 3, PageSize: 50}, 3, 50},
		{"oversized", PageRequest{Page: 1, PageSize: 500}, 1, 100},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := tt.in
			p.Defaults()
			if p.Page != tt.wantPage || p.PageSize != tt.wantPageSize {
				t.Errorf("got page=%d size=%d, want page=%d size=%d", p.Page, p.PageSize, tt.wantPage, tt.wantPageSize)
			}
		})
	}
}

func TestOffset(t *testing.T) {
	p := PageRequest{Page: 3, PageSize: 20}
	if got := p.Offset(); got != 40 {
		t.Errorf("expected offset 40, got %d", got)
	}
}

func TestOrderClause(t *testing.T) {
	allowed := map[string]string{"date": "date", "amount": "amount"}

	tests := []struct {
		sort string
		want string
	}{
		{"", "date DESC"},
		{"amount", "amount ASC"},
		{"-amount", "amount DESC"},
		{"id; DROP TABLE accounts", "date DESC"},
	}

	for _, tt := range tests {
		t.Run(tt.sort, func(t *testing.T) {
			p := PageRequest{Sort: tt.sort}
			if got := p.OrderClause(allowed, "date DESC"); got != tt.want {
				t.Errorf("OrderClause(%q) = %q, want %q", tt.sort, got, tt.want)
			}
		})
	}
}

func TestNewPageResponse(t *testing.T) {
	resp := NewPageResponse[int](nil, 1, 2, 5)
	if resp.TotalPages != 3 {
		t.Errorf("expected 3 pages, got %d", resp.TotalPages)
	}
	if resp.Data == nil {
		t.Error("expected empty slice, got nil")
	}
}
