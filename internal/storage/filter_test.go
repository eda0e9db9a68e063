package storage

import (
	"testing"
)

func TestFilterClause(t *testing.T) {
	tests := []struct {
		name       string
		filter     SearchFilter
		wantClause string
		wantArgs   []interface{}
	}{
		{
			name:       "no filter",
			filter:     SearchFilter{},
			wantClause: "",
			wantArgs:   nil,
		},
		{
			name:       "channel by name",
			filter:     SearchFilter{Channel: "engineering"},
			wantClause: " AND channel_name = $2",
			wantArgs:   []interface{}{"engineering"},
		},
		{
			name:       "channel by ID",
			filter:     SearchFilter{Channel: "C04ABCDEF"},
			wantClause: " AND channel_id = $2",
			wantArgs:   []interface{}{"C04ABCDEF"},
		},
		{
			name:       "date range",
			filter:     SearchFilter{DateFrom: "2024-01-01", DateTo: "2024-06-30"},
			wantClause: " AND date >= $2 AND date <= $3",
			wantArgs:   []interface{}{"2024-01-01", "2024-06-30"},
		},
		{
			name:       "all filters",
			filter:     SearchFilter{Channel: "general", DateFrom: "2024-01-01", DateTo: "2024-06-30"},
			wantClause: " AND channel_name = $2 AND date >= $3 AND date <= $4",
			wantArgs:   []interface{}{"general", "2024-01-01", "2024-06-30"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			clause, args := filterClause(tt.filter, 2)
			if clause != tt.wantClause {
				t.Errorf("filterClause() clause = %q, want %q", clause, tt.wantClause)
			}
			if len(args) != len(tt.wantArgs) {
				t.Fatalf("filterClause() args = %v, want %v", args, tt.wantArgs)
			}
			for i := range args {
				if args[i] != tt.wantArgs[i] {
					t.Errorf("filterClause() args[%d] = %v, want %v", i, args[i], tt.wantArgs[i])
				}
			}
		})
	}
}
