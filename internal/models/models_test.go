package models

import "testing"

func TestRemainingItemIDs(t *testing.T) {
	tests := []struct {
		name      string
		items     []string
		completed []string
		expected  []string
	}{
		{"ingenting ferdig", []string{"a", "b"}, nil, []string{"a", "b"}},
		{"delvis ferdig beholder rekkefølgen", []string{"a", "b", "c", "d"}, []string{"a", "c"}, []string{"b", "d"}},
		{"alt ferdig", []string{"a", "b"}, []string{"a", "b"}, nil},
		{"ukjente fullførte ignoreres", []string{"a"}, []string{"zzz"}, []string{"a"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			job := MirrorJob{ItemIDs: tt.items, CompletedItemIDs: tt.completed}
			got := job.RemainingItemIDs()
			if len(got) != len(tt.expected) {
				t.Fatalf("got %v, expected %v", got, tt.expected)
			}
			for i := range got {
				if got[i] != tt.expected[i] {
					t.Errorf("index %d: got %q, expected %q", i, got[i], tt.expected[i])
				}
			}
		})
	}
}
