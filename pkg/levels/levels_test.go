package levels

import "testing"

func TestFromString(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want Level
	}{
		{name: "info", in: "INFO", want: Info},
		{name: "warning", in: "WARNING", want: Warning},
		{name: "error", in: "ERROR", want: Error},
		{name: "lowercase is not recognized", in: "info", want: Unknown},
		{name: "debug is not a tracked level", in: "DEBUG", want: Unknown},
		{name: "empty", in: "", want: Unknown},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := FromString(tt.in); got != tt.want {
				t.Fatalf("FromString(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}

func TestTally_MergePreservesTotal(t *testing.T) {
	a := NewTally()
	a.Add(Info)
	a.Add(Info)
	a.Add(Error)

	b := NewTally()
	b.Add(Unknown)
	b.Add(Info)

	a.Merge(b)

	if got := a.Total(); got != 5 {
		t.Fatalf("Total() = %d, want 5", got)
	}
	if a[Info] != 3 {
		t.Errorf("merged INFO count = %d, want 3", a[Info])
	}
	if a[Error] != 1 {
		t.Errorf("merged ERROR count = %d, want 1", a[Error])
	}
	if a[Unknown] != 1 {
		t.Errorf("merged UNKNOWN count = %d, want 1", a[Unknown])
	}
}
