package check

import "testing"

func TestEvaluate(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name    string
		content string
		needle  string
		want    Kind
	}{
		{name: "present", content: "<p>Tickets available</p>", needle: "Tickets available", want: Found},
		{name: "absent", content: "<p>Sold out</p>", needle: "Tickets available", want: NotFound},
		{name: "case sensitive", content: "tickets available", needle: "Tickets available", want: NotFound},
		{name: "empty content", content: "", needle: "x", want: NotFound},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			if got := Evaluate(tt.content, tt.needle); got.Kind != tt.want {
				t.Fatalf("Evaluate() = %v, want %v", got.Kind, tt.want)
			}
		})
	}
}

func TestResultString(t *testing.T) {
	t.Parallel()
	if got := NewFetchError("timeout").String(); got != "fetch_error: timeout" {
		t.Fatalf("String() = %q", got)
	}
	if got := NewFound().String(); got != "found" {
		t.Fatalf("String() = %q", got)
	}
}
