package capture

import "testing"

// TestRetryDelay verifies only the first end-of-file rewind skips the wait,
// so an unreadable file cannot spin the reader loop.
func TestRetryDelay(t *testing.T) {
	tests := []struct {
		name    string
		looping bool
		misses  int
		want    bool
	}{
		{"device first miss", false, 1, true},
		{"device repeated misses", false, 7, true},
		{"file end of file", true, 1, false},
		{"file never yields", true, 2, true},
		{"file never yields later", true, 500, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := RetryDelay(tt.looping, tt.misses)
			if (got > 0) != tt.want {
				t.Errorf("RetryDelay(%v, %d) = %v, want wait=%v", tt.looping, tt.misses, got, tt.want)
			}
		})
	}
}
