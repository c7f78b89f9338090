package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestParseHourRange(t *testing.T) {
	for _, tc := range []struct {
		in         string
		start, end int64
	}{
		{"09:00-12:00", 9 * 3600000, 12 * 3600000},
		{"14:30-18:00", 14*3600000 + 30*60000, 18 * 3600000},
		{"22:00-24:00", 22 * 3600000, 24 * 3600000},
	} {
		start, end, err := ParseHourRange(tc.in)
		if err != nil {
			t.Fatalf("ParseHourRange(%q): %v", tc.in, err)
		}
		if start != tc.start || end != tc.end {
			t.Fatalf("ParseHourRange(%q) = %d, %d, want %d, %d", tc.in, start, end, tc.start, tc.end)
		}
	}
	for _, in := range []string{"", "09:00", "12:00-09:00", "09:00-25:00", "09-12", "24:30-24:00"} {
		if _, _, err := ParseHourRange(in); err == nil {
			t.Fatalf("ParseHourRange(%q) should fail", in)
		}
	}
}

func TestLoadSeed(t *testing.T) {
	path := filepath.Join(t.TempDir(), "seed.yaml")
	data := `calendar:
  name: France
  holidays: ["2014-07-14", "2014-12-25"]
  hours: ["09:00-12:00", "14:00-18:00"]
slas:
  - name: resolution
    start: Open
    stop: Resolved,Closed
    pause: Pending
    threshold: 86400000
`
	if err := os.WriteFile(path, []byte(data), 0o600); err != nil {
		t.Fatal(err)
	}
	s, err := LoadSeed(path)
	if err != nil {
		t.Fatalf("LoadSeed: %v", err)
	}
	if s.Calendar.Name != "France" || len(s.Calendar.Holidays) != 2 || len(s.Calendar.Hours) != 2 {
		t.Fatalf("calendar = %+v", s.Calendar)
	}
	if len(s.Slas) != 1 || s.Slas[0].Stop != "Resolved,Closed" || s.Slas[0].Threshold != 86400000 {
		t.Fatalf("slas = %+v", s.Slas)
	}
}
