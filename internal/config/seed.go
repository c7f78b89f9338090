package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// Seed is the bootstrap configuration loaded from an optional YAML file:
// the business calendar and the SLA definitions to install on startup.
type Seed struct {
	Calendar struct {
		Name     string   `yaml:"name"`
		Holidays []string `yaml:"holidays"`
		// Business hours as "HH:MM-HH:MM" couples
		Hours []string `yaml:"hours"`
	} `yaml:"calendar"`
	Slas []SeedSla `yaml:"slas"`
}

type SeedSla struct {
	Name        string `yaml:"name"`
	Description string `yaml:"description"`
	Start       string `yaml:"start"`
	Stop        string `yaml:"stop"`
	Pause       string `yaml:"pause"`
	Types       string `yaml:"types"`
	Priorities  string `yaml:"priorities"`
	Resolutions string `yaml:"resolutions"`
	Threshold   int64  `yaml:"threshold"`
}

func LoadSeed(path string) (*Seed, error) {
	data, err := os.ReadFile(path)
	if err != nil { return nil, err }
	var s Seed
	if err := yaml.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("parse seed %s: %w", path, err)
	}
	return &s, nil
}

// ParseHourRange parses a "HH:MM-HH:MM" couple into millisecond day offsets.
// "24:00" is accepted as the end of day.
func ParseHourRange(s string) (start, end int64, err error) {
	parts := strings.SplitN(s, "-", 2)
	if len(parts) != 2 {
		return 0, 0, fmt.Errorf("invalid hour range %q", s)
	}
	start, err = parseClock(parts[0])
	if err != nil { return 0, 0, err }
	end, err = parseClock(parts[1])
	if err != nil { return 0, 0, err }
	if start >= end || end > 24*60*60*1000 {
		return 0, 0, fmt.Errorf("invalid hour range %q", s)
	}
	return start, end, nil
}

func parseClock(s string) (int64, error) {
	parts := strings.SplitN(strings.TrimSpace(s), ":", 2)
	if len(parts) != 2 {
		return 0, fmt.Errorf("invalid clock time %q", s)
	}
	h, err := strconv.Atoi(parts[0])
	if err != nil || h < 0 || h > 24 {
		return 0, fmt.Errorf("invalid clock time %q", s)
	}
	m, err := strconv.Atoi(parts[1])
	if err != nil || m < 0 || m > 59 || (h == 24 && m != 0) {
		return 0, fmt.Errorf("invalid clock time %q", s)
	}
	return int64(h)*3600000 + int64(m)*60000, nil
}
