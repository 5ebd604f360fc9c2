package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"
)

// Defaults applied when neither the flags nor the configuration file say otherwise.
const (
	DefaultDatabase = "traceroute.db"
	DefaultReport   = "index.html"
	DefaultSnapshot = "pathwatch-stats.json"
	DefaultBinary   = "mtr"
	DefaultCycles   = 1
)

func Load(path string) (cfg *Config, err error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return
	}

	err = json.Unmarshal(data, &cfg)
	if err != nil {
		return
	}
	if cfg == nil {
		// A file containing JSON null decodes without error
		return nil, fmt.Errorf("config: %v holds no configuration", path)
	}

	cfg.applyDefaults()
	err = cfg.Validate()

	return
}

// FromFlags builds a configuration from the bare CLI surface: comma separated
// interfaces paired positionally with comma separated connection names.
func FromFlags(interfaces, names, target string, cadence time.Duration) (cfg *Config, err error) {
	ifaceList := splitList(interfaces)
	nameList := splitList(names)
	if len(ifaceList) != len(nameList) {
		return nil, fmt.Errorf("config: %d interfaces given for %d connection names", len(ifaceList), len(nameList))
	}

	cfg = &Config{
		Target:  target,
		Cadence: Interval{Duration: cadence},
	}
	for i, name := range nameList {
		cfg.Connections = append(cfg.Connections, Connection{
			Name:      name,
			Interface: ifaceList[i],
		})
	}

	cfg.applyDefaults()
	err = cfg.Validate()

	return
}

type Config struct {
	Target      string       `json:"target"`
	Connections []Connection `json:"connections"`
	Cadence     Interval     `json:"cadence"`

	Capture Capture `json:"capture"`

	Database string `json:"database"`
	Report   string `json:"report"`
	Snapshot string `json:"snapshot"`

	// Windows lists the trailing durations reported per connection.
	Windows []Window `json:"windows"`

	// Lookback bounds the merged time series fed to the report.
	Lookback Interval `json:"lookback"`
}

type Connection struct {
	Name      string `json:"name"`
	Interface string `json:"interface"`
}

type Capture struct {
	Binary  string   `json:"binary"`
	Cycles  int      `json:"cycles"`
	Timeout Interval `json:"timeout"`
}

type Window struct {
	Label  string   `json:"label"`
	Length Interval `json:"length"`
}

// DefaultWindows matches the original reporting set.
func DefaultWindows() []Window {
	return []Window{
		{Label: "Last 15 minutes", Length: Interval{Duration: 15 * time.Minute}},
		{Label: "Last 30 minutes", Length: Interval{Duration: 30 * time.Minute}},
		{Label: "Last hour", Length: Interval{Duration: time.Hour}},
		{Label: "Last day", Length: Interval{Duration: 24 * time.Hour}},
		{Label: "Last week", Length: Interval{Duration: 7 * 24 * time.Hour}},
	}
}

func (cfg *Config) applyDefaults() {
	if cfg.Database == "" {
		cfg.Database = DefaultDatabase
	}
	if cfg.Report == "" {
		cfg.Report = DefaultReport
	}
	if cfg.Snapshot == "" {
		cfg.Snapshot = DefaultSnapshot
	}
	if cfg.Capture.Binary == "" {
		cfg.Capture.Binary = DefaultBinary
	}
	if cfg.Capture.Cycles < 1 {
		cfg.Capture.Cycles = DefaultCycles
	}
	if cfg.Capture.Timeout.Duration <= 0 {
		cfg.Capture.Timeout.Duration = 30 * time.Second
	}
	if cfg.Cadence.Duration <= 0 {
		cfg.Cadence.Duration = time.Second
	}
	if len(cfg.Windows) == 0 {
		cfg.Windows = DefaultWindows()
	}
	if cfg.Lookback.Duration <= 0 {
		cfg.Lookback.Duration = 7 * 24 * time.Hour
	}
}

func (cfg *Config) Validate() error {
	if cfg.Target == "" {
		return errors.New("config: target address is required")
	}
	if len(cfg.Connections) == 0 {
		return errors.New("config: at least one connection is required")
	}
	seen := map[string]bool{}
	for _, c := range cfg.Connections {
		if c.Name == "" || c.Interface == "" {
			return fmt.Errorf("config: connection %+v needs both a name and an interface", c)
		}
		if seen[c.Name] {
			return fmt.Errorf("config: duplicate connection name %q", c.Name)
		}
		seen[c.Name] = true
	}
	for _, w := range cfg.Windows {
		if w.Length.Duration <= 0 {
			return fmt.Errorf("config: window %q must have a positive length", w.Label)
		}
	}
	return nil
}

// Names returns the connection names in configuration order.
func (cfg *Config) Names() (names []string) {
	for _, c := range cfg.Connections {
		names = append(names, c.Name)
	}
	return
}

func splitList(s string) (out []string) {
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		if part != "" {
			out = append(out, part)
		}
	}
	return
}

type Interval struct {
	time.Duration
}

func (d *Interval) UnmarshalJSON(data []byte) (err error) {
	var pstr string
	err = json.Unmarshal(data, &pstr)
	if err != nil {
		return err
	}
	d.Duration, err = time.ParseDuration(pstr)
	return
}

func (d *Interval) MarshalJSON() (data []byte, err error) {
	s := d.Duration.String()
	data, err = json.Marshal(s)
	return
}
