// Package statistics turns stored observations into windowed averages and an
// aligned multi-connection time series.
package statistics

import (
	"context"
	"sort"
	"time"

	"pathwatch/config"
	"pathwatch/store"
)

// Snapshot is the full report data model built once per aggregation cycle.
type Snapshot struct {
	GeneratedAt int64            `json:"generated_at"`
	Target      string           `json:"target"`
	Connections []ConnectionStat `json:"connections"`
	Series      Merged           `json:"series"`
}

type ConnectionStat struct {
	Name      string       `json:"name"`
	Interface string       `json:"interface"`
	Windows   []WindowStat `json:"windows"`
}

type WindowStat struct {
	Label  string          `json:"label"`
	Length config.Interval `json:"length"`

	// Average is nil when the window holds no observations. No data is not
	// zero loss.
	Average *float64 `json:"average"`
	Samples int      `json:"samples"`
}

// Merged is the union of all connections' observation timestamps with one
// cell per connection per timestamp. A nil cell means that connection has no
// sample at that instant; it is never interpolated or defaulted.
type Merged struct {
	Connections []string     `json:"connections"`
	Timestamps  []int64      `json:"timestamps"`
	Values      [][]*float64 `json:"values"`
}

// AverageOverWindow is a fresh scan of the trailing window ending at now.
// Any positive duration is accepted. ok is false for an empty window.
func AverageOverWindow(ctx context.Context, st *store.Store, connection string, window time.Duration, now time.Time) (float64, bool, error) {
	return st.AverageSince(ctx, connection, now.Add(-window).Unix())
}

// Merge aligns per-connection series onto the sorted union of their
// timestamps. When a connection carries several observations at the same
// timestamp the first in store order wins; QueryRange orders rows by
// timestamp then insertion id, so the choice is stable across calls.
func Merge(names []string, series map[string][]store.Observation) (m Merged) {
	m.Connections = append(m.Connections, names...)

	stampSet := map[int64]struct{}{}
	for _, obs := range series {
		for _, o := range obs {
			stampSet[o.Timestamp] = struct{}{}
		}
	}
	for ts := range stampSet {
		m.Timestamps = append(m.Timestamps, ts)
	}
	sort.Slice(m.Timestamps, func(i, j int) bool { return m.Timestamps[i] < m.Timestamps[j] })

	byStamp := make(map[string]map[int64]float64, len(names))
	for _, name := range names {
		cells := make(map[int64]float64, len(series[name]))
		for _, o := range series[name] {
			if _, dup := cells[o.Timestamp]; dup {
				continue
			}
			cells[o.Timestamp] = o.Loss
		}
		byStamp[name] = cells
	}

	for _, ts := range m.Timestamps {
		row := make([]*float64, len(names))
		for i, name := range names {
			if loss, present := byStamp[name][ts]; present {
				v := loss
				row[i] = &v
			}
		}
		m.Values = append(m.Values, row)
	}

	return
}

// Build assembles the snapshot consumed by the reporting side: one window
// table per connection plus the merged lookback series.
func Build(ctx context.Context, st *store.Store, cfg *config.Config, now time.Time) (Snapshot, error) {
	snap := Snapshot{
		GeneratedAt: now.Unix(),
		Target:      cfg.Target,
	}

	for _, conn := range cfg.Connections {
		cs := ConnectionStat{Name: conn.Name, Interface: conn.Interface}
		for _, w := range cfg.Windows {
			since := now.Add(-w.Length.Duration).Unix()
			avg, ok, err := st.AverageSince(ctx, conn.Name, since)
			if err != nil {
				return Snapshot{}, err
			}
			ws := WindowStat{Label: w.Label, Length: w.Length}
			if ok {
				v := avg
				ws.Average = &v
			}
			obs, err := st.QueryRange(ctx, conn.Name, since)
			if err != nil {
				return Snapshot{}, err
			}
			ws.Samples = len(obs)
			cs.Windows = append(cs.Windows, ws)
		}
		snap.Connections = append(snap.Connections, cs)
	}

	series := map[string][]store.Observation{}
	since := now.Add(-cfg.Lookback.Duration).Unix()
	for _, name := range cfg.Names() {
		obs, err := st.QueryRange(ctx, name, since)
		if err != nil {
			return Snapshot{}, err
		}
		series[name] = obs
	}
	snap.Series = Merge(cfg.Names(), series)

	return snap, nil
}
