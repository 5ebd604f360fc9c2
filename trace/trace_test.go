package trace_test

import (
	"math"
	"testing"

	"pathwatch/trace"
)

const sampleReport = `Start: 2024-11-02T10:15:01+0000
HOST: gateway                     Loss%   Snt   Last   Avg  Best  Wrst StDev
  1.|-- 192.168.1.1                0.0%     1    0.4   0.4   0.4   0.4   0.0
  2.|-- 10.11.0.1                  0.0%     1    8.2   8.2   8.2   8.2   0.0
  3.|-- 172.16.4.9                 abc%     1   10.1  10.1  10.1  10.1   0.0
  4.|-- 100.64.0.12                 150%     1   11.9  11.9  11.9  11.9   0.0
  5.|-- 203.0.113.7                5.0%     1   14.0  14.0  14.0  14.0   0.0
`

func TestParse(t *testing.T) {
	s, ok := trace.Parse(sampleReport, "ISP-A")
	if !ok {
		t.Fatal("Expected a valid sample")
	}
	// Hop 1 is excluded as the local link, hop 3 fails to parse, hop 4 is out
	// of range. Hop 2 carries 0.0% and must still count.
	if s.Hops != 2 {
		t.Errorf("Expected 2 accepted hops, got %d", s.Hops)
	}
	if math.Abs(s.Loss-2.5) > 1e-9 {
		t.Errorf("Expected mean loss 2.5, got %v", s.Loss)
	}
}

func TestParseFirstHopAlwaysExcluded(t *testing.T) {
	report := `HOST: gw  Loss%
---
  1.|-- 192.168.1.1  40.0%  1  0.4
  2.|-- 10.0.0.1      0.0%  1  8.0
`
	s, ok := trace.Parse(report, "ISP-A")
	if !ok || s.Hops != 1 || s.Loss != 0 {
		t.Errorf("First hop must not contribute: hops=%d loss=%v ok=%v", s.Hops, s.Loss, ok)
	}
}

func TestParseUnresolvedHopsSkipped(t *testing.T) {
	report := `HOST: gw  Loss%
---
  1.|-- 192.168.1.1  0.0%  1  0.4
  2.|-- ???          100.0%  1  0.0
  3.|-- 10.0.0.1     10.0%  1  9.0
`
	s, ok := trace.Parse(report, "ISP-A")
	if !ok || s.Hops != 1 {
		t.Fatalf("Expected only the resolved hop to count, got hops=%d ok=%v", s.Hops, ok)
	}
	if s.Loss != 10.0 {
		t.Errorf("Unresolved hop shifted the average: %v", s.Loss)
	}
}

func TestParseNoData(t *testing.T) {
	cases := []struct {
		name string
		raw  string
	}{
		{"empty report", ""},
		{"headers only", "HOST: gw  Loss%\n---\n"},
		{"first hop only", "HOST: gw  Loss%\n---\n  1.|-- 192.168.1.1  0.0%  1  0.4\n"},
		{"all hops invalid", "HOST: gw  Loss%\n---\n  1.|-- 192.168.1.1  0.0%  1  0.4\n  2.|-- ???  0.0%  1  0.4\n  3.|-- 10.0.0.1  -3%  1  0.4\n"},
	}

	for _, c := range cases {
		if s, ok := trace.Parse(c.raw, "ISP-A"); ok {
			t.Errorf("%v: expected no data, got %+v", c.name, s)
		}
	}
}

func TestParseZeroLossIsData(t *testing.T) {
	report := `HOST: gw  Loss%
---
  1.|-- 192.168.1.1  0.0%  1  0.4
  2.|-- 10.0.0.1     0.0%  1  8.0
`
	s, ok := trace.Parse(report, "ISP-A")
	if !ok {
		t.Fatal("A clean path is data, not the absence of it")
	}
	if s.Loss != 0 {
		t.Errorf("Expected zero loss, got %v", s.Loss)
	}
}

func TestParseMalformedLinesSkipped(t *testing.T) {
	report := `HOST: gw  Loss%
---
  1.|-- 192.168.1.1  0.0%  1  0.4
garbage
  3.|-- 10.0.0.1  4.0%  1  8.0
`
	s, ok := trace.Parse(report, "ISP-A")
	if !ok || s.Hops != 1 || s.Loss != 4.0 {
		t.Errorf("Malformed line handling wrong: hops=%d loss=%v ok=%v", s.Hops, s.Loss, ok)
	}
}
