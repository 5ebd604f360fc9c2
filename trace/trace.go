// Package trace reduces a raw mtr report to a single path-loss figure.
package trace

import (
	"strconv"
	"strings"

	"github.com/sirupsen/logrus"
)

// UnresolvedHost is the placeholder mtr prints when a hop has no reverse DNS.
const UnresolvedHost = "???"

// headerLines is the fixed report preamble carrying column titles, not data.
const headerLines = 2

// Summary is the outcome of parsing one report.
type Summary struct {
	// Loss is the mean packet loss over all accepted hops, in percent.
	Loss float64
	// Hops is the number of hops that contributed to Loss.
	Hops int
}

// Parse reduces a raw report to the mean loss over its valid hops. The two
// header lines and the first hop are discarded, the first hop because it
// measures the local link rather than the remote path. Hops with an
// unresolved hostname, an unparseable loss field or a loss outside 0-100%
// are skipped and logged but never fail the sample. ok is false when no hop
// was accepted; zero accepted loss and no data are distinct outcomes.
func Parse(raw, connection string) (s Summary, ok bool) {
	lines := strings.Split(raw, "\n")
	if len(lines) <= headerLines+1 {
		logrus.Warn("[ NO_DATA ] connection: ", connection, " report too short to contain any path hop")
		return
	}

	var sum float64
	for _, line := range lines[headerLines+1:] {
		loss, accepted := parseHop(line)
		if !accepted {
			continue
		}
		sum += loss
		s.Hops++
	}

	if s.Hops == 0 {
		logrus.Warn("[ NO_DATA ] connection: ", connection, " no usable hop data in report")
		return
	}

	s.Loss = sum / float64(s.Hops)
	ok = true

	return
}

// parseHop extracts the loss percentage from one report line. Report rows
// look like " 2.|-- 10.11.0.1  0.0%  1  0.4 ...": field two is the hostname,
// field three the loss.
func parseHop(line string) (loss float64, ok bool) {
	if strings.TrimSpace(line) == "" {
		return
	}

	columns := strings.Fields(line)
	if len(columns) < 3 {
		logrus.Warn("Unexpected line format: ", line)
		return
	}

	hostname := columns[1]
	if hostname == UnresolvedHost {
		logrus.Debug("Skipping unresolved hop: ", line)
		return
	}

	loss, err := strconv.ParseFloat(strings.TrimSuffix(columns[2], "%"), 64)
	if err != nil {
		logrus.Warn("Could not parse loss value '", columns[2], "' in line: ", line)
		return
	}
	if loss < 0 || loss > 100 {
		logrus.Warn("Ignoring out-of-range packet loss value: ", loss, "% in line: ", line)
		return
	}

	ok = true

	return
}
