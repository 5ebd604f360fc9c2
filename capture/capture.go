// Package capture invokes the external route tracer and hands back its raw
// report text. Everything past the process boundary (timeouts, exit codes)
// lives here; interpreting the report does not.
package capture

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"pathwatch/config"
	"pathwatch/util"
)

// Runner produces one raw trace report per call. A non-nil error is a
// capture failure: the process was unavailable, timed out or exited
// non-zero. The report text is only meaningful when err is nil.
type Runner interface {
	Capture(ctx context.Context, target, iface string) (report string, err error)
}

// MTR shells out to mtr in report mode, one capture per call.
type MTR struct {
	Binary  string
	Cycles  int
	Timeout config.Interval
}

func NewMTR(cfg config.Capture) *MTR {
	return &MTR{
		Binary:  cfg.Binary,
		Cycles:  cfg.Cycles,
		Timeout: cfg.Timeout,
	}
}

// Args builds the mtr invocation for one target/interface pair.
func (m *MTR) Args(target, iface string) []string {
	return []string{
		"--report",
		"--report-cycles", strconv.Itoa(m.Cycles),
		"-I", iface,
		target,
	}
}

func (m *MTR) Capture(ctx context.Context, target, iface string) (string, error) {
	id := uuid.New()
	logrus.Infof("Running traceroute on %v to %v capture=%v", iface, target, id)

	if m.Timeout.Duration > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, m.Timeout.Duration)
		defer cancel()
	}

	stdout, stderr, err := util.ExecContext(ctx, m.Binary, m.Args(target, iface)...)
	if err != nil {
		detail := strings.TrimSpace(stderr)
		if detail == "" {
			detail = err.Error()
		}
		return "", fmt.Errorf("capture %v on %v failed: %v", id, iface, detail)
	}

	logrus.Tracef("Capture %v report:\n%v", id, stdout)

	return stdout, nil
}
