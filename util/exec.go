package util

import (
	"bytes"
	"context"
	"os/exec"
	"strings"

	"github.com/sirupsen/logrus"
)

// ExecContext runs a command and captures both output streams. The context
// bounds the process lifetime; a cancelled context kills the child.
func ExecContext(ctx context.Context, command string, args ...string) (stdout, stderr string, err error) {
	logrus.Tracef("EXEC: %v %v", command, strings.Join(args, " "))

	cmd := exec.CommandContext(ctx, command, args...)
	var outb, errb bytes.Buffer
	cmd.Stdout = &outb
	cmd.Stderr = &errb

	err = cmd.Run()
	stdout = outb.String()
	stderr = errb.String()

	return
}
