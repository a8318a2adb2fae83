package main

import (
	stderrors "errors"
	"os"

	"github.com/conneroisu/plctool/cmd"
	"github.com/conneroisu/plctool/internal/errors"
)

func main() {
	err := cmd.Execute()
	if err == nil {
		return
	}
	var exit *errors.ExitError
	if !errors.IsFatal(err) && stderrors.As(err, &exit) {
		os.Exit(exit.Status.ExitCode())
	}
	os.Exit(errors.StatusFatal.ExitCode())
}
