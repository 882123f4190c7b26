package main

import (
	"os"

	"github.com/yuriipolishchuk/ssh2iot/cmd"
	"github.com/yuriipolishchuk/ssh2iot/internal/errors"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(errors.GetExitCode(err))
	}
}
