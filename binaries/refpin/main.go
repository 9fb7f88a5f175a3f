package main

import (
	"errors"
	"os"

	log "github.com/sirupsen/logrus"

	"github.com/twitter/refpin/cli"
	refpinerror "github.com/twitter/refpin/common/errors"
	"github.com/twitter/refpin/common/log/hooks"
)

func main() {
	log.AddHook(hooks.NewContextHook())

	if err := cli.MakeRefpinCLI().Execute(); err != nil {
		log.Error(err)
		var exitErr *refpinerror.ExitCodeError
		if errors.As(err, &exitErr) {
			os.Exit(int(exitErr.GetExitCode()))
		}
		os.Exit(int(refpinerror.SetupFailureExitCode))
	}
}
