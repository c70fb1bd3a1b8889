package main

import (
	"github.com/autobloomer/sensorcore/pkg/cli/sh"

	_ "github.com/autobloomer/sensorcore/pkg/cli/cmds/sensors"
)

//go-build: CGO_ENABLED=0

func init() {
	sh.SetupFlags()
}

func main() {
	sh.Main()
}
