// Package main is the entry point for the avpd appliance.
package main

import (
	"github.com/avpd/avpd/cmd"
	"github.com/avpd/avpd/config"
	"github.com/avpd/avpd/log"
	"github.com/samber/lo"
)

func main() {
	lo.Must0(config.Setup())
	lo.Must0(log.Setup())

	cmd.Execute()
}
