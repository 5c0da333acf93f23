// Package main is the entry point for gatewayctl, the operator CLI for
// validating and generating policy, verifying the audit chain, and probing
// a running gatewayd instance.
package main

import (
	"os"

	"github.com/alecthomas/kingpin/v2"
)

// Version is set at build time via ldflags.
var Version = "dev"

func main() {
	app := kingpin.New("gatewayctl", "Operator CLI for the policy-governed execution gateway")
	app.Version(Version)

	ConfigurePolicyValidateCommand(app)
	ConfigurePolicyTemplateCommand(app)
	ConfigureAuditVerifyCommand(app)
	ConfigureHealthCommand(app)

	kingpin.MustParse(app.Parse(os.Args[1:]))
}
