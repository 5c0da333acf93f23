package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/alecthomas/kingpin/v2"
)

// HealthCommandInput contains the input for health.
type HealthCommandInput struct {
	Addr    string
	Timeout time.Duration

	Stdout *os.File
}

// ConfigureHealthCommand sets up the health command.
func ConfigureHealthCommand(app *kingpin.Application) {
	input := HealthCommandInput{}

	cmd := app.Command("health", "Probe a running gatewayd instance via system.test_connection")

	cmd.Flag("addr", "gatewayd base URL").
		Default("http://localhost:8443").
		StringVar(&input.Addr)

	cmd.Flag("timeout", "Request timeout").
		Default("5s").
		DurationVar(&input.Timeout)

	cmd.Action(func(c *kingpin.ParseContext) error {
		ok, err := HealthCommand(input)
		app.FatalIfError(err, "health")
		if !ok {
			os.Exit(1)
		}
		return nil
	})
}

// HealthCommand dispatches system.test_connection against a running
// gatewayd and reports whether it answered successfully.
func HealthCommand(input HealthCommandInput) (bool, error) {
	stdout := input.Stdout
	if stdout == nil {
		stdout = os.Stdout
	}

	client := &http.Client{Timeout: input.Timeout}

	body, err := json.Marshal(map[string]string{
		"tenant_id":  "gatewayctl",
		"session_id": "gatewayctl",
		"actor":      "gatewayctl",
	})
	if err != nil {
		return false, err
	}

	resp, err := client.Post(input.Addr+"/v1/dispatch/system.test_connection", "application/json", bytes.NewReader(body))
	if err != nil {
		fmt.Fprintf(stdout, "%s %v\n", errStyle.Render("ERR"), err)
		return false, nil
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		fmt.Fprintf(stdout, "%s gatewayd returned status %d\n", errStyle.Render("ERR"), resp.StatusCode)
		return false, nil
	}

	fmt.Fprintf(stdout, "%s gatewayd is reachable\n", okStyle.Render("OK "))
	return true, nil
}
