package main

import (
	"context"
	"encoding/json"

	"github.com/byteness/sentinel-gateway/dispatch"
	"github.com/byteness/sentinel-gateway/gateway"
)

// registerCommands wires the command surface dispatch.Dispatcher routes
// through the MAC gate and rate limiter. Real command bodies live closer
// to the subsystems they touch; this binary only owns the wiring.
func registerCommands(d *dispatch.Dispatcher) {
	d.RegisterCommand("system.test_connection", gateway.Unclassified, handleTestConnection)
	d.RegisterCommand("data.read", gateway.Internal, handleDataRead)
	d.RegisterCommand("data.write", gateway.Confidential, handleDataWrite)
}

func handleTestConnection(ctx context.Context, dctx dispatch.Context, payload json.RawMessage) (json.RawMessage, error) {
	return json.Marshal(map[string]string{"status": "ok"})
}

func handleDataRead(ctx context.Context, dctx dispatch.Context, payload json.RawMessage) (json.RawMessage, error) {
	return json.Marshal(map[string]string{"tenant": dctx.TenantID, "result": "read-ok"})
}

func handleDataWrite(ctx context.Context, dctx dispatch.Context, payload json.RawMessage) (json.RawMessage, error) {
	return json.Marshal(map[string]string{"tenant": dctx.TenantID, "result": "write-ok"})
}
