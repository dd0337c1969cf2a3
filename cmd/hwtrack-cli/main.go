package main

import (
	"context"

	"hwtrack-backend/cmd/hwtrack-cli/commands"
	"hwtrack-backend/lib/serviceutil"
	"hwtrack-backend/lib/telemetry"
)

func main() {
	ctx := serviceutil.SignalContext()

	t, err := telemetry.SetupFromEnv(ctx, "hwtrack-cli")
	if err != nil {
		serviceutil.Fatal("failed to setup telemetry", err)
	}
	defer t.Shutdown(context.Background())

	commands.ExecuteContext(ctx)
}
