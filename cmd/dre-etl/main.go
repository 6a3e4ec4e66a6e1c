package main

import (
	"context"

	"dre-etl/cmd/dre-etl/commands"
	"dre-etl/internal/components/serviceutil"
)

func main() {
	ctx, cancel := serviceutil.SignalContext(context.Background())
	defer cancel()
	commands.ExecuteContext(ctx)
}
