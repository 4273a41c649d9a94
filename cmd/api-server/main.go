// Command api-server serves the per-user shopping basket API.
package main

import (
	"context"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/app"
	"go.uber.org/zap"

	basketapp "github.com/xenking/shopping-basket/internal/app"
)

func main() {
	app.Run(func(ctx context.Context, lg *zap.Logger, m *app.Telemetry) error {
		cfg, err := basketapp.LoadConfig()
		if err != nil {
			return errors.Wrap(err, "load config")
		}
		return basketapp.Run(ctx, lg, m, cfg)
	})
}
