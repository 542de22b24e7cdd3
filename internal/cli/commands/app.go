// Package commands implements the dbpipeline subcommands.
package commands

import (
	"context"
	"errors"

	"github.com/JonMunkholm/dbpipeline/internal/config"
	"github.com/JonMunkholm/dbpipeline/internal/core"
)

// App is what every command needs: the loaded configuration and a service
// bound to an open store. The root command builds it before RunE.
type App struct {
	Config  *config.Config
	Service *core.Service
}

type appKey struct{}

var errNoApp = errors.New("command has no pipeline service (run it through the root command)")

// WithApp stores app in ctx for the subcommands.
func WithApp(ctx context.Context, app *App) context.Context {
	return context.WithValue(ctx, appKey{}, app)
}

func appFromContext(ctx context.Context) (*App, error) {
	if ctx == nil {
		return nil, errNoApp
	}
	app, ok := ctx.Value(appKey{}).(*App)
	if !ok || app == nil || app.Service == nil {
		return nil, errNoApp
	}
	return app, nil
}
