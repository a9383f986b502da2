package cmd

import (
	"context"

	"github.com/khanhnv2901/seca-posture/internal/posture"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

// AppContext carries the state every command needs once configuration is loaded.
type AppContext struct {
	Logger *zap.SugaredLogger
	Config *CLIConfig
	Engine *posture.Engine
}

type appContextKey struct{}

var globalAppContext *AppContext

func storeAppContext(cmd *cobra.Command, appCtx *AppContext) {
	globalAppContext = appCtx
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	cmd.SetContext(context.WithValue(ctx, appContextKey{}, appCtx))
}

func getAppContext(cmd *cobra.Command) *AppContext {
	if cmd != nil {
		if ctx := cmd.Context(); ctx != nil {
			if appCtx, ok := ctx.Value(appContextKey{}).(*AppContext); ok {
				return appCtx
			}
		}
	}
	if globalAppContext != nil {
		return globalAppContext
	}
	return &AppContext{
		Logger: zap.NewNop().Sugar(),
		Config: newCLIConfig(),
		Engine: posture.NewEngine(posture.DefaultPolicy()),
	}
}
