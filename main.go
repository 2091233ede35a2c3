package main

import (
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/fiffu/postwatch/app"
	"github.com/fiffu/postwatch/config"
	"github.com/fiffu/postwatch/lib"
	"github.com/fiffu/postwatch/lib/fetcher"
	"github.com/fiffu/postwatch/lib/settingsfile"
	"github.com/fiffu/postwatch/lib/store"
	"github.com/fiffu/postwatch/senders"
	"github.com/spf13/cobra"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

func NewLogger() (*zap.Logger, error) {
	switch os.Getenv("ENVIRONMENT") {
	default:
		return zap.NewDevelopment()

	case "production":
		logCfg := zap.NewProductionConfig()
		logCfg.EncoderConfig.EncodeTime = func(t time.Time, enc zapcore.PrimitiveArrayEncoder) {
			t = t.UTC()
			zapcore.ISO8601TimeEncoder(t, enc)
		}
		return logCfg.Build()
	}
}

func appOptions() fx.Option {
	return fx.Options(
		fx.Provide(NewLogger),
		fx.Provide(config.NewConfig),

		fx.Provide(app.NewDatabase),
		fx.Provide(
			store.NewWatermarks,
			store.NewDeliveries,
			store.NewPolicies,
			store.NewSettings,
		),

		fx.Provide(app.NewTransport),
		fx.Provide(senders.NewSinkRegistry),
		fx.Provide(fetcher.New),
		fx.Provide(app.NewResolver),
		fx.Provide(app.NewDispatcher),
		fx.Provide(app.NewPoller),
		fx.Provide(lib.NewService),
		fx.Provide(app.NewSettingsWatcher),
		fx.Provide(app.NewAPI),

		fx.Invoke(func(*http.Server, *settingsfile.Watcher) {}),
	)
}

var rootCmd = &cobra.Command{
	Use:           "postwatch",
	Short:         "Watch accounts for new posts and deliver each one exactly once",
	SilenceUsage:  true,
	SilenceErrors: true,
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the poller and the HTTP API (foreground)",
	RunE: func(cmd *cobra.Command, args []string) error {
		fx.New(appOptions()).Run()
		return nil
	},
}

func init() {
	rootCmd.AddCommand(serveCmd, statusCmd, triggerCmd, replayCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}
