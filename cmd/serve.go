package cmd

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/flanksource/commons/logger"
	"github.com/spf13/cobra"

	"github.com/openrange/balancer/api"
	"github.com/openrange/balancer/auth"
	"github.com/openrange/balancer/echo"
	"github.com/openrange/balancer/k8s"
)

var Serve = &cobra.Command{
	Use: "serve",
	Run: func(cmd *cobra.Command, args []string) {
		secretsFromEnv()
		if api.CookieSecret == "" {
			logger.Fatalf("a cookie secret is required, set --cookie-secret or BALANCER_COOKIE_SECRET")
		}
		auth.Init(api.CookieSecret)

		client, err := k8s.NewClient()
		if err != nil {
			logger.Fatalf("Failed to create kubernetes client: %v", err)
		}
		api.Kubernetes = client

		e := echo.New()

		AddShutdownHook(func() {
			ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			if err := e.Shutdown(ctx); err != nil {
				logger.Errorf("Failed to shut down server: %v", err)
			}
		})
		go WaitForShutdown()

		if err := e.Start(fmt.Sprintf(":%d", httpPort)); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatalf("Failed to start server: %v", err)
		}
	},
}

func init() {
	ServerFlags(Serve.Flags())
}
