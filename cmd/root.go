package cmd

import (
	"os"

	"github.com/flanksource/commons/logger"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/openrange/balancer/api"
)

var Root = &cobra.Command{
	Use: "balancer",
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		logger.UseZap(cmd.Flags())
	},
}

var httpPort int
var maxInactive string

func ServerFlags(flags *pflag.FlagSet) {
	flags.IntVar(&httpPort, "http-port", 8080, "Port to serve the balancer on")
	flags.StringVar(&api.CookieName, "cookie-name", api.CookieName, "Name of the signed identity cookie")
	flags.StringVar(&api.CookieSecret, "cookie-secret", "", "Secret used to sign identity cookies (env BALANCER_COOKIE_SECRET)")
	flags.BoolVar(&api.SecureCookies, "secure-cookies", false, "Set the Secure attribute on identity cookies")
	flags.StringVar(&api.AdminTeam, "admin-team", api.AdminTeam, "Identity that signs in as administrator")
	flags.StringVar(&api.AdminPasscodeHash, "admin-passcode-hash", "", "Bcrypt hash of the admin passcode (env BALANCER_ADMIN_PASSCODE_HASH)")
	flags.IntVar(&api.MaxInstances, "max-instances", api.MaxInstances, "Maximum number of simultaneous instances, negative for unlimited")
	flags.StringVar(&api.WorkloadImage, "workload-image", api.WorkloadImage, "Image for the team workload")
	flags.StringVar(&api.WorkloadTag, "workload-tag", api.WorkloadTag, "Tag for the team workload image")
	flags.StringVar(&api.DesktopImage, "desktop-image", api.DesktopImage, "Image for the virtual desktop")
	flags.StringVar(&api.DesktopTag, "desktop-tag", api.DesktopTag, "Tag for the virtual desktop image")
	flags.BoolVar(&api.SkipOwnerRefs, "skip-owner-refs", false, "Do not stamp created resources with an owner reference to the balancer deployment")
	flags.StringVar(&api.OwnNamespace, "own-namespace", api.OwnNamespace, "Namespace the balancer deployment runs in")
	flags.StringVar(&api.OwnDeployment, "own-deployment", api.OwnDeployment, "Name of the balancer's own deployment")
}

func ReaperFlags(flags *pflag.FlagSet) {
	flags.StringVar(&maxInactive, "max-inactive", "3d", "Idle duration after which an instance is reclaimed (<integer><s|m|h|d>)")
	flags.StringVar(&schedule, "schedule", "", "Optional cron schedule to keep running on instead of exiting after one pass")
}

// Secrets may come from the environment instead of flags.
func secretsFromEnv() {
	if api.CookieSecret == "" {
		api.CookieSecret = os.Getenv("BALANCER_COOKIE_SECRET")
	}
	if api.AdminPasscodeHash == "" {
		api.AdminPasscodeHash = os.Getenv("BALANCER_ADMIN_PASSCODE_HASH")
	}
}

func init() {
	logger.BindFlags(Root.PersistentFlags())
	Root.AddCommand(Serve, Reap)
}
