package proxy

import (
	"net/http"
	"strings"

	"github.com/openrange/balancer/api"
)

// Backend selection is an ordered rule table evaluated top-down; the first
// matching rule wins. The desktop's own web UI loads assets from a fixed set
// of paths that carry no other desktop indicator, hence the allow-list.
type routingRule struct {
	name    string
	matches func(r *http.Request) bool
	host    func(team string) string
}

var desktopAssetPrefixes = []string{
	"/vnc.html",
	"/websockify",
	"/core/",
	"/vendor/",
	"/app/",
}

var routingRules = []routingRule{
	{
		name: "desktop-query",
		matches: func(r *http.Request) bool {
			return r.URL.Query().Has("desktop")
		},
		host: api.DesktopHost,
	},
	{
		name: "desktop-referer",
		matches: func(r *http.Request) bool {
			return strings.Contains(r.Header.Get("Referer"), "desktop")
		},
		host: api.DesktopHost,
	},
	{
		name: "desktop-asset",
		matches: func(r *http.Request) bool {
			for _, prefix := range desktopAssetPrefixes {
				if strings.HasPrefix(r.URL.Path, prefix) {
					return true
				}
			}
			return false
		},
		host: api.DesktopHost,
	},
	{
		name:    "workload",
		matches: func(r *http.Request) bool { return true },
		host:    api.WorkloadHost,
	},
}

func resolveBackend(r *http.Request, team string) (string, string) {
	for _, rule := range routingRules {
		if rule.matches(r) {
			return rule.name, "http://" + rule.host(team)
		}
	}
	// Unreachable, the workload rule matches everything.
	return "workload", "http://" + api.WorkloadHost(team)
}
