// Package proxy routes live team traffic to the right backend. Every
// non-balancer request resolves its team from the signed session cookie,
// passes a cached readiness gate, bumps the instance's last-request
// annotation, and is forwarded to either the team's main workload or its
// virtual desktop.
package proxy

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/flanksource/commons/logger"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	apierrors "k8s.io/apimachinery/pkg/api/errors"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/types"
	"k8s.io/client-go/kubernetes"

	"github.com/openrange/balancer/api"
	"github.com/openrange/balancer/auth"
)

const (
	cacheTTL  = 10 * time.Second
	targetKey = "proxy-target"

	joinPage  = "/balancer/"
	adminPage = "/balancer/admin"
)

var decisions = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "balancer_proxy_decisions_total",
	Help: "Proxied requests by matched routing rule.",
}, []string{"rule"})

type Router struct {
	client kubernetes.Interface

	// Two independent throttles: one for readiness lookups, one for
	// last-request bumps. Both run on the same 10s TTL but are refreshed
	// separately.
	readiness *TTLCache
	activity  *TTLCache
}

func NewRouter(client kubernetes.Interface) *Router {
	return &Router{
		client:    client,
		readiness: NewTTLCache(cacheTTL),
		activity:  NewTTLCache(cacheTTL),
	}
}

func (r *Router) Register(e *echo.Echo) {
	e.Use(r.sessionGate)
	e.Use(middleware.ProxyWithConfig(middleware.ProxyConfig{
		Skipper:      balancerPathSkipper,
		Balancer:     contextBalancer{},
		ErrorHandler: forwardingErrorHandler,
	}))
}

// balancerPathSkipper exempts the balancer's own surface from proxying.
func balancerPathSkipper(c echo.Context) bool {
	path := c.Request().URL.Path
	return strings.HasPrefix(path, "/balancer") || path == "/metrics" || path == "/healthz"
}

// sessionGate resolves the team identity and decides, before any forwarding,
// whether this request may reach a backend at all. WebSocket upgrades pass
// through the same gate, so the /websockify tunnel re-resolves its identity
// from the upgrade request's own cookie header.
func (r *Router) sessionGate(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		if balancerPathSkipper(c) {
			return next(c)
		}

		req := c.Request()
		ctx := req.Context()

		team, err := auth.TeamFromRequest(req)
		if err != nil {
			return redirectToJoin(c, "", "")
		}

		if team == api.AdminTeam {
			return c.Redirect(http.StatusFound, adminPage)
		}

		now := time.Now()

		if r.readiness.ShouldRefresh(team, now) {
			deployment, err := r.client.AppsV1().Deployments(api.NamespaceName(team)).
				Get(ctx, api.WorkloadName(team), metav1.GetOptions{})
			switch {
			case apierrors.IsNotFound(err):
				return redirectToJoin(c, "instance-not-found", team)
			case err != nil:
				// Fail closed: an unreadable instance is treated as not ready.
				logger.Errorf("proxy: failed to check readiness for team %s: %v", team, err)
				return redirectToJoin(c, "instance-restarting", team)
			case deployment.Status.ReadyReplicas != 1:
				return redirectToJoin(c, "instance-restarting", team)
			}
			r.readiness.MarkRefreshed(team, now)
		}

		if r.activity.ShouldRefresh(team, now) {
			r.activity.MarkRefreshed(team, now)
			r.bumpLastRequest(ctx, team, now)
		}

		// Defense in depth: the identity is re-validated immediately before
		// it is used to build a backend host.
		if !api.ValidTeamName(team) {
			return redirectToJoin(c, "", "")
		}

		rule, backend := resolveBackend(req, team)
		target, err := url.Parse(backend)
		if err != nil {
			return redirectToJoin(c, "", "")
		}

		decisions.WithLabelValues(rule).Inc()
		c.Set(targetKey, &middleware.ProxyTarget{Name: team, URL: target})
		return next(c)
	}
}

// bumpLastRequest is the liveness signal the reaper consumes. Best effort:
// failures are logged and never block the request.
func (r *Router) bumpLastRequest(ctx context.Context, team string, now time.Time) {
	patch, err := json.Marshal(map[string]any{
		"metadata": map[string]any{
			"annotations": map[string]string{
				api.AnnotationLastRequest:         strconv.FormatInt(now.UnixMilli(), 10),
				api.AnnotationLastRequestReadable: now.UTC().Format(time.RFC3339),
			},
		},
	})
	if err != nil {
		return
	}

	_, err = r.client.AppsV1().Deployments(api.NamespaceName(team)).
		Patch(ctx, api.WorkloadName(team), types.StrategicMergePatchType, patch, metav1.PatchOptions{})
	if err != nil {
		logger.Warnf("proxy: failed to bump last-request for team %s: %v", team, err)
	}
}

// contextBalancer hands the proxy middleware the per-request target resolved
// by the session gate.
type contextBalancer struct{}

func (contextBalancer) AddTarget(*middleware.ProxyTarget) bool { return false }

func (contextBalancer) RemoveTarget(string) bool { return false }

func (contextBalancer) Next(c echo.Context) *middleware.ProxyTarget {
	if target, ok := c.Get(targetKey).(*middleware.ProxyTarget); ok {
		return target
	}
	// The session gate redirects before the proxy runs; this is only hit if
	// the middleware order is broken.
	return &middleware.ProxyTarget{URL: &url.URL{Scheme: "http", Host: "localhost"}}
}

// forwardingErrorHandler logs backend connection failures. Unreachable hosts
// are expected during instance startup and teardown races and stay at debug.
func forwardingErrorHandler(c echo.Context, err error) error {
	var dnsErr *net.DNSError
	var opErr *net.OpError
	if errors.As(err, &dnsErr) || errors.As(err, &opErr) {
		logger.Debugf("proxy: backend unreachable for %s: %v", c.Request().URL.Path, err)
	} else {
		logger.Errorf("proxy: forwarding failed for %s: %v", c.Request().URL.Path, err)
	}
	return err
}

func redirectToJoin(c echo.Context, msg, team string) error {
	target := joinPage
	if msg != "" {
		query := url.Values{}
		query.Set("msg", msg)
		query.Set("team", team)
		target += "?" + query.Encode()
	}
	return c.Redirect(http.StatusFound, target)
}
