// Package teams owns the join, logout, reset-passcode and readiness HTTP
// surface of the balancer.
package teams

import (
	"net/http"

	"github.com/flanksource/commons/logger"
	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	apierrors "k8s.io/apimachinery/pkg/api/errors"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/client-go/kubernetes"

	"github.com/openrange/balancer/admission"
	"github.com/openrange/balancer/api"
	"github.com/openrange/balancer/auth"
	"github.com/openrange/balancer/passcode"
	"github.com/openrange/balancer/provisioner"
)

// The only user-facing messages that cross the HTTP boundary.
const (
	MsgSignedInAsAdmin  = "Signed in as admin"
	MsgJoinedTeam       = "Joined Team"
	MsgCreatedInstance  = "Created Instance"
	MsgAuthRequired     = "Team requires authentication to join"
	MsgInvalidTeamName  = "Invalid Team Name"
	MsgMaxInstances     = "Reached Maximum Instance Count"
	MsgCreateFailed     = "Failed to Create Instance"
	MsgLookupFailed     = "Failed to Lookup Team Instance"
	MsgReadinessTimeout = "Waiting for Deployment Readiness Timed Out"
	MsgPasscodeReset    = "Passcode Reset"
	MsgTeamNotFound     = "Team Not Found"
	MsgLoggedOut        = "Logged Out"
)

var joins = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "balancer_joins_total",
	Help: "Join attempts by outcome.",
}, []string{"outcome"})

type Handler struct {
	client kubernetes.Interface
	gate   *admission.Gate
	prov   *provisioner.Provisioner
}

func NewHandler(client kubernetes.Interface) *Handler {
	return &Handler{
		client: client,
		gate:   admission.NewGate(client, api.MaxInstances),
		prov:   provisioner.New(client),
	}
}

func (h *Handler) RegisterRoutes(e *echo.Echo) {
	g := e.Group("/balancer/teams")
	g.POST("/:team/join", h.Join)
	g.POST("/reset-passcode", h.ResetPasscode)
	g.POST("/logout", h.Logout)
	g.GET("/:team/wait-till-ready", h.WaitTillReady)
	g.GET("/status", h.Status)
}

func (h *Handler) Join(c echo.Context) error {
	ctx := c.Request().Context()
	team := c.Param("team")

	var body api.JoinRequest
	_ = c.Bind(&body) // a missing or empty body is a join without passcode

	// The admin identity never reaches the normal team logic.
	if team == api.AdminTeam {
		if body.Passcode != "" && passcode.Verify(body.Passcode, api.AdminPasscodeHash) {
			if err := auth.SetTeamCookie(c, team); err != nil {
				return c.JSON(http.StatusInternalServerError, api.HTTPMessage{Message: MsgCreateFailed})
			}
			joins.WithLabelValues("admin").Inc()
			return c.JSON(http.StatusOK, api.HTTPMessage{Message: MsgSignedInAsAdmin})
		}
		joins.WithLabelValues("unauthorized").Inc()
		return c.JSON(http.StatusUnauthorized, api.HTTPMessage{Message: MsgAuthRequired})
	}

	if !api.ValidTeamName(team) {
		return c.JSON(http.StatusBadRequest, api.HTTPMessage{Message: MsgInvalidTeamName})
	}

	deployment, err := h.client.AppsV1().Deployments(api.NamespaceName(team)).
		Get(ctx, api.WorkloadName(team), metav1.GetOptions{})
	switch {
	case err == nil:
		hash := deployment.Annotations[api.AnnotationPasscodeHash]
		if body.Passcode != "" && passcode.Verify(body.Passcode, hash) {
			if err := auth.SetTeamCookie(c, team); err != nil {
				return c.JSON(http.StatusInternalServerError, api.HTTPMessage{Message: MsgLookupFailed})
			}
			joins.WithLabelValues("rejoined").Inc()
			return c.JSON(http.StatusOK, api.HTTPMessage{Message: MsgJoinedTeam})
		}
		joins.WithLabelValues("unauthorized").Inc()
		return c.JSON(http.StatusUnauthorized, api.HTTPMessage{Message: MsgAuthRequired})

	case apierrors.IsNotFound(err):
		// No instance yet, fall through to the provisioning path.

	default:
		logger.Errorf("join: failed to look up instance for team %s: %v", team, err)
		return c.JSON(http.StatusInternalServerError, api.HTTPMessage{Message: MsgLookupFailed})
	}

	if !h.gate.Allow(ctx) {
		joins.WithLabelValues("capacity").Inc()
		return c.JSON(http.StatusInternalServerError, api.HTTPMessage{Message: MsgMaxInstances})
	}

	code, err := h.prov.Provision(ctx, team)
	if err != nil {
		logger.Errorf("join: %v", err)
		joins.WithLabelValues("failed").Inc()
		return c.JSON(http.StatusInternalServerError, api.HTTPMessage{Message: MsgCreateFailed})
	}

	if err := auth.SetTeamCookie(c, team); err != nil {
		return c.JSON(http.StatusInternalServerError, api.HTTPMessage{Message: MsgCreateFailed})
	}

	joins.WithLabelValues("created").Inc()
	return c.JSON(http.StatusOK, api.HTTPMessage{Message: MsgCreatedInstance, Passcode: code})
}

func (h *Handler) Logout(c echo.Context) error {
	auth.ClearTeamCookie(c)
	return c.JSON(http.StatusOK, api.HTTPMessage{Message: MsgLoggedOut})
}

func (h *Handler) Status(c echo.Context) error {
	ctx := c.Request().Context()

	team, err := auth.TeamFromRequest(c.Request())
	if err != nil {
		return c.JSON(http.StatusUnauthorized, api.HTTPMessage{Message: MsgAuthRequired})
	}

	if team == api.AdminTeam {
		return c.JSON(http.StatusOK, api.TeamStatus{Name: team, Ready: true})
	}

	deployment, err := h.client.AppsV1().Deployments(api.NamespaceName(team)).
		Get(ctx, api.WorkloadName(team), metav1.GetOptions{})
	if apierrors.IsNotFound(err) {
		return c.JSON(http.StatusNotFound, api.HTTPMessage{Message: MsgTeamNotFound})
	} else if err != nil {
		logger.Errorf("status: failed to look up instance for team %s: %v", team, err)
		return c.JSON(http.StatusInternalServerError, api.HTTPMessage{Message: MsgLookupFailed})
	}

	return c.JSON(http.StatusOK, api.TeamStatus{
		Name:      team,
		Ready:     deployment.Status.ReadyReplicas == 1,
		CreatedAt: deployment.Annotations[api.AnnotationCreatedAt],
	})
}
