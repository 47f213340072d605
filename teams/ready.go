package teams

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/flanksource/commons/logger"
	"github.com/labstack/echo/v4"
	"github.com/sethvargo/go-retry"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"

	"github.com/openrange/balancer/api"
)

const readinessPollIterations = 180

var errNotReady = errors.New("deployment not ready")

// WaitTillReady blocks until the team's workload reports one ready replica,
// polling once per second with a hard cap of 180 iterations. Only the
// human-facing status page uses this; the proxy path never does.
func (h *Handler) WaitTillReady(c echo.Context) error {
	ctx := c.Request().Context()
	team := c.Param("team")

	if !api.ValidTeamName(team) {
		return c.JSON(http.StatusBadRequest, api.HTTPMessage{Message: MsgInvalidTeamName})
	}

	backoff := retry.WithMaxRetries(readinessPollIterations-1, retry.NewConstant(time.Second))
	err := retry.Do(ctx, backoff, func(ctx context.Context) error {
		deployment, err := h.client.AppsV1().Deployments(api.NamespaceName(team)).
			Get(ctx, api.WorkloadName(team), metav1.GetOptions{})
		if err != nil {
			return err // unexpected read errors abort the poll
		}
		if deployment.Status.ReadyReplicas == 1 {
			return nil
		}
		return retry.RetryableError(errNotReady)
	})

	switch {
	case err == nil:
		return c.JSON(http.StatusOK, api.HTTPMessage{Message: "Instance Ready"})
	case errors.Is(err, errNotReady):
		return c.JSON(http.StatusInternalServerError, api.HTTPMessage{Message: MsgReadinessTimeout})
	default:
		logger.Errorf("wait-till-ready: failed to read instance for team %s: %v", team, err)
		return c.JSON(http.StatusInternalServerError, api.HTTPMessage{Message: MsgLookupFailed})
	}
}
