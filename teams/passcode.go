package teams

import (
	"encoding/json"
	"net/http"

	"github.com/flanksource/commons/logger"
	"github.com/labstack/echo/v4"
	apierrors "k8s.io/apimachinery/pkg/api/errors"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/types"

	"github.com/openrange/balancer/api"
	"github.com/openrange/balancer/auth"
	"github.com/openrange/balancer/passcode"
)

// ResetPasscode rotates the caller's passcode by overwriting the hash
// annotation on the team's workload deployment. The previous passcode is
// invalidated immediately; only the hash field is patched, so there is no
// read-modify-write race to guard against.
func (h *Handler) ResetPasscode(c echo.Context) error {
	ctx := c.Request().Context()

	team, err := auth.TeamFromRequest(c.Request())
	if err != nil {
		return c.JSON(http.StatusUnauthorized, api.HTTPMessage{Message: MsgAuthRequired})
	}

	if team == api.AdminTeam {
		return c.JSON(http.StatusForbidden, api.HTTPMessage{Message: "Admin passcode cannot be reset"})
	}

	code, hash, err := passcode.Generate()
	if err != nil {
		logger.Errorf("reset-passcode: failed to generate passcode for team %s: %v", team, err)
		return c.JSON(http.StatusInternalServerError, api.HTTPMessage{Message: MsgLookupFailed})
	}

	patch, err := json.Marshal(map[string]any{
		"metadata": map[string]any{
			"annotations": map[string]string{
				api.AnnotationPasscodeHash: hash,
			},
		},
	})
	if err != nil {
		return c.JSON(http.StatusInternalServerError, api.HTTPMessage{Message: MsgLookupFailed})
	}

	_, err = h.client.AppsV1().Deployments(api.NamespaceName(team)).
		Patch(ctx, api.WorkloadName(team), types.StrategicMergePatchType, patch, metav1.PatchOptions{})
	if apierrors.IsNotFound(err) {
		return c.JSON(http.StatusNotFound, api.HTTPMessage{Message: MsgTeamNotFound})
	} else if err != nil {
		logger.Errorf("reset-passcode: failed to patch instance for team %s: %v", team, err)
		return c.JSON(http.StatusInternalServerError, api.HTTPMessage{Message: MsgLookupFailed})
	}

	return c.JSON(http.StatusOK, api.HTTPMessage{Message: MsgPasscodeReset, Passcode: code})
}
