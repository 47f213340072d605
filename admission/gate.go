// Package admission enforces the soft cap on simultaneously provisioned
// instances.
package admission

import (
	"context"

	"github.com/flanksource/commons/logger"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/client-go/kubernetes"

	"github.com/openrange/balancer/api"
)

var denials = promauto.NewCounter(prometheus.CounterOpts{
	Name: "balancer_admission_denials_total",
	Help: "Join requests rejected because the instance ceiling was reached.",
})

type Gate struct {
	client  kubernetes.Interface
	ceiling int
}

func NewGate(client kubernetes.Interface, ceiling int) *Gate {
	return &Gate{client: client, ceiling: ceiling}
}

// Allow reports whether a new instance may be provisioned. A negative ceiling
// means unlimited and skips the list call entirely. The check is advisory:
// two concurrent joins can both pass and briefly exceed the ceiling by one.
func (g *Gate) Allow(ctx context.Context) bool {
	if g.ceiling < 0 {
		return true
	}

	deployments, err := g.client.AppsV1().Deployments(metav1.NamespaceAll).List(ctx, metav1.ListOptions{
		LabelSelector: api.WorkloadSelector,
	})
	if err != nil {
		// Fail open: a transient control-plane read error must not block
		// provisioning.
		logger.Warnf("admission: failed to count instances, allowing join: %v", err)
		return true
	}

	if len(deployments.Items) >= g.ceiling {
		denials.Inc()
		return false
	}

	return true
}
