// Package reaper reclaims idle team instances. It runs as a separate
// invocation from the server; the two coordinate only through the
// last-request annotation on the cluster resources themselves.
package reaper

import (
	"context"
	"strconv"
	"time"

	"github.com/flanksource/commons/logger"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/samber/oops"
	appsv1 "k8s.io/api/apps/v1"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/client-go/kubernetes"

	"github.com/openrange/balancer/api"
)

var deletions = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "balancer_reaper_deletions_total",
	Help: "Reaper deletion attempts by resource kind and result.",
}, []string{"kind", "result"})

type Summary struct {
	Scanned            int
	Skipped            int
	DeploymentsDeleted int
	DeploymentsFailed  int
	ServicesDeleted    int
	ServicesFailed     int
}

type Reaper struct {
	client      kubernetes.Interface
	maxInactive time.Duration
}

func New(client kubernetes.Interface, maxInactive time.Duration) *Reaper {
	return &Reaper{client: client, maxInactive: maxInactive}
}

// Run scans every managed workload deployment and deletes the
// deployment+service pair of each instance idle beyond the threshold. The
// two deletions are independent: each is attempted even if the other failed,
// and failures are counted per kind rather than aborting the batch. Deleting
// an already-deleted resource counts as a failure and nothing more, so a
// double run is safe.
func (r *Reaper) Run(ctx context.Context) (Summary, error) {
	var summary Summary

	deployments, err := r.client.AppsV1().Deployments(metav1.NamespaceAll).List(ctx, metav1.ListOptions{
		LabelSelector: api.WorkloadSelector,
	})
	if err != nil {
		return summary, oops.Wrapf(err, "failed to list managed workloads")
	}

	now := time.Now()
	for i := range deployments.Items {
		deployment := &deployments.Items[i]
		summary.Scanned++

		last, ok := lastActive(deployment)
		if !ok {
			logger.Warnf("reaper: %s/%s has no usable last-request or created-at annotation, skipping",
				deployment.Namespace, deployment.Name)
			summary.Skipped++
			continue
		}

		if now.Sub(last) <= r.maxInactive {
			continue
		}

		if err := r.client.AppsV1().Deployments(deployment.Namespace).
			Delete(ctx, deployment.Name, metav1.DeleteOptions{}); err != nil {
			logger.Errorf("reaper: failed to delete deployment %s/%s: %v", deployment.Namespace, deployment.Name, err)
			deletions.WithLabelValues("deployment", "failed").Inc()
			summary.DeploymentsFailed++
		} else {
			deletions.WithLabelValues("deployment", "deleted").Inc()
			summary.DeploymentsDeleted++
		}

		if err := r.client.CoreV1().Services(deployment.Namespace).
			Delete(ctx, deployment.Name, metav1.DeleteOptions{}); err != nil {
			logger.Errorf("reaper: failed to delete service %s/%s: %v", deployment.Namespace, deployment.Name, err)
			deletions.WithLabelValues("service", "failed").Inc()
			summary.ServicesFailed++
		} else {
			deletions.WithLabelValues("service", "deleted").Inc()
			summary.ServicesDeleted++
		}
	}

	logger.Infof("reaper: scanned %d, skipped %d, deployments deleted/failed %d/%d, services deleted/failed %d/%d",
		summary.Scanned, summary.Skipped,
		summary.DeploymentsDeleted, summary.DeploymentsFailed,
		summary.ServicesDeleted, summary.ServicesFailed)

	return summary, nil
}

// lastActive reads the liveness timestamp from the last-request annotation
// (epoch millis), falling back to the created-at annotation for instances
// that never saw a proxied request.
func lastActive(deployment *appsv1.Deployment) (time.Time, bool) {
	if raw, ok := deployment.Annotations[api.AnnotationLastRequest]; ok {
		if millis, err := strconv.ParseInt(raw, 10, 64); err == nil {
			return time.UnixMilli(millis), true
		}
	}

	if raw, ok := deployment.Annotations[api.AnnotationCreatedAt]; ok {
		if created, err := time.Parse(time.RFC3339, raw); err == nil {
			return created, true
		}
	}

	return time.Time{}, false
}
