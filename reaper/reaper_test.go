package reaper

import (
	"context"
	"errors"
	"strconv"
	"testing"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	appsv1 "k8s.io/api/apps/v1"
	corev1 "k8s.io/api/core/v1"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/runtime"
	"k8s.io/client-go/kubernetes/fake"
	k8stesting "k8s.io/client-go/testing"

	"github.com/openrange/balancer/api"
)

func TestReaper(t *testing.T) {
	RegisterFailHandler(Fail)
	RunSpecs(t, "Reaper")
}

var _ = Describe("ParseMaxInactive", func() {
	It("should parse every supported unit", func() {
		Expect(ParseMaxInactive("30s")).To(Equal(30 * time.Second))
		Expect(ParseMaxInactive("30m")).To(Equal(30 * time.Minute))
		Expect(ParseMaxInactive("12h")).To(Equal(12 * time.Hour))
		Expect(ParseMaxInactive("3d")).To(Equal(72 * time.Hour))
	})

	It("should be case-insensitive", func() {
		Expect(ParseMaxInactive("3D")).To(Equal(72 * time.Hour))
		Expect(ParseMaxInactive("12H")).To(Equal(12 * time.Hour))
	})

	It("should reject anything else", func() {
		for _, bad := range []string{"", "3", "d", "3w", "3.5h", "-3h", "3 d", "h3"} {
			_, err := ParseMaxInactive(bad)
			Expect(err).To(HaveOccurred(), "input %q", bad)
		}
	})
})

func instance(team string, lastActive time.Time) []runtime.Object {
	deployment := &appsv1.Deployment{
		ObjectMeta: metav1.ObjectMeta{
			Name:      api.WorkloadName(team),
			Namespace: api.NamespaceName(team),
			Labels: map[string]string{
				api.LabelManagedBy: api.ManagedByValue,
				api.LabelTeam:      team,
				api.LabelComponent: api.ComponentWorkload,
			},
			Annotations: map[string]string{
				api.AnnotationLastRequest: strconv.FormatInt(lastActive.UnixMilli(), 10),
			},
		},
	}
	service := &corev1.Service{
		ObjectMeta: metav1.ObjectMeta{
			Name:      api.WorkloadName(team),
			Namespace: api.NamespaceName(team),
		},
	}
	return []runtime.Object{deployment, service}
}

var _ = Describe("Run", func() {
	var ctx context.Context

	BeforeEach(func() {
		ctx = context.Background()
	})

	It("should delete instances idle beyond the threshold and leave fresh ones alone", func() {
		now := time.Now()
		var objects []runtime.Object
		objects = append(objects, instance("stale", now.Add(-61*time.Minute))...)
		objects = append(objects, instance("fresh", now.Add(-time.Minute))...)
		client := fake.NewClientset(objects...)

		summary, err := New(client, time.Hour).Run(ctx)
		Expect(err).NotTo(HaveOccurred())
		Expect(summary.Scanned).To(Equal(2))
		Expect(summary.DeploymentsDeleted).To(Equal(1))
		Expect(summary.ServicesDeleted).To(Equal(1))

		_, err = client.AppsV1().Deployments(api.NamespaceName("stale")).
			Get(ctx, api.WorkloadName("stale"), metav1.GetOptions{})
		Expect(err).To(HaveOccurred())

		_, err = client.AppsV1().Deployments(api.NamespaceName("fresh")).
			Get(ctx, api.WorkloadName("fresh"), metav1.GetOptions{})
		Expect(err).NotTo(HaveOccurred())
	})

	It("should still delete the service when the deployment deletion fails", func() {
		client := fake.NewClientset(instance("stale", time.Now().Add(-2*time.Hour))...)
		client.PrependReactor("delete", "deployments", func(action k8stesting.Action) (bool, runtime.Object, error) {
			return true, nil, errors.New("webhook rejected the delete")
		})

		summary, err := New(client, time.Hour).Run(ctx)
		Expect(err).NotTo(HaveOccurred())
		Expect(summary.DeploymentsFailed).To(Equal(1))
		Expect(summary.ServicesDeleted).To(Equal(1))

		_, err = client.CoreV1().Services(api.NamespaceName("stale")).
			Get(ctx, api.WorkloadName("stale"), metav1.GetOptions{})
		Expect(err).To(HaveOccurred())
	})

	It("should count and continue on a double run", func() {
		client := fake.NewClientset(instance("stale", time.Now().Add(-2*time.Hour))...)
		r := New(client, time.Hour)

		first, err := r.Run(ctx)
		Expect(err).NotTo(HaveOccurred())
		Expect(first.DeploymentsDeleted).To(Equal(1))

		// The instance is gone now, nothing left to scan.
		second, err := r.Run(ctx)
		Expect(err).NotTo(HaveOccurred())
		Expect(second.Scanned).To(BeZero())
	})

	It("should fall back to created-at for instances that never saw a request", func() {
		objects := instance("stale", time.Now())
		deployment := objects[0].(*appsv1.Deployment)
		deployment.Annotations = map[string]string{
			api.AnnotationCreatedAt: time.Now().Add(-2 * time.Hour).UTC().Format(time.RFC3339),
		}
		client := fake.NewClientset(objects...)

		summary, err := New(client, time.Hour).Run(ctx)
		Expect(err).NotTo(HaveOccurred())
		Expect(summary.DeploymentsDeleted).To(Equal(1))
	})

	It("should skip instances with no usable liveness annotation", func() {
		objects := instance("odd", time.Now())
		deployment := objects[0].(*appsv1.Deployment)
		deployment.Annotations = map[string]string{api.AnnotationLastRequest: "garbled"}
		client := fake.NewClientset(objects...)

		summary, err := New(client, time.Hour).Run(ctx)
		Expect(err).NotTo(HaveOccurred())
		Expect(summary.Skipped).To(Equal(1))
		Expect(summary.DeploymentsDeleted).To(BeZero())
	})

	It("should surface a list failure", func() {
		client := fake.NewClientset()
		client.PrependReactor("list", "deployments", func(action k8stesting.Action) (bool, runtime.Object, error) {
			return true, nil, errors.New("control plane unreachable")
		})

		_, err := New(client, time.Hour).Run(ctx)
		Expect(err).To(HaveOccurred())
	})
})
