package provisioner

import (
	"context"
	"errors"
	"testing"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/runtime"
	"k8s.io/client-go/kubernetes/fake"
	k8stesting "k8s.io/client-go/testing"

	"github.com/openrange/balancer/api"
	"github.com/openrange/balancer/passcode"
)

func TestProvisioner(t *testing.T) {
	RegisterFailHandler(Fail)
	RunSpecs(t, "Provisioner")
}

var _ = Describe("Provision", func() {
	var client *fake.Clientset
	var ctx context.Context

	BeforeEach(func() {
		client = fake.NewClientset()
		ctx = context.Background()
		api.SkipOwnerRefs = true
	})

	It("should create the full resource set for a team", func() {
		code, err := New(client).Provision(ctx, "team42")
		Expect(err).NotTo(HaveOccurred())
		Expect(code).To(MatchRegexp(`^[A-Z0-9]{8}$`))

		ns := api.NamespaceName("team42")

		_, err = client.CoreV1().Namespaces().Get(ctx, ns, metav1.GetOptions{})
		Expect(err).NotTo(HaveOccurred())

		_, err = client.CoreV1().ConfigMaps(ns).Get(ctx, api.ConfigName("team42"), metav1.GetOptions{})
		Expect(err).NotTo(HaveOccurred())

		_, err = client.CoreV1().Secrets(ns).Get(ctx, api.SecretName("team42"), metav1.GetOptions{})
		Expect(err).NotTo(HaveOccurred())

		_, err = client.CoreV1().Services(ns).Get(ctx, api.WorkloadName("team42"), metav1.GetOptions{})
		Expect(err).NotTo(HaveOccurred())

		_, err = client.CoreV1().ServiceAccounts(ns).Get(ctx, api.DesktopName("team42"), metav1.GetOptions{})
		Expect(err).NotTo(HaveOccurred())

		_, err = client.RbacV1().Roles(ns).Get(ctx, api.DesktopName("team42"), metav1.GetOptions{})
		Expect(err).NotTo(HaveOccurred())

		_, err = client.RbacV1().RoleBindings(ns).Get(ctx, api.DesktopName("team42"), metav1.GetOptions{})
		Expect(err).NotTo(HaveOccurred())

		_, err = client.AppsV1().Deployments(ns).Get(ctx, api.DesktopName("team42"), metav1.GetOptions{})
		Expect(err).NotTo(HaveOccurred())

		_, err = client.CoreV1().Services(ns).Get(ctx, api.DesktopName("team42"), metav1.GetOptions{})
		Expect(err).NotTo(HaveOccurred())
	})

	It("should stamp the workload with a verifiable passcode hash and timestamps", func() {
		code, err := New(client).Provision(ctx, "team42")
		Expect(err).NotTo(HaveOccurred())

		deployment, err := client.AppsV1().Deployments(api.NamespaceName("team42")).
			Get(ctx, api.WorkloadName("team42"), metav1.GetOptions{})
		Expect(err).NotTo(HaveOccurred())

		Expect(passcode.Verify(code, deployment.Annotations[api.AnnotationPasscodeHash])).To(BeTrue())
		Expect(deployment.Annotations[api.AnnotationCreatedAt]).NotTo(BeEmpty())
		Expect(deployment.Annotations[api.AnnotationLastRequest]).NotTo(BeEmpty())
	})

	It("should treat already-existing resources as success on retry", func() {
		// First attempt created the namespace and config but died before the
		// workload; a retried join must fill in only the missing pieces.
		_, err := client.CoreV1().Namespaces().Create(ctx, namespace("team42", nil), metav1.CreateOptions{})
		Expect(err).NotTo(HaveOccurred())
		_, err = client.CoreV1().ConfigMaps(api.NamespaceName("team42")).
			Create(ctx, configMap("team42", nil), metav1.CreateOptions{})
		Expect(err).NotTo(HaveOccurred())

		_, err = New(client).Provision(ctx, "team42")
		Expect(err).NotTo(HaveOccurred())

		_, err = client.AppsV1().Deployments(api.NamespaceName("team42")).
			Get(ctx, api.WorkloadName("team42"), metav1.GetOptions{})
		Expect(err).NotTo(HaveOccurred())
	})

	It("should abort at the first failing step and leave earlier resources in place", func() {
		client.PrependReactor("create", "deployments", func(action k8stesting.Action) (bool, runtime.Object, error) {
			return true, nil, errors.New("quota exceeded")
		})

		_, err := New(client).Provision(ctx, "team42")
		Expect(err).To(HaveOccurred())
		Expect(err.Error()).To(ContainSubstring("workload-deployment"))

		// Earlier steps stay, no rollback.
		_, err = client.CoreV1().Namespaces().Get(ctx, api.NamespaceName("team42"), metav1.GetOptions{})
		Expect(err).NotTo(HaveOccurred())

		// Later steps never ran.
		_, err = client.CoreV1().Services(api.NamespaceName("team42")).
			Get(ctx, api.WorkloadName("team42"), metav1.GetOptions{})
		Expect(err).To(HaveOccurred())
	})
})
