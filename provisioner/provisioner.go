// Package provisioner stands up the full set of cluster resources for one
// team. Creation runs as a strictly ordered sequence of independent calls
// with no rollback: every resource name is a pure function of the team name,
// so a retried join recreates only what is missing and treats "already
// exists" as success.
package provisioner

import (
	"context"
	"sync"
	"time"

	"github.com/flanksource/commons/logger"
	"github.com/samber/oops"
	apierrors "k8s.io/apimachinery/pkg/api/errors"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/client-go/kubernetes"

	"github.com/openrange/balancer/api"
	"github.com/openrange/balancer/passcode"
)

type Provisioner struct {
	client kubernetes.Interface

	ownerOnce sync.Once
	ownerRef  *metav1.OwnerReference
}

func New(client kubernetes.Interface) *Provisioner {
	return &Provisioner{client: client}
}

// owner resolves an owner reference to the balancer's own deployment so the
// cluster garbage collector reclaims instances if the balancer is
// uninstalled. Resolved once; a failed lookup downgrades to no owner refs.
func (p *Provisioner) owner(ctx context.Context) *metav1.OwnerReference {
	if api.SkipOwnerRefs {
		return nil
	}

	p.ownerOnce.Do(func() {
		self, err := p.client.AppsV1().Deployments(api.OwnNamespace).Get(ctx, api.OwnDeployment, metav1.GetOptions{})
		if err != nil {
			logger.Warnf("provisioner: cannot resolve own deployment %s/%s, skipping owner references: %v",
				api.OwnNamespace, api.OwnDeployment, err)
			return
		}
		p.ownerRef = &metav1.OwnerReference{
			APIVersion: "apps/v1",
			Kind:       "Deployment",
			Name:       self.Name,
			UID:        self.UID,
		}
	})

	return p.ownerRef
}

type step struct {
	name   string
	create func(ctx context.Context) error
}

// Provision creates the team's namespace, config, secrets, main workload,
// desktop identity and desktop workload in order, and returns the one-time
// plaintext passcode. A failure at any step aborts the sequence; resources
// created by earlier steps are left in place.
func (p *Provisioner) Provision(ctx context.Context, team string) (string, error) {
	errCtx := oops.With("team", team)

	code, hash, err := passcode.Generate()
	if err != nil {
		return "", errCtx.Wrapf(err, "failed to generate passcode")
	}

	seed, err := passcode.RandomSeed()
	if err != nil {
		return "", errCtx.Wrapf(err, "failed to generate instance seed")
	}

	owner := p.owner(ctx)
	now := time.Now()
	ns := api.NamespaceName(team)
	opts := metav1.CreateOptions{}

	steps := []step{
		{"namespace", func(ctx context.Context) error {
			_, err := p.client.CoreV1().Namespaces().Create(ctx, namespace(team, owner), opts)
			return err
		}},
		{"configmap", func(ctx context.Context) error {
			_, err := p.client.CoreV1().ConfigMaps(ns).Create(ctx, configMap(team, owner), opts)
			return err
		}},
		{"secret", func(ctx context.Context) error {
			_, err := p.client.CoreV1().Secrets(ns).Create(ctx, secret(team, seed, owner), opts)
			return err
		}},
		{"workload-deployment", func(ctx context.Context) error {
			_, err := p.client.AppsV1().Deployments(ns).Create(ctx, workloadDeployment(team, hash, owner, now), opts)
			return err
		}},
		{"workload-service", func(ctx context.Context) error {
			_, err := p.client.CoreV1().Services(ns).Create(ctx, workloadService(team, owner), opts)
			return err
		}},
		{"service-account", func(ctx context.Context) error {
			_, err := p.client.CoreV1().ServiceAccounts(ns).Create(ctx, serviceAccount(team, owner), opts)
			return err
		}},
		{"role", func(ctx context.Context) error {
			_, err := p.client.RbacV1().Roles(ns).Create(ctx, role(team, owner), opts)
			return err
		}},
		{"role-binding", func(ctx context.Context) error {
			_, err := p.client.RbacV1().RoleBindings(ns).Create(ctx, roleBinding(team, owner), opts)
			return err
		}},
		{"desktop-deployment", func(ctx context.Context) error {
			_, err := p.client.AppsV1().Deployments(ns).Create(ctx, desktopDeployment(team, owner), opts)
			return err
		}},
		{"desktop-service", func(ctx context.Context) error {
			_, err := p.client.CoreV1().Services(ns).Create(ctx, desktopService(team, owner), opts)
			return err
		}},
	}

	for _, s := range steps {
		if err := s.create(ctx); err != nil && !apierrors.IsAlreadyExists(err) {
			return "", errCtx.With("step", s.name).Wrapf(err, "failed to create %s", s.name)
		}
	}

	return code, nil
}
