package api

import (
	"time"

	"k8s.io/client-go/kubernetes"
)

var BuildVersion string

// Kubernetes is the shared cluster client, set once at startup.
var Kubernetes kubernetes.Interface

var (
	CookieName    = "balancer"
	CookieSecret  string
	SecureCookies bool

	AdminTeam         = "admin"
	AdminPasscodeHash string

	// MaxInstances < 0 means unlimited.
	MaxInstances = -1

	MaxInactiveDuration = 3 * 24 * time.Hour

	WorkloadImage    = "openrange/workload"
	WorkloadTag      = "latest"
	DesktopImage     = "openrange/desktop"
	DesktopTag       = "latest"
	WorkloadCPULimit = "500m"
	WorkloadMemLimit = "512Mi"

	// SkipOwnerRefs disables stamping created resources with an owner
	// reference to the balancer's own deployment.
	SkipOwnerRefs bool

	// OwnNamespace/OwnDeployment identify the balancer's deployment for
	// owner references. Populated from the downward API in-cluster.
	OwnNamespace  = "balancer"
	OwnDeployment = "balancer"
)
