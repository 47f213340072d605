package provisioner

import (
	"strconv"
	"time"

	"github.com/samber/lo"
	appsv1 "k8s.io/api/apps/v1"
	corev1 "k8s.io/api/core/v1"
	rbacv1 "k8s.io/api/rbac/v1"
	"k8s.io/apimachinery/pkg/api/resource"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/util/intstr"

	"github.com/openrange/balancer/api"
)

func instanceLabels(team, component string) map[string]string {
	return map[string]string{
		api.LabelManagedBy: api.ManagedByValue,
		api.LabelTeam:      team,
		api.LabelComponent: component,
	}
}

func withOwner(meta metav1.ObjectMeta, owner *metav1.OwnerReference) metav1.ObjectMeta {
	if owner != nil {
		meta.OwnerReferences = []metav1.OwnerReference{*owner}
	}
	return meta
}

func namespace(team string, owner *metav1.OwnerReference) *corev1.Namespace {
	return &corev1.Namespace{
		ObjectMeta: withOwner(metav1.ObjectMeta{
			Name:   api.NamespaceName(team),
			Labels: instanceLabels(team, api.ComponentWorkload),
		}, owner),
	}
}

func configMap(team string, owner *metav1.OwnerReference) *corev1.ConfigMap {
	return &corev1.ConfigMap{
		ObjectMeta: withOwner(metav1.ObjectMeta{
			Name:      api.ConfigName(team),
			Namespace: api.NamespaceName(team),
			Labels:    instanceLabels(team, api.ComponentWorkload),
		}, owner),
		Data: map[string]string{
			"TEAM":     team,
			"APP_PORT": "3000",
		},
	}
}

func secret(team, seed string, owner *metav1.OwnerReference) *corev1.Secret {
	return &corev1.Secret{
		ObjectMeta: withOwner(metav1.ObjectMeta{
			Name:      api.SecretName(team),
			Namespace: api.NamespaceName(team),
			Labels:    instanceLabels(team, api.ComponentWorkload),
		}, owner),
		StringData: map[string]string{
			"SESSION_SEED": seed,
		},
	}
}

func workloadDeployment(team, passcodeHash string, owner *metav1.OwnerReference, now time.Time) *appsv1.Deployment {
	labels := instanceLabels(team, api.ComponentWorkload)

	return &appsv1.Deployment{
		ObjectMeta: withOwner(metav1.ObjectMeta{
			Name:      api.WorkloadName(team),
			Namespace: api.NamespaceName(team),
			Labels:    labels,
			Annotations: map[string]string{
				api.AnnotationPasscodeHash:        passcodeHash,
				api.AnnotationCreatedAt:           now.UTC().Format(time.RFC3339),
				api.AnnotationLastRequest:         strconv.FormatInt(now.UnixMilli(), 10),
				api.AnnotationLastRequestReadable: now.UTC().Format(time.RFC3339),
			},
		}, owner),
		Spec: appsv1.DeploymentSpec{
			Replicas: lo.ToPtr(int32(1)),
			Selector: &metav1.LabelSelector{MatchLabels: labels},
			Template: corev1.PodTemplateSpec{
				ObjectMeta: metav1.ObjectMeta{Labels: labels},
				Spec: corev1.PodSpec{
					AutomountServiceAccountToken: lo.ToPtr(false),
					Containers: []corev1.Container{
						{
							Name:  "app",
							Image: api.WorkloadImage + ":" + api.WorkloadTag,
							Ports: []corev1.ContainerPort{{ContainerPort: 3000}},
							EnvFrom: []corev1.EnvFromSource{
								{ConfigMapRef: &corev1.ConfigMapEnvSource{
									LocalObjectReference: corev1.LocalObjectReference{Name: api.ConfigName(team)},
								}},
								{SecretRef: &corev1.SecretEnvSource{
									LocalObjectReference: corev1.LocalObjectReference{Name: api.SecretName(team)},
								}},
							},
							ReadinessProbe: &corev1.Probe{
								ProbeHandler: corev1.ProbeHandler{
									HTTPGet: &corev1.HTTPGetAction{
										Path: "/",
										Port: intstr.FromInt32(3000),
									},
								},
								InitialDelaySeconds: 5,
								PeriodSeconds:       2,
							},
							Resources: corev1.ResourceRequirements{
								Limits: corev1.ResourceList{
									corev1.ResourceCPU:    resource.MustParse(api.WorkloadCPULimit),
									corev1.ResourceMemory: resource.MustParse(api.WorkloadMemLimit),
								},
							},
						},
					},
				},
			},
		},
	}
}

func workloadService(team string, owner *metav1.OwnerReference) *corev1.Service {
	labels := instanceLabels(team, api.ComponentWorkload)

	return &corev1.Service{
		ObjectMeta: withOwner(metav1.ObjectMeta{
			Name:      api.WorkloadName(team),
			Namespace: api.NamespaceName(team),
			Labels:    labels,
		}, owner),
		Spec: corev1.ServiceSpec{
			Selector: labels,
			Ports: []corev1.ServicePort{
				{Port: 3000, TargetPort: intstr.FromInt32(3000)},
			},
		},
	}
}

func serviceAccount(team string, owner *metav1.OwnerReference) *corev1.ServiceAccount {
	return &corev1.ServiceAccount{
		ObjectMeta: withOwner(metav1.ObjectMeta{
			Name:      api.DesktopName(team),
			Namespace: api.NamespaceName(team),
			Labels:    instanceLabels(team, api.ComponentDesktop),
		}, owner),
	}
}

// The desktop needs to inspect and attach to the team's own pods, nothing
// beyond its namespace.
func role(team string, owner *metav1.OwnerReference) *rbacv1.Role {
	return &rbacv1.Role{
		ObjectMeta: withOwner(metav1.ObjectMeta{
			Name:      api.DesktopName(team),
			Namespace: api.NamespaceName(team),
			Labels:    instanceLabels(team, api.ComponentDesktop),
		}, owner),
		Rules: []rbacv1.PolicyRule{
			{
				APIGroups: []string{""},
				Resources: []string{"pods", "pods/log"},
				Verbs:     []string{"get", "list", "watch"},
			},
			{
				APIGroups: []string{""},
				Resources: []string{"pods/exec"},
				Verbs:     []string{"create"},
			},
		},
	}
}

func roleBinding(team string, owner *metav1.OwnerReference) *rbacv1.RoleBinding {
	return &rbacv1.RoleBinding{
		ObjectMeta: withOwner(metav1.ObjectMeta{
			Name:      api.DesktopName(team),
			Namespace: api.NamespaceName(team),
			Labels:    instanceLabels(team, api.ComponentDesktop),
		}, owner),
		Subjects: []rbacv1.Subject{
			{
				Kind:      rbacv1.ServiceAccountKind,
				Name:      api.DesktopName(team),
				Namespace: api.NamespaceName(team),
			},
		},
		RoleRef: rbacv1.RoleRef{
			APIGroup: rbacv1.GroupName,
			Kind:     "Role",
			Name:     api.DesktopName(team),
		},
	}
}

func desktopDeployment(team string, owner *metav1.OwnerReference) *appsv1.Deployment {
	labels := instanceLabels(team, api.ComponentDesktop)

	return &appsv1.Deployment{
		ObjectMeta: withOwner(metav1.ObjectMeta{
			Name:      api.DesktopName(team),
			Namespace: api.NamespaceName(team),
			Labels:    labels,
		}, owner),
		Spec: appsv1.DeploymentSpec{
			Replicas: lo.ToPtr(int32(1)),
			Selector: &metav1.LabelSelector{MatchLabels: labels},
			Template: corev1.PodTemplateSpec{
				ObjectMeta: metav1.ObjectMeta{Labels: labels},
				Spec: corev1.PodSpec{
					ServiceAccountName: api.DesktopName(team),
					Containers: []corev1.Container{
						{
							Name:  "desktop",
							Image: api.DesktopImage + ":" + api.DesktopTag,
							Ports: []corev1.ContainerPort{{ContainerPort: 8080}},
							Env: []corev1.EnvVar{
								{Name: "TEAM", Value: team},
							},
						},
					},
				},
			},
		},
	}
}

func desktopService(team string, owner *metav1.OwnerReference) *corev1.Service {
	labels := instanceLabels(team, api.ComponentDesktop)

	return &corev1.Service{
		ObjectMeta: withOwner(metav1.ObjectMeta{
			Name:      api.DesktopName(team),
			Namespace: api.NamespaceName(team),
			Labels:    labels,
		}, owner),
		Spec: corev1.ServiceSpec{
			Selector: labels,
			Ports: []corev1.ServicePort{
				{Port: 8080, TargetPort: intstr.FromInt32(8080)},
			},
		},
	}
}
