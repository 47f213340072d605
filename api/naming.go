package api

import "regexp"

const (
	LabelManagedBy    = "app.kubernetes.io/managed-by"
	ManagedByValue    = "balancer"
	LabelTeam         = "balancer.openrange.dev/team"
	LabelComponent    = "balancer.openrange.dev/component"
	ComponentWorkload = "workload"
	ComponentDesktop  = "desktop"

	AnnotationLastRequest         = "balancer.openrange.dev/last-request"
	AnnotationLastRequestReadable = "balancer.openrange.dev/last-request-readable"
	AnnotationPasscodeHash        = "balancer.openrange.dev/passcode-hash"
	AnnotationCreatedAt           = "balancer.openrange.dev/created-at"

	// WorkloadSelector matches exactly the main workload deployments, one
	// per provisioned team. The desktop deployments carry a different
	// component label and are never selected by capacity or reaper scans.
	WorkloadSelector = LabelManagedBy + "=" + ManagedByValue + "," + LabelComponent + "=" + ComponentWorkload

	maxTeamNameLength = 16
)

var teamNamePattern = regexp.MustCompile(`^[a-z0-9]([-a-z0-9])+[a-z0-9]$`)

// ValidTeamName reports whether team is a well-formed team identifier.
// Identity values from cookies must pass this before being used to build
// any resource name or backend host.
func ValidTeamName(team string) bool {
	return len(team) <= maxTeamNameLength && teamNamePattern.MatchString(team)
}

// All resource names are pure functions of the team name so that lookups,
// retries and deletions never need a mapping table.

func NamespaceName(team string) string { return "t-" + team }

func WorkloadName(team string) string { return "t-" + team + "-app" }

func DesktopName(team string) string { return "t-" + team + "-desktop" }

func ConfigName(team string) string { return "t-" + team + "-env" }

func SecretName(team string) string { return "t-" + team + "-secrets" }

func WorkloadHost(team string) string {
	return WorkloadName(team) + "." + NamespaceName(team) + ".svc:3000"
}

func DesktopHost(team string) string {
	return DesktopName(team) + "." + NamespaceName(team) + ".svc:8080"
}
