package gateway

// AllowDenyHook decides whether toolName (the catalog's original name, not
// the gateway-exposed prefixed name) may be invoked. Returning false blocks
// the call with an Unauthorized error. Grounded on the teacher's
// internal/aggregator/denylist.go static destructiveTools set, generalized
// per SPEC_FULL.md §4.6 into the pluggable hook §1's Non-goals call for,
// so deployments can supply their own policy instead of editing source.
type AllowDenyHook func(toolName string) bool

// DefaultDestructiveTools is a starting-point denylist in the teacher's
// style: operations whose blast radius (cluster mutation, resource
// deletion) warrants blocking by default. Deployments are expected to
// supply their own AllowDenyHook; this is exported only as a convenient
// default for callers that want the teacher's original behavior verbatim.
var DefaultDestructiveTools = map[string]bool{
	"apply_kubernetes_manifest":  true,
	"delete_kubernetes_resource": true,
	"kubectl_apply":              true,
	"kubectl_delete":             true,
	"kubectl_patch":              true,
	"kubectl_scale":              true,
	"install_helm_chart":         true,
	"uninstall_helm_chart":       true,
	"upgrade_helm_chart":         true,
}

// DenylistHook builds an AllowDenyHook that blocks every name in denied and
// allows everything else.
func DenylistHook(denied map[string]bool) AllowDenyHook {
	return func(toolName string) bool {
		return !denied[toolName]
	}
}

// AllowAllHook permits every tool; the zero-configuration default.
func AllowAllHook(toolName string) bool { return true }
