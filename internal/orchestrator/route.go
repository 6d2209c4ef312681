package orchestrator

// Route names the handler branch chosen for an event.
type Route string

const (
	RouteRequirements Route = "requirements_agent"
	RouteCodeReview   Route = "code_review_agent"
	RouteDocs         Route = "docs_agent"
	RouteUnknown      Route = "unknown"
)

// Resolve picks the handler branch from event kind and action. It is a pure
// function; anything unmatched is terminal and does no further work.
func Resolve(eventType, action string, merged bool) Route {
	switch {
	case eventType == "issues" && action == "opened":
		return RouteRequirements
	case eventType == "pull_request" && action == "opened":
		return RouteCodeReview
	case eventType == "pull_request" && action == "closed" && merged:
		return RouteDocs
	default:
		return RouteUnknown
	}
}
