package auth

import "github.com/intercooperative/agoranet/pkg/agoraerr"

// Action is drawn from the closed set the verifier authorizes against.
type Action string

const (
	ActionReadThread      Action = "ReadThread"
	ActionCreateThread    Action = "CreateThread"
	ActionPostMessage     Action = "PostMessage"
	ActionReactToMessage  Action = "ReactToMessage"
	ActionLinkCredential  Action = "LinkCredential"
	ActionModerateContent Action = "ModerateContent"
)

// Resource carries the ownership context an authorization decision may need.
// OwnerDID is empty for actions that are not ownership-scoped.
type Resource struct {
	OwnerDID string
}

// ModeratorCheck reports whether subjectDID holds the out-of-scope
// ModerateContent capability. Default-deny, per the verifier's default
// policy; a deployment wires this to its own capability store.
var ModeratorCheck func(subjectDID string) bool = func(string) bool { return false }

// Authorize implements authorize(subject_did, action, resource) -> ok |
// Forbidden. Default policy: all authenticated subjects hold all actions
// except ModerateContent (default-deny, resource-scoped capability,
// out of scope). LinkCredential additionally requires the caller either own
// the resource or hold the moderator capability.
func Authorize(subjectDID string, action Action, resource Resource) error {
	switch action {
	case ActionModerateContent:
		if !ModeratorCheck(subjectDID) {
			return agoraerr.ErrForbidden
		}
		return nil
	case ActionLinkCredential:
		if resource.OwnerDID != "" && resource.OwnerDID != subjectDID && !ModeratorCheck(subjectDID) {
			return agoraerr.ErrForbidden
		}
		return nil
	case ActionReadThread, ActionCreateThread, ActionPostMessage, ActionReactToMessage:
		return nil
	default:
		return agoraerr.ErrForbidden
	}
}
