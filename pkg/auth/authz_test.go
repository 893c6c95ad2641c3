package auth

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/intercooperative/agoranet/pkg/agoraerr"
)

func TestAuthorizeDefaultAllowsOrdinaryActions(t *testing.T) {
	for _, action := range []Action{ActionReadThread, ActionCreateThread, ActionPostMessage, ActionReactToMessage} {
		assert.NoError(t, Authorize("did:key:alice", action, Resource{}))
	}
}

func TestAuthorizeModerateContentDefaultDeny(t *testing.T) {
	err := Authorize("did:key:alice", ActionModerateContent, Resource{})
	assert.Equal(t, agoraerr.KindForbidden, agoraerr.KindOf(err))
}

func TestAuthorizeModerateContentAllowedViaCapability(t *testing.T) {
	prev := ModeratorCheck
	defer func() { ModeratorCheck = prev }()
	ModeratorCheck = func(subject string) bool { return subject == "did:key:mod" }

	assert.NoError(t, Authorize("did:key:mod", ActionModerateContent, Resource{}))
	assert.Error(t, Authorize("did:key:alice", ActionModerateContent, Resource{}))
}

func TestAuthorizeLinkCredentialOwnershipCarveOut(t *testing.T) {
	// caller links their own credential: allowed
	assert.NoError(t, Authorize("did:key:alice", ActionLinkCredential, Resource{OwnerDID: "did:key:alice"}))

	// caller links someone else's credential without moderator capability: forbidden
	err := Authorize("did:key:alice", ActionLinkCredential, Resource{OwnerDID: "did:key:bob"})
	assert.Equal(t, agoraerr.KindForbidden, agoraerr.KindOf(err))
}

func TestAuthorizeLinkCredentialModeratorBypassesOwnership(t *testing.T) {
	prev := ModeratorCheck
	defer func() { ModeratorCheck = prev }()
	ModeratorCheck = func(subject string) bool { return subject == "did:key:mod" }

	assert.NoError(t, Authorize("did:key:mod", ActionLinkCredential, Resource{OwnerDID: "did:key:bob"}))
}

func TestAuthorizeUnknownActionForbidden(t *testing.T) {
	err := Authorize("did:key:alice", Action("DoSomethingUndefined"), Resource{})
	assert.Equal(t, agoraerr.KindForbidden, agoraerr.KindOf(err))
}
