package auth

import (
	"context"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/intercooperative/agoranet/pkg/agoraerr"
)

func buildToken(subject string, expiryUnix int64, sig string) string {
	return subject + "." + strconv.FormatInt(expiryUnix, 10) + "." + sig
}

func TestVerifyAcceptsWellFormedToken(t *testing.T) {
	v := NewVerifier()
	v.Now = func() time.Time { return time.Unix(1000, 0) }

	tok := buildToken("did:key:abc123", 2000, "sig-xyz")
	id, err := v.Verify(tok)
	assert.NoError(t, err)
	assert.Equal(t, "did:key:abc123", id.SubjectDID)
}

func TestVerifyRejectsMalformedToken(t *testing.T) {
	v := NewVerifier()
	_, err := v.Verify("not-enough-parts")
	assert.Equal(t, agoraerr.KindUnauthenticatedMalformed, agoraerr.KindOf(err))
}

func TestVerifyRejectsNonDIDSubject(t *testing.T) {
	v := NewVerifier()
	_, err := v.Verify(buildToken("not-a-did", 9999999999, "sig"))
	assert.Equal(t, agoraerr.KindUnauthenticatedMalformed, agoraerr.KindOf(err))
}

func TestVerifyRejectsBadExpiry(t *testing.T) {
	v := NewVerifier()
	_, err := v.Verify("did:key:abc.notanumber.sig")
	assert.Equal(t, agoraerr.KindUnauthenticatedMalformed, agoraerr.KindOf(err))
}

func TestVerifyRejectsExpiredToken(t *testing.T) {
	v := NewVerifier()
	v.Now = func() time.Time { return time.Unix(5000, 0) }
	_, err := v.Verify(buildToken("did:key:abc123", 4000, "sig"))
	assert.Equal(t, agoraerr.KindUnauthenticatedExpired, agoraerr.KindOf(err))
}

func TestVerifyRejectsEmptySignature(t *testing.T) {
	v := NewVerifier()
	v.Now = func() time.Time { return time.Unix(1000, 0) }
	_, err := v.Verify(buildToken("did:key:abc123", 2000, ""))
	assert.Equal(t, agoraerr.KindUnauthenticatedBadSignature, agoraerr.KindOf(err))
}

func TestSubjectFromContextEmptyWhenUnset(t *testing.T) {
	assert.Equal(t, "", SubjectFromContext(context.Background()))
}

func TestSubjectFromContextRoundTrips(t *testing.T) {
	ctx := withSubject(context.Background(), "did:key:zzz")
	assert.Equal(t, "did:key:zzz", SubjectFromContext(ctx))
}
