// Package auth is the Identity & Auth Verifier (C1): bearer-token parsing,
// DID validation, and action authorization. The rest of the core treats the
// resolved subject DID as an opaque principal string; swapping the
// signature verifier for a real DID-JWT library does not touch C2-C4.
package auth

import (
	"context"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/intercooperative/agoranet/pkg/agoraerr"
)

var didPattern = regexp.MustCompile(`^did:[a-zA-Z0-9]+:[a-zA-Z0-9._:%-]+$`)

// SignatureVerifier checks the opaque signature part of a token against its
// subject. The default accepts any non-empty signature; production
// deployments replace this with real DID-JWT or similar verification.
type SignatureVerifier func(subjectDID, signature string) bool

// DefaultSignatureVerifier is pluggable per the Identity & Auth Verifier
// contract: any non-empty signature is accepted by default.
var DefaultSignatureVerifier SignatureVerifier = func(_, signature string) bool {
	return signature != ""
}

// Verifier holds the pluggable signature check and an injectable clock.
type Verifier struct {
	VerifySignature SignatureVerifier
	Now             func() time.Time
}

// NewVerifier constructs a Verifier with default signature acceptance and
// the wall clock.
func NewVerifier() *Verifier {
	return &Verifier{VerifySignature: DefaultSignatureVerifier, Now: time.Now}
}

// Identity is the result of a successful Verify.
type Identity struct {
	SubjectDID string
}

// Verify implements verify(token) -> {subject_did} | Unauthenticated{reason}.
// Token format: "subject.expiry.signature".
func (v *Verifier) Verify(token string) (Identity, error) {
	parts := strings.SplitN(token, ".", 3)
	if len(parts) != 3 {
		return Identity{}, agoraerr.New(agoraerr.KindUnauthenticatedMalformed, "token must have three dot-separated parts")
	}
	subject, expiryRaw, signature := parts[0], parts[1], parts[2]

	if !didPattern.MatchString(subject) {
		return Identity{}, agoraerr.New(agoraerr.KindUnauthenticatedMalformed, "subject is not a well-formed DID")
	}

	expiry, err := strconv.ParseInt(expiryRaw, 10, 64)
	if err != nil {
		return Identity{}, agoraerr.New(agoraerr.KindUnauthenticatedMalformed, "expiry is not a unix seconds integer")
	}

	now := time.Now()
	if v.Now != nil {
		now = v.Now()
	}
	if expiry < now.Unix() {
		return Identity{}, agoraerr.New(agoraerr.KindUnauthenticatedExpired, "token expired")
	}

	verify := v.VerifySignature
	if verify == nil {
		verify = DefaultSignatureVerifier
	}
	if !verify(subject, signature) {
		return Identity{}, agoraerr.New(agoraerr.KindUnauthenticatedBadSignature, "signature verification failed")
	}

	return Identity{SubjectDID: subject}, nil
}

type ctxSubjectKey struct{}

func withSubject(ctx context.Context, subjectDID string) context.Context {
	return context.WithValue(ctx, ctxSubjectKey{}, subjectDID)
}

// SubjectFromContext returns the verified subject DID, or "" if the request
// was never authenticated (health checks and other unauthenticated routes).
func SubjectFromContext(ctx context.Context) string {
	if v := ctx.Value(ctxSubjectKey{}); v != nil {
		if s, ok := v.(string); ok {
			return s
		}
	}
	return ""
}
