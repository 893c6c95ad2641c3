package store

import (
	"encoding/json"

	"github.com/google/uuid"

	"github.com/intercooperative/agoranet/pkg/agoraerr"
	"github.com/intercooperative/agoranet/pkg/bus"
	"github.com/intercooperative/agoranet/pkg/models"
)

// LinkCredential implements link_credential. Enforces I1 (thread must
// exist); duplicate (thread_id, credential_cid, linked_by_did) collapses to
// the existing row.
func LinkCredential(threadID, credentialCID, linkedByDID string) (models.CredentialLink, error) {
	return linkCredential(threadID, credentialCID, linkedByDID, bus.OriginLocal)
}

func linkCredential(threadID, credentialCID, linkedByDID string, origin bus.Origin) (models.CredentialLink, error) {
	if err := requireOpen(); err != nil {
		return models.CredentialLink{}, err
	}
	var th models.Thread
	ok, err := getJSON(keyThreadMeta(threadID), &th)
	if err != nil {
		return models.CredentialLink{}, err
	}
	if !ok {
		return models.CredentialLink{}, agoraerr.New(agoraerr.KindNotFound, "thread not found: "+threadID)
	}

	dedupeKey := keyCredLinkDedupe(threadID, credentialCID, linkedByDID)
	var existingID string
	found, err := getJSON(dedupeKey, &existingID)
	if err != nil {
		return models.CredentialLink{}, err
	}
	if found {
		var existing models.CredentialLink
		if ok, err := getJSON(keyCredLinkRow(threadID, existingID), &existing); err != nil {
			return models.CredentialLink{}, err
		} else if ok {
			return existing, nil
		}
	}

	link := models.CredentialLink{
		ID:            uuid.NewString(),
		ThreadID:      threadID,
		CredentialCID: credentialCID,
		LinkedByDID:   linkedByDID,
		CreatedAt:     nowUnix(),
	}
	if err := putJSON(keyCredLinkRow(threadID, link.ID), link); err != nil {
		return models.CredentialLink{}, err
	}
	if err := putJSON(dedupeKey, link.ID); err != nil {
		return models.CredentialLink{}, err
	}
	b, _ := json.Marshal(link)
	Bus.Publish(bus.ChangeRecord{
		Origin:   origin,
		Kind:     bus.EntityCredLink,
		ThreadID: threadID,
		EntityID: link.ID,
		Seq:      nextLocalSeq(),
		Payload:  b,
	})
	return link, nil
}

// ListCredentialLinks implements list_credential_links(thread_id?). An empty
// threadID lists across all threads.
func ListCredentialLinks(threadID string) ([]models.CredentialLink, error) {
	if err := requireOpen(); err != nil {
		return nil, err
	}
	prefix := []byte("credlink:row:")
	if threadID != "" {
		prefix = credLinkRowPrefix(threadID)
	}
	var out []models.CredentialLink
	err := scanPrefix(db, prefix, func(_, v []byte) bool {
		var l models.CredentialLink
		if json.Unmarshal(v, &l) == nil {
			out = append(out, l)
		}
		return true
	})
	return out, err
}

// RecordVerifiedCredential implements record_verified_credential: an upsert
// by credential_cid, idempotent.
func RecordVerifiedCredential(credentialCID, subjectDID, issuerDID, credentialType string, validUntil, eventTS int64) (models.VerifiedCredential, error) {
	if err := requireOpen(); err != nil {
		return models.VerifiedCredential{}, err
	}
	key := keyVerifiedCredential(credentialCID)
	vc := models.VerifiedCredential{
		ID:             credentialCID,
		CredentialCID:  credentialCID,
		SubjectDID:     subjectDID,
		IssuerDID:      issuerDID,
		CredentialType: credentialType,
		ValidUntil:     validUntil,
		VerifiedAt:     eventTS,
	}
	var existing models.VerifiedCredential
	ok, err := getJSON(key, &existing)
	if err != nil {
		return models.VerifiedCredential{}, err
	}
	if ok && existing == vc {
		return existing, nil
	}
	if err := putJSON(key, vc); err != nil {
		return models.VerifiedCredential{}, err
	}
	return vc, nil
}

// GetVerifiedCredential looks up a credential by CID, for the HTTP surface
// and for C3's idempotency checks.
func GetVerifiedCredential(credentialCID string) (models.VerifiedCredential, bool, error) {
	if err := requireOpen(); err != nil {
		return models.VerifiedCredential{}, false, err
	}
	var vc models.VerifiedCredential
	ok, err := getJSON(keyVerifiedCredential(credentialCID), &vc)
	return vc, ok, err
}
