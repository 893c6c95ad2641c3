package validation

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestValidateRequiredPath(t *testing.T) {
	SetRules(Rules{Required: []string{"title", "author.did"}})
	defer SetRules(Rules{})

	err := Validate(map[string]interface{}{"title": "hello"})
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "author.did")
}

func TestValidatePassesWhenAllRulesSatisfied(t *testing.T) {
	SetRules(Rules{
		Required: []string{"title"},
		Types:    map[string]string{"title": "string"},
		MaxLen:   map[string]int{"title": 10},
	})
	defer SetRules(Rules{})

	err := Validate(map[string]interface{}{"title": "short"})
	assert.NoError(t, err)
}

func TestValidateTypeMismatch(t *testing.T) {
	SetRules(Rules{Types: map[string]string{"count": "number"}})
	defer SetRules(Rules{})

	err := Validate(map[string]interface{}{"count": "not-a-number"})
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "type mismatch")
}

func TestValidateMaxLenExceeded(t *testing.T) {
	SetRules(Rules{MaxLen: map[string]int{"content": 5}})
	defer SetRules(Rules{})

	err := Validate(map[string]interface{}{"content": "way too long"})
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "max length exceeded")
}

func TestValidateEnum(t *testing.T) {
	SetRules(Rules{Enums: map[string][]string{"reaction_type": {"upvote", "downvote"}}})
	defer SetRules(Rules{})

	assert.NoError(t, Validate(map[string]interface{}{"reaction_type": "upvote"}))

	err := Validate(map[string]interface{}{"reaction_type": "sideways"})
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "invalid enum")
}

func TestValidateWhenThen(t *testing.T) {
	SetRules(Rules{
		WhenThen: []WhenThenRule{
			{WhenPath: "kind", Equals: "credential_link", ThenReq: []string{"credential_cid"}},
		},
	})
	defer SetRules(Rules{})

	err := Validate(map[string]interface{}{"kind": "credential_link"})
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "credential_cid")

	assert.NoError(t, Validate(map[string]interface{}{"kind": "other"}))
}

func TestValidateNestedPath(t *testing.T) {
	SetRules(Rules{Required: []string{"author.did"}})
	defer SetRules(Rules{})

	err := Validate(map[string]interface{}{"author": map[string]interface{}{"did": "did:key:abc"}})
	assert.NoError(t, err)
}
