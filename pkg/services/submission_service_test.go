package services

import (
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bussola-ai/bussola/pkg/models"
)

func validRequest() SubmitRequest {
	return SubmitRequest{
		Name:      "Maria Silva",
		Email:     "maria@acme.com.br",
		Company:   "Acme",
		Website:   "acme.com.br",
		Industry:  "varejo",
		Challenge: "crescer 30% ao ano",
	}
}

func TestValidateSubmit_OK(t *testing.T) {
	req := validRequest()
	require.NoError(t, validateSubmit(&req))
	assert.Equal(t, "https://acme.com.br", req.Website, "website is normalized in place")
}

func TestValidateSubmit_TrimsFields(t *testing.T) {
	req := validRequest()
	req.Name = "  Maria Silva  "
	req.Challenge = "\tcrescer\n"

	require.NoError(t, validateSubmit(&req))
	assert.Equal(t, "Maria Silva", req.Name)
	assert.Equal(t, "crescer", req.Challenge)
}

func TestValidateSubmit_RequiredFields(t *testing.T) {
	cases := []struct {
		field  string
		mutate func(*SubmitRequest)
	}{
		{"name", func(r *SubmitRequest) { r.Name = "  " }},
		{"email", func(r *SubmitRequest) { r.Email = "" }},
		{"email", func(r *SubmitRequest) { r.Email = "not-an-address" }},
		{"company", func(r *SubmitRequest) { r.Company = "" }},
		{"challenge", func(r *SubmitRequest) { r.Challenge = "" }},
	}
	for _, tc := range cases {
		req := validRequest()
		tc.mutate(&req)

		err := validateSubmit(&req)
		require.Error(t, err)
		var ve *ValidationError
		require.ErrorAs(t, err, &ve)
		assert.Equal(t, tc.field, ve.Field)
	}
}

func TestValidateSubmit_ChallengeLength(t *testing.T) {
	req := validRequest()
	req.Challenge = strings.Repeat("a", models.MaxChallengeLength)
	assert.NoError(t, validateSubmit(&req))

	req = validRequest()
	req.Challenge = strings.Repeat("a", models.MaxChallengeLength+1)
	err := validateSubmit(&req)
	require.Error(t, err)
	var ve *ValidationError
	require.ErrorAs(t, err, &ve)
	assert.Equal(t, "challenge", ve.Field)
}

func TestValidateSubmit_Website(t *testing.T) {
	req := validRequest()
	req.Website = ""
	assert.NoError(t, validateSubmit(&req), "website is optional")

	req = validRequest()
	req.Website = "ftp://acme.com.br"
	err := validateSubmit(&req)
	require.Error(t, err)
	var ve *ValidationError
	require.ErrorAs(t, err, &ve)
	assert.Equal(t, "website", ve.Field)
}

func TestIsValidationError(t *testing.T) {
	assert.True(t, IsValidationError(NewValidationError("name", "is required")))
	assert.False(t, IsValidationError(errors.New("boom")))
	assert.False(t, IsValidationError(ErrQuotaExceeded))
}
