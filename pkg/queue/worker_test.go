package queue

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/bussola-ai/bussola/pkg/models"
)

func TestSubmissionForm_CarriesWebsite(t *testing.T) {
	sub := &models.Submission{
		Company:  "Acme",
		Industry: "varejo",
		Website:  "https://acme.com.br",
	}

	form := submissionForm(sub)

	assert.Equal(t, "Acme", form["name"])
	assert.Equal(t, "varejo", form["industry"])
	assert.Equal(t, "https://acme.com.br", form["website"],
		"the session overlay must see the submitted website so corrections win")
}
