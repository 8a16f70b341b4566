package i18n

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"modelshoot/internal/domain"
)

func TestMatch(t *testing.T) {
	cases := map[string]string{
		"":                  "",
		"en-US,en;q=0.9":    English,
		"id-ID,en;q=0.8":    Indonesian,
		"ID":                Indonesian,
		"fr-FR":             English,
		"en;q=0.5,id;q=0.9": Indonesian,
	}
	for in, want := range cases {
		assert.Equal(t, want, Match(in), "Match(%q)", in)
	}
}

func TestNormalizeFallsBackToEnglish(t *testing.T) {
	assert.Equal(t, English, Normalize(""))
	assert.Equal(t, English, Normalize("!!"))
	assert.Equal(t, Indonesian, Normalize("id"))
}

func TestFailureMessage(t *testing.T) {
	assert.Equal(t, "Render dibatalkan.", FailureMessage("id", domain.FailureCancelled))
	assert.Equal(t, "The render was cancelled.", FailureMessage("en-GB", domain.FailureCancelled))
	assert.Equal(t, "", FailureMessage("en", ""))
	assert.Equal(t, "", FailureMessage("en", domain.FailureCode("SOMETHING_ELSE")))
}

func TestEveryFailureCodeHasBothLocales(t *testing.T) {
	codes := []domain.FailureCode{
		domain.FailureUpstreamTimeout,
		domain.FailureUpstreamUnavailable,
		domain.FailureNetwork,
		domain.FailureInvalidInput,
		domain.FailureUpstreamRejected,
		domain.FailureStorage,
		domain.FailureInsufficientBalance,
		domain.FailureLedgerRejected,
		domain.FailureCancelled,
		domain.FailureLeaseExpired,
	}
	for _, code := range codes {
		for _, locale := range []string{English, Indonesian} {
			assert.NotEmpty(t, failureMessages[locale][code], "%s/%s", locale, code)
		}
	}
}
