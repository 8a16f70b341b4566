// Package i18n picks a supported locale for a request and localizes the
// failure messages shown to clients.
package i18n

import (
	"strings"

	"golang.org/x/text/language"

	"modelshoot/internal/domain"
)

const (
	English    = "en"
	Indonesian = "id"
)

var (
	supported = []language.Tag{language.English, language.Indonesian}
	codes     = []string{English, Indonesian}
	matcher   = language.NewMatcher(supported)
)

// Match returns the best supported locale for a locale tag or an
// Accept-Language value, or "" when the value does not parse.
func Match(v string) string {
	v = strings.TrimSpace(v)
	if v == "" {
		return ""
	}
	tags, _, err := language.ParseAcceptLanguage(v)
	if err != nil || len(tags) == 0 {
		return ""
	}
	_, idx, _ := matcher.Match(tags...)
	return codes[idx]
}

// Normalize is Match with English as the fallback.
func Normalize(v string) string {
	if l := Match(v); l != "" {
		return l
	}
	return English
}

var failureMessages = map[string]map[domain.FailureCode]string{
	English: {
		domain.FailureUpstreamTimeout:     "The render service took too long to respond.",
		domain.FailureUpstreamUnavailable: "The render service is temporarily unavailable.",
		domain.FailureNetwork:             "A network error interrupted the render.",
		domain.FailureInvalidInput:        "The garment image or target could not be used.",
		domain.FailureUpstreamRejected:    "The render service rejected this request.",
		domain.FailureStorage:             "The rendered image could not be saved.",
		domain.FailureInsufficientBalance: "Not enough credits to complete this render.",
		domain.FailureLedgerRejected:      "The charge for this render was rejected.",
		domain.FailureCancelled:           "The render was cancelled.",
		domain.FailureLeaseExpired:        "The render worker stopped responding.",
	},
	Indonesian: {
		domain.FailureUpstreamTimeout:     "Layanan render terlalu lama merespons.",
		domain.FailureUpstreamUnavailable: "Layanan render sedang tidak tersedia.",
		domain.FailureNetwork:             "Gangguan jaringan menghentikan proses render.",
		domain.FailureInvalidInput:        "Gambar pakaian atau target tidak dapat digunakan.",
		domain.FailureUpstreamRejected:    "Layanan render menolak permintaan ini.",
		domain.FailureStorage:             "Gambar hasil render gagal disimpan.",
		domain.FailureInsufficientBalance: "Kredit tidak cukup untuk menyelesaikan render ini.",
		domain.FailureLedgerRejected:      "Tagihan untuk render ini ditolak.",
		domain.FailureCancelled:           "Render dibatalkan.",
		domain.FailureLeaseExpired:        "Worker render berhenti merespons.",
	},
}

// FailureMessage returns the localized message for code, or "" for an
// unknown code.
func FailureMessage(locale string, code domain.FailureCode) string {
	if code == "" {
		return ""
	}
	msgs, ok := failureMessages[Normalize(locale)]
	if !ok {
		msgs = failureMessages[English]
	}
	if m, ok := msgs[code]; ok {
		return m
	}
	return failureMessages[English][code]
}
