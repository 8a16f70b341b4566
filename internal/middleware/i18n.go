package middleware

import (
	"context"
	"net/http"
	"strings"

	"modelshoot/internal/i18n"
)

type localeContextKey struct{}
type countryContextKey struct{}

var (
	LocaleKey  = localeContextKey{}
	CountryKey = countryContextKey{}
)

// CountryLookup resolves ISO country codes for an IP address.
type CountryLookup func(ip string) (string, error)

// edgeCountryHeaders are set by the CDN or load balancer in front of the API.
var edgeCountryHeaders = []string{"CF-IPCountry", "X-Country-Code", "X-Appengine-Country"}

// I18N stores the request locale and the client country in the context.
// Payout history entries record the country, so network evidence (edge
// headers, then GeoIP) outranks the region of a language tag.
func I18N(defaultLocale string, lookup CountryLookup) func(http.Handler) http.Handler {
	fallback := i18n.Normalize(defaultLocale)
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			country := ResolveCountry(r, lookup)
			ctx := context.WithValue(r.Context(), LocaleKey, requestLocale(r, country, fallback))
			if country != "" {
				ctx = context.WithValue(ctx, CountryKey, country)
			}
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// requestLocale prefers an explicit X-Locale, then Accept-Language, then the
// country's language.
func requestLocale(r *http.Request, country, fallback string) string {
	for _, v := range []string{r.Header.Get("X-Locale"), r.Header.Get("Accept-Language")} {
		if l := i18n.Match(v); l != "" {
			return l
		}
	}
	if country == "ID" {
		return i18n.Indonesian
	}
	if fallback == "" {
		return i18n.English
	}
	return fallback
}

func LocaleFromContext(ctx context.Context) string {
	if v, ok := ctx.Value(LocaleKey).(string); ok && v != "" {
		return v
	}
	return i18n.English
}

// CountryFromContext returns the ISO country code stored in the request context.
func CountryFromContext(ctx context.Context) string {
	v, _ := ctx.Value(CountryKey).(string)
	return v
}

// ResolveCountry returns an upper-case ISO country code for the request, or
// "" when nothing identifies one.
func ResolveCountry(r *http.Request, lookup CountryLookup) string {
	if r == nil {
		return ""
	}
	for _, h := range edgeCountryHeaders {
		if c := normalizeCountry(r.Header.Get(h)); c != "" {
			return c
		}
	}
	if lookup != nil {
		if ip := ClientIP(r); ip != "" {
			if c, err := lookup(ip); err == nil {
				if c = normalizeCountry(c); c != "" {
					return c
				}
			}
		}
	}
	for _, h := range []string{"X-Locale", "Accept-Language"} {
		if c := tagRegion(r.Header.Get(h)); c != "" {
			return c
		}
	}
	return ""
}

// normalizeCountry accepts two-letter codes only; "XX" and "T1" are the
// placeholders CDNs send for unknown and Tor traffic.
func normalizeCountry(v string) string {
	v = strings.ToUpper(strings.TrimSpace(v))
	if len(v) != 2 || v == "XX" || v == "T1" {
		return ""
	}
	for _, c := range v {
		if c < 'A' || c > 'Z' {
			return ""
		}
	}
	return v
}

// tagRegion returns the region subtag of the first language tag that has one.
func tagRegion(v string) string {
	for _, part := range strings.Split(v, ",") {
		tag := strings.TrimSpace(strings.SplitN(part, ";", 2)[0])
		if i := strings.IndexAny(tag, "-_"); i > 0 {
			if c := normalizeCountry(tag[i+1:]); c != "" {
				return c
			}
		}
	}
	return ""
}
