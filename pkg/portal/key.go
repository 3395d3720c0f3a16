package portal

import (
	"errors"
	"net/url"
	"strings"
)

// DefaultBaseURL is the receipt endpoint of the bank portal.
const DefaultBaseURL = "https://apps.cbe.com.et:100/"

var ErrInvalidLookupKey = errors.New("invalid lookup key")

// LookupKey identifies a receipt on the portal, either by the full receipt
// URL or by a transaction reference plus the payer's account suffix.
type LookupKey struct {
	FullURL       string `json:"fullUrl,omitempty"`
	ReferenceID   string `json:"referenceId,omitempty"`
	AccountSuffix string `json:"accountSuffix,omitempty"`
}

func KeyFromURL(u string) LookupKey {
	return LookupKey{FullURL: strings.TrimSpace(u)}
}

func KeyFromReference(referenceID, accountSuffix string) LookupKey {
	return LookupKey{
		ReferenceID:   strings.TrimSpace(referenceID),
		AccountSuffix: strings.TrimSpace(accountSuffix),
	}
}

// Validate checks that exactly one of the two forms is present and complete.
func (k LookupKey) Validate() error {
	hasURL := k.FullURL != ""
	hasRef := k.ReferenceID != "" || k.AccountSuffix != ""

	switch {
	case hasURL && hasRef:
		return errors.Join(ErrInvalidLookupKey, errors.New("both a URL and a reference were given"))
	case hasURL:
		u, err := url.Parse(k.FullURL)
		if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			return errors.Join(ErrInvalidLookupKey, errors.New("receipt URL must be an absolute http(s) URL"))
		}
		return nil
	case k.ReferenceID == "" || k.AccountSuffix == "":
		return errors.Join(ErrInvalidLookupKey, errors.New("reference ID and account suffix are both required"))
	}
	return nil
}

// URL returns the receipt URL. The reference and suffix are appended to the
// id parameter as they are; the portal expects them unescaped.
func (k LookupKey) URL(base string) string {
	if k.FullURL != "" {
		return k.FullURL
	}
	if base == "" {
		base = DefaultBaseURL
	}
	return base + "?id=" + k.ReferenceID + k.AccountSuffix
}

func (k LookupKey) String() string {
	if k.FullURL != "" {
		return k.FullURL
	}
	return k.ReferenceID + k.AccountSuffix
}
