package identity

import (
	"context"
	"crypto/rsa"
	"crypto/tls"
	"crypto/x509"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/crewjam/saml"
	"github.com/crewjam/saml/samlsp"
)

// ProviderSAML tags assertions that came through the SAML adapter.
const ProviderSAML = "saml"

// Attribute names checked, in order, for the email and display name. Both
// the short names and the OID / claim URIs common IdPs emit are accepted.
var (
	emailAttributes = []string{
		"email",
		"mail",
		"urn:oid:0.9.2342.19200300.100.1.3",
		"http://schemas.xmlsoap.org/ws/2005/05/identity/claims/emailaddress",
	}
	nameAttributes = []string{
		"displayName",
		"name",
		"cn",
		"urn:oid:2.16.840.1.113730.3.1.241",
		"http://schemas.xmlsoap.org/ws/2005/05/identity/claims/name",
	}
)

// SAMLConfig configures the service-provider side of SAML login.
type SAMLConfig struct {
	// BaseURL is the public URL the auth API is served under, e.g.
	// https://auth.example.com/api/auth. Metadata and ACS live below it.
	BaseURL string

	CertFile       string
	KeyFile        string
	IDPMetadataURL string

	AllowIDPInitiated bool
	AllowedDomains    []string
}

// Enabled reports whether enough is configured to start the adapter.
func (c SAMLConfig) Enabled() bool {
	return c.IDPMetadataURL != "" && c.CertFile != "" && c.KeyFile != ""
}

// SAMLProvider wraps a crewjam/saml service provider and turns a posted
// SAMLResponse into an Assertion.
type SAMLProvider struct {
	sp     *samlsp.Middleware
	policy DomainPolicy
}

// NewSAMLProvider loads the SP key pair and fetches the IdP metadata.
func NewSAMLProvider(ctx context.Context, cfg SAMLConfig, client *http.Client) (*SAMLProvider, error) {
	keyPair, err := tls.LoadX509KeyPair(cfg.CertFile, cfg.KeyFile)
	if err != nil {
		return nil, fmt.Errorf("identity: load saml key pair: %w", err)
	}
	leaf, err := x509.ParseCertificate(keyPair.Certificate[0])
	if err != nil {
		return nil, fmt.Errorf("identity: parse saml certificate: %w", err)
	}
	key, ok := keyPair.PrivateKey.(*rsa.PrivateKey)
	if !ok {
		return nil, errors.New("identity: saml key must be RSA")
	}

	metadataURL, err := url.Parse(cfg.IDPMetadataURL)
	if err != nil {
		return nil, fmt.Errorf("identity: parse idp metadata url: %w", err)
	}
	if client == nil {
		client = http.DefaultClient
	}
	idpMetadata, err := samlsp.FetchMetadata(ctx, client, *metadataURL)
	if err != nil {
		return nil, fmt.Errorf("identity: fetch idp metadata: %w", err)
	}

	return NewSAMLProviderWithMetadata(cfg, key, leaf, idpMetadata)
}

// NewSAMLProviderWithMetadata builds the adapter from already loaded
// material.
func NewSAMLProviderWithMetadata(
	cfg SAMLConfig,
	key *rsa.PrivateKey,
	cert *x509.Certificate,
	idpMetadata *saml.EntityDescriptor,
) (*SAMLProvider, error) {
	base, err := url.Parse(cfg.BaseURL)
	if err != nil || base.Scheme == "" || base.Host == "" {
		return nil, fmt.Errorf("identity: invalid saml base url %q", cfg.BaseURL)
	}
	// samlsp resolves "saml/acs" relative to this URL, so it must end in a
	// slash to keep the last path segment.
	if !strings.HasSuffix(base.Path, "/") {
		base.Path += "/"
	}

	sp, err := samlsp.New(samlsp.Options{
		URL:               *base,
		Key:               key,
		Certificate:       cert,
		IDPMetadata:       idpMetadata,
		AllowIDPInitiated: cfg.AllowIDPInitiated,
	})
	if err != nil {
		return nil, fmt.Errorf("identity: create saml service provider: %w", err)
	}

	return &SAMLProvider{
		sp:     sp,
		policy: DomainPolicy{AllowedDomains: cfg.AllowedDomains},
	}, nil
}

// ACSURL is where the IdP posts responses.
func (p *SAMLProvider) ACSURL() string {
	return p.sp.ServiceProvider.AcsURL.String()
}

// ServeMetadata writes the SP metadata document.
func (p *SAMLProvider) ServeMetadata(w http.ResponseWriter, r *http.Request) {
	p.sp.ServeMetadata(w, r)
}

// StartLogin redirects the browser to the IdP.
func (p *SAMLProvider) StartLogin(w http.ResponseWriter, r *http.Request) {
	p.sp.HandleStartAuthFlow(w, r)
}

// Assert validates the posted SAMLResponse and extracts the identity. The
// AuthnRequest it answers stops being tracked, so the same response cannot
// be redeemed against it again.
func (p *SAMLProvider) Assert(w http.ResponseWriter, r *http.Request) (Assertion, error) {
	if err := r.ParseForm(); err != nil {
		return Assertion{}, fmt.Errorf("identity: parse form: %w", err)
	}

	var possibleRequestIDs []string
	if p.sp.ServiceProvider.AllowIDPInitiated {
		possibleRequestIDs = append(possibleRequestIDs, "")
	}
	for _, tr := range p.sp.RequestTracker.GetTrackedRequests(r) {
		possibleRequestIDs = append(possibleRequestIDs, tr.SAMLRequestID)
	}

	assertion, err := p.sp.ServiceProvider.ParseResponse(r, possibleRequestIDs)
	if err != nil {
		return Assertion{}, fmt.Errorf("identity: invalid saml response: %w", err)
	}
	if err := p.stopTracking(w, r); err != nil {
		return Assertion{}, err
	}

	a, err := FromSAML(assertion)
	if err != nil {
		return Assertion{}, err
	}
	if err := p.policy.Check(a.Email); err != nil {
		return Assertion{}, err
	}
	return a, nil
}

// stopTracking expires the request tracking cookie named by RelayState.
// IdP-initiated responses carry no cookie and are left alone.
func (p *SAMLProvider) stopTracking(w http.ResponseWriter, r *http.Request) error {
	index := r.FormValue("RelayState")
	if index == "" {
		return nil
	}
	err := p.sp.RequestTracker.StopTrackingRequest(w, r, index)
	if errors.Is(err, http.ErrNoCookie) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("identity: stop tracking saml request: %w", err)
	}
	return nil
}

// FromSAML maps a validated SAML assertion onto an Assertion. The email
// comes from the first matching attribute, falling back to the NameID.
func FromSAML(assertion *saml.Assertion) (Assertion, error) {
	if assertion == nil {
		return Assertion{}, ErrNoEmail
	}

	var subject string
	if assertion.Subject != nil && assertion.Subject.NameID != nil {
		subject = strings.TrimSpace(assertion.Subject.NameID.Value)
	}

	email := firstAttribute(assertion, emailAttributes)
	if email == "" && strings.Contains(subject, "@") {
		email = subject
	}
	if email == "" {
		return Assertion{}, ErrNoEmail
	}

	return Assertion{
		Email:    email,
		Name:     firstAttribute(assertion, nameAttributes),
		Provider: ProviderSAML,
		Subject:  subject,
	}, nil
}

func firstAttribute(assertion *saml.Assertion, names []string) string {
	for _, want := range names {
		for _, stmt := range assertion.AttributeStatements {
			for _, attr := range stmt.Attributes {
				if attr.Name != want && attr.FriendlyName != want {
					continue
				}
				for _, v := range attr.Values {
					if s := strings.TrimSpace(v.Value); s != "" {
						return s
					}
				}
			}
		}
	}
	return ""
}
