package identity_test

import (
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"crypto/x509/pkix"
	"math/big"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/aussiebroadwan/miniokta/internal/auth/identity"
	"github.com/crewjam/saml"
	"github.com/stretchr/testify/require"
)

func attr(name, friendly, value string) saml.Attribute {
	return saml.Attribute{
		Name:         name,
		FriendlyName: friendly,
		Values:       []saml.AttributeValue{{Value: value}},
	}
}

func assertionWith(nameID string, attrs ...saml.Attribute) *saml.Assertion {
	a := &saml.Assertion{
		AttributeStatements: []saml.AttributeStatement{{Attributes: attrs}},
	}
	if nameID != "" {
		a.Subject = &saml.Subject{NameID: &saml.NameID{Value: nameID}}
	}
	return a
}

func TestFromSAML(t *testing.T) {
	tests := []struct {
		name      string
		assertion *saml.Assertion
		want      identity.Assertion
		wantErr   error
	}{
		{
			name:      "email attribute",
			assertion: assertionWith("opaque-id", attr("email", "", "a@x.com"), attr("displayName", "", "Alice")),
			want:      identity.Assertion{Email: "a@x.com", Name: "Alice", Provider: identity.ProviderSAML, Subject: "opaque-id"},
		},
		{
			name:      "friendly name and oid",
			assertion: assertionWith("", attr("urn:oid:0.9.2342.19200300.100.1.3", "mail", " b@x.com ")),
			want:      identity.Assertion{Email: "b@x.com", Provider: identity.ProviderSAML},
		},
		{
			name:      "name id fallback",
			assertion: assertionWith("c@x.com"),
			want:      identity.Assertion{Email: "c@x.com", Provider: identity.ProviderSAML, Subject: "c@x.com"},
		},
		{
			name:      "opaque name id without email",
			assertion: assertionWith("12345"),
			wantErr:   identity.ErrNoEmail,
		},
		{
			name:      "empty attribute value falls through",
			assertion: assertionWith("d@x.com", attr("email", "", "")),
			want:      identity.Assertion{Email: "d@x.com", Provider: identity.ProviderSAML, Subject: "d@x.com"},
		},
		{
			name:    "nil assertion",
			wantErr: identity.ErrNoEmail,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := identity.FromSAML(tt.assertion)
			if tt.wantErr != nil {
				require.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			require.Equal(t, tt.want, got)
		})
	}
}

func TestDomainPolicy(t *testing.T) {
	open := identity.DomainPolicy{}
	require.NoError(t, open.Check("anyone@anywhere.io"))

	p := identity.DomainPolicy{AllowedDomains: []string{"example.com", " Corp.Example "}}
	require.NoError(t, p.Check("a@example.com"))
	require.NoError(t, p.Check("a@corp.example"))
	require.ErrorIs(t, p.Check("a@evil.com"), identity.ErrDomainNotAllow)
	require.ErrorIs(t, p.Check("a@sub.example.com"), identity.ErrDomainNotAllow)
	require.ErrorIs(t, p.Check("no-at-sign"), identity.ErrDomainNotAllow)
	require.ErrorIs(t, p.Check("trailing@"), identity.ErrDomainNotAllow)
}

func TestSAMLConfigEnabled(t *testing.T) {
	require.False(t, identity.SAMLConfig{}.Enabled())
	require.True(t, identity.SAMLConfig{IDPMetadataURL: "https://idp", CertFile: "c", KeyFile: "k"}.Enabled())
}

func newKeyPair(t *testing.T) (*rsa.PrivateKey, *x509.Certificate) {
	t.Helper()

	key, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)

	tmpl := &x509.Certificate{
		SerialNumber: big.NewInt(1),
		Subject:      pkix.Name{CommonName: "miniokta-sp"},
		NotBefore:    time.Now().Add(-time.Hour),
		NotAfter:     time.Now().Add(time.Hour),
	}
	der, err := x509.CreateCertificate(rand.Reader, tmpl, tmpl, &key.PublicKey, key)
	require.NoError(t, err)
	cert, err := x509.ParseCertificate(der)
	require.NoError(t, err)

	return key, cert
}

func TestSAMLProvider(t *testing.T) {
	key, cert := newKeyPair(t)
	idp := &saml.EntityDescriptor{
		EntityID: "https://idp.example.com/metadata",
		IDPSSODescriptors: []saml.IDPSSODescriptor{{
			SingleSignOnServices: []saml.Endpoint{{
				Binding:  saml.HTTPRedirectBinding,
				Location: "https://idp.example.com/sso",
			}},
		}},
	}

	p, err := identity.NewSAMLProviderWithMetadata(identity.SAMLConfig{
		BaseURL:           "https://auth.example.com/api/auth",
		AllowIDPInitiated: true,
	}, key, cert, idp)
	require.NoError(t, err)
	require.Equal(t, "https://auth.example.com/api/auth/saml/acs", p.ACSURL())

	t.Run("metadata", func(t *testing.T) {
		rec := httptest.NewRecorder()
		p.ServeMetadata(rec, httptest.NewRequest(http.MethodGet, "/api/auth/saml/metadata", nil))
		require.Equal(t, http.StatusOK, rec.Code)
		require.Contains(t, rec.Body.String(), "EntityDescriptor")
		require.Contains(t, rec.Body.String(), "https://auth.example.com/api/auth/saml/acs")
	})

	t.Run("garbage response is rejected", func(t *testing.T) {
		form := url.Values{"SAMLResponse": {"bm90LXNhbWw="}}
		req := httptest.NewRequest(http.MethodPost, "/api/auth/saml/acs", strings.NewReader(form.Encode()))
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

		_, err := p.Assert(httptest.NewRecorder(), req)
		require.Error(t, err)
	})

	t.Run("accepted response releases the tracked request", func(t *testing.T) {
		start := httptest.NewRecorder()
		p.StartLogin(start, httptest.NewRequest(http.MethodGet, "/api/auth/saml/login", nil))
		require.Equal(t, http.StatusFound, start.Code)

		loc, err := url.Parse(start.Header().Get("Location"))
		require.NoError(t, err)
		relayState := loc.Query().Get("RelayState")
		require.NotEmpty(t, relayState)

		tracked := start.Result().Cookies()
		require.Len(t, tracked, 1)

		form := url.Values{"RelayState": {relayState}}
		req := httptest.NewRequest(http.MethodPost, "/api/auth/saml/acs", strings.NewReader(form.Encode()))
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
		req.AddCookie(tracked[0])

		rec := httptest.NewRecorder()
		require.NoError(t, p.StopTracking(rec, req))

		released := rec.Result().Cookies()
		require.Len(t, released, 1)
		require.Equal(t, tracked[0].Name, released[0].Name)
		require.Empty(t, released[0].Value)
		require.True(t, released[0].Expires.Before(time.Now()), "tracking cookie must be expired")
	})

	t.Run("idp initiated response has nothing to release", func(t *testing.T) {
		form := url.Values{"RelayState": {"https://app.example.com/"}}
		req := httptest.NewRequest(http.MethodPost, "/api/auth/saml/acs", strings.NewReader(form.Encode()))
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

		rec := httptest.NewRecorder()
		require.NoError(t, p.StopTracking(rec, req))
		require.Empty(t, rec.Result().Cookies())
	})
}

func TestNewSAMLProviderRejectsBadBaseURL(t *testing.T) {
	key, cert := newKeyPair(t)
	_, err := identity.NewSAMLProviderWithMetadata(identity.SAMLConfig{BaseURL: "/relative"}, key, cert, &saml.EntityDescriptor{})
	require.Error(t, err)
}
