package identity

import "net/http"

// StopTracking exposes the post-assertion cleanup to the external tests.
func (p *SAMLProvider) StopTracking(w http.ResponseWriter, r *http.Request) error {
	return p.stopTracking(w, r)
}
