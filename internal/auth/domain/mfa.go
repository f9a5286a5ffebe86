package domain

// MFAEnrollment is handed to the enrolling user once. It is the only payload
// that ever carries the TOTP secret.
type MFAEnrollment struct {
	Secret          string `json:"secret"`           // base32 encoded candidate secret
	ProvisioningURI string `json:"provisioning_uri"` // otpauth:// URI
	QRCode          string `json:"qr_code"`          // data:image/png;base64 URL of the URI
	Issuer          string `json:"issuer"`
	Account         string `json:"account"`
}
