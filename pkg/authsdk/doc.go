/*
Package authsdk provides a client SDK for interacting with the miniokta authentication service.

# SDKClient vs Session

The package is organized around two types:

  - SDKClient: unauthenticated operations (register, login, second factor, health)
  - Session: operations that need a bearer token (profile, MFA management)

Create an SDKClient and log in:

	client := authsdk.NewSDKClient("https://auth.example.com")

	session, err := client.Login(ctx, "alice@example.com", password)

# Second Factor

Accounts with MFA enabled stop after the password check. The error carries
the email to send back with the code:

	session, err := client.Login(ctx, email, password)
	var mfaErr *authsdk.MFARequiredError
	if errors.As(err, &mfaErr) {
		session, err = client.ValidateMFA(ctx, mfaErr.Email, otpCode)
	}

Enrolling is a two step exchange on an authenticated session:

	setup, err := session.BeginMFAEnrollment(ctx)
	// show setup.QRCode to the user, read a code from their authenticator
	err = session.ConfirmMFAEnrollment(ctx, code)

# Errors

Failures decode into *APIError. Compare against the predefined values with
errors.Is, which matches on the error code:

	if errors.Is(err, authsdk.ErrInvalidCredentials) {
		// wrong email or password
	}

The same values are used by the server to write responses, so both sides
agree on status codes and codes.

# Tokens

Sessions hold a single bearer token with no refresh. Once it expires,
session methods return ErrSessionExpired without contacting the server.
*/
package authsdk
