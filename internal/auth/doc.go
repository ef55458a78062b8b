// Package auth orchestrates the account and credential flows of coven-identity.
//
// # Flows
//
// A Service composes the credential store, the OTP engine, the token service
// and an optional identity verifier:
//
//   - Signup creates an unverified user and sends a signup code.
//   - VerifyOTP consumes a code. A signup code marks the email verified; a
//     forgot-password code yields a short-lived password reset token.
//   - ForgotPassword and ResetPassword replace a password through that token.
//   - Login and SocialLogin issue an access and refresh token pair.
//   - Refresh mints a new access token from a refresh token.
//
// With a ReplayGuard each reset token is accepted once. With an
// AuditRecorder every state change and failed login is appended to the
// audit log; a failed audit write is logged and never fails the flow.
//
// # Errors
//
// Every flow returns *Error with a stable Kind. Use errors.Is against the
// exported sentinels or KindOf to branch:
//
//	if errors.Is(err, auth.ErrConflict) { ... }
//
// Show end users PublicMessage, never Error. Login renders unknown accounts
// and wrong passwords with the same text.
//
// # Collaborators
//
// Services that only consume access tokens wrap their handlers with
// HTTPAuthMiddleware and read the caller with FromContext.
package auth
