package templates

import (
	"fmt"
	"html"
)

// RenderCode renders the email carrying a registration verification code
func RenderCode(code string, validMinutes int) string {
	body := fmt.Sprintf(`<p>Welcome! Use the code below to verify your email address and finish creating your account.</p>
      <p class="code">%s</p>
      <p>This code expires in %d minutes. If you did not start a sign up, you can ignore this email.</p>`,
		html.EscapeString(code), validMinutes)
	return layout("Verify your email", body)
}

// RenderPasswordReset renders the email carrying a password reset link
func RenderPasswordReset(resetLink string, validMinutes int) string {
	safeLink := html.EscapeString(resetLink)
	body := fmt.Sprintf(`<p>We received a request to reset your password.</p>
      <p style="text-align: center;"><a class="button" href="%s">Reset password</a></p>
      <p>Or paste this link into your browser:<br>%s</p>
      <p>This link expires in %d minutes and can only be used once. If you did not ask for a reset, your password has not been changed.</p>`,
		safeLink, safeLink, validMinutes)
	return layout("Reset your password", body)
}
