// ABOUTME: Rendering of OTP messages for human delivery channels
// ABOUTME: Turns a purpose like "forgotPassword" into "Forgot Password" for subjects and bodies

package delivery

import (
	"fmt"
	"strings"
	"unicode"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/2389/coven-identity/internal/otp"
)

// formatPurpose splits a camelCase purpose into title-cased words
func formatPurpose(p otp.Purpose) string {
	var b strings.Builder
	for i, r := range p.String() {
		if i > 0 && unicode.IsUpper(r) {
			b.WriteByte(' ')
		}
		b.WriteRune(r)
	}
	return cases.Title(language.English).String(b.String())
}

// Subject returns the email subject line for msg.
func Subject(msg otp.Message) string {
	return fmt.Sprintf("Your %s code", formatPurpose(msg.Purpose))
}

// Body returns the plain-text body for msg.
func Body(msg otp.Message) string {
	minutes := int(msg.TTL.Minutes())
	if minutes < 1 {
		minutes = 1
	}
	return fmt.Sprintf(
		"Your %s code is %s.\r\n\r\nIt expires in %d minutes. If you did not request it, you can ignore this message.\r\n",
		formatPurpose(msg.Purpose), msg.Code, minutes,
	)
}
