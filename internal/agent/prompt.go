package agent

import (
	"fmt"
	"strings"
	"time"

	"apptchat/internal/config"
	"apptchat/internal/models"
)

const fallbackReply = "Уучлаарай, түр зуурын алдаа гарлаа. Та дахин оролдоно уу. / Sorry, something went wrong. Please try again."

// systemPrompt renders the standing instructions for the model. The
// catalog and business hours come from config so the prompt never
// drifts from what the engine enforces.
func systemPrompt(business config.BusinessConfig, services []models.Service, now time.Time) string {
	var b strings.Builder

	b.WriteString("You are a friendly appointment booking assistant for a beauty salon.\n")
	b.WriteString("You help customers check availability, book, cancel and review appointments.\n\n")

	fmt.Fprintf(&b, "Today's date is %s (%s).\n", now.Format(models.DateLayout), now.Weekday())
	fmt.Fprintf(&b, "Business hours: %02d:00 to %02d:00, every day.\n\n", business.StartHour, business.EndHour)

	b.WriteString("Available services:\n")
	for _, svc := range services {
		fmt.Fprintf(&b, "- %s (%s): %d minutes\n", svc.Name, svc.Label, svc.DurationMinutes)
	}

	b.WriteString(`
Rules:
- Always respond in the language the customer writes in.
- Use the provided functions for every scheduling action; never invent availability or booking details yourself.
- Before creating a booking, make sure you have the customer's name, phone number, service, date and time. Ask for whatever is missing.
- Dates passed to functions must be in YYYY-MM-DD format and times in HH:MM (24-hour).
- If a requested slot is taken, offer the suggested alternatives.
- Confirm the details back to the customer after a booking is created or cancelled.
- Keep replies short and conversational.
`)

	return b.String()
}
