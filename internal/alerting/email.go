package alerting

import (
	"context"
	"fmt"
	"html"
	"strings"

	"github.com/sendgrid/sendgrid-go"
	"github.com/sendgrid/sendgrid-go/helpers/mail"
)

func (a *Alerter) sendEmail(ctx context.Context, alert DriftAlert) error {
	subject := fmt.Sprintf("[facturemanager] %d bills drifted in %s", len(alert.Drifted), alert.JobName)
	plain := summary(alert) + "\n\n" + driftLines(alert, "")

	var rows strings.Builder
	for _, d := range alert.Drifted {
		fmt.Fprintf(&rows, "<tr><td>%s</td><td>%s</td><td>%s</td><td>%.3f</td><td>%.3f</td></tr>",
			html.EscapeString(d.BillID), html.EscapeString(d.MeterID), html.EscapeString(d.Regime), d.Stored, d.Recomputed)
	}
	body := fmt.Sprintf("<p>%s</p><table><tr><th>Bill</th><th>Meter</th><th>Regime</th><th>Stored</th><th>Recomputed</th></tr>%s</table>",
		html.EscapeString(summary(alert)), rows.String())

	message := mail.NewV3Mail()
	message.SetFrom(mail.NewEmail("facturemanager", a.cfg.EmailFrom))
	message.Subject = subject
	p := mail.NewPersonalization()
	for _, to := range a.cfg.EmailTo {
		p.AddTos(mail.NewEmail("", to))
	}
	message.AddPersonalizations(p)
	message.AddContent(mail.NewContent("text/plain", plain), mail.NewContent("text/html", body))

	req := sendgrid.GetRequest(a.cfg.SendGridAPIKey, "/v3/mail/send", a.cfg.SendGridHost)
	req.Method = "POST"
	req.Body = mail.GetRequestBody(message)

	resp, err := sendgrid.MakeRequestWithContext(ctx, req)
	if err != nil {
		return err
	}
	if resp.StatusCode >= 400 {
		return fmt.Errorf("sendgrid error: %d %s", resp.StatusCode, resp.Body)
	}
	return nil
}
