package email

import (
	"context"
	"fmt"
	"log"

	"github.com/sendgrid/sendgrid-go"
	"github.com/sendgrid/sendgrid-go/helpers/mail"

	"github.com/jordanlanch/contentforge/pkg/models"
)

// Service handles email sending
type Service struct {
	fromEmail   string
	fromName    string
	baseURL     string
	sendGridKey string
	useSendGrid bool
}

// NewService creates a new email service
// If sendGridAPIKey is provided, emails will be sent via SendGrid
// Otherwise, emails will be logged to console (development mode)
func NewService(fromEmail, fromName, baseURL, sendGridAPIKey string) *Service {
	useSendGrid := sendGridAPIKey != ""
	if useSendGrid {
		log.Printf("✅ Email service initialized with SendGrid")
	} else {
		log.Printf("⚠️  Email service in console-only mode (set SENDGRID_API_KEY for production)")
	}

	return &Service{
		fromEmail:   fromEmail,
		fromName:    fromName,
		baseURL:     baseURL,
		sendGridKey: sendGridAPIKey,
		useSendGrid: useSendGrid,
	}
}

// PartnerApproved tells a partner their application was accepted
func (s *Service) PartnerApproved(_ context.Context, p *models.Partner) error {
	dashboardURL := fmt.Sprintf("%s/partners/dashboard", s.baseURL)

	subject := "Your ContentForge partner account is active"
	body := fmt.Sprintf(`
		<html>
		<body>
			<h2>Welcome to the ContentForge partner program!</h2>
			<p>Hi %s,</p>
			<p>Your partner application has been approved. You earn %.0f%% of every payment made by the customers you refer.</p>
			<p><a href="%s" style="background-color: #4CAF50; color: white; padding: 14px 20px; text-decoration: none; border-radius: 4px; display: inline-block;">Open your dashboard</a></p>
			<p>Thanks,<br>The ContentForge Team</p>
		</body>
		</html>
	`, p.DisplayName, p.CommissionRate*100, dashboardURL)

	plainText := fmt.Sprintf(`
Hi %s,

Your partner application has been approved. You earn %.0f%% of every payment made by the customers you refer.

Open your dashboard: %s

Thanks,
The ContentForge Team
	`, p.DisplayName, p.CommissionRate*100, dashboardURL)

	if s.useSendGrid {
		return s.sendViaSendGrid(p.Email, p.DisplayName, subject, body, plainText)
	}

	return s.logEmailToConsole(p.Email, p.DisplayName, subject, dashboardURL)
}

// NewReferral tells a partner that a customer signed up with their code
func (s *Service) NewReferral(_ context.Context, p *models.Partner, customer *models.CustomerRecord) error {
	dashboardURL := fmt.Sprintf("%s/partners/dashboard", s.baseURL)
	name := customer.DisplayName
	if name == "" {
		name = "A new customer"
	}

	subject := "New referral on ContentForge"
	body := fmt.Sprintf(`
		<html>
		<body>
			<h2>You have a new referral</h2>
			<p>Hi %s,</p>
			<p>%s just signed up using your code <strong>%s</strong>.</p>
			<p>You now have %d referred customers.</p>
			<p><a href="%s">See your referrals</a></p>
			<p>Thanks,<br>The ContentForge Team</p>
		</body>
		</html>
	`, p.DisplayName, name, customer.ReferralCode, p.TotalReferrals, dashboardURL)

	plainText := fmt.Sprintf(`
Hi %s,

%s just signed up using your code %s.
You now have %d referred customers.

See your referrals: %s

Thanks,
The ContentForge Team
	`, p.DisplayName, name, customer.ReferralCode, p.TotalReferrals, dashboardURL)

	if s.useSendGrid {
		return s.sendViaSendGrid(p.Email, p.DisplayName, subject, body, plainText)
	}

	return s.logEmailToConsole(p.Email, p.DisplayName, subject, dashboardURL)
}

// sendViaSendGrid sends email using SendGrid API
func (s *Service) sendViaSendGrid(toEmail, toName, subject, htmlBody, plainTextBody string) error {
	from := mail.NewEmail(s.fromName, s.fromEmail)
	to := mail.NewEmail(toName, toEmail)

	message := mail.NewSingleEmail(from, subject, to, plainTextBody, htmlBody)

	client := sendgrid.NewSendClient(s.sendGridKey)
	response, err := client.Send(message)
	if err != nil {
		log.Printf("❌ SendGrid error: %v", err)
		return fmt.Errorf("failed to send email: %w", err)
	}

	if response.StatusCode >= 400 {
		log.Printf("❌ SendGrid returned error status %d: %s", response.StatusCode, response.Body)
		return fmt.Errorf("sendgrid returned error status: %d", response.StatusCode)
	}

	log.Printf("✅ Email sent successfully to %s (SendGrid status: %d)", toEmail, response.StatusCode)
	return nil
}

// logEmailToConsole logs email details to console (development mode)
func (s *Service) logEmailToConsole(toEmail, toName, subject, actionURL string) error {
	log.Printf("📧 [EMAIL] %s", subject)
	log.Printf("   To: %s <%s>", toName, toEmail)
	log.Printf("   From: %s <%s>", s.fromName, s.fromEmail)
	log.Printf("   Action URL: %s", actionURL)
	log.Printf("   ⚠️  Email NOT sent (development mode)")
	return nil
}
