// internal/services/notification_service.go
package services

import (
	"fmt"
	"net/smtp"

	"github.com/sirupsen/logrus"

	"github.com/addislicensing/backend/internal/config"
	"github.com/addislicensing/backend/internal/models"
)

// NotificationService sends decision emails. Delivery is always best
// effort: a dead SMTP relay must never block issuance or review.
type NotificationService struct {
	config *config.Config
}

func NewNotificationService(config *config.Config) *NotificationService {
	return &NotificationService{config: config}
}

func (s *NotificationService) SendApplicationDecision(user *models.User, app *models.Application, decision string, details string) {
	subject := fmt.Sprintf("Your %s application: %s", app.LicenseType, decision)
	body := fmt.Sprintf("Dear %s,\n\nYour application for a %s has been %s.\n",
		user.FullName(), app.LicenseType, decision)
	if details != "" {
		body += "\n" + details + "\n"
	}
	body += "\nLicensing Authority"

	s.send(user.Email, subject, body)
}

func (s *NotificationService) SendLicenseIssued(user *models.User, license *models.License) {
	subject := fmt.Sprintf("Your %s has been issued", license.LicenseType)
	body := fmt.Sprintf("Dear %s,\n\nYour %s (%s) has been issued.\n\nLicensing Authority",
		user.FullName(), license.LicenseType, license.NumberOrEmpty())

	s.send(user.Email, subject, body)
}

func (s *NotificationService) send(to, subject, body string) {
	if s.config.Email.SMTPUsername == "" || to == "" {
		return
	}

	msg := []byte(fmt.Sprintf("From: %s <%s>\r\nTo: %s\r\nSubject: %s\r\n\r\n%s",
		s.config.Email.FromName, s.config.Email.FromEmail, to, subject, body))

	addr := s.config.Email.SMTPHost + ":" + s.config.Email.SMTPPort
	auth := smtp.PlainAuth("", s.config.Email.SMTPUsername, s.config.Email.SMTPPassword, s.config.Email.SMTPHost)

	if err := smtp.SendMail(addr, auth, s.config.Email.FromEmail, []string{to}, msg); err != nil {
		logrus.WithError(err).WithField("to", to).Warn("Failed to send notification email")
	}
}
