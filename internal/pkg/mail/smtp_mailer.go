package mail

import (
	"fmt"
	"log"
	"net/smtp"

	"github.com/frameloft/FrameLoft/app/models"
	"github.com/frameloft/FrameLoft/internal/pkg/env"
)

// SendMail sends an email via SMTP
func SendMail(to string, subject string, body string) error {
	host := env.GetEnv("SMTP_HOST", "")
	port := env.GetEnv("SMTP_PORT", "")
	username := env.GetEnv("SMTP_USERNAME", "")
	password := env.GetEnv("SMTP_PASSWORD", "")
	sender := env.GetEnv("SMTP_SENDER", "")

	if sender == "" {
		sender = fmt.Sprintf("no-reply@%s", "localhost")
		log.Printf("SMTP_SENDER not set, using default sender: %s", sender)
	}

	var auth smtp.Auth
	if username != "" && password != "" {
		auth = smtp.PlainAuth("", username, password, host)
	}

	addr := fmt.Sprintf("%s:%s", host, port)

	msg := []byte(
		fmt.Sprintf("From: %s\r\nTo: %s\r\nSubject: %s\r\n", sender, to, subject) +
			"MIME-Version: 1.0\r\n" +
			"Content-Type: text/html; charset=UTF-8\r\n\r\n" +
			body,
	)

	err := smtp.SendMail(addr, auth, sender, []string{to}, msg)
	if err != nil {
		log.Printf("SMTP send error: %v", err)
	} else {
		log.Printf("Email sent to %s via %s", to, addr)
	}
	return err
}

// StorageAlertSender delivers storage threshold alerts by email. It
// satisfies the notifier's Sender interface.
type StorageAlertSender struct{}

func (StorageAlertSender) Send(account *models.Account, threshold int, usagePercent float64) error {
	subject := fmt.Sprintf("Your gallery storage is %d%% full", threshold)
	body := fmt.Sprintf(
		"<p>Hi %s,</p><p>Your account has used %.0f%% of its storage. "+
			"Consider removing unused photos or upgrading your plan.</p>",
		account.Name, usagePercent,
	)
	return SendMail(account.Email, subject, body)
}
