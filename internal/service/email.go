package service

import (
	"context"
	"fmt"
	"html"

	"github.com/sendgrid/sendgrid-go"
	"github.com/sendgrid/sendgrid-go/helpers/mail"
	"gopkg.in/gomail.v2"

	"rentdesk-backend/internal/logger"
)

func lateFeeSubject(n LateFeeNotice) string {
	return fmt.Sprintf("Late fee applied to bill %s", n.BillNumber)
}

func lateFeeBody(name string, n LateFeeNotice) string {
	return fmt.Sprintf("Hello %s,\n\n"+
		"A late fee has been applied to your bill %s for %02d/%d, which was due on %s.\n\n"+
		"Days overdue: %d\nLate fee: %s\nTotal outstanding: %s\n\n"+
		"Please settle the outstanding amount as soon as possible to avoid further charges.\n\n"+
		"Best regards,\nThe RentDesk Team",
		name, n.BillNumber, n.Month, n.Year, n.DueDate.Format("2006-01-02"),
		n.Days, n.LateFee.StringFixed(2), n.TotalOutstanding.StringFixed(2))
}

type mailSender interface {
	DialAndSend(m ...*gomail.Message) error
}

type emailService struct {
	from   string
	sender mailSender
}

// NewEmailService sends mail through an SMTP server
func NewEmailService(host string, port int, username, password, from string) EmailService {
	return &emailService{
		from:   from,
		sender: gomail.NewDialer(host, port, username, password),
	}
}

func (s *emailService) SendLateFeeNotification(ctx context.Context, to, name string, notice LateFeeNotice) error {
	m := gomail.NewMessage()
	m.SetHeader("From", s.from)
	m.SetHeader("To", to)
	m.SetHeader("Subject", lateFeeSubject(notice))
	m.SetBody("text/plain", lateFeeBody(name, notice))

	logger.ExternalServiceCall("smtp", "send", "to", to, "bill", notice.BillNumber)
	err := s.sender.DialAndSend(m)
	logger.ExternalServiceResult("smtp", "send", err, "to", to)
	if err != nil {
		return fmt.Errorf("failed to send late fee email via gomail: %w", err)
	}
	return nil
}

type sendgridEmailService struct {
	fromEmail string
	fromName  string
	send      func(*mail.SGMailV3) (int, string, error)
}

// NewSendGridEmailService sends mail through the SendGrid v3 API
func NewSendGridEmailService(apiKey, fromEmail, fromName string) EmailService {
	client := sendgrid.NewSendClient(apiKey)
	return &sendgridEmailService{
		fromEmail: fromEmail,
		fromName:  fromName,
		send: func(m *mail.SGMailV3) (int, string, error) {
			resp, err := client.Send(m)
			if err != nil {
				return 0, "", err
			}
			return resp.StatusCode, resp.Body, nil
		},
	}
}

func (s *sendgridEmailService) SendLateFeeNotification(ctx context.Context, to, name string, notice LateFeeNotice) error {
	from := mail.NewEmail(s.fromName, s.fromEmail)
	recipient := mail.NewEmail(name, to)
	body := lateFeeBody(name, notice)
	message := mail.NewSingleEmail(from, lateFeeSubject(notice), recipient, body, "<pre>"+html.EscapeString(body)+"</pre>")

	logger.ExternalServiceCall("sendgrid", "send", "to", to, "bill", notice.BillNumber)
	status, body, err := s.send(message)
	if err == nil && status >= 400 {
		err = fmt.Errorf("sendgrid error: status %d, body: %s", status, body)
	}
	logger.ExternalServiceResult("sendgrid", "send", err, "to", to)
	if err != nil {
		return fmt.Errorf("failed to send late fee email via sendgrid: %w", err)
	}
	return nil
}
