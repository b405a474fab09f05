package services

import (
	"fmt"
	"html"
	"log"
	"strings"

	"gopkg.in/gomail.v2"

	"krayotmarket/internal/models"
	"krayotmarket/internal/slots"
)

// mailSender is satisfied by *gomail.Dialer.
type mailSender interface {
	DialAndSend(m ...*gomail.Message) error
}

// EmailService tells the store owner about new orders.
type EmailService struct {
	sender mailSender
	from   string
	to     string
}

// NewEmailService returns a disabled service when SMTP credentials or the
// recipient are missing; it then only logs.
func NewEmailService(host string, port int, user, pass, notifyTo string) *EmailService {
	if user == "" || pass == "" || notifyTo == "" {
		log.Println("EmailService - SMTP settings missing, order emails disabled")
		return &EmailService{from: "noreply@krayot-market.local"}
	}
	return &EmailService{
		sender: gomail.NewDialer(host, port, user, pass),
		from:   user,
		to:     notifyTo,
	}
}

// Enabled reports whether emails are actually sent.
func (es *EmailService) Enabled() bool {
	return es.sender != nil
}

// NotifyNewOrder sends the order summary to the store owner.
func (es *EmailService) NotifyNewOrder(orderID string, p models.OrderPayload, totals models.Cart) error {
	if es.sender == nil {
		log.Printf("EmailService.NotifyNewOrder - Disabled, order %s not emailed", orderID)
		return nil
	}

	m := gomail.NewMessage()
	m.SetHeader("From", es.from)
	m.SetHeader("To", es.to)
	m.SetHeader("Subject", fmt.Sprintf("הזמנה חדשה #%s - %s", orderID, p.CustomerName))
	m.SetBody("text/html", orderEmailBody(orderID, p, totals))

	if err := es.sender.DialAndSend(m); err != nil {
		log.Printf("EmailService.NotifyNewOrder - Send failed: %v", err)
		return err
	}
	log.Printf("EmailService.NotifyNewOrder - Order %s emailed to %s", orderID, es.to)
	return nil
}

func orderEmailBody(orderID string, p models.OrderPayload, totals models.Cart) string {
	when := "מיידי"
	if p.DeliveryTimeSlot != nil {
		when = slots.FormatKey(*p.DeliveryTimeSlot)
	} else if p.ExpressDelivery {
		when = "משלוח אקספרס"
	}
	method := "מזומן"
	if p.PaymentMethod == models.PaymentCard {
		method = "כרטיס אשראי"
	}

	var rows strings.Builder
	for _, l := range p.Items {
		fmt.Fprintf(&rows, "<tr><td>%s</td><td>%d</td><td>₪%s</td></tr>",
			html.EscapeString(l.ProductName), l.Quantity, l.UnitPrice.StringFixed(2))
	}

	return fmt.Sprintf(`
		<div dir="rtl">
		<h2>הזמנה חדשה #%s</h2>
		<p>%s, %s</p>
		<p>%s, %s</p>
		<p>משלוח: %s | תשלום: %s</p>
		<table>%s</table>
		<p>דמי משלוח: ₪%s</p>
		<p><strong>סה"כ: ₪%s</strong></p>
		</div>
	`,
		html.EscapeString(orderID),
		html.EscapeString(p.CustomerName), html.EscapeString(p.CustomerPhone),
		html.EscapeString(p.DeliveryAddress), html.EscapeString(p.DeliveryCity),
		when, method, rows.String(),
		totals.DeliveryFee.StringFixed(2), totals.Total.StringFixed(2))
}
