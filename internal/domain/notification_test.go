package domain

import (
	"errors"
	"strings"
	"testing"
)

func TestCanTransition(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		from Status
		to   Status
		want bool
	}{
		{"pending to queued", StatusPending, StatusQueued, true},
		{"pending to cancelled", StatusPending, StatusCancelled, true},
		{"pending to sending", StatusPending, StatusSending, false},
		{"queued to sending", StatusQueued, StatusSending, true},
		{"queued to cancelled", StatusQueued, StatusCancelled, true},
		{"queued to delivered", StatusQueued, StatusDelivered, false},
		{"sending to delivered", StatusSending, StatusDelivered, true},
		{"sending to failed", StatusSending, StatusFailed, true},
		{"sending to cancelled", StatusSending, StatusCancelled, true},
		{"sending back to pending for retry", StatusSending, StatusPending, true},
		{"delivered is terminal", StatusDelivered, StatusPending, false},
		{"failed is terminal", StatusFailed, StatusQueued, false},
		{"cancelled is terminal", StatusCancelled, StatusSending, false},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if got := CanTransition(tt.from, tt.to); got != tt.want {
				t.Fatalf("CanTransition(%s, %s) = %v, want %v", tt.from, tt.to, got, tt.want)
			}
		})
	}
}

func TestStatusIsTerminal(t *testing.T) {
	t.Parallel()

	for _, status := range []Status{StatusDelivered, StatusFailed, StatusCancelled} {
		if !status.IsTerminal() {
			t.Fatalf("%s should be terminal", status)
		}
	}
	for _, status := range []Status{StatusPending, StatusQueued, StatusSending} {
		if status.IsTerminal() {
			t.Fatalf("%s should not be terminal", status)
		}
	}
}

func TestNotificationValidate(t *testing.T) {
	t.Parallel()

	valid := Notification{
		TenantID:  "11111111-1111-1111-1111-111111111111",
		Channel:   ChannelSMS,
		Priority:  PriorityNormal,
		Recipient: "+905551112233",
		Content:   "hello world",
	}

	if err := valid.Validate(); err != nil {
		t.Fatalf("Validate() error = %v", err)
	}

	tests := []struct {
		name   string
		mutate func(n *Notification)
	}{
		{"missing tenant", func(n *Notification) { n.TenantID = " " }},
		{"missing recipient", func(n *Notification) { n.Recipient = "" }},
		{"missing content", func(n *Notification) { n.Content = "" }},
		{"invalid channel", func(n *Notification) { n.Channel = "PIGEON" }},
		{"invalid priority", func(n *Notification) { n.Priority = "URGENT" }},
		{"sms content too long", func(n *Notification) {
			n.Content = strings.Repeat("a", MaxSMSContent+1)
		}},
		{"whatsapp content too long", func(n *Notification) {
			n.Channel = ChannelWhatsApp
			n.Content = strings.Repeat("a", MaxWhatsAppContent+1)
		}},
		{"email content too long", func(n *Notification) {
			n.Channel = ChannelEmail
			n.Content = strings.Repeat("a", MaxEmailContent+1)
		}},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			n := valid
			tt.mutate(&n)
			err := n.Validate()
			if !errors.Is(err, ErrValidation) {
				t.Fatalf("Validate() error = %v, want ErrValidation", err)
			}
		})
	}
}

func TestNotificationValidateCountsRunes(t *testing.T) {
	t.Parallel()

	n := Notification{
		TenantID:  "tenant-1",
		Channel:   ChannelSMS,
		Priority:  PriorityNormal,
		Recipient: "+905551112233",
		Content:   strings.Repeat("ü", MaxSMSContent),
	}

	if err := n.Validate(); err != nil {
		t.Fatalf("Validate() error = %v, want nil for %d runes", err, MaxSMSContent)
	}
}

func TestRetriesExhausted(t *testing.T) {
	t.Parallel()

	n := Notification{MaxRetries: 3}
	for count := 0; count < 3; count++ {
		n.RetryCount = count
		if n.RetriesExhausted() {
			t.Fatalf("RetriesExhausted() = true at count %d, want false", count)
		}
	}

	n.RetryCount = 3
	if !n.RetriesExhausted() {
		t.Fatal("RetriesExhausted() = false at count 3, want true")
	}

	// Zero MaxRetries falls back to the default budget.
	zero := Notification{RetryCount: DefaultMaxRetries}
	if !zero.RetriesExhausted() {
		t.Fatal("RetriesExhausted() should use the default budget when unset")
	}
}

func TestParseChannelFromString(t *testing.T) {
	t.Parallel()

	channel, err := ParseChannelFromString(" sms ")
	if err != nil {
		t.Fatalf("ParseChannelFromString() error = %v", err)
	}
	if channel != ChannelSMS {
		t.Fatalf("channel = %s, want SMS", channel)
	}

	if _, err := ParseChannelFromString("fax"); !errors.Is(err, ErrValidation) {
		t.Fatalf("error = %v, want ErrValidation", err)
	}
}

func TestParsePriorityFromString(t *testing.T) {
	t.Parallel()

	priority, err := ParsePriorityFromString("instant")
	if err != nil {
		t.Fatalf("ParsePriorityFromString() error = %v", err)
	}
	if priority != PriorityInstant {
		t.Fatalf("priority = %s, want INSTANT", priority)
	}

	if _, err := ParsePriorityFromString(""); !errors.Is(err, ErrValidation) {
		t.Fatalf("error = %v, want ErrValidation", err)
	}
}
