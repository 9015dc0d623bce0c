package manifest

import (
	"bytes"
	"errors"
	"strings"
	"testing"
	"time"

	"bulkhaul/models"
	"bulkhaul/slots"
)

func TestSignerRoundTrip(t *testing.T) {
	s := NewSigner("manifest-secret")
	payload := s.Payload("2026-03-10", "morning", "o-1")

	date, slotID, orderID, err := s.Verify(payload)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if date != "2026-03-10" || slotID != "morning" || orderID != "o-1" {
		t.Fatalf("unexpected fields %s %s %s", date, slotID, orderID)
	}
}

func TestSignerRejectsTampering(t *testing.T) {
	s := NewSigner("manifest-secret")
	payload := s.Payload("2026-03-10", "morning", "o-1")

	tests := map[string]string{
		"other order":  strings.Replace(payload, "o-1", "o-2", 1),
		"other secret": NewSigner("nope").Payload("2026-03-10", "morning", "o-1"),
		"truncated":    "2026-03-10|morning|o-1",
	}
	for name, p := range tests {
		t.Run(name, func(t *testing.T) {
			if _, _, _, err := s.Verify(p); !errors.Is(err, ErrBadSignature) {
				t.Fatalf("expected ErrBadSignature, got %v", err)
			}
		})
	}
}

func TestRenderProducesPDF(t *testing.T) {
	day := models.DaySchedule{
		Date: "2026-03-10",
		Slots: map[string][]models.Booking{
			"morning": {
				{OrderID: "o-1", Customer: models.Customer{Name: "Dana", Address: "1 Main St"}, TruckType: "tandem", RequiredTons: 12, Status: models.BookingScheduled},
				{OrderID: "o-2", Customer: models.Customer{Name: "Lee"}, TruckType: "tri-axle", RequiredTons: 18, PrecisionWindowID: "morning_10", AssignedTruckID: "T-4", Status: models.BookingAssigned},
			},
		},
	}
	// Enough bookings to force a page break.
	for i := 0; i < 4; i++ {
		day.Slots["evening"] = append(day.Slots["evening"], models.Booking{OrderID: "e-" + string(rune('a'+i)), TruckType: "tandem", RequiredTons: 5, Notes: "Gate code 4411"})
	}

	out, err := Render(day, slots.DefaultCalendar(), NewSigner("k"), time.Date(2026, 3, 9, 17, 0, 0, 0, time.UTC))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !bytes.HasPrefix(out, []byte("%PDF-")) {
		t.Fatalf("output is not a PDF: %q", out[:min(len(out), 16)])
	}
}

func TestRenderEmptyDay(t *testing.T) {
	out, err := Render(models.DaySchedule{Date: "2026-03-11"}, slots.DefaultCalendar(), NewSigner("k"), time.Now())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(out) == 0 {
		t.Fatal("empty output")
	}
}
