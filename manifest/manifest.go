// Package manifest renders the daily dispatch sheet handed to drivers.
package manifest

import (
	"bytes"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"
	"time"

	"bulkhaul/models"
	"bulkhaul/slots"

	"github.com/phpdave11/gofpdf"
	"github.com/skip2/go-qrcode"
)

var ErrBadSignature = errors.New("manifest payload signature mismatch")

// Signer signs the check-in payload printed in each booking's QR code.
type Signer struct {
	secret []byte
}

func NewSigner(secret string) Signer {
	return Signer{secret: []byte(secret)}
}

func (s Signer) sign(data string) string {
	h := hmac.New(sha256.New, s.secret)
	h.Write([]byte(data))
	return base64.StdEncoding.EncodeToString(h.Sum(nil))
}

// Payload returns date|slotId|orderId|signature.
func (s Signer) Payload(date, slotID, orderID string) string {
	data := fmt.Sprintf("%s|%s|%s", date, slotID, orderID)
	return data + "|" + s.sign(data)
}

// Verify checks a scanned payload and returns its fields.
func (s Signer) Verify(payload string) (date, slotID, orderID string, err error) {
	parts := strings.Split(payload, "|")
	if len(parts) != 4 {
		return "", "", "", fmt.Errorf("%w: malformed payload", ErrBadSignature)
	}
	data := strings.Join(parts[:3], "|")
	if !hmac.Equal([]byte(parts[3]), []byte(s.sign(data))) {
		return "", "", "", ErrBadSignature
	}
	return parts[0], parts[1], parts[2], nil
}

const (
	pageHeight   = 297.0
	bottomMargin = 15.0
	qrSize       = 28.0
	rowHeight    = 34.0
)

// Render lays out every slot of day with one block per booking.
func Render(day models.DaySchedule, cal *slots.Calendar, signer Signer, generatedAt time.Time) ([]byte, error) {
	pdf := gofpdf.New("P", "mm", "A4", "")
	pdf.SetTitle("Dispatch manifest "+day.Date, false)
	pdf.AddPage()

	pdf.SetFont("Arial", "B", 16)
	pdf.Cell(0, 10, "Dispatch Manifest - "+day.Date)
	pdf.Ln(8)
	pdf.SetFont("Arial", "", 9)
	pdf.Cell(0, 6, "Generated "+generatedAt.Format("2006-01-02 15:04 MST"))
	pdf.Ln(10)

	imageOpts := gofpdf.ImageOptions{ImageType: "PNG"}

	for _, slot := range cal.Slots() {
		bookings := day.Slots[slot.ID]
		if pdf.GetY()+12 > pageHeight-bottomMargin {
			pdf.AddPage()
		}
		pdf.SetFont("Arial", "B", 12)
		pdf.SetFillColor(230, 230, 230)
		pdf.CellFormat(0, 8, fmt.Sprintf("%s  %s  (%d/%d booked)", slot.Label, slot.Range(), len(bookings), slot.Capacity), "", 1, "L", true, 0, "")
		pdf.Ln(2)

		if len(bookings) == 0 {
			pdf.SetFont("Arial", "I", 10)
			pdf.Cell(0, 6, "No deliveries")
			pdf.Ln(8)
			continue
		}

		for i, b := range bookings {
			if pdf.GetY()+rowHeight > pageHeight-bottomMargin {
				pdf.AddPage()
			}
			top := pdf.GetY()

			png, err := qrcode.Encode(signer.Payload(day.Date, slot.ID, b.OrderID), qrcode.Medium, 256)
			if err != nil {
				return nil, fmt.Errorf("qr for %s: %w", b.OrderID, err)
			}
			name := "qr-" + slot.ID + "-" + b.OrderID
			pdf.RegisterImageOptionsReader(name, imageOpts, bytes.NewReader(png))
			pdf.ImageOptions(name, 172, top, qrSize, qrSize, false, imageOpts, 0, "")

			pdf.SetFont("Arial", "B", 10)
			pdf.Cell(0, 5, fmt.Sprintf("%d. Order %s", i+1, b.OrderID))
			pdf.Ln(5)
			pdf.SetFont("Arial", "", 9)
			for _, line := range bookingLines(b, cal) {
				pdf.Cell(0, 4.5, line)
				pdf.Ln(4.5)
			}
			pdf.SetY(top + rowHeight)
		}
	}

	if err := pdf.Error(); err != nil {
		return nil, err
	}
	var buf bytes.Buffer
	if err := pdf.Output(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func bookingLines(b models.Booking, cal *slots.Calendar) []string {
	lines := []string{
		fmt.Sprintf("Customer: %s  %s", b.Customer.Name, b.Customer.Phone),
		"Address: " + b.Customer.Address,
		fmt.Sprintf("Load: %.2f t  Truck: %s  Status: %s", b.RequiredTons, b.TruckType, b.Status),
	}
	if b.PrecisionWindowID != "" {
		window := b.PrecisionWindowID
		for _, s := range cal.Slots() {
			if w, err := cal.PrecisionWindow(s.ID, b.PrecisionWindowID); err == nil {
				window = w.Range()
				break
			}
		}
		lines = append(lines, "Precision window: "+window)
	}
	if b.AssignedTruckID != "" || b.AssignedDriverID != "" {
		lines = append(lines, fmt.Sprintf("Assigned truck: %s  Driver: %s", orDash(b.AssignedTruckID), orDash(b.AssignedDriverID)))
	}
	if b.Notes != "" {
		lines = append(lines, "Notes: "+b.Notes)
	}
	return lines
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
