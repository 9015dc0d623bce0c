package utils

import (
	"strings"

	"github.com/google/uuid"
)

const orderIDPrefix = "ord_"

func GetUUID() string {
	return uuid.New().String()
}

// NewOrderID returns a dash-free id that is safe inside QR payloads and
// lock keys.
func NewOrderID() string {
	return orderIDPrefix + strings.ReplaceAll(GetUUID(), "-", "")
}
