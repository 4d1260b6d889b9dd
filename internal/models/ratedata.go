package models

import (
	"strings"
	"time"
)

// DateFormat is the calendar date layout used for check-in/check-out fields.
const DateFormat = "2006-01-02"

// DefaultCurrency is the base reference currency.
const DefaultCurrency = "USD"

// supportedCurrencies is the currency allow-list.
var supportedCurrencies = map[string]bool{
	"USD": true,
	"EUR": true,
	"GBP": true,
	"CAD": true,
	"AUD": true,
}

// SupportedCurrency reports whether code is on the currency allow-list.
func SupportedCurrency(code string) bool {
	return supportedCurrencies[code]
}

// Fees holds the named fee components of a quote.
type Fees struct {
	Cleaning float64 `json:"cleaning"`
	Service  float64 `json:"service"`
	Taxes    float64 `json:"taxes"`
	Other    float64 `json:"other"`
}

// Sum returns the total of all fee components.
func (f Fees) Sum() float64 {
	return f.Cleaning + f.Service + f.Taxes + f.Other
}

// RateRecord is one channel's quote for one stay. Records are immutable once
// validated; a fresher quote for the same channel/property/stay supersedes
// the old one rather than mutating it.
type RateRecord struct {
	Channel      Channel   `json:"channel"`
	PropertyID   string    `json:"property_id"`
	CheckIn      string    `json:"check_in"`
	CheckOut     string    `json:"check_out"`
	BasePrice    float64   `json:"base_price"`
	Fees         Fees      `json:"fees"`
	TotalPrice   float64   `json:"total_price"`
	Currency     string    `json:"currency"`
	Availability bool      `json:"availability"`
	LastUpdated  time.Time `json:"last_updated"`
}

// NewRateRecord returns a fully populated default record with the supplied
// overrides applied. With no overrides the result always passes
// ValidateRateRecord.
func NewRateRecord(overrides ...func(*RateRecord)) RateRecord {
	today := time.Now().UTC()
	r := RateRecord{
		Channel:      SupportedChannels[0],
		PropertyID:   "property",
		CheckIn:      today.Format(DateFormat),
		CheckOut:     today.AddDate(0, 0, 1).Format(DateFormat),
		Currency:     DefaultCurrency,
		Availability: true,
		LastUpdated:  today,
	}
	for _, o := range overrides {
		o(&r)
	}
	return r
}

// ValidateRateRecord is a total predicate over candidate rate records. It
// returns false for nil or any malformed value and never panics; malformed
// input is a normal case, not an exception.
//
// It enforces presence and non-negativity of the monetary fields, but does
// not reconcile TotalPrice against BasePrice plus fee components.
func ValidateRateRecord(r *RateRecord) bool {
	if r == nil {
		return false
	}
	if !SupportedChannel(r.Channel) {
		return false
	}
	if strings.TrimSpace(r.PropertyID) == "" {
		return false
	}
	in, err := time.Parse(DateFormat, r.CheckIn)
	if err != nil {
		return false
	}
	out, err := time.Parse(DateFormat, r.CheckOut)
	if err != nil {
		return false
	}
	if !out.After(in) {
		return false
	}
	if r.BasePrice < 0 || r.TotalPrice < 0 {
		return false
	}
	if r.Fees.Cleaning < 0 || r.Fees.Service < 0 || r.Fees.Taxes < 0 || r.Fees.Other < 0 {
		return false
	}
	if !SupportedCurrency(r.Currency) {
		return false
	}
	if r.LastUpdated.IsZero() {
		return false
	}
	return true
}
