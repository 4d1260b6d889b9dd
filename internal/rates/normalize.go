package rates

import (
	"fmt"
	"strings"
	"time"

	"github.com/g-abate/rate-compare/internal/channels"
	"github.com/g-abate/rate-compare/internal/models"
)

// NormalizeError reports a raw payload that could not become a valid rate
// record. The orchestrator treats it like any other per-channel failure.
type NormalizeError struct {
	Channel models.Channel
	Msg     string
}

func (e *NormalizeError) Error() string {
	return fmt.Sprintf("normalize %s: %s", e.Channel, e.Msg)
}

func normErr(ch models.Channel, format string, args ...any) *NormalizeError {
	return &NormalizeError{Channel: ch, Msg: fmt.Sprintf(format, args...)}
}

// Normalize converts a raw channel payload into a canonical RateRecord for
// the given stay. When the payload carries fee components the total is
// derived as base price plus their sum; a payload carrying only a
// pre-computed total is accepted as-is without re-deriving components.
// LastUpdated is the adapter-reported extraction time, or the normalization
// time when absent.
func Normalize(ch models.Channel, propertyID, checkIn, checkOut string, raw *channels.RawRates) (*models.RateRecord, error) {
	if raw == nil {
		return nil, normErr(ch, "empty payload")
	}
	if _, err := time.Parse(models.DateFormat, checkIn); err != nil {
		return nil, normErr(ch, "unparseable check-in %q", checkIn)
	}
	if _, err := time.Parse(models.DateFormat, checkOut); err != nil {
		return nil, normErr(ch, "unparseable check-out %q", checkOut)
	}

	var base, total float64
	var fees models.Fees

	switch {
	case len(raw.Fees) > 0:
		if raw.BasePrice == nil {
			return nil, normErr(ch, "fee components without base price")
		}
		base = *raw.BasePrice
		if base < 0 {
			return nil, normErr(ch, "negative base price %v", base)
		}
		for name, v := range raw.Fees {
			if v < 0 {
				return nil, normErr(ch, "negative fee %q: %v", name, v)
			}
			switch strings.ToLower(strings.TrimSpace(name)) {
			case "cleaning":
				fees.Cleaning += v
			case "service":
				fees.Service += v
			case "taxes", "tax":
				fees.Taxes += v
			default:
				fees.Other += v
			}
		}
		total = base + fees.Sum()
	case raw.TotalPrice != nil:
		total = *raw.TotalPrice
		if total < 0 {
			return nil, normErr(ch, "negative total price %v", total)
		}
		if raw.BasePrice != nil {
			base = *raw.BasePrice
			if base < 0 {
				return nil, normErr(ch, "negative base price %v", base)
			}
		}
	case raw.BasePrice != nil:
		base = *raw.BasePrice
		if base < 0 {
			return nil, normErr(ch, "negative base price %v", base)
		}
		total = base
	default:
		return nil, normErr(ch, "payload carries no price")
	}

	currency := strings.ToUpper(strings.TrimSpace(raw.Currency))
	if currency == "" {
		currency = models.DefaultCurrency
	}

	available := true
	if raw.Available != nil {
		available = *raw.Available
	}

	updated := raw.ExtractedAt
	if updated.IsZero() {
		updated = time.Now().UTC()
	}

	return &models.RateRecord{
		Channel:      ch,
		PropertyID:   propertyID,
		CheckIn:      checkIn,
		CheckOut:     checkOut,
		BasePrice:    base,
		Fees:         fees,
		TotalPrice:   total,
		Currency:     currency,
		Availability: available,
		LastUpdated:  updated,
	}, nil
}
