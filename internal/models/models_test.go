package models

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidateRateRecord_DefaultLaw(t *testing.T) {
	r := NewRateRecord()
	require.True(t, ValidateRateRecord(&r), "zero-override constructor must validate: %+v", r)
}

func TestValidateRateRecord_Malformed(t *testing.T) {
	tests := []struct {
		name     string
		mutate   func(*RateRecord)
		nilInput bool
	}{
		{name: "Nil", nilInput: true},
		{name: "UnknownChannel", mutate: func(r *RateRecord) { r.Channel = "craigslist" }},
		{name: "EmptyChannel", mutate: func(r *RateRecord) { r.Channel = "" }},
		{name: "EmptyPropertyID", mutate: func(r *RateRecord) { r.PropertyID = "" }},
		{name: "BlankPropertyID", mutate: func(r *RateRecord) { r.PropertyID = "   " }},
		{name: "BadCheckIn", mutate: func(r *RateRecord) { r.CheckIn = "2025/09/15" }},
		{name: "BadCheckOut", mutate: func(r *RateRecord) { r.CheckOut = "not-a-date" }},
		{name: "CheckOutEqualsCheckIn", mutate: func(r *RateRecord) { r.CheckOut = r.CheckIn }},
		{name: "CheckOutBeforeCheckIn", mutate: func(r *RateRecord) {
			r.CheckIn = "2025-09-22"
			r.CheckOut = "2025-09-15"
		}},
		{name: "NegativeBasePrice", mutate: func(r *RateRecord) { r.BasePrice = -1 }},
		{name: "NegativeTotalPrice", mutate: func(r *RateRecord) { r.TotalPrice = -0.01 }},
		{name: "NegativeCleaningFee", mutate: func(r *RateRecord) { r.Fees.Cleaning = -5 }},
		{name: "NegativeServiceFee", mutate: func(r *RateRecord) { r.Fees.Service = -5 }},
		{name: "NegativeTaxes", mutate: func(r *RateRecord) { r.Fees.Taxes = -5 }},
		{name: "NegativeOtherFee", mutate: func(r *RateRecord) { r.Fees.Other = -5 }},
		{name: "UnknownCurrency", mutate: func(r *RateRecord) { r.Currency = "XYZ" }},
		{name: "EmptyCurrency", mutate: func(r *RateRecord) { r.Currency = "" }},
		{name: "LowercaseCurrency", mutate: func(r *RateRecord) { r.Currency = "usd" }},
		{name: "ZeroLastUpdated", mutate: func(r *RateRecord) { r.LastUpdated = time.Time{} }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.nilInput {
				assert.False(t, ValidateRateRecord(nil))
				return
			}
			r := NewRateRecord(tt.mutate)
			assert.False(t, ValidateRateRecord(&r))
		})
	}
}

func TestValidateRateRecord_PermissiveTotal(t *testing.T) {
	// The validator does not reconcile the total against base plus fees.
	r := NewRateRecord(func(r *RateRecord) {
		r.BasePrice = 100
		r.Fees = Fees{Cleaning: 15}
		r.TotalPrice = 50
	})
	assert.True(t, ValidateRateRecord(&r))
}

func TestValidatePropertyConfig_DefaultLaw(t *testing.T) {
	c := NewPropertyConfig()
	require.True(t, ValidatePropertyConfig(&c), "zero-override constructor must validate: %+v", c)
}

func TestValidatePropertyConfig_Malformed(t *testing.T) {
	tests := []struct {
		name     string
		mutate   func(*PropertyConfig)
		nilInput bool
	}{
		{name: "Nil", nilInput: true},
		{name: "EmptyID", mutate: func(c *PropertyConfig) { c.ID = "" }},
		{name: "BlankName", mutate: func(c *PropertyConfig) { c.Name = "  " }},
		{name: "BadDisplayMode", mutate: func(c *PropertyConfig) { c.Settings.DisplayMode = "popup" }},
		{name: "BadTheme", mutate: func(c *PropertyConfig) { c.Settings.Theme = "sepia" }},
		{name: "UnknownChannelKey", mutate: func(c *PropertyConfig) { c.Channels["craigslist"] = "x" }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.nilInput {
				assert.False(t, ValidatePropertyConfig(nil))
				return
			}
			c := NewPropertyConfig(tt.mutate)
			assert.False(t, ValidatePropertyConfig(&c))
		})
	}
}

func TestValidatePropertyConfig_EmptyChannelsIsValid(t *testing.T) {
	c := NewPropertyConfig(func(c *PropertyConfig) { c.Channels = map[Channel]string{} })
	assert.True(t, ValidatePropertyConfig(&c))
}

func TestEnabledChannels_AllowListOrder(t *testing.T) {
	c := NewPropertyConfig(func(c *PropertyConfig) {
		c.Channels = map[Channel]string{
			ChannelBooking: "b1",
			ChannelAirbnb:  "a1",
		}
	})
	assert.Equal(t, []Channel{ChannelAirbnb, ChannelBooking}, c.EnabledChannels())
}
