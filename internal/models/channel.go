package models

// Channel identifies a booking platform acting as a rate source.
type Channel string

const (
	ChannelAirbnb  Channel = "airbnb"
	ChannelVrbo    Channel = "vrbo"
	ChannelBooking Channel = "booking"
)

// SupportedChannels is the channel allow-list, in default-preference order.
var SupportedChannels = []Channel{ChannelAirbnb, ChannelVrbo, ChannelBooking}

// SupportedChannel reports whether ch is on the allow-list.
func SupportedChannel(ch Channel) bool {
	for _, c := range SupportedChannels {
		if c == ch {
			return true
		}
	}
	return false
}
