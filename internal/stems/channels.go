// Package stems maps separation output onto publishable channel folders:
// channel routing, stem definitions, composite mixing, and folder naming.
package stems

import (
	"fmt"

	"github.com/desertthunder/stemx/internal/shared"
)

// Channel is one of the destinations a processed track can be
// assembled for. The set is closed; unknown keys are rejected at parse
// time instead of silently routing nowhere.
type Channel int

const (
	ChannelMain Channel = iota
	ChannelAcapellas
	ChannelDrums
	ChannelSamples
)

// ParseChannel maps a config key to a Channel.
func ParseChannel(key string) (Channel, error) {
	switch key {
	case "main":
		return ChannelMain, nil
	case "acapellas":
		return ChannelAcapellas, nil
	case "drums":
		return ChannelDrums, nil
	case "samples":
		return ChannelSamples, nil
	default:
		return 0, fmt.Errorf("%w: %q", shared.ErrUnknownChannel, key)
	}
}

// ParseChannels maps config keys to Channels, failing on the first
// unknown key.
func ParseChannels(keys []string) ([]Channel, error) {
	channels := make([]Channel, 0, len(keys))
	for _, key := range keys {
		ch, err := ParseChannel(key)
		if err != nil {
			return nil, err
		}
		channels = append(channels, ch)
	}
	return channels, nil
}

// Key returns the config key for the channel.
func (c Channel) Key() string {
	switch c {
	case ChannelMain:
		return "main"
	case ChannelAcapellas:
		return "acapellas"
	case ChannelDrums:
		return "drums"
	case ChannelSamples:
		return "samples"
	default:
		return "unknown"
	}
}

// Label returns the display name used for the channel's folder.
func (c Channel) Label() string {
	switch c {
	case ChannelMain:
		return "Main"
	case ChannelAcapellas:
		return "Acapellas"
	case ChannelDrums:
		return "Drums"
	case ChannelSamples:
		return "Samples"
	default:
		return "Unknown"
	}
}

// Stems returns which stem types the channel exports.
func (c Channel) Stems() []StemType {
	switch c {
	case ChannelMain:
		return []StemType{StemInstrumental}
	case ChannelAcapellas:
		return []StemType{StemAcapella}
	case ChannelDrums:
		return []StemType{StemDrums}
	case ChannelSamples:
		return []StemType{StemAcapella, StemDrums, StemBass, StemMelody, StemInstrumental}
	default:
		return nil
	}
}
