package polly

import (
	"encoding/xml"
	"fmt"
	"math"
	"strings"

	"github.com/koscakluka/ema-voiceloop/core/texttospeech"
)

// buildSSML wraps text in prosody for the given voice. Neural voices do not
// support pitch, so it is only emitted when withPitch is set.
func buildSSML(text string, voice texttospeech.VoiceSettings, withPitch bool) string {
	var escaped strings.Builder
	_ = xml.EscapeText(&escaped, []byte(text))

	var attributes []string
	if withPitch && voice.Pitch != 1 {
		attributes = append(attributes, fmt.Sprintf(`pitch="%+d%%"`, percentDelta(voice.Pitch)))
	}
	if voice.Rate != 1 {
		attributes = append(attributes, fmt.Sprintf(`rate="%d%%"`, ratePercent(voice.Rate)))
	}
	if len(attributes) == 0 {
		return "<speak>" + escaped.String() + "</speak>"
	}
	return "<speak><prosody " + strings.Join(attributes, " ") + ">" + escaped.String() + "</prosody></speak>"
}

func percentDelta(multiplier float64) int {
	delta := int(math.Round((multiplier - 1) * 100))
	return max(-33, min(50, delta))
}

func ratePercent(multiplier float64) int {
	rate := int(math.Round(multiplier * 100))
	return max(20, min(200, rate))
}
