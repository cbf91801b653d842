package live

import (
	"strconv"
	"strings"
)

// Wire types for the BidiGenerateContent websocket protocol. Field names
// follow the camelCase JSON the service speaks.

type setupMessage struct {
	Setup setupPayload `json:"setup"`
}

type setupPayload struct {
	Model             string           `json:"model"`
	GenerationConfig  generationConfig `json:"generationConfig"`
	SystemInstruction *content         `json:"systemInstruction,omitempty"`
}

type generationConfig struct {
	ResponseModalities []string      `json:"responseModalities"`
	SpeechConfig       *speechConfig `json:"speechConfig,omitempty"`
}

type speechConfig struct {
	VoiceConfig voiceConfig `json:"voiceConfig"`
}

type voiceConfig struct {
	PrebuiltVoiceConfig prebuiltVoiceConfig `json:"prebuiltVoiceConfig"`
}

type prebuiltVoiceConfig struct {
	VoiceName string `json:"voiceName"`
}

type content struct {
	Role  string `json:"role,omitempty"`
	Parts []part `json:"parts"`
}

type part struct {
	Text       string      `json:"text,omitempty"`
	InlineData *inlineData `json:"inlineData,omitempty"`
}

type inlineData struct {
	MimeType string `json:"mimeType"`
	Data     string `json:"data"` // base64
}

type realtimeInputMessage struct {
	RealtimeInput realtimeInput `json:"realtimeInput"`
}

type realtimeInput struct {
	MediaChunks []mediaChunk `json:"mediaChunks"`
}

type mediaChunk struct {
	MimeType string `json:"mimeType"`
	Data     string `json:"data"` // base64
}

type clientContentMessage struct {
	ClientContent clientContent `json:"clientContent"`
}

type clientContent struct {
	Turns        []content `json:"turns"`
	TurnComplete bool      `json:"turnComplete"`
}

// serverMessage is the union of inbound message shapes. Exactly one
// field is set per message.
type serverMessage struct {
	SetupComplete *struct{}      `json:"setupComplete,omitempty"`
	ServerContent *serverContent `json:"serverContent,omitempty"`
	GoAway        *struct{}      `json:"goAway,omitempty"`
}

type serverContent struct {
	ModelTurn    *content `json:"modelTurn,omitempty"`
	Interrupted  bool     `json:"interrupted,omitempty"`
	TurnComplete bool     `json:"turnComplete,omitempty"`
}

// pcmMimeType builds the outbound media MIME type, e.g.
// "audio/pcm;rate=16000".
func pcmMimeType(rate int) string {
	return "audio/pcm;rate=" + strconv.Itoa(rate)
}

// parsePCMRate extracts the declared sample rate from an inbound audio
// MIME type. Audio without a rate parameter defaults to 24000, the
// service's output rate.
func parsePCMRate(mimeType string) (int, bool) {
	if !strings.HasPrefix(mimeType, "audio/pcm") {
		return 0, false
	}
	for _, param := range strings.Split(mimeType, ";")[1:] {
		param = strings.TrimSpace(param)
		if v, ok := strings.CutPrefix(param, "rate="); ok {
			rate, err := strconv.Atoi(v)
			if err != nil || rate <= 0 {
				return 0, false
			}
			return rate, true
		}
	}
	return 24000, true
}
