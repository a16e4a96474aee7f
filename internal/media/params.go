package media

import (
	"encoding/json"
	"fmt"

	"github.com/pion/webrtc/v4"
)

// ConnectParameters is what a client sends to connect a transport.
type ConnectParameters struct {
	ICEParameters  webrtc.ICEParameters  `json:"iceParameters"`
	ICECandidates  []webrtc.ICECandidate `json:"iceCandidates"`
	DTLSParameters webrtc.DTLSParameters `json:"dtlsParameters"`
}

// ProduceParameters describes the single RTP stream a client sends.
type ProduceParameters struct {
	MimeType    string `json:"mimeType"`
	ClockRate   uint32 `json:"clockRate"`
	Channels    uint16 `json:"channels,omitempty"`
	SDPFmtpLine string `json:"sdpFmtpLine,omitempty"`
	PayloadType uint8  `json:"payloadType"`
	SSRC        uint32 `json:"ssrc"`
}

// ConsumeParameters describes the RTP stream a consumer will receive.
type ConsumeParameters struct {
	MimeType    string `json:"mimeType"`
	ClockRate   uint32 `json:"clockRate"`
	Channels    uint16 `json:"channels,omitempty"`
	SDPFmtpLine string `json:"sdpFmtpLine,omitempty"`
	PayloadType uint8  `json:"payloadType"`
	SSRC        uint32 `json:"ssrc"`
	ProducerID  string `json:"producerId"`
}

func (p ProduceParameters) codec() webrtc.RTPCodecCapability {
	return webrtc.RTPCodecCapability{
		MimeType:    p.MimeType,
		ClockRate:   p.ClockRate,
		Channels:    p.Channels,
		SDPFmtpLine: p.SDPFmtpLine,
	}
}

func (p ProduceParameters) validate() error {
	if p.MimeType == "" || p.ClockRate == 0 || p.SSRC == 0 {
		return fmt.Errorf("%w: mimeType, clockRate and ssrc are required", ErrInvalidParameters)
	}
	return nil
}

func decode(raw string, v interface{}) error {
	if raw == "" {
		return fmt.Errorf("%w: empty", ErrInvalidParameters)
	}
	if err := json.Unmarshal([]byte(raw), v); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidParameters, err)
	}
	return nil
}

func encode(v interface{}) (string, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return "", err
	}
	return string(data), nil
}
