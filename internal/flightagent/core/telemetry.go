package core

import (
	"encoding/base64"
	"time"
)

// Telemetry is a read-only snapshot of vehicle state.
type Telemetry struct {
	// Height above takeoff point in centimeters.
	Height int `json:"height"`

	// Battery percentage.
	Battery int `json:"battery"`

	Connected bool      `json:"connected"`
	Timestamp time.Time `json:"timestamp"`
}

// Airborne reports whether the vehicle is higher than epsilon centimeters.
func (t Telemetry) Airborne(epsilon int) bool {
	return t.Height > epsilon
}

// Ack is the vehicle's reply to an executed command.
type Ack struct {
	Reply     string    `json:"reply"`
	Telemetry Telemetry `json:"telemetry"`
}

// Frame is one encoded camera image.
type Frame struct {
	Data       []byte    `json:"-"`
	MIMEType   string    `json:"mimeType"`
	CapturedAt time.Time `json:"capturedAt"`
}

// Empty reports whether the frame carries no image data.
func (f Frame) Empty() bool {
	return len(f.Data) == 0
}

// DataURL encodes the frame as a base64 data URL.
func (f Frame) DataURL() string {
	mime := f.MIMEType
	if mime == "" {
		mime = "image/jpeg"
	}
	return "data:" + mime + ";base64," + base64.StdEncoding.EncodeToString(f.Data)
}
