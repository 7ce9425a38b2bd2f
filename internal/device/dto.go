package device

import "errors"

// RequestChangeDTO is the payload for POST /devices/request-change.
type RequestChangeDTO struct {
	DeviceID string `json:"device_id"`
}

func (d RequestChangeDTO) Validate() error {
	if d.DeviceID == "" {
		return errors.New("device_id is required")
	}
	return nil
}

// ReviewDTO carries the optional note on reject.
type ReviewDTO struct {
	Note string `json:"note,omitempty"`
}
