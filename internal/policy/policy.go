package policy

// Verdict is the outcome of a device/network evaluation.
type Verdict string

const (
	// VerdictAllow lets the attendance mark proceed with the bound device.
	VerdictAllow Verdict = "allow"
	// VerdictDenyNetwork blocks the request because the source address is
	// outside every configured allowlist, or could not be parsed.
	VerdictDenyNetwork Verdict = "deny_network"
	// VerdictDenyMissingDevice blocks the request because no device
	// identifier was supplied at all.
	VerdictDenyMissingDevice Verdict = "deny_missing_device"
	// VerdictReviewRequired blocks the request and points at the pending
	// device change request an admin must resolve first.
	VerdictReviewRequired Verdict = "review_required"
)

// Decision is the typed outcome returned to callers. Denials are data,
// not errors: only storage failures surface as errors from Evaluate.
type Decision struct {
	Verdict    Verdict `json:"verdict"`
	DeviceID   string  `json:"device_id,omitempty"`
	ResolvedIP string  `json:"resolved_ip,omitempty"`
	RequestID  int64   `json:"request_id,omitempty"`
}

func (d *Decision) Allowed() bool {
	return d.Verdict == VerdictAllow
}

// Request carries everything the evaluator needs about one attempted
// attendance action.
type Request struct {
	UserID     int64
	DeviceID   string
	SourceAddr string
	UserAgent  string
}
