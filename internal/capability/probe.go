// Package capability inspects what the presenting host can do.
package capability

// Verdict is the capability result computed once per session start.
type Verdict struct {
	CameraAvailable bool `json:"camera_available"`
	XRAvailable     bool `json:"xr_available"`
}

// CanTrack reports whether an AR tracking scene may be attempted.
func (v Verdict) CanTrack() bool {
	return v.CameraAvailable
}

// Host exposes read-only capability flags. Implementations must not
// request camera permission.
type Host interface {
	CameraSupported() bool
	XRSupported() bool
}

// Flags is a Host backed by client-reported values.
type Flags struct {
	Camera bool `json:"camera"`
	XR     bool `json:"xr"`
}

func (f Flags) CameraSupported() bool { return f.Camera }
func (f Flags) XRSupported() bool     { return f.XR }

// Probe reads the host's capability flags. A nil host has no capabilities.
func Probe(h Host) Verdict {
	if h == nil {
		return Verdict{}
	}
	return Verdict{
		CameraAvailable: h.CameraSupported(),
		XRAvailable:     h.XRSupported(),
	}
}
