package storage

import "time"

// CameraOrientation describes how a printer's camera feed must be rotated
// and/or mirrored before display.
type CameraOrientation int

const (
	OrientationUp CameraOrientation = iota
	OrientationDown
	OrientationLeft
	OrientationRight
	OrientationUpMirrored
	OrientationDownMirrored
	OrientationLeftMirrored
	OrientationRightMirrored
)

var orientationNames = map[CameraOrientation]string{
	OrientationUp:            "up",
	OrientationDown:          "down",
	OrientationLeft:          "left",
	OrientationRight:         "right",
	OrientationUpMirrored:    "up-mirrored",
	OrientationDownMirrored:  "down-mirrored",
	OrientationLeftMirrored:  "left-mirrored",
	OrientationRightMirrored: "right-mirrored",
}

func (o CameraOrientation) String() string {
	if name, ok := orientationNames[o]; ok {
		return name
	}
	return "up"
}

// Mirrored reports whether the orientation includes a horizontal flip
func (o CameraOrientation) Mirrored() bool {
	return o >= OrientationUpMirrored && o <= OrientationRightMirrored
}

// Valid reports whether the value is one of the defined orientations
func (o CameraOrientation) Valid() bool {
	return o >= OrientationUp && o <= OrientationRightMirrored
}

// Printer is a stored printer-connection record. LocalID is assigned on
// insert and never changes; RemoteID and RemotePayload are empty until the
// record has been synced to the remote record store.
type Printer struct {
	LocalID           string            `json:"local_id"`
	RemoteID          string            `json:"remote_id,omitempty"`
	RemotePayload     []byte            `json:"remote_payload,omitempty"`
	Name              string            `json:"name"`
	Hostname          string            `json:"hostname"`
	APIKey            string            `json:"api_key"`
	Username          string            `json:"username,omitempty"`
	Password          string            `json:"password,omitempty"`
	Position          int               `json:"position"`
	IsDefault         bool              `json:"is_default"`
	NeedsRemoteUpdate bool              `json:"needs_remote_update"`
	LastModified      time.Time         `json:"last_modified"`
	SupportsSDCard    bool              `json:"supports_sd_card"`
	CameraOrientation CameraOrientation `json:"camera_orientation"`
	InvertX           bool              `json:"invert_x"`
	InvertY           bool              `json:"invert_y"`
	InvertZ           bool              `json:"invert_z"`
}

// NewPrinter creates a record with capability defaults. Live probing of the
// printer overwrites the capability flags later; until then SD card support
// is assumed and the camera feed is unrotated.
func NewPrinter(name, hostname, apiKey string) *Printer {
	return &Printer{
		Name:              name,
		Hostname:          hostname,
		APIKey:            apiKey,
		SupportsSDCard:    true,
		CameraOrientation: OrientationUp,
	}
}

// Synced reports whether the record has been linked to a remote identity
func (p *Printer) Synced() bool {
	return p.RemoteID != ""
}

// Clone returns a deep copy of the record
func (p *Printer) Clone() *Printer {
	if p == nil {
		return nil
	}
	clone := *p
	if p.RemotePayload != nil {
		clone.RemotePayload = make([]byte, len(p.RemotePayload))
		copy(clone.RemotePayload, p.RemotePayload)
	}
	return &clone
}

// Tombstone marks a synced record that was deleted locally and still needs
// its remote counterpart removed.
type Tombstone struct {
	RemoteID  string    `json:"remote_id"`
	DeletedAt time.Time `json:"deleted_at"`
}
