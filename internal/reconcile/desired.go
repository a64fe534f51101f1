package reconcile

// Desired is the persisted request the daemon keeps applied.
type Desired struct {
	Values  map[string]string `json:"values"`
	Profile string            `json:"profile,omitempty"`
	Source  string            `json:"source,omitempty"`
}

// IsEmpty reports whether nothing is desired.
func (d Desired) IsEmpty() bool {
	return len(d.Values) == 0
}

// Request converts the stored names into a validated request.
func (d Desired) Request() (Request, error) {
	return ParseRequest(d.Values)
}

// DesiredStore persists the desired request with a version that increments on
// every change.
type DesiredStore interface {
	Get(id string) (Desired, int64, error)
	Set(id string, value Desired) error
}

// DesiredID is the store key of the single desired request.
const DesiredID = "settings"
