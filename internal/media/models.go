// Package media defines the items a project catalogs and the playable
// output of the cut engine.
package media

import (
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/heimdex/heimdex-composer/internal/timeline"
)

// Kind tags an Item as a raw resource or a derived item.
type Kind int

const (
	// KindRaw is an imported file with intrinsic metadata and no base.
	KindRaw Kind = iota + 1
	// KindDerived plays another item through its own cut list.
	KindDerived
)

func (k Kind) String() string {
	switch k {
	case KindRaw:
		return "raw"
	case KindDerived:
		return "derived"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// ParseKind is the inverse of Kind.String.
func ParseKind(s string) (Kind, error) {
	switch s {
	case "raw":
		return KindRaw, nil
	case "derived":
		return KindDerived, nil
	default:
		return 0, fmt.Errorf("unknown item kind %q", s)
	}
}

func (k Kind) MarshalText() ([]byte, error) {
	return []byte(k.String()), nil
}

func (k *Kind) UnmarshalText(b []byte) error {
	v, err := ParseKind(string(b))
	if err != nil {
		return err
	}
	*k = v
	return nil
}

// State is the readiness of an item.
type State int

const (
	StateNotReady State = iota
	StateResolvingBase
	StatePropagatingMetadata
	StateReady
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateNotReady:
		return "not_ready"
	case StateResolvingBase:
		return "resolving_base"
	case StatePropagatingMetadata:
		return "propagating_metadata"
	case StateReady:
		return "ready"
	case StateFailed:
		return "failed"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// ParseState is the inverse of State.String.
func ParseState(s string) (State, error) {
	for st := StateNotReady; st <= StateFailed; st++ {
		if st.String() == s {
			return st, nil
		}
	}
	return 0, fmt.Errorf("unknown readiness state %q", s)
}

func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

func (s *State) UnmarshalText(b []byte) error {
	v, err := ParseState(string(b))
	if err != nil {
		return err
	}
	*s = v
	return nil
}

// Metadata is what readiness resolves for an item. For a derived item,
// Duration is its trimmed duration.
type Metadata struct {
	Duration  time.Duration `json:"duration"`
	Width     int           `json:"width"`
	Height    int           `json:"height"`
	FrameRate float64       `json:"frame_rate"`
}

// Item is one entry of a project: a raw resource or a derived item.
type Item struct {
	ID          string              `json:"id"`
	Kind        Kind                `json:"kind"`
	Name        string              `json:"name"`
	Path        string              `json:"path,omitempty"`
	BaseID      string              `json:"base_id,omitempty"`
	Cuts        []timeline.Interval `json:"cuts,omitempty"`
	CutsApplied bool                `json:"cuts_applied"`
	Metadata    Metadata            `json:"metadata"`
	State       State               `json:"state"`
	Error       string              `json:"error,omitempty"`
	Dirty       bool                `json:"dirty"`
	Revision    uint64              `json:"revision"`
	CreatedAt   time.Time           `json:"created_at"`
}

// NewRawResource returns an unregistered raw resource for the file at path.
func NewRawResource(path, name string) Item {
	if name == "" {
		name = filepath.Base(path)
	}
	return Item{
		ID:        NewID(),
		Kind:      KindRaw,
		Name:      name,
		Path:      path,
		CreatedAt: time.Now(),
	}
}

// NewDerivedItem returns an unregistered derived item playing baseID.
func NewDerivedItem(baseID, name string, cuts []timeline.Interval, applied bool) Item {
	return Item{
		ID:          NewID(),
		Kind:        KindDerived,
		Name:        name,
		BaseID:      baseID,
		Cuts:        timeline.Clone(cuts),
		CutsApplied: applied,
		Dirty:       true,
		CreatedAt:   time.Now(),
	}
}

// Clone returns a deep copy of the item.
func (it Item) Clone() Item {
	it.Cuts = timeline.Clone(it.Cuts)
	return it
}

// HasAppliedCuts reports whether the item's cut list changes its base.
func (it Item) HasAppliedCuts() bool {
	return it.Kind == KindDerived && it.CutsApplied && len(it.Cuts) > 0
}

// Segment is a playable span of one raw resource, expressed as trims off
// the resource's start and end.
type Segment struct {
	ResourceID       string        `json:"resource_id"`
	ResourceDuration time.Duration `json:"resource_duration"`
	TrimStart        time.Duration `json:"trim_start"`
	TrimEnd          time.Duration `json:"trim_end"`
}

// Length is the playable span of the segment.
func (s Segment) Length() time.Duration {
	return s.ResourceDuration - s.TrimStart - s.TrimEnd
}

// SourceIn is the first played instant on the resource's own timeline.
func (s Segment) SourceIn() time.Duration {
	return s.TrimStart
}

// SourceOut is the end of the played span on the resource's own timeline.
func (s Segment) SourceOut() time.Duration {
	return s.ResourceDuration - s.TrimEnd
}

// Composition is the ordered playable timeline of one item.
type Composition struct {
	ItemID   string        `json:"item_id"`
	Segments []Segment     `json:"segments"`
	Duration time.Duration `json:"duration"`
}

// Clone returns a copy whose segment slice can be modified freely.
func (c *Composition) Clone() *Composition {
	if c == nil {
		return nil
	}
	out := *c
	out.Segments = make([]Segment, len(c.Segments))
	copy(out.Segments, c.Segments)
	return &out
}

// Span sums the segment lengths.
func (c *Composition) Span() time.Duration {
	var total time.Duration
	for _, s := range c.Segments {
		total += s.Length()
	}
	return total
}

var VideoExtensions = map[string]bool{
	".mp4":  true,
	".mov":  true,
	".mkv":  true,
	".m4v":  true,
	".webm": true,
}

// IsVideoFile reports whether filename has a known video extension.
func IsVideoFile(filename string) bool {
	return VideoExtensions[strings.ToLower(filepath.Ext(filename))]
}

// NewID returns a random UUID string.
func NewID() string {
	return uuid.NewString()
}
