// Package verdict holds the fake fish analysis: the Verdict record and the
// Generator that draws one from a filename plus a stream of random numbers.
// Nothing here touches I/O so every branch can be driven from tests.
package verdict

import (
	"bytes"
	"encoding/json"
	"fmt"
	"time"
)

// AgeCategory is one of six ordered life stages. Declaring it as an int with
// iota keeps the ordering explicit while String/MarshalText give the label.
type AgeCategory int

const (
	Newborn AgeCategory = iota
	Baby
	Young
	Adult
	Old
	AboutToDie
)

var categoryLabels = [...]string{
	Newborn:    "Newborn",
	Baby:       "Baby",
	Young:      "Young",
	Adult:      "Adult",
	Old:        "Old",
	AboutToDie: "About to Die",
}

// Categories lists every category in order.
func Categories() []AgeCategory {
	return []AgeCategory{Newborn, Baby, Young, Adult, Old, AboutToDie}
}

func (c AgeCategory) String() string {
	if c < Newborn || c > AboutToDie {
		return fmt.Sprintf("AgeCategory(%d)", int(c))
	}
	return categoryLabels[c]
}

// MarshalText lets encoding/json emit the label instead of the integer.
func (c AgeCategory) MarshalText() ([]byte, error) {
	if c < Newborn || c > AboutToDie {
		return nil, fmt.Errorf("invalid age category %d", int(c))
	}
	return []byte(categoryLabels[c]), nil
}

// UnmarshalText parses a label produced by MarshalText.
func (c *AgeCategory) UnmarshalText(text []byte) error {
	for i, label := range categoryLabels {
		if string(text) == label {
			*c = AgeCategory(i)
			return nil
		}
	}
	return fmt.Errorf("unknown age category %q", text)
}

// Cause is the inferred cause-of-death phrase.
type Cause string

const (
	CauseNone      Cause = "no lethal cause detected"
	CauseFisherman Cause = "caught by fisherman - now in the fisherman's kitchen (RIP)"
	CauseBird      Cause = "snatched by a kingfisher - swift and elegant (RIP)"
)

// Status phrases. The natural-death branch depends on the age category; the
// override phrases replace it when a filename keyword forces death.
const (
	StatusCritical       = "critical condition"
	StatusWeak           = "weak but alive"
	StatusPassedAway     = "passed away peacefully"
	StatusOldSwimming    = "old but swimming slowly"
	StatusUnexpected     = "unexpected death"
	StatusHappy          = "alive and swimming happily"
	StatusCaughtByFisher = "caught by fisherman (now part of dinner)"
	StatusSnatchedByBird = "snatched by kingfisher (gone)"
)

// MediaKind distinguishes still images from videos.
type MediaKind string

const (
	MediaImage MediaKind = "image"
	MediaVideo MediaKind = "video"
)

// Media references the uploaded file a verdict was generated for. Image is
// only populated for MediaImage and is used for certificate thumbnails.
type Media struct {
	Kind        MediaKind `json:"kind"`
	FileName    string    `json:"fileName"`
	ContentType string    `json:"contentType"`
	Image       []byte    `json:"-"`
}

// Verdict is the complete result of one fake analysis run. Values are never
// modified after Generate returns them.
type Verdict struct {
	ID          string      `json:"id"`
	AgeCategory AgeCategory `json:"ageCategory"`
	ExactAge    float64     `json:"exactAge"`
	Status      string      `json:"status"`
	Dead        bool        `json:"dead"`
	Cause       Cause       `json:"cause"`
	Keyword     string      `json:"keyword,omitempty"`
	Notes       string      `json:"notes"`
	GeneratedAt time.Time   `json:"generatedAt"`
	Media       Media       `json:"media"`
}

// TimestampLayout is the human-readable form of GeneratedAt.
const TimestampLayout = "Jan 2, 2006 3:04:05 PM"

// Timestamp renders GeneratedAt for display.
func (v Verdict) Timestamp() string {
	return v.GeneratedAt.Format(TimestampLayout)
}

// Clone returns a copy that shares no mutable memory with v.
func (v Verdict) Clone() Verdict {
	out := v
	out.Media.Image = bytes.Clone(v.Media.Image)
	return out
}

// MarshalJSON adds the formatted timestamp next to the raw time.
func (v Verdict) MarshalJSON() ([]byte, error) {
	type plain Verdict
	return json.Marshal(struct {
		plain
		Timestamp string `json:"timestamp"`
	}{plain: plain(v), Timestamp: v.Timestamp()})
}
