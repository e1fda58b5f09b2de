package certificate

import (
	"bytes"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"

	pdf "github.com/ledongthuc/pdf"

	"github.com/dharsanguruparan/pondvision/internal/verdict"
)

// ErrNotCertificate is returned when a PDF opens but does not carry the
// certificate layout.
var ErrNotCertificate = errors.New("not a pondvision certificate")

// Fields is what a rendered certificate states, read back from its text
// layer. Values are the sanitized text that was printed.
type Fields struct {
	Generated   string
	AgeCategory verdict.AgeCategory
	ExactAge    float64
	Status      string
	Cause       verdict.Cause
	Notes       string
	// Video is set when the video placeholder was printed instead of a
	// thumbnail.
	Video bool
}

// runTolerance is how far, in points, a glyph may sit from where the previous
// one ended and still belong to the same run of text.
const runTolerance = 0.5

// ParseCertificate reads the labelled rows and the timestamp back out of a
// certificate produced by Renderer. Wrapped values are rejoined with a single
// space.
func ParseCertificate(data []byte) (Fields, error) {
	runs, err := textRuns(data)
	if err != nil {
		return Fields{}, err
	}
	if len(runs) == 0 || runs[0] != titleText {
		return Fields{}, ErrNotCertificate
	}

	var (
		fields  Fields
		current string
		values  = make(map[string][]string, len(rowLabels))
	)
	for _, run := range runs[1:] {
		switch {
		case isRowLabel(run):
			current = run
			values[current] = values[current][:0]
		case run == videoNote:
			fields.Video = true
			current = ""
		case run == signatureText || run == footerText:
			current = ""
		case current != "":
			values[current] = append(values[current], run)
		case strings.HasPrefix(run, generatedPrefix):
			fields.Generated = strings.TrimPrefix(run, generatedPrefix)
		}
	}

	for _, label := range rowLabels {
		if _, ok := values[label]; !ok {
			return Fields{}, fmt.Errorf("%w: missing %q row", ErrNotCertificate, label)
		}
	}
	category, age, err := parseAge(strings.Join(values[labelAge], " "))
	if err != nil {
		return Fields{}, err
	}
	fields.AgeCategory = category
	fields.ExactAge = age
	fields.Status = strings.Join(values[labelStatus], " ")
	fields.Cause = verdict.Cause(strings.Join(values[labelCause], " "))
	fields.Notes = strings.Join(values[labelNotes], " ")
	return fields, nil
}

// ExtractText returns the certificate's text, one printed run per line.
func ExtractText(data []byte) (string, error) {
	runs, err := textRuns(data)
	if err != nil {
		return "", err
	}
	return strings.Join(runs, "\n"), nil
}

func isRowLabel(s string) bool {
	for _, label := range rowLabels {
		if s == label {
			return true
		}
	}
	return false
}

// parseAge splits "Old (4.2 yrs)" into its category and age.
func parseAge(value string) (verdict.AgeCategory, float64, error) {
	i := strings.LastIndex(value, " (")
	if i < 0 || !strings.HasSuffix(value, " yrs)") {
		return 0, 0, fmt.Errorf("%w: malformed age %q", ErrNotCertificate, value)
	}
	var category verdict.AgeCategory
	if err := category.UnmarshalText([]byte(value[:i])); err != nil {
		return 0, 0, fmt.Errorf("%w: %v", ErrNotCertificate, err)
	}
	age, err := strconv.ParseFloat(strings.TrimSuffix(value[i+2:], " yrs)"), 64)
	if err != nil {
		return 0, 0, fmt.Errorf("%w: malformed age %q", ErrNotCertificate, value)
	}
	return category, age, nil
}

// textRuns returns the printed strings of every page in drawing order. A run
// ends where the next glyph moves to another line or jumps horizontally.
func textRuns(data []byte) ([]string, error) {
	doc, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, fmt.Errorf("open certificate: %w", err)
	}
	var runs []string
	for page := 1; page <= doc.NumPage(); page++ {
		p := doc.Page(page)
		if p.V.IsNull() {
			continue
		}
		glyphs, err := pageGlyphs(p)
		if err != nil {
			return nil, fmt.Errorf("page %d: %w", page, err)
		}
		runs = append(runs, splitRuns(glyphs)...)
	}
	return runs, nil
}

// pageGlyphs turns the reader's panics on malformed content into errors.
func pageGlyphs(p pdf.Page) (glyphs []pdf.Text, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("read content: %v", r)
		}
	}()
	return p.Content().Text, nil
}

func splitRuns(glyphs []pdf.Text) []string {
	var (
		runs    []string
		builder strings.Builder
		prev    pdf.Text
		started bool
	)
	flush := func() {
		if s := strings.TrimSpace(builder.String()); s != "" {
			runs = append(runs, s)
		}
		builder.Reset()
	}
	for _, g := range glyphs {
		if g.S == "\n" {
			flush()
			continue
		}
		if started && (math.Abs(g.Y-prev.Y) > runTolerance || math.Abs(g.X-(prev.X+prev.W)) > runTolerance) {
			flush()
		}
		builder.WriteString(g.S)
		prev, started = g, true
	}
	flush()
	return runs
}
