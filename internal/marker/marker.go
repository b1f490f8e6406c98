// Package marker represents "the assistant is working on this span" as
// literal text in a buffer and resolves it later without assuming the
// buffer is unchanged.
//
// A marker is a block-quote callout: an open line carrying the request ID
// followed by the wrapped text re-emitted as quoted continuation lines.
// The block has no explicit closer; it ends at the first line that breaks
// the continuation rule.
package marker

import (
	"errors"
	"strings"

	"github.com/quillhq/quill/internal/buffer"
	"github.com/quillhq/quill/internal/log"
)

// openTagPrefix starts every marker's opening line.
const openTagPrefix = "> [!quill-working]"

// ErrMarkerNotFound is returned when the marker's delimiters can no longer
// be located near the anchor. Callers treat the pending result as orphaned.
var ErrMarkerNotFound = errors.New("marker not found")

// Config bounds the reconciler's scanning.
type Config struct {
	// ScanWindow is how many lines above and below the anchor are searched
	// for the opening line.
	ScanWindow int
	// MaxBlockLines caps the forward scan for the block end. This is a
	// safety valve against pathological input, not the primary stop rule.
	MaxBlockLines int
	// Separator is rendered between the original text and the response.
	Separator string
	// Logger may be nil to discard.
	Logger *log.Logger
}

const (
	defaultScanWindow    = 100
	defaultMaxBlockLines = 500
	defaultSeparator     = "---"
)

func (c Config) withDefaults() Config {
	if c.ScanWindow <= 0 {
		c.ScanWindow = defaultScanWindow
	}
	if c.MaxBlockLines <= 0 {
		c.MaxBlockLines = defaultMaxBlockLines
	}
	if c.Separator == "" {
		c.Separator = defaultSeparator
	}
	return c
}

// Record is the bookkeeping kept per injected marker: the request it
// belongs to, the text it wrapped, and where it was at injection time.
type Record struct {
	RequestID string
	Original  string
	Anchor    buffer.Position
}

// Span is a located marker region. From points at the start of the opening
// line, To at the end of the last continuation line.
type Span struct {
	From buffer.Position
	To   buffer.Position
}

// Reconciler injects and resolves marker regions.
type Reconciler struct {
	cfg Config
}

// NewReconciler creates a reconciler, filling in config defaults.
func NewReconciler(cfg Config) *Reconciler {
	return &Reconciler{cfg: cfg.withDefaults()}
}

// Inject wraps the current selection in a marker at the selection location
// and returns the record plus the span as of injection. The span is a hint:
// the buffer may drift before resolution.
func (r *Reconciler) Inject(buf buffer.Buffer, requestID, selection string) (*Record, Span) {
	anchor := buf.Cursor(buffer.CursorFrom)

	text := renderMarker(requestID, selection)
	// A marker must start at column zero for the block discipline to hold.
	if anchor.Ch > 0 {
		text = "\n" + text
		anchor = buffer.Position{Line: anchor.Line + 1}
	} else {
		anchor = buffer.Position{Line: anchor.Line}
	}

	buf.ReplaceSelection(text)

	markerLines := strings.Split(renderMarker(requestID, selection), "\n")
	last := markerLines[len(markerLines)-1]
	span := Span{
		From: anchor,
		To:   buffer.Position{Line: anchor.Line + len(markerLines) - 1, Ch: len(last)},
	}

	r.cfg.Logger.Debug(log.CatMarker, "marker injected", "request", requestID, "line", anchor.Line, "lines", len(markerLines))
	return &Record{RequestID: requestID, Original: selection, Anchor: anchor}, span
}

// renderMarker builds the literal marker text for a selection.
func renderMarker(requestID, selection string) string {
	lines := []string{openTagPrefix + " " + requestID}
	if selection != "" {
		for _, l := range strings.Split(selection, "\n") {
			lines = append(lines, "> "+l)
		}
	}
	return strings.Join(lines, "\n")
}

// lineClass is the classifier driving the block scanner.
type lineClass int

const (
	classOpen  lineClass = iota // another marker's opening line
	classBody                   // quoted continuation line
	classBreak                  // anything else: the block has ended
)

func classify(line string) lineClass {
	switch {
	case strings.HasPrefix(line, openTagPrefix):
		return classOpen
	case strings.HasPrefix(line, ">"):
		return classBody
	default:
		return classBreak
	}
}

// Locate finds the marker region for rec, scanning outward from the
// remembered anchor. It returns the resolved span, the text currently held
// between the delimiters, and whether the marker was found intact.
func (r *Reconciler) Locate(buf buffer.Buffer, rec *Record) (Span, string, bool) {
	lines := strings.Split(buf.Value(), "\n")

	openIdx, ok := r.findOpenLine(lines, rec)
	if !ok {
		return Span{}, "", false
	}

	endIdx, body := r.scanBlock(lines, openIdx)

	span := Span{
		From: buffer.Position{Line: openIdx},
		To:   buffer.Position{Line: endIdx, Ch: len(lines[endIdx])},
	}
	return span, body, true
}

// findOpenLine searches offsets 0, ±1, ±2, ... around the anchor line for
// this record's opening line.
func (r *Reconciler) findOpenLine(lines []string, rec *Record) (int, bool) {
	anchor := rec.Anchor.Line
	for offset := 0; offset <= r.cfg.ScanWindow; offset++ {
		for _, idx := range []int{anchor - offset, anchor + offset} {
			if idx < 0 || idx >= len(lines) {
				continue
			}
			line := lines[idx]
			if strings.HasPrefix(line, openTagPrefix) && strings.Contains(line, rec.RequestID) {
				return idx, true
			}
			if offset == 0 {
				break // -0 and +0 are the same line
			}
		}
	}
	return 0, false
}

// scanState tracks the block scanner.
type scanState int

const (
	stateInside scanState = iota
	stateClosed
)

// scanBlock walks forward from the opening line collecting continuation
// lines until the block's structural end. The MaxBlockLines bound exists
// only to stop on pathological input; the primary termination is the first
// non-continuing line or another marker's open line.
func (r *Reconciler) scanBlock(lines []string, openIdx int) (int, string) {
	endIdx := openIdx
	var body []string

	state := stateInside
	for i := openIdx + 1; i < len(lines) && state == stateInside; i++ {
		switch classify(lines[i]) {
		case classBody:
			endIdx = i
			body = append(body, unquote(lines[i]))
			if len(body) >= r.cfg.MaxBlockLines {
				state = stateClosed
			}
		case classOpen, classBreak:
			state = stateClosed
		}
	}

	return endIdx, strings.Join(body, "\n")
}

// unquote strips the block-quote prefix from a continuation line.
func unquote(line string) string {
	line = strings.TrimPrefix(line, ">")
	return strings.TrimPrefix(line, " ")
}

// ResolveSuccess replaces the marker region with the original text followed
// by the separator and the result. Interior edits made while the request
// was outstanding are overwritten: the delimiters take precedence.
func (r *Reconciler) ResolveSuccess(buf buffer.Buffer, rec *Record, result string) error {
	return r.resolve(buf, rec, result)
}

// ResolveError renders the failure inline at the marker location so it is
// visible where the answer would have appeared.
func (r *Reconciler) ResolveError(buf buffer.Buffer, rec *Record, errText string) error {
	return r.resolve(buf, rec, "⚠️ Error: "+errText)
}

func (r *Reconciler) resolve(buf buffer.Buffer, rec *Record, body string) error {
	span, _, ok := r.Locate(buf, rec)
	if !ok {
		r.cfg.Logger.Warn(log.CatMarker, "marker lost before resolution", "request", rec.RequestID)
		return ErrMarkerNotFound
	}

	buf.ReplaceRange(r.render(rec.Original, body), span.From, span.To)
	r.cfg.Logger.Debug(log.CatMarker, "marker resolved", "request", rec.RequestID, "line", span.From.Line)
	return nil
}

// render composes the replacement text: original preserved verbatim, the
// body below a visible separator. With no original, the body stands alone.
func (r *Reconciler) render(original, body string) string {
	if original == "" {
		return body
	}
	return original + "\n\n" + r.cfg.Separator + "\n\n" + body
}

// IsIntact reports whether the marker is still locatable. Pure check; the
// buffer is not mutated.
func (r *Reconciler) IsIntact(buf buffer.Buffer, rec *Record) bool {
	_, _, ok := r.Locate(buf, rec)
	return ok
}

// Remove restores the buffer to the pre-marker original text. Used when a
// request is abandoned before completion.
func (r *Reconciler) Remove(buf buffer.Buffer, rec *Record) error {
	span, _, ok := r.Locate(buf, rec)
	if !ok {
		return ErrMarkerNotFound
	}

	buf.ReplaceRange(rec.Original, span.From, span.To)
	r.cfg.Logger.Debug(log.CatMarker, "marker removed", "request", rec.RequestID)
	return nil
}
