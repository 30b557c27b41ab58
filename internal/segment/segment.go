// Package segment implements the text segmenter: it turns an arrival-order
// stream of text_delta fragments into a dense sequence of scheduling units.
package segment

// Unit is one segmentation record. UnitIndex is assigned densely and
// immutably at emission time.
type Unit struct {
	UnitIndex int
	Text      string
	Terminal  bool
}

// terminators is the punctuation set that triggers an immediate flush,
// covering both ASCII and the CJK full-width forms.
var terminators = map[rune]bool{
	'.': true, '!': true, '?': true, ';': true, ',': true,
	'。': true, '！': true, '？': true, '；': true, '，': true, '、': true, ':': true,
}

// Segmenter accumulates text_delta fragments and emits Units according to
// the rules: punctuation-bounded flush takes precedence over length-bounded
// flush; text_end always flushes the residual buffer (even empty) with
// Terminal=true. It never reorders characters — the concatenation of every
// emitted Unit.Text equals the concatenation of every fragment passed to
// Feed, in order.
type Segmenter struct {
	flushOnPunct  bool
	flushMinChars int

	buf       []rune
	nextIndex int
}

// New creates a Segmenter. flushMinChars is the length-bounded flush
// threshold (spec default 12); flushOnPunct enables rule 1 (spec default
// true).
func New(flushOnPunct bool, flushMinChars int) *Segmenter {
	return &Segmenter{
		flushOnPunct:  flushOnPunct,
		flushMinChars: flushMinChars,
	}
}

// Feed appends text to the accumulation buffer and returns any Units the new
// text causes to flush. A single Feed call may flush multiple units — e.g.
// "Hi. Bye." fed as one fragment flushes two.
func (s *Segmenter) Feed(text string) []Unit {
	var out []Unit
	for _, r := range text {
		s.buf = append(s.buf, r)
		if s.flushOnPunct && terminators[r] {
			out = append(out, s.flush(false))
			continue
		}
		if len(s.buf) >= s.flushMinChars {
			out = append(out, s.flush(false))
		}
	}
	return out
}

// End flushes the residual buffer (even if empty) as a terminal unit, per
// spec.md §4.2 rule 4. Call exactly once, after text_end.
func (s *Segmenter) End() Unit {
	return s.flush(true)
}

func (s *Segmenter) flush(terminal bool) Unit {
	u := Unit{
		UnitIndex: s.nextIndex,
		Text:      string(s.buf),
		Terminal:  terminal,
	}
	s.nextIndex++
	s.buf = s.buf[:0]
	return u
}
