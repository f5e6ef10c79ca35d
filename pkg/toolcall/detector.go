// Package toolcall accumulates a model's streamed output into a
// brace-balanced top-level JSON object and extracts a tool call from it,
// without using a general JSON library: the detector is a byte scanner with
// exactly two primitives (string-literal skip, brace-depth tracking),
// mirroring the no-JSON-library constraint this module applies to its
// schema parser as well.
package toolcall

// Detector accumulates bytes into a single top-level JSON object, skipping
// brace characters that appear inside string literals.
//
// Invariants: collecting implies depth >= 1; when not collecting and the
// detector has never seen a completed object since its last Reset, the
// buffer is empty and depth is 0. Immediately after Accumulate reports
// completion, collecting becomes false but the buffer still holds the
// completed object so Extract can read it -- Reset must be called before
// the detector is reused, which restores the idle invariant.
type Detector struct {
	buf        []byte
	collecting bool
	depth      int
	inString   bool
	escaped    bool
}

// New returns an idle Detector.
func New() *Detector {
	return &Detector{}
}

// Collecting reports whether the detector is mid-object.
func (d *Detector) Collecting() bool { return d.collecting }

// Depth reports the current brace depth (0 when idle).
func (d *Detector) Depth() int { return d.depth }

// Buffered returns the bytes accumulated since the opening '{', including
// the completed object after Accumulate has returned true and before
// Reset.
func (d *Detector) Buffered() []byte { return d.buf }

// Accumulate feeds chunk -- a run of decoded UTF-8 bytes -- into the
// detector. It returns true the moment a complete top-level object has just
// been closed. While not collecting, bytes are scanned for the first '{'
// and everything before it is discarded; while collecting, every byte is
// appended, with '"'-delimited string literals (honouring '\\' escapes)
// exempted from brace counting.
func (d *Detector) Accumulate(chunk []byte) bool {
	completed := false
	for _, b := range chunk {
		if !d.collecting {
			if b == '{' {
				d.collecting = true
				d.depth = 1
				d.inString = false
				d.escaped = false
				d.buf = append(d.buf[:0], b)
			}
			continue
		}

		d.buf = append(d.buf, b)

		if d.inString {
			switch {
			case d.escaped:
				d.escaped = false
			case b == '\\':
				d.escaped = true
			case b == '"':
				d.inString = false
			}
			continue
		}

		switch b {
		case '"':
			d.inString = true
		case '{':
			d.depth++
		case '}':
			d.depth--
			if d.depth == 0 {
				d.collecting = false
				completed = true
			}
		}
	}
	return completed
}

// Reset clears the buffer and returns the detector to its idle state,
// ready for the next turn or the next call within a turn.
func (d *Detector) Reset() {
	d.buf = d.buf[:0]
	d.depth = 0
	d.collecting = false
	d.inString = false
	d.escaped = false
}
