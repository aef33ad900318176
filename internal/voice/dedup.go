package voice

import "strings"

// Transcript is one recognition result forwarded to the text callback.
type Transcript struct {
	Text string

	// IsFinal is set when the engine reported an endpoint for this text.
	IsFinal bool
}

// Deduper suppresses blank results and exact repeats of the last forwarded
// text. It is confined to the worker goroutine.
type Deduper struct {
	last string
}

// Next returns the transcript to forward and true, or false when text is
// blank or identical to the previously forwarded text.
func (d *Deduper) Next(text string, final bool) (Transcript, bool) {
	if strings.TrimSpace(text) == "" || text == d.last {
		return Transcript{}, false
	}
	d.last = text
	return Transcript{Text: text, IsFinal: final}, true
}

// Reset forgets the last forwarded text so the next utterance may repeat it.
func (d *Deduper) Reset() { d.last = "" }
