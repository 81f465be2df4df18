package embed

// DefaultWindowTokens is the target token count per window passed to an
// embedder's context limit.
const DefaultWindowTokens = 512

// DefaultWindowOverlapTokens is the token overlap between consecutive
// windows, so a sentence spanning a window boundary still appears whole in
// at least one window.
const DefaultWindowOverlapTokens = 64

// DefaultDilutionStride sub-samples every Nth window from the tail of a very
// long document instead of embedding every window, keeping coverage
// roughly uniform across the whole document at bounded cost.
const DefaultDilutionStride = 4

// Window is a token-index range into a document, with the byte offsets it
// maps to once chunked.
type Window struct {
	Index      int
	TokenStart int
	TokenEnd   int // exclusive
}

// DilutedWindower splits a long document's token stream into overlapping
// windows, then keeps only every Nth window beyond a dense head section, so
// embedding a 50,000-token file costs roughly the same as one ~10,000-token
// file while still sampling content from its entire length. It operates on
// token indices only; the caller is responsible for mapping indices back to
// text (the existing chunker's tokenizer already exists for that and is not
// duplicated here).
type DilutedWindower struct {
	windowTokens  int
	overlapTokens int
	denseWindows  int // number of leading windows kept in full, undiluted
	stride        int
}

// NewDilutedWindower creates a windower with the given parameters. Zero
// values fall back to the package defaults.
func NewDilutedWindower(windowTokens, overlapTokens, denseWindows, stride int) *DilutedWindower {
	if windowTokens <= 0 {
		windowTokens = DefaultWindowTokens
	}
	if overlapTokens < 0 || overlapTokens >= windowTokens {
		overlapTokens = DefaultWindowOverlapTokens
	}
	if denseWindows <= 0 {
		denseWindows = 4
	}
	if stride <= 0 {
		stride = DefaultDilutionStride
	}
	return &DilutedWindower{
		windowTokens:  windowTokens,
		overlapTokens: overlapTokens,
		denseWindows:  denseWindows,
		stride:        stride,
	}
}

// Windows returns the full, non-diluted sequence of overlapping windows
// covering [0, totalTokens). Every token index is covered by at least one
// window, and consecutive windows overlap by overlapTokens.
func (d *DilutedWindower) Windows(totalTokens int) []Window {
	if totalTokens <= 0 {
		return nil
	}

	step := d.windowTokens - d.overlapTokens
	if step <= 0 {
		step = d.windowTokens
	}

	var windows []Window
	for start := 0; start < totalTokens; start += step {
		end := start + d.windowTokens
		if end > totalTokens {
			end = totalTokens
		}
		windows = append(windows, Window{
			Index:      len(windows),
			TokenStart: start,
			TokenEnd:   end,
		})
		if end == totalTokens {
			break
		}
	}
	return windows
}

// Diluted returns the subset of Windows(totalTokens) to actually embed: the
// first denseWindows are kept in full, and every stride-th window after
// that is kept, so coverage of the document's tail is sparse but uniform
// rather than truncated outright.
func (d *DilutedWindower) Diluted(totalTokens int) []Window {
	all := d.Windows(totalTokens)
	if len(all) <= d.denseWindows {
		return all
	}

	kept := make([]Window, 0, d.denseWindows+len(all)/d.stride+1)
	kept = append(kept, all[:d.denseWindows]...)
	for i := d.denseWindows; i < len(all); i += d.stride {
		kept = append(kept, all[i])
	}
	return kept
}
