package typedstream

// AttachmentPlaceholder is the reserved code point (OBJECT REPLACEMENT
// CHARACTER) that marks where an inline attachment sits in recovered
// message text.
const AttachmentPlaceholder = '\uFFFC'

// Placeholders returns the byte offsets of every attachment placeholder
// in text, in document order.
func Placeholders(text string) []int {
	var offsets []int
	for i, r := range text {
		if r == AttachmentPlaceholder {
			offsets = append(offsets, i)
		}
	}
	return offsets
}

// Binding pairs placeholders with the attachment rows fetched for the
// same message: the Nth placeholder binds to the Nth attachment by
// ascending ordinal. A count mismatch is reported, not raised; callers
// keep the bound prefix and account for the surplus.
type Binding struct {
	// Bound holds one placeholder byte offset per successfully bound
	// attachment, index-aligned with the attachment ordinals.
	Bound []int
	// UnboundAttachments counts attachment rows with no placeholder.
	UnboundAttachments int
	// UnresolvedPlaceholders counts placeholders with no attachment.
	UnresolvedPlaceholders int
}

// Mismatch reports whether placeholder and attachment counts disagreed.
func (b Binding) Mismatch() bool {
	return b.UnboundAttachments > 0 || b.UnresolvedPlaceholders > 0
}

// BindAttachments aligns placeholder offsets with an attachment count.
func BindAttachments(offsets []int, attachmentCount int) Binding {
	n := len(offsets)
	if attachmentCount < n {
		n = attachmentCount
	}
	return Binding{
		Bound:                  offsets[:n],
		UnboundAttachments:     attachmentCount - n,
		UnresolvedPlaceholders: len(offsets) - n,
	}
}
