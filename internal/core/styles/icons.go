package styles

// Status marks used across the phase views.
var (
	IconPending   = "○"
	IconRunning   = "◐"
	IconCompleted = "●"
	IconFailed    = "✗"
	IconSkipped   = "◌"

	IconSelected   = "[x]"
	IconUnselected = "[ ]"
	IconHint       = "[i]"

	IconCursor = "❯"
)
