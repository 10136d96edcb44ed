package dashboard

import "github.com/charmbracelet/bubbles/help"

// HelpBindings returns the help.KeyMap for the given screen, providing
// context-aware help bar content. While a mutation is pending only quitting
// is offered.
func HelpBindings(screen Screen, confirming, pending bool) help.KeyMap {
	if pending {
		return PendingKeyMap()
	}
	switch screen {
	case ScreenDetail:
		if confirming {
			return ConfirmKeyMap()
		}
		return DetailKeyMap()
	case ScreenEdit:
		return EditKeyMap()
	default:
		return ListKeyMap()
	}
}
