package commands

import (
	tele "gopkg.in/telebot.v4"
)

// Command is one slash command as the registry stores it.
type Command struct {
	Handler     tele.HandlerFunc
	Description string
	// AdminOnly commands are wrapped in the admin gate and only shown in
	// admin chats' command menus.
	AdminOnly bool
	// Hidden commands work but never appear in a menu.
	Hidden bool
	// Aliases are reply-keyboard labels (or bare words) that run the command.
	Aliases []string
}

// Public reports whether the command belongs in everyone's menu.
func (c Command) Public() bool {
	return !c.Hidden && !c.AdminOnly
}
