package engine

import (
	"context"
	"sort"
	"strings"

	"github.com/m3rciful/marketbot/market"
	"github.com/m3rciful/marketbot/market/moderation"
	"github.com/m3rciful/marketbot/market/wizard"
)

// Menu labels shown on the reply keyboards.
const (
	LabelBrowse      = "Browse Products"
	LabelSell        = "Sell Item"
	LabelMyProducts  = "My Products"
	LabelContact     = "Contact Admin"
	LabelHelp        = "Help"
	LabelAdminPanel  = "Admin Panel"
	LabelExitAdmin   = "Exit Admin"
	LabelPending     = "Pending Products"
	LabelStats       = "Stats"
	LabelMessageUser = "Message User"
	LabelBroadcast   = "Broadcast"
	LabelMaintenance = "Maintenance"
)

// CommandInfo describes a slash command for transport menus.
type CommandInfo struct {
	Name        string
	Description string
	// Labels are menu texts that trigger the same command.
	Labels []string
	Admin  bool
}

type command struct {
	name        string
	description string
	labels      []string
	// admin restricts the command to administrators.
	admin bool
	// entry commands are short-circuited by maintenance.
	entry bool
	run   func(e *Engine, ctx context.Context, ev market.TextMessage) error
}

type commandTable struct {
	ordered []*command
	tokens  map[string]*command
}

func newCommandTable(cmds ...*command) *commandTable {
	t := &commandTable{tokens: make(map[string]*command)}
	for _, c := range cmds {
		t.ordered = append(t.ordered, c)
		t.tokens["/"+c.name] = c
		for _, l := range c.labels {
			t.tokens[l] = c
		}
	}
	return t
}

// lookup matches a slash command (with an optional @bot suffix and
// arguments) or an exact menu label.
func (t *commandTable) lookup(text string) (*command, bool) {
	text = strings.TrimSpace(text)
	if strings.HasPrefix(text, "/") {
		token := strings.Fields(text)[0]
		if at := strings.IndexByte(token, '@'); at > 0 {
			token = token[:at]
		}
		c, ok := t.tokens[strings.ToLower(token)]
		return c, ok
	}
	c, ok := t.tokens[text]
	return c, ok
}

func (t *commandTable) info() []CommandInfo {
	out := make([]CommandInfo, 0, len(t.ordered))
	for _, c := range t.ordered {
		if c.description == "" {
			continue
		}
		out = append(out, CommandInfo{
			Name:        c.name,
			Description: c.description,
			Labels:      append([]string(nil), c.labels...),
			Admin:       c.admin,
		})
	}
	sort.SliceStable(out, func(i, j int) bool { return !out[i].Admin && out[j].Admin })
	return out
}

// ChoiceKeys lists every button key the engine accepts.
func ChoiceKeys() []string {
	return []string{
		wizard.KeyCategory, wizard.KeyCancel,
		moderation.KeyApprove, moderation.KeyReject,
		KeyBuy, KeyDetails, KeyReply,
	}
}

func defaultCommands() *commandTable {
	return newCommandTable(
		&command{name: "start", description: "Open the marketplace", entry: true, run: (*Engine).cmdStart},
		&command{name: "browse", description: "Browse approved products", labels: []string{LabelBrowse}, entry: true, run: (*Engine).cmdBrowse},
		&command{name: "sell", description: "List an item for sale", labels: []string{LabelSell}, entry: true, run: (*Engine).cmdSell},
		&command{name: "myproducts", description: "Show your listings", labels: []string{LabelMyProducts}, entry: true, run: (*Engine).cmdMyProducts},
		&command{name: "contact", description: "Message the admins", labels: []string{LabelContact}, entry: true, run: (*Engine).cmdContact},
		&command{name: "help", description: "How the marketplace works", labels: []string{LabelHelp}, run: (*Engine).cmdHelp},
		&command{name: "cancel", description: "Cancel the current action", run: (*Engine).cmdCancel},
		&command{name: "admin", description: "Open the admin panel", labels: []string{LabelAdminPanel}, admin: true, run: (*Engine).cmdAdmin},
		&command{name: "exitadmin", labels: []string{LabelExitAdmin}, admin: true, run: (*Engine).cmdExitAdmin},
		&command{name: "pending", description: "Review pending products", labels: []string{LabelPending}, admin: true, run: (*Engine).cmdPending},
		&command{name: "stats", description: "Marketplace statistics", labels: []string{LabelStats}, admin: true, run: (*Engine).cmdStats},
		&command{name: "message", description: "Message a user", labels: []string{LabelMessageUser}, admin: true, run: (*Engine).cmdMessage},
		&command{name: "broadcast", description: "Message every user", labels: []string{LabelBroadcast}, admin: true, run: (*Engine).cmdBroadcast},
		&command{name: "maintenance", description: "Toggle maintenance mode", labels: []string{LabelMaintenance}, admin: true, run: (*Engine).cmdMaintenance},
	)
}

func (e *Engine) mainMenu(userID int64) [][]string {
	rows := [][]string{
		{LabelBrowse, LabelSell},
		{LabelMyProducts, LabelContact},
		{LabelHelp},
	}
	if e.isAdmin(userID) {
		rows[2] = append(rows[2], LabelAdminPanel)
	}
	return rows
}

func adminMenu() [][]string {
	return [][]string{
		{LabelPending, LabelStats},
		{LabelMessageUser, LabelBroadcast},
		{LabelMaintenance, LabelExitAdmin},
	}
}
