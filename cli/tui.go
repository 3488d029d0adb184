// ABOUTME: TUI CLI command
// ABOUTME: Launches the interactive terminal dashboard
package cli

import (
	"database/sql"
	"fmt"
	"os"

	"golang.org/x/term"

	"github.com/restriden/simpli-immo-sub001/config"
	"github.com/restriden/simpli-immo-sub001/crm"
	"github.com/restriden/simpli-immo-sub001/sync"
	"github.com/restriden/simpli-immo-sub001/tui"
)

// TUICommand starts the interactive dashboard. Manual syncs run against
// the CRM directly, so no queue or worker is needed.
func TUICommand(database *sql.DB, cfg *config.Config) error {
	if !term.IsTerminal(int(os.Stdout.Fd())) {
		return fmt.Errorf("tui requires an interactive terminal (try 'immosync viz dashboard' for plain output)")
	}

	syncer := sync.NewSyncer(database, crm.NewClient(cfg), cfg)
	return tui.Run(database, syncer)
}
