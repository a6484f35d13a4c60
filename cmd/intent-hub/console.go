package main

import (
	"context"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"

	"github.com/free4inno/intent-hub/internal/core"
	"github.com/free4inno/intent-hub/internal/domain"
	"github.com/free4inno/intent-hub/internal/tui"
)

var consoleCmd = &cobra.Command{
	Use:   "console",
	Short: "Run the interactive operator console",
	RunE: func(cmd *cobra.Command, _ []string) error {
		log := newLogger()
		ctx := cmd.Context()

		_, manager, err := bootstrap(ctx, log)
		if err != nil {
			return err
		}
		// the console works against live components, so the index must be
		// populated before the first prediction
		if _, err := manager.Syncer().Sync(ctx, false); err != nil {
			return err
		}

		m := tui.New(&enginePort{manager: manager})
		_, err = tea.NewProgram(m).Run()
		return err
	},
}

// enginePort adapts the component manager to the console's view of the
// engine.
type enginePort struct {
	manager *core.Manager
}

func (e *enginePort) Predict(ctx context.Context, text string) ([]domain.Prediction, error) {
	return e.manager.Predictor().Predict(ctx, text)
}

func (e *enginePort) Overlaps(ctx context.Context, refresh bool) ([]domain.DiagnosticReport, error) {
	return e.manager.Diagnostics().Overlaps(ctx, refresh)
}

func (e *enginePort) Routes() []domain.Route {
	return e.manager.Store().List()
}
