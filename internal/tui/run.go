package tui

import (
	"context"
	"errors"

	tea "github.com/charmbracelet/bubbletea"
)

// RunWatch shows the tag view full screen until the user quits or ctx is
// cancelled.
func RunWatch(ctx context.Context, src Source, target string) error {
	program := tea.NewProgram(NewWatchModel(src, target), tea.WithAltScreen(), tea.WithContext(ctx))
	_, err := program.Run()
	if errors.Is(err, tea.ErrProgramKilled) && ctx.Err() != nil {
		return nil
	}
	return err
}
