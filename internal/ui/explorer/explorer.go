// Package explorer is a terminal browser for the constraints the engine
// sees through its cache.
package explorer

import (
	"context"
	"fmt"
	"sync"

	"github.com/gdamore/tcell/v2"
	"github.com/rivo/tview"

	"github.com/kadirbelkuyu/DBDDL/internal/schema"
)

var constraintHeaders = []string{"Column", "Kind", "Name", "Columns"}

// Run opens the explorer over ops and blocks until the user quits.
// Lookups go through the operations' constraint cache; 'r' invalidates the
// selected table and reads it again.
func Run(ctx context.Context, ops *schema.Operations, db string) error {
	var (
		mu     sync.Mutex
		tables []string
	)

	app := tview.NewApplication()
	list := tview.NewList().ShowSecondaryText(false)
	view := tview.NewTable().SetFixed(1, 0).SetSelectable(true, false)
	meta := tview.NewTextView().SetDynamicColors(true)

	list.AddItem("Loading tables…", "", 0, nil)
	meta.SetText(fmt.Sprintf("Reading %s (%s)…", db, ops.Dialect().Name()))

	render := func(table string, refresh bool) {
		queueUpdate(app, func() {
			meta.SetText(fmt.Sprintf("Loading %s …", table))
			view.Clear()
		})

		mu.Lock()
		if refresh {
			ops.Cache().Invalidate(db, table)
		}
		byColumn, err := ops.Cache().Lookup(ctx, db, table)
		state := ops.Cache().State(db, table)
		mu.Unlock()

		if err != nil {
			queueUpdate(app, func() {
				view.Clear()
				meta.SetText(fmt.Sprintf("[red]%v", err))
			})
			return
		}

		rows := constraintRows(byColumn)
		queueUpdate(app, func() {
			view.Clear()
			for i, h := range constraintHeaders {
				view.SetCell(0, i, tview.NewTableCell(h).SetSelectable(false).SetAlign(tview.AlignCenter).SetAttributes(tcell.AttrBold))
			}
			for r, row := range rows {
				for c, value := range row {
					view.SetCell(r+1, c, tview.NewTableCell(value))
				}
			}
			meta.SetText(fmt.Sprintf("[::b]%s[-:-:-]\nConstraints: %d\nCache: %s\nPress 'r' to re-read, 'q' to exit.",
				table, len(rows), state))
		})
	}

	selected := func(index int) (string, bool) {
		if index < 0 || index >= len(tables) {
			return "", false
		}
		return tables[index], true
	}

	list.SetChangedFunc(func(index int, _, _ string, _ rune) {
		if table, ok := selected(index); ok {
			go render(table, false)
		}
	})

	var loadOnce sync.Once
	startLoader := func() {
		go func() {
			mu.Lock()
			loaded, err := ListTables(ctx, ops, db)
			mu.Unlock()

			queueUpdate(app, func() {
				list.Clear()
				switch {
				case err != nil:
					list.AddItem("Failed to load tables", "", 0, nil)
					meta.SetText(fmt.Sprintf("[red]%v", err))
				case len(loaded) == 0:
					list.AddItem("No tables found", "", 0, nil)
					meta.SetText(fmt.Sprintf("No tables detected in %s", db))
				default:
					tables = loaded
					for _, table := range tables {
						list.AddItem(table, "", 0, nil)
					}
					list.SetCurrentItem(0)
					go render(tables[0], false)
				}
			})
		}()
	}

	app.SetBeforeDrawFunc(func(tcell.Screen) bool {
		loadOnce.Do(startLoader)
		return false
	})

	layout := tview.NewFlex().
		SetDirection(tview.FlexColumn).
		AddItem(list.SetBorder(true).SetTitle("Tables"), 30, 1, true).
		AddItem(tview.NewFlex().SetDirection(tview.FlexRow).
			AddItem(view.SetBorder(true).SetTitle("Constraints"), 0, 3, false).
			AddItem(meta.SetBorder(true).SetTitle("Details"), 6, 1, false),
			0, 3, false)

	app.SetRoot(layout, true).
		SetInputCapture(func(event *tcell.EventKey) *tcell.EventKey {
			if event.Key() != tcell.KeyRune {
				return event
			}
			switch event.Rune() {
			case 'q', 'Q':
				app.Stop()
				return nil
			case 'r', 'R':
				if table, ok := selected(list.GetCurrentItem()); ok {
					go render(table, true)
				}
				return nil
			}
			return event
		})

	if err := app.Run(); err != nil {
		return fmt.Errorf("TUI error: %w", err)
	}
	return nil
}
