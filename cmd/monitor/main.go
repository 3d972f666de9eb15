package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"strings"
	"sync/atomic"
	"time"

	"github.com/gdamore/tcell/v2"
	"github.com/rivo/tview"

	"escape_bench/internal/domain"
	sqlitestore "escape_bench/internal/store/sqlite"
)

func main() {
	dbPath := flag.String("db", "escape_bench.db", "sqlite database path")
	interval := flag.Duration("interval", 2*time.Second, "refresh interval")
	flag.Parse()

	store, err := sqlitestore.Open(*dbPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "open sqlite store: %v\n", err)
		os.Exit(1)
	}
	defer func() {
		_ = store.Close()
	}()

	// Migrate is idempotent, so the monitor works against a database
	// that no experiment has touched yet.
	if err := migrate(store); err != nil {
		fmt.Fprintf(os.Stderr, "migrate sqlite: %v\n", err)
		os.Exit(1)
	}

	app := tview.NewApplication()

	runsTable := tview.NewTable().
		SetBorders(false).
		SetSelectable(true, false)
	runsTable.SetTitle("Runs (Enter inspect, F5 refresh, F10 quit)").SetBorder(true)

	episodesTable := tview.NewTable().
		SetBorders(false).
		SetSelectable(false, false)
	episodesTable.SetTitle("Episodes").SetBorder(true)

	eventsView := tview.NewTextView().
		SetDynamicColors(true).
		SetWrap(false)
	eventsView.SetTitle("Room Events").SetBorder(true)

	statusView := tview.NewTextView().
		SetDynamicColors(true).
		SetWrap(false)
	statusView.SetBorder(true).SetTitle("Status")
	statusView.SetText(fmt.Sprintf(
		"Watching %s | shortcuts: F10 quit, F5 refresh, Tab switch focus",
		*dbPath,
	))

	right := tview.NewFlex().SetDirection(tview.FlexRow).
		AddItem(episodesTable, 0, 1, false).
		AddItem(eventsView, 0, 2, false)

	mainLayout := tview.NewFlex().
		AddItem(runsTable, 0, 1, true).
		AddItem(right, 0, 2, false)

	root := tview.NewFlex().SetDirection(tview.FlexRow).
		AddItem(mainLayout, 0, 12, true).
		AddItem(statusView, 3, 0, false)

	var selectedRunID string
	var lastRuns []domain.RunRecord
	var detailsVersion uint64

	setStatusUI := func(msg string) {
		statusView.SetText(msg)
	}

	refreshRuns := func() {
		runs, err := listRuns(store, 100)
		if err != nil {
			app.QueueUpdateDraw(func() {
				runsTable.Clear()
				runsTable.SetCell(0, 0, tview.NewTableCell(fmt.Sprintf("load error: %v", err)).SetTextColor(tview.Styles.ContrastSecondaryTextColor))
			})
			return
		}
		lastRuns = runs
		app.QueueUpdateDraw(func() {
			renderRunsTable(runsTable, runs, selectedRunID)
		})
	}

	refreshDetailsAsync := func(runID string) {
		if strings.TrimSpace(runID) == "" {
			return
		}
		version := atomic.AddUint64(&detailsVersion, 1)

		go func(selected string, v uint64) {
			type episodeResult struct {
				items []domain.EpisodeRecord
				err   error
			}
			type eventResult struct {
				items []domain.RoomEvent
				err   error
			}

			episodeCh := make(chan episodeResult, 1)
			eventCh := make(chan eventResult, 1)

			go func() {
				items, err := listEpisodes(store, selected)
				episodeCh <- episodeResult{items: items, err: err}
			}()
			go func() {
				items, err := listRoomEvents(store, selected, 200)
				eventCh <- eventResult{items: items, err: err}
			}()

			episodeRes := <-episodeCh
			eventRes := <-eventCh

			if atomic.LoadUint64(&detailsVersion) != v {
				return
			}
			app.QueueUpdateDraw(func() {
				if selected != selectedRunID {
					return
				}
				if episodeRes.err != nil {
					episodesTable.Clear()
					episodesTable.SetCell(0, 0, tview.NewTableCell(fmt.Sprintf("load error: %v", episodeRes.err)))
				} else {
					renderEpisodesTable(episodesTable, episodeRes.items)
				}
				if eventRes.err != nil {
					eventsView.SetText(fmt.Sprintf("error: %v", eventRes.err))
				} else {
					eventsView.SetText(renderEvents(eventRes.items))
				}
			})
		}(runID, version)
	}

	runsTable.SetSelectedFunc(func(row, _ int) {
		if row <= 0 || row > len(lastRuns) {
			return
		}
		selectedRunID = lastRuns[row-1].ID
		refreshDetailsAsync(selectedRunID)
	})

	app.SetInputCapture(func(event *tcell.EventKey) *tcell.EventKey {
		switch event.Key() {
		case tcell.KeyF10:
			app.Stop()
			return nil
		case tcell.KeyF5:
			refreshRuns()
			refreshDetailsAsync(selectedRunID)
			setStatusUI("Manual refresh complete")
			return nil
		case tcell.KeyTAB:
			if app.GetFocus() == runsTable {
				app.SetFocus(episodesTable)
			} else {
				app.SetFocus(runsTable)
			}
			return nil
		case tcell.KeyEscape:
			app.SetFocus(runsTable)
			return nil
		}
		return event
	})

	go func() {
		ticker := time.NewTicker(*interval)
		defer ticker.Stop()

		refreshRuns()
		for _, run := range lastRuns {
			if run.FinishedAt == nil {
				selectedRunID = run.ID
				break
			}
		}
		if selectedRunID == "" && len(lastRuns) > 0 {
			selectedRunID = lastRuns[0].ID
		}
		if selectedRunID != "" {
			refreshDetailsAsync(selectedRunID)
		}

		for range ticker.C {
			refreshRuns()
			if selectedRunID == "" && len(lastRuns) > 0 {
				selectedRunID = lastRuns[0].ID
			}
			refreshDetailsAsync(selectedRunID)
		}
	}()

	if err := app.SetRoot(root, true).EnableMouse(true).SetFocus(runsTable).Run(); err != nil {
		fmt.Fprintf(os.Stderr, "monitor failed: %v\n", err)
		os.Exit(1)
	}
}

func migrate(store *sqlitestore.Store) error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return store.Migrate(ctx)
}

func listRuns(store *sqlitestore.Store, limit int) ([]domain.RunRecord, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return store.ListRuns(ctx, limit)
}

func listEpisodes(store *sqlitestore.Store, runID string) ([]domain.EpisodeRecord, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return store.ListEpisodes(ctx, runID)
}

func listRoomEvents(store *sqlitestore.Store, runID string, limit int) ([]domain.RoomEvent, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return store.ListRoomEvents(ctx, runID, limit)
}

func renderRunsTable(table *tview.Table, runs []domain.RunRecord, selectedRunID string) {
	table.Clear()
	headers := []string{"Run", "Room", "Model", "Condition", "Eps", "Success", "Started", "Finished"}
	for i, h := range headers {
		table.SetCell(0, i, tview.NewTableCell(h).SetSelectable(false).SetAttributes(tcell.AttrBold))
	}
	for i, r := range runs {
		row := i + 1
		finished := "running"
		if r.FinishedAt != nil {
			finished = r.FinishedAt.Local().Format("15:04:05")
		}
		success := "-"
		if r.SuccessRate != nil {
			success = fmt.Sprintf("%.0f%%", *r.SuccessRate*100)
		}
		table.SetCell(row, 0, tview.NewTableCell(shortID(r.ID)))
		table.SetCell(row, 1, tview.NewTableCell(trimLine(r.RoomID, 24)))
		table.SetCell(row, 2, tview.NewTableCell(trimLine(r.Model, 24)))
		table.SetCell(row, 3, tview.NewTableCell(conditionLabel(r)))
		table.SetCell(row, 4, tview.NewTableCell(fmt.Sprintf("%d", r.Episodes)))
		table.SetCell(row, 5, tview.NewTableCell(success))
		table.SetCell(row, 6, tview.NewTableCell(r.StartedAt.Local().Format("15:04:05")))
		table.SetCell(row, 7, tview.NewTableCell(finished))
		if r.ID == selectedRunID {
			table.Select(row, 0)
		}
	}
}

func renderEpisodesTable(table *tview.Table, episodes []domain.EpisodeRecord) {
	table.Clear()
	headers := []string{"Episode", "Status", "Steps", "Wrong", "Error"}
	for i, h := range headers {
		table.SetCell(0, i, tview.NewTableCell(h).SetSelectable(false).SetAttributes(tcell.AttrBold))
	}
	for i, ep := range episodes {
		row := i + 1
		table.SetCell(row, 0, tview.NewTableCell(fmt.Sprintf("%d", ep.Episode)))
		table.SetCell(row, 1, tview.NewTableCell(string(ep.Status)))
		table.SetCell(row, 2, tview.NewTableCell(fmt.Sprintf("%d", ep.StepsTaken)))
		table.SetCell(row, 3, tview.NewTableCell(fmt.Sprintf("%d", ep.WrongPasswordAttempts)))
		table.SetCell(row, 4, tview.NewTableCell(trimLine(ep.Error, 48)))
	}
}

func renderEvents(items []domain.RoomEvent) string {
	if len(items) == 0 {
		return "No room events"
	}
	var b strings.Builder
	for _, ev := range items {
		b.WriteString(fmt.Sprintf(
			"%s ep=%d t=%d %s %s",
			ev.CreatedAt.Local().Format("15:04:05"),
			ev.Episode,
			ev.Timestep,
			ev.AgentID,
			ev.Kind,
		))
		if ev.ObjectID != "" {
			b.WriteString(" " + ev.ObjectID)
		}
		b.WriteString("\n  " + trimLine(ev.Detail, 120) + "\n")
	}
	return b.String()
}

func conditionLabel(r domain.RunRecord) string {
	var parts []string
	if r.Adversary {
		label := "adv"
		if r.AdversaryStyle != "" {
			label = "adv:" + string(r.AdversaryStyle)
		}
		parts = append(parts, label)
	}
	if r.Reputation {
		parts = append(parts, "rep")
	}
	if r.Gossip {
		parts = append(parts, "gossip")
	}
	if len(parts) == 0 {
		return "baseline"
	}
	return strings.Join(parts, "+")
}

func trimLine(s string, limit int) string {
	if len(s) <= limit {
		return s
	}
	return s[:limit-3] + "..."
}

func shortID(v string) string {
	if len(v) <= 8 {
		return v
	}
	return v[:8]
}
