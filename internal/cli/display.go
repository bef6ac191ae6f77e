// Package cli renders store contents and sync state for the terminal.
package cli

import (
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"golang.org/x/term"

	"gomarks/backend"
	"gomarks/backend/sqlite"
	backendsync "gomarks/backend/sync"
)

var (
	headerStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("39"))
	nameStyle   = lipgloss.NewStyle().Bold(true)
	dimStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("241"))
	okStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("42"))
	warnStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("214"))
	errStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("196"))
	boxStyle    = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).BorderForeground(lipgloss.Color("39")).Padding(0, 1)
)

// GetTerminalWidth returns the current terminal width, defaulting to 80 if unable to detect
func GetTerminalWidth() int {
	width, _, err := term.GetSize(int(os.Stdout.Fd()))
	if err != nil {
		return 80
	}
	return width
}

// boxWidth clamps the terminal width for readability
func boxWidth() int {
	w := GetTerminalWidth() - 2
	if w < 40 {
		w = 40
	}
	if w > 100 {
		w = 100
	}
	return w
}

// StatusBadge renders a sync status as a short colored marker
func StatusBadge(status backend.SyncStatus) string {
	switch status {
	case backend.StatusSynced:
		return okStyle.Render("✓")
	case backend.StatusPending:
		return warnStyle.Render("↑")
	case backend.StatusSyncing:
		return warnStyle.Render("…")
	case backend.StatusError:
		return errStyle.Render("✗")
	default:
		return dimStyle.Render("?")
	}
}

// ItemLabel returns the most descriptive text an item has
func ItemLabel(it backend.Item) string {
	switch {
	case it.Title != "":
		return it.Title
	case it.URL != "":
		return it.URL
	case it.Color != "":
		return it.Color
	default:
		return truncate(strings.ReplaceAll(it.Content, "\n", " "), 50)
	}
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-1]) + "…"
}

// ShowItems lists items with their collection, tags and sync state.
// collections maps collection ids to names; tags maps item ids to their tags.
func ShowItems(w io.Writer, items []backend.Item, collections map[string]string, tags map[string][]backend.Tag) {
	if len(items) == 0 {
		fmt.Fprintln(w, dimStyle.Render("No items."))
		return
	}

	var b strings.Builder
	b.WriteString(headerStyle.Render(fmt.Sprintf("Items (%d)", len(items))))
	for _, it := range items {
		b.WriteString("\n")
		fmt.Fprintf(&b, "%s %s %s", StatusBadge(it.SyncStatus), nameStyle.Render(ItemLabel(it)), dimStyle.Render("["+string(it.Kind)+"]"))

		meta := []string{shortID(it.ID)}
		if name, ok := collections[it.CollectionID]; ok {
			meta = append(meta, name)
		}
		if it.Kind == backend.KindBookmark && it.Title != "" && it.URL != "" {
			meta = append(meta, it.URL)
		}
		if names := tagNames(tags[it.ID]); names != "" {
			meta = append(meta, names)
		}
		b.WriteString("\n    " + dimStyle.Render(strings.Join(meta, " · ")))
		if it.SyncError != "" {
			b.WriteString("\n    " + errStyle.Render(it.SyncError))
		}
	}
	fmt.Fprintln(w, boxStyle.Width(boxWidth()).Render(b.String()))
}

// ShowItem prints one item in full
func ShowItem(w io.Writer, it backend.Item, collection string, tags []backend.Tag) {
	rows := [][2]string{
		{"ID", it.ID},
		{"Kind", string(it.Kind)},
		{"Collection", collection},
		{"Title", it.Title},
		{"URL", it.URL},
		{"Color", it.Color},
		{"Tags", tagNames(tags)},
		{"Status", string(it.SyncStatus)},
		{"Updated", it.UpdatedAt.Local().Format(time.DateTime)},
	}
	if it.LastSyncedAt != nil {
		rows = append(rows, [2]string{"Last synced", it.LastSyncedAt.Local().Format(time.DateTime)})
	}
	if it.SyncError != "" {
		rows = append(rows, [2]string{"Error", errStyle.Render(it.SyncError)})
	}

	var b strings.Builder
	for _, r := range rows {
		if r[1] == "" {
			continue
		}
		fmt.Fprintf(&b, "%s %s\n", dimStyle.Render(fmt.Sprintf("%-12s", r[0])), r[1])
	}
	if it.Content != "" {
		b.WriteString("\n" + it.Content + "\n")
	}
	fmt.Fprint(w, b.String())
}

// ShowCollections lists collections with item counts
func ShowCollections(w io.Writer, collections []backend.Collection, counts map[string]int) {
	var b strings.Builder
	b.WriteString(headerStyle.Render("Collections"))
	for i, c := range collections {
		b.WriteString("\n")
		fmt.Fprintf(&b, "%s %s %s", dimStyle.Render(fmt.Sprintf("%2d.", i+1)), StatusBadge(c.SyncStatus), nameStyle.Render(c.Name))
		if c.IsDefault {
			b.WriteString(" " + okStyle.Render("(default)"))
		}
		if n := counts[c.ID]; n > 0 {
			b.WriteString(" " + dimStyle.Render(plural(n, "item")))
		}
		b.WriteString(" " + dimStyle.Render(shortID(c.ID)))
	}
	fmt.Fprintln(w, boxStyle.Width(boxWidth()).Render(b.String()))
}

// ShowTags lists tags with their slugs
func ShowTags(w io.Writer, tags []backend.Tag) {
	if len(tags) == 0 {
		fmt.Fprintln(w, dimStyle.Render("No tags."))
		return
	}
	var b strings.Builder
	b.WriteString(headerStyle.Render("Tags"))
	for _, tg := range tags {
		fmt.Fprintf(&b, "\n%s %s %s", StatusBadge(tg.SyncStatus), nameStyle.Render(tg.Name), dimStyle.Render("#"+tg.Slug))
	}
	fmt.Fprintln(w, boxStyle.Width(boxWidth()).Render(b.String()))
}

// ShowSyncResult prints the outcome of one cycle
func ShowSyncResult(w io.Writer, r *backendsync.SyncResult) {
	status := okStyle.Render("Sync completed")
	if !r.Success {
		status = errStyle.Render("Sync completed with failures")
	}
	fmt.Fprintln(w, status+" "+dimStyle.Render("in "+r.Duration.Round(time.Millisecond).String()))

	rows := []struct {
		label string
		n     int
	}{
		{"Items pushed", r.ItemsSynced},
		{"Collections pushed", r.CollectionsSynced},
		{"Tags pushed", r.TagsSynced},
		{"Links pushed", r.ItemTagsSynced},
		{"Items deleted", r.ItemsDeleted},
		{"Collections deleted", r.CollectionsDeleted},
		{"Tags deleted", r.TagsDeleted},
		{"Changed during sync", r.Requeued},
		{"Pulled", r.Pulled},
		{"Kept local (newer)", r.PullSkipped},
		{"Retries released", r.RetriesReleased},
	}
	for _, row := range rows {
		if row.n > 0 {
			fmt.Fprintf(w, "  %-20s %d\n", row.label, row.n)
		}
	}
	if r.Chunks > 0 {
		fmt.Fprintf(w, "  %-20s %d/%d\n", "Chunks delivered", r.Chunks-r.FailedChunks, r.Chunks)
	}
	if r.RetriesDropped > 0 {
		fmt.Fprintln(w, errStyle.Render(fmt.Sprintf("  %d retry entries abandoned; affected entities are parked in error", r.RetriesDropped)))
	}
	for _, warn := range r.Warnings {
		fmt.Fprintln(w, warnStyle.Render("  ! "+warn))
	}
	for _, err := range r.Errors {
		fmt.Fprintln(w, errStyle.Render("  ✗ "+err.Error()))
	}
}

// ShowSyncStats prints local sync state
func ShowSyncStats(w io.Writer, stats *sqlite.SyncStats, online *bool) {
	fmt.Fprintln(w, headerStyle.Render("Sync status"))
	if online != nil {
		if *online {
			fmt.Fprintf(w, "  %-12s %s\n", "Authority", okStyle.Render("reachable"))
		} else {
			fmt.Fprintf(w, "  %-12s %s\n", "Authority", errStyle.Render("offline"))
		}
	}
	last := "never"
	if stats.LastSync != nil {
		last = stats.LastSync.Local().Format(time.DateTime)
	}
	fmt.Fprintf(w, "  %-12s %s\n", "Last sync", last)

	for _, row := range []struct {
		label  string
		counts sqlite.StatusCounts
	}{
		{"Items", stats.Items},
		{"Collections", stats.Collections},
		{"Tags", stats.Tags},
		{"Links", stats.ItemTags},
	} {
		fmt.Fprintf(w, "  %-12s %s\n", row.label, formatCounts(row.counts))
	}
	if stats.RetryQueue > 0 {
		fmt.Fprintf(w, "  %-12s %s\n", "Retry queue", warnStyle.Render(plural(stats.RetryQueue, "entry")))
	}
	if stats.Parked > 0 {
		fmt.Fprintf(w, "  %-12s %s\n", "Parked", errStyle.Render(plural(stats.Parked, "entity")+" (edit them to retry)"))
	}
}

func formatCounts(c sqlite.StatusCounts) string {
	if c.Total() == 0 {
		return dimStyle.Render("none")
	}
	var parts []string
	for _, status := range []backend.SyncStatus{backend.StatusSynced, backend.StatusPending, backend.StatusSyncing, backend.StatusError} {
		if n := c[status]; n > 0 {
			parts = append(parts, fmt.Sprintf("%d %s", n, status))
		}
	}
	return strings.Join(parts, ", ")
}

// ShowRetryQueue lists failed chunks waiting for retransmission
func ShowRetryQueue(w io.Writer, entries []backend.RetryQueueEntry, now time.Time) {
	if len(entries) == 0 {
		fmt.Fprintln(w, dimStyle.Render("Retry queue is empty."))
		return
	}
	fmt.Fprintln(w, headerStyle.Render(fmt.Sprintf("Retry queue (%d)", len(entries))))
	for _, e := range entries {
		size := 0
		if chunk, err := e.Chunk(); err == nil {
			size = chunk.Size() + chunk.Deletions.Len()
		}
		next := "due now"
		if e.NextRetryAt.After(now) {
			next = "in " + e.NextRetryAt.Sub(now).Round(time.Second).String()
		}
		fmt.Fprintf(w, "  %s %s %s attempt %d/%d, %s\n",
			dimStyle.Render(shortID(e.ID)), nameStyle.Render(string(e.EntityKind)), plural(size, "entity"),
			e.RetryCount, e.MaxRetries, next)
		if e.LastError != "" {
			fmt.Fprintln(w, "      "+errStyle.Render(e.LastError))
		}
	}
}

func tagNames(tags []backend.Tag) string {
	names := make([]string, len(tags))
	for i, tg := range tags {
		names[i] = "#" + tg.Slug
	}
	return strings.Join(names, " ")
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

func plural(n int, noun string) string {
	if n == 1 {
		return fmt.Sprintf("1 %s", noun)
	}
	switch {
	case strings.HasSuffix(noun, "y"):
		return fmt.Sprintf("%d %sies", n, strings.TrimSuffix(noun, "y"))
	default:
		return fmt.Sprintf("%d %ss", n, noun)
	}
}
