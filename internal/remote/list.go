package remote

import (
	"context"
	"sort"
	"strings"

	"github.com/danmuck/rosctl/internal/protocol"
	"github.com/danmuck/rosctl/internal/protocol/session"
)

type ScriptInfo struct {
	ID   string
	Name string
	// Size is the source length in bytes, or -1 when sizes were not requested.
	Size int
}

type ScheduleInfo struct {
	ID        string
	Name      string
	Disabled  bool
	NextRun   string
	StartTime string
	Interval  string
}

// ListScripts returns scripts whose name starts with prefix, sorted by name.
// Sources are fetched only when withSizes is set; a source above the word
// ceiling cannot be read back over the API.
func (r *Repository) ListScripts(ctx context.Context, conn session.Conn, prefix string, withSizes bool) ([]ScriptInfo, error) {
	props := []string{".id", "name"}
	if withSizes {
		props = append(props, "source")
	}
	resp, err := conn.Execute(ctx, Scripts.command("print"), protocol.Proplist(props...))
	if err != nil {
		return nil, err
	}
	out := make([]ScriptInfo, 0, len(resp.Rows))
	for _, row := range resp.Rows {
		name := row["name"]
		if name == "" || !strings.HasPrefix(name, prefix) {
			continue
		}
		size := -1
		if withSizes {
			size = len(row["source"])
		}
		out = append(out, ScriptInfo{ID: row[".id"], Name: name, Size: size})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (r *Repository) ListSchedules(ctx context.Context, conn session.Conn, prefix string) ([]ScheduleInfo, error) {
	resp, err := conn.Execute(ctx,
		Schedules.command("print"),
		protocol.Proplist(".id", "name", "disabled", "next-run", "start-time", "interval"),
	)
	if err != nil {
		return nil, err
	}
	out := make([]ScheduleInfo, 0, len(resp.Rows))
	for _, row := range resp.Rows {
		name := row["name"]
		if name == "" || !strings.HasPrefix(name, prefix) {
			continue
		}
		out = append(out, ScheduleInfo{
			ID:        row[".id"],
			Name:      name,
			Disabled:  row["disabled"] == "true" || row["disabled"] == "yes",
			NextRun:   row["next-run"],
			StartTime: row["start-time"],
			Interval:  row["interval"],
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}
