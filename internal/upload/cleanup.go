package upload

import (
	"context"
	"fmt"
	"regexp"
	"sort"
	"strconv"

	"github.com/danmuck/rosctl/internal/remote"
)

type target struct {
	coll remote.Collection
	name string
}

// CleanupReport lists what Cleanup removed and what it could not.
type CleanupReport struct {
	Removed []string
	Failed  map[string]error
}

func (r CleanupReport) OK() bool {
	return len(r.Failed) == 0
}

// Cleanup removes the schedule, combine script and staged parts a failed
// chunked upload of name left behind. The final script is never touched.
func (c *Coordinator) Cleanup(ctx context.Context, name string) (CleanupReport, error) {
	report := CleanupReport{Failed: make(map[string]error)}
	if err := ValidateName(name); err != nil {
		return report, err
	}
	conn, err := c.dialer.Dial(ctx)
	if err != nil {
		return report, err
	}
	defer conn.Close()

	parts, err := c.repo.ListScripts(ctx, conn, name+"-TEMP", false)
	if err != nil {
		return report, fmt.Errorf("list parts: %w", err)
	}
	partRE := regexp.MustCompile(`^` + regexp.QuoteMeta(name) + `-TEMP([0-9]+)$`)
	var partNames []string
	for _, p := range parts {
		if partRE.MatchString(p.Name) {
			partNames = append(partNames, p.Name)
		}
	}
	sort.Slice(partNames, func(i, j int) bool {
		a, _ := strconv.Atoi(partRE.FindStringSubmatch(partNames[i])[1])
		b, _ := strconv.Atoi(partRE.FindStringSubmatch(partNames[j])[1])
		return a < b
	})

	// Schedule first so it cannot fire against half-removed parts.
	targets := []target{
		{remote.Schedules, ScheduleName(name)},
		{remote.Scripts, CombineName(name)},
	}
	for _, p := range partNames {
		targets = append(targets, target{remote.Scripts, p})
	}

	for _, t := range targets {
		present, err := c.repo.Exists(ctx, conn, t.coll, t.name)
		if err != nil {
			report.Failed[t.name] = err
			continue
		}
		if !present {
			continue
		}
		if err := c.repo.Remove(ctx, conn, t.coll, t.name); err != nil {
			report.Failed[t.name] = err
			continue
		}
		report.Removed = append(report.Removed, t.name)
	}
	c.logger.Info().Str("script", name).Strs("removed", report.Removed).Int("failed", len(report.Failed)).Msg("cleanup finished")
	return report, nil
}
