package upload

import (
	"fmt"
	"strings"

	"github.com/danmuck/rosctl/internal/remote"
)

// CombineSource renders the on-device procedure that concatenates the parts
// in order, adds the final script and removes every part.
func CombineSource(parts []string, finalName, policy string) string {
	if policy == "" {
		policy = remote.DefaultPolicy
	}
	var b strings.Builder
	fmt.Fprintf(&b, "# rosctl combine: %s (%d parts)\n", finalName, len(parts))
	b.WriteString(":local finalContent \"\"\n")
	b.WriteString(":local partContent \"\"\n")
	fmt.Fprintf(&b, ":log info \"rosctl: combining %d parts of %s\"\n", len(parts), finalName)
	for i, part := range parts {
		fmt.Fprintf(&b, ":log info \"rosctl: reading part %d %s\"\n", i+1, part)
		fmt.Fprintf(&b, ":set partContent [/system script get \"%s\" source]\n", part)
		b.WriteString(":set finalContent ($finalContent . $partContent)\n")
	}
	fmt.Fprintf(&b, "/system script add name=\"%s\" source=$finalContent policy=%s\n", finalName, policy)
	fmt.Fprintf(&b, ":log info \"rosctl: %s created\"\n", finalName)
	for _, part := range parts {
		fmt.Fprintf(&b, "/system script remove [find name=\"%s\"]\n", part)
	}
	fmt.Fprintf(&b, ":log info \"rosctl: %s assembled\"\n", finalName)
	return b.String()
}

// ScheduleCommand is the one-shot on-event body: run the combine script,
// wait, then remove the combine script and the schedule itself.
func ScheduleCommand(name string) string {
	return fmt.Sprintf(
		"/system script run \"%s\"; :delay 2s; /system script remove \"%s\"; /system scheduler remove \"%s\"",
		CombineName(name), CombineName(name), ScheduleName(name),
	)
}
