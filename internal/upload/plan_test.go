package upload

import (
	"errors"
	"strings"
	"testing"

	"github.com/danmuck/rosctl/internal/testutil/testlog"
)

func TestSplitChunkCountAndConcatenation(t *testing.T) {
	testlog.Start(t)
	for _, size := range []int{1, 14999, 15000, 15001, 30000, 32000, 45001} {
		content := strings.Repeat("x", size-1) + "y"
		chunks := Split(content, DefaultChunkSize)
		want := (size + DefaultChunkSize - 1) / DefaultChunkSize
		if len(chunks) != want {
			t.Fatalf("size=%d chunks=%d want=%d", size, len(chunks), want)
		}
		if strings.Join(chunks, "") != content {
			t.Fatalf("size=%d concatenation mismatch", size)
		}
		for i, c := range chunks[:len(chunks)-1] {
			if len(c) != DefaultChunkSize {
				t.Fatalf("size=%d chunk %d len=%d", size, i, len(c))
			}
		}
	}
	if got := Split("", DefaultChunkSize); got != nil {
		t.Fatalf("empty content should yield no chunks, got %v", got)
	}
}

func TestNeedsChunking(t *testing.T) {
	testlog.Start(t)
	big := strings.Repeat("a", 20000)
	cases := []struct {
		name    string
		content string
		want    bool
	}{
		{"Big1", big, true},
		{"Big1", strings.Repeat("a", 15000), false},
		{"Big1-TEMP1", big, false},
		{"Big1-TEMP12", big, false},
		{"Big1-Combine", big, false},
		{"Big1-TEMPORARY", big, true},
	}
	for _, tc := range cases {
		if got := NeedsChunking(tc.name, tc.content, 0); got != tc.want {
			t.Fatalf("NeedsChunking(%q, %d)=%v want %v", tc.name, len(tc.content), got, tc.want)
		}
	}
}

func TestNamesAndValidation(t *testing.T) {
	testlog.Start(t)
	if PartName("Big1", 3) != "Big1-TEMP3" || CombineName("Big1") != "Big1-Combine" || ScheduleName("Big1") != "run-Big1-combine" {
		t.Fatalf("unexpected derived names")
	}
	for _, ok := range []string{"Big1", "Nasos-Main", "my script", "a.b_c"} {
		if err := ValidateName(ok); err != nil {
			t.Fatalf("ValidateName(%q): %v", ok, err)
		}
	}
	for _, bad := range []string{"", " x", "x ", `a"b`, "a$b", "a[b]", "a;b", "жук", "a\tb"} {
		if err := ValidateName(bad); !errors.Is(err, ErrInvalidName) {
			t.Fatalf("ValidateName(%q) expected invalid, got %v", bad, err)
		}
	}
}

func TestCombineSource(t *testing.T) {
	testlog.Start(t)
	src := CombineSource([]string{"Big1-TEMP1", "Big1-TEMP2"}, "Big1", "")
	order := []string{
		`:local finalContent ""`,
		`:set partContent [/system script get "Big1-TEMP1" source]`,
		`:set finalContent ($finalContent . $partContent)`,
		`:set partContent [/system script get "Big1-TEMP2" source]`,
		`/system script add name="Big1" source=$finalContent policy=read,write,policy,test`,
		`/system script remove [find name="Big1-TEMP1"]`,
		`/system script remove [find name="Big1-TEMP2"]`,
	}
	pos := 0
	for _, want := range order {
		idx := strings.Index(src[pos:], want)
		if idx < 0 {
			t.Fatalf("missing or out of order %q in:\n%s", want, src)
		}
		pos += idx + len(want)
	}
	if strings.Count(src, ":log info") < 3 {
		t.Fatalf("expected progress logging in:\n%s", src)
	}
	if src != CombineSource([]string{"Big1-TEMP1", "Big1-TEMP2"}, "Big1", "") {
		t.Fatalf("combine source must be deterministic")
	}
}

func TestScheduleCommand(t *testing.T) {
	testlog.Start(t)
	want := `/system script run "Big1-Combine"; :delay 2s; /system script remove "Big1-Combine"; /system scheduler remove "run-Big1-combine"`
	if got := ScheduleCommand("Big1"); got != want {
		t.Fatalf("unexpected schedule command:\n%s", got)
	}
}

func TestNewPlan(t *testing.T) {
	testlog.Start(t)
	plan, err := NewPlan("Big1", strings.Repeat("z", 32000), DefaultChunkSize, "")
	if err != nil {
		t.Fatalf("plan: %v", err)
	}
	want := []string{"Big1-TEMP1", "Big1-TEMP2", "Big1-TEMP3", "Big1-Combine", "run-Big1-combine"}
	if strings.Join(plan.Transients(), ",") != strings.Join(want, ",") {
		t.Fatalf("unexpected transients=%v", plan.Transients())
	}
	if len(plan.Parts[2].Content) != 2000 {
		t.Fatalf("unexpected last part len=%d", len(plan.Parts[2].Content))
	}

	if _, err := NewPlan("Big1", strings.Repeat("z", 20000), 10, ""); !errors.Is(err, ErrPlanTooLarge) {
		t.Fatalf("expected plan too large, got %v", err)
	}
	if _, err := NewPlan(`bad"name`, "x", 10, ""); !errors.Is(err, ErrInvalidName) {
		t.Fatalf("expected invalid name, got %v", err)
	}
}
