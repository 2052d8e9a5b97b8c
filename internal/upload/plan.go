package upload

import (
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/danmuck/rosctl/internal/protocol/word"
)

// DefaultChunkSize keeps each part's =source= word under the word ceiling.
const DefaultChunkSize = 15000

var (
	ErrInvalidName  = errors.New("upload: invalid script name")
	ErrPlanTooLarge = errors.New("upload: combine procedure exceeds word ceiling")
)

var transientName = regexp.MustCompile(`-(TEMP[0-9]+|Combine)$`)

func PartName(name string, index int) string {
	return fmt.Sprintf("%s-TEMP%d", name, index)
}

func CombineName(name string) string {
	return name + "-Combine"
}

func ScheduleName(name string) string {
	return "run-" + name + "-combine"
}

// IsTransientName reports whether name is a staged part or combine script.
// Such names never enter the chunked path.
func IsTransientName(name string) bool {
	return transientName.MatchString(name)
}

// ValidateName rejects names that cannot be quoted safely inside the
// generated scripting commands.
func ValidateName(name string) error {
	if strings.TrimSpace(name) == "" || strings.TrimSpace(name) != name {
		return fmt.Errorf("%w: %q", ErrInvalidName, name)
	}
	for _, r := range name {
		if r < 0x20 || r > 0x7e || strings.ContainsRune(`"\$[];{}`, r) {
			return fmt.Errorf("%w: %q contains %q", ErrInvalidName, name, r)
		}
	}
	return nil
}

// NeedsChunking reports whether content must go through the staged path.
func NeedsChunking(name, content string, chunkSize int) bool {
	if chunkSize <= 0 {
		chunkSize = DefaultChunkSize
	}
	return len(content) > chunkSize && !IsTransientName(name)
}

type Part struct {
	Name    string
	Content string
}

// Plan is the derived set of remote objects for one chunked upload.
type Plan struct {
	Name         string
	Parts        []Part
	CombineName  string
	ScheduleName string
	Combine      string
}

// PartNames lists the staged part names in order.
func (p Plan) PartNames() []string {
	out := make([]string, len(p.Parts))
	for i, part := range p.Parts {
		out[i] = part.Name
	}
	return out
}

// Transients lists every temporary object the plan creates.
func (p Plan) Transients() []string {
	return append(p.PartNames(), p.CombineName, p.ScheduleName)
}

// Split cuts content into ceil(len/chunkSize) consecutive slices.
func Split(content string, chunkSize int) []string {
	if chunkSize <= 0 {
		chunkSize = DefaultChunkSize
	}
	if content == "" {
		return nil
	}
	out := make([]string, 0, (len(content)+chunkSize-1)/chunkSize)
	for start := 0; start < len(content); start += chunkSize {
		end := min(start+chunkSize, len(content))
		out = append(out, content[start:end])
	}
	return out
}

// NewPlan splits content and renders the combine procedure.
func NewPlan(name, content string, chunkSize int, policy string) (Plan, error) {
	if err := ValidateName(name); err != nil {
		return Plan{}, err
	}
	chunks := Split(content, chunkSize)
	plan := Plan{
		Name:         name,
		Parts:        make([]Part, len(chunks)),
		CombineName:  CombineName(name),
		ScheduleName: ScheduleName(name),
	}
	for i, chunk := range chunks {
		plan.Parts[i] = Part{Name: PartName(name, i+1), Content: chunk}
	}
	plan.Combine = CombineSource(plan.PartNames(), name, policy)
	if len("=source=")+len(plan.Combine) > word.MaxLen {
		return Plan{}, fmt.Errorf("%w: %d parts", ErrPlanTooLarge, len(plan.Parts))
	}
	return plan, nil
}
