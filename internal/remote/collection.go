package remote

// Collection is one of the named-object tables the client manages.
type Collection int

const (
	Scripts Collection = iota + 1
	Schedules
)

// Path is the API menu path without a trailing verb.
func (c Collection) Path() string {
	switch c {
	case Scripts:
		return "/system/script"
	case Schedules:
		return "/system/scheduler"
	default:
		return ""
	}
}

func (c Collection) String() string {
	switch c {
	case Scripts:
		return "script"
	case Schedules:
		return "scheduler"
	default:
		return "unknown"
	}
}

func (c Collection) command(verb string) string {
	return c.Path() + "/" + verb
}
