package crawler

// State is a step of a crawl run. Failed is absorbing.
type State int

const (
	StateInit State = iota
	StateFirstPageLoaded
	StatePlanning
	StatePaginating
	StateDone
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateInit:
		return "init"
	case StateFirstPageLoaded:
		return "first_page_loaded"
	case StatePlanning:
		return "planning"
	case StatePaginating:
		return "paginating"
	case StateDone:
		return "done"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}
