// Package browser defines the tab and tab-group primitives the organizer
// drives. Implementations talk to a real browser window; tests use fakes.
package browser

import "context"

// Tab is a single browser tab in the focused window.
type Tab struct {
	ID    int    `json:"id"`
	Title string `json:"title"`
	URL   string `json:"url"`
}

// Snapshot is the ordered tab list captured once at the start of a run.
type Snapshot []Tab

// IDs returns the tab ids in snapshot order.
func (s Snapshot) IDs() []int {
	ids := make([]int, len(s))
	for i, t := range s {
		ids[i] = t.ID
	}
	return ids
}

// Contains reports whether a tab with the given id is in the snapshot.
func (s Snapshot) Contains(id int) bool {
	for _, t := range s {
		if t.ID == id {
			return true
		}
	}
	return false
}

// GroupUpdate sets the display properties of a tab group.
type GroupUpdate struct {
	Title     string `json:"title"`
	Color     string `json:"color"`
	Collapsed bool   `json:"collapsed"`
}

// TabSource enumerates tabs in the focused window.
type TabSource interface {
	ListTabs(ctx context.Context) (Snapshot, error)
	// ActiveTab returns the focused tab's id, or false if there is none.
	ActiveTab(ctx context.Context) (int, bool, error)
}

// GroupMutator creates and removes tab groups in the focused window.
type GroupMutator interface {
	// ClearGroups ungroups every tab in the focused window.
	ClearGroups(ctx context.Context) error
	// GroupTabs puts the tabs in a new group and returns its id.
	GroupTabs(ctx context.Context, tabIDs []int) (int, error)
	UpdateGroup(ctx context.Context, groupID int, update GroupUpdate) error
}

// Window is everything the organizer needs from the browser.
type Window interface {
	TabSource
	GroupMutator
}
