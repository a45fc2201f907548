// Package grouping holds the AI grouping plan and applies it to a browser
// window.
package grouping

import (
	"context"
	"errors"
	"fmt"
	"slices"

	"github.com/Iron-Ham/tabgroup/internal/browser"
)

var (
	// ErrUnknownTab means a plan references a tab that is not in the snapshot.
	ErrUnknownTab = errors.New("plan references unknown tab")
	// ErrDuplicateTab means a plan assigns one tab to more than one group.
	ErrDuplicateTab = errors.New("plan assigns tab to more than one group")
)

// Group is one proposed tab group.
type Group struct {
	Name   string `json:"name"`
	Color  Color  `json:"color"`
	TabIDs []int  `json:"tabIds"`
}

// Plan is the ordered list of groups returned by the classifier.
type Plan struct {
	Groups []Group `json:"groups"`
}

// NonEmpty returns the number of groups that have at least one tab.
func (p Plan) NonEmpty() int {
	n := 0
	for _, g := range p.Groups {
		if len(g.TabIDs) > 0 {
			n++
		}
	}
	return n
}

// Validate checks that every tab id in plan is in snapshot and appears in at
// most one group.
func Validate(plan Plan, snapshot browser.Snapshot) error {
	known := make(map[int]bool, len(snapshot))
	for _, t := range snapshot {
		known[t.ID] = true
	}

	owner := make(map[int]string)
	for _, g := range plan.Groups {
		for _, id := range g.TabIDs {
			if !known[id] {
				return fmt.Errorf("%w: tab %d in group %q", ErrUnknownTab, id, g.Name)
			}
			if prev, ok := owner[id]; ok {
				return fmt.Errorf("%w: tab %d in groups %q and %q", ErrDuplicateTab, id, prev, g.Name)
			}
			owner[id] = g.Name
		}
	}
	return nil
}

// Options controls how a plan is applied.
type Options struct {
	// CollapseOthers collapses every group except the one holding ActiveTabID.
	CollapseOthers bool
	// ActiveTabID is the tab focused before the run started, if any.
	ActiveTabID *int
}

func (o Options) collapsed(tabIDs []int) bool {
	if !o.CollapseOthers {
		return false
	}
	return o.ActiveTabID == nil || !slices.Contains(tabIDs, *o.ActiveTabID)
}

// Apply materializes plan in order, skipping empty groups. It is not
// transactional: on failure the groups created so far stay in place and
// their count is returned with the error.
func Apply(ctx context.Context, mutator browser.GroupMutator, plan Plan, opts Options) (int, error) {
	created := 0
	for _, g := range plan.Groups {
		if len(g.TabIDs) == 0 {
			continue
		}

		groupID, err := mutator.GroupTabs(ctx, g.TabIDs)
		if err != nil {
			return created, fmt.Errorf("group %q: %w", g.Name, err)
		}
		created++

		update := browser.GroupUpdate{
			Title:     g.Name,
			Color:     string(g.Color),
			Collapsed: opts.collapsed(g.TabIDs),
		}
		if err := mutator.UpdateGroup(ctx, groupID, update); err != nil {
			return created, fmt.Errorf("update group %q: %w", g.Name, err)
		}
	}
	return created, nil
}
