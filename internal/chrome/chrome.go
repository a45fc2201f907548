// Package chrome implements browser.Window by calling the extension's
// chrome.* APIs over the bridge.
//
// Every call names a chrome API function ("tabs.query") and passes its
// positional arguments as a JSON array. The extension applies the
// arguments to the function and returns the resolved value.
package chrome

import (
	"context"
	"fmt"

	"github.com/sourcegraph/conc/pool"

	"github.com/Iron-Ham/tabgroup/internal/bridge"
	"github.com/Iron-Ham/tabgroup/internal/browser"
)

// UntitledTab replaces an empty tab title.
const UntitledTab = "Untitled"

// Chrome API functions called by Window.
const (
	MethodTabsQuery         = "tabs.query"
	MethodTabsGroup         = "tabs.group"
	MethodTabsUngroup       = "tabs.ungroup"
	MethodTabGroupsQuery    = "tabGroups.query"
	MethodTabGroupsUpdate   = "tabGroups.update"
	MethodWindowsGetCurrent = "windows.getCurrent"
)

// tab mirrors the chrome.tabs.Tab fields the host reads. Chrome omits id
// and url for some tabs (devtools, tabs without host permission).
type tab struct {
	ID    *int    `json:"id"`
	Title string  `json:"title"`
	URL   *string `json:"url"`
}

type window struct {
	ID int `json:"id"`
}

type tabGroup struct {
	ID int `json:"id"`
}

// Window drives the extension's focused window.
type Window struct {
	caller bridge.Caller
}

// NewWindow returns a Window that issues calls through caller.
func NewWindow(caller bridge.Caller) *Window {
	return &Window{caller: caller}
}

var _ browser.Window = (*Window)(nil)

func (w *Window) call(ctx context.Context, method string, out any, args ...any) error {
	if args == nil {
		args = []any{}
	}
	if err := w.caller.Call(ctx, method, args, out); err != nil {
		return fmt.Errorf("chrome %s: %w", method, err)
	}
	return nil
}

// ListTabs returns the tabs of the current window in tab-strip order.
func (w *Window) ListTabs(ctx context.Context) (browser.Snapshot, error) {
	var tabs []tab
	if err := w.call(ctx, MethodTabsQuery, &tabs, map[string]any{"currentWindow": true}); err != nil {
		return nil, err
	}

	snapshot := make(browser.Snapshot, 0, len(tabs))
	for _, t := range tabs {
		if t.ID == nil || t.URL == nil {
			continue
		}
		title := t.Title
		if title == "" {
			title = UntitledTab
		}
		snapshot = append(snapshot, browser.Tab{ID: *t.ID, Title: title, URL: *t.URL})
	}
	return snapshot, nil
}

// ActiveTab returns the id of the active tab in the current window.
func (w *Window) ActiveTab(ctx context.Context) (int, bool, error) {
	var tabs []tab
	query := map[string]any{"active": true, "currentWindow": true}
	if err := w.call(ctx, MethodTabsQuery, &tabs, query); err != nil {
		return 0, false, err
	}
	if len(tabs) == 0 || tabs[0].ID == nil {
		return 0, false, nil
	}
	return *tabs[0].ID, true, nil
}

// ClearGroups ungroups every grouped tab in the current window with a
// single tabs.ungroup call.
func (w *Window) ClearGroups(ctx context.Context) error {
	var win window
	if err := w.call(ctx, MethodWindowsGetCurrent, &win); err != nil {
		return err
	}

	var groups []tabGroup
	if err := w.call(ctx, MethodTabGroupsQuery, &groups, map[string]any{"windowId": win.ID}); err != nil {
		return err
	}
	if len(groups) == 0 {
		return nil
	}

	p := pool.NewWithResults[[]int]().WithContext(ctx).WithCancelOnError()
	for _, g := range groups {
		p.Go(func(ctx context.Context) ([]int, error) {
			var members []tab
			if err := w.call(ctx, MethodTabsQuery, &members, map[string]any{"groupId": g.ID}); err != nil {
				return nil, err
			}
			ids := make([]int, 0, len(members))
			for _, m := range members {
				if m.ID != nil {
					ids = append(ids, *m.ID)
				}
			}
			return ids, nil
		})
	}
	perGroup, err := p.Wait()
	if err != nil {
		return err
	}

	var ids []int
	for _, group := range perGroup {
		ids = append(ids, group...)
	}
	if len(ids) == 0 {
		return nil
	}
	return w.call(ctx, MethodTabsUngroup, nil, ids)
}

// GroupTabs puts the tabs into a new group and returns the group id.
func (w *Window) GroupTabs(ctx context.Context, tabIDs []int) (int, error) {
	var groupID int
	if err := w.call(ctx, MethodTabsGroup, &groupID, map[string]any{"tabIds": tabIDs}); err != nil {
		return 0, err
	}
	return groupID, nil
}

// UpdateGroup sets a group's title, color and collapsed state.
func (w *Window) UpdateGroup(ctx context.Context, groupID int, update browser.GroupUpdate) error {
	return w.call(ctx, MethodTabGroupsUpdate, nil, groupID, update)
}
