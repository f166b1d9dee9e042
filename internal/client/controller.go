package client

import (
	"context"
	"errors"
	"sync"

	"github.com/samber/lo"

	"github.com/trackrhq/trackr/internal/models"
)

const defaultPageSize = 10

// fetchFailedMsg is the fallback when the server gives no message.
const fetchFailedMsg = "Failed to load issues"

// DeleteConfirm is the pending delete-confirmation state.
type DeleteConfirm struct {
	IssueID    int64
	IssueTitle string
}

// Snapshot is an immutable view of the controller state, delivered to
// the change callback after every transition.
type Snapshot struct {
	Search   string
	Status   string
	Priority string

	Page        int
	TotalPages  int
	TotalIssues int
	Issues      []models.Issue

	Loading bool
	Err     string

	Confirm  *DeleteConfirm
	Deleting bool
}

// ListController keeps issue-list filter/page state synchronized with
// the server. Every filter or page change triggers exactly one fetch;
// responses are tagged with the sequence number of the request that
// produced them and anything but the latest is discarded, so a slow
// stale response can never overwrite fresher data. Any filter change
// resets the page to 1.
type ListController struct {
	mu  sync.Mutex
	api *Client

	limit    int
	search   string
	status   string
	priority string
	page     int

	issues     []models.Issue
	total      int
	totalPages int
	loading    bool
	errMsg     string

	confirm  *DeleteConfirm
	deleting bool

	seq     uint64
	pending sync.WaitGroup

	// Every state transition gets a version under mu; deliverMu
	// serializes onChange calls and drops snapshots older than the last
	// one delivered, so callbacks observe transitions in order.
	ver       uint64
	deliverMu sync.Mutex
	delivered uint64
	onChange  func(Snapshot)
}

// NewListController creates a controller fetching pages of the given
// size through the API client. onChange may be nil; when set,
// deliveries are serialized in state-transition order, a snapshot
// older than one already delivered is dropped, and the callback must
// not call back into the controller.
func NewListController(api *Client, pageSize int, onChange func(Snapshot)) *ListController {
	if pageSize <= 0 {
		pageSize = defaultPageSize
	}
	return &ListController{
		api:      api,
		limit:    pageSize,
		page:     1,
		onChange: onChange,
	}
}

// Snapshot returns the current state.
func (c *ListController) Snapshot() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.snapshotLocked()
}

func (c *ListController) snapshotLocked() Snapshot {
	snap := Snapshot{
		Search:      c.search,
		Status:      c.status,
		Priority:    c.priority,
		Page:        c.page,
		TotalPages:  c.totalPages,
		TotalIssues: c.total,
		Issues:      append([]models.Issue(nil), c.issues...),
		Loading:     c.loading,
		Err:         c.errMsg,
		Deleting:    c.deleting,
	}
	if c.confirm != nil {
		snap.Confirm = lo.ToPtr(*c.confirm)
	}
	return snap
}

// transitionLocked stamps the current state with a fresh version for
// ordered delivery.
func (c *ListController) transitionLocked() (uint64, Snapshot) {
	c.ver++
	return c.ver, c.snapshotLocked()
}

// notify delivers the snapshot unless a newer one has already been
// delivered. Contended intermediate snapshots may be skipped; the last
// delivery always reflects the newest transition.
func (c *ListController) notify(ver uint64, snap Snapshot) {
	if c.onChange == nil {
		return
	}
	c.deliverMu.Lock()
	defer c.deliverMu.Unlock()
	if ver <= c.delivered {
		return
	}
	c.delivered = ver
	c.onChange(snap)
}

// Wait blocks until all in-flight fetches and deletes have settled.
func (c *ListController) Wait() {
	c.pending.Wait()
}

// SetSearch updates the search term, resets to page 1, and refetches.
func (c *ListController) SetSearch(search string) {
	c.setFilter(&c.search, search)
}

// SetStatus updates the status filter, resets to page 1, and refetches.
func (c *ListController) SetStatus(status string) {
	c.setFilter(&c.status, status)
}

// SetPriority updates the priority filter, resets to page 1, and refetches.
func (c *ListController) SetPriority(priority string) {
	c.setFilter(&c.priority, priority)
}

func (c *ListController) setFilter(field *string, value string) {
	c.mu.Lock()
	if *field == value {
		c.mu.Unlock()
		return
	}
	*field = value
	c.page = 1
	ver, snap := c.startFetchLocked()
	c.mu.Unlock()
	c.notify(ver, snap)
}

// SetPage moves to the given page and refetches. Filters are untouched.
func (c *ListController) SetPage(page int) {
	c.mu.Lock()
	if c.page == page {
		c.mu.Unlock()
		return
	}
	c.page = page
	ver, snap := c.startFetchLocked()
	c.mu.Unlock()
	c.notify(ver, snap)
}

// Refresh refetches the current page with the current filters.
func (c *ListController) Refresh() {
	c.mu.Lock()
	ver, snap := c.startFetchLocked()
	c.mu.Unlock()
	c.notify(ver, snap)
}

// startFetchLocked bumps the sequence number and launches the fetch for
// it. The in-flight predecessor, if any, keeps running; its response
// will be discarded on arrival.
func (c *ListController) startFetchLocked() (uint64, Snapshot) {
	c.seq++
	seq := c.seq
	filters := IssueFilters{
		Page:     c.page,
		Limit:    c.limit,
		Status:   c.status,
		Priority: c.priority,
		Search:   c.search,
	}
	c.loading = true
	c.errMsg = ""

	c.pending.Add(1)
	go c.fetch(seq, filters)

	return c.transitionLocked()
}

func (c *ListController) fetch(seq uint64, filters IssueFilters) {
	defer c.pending.Done()

	list, err := c.api.ListIssues(context.Background(), filters)

	c.mu.Lock()
	if seq != c.seq {
		// A newer request owns the state now.
		c.mu.Unlock()
		return
	}
	if err != nil {
		c.issues = nil
		c.total = 0
		c.totalPages = 0
		c.errMsg = errorMessage(err)
	} else {
		c.issues = list.Issues
		c.total = list.Pagination.Total
		c.totalPages = list.Pagination.TotalPages
		c.errMsg = ""
	}
	c.loading = false
	ver, snap := c.transitionLocked()
	c.mu.Unlock()
	c.notify(ver, snap)
}

// RequestDelete opens the delete confirmation for an issue.
func (c *ListController) RequestDelete(issueID int64, issueTitle string) {
	c.mu.Lock()
	c.confirm = &DeleteConfirm{IssueID: issueID, IssueTitle: issueTitle}
	ver, snap := c.transitionLocked()
	c.mu.Unlock()
	c.notify(ver, snap)
}

// CancelDelete closes the confirmation without deleting.
func (c *ListController) CancelDelete() {
	c.mu.Lock()
	if c.deleting {
		c.mu.Unlock()
		return
	}
	c.confirm = nil
	ver, snap := c.transitionLocked()
	c.mu.Unlock()
	c.notify(ver, snap)
}

// ConfirmDelete runs the pending delete, then refetches the current
// page so pagination counts stay correct. A second confirm while one is
// in flight is suppressed. On failure the dialog stays open with the
// error surfaced.
func (c *ListController) ConfirmDelete() {
	c.mu.Lock()
	if c.confirm == nil || c.deleting {
		c.mu.Unlock()
		return
	}
	c.deleting = true
	id := c.confirm.IssueID
	ver, snap := c.transitionLocked()
	c.mu.Unlock()
	c.notify(ver, snap)

	c.pending.Add(1)
	go c.runDelete(id)
}

func (c *ListController) runDelete(id int64) {
	defer c.pending.Done()

	err := c.api.DeleteIssue(context.Background(), id)

	c.mu.Lock()
	c.deleting = false
	if err != nil {
		c.errMsg = errorMessage(err)
		ver, snap := c.transitionLocked()
		c.mu.Unlock()
		c.notify(ver, snap)
		return
	}
	c.confirm = nil
	ver, snap := c.startFetchLocked()
	c.mu.Unlock()
	c.notify(ver, snap)
}

// errorMessage surfaces the server's message verbatim when present.
func errorMessage(err error) string {
	var apiErr *APIError
	if errors.As(err, &apiErr) && apiErr.Message != "" {
		return apiErr.Message
	}
	return fetchFailedMsg
}
