package tasksync

import (
	"cmp"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/samber/lo"
	"golang.org/x/text/cases"

	"nexustodo/internal/service"
)

// SortField names the timestamp a view is ordered by.
type SortField string

const (
	SortCreated SortField = "createdAt"
	SortUpdated SortField = "updatedAt"
)

// Sort is a field and direction.
type Sort struct {
	Field SortField
	Desc  bool
}

// DefaultSort orders newest first.
var DefaultSort = Sort{Field: SortCreated, Desc: true}

// String returns the "field:dir" form accepted by ParseSort.
func (s Sort) String() string {
	dir := "asc"
	if s.Desc {
		dir = "desc"
	}
	return string(s.Field) + ":" + dir
}

// ParseSort parses "field:dir", where field is createdAt or updatedAt and
// dir is asc or desc. The direction defaults to desc.
func ParseSort(s string) (Sort, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return DefaultSort, nil
	}
	field, dir, _ := strings.Cut(s, ":")

	var out Sort
	switch strings.ToLower(strings.TrimSpace(field)) {
	case "createdat", "created":
		out.Field = SortCreated
	case "updatedat", "updated":
		out.Field = SortUpdated
	default:
		return Sort{}, fmt.Errorf("unknown sort field %q (use createdAt or updatedAt)", field)
	}

	switch strings.ToLower(strings.TrimSpace(dir)) {
	case "", "desc":
		out.Desc = true
	case "asc":
	default:
		return Sort{}, fmt.Errorf("unknown sort direction %q (use asc or desc)", dir)
	}
	return out, nil
}

// Query selects and orders tasks. The zero value selects everything in
// DefaultSort order.
type Query struct {
	// Status keeps tasks with exactly this status. Empty keeps all.
	Status service.Status

	// Tags keeps tasks carrying at least one of these tags.
	Tags []string

	// Search keeps tasks whose title or description contains it,
	// ignoring case.
	Search string

	// Sort orders the result. The zero value means DefaultSort.
	Sort Sort
}

// Prune drops tag filters that no longer occur in available.
func (q Query) Prune(available []string) Query {
	if len(q.Tags) == 0 {
		return q
	}
	q.Tags = lo.Intersect(q.Tags, available)
	return q
}

// Apply filters by status, then tags, then search text, and finally sorts.
// The input is not modified. Tasks with equal sort keys keep their input
// order.
func Apply(tasks []service.Task, q Query) []service.Task {
	out := make([]service.Task, 0, len(tasks))

	fold := cases.Fold()
	needle := fold.String(strings.TrimSpace(q.Search))

	for _, t := range tasks {
		if q.Status != "" && t.Status != q.Status {
			continue
		}
		if len(q.Tags) > 0 && len(lo.Intersect(q.Tags, t.Tags)) == 0 {
			continue
		}
		if needle != "" &&
			!strings.Contains(fold.String(t.Title), needle) &&
			!strings.Contains(fold.String(t.Description), needle) {
			continue
		}
		out = append(out, t)
	}

	sort := q.Sort
	if sort.Field == "" {
		sort = DefaultSort
	}
	slices.SortStableFunc(out, func(a, b service.Task) int {
		c := cmp.Compare(sortKey(a, sort.Field), sortKey(b, sort.Field))
		if sort.Desc {
			return -c
		}
		return c
	})
	return out
}

// sortKey returns the timestamp in milliseconds; a missing time sorts as 0.
func sortKey(t service.Task, field SortField) int64 {
	var ts time.Time
	if field == SortUpdated {
		ts = t.UpdatedAt
	} else {
		ts = t.CreatedAt
	}
	if ts.IsZero() {
		return 0
	}
	return ts.UnixMilli()
}

// View is a projected snapshot.
type View struct {
	Tasks     []service.Task
	Freshness Freshness
	At        time.Time
}

// Project applies q to the snapshot.
func (s Snapshot) Project(q Query) View {
	return View{Tasks: Apply(s.Tasks, q), Freshness: s.Freshness, At: s.At}
}

// Counts returns the number of tasks per status.
func Counts(tasks []service.Task) map[service.Status]int {
	counts := make(map[service.Status]int, len(service.Statuses))
	for _, st := range service.Statuses {
		counts[st] = 0
	}
	for _, t := range tasks {
		counts[t.Status]++
	}
	return counts
}

// Tags returns every tag in use, sorted.
func Tags(tasks []service.Task) []string {
	all := lo.Uniq(lo.FlatMap(tasks, func(t service.Task, _ int) []string {
		return t.Tags
	}))
	slices.Sort(all)
	return all
}
