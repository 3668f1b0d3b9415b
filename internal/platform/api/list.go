package api

import (
	"encoding/json"
	"fmt"
	"net/url"
	"sort"
	"strconv"
	"strings"
)

const (
	DefaultPageSize = 20
	MaxPageSize     = 100
)

// ListParams are the list query parameters shared by every collection route.
type ListParams struct {
	Page      int
	PageSize  int
	SortBy    string
	SortOrder string
	Filters   map[string]any
}

// ParseListParams reads page, pageSize, sortBy, sortOrder and filters
// (a JSON object string) from the query.
func ParseListParams(q url.Values) (ListParams, error) {
	p := ListParams{Page: 1, PageSize: DefaultPageSize, SortOrder: "desc"}
	verr := &ValidationError{}

	if raw := q.Get("page"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			verr.Add("page", "must be a positive integer")
		} else {
			p.Page = n
		}
	}
	if raw := q.Get("pageSize"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 || n > MaxPageSize {
			verr.Add("pageSize", fmt.Sprintf("must be between 1 and %d", MaxPageSize))
		} else {
			p.PageSize = n
		}
	}
	p.SortBy = q.Get("sortBy")
	if raw := strings.ToLower(q.Get("sortOrder")); raw != "" {
		if raw != "asc" && raw != "desc" {
			verr.Add("sortOrder", "must be asc or desc")
		} else {
			p.SortOrder = raw
		}
	}
	if raw := q.Get("filters"); raw != "" {
		if err := json.Unmarshal([]byte(raw), &p.Filters); err != nil {
			verr.Add("filters", "must be a JSON object")
		}
	}

	if err := verr.OrNil(); err != nil {
		return ListParams{}, err
	}
	return p, nil
}

// Offset is the row offset of the requested page.
func (p ListParams) Offset() int {
	return (p.Page - 1) * p.PageSize
}

// ListSpec describes which columns of a table a list query may touch.
// Column names in the maps are SQL expressions and never come from input.
type ListSpec struct {
	From        string
	Columns     string
	Sortable    map[string]string
	Filterable  map[string]string
	Search      []string
	DefaultSort string

	// TenantColumn restricts rows to one company when set on the Restriction.
	TenantColumn string
	// OwnerClause renders the "owned by caller" predicate for a placeholder.
	OwnerClause func(placeholder string) string
}

// Restriction is the row boundary derived from the caller's scope.
type Restriction struct {
	CompanyID *int64
	OwnerID   string
	// Extra predicates appended verbatim with their own args, e.g. status = 'available'.
	Extra []Predicate
}

type Predicate struct {
	SQL string // uses ? as placeholder
	Arg any
}

// ListQuery is a built page query plus its count query.
type ListQuery struct {
	SQL      string
	CountSQL string
	Args     []any
	// CountArgs excludes the trailing LIMIT/OFFSET args.
	CountArgs []any
}

// BuildList renders a parameterized SELECT honoring the whitelists in spec.
func BuildList(spec ListSpec, p ListParams, rs Restriction) (ListQuery, error) {
	var conditions []string
	var args []any
	argN := 1

	next := func(v any) string {
		args = append(args, v)
		ph := fmt.Sprintf("$%d", argN)
		argN++
		return ph
	}

	if rs.CompanyID != nil {
		if spec.TenantColumn == "" {
			return ListQuery{}, fmt.Errorf("list on %s: tenant restriction without tenant column", spec.From)
		}
		conditions = append(conditions, fmt.Sprintf("%s = %s", spec.TenantColumn, next(*rs.CompanyID)))
	}
	if rs.OwnerID != "" {
		if spec.OwnerClause == nil {
			return ListQuery{}, fmt.Errorf("list on %s: owner restriction without owner clause", spec.From)
		}
		conditions = append(conditions, spec.OwnerClause(next(rs.OwnerID)))
	}
	for _, pred := range rs.Extra {
		conditions = append(conditions, strings.Replace(pred.SQL, "?", next(pred.Arg), 1))
	}

	// Sorted keys keep placeholder numbering deterministic.
	keys := make([]string, 0, len(p.Filters))
	for k := range p.Filters {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	verr := &ValidationError{}
	for _, key := range keys {
		val := p.Filters[key]
		if key == "search" {
			s, ok := val.(string)
			if !ok || len(spec.Search) == 0 {
				verr.Add("filters.search", "search is not supported here")
				continue
			}
			if s == "" {
				continue
			}
			ph := next("%" + s + "%")
			var ors []string
			for _, col := range spec.Search {
				ors = append(ors, fmt.Sprintf("%s ILIKE %s", col, ph))
			}
			conditions = append(conditions, "("+strings.Join(ors, " OR ")+")")
			continue
		}

		col, ok := spec.Filterable[key]
		if !ok {
			verr.Add("filters."+key, "unknown filter")
			continue
		}
		switch v := val.(type) {
		case nil:
			conditions = append(conditions, col+" IS NULL")
		case []any:
			if len(v) == 0 {
				conditions = append(conditions, "FALSE")
				continue
			}
			conditions = append(conditions, fmt.Sprintf("%s::text = ANY(%s)", col, next(stringify(v))))
		default:
			conditions = append(conditions, fmt.Sprintf("%s::text = %s", col, next(fmt.Sprint(v))))
		}
	}

	orderBy := spec.DefaultSort
	if p.SortBy != "" {
		col, ok := spec.Sortable[p.SortBy]
		if !ok {
			verr.Add("sortBy", "unsupported sort column")
		} else {
			orderBy = col
		}
	}
	if err := verr.OrNil(); err != nil {
		return ListQuery{}, err
	}

	where := ""
	if len(conditions) > 0 {
		where = " WHERE " + strings.Join(conditions, " AND ")
	}
	direction := "DESC"
	if p.SortOrder == "asc" {
		direction = "ASC"
	}

	countArgs := append([]any(nil), args...)
	countSQL := fmt.Sprintf("SELECT count(*) FROM %s%s", spec.From, where)

	limit := next(p.PageSize)
	offset := next(p.Offset())
	sql := fmt.Sprintf("SELECT %s FROM %s%s ORDER BY %s %s LIMIT %s OFFSET %s",
		spec.Columns, spec.From, where, orderBy, direction, limit, offset)

	return ListQuery{SQL: sql, CountSQL: countSQL, Args: args, CountArgs: countArgs}, nil
}

func stringify(vals []any) []string {
	out := make([]string, 0, len(vals))
	for _, v := range vals {
		out = append(out, fmt.Sprint(v))
	}
	return out
}
