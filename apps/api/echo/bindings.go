package echoapi

import (
	"strconv"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/elecmate/sitebrief/core"
	"github.com/elecmate/sitebrief/core/briefing"
)

var (
	orderingParam  = "ordering"
	searchParam    = "search"
	completedParam = "completed"
)

type Ordering struct {
	Orderings []core.DBOrdering
}

func (ord *Ordering) Bind(ctx echo.Context) {
	val := ctx.QueryParam(orderingParam)
	if val == "" {
		return
	}

	for _, field := range strings.Split(val, ",") {
		field = strings.TrimSpace(field)
		descending := strings.HasPrefix(field, "-")
		if descending {
			field = field[1:] // drop "-"
		}
		if field == "" {
			continue
		}
		ord.Orderings = append(ord.Orderings, core.DBOrdering{Field: field, Ascending: !descending})
	}
}

// bindQueryFilter reads the briefing listing filters; an unparsable `completed` is ignored.
func bindQueryFilter(ctx echo.Context) briefing.QueryFilter {
	filter := briefing.QueryFilter{Search: ctx.QueryParam(searchParam)}
	if val := ctx.QueryParam(completedParam); val != "" {
		if completed, err := strconv.ParseBool(val); err == nil {
			filter.Completed = &completed
		}
	}
	return filter
}
