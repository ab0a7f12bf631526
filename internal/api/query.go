package api

import (
	"errors"
	"strconv"

	"github.com/labstack/echo/v4"

	"github.com/eaziwage/ewa/internal/advance"
)

const maxPageSize = 200

// filterFromQuery reads ?status= and ?limit= into f.
func filterFromQuery(c echo.Context, f *advance.Filter) error {
	if s := c.QueryParam("status"); s != "" {
		st := advance.Status(s)
		if !st.Valid() {
			return errors.New("unknown status " + strconv.Quote(s))
		}
		f.Status = st
	}
	f.Limit = maxPageSize
	if l := c.QueryParam("limit"); l != "" {
		n, err := strconv.Atoi(l)
		if err != nil || n <= 0 {
			return errors.New("limit must be a positive integer")
		}
		if n < maxPageSize {
			f.Limit = n
		}
	}
	return nil
}
