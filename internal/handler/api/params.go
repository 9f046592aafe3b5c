package api

import (
	"time"

	xhttp "PriceServer/pkg/http"
	"PriceServer/pkg/util"
)

// parseRange reads the optional inclusive bounds from_date/to_date.
func parseRange(from, to string) (*time.Time, *time.Time, *xhttp.AppError) {
	f, ok := util.ParseOptionalTime(from)
	if !ok {
		return nil, nil, xhttp.FieldError("from_date", "from_date is not a valid timestamp")
	}
	t, ok := util.ParseOptionalTime(to)
	if !ok {
		return nil, nil, xhttp.FieldError("to_date", "to_date is not a valid timestamp")
	}
	return f, t, nil
}

func parseWindow(limit, offset string) (int, int, *xhttp.AppError) {
	l, err := util.ParseInt(limit)
	if err != nil {
		return 0, 0, xhttp.FieldError("limit", "limit must be a non-negative integer")
	}
	o, err := util.ParseInt(offset)
	if err != nil {
		return 0, 0, xhttp.FieldError("offset", "offset must be a non-negative integer")
	}
	return l, o, nil
}
