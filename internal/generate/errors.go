package generate

import "github.com/rotisserie/eris"

// User-correctable input-state errors. The delivery layer surfaces these
// with actionable messages rather than as server faults.
var (
	ErrNoVendors  = eris.New("no active vendors found for order generation")
	ErrNoProducts = eris.New("no products linked to the selected vendors; link products to a vendor first")
)

// DataFetchError wraps a failure in one of the parallel historical-data
// fetches. The whole generation run is aborted; the caller may retry.
type DataFetchError struct {
	Dataset string
	Err     error
}

func (e *DataFetchError) Error() string {
	return "generate: fetch " + e.Dataset + ": " + e.Err.Error()
}

func (e *DataFetchError) Unwrap() error {
	return e.Err
}
