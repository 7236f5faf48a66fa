package controller

import (
	"errors"
	"fmt"

	"neomap/core-go/internal/layer"
)

// ErrSuperseded is returned when an update completes after a newer update for
// the same layer was triggered. Its results are discarded.
var ErrSuperseded = errors.New("update superseded by a newer update")

// QueryKind tells which of the two update queries failed.
type QueryKind string

const (
	QueryKindNode         QueryKind = "node"
	QueryKindRelationship QueryKind = "relationship"
)

// QueryExecutionError wraps a data source failure or a malformed result
// batch. Layer state is left unchanged when it is returned.
type QueryExecutionError struct {
	LayerType layer.Type
	Kind      QueryKind
	Query     string
	Err       error
}

func (e *QueryExecutionError) Error() string {
	hint := "contact the development team"
	if e.UserAuthored() {
		hint = "fix your query and try again"
	}
	return fmt.Sprintf("invalid cypher query (%s): %s: %v", e.Kind, hint, e.Err)
}

func (e *QueryExecutionError) Unwrap() error { return e.Err }

// UserAuthored reports whether the failing text was written by the user
// rather than generated.
func (e *QueryExecutionError) UserAuthored() bool {
	return e.LayerType == layer.TypeCypher
}

// CatalogFetchError reports a failed catalog refresh. The affected option
// list keeps its previous value.
type CatalogFetchError struct {
	Catalog string
	Err     error
}

func (e *CatalogFetchError) Error() string {
	return fmt.Sprintf("refresh %s catalog: %v", e.Catalog, e.Err)
}

func (e *CatalogFetchError) Unwrap() error { return e.Err }
