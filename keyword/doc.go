// Package keyword provides the in-memory BM25 keyword index over item titles
// and categories. It is derived data: the hydrator rebuilds it from the
// metadata store on every start.
package keyword
