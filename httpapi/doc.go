// Package httpapi serves the engine over HTTP with a chi router.
//
// Routes:
//
//	GET  /healthz                              readiness and lifecycle state
//	GET  /metrics                              Prometheus exposition
//	GET  /api/v1/search?q=&k=&mode=            hybrid or keyword search
//	GET  /api/v1/users/{id}/recommendations?k= recommendations for a user
//	POST /api/v1/users/{id}/seen               {"item_ids": [...]}
//	GET  /api/v1/items/{id}                    item details
//	PUT  /api/v1/items/{id}/popularity         {"popularity": 1.5}
//
// Requests that arrive before the engine is ready, or after shutdown begins,
// get 503 with a Retry-After header.
package httpapi
