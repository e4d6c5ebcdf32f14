// Package server hosts the Fiber HTTP front-end: the request-id middleware, the
// registry that maps a path prefix onto a configured upstream HAPI server, the
// shared upstream http.Client, and the /metrics endpoint. Request handling is
// injected through ProxyHandler so the cache engine stays out of this package.
package server
