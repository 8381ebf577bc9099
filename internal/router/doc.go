// Package router matches inbound requests against upstream path templates.
//
// An upstream template is a path with named placeholders:
//
//	/users/{id}             {id} binds one path segment
//	/files/{path}           the last placeholder binds the rest of the path
//	/{everything}           matches any path, including "/"
//	/search?q={term}        binds the value of query key q to {term}
//	/contracts?{query}      binds the whole query string to {query}
//
// Table orders routes by descending priority and returns the first route
// whose method, host, header rule and template all accept the request,
// preferring routes bound to an upstream host. BuildDownstreamPath turns
// the extracted placeholders into the downstream path and query.
package router
