// Package config provides configuration management for the gateway.
//
// A configuration file is a YAML document of kind Gateway:
//
//	apiVersion: routegw.io/v1
//	kind: Gateway
//	metadata:
//	  name: edge
//	spec:
//	  listener:
//	    port: 8080
//	  routes:
//	    - upstreamPathTemplate: /users/{id}
//	      upstreamHttpMethod: [GET]
//	      downstreamPathTemplate: /api/users/{id}
//	      downstreamScheme: http
//	      downstreamHostAndPorts:
//	        - host: users.internal
//	          port: 80
//
// ${VAR} and ${VAR:-default} references are substituted from the
// environment before parsing. Watcher reloads the file on change and hands
// validated configurations to a callback.
package config
