package config

// validConfigYAML is a minimal valid configuration for testing.
const validConfigYAML = `
apiVersion: routegw.io/v1
kind: Gateway
metadata:
  name: test-gateway
spec:
  listener:
    port: 8080
  routes:
    - upstreamPathTemplate: /users/{id}
      upstreamHttpMethod: [GET]
      downstreamPathTemplate: /api/users/{id}
      downstreamHostAndPorts:
        - host: localhost
          port: 8081
`

// invalidConfigYAML parses but fails validation.
const invalidConfigYAML = `
apiVersion: routegw.io/v1
kind: Gateway
metadata:
  name: ""
spec:
  listener:
    port: 70000
`
