package route

import (
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/vyrodovalexey/routegw/internal/backend"
	"github.com/vyrodovalexey/routegw/internal/config"
	"github.com/vyrodovalexey/routegw/internal/router"
)

// Definition is a built route. It must not be modified after Build.
type Definition struct {
	key        string
	index      int
	upstream   *router.Template
	methods    []string
	host       string
	headerRule *router.HeaderRule

	DownstreamPathTemplate string
	DownstreamScheme       string
	// DownstreamMethod overrides the inbound method when set.
	DownstreamMethod string

	// ServiceName is the discovery key; empty for static hosts.
	ServiceName string
	Hosts       []backend.ServiceInstance
	Resolver    backend.Resolver

	LoadBalancer backend.Options
	QoS          QoSOptions
	Handler      HandlerOptions

	// Timeout is the route-level timeout; zero means none.
	Timeout time.Duration

	Handlers     []HandlerFactory
	HandlerNames []string
}

// Key returns the route identity. It is stable for the life of the catalog
// and distinct across routes.
func (d *Definition) Key() string { return d.key }

// Index returns the position of the route in configuration.
func (d *Definition) Index() int { return d.index }

// UpstreamTemplate returns the compiled upstream path template.
func (d *Definition) UpstreamTemplate() *router.Template { return d.upstream }

// UpstreamHost returns the host restriction, or "".
func (d *Definition) UpstreamHost() string { return d.host }

// HeaderRule returns the header routing rule, or nil.
func (d *Definition) HeaderRule() *router.HeaderRule { return d.headerRule }

// Methods returns the accepted methods; empty accepts any.
func (d *Definition) Methods() []string { return d.methods }

// AcceptsMethod reports whether method may use this route.
func (d *Definition) AcceptsMethod(method string) bool {
	if len(d.methods) == 0 {
		return true
	}
	for _, m := range d.methods {
		if strings.EqualFold(m, method) {
			return true
		}
	}
	return false
}

// DownstreamURL builds the outbound URL for instance.
func (d *Definition) DownstreamURL(instance backend.ServiceInstance, ph router.Placeholders, rawQuery string) (*url.URL, error) {
	pathAndQuery := router.BuildDownstreamPath(d.DownstreamPathTemplate, ph, rawQuery)
	return url.Parse(d.DownstreamScheme + "://" + instance.Address() + pathAndQuery)
}

// String implements fmt.Stringer.
func (d *Definition) String() string {
	return d.upstream.Original() + " -> " + d.DownstreamPathTemplate
}

// identity derives the route key from its upstream side and downstream
// target.
func identity(rc *config.RouteConfig, methods []string) string {
	target := rc.ServiceName
	if target == "" {
		target = rc.DownstreamPathTemplate
	}
	parts := []string{
		rc.UpstreamPathTemplate,
		strings.Join(methods, ","),
		rc.UpstreamHost,
		target,
	}
	return strings.Join(parts, "|")
}

func disambiguate(key string, index int) string {
	return key + "#" + strconv.Itoa(index)
}
