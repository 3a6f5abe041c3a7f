package packageutil

import (
	"net/url"
	"regexp"
	"strings"
)

type (
	// Registry describes a package registry or CDN serving packages over http(s).
	Registry struct {
		Name      string
		Hosts     []string
		Endpoints []*regexp.Regexp
	}

	// RegistryMatch is the result of matching a URL against the known registries.
	RegistryMatch struct {
		Registry string
		Host     string
		Package  string
		Version  string
		Path     string
	}
)

// Every endpoint pattern provides the "name" group and optionally "version"
// and "path" groups.
const (
	npmName     = `(?P<name>(?:@[^/@]+/)?[^/@]+)`
	npmVersion  = `(?:@(?P<version>[^/]+))?`
	trailerPath = `(?:/(?P<path>.*))?`
)

var registries = []Registry{
	{
		Name:  "jsdelivr",
		Hosts: []string{"cdn.jsdelivr.net", "fastly.jsdelivr.net"},
		Endpoints: []*regexp.Regexp{
			regexp.MustCompile(`^/npm/` + npmName + npmVersion + trailerPath + `$`),
			regexp.MustCompile(`^/gh/(?P<name>[^/@]+/[^/@]+)` + npmVersion + trailerPath + `$`),
		},
	},
	{
		Name:      "unpkg",
		Hosts:     []string{"unpkg.com"},
		Endpoints: []*regexp.Regexp{regexp.MustCompile(`^/` + npmName + npmVersion + trailerPath + `$`)},
	},
	{
		Name:      "esm.sh",
		Hosts:     []string{"esm.sh"},
		Endpoints: []*regexp.Regexp{regexp.MustCompile(`^/(?:v\d+/)?(?:stable/)?` + npmName + npmVersion + trailerPath + `$`)},
	},
	{
		Name:      "esm.run",
		Hosts:     []string{"esm.run"},
		Endpoints: []*regexp.Regexp{regexp.MustCompile(`^/` + npmName + npmVersion + trailerPath + `$`)},
	},
	{
		Name:      "skypack",
		Hosts:     []string{"cdn.skypack.dev"},
		Endpoints: []*regexp.Regexp{regexp.MustCompile(`^/(?:-/)?` + npmName + npmVersion + trailerPath + `$`)},
	},
	{
		Name:      "jspm",
		Hosts:     []string{"ga.jspm.io", "jspm.dev"},
		Endpoints: []*regexp.Regexp{regexp.MustCompile(`^/npm:` + npmName + npmVersion + trailerPath + `$`)},
	},
	{
		Name:      "cdnjs",
		Hosts:     []string{"cdnjs.cloudflare.com"},
		Endpoints: []*regexp.Regexp{regexp.MustCompile(`^/ajax/libs/(?P<name>[^/]+)/(?P<version>[^/]+)` + trailerPath + `$`)},
	},
	{
		Name:  "deno",
		Hosts: []string{"deno.land"},
		Endpoints: []*regexp.Regexp{
			regexp.MustCompile(`^/x/(?P<name>[^/@]+)` + npmVersion + trailerPath + `$`),
			regexp.MustCompile(`^/(?P<name>std)` + npmVersion + trailerPath + `$`),
		},
	},
}

var registryByHost = func() map[string]*Registry {
	m := make(map[string]*Registry)
	for i := range registries {
		for _, h := range registries[i].Hosts {
			m[h] = &registries[i]
		}
	}
	return m
}()

// MatchRegistry checks if u points into a known registry or CDN and extracts
// the package coordinates from its path.
func MatchRegistry(u *url.URL) (RegistryMatch, bool) {
	if u == nil || (u.Scheme != "http" && u.Scheme != "https") {
		return RegistryMatch{}, false
	}
	host := strings.ToLower(u.Hostname())
	r, ok := registryByHost[host]
	if !ok {
		return RegistryMatch{}, false
	}
	for _, re := range r.Endpoints {
		m := re.FindStringSubmatch(u.Path)
		if m == nil {
			continue
		}
		result := RegistryMatch{Registry: r.Name, Host: host}
		for i, group := range re.SubexpNames() {
			switch group {
			case "name":
				result.Package = m[i]
			case "version":
				result.Version = m[i]
			case "path":
				result.Path = m[i]
			}
		}
		if result.Package == "" {
			continue
		}
		return result, true
	}
	return RegistryMatch{}, false
}
