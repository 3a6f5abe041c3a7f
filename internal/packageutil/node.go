package packageutil

import (
	"regexp"
	"strings"
)

var (
	packageRegex = regexp.MustCompile(
		`[/\\]([^/\\].+?)[/\\]([^/\\].+?)([/\\].*|$)`,
	)
	t = true
	f = false
)

type PackageInfo struct {
	Package string
	InApp   *bool
	// Path is the path relative to the package root, when known.
	Path string
}

func ParseNodePackageFromPath(p string) PackageInfo {
	// if it's a official node package
	if strings.HasPrefix(p, "node:") {
		parts := strings.SplitN(p, "/", 2)
		info := PackageInfo{
			Package: parts[0],
			InApp:   &f,
		}
		if len(parts) == 2 {
			info.Path = parts[1]
		}
		return info
	}

	splits := strings.Split(p, "node_modules")

	// if there's no node_modules, user package
	if len(splits) == 1 {
		return PackageInfo{
			InApp: &t,
		}
	}

	results := packageRegex.FindStringSubmatch(splits[len(splits)-1])

	// if it's a third party package
	if len(results) > 3 {
		if results[1][0] == '@' {
			return PackageInfo{
				Package: results[1] + "/" + results[2],
				InApp:   &f,
				Path:    strings.TrimLeft(results[3], `/\`),
			}
		}
		return PackageInfo{
			Package: results[1],
			InApp:   &f,
			Path:    strings.TrimLeft(results[2]+results[3], `/\`),
		}
	}

	return PackageInfo{
		InApp: &t,
	}
}
