package main

import (
	"fmt"
	"go/parser"
	"go/token"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

const modulePath = "github.com/rossfreedman/rally-sub012"

// layerPolicy pins the import surface of one layer inside a service
// directory. allow lists the module-internal prefixes the layer may reach;
// sealed layers must stay free of third-party imports entirely. Stdlib is
// always permitted.
type layerPolicy struct {
	sealed bool
	allow  func(modulePrefix string) []string
}

var layerPolicies = map[string]layerPolicy{
	"domain": {
		sealed: true,
		allow: func(modulePrefix string) []string {
			return []string{modulePrefix + "/domain"}
		},
	},
	"ports": {
		sealed: true,
		allow: func(modulePrefix string) []string {
			return []string{
				modulePrefix + "/domain",
				modulePath + "/internal/shared",
			}
		},
	},
	"application": {
		sealed: true,
		allow: func(modulePrefix string) []string {
			return []string{
				modulePrefix + "/application",
				modulePrefix + "/domain",
				modulePrefix + "/ports",
				modulePath + "/internal/shared",
			}
		},
	},
	"transport": {
		sealed: true,
		allow: func(modulePrefix string) []string {
			return []string{modulePrefix + "/domain"}
		},
	},
	"adapters": {
		allow: func(modulePrefix string) []string {
			return []string{
				modulePrefix,
				modulePath + "/internal/shared",
			}
		},
	},
}

type violation struct {
	File   string
	Line   int
	Import string
	Rule   string
}

func main() {
	violations := collectViolations("contexts")
	if len(violations) == 0 {
		fmt.Println("boundary checks passed")
		return
	}

	sort.Slice(violations, func(i, j int) bool {
		if violations[i].File == violations[j].File {
			if violations[i].Line == violations[j].Line {
				return violations[i].Import < violations[j].Import
			}
			return violations[i].Line < violations[j].Line
		}
		return violations[i].File < violations[j].File
	})

	fmt.Println("boundary violations found:")
	for _, v := range violations {
		fmt.Printf("- %s:%d imports %q (%s)\n", v.File, v.Line, v.Import, v.Rule)
	}
	os.Exit(1)
}

func collectViolations(root string) []violation {
	var violations []violation

	_ = filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil || d.IsDir() || !strings.HasSuffix(path, ".go") || strings.HasSuffix(path, "_test.go") {
			return nil
		}

		normalized := filepath.ToSlash(path)
		parts := strings.Split(normalized, "/")
		if len(parts) < 4 || parts[0] != "contexts" {
			return nil
		}

		contextName := parts[1]
		serviceName := parts[2]
		layer := parts[3]
		modulePrefix := fmt.Sprintf("%s/contexts/%s/%s", modulePath, contextName, serviceName)

		violations = append(violations, validateFile(path, normalized, layer, modulePrefix)...)
		return nil
	})

	return violations
}

func validateFile(path string, normalizedPath string, layer string, modulePrefix string) []violation {
	var violations []violation

	fset := token.NewFileSet()
	file, err := parser.ParseFile(fset, path, nil, parser.ImportsOnly)
	if err != nil {
		return append(violations, violation{
			File: normalizedPath,
			Line: 1,
			Rule: "file must parse",
		})
	}

	policy, hasPolicy := layerPolicies[layer]

	for _, imp := range file.Imports {
		importPath := strings.Trim(imp.Path.Value, "\"")
		line := fset.Position(imp.Pos()).Line

		if strings.HasPrefix(importPath, modulePath+"/contexts/") && !hasPrefix(importPath, modulePrefix) {
			violations = append(violations, violation{
				File:   normalizedPath,
				Line:   line,
				Import: importPath,
				Rule:   "cross-service imports are forbidden",
			})
		}

		if !hasPolicy {
			continue
		}

		switch {
		case isStdlib(importPath):
		case strings.HasPrefix(importPath, modulePath+"/"):
			if !isAllowed(importPath, policy.allow(modulePrefix)) {
				violations = append(violations, violation{
					File:   normalizedPath,
					Line:   line,
					Import: importPath,
					Rule:   layer + " import is outside the layer allowlist",
				})
			}
		default:
			if policy.sealed {
				violations = append(violations, violation{
					File:   normalizedPath,
					Line:   line,
					Import: importPath,
					Rule:   layer + " must not import third-party packages",
				})
			}
		}
	}

	return violations
}

func hasPrefix(path string, prefix string) bool {
	return path == prefix || strings.HasPrefix(path, prefix+"/")
}

func isAllowed(importPath string, allowedPrefixes []string) bool {
	for _, p := range allowedPrefixes {
		if hasPrefix(importPath, p) {
			return true
		}
	}
	return false
}

func isStdlib(importPath string) bool {
	if strings.HasPrefix(importPath, modulePath+"/") {
		return false
	}
	first := importPath
	if idx := strings.Index(first, "/"); idx != -1 {
		first = first[:idx]
	}
	return !strings.Contains(first, ".")
}
