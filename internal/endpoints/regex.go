package endpoints

import (
	"regexp"
	"strings"
)

var (
	jsRoute = regexp.MustCompile("([A-Za-z_$][\\w$]*)\\.(get|post|put|patch|delete|all|options|head)\\(\\s*['\"`]([^'\"`]*)['\"`]")
	goRoute = regexp.MustCompile("\\.(HandleFunc|Handle|GET|POST|PUT|PATCH|DELETE|Get|Post|Put|Patch|Delete)\\(\\s*[\"`]([^\"`]*)[\"`]")
	pyRoute = regexp.MustCompile(`@[\w.]+\.(get|post|put|patch|delete|route|api_route)\(\s*[rbfu]?['"]([^'"]*)['"]([^)]*)\)`)

	pyMethods = regexp.MustCompile(`methods\s*=\s*[\[(]([^\])]*)[\])]`)
	pyString  = regexp.MustCompile(`['"]([A-Za-z]+)['"]`)
)

// scanRegex is the cgo-free scanner.
func scanRegex(file string, source []byte, lang Language) []Endpoint {
	text := string(source)
	var out []Endpoint

	switch lang {
	case LangJavaScript, LangTypeScript, LangTSX:
		for _, m := range jsRoute.FindAllStringSubmatchIndex(text, -1) {
			recv, verb, p := text[m[2]:m[3]], text[m[4]:m[5]], text[m[6]:m[7]]
			if validPath(p) && !isClientReceiver(recv) {
				out = append(out, Endpoint{Method: jsVerbs[verb], Path: p, File: file, Line: lineAt(text, m[0])})
			}
		}
	case LangGo:
		for _, m := range goRoute.FindAllStringSubmatchIndex(text, -1) {
			method, p := goPattern(goVerbs[text[m[2]:m[3]]], text[m[4]:m[5]])
			if validPath(p) {
				out = append(out, Endpoint{Method: method, Path: p, File: file, Line: lineAt(text, m[0])})
			}
		}
	case LangPython:
		for _, m := range pyRoute.FindAllStringSubmatchIndex(text, -1) {
			verb, p, rest := text[m[2]:m[3]], text[m[4]:m[5]], text[m[6]:m[7]]
			if !validPath(p) {
				continue
			}
			line := lineAt(text, m[0])
			for _, method := range pythonMethods(verb, regexMethods(rest)) {
				out = append(out, Endpoint{Method: method, Path: p, File: file, Line: line})
			}
		}
	}
	return out
}

func regexMethods(args string) []string {
	mm := pyMethods.FindStringSubmatch(args)
	if mm == nil {
		return nil
	}
	var methods []string
	for _, s := range pyString.FindAllStringSubmatch(mm[1], -1) {
		methods = append(methods, s[1])
	}
	return methods
}

// pythonMethods resolves the methods of a decorator: explicit methods=[...]
// for route-style decorators, the verb otherwise.
func pythonMethods(verb string, explicit []string) []string {
	if (verb == "route" || verb == "api_route") && len(explicit) > 0 {
		out := make([]string, len(explicit))
		for i, m := range explicit {
			out[i] = strings.ToUpper(m)
		}
		return out
	}
	return []string{pyVerbs[verb]}
}

func lineAt(text string, offset int) int {
	return strings.Count(text[:offset], "\n") + 1
}
