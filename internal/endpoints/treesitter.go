//go:build cgo

package endpoints

import (
	"context"
	"fmt"

	sitter "github.com/smacker/go-tree-sitter"
	"github.com/smacker/go-tree-sitter/golang"
	"github.com/smacker/go-tree-sitter/javascript"
	"github.com/smacker/go-tree-sitter/python"
	"github.com/smacker/go-tree-sitter/typescript/tsx"
	"github.com/smacker/go-tree-sitter/typescript/typescript"
)

// scanSource parses with tree-sitter and falls back to the regex scanner
// when the grammar rejects the file.
func scanSource(ctx context.Context, file string, source []byte, lang Language) []Endpoint {
	root, err := parse(ctx, source, lang)
	if err != nil || root == nil {
		return scanRegex(file, source, lang)
	}

	var out []Endpoint
	for _, call := range findNodes(root, callNodeType(lang)) {
		switch lang {
		case LangGo:
			out = append(out, goCall(call, source, file)...)
		case LangPython:
			out = append(out, pythonCall(call, source, file)...)
		default:
			out = append(out, jsCall(call, source, file)...)
		}
	}
	return out
}

func parse(ctx context.Context, source []byte, lang Language) (*sitter.Node, error) {
	tsLang, err := getLanguage(lang)
	if err != nil {
		return nil, err
	}

	parser := sitter.NewParser()
	parser.SetLanguage(tsLang)

	tree, err := parser.ParseCtx(ctx, nil, source)
	if err != nil {
		return nil, fmt.Errorf("parse error: %w", err)
	}
	return tree.RootNode(), nil
}

func getLanguage(lang Language) (*sitter.Language, error) {
	switch lang {
	case LangGo:
		return golang.GetLanguage(), nil
	case LangJavaScript:
		return javascript.GetLanguage(), nil
	case LangTypeScript:
		return typescript.GetLanguage(), nil
	case LangTSX:
		return tsx.GetLanguage(), nil
	case LangPython:
		return python.GetLanguage(), nil
	default:
		return nil, fmt.Errorf("unsupported language: %s", lang)
	}
}

func callNodeType(lang Language) string {
	if lang == LangPython {
		return "call"
	}
	return "call_expression"
}

func findNodes(root *sitter.Node, nodeType string) []*sitter.Node {
	var result []*sitter.Node

	var walk func(*sitter.Node)
	walk = func(node *sitter.Node) {
		if node == nil {
			return
		}
		if node.Type() == nodeType {
			result = append(result, node)
		}
		for i := 0; i < int(node.ChildCount()); i++ {
			walk(node.Child(i))
		}
	}

	walk(root)
	return result
}

func line(n *sitter.Node) int {
	return int(n.StartPoint().Row) + 1
}

// firstStringArg returns the unquoted first argument when it is a string literal.
func firstStringArg(call *sitter.Node, source []byte, literalTypes ...string) (string, bool) {
	args := call.ChildByFieldName("arguments")
	if args == nil || args.NamedChildCount() == 0 {
		return "", false
	}
	first := args.NamedChild(0)
	for _, t := range literalTypes {
		if first.Type() == t {
			return unquote(first.Content(source)), true
		}
	}
	return "", false
}

// jsCall matches app.get('/x', ...) style registrations.
func jsCall(call *sitter.Node, source []byte, file string) []Endpoint {
	fn := call.ChildByFieldName("function")
	if fn == nil || fn.Type() != "member_expression" {
		return nil
	}
	prop := fn.ChildByFieldName("property")
	if prop == nil {
		return nil
	}
	method, ok := jsVerbs[prop.Content(source)]
	if !ok {
		return nil
	}
	if isClientReceiver(receiverName(fn.ChildByFieldName("object"), source)) {
		return nil
	}
	p, ok := firstStringArg(call, source, "string", "template_string")
	if !ok || !validPath(p) {
		return nil
	}
	return []Endpoint{{Method: method, Path: p, File: file, Line: line(call)}}
}

// receiverName returns the last name of a call receiver: http for
// this.http, axios for axios.
func receiverName(obj *sitter.Node, source []byte) string {
	if obj == nil {
		return ""
	}
	if obj.Type() == "member_expression" {
		if prop := obj.ChildByFieldName("property"); prop != nil {
			return prop.Content(source)
		}
	}
	return obj.Content(source)
}

// goCall matches mux.HandleFunc("/x", ...) and router.GET("/x", ...).
func goCall(call *sitter.Node, source []byte, file string) []Endpoint {
	fn := call.ChildByFieldName("function")
	if fn == nil || fn.Type() != "selector_expression" {
		return nil
	}
	field := fn.ChildByFieldName("field")
	if field == nil {
		return nil
	}
	verb, ok := goVerbs[field.Content(source)]
	if !ok {
		return nil
	}
	pattern, ok := firstStringArg(call, source, "interpreted_string_literal", "raw_string_literal")
	if !ok {
		return nil
	}
	method, p := goPattern(verb, pattern)
	if !validPath(p) {
		return nil
	}
	return []Endpoint{{Method: method, Path: p, File: file, Line: line(call)}}
}

// pythonCall matches decorators such as @app.get("/x") and
// @bp.route("/x", methods=["GET", "POST"]).
func pythonCall(call *sitter.Node, source []byte, file string) []Endpoint {
	if parent := call.Parent(); parent == nil || parent.Type() != "decorator" {
		return nil
	}
	fn := call.ChildByFieldName("function")
	if fn == nil || fn.Type() != "attribute" {
		return nil
	}
	attr := fn.ChildByFieldName("attribute")
	if attr == nil {
		return nil
	}
	verb := attr.Content(source)
	if _, ok := pyVerbs[verb]; !ok {
		return nil
	}
	p, ok := firstStringArg(call, source, "string")
	if !ok || !validPath(p) {
		return nil
	}

	var out []Endpoint
	for _, method := range pythonMethods(verb, keywordMethods(call, source)) {
		out = append(out, Endpoint{Method: method, Path: p, File: file, Line: line(call)})
	}
	return out
}

func keywordMethods(call *sitter.Node, source []byte) []string {
	args := call.ChildByFieldName("arguments")
	if args == nil {
		return nil
	}
	for i := 0; i < int(args.NamedChildCount()); i++ {
		kw := args.NamedChild(i)
		if kw.Type() != "keyword_argument" {
			continue
		}
		name := kw.ChildByFieldName("name")
		value := kw.ChildByFieldName("value")
		if name == nil || value == nil || name.Content(source) != "methods" {
			continue
		}
		var methods []string
		for j := 0; j < int(value.NamedChildCount()); j++ {
			item := value.NamedChild(j)
			if item.Type() == "string" {
				methods = append(methods, unquote(item.Content(source)))
			}
		}
		return methods
	}
	return nil
}
