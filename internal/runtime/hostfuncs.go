package runtime

import (
	"context"
	"log/slog"

	"github.com/risor-io/risor/object"
	sitter "github.com/smacker/go-tree-sitter"

	"github.com/jward/passlens/internal/llvmir"
)

// parsedTree is one tree produced by parse_src.
type parsedTree struct {
	root *sitter.Node
	src  []byte
	lang *sitter.Language
}

// parseSession remembers the trees parsed during one script evaluation so
// node helpers can recover the text and grammar behind a node. A session
// is never shared between evaluations.
type parseSession struct {
	trees []parsedTree
}

func (s *parseSession) add(tree *sitter.Tree, src []byte, lang *sitter.Language) {
	s.trees = append(s.trees, parsedTree{root: tree.RootNode(), src: src, lang: lang})
}

// treeOf finds the parsed tree node belongs to.
func (s *parseSession) treeOf(node *sitter.Node) (parsedTree, bool) {
	root := node
	for p := root.Parent(); p != nil; p = root.Parent() {
		root = p
	}
	for _, t := range s.trees {
		if t.root.Equal(root) {
			return t, true
		}
	}
	return parsedTree{}, false
}

// hostFuncs returns the tree-sitter and IR helpers bound to a fresh session.
func hostFuncs() map[string]any {
	s := &parseSession{}
	return map[string]any{
		"parse_src":    s.parseSrcFn(),
		"node_text":    s.nodeTextFn(),
		"query":        s.queryFn(),
		"node_child":   nodeChildFn(),
		"node_span":    nodeSpanFn(),
		"is_directive": stringPredicateFn("is_directive", llvmir.IsDirective),
	}
}

// nodeArg unwraps a proxied *sitter.Node argument.
func nodeArg(fn string, arg object.Object) (*sitter.Node, *object.Error) {
	proxy, ok := arg.(*object.Proxy)
	if !ok {
		return nil, object.Errorf("%s: expected proxy (Node), got %s", fn, arg.Type())
	}
	node, ok := proxy.Interface().(*sitter.Node)
	if !ok {
		return nil, object.Errorf("%s: expected *sitter.Node, got %T", fn, proxy.Interface())
	}
	return node, nil
}

func stringArg(fn, what string, arg object.Object) (string, *object.Error) {
	s, ok := arg.(*object.String)
	if !ok {
		return "", object.Errorf("%s: %s must be a string, got %s", fn, what, arg.Type())
	}
	return s.Value(), nil
}

// parse_src(source, language) → *sitter.Tree
func (s *parseSession) parseSrcFn() *object.Builtin {
	return object.NewBuiltin("parse_src", func(ctx context.Context, args ...object.Object) object.Object {
		if len(args) != 2 {
			return object.NewArgsError("parse_src", 2, len(args))
		}
		src, errObj := stringArg("parse_src", "source", args[0])
		if errObj != nil {
			return errObj
		}
		name, errObj := stringArg("parse_src", "language", args[1])
		if errObj != nil {
			return errObj
		}

		lang, found := ParserForLanguage(name)
		if !found {
			return object.Errorf("parse_src: unsupported language %q", name)
		}
		parser := sitter.NewParser()
		defer parser.Close()
		parser.SetLanguage(lang)

		tree, err := parser.ParseCtx(ctx, nil, []byte(src))
		if err != nil {
			return object.Errorf("parse_src: tree-sitter parse failed: %v", err)
		}
		s.add(tree, []byte(src), lang)

		proxy, err := object.NewProxy(tree)
		if err != nil {
			return object.Errorf("parse_src: proxy error: %v", err)
		}
		return proxy
	})
}

// node_text(node) → string
//
// Risor proxies cannot pass the []byte that node.Content wants.
func (s *parseSession) nodeTextFn() *object.Builtin {
	return object.NewBuiltin("node_text", func(ctx context.Context, args ...object.Object) object.Object {
		if len(args) != 1 {
			return object.NewArgsError("node_text", 1, len(args))
		}
		node, errObj := nodeArg("node_text", args[0])
		if errObj != nil {
			return errObj
		}
		t, found := s.treeOf(node)
		if !found {
			return object.Errorf("node_text: node was not parsed by parse_src")
		}
		return object.NewString(node.Content(t.src))
	})
}

// query(pattern, node) → [{capture: Node}]
func (s *parseSession) queryFn() *object.Builtin {
	return object.NewBuiltin("query", func(ctx context.Context, args ...object.Object) object.Object {
		if len(args) != 2 {
			return object.NewArgsError("query", 2, len(args))
		}
		pattern, errObj := stringArg("query", "pattern", args[0])
		if errObj != nil {
			return errObj
		}
		node, errObj := nodeArg("query", args[1])
		if errObj != nil {
			return errObj
		}
		t, found := s.treeOf(node)
		if !found {
			return object.Errorf("query: node was not parsed by parse_src")
		}

		q, err := sitter.NewQuery([]byte(pattern), t.lang)
		if err != nil {
			return object.Errorf("query: invalid pattern: %v", err)
		}
		defer q.Close()

		cursor := sitter.NewQueryCursor()
		defer cursor.Close()
		cursor.Exec(q, node)

		matches := []object.Object{}
		for {
			match, ok := cursor.NextMatch()
			if !ok {
				break
			}
			match = cursor.FilterPredicates(match, t.src)

			captures := make(map[string]object.Object, len(match.Captures))
			for _, c := range match.Captures {
				name := q.CaptureNameForId(c.Index)
				p, err := object.NewProxy(c.Node)
				if err != nil {
					return object.Errorf("query: proxy error for capture %q: %v", name, err)
				}
				captures[name] = p
			}
			matches = append(matches, object.NewMap(captures))
		}
		return object.NewList(matches)
	})
}

// node_child(node, field) → Node or nil
func nodeChildFn() *object.Builtin {
	return object.NewBuiltin("node_child", func(ctx context.Context, args ...object.Object) object.Object {
		if len(args) != 2 {
			return object.NewArgsError("node_child", 2, len(args))
		}
		node, errObj := nodeArg("node_child", args[0])
		if errObj != nil {
			return errObj
		}
		field, errObj := stringArg("node_child", "field", args[1])
		if errObj != nil {
			return errObj
		}

		child := node.ChildByFieldName(field)
		if child == nil {
			return object.Nil
		}
		p, err := object.NewProxy(child)
		if err != nil {
			return object.Errorf("node_child: proxy error: %v", err)
		}
		return p
	})
}

// node_span(node) → {"start": int, "end": int}, 1-based source lines.
func nodeSpanFn() *object.Builtin {
	return object.NewBuiltin("node_span", func(ctx context.Context, args ...object.Object) object.Object {
		if len(args) != 1 {
			return object.NewArgsError("node_span", 1, len(args))
		}
		node, errObj := nodeArg("node_span", args[0])
		if errObj != nil {
			return errObj
		}
		return object.NewMap(map[string]object.Object{
			"start": object.NewInt(int64(node.StartPoint().Row) + 1),
			"end":   object.NewInt(int64(node.EndPoint().Row) + 1),
		})
	})
}

func stringPredicateFn(name string, pred func(string) bool) *object.Builtin {
	return object.NewBuiltin(name, func(ctx context.Context, args ...object.Object) object.Object {
		if len(args) != 1 {
			return object.NewArgsError(name, 1, len(args))
		}
		line, errObj := stringArg(name, "line", args[0])
		if errObj != nil {
			return errObj
		}
		return object.NewBool(pred(line))
	})
}

// scriptLog backs the `log` global.
type scriptLog struct {
	logger *slog.Logger
}

func (l *scriptLog) Info(msg string)  { l.logger.Info(msg, "source", "script") }
func (l *scriptLog) Warn(msg string)  { l.logger.Warn(msg, "source", "script") }
func (l *scriptLog) Error(msg string) { l.logger.Error(msg, "source", "script") }
