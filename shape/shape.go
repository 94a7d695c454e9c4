package shape

import (
	"strconv"
	"strings"

	. "github.com/stevegt/goadapt"
	"github.com/xiam/sexpr/ast"
	"github.com/xiam/sexpr/parser"
)

// The shape language describes a network topology:
//
//	(name inputs... layer... outputLayer)
//
// Inputs are either symbols naming each input or a single integer
// giving the input count.  Each layer is (activation width).  The
// output layer may list output names instead of a width:
//
//	(xor a b (sigmoid 3) (sigmoid y))
//	(digits 64 (relu 32) (sigmoid 10))
//
// A layer may also be written as a (+ ...) of node groups, as long as
// every group uses the same activation.

// Shape is a representation of the network's shape.
type Shape struct {
	Name        string
	InputNames  []string
	OutputNames []string
	LayerShapes []*LayerShape
	inputCount  int
}

// InputCount returns the number of inputs.
func (s *Shape) InputCount() int {
	if s.InputNames != nil {
		return len(s.InputNames)
	}
	return s.inputCount
}

// SetInputCount declares count unnamed inputs, clearing any input
// names.
func (s *Shape) SetInputCount(count int) {
	Assert(count > 0, "input count %d is not positive", count)
	s.InputNames = nil
	s.inputCount = count
}

// Widths returns the input count followed by the width of every layer.
func (s *Shape) Widths() (widths []int) {
	widths = append(widths, s.InputCount())
	for _, layer := range s.LayerShapes {
		widths = append(widths, layer.Width)
	}
	return
}

func (s *Shape) String() (out string) {
	parts := []string{s.Name}
	if s.InputNames != nil {
		parts = append(parts, s.InputNames...)
	} else {
		parts = append(parts, strconv.Itoa(s.inputCount))
	}
	for _, layer := range s.LayerShapes {
		parts = append(parts, layer.String())
	}
	out = Spf("(%s)", strings.Join(parts, " "))
	return
}

// LayerShape is one layer: an activation name and a width.  Names is
// only set on an output layer that names its nodes.
type LayerShape struct {
	ActivationName string
	Width          int
	Names          []string
}

func (s *LayerShape) String() (out string) {
	if s.Names != nil {
		return Spf("(%s %s)", s.ActivationName, strings.Join(s.Names, " "))
	}
	return Spf("(%s %d)", s.ActivationName, s.Width)
}

// SyntaxError is a syntax error.
type SyntaxError struct {
	Msg string
	Pos string
	Src string
}

func (e *SyntaxError) Error() string {
	return Spf("[shape:%s] %s:\n%s", e.Pos, e.Msg, e.Src)
}

// position returns the source position of node, or "?" for nodes
// without a token, such as the root list.
func position(node *ast.Node) (pos string) {
	defer func() {
		if recover() != nil {
			pos = "?"
		}
	}()
	p := node.Token().Pos()
	return Spf("%d:%d", p.Line, p.Column)
}

// synck raises a syntax err if cond is false.
func synck(node *ast.Node, cond bool, args ...interface{}) {
	if !cond {
		msg := FormatArgs(args...)
		panic(&SyntaxError{Msg: msg, Pos: position(node), Src: node.String()})
	}
}

// catch converts a SyntaxError panic into err.
func catch(err *error) {
	r := recover()
	if r == nil {
		return
	}
	if e, ok := r.(*SyntaxError); ok {
		*err = e
		return
	}
	panic(r)
}

// Parse parses a shape from its text form.
func Parse(txt string) (s *Shape, err error) {
	defer catch(&err)
	root, err := parser.Parse([]byte(txt))
	if err != nil {
		return nil, err
	}

	// root is a list
	synck(root, root.Type() == ast.NodeTypeList, "root is not a list")
	// root has one child
	children := root.List()
	synck(root, len(children) == 1, "root has %d children", len(children))
	// root's child is an expression
	expr := children[0]
	synck(expr, expr.Type() == ast.NodeTypeExpression, "root's child is not an expression")
	s = parseShape(parseExpr(expr))
	return
}

// Expr is a parsed expression: an operator and its arguments.  Atoms
// have no arguments.
type Expr struct {
	Op   string
	Args []*Expr
	atom bool
	node *ast.Node
}

func parseShape(expr *Expr) (s *Shape) {
	s = &Shape{Name: expr.Op}
	for _, arg := range expr.Args {
		if arg.atom {
			synck(arg.node, len(s.LayerShapes) == 0, "input %s follows a layer", arg.Op)
			count, err := strconv.Atoi(arg.Op)
			if err == nil {
				synck(arg.node, count > 0, "input count %d is not positive", count)
				synck(arg.node, s.inputCount == 0 && s.InputNames == nil, "input count must be the only input")
				s.inputCount = count
				continue
			}
			synck(arg.node, s.inputCount == 0, "input count must be the only input")
			s.InputNames = append(s.InputNames, arg.Op)
			continue
		}
		s.LayerShapes = append(s.LayerShapes, parseLayer(arg))
	}
	synck(expr.node, s.InputCount() > 0, "missing inputs")
	synck(expr.node, len(s.LayerShapes) > 0, "missing layers")
	for _, layer := range s.LayerShapes[:len(s.LayerShapes)-1] {
		synck(expr.node, layer.Names == nil, "only the output layer can name its nodes")
	}
	s.OutputNames = s.LayerShapes[len(s.LayerShapes)-1].Names
	return
}

func parseLayer(arg *Expr) (ls *LayerShape) {
	if arg.Op == "+" {
		// node groups
		synck(arg.node, len(arg.Args) > 0, "empty node group list")
		for _, groupExpr := range arg.Args {
			synck(groupExpr.node, !groupExpr.atom, "node group %s is not an expression", groupExpr.Op)
			group := parseLayer(groupExpr)
			if ls == nil {
				ls = group
				continue
			}
			synck(groupExpr.node, group.ActivationName == ls.ActivationName,
				"node groups in one layer must share an activation, got %s and %s", ls.ActivationName, group.ActivationName)
			synck(groupExpr.node, (group.Names == nil) == (ls.Names == nil), "layer has both hidden and output nodes")
			ls.Width += group.Width
			if group.Names != nil {
				ls.Names = append(ls.Names, group.Names...)
			}
		}
		return
	}

	ls = &LayerShape{ActivationName: arg.Op}
	synck(arg.node, len(arg.Args) > 0, "layer %s has no nodes", arg.Op)
	for _, nodeExpr := range arg.Args {
		synck(nodeExpr.node, nodeExpr.atom, "unexpected expression in layer %s", arg.Op)
		// nodeExpr.Op is either a node count or an output name
		count, err := strconv.Atoi(nodeExpr.Op)
		if err != nil {
			ls.Names = append(ls.Names, nodeExpr.Op)
			ls.Width++
			continue
		}
		synck(nodeExpr.node, count > 0, "node count %d is not positive", count)
		ls.Width += count
	}
	synck(arg.node, ls.Names == nil || ls.Width == len(ls.Names), "layer has both hidden and output nodes")
	return
}

func parseExpr(n *ast.Node) (expr *Expr) {
	children := n.List()
	synck(n, len(children) > 0, "missing opcode")
	synck(children[0], children[0].Type() == ast.NodeTypeSymbol, "first word is not a symbol")
	expr = &Expr{Op: children[0].Encode(), node: n}
	for _, child := range children[1:] {
		switch child.Type() {
		case ast.NodeTypeSymbol, ast.NodeTypeInt:
			expr.Args = append(expr.Args, &Expr{Op: child.Encode(), atom: true, node: child})
		case ast.NodeTypeExpression:
			expr.Args = append(expr.Args, parseExpr(child))
		default:
			synck(child, false, "unexpected %v", child.Type())
		}
	}
	return
}
