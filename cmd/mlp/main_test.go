package main

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	. "github.com/stevegt/goadapt"

	"github.com/stevegt/mlp"
)

func TestRunXOR(t *testing.T) {
	dir := t.TempDir()
	dotPath := filepath.Join(dir, "xor.dot")
	savePath := filepath.Join(dir, "xor.json")
	var stdout, stderr bytes.Buffer
	err := run([]string{"-epochs", "50", "-dot", dotPath, "-save", savePath}, &stdout, &stderr)
	Tassert(t, err == nil, err)
	out := stdout.String()
	Tassert(t, strings.HasPrefix(out, "(xor a b (sigmoid 3) (sigmoid y)): 50 epochs, mean cost "), out)
	Tassert(t, strings.Count(out, "->") == 4, out)

	buf, err := os.ReadFile(dotPath)
	Tassert(t, err == nil, err)
	Tassert(t, strings.HasPrefix(string(buf), "digraph"), string(buf))

	buf, err = os.ReadFile(savePath)
	Tassert(t, err == nil, err)
	net, err := mlp.Load(string(buf))
	Tassert(t, err == nil, err)
	Tassert(t, net.Name == "xor", net.Name)
}

func TestRunCSV(t *testing.T) {
	dir := t.TempDir()
	csvPath := filepath.Join(dir, "and.csv")
	err := os.WriteFile(csvPath, []byte("a,b,y\n0,0,0\n0,1,0\n1,0,0\n1,1,1\n"), 0644)
	Tassert(t, err == nil, err)
	var stdout, stderr bytes.Buffer
	err = run([]string{"-csv", csvPath, "-shape", "(and 2 (sigmoid 1))", "-epochs", "10"}, &stdout, &stderr)
	Tassert(t, err == nil, err)
	Tassert(t, strings.Count(stdout.String(), "->") == 4, stdout.String())
}

func TestRunErrors(t *testing.T) {
	var stdout, stderr bytes.Buffer
	// xor has 2 inputs
	err := run([]string{"-shape", "(bad 3 (sigmoid 1))"}, &stdout, &stderr)
	Tassert(t, err != nil && strings.Contains(err.Error(), "wants 3 inputs"), err)

	err = run([]string{"-shape", "(bad a b (softmax 1))"}, &stdout, &stderr)
	Tassert(t, err != nil && strings.Contains(err.Error(), "softmax"), err)

	err = run([]string{"-cost", "hinge", "-epochs", "1"}, &stdout, &stderr)
	Tassert(t, err != nil && strings.Contains(err.Error(), "hinge"), err)

	err = run([]string{"-maxcost", "1e-12", "-epochs", "5"}, &stdout, &stderr)
	Tassert(t, err != nil && strings.Contains(err.Error(), "max epochs reached"), err)
}
