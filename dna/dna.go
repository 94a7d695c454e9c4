package dna

import (
	"bytes"
	"encoding/binary"
	"math"
	"strings"

	"github.com/pkg/errors"
	. "github.com/stevegt/goadapt"
)

// The DNA language is:
//
// name,inputNames,outputNames|statements
//
// where:
//
// - name is the network's name
// - inputNames is a space-separated list of input names
// - outputNames is a space-separated list of output names
// - statements is a binary byte array
//
// Statements are 72 bits -- 8 bits for the opcode, and 64 bits for
// the big-endian float64 argument.  The opcodes are the Opcode
// constants.  A network program looks like:
//
//	OpSetInputs 2
//	OpSetCost 0
//	OpAddLayer 3
//	OpSetActivation 0
//	OpSetWeight ... (NodesIn weights per node, node by node)
//	OpSetBias ... (one per node)
//	OpAddLayer 1
//	...
//	OpHalt
//
// Weights and biases fill the most recent layer in order; each opcode
// keeps its own cursor.

// StatementSize is the encoded size of one statement in bytes.
const StatementSize = 9

type Statement struct {
	Opcode Opcode
	Arg    float64
}

// String returns a string representation of the statement.
func (statement *Statement) String() string {
	return Spf("%v %f", statement.Opcode, statement.Arg)
}

type DNA struct {
	Name        string
	InputNames  []string
	OutputNames []string
	Statements  []*Statement
}

// String returns a string representation of the DNA.
func (dna *DNA) String() string {
	var buf bytes.Buffer
	buf.WriteString(Spf("DNA %s\n", dna.Name))
	buf.WriteString(Spf("Inputs: %s\n", strings.Join(dna.InputNames, " ")))
	buf.WriteString(Spf("Outputs: %s\n", strings.Join(dna.OutputNames, " ")))
	for _, statement := range dna.Statements {
		buf.WriteString(Spf("%s\n", statement))
	}
	return buf.String()
}

// Clone returns a deep copy of the DNA.
func (dna *DNA) Clone() (clone *DNA) {
	clone = &DNA{Name: dna.Name}
	if dna.InputNames != nil {
		clone.InputNames = append([]string{}, dna.InputNames...)
	}
	if dna.OutputNames != nil {
		clone.OutputNames = append([]string{}, dna.OutputNames...)
	}
	clone.Statements = make([]*Statement, len(dna.Statements))
	for i, statement := range dna.Statements {
		s := *statement
		clone.Statements[i] = &s
	}
	return
}

func New(name string) (dna *DNA) {
	dna = &DNA{Name: name}
	return
}

// AddOp appends a statement to the DNA given an opcode and argument.
func (dna *DNA) AddOp(opcode Opcode, arg float64) {
	statement := &Statement{
		Opcode: opcode,
		Arg:    arg,
	}
	dna.Statements = append(dna.Statements, statement)
}

// AddBytes appends a statement to the DNA given a 9-byte slice.
func (dna *DNA) AddBytes(buf []byte) {
	Assert(len(buf) == StatementSize, "statement is %d bytes, expected %d", len(buf), StatementSize)
	opcode := Opcode(buf[0])
	arg := Float64FromBytes(buf[1:])
	dna.AddOp(opcode, arg)
}

// AsBytes returns the DNA as a byte slice.
func (dna *DNA) AsBytes() (out []byte) {
	var buf bytes.Buffer
	Assert(!strings.ContainsAny(dna.Name, ", |"), "name %q cannot be encoded", dna.Name)
	for _, names := range [][]string{dna.InputNames, dna.OutputNames} {
		for _, name := range names {
			Assert(name != "" && !strings.ContainsAny(name, ", |"), "name %q cannot be encoded", name)
		}
	}
	head := Spf("%s,%s,%s|", dna.Name, strings.Join(dna.InputNames, " "), strings.Join(dna.OutputNames, " "))
	_, err := buf.WriteString(head)
	Ck(err)
	_, err = buf.Write(dna.StatementsAsBytes())
	Ck(err)
	out = buf.Bytes()
	return
}

// FromBytes creates a new DNA object from a byte slice.  The
// statements may themselves contain '|' bytes, so only the first one
// ends the header.
func FromBytes(buf []byte) (dna *DNA, err error) {
	end := bytes.IndexByte(buf, '|')
	if end < 0 {
		return nil, errors.New("invalid dna: missing header")
	}
	head := string(buf[:end])
	parts := strings.Split(head, ",")
	if len(parts) != 3 {
		return nil, errors.Errorf("invalid dna head %q", head)
	}
	dna = &DNA{
		Name:        parts[0],
		InputNames:  splitNames(parts[1]),
		OutputNames: splitNames(parts[2]),
	}
	dna.StatementsFromBytes(buf[end+1:])
	return
}

func splitNames(txt string) []string {
	if txt == "" {
		return nil
	}
	return strings.Split(txt, " ")
}

// StatementsFromBytes replaces the DNA statements from a byte slice.
// A partial statement at the end is ignored.
func (dna *DNA) StatementsFromBytes(buf []byte) {
	dna.Statements = make([]*Statement, 0, len(buf)/StatementSize)
	for i := 0; i+StatementSize <= len(buf); i += StatementSize {
		dna.AddBytes(buf[i : i+StatementSize])
	}
}

// StatementsAsBytes returns the DNA statements as a byte slice.
func (dna *DNA) StatementsAsBytes() (outbuf []byte) {
	var buf bytes.Buffer
	for _, statement := range dna.Statements {
		// write opcode
		err := buf.WriteByte(byte(statement.Opcode))
		Ck(err)
		// write argument
		argbytes := Float64ToBytes(statement.Arg)
		n, err := buf.Write(argbytes)
		Ck(err)
		Assert(n == len(argbytes), "short write")
	}
	outbuf = buf.Bytes()
	return
}

type Opcode uint8

const (
	// set input count
	OpSetInputs Opcode = iota
	// set cost function number
	OpSetCost
	// add layer with the given width
	OpAddLayer
	// set activation number of most recent layer
	OpSetActivation
	// set next weight of most recent layer
	OpSetWeight
	// set next bias of most recent layer
	OpSetBias
	// stop processing
	OpHalt
	// keep this last
	OpLast
)

var opcodeNames = []string{
	OpSetInputs:     "SetInputs",
	OpSetCost:       "SetCost",
	OpAddLayer:      "AddLayer",
	OpSetActivation: "SetActivation",
	OpSetWeight:     "SetWeight",
	OpSetBias:       "SetBias",
	OpHalt:          "Halt",
}

func (op Opcode) String() string {
	if op < OpLast {
		return opcodeNames[op]
	}
	return Spf("Op(%d)", uint8(op))
}

func Float64FromBytes(bytes []byte) float64 {
	bits := binary.BigEndian.Uint64(bytes)
	float := math.Float64frombits(bits)
	return float
}

func Float64ToBytes(float float64) []byte {
	bits := math.Float64bits(float)
	bytes := make([]byte, 8)
	binary.BigEndian.PutUint64(bytes, bits)
	return bytes
}
