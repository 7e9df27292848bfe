package pdfdoc

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"math"
	"sort"
	"strconv"

	"github.com/wudi/pdfkit/ir/semantic"
	"github.com/wudi/pdfkit/scanner"
)

// semantic.Operand is a closed interface, so the keyword literals true, false
// and null travel as NameOperands with a NUL prefix and are written back bare.
const literalPrefix = "\x00"

func literal(kw string) semantic.NameOperand {
	return semantic.NameOperand{Value: literalPrefix + kw}
}

type frame struct {
	items  []semantic.Operand
	isDict bool
}

// decodeOps tokenizes a content stream into operations. Inline images are kept
// verbatim as a single "BI" operation whose only operand is the source bytes
// from BI through EI.
func decodeOps(data []byte) ([]semantic.Operation, error) {
	sc := scanner.New(bytes.NewReader(data), scanner.Config{})

	var (
		ops      []semantic.Operation
		operands []semantic.Operand
		stack    []frame
		pendingR bool
		biStart  int64 = -1
	)

	push := func(o semantic.Operand) {
		if n := len(stack); n > 0 {
			stack[n-1].items = append(stack[n-1].items, o)
			return
		}
		operands = append(operands, o)
	}

	for {
		tok, err := sc.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return ops, fmt.Errorf("content stream offset %d: %w", sc.Position(), err)
		}

		switch tok.Type {
		case scanner.TokenNumber:
			push(semantic.NumberOperand{Value: tokenFloat(tok.Value)})
		case scanner.TokenRef:
			// "0 0 RG" scans as the reference "0 0 R" followed by keyword "G".
			if v, ok := tok.Value.(struct{ Num, Gen int }); ok {
				push(semantic.NumberOperand{Value: float64(v.Num)})
				push(semantic.NumberOperand{Value: float64(v.Gen)})
				pendingR = true
			}
		case scanner.TokenName:
			if s, ok := tok.Value.(string); ok {
				push(semantic.NameOperand{Value: s})
			}
		case scanner.TokenString:
			if b, ok := tok.Value.([]byte); ok {
				push(semantic.StringOperand{Value: append([]byte(nil), b...)})
			}
		case scanner.TokenBoolean:
			if b, _ := tok.Value.(bool); b {
				push(literal("true"))
			} else {
				push(literal("false"))
			}
		case scanner.TokenNull:
			push(literal("null"))
		case scanner.TokenArray:
			stack = append(stack, frame{})
		case scanner.TokenDict:
			stack = append(stack, frame{isDict: true})
		case scanner.TokenInlineImage:
			if biStart >= 0 {
				end := sc.Position()
				if end > int64(len(data)) {
					end = int64(len(data))
				}
				ops = append(ops, semantic.Operation{
					Operator: "BI",
					Operands: []semantic.Operand{semantic.StringOperand{Value: append([]byte(nil), data[biStart:end]...)}},
				})
			}
			operands, stack, biStart = nil, nil, -1
		case scanner.TokenKeyword:
			kw, _ := tok.Value.(string)
			if pendingR {
				kw, pendingR = "R"+kw, false
			}
			switch kw {
			case "]", ">>":
				n := len(stack)
				if n == 0 {
					continue
				}
				top := stack[n-1]
				stack = stack[:n-1]
				if top.isDict {
					push(toDict(top.items))
				} else {
					push(semantic.ArrayOperand{Values: top.items})
				}
			case "BI":
				biStart = tok.Pos
				operands, stack = nil, nil
			default:
				if len(stack) > 0 || biStart >= 0 {
					continue
				}
				ops = append(ops, semantic.Operation{Operator: kw, Operands: operands})
				operands = nil
			}
		}
	}
	return ops, nil
}

func tokenFloat(v interface{}) float64 {
	switch n := v.(type) {
	case int64:
		return float64(n)
	case int:
		return float64(n)
	case float64:
		return n
	}
	return 0
}

func toDict(items []semantic.Operand) semantic.DictOperand {
	d := semantic.DictOperand{Values: map[string]semantic.Operand{}}
	for i := 0; i+1 < len(items); i += 2 {
		if k, ok := items[i].(semantic.NameOperand); ok {
			d.Values[k.Value] = items[i+1]
		}
	}
	return d
}

// encodeOps serializes operations back into content stream syntax.
func encodeOps(ops []semantic.Operation) []byte {
	var buf bytes.Buffer
	for _, op := range ops {
		if op.Operator == "BI" && len(op.Operands) == 1 {
			if s, ok := op.Operands[0].(semantic.StringOperand); ok {
				buf.Write(s.Value)
				buf.WriteByte('\n')
				continue
			}
		}
		for _, operand := range op.Operands {
			writeOperand(&buf, operand)
			buf.WriteByte(' ')
		}
		buf.WriteString(op.Operator)
		buf.WriteByte('\n')
	}
	return buf.Bytes()
}

func writeOperand(buf *bytes.Buffer, operand semantic.Operand) {
	switch v := operand.(type) {
	case semantic.NumberOperand:
		buf.WriteString(formatNumber(v.Value))
	case semantic.NameOperand:
		if len(v.Value) > 0 && v.Value[:1] == literalPrefix {
			buf.WriteString(v.Value[1:])
			return
		}
		writeName(buf, v.Value)
	case semantic.StringOperand:
		writeHexString(buf, v.Value)
	case semantic.ArrayOperand:
		buf.WriteByte('[')
		for i, it := range v.Values {
			if i > 0 {
				buf.WriteByte(' ')
			}
			writeOperand(buf, it)
		}
		buf.WriteByte(']')
	case semantic.DictOperand:
		keys := make([]string, 0, len(v.Values))
		for k := range v.Values {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		buf.WriteString("<<")
		for _, k := range keys {
			writeName(buf, k)
			buf.WriteByte(' ')
			writeOperand(buf, v.Values[k])
			buf.WriteByte(' ')
		}
		buf.WriteString(">>")
	default:
		buf.WriteString("null")
	}
}

func formatNumber(v float64) string {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return "0"
	}
	if v == math.Trunc(v) && math.Abs(v) < 1e15 {
		return strconv.FormatInt(int64(v), 10)
	}
	s := strconv.FormatFloat(math.Round(v*1e5)/1e5, 'f', -1, 64)
	if s == "-0" {
		return "0"
	}
	return s
}

func writeName(buf *bytes.Buffer, name string) {
	buf.WriteByte('/')
	for i := 0; i < len(name); i++ {
		c := name[i]
		if c < 0x21 || c > 0x7e || c == '#' || bytes.IndexByte([]byte("()<>[]{}/%"), c) >= 0 {
			fmt.Fprintf(buf, "#%02X", c)
			continue
		}
		buf.WriteByte(c)
	}
}

func writeHexString(buf *bytes.Buffer, b []byte) {
	const hexdigits = "0123456789ABCDEF"
	buf.WriteByte('<')
	for _, c := range b {
		buf.WriteByte(hexdigits[c>>4])
		buf.WriteByte(hexdigits[c&0x0f])
	}
	buf.WriteByte('>')
}

func num(v float64) semantic.NumberOperand { return semantic.NumberOperand{Value: v} }

func nums(vs ...float64) []semantic.Operand {
	out := make([]semantic.Operand, len(vs))
	for i, v := range vs {
		out[i] = num(v)
	}
	return out
}

func operandFloat(o semantic.Operand) (float64, bool) {
	if n, ok := o.(semantic.NumberOperand); ok {
		return n.Value, true
	}
	return 0, false
}

func operandFloats(ops []semantic.Operand) ([]float64, bool) {
	out := make([]float64, len(ops))
	for i, o := range ops {
		v, ok := operandFloat(o)
		if !ok {
			return nil, false
		}
		out[i] = v
	}
	return out, true
}
