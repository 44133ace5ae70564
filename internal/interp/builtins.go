package interp

import (
	"github.com/nikandfor/hacked/hfmt"
	"tlog.app/go/errors"

	"github.com/iley/tacc/internal/ir"
)

var builtins = map[string]External{
	"putchar": putchar,
	"puts":    puts,
	"printf":  printf,
	"exit":    exit,
}

func putchar(m *Machine, args []ir.Value) (ir.Value, error) {
	if len(args) != 1 {
		return ir.Value{}, errors.New("putchar takes 1 argument, got %d", len(args))
	}

	c := byte(args[0].Int)
	if _, err := m.opts.Stdout.Write([]byte{c}); err != nil {
		return ir.Value{}, errors.Wrap(err, "putchar")
	}

	return ir.ConstInt(int64(c), ir.I32), nil
}

func puts(m *Machine, args []ir.Value) (ir.Value, error) {
	if len(args) != 1 {
		return ir.Value{}, errors.New("puts takes 1 argument, got %d", len(args))
	}

	s, err := m.ReadString(args[0].Int)
	if err != nil {
		return ir.Value{}, errors.Wrap(err, "puts")
	}

	if _, err := m.opts.Stdout.Write(append([]byte(s), '\n')); err != nil {
		return ir.Value{}, errors.Wrap(err, "puts")
	}

	return ir.ConstInt(0, ir.I32), nil
}

func exit(m *Machine, args []ir.Value) (ir.Value, error) {
	if len(args) != 1 {
		return ir.Value{}, errors.New("exit takes 1 argument, got %d", len(args))
	}

	return ir.Value{}, &ExitError{Code: int64(int32(args[0].Int))}
}

// printf supports the conversions d i u x X c s f e g p with flags, width,
// precision and the l and ll length modifiers.
func printf(m *Machine, args []ir.Value) (ir.Value, error) {
	if len(args) == 0 {
		return ir.Value{}, errors.New("printf takes at least 1 argument")
	}

	format, err := m.ReadString(args[0].Int)
	if err != nil {
		return ir.Value{}, errors.Wrap(err, "printf format")
	}

	b, err := m.format(nil, format, args[1:])
	if err != nil {
		return ir.Value{}, errors.Wrap(err, "printf")
	}

	if _, err := m.opts.Stdout.Write(b); err != nil {
		return ir.Value{}, errors.Wrap(err, "printf")
	}

	return ir.ConstInt(int64(len(b)), ir.I32), nil
}

func (m *Machine) format(b []byte, format string, args []ir.Value) ([]byte, error) {
	next := func() (ir.Value, error) {
		if len(args) == 0 {
			return ir.Value{}, errors.New("not enough arguments for %q", format)
		}
		a := args[0]
		args = args[1:]
		return a, nil
	}

	for i := 0; i < len(format); i++ {
		c := format[i]
		if c != '%' {
			b = append(b, c)
			continue
		}

		st := i
		i++
		for i < len(format) && (isFlag(format[i]) || format[i] >= '0' && format[i] <= '9' || format[i] == '.') {
			i++
		}
		conv := format[st:i]

		long := false
		for i < len(format) && format[i] == 'l' {
			long = true
			i++
		}

		if i == len(format) {
			return nil, errors.New("incomplete conversion at the end of %q", format)
		}

		verb := format[i]
		if verb == '%' {
			b = append(b, '%')
			continue
		}

		a, err := next()
		if err != nil {
			return nil, err
		}

		switch verb {
		case 'd', 'i':
			v := a.Int
			if !long {
				v = int64(int32(v))
			}
			b = hfmt.Appendf(b, conv+"d", v)
		case 'u':
			v := uint64(a.Int)
			if !long {
				v = uint64(uint32(v))
			}
			b = hfmt.Appendf(b, conv+"d", v)
		case 'x', 'X':
			v := uint64(a.Int)
			if !long {
				v = uint64(uint32(v))
			}
			b = hfmt.Appendf(b, conv+string(verb), v)
		case 'c':
			b = append(b, byte(a.Int))
		case 's':
			s, err := m.ReadString(a.Int)
			if err != nil {
				return nil, err
			}
			b = hfmt.Appendf(b, conv+"s", s)
		case 'f', 'e', 'g':
			if a.Kind != ir.FloatConst {
				return nil, errors.New("%%%c expects a double, got %v", verb, a)
			}
			if conv == "%" && verb == 'f' {
				conv = "%.6"
			}
			b = hfmt.Appendf(b, conv+string(verb), a.Float)
		case 'p':
			b = hfmt.Appendf(b, "0x%x", uint64(a.Int))
		default:
			return nil, errors.New("unsupported conversion %%%c", verb)
		}
	}

	return b, nil
}

func isFlag(c byte) bool {
	return c == '-' || c == '+' || c == ' ' || c == '#' || c == '0'
}
