package server

import (
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"unicode"

	"github.com/obstools/camd/internal/acquire"
	"github.com/obstools/camd/internal/device"
	"github.com/obstools/camd/internal/registry"
)

// Token that pre-empts normal dispatch: any line containing it,
// regardless of case, is an exposure request.
const imageToken = "image"

// Keywords that end the session. The response to any of them is empty,
// which closes the connection without a reply.
var disconnectKeywords = map[string]struct{}{
	"exit":   {},
	"quit":   {},
	"bye":    {},
	"logout": {},
}

// Routes one command line to its handler and returns the response line.
func (s *Server) dispatch(c *conn, line string) string {
	trimmed := strings.TrimSpace(line)

	if strings.Contains(strings.ToLower(trimmed), imageToken) {
		return s.handleImage(c)
	}

	fields := splitFields(trimmed)
	if len(fields) == 0 {
		return failure("", "Syntax error")
	}

	keyword := strings.ToLower(fields[0])
	if _, ok := disconnectKeywords[keyword]; ok {
		return ""
	}

	args := fields[1:]

	switch keyword {
	case "etime":
		return s.handleEtime(args)
	case "gain":
		return s.handleGain(args)
	case "help":
		return s.handleHelp()
	}

	return failure("", "Syntax error")
}

// Sets or queries the exposure time. A zero argument is a query; the
// response always carries the effective, quantized value.
func (s *Server) handleEtime(args []string) string {
	if len(args) != 1 {
		return failure("etime", acquire.Diagnostic(acquire.ErrInvalidArg))
	}

	value, changed, err := s.session.SetEtime(args[0])
	if err != nil {
		return failure("etime", acquire.Diagnostic(err))
	}

	if changed {
		s.persist(registry.PathEtime, fmt.Sprintf("%.4f", value))
	}

	return fmt.Sprintf(". etime %.3f", value)
}

// Sets the gain. Symbolic-gain devices take a mode name; others take an
// integer inside the device's advertised range. A rejected value leaves
// the session untouched.
func (s *Server) handleGain(args []string) string {
	if len(args) != 1 {
		return failure("gain", acquire.Diagnostic(acquire.ErrInvalidArg))
	}

	if s.session.SymbolicGain() {
		mode, err := device.ParseGainMode(args[0])
		if err != nil {
			return failure("gain", "invalid value")
		}

		if gm, ok := s.dev.(device.GainModer); ok {
			if err := gm.SetGainMode(mode); err != nil {
				return failure("gain", acquire.Diagnostic(acquire.ErrSetGain))
			}
		}

		s.session.SetGainMode(mode)
		s.persist(registry.PathGain, string(mode))
		return fmt.Sprintf(". gain %s", mode)
	}

	value, err := strconv.ParseInt(args[0], 10, 64)
	if err != nil {
		return failure("gain", "invalid value")
	}
	if err := s.session.SetGain(value); err != nil {
		return failure("gain", "invalid value")
	}

	s.persist(registry.PathGain, fmt.Sprintf("%d", value))
	return fmt.Sprintf(". gain %d", value)
}

// Runs one exposure cycle and arms the encoded image for streaming. The
// success response carries the byte count the client must then read.
func (s *Server) handleImage(c *conn) string {
	data, err := s.ctrl.Acquire()
	if err != nil {
		slog.Error("exposure failed", "id", c.id, "error", err)
		return failure("IMAGE", acquire.Diagnostic(err))
	}

	c.arm(data)
	return fmt.Sprintf(". %d", len(data))
}

func (s *Server) handleHelp() string {
	return `. "etime <sec>|<min:sec> | gain <value> | image | exit"`
}

// Writes a parameter to the registry, if one is attached. Persistence
// failures are logged and do not fail the command.
func (s *Server) persist(path, value string) {
	if s.reg == nil {
		return
	}
	if err := s.reg.PutString(path, value); err != nil {
		slog.Warn("registry update failed", "path", path, "error", err)
	}
}

// Formats a failure response. The diagnostic is always double-quoted;
// the command echo is omitted for unparseable lines.
func failure(cmd, diagnostic string) string {
	if cmd == "" {
		return fmt.Sprintf("! %q", diagnostic)
	}
	return fmt.Sprintf("! %s %q", cmd, diagnostic)
}

// Splits a command line into fields, honoring double-quoted groups.
// Quote characters themselves are not part of any field.
func splitFields(line string) []string {
	var fields []string
	var current strings.Builder
	quoted := false

	for _, r := range line {
		switch {
		case r == '"':
			quoted = !quoted
		case unicode.IsSpace(r) && !quoted:
			if current.Len() > 0 {
				fields = append(fields, current.String())
				current.Reset()
			}
		default:
			current.WriteRune(r)
		}
	}
	if current.Len() > 0 {
		fields = append(fields, current.String())
	}

	return fields
}
