// Copyright 2026 Marcelo Cantos
// SPDX-License-Identifier: Apache-2.0

package pipeline

import (
	"fmt"
	"strings"

	"mvdan.cc/sh/v3/syntax"
)

// Parse turns one input line into a Pipeline. It understands words with
// single quotes, double quotes and backslash escapes, the | operator, the
// <, >, >| and >> redirections and a trailing &. Anything else the shell
// grammar allows is rejected with ErrUnsupported. No globbing or tilde
// expansion is done.
func Parse(line string) (*Pipeline, error) {
	file, err := syntax.NewParser().Parse(strings.NewReader(line), "")
	if err != nil {
		return nil, fmt.Errorf("syntax error: %w", err)
	}
	switch len(file.Stmts) {
	case 0:
		return nil, ErrEmptyPipeline
	case 1:
	default:
		return nil, unsupported("multiple commands")
	}

	stmt := file.Stmts[0]
	if stmt.Coprocess {
		return nil, unsupported("|&")
	}

	p := &Pipeline{Background: stmt.Background, Text: stmtText(line, stmt)}
	if err := flatten(stmt, &p.Stages); err != nil {
		return nil, err
	}
	if err := p.Validate(); err != nil {
		return nil, err
	}
	return p, nil
}

func unsupported(what string) error {
	return fmt.Errorf("%w: %s", ErrUnsupported, what)
}

func stmtText(line string, stmt *syntax.Stmt) string {
	start, end := int(stmt.Pos().Offset()), int(stmt.End().Offset())
	if start < 0 || end > len(line) || start > end {
		return strings.TrimSpace(line)
	}
	text := strings.TrimSpace(line[start:end])
	if stmt.Background {
		text = strings.TrimSpace(strings.TrimSuffix(text, "&"))
	}
	return text
}

// flatten appends the stages of stmt, left to right.
func flatten(stmt *syntax.Stmt, stages *[]Stage) error {
	if stmt.Negated {
		return unsupported("!")
	}
	switch cmd := stmt.Cmd.(type) {
	case *syntax.BinaryCmd:
		switch cmd.Op {
		case syntax.Pipe:
		case syntax.PipeAll:
			return unsupported("|&")
		default:
			return unsupported(cmd.Op.String())
		}
		if len(stmt.Redirs) > 0 {
			return unsupported("redirection of a pipeline")
		}
		if err := flatten(cmd.X, stages); err != nil {
			return err
		}
		return flatten(cmd.Y, stages)

	case *syntax.CallExpr:
		if len(cmd.Assigns) > 0 {
			return unsupported("variable assignment")
		}
		var stage Stage
		for _, word := range cmd.Args {
			arg, err := evalWord(word)
			if err != nil {
				return err
			}
			stage.Args = append(stage.Args, arg)
		}
		if err := applyRedirs(&stage, stmt.Redirs); err != nil {
			return err
		}
		*stages = append(*stages, stage)
		return nil

	case nil:
		// A bare redirection such as "> file".
		*stages = append(*stages, Stage{})
		return nil

	default:
		return unsupported("compound command")
	}
}

func applyRedirs(stage *Stage, redirs []*syntax.Redirect) error {
	for _, r := range redirs {
		fd := ""
		if r.N != nil {
			fd = r.N.Value
		}
		var target string
		if r.Word != nil {
			var err error
			if target, err = evalWord(r.Word); err != nil {
				return err
			}
		}

		switch r.Op {
		case syntax.RdrIn:
			if fd != "" && fd != "0" {
				return unsupported(fd + r.Op.String())
			}
			stage.Input = target
		case syntax.RdrOut, syntax.ClbOut, syntax.AppOut:
			if fd != "" && fd != "1" {
				return unsupported(fd + r.Op.String())
			}
			stage.Output = target
			stage.Append = r.Op == syntax.AppOut
		default:
			return unsupported(r.Op.String())
		}
		if target == "" {
			return fmt.Errorf("%s: missing file name", r.Op)
		}
	}
	return nil
}

func evalWord(word *syntax.Word) (string, error) {
	var sb strings.Builder
	for _, part := range word.Parts {
		if err := evalWordPart(&sb, part, false); err != nil {
			return "", err
		}
	}
	return sb.String(), nil
}

func evalWordPart(sb *strings.Builder, part syntax.WordPart, quoted bool) error {
	switch part := part.(type) {
	case *syntax.Lit:
		sb.WriteString(unescape(part.Value, quoted))
	case *syntax.SglQuoted:
		if part.Dollar {
			return unsupported("$'...' quoting")
		}
		sb.WriteString(part.Value)
	case *syntax.DblQuoted:
		if part.Dollar {
			return unsupported(`$"..." quoting`)
		}
		for _, sub := range part.Parts {
			if err := evalWordPart(sb, sub, true); err != nil {
				return err
			}
		}
	case *syntax.ParamExp:
		return unsupported("parameter expansion")
	case *syntax.CmdSubst:
		return unsupported("command substitution")
	case *syntax.ArithmExp:
		return unsupported("arithmetic expansion")
	case *syntax.ProcSubst:
		return unsupported("process substitution")
	default:
		return unsupported(fmt.Sprintf("%T", part))
	}
	return nil
}

// unescape removes backslash quoting from raw literal text. Inside double
// quotes a backslash only escapes $ ` " \ and newline.
func unescape(s string, quoted bool) string {
	if !strings.Contains(s, `\`) {
		return s
	}
	var sb strings.Builder
	for i := 0; i < len(s); i++ {
		c := s[i]
		if c != '\\' || i+1 == len(s) {
			sb.WriteByte(c)
			continue
		}
		next := s[i+1]
		switch {
		case next == '\n':
			i++
		case !quoted || strings.IndexByte("$`\"\\", next) >= 0:
			sb.WriteByte(next)
			i++
		default:
			sb.WriteByte(c)
		}
	}
	return sb.String()
}
