// Copyright 2024 Richard Kelsey. All rights reserved.
// See file LICENSE for notices and license.

// Very basic S-expression parser.  ';' starts a comment that runs to
// the end of the line.

package util

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"unicode"
)

type SExpKindT int

const (
	SExpInt SExpKindT = iota
	SExpSymbol
	SExpList
)

type SExpT struct {
	Kind    SExpKindT
	Integer int
	Symbol  string
	List    []*SExpT
}

func (sexp *SExpT) String() string {
	switch sexp.Kind {
	case SExpInt:
		return strconv.Itoa(sexp.Integer)
	case SExpSymbol:
		return sexp.Symbol
	case SExpList:
		if len(sexp.List) == 0 {
			return "()"
		}
		result := "(" + sexp.List[0].String()
		for _, s := range sexp.List[1:] {
			result += " " + s.String()
		}
		return result + ")"
	}
	panic("bad S-expression")
}

func (sexp *SExpT) IsSymbol(name string) bool {
	return sexp.Kind == SExpSymbol && sexp.Symbol == name
}

// True for a list whose first element is the symbol 'name'.
func (sexp *SExpT) IsForm(name string) bool {
	return sexp.Kind == SExpList && 0 < len(sexp.List) && sexp.List[0].IsSymbol(name)
}

var errUnbalanced = errors.New("unbalanced parentheses")

// Parses all of the top-level expressions in 'data'.

func ParseSExps(data string) (result []*SExpT, err error) {
	defer func() {
		if problem := recover(); problem != nil {
			err = fmt.Errorf("s-expression syntax: %v", problem)
		}
	}()
	tokens := tokenizer(data)
	var recur func(list *SExpT) (*SExpT, bool)
	recur = func(list *SExpT) (*SExpT, bool) {
		for {
			next, ok := tokens()
			if !ok {
				if list != nil {
					panic(errUnbalanced)
				}
				return nil, false
			}
			if next == "\x29" {
				if list == nil {
					panic("unexpected '\x29'")
				}
				return nil, true
			}
			nextSExp := &SExpT{}
			if next == "\x28" {
				nextSExp.Kind = SExpList
				recur(nextSExp)
			} else {
				i, err := strconv.Atoi(next)
				if err == nil {
					nextSExp.Kind = SExpInt
					nextSExp.Integer = i
				} else {
					nextSExp.Kind = SExpSymbol
					nextSExp.Symbol = next
				}
			}
			if list == nil {
				return nextSExp, true
			}
			list.List = append(list.List, nextSExp)
		}
	}
	for {
		sexp, ok := recur(nil)
		if !ok {
			return result, nil
		}
		result = append(result, sexp)
	}
}

// Parses a single expression.
func ParseSExp(data string) (*SExpT, error) {
	sexps, err := ParseSExps(data)
	if err != nil {
		return nil, err
	}
	if len(sexps) != 1 {
		return nil, fmt.Errorf("expected one s-expression, found %d", len(sexps))
	}
	return sexps[0], nil
}

func tokenizer(data string) func() (string, bool) {
	reader := bufio.NewReader(strings.NewReader(data))
	return func() (string, bool) {
		return nextToken(reader)
	}
}

func nextToken(reader *bufio.Reader) (string, bool) {
	var contents strings.Builder
	reading := false
	for {
		c, _, err := reader.ReadRune()
		if reading {
			if err != nil || !isSymbolConstituent(c) {
				if err == nil {
					reader.UnreadRune()
				}
				return contents.String(), true
			}
			contents.WriteRune(c)
			continue
		} else if err == io.EOF {
			return "", false
		} else if err != nil {
			panic(err)
		} else if unicode.IsSpace(c) {
			continue
		} else if c == ';' {
			for err == nil && c != '\n' {
				c, _, err = reader.ReadRune()
			}
			continue
		} else if c == '\x28' {
			return "\x28", true
		} else if c == '\x29' {
			return "\x29", true
		} else if isSymbolConstituent(c) {
			contents.WriteRune(c)
			reading = true
			continue
		}
		panic("Unrecognized s-expression character " + strconv.QuoteRune(c))
	}
}

func isSymbolConstituent(r rune) bool {
	return unicode.IsLetter(r) || unicode.IsDigit(r) || strings.ContainsRune(":_*&-+.<>=!/%^|", r)
}
