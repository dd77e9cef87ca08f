package api

import (
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
)

// queryParser reads typed query parameters and keeps the first error.
type queryParser struct {
	values url.Values
	err    error
}

func newQueryParser(r *http.Request) *queryParser {
	return &queryParser{values: r.URL.Query()}
}

func (p *queryParser) fail(format string, args ...any) {
	if p.err == nil {
		p.err = fmt.Errorf(format, args...)
	}
}

// list flattens repeated and comma separated values.
func (p *queryParser) list(name string) []string {
	var out []string
	for _, v := range p.values[name] {
		for _, part := range strings.Split(v, ",") {
			if part = strings.TrimSpace(part); part != "" {
				out = append(out, part)
			}
		}
	}
	return out
}

func (p *queryParser) optionalInt(name string) *int {
	raw := strings.TrimSpace(p.values.Get(name))
	if raw == "" {
		return nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		p.fail("%s must be an integer", name)
		return nil
	}
	return &v
}

func (p *queryParser) intValue(name string) int {
	if v := p.optionalInt(name); v != nil {
		return *v
	}
	return 0
}

func (p *queryParser) optionalFloat(name string) *float64 {
	raw := strings.TrimSpace(p.values.Get(name))
	if raw == "" {
		return nil
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		p.fail("%s must be a number", name)
		return nil
	}
	return &v
}

func (p *queryParser) floatValue(name string) float64 {
	if v := p.optionalFloat(name); v != nil {
		return *v
	}
	return 0
}

// durations accepts whole seconds ("300") or Go durations ("5m").
func (p *queryParser) durations(name string) []time.Duration {
	values := p.list(name)
	if len(values) == 0 {
		return nil
	}
	out := make([]time.Duration, 0, len(values))
	for _, v := range values {
		if secs, err := strconv.Atoi(v); err == nil {
			out = append(out, time.Duration(secs)*time.Second)
			continue
		}
		d, err := time.ParseDuration(v)
		if err != nil {
			p.fail("invalid duration %q", v)
			return nil
		}
		out = append(out, d)
	}
	return out
}
