package desktop

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"sync"
	"time"
)

// DefaultElementTTL is how long a resolved element is reused.
const DefaultElementTTL = 2 * time.Second

// ExecAccessibility resolves UI elements by running an external query
// command that prints element JSON. Without a query command it resolves
// top-level windows by title through xdotool.
//
// The query command is invoked as
//
//	<cmd...> --role ROLE --label LABEL [--app APP]
//
// and must print either a single Element object or an array of them.
// Empty output, "null" or "[]" means no match.
type ExecAccessibility struct {
	argv []string
	tool string
	run  Runner
	ttl  time.Duration
	now  func() time.Time

	mu    sync.Mutex
	cache map[string]cachedElement
}

type cachedElement struct {
	el      *Element
	expires time.Time
}

// NewExecAccessibility checks that the query command (or xdotool when
// queryCmd is empty) is installed.
func NewExecAccessibility(queryCmd, tool string) (*ExecAccessibility, error) {
	argv := strings.Fields(queryCmd)
	if tool == "" {
		tool = "xdotool"
	}
	bin := tool
	if len(argv) > 0 {
		bin = argv[0]
	}
	if err := requireTool(bin); err != nil {
		return nil, err
	}
	return NewExecAccessibilityWithRunner(argv, tool, ExecRunner), nil
}

// NewExecAccessibilityWithRunner is used by tests.
func NewExecAccessibilityWithRunner(argv []string, tool string, run Runner) *ExecAccessibility {
	return &ExecAccessibility{
		argv:  argv,
		tool:  tool,
		run:   run,
		ttl:   DefaultElementTTL,
		now:   time.Now,
		cache: make(map[string]cachedElement),
	}
}

func (a *ExecAccessibility) Ready() bool { return a != nil && a.run != nil }

func (a *ExecAccessibility) FindElement(ctx context.Context, role, label, appName string) (*Element, error) {
	key := strings.ToLower(role + "\x00" + label + "\x00" + appName)
	a.mu.Lock()
	if c, ok := a.cache[key]; ok && a.now().Before(c.expires) {
		a.mu.Unlock()
		return c.el, nil
	}
	a.mu.Unlock()

	var (
		el  *Element
		err error
	)
	if len(a.argv) > 0 {
		el, err = a.query(ctx, role, label, appName)
	} else {
		el, err = a.findWindow(ctx, role, label, appName)
	}
	if err != nil {
		return nil, err
	}

	if el != nil {
		a.mu.Lock()
		a.cache[key] = cachedElement{el: el, expires: a.now().Add(a.ttl)}
		a.mu.Unlock()
	}
	return el, nil
}

func (a *ExecAccessibility) query(ctx context.Context, role, label, appName string) (*Element, error) {
	args := append([]string{}, a.argv[1:]...)
	args = append(args, "--role", role, "--label", label)
	if appName != "" {
		args = append(args, "--app", appName)
	}
	out, err := a.run(ctx, a.argv[0], args...)
	if err != nil {
		return nil, fmt.Errorf("query accessibility: %w", err)
	}
	elements, err := parseElements(out)
	if err != nil {
		return nil, err
	}
	return bestElement(elements, label), nil
}

func parseElements(out []byte) ([]Element, error) {
	out = bytes.TrimSpace(out)
	if len(out) == 0 || bytes.Equal(out, []byte("null")) {
		return nil, nil
	}
	if out[0] == '[' {
		var list []Element
		if err := json.Unmarshal(out, &list); err != nil {
			return nil, fmt.Errorf("parse accessibility output: %w", err)
		}
		return list, nil
	}
	var one Element
	if err := json.Unmarshal(out, &one); err != nil {
		return nil, fmt.Errorf("parse accessibility output: %w", err)
	}
	return []Element{one}, nil
}

// bestElement prefers an exact label match over the first result.
func bestElement(elements []Element, label string) *Element {
	if len(elements) == 0 {
		return nil
	}
	for i := range elements {
		if strings.EqualFold(elements[i].Label, label) {
			return &elements[i]
		}
	}
	return &elements[0]
}

// findWindow only resolves untyped targets; buttons and fields need a real
// accessibility tree.
func (a *ExecAccessibility) findWindow(ctx context.Context, role, label, appName string) (*Element, error) {
	if role != "" && role != "window" {
		return nil, nil
	}
	args := []string{"search", "--onlyvisible"}
	switch {
	case label != "":
		args = append(args, "--name", "(?i)"+regexp.QuoteMeta(label))
	case appName != "":
		args = append(args, "--class", "(?i)"+regexp.QuoteMeta(appName))
	default:
		return nil, nil
	}

	out, err := a.run(ctx, a.tool, args...)
	if err != nil {
		// xdotool exits non-zero when nothing matches.
		if len(bytes.TrimSpace(out)) == 0 {
			return nil, nil
		}
		return nil, fmt.Errorf("search windows: %w", err)
	}
	ids := strings.Fields(string(out))
	if len(ids) == 0 {
		return nil, nil
	}

	geo, err := a.run(ctx, a.tool, "getwindowgeometry", "--shell", ids[0])
	if err != nil {
		return nil, fmt.Errorf("window geometry: %w", err)
	}
	center, err := windowCenter(geo)
	if err != nil {
		return nil, err
	}
	name := label
	if name == "" {
		name = appName
	}
	return &Element{Role: "window", Label: name, AppName: appName, Center: center}, nil
}

// windowCenter parses `xdotool getwindowgeometry --shell` output.
func windowCenter(out []byte) (Point, error) {
	vals := make(map[string]int)
	sc := bufio.NewScanner(bytes.NewReader(out))
	for sc.Scan() {
		k, v, ok := strings.Cut(strings.TrimSpace(sc.Text()), "=")
		if !ok {
			continue
		}
		n, err := strconv.Atoi(v)
		if err != nil {
			continue
		}
		vals[k] = n
	}
	for _, k := range []string{"X", "Y", "WIDTH", "HEIGHT"} {
		if _, ok := vals[k]; !ok {
			return Point{}, fmt.Errorf("window geometry: missing %s", k)
		}
	}
	return Point{X: vals["X"] + vals["WIDTH"]/2, Y: vals["Y"] + vals["HEIGHT"]/2}, nil
}
