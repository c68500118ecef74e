package checker

import (
	"fmt"
	"io"
	"strings"

	"github.com/aymerick/douceur/css"
	"github.com/aymerick/douceur/parser"
)

// Slot is one of the style targets the CSS checklist inspects.
type Slot int

const (
	SlotBody Slot = iota
	SlotH1
	SlotH2
	SlotImage
)

// Slots lists every slot in digest order.
var Slots = [...]Slot{SlotBody, SlotH1, SlotH2, SlotImage}

func (s Slot) String() string {
	switch s {
	case SlotBody:
		return "body"
	case SlotH1:
		return "h1"
	case SlotH2:
		return "h2"
	case SlotImage:
		return "image"
	default:
		return fmt.Sprintf("slot(%d)", int(s))
	}
}

// SlotFor maps a selector to the slot it styles.
func SlotFor(selector string) (Slot, bool) {
	switch selector {
	case "body":
		return SlotBody, true
	case "h1":
		return SlotH1, true
	case "h2":
		return SlotH2, true
	case ".petite-image", ".affiche":
		return SlotImage, true
	default:
		return 0, false
	}
}

// styleRule is a qualified rule reduced to its selector text and the last
// value declared for each property.
type styleRule struct {
	selector string
	props    map[string]string
}

// value is safe on a nil rule.
func (r *styleRule) value(property string) string {
	if r == nil {
		return ""
	}
	return r.props[property]
}

func (r *styleRule) declares(property string) bool {
	if r == nil {
		return false
	}
	_, ok := r.props[property]
	return ok
}

// CSSChecker grades a submission's style.css.
type CSSChecker struct{}

// NewCSSChecker constructs a CSSChecker.
func NewCSSChecker() *CSSChecker {
	return &CSSChecker{}
}

// Check parses the stylesheet at path and evaluates the CSS checklist.
func (c *CSSChecker) Check(path string) (Outcome, error) {
	file, err := openDocument(path)
	if err != nil {
		return Outcome{}, err
	}
	defer file.Close()

	return c.CheckReader(file)
}

// CheckReader evaluates the CSS checklist over an already opened stylesheet.
func (c *CSSChecker) CheckReader(r io.Reader) (Outcome, error) {
	content, err := io.ReadAll(r)
	if err != nil {
		return Outcome{}, fmt.Errorf("failed to read stylesheet: %w", err)
	}

	rules, err := parseRules(string(content))
	if err != nil {
		return Outcome{}, err
	}

	slots := make(map[Slot]*styleRule, len(Slots))
	selectorCount := make(map[string]int)
	for _, rule := range rules {
		if slot, ok := SlotFor(rule.selector); ok {
			slots[slot] = rule
		}
		selectorCount[rule.selector]++
	}

	duplicated := false
	for _, count := range selectorCount {
		if count > 1 {
			duplicated = true
			break
		}
	}

	body, h1, h2, image := slots[SlotBody], slots[SlotH1], slots[SlotH2], slots[SlotImage]

	outcome := Outcome{Digest: digest(slots)}

	outcome.record("no duplicated selectors", NewCheckGroup().Require(!duplicated))
	outcome.record("h1 is styled", NewCheckGroup().Require(h1 != nil))
	outcome.record("h2 is styled", NewCheckGroup().Require(h2 != nil))
	outcome.record("poster image is styled", NewCheckGroup().Require(image != nil))

	// A missing body rule fails this item instead of aborting the submission.
	hasImage := body.value("background-image") != ""
	colorChanged := body.declares("background-color") && !strings.EqualFold(body.value("background-color"), "purple")
	outcome.record("page background was customised", NewCheckGroup().Require(hasImage || colorChanged))

	outcome.record("h1 sets a font size", NewCheckGroup().Require(h1.value("font-size") != ""))
	outcome.record("h2 sets a color", NewCheckGroup().Require(h2.value("color") != ""))
	outcome.record("h2 is underlined", NewCheckGroup().Require(strings.EqualFold(h2.value("text-decoration"), "underline")))

	return outcome, nil
}

// digest renders which slots have a rule, e.g. "CSS[XX X]".
func digest(slots map[Slot]*styleRule) string {
	var b strings.Builder
	b.WriteString("CSS[")
	for _, slot := range Slots {
		if slots[slot] != nil {
			b.WriteByte('X')
		} else {
			b.WriteByte(' ')
		}
	}
	b.WriteString("]")
	return b.String()
}

func parseRules(content string) ([]*styleRule, error) {
	sheet, err := parser.Parse(content)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedDocument, err)
	}

	rules := make([]*styleRule, 0, len(sheet.Rules))
	for _, rule := range sheet.Rules {
		if rule.Kind != css.QualifiedRule {
			continue
		}

		selectors := make([]string, 0, len(rule.Selectors))
		for _, selector := range rule.Selectors {
			if selector = strings.TrimSpace(selector); selector != "" {
				selectors = append(selectors, selector)
			}
		}

		props := make(map[string]string, len(rule.Declarations))
		for _, decl := range rule.Declarations {
			props[strings.ToLower(strings.TrimSpace(decl.Property))] = strings.TrimSpace(decl.Value)
		}

		rules = append(rules, &styleRule{
			selector: strings.Join(selectors, ", "),
			props:    props,
		})
	}

	return rules, nil
}
