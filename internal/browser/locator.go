package browser

import (
	"encoding/json"
	"fmt"

	"github.com/chromedp/chromedp"
)

type By int

const (
	ByCSS By = iota
	ByXPath
)

// Locator addresses a single element on the current page.
type Locator struct {
	By    By
	Value string
}

func CSS(selector string) Locator {
	return Locator{By: ByCSS, Value: selector}
}

func XPath(expr string) Locator {
	return Locator{By: ByXPath, Value: expr}
}

func (l Locator) String() string {
	if l.By == ByXPath {
		return fmt.Sprintf("xpath(%s)", l.Value)
	}
	return fmt.Sprintf("css(%s)", l.Value)
}

func (l Locator) queryOption() chromedp.QueryOption {
	if l.By == ByXPath {
		return chromedp.BySearch
	}
	return chromedp.ByQuery
}

// hiddenExpr is a js expression that is truthy once the element is absent or not rendered.
func (l Locator) hiddenExpr() string {
	quoted, _ := json.Marshal(l.Value)
	lookup := fmt.Sprintf("document.querySelector(%s)", quoted)
	if l.By == ByXPath {
		lookup = fmt.Sprintf(
			"document.evaluate(%s, document, null, XPathResult.FIRST_ORDERED_NODE_TYPE, null).singleNodeValue",
			quoted,
		)
	}
	return fmt.Sprintf(
		`(() => { const el = %s; return el === null || el.offsetParent === null || getComputedStyle(el).visibility === "hidden"; })()`,
		lookup,
	)
}
