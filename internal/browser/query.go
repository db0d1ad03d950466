package browser

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/chromedp/chromedp"
)

// isXPath reports whether sel is an XPath expression rather than CSS.
func isXPath(sel string) bool {
	s := strings.TrimSpace(sel)
	return strings.HasPrefix(s, "/") || strings.HasPrefix(s, "(")
}

// querySelector narrows XPath expressions to their first match when only one
// node is wanted, so visibility waits do not stall on hidden duplicates.
func querySelector(sel string, single bool) string {
	if single && isXPath(sel) {
		return "(" + sel + ")[1]"
	}
	return sel
}

// queryBy picks the chromedp query strategy for sel.
func queryBy(sel string, single bool) chromedp.QueryOption {
	switch {
	case isXPath(sel):
		return chromedp.BySearch
	case single:
		return chromedp.ByQuery
	default:
		return chromedp.ByQueryAll
	}
}

// findJS resolves a CSS or XPath selector to an array of elements.
const findJS = `function __find(sel) {
  const s = sel.trim();
  if (s.startsWith("/") || s.startsWith("(")) {
    const r = document.evaluate(s, document, null, XPathResult.ORDERED_NODE_SNAPSHOT_TYPE, null);
    const out = [];
    for (let i = 0; i < r.snapshotLength; i++) out.push(r.snapshotItem(i));
    return out;
  }
  return Array.from(document.querySelectorAll(s));
}`

type siblingResult struct {
	Class   string `json:"class"`
	Text    string `json:"text"`
	HTML    string `json:"html"`
	BaseURL string `json:"base"`
}

func jsString(s string) string {
	b, err := json.Marshal(s)
	if err != nil {
		return `""`
	}
	return string(b)
}

func script(body string) string {
	return "(() => {\n" + findJS + "\n" + body + "\n})()"
}

func rowClassesScript(rowSel string) string {
	return script(fmt.Sprintf(`return __find(%s).map(r => r.getAttribute("class") || "");`, jsString(rowSel)))
}

func cellTextScript(rowSel string, row, cell int) string {
	return script(fmt.Sprintf(`const r = __find(%s)[%d];
if (!r) return null;
const c = r.querySelectorAll(":scope > td")[%d];
return c ? c.innerText : null;`, jsString(rowSel), row, cell))
}

func nextSiblingScript(rowSel string, row int) string {
	return script(fmt.Sprintf(`const r = __find(%s)[%d];
if (!r || !r.nextElementSibling) return null;
const n = r.nextElementSibling;
return {class: n.getAttribute("class") || "", text: n.innerText || "", html: n.outerHTML, base: document.baseURI};`, jsString(rowSel), row))
}

func selectOptionScript(sel, value string) string {
	return script(fmt.Sprintf(`const el = __find(%s)[0];
if (!el) return false;
el.value = %s;
el.dispatchEvent(new Event("change", {bubbles: true}));
return true;`, jsString(sel), jsString(value)))
}
