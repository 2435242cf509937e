package tracking

import (
	"html"
	"net/url"
	"regexp"
	"strings"
)

// Linker builds tracking URLs and rewrites HTML bodies to use them.
type Linker struct {
	endpoint string
}

// NewLinker points tracking URLs at baseURL+path, e.g.
// https://mail.example.org + /track.
func NewLinker(baseURL, path string) *Linker {
	if path == "" {
		path = "/track"
	}
	if !strings.HasPrefix(path, "/") {
		path = "/" + path
	}
	return &Linker{endpoint: strings.TrimRight(baseURL, "/") + path}
}

// OpenURL is the pixel URL for emailID.
func (l *Linker) OpenURL(emailID string) string {
	return l.endpoint + "?id=" + url.QueryEscape(emailID) + "&event=open"
}

// ClickURL is the redirecting URL for a link to target.
func (l *Linker) ClickURL(emailID, target string) string {
	return l.endpoint + "?id=" + url.QueryEscape(emailID) + "&event=click&url=" + url.QueryEscape(target)
}

var bodyClose = regexp.MustCompile(`(?i)</body\s*>`)

// InjectPixel adds the open-tracking image before the last </body>, or at
// the end when the body has no closing tag.
func (l *Linker) InjectPixel(body, emailID string) string {
	img := `<img src="` + html.EscapeString(l.OpenURL(emailID)) + `" width="1" height="1" alt="" />`

	locs := bodyClose.FindAllStringIndex(body, -1)
	if len(locs) == 0 {
		return body + img
	}
	at := locs[len(locs)-1][0]
	return body[:at] + img + body[at:]
}

var absoluteHref = regexp.MustCompile(`(?i)href\s*=\s*"(https?://[^"]+)"`)

// RewriteLinks routes every absolute http(s) href through the click
// endpoint. Links already pointing at the endpoint are left alone.
func (l *Linker) RewriteLinks(body, emailID string) string {
	return absoluteHref.ReplaceAllStringFunc(body, func(match string) string {
		sub := absoluteHref.FindStringSubmatch(match)
		target := html.UnescapeString(sub[1])
		if strings.HasPrefix(target, l.endpoint) {
			return match
		}
		return `href="` + html.EscapeString(l.ClickURL(emailID, target)) + `"`
	})
}
