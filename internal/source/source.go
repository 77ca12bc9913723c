package source

import (
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/GriffinCanCode/microhost/internal/shared/utils"
	"github.com/PuerkitoBio/goquery"
)

var (
	ErrMissingHead = errors.New("element head is missing")
	ErrMissingBody = errors.New("element body is missing")
)

const (
	HeadTag = "micro-app-head"
	BodyTag = "micro-app-body"
)

var (
	headOpen  = regexp.MustCompile(`(?i)<head([\s>])`)
	headClose = regexp.MustCompile(`(?i)</head>`)
	bodyOpen  = regexp.MustCompile(`(?i)<body([\s>])`)
	bodyClose = regexp.MustCompile(`(?i)</body>`)
)

// Script is one script element of the app in document order.
type Script struct {
	Code   string `json:"code,omitempty"`
	Src    string `json:"src,omitempty"`
	Module bool   `json:"module,omitempty"`
}

// Inline reports whether the script carries its own code.
func (s Script) Inline() bool { return s.Src == "" }

// Source is the extracted markup of one app.
type Source struct {
	App         string   `json:"app"`
	URL         string   `json:"url"`
	Head        string   `json:"head"`
	Body        string   `json:"body"`
	Scripts     []Script `json:"scripts"`
	Styles      []string `json:"styles"`
	Stylesheets []string `json:"stylesheets"`
}

// InlineScripts returns the scripts the host can run without fetching.
func (s *Source) InlineScripts() []Script {
	inline := make([]Script, 0, len(s.Scripts))
	for _, script := range s.Scripts {
		if script.Inline() {
			inline = append(inline, script)
		}
	}
	return inline
}

// Extract parses markup served for appName from appURL.
func Extract(markup, appName, appURL string) (*Source, error) {
	markup = headOpen.ReplaceAllString(markup, "<"+HeadTag+"$1")
	markup = headClose.ReplaceAllString(markup, "</"+HeadTag+">")
	markup = bodyOpen.ReplaceAllString(markup, "<"+BodyTag+"$1")
	markup = bodyClose.ReplaceAllString(markup, "</"+BodyTag+">")

	doc, err := goquery.NewDocumentFromReader(strings.NewReader("<div>" + markup + "</div>"))
	if err != nil {
		return nil, fmt.Errorf("failed to parse markup of %s: %w", appName, err)
	}

	head := doc.Find(HeadTag).First()
	if head.Length() == 0 {
		return nil, ErrMissingHead
	}
	body := doc.Find(BodyTag).First()
	if body.Length() == 0 {
		return nil, ErrMissingBody
	}

	src := &Source{
		App:         appName,
		URL:         appURL,
		Scripts:     []Script{},
		Styles:      []string{},
		Stylesheets: []string{},
	}
	root := doc.Find(HeadTag + ", " + BodyTag)

	root.Find("meta, title").Remove()

	root.Find("script").Each(func(_ int, s *goquery.Selection) {
		defer s.Remove()
		if _, excluded := s.Attr("exclude"); excluded {
			return
		}
		typ, _ := s.Attr("type")
		script := Script{Module: strings.EqualFold(typ, "module")}
		if ref, ok := s.Attr("src"); ok {
			script.Src = utils.CompletePath(ref, appURL)
		} else {
			script.Code = s.Text()
		}
		src.Scripts = append(src.Scripts, script)
	})

	root.Find("link").Each(func(_ int, s *goquery.Selection) {
		if _, excluded := s.Attr("exclude"); excluded {
			s.Remove()
			return
		}
		rel, _ := s.Attr("rel")
		href, ok := s.Attr("href")
		if !ok {
			return
		}
		href = utils.CompletePath(href, appURL)
		if strings.EqualFold(rel, "stylesheet") {
			src.Stylesheets = append(src.Stylesheets, href)
			s.Remove()
			return
		}
		s.SetAttr("href", href)
	})

	root.Find("style").Each(func(_ int, s *goquery.Selection) {
		if _, excluded := s.Attr("exclude"); excluded {
			s.Remove()
			return
		}
		src.Styles = append(src.Styles, s.Text())
	})

	root.Find("img[src]").Each(func(_ int, s *goquery.Selection) {
		ref, _ := s.Attr("src")
		s.SetAttr("src", utils.CompletePath(ref, appURL))
	})

	if src.Head, err = head.Html(); err != nil {
		return nil, fmt.Errorf("failed to render head of %s: %w", appName, err)
	}
	if src.Body, err = body.Html(); err != nil {
		return nil, fmt.Errorf("failed to render body of %s: %w", appName, err)
	}
	src.Head = strings.TrimSpace(src.Head)
	src.Body = strings.TrimSpace(src.Body)
	return src, nil
}
