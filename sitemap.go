package flathill

import (
	"encoding/xml"
	"net/http"

	"github.com/labstack/echo/v4"
)

type sitemapURLSet struct {
	XMLName xml.Name     `xml:"urlset"`
	XMLNS   string       `xml:"xmlns,attr"`
	URLs    []sitemapURL `xml:"url"`
}

type sitemapURL struct {
	Loc     string `xml:"loc"`
	LastMod string `xml:"lastmod,omitempty"`
}

// handleSitemap lists every publicly visible declared route plus the records
// of each content-backed route.
func (a *App) handleSitemap(c echo.Context) error {
	base := a.Config.URL
	urls := []sitemapURL{{Loc: BuildURL(base)}}
	urls = append(urls, a.sitemapRoutes(base, a.Config.Menu, "")...)

	sitemap := sitemapURLSet{
		XMLNS: "http://www.sitemaps.org/schemas/sitemap/0.9",
		URLs:  urls,
	}
	c.Response().Header().Set(echo.HeaderContentType, "application/xml; charset=utf-8")
	c.Response().WriteHeader(http.StatusOK)
	c.Response().Write([]byte(xml.Header))
	return xml.NewEncoder(c.Response()).Encode(sitemap)
}

func (a *App) sitemapRoutes(base string, routes []Route, parentPath string) []sitemapURL {
	var urls []sitemapURL
	for i := range routes {
		route := &routes[i]
		if route.Hidden || route.AuthRequired || !publiclyVisible(route.ShowFor) {
			continue
		}

		path := route.Path
		if parentPath != "" {
			path = parentPath + "/" + path
		}
		if path != "" {
			urls = append(urls, sitemapURL{Loc: BuildURL(base, path)})
		}

		if route.ContentType != "" {
			if listing, err := a.Store.List(route.ContentType); err == nil {
				for _, rec := range listing.Records {
					if rec.ID <= 0 {
						continue
					}
					urls = append(urls, sitemapURL{
						Loc:     BuildURL(base, path, recordSlug(&rec)),
						LastMod: rec.Date,
					})
				}
			}
		}

		urls = append(urls, a.sitemapRoutes(base, route.Children, path)...)
	}
	return urls
}

// publiclyVisible reports whether a show_for rule admits unauthenticated
// visitors.
func publiclyVisible(showFor []string) bool {
	return len(showFor) == 0 || containsString(showFor, showForGuest)
}
