package flathill

import (
	"encoding/xml"
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"
)

type rssXML struct {
	XMLName xml.Name   `xml:"rss"`
	Version string     `xml:"version,attr"`
	Channel rssChannel `xml:"channel"`
}

type rssChannel struct {
	Title       string    `xml:"title"`
	Link        string    `xml:"link"`
	Description string    `xml:"description"`
	Items       []rssItem `xml:"item"`
}

type rssItem struct {
	Title       string `xml:"title"`
	Link        string `xml:"link"`
	Description string `xml:"description"`
	PubDate     string `xml:"pubDate"`
	GUID        string `xml:"guid"`
}

// handleFeed serves the RSS feed of the configured feed content type.
func (a *App) handleFeed(c echo.Context) error {
	base := a.Config.URL

	var items []rssItem
	route := routeForContentType(a.Config.Menu, a.Config.FeedType)
	if route != nil {
		listing, err := a.Store.List(a.Config.FeedType)
		if err != nil {
			return err
		}
		items = make([]rssItem, 0, len(listing.Records))
		for _, rec := range listing.Records {
			if rec.ID <= 0 {
				continue
			}
			pubDate := ""
			if t, err := time.Parse("2006-01-02", rec.Date); err == nil {
				pubDate = t.Format(time.RFC1123Z)
			}
			recURL := BuildURL(base, route.Path, recordSlug(&rec))
			items = append(items, rssItem{
				Title:       rec.Title,
				Link:        recURL,
				Description: rec.Extra["abstract"],
				PubDate:     pubDate,
				GUID:        recURL,
			})
		}
	}

	feed := rssXML{
		Version: "2.0",
		Channel: rssChannel{
			Title:       a.Config.Name,
			Link:        base,
			Description: a.Config.Meta.Description,
			Items:       items,
		},
	}
	c.Response().Header().Set(echo.HeaderContentType, "application/rss+xml; charset=utf-8")
	c.Response().WriteHeader(http.StatusOK)
	c.Response().Write([]byte(xml.Header))
	return xml.NewEncoder(c.Response()).Encode(feed)
}

// recordSlug is the canonical {id}-{stub} URL segment of a record.
func recordSlug(rec *ContentRecord) string {
	return strconv.Itoa(rec.ID) + "-" + rec.Stub
}
