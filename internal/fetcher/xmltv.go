package fetcher

import (
	"encoding/xml"
	"fmt"
	"strings"
	"time"

	"github.com/voyagen/guidevault/internal/models"
)

// xmltvTimeLayout is the XMLTV timestamp format, e.g. "20150805120000 +0000".
const xmltvTimeLayout = "20060102150405 -0700"

type xmltvDoc struct {
	XMLName  xml.Name         `xml:"tv"`
	Channels []xmltvChannel   `xml:"channel"`
	Programs []xmltvProgramme `xml:"programme"`
}

type xmltvChannel struct {
	ID             string     `xml:"id,attr"`
	RepeatPrograms bool       `xml:"repeat-programs,attr"`
	DisplayNames   []string   `xml:"display-name"`
	DisplayNumber  string     `xml:"display-number"`
	Icon           *xmltvIcon `xml:"icon"`
	URL            string     `xml:"url"`
}

type xmltvIcon struct {
	Src string `xml:"src,attr"`
}

type xmltvProgramme struct {
	Start      string        `xml:"start,attr"`
	Stop       string        `xml:"stop,attr"`
	Channel    string        `xml:"channel,attr"`
	Title      string        `xml:"title"`
	Desc       string        `xml:"desc"`
	Categories []string      `xml:"category"`
	Ratings    []xmltvRating `xml:"rating"`
	Icon       *xmltvIcon    `xml:"icon"`
	Video      *xmltvVideo   `xml:"video"`
}

type xmltvRating struct {
	System string `xml:"system,attr"`
	Value  string `xml:"value"`
}

// xmltvVideo is the feed's playback extension: a per-programme source URL and
// stream type overriding the channel default.
type xmltvVideo struct {
	Src  string `xml:"src,attr"`
	Type string `xml:"type,attr"`
}

// ParseXMLTV parses an XMLTV document into a Listing. Programme order within
// a channel follows document order, which repeat scheduling treats as the
// canonical cycle order.
func ParseXMLTV(data []byte) (*models.Listing, error) {
	var doc xmltvDoc
	if err := xml.Unmarshal(data, &doc); err != nil {
		return nil, err
	}

	listing := &models.Listing{}
	for _, c := range doc.Channels {
		ch := models.Channel{
			FeedID:         c.ID,
			DisplayNumber:  c.DisplayNumber,
			RepeatPrograms: c.RepeatPrograms,
			URL:            c.URL,
		}
		if len(c.DisplayNames) > 0 {
			ch.DisplayName = strings.TrimSpace(c.DisplayNames[0])
		}
		if ch.DisplayNumber == "" {
			ch.DisplayNumber = c.ID
		}
		if c.Icon != nil && c.Icon.Src != "" {
			src := c.Icon.Src
			ch.Icon = &src
		}
		listing.Channels = append(listing.Channels, ch)
	}

	for _, p := range doc.Programs {
		start, err := time.Parse(xmltvTimeLayout, p.Start)
		if err != nil {
			return nil, fmt.Errorf("programme %q: bad start %q: %w", p.Title, p.Start, err)
		}
		stop, err := time.Parse(xmltvTimeLayout, p.Stop)
		if err != nil {
			return nil, fmt.Errorf("programme %q: bad stop %q: %w", p.Title, p.Stop, err)
		}
		raw := models.RawProgram{
			ChannelFeedID:     p.Channel,
			Title:             strings.TrimSpace(p.Title),
			Description:       strings.TrimSpace(p.Desc),
			Categories:        p.Categories,
			Rating:            flattenRatings(p.Ratings),
			StartTimeUtcMilli: start.UnixMilli(),
			EndTimeUtcMilli:   stop.UnixMilli(),
		}
		if p.Icon != nil {
			raw.Icon = p.Icon.Src
		}
		if p.Video != nil {
			raw.VideoSrc = p.Video.Src
			raw.VideoType = videoTypeFromString(p.Video.Type)
		} else {
			raw.VideoType = models.VideoTypeHTTPProgressive
		}
		listing.Programs = append(listing.Programs, raw)
	}
	return listing, nil
}

// flattenRatings joins rating elements into the persisted comma-separated
// form, each token "system/value" (or bare value without a system).
func flattenRatings(ratings []xmltvRating) string {
	var tokens []string
	for _, r := range ratings {
		v := strings.TrimSpace(r.Value)
		if v == "" {
			continue
		}
		if s := strings.TrimSpace(r.System); s != "" {
			tokens = append(tokens, s+"/"+v)
		} else {
			tokens = append(tokens, v)
		}
	}
	return strings.Join(tokens, ",")
}

func videoTypeFromString(s string) int {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "HLS":
		return models.VideoTypeHLS
	case "MPEG_DASH", "DASH":
		return models.VideoTypeMPEGDash
	default:
		return models.VideoTypeHTTPProgressive
	}
}
