package fetcher

import (
	"bufio"
	"bytes"
	"regexp"
	"strings"
)

var (
	reTvgID     = regexp.MustCompile(`tvg-id="([^"]*)"`)
	reTvgName   = regexp.MustCompile(`tvg-name="([^"]*)"`)
	reCommaName = regexp.MustCompile(`,([^\n\r\t]*)`)
)

// ParseM3U reads an M3U playlist and returns a map from channel key (tvg-id,
// else tvg-name, else the comma-alternative name) to stream URL. Entries
// without a usable key or URL are skipped.
func ParseM3U(data []byte) (map[string]string, error) {
	urls := make(map[string]string)
	scanner := bufio.NewScanner(bytes.NewReader(data))
	// Some playlists carry very long EXTINF lines.
	const maxSize = 1024 * 1024
	buf := make([]byte, 0, 64*1024)
	scanner.Buffer(buf, maxSize)

	var extinfLine string
	for scanner.Scan() {
		line := scanner.Text()
		trimmed := strings.TrimSpace(line)
		switch {
		case strings.HasPrefix(strings.ToUpper(trimmed), "#EXTINF"):
			extinfLine = line
		case trimmed == "" || strings.HasPrefix(trimmed, "#"):
			// Ignore blanks and other directives.
		default:
			// URL line closing the previous EXTINF.
			if extinfLine == "" {
				continue
			}
			if key := channelKeyFromEXTINF(extinfLine); key != "" {
				urls[key] = trimmed
			}
			extinfLine = ""
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	return urls, nil
}

func channelKeyFromEXTINF(extinf string) string {
	if id := matchFirst(reTvgID, extinf); id != "" {
		return id
	}
	if name := matchFirst(reTvgName, extinf); name != "" {
		return name
	}
	return matchFirst(reCommaName, extinf)
}

func matchFirst(re *regexp.Regexp, s string) string {
	m := re.FindStringSubmatch(s)
	if len(m) < 2 {
		return ""
	}
	return strings.TrimSpace(m[1])
}
