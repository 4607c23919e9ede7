package models

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// ErrMalformedPayload is returned when an internal provider payload read from
// the store cannot be split into a video type and a video URL.
var ErrMalformedPayload = errors.New("malformed internal provider payload")

// EncodeProviderPayload packs a video type and URL into the single delimited
// string persisted in the programme row. The "<videoType>,<videoUrl>" format
// is a stable on-disk contract; readers split on the first comma only.
func EncodeProviderPayload(videoType int, videoURL string) string {
	return strconv.Itoa(videoType) + "," + videoURL
}

// ParseProviderPayload is the inverse of EncodeProviderPayload.
func ParseProviderPayload(payload string) (videoType int, videoURL string, err error) {
	parts := strings.SplitN(payload, ",", 2)
	if len(parts) != 2 {
		return 0, "", fmt.Errorf("%w: %q", ErrMalformedPayload, payload)
	}
	videoType, err = strconv.Atoi(parts[0])
	if err != nil {
		return 0, "", fmt.Errorf("%w: bad video type in %q", ErrMalformedPayload, payload)
	}
	return videoType, parts[1], nil
}
