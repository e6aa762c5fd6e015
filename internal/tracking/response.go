package tracking

import (
	"encoding/json"
	"net/http"

	"github.com/promotrack/promotrack/internal/apperror"
)

// transparentGIF is a 1x1 transparent GIF89a.
var transparentGIF = []byte{
	0x47, 0x49, 0x46, 0x38, 0x39, 0x61, 0x01, 0x00, 0x01, 0x00, 0x80, 0x00, 0x00, 0x00, 0x00, 0x00,
	0xff, 0xff, 0xff, 0x21, 0xf9, 0x04, 0x01, 0x00, 0x00, 0x00, 0x00, 0x2c, 0x00, 0x00, 0x00, 0x00,
	0x01, 0x00, 0x01, 0x00, 0x00, 0x02, 0x02, 0x44, 0x01, 0x00, 0x3b,
}

// FormatFor returns the pixel format for pixel routes and ?format=pixel.
func FormatFor(r *http.Request, pixelRoute bool) Format {
	if pixelRoute || r.URL.Query().Get("format") == "pixel" {
		return FormatPixel
	}
	return FormatRedirect
}

// SetNoCacheHeaders marks a tracking response as uncacheable.
func SetNoCacheHeaders(w http.ResponseWriter) {
	w.Header().Set("Cache-Control", "no-cache, no-store, must-revalidate")
	w.Header().Set("Pragma", "no-cache")
	w.Header().Set("Expires", "0")
}

// WriteResponse answers a recorded click: a pixel, a 302 to the promotion
// destination, or a JSON acknowledgement when no destination is configured.
func WriteResponse(w http.ResponseWriter, r *http.Request, req *Request) {
	SetNoCacheHeaders(w)
	req.State = StateResponseSent

	if req.Format == FormatPixel {
		WritePixel(w)
		return
	}

	if dest := req.Promotion.Destination(); dest != "" {
		http.Redirect(w, r, dest, http.StatusFound)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_ = json.NewEncoder(w).Encode(map[string]string{
		"status":   "success",
		"message":  "Click tracked",
		"click_id": req.Click.ID,
	})
}

// WritePixel writes the transparent GIF.
func WritePixel(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "image/gif")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(transparentGIF)
}

// WriteError answers a rejected tracking request with the error envelope.
func WriteError(w http.ResponseWriter, err error) {
	SetNoCacheHeaders(w)
	apperror.Write(w, err)
}
