package webhook

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"mime"
	"net/http"

	"github.com/dmitrymomot/courier/pkg/logger"
)

// Handler serves the provider webhook endpoint.
//
// HEAD answers 200 so the provider can validate the URL. POST accepts either
// a form with the events field or a raw JSON array, and responds 200 for any
// authenticated, parseable batch, 403 for a bad signature and 400 otherwise.
func (i *Ingestor) Handler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodHead:
			w.WriteHeader(http.StatusOK)
			return
		case http.MethodPost:
		default:
			w.Header().Set("Allow", "HEAD, POST")
			writeJSON(w, http.StatusMethodNotAllowed, errorBody("method not allowed"))
			return
		}

		if i.cfg.MaxBodyBytes > 0 {
			r.Body = http.MaxBytesReader(w, r.Body, i.cfg.MaxBodyBytes)
		}

		p, err := i.readPayload(r)
		if err != nil {
			var tooLarge *http.MaxBytesError
			if errors.As(err, &tooLarge) {
				i.metrics.WebhookRequest("too_large")
				writeJSON(w, http.StatusRequestEntityTooLarge, errorBody("payload too large"))
				return
			}
			i.metrics.WebhookRequest("malformed")
			writeJSON(w, http.StatusBadRequest, errorBody("unreadable payload"))
			return
		}

		sum, err := i.Ingest(r.Context(), p, r.Header.Get(SignatureHeader))
		switch {
		case errors.Is(err, ErrInvalidSignature):
			i.metrics.WebhookRequest("forbidden")
			i.log.WarnContext(r.Context(), "webhook signature rejected", slog.String("remote_addr", r.RemoteAddr))
			writeJSON(w, http.StatusForbidden, errorBody("invalid signature"))
		case err != nil:
			i.metrics.WebhookRequest("malformed")
			i.log.InfoContext(r.Context(), "webhook payload rejected", logger.Error(err))
			writeJSON(w, http.StatusBadRequest, errorBody("malformed payload"))
		default:
			i.metrics.WebhookRequest("ok")
			i.log.InfoContext(r.Context(), "webhook batch processed",
				slog.Int("accepted", sum.Accepted), slog.Int("rejected", sum.Rejected))
			writeJSON(w, http.StatusOK, sum)
		}
	}
}

func (i *Ingestor) readPayload(r *http.Request) (Payload, error) {
	p := Payload{URL: i.cfg.URL}
	if p.URL == "" {
		p.URL = requestURL(r)
	}

	ct, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if ct == "application/x-www-form-urlencoded" {
		if err := r.ParseForm(); err != nil {
			return Payload{}, err
		}
		p.Form = r.PostForm
		return p, nil
	}

	body, err := io.ReadAll(r.Body)
	if err != nil {
		return Payload{}, err
	}
	p.Body = body
	return p, nil
}

func requestURL(r *http.Request) string {
	scheme := "http"
	if r.TLS != nil {
		scheme = "https"
	}
	if proto := r.Header.Get("X-Forwarded-Proto"); proto != "" {
		scheme = proto
	}
	return scheme + "://" + r.Host + r.URL.RequestURI()
}

func errorBody(msg string) map[string]string {
	return map[string]string{"error": msg}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
